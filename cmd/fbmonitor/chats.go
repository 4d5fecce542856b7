package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"fbmonitor/internal/store"

	"github.com/spf13/cobra"
)

func chatsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "chats",
		Short: "List stored conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			chats, err := db.ListChats(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(chats) == 0 {
				fmt.Println("No chats stored yet.")
				return nil
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "CHAT\tUSER\tSTATE\tUNREAD\tMESSAGES\tUPDATED")
			for _, c := range chats {
				unread := ""
				if c.Unread {
					unread = "yes"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
					c.ChatID, c.UserName, c.State, unread, c.Messages, c.UpdatedAt.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum chats to list")

	cmd.AddCommand(&cobra.Command{
		Use:   "show <chat-id>",
		Short: "Print one conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			rec, err := db.LoadChat(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if rec == nil {
				return fmt.Errorf("chat %s not found", args[0])
			}
			fmt.Printf("Chat %s with %s (%s)\n", rec.ChatID, rec.UserName, rec.State)
			if p := rec.Product; p != nil && p.Title != "" {
				fmt.Printf("Listing: %s %s\n", p.Title, p.Price)
			}
			fmt.Println()
			for _, m := range rec.History {
				who := m.Sender
				if m.IsSentByYou {
					who = "you"
				}
				fmt.Printf("[%s] %s\n", who, m.Content)
			}
			return nil
		},
	})
	return cmd
}

func openStore() (*store.SQLiteStore, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.Memory.Enabled {
		return nil, fmt.Errorf("memory is disabled in %s", resolveConfigPath())
	}
	return store.Open(cfg.Memory.DBPath, logger)
}
