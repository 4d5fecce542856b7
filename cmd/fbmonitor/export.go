package main

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"fbmonitor/internal/config"
	"fbmonitor/internal/domain"
	"fbmonitor/internal/store"

	"github.com/spf13/cobra"
)

const chatsExportName = "chats.json"

// chatExport is the JSON document written by `export --json` and embedded
// in archives.
type chatExport struct {
	ExportedAt time.Time           `json:"exportedAt"`
	Version    string              `json:"version"`
	Chats      []domain.ChatRecord `json:"chats"`
}

func exportCmd() *cobra.Command {
	var outputPath string
	var jsonOnly bool

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export conversation history (archive or JSON)",
		Long: `Creates a compressed .tar.gz archive with the SQLite database, the
configuration file and a chats.json dump. With --json only the chat
history is written, to stdout or to --output.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgPath, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.Memory.Enabled {
				return fmt.Errorf("memory is disabled; nothing to export")
			}

			dump, err := dumpChats(cmd, cfg.Memory.DBPath)
			if err != nil {
				return err
			}

			if jsonOnly {
				if outputPath == "" || outputPath == "-" {
					_, err := os.Stdout.Write(dump)
					return err
				}
				if err := os.WriteFile(outputPath, dump, 0o600); err != nil {
					return err
				}
				fmt.Printf("Chats exported: %s\n", outputPath)
				return nil
			}

			if outputPath == "" {
				exportDir := filepath.Join(config.DefaultConfigDir(), "exports")
				if err := os.MkdirAll(exportDir, 0o700); err != nil {
					return fmt.Errorf("cannot create export directory: %w", err)
				}
				ts := time.Now().Format("20060102-150405")
				outputPath = filepath.Join(exportDir, fmt.Sprintf("fbmonitor-export-%s.tar.gz", ts))
			}

			dbPath := cfg.Memory.DBPath
			var files []string
			if _, err := os.Stat(dbPath); err == nil {
				files = append(files, dbPath)
				for _, suffix := range []string{"-wal", "-shm"} {
					if _, err := os.Stat(dbPath + suffix); err == nil {
						files = append(files, dbPath+suffix)
					}
				}
			}
			if _, err := os.Stat(cfgPath); err == nil {
				files = append(files, cfgPath)
			}

			if err := createTarGz(outputPath, files, map[string][]byte{chatsExportName: dump}); err != nil {
				return fmt.Errorf("export failed: %w", err)
			}

			fmt.Printf("Export created: %s\n", outputPath)
			fmt.Printf("Files included: %d\n", len(files)+1)
			for _, f := range files {
				info, _ := os.Stat(f)
				size := int64(0)
				if info != nil {
					size = info.Size()
				}
				fmt.Printf("  - %s (%s)\n", filepath.Base(f), humanSize(size))
			}
			fmt.Printf("  - %s (%s)\n", chatsExportName, humanSize(int64(len(dump))))
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file (default: ~/.fbmonitor/exports/fbmonitor-export-<timestamp>.tar.gz)")
	cmd.Flags().BoolVar(&jsonOnly, "json", false, "write only the chat history as JSON")
	return cmd
}

func dumpChats(cmd *cobra.Command, dbPath string) ([]byte, error) {
	db, err := store.Open(dbPath, logger)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	chats, err := db.LoadChats(cmd.Context())
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(chatExport{
		ExportedAt: time.Now().UTC(),
		Version:    version,
		Chats:      chats,
	}, "", "  ")
}

// createTarGz writes files (by base name) and extra in-memory entries.
func createTarGz(outputPath string, files []string, extra map[string][]byte) error {
	outFile, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer outFile.Close()

	gzWriter := gzip.NewWriter(outFile)
	defer gzWriter.Close()

	tarWriter := tar.NewWriter(gzWriter)
	defer tarWriter.Close()

	for _, filePath := range files {
		if err := addFileToTar(tarWriter, filePath); err != nil {
			return fmt.Errorf("add %s: %w", filePath, err)
		}
	}
	for name, data := range extra {
		hdr := &tar.Header{Name: name, Mode: 0o600, Size: int64(len(data)), ModTime: time.Now()}
		if err := tarWriter.WriteHeader(hdr); err != nil {
			return err
		}
		if _, err := io.Copy(tarWriter, bytes.NewReader(data)); err != nil {
			return err
		}
	}
	return nil
}

func addFileToTar(tw *tar.Writer, filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	header.Name = filepath.Base(filePath)

	if err := tw.WriteHeader(header); err != nil {
		return err
	}

	_, err = io.Copy(tw, file)
	return err
}

func humanSize(bytes int64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(gb))
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
