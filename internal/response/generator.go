package response

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fbmonitor/internal/domain"
	"fbmonitor/internal/metrics"
	"fbmonitor/internal/provider"
)

// Prompts are the system prompts for the two sides of a Marketplace chat.
type Prompts struct {
	Seller string
	Buyer  string
	Extra  string
}

func DefaultPrompts() Prompts {
	return Prompts{
		Seller: "You are a friendly seller on Facebook Marketplace. Answer the buyer briefly and politely, in the buyer's language. Never invent details about the item that are not given.",
		Buyer:  "You are a polite buyer on Facebook Marketplace. Reply briefly, ask about condition, availability and pickup when useful.",
	}
}

// Draft is a generated reply and where it came from.
type Draft struct {
	Text   string
	Source string
}

// Generator builds prompts from a chat record and asks the provider chain.
type Generator struct {
	provider     domain.Provider
	prompts      Prompts
	historyLimit int
	maxTokens    int
	temperature  float32
}

type GeneratorConfig struct {
	Provider     domain.Provider
	Prompts      Prompts
	HistoryLimit int
	MaxTokens    int
	Temperature  float32
}

func NewGenerator(cfg GeneratorConfig) *Generator {
	def := DefaultPrompts()
	if cfg.Prompts.Seller == "" {
		cfg.Prompts.Seller = def.Seller
	}
	if cfg.Prompts.Buyer == "" {
		cfg.Prompts.Buyer = def.Buyer
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 10
	}
	return &Generator{
		provider:     cfg.Provider,
		prompts:      cfg.Prompts,
		historyLimit: cfg.HistoryLimit,
		maxTokens:    cfg.MaxTokens,
		temperature:  cfg.Temperature,
	}
}

// IsBuyer reports whether we opened the conversation, which on
// Marketplace means we are asking about someone else's listing.
func IsBuyer(rec domain.ChatRecord) bool {
	return len(rec.History) > 0 && rec.History[0].IsSentByYou
}

// BuildRequest turns the chat into a completion request.
func (g *Generator) BuildRequest(rec domain.ChatRecord) domain.CompletionRequest {
	var sys strings.Builder
	if IsBuyer(rec) {
		sys.WriteString(g.prompts.Buyer)
	} else {
		sys.WriteString(g.prompts.Seller)
	}
	if g.prompts.Extra != "" {
		sys.WriteString("\n" + g.prompts.Extra)
	}
	if p := rec.Product; p != nil {
		if p.Title != "" {
			sys.WriteString("\n" + provider.ProductHintPrefix + p.Title)
		}
		if p.Price != "" {
			sys.WriteString("\nPrice: " + p.Price)
		}
		if p.Description != "" {
			sys.WriteString("\nDescription: " + p.Description)
		}
	}
	if rec.UserName != "" {
		sys.WriteString("\nYou are chatting with " + rec.UserName + ".")
	}

	msgs := []domain.PromptMessage{{Role: domain.RoleSystem, Content: sys.String()}}
	history := rec.History
	if len(history) > g.historyLimit {
		history = history[len(history)-g.historyLimit:]
	}
	for _, m := range history {
		role := domain.RoleUser
		if m.IsSentByYou {
			role = domain.RoleAssistant
		}
		msgs = append(msgs, domain.PromptMessage{Role: role, Content: m.Content})
	}
	return domain.CompletionRequest{Messages: msgs, MaxTokens: g.maxTokens, Temperature: g.temperature}
}

// Reply drafts the next message for rec.
func (g *Generator) Reply(ctx context.Context, rec domain.ChatRecord) (Draft, error) {
	start := time.Now()
	resp, err := g.provider.Complete(ctx, g.BuildRequest(rec))
	if err != nil {
		return Draft{}, fmt.Errorf("generate reply: %w", err)
	}
	metrics.ReplyLatency.ObserveSince(start)
	metrics.RepliesGenerated(resp.Provider).Inc()
	return Draft{Text: resp.Content, Source: resp.Provider}, nil
}
