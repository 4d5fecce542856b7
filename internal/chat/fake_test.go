package chat

import (
	"context"
	"log/slog"
	"os"

	"fbmonitor/internal/domain"
	"fbmonitor/internal/locator"
)

// fakePage is an in-memory stand-in for the browser tab.
type fakePage struct {
	selectors   map[string]int
	chatRows    []domain.ChatRow
	messageRows []domain.MessageRow
	url         string
	html        string
	header      string
	texts       map[string]string // per-selector text, header otherwise
	attrs       map[string]string // "selector@name" → value

	navigated []string
	clicked   []int
	scrolls   int
	maxScroll int
}

func newFakePage() *fakePage {
	table := locator.DefaultTable()
	return &fakePage{selectors: map[string]int{
		table.Get(locator.ChatRow).Selectors[0]:          1,
		table.Get(locator.MessageContainer).Selectors[0]: 1,
		table.Get(locator.MessageRow).Selectors[0]:       1,
		table.Get(locator.ChatHeader).Selectors[0]:       1,
	}}
}

func (p *fakePage) Query(ctx context.Context, sel string) (bool, error) {
	return p.selectors[sel] > 0, nil
}

func (p *fakePage) Count(ctx context.Context, sel string) (int, error) {
	return p.selectors[sel], nil
}

func (p *fakePage) ChatRows(ctx context.Context, sel string) ([]domain.ChatRow, error) {
	return p.chatRows, nil
}

func (p *fakePage) MessageRows(ctx context.Context, sel string) ([]domain.MessageRow, error) {
	return p.messageRows, nil
}

func (p *fakePage) ClickRow(ctx context.Context, sel string, index int) error {
	p.clicked = append(p.clicked, index)
	return nil
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.navigated = append(p.navigated, url)
	p.url = url
	return nil
}

func (p *fakePage) CurrentURL(ctx context.Context) (string, error) { return p.url, nil }

func (p *fakePage) ScrollUp(ctx context.Context, sel string) (bool, error) {
	if p.scrolls >= p.maxScroll {
		return false, nil
	}
	p.scrolls++
	return true, nil
}

func (p *fakePage) HTML(ctx context.Context) (string, error) { return p.html, nil }

func (p *fakePage) Text(ctx context.Context, sel string) (string, error) {
	if text, ok := p.texts[sel]; ok {
		return text, nil
	}
	return p.header, nil
}

func (p *fakePage) Attr(ctx context.Context, sel, name string) (string, error) {
	return p.attrs[sel+"@"+name], nil
}

// memStore records what the manager persists.
type memStore struct {
	chats    map[string]domain.ChatRecord
	messages map[string][]domain.Message
}

func newMemStore() *memStore {
	return &memStore{chats: map[string]domain.ChatRecord{}, messages: map[string][]domain.Message{}}
}

func (s *memStore) SaveChat(ctx context.Context, rec domain.ChatRecord) error {
	s.chats[rec.ChatID] = rec
	return nil
}

func (s *memStore) AppendMessages(ctx context.Context, chatID string, msgs []domain.Message) error {
	s.messages[chatID] = append(s.messages[chatID], msgs...)
	return nil
}

func (s *memStore) LoadChats(ctx context.Context) ([]domain.ChatRecord, error) {
	out := make([]domain.ChatRecord, 0, len(s.chats))
	for _, rec := range s.chats {
		rec.History = append([]domain.Message(nil), s.messages[rec.ChatID]...)
		out = append(out, rec)
	}
	return out, nil
}

func (s *memStore) SaveProduct(ctx context.Context, p domain.ProductInfo) error { return nil }

func (s *memStore) GetProduct(ctx context.Context, id string) (*domain.ProductInfo, error) {
	return nil, nil
}

type staticProducts struct{ info domain.ProductInfo }

func (s staticProducts) Extract(html, header string) (domain.ProductInfo, bool) {
	return s.info, !s.info.IsEmpty()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}
