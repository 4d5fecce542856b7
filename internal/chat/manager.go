// Package chat keeps the per-conversation history that the monitor builds
// from the Messenger DOM.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"fbmonitor/internal/domain"
	"fbmonitor/internal/locator"
	"fbmonitor/internal/metrics"
)

var (
	ErrNoPending     = errors.New("no pending chats")
	ErrNoCurrentChat = errors.New("no chat is open")
)

// Page is the slice of the browser tab the chat manager drives.
type Page interface {
	locator.Querier
	ChatRows(ctx context.Context, selector string) ([]domain.ChatRow, error)
	MessageRows(ctx context.Context, selector string) ([]domain.MessageRow, error)
	ClickRow(ctx context.Context, selector string, index int) error
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	ScrollUp(ctx context.Context, selector string) (bool, error)
	HTML(ctx context.Context) (string, error)
	Text(ctx context.Context, selector string) (string, error)
	Attr(ctx context.Context, selector, name string) (string, error)
}

// ProductExtractor pulls listing data out of the open conversation page.
type ProductExtractor interface {
	Extract(html, header string) (domain.ProductInfo, bool)
}

type Config struct {
	Page     Page
	Table    locator.Table
	Store    domain.ChatStore // optional
	Products ProductExtractor // optional
	Logger   *slog.Logger

	BaseURL              string // used to resolve relative row links
	SortByRecency        bool
	FilterSystemMessages bool
	HistoryScrolls       int // scroll-up attempts before reading history
	ScrollPause          time.Duration
	OpenTimeout          time.Duration
}

// Manager owns every ChatRecord seen since start and the pending queue.
type Manager struct {
	page     Page
	finder   *locator.Finder
	table    locator.Table
	store    domain.ChatStore
	products ProductExtractor
	logger   *slog.Logger

	baseURL       string
	sortByRecency bool
	filterSystem  bool
	scrolls       int
	scrollPause   time.Duration
	openTimeout   time.Duration

	mu          sync.Mutex
	chats       map[string]*domain.ChatRecord
	pending     []domain.PendingChat
	rowSelector string
	current     string
}

func NewManager(cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Table == nil {
		cfg.Table = locator.DefaultTable()
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 10 * time.Second
	}
	if cfg.ScrollPause <= 0 {
		cfg.ScrollPause = 800 * time.Millisecond
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.messenger.com"
	}
	return &Manager{
		page:          cfg.Page,
		finder:        locator.NewFinder(cfg.Page, cfg.Logger),
		table:         cfg.Table,
		store:         cfg.Store,
		products:      cfg.Products,
		logger:        cfg.Logger,
		baseURL:       cfg.BaseURL,
		sortByRecency: cfg.SortByRecency,
		filterSystem:  cfg.FilterSystemMessages,
		scrolls:       cfg.HistoryScrolls,
		scrollPause:   cfg.ScrollPause,
		openTimeout:   cfg.OpenTimeout,
		chats:         make(map[string]*domain.ChatRecord),
	}
}

// Restore loads persisted chats so dedup survives restarts.
func (m *Manager) Restore(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	recs, err := m.store.LoadChats(ctx)
	if err != nil {
		return fmt.Errorf("load chats: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range recs {
		rec := recs[i]
		rec.State = domain.StateIdle
		m.chats[rec.ChatID] = &rec
	}
	m.logger.Info("restored chats", "count", len(recs))
	return nil
}

// ScanForUnreadChats reads the chat list, records every conversation and
// rebuilds the pending queue from the unread ones.
func (m *Manager) ScanForUnreadChats(ctx context.Context) (int, error) {
	match, ok := m.finder.FindAll(ctx, m.table.Get(locator.ChatRow))
	if !ok {
		m.logger.Warn("chat list rows not found")
		return 0, nil
	}
	rows, err := m.page.ChatRows(ctx, match.Selector)
	if err != nil {
		return 0, fmt.Errorf("read chat rows: %w", err)
	}
	metrics.ChatsScanned.Add(int64(len(rows)))

	var created []domain.ChatRecord
	now := time.Now()

	m.mu.Lock()
	m.rowSelector = match.Selector
	pending := make([]domain.PendingChat, 0)
	for _, row := range rows {
		info := parseRow(row)
		if info.UserName == "" {
			continue
		}
		id := ChatID(row, info.UserName, info.Product)
		rec, exists := m.chats[id]
		if !exists {
			rec = &domain.ChatRecord{ChatID: id, State: domain.StateUnscanned, LastActivity: now}
			m.chats[id] = rec
		}
		rec.UserName = info.UserName
		if info.Product != "" && rec.Product == nil {
			rec.Product = &domain.ProductInfo{Title: info.Product}
		}

		unread := locator.IsUnreadChat(row)
		rec.Unread = unread
		if !exists {
			created = append(created, rec.Clone())
		}
		if !unread || id == m.current {
			continue
		}
		rec.State = domain.StatePending

		minutes := -1
		if info.TimeLabel != "" {
			minutes = ConvertTimeToMinutes(info.TimeLabel)
		}
		pending = append(pending, domain.PendingChat{
			ChatID:   id,
			UserName: info.UserName,
			RowIndex: row.Index,
			Href:     m.absoluteURL(row.Href),
			Minutes:  minutes,
		})
	}
	if m.sortByRecency {
		sortByRecency(pending)
	}
	m.pending = pending
	m.mu.Unlock()

	metrics.UnreadFound.Add(int64(len(pending)))
	m.persist(ctx, created...)
	m.logger.Info("scan complete", "rows", len(rows), "unread", len(pending))
	return len(pending), nil
}

// sortByRecency orders newest first; rows without a time label go last.
func sortByRecency(p []domain.PendingChat) {
	sort.SliceStable(p, func(i, j int) bool {
		a, b := p[i].Minutes, p[j].Minutes
		if a < 0 {
			return false
		}
		if b < 0 {
			return true
		}
		return a < b
	})
}

// OpenNextPendingChat pops the queue and opens that conversation.
func (m *Manager) OpenNextPendingChat(ctx context.Context) (domain.PendingChat, error) {
	m.mu.Lock()
	if len(m.pending) == 0 {
		m.mu.Unlock()
		return domain.PendingChat{}, ErrNoPending
	}
	next := m.pending[0]
	m.pending = m.pending[1:]
	rowSelector := m.rowSelector
	m.mu.Unlock()

	var err error
	if next.Href != "" {
		err = m.page.Navigate(ctx, next.Href)
	} else {
		err = m.page.ClickRow(ctx, rowSelector, next.RowIndex)
	}
	if err != nil {
		return next, fmt.Errorf("open chat %s: %w", next.ChatID, err)
	}

	if _, err := m.finder.WaitFor(ctx, m.table.Get(locator.MessageContainer), m.openTimeout); err != nil {
		return next, fmt.Errorf("open chat %s: %w", next.ChatID, err)
	}

	id := next.ChatID
	if u, err := m.page.CurrentURL(ctx); err == nil {
		if urlID, ok := IDFromURL(u); ok && urlID != id && IsHashID(id) {
			if rec, moved := m.rekey(id, urlID); moved {
				if m.store != nil && len(rec.History) > 0 {
					if err := m.store.AppendMessages(ctx, urlID, rec.History); err != nil {
						m.logger.Error("persist rekeyed messages failed", "chat", urlID, "err", err)
					}
				}
				m.persist(ctx, rec)
			}
			id = urlID
			next.ChatID = urlID
		}
	}

	m.mu.Lock()
	m.current = id
	if rec, ok := m.chats[id]; ok {
		rec.State = domain.StateProcessing
		rec.Unread = false
	}
	m.mu.Unlock()

	m.logger.Info("opened chat", "chat", id, "user", next.UserName)
	return next, nil
}

// rekey moves a hash-derived record under the platform thread id, merging
// into a record already tracked there. It returns the resulting record.
// The old id is only dropped from memory; a stored row under it stays.
func (m *Manager) rekey(oldID, newID string) (domain.ChatRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.chats[oldID]
	if !ok {
		return domain.ChatRecord{}, false
	}
	delete(m.chats, oldID)
	if existing, ok := m.chats[newID]; ok {
		for _, msg := range rec.History {
			addLocked(existing, msg)
		}
		if rec.Product != nil && existing.Product == nil {
			existing.Product = rec.Product
		}
		if existing.UserName == "" {
			existing.UserName = rec.UserName
		}
		if rec.LastActivity.After(existing.LastActivity) {
			existing.LastActivity = rec.LastActivity
		}
		m.logger.Debug("merged chat into thread id", "from", oldID, "to", newID)
		return existing.Clone(), true
	}
	rec.ChatID = newID
	m.chats[newID] = rec
	m.logger.Debug("rekeyed chat", "from", oldID, "to", newID)
	return rec.Clone(), true
}

// ExtractChatHistory reads the rendered bubbles of the open chat.
func (m *Manager) ExtractChatHistory(ctx context.Context) ([]domain.Message, error) {
	m.mu.Lock()
	id := m.current
	var other string
	if rec, ok := m.chats[id]; ok {
		other = rec.UserName
	}
	m.mu.Unlock()
	if id == "" {
		return nil, ErrNoCurrentChat
	}

	container, ok := m.finder.Find(ctx, m.table.Get(locator.MessageContainer))
	if !ok {
		m.logger.Warn("message container not found", "chat", id)
		return nil, nil
	}
	m.loadOlder(ctx, container.Selector)

	rowsMatch, ok := m.finder.FindAll(ctx, m.table.Get(locator.MessageRow))
	if !ok {
		m.logger.Warn("no message rows found", "chat", id)
		return nil, nil
	}
	rows, err := m.page.MessageRows(ctx, rowsMatch.Selector)
	if err != nil {
		return nil, fmt.Errorf("read message rows: %w", err)
	}

	msgs := make([]domain.Message, 0, len(rows))
	for _, row := range rows {
		msg, ok := classifyRow(row, other)
		if !ok {
			continue
		}
		if m.filterSystem && IsSystemMessage(msg.Content) {
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// loadOlder scrolls the history up so lazily loaded messages render.
func (m *Manager) loadOlder(ctx context.Context, selector string) {
	for i := 0; i < m.scrolls; i++ {
		moved, err := m.page.ScrollUp(ctx, selector)
		if err != nil {
			m.logger.Debug("scroll failed", "err", err)
			return
		}
		if !moved {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(m.scrollPause):
		}
	}
}

// ProcessCurrentChatMessages merges the open chat's bubbles into its
// history and returns the messages that were new.
func (m *Manager) ProcessCurrentChatMessages(ctx context.Context) ([]domain.Message, error) {
	msgs, err := m.ExtractChatHistory(ctx)
	if err != nil {
		return nil, err
	}

	product, hasProduct := m.extractProduct(ctx)

	m.mu.Lock()
	rec, ok := m.chats[m.current]
	if !ok {
		rec = &domain.ChatRecord{ChatID: m.current, LastActivity: time.Now()}
		m.chats[m.current] = rec
	}
	var added []domain.Message
	for _, msg := range msgs {
		if addLocked(rec, msg) {
			added = append(added, msg)
		}
	}
	if len(added) > 0 {
		rec.LastActivity = time.Now()
	}
	if hasProduct {
		base := domain.ProductInfo{}
		if rec.Product != nil {
			base = *rec.Product
		}
		merged := base.Merge(product)
		rec.Product = &merged
	}
	rec.State = domain.StateIdle
	snapshot := rec.Clone()
	m.mu.Unlock()

	metrics.MessagesStored.Add(int64(len(added)))
	metrics.DuplicatesDropped.Add(int64(len(msgs) - len(added)))

	if m.store != nil && len(added) > 0 {
		if err := m.store.AppendMessages(ctx, snapshot.ChatID, added); err != nil {
			m.logger.Error("persist messages failed", "chat", snapshot.ChatID, "err", err)
		}
	}
	m.persist(ctx, snapshot)

	m.logger.Info("processed chat", "chat", snapshot.ChatID, "seen", len(msgs), "new", len(added))
	return added, nil
}

// extractProduct asks the extractor first; the product regions of the
// selector table fill whatever it left empty.
func (m *Manager) extractProduct(ctx context.Context) (domain.ProductInfo, bool) {
	var info domain.ProductInfo
	if m.products != nil {
		html, err := m.page.HTML(ctx)
		if err != nil {
			m.logger.Debug("read page html failed", "err", err)
		}
		var header string
		if hm, ok := m.finder.Find(ctx, m.table.Get(locator.ChatHeader)); ok {
			header, _ = m.page.Text(ctx, hm.Selector)
		}
		info, _ = m.products.Extract(html, header)
	}
	info = m.productFromRegions(ctx).Merge(info)
	return info, !info.IsEmpty()
}

func (m *Manager) productFromRegions(ctx context.Context) domain.ProductInfo {
	var p domain.ProductInfo
	if match, ok := m.finder.Find(ctx, m.table.Get(locator.ProductTitle)); ok {
		p.Title, _ = m.page.Text(ctx, match.Selector)
	}
	if match, ok := m.finder.Find(ctx, m.table.Get(locator.ProductPrice)); ok {
		p.Price, _ = m.page.Text(ctx, match.Selector)
	}
	if match, ok := m.finder.Find(ctx, m.table.Get(locator.ProductImage)); ok {
		p.ImageURL, _ = m.page.Attr(ctx, match.Selector, "src")
	}
	p.Title = strings.TrimSpace(p.Title)
	p.Price = strings.TrimSpace(p.Price)
	return p
}

// AddMessage appends msg to the chat's history unless a message with the
// same content and sender is already there.
func (m *Manager) AddMessage(chatID string, msg domain.Message) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.chats[chatID]
	if !ok {
		rec = &domain.ChatRecord{ChatID: chatID, State: domain.StateUnscanned, LastActivity: time.Now()}
		m.chats[chatID] = rec
	}
	return addLocked(rec, msg)
}

func addLocked(rec *domain.ChatRecord, msg domain.Message) bool {
	for _, existing := range rec.History {
		if existing.SameAs(msg) {
			return false
		}
	}
	rec.History = append(rec.History, msg)
	return true
}

func (m *Manager) persist(ctx context.Context, recs ...domain.ChatRecord) {
	if m.store == nil {
		return
	}
	for _, rec := range recs {
		if err := m.store.SaveChat(ctx, rec); err != nil {
			m.logger.Error("persist chat failed", "chat", rec.ChatID, "err", err)
		}
	}
}

func (m *Manager) absoluteURL(href string) string {
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if u.IsAbs() {
		return href
	}
	base, err := url.Parse(m.baseURL)
	if err != nil {
		return href
	}
	return base.ResolveReference(u).String()
}

// CurrentChatID returns the id of the open chat, or "".
func (m *Manager) CurrentChatID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Get returns a copy of one chat.
func (m *Manager) Get(id string) (domain.ChatRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.chats[id]
	if !ok {
		return domain.ChatRecord{}, false
	}
	return rec.Clone(), true
}

// Snapshot returns copies of every chat, most recently active first.
func (m *Manager) Snapshot() []domain.ChatRecord {
	m.mu.Lock()
	out := make([]domain.ChatRecord, 0, len(m.chats))
	for _, rec := range m.chats {
		out = append(out, rec.Clone())
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastActivity.Equal(out[j].LastActivity) {
			return out[i].ChatID < out[j].ChatID
		}
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out
}

// Pending returns a copy of the pending queue.
func (m *Manager) Pending() []domain.PendingChat {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.PendingChat(nil), m.pending...)
}
