// Package store persists chats, their message history and product data in
// SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"fbmonitor/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements domain.ChatStore.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ domain.ChatStore = (*SQLiteStore)(nil)

func Open(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

// SaveChat upserts the chat row. History is written by AppendMessages.
func (s *SQLiteStore) SaveChat(ctx context.Context, rec domain.ChatRecord) error {
	product := ""
	if rec.Product != nil && !rec.Product.IsEmpty() {
		b, err := json.Marshal(rec.Product)
		if err != nil {
			return fmt.Errorf("encode product: %w", err)
		}
		product = string(b)
	}
	var last any
	if !rec.LastActivity.IsZero() {
		last = rec.LastActivity.UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chats (id, user_name, last_activity, unread, state, product_json, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_name     = CASE WHEN excluded.user_name != '' THEN excluded.user_name ELSE chats.user_name END,
			last_activity = COALESCE(excluded.last_activity, chats.last_activity),
			unread        = excluded.unread,
			state         = excluded.state,
			product_json  = CASE WHEN excluded.product_json != '' THEN excluded.product_json ELSE chats.product_json END,
			updated_at    = excluded.updated_at`,
		rec.ChatID, rec.UserName, last, boolInt(rec.Unread), string(rec.State), product, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save chat %s: %w", rec.ChatID, err)
	}
	return nil
}

// AppendMessages inserts msgs in order. Rows that collide on
// (chat, content, sender) are ignored.
func (s *SQLiteStore) AppendMessages(ctx context.Context, chatID string, msgs []domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO chats (id) VALUES (?)`, chatID); err != nil {
		return fmt.Errorf("ensure chat %s: %w", chatID, err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO messages (chat_id, content, sender, is_sent_by_you, timestamp)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, m := range msgs {
		if _, err := stmt.ExecContext(ctx, chatID, m.Content, m.Sender, boolInt(m.IsSentByYou), m.Timestamp); err != nil {
			return fmt.Errorf("append message to %s: %w", chatID, err)
		}
	}
	return tx.Commit()
}

// ChatSummary is a chat row without its history.
type ChatSummary struct {
	ChatID       string    `json:"chatId"`
	UserName     string    `json:"userName"`
	State        string    `json:"state"`
	Unread       bool      `json:"unread"`
	Messages     int       `json:"messages"`
	LastActivity time.Time `json:"lastActivity,omitzero"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ListChats returns summaries, most recently updated first.
func (s *SQLiteStore) ListChats(ctx context.Context, limit int) ([]ChatSummary, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.user_name, c.state, c.unread, c.last_activity, c.updated_at,
		       (SELECT COUNT(*) FROM messages m WHERE m.chat_id = c.id)
		FROM chats c
		ORDER BY c.updated_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChatSummary
	for rows.Next() {
		var (
			cs     ChatSummary
			unread int
			last   sql.NullTime
			upd    sql.NullTime
		)
		if err := rows.Scan(&cs.ChatID, &cs.UserName, &cs.State, &unread, &last, &upd, &cs.Messages); err != nil {
			return nil, err
		}
		cs.Unread = unread != 0
		cs.LastActivity = last.Time
		cs.UpdatedAt = upd.Time
		out = append(out, cs)
	}
	return out, rows.Err()
}

// LoadChats returns every chat with its full history.
func (s *SQLiteStore) LoadChats(ctx context.Context) ([]domain.ChatRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_name, last_activity, unread, state, product_json
		FROM chats ORDER BY id`)
	if err != nil {
		return nil, err
	}
	var (
		recs  []domain.ChatRecord
		index = map[string]int{}
	)
	for rows.Next() {
		var (
			rec     domain.ChatRecord
			last    sql.NullTime
			unread  int
			state   string
			product string
		)
		if err := rows.Scan(&rec.ChatID, &rec.UserName, &last, &unread, &state, &product); err != nil {
			rows.Close()
			return nil, err
		}
		rec.LastActivity = last.Time
		rec.Unread = unread != 0
		rec.State = domain.ChatState(state)
		if product != "" {
			var p domain.ProductInfo
			if err := json.Unmarshal([]byte(product), &p); err != nil {
				s.logger.Warn("bad product snapshot", "chat", rec.ChatID, "err", err)
			} else {
				rec.Product = &p
			}
		}
		index[rec.ChatID] = len(recs)
		recs = append(recs, rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	mrows, err := s.db.QueryContext(ctx, `
		SELECT chat_id, content, sender, is_sent_by_you, timestamp
		FROM messages ORDER BY chat_id, id`)
	if err != nil {
		return nil, err
	}
	defer mrows.Close()
	for mrows.Next() {
		var (
			chatID string
			m      domain.Message
			mine   int
		)
		if err := mrows.Scan(&chatID, &m.Content, &m.Sender, &mine, &m.Timestamp); err != nil {
			return nil, err
		}
		m.IsSentByYou = mine != 0
		if i, ok := index[chatID]; ok {
			recs[i].History = append(recs[i].History, m)
		}
	}
	return recs, mrows.Err()
}

// LoadChat returns one chat with its history.
func (s *SQLiteStore) LoadChat(ctx context.Context, id string) (*domain.ChatRecord, error) {
	recs, err := s.LoadChats(ctx)
	if err != nil {
		return nil, err
	}
	for i := range recs {
		if recs[i].ChatID == id {
			return &recs[i], nil
		}
	}
	return nil, nil
}

func (s *SQLiteStore) SaveProduct(ctx context.Context, p domain.ProductInfo) error {
	if p.ID == "" {
		return errors.New("product without id")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, title, price, image_url, description, context, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title, price = excluded.price, image_url = excluded.image_url,
			description = excluded.description, context = excluded.context,
			updated_at = excluded.updated_at`,
		p.ID, p.Title, p.Price, p.ImageURL, p.Description, p.Context, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save product %s: %w", p.ID, err)
	}
	return nil
}

// GetProduct returns nil, nil when the id is unknown.
func (s *SQLiteStore) GetProduct(ctx context.Context, id string) (*domain.ProductInfo, error) {
	var p domain.ProductInfo
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, price, image_url, description, context FROM products WHERE id = ?`, id,
	).Scan(&p.ID, &p.Title, &p.Price, &p.ImageURL, &p.Description, &p.Context)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Stats returns row counts for the status command.
func (s *SQLiteStore) Stats(ctx context.Context) (chats, messages, products int, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM chats), (SELECT COUNT(*) FROM messages), (SELECT COUNT(*) FROM products)`,
	).Scan(&chats, &messages, &products)
	return
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
