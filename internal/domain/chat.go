package domain

import "time"

// ChatState tracks where a conversation is in the scan/open/process cycle.
type ChatState string

const (
	StateUnscanned  ChatState = "unscanned"
	StatePending    ChatState = "pending"
	StateProcessing ChatState = "processing"
	StateIdle       ChatState = "idle"
)

// Message is one row of a conversation. Two messages are the same message
// when Content and Sender match; the platform exposes no stable id.
type Message struct {
	Content     string `json:"content"`
	Sender      string `json:"sender"`
	IsSentByYou bool   `json:"isSentByYou"`
	Timestamp   string `json:"timestamp"`
}

// SameAs reports whether m and other collide under the dedup rule.
func (m Message) SameAs(other Message) bool {
	return m.Content == other.Content && m.Sender == other.Sender
}

// ProductInfo is the listing a Marketplace conversation is about.
type ProductInfo struct {
	ID          string `json:"id,omitempty"`
	Title       string `json:"title"`
	Price       string `json:"price"`
	ImageURL    string `json:"imageUrl"`
	Description string `json:"description,omitempty"`
	Context     string `json:"context,omitempty"`
}

// IsEmpty reports whether no field carries data.
func (p ProductInfo) IsEmpty() bool {
	return p.Title == "" && p.Price == "" && p.ImageURL == "" && p.Description == "" && p.Context == ""
}

// Merge overwrites fields of p with the non-empty fields of better.
func (p ProductInfo) Merge(better ProductInfo) ProductInfo {
	if better.ID != "" {
		p.ID = better.ID
	}
	if better.Title != "" {
		p.Title = better.Title
	}
	if better.Price != "" {
		p.Price = better.Price
	}
	if better.ImageURL != "" {
		p.ImageURL = better.ImageURL
	}
	if better.Description != "" {
		p.Description = better.Description
	}
	if better.Context != "" {
		p.Context = better.Context
	}
	return p
}

// ChatRecord is everything known about one conversation.
type ChatRecord struct {
	ChatID       string       `json:"chatId"`
	UserName     string       `json:"userName"`
	LastActivity time.Time    `json:"lastActivity"`
	Unread       bool         `json:"unreadMessages"`
	State        ChatState    `json:"state"`
	History      []Message    `json:"conversationHistory"`
	Product      *ProductInfo `json:"productInfo,omitempty"`
}

// Clone returns a deep copy safe to hand to other goroutines.
func (c *ChatRecord) Clone() ChatRecord {
	out := *c
	out.History = append([]Message(nil), c.History...)
	if c.Product != nil {
		p := *c.Product
		out.Product = &p
	}
	return out
}

// LastMessage returns the newest message, if any.
func (c *ChatRecord) LastMessage() (Message, bool) {
	if len(c.History) == 0 {
		return Message{}, false
	}
	return c.History[len(c.History)-1], true
}

// NeedsReply reports whether the newest message came from the other party.
func (c *ChatRecord) NeedsReply() bool {
	last, ok := c.LastMessage()
	return ok && !last.IsSentByYou
}

// PendingChat is a queue entry produced by a scan.
type PendingChat struct {
	ChatID   string `json:"chatId"`
	UserName string `json:"userName"`
	RowIndex int    `json:"rowIndex"`
	Href     string `json:"href,omitempty"`
	Minutes  int    `json:"minutes"`
}

// ChatRow is a snapshot of one conversation-list entry.
type ChatRow struct {
	Index        int               `json:"index"`
	Text         string            `json:"text"`
	Lines        []string          `json:"lines"`
	Href         string            `json:"href"`
	AriaLabel    string            `json:"ariaLabel"`
	Classes      string            `json:"classes"`
	FontWeight   int               `json:"fontWeight"`
	HasUnreadDot bool              `json:"hasUnreadDot"`
	Data         map[string]string `json:"data"`
}

// MessageRow is a snapshot of one rendered message bubble.
type MessageRow struct {
	Index       int    `json:"index"`
	Text        string `json:"text"`
	Classes     string `json:"classes"`
	AriaLabel   string `json:"ariaLabel"`
	Author      string `json:"author"`
	Timestamp   string `json:"timestamp"`
	AlignRight  bool   `json:"alignRight"`
	OutgoingTag bool   `json:"outgoingTag"`
}
