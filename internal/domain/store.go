package domain

import "context"

// ChatStore persists conversations, their messages and product data.
type ChatStore interface {
	SaveChat(ctx context.Context, rec ChatRecord) error
	AppendMessages(ctx context.Context, chatID string, msgs []Message) error
	LoadChats(ctx context.Context) ([]ChatRecord, error)
	SaveProduct(ctx context.Context, p ProductInfo) error
	GetProduct(ctx context.Context, id string) (*ProductInfo, error)
}
