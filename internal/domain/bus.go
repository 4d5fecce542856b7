package domain

import "time"

type EventKind string

const (
	EventMutation     EventKind = "mutation"
	EventReplyOutcome EventKind = "reply_outcome"
)

// Mutation scopes carried in a mutation event's Detail, comma separated.
const (
	MutationMessages = "messages"
	MutationChats    = "chats"
)

// Event is something the monitor loop may react to.
type Event struct {
	Kind    EventKind `json:"kind"`
	ChatID  string    `json:"chatId,omitempty"`
	Detail  string    `json:"detail,omitempty"`
	Outcome Outcome   `json:"outcome,omitempty"`
	At      time.Time `json:"at"`
}

// EventBus routes events between the browser observer, responder and monitor.
type EventBus interface {
	Publish(ev Event)
	Subscribe() <-chan Event
	Close()
}
