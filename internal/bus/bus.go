package bus

import (
	"log/slog"
	"sync"
	"time"

	"fbmonitor/internal/domain"
)

const publishTimeout = 5 * time.Second

// InMemoryBus carries domain events from the page observer and the
// responder to the monitor loop. It keeps a bounded history for the
// status API.
type InMemoryBus struct {
	events     chan domain.Event
	mu         sync.RWMutex
	closed     bool
	logger     *slog.Logger
	history    []domain.Event
	maxHistory int

	watchers map[int]chan domain.Event
	nextID   int
}

// New creates a bus with the given buffer size.
func New(bufferSize int, logger *slog.Logger) *InMemoryBus {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &InMemoryBus{
		events:     make(chan domain.Event, bufferSize),
		logger:     logger,
		maxHistory: 200,
		watchers:   make(map[int]chan domain.Event),
	}
}

// Publish enqueues ev. A mutation that finds the buffer full is dropped,
// since a queued mutation already wakes the monitor. Other events wait up
// to publishTimeout.
func (b *InMemoryBus) Publish(ev domain.Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.logger.Warn("attempted to publish to closed bus", "kind", ev.Kind)
		return
	}
	if len(b.history) >= b.maxHistory {
		b.history = b.history[1:]
	}
	b.history = append(b.history, ev)
	for _, w := range b.watchers {
		select {
		case w <- ev:
		default:
		}
	}
	b.mu.Unlock()

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	select {
	case b.events <- ev:
		return
	default:
	}
	if ev.Kind == domain.EventMutation {
		b.logger.Debug("bus full, coalescing mutation", "chat", ev.ChatID)
		return
	}

	b.logger.Warn("event bus full, waiting...", "kind", ev.Kind, "chat", ev.ChatID)
	timer := time.NewTimer(publishTimeout)
	defer timer.Stop()
	select {
	case b.events <- ev:
	case <-timer.C:
		b.logger.Error("event dropped: bus full", "kind", ev.Kind, "chat", ev.ChatID)
	}
}

func (b *InMemoryBus) Subscribe() <-chan domain.Event {
	return b.events
}

// Watch registers a best-effort copy of every published event, for live
// viewers. Slow watchers miss events rather than block publishers. The
// returned func unregisters and closes the channel.
func (b *InMemoryBus) Watch(buffer int) (<-chan domain.Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan domain.Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.watchers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.watchers[id]; ok {
				delete(b.watchers, id)
				close(ch)
			}
		})
	}
}

// Replay returns recorded events of kind since the given time; an empty
// kind matches all.
func (b *InMemoryBus) Replay(kind domain.EventKind, since time.Time) []domain.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []domain.Event
	for _, ev := range b.history {
		if ev.At.Before(since) {
			continue
		}
		if kind == "" || ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.events)
		for id, w := range b.watchers {
			close(w)
			delete(b.watchers, id)
		}
	}
}
