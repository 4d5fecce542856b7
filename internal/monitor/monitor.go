// Package monitor runs the scan → open → process → respond cycle on a
// timer and on page mutations, never more than one cycle at a time.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"fbmonitor/internal/chat"
	"fbmonitor/internal/domain"
	"fbmonitor/internal/metrics"

	"github.com/google/uuid"
)

// Chats is the chat manager as driven by the loop.
type Chats interface {
	CurrentChatID() string
	ScanForUnreadChats(ctx context.Context) (int, error)
	OpenNextPendingChat(ctx context.Context) (domain.PendingChat, error)
	ProcessCurrentChatMessages(ctx context.Context) ([]domain.Message, error)
	Get(id string) (domain.ChatRecord, bool)
}

type Responder interface {
	Respond(ctx context.Context, mode domain.Mode, chatID string) (domain.Outcome, error)
}

const (
	SourceTimer    = "timer"
	SourceMutation = "mutation"
	SourceManual   = "manual"
)

// Reason says what started a cycle.
type Reason struct {
	Source string // SourceTimer, SourceMutation or SourceManual
	ChatID string // chat the mutation belongs to, if known
	// Scope lists what a mutation touched (domain.MutationMessages,
	// domain.MutationChats). Empty means the open chat.
	Scope string
}

func (r Reason) touchesOpenChat() bool {
	return r.Scope == "" || strings.Contains(r.Scope, domain.MutationMessages)
}

func (r Reason) touchesChatList() bool {
	return strings.Contains(r.Scope, domain.MutationChats)
}

type Config struct {
	Chats     Chats
	Responder Responder // optional when mode is off
	Bus       domain.EventBus
	Mode      domain.Mode
	Logger    *slog.Logger

	Interval    time.Duration // default 30s
	RetryDelay  time.Duration // after a failed cycle, default 60s
	MaxPerCycle int           // pending chats opened per cycle, default 1
}

// Status is a snapshot for the status API.
type Status struct {
	Mode      domain.Mode `json:"mode"`
	Busy      bool        `json:"busy"`
	Cycles    int64       `json:"cycles"`
	LastCycle time.Time   `json:"lastCycle,omitzero"`
	LastError string      `json:"lastError,omitempty"`
	NextRun   time.Time   `json:"nextRun,omitzero"`
}

type Monitor struct {
	chats       Chats
	responder   Responder
	bus         domain.EventBus
	logger      *slog.Logger
	interval    time.Duration
	retryDelay  time.Duration
	maxPerCycle int

	busy   atomic.Bool
	mode   atomic.Value // domain.Mode
	cycles atomic.Int64

	// requests carries manual cycles into Run so they stop with it.
	requests chan Reason

	mu        sync.Mutex
	lastCycle time.Time
	lastErr   error
	nextRun   time.Time
	// replied maps a chat to the inbound message last handed to the
	// responder, so later passes over the same message do not reply again.
	replied map[string]string
}

func New(cfg Config) *Monitor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 60 * time.Second
	}
	if cfg.MaxPerCycle <= 0 {
		cfg.MaxPerCycle = 1
	}
	if cfg.Mode == "" {
		cfg.Mode = domain.ModeOff
	}
	m := &Monitor{
		chats:       cfg.Chats,
		responder:   cfg.Responder,
		bus:         cfg.Bus,
		logger:      cfg.Logger,
		interval:    cfg.Interval,
		retryDelay:  cfg.RetryDelay,
		maxPerCycle: cfg.MaxPerCycle,
		requests:    make(chan Reason, 1),
		replied:     make(map[string]string),
	}
	m.mode.Store(cfg.Mode)
	return m
}

func (m *Monitor) Mode() domain.Mode { return m.mode.Load().(domain.Mode) }

func (m *Monitor) SetMode(mode domain.Mode) {
	m.mode.Store(mode)
	m.logger.Info("reply mode changed", "mode", mode)
}

func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Status{
		Mode:      m.Mode(),
		Busy:      m.busy.Load(),
		Cycles:    m.cycles.Load(),
		LastCycle: m.lastCycle,
		NextRun:   m.nextRun,
	}
	if m.lastErr != nil {
		st.LastError = m.lastErr.Error()
	}
	return st
}

// Request queues a cycle for Run. It reports false when a cycle is
// already running or queued.
func (m *Monitor) Request(r Reason) bool {
	if m.busy.Load() {
		return false
	}
	select {
	case m.requests <- r:
		return true
	default:
		return false
	}
}

// Trigger runs one cycle unless one is already running, in which case it
// returns ran=false immediately.
func (m *Monitor) Trigger(ctx context.Context, r Reason) (ran bool, err error) {
	if !m.busy.CompareAndSwap(false, true) {
		metrics.CyclesSkipped.Inc()
		m.logger.Debug("cycle already running, skipping trigger", "source", r.Source)
		return false, nil
	}
	defer m.busy.Store(false)

	log := m.logger.With("cycle", uuid.NewString()[:8], "source", r.Source)
	start := time.Now()
	err = m.cycle(ctx, r, log)

	metrics.CyclesRun.Inc()
	m.cycles.Add(1)
	m.mu.Lock()
	m.lastCycle = start
	m.lastErr = err
	m.mu.Unlock()

	if err != nil {
		metrics.CycleErrors.Inc()
		log.Warn("cycle failed", "err", err, "took", time.Since(start))
	} else {
		log.Debug("cycle done", "took", time.Since(start))
	}
	return true, err
}

func (m *Monitor) cycle(ctx context.Context, r Reason, log *slog.Logger) error {
	if r.Source == SourceMutation {
		current := m.chats.CurrentChatID()
		if current != "" && r.touchesOpenChat() && (r.ChatID == "" || r.ChatID == current) {
			if err := m.handleOpenChat(ctx, current, log); err != nil {
				return err
			}
			if !r.touchesChatList() {
				return nil
			}
		}
	}

	n, err := m.chats.ScanForUnreadChats(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	for range m.maxPerCycle {
		next, err := m.chats.OpenNextPendingChat(ctx)
		if errors.Is(err, chat.ErrNoPending) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := m.handleOpenChat(ctx, next.ChatID, log); err != nil {
			return err
		}
	}
	return nil
}

// handleOpenChat reconciles the open chat and replies when the other side
// spoke last and that message has not been handled yet.
func (m *Monitor) handleOpenChat(ctx context.Context, chatID string, log *slog.Logger) error {
	added, err := m.chats.ProcessCurrentChatMessages(ctx)
	if err != nil {
		return err
	}
	if len(added) > 0 {
		log.Info("new messages", "chat", chatID, "count", len(added))
	}

	mode := m.Mode()
	if mode == domain.ModeOff || m.responder == nil {
		return nil
	}
	rec, ok := m.chats.Get(chatID)
	if !ok || !rec.NeedsReply() {
		return nil
	}
	last, _ := rec.LastMessage()
	key := last.Sender + "\x00" + last.Content
	m.mu.Lock()
	handled := m.replied[chatID] == key
	m.mu.Unlock()
	if handled {
		log.Debug("latest message already handled", "chat", chatID)
		return nil
	}

	outcome, err := m.responder.Respond(ctx, mode, chatID)
	if err != nil {
		// Already reported by the responder; the next cycle retries.
		log.Debug("respond failed", "chat", chatID, "err", err)
		return nil
	}
	m.mu.Lock()
	m.replied[chatID] = key
	m.mu.Unlock()
	log.Info("reply handled", "chat", chatID, "outcome", outcome)
	return nil
}

// Run schedules cycles until ctx ends: the next timer cycle fires Interval
// after a successful one and RetryDelay after a failed one. Mutation
// events and Request start extra cycles, which are skipped while one is
// running. Run returns once every cycle it started has finished.
func (m *Monitor) Run(ctx context.Context) error {
	var events <-chan domain.Event
	if m.bus != nil {
		events = m.bus.Subscribe()
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	timer := time.NewTimer(0)
	defer timer.Stop()
	results := make(chan error, 1)
	timerCycle := func() {
		defer wg.Done()
		_, err := m.Trigger(ctx, Reason{Source: SourceTimer})
		results <- err
	}

	m.logger.Info("monitor started", "mode", m.Mode(), "interval", m.interval)
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopping")
			return nil
		case <-timer.C:
			wg.Add(1)
			go timerCycle()
		case err := <-results:
			next := m.interval
			if err != nil {
				next = m.retryDelay
			}
			m.mu.Lock()
			m.nextRun = time.Now().Add(next)
			m.mu.Unlock()
			timer.Reset(next)
		case r := <-m.requests:
			wg.Add(1)
			go func() {
				defer wg.Done()
				m.Trigger(ctx, r)
			}()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Kind != domain.EventMutation {
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				m.Trigger(ctx, Reason{Source: SourceMutation, ChatID: ev.ChatID, Scope: ev.Detail})
			}()
		}
	}
}
