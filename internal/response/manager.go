// Package response drafts replies and delivers them to the Messenger
// composer in one of three modes: auto, manual and generate.
package response

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"fbmonitor/internal/domain"
	"fbmonitor/internal/locator"
	"fbmonitor/internal/metrics"
)

// sendChecks is how many times the composer is read before a send method
// counts as failed.
const sendChecks = 3

var (
	ErrUnknownChat = errors.New("unknown chat")
	ErrNoInput     = errors.New("message input not found")
	ErrSendFailed  = errors.New("send failed")
	ErrEmptyReply  = errors.New("empty reply")
)

// Page is the slice of the browser tab the responder writes to.
type Page interface {
	locator.Querier
	InsertText(ctx context.Context, selector, text string) error
	InputText(ctx context.Context, selector string) (string, error)
	ClearInput(ctx context.Context, selector string) error
	ToggleTrailingSpace(ctx context.Context, selector string) error
	PressEnter(ctx context.Context, selector string) error
	Click(ctx context.Context, selector string) error
	ClickSendIcon(ctx context.Context, inputSelector string) (bool, error)
	Highlight(ctx context.Context, selector string, on bool) error
	ShowBanner(ctx context.Context, text string) error
	RemoveBanner(ctx context.Context) error
	ArmManualWatch(ctx context.Context, inputSelector, sendSelector string) error
	ManualState(ctx context.Context) (domain.ManualState, error)
}

// Chats is the chat manager as seen by the responder.
type Chats interface {
	Get(id string) (domain.ChatRecord, bool)
	ProcessCurrentChatMessages(ctx context.Context) ([]domain.Message, error)
}

type Config struct {
	Page      Page
	Chats     Chats
	Generator *Generator
	Table     locator.Table
	Notifier  domain.Notifier
	Bus       domain.EventBus
	Logger    *slog.Logger

	Typing            TypingConfig
	ManualTimeout     time.Duration // default 60s
	ManualPoll        time.Duration // default 250ms
	IndicatorInterval time.Duration // default 2s; negative disables
	SettleDelay       time.Duration // wait after sending before confirming, default 1s
	SendPoll          time.Duration // between composer checks after a send, default 150ms
}

type Manager struct {
	cfg    Config
	finder *locator.Finder
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewManager(cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Table == nil {
		cfg.Table = locator.DefaultTable()
	}
	if cfg.ManualTimeout <= 0 {
		cfg.ManualTimeout = 60 * time.Second
	}
	if cfg.ManualPoll <= 0 {
		cfg.ManualPoll = 250 * time.Millisecond
	}
	if cfg.IndicatorInterval == 0 {
		cfg.IndicatorInterval = 2 * time.Second
	}
	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = time.Second
	}
	if cfg.SendPoll <= 0 {
		cfg.SendPoll = 150 * time.Millisecond
	}
	return &Manager{
		cfg:    cfg,
		finder: locator.NewFinder(cfg.Page, cfg.Logger),
		logger: cfg.Logger,
		sleep:  sleepCtx,
	}
}

// Respond drafts a reply for chatID and delivers it according to mode.
// Failures are toasted and returned; they never stop the caller's loop.
func (m *Manager) Respond(ctx context.Context, mode domain.Mode, chatID string) (domain.Outcome, error) {
	outcome, err := m.respond(ctx, mode, chatID)
	if err != nil {
		m.logger.Warn("reply failed", "chat", chatID, "mode", mode, "err", err)
		m.toast(ctx, domain.ToastError, "Reply failed: "+err.Error())
		outcome = domain.OutcomeFailed
	}
	metrics.ReplyOutcomes(string(outcome)).Inc()
	if m.cfg.Bus != nil {
		m.cfg.Bus.Publish(domain.Event{
			Kind:    domain.EventReplyOutcome,
			ChatID:  chatID,
			Outcome: outcome,
			Detail:  string(mode),
			At:      time.Now(),
		})
	}
	return outcome, err
}

func (m *Manager) respond(ctx context.Context, mode domain.Mode, chatID string) (domain.Outcome, error) {
	if mode == domain.ModeOff {
		return domain.OutcomeDiscarded, nil
	}
	rec, ok := m.cfg.Chats.Get(chatID)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownChat, chatID)
	}
	input, ok := m.finder.Find(ctx, m.cfg.Table.Get(locator.InputBox))
	if !ok {
		return "", ErrNoInput
	}

	draft, err := m.draft(ctx, rec, input.Selector)
	if err != nil {
		return "", err
	}
	log := m.logger.With("chat", chatID, "mode", mode, "source", draft.Source)

	switch mode {
	case domain.ModeAuto:
		if err := m.sleep(ctx, CalculateTypingTime(len([]rune(draft.Text)), m.cfg.Typing)); err != nil {
			return "", err
		}
		if err := m.insert(ctx, input.Selector, draft.Text); err != nil {
			return "", err
		}
		method, err := m.send(ctx, input.Selector)
		if err != nil {
			return "", err
		}
		log.Info("reply sent", "via", method)
		m.confirm(ctx, chatID, draft.Text)
		m.toast(ctx, domain.ToastSuccess, "Reply sent to "+rec.UserName)
		return domain.OutcomeSent, nil

	case domain.ModeManual:
		if err := m.insert(ctx, input.Selector, draft.Text); err != nil {
			return "", err
		}
		outcome, err := m.awaitOperator(ctx, input.Selector)
		log.Info("manual draft resolved", "outcome", outcome)
		return outcome, err

	case domain.ModeGenerate:
		if err := m.insert(ctx, input.Selector, draft.Text); err != nil {
			return "", err
		}
		log.Info("reply drafted")
		m.toast(ctx, domain.ToastInfo, "Draft ready for "+rec.UserName)
		return domain.OutcomeDrafted, nil
	}
	return "", fmt.Errorf("unsupported mode %q", mode)
}

// draft generates the reply while the typing indicator runs.
func (m *Manager) draft(ctx context.Context, rec domain.ChatRecord, input string) (Draft, error) {
	stop := startTypingIndicator(ctx, m.cfg.Page, input, m.cfg.IndicatorInterval, m.logger)
	d, err := m.cfg.Generator.Reply(ctx, rec)
	stop()
	if err != nil {
		return Draft{}, err
	}
	if strings.TrimSpace(d.Text) == "" {
		return Draft{}, ErrEmptyReply
	}
	return d, nil
}

func (m *Manager) insert(ctx context.Context, input, text string) error {
	// The indicator may have left a trailing space behind.
	if err := m.cfg.Page.ClearInput(ctx, input); err != nil {
		m.logger.Debug("clear input before insert", "err", err)
	}
	if err := m.cfg.Page.InsertText(ctx, input, text); err != nil {
		return fmt.Errorf("insert reply: %w", err)
	}
	return nil
}

// send tries the send button, then the SVG icon next to the composer,
// then the Enter key. A method counts as done once the composer empties.
func (m *Manager) send(ctx context.Context, input string) (string, error) {
	if match, ok := m.finder.Find(ctx, m.cfg.Table.Get(locator.SendButton)); ok {
		if err := m.cfg.Page.Click(ctx, match.Selector); err != nil {
			m.logger.Debug("send button click failed", "selector", match.Selector, "err", err)
		} else if m.inputCleared(ctx, input) {
			return "button", nil
		}
	}
	if clicked, err := m.cfg.Page.ClickSendIcon(ctx, input); err != nil {
		m.logger.Debug("send icon click failed", "err", err)
	} else if clicked && m.inputCleared(ctx, input) {
		return "icon", nil
	}
	if err := m.cfg.Page.PressEnter(ctx, input); err != nil {
		return "", fmt.Errorf("%w: enter: %v", ErrSendFailed, err)
	}
	if m.inputCleared(ctx, input) {
		return "enter", nil
	}
	return "", ErrSendFailed
}

// inputCleared checks the composer up to sendChecks times; it empties a
// moment after a successful send.
func (m *Manager) inputCleared(ctx context.Context, input string) bool {
	for i := range sendChecks {
		if i > 0 {
			if err := m.sleep(ctx, m.cfg.SendPoll); err != nil {
				return false
			}
		}
		text, err := m.cfg.Page.InputText(ctx, input)
		if err == nil && strings.TrimSpace(text) == "" {
			return true
		}
	}
	return false
}

// confirm re-reads the conversation so the sent reply lands in history.
func (m *Manager) confirm(ctx context.Context, chatID, text string) {
	if err := m.sleep(ctx, m.cfg.SettleDelay); err != nil {
		return
	}
	if _, err := m.cfg.Chats.ProcessCurrentChatMessages(ctx); err != nil {
		m.logger.Debug("confirm rescan failed", "chat", chatID, "err", err)
		return
	}
	rec, ok := m.cfg.Chats.Get(chatID)
	if !ok {
		return
	}
	if last, ok := rec.LastMessage(); !ok || !last.IsSentByYou || strings.TrimSpace(last.Content) != strings.TrimSpace(text) {
		m.logger.Warn("sent reply not visible in history yet", "chat", chatID)
	}
}

// awaitOperator highlights the draft and waits for the operator to click
// send, start editing, or ignore it until ManualTimeout.
func (m *Manager) awaitOperator(ctx context.Context, input string) (domain.Outcome, error) {
	page := m.cfg.Page
	if err := page.Highlight(ctx, input, true); err != nil {
		m.logger.Debug("highlight failed", "err", err)
	}
	secs := int(m.cfg.ManualTimeout.Round(time.Second) / time.Second)
	if err := page.ShowBanner(ctx, fmt.Sprintf("AI draft ready: press Send to deliver it, or edit it yourself. Discarded in %ds.", secs)); err != nil {
		m.logger.Debug("banner failed", "err", err)
	}
	sendSel := ""
	if match, ok := m.finder.Find(ctx, m.cfg.Table.Get(locator.SendButton)); ok {
		sendSel = match.Selector
	}
	if err := page.ArmManualWatch(ctx, input, sendSel); err != nil {
		m.logger.Debug("arm manual watch failed", "err", err)
	}

	deadline := time.Now().Add(m.cfg.ManualTimeout)
	for time.Now().Before(deadline) {
		st, err := page.ManualState(ctx)
		if err != nil {
			m.logger.Debug("manual state read failed", "err", err)
		}
		switch {
		case st.SendClicked:
			m.resetStyling(ctx, input)
			m.toast(ctx, domain.ToastSuccess, "Reply sent")
			return domain.OutcomeSent, nil
		case st.InputTouched:
			m.resetStyling(ctx, input)
			return domain.OutcomeTakenOver, nil
		}
		if err := m.sleep(ctx, m.cfg.ManualPoll); err != nil {
			m.discard(context.WithoutCancel(ctx), input)
			return domain.OutcomeDiscarded, err
		}
	}
	m.discard(ctx, input)
	m.toast(ctx, domain.ToastWarning, "Draft discarded after timeout")
	return domain.OutcomeDiscarded, nil
}

func (m *Manager) discard(ctx context.Context, input string) {
	if err := m.cfg.Page.ClearInput(ctx, input); err != nil {
		m.logger.Debug("clear input failed", "err", err)
	}
	m.resetStyling(ctx, input)
}

func (m *Manager) resetStyling(ctx context.Context, input string) {
	if err := m.cfg.Page.Highlight(ctx, input, false); err != nil {
		m.logger.Debug("unhighlight failed", "err", err)
	}
	if err := m.cfg.Page.RemoveBanner(ctx); err != nil {
		m.logger.Debug("remove banner failed", "err", err)
	}
}

func (m *Manager) toast(ctx context.Context, level domain.ToastLevel, text string) {
	if m.cfg.Notifier != nil {
		m.cfg.Notifier.Toast(ctx, level, text)
	}
}
