// Package status serves a read-mostly HTTP view of the monitor: health,
// metrics, tracked chats and the pending queue.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"fbmonitor/internal/domain"
	"fbmonitor/internal/metrics"
	"fbmonitor/internal/monitor"
	"fbmonitor/internal/store"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

type Chats interface {
	Snapshot() []domain.ChatRecord
	Get(id string) (domain.ChatRecord, bool)
	Pending() []domain.PendingChat
}

type Monitor interface {
	Status() monitor.Status
	SetMode(mode domain.Mode)
	Request(r monitor.Reason) bool
}

type EventLog interface {
	Replay(kind domain.EventKind, since time.Time) []domain.Event
}

// Stream hands out live copies of bus events.
type Stream interface {
	Watch(buffer int) (<-chan domain.Event, func())
}

type History interface {
	ListChats(ctx context.Context, limit int) ([]store.ChatSummary, error)
}

type Config struct {
	Host    string
	Port    int
	Chats   Chats
	Monitor Monitor  // optional
	Events  EventLog // optional
	History History  // optional
	Stream  Stream   // optional, enables /api/events/stream
	Metrics *metrics.Registry
	Logger  *slog.Logger
}

type Server struct {
	cfg    Config
	logger *slog.Logger
	server *http.Server
	bgCtx  context.Context
}

func New(cfg Config) *Server {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8787
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Default
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{cfg: cfg, logger: cfg.Logger, bgCtx: context.Background()}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	r.Get("/metrics", s.cfg.Metrics.Handler())
	r.Route("/api", func(r chi.Router) {
		r.Get("/chats", s.listChats)
		r.Get("/chats/{id}", s.getChat)
		r.Get("/pending", s.pending)
		r.Get("/history", s.history)
		r.Get("/events", s.events)
		r.Get("/events/stream", s.stream)
		r.Get("/status", s.status)
		r.Post("/scan", s.scan)
		r.Put("/mode", s.setMode)
	})
	return r
}

// Run serves until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.bgCtx = ctx
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("status server started", "addr", "http://"+addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"took", time.Since(start),
			"request_id", chiMiddleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) listChats(w http.ResponseWriter, r *http.Request) {
	chats := s.cfg.Chats.Snapshot()
	if chats == nil {
		chats = []domain.ChatRecord{}
	}
	writeJSON(w, http.StatusOK, chats)
}

func (s *Server) getChat(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.cfg.Chats.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "chat not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) pending(w http.ResponseWriter, r *http.Request) {
	p := s.cfg.Chats.Pending()
	if p == nil {
		p = []domain.PendingChat{}
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	if s.cfg.History == nil {
		writeError(w, http.StatusNotImplemented, "no store configured")
		return
	}
	list, err := s.cfg.History.ListChats(r.Context(), 200)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if list == nil {
		list = []store.ChatSummary{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Events == nil {
		writeJSON(w, http.StatusOK, []domain.Event{})
		return
	}
	var since time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC 3339")
			return
		}
		since = t
	}
	evs := s.cfg.Events.Replay(domain.EventKind(r.URL.Query().Get("kind")), since)
	if evs == nil {
		evs = []domain.Event{}
	}
	writeJSON(w, http.StatusOK, evs)
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Monitor == nil {
		writeError(w, http.StatusNotImplemented, "monitor not running")
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Monitor.Status())
}

// scan asks the monitor loop for a cycle; 409 when one is already running
// or queued.
func (s *Server) scan(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Monitor == nil {
		writeError(w, http.StatusNotImplemented, "monitor not running")
		return
	}
	if !s.cfg.Monitor.Request(monitor.Reason{Source: monitor.SourceManual}) {
		writeError(w, http.StatusConflict, "cycle already running")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
}

func (s *Server) setMode(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Monitor == nil {
		writeError(w, http.StatusNotImplemented, "monitor not running")
		return
	}
	var body struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	mode, err := domain.ParseMode(body.Mode)
	if err != nil || body.Mode == "" {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid mode %q", body.Mode))
		return
	}
	s.cfg.Monitor.SetMode(mode)
	writeJSON(w, http.StatusOK, map[string]string{"mode": string(mode)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
