package status

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"fbmonitor/internal/domain"
	"fbmonitor/internal/metrics"
	"fbmonitor/internal/monitor"
	"fbmonitor/internal/store"
)

type fakeChats struct {
	recs    []domain.ChatRecord
	pending []domain.PendingChat
}

func (f *fakeChats) Snapshot() []domain.ChatRecord { return f.recs }

func (f *fakeChats) Get(id string) (domain.ChatRecord, bool) {
	for _, r := range f.recs {
		if r.ChatID == id {
			return r, true
		}
	}
	return domain.ChatRecord{}, false
}

func (f *fakeChats) Pending() []domain.PendingChat { return f.pending }

type fakeMonitor struct {
	mu       sync.Mutex
	st       monitor.Status
	triggers int
}

func (m *fakeMonitor) Status() monitor.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st
}

func (m *fakeMonitor) SetMode(mode domain.Mode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.Mode = mode
}

func (m *fakeMonitor) Request(r monitor.Reason) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.st.Busy || r.Source != monitor.SourceManual {
		return false
	}
	m.triggers++
	return true
}

type fakeHistory struct{}

func (fakeHistory) ListChats(ctx context.Context, limit int) ([]store.ChatSummary, error) {
	return []store.ChatSummary{{ChatID: "1", Messages: 4}}, nil
}

type fakeEvents struct{}

func (fakeEvents) Replay(kind domain.EventKind, since time.Time) []domain.Event {
	all := []domain.Event{
		{Kind: domain.EventMutation, ChatID: "1"},
		{Kind: domain.EventReplyOutcome, ChatID: "1", Outcome: domain.OutcomeSent},
	}
	var out []domain.Event
	for _, e := range all {
		if kind == "" || e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeMonitor) {
	t.Helper()
	reg := metrics.NewRegistry()
	reg.Counter("fbmonitor_test_total", "test counter", "").Add(3)
	mon := &fakeMonitor{st: monitor.Status{Mode: domain.ModeOff}}
	s := New(Config{
		Chats: &fakeChats{
			recs: []domain.ChatRecord{{
				ChatID:   "123",
				UserName: "Alice",
				History:  []domain.Message{{Content: "hi", Sender: "Alice"}},
			}},
			pending: []domain.PendingChat{{ChatID: "456", UserName: "Bob", Minutes: 5}},
		},
		Monitor: mon,
		Events:  fakeEvents{},
		History: fakeHistory{},
		Metrics: reg,
	})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv, mon
}

func get(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t)

	if code := get(t, srv.URL+"/health", nil); code != http.StatusOK {
		t.Errorf("/health = %d", code)
	}

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "fbmonitor_test_total 3") {
		t.Errorf("metrics body:\n%s", body)
	}
}

func TestChatsEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	var chats []domain.ChatRecord
	if code := get(t, srv.URL+"/api/chats", &chats); code != http.StatusOK || len(chats) != 1 {
		t.Fatalf("/api/chats = %d %+v", code, chats)
	}

	var rec domain.ChatRecord
	if code := get(t, srv.URL+"/api/chats/123", &rec); code != http.StatusOK || rec.UserName != "Alice" || len(rec.History) != 1 {
		t.Errorf("/api/chats/123 = %d %+v", code, rec)
	}
	if code := get(t, srv.URL+"/api/chats/999", nil); code != http.StatusNotFound {
		t.Errorf("unknown chat = %d", code)
	}

	var pending []domain.PendingChat
	if code := get(t, srv.URL+"/api/pending", &pending); code != http.StatusOK || len(pending) != 1 || pending[0].ChatID != "456" {
		t.Errorf("/api/pending = %d %+v", code, pending)
	}

	var hist []store.ChatSummary
	if code := get(t, srv.URL+"/api/history", &hist); code != http.StatusOK || hist[0].Messages != 4 {
		t.Errorf("/api/history = %d %+v", code, hist)
	}

	var evs []domain.Event
	get(t, srv.URL+"/api/events?kind=reply_outcome", &evs)
	if len(evs) != 1 || evs[0].Outcome != domain.OutcomeSent {
		t.Errorf("/api/events = %+v", evs)
	}
	if code := get(t, srv.URL+"/api/events?since=yesterday", nil); code != http.StatusBadRequest {
		t.Errorf("bad since = %d", code)
	}
}

func TestModeAndScan(t *testing.T) {
	srv, mon := newTestServer(t)

	put := func(body string) int {
		req, _ := http.NewRequest(http.MethodPut, srv.URL+"/api/mode", strings.NewReader(body))
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}
	if code := put(`{"mode":"manual"}`); code != http.StatusOK {
		t.Fatalf("PUT mode = %d", code)
	}
	if mon.Status().Mode != domain.ModeManual {
		t.Errorf("mode = %s", mon.Status().Mode)
	}
	for _, bad := range []string{`{"mode":"yolo"}`, `{}`, `not json`} {
		if code := put(bad); code != http.StatusBadRequest {
			t.Errorf("PUT %s = %d, want 400", bad, code)
		}
	}

	resp, err := http.Post(srv.URL+"/api/scan", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("POST scan = %d", resp.StatusCode)
	}
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mon.mu.Lock()
		n := mon.triggers
		mon.mu.Unlock()
		if n == 1 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Error("scan never triggered the monitor")
}

func TestScanConflictWhenBusy(t *testing.T) {
	srv, mon := newTestServer(t)
	mon.st.Busy = true

	resp, err := http.Post(srv.URL+"/api/scan", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("POST scan while busy = %d, want 409", resp.StatusCode)
	}
}
