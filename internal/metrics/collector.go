// Package metrics is a small Prometheus-text metrics registry for the
// monitor. It avoids pulling in prometheus/client_golang for a handful of
// counters.
package metrics

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Default is the process-wide registry.
var Default = NewRegistry()

type Registry struct {
	mu         sync.Mutex
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram
	started    time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		counters:   make(map[string]*Counter),
		gauges:     make(map[string]*Gauge),
		histograms: make(map[string]*Histogram),
		started:    time.Now(),
	}
}

type Counter struct {
	name, help, labels string
	value              atomic.Int64
}

func (c *Counter) Inc()          { c.value.Add(1) }
func (c *Counter) Add(n int64)   { c.value.Add(n) }
func (c *Counter) Value() int64  { return c.value.Load() }

type Gauge struct {
	name, help, labels string
	value              atomic.Int64
}

func (g *Gauge) Set(v int64)   { g.value.Store(v) }
func (g *Gauge) Value() int64  { return g.value.Load() }

type Histogram struct {
	name, help string
	mu         sync.Mutex
	count      int64
	sum        float64
	bounds     []float64
	counts     []int64
}

// Observe records v in every bucket whose upper bound is >= v.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i, le := range h.bounds {
		if v <= le {
			h.counts[i]++
		}
	}
}

// ObserveSince records the seconds elapsed since start.
func (h *Histogram) ObserveSince(start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

func key(name, labels string) string { return name + "{" + labels + "}" }

// Counter returns the counter for name and labels, creating it once.
func (r *Registry) Counter(name, help, labels string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(name, labels)
	if c, ok := r.counters[k]; ok {
		return c
	}
	c := &Counter{name: name, help: help, labels: labels}
	r.counters[k] = c
	return c
}

func (r *Registry) Gauge(name, help, labels string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(name, labels)
	if g, ok := r.gauges[k]; ok {
		return g
	}
	g := &Gauge{name: name, help: help, labels: labels}
	r.gauges[k] = g
	return g
}

func (r *Registry) Histogram(name, help string, buckets []float64) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.histograms[name]; ok {
		return h
	}
	bounds := append([]float64(nil), buckets...)
	sort.Float64s(bounds)
	h := &Histogram{name: name, help: help, bounds: bounds, counts: make([]int64, len(bounds))}
	r.histograms[name] = h
	return h
}

// WriteTo renders every metric in Prometheus exposition format.
func (r *Registry) WriteTo(w io.Writer) (int64, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# HELP fbmonitor_uptime_seconds Time since start in seconds\n")
	fmt.Fprintf(&sb, "# TYPE fbmonitor_uptime_seconds gauge\n")
	fmt.Fprintf(&sb, "fbmonitor_uptime_seconds %d\n", int64(time.Since(r.started).Seconds()))

	r.mu.Lock()
	counters := sortedKeys(r.counters)
	gauges := sortedKeys(r.gauges)
	hists := sortedKeys(r.histograms)

	seen := make(map[string]bool)
	for _, k := range counters {
		c := r.counters[k]
		writeSample(&sb, seen, c.name, c.help, "counter", c.labels, c.Value())
	}
	for _, k := range gauges {
		g := r.gauges[k]
		writeSample(&sb, seen, g.name, g.help, "gauge", g.labels, g.Value())
	}
	for _, k := range hists {
		h := r.histograms[k]
		h.mu.Lock()
		fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s histogram\n", h.name, h.help, h.name)
		for i, le := range h.bounds {
			bound := fmt.Sprintf("%g", le)
			if math.IsInf(le, 1) {
				bound = "+Inf"
			}
			fmt.Fprintf(&sb, "%s_bucket{le=\"%s\"} %d\n", h.name, bound, h.counts[i])
		}
		fmt.Fprintf(&sb, "%s_count %d\n%s_sum %f\n", h.name, h.count, h.name, h.sum)
		h.mu.Unlock()
	}
	r.mu.Unlock()

	n, err := io.WriteString(w, sb.String())
	return int64(n), err
}

func writeSample(sb *strings.Builder, seen map[string]bool, name, help, typ, labels string, v int64) {
	if !seen[name] {
		fmt.Fprintf(sb, "# HELP %s %s\n# TYPE %s %s\n", name, help, name, typ)
		seen[name] = true
	}
	if labels != "" {
		fmt.Fprintf(sb, "%s{%s} %d\n", name, labels, v)
		return
	}
	fmt.Fprintf(sb, "%s %d\n", name, v)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Handler serves the registry as text/plain.
func (r *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = r.WriteTo(w)
	}
}

// RepliesGenerated counts drafted replies by where the text came from.
func RepliesGenerated(source string) *Counter {
	return Default.Counter("fbmonitor_replies_generated_total", "Replies drafted, by source", fmt.Sprintf("source=%q", source))
}

// ReplyOutcomes counts what happened to drafted replies.
func ReplyOutcomes(outcome string) *Counter {
	return Default.Counter("fbmonitor_reply_outcomes_total", "Reply dispatch outcomes", fmt.Sprintf("outcome=%q", outcome))
}

var (
	ChatsScanned      = Default.Counter("fbmonitor_chat_rows_scanned_total", "Chat list rows read", "")
	UnreadFound       = Default.Counter("fbmonitor_unread_chats_total", "Unread chats queued", "")
	MessagesStored    = Default.Counter("fbmonitor_messages_stored_total", "Messages appended to history", "")
	DuplicatesDropped = Default.Counter("fbmonitor_messages_duplicate_total", "Messages dropped by the content+sender rule", "")
	AIFailures        = Default.Counter("fbmonitor_ai_failures_total", "Completion requests that failed", "")
	CyclesRun         = Default.Counter("fbmonitor_cycles_total", "Monitor cycles run", "")
	CyclesSkipped     = Default.Counter("fbmonitor_cycles_skipped_total", "Triggers skipped because a cycle was running", "")
	CycleErrors       = Default.Counter("fbmonitor_cycle_errors_total", "Monitor cycles that ended in error", "")
	TrackedChats      = Default.Gauge("fbmonitor_tracked_chats", "Chats held in memory", "")

	ReplyLatency = Default.Histogram("fbmonitor_reply_latency_seconds", "Time to draft a reply",
		[]float64{0.5, 1, 2, 5, 10, 30, 60})
)
