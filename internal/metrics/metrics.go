// Package metrics keeps in-process counters, gauges and histograms for the
// recorder and player, and serves them in the Prometheus text format.
package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Labels are constant labels attached to one metric.
type Labels map[string]string

// String renders the labels as {a="x",b="y"}, sorted by name.
func (l Labels) String() string {
	return l.render("")
}

// render appends extra, already formatted, after the sorted labels.
func (l Labels) render(extra string) string {
	parts := make([]string, 0, len(l)+1)
	for _, k := range slices.Sorted(maps.Keys(l)) {
		parts = append(parts, fmt.Sprintf("%s=%q", k, l[k]))
	}
	if extra != "" {
		parts = append(parts, extra)
	}
	if len(parts) == 0 {
		return ""
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// desc is what every metric carries besides its value.
type desc struct {
	name   string
	help   string
	labels Labels
}

func (d desc) header(w io.Writer, kind string) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", d.name, d.help, d.name, kind)
}

// metric is implemented by Counter, Gauge and Histogram.
type metric interface {
	writeTo(w io.Writer)
	snapshot(into map[string]any)
}

// Counter only goes up.
type Counter struct {
	desc
	n atomic.Uint64
}

// Inc adds one.
func (c *Counter) Inc() { c.n.Add(1) }

// Add adds v.
func (c *Counter) Add(v uint64) { c.n.Add(v) }

// Value reads the current count.
func (c *Counter) Value() uint64 { return c.n.Load() }

// Name is the full name, namespace included.
func (c *Counter) Name() string { return c.name }

func (c *Counter) writeTo(w io.Writer) {
	c.header(w, "counter")
	fmt.Fprintf(w, "%s%s %d\n", c.name, c.labels, c.Value())
}

func (c *Counter) snapshot(into map[string]any) { into[c.name] = c.Value() }

// Gauge holds the latest value of something that rises and falls, such
// as whether a recording is in progress.
type Gauge struct {
	desc
	v atomic.Int64
}

// Set stores v.
func (g *Gauge) Set(v int64) { g.v.Store(v) }

// SetBool stores 1 for true and 0 for false.
func (g *Gauge) SetBool(b bool) {
	var v int64
	if b {
		v = 1
	}
	g.v.Store(v)
}

// Value reads the stored value.
func (g *Gauge) Value() int64 { return g.v.Load() }

func (g *Gauge) writeTo(w io.Writer) {
	g.header(w, "gauge")
	fmt.Fprintf(w, "%s%s %d\n", g.name, g.labels, g.Value())
}

func (g *Gauge) snapshot(into map[string]any) { into[g.name] = g.Value() }

// LatenessBuckets are buckets for scheduling lateness in seconds.
var LatenessBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.02, 0.05, 0.1, 0.25, 1,
}

// Histogram counts observations into fixed upper-bound buckets.
type Histogram struct {
	desc
	bounds []float64

	mu    sync.Mutex
	hits  []uint64 // len(bounds)+1, the last one is +Inf
	sum   float64
	total uint64
}

// Observe adds v to the first bucket whose bound is at least v.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hits[sort.SearchFloat64s(h.bounds, v)]++
	h.sum += v
	h.total++
}

// ObserveDuration observes d in seconds.
func (h *Histogram) ObserveDuration(d time.Duration) { h.Observe(d.Seconds()) }

// Count is the number of observations so far.
func (h *Histogram) Count() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.total
}

// Mean is the average observation, or 0 before the first one.
func (h *Histogram) Mean() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.mean()
}

func (h *Histogram) mean() float64 {
	if h.total == 0 {
		return 0
	}
	return h.sum / float64(h.total)
}

// cumulative returns the running bucket totals, ending with +Inf.
func (h *Histogram) cumulative() []uint64 {
	out := slices.Clone(h.hits)
	for i := 1; i < len(out); i++ {
		out[i] += out[i-1]
	}
	return out
}

func (h *Histogram) writeTo(w io.Writer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.header(w, "histogram")
	cum := h.cumulative()
	for i, le := range h.bounds {
		fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, h.labels.render(fmt.Sprintf(`le="%g"`, le)), cum[i])
	}
	fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, h.labels.render(`le="+Inf"`), cum[len(cum)-1])
	fmt.Fprintf(w, "%s_sum%s %g\n", h.name, h.labels, h.sum)
	fmt.Fprintf(w, "%s_count%s %d\n", h.name, h.labels, h.total)
}

func (h *Histogram) snapshot(into map[string]any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	into[h.name+"_count"] = h.total
	into[h.name+"_mean"] = h.mean()
}

// Registry owns a set of named metrics and renders them for scraping.
type Registry struct {
	namespace string

	mu      sync.RWMutex
	metrics map[string]metric
}

// NewRegistry returns an empty Registry. Metric names are prefixed with
// namespace and an underscore when namespace is set.
func NewRegistry(namespace string) *Registry {
	return &Registry{namespace: namespace, metrics: make(map[string]metric)}
}

// register returns the metric already stored under name, or stores the
// one built by create. It panics if name is taken by a different kind.
func register[M metric](r *Registry, name string, create func(full string) M) M {
	if r.namespace != "" {
		name = r.namespace + "_" + name
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.metrics[name]; ok {
		m, ok := existing.(M)
		if !ok {
			panic(fmt.Sprintf("metrics: %s already registered as %T", name, existing))
		}
		return m
	}
	m := create(name)
	r.metrics[name] = m
	return m
}

// Counter registers a counter, or returns the one already registered
// under name.
func (r *Registry) Counter(name, help string, labels Labels) *Counter {
	return register(r, name, func(full string) *Counter {
		return &Counter{desc: desc{full, help, labels}}
	})
}

// Gauge registers a gauge, or returns the one already registered under
// name.
func (r *Registry) Gauge(name, help string, labels Labels) *Gauge {
	return register(r, name, func(full string) *Gauge {
		return &Gauge{desc: desc{full, help, labels}}
	})
}

// Histogram registers a histogram with the given bucket bounds, or
// returns the one already registered under name.
func (r *Registry) Histogram(name, help string, labels Labels, buckets []float64) *Histogram {
	return register(r, name, func(full string) *Histogram {
		bounds := slices.Sorted(slices.Values(buckets))
		return &Histogram{
			desc:   desc{full, help, labels},
			bounds: bounds,
			hits:   make([]uint64, len(bounds)+1),
		}
	})
}

// WritePrometheus writes every metric in the Prometheus text format,
// sorted by name.
func (r *Registry) WritePrometheus(w io.Writer) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var b strings.Builder
	for _, name := range slices.Sorted(maps.Keys(r.metrics)) {
		r.metrics[name].writeTo(&b)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// Snapshot returns the current value of every metric. Histograms report
// their count and mean.
func (r *Registry) Snapshot() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]any, len(r.metrics))
	for _, m := range r.metrics {
		m.snapshot(out)
	}
	return out
}

// Handler serves the registry: JSON when the client asks for it,
// Prometheus text otherwise.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if strings.Contains(req.Header.Get("Accept"), "application/json") {
			w.Header().Set("Content-Type", "application/json")
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			enc.Encode(r.Snapshot())
			return
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.WritePrometheus(w)
	})
}

// Route is an extra handler served next to /metrics.
type Route struct {
	Pattern string
	Handler http.Handler
}

// Serve exposes the registry on addr at /metrics, plus any extra routes,
// until ctx is done.
func (r *Registry) Serve(ctx context.Context, addr string, routes ...Route) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	for _, rt := range routes {
		mux.Handle(rt.Pattern, rt.Handler)
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
