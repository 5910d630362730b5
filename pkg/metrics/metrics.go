package metrics

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// ErrLabelCountMismatch is returned when the number of label values doesn't match the defined labels.
var ErrLabelCountMismatch = errors.New("label count mismatch")

// ErrNegativeCounterValue is returned when attempting to add a negative value to a counter.
var ErrNegativeCounterValue = errors.New("counter cannot be decreased")

// ErrDuplicateMetric is returned when registering a metric with a name that is already registered.
var ErrDuplicateMetric = errors.New("duplicate metric name")

// Kind is the Prometheus type of a metric family.
type Kind string

const (
	KindCounter   Kind = "counter"
	KindGauge     Kind = "gauge"
	KindHistogram Kind = "histogram"
)

// atomicFloat64 stores float64 bits in a uint64 for lock-free updates.
type atomicFloat64 struct {
	bits atomic.Uint64
}

func (a *atomicFloat64) Load() float64 { return math.Float64frombits(a.bits.Load()) }

func (a *atomicFloat64) Store(v float64) { a.bits.Store(math.Float64bits(v)) }

func (a *atomicFloat64) Add(delta float64) {
	for {
		old := a.bits.Load()
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if a.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

// series is one label combination of a family.
type series struct {
	values []string
	value  atomicFloat64 // counter/gauge value, histogram sum
	counts []atomic.Uint64
	count  atomic.Uint64
}

// family holds every series of one metric name.
type family struct {
	name       string
	help       string
	kind       Kind
	labelNames []string
	buckets    []float64

	mu     sync.RWMutex
	series map[string]*series
}

func (f *family) with(values []string) (*series, error) {
	if len(values) != len(f.labelNames) {
		return nil, fmt.Errorf("%w: %s %s expected %d labels, got %d",
			ErrLabelCountMismatch, f.kind, f.name, len(f.labelNames), len(values))
	}
	key := strings.Join(values, "\x00")

	f.mu.RLock()
	s, ok := f.series[key]
	f.mu.RUnlock()
	if ok {
		return s, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok = f.series[key]; !ok {
		s = &series{values: slices.Clone(values)}
		if f.kind == KindHistogram {
			s.counts = make([]atomic.Uint64, len(f.buckets))
		}
		f.series[key] = s
	}
	return s, nil
}

func (f *family) sorted() []*series {
	f.mu.RLock()
	out := make([]*series, 0, len(f.series))
	for _, s := range f.series {
		out = append(out, s)
	}
	f.mu.RUnlock()
	slices.SortFunc(out, func(a, b *series) int {
		return slices.Compare(a.values, b.values)
	})
	return out
}

// Counter is a monotonically increasing metric.
type Counter struct{ f *family }

// Add adds delta to the series selected by labels.
func (c *Counter) Add(delta float64, labels ...string) error {
	if delta < 0 {
		return fmt.Errorf("%w: counter %s", ErrNegativeCounterValue, c.f.name)
	}
	s, err := c.f.with(labels)
	if err != nil {
		return err
	}
	s.value.Add(delta)
	return nil
}

// Inc adds one to the series selected by labels.
func (c *Counter) Inc(labels ...string) error {
	return c.Add(1, labels...)
}

// Value returns the current value of a series, 0 if it was never touched.
func (c *Counter) Value(labels ...string) float64 {
	return c.f.load(labels)
}

// Gauge is a metric that can go up and down.
type Gauge struct{ f *family }

// Set sets the series selected by labels.
func (g *Gauge) Set(v float64, labels ...string) error {
	s, err := g.f.with(labels)
	if err != nil {
		return err
	}
	s.value.Store(v)
	return nil
}

// Add adds delta, which may be negative.
func (g *Gauge) Add(delta float64, labels ...string) error {
	s, err := g.f.with(labels)
	if err != nil {
		return err
	}
	s.value.Add(delta)
	return nil
}

// Value returns the current value of a series.
func (g *Gauge) Value(labels ...string) float64 {
	return g.f.load(labels)
}

// Histogram counts observations into cumulative buckets.
type Histogram struct{ f *family }

// Observe records v in the series selected by labels.
func (h *Histogram) Observe(v float64, labels ...string) error {
	s, err := h.f.with(labels)
	if err != nil {
		return err
	}
	for i, bound := range h.f.buckets {
		if v <= bound {
			s.counts[i].Add(1)
			break
		}
	}
	s.value.Add(v)
	s.count.Add(1)
	return nil
}

// Count returns the number of observations of a series.
func (h *Histogram) Count(labels ...string) uint64 {
	h.f.mu.RLock()
	defer h.f.mu.RUnlock()
	if s, ok := h.f.series[strings.Join(labels, "\x00")]; ok {
		return s.count.Load()
	}
	return 0
}

func (f *family) load(labels []string) float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if s, ok := f.series[strings.Join(labels, "\x00")]; ok {
		return s.value.Load()
	}
	return 0
}

// Registry holds metric families in registration order.
type Registry struct {
	mu       sync.RWMutex
	families []*family
	names    map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

// NewCounter registers a counter.
func (r *Registry) NewCounter(name, help string, labels ...string) *Counter {
	return &Counter{r.register(name, help, KindCounter, labels, nil)}
}

// NewGauge registers a gauge.
func (r *Registry) NewGauge(name, help string, labels ...string) *Gauge {
	return &Gauge{r.register(name, help, KindGauge, labels, nil)}
}

// NewHistogram registers a histogram. A +Inf bucket is appended when missing.
func (r *Registry) NewHistogram(name, help string, buckets []float64, labels ...string) *Histogram {
	b := slices.Clone(buckets)
	slices.Sort(b)
	if len(b) == 0 || !math.IsInf(b[len(b)-1], 1) {
		b = append(b, math.Inf(1))
	}
	return &Histogram{r.register(name, help, KindHistogram, labels, b)}
}

// register panics on a duplicate name; two families with one name cannot
// be exposed.
func (r *Registry) register(name, help string, kind Kind, labels []string, buckets []float64) *family {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.names[name]; exists {
		panic(fmt.Sprintf("%s: %s", ErrDuplicateMetric, name))
	}
	f := &family{
		name:       name,
		help:       help,
		kind:       kind,
		labelNames: slices.Clone(labels),
		buckets:    buckets,
		series:     make(map[string]*series),
	}
	r.names[name] = struct{}{}
	r.families = append(r.families, f)
	return f
}

// WriteTo writes every family with at least one series in the Prometheus
// text format.
func (r *Registry) WriteTo(w io.Writer) (int64, error) {
	r.mu.RLock()
	families := slices.Clone(r.families)
	r.mu.RUnlock()

	var b strings.Builder
	for _, f := range families {
		f.write(&b)
	}
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

// Handler serves the registry as a /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = r.WriteTo(w)
	})
}

func (f *family) write(b *strings.Builder) {
	all := f.sorted()
	if len(all) == 0 {
		return
	}
	fmt.Fprintf(b, "# HELP %s %s\n", f.name, escapeHelp(f.help))
	fmt.Fprintf(b, "# TYPE %s %s\n", f.name, f.kind)

	for _, s := range all {
		if f.kind != KindHistogram {
			writeSample(b, f.name, f.labelNames, s.values, "", s.value.Load())
			continue
		}
		var cumulative uint64
		for i, bound := range f.buckets {
			cumulative += s.counts[i].Load()
			writeSample(b, f.name+"_bucket", f.labelNames, s.values, formatFloat(bound), float64(cumulative))
		}
		writeSample(b, f.name+"_sum", f.labelNames, s.values, "", s.value.Load())
		writeSample(b, f.name+"_count", f.labelNames, s.values, "", float64(s.count.Load()))
	}
}

func writeSample(b *strings.Builder, name string, labelNames, values []string, le string, v float64) {
	b.WriteString(name)
	if len(labelNames) > 0 || le != "" {
		b.WriteByte('{')
		for i, ln := range labelNames {
			if i > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(b, `%s="%s"`, ln, escapeLabelValue(values[i]))
		}
		if le != "" {
			if len(labelNames) > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(b, `le="%s"`, le)
		}
		b.WriteByte('}')
	}
	b.WriteByte(' ')
	b.WriteString(formatFloat(v))
	b.WriteByte('\n')
}

func formatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func escapeHelp(s string) string {
	return strings.NewReplacer(`\`, `\\`, "\n", `\n`).Replace(s)
}

func escapeLabelValue(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`).Replace(s)
}

// DefaultBuckets are request duration buckets in seconds.
var DefaultBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
