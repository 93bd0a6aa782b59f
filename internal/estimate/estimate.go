// Package estimate derives queue figures from the live queue. Nothing here is
// cached: callers recompute on every read.
package estimate

import (
	"math"
	"sync"
	"time"
)

const (
	DefaultConsultation = 15 * time.Minute
	DefaultWindow       = 10
	DefaultMinSamples   = 3
)

type Estimate struct {
	QueuePosition int
	PatientsAhead int
	WaitMinutes   int
	ServiceTime   time.Time
}

// Compute is the single estimation function. The absolute service time is
// derived from WaitMinutes, never computed separately. position <= 0 means
// unranked and yields the zero Estimate.
func Compute(position int, average time.Duration, now time.Time) Estimate {
	if position <= 0 {
		return Estimate{}
	}
	ahead := position - 1
	wait := int(math.Round(float64(ahead) * average.Minutes()))
	return Estimate{
		QueuePosition: position,
		PatientsAhead: ahead,
		WaitMinutes:   wait,
		ServiceTime:   now.Add(time.Duration(wait) * time.Minute),
	}
}

func Minutes(d time.Duration) int {
	return int(math.Round(d.Minutes()))
}

type Config struct {
	Default    time.Duration
	Window     int
	MinSamples int
}

// Averager keeps a simple moving average of consultation durations over the
// last Window completed tokens per key.
type Averager struct {
	mu      sync.Mutex
	cfg     Config
	samples map[string]*window
}

type window struct {
	values []time.Duration
	next   int
	full   bool
	sum    time.Duration
}

func NewAverager(cfg Config) *Averager {
	if cfg.Default <= 0 {
		cfg.Default = DefaultConsultation
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = DefaultMinSamples
	}
	if cfg.MinSamples > cfg.Window {
		cfg.MinSamples = cfg.Window
	}
	return &Averager{cfg: cfg, samples: make(map[string]*window)}
}

// Record adds one completed consultation. Non-positive durations are ignored.
func (a *Averager) Record(key string, d time.Duration) {
	if d <= 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	w, ok := a.samples[key]
	if !ok {
		w = &window{values: make([]time.Duration, a.cfg.Window)}
		a.samples[key] = w
	}
	if w.full {
		w.sum -= w.values[w.next]
	}
	w.values[w.next] = d
	w.sum += d
	w.next++
	if w.next == len(w.values) {
		w.next = 0
		w.full = true
	}
}

// Average returns the rolling average for key once MinSamples exist, else
// fallback (or the configured default when fallback is not positive).
func (a *Averager) Average(key string, fallback time.Duration) time.Duration {
	if fallback <= 0 {
		fallback = a.cfg.Default
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	w, ok := a.samples[key]
	if !ok {
		return fallback
	}
	n := w.count()
	if n < a.cfg.MinSamples {
		return fallback
	}
	return w.sum / time.Duration(n)
}

func (a *Averager) Samples(key string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if w, ok := a.samples[key]; ok {
		return w.count()
	}
	return 0
}

func (a *Averager) Default() time.Duration {
	return a.cfg.Default
}

func (w *window) count() int {
	if w.full {
		return len(w.values)
	}
	return w.next
}
