// Package profile times named phases of a connection's lifetime. One
// profiler lives on each connection context frame; its report is emitted at
// disconnect when verbosity exceeds the configured threshold.
package profile

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Profiler accumulates durations per label.
type Profiler struct {
	mu     sync.Mutex
	totals map[string]time.Duration
	counts map[string]int
	order  []string
}

// New creates an empty profiler.
func New() *Profiler {
	return &Profiler{
		totals: make(map[string]time.Duration),
		counts: make(map[string]int),
	}
}

// Track runs fn and records its duration under label. The function's error
// is passed through; failed phases are timed too.
func (p *Profiler) Track(label string, fn func() error) error {
	start := time.Now()
	err := fn()
	p.Add(label, time.Since(start))
	return err
}

// Add records a duration under label.
func (p *Profiler) Add(label string, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.totals[label]; !ok {
		p.order = append(p.order, label)
	}
	p.totals[label] += d
	p.counts[label]++
}

// Total returns the accumulated duration for a label.
func (p *Profiler) Total(label string) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totals[label]
}

// Report renders the accumulated timings, one line per label in first-seen
// order, slowest-agnostic. Empty string when nothing was recorded.
func (p *Profiler) Report() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.order) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("timing:\n")
	for _, label := range p.order {
		b.WriteString(fmt.Sprintf("  %-20s %10s  (x%d)\n",
			label, p.totals[label].Round(time.Microsecond), p.counts[label]))
	}
	return b.String()
}

// Labels returns the recorded labels in first-seen order.
func (p *Profiler) Labels() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

// Slowest returns the label with the largest accumulated duration.
func (p *Profiler) Slowest() (string, time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	labels := make([]string, len(p.order))
	copy(labels, p.order)
	sort.SliceStable(labels, func(i, j int) bool {
		return p.totals[labels[i]] > p.totals[labels[j]]
	})
	if len(labels) == 0 {
		return "", 0
	}
	return labels[0], p.totals[labels[0]]
}
