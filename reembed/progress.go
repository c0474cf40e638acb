package reembed

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// ProgressTracker writes a single self-overwriting progress line while a run
// advances. It is safe for concurrent use.
type ProgressTracker struct {
	mu sync.Mutex

	writer   io.Writer
	unit     string
	total    int
	interval int

	done     int
	reported int
	began    time.Time
	running  bool
}

// NewProgressTracker returns a tracker for total items named unit (for
// example "documents"). A line is written whenever at least interval items
// completed since the previous one; interval <= 0 reports every item.
func NewProgressTracker(writer io.Writer, unit string, total, interval int) *ProgressTracker {
	return &ProgressTracker{
		writer:   writer,
		unit:     unit,
		total:    total,
		interval: max(interval, 1),
	}
}

// Start resets the counters and the clock.
func (p *ProgressTracker) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.began = time.Now()
	p.running = true
	p.done = 0
	p.reported = 0
}

// Update sets the number of completed items.
func (p *ProgressTracker) Update(done int) {
	p.advance(func() { p.done = done })
}

// Increment adds delta completed items.
func (p *ProgressTracker) Increment(delta int) {
	p.advance(func() { p.done += delta })
}

func (p *ProgressTracker) advance(step func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}

	step()
	p.done = min(p.done, p.total)
	if p.done-p.reported >= p.interval {
		p.write()
		p.reported = p.done
	}
}

// Finish reports the run as complete and ends the line.
func (p *ProgressTracker) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}

	p.done = p.total
	p.write()
	fmt.Fprintln(p.writer)
}

// Elapsed is the time since Start, or zero before it.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return 0
	}
	return time.Since(p.began)
}

// write must be called with mu held.
func (p *ProgressTracker) write() {
	var rate, percent float64
	if secs := time.Since(p.began).Seconds(); secs > 0 {
		rate = float64(p.done) / secs
	}
	if p.total > 0 {
		percent = float64(p.done) * 100 / float64(p.total)
	}
	fmt.Fprintf(p.writer, "\rProgress: %d/%d %s (%.1f%%) - %.1f %s/s",
		p.done, p.total, p.unit, percent, rate, p.unit)
}
