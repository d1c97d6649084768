package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// ProgressReporter reports progress of a simulation run.
type ProgressReporter interface {
	Start(total int64)
	Observe(admitted bool)
	Finish()
}

// SimpleProgress renders a single-line text progress bar with admitted and
// rejected counts. It is safe for concurrent use.
type SimpleProgress struct {
	mu       sync.Mutex
	total    int64
	admitted int64
	rejected int64
	started  time.Time
	writer   io.Writer
}

// NewProgressReporter creates a new progress reporter that writes to w.
// If w is nil, it defaults to os.Stderr.
func NewProgressReporter(w io.Writer) *SimpleProgress {
	if w == nil {
		w = os.Stderr
	}
	return &SimpleProgress{
		writer: w,
	}
}

// Start resets the reporter for total requests.
func (p *SimpleProgress) Start(total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.total = total
	p.admitted, p.rejected = 0, 0
	p.started = time.Now()

	p.render()
}

// Observe counts one finished request.
func (p *SimpleProgress) Observe(admitted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if admitted {
		p.admitted++
	} else {
		p.rejected++
	}
	p.render()
}

// Finish ends the progress line.
func (p *SimpleProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.render()
	fmt.Fprintln(p.writer)
}

func (p *SimpleProgress) render() {
	if p.total == 0 {
		return
	}

	done := p.admitted + p.rejected
	const barWidth = 30
	filled := int(barWidth * done / p.total)
	if filled > barWidth {
		filled = barWidth
	}
	bar := strings.Repeat("#", filled) + strings.Repeat(".", barWidth-filled)

	rate := 0.0
	if elapsed := time.Since(p.started).Seconds(); elapsed > 0 {
		rate = float64(done) / elapsed
	}

	fmt.Fprintf(p.writer, "\r[%s] %d/%d admitted=%d rejected=%d %.1f req/s",
		bar, done, p.total, p.admitted, p.rejected, rate)
}

// NopProgress discards progress.
type NopProgress struct{}

func (NopProgress) Start(int64)  {}
func (NopProgress) Observe(bool) {}
func (NopProgress) Finish()      {}
