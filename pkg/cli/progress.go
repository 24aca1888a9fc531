package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

const barWidth = 30

// ProgressReporter reports progress for long-running operations.
type ProgressReporter interface {
	Start(total int64)
	Update(current int64)
	Finish()
	Error(err error)
}

// SimpleProgress redraws a single text line with a bar, the count and an
// estimate of the time left.
type SimpleProgress struct {
	// Label prefixes the line. Default: "Progress"
	Label string

	// Unit names the counted items. Default: "items"
	Unit string

	mu      sync.Mutex
	total   int64
	current int64
	started time.Time
	writer  io.Writer
	now     func() time.Time
}

// NewProgressReporter creates a progress reporter writing to w, or
// os.Stdout when w is nil.
func NewProgressReporter(w io.Writer) ProgressReporter {
	if w == nil {
		w = os.Stdout
	}
	return &SimpleProgress{
		Label:  "Progress",
		Unit:   "items",
		writer: w,
		now:    time.Now,
	}
}

// Start resets the reporter for total items.
func (p *SimpleProgress) Start(total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.total = total
	p.current = 0
	p.started = p.now()
	p.render()
}

// Update records that current items are done.
func (p *SimpleProgress) Update(current int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = min(current, p.total)
	p.render()
}

// Finish marks every item done and ends the line.
func (p *SimpleProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = p.total
	p.render()
	fmt.Fprintln(p.writer)
}

// Error ends the line with err.
func (p *SimpleProgress) Error(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.writer, "\n✗ Error: %v\n", err)
}

func (p *SimpleProgress) render() {
	if p.total <= 0 {
		return
	}

	filled := int(p.current * barWidth / p.total)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	fmt.Fprintf(p.writer, "\r%s: [%s] %d/%d %s%s",
		p.Label, bar, p.current, p.total, p.Unit, p.eta())
}

// eta estimates the remaining time from the average pace so far.
func (p *SimpleProgress) eta() string {
	if p.current == 0 || p.current >= p.total {
		return ""
	}
	elapsed := p.now().Sub(p.started)
	remaining := time.Duration(int64(elapsed) / p.current * (p.total - p.current))
	return fmt.Sprintf(" (eta %s)", remaining.Round(time.Second))
}
