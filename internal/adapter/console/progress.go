// Package console renders run progress and the end-of-run summary for a
// terminal.
package console

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

const barWidth = 80

// Progress draws a single-line bar, redrawn in place after each region.
// A nil *Progress is a no-op.
type Progress struct {
	mu    sync.Mutex
	w     io.Writer
	total int
	done  int
}

// NewProgress creates a bar writing to w.
func NewProgress(w io.Writer) *Progress {
	return &Progress{w: w}
}

// Start resets the bar for total regions.
func (p *Progress) Start(total int) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total = total
	p.done = 0
	p.draw()
}

// Step records one more merged region.
func (p *Progress) Step(_ string) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done < p.total {
		p.done++
	}
	p.draw()
}

// Finish terminates the bar line.
func (p *Progress) Finish() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w)
}

func (p *Progress) draw() {
	filled := 0
	if p.total > 0 {
		filled = p.done * barWidth / p.total
	}
	fmt.Fprintf(p.w, "\r|%-*s| %d/%d", barWidth, strings.Repeat("=", filled), p.done, p.total)
}
