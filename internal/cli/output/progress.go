package output

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// ProgressBar tracks items sent to the server on a single terminal line.
type ProgressBar struct {
	w     io.Writer
	title string
	total int
	width int
	now   func() time.Time

	mu      sync.Mutex
	start   time.Time
	done    int
	failed  int
	lastLen int
}

// NewProgressBar creates a bar for total items. A total of zero or less
// shows a bare counter.
func NewProgressBar(w io.Writer, title string, total int) *ProgressBar {
	p := &ProgressBar{w: w, title: title, total: total, width: 30, now: time.Now}
	p.start = p.now()
	return p
}

// Add records n more items, failed of which were rejected.
func (p *ProgressBar) Add(n, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done += n
	p.failed += failed
	p.draw()
}

// Finish draws the final state and ends the line.
func (p *ProgressBar) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.draw()
	fmt.Fprintln(p.w)
}

func (p *ProgressBar) draw() {
	var b strings.Builder
	b.WriteString(p.title)

	if p.total > 0 {
		frac := min(float64(p.done)/float64(p.total), 1)
		n := int(frac * float64(p.width))
		fmt.Fprintf(&b, " [%s%s] %3.0f%% (%d/%d", strings.Repeat("#", n), strings.Repeat(".", p.width-n), frac*100, p.done, p.total)
	} else {
		fmt.Fprintf(&b, " %d", p.done)
	}
	if p.failed > 0 {
		if p.total > 0 {
			fmt.Fprintf(&b, ", %d failed", p.failed)
		} else {
			fmt.Fprintf(&b, " (%d failed)", p.failed)
		}
	}
	if p.total > 0 {
		b.WriteByte(')')
	}
	if secs := p.now().Sub(p.start).Seconds(); secs >= 1 {
		fmt.Fprintf(&b, " %.0f/s", float64(p.done)/secs)
	}

	line := b.String()
	pad := max(p.lastLen-len(line), 0)
	p.lastLen = len(line)
	fmt.Fprintf(p.w, "\r%s%s", line, strings.Repeat(" ", pad))
}
