package output

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// ProgressBar renders a single-line progress bar. Transfers drive it
// with byte counts; restores drive it with percent and a stage label.
type ProgressBar struct {
	w     io.Writer
	title string
	width int

	mu      sync.Mutex
	current int64
	total   int64
	label   string
}

// NewProgressBar creates a bar that renders to w under the given title.
func NewProgressBar(w io.Writer, title string) *ProgressBar {
	return &ProgressBar{w: w, title: title, width: 30}
}

// SetTotal sets the expected byte total.
func (p *ProgressBar) SetTotal(total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total = total
}

// Add advances the byte count and redraws.
func (p *ProgressBar) Add(n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current += n
	p.render()
}

// UpdateStage moves the bar to percent complete with a stage label in
// place of the byte counters.
func (p *ProgressBar) UpdateStage(percent int, stage string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = int64(percent)
	p.total = 100
	p.label = stage
	p.render()
}

// Finish fills the bar and moves off the progress line.
func (p *ProgressBar) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = p.total
	p.render()
	fmt.Fprintln(p.w)
}

// Stop moves off the progress line without claiming completion.
func (p *ProgressBar) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w)
}

// Reader wraps r so that reads advance the bar.
func (p *ProgressBar) Reader(r io.Reader) io.Reader {
	return &progressReader{r: r, bar: p}
}

func (p *ProgressBar) render() {
	if p.total <= 0 {
		fmt.Fprintf(p.w, "\r%s %s", p.title, formatBytes(p.current))
		return
	}

	ratio := float64(p.current) / float64(p.total)
	if ratio > 1 {
		ratio = 1
	}
	filled := int(float64(p.width) * ratio)
	bar := strings.Repeat("=", filled) + strings.Repeat("-", p.width-filled)

	if p.label != "" {
		fmt.Fprintf(p.w, "\r%s [%s] %3.0f%% %-16s", p.title, bar, ratio*100, p.label)
		return
	}
	fmt.Fprintf(p.w, "\r%s [%s] %3.0f%% (%s/%s)",
		p.title, bar, ratio*100, formatBytes(p.current), formatBytes(p.total))
}

type progressReader struct {
	r   io.Reader
	bar *ProgressBar
}

func (pr *progressReader) Read(b []byte) (int, error) {
	n, err := pr.r.Read(b)
	if n > 0 {
		pr.bar.Add(int64(n))
	}
	return n, err
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
