// Package progress reports byte progress while large files are hashed or
// uploaded.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
)

// Callback receives progress updates.
type Callback func(op string, current, total int64)

// Noop is a no-op callback.
func Noop(op string, current, total int64) {}

// Reader counts bytes read through it and reports them to a callback.
type Reader struct {
	r       io.Reader
	op      string
	total   int64
	current atomic.Int64
	cb      Callback
}

// NewReader wraps r. total may be zero when the size is unknown.
func NewReader(r io.Reader, op string, total int64, cb Callback) *Reader {
	if cb == nil {
		cb = Noop
	}
	return &Reader{r: r, op: op, total: total, cb: cb}
}

func (p *Reader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.cb(p.op, p.current.Add(int64(n)), p.total)
	}
	return n, err
}

// Current returns the number of bytes read so far.
func (p *Reader) Current() int64 {
	return p.current.Load()
}

// Terminal draws a single-line progress bar.
type Terminal struct {
	writer      io.Writer
	lastLineLen atomic.Int64
	enabled     atomic.Bool
}

// NewTerminal creates a progress bar writing to stderr.
func NewTerminal(enabled bool) *Terminal {
	return NewTerminalTo(os.Stderr, enabled)
}

// NewTerminalTo creates a progress bar writing to w.
func NewTerminalTo(w io.Writer, enabled bool) *Terminal {
	t := &Terminal{writer: w}
	t.enabled.Store(enabled)
	return t
}

// Callback returns a Callback drawing to this terminal.
func (t *Terminal) Callback() Callback {
	return func(op string, current, total int64) {
		if !t.enabled.Load() {
			return
		}
		t.render(op, current, total)
	}
}

func (t *Terminal) render(op string, current, total int64) {
	clear := "\r"
	if lastLen := t.lastLineLen.Load(); lastLen > 0 {
		clear = "\r" + strings.Repeat(" ", int(lastLen)) + "\r"
	}

	var line string
	if total > 0 {
		if current > total {
			current = total
		}
		const barWidth = 30
		filled := int(barWidth * current / total)
		bar := strings.Repeat("=", filled) + strings.Repeat(" ", barWidth-filled)
		line = fmt.Sprintf("%s [%s] %s/%s (%.0f%%)", op, bar,
			FormatBytes(current), FormatBytes(total), float64(current)/float64(total)*100)
	} else {
		line = fmt.Sprintf("%s... %s", op, FormatBytes(current))
	}

	fmt.Fprint(t.writer, clear+line)
	t.lastLineLen.Store(int64(len(line)))
}

// Done ends the bar with a newline.
func (t *Terminal) Done() {
	if !t.enabled.Load() || t.lastLineLen.Load() == 0 {
		return
	}
	fmt.Fprintln(t.writer)
}

// SetEnabled enables or disables the progress bar.
func (t *Terminal) SetEnabled(enabled bool) {
	t.enabled.Store(enabled)
}

// IsEnabled returns whether the progress bar is enabled.
func (t *Terminal) IsEnabled() bool {
	return t.enabled.Load()
}

// FormatBytes renders n with a binary unit.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
