// Package display implementation for terminal-based output.
package display

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

const clearLine = "\x1b[1A\x1b[2K"

// consoleDisplay handles terminal output. One status line is maintained per
// active task; log lines are inserted above it.
type consoleDisplay struct {
	mu      sync.Mutex
	out     io.Writer
	theme   *Theme
	verbose bool
	active  *consoleTask
}

// NewConsole creates a Display that writes to standard error.
func NewConsole() Display {
	return &consoleDisplay{
		out:   os.Stderr,
		theme: DefaultTheme(),
	}
}

// NewWriterDisplay creates a Display that writes to the provided io.Writer.
func NewWriterDisplay(w io.Writer) Display {
	return &consoleDisplay{
		out:   w,
		theme: DefaultTheme(),
	}
}

func (d *consoleDisplay) SetVerbose(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.verbose = v
}

func (d *consoleDisplay) Print(msg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprint(d.out, msg)
}

func (d *consoleDisplay) Log(msg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.verbose {
		return
	}
	fmt.Fprintln(d.out, d.theme.Dim.Render(msg))
}

func (d *consoleDisplay) StartTask(name string) Task {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := &consoleTask{d: d, name: name}
	d.active = t
	fmt.Fprintf(d.out, "[%s]\n", d.theme.Cyan.Render(name))
	return t
}

func (d *consoleDisplay) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active = nil
}

// consoleTask renders as a single status line that is redrawn in place.
type consoleTask struct {
	d       *consoleDisplay
	name    string
	stage   string
	target  string
	percent int
	status  string
}

func (t *consoleTask) statusLine() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s]", t.d.theme.Cyan.Render(t.name))
	if t.stage != "" {
		fmt.Fprintf(&sb, " %s %s %s", t.d.theme.Bold.Render(t.stage), t.d.theme.Arrow, t.target)
	}
	if t.status != "" || t.percent > 0 {
		fmt.Fprintf(&sb, " %d%% %s", t.percent, t.status)
	}
	return sb.String()
}

func (t *consoleTask) redraw() {
	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	fmt.Fprint(t.d.out, clearLine)
	fmt.Fprintln(t.d.out, t.statusLine())
}

func (t *consoleTask) SetStage(name string, target string) {
	t.stage = name
	t.target = target
	t.redraw()
}

func (t *consoleTask) Progress(percent int, message string) {
	t.percent = percent
	t.status = message
	t.redraw()
}

func (t *consoleTask) Log(msg string) {
	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	// Replace the status line with the log message, then reprint it below.
	fmt.Fprint(t.d.out, clearLine)
	fmt.Fprintln(t.d.out, msg)
	fmt.Fprintln(t.d.out, t.statusLine())
}

func (t *consoleTask) Done() {
	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	fmt.Fprint(t.d.out, clearLine)
	fmt.Fprintf(t.d.out, "[%s] %s\n", t.d.theme.Cyan.Render(t.name), t.d.theme.Green.Render("Done"))
	if t.d.active == t {
		t.d.active = nil
	}
}
