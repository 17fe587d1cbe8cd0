// Package cliui holds the terminal output helpers shared by presence
// commands: marks and styles, a progress step, aligned key/value blocks, the
// draft table and markdown preview.
package cliui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	SuccessMark = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Render("✓")
	FailMark    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("✗")

	HeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("255"))
	KeyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	NameStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("117"))
	ValueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	DimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	WarnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("117"))
)

const spinnerInterval = 100 * time.Millisecond

var spinnerFrames = []rune("⠋⠙⠹⠸⠼⠴⠦⠧⠇⠏")

// Mark returns SuccessMark for a nil error and FailMark otherwise.
func Mark(err error) string {
	if err != nil {
		return FailMark
	}
	return SuccessMark
}

// Step runs fn and reports it as one line: msg, a mark and the elapsed time.
// On a terminal a spinner stands in for the mark until fn returns.
func Step(w io.Writer, msg string, fn func() error) error {
	start := time.Now()
	stop := func() {}
	if IsTerminal(w) {
		stop = spin(w, msg)
	}

	err := fn()
	stop()

	fmt.Fprintf(w, "  %s %s %s\n", Mark(err), msg, DimStyle.Render("("+FormatDuration(time.Since(start))+")"))
	return err
}

// spin draws frames over the current line until the returned func is
// called. The func clears the line and waits for the last frame.
func spin(w io.Writer, msg string) func() {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(spinnerInterval)
		defer t.Stop()
		for i := 0; ; i++ {
			fmt.Fprintf(w, "\r  %s %s", spinnerStyle.Render(string(spinnerFrames[i%len(spinnerFrames)])), msg)
			select {
			case <-done:
				fmt.Fprint(w, "\r\033[K")
				return
			case <-t.C:
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

// KV is one labelled value in a key/value block.
type KV struct {
	Key   string
	Value string
}

// KeyValues writes kvs as an indented block with the values aligned.
func KeyValues(w io.Writer, kvs []KV) {
	width := 0
	for _, kv := range kvs {
		width = max(width, len(kv.Key)+1)
	}
	for _, kv := range kvs {
		label := kv.Key + ":" + strings.Repeat(" ", width-len(kv.Key)-1)
		fmt.Fprintf(w, "  %s %s\n", KeyStyle.Render(label), NameStyle.Render(kv.Value))
	}
}

// FormatDuration renders d for a result line: "12ms", "3.2s" or "2m05s".
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		d = d.Round(time.Second)
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// TerminalWidth returns the column count of w, or fallback when w is not a
// terminal.
func TerminalWidth(w io.Writer, fallback int) int {
	f, ok := w.(*os.File)
	if !ok {
		return fallback
	}
	if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
		return width
	}
	return fallback
}

// RenderMarkdown renders a draft body or detail page with glamour, wrapped
// at width. On failure the source is returned with the error.
func RenderMarkdown(content string, width int) (string, error) {
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(width))
	if err != nil {
		return content, err
	}
	out, err := r.Render(content)
	if err != nil {
		return content, err
	}
	return out, nil
}
