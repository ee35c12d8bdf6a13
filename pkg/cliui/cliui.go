// Package cliui holds the terminal styling shared by parlor commands: status
// marks, a step spinner and glamour markdown rendering.
package cliui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

const (
	green = lipgloss.Color("82")
	red   = lipgloss.Color("196")
	blue  = lipgloss.Color("39")
	white = lipgloss.Color("255")
	grey  = lipgloss.Color("245")
	dim   = lipgloss.Color("240")

	defaultWidth = 80
	frameRate    = 80 * time.Millisecond
)

var (
	SuccessMark = lipgloss.NewStyle().Foreground(green).Render("✓")
	FailMark    = lipgloss.NewStyle().Foreground(red).Render("✗")

	StepStyle  = lipgloss.NewStyle().Foreground(grey)
	KeyStyle   = lipgloss.NewStyle().Foreground(grey)
	ValueStyle = lipgloss.NewStyle().Foreground(white).Bold(true)
	DimStyle   = lipgloss.NewStyle().Foreground(dim)
	NameStyle  = lipgloss.NewStyle().Foreground(blue).Bold(true)
	ErrorStyle = lipgloss.NewStyle().Foreground(red)

	frameStyle = lipgloss.NewStyle().Foreground(green)
	frames     = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}
)

// Step runs fn while a spinner animates next to msg on w. The spinner line is
// then overwritten with a mark for fn's result and how long it took.
func Step(w io.Writer, msg string, fn func() error) error {
	stop := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		spin(w, msg, stop)
	}()

	start := time.Now()
	err := fn()
	elapsed := time.Since(start)

	close(stop)
	wg.Wait()

	fmt.Fprintf(w, "\r  %s %s %s\n", Mark(err), msg, StepStyle.Render("("+FormatDuration(elapsed)+")"))
	return err
}

func spin(w io.Writer, msg string, stop <-chan struct{}) {
	ticker := time.NewTicker(frameRate)
	defer ticker.Stop()

	for i := 0; ; i++ {
		fmt.Fprintf(w, "\r  %s %s", frameStyle.Render(frames[i%len(frames)]), msg)
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

// Mark is FailMark for a non-nil error and SuccessMark otherwise.
func Mark(err error) string {
	if err != nil {
		return FailMark
	}
	return SuccessMark
}

// FormatDuration renders milliseconds below a second ("12ms") and tenths of
// a second above ("3.2s").
func FormatDuration(d time.Duration) string {
	if d >= time.Second {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dms", d.Milliseconds())
}

// RenderMarkdown renders content for an 80 column terminal.
func RenderMarkdown(content string) (string, error) {
	return RenderMarkdownWidth(content, defaultWidth)
}

// RenderMarkdownWidth renders content with glamour, wrapped at width. On
// failure the raw content is returned with the error.
func RenderMarkdownWidth(content string, width int) (string, error) {
	if width <= 0 {
		width = defaultWidth
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
