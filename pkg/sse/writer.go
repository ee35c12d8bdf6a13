package sse

import (
	"bufio"
	"fmt"
	"strings"
)

// Writer encodes events onto a buffered downstream connection. Every write
// is flushed so a client sees each event as soon as it is produced.
//
// ┌───────┐   ┌────────────────┐   ┌───────────────┐
// │ Event │──▶│ Writer.Write() │──▶│ bufio.Writer  │
// └───────┘   └────────────────┘   └───────────────┘
type Writer struct {
	w *bufio.Writer
}

// NewWriter returns a Writer that encodes onto w.
func NewWriter(w *bufio.Writer) *Writer {
	return &Writer{w: w}
}

// Write encodes a single event, terminated by a blank line. Multi-line data
// is split into one "data:" line per line, which Reader joins back with
// "\n".
func (w *Writer) Write(ev *Event) error {
	if ev.ID != "" {
		if _, err := fmt.Fprintf(w.w, "id: %s\n", singleLine(ev.ID)); err != nil {
			return err
		}
	}
	if ev.Type != "" {
		if _, err := fmt.Fprintf(w.w, "event: %s\n", singleLine(ev.Type)); err != nil {
			return err
		}
	}

	data := strings.ReplaceAll(ev.Data, "\r\n", "\n")
	for line := range strings.SplitSeq(data, "\n") {
		if _, err := fmt.Fprintf(w.w, "data: %s\n", line); err != nil {
			return err
		}
	}

	if _, err := w.w.WriteString("\n"); err != nil {
		return err
	}
	return w.w.Flush()
}

// Comment writes a comment line, typically as a keep-alive.
func (w *Writer) Comment(text string) error {
	if _, err := fmt.Fprintf(w.w, ": %s\n\n", singleLine(text)); err != nil {
		return err
	}
	return w.w.Flush()
}

// Retry tells the client how long to wait, in milliseconds, before
// reconnecting.
func (w *Writer) Retry(ms int) error {
	if _, err := fmt.Fprintf(w.w, "retry: %d\n\n", ms); err != nil {
		return err
	}
	return w.w.Flush()
}

// singleLine drops line breaks from single-line fields.
func singleLine(s string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}
