package sse

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"
)

const maxLineSize = 1024 * 1024

// Reader decodes events from a stream body. Every raw line it consumes is
// copied to the trace writer when one is set, so a debug client can show the
// exact bytes the server sent.
type Reader struct {
	scanner *bufio.Scanner
	trace   io.Writer

	event   Event
	pending bool

	retry  time.Duration
	lastID string
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithTrace copies the raw stream to w.
func WithTrace(w io.Writer) ReaderOption {
	return func(r *Reader) {
		r.trace = w
	}
}

// NewReader returns a Reader decoding src.
func NewReader(src io.Reader, opts ...ReaderOption) *Reader {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	r := &Reader{scanner: scanner}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Next blocks until a complete event has been read. It returns io.EOF once
// the stream is exhausted. Comments and blocks carrying only a retry hint
// are consumed without being returned.
func (r *Reader) Next() (*Event, error) {
	for r.scanner.Scan() {
		line := r.scanner.Text()

		if r.trace != nil {
			if _, err := io.WriteString(r.trace, line+"\n"); err != nil {
				return nil, err
			}
		}

		if line == "" {
			if ev := r.dispatch(); ev != nil {
				return ev, nil
			}
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		r.field(line)
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}

	// A final block without its blank line still counts.
	if ev := r.dispatch(); ev != nil {
		return ev, nil
	}
	return nil, io.EOF
}

// Retry is the most recent reconnection delay the server asked for, or zero.
func (r *Reader) Retry() time.Duration {
	return r.retry
}

// LastID is the id of the most recent event that carried one.
func (r *Reader) LastID() string {
	return r.lastID
}

func (r *Reader) field(line string) {
	name, value, _ := strings.Cut(line, ":")
	value = strings.TrimPrefix(value, " ")

	switch name {
	case "data":
		if r.pending && r.event.Data != "" {
			r.event.Data += "\n"
		}
		r.event.Data += value
		r.pending = true
	case "event":
		r.event.Type = value
		r.pending = true
	case "id":
		// Ids containing NUL are ignored.
		if !strings.ContainsRune(value, 0) {
			r.event.ID = value
			r.lastID = value
			r.pending = true
		}
	case "retry":
		if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
			r.retry = time.Duration(ms) * time.Millisecond
		}
	}
}

func (r *Reader) dispatch() *Event {
	if !r.pending {
		return nil
	}
	ev := r.event
	r.event = Event{}
	r.pending = false
	return &ev
}
