// Package sse encodes and decodes text/event-stream bodies. The server side
// writes session events with Writer; the chat client reads them back with
// Reader.
//
// Format reference:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

// Event is one dispatched block of the stream.
type Event struct {
	// Type comes from the "event:" field. Empty means "message".
	Type string

	// Data holds every "data:" line of the block joined with "\n".
	Data string

	// ID comes from the "id:" field.
	ID string
}
