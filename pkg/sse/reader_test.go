package sse

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// collect reads every event until the stream ends.
func collect(r *Reader) []Event {
	var events []Event
	for {
		ev, err := r.Next()
		if errors.Is(err, io.EOF) {
			return events
		}
		Expect(err).NotTo(HaveOccurred())
		events = append(events, *ev)
	}
}

var _ = Describe("Reader", func() {
	DescribeTable("decoding",
		func(input string, expected []Event) {
			Expect(collect(NewReader(strings.NewReader(input)))).To(Equal(expected))
		},
		Entry("a session state snapshot",
			"event: state\ndata: {\"id\":\"s1\"}\n\n",
			[]Event{{Type: "state", Data: `{"id":"s1"}`}}),
		Entry("numbered session events",
			"id: 1\nevent: busy.changed\ndata: {\"busy\":true}\n\nid: 2\nevent: message.updated\ndata: {\"seq\":2}\n\n",
			[]Event{
				{ID: "1", Type: "busy.changed", Data: `{"busy":true}`},
				{ID: "2", Type: "message.updated", Data: `{"seq":2}`},
			}),
		Entry("multi-line data joined with newlines",
			"data: first\ndata: second\ndata: third\n\n",
			[]Event{{Data: "first\nsecond\nthird"}}),
		Entry("keep-alive comments between events",
			": keep-alive\n\ndata: a\n\n: keep-alive\n\n",
			[]Event{{Data: "a"}}),
		Entry("a value without the optional space",
			"data:tight\n\n",
			[]Event{{Data: "tight"}}),
		Entry("an empty data field",
			"data:\n\n",
			[]Event{{Data: ""}}),
		Entry("a field name without a colon",
			"data\n\n",
			[]Event{{Data: ""}}),
		Entry("a final block missing its blank line",
			"data: unterminated",
			[]Event{{Data: "unterminated"}}),
		Entry("leading blank lines",
			"\n\n\ndata: hello\n\n",
			[]Event{{Data: "hello"}}),
		Entry("unknown fields",
			"foo: bar\ndata: hello\n\n",
			[]Event{{Data: "hello"}}),
		Entry("only blank lines", "\n\n\n", nil),
		Entry("an empty body", "", nil),
	)

	It("returns io.EOF once the stream is exhausted", func() {
		r := NewReader(strings.NewReader("data: once\n\n"))

		_, err := r.Next()
		Expect(err).NotTo(HaveOccurred())

		_, err = r.Next()
		Expect(err).To(MatchError(io.EOF))
		_, err = r.Next()
		Expect(err).To(MatchError(io.EOF))
	})

	It("tracks the retry hint without dispatching an event", func() {
		r := NewReader(strings.NewReader("retry: 2000\n\nevent: state\ndata: {}\n\n"))
		Expect(r.Retry()).To(BeZero())

		ev, err := r.Next()
		Expect(err).NotTo(HaveOccurred())
		Expect(ev.Type).To(Equal("state"))
		Expect(r.Retry()).To(Equal(2 * time.Second))
	})

	It("ignores malformed retry hints", func() {
		r := NewReader(strings.NewReader("retry: soon\nretry: -5\ndata: x\n\n"))
		Expect(collect(r)).To(HaveLen(1))
		Expect(r.Retry()).To(BeZero())
	})

	It("remembers the last event id", func() {
		r := NewReader(strings.NewReader("id: 4\ndata: a\n\ndata: b\n\nid: 9\ndata: c\n\n"))
		Expect(collect(r)).To(HaveLen(3))
		Expect(r.LastID()).To(Equal("9"))
	})

	It("copies the raw stream to the trace writer", func() {
		input := "retry: 2000\n\n: keep-alive\n\nid: 1\nevent: turn.error\ndata: {}\n\n"
		trace := &bytes.Buffer{}

		r := NewReader(strings.NewReader(input), WithTrace(trace))
		Expect(collect(r)).To(HaveLen(1))
		Expect(trace.String()).To(Equal(input))
	})

	It("fails on lines longer than the buffer", func() {
		long := "data: " + strings.Repeat("x", maxLineSize+1) + "\n\n"
		_, err := NewReader(strings.NewReader(long)).Next()
		Expect(err).To(HaveOccurred())
		Expect(err).NotTo(MatchError(io.EOF))
	})
})
