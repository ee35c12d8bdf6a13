package turn_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parlor/pkg/agent"
	"github.com/papercomputeco/parlor/pkg/chat"
	"github.com/papercomputeco/parlor/pkg/llm"
	"github.com/papercomputeco/parlor/pkg/session"
	"github.com/papercomputeco/parlor/pkg/turn"
	testutils "github.com/papercomputeco/parlor/pkg/utils/test"
)

type recorder struct {
	mu      sync.Mutex
	records []turn.Record
}

func (r *recorder) Record(rec turn.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

func (r *recorder) all() []turn.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]turn.Record(nil), r.records...)
}

var _ = Describe("Controller", func() {
	var (
		ctx   context.Context
		sess  *session.Session
		agt   *testutils.ScriptedAgent
		rec   *recorder
		ctrl  *turn.Controller
		build func()
	)

	BeforeEach(func() {
		ctx = context.Background()
		sess = session.New("s1")
		agt = &testutils.ScriptedAgent{}
		rec = &recorder{}
		build = func() {
			ctrl = turn.New(sess, agt, turn.WithRecorder(rec))
		}
		build()
	})

	AfterEach(func() {
		sess.Close()
	})

	messages := func() []chat.Message {
		msgs, err := sess.Messages("")
		Expect(err).NotTo(HaveOccurred())
		return msgs
	}

	// tail is the assistant content, empty until the turn has begun.
	tail := func() string {
		msgs := messages()
		if len(msgs) < 2 {
			return ""
		}
		return msgs[1].Content
	}

	It("answers the example question", func() {
		agt.Chunks = []string{"4"}
		agt.Result = &agent.Result{Content: "The answer is 4.", Model: "gpt-x"}

		reply, err := ctrl.Submit(ctx, "What is 2+2?")
		Expect(err).NotTo(HaveOccurred())
		Expect(reply.Content).To(Equal("The answer is 4."))

		msgs := messages()
		Expect(msgs).To(HaveLen(2))
		Expect(msgs[0].Role).To(Equal(llm.RoleUser))
		Expect(msgs[0].Content).To(Equal("What is 2+2?"))
		Expect(msgs[1].Role).To(Equal(llm.RoleAssistant))
		Expect(msgs[1].Content).To(Equal("The answer is 4."))
		Expect(msgs[1].Model).To(Equal("gpt-x"))
		Expect(sess.Busy()).To(BeFalse())
		Expect(ctrl.State()).To(Equal(turn.StateIdle))
	})

	DescribeTable("appends exactly two messages regardless of the chunk count",
		func(chunks []string) {
			agt.Chunks = chunks
			agt.Result = &agent.Result{Content: "final"}

			_, err := ctrl.Submit(ctx, "question")
			Expect(err).NotTo(HaveOccurred())

			msgs := messages()
			Expect(testutils.Roles(msgs)).To(Equal([]string{llm.RoleUser, llm.RoleAssistant}))
			Expect(msgs[1].Content).To(Equal("final"))
		},
		Entry("zero chunks", nil),
		Entry("one chunk", []string{"f"}),
		Entry("many chunks", []string{"f", "fi", "fin", "fina", "final"}),
	)

	DescribeTable("skips blank questions",
		func(question string) {
			events, cancel := sess.Subscribe()
			defer cancel()

			reply, err := ctrl.Submit(ctx, question)
			Expect(err).NotTo(HaveOccurred())
			Expect(reply).To(BeNil())
			Expect(messages()).To(BeEmpty())
			Expect(sess.Busy()).To(BeFalse())
			Expect(agt.Requests()).To(BeEmpty())
			Consistently(events, 50*time.Millisecond).ShouldNot(Receive())
		},
		Entry("empty", ""),
		Entry("whitespace", "  \t\n "),
	)

	It("assigns each chunk to the tail message instead of appending", func() {
		agt.Chunks = []string{"The", "The answer", "The answer is 4."}
		agt.Result = &agent.Result{Content: "The answer is 4.", Model: "gpt-x"}

		var observed []string
		agt.BeforeNext = func(call int) {
			msgs := messages()
			Expect(msgs).To(HaveLen(2))
			last := msgs[len(msgs)-1]
			Expect(last.Role).To(Equal(llm.RoleAssistant))
			Expect(sess.Busy()).To(BeTrue())
			if call > 1 {
				Expect(last.Content).To(Equal(agt.Chunks[call-2]))
			} else {
				Expect(last.Content).To(BeEmpty())
			}
			observed = append(observed, last.Content)
		}

		_, err := ctrl.Submit(ctx, "What is 2+2?")
		Expect(err).NotTo(HaveOccurred())
		Expect(observed).To(Equal([]string{"", "The", "The answer", "The answer is 4."}))
	})

	It("populates the finalized message from the agent result", func() {
		ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		cost := &llm.Cost{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15, TotalCost: 0.001}
		calls := []llm.ToolCall{{ID: "c1", ToolName: "calculator", Args: map[string]any{"expr": "2+2"}, Result: "4"}}
		agt.Result = &agent.Result{
			Content:      "4",
			Model:        "gpt-x",
			Timestamp:    ts,
			ResponseTime: 1.5,
			Cost:         cost,
			ToolCalls:    calls,
			Name:         "Assistant",
			Metadata:     map[string]any{"finish_reason": "stop"},
		}

		_, err := ctrl.Submit(ctx, "What is 2+2?")
		Expect(err).NotTo(HaveOccurred())

		last := messages()[1]
		Expect(last.Model).To(Equal("gpt-x"))
		Expect(*last.Timestamp).To(Equal(ts))
		Expect(*last.ResponseTime).To(Equal(1.5))
		Expect(last.CostInfo).To(Equal(cost))
		Expect(last.ToolCalls).To(Equal(calls))
		Expect(last.Name).To(Equal("Assistant"))
		Expect(last.Metadata).To(HaveKeyWithValue("finish_reason", "stop"))
	})

	Describe("model selection", func() {
		It("asks for the server model when the session chose none", func() {
			ctrl = turn.New(sess, agt, turn.WithModel("gpt-4o-mini"))
			_, err := ctrl.Submit(ctx, "one")
			Expect(err).NotTo(HaveOccurred())
			Expect(agt.Requests()).To(ConsistOf(HaveField("Model", "gpt-4o-mini")))
		})

		It("prefers the session's selected model", func() {
			ctrl = turn.New(sess, agt, turn.WithModel("gpt-4o-mini"))
			Expect(sess.SetModel("gpt-4.1")).To(Succeed())

			_, err := ctrl.Submit(ctx, "one")
			Expect(err).NotTo(HaveOccurred())

			Expect(sess.SetModel("")).To(Succeed())
			_, err = ctrl.Submit(ctx, "two")
			Expect(err).NotTo(HaveOccurred())

			reqs := agt.Requests()
			Expect(reqs).To(HaveLen(2))
			Expect(reqs[0].Model).To(Equal("gpt-4.1"))
			Expect(reqs[1].Model).To(Equal("gpt-4o-mini"))
		})
	})

	It("sends the prior history including the new question but not the placeholder", func() {
		agt.Result = &agent.Result{Content: "first"}
		_, err := ctrl.Submit(ctx, "one")
		Expect(err).NotTo(HaveOccurred())

		agt.Result = &agent.Result{Content: "second"}
		_, err = ctrl.Submit(ctx, "two")
		Expect(err).NotTo(HaveOccurred())

		reqs := agt.Requests()
		Expect(reqs).To(HaveLen(2))
		Expect(reqs[1].Prompt).To(Equal("two"))

		history := reqs[1].History
		Expect(history).To(HaveLen(3))
		Expect(history[0].GetText()).To(Equal("one"))
		Expect(history[1].GetText()).To(Equal("first"))
		Expect(history[2].Role).To(Equal(llm.RoleUser))
		Expect(history[2].GetText()).To(Equal("two"))
	})

	It("rejects a second submission while a turn is in flight", func() {
		agt.Chunks = []string{"partial"}
		agt.Block = make(chan struct{})
		agt.Result = &agent.Result{Content: "done"}

		done := make(chan error, 1)
		go func() {
			_, err := ctrl.Submit(ctx, "first")
			done <- err
		}()

		Eventually(ctrl.State).Should(Equal(turn.StateStreaming))
		Eventually(tail).Should(Equal("partial"))

		_, err := turn.New(sess, agt).Submit(ctx, "second")
		Expect(err).To(MatchError(chat.ErrTurnInProgress))
		Expect(messages()).To(HaveLen(2))

		close(agt.Block)
		Eventually(done).Should(Receive(BeNil()))
		Expect(messages()[1].Content).To(Equal("done"))
	})

	Context("when the agent fails", func() {
		It("keeps the partial content, clears busy and surfaces the error", func() {
			agt.Chunks = []string{"par", "partial"}
			agt.StreamErr = agent.ProviderError("scripted", "model overloaded")

			events, cancel := sess.Subscribe()
			defer cancel()

			_, err := ctrl.Submit(ctx, "question")

			var streamErr *chat.AgentStreamError
			Expect(errors.As(err, &streamErr)).To(BeTrue())
			Expect(streamErr.Conversation).To(Equal("Intros"))
			Expect(agent.KindOf(err)).To(Equal(agent.KindProvider))

			msgs := messages()
			Expect(msgs).To(HaveLen(2))
			Expect(msgs[0].Content).To(Equal("question"))
			Expect(msgs[1].Content).To(Equal("partial"))
			Expect(msgs[1].Finalized()).To(BeFalse())
			Expect(sess.Busy()).To(BeFalse())
			Expect(ctrl.State()).To(Equal(turn.StateErrored))

			var errEvent session.Event
			Eventually(events).Should(Receive(&errEvent, HaveField("Type", session.EventTurnError)))
			Expect(errEvent.Error).To(ContainSubstring("model overloaded"))

			records := rec.all()
			Expect(records).To(HaveLen(1))
			Expect(records[0].Outcome).To(Equal(turn.OutcomeFailed))
			Expect(records[0].Chunks).To(Equal(2))
			Expect(records[0].Err).To(MatchError(ContainSubstring("model overloaded")))
		})

		It("aborts when the stream cannot be opened", func() {
			agt.OpenErr = agent.ConnectionError("scripted", errors.New("connection refused"))

			_, err := ctrl.Submit(ctx, "question")
			Expect(agent.KindOf(err)).To(Equal(agent.KindConnection))
			Expect(rec.all()).To(ConsistOf(HaveField("Outcome", turn.OutcomeFailed)))

			msgs := messages()
			Expect(msgs).To(HaveLen(2))
			Expect(msgs[1].Content).To(BeEmpty())
			Expect(sess.Busy()).To(BeFalse())
		})

		It("aborts when the final result fails", func() {
			agt.Chunks = []string{"almost"}
			agt.ResultErr = agent.ProviderError("scripted", "truncated")

			_, err := ctrl.Submit(ctx, "question")
			Expect(err).To(MatchError(ContainSubstring("truncated")))
			Expect(messages()[1].Content).To(Equal("almost"))
			Expect(sess.Busy()).To(BeFalse())
		})

		It("accepts the next question after a failure", func() {
			agt.OpenErr = errors.New("down")
			_, err := ctrl.Submit(ctx, "one")
			Expect(err).To(HaveOccurred())

			agt.OpenErr = nil
			agt.Result = &agent.Result{Content: "up"}
			_, err = ctrl.Submit(ctx, "two")
			Expect(err).NotTo(HaveOccurred())
			Expect(messages()).To(HaveLen(4))
			Expect(ctrl.State()).To(Equal(turn.StateIdle))
		})
	})

	Context("when the session is torn down mid-stream", func() {
		It("cancels the agent call and writes nothing further", func() {
			agt.Chunks = []string{"partial"}
			agt.Block = make(chan struct{})

			done := make(chan error, 1)
			go func() {
				_, err := ctrl.Submit(ctx, "question")
				done <- err
			}()

			Eventually(tail).Should(Equal("partial"))
			sess.Close()

			var err error
			Eventually(done).Should(Receive(&err))
			var streamErr *chat.AgentStreamError
			Expect(errors.As(err, &streamErr)).To(BeTrue())
			Expect(agent.KindOf(err)).To(Equal(agent.KindCancelled))

			msgs := messages()
			Expect(msgs).To(HaveLen(2))
			Expect(msgs[1].Content).To(Equal("partial"))
			Expect(agt.Streams()[0].Closed()).To(BeTrue())

			records := rec.all()
			Expect(records).To(HaveLen(1))
			Expect(records[0].Outcome).To(Equal(turn.OutcomeCancelled))
			Expect(records[0].Snapshot).To(BeNil())
		})
	})

	Context("when the caller cancels", func() {
		It("aborts the turn and leaves the session usable", func() {
			agt.Block = make(chan struct{})
			cctx, cancel := context.WithCancel(ctx)

			done := make(chan error, 1)
			go func() {
				_, err := ctrl.Submit(cctx, "question")
				done <- err
			}()

			Eventually(ctrl.State).Should(Equal(turn.StateStreaming))
			cancel()

			var err error
			Eventually(done).Should(Receive(&err))
			Expect(agent.KindOf(err)).To(Equal(agent.KindCancelled))
			Expect(sess.Busy()).To(BeFalse())
			Expect(sess.Closed()).To(BeFalse())
			Expect(rec.all()[0].Outcome).To(Equal(turn.OutcomeCancelled))
		})
	})

	It("records completed turns with the session snapshot", func() {
		agt.Result = &agent.Result{Content: "ok", Model: "gpt-x", Name: "Assistant"}

		_, err := ctrl.Submit(ctx, "question")
		Expect(err).NotTo(HaveOccurred())

		records := rec.all()
		Expect(records).To(HaveLen(1))
		r := records[0]
		Expect(r.Outcome).To(Equal(turn.OutcomeCompleted))
		Expect(r.SessionID).To(Equal("s1"))
		Expect(r.Conversation).To(Equal("Intros"))
		Expect(r.Provider).To(Equal("scripted"))
		Expect(r.AgentName).To(Equal("Assistant"))
		Expect(r.Reply.Content).To(Equal("ok"))
		Expect(r.Snapshot).NotTo(BeNil())
		Expect(r.Snapshot.Conversations[0].Messages).To(HaveLen(2))
	})

	It("quotes a shortened question in its log lines", func() {
		var buf bytes.Buffer
		ctrl = turn.New(sess, agt, turn.WithLogger(slog.New(slog.NewJSONHandler(&buf, nil))))

		question := strings.Repeat("why is the sky blue ", 10)
		_, err := ctrl.Submit(ctx, question)
		Expect(err).NotTo(HaveOccurred())

		var line map[string]any
		Expect(json.Unmarshal(buf.Bytes(), &line)).To(Succeed())
		Expect(line).To(HaveKeyWithValue("msg", "turn completed"))
		Expect(line["question"]).To(HavePrefix("why is the sky blue"))
		Expect(line["question"]).To(HaveSuffix("…"))
		Expect(len([]rune(line["question"].(string)))).To(BeNumerically("<", len(question)))
	})
})
