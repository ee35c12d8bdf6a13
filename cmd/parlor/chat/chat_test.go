package chatcmder

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parlor/api"
	"github.com/papercomputeco/parlor/pkg/agent"
	"github.com/papercomputeco/parlor/pkg/agent/echo"
	"github.com/papercomputeco/parlor/pkg/chat"
	"github.com/papercomputeco/parlor/pkg/llm"
	parlorlogger "github.com/papercomputeco/parlor/pkg/logger"
	"github.com/papercomputeco/parlor/pkg/session"
	"github.com/papercomputeco/parlor/pkg/sse"
	"github.com/papercomputeco/parlor/pkg/storage/inmemory"
)

var _ = Describe("NewChatCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := NewChatCmd()
		Expect(cmd.Use).To(Equal("chat"))
	})

	It("has --server-target flag with default value", func() {
		cmd := NewChatCmd()
		flag := cmd.Flags().Lookup("server-target")
		Expect(flag).NotTo(BeNil())
		Expect(flag.Shorthand).To(Equal("s"))
		Expect(flag.DefValue).To(Equal("http://localhost:8080"))
	})

	It("has --new and --raw flags", func() {
		cmd := NewChatCmd()
		Expect(cmd.Flags().Lookup("new")).NotTo(BeNil())
		Expect(cmd.Flags().Lookup("raw")).NotTo(BeNil())
	})
})

var _ = Describe("client", func() {
	var (
		server   *api.Server
		sessions *session.Manager
		upstream *httptest.Server
		c        *client
		ctx      context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		sessions = session.NewManager(inmemory.NewDriver(), parlorlogger.Nop())

		var err error
		server, err = api.NewServer(api.Config{
			Sessions: sessions,
			Agent:    echo.New(agent.Options{}),
			Logger:   parlorlogger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())

		upstream = httptest.NewServer(server.Handler())
		c = newClient(upstream.URL + "/")
	})

	AfterEach(func() {
		upstream.Close()
		_ = server.Shutdown()
		sessions.Close()
	})

	It("reports the agent", func() {
		out, err := c.agent(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Provider).To(Equal("echo"))
	})

	It("creates and fetches a session", func() {
		created, err := c.createSession(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(created.Current).To(Equal(chat.DefaultConversation))

		fetched, err := c.getSession(ctx, created.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(fetched.ID).To(Equal(created.ID))
	})

	It("surfaces API errors with their status", func() {
		_, err := c.getSession(ctx, "missing")
		Expect(err).To(HaveOccurred())
		Expect(isStatus(err, http.StatusNotFound)).To(BeTrue())
	})

	It("manages conversations", func() {
		created, err := c.createSession(ctx)
		Expect(err).NotTo(HaveOccurred())

		state, err := c.createConversation(ctx, created.ID, "Work notes")
		Expect(err).NotTo(HaveOccurred())
		Expect(state.Current).To(Equal("Work notes"))

		_, err = c.createConversation(ctx, created.ID, "Work notes")
		Expect(isStatus(err, http.StatusConflict)).To(BeTrue())

		state, err = c.selectConversation(ctx, created.ID, chat.DefaultConversation)
		Expect(err).NotTo(HaveOccurred())
		Expect(state.Current).To(Equal(chat.DefaultConversation))

		deleted, err := c.deleteConversation(ctx, created.ID, "Work notes")
		Expect(err).NotTo(HaveOccurred())
		Expect(deleted.Current).To(Equal(chat.DefaultConversation))
	})

	It("asks a question and reads the history", func() {
		created, err := c.createSession(ctx)
		Expect(err).NotTo(HaveOccurred())

		Expect(c.ask(ctx, created.ID, "hello")).To(Succeed())

		Eventually(func() ([][2]string, error) {
			return c.history(ctx, created.ID, chat.DefaultConversation)
		}).Should(Equal([][2]string{{"hello", echo.Reply("hello")}}))
	})

	It("lists models and selects one for the session", func() {
		created, err := c.createSession(ctx)
		Expect(err).NotTo(HaveOccurred())

		models, err := c.models(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(models.Default).To(Equal(echo.DefaultModel))
		Expect(models.Models).To(ContainElement(echo.DefaultModel))

		state, err := c.setModel(ctx, created.ID, "echo-2")
		Expect(err).NotTo(HaveOccurred())
		Expect(state.Model).To(Equal("echo-2"))

		state, err = c.getSession(ctx, created.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(state.Model).To(Equal("echo-2"))
	})

	It("lists templates and selects one as the draft", func() {
		created, err := c.createSession(ctx)
		Expect(err).NotTo(HaveOccurred())

		cards, err := c.templates(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(cards).To(HaveLen(4))

		Expect(c.selectTemplate(ctx, created.ID, cards[2].Title)).To(Succeed())

		state, err := c.getSession(ctx, created.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(state.Draft.Value).To(Equal(cards[2].Description))
	})
})

var _ = Describe("client.events", func() {
	It("decodes the state snapshot and change events until the stream ends", func() {
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			bw := bufio.NewWriter(w)
			sw := sse.NewWriter(bw)
			Expect(sw.Write(&sse.Event{Type: api.EventState, Data: `{"id":"s1","current":"Intros"}`})).To(Succeed())
			Expect(sw.Comment("keep-alive")).To(Succeed())
			Expect(sw.Write(&sse.Event{ID: "1", Type: "busy.changed", Data: `{"type":"busy.changed","seq":1,"busy":true,"current":"Intros"}`})).To(Succeed())
		}))
		defer upstream.Close()

		out := make(chan update, 4)
		var trace bytes.Buffer
		retry, err := newClient(upstream.URL).events(context.Background(), "s1", out, &trace)
		Expect(err).NotTo(HaveOccurred())
		Expect(retry).To(BeZero())
		Expect(out).To(HaveLen(2))

		first := <-out
		Expect(first.State).NotTo(BeNil())
		Expect(first.State.ID).To(Equal("s1"))

		second := <-out
		Expect(second.Event).NotTo(BeNil())
		Expect(second.Event.Type).To(Equal(session.EventBusyChanged))
		Expect(second.Event.Busy).To(BeTrue())

		Expect(trace.String()).To(ContainSubstring("event: busy.changed"))
	})

	It("fails on a non-200 response", func() {
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "nope", http.StatusNotFound)
		}))
		defer upstream.Close()

		_, err := newClient(upstream.URL).events(context.Background(), "s1", make(chan update, 1), nil)
		Expect(isStatus(err, http.StatusNotFound)).To(BeTrue())
	})
})

var _ = Describe("client.follow", func() {
	It("reconnects after the retry hint when the stream drops", func() {
		var connects atomic.Int32
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			n := connects.Add(1)
			w.Header().Set("Content-Type", "text/event-stream")
			sw := sse.NewWriter(bufio.NewWriter(w))
			Expect(sw.Retry(10)).To(Succeed())
			Expect(sw.Write(&sse.Event{Type: api.EventState, Data: fmt.Sprintf(`{"id":"s1","current":"c%d"}`, n)})).To(Succeed())
		}))
		defer upstream.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		out := make(chan update, 8)
		done := make(chan error, 1)
		go func() {
			done <- newClient(upstream.URL).follow(ctx, "s1", out, nil, parlorlogger.Nop())
		}()

		var first, second update
		Eventually(out).Should(Receive(&first))
		Eventually(out).Should(Receive(&second))
		Expect(first.State.Current).To(Equal("c1"))
		Expect(second.State.Current).To(Equal("c2"))

		cancel()
		Eventually(done).Should(Receive(MatchError(context.Canceled)))
	})

	It("gives up on an error response", func() {
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "gone", http.StatusNotFound)
		}))
		defer upstream.Close()

		err := newClient(upstream.URL).follow(context.Background(), "s1", make(chan update, 1), nil, parlorlogger.Nop())
		Expect(isStatus(err, http.StatusNotFound)).To(BeTrue())
	})
})

var _ = Describe("turnView", func() {
	var out *bytes.Buffer

	BeforeEach(func() {
		out = &bytes.Buffer{}
	})

	event := func(t session.EventType, conv, content string) update {
		msg := chat.NewMessage(llm.RoleAssistant, content)
		return update{Event: &session.Event{Type: t, Conversation: conv, Message: &msg}}
	}

	It("streams cumulative snapshots in raw mode", func() {
		view := newTurnView(out, "Intros", true, 80)

		done, err := view.handle(event(session.EventMessageUpdated, "Intros", "Hel"))
		Expect(done).To(BeFalse())
		Expect(err).NotTo(HaveOccurred())

		_, _ = view.handle(event(session.EventMessageUpdated, "Intros", "Hello"))
		done, err = view.handle(event(session.EventMessageFinalized, "Intros", "Hello there"))
		Expect(done).To(BeTrue())
		Expect(err).NotTo(HaveOccurred())

		Expect(out.String()).To(ContainSubstring("Hello there\n"))
		Expect(strings.Count(out.String(), "Hel")).To(Equal(1))
	})

	It("ignores events of other conversations", func() {
		view := newTurnView(out, "Intros", true, 80)
		done, _ := view.handle(event(session.EventMessageFinalized, "Work", "elsewhere"))
		Expect(done).To(BeFalse())
		Expect(out.String()).To(BeEmpty())
	})

	It("ends the turn with the error of a turn.error event", func() {
		view := newTurnView(out, "Intros", true, 80)
		done, err := view.handle(update{Event: &session.Event{
			Type:         session.EventTurnError,
			Conversation: "Intros",
			Error:        "agent stream failed",
		}})
		Expect(done).To(BeTrue())
		Expect(err).To(MatchError("agent stream failed"))
	})

	It("renders the final answer in markdown mode", func() {
		view := newTurnView(out, "Intros", false, 80)
		_, _ = view.handle(event(session.EventMessageUpdated, "Intros", "**bold"))
		done, err := view.handle(event(session.EventMessageFinalized, "Intros", "**bold** answer"))
		Expect(done).To(BeTrue())
		Expect(err).NotTo(HaveOccurred())
		Expect(out.String()).To(ContainSubstring("answer"))
	})
})
