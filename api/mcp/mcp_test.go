package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	parlorlogger "github.com/papercomputeco/parlor/pkg/logger"
	"github.com/papercomputeco/parlor/pkg/session"
	"github.com/papercomputeco/parlor/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/parlor/pkg/utils/test"
)

var _ = Describe("MCP Server", func() {
	var (
		server   *Server
		sessions *session.Manager
		driver   *inmemory.Driver
		ctx      context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = inmemory.NewDriver()
		sessions = session.NewManager(driver, parlorlogger.Nop())
		DeferCleanup(sessions.Close)

		var err error
		server, err = NewServer(Config{
			Sessions: sessions,
			Logger:   parlorlogger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("NewServer", func() {
		It("returns an error when the session manager is nil", func() {
			_, err := NewServer(Config{Logger: parlorlogger.Nop()})
			Expect(err).To(MatchError(ContainSubstring("session manager is required")))
		})

		It("returns an error when logger is nil", func() {
			_, err := NewServer(Config{Sessions: sessions})
			Expect(err).To(MatchError(ContainSubstring("logger is required")))
		})

		It("returns an HTTP handler", func() {
			Expect(server.Handler()).NotTo(BeNil())
			Expect(server.MCPServer()).NotTo(BeNil())
		})
	})

	Describe("over an in-memory transport", func() {
		It("advertises both tools and answers calls", func() {
			Expect(driver.Save(ctx, testutils.NewTestSession("s1"))).To(Succeed())

			clientTransport, serverTransport := mcp.NewInMemoryTransports()
			ss, err := server.MCPServer().Connect(ctx, serverTransport, nil)
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(ss.Close)

			client := mcp.NewClient(&mcp.Implementation{Name: "test", Version: "v0"}, nil)
			cs, err := client.Connect(ctx, clientTransport, nil)
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(cs.Close)

			tools, err := cs.ListTools(ctx, nil)
			Expect(err).NotTo(HaveOccurred())
			names := make([]string, 0, len(tools.Tools))
			for _, t := range tools.Tools {
				names = append(names, t.Name)
			}
			Expect(names).To(ConsistOf("list_conversations", "get_history"))

			res, err := cs.CallTool(ctx, &mcp.CallToolParams{
				Name:      "list_conversations",
				Arguments: map[string]any{"session_id": "s1"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeFalse())
			Expect(res.StructuredContent).To(HaveKeyWithValue("current", "Work"))
		})
	})

	Describe("list_conversations", func() {
		It("lists a persisted session's conversations", func() {
			Expect(driver.Save(ctx, testutils.NewTestSession("s1"))).To(Succeed())

			res, out, err := server.handleListConversations(ctx, nil, ListConversationsInput{SessionID: "s1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res).To(BeNil())
			Expect(out.Conversations).To(Equal([]string{"Intros", "Work"}))
			Expect(out.Current).To(Equal("Work"))
			Expect(out.Busy).To(BeFalse())
		})

		It("reports unknown sessions as tool errors", func() {
			res, _, err := server.handleListConversations(ctx, nil, ListConversationsInput{SessionID: "missing"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeTrue())
		})
	})

	Describe("get_history", func() {
		BeforeEach(func() {
			Expect(driver.Save(ctx, testutils.NewTestSession("s1"))).To(Succeed())
		})

		It("returns the pairs of a named conversation", func() {
			res, out, err := server.handleGetHistory(ctx, nil, GetHistoryInput{SessionID: "s1", Conversation: "Intros"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res).To(BeNil())
			Expect(out.Conversation).To(Equal("Intros"))
			Expect(out.Count).To(Equal(1))
			Expect(out.Pairs[0].Question).NotTo(BeEmpty())
			Expect(out.Pairs[0].Answer).NotTo(BeEmpty())
		})

		It("defaults to the current conversation", func() {
			_, out, err := server.handleGetHistory(ctx, nil, GetHistoryInput{SessionID: "s1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Conversation).To(Equal("Work"))
			Expect(out.Pairs).To(BeEmpty())
		})

		It("reports unknown conversations as tool errors", func() {
			res, _, err := server.handleGetHistory(ctx, nil, GetHistoryInput{SessionID: "s1", Conversation: "Nope"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeTrue())
		})
	})
})
