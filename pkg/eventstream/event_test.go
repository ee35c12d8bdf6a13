package eventstream_test

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parlor/pkg/chat"
	"github.com/papercomputeco/parlor/pkg/eventstream"
	"github.com/papercomputeco/parlor/pkg/llm"
)

var _ = Describe("Event", func() {
	It("marshals TurnRecordedEvent with expected top-level keys", func() {
		now := time.Unix(1735689600, 0).UTC()
		reply := chat.NewMessage(llm.RoleAssistant, "The answer is 4.")
		reply.Model = "gpt-x"

		event := eventstream.NewTurnRecordedEvent(
			eventstream.EventSource{AgentName: "Assistant", Provider: "openai"},
			eventstream.SessionMeta{ID: "s1", Conversation: "Intros"},
			eventstream.TurnMeta{
				Question:    "What is 2+2?",
				Outcome:     eventstream.OutcomeCompleted,
				StartedAt:   now.Add(-2 * time.Second),
				CompletedAt: now,
				DurationMs:  2000,
				Chunks:      1,
			},
			&reply,
		)

		payload, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(payload, &got)).To(Succeed())

		Expect(got).To(HaveKey("schema_version"))
		Expect(got).To(HaveKeyWithValue("event_type", eventstream.EventTypeTurnRecorded))
		Expect(got["event_id"]).To(HavePrefix("evt_"))
		Expect(got).To(HaveKey("emitted_at"))
		Expect(got).To(HaveKey("source"))
		Expect(got).To(HaveKey("session"))
		Expect(got).To(HaveKey("turn"))
		Expect(got["reply"]).To(HaveKeyWithValue("model", "gpt-x"))
	})

	It("omits the reply of a failed turn", func() {
		event := eventstream.NewTurnRecordedEvent(
			eventstream.EventSource{Provider: "ollama"},
			eventstream.SessionMeta{ID: "s1", Conversation: "Intros"},
			eventstream.TurnMeta{Outcome: eventstream.OutcomeFailed, Error: "boom"},
			nil,
		)
		payload, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(payload)).NotTo(ContainSubstring(`"reply"`))
	})

	It("defines stable event constants", func() {
		Expect(eventstream.SchemaVersionV1).To(BeNumerically(">", 0))
		Expect(eventstream.EventTypeTurnRecorded).To(Equal("parlor.turn.recorded"))
	})

	It("provides ErrNilTurnEvent for nil payload validation", func() {
		Expect(eventstream.ErrNilTurnEvent).NotTo(BeNil())
		Expect(eventstream.ErrNilTurnEvent).To(MatchError("nil turn event"))
	})
})
