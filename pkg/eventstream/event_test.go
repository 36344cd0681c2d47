package eventstream_test

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/engramchat/engram/pkg/eventstream"
)

var _ = Describe("Event", func() {
	It("marshals ExchangePersistedEvent with expected top-level keys", func() {
		now := time.Unix(1735689600, 0).UTC()
		event := eventstream.ExchangePersistedEvent{
			SchemaVersion: eventstream.SchemaVersionV1,
			EventType:     eventstream.EventTypeExchangePersisted,
			EventID:       "evt_123",
			EmittedAt:     now,
			Source: eventstream.EventSource{
				Project:  "engram",
				Surface:  "cli",
				Provider: "ollama",
			},
			Exchange: eventstream.ExchangeRecord{
				IdentityHandle:   "b7f9",
				UserName:         "Sam",
				PersonaName:      "Maya Chen",
				UserMessage:      "hello",
				AssistantMessage: "hi Sam",
				At:               now,
			},
		}

		payload, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(payload, &got)).To(Succeed())

		Expect(got).To(HaveKey("schema_version"))
		Expect(got).To(HaveKey("event_type"))
		Expect(got).To(HaveKey("event_id"))
		Expect(got).To(HaveKey("emitted_at"))
		Expect(got).To(HaveKey("source"))
		Expect(got).To(HaveKey("exchange"))
	})

	It("defines stable event constants", func() {
		Expect(eventstream.SchemaVersionV1).To(BeNumerically(">", 0))
		Expect(eventstream.EventTypeExchangePersisted).To(Equal("engram.exchange.persisted"))
	})

	It("provides ErrNilExchangeEvent for nil payload validation", func() {
		Expect(eventstream.ErrNilExchangeEvent).NotTo(BeNil())
		Expect(eventstream.ErrNilExchangeEvent).To(MatchError("nil exchange event"))
	})
})
