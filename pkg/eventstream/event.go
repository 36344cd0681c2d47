package eventstream

import "time"

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeExchangePersisted is emitted after a conversation exchange is
	// durably recorded in the memory store.
	EventTypeExchangePersisted = "engram.exchange.persisted"
)

// ExchangePersistedEvent is a transport-neutral event payload for a persisted
// exchange.
type ExchangePersistedEvent struct {
	SchemaVersion int            `json:"schema_version"`
	EventType     string         `json:"event_type"`
	EventID       string         `json:"event_id"`
	EmittedAt     time.Time      `json:"emitted_at"`
	Source        EventSource    `json:"source"`
	Exchange      ExchangeRecord `json:"exchange"`
}

// EventSource identifies where the exchange originated.
type EventSource struct {
	Project  string `json:"project,omitempty"`
	Surface  string `json:"surface,omitempty"` // "cli" or "api"
	Provider string `json:"provider"`
}

// ExchangeRecord captures the persisted exchange for downstream consumers.
type ExchangeRecord struct {
	IdentityHandle   string    `json:"identity_handle"`
	UserName         string    `json:"user_name"`
	PersonaName      string    `json:"persona_name,omitempty"`
	UserMessage      string    `json:"user_message"`
	AssistantMessage string    `json:"assistant_message"`
	At               time.Time `json:"at"`
}
