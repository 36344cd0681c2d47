// Package chatlog provides an asynchronous worker pool for durably persisting
// completed chat exchanges to the memory store and announcing them on the
// event stream.
//
// The pool decouples persistence from the turn's streaming hot path so the
// user sees the reply without waiting on storage.
package chatlog

import (
	"fmt"
	"time"

	"github.com/engramchat/engram/pkg/memstore"
)

// DefaultAssistantLabel names the assistant side of an exchange when no
// persona is active.
const DefaultAssistantLabel = "AI friend"

// Exchange is one completed user/assistant round trip.
type Exchange struct {
	UserName         string
	IdentityHandle   string
	PersonaName      string
	UserMessage      string
	AssistantMessage string
	At               time.Time
}

// AssistantLabel returns the name the assistant spoke as.
func (e Exchange) AssistantLabel() string {
	if e.PersonaName != "" {
		return e.PersonaName
	}

	return DefaultAssistantLabel
}

// ToEpisode renders the exchange as a memory episode. The body carries both
// sides as speaker-labeled lines so entity extraction picks up the names.
func (e Exchange) ToEpisode() memstore.Episode {
	body := fmt.Sprintf("%s: %s\n%s: %s",
		e.UserName, e.UserMessage,
		e.AssistantLabel(), e.AssistantMessage,
	)

	return memstore.Episode{
		Name:              "Chatbot Response",
		Body:              body,
		Source:            memstore.SourceMessage,
		SourceDescription: "Chatbot",
		At:                e.At,
	}
}
