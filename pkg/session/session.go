// Package session tracks the state of one conversational session: who the
// user is, which identity they resolved to, the current thread, and the
// persona in effect.
package session

import (
	"github.com/google/uuid"

	"github.com/engramchat/engram/pkg/persona"
)

// Session is the mutable state of an ongoing conversation. The thread handle
// changes on Reset; the identity handle is stable for the user.
type Session struct {
	UserName       string
	IdentityHandle string
	ThreadHandle   string
	Persona        *persona.Persona
}

// NewSession starts a session for a resolved user with a fresh thread.
func NewSession(userName, identityHandle string) *Session {
	return &Session{
		UserName:       userName,
		IdentityHandle: identityHandle,
		ThreadHandle:   uuid.NewString(),
	}
}

// Reset starts a new thread, keeping the user, identity, and persona.
func (s *Session) Reset() {
	s.ThreadHandle = uuid.NewString()
}

// PersonaName returns the active persona's full name, or the empty string
// when no persona is set.
func (s *Session) PersonaName() string {
	if s.Persona == nil {
		return ""
	}

	return s.Persona.FullName
}
