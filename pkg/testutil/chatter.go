package testutil

import (
	"context"
	"strings"
	"time"

	"github.com/engramchat/engram/pkg/llm"
	"github.com/engramchat/engram/pkg/llm/provider"
)

// ScriptedChatter is a fake generation provider. It streams Fragments one by
// one, or fails with Err when set.
type ScriptedChatter struct {
	// Fragments are the chunks ChatStream emits, in order.
	Fragments []string

	// Err makes both Chat and ChatStream fail when non-nil.
	Err error

	// Requests records every request handled, in order.
	Requests []*llm.ChatRequest
}

func (s *ScriptedChatter) Name() string {
	return "scripted"
}

func (s *ScriptedChatter) Chat(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	s.Requests = append(s.Requests, req)

	if s.Err != nil {
		return nil, s.Err
	}

	return s.response(), nil
}

func (s *ScriptedChatter) ChatStream(ctx context.Context, req *llm.ChatRequest, handler provider.StreamHandler) (*llm.ChatResponse, error) {
	s.Requests = append(s.Requests, req)

	if s.Err != nil {
		return nil, s.Err
	}

	for _, frag := range s.Fragments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if handler != nil {
			err := handler(llm.StreamChunk{
				Model:     "scripted",
				CreatedAt: time.Now(),
				Message:   llm.NewMessage(llm.RoleAssistant, frag),
			})
			if err != nil {
				return nil, err
			}
		}
	}

	if handler != nil {
		err := handler(llm.StreamChunk{
			Model:   "scripted",
			Message: llm.NewMessage(llm.RoleAssistant, ""),
			Done:    true,
		})
		if err != nil {
			return nil, err
		}
	}

	return s.response(), nil
}

func (s *ScriptedChatter) response() *llm.ChatResponse {
	return &llm.ChatResponse{
		Model:      "scripted",
		CreatedAt:  time.Now(),
		Message:    llm.NewMessage(llm.RoleAssistant, strings.Join(s.Fragments, "")),
		Done:       true,
		StopReason: "stop",
	}
}

// Ensure ScriptedChatter implements provider.Chatter
var _ provider.Chatter = (*ScriptedChatter)(nil)
