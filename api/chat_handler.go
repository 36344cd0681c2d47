package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/engramchat/engram/pkg/identity"
	"github.com/engramchat/engram/pkg/llm"
	"github.com/engramchat/engram/pkg/orchestrator"
	"github.com/engramchat/engram/pkg/persona"
	"github.com/engramchat/engram/pkg/session"
)

// ChatRequest is the wire shape for a chat turn.
type ChatRequest struct {
	// UserName identifies the person chatting.
	UserName string `json:"user_name"`

	// Persona optionally names the persona to answer as.
	Persona string `json:"persona,omitempty"`

	// Messages is the conversation history, newest last.
	Messages []llm.Message `json:"messages"`

	// Stream requests newline-delimited JSON chunks instead of a single
	// response object.
	Stream bool `json:"stream,omitempty"`
}

// ChatResponse is the non-streaming reply shape, and the final chunk of a
// streamed reply.
type ChatResponse struct {
	Message llm.Message `json:"message"`
	Done    bool        `json:"done"`
	Facts   []string    `json:"facts,omitempty"`
	Persona string      `json:"persona,omitempty"`
}

// streamChunk is one NDJSON line of a streamed reply. Content carries the
// delta since the previous chunk.
type streamChunk struct {
	Message llm.Message `json:"message"`
	Done    bool        `json:"done"`
}

// handleChat resolves the caller's identity, runs one turn, and returns the
// reply either whole or as an NDJSON stream.
func (s *Server) handleChat(c *fiber.Ctx) error {
	var req ChatRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "invalid request body"})
	}

	ctx := c.Context()

	handle, err := s.resolver.ResolveOrCreate(ctx, req.UserName)
	if err != nil {
		return s.chatError(c, err)
	}

	sess := session.NewSession(strings.TrimSpace(req.UserName), handle)

	if req.Persona != "" {
		if s.personas == nil {
			return s.personasUnavailable(c)
		}

		p, err := s.personas.Find(ctx, req.Persona)
		if err != nil {
			return s.chatError(c, err)
		}
		sess.Persona = p
	}

	turn := orchestrator.Turn{
		Session:  sess,
		Messages: req.Messages,
	}

	if req.Stream {
		return s.streamTurn(c, turn)
	}

	result, err := s.orchestrator.RunTurn(ctx, turn, nil)
	if err != nil {
		return s.chatError(c, err)
	}

	return c.JSON(s.response(turn, result))
}

// streamTurn runs the turn in a goroutine that writes NDJSON chunks to a
// pipe. The pipe reader becomes the response body with unknown size, which
// triggers chunked transfer encoding.
func (s *Server) streamTurn(c *fiber.Ctx, turn orchestrator.Turn) error {
	pr, pw := io.Pipe()

	go s.writeTurnChunks(pw, turn)

	c.Set(fiber.HeaderContentType, "application/x-ndjson")
	c.Context().Response.SetBodyStream(pr, -1)

	return nil
}

func (s *Server) writeTurnChunks(pw *io.PipeWriter, turn orchestrator.Turn) {
	defer pw.Close()

	// The request context cannot be used here (fasthttp recycles its
	// RequestCtx once the handler returns), so the turn runs on its own
	// context, cancelled when the client goes away so in-flight generation
	// stops and no exchange record is written for the abandoned turn.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	enc := json.NewEncoder(pw)

	var sent int
	result, err := s.orchestrator.RunTurn(ctx, turn, func(partial string) {
		delta := partial[sent:]
		if delta == "" {
			return
		}
		sent = len(partial)

		encErr := enc.Encode(streamChunk{
			Message: llm.NewMessage(llm.RoleAssistant, delta),
		})
		if encErr != nil {
			s.logger.Debug("client went away mid-stream", zap.Error(encErr))
			cancel()
		}
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}

		s.logger.Error("streamed turn failed", zap.Error(err))
		_ = enc.Encode(llm.ErrorResponse{Error: orchestrator.UserFacingMessage(err)})
		return
	}

	final := s.response(turn, result)
	final.Message.Content = ""
	if err := enc.Encode(final); err != nil {
		s.logger.Debug("client went away before final chunk", zap.Error(err))
	}
}

func (s *Server) response(turn orchestrator.Turn, result *orchestrator.Result) ChatResponse {
	facts := make([]string, 0, len(result.Facts))
	for _, f := range result.Facts {
		facts = append(facts, f.Content)
	}

	return ChatResponse{
		Message: llm.NewMessage(llm.RoleAssistant, result.Reply),
		Done:    true,
		Facts:   facts,
		Persona: turn.Session.PersonaName(),
	}
}

// chatError maps turn errors to HTTP statuses with user-facing messages.
func (s *Server) chatError(c *fiber.Ctx, err error) error {
	var personaNotFound persona.NotFoundError

	switch {
	case errors.Is(err, identity.ErrEmptyUserName):
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: err.Error()})
	case errors.As(err, &personaNotFound):
		return c.Status(fiber.StatusNotFound).JSON(llm.ErrorResponse{Error: err.Error()})
	case errors.Is(err, orchestrator.ErrGeneration):
		return c.Status(fiber.StatusBadGateway).JSON(llm.ErrorResponse{Error: orchestrator.UserFacingMessage(err)})
	default:
		s.logger.Error("chat turn failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: orchestrator.UserFacingMessage(err)})
	}
}
