package api

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/engramchat/engram/pkg/llm"
	"github.com/engramchat/engram/pkg/persona"
)

// InvalidPersonaResponse echoes the rejected input alongside the reasons so
// clients can show the user exactly what to fix.
type InvalidPersonaResponse struct {
	Error   string        `json:"error"`
	Reasons []string      `json:"reasons"`
	Input   persona.Input `json:"input"`
}

// personasUnavailable is the response for persona endpoints when the
// configured memory store has no structured-query path (store.provider =
// inmemory), which leaves the server without a persona store.
func (s *Server) personasUnavailable(c *fiber.Ctx) error {
	return c.Status(fiber.StatusServiceUnavailable).JSON(llm.ErrorResponse{
		Error: "personas need the graph store (store.provider = graph)",
	})
}

// handleCreatePersona validates and stores a new persona.
func (s *Server) handleCreatePersona(c *fiber.Ctx) error {
	if s.personas == nil {
		return s.personasUnavailable(c)
	}

	var input persona.Input
	if err := json.Unmarshal(c.Body(), &input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "invalid request body"})
	}

	p, err := s.personas.Create(c.Context(), input)
	if err != nil {
		var invalid *persona.InvalidInputError
		if errors.As(err, &invalid) {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(InvalidPersonaResponse{
				Error:   "invalid persona input",
				Reasons: invalid.Reasons,
				Input:   invalid.Input,
			})
		}

		s.logger.Error("persona creation failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to create persona"})
	}

	return c.Status(fiber.StatusCreated).JSON(p)
}

// handleListPersonas returns all personas, newest first.
func (s *Server) handleListPersonas(c *fiber.Ctx) error {
	if s.personas == nil {
		return s.personasUnavailable(c)
	}

	personas, err := s.personas.List(c.Context())
	if err != nil {
		s.logger.Error("listing personas failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to list personas"})
	}

	return c.JSON(map[string]any{
		"count":    len(personas),
		"personas": personas,
	})
}

// handleGetPersona returns a single persona by handle.
func (s *Server) handleGetPersona(c *fiber.Ctx) error {
	if s.personas == nil {
		return s.personasUnavailable(c)
	}

	handle := c.Params("handle")

	p, err := s.personas.Get(c.Context(), handle)
	if err != nil {
		var notFound persona.NotFoundError
		if errors.As(err, &notFound) {
			return c.Status(fiber.StatusNotFound).JSON(llm.ErrorResponse{Error: err.Error()})
		}

		s.logger.Error("loading persona failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to load persona"})
	}

	return c.JSON(p)
}
