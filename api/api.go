package api

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/engramchat/engram/pkg/identity"
	"github.com/engramchat/engram/pkg/orchestrator"
	"github.com/engramchat/engram/pkg/persona"
)

// Server is the HTTP API server for the engram chat system.
type Server struct {
	config       Config
	resolver     *identity.Resolver
	personas     *persona.Store
	orchestrator *orchestrator.Orchestrator
	logger       *zap.Logger
	app          *fiber.App
}

// NewServer creates a new API server. The collaborators are injected to allow
// sharing with the CLI chat surface when both run in one process. personas may
// be nil when the memory store has no structured-query path; the persona
// endpoints then respond 503 instead of serving.
func NewServer(config Config, resolver *identity.Resolver, personas *persona.Store, orch *orchestrator.Orchestrator, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config:       config,
		resolver:     resolver,
		personas:     personas,
		orchestrator: orch,
		logger:       logger,
		app:          app,
	}

	app.Get("/ping", s.handlePing)
	app.Post("/chat", s.handleChat)
	app.Get("/personas", s.handleListPersonas)
	app.Post("/personas", s.handleCreatePersona)
	app.Get("/personas/:handle", s.handleGetPersona)

	return s
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		zap.String("listen", s.config.ListenAddr),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
