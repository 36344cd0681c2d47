// Package service wires the configured backends into a running engram stack.
// Both the CLI chat surface and the API server build their collaborators
// through here so configuration is interpreted in exactly one place.
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/engramchat/engram/pkg/chatlog"
	"github.com/engramchat/engram/pkg/config"
	"github.com/engramchat/engram/pkg/embeddings"
	ollamaembed "github.com/engramchat/engram/pkg/embeddings/ollama"
	"github.com/engramchat/engram/pkg/eventstream"
	"github.com/engramchat/engram/pkg/eventstream/kafka"
	"github.com/engramchat/engram/pkg/eventstream/nop"
	"github.com/engramchat/engram/pkg/identity"
	"github.com/engramchat/engram/pkg/llm/provider"
	providerutils "github.com/engramchat/engram/pkg/llm/provider/utils"
	"github.com/engramchat/engram/pkg/memstore"
	"github.com/engramchat/engram/pkg/memstore/graph"
	"github.com/engramchat/engram/pkg/memstore/inmemory"
	"github.com/engramchat/engram/pkg/orchestrator"
	"github.com/engramchat/engram/pkg/persona"
	"github.com/engramchat/engram/pkg/vector"
	vectorutils "github.com/engramchat/engram/pkg/vector/utils"
)

// Stack holds every wired component plus the resources they own.
type Stack struct {
	Store        memstore.Store
	Personas     *persona.Store
	Resolver     *identity.Resolver
	Chatter      provider.Chatter
	Publisher    eventstream.Publisher
	Recorder     *chatlog.Recorder
	Orchestrator *orchestrator.Orchestrator

	vectors  vector.Driver
	embedder embeddings.Embedder
	logger   *zap.Logger
}

// BuildStack constructs the full stack from configuration. Call Close when
// done; it drains the recorder before releasing backends.
func BuildStack(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Stack, error) {
	s := &Stack{logger: logger}

	if err := s.build(ctx, cfg); err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

func (s *Stack) build(ctx context.Context, cfg *config.Config) error {
	var err error

	switch cfg.Store.Provider {
	case "inmemory":
		s.Store = inmemory.NewStore()
	case "graph", "":
		s.vectors, err = vectorutils.NewVectorDriver(&vectorutils.NewVectorDriverOpts{
			ProviderType: cfg.Store.VectorProvider,
			Path:         cfg.Store.VectorPath,
			Dimensions:   cfg.Embedding.Dimensions,
			Logger:       s.logger,
		})
		if err != nil {
			return fmt.Errorf("creating vector driver: %w", err)
		}

		s.embedder, err = ollamaembed.NewEmbedder(ollamaembed.EmbedderConfig{
			BaseURL: cfg.Embedding.Target,
			Model:   cfg.Embedding.Model,
		})
		if err != nil {
			return fmt.Errorf("creating embedder: %w", err)
		}

		s.Store, err = graph.NewStore(graph.Config{
			DBPath: cfg.Store.SQLitePath,
		}, s.vectors, s.embedder, s.logger)
		if err != nil {
			return fmt.Errorf("creating graph store: %w", err)
		}
	default:
		return fmt.Errorf("unsupported store provider: %s", cfg.Store.Provider)
	}

	if querier, ok := s.Store.(memstore.Querier); ok {
		s.Personas, err = persona.NewStore(ctx, querier, s.logger)
		if err != nil {
			return fmt.Errorf("creating persona store: %w", err)
		}
	}

	s.Resolver, err = identity.NewResolver(s.Store, s.logger)
	if err != nil {
		return fmt.Errorf("creating identity resolver: %w", err)
	}

	s.Chatter, err = providerutils.NewChatter(&providerutils.NewChatterOpts{
		ProviderType: cfg.LLM.Provider,
		TargetURL:    cfg.LLM.Target,
	})
	if err != nil {
		return fmt.Errorf("creating llm provider: %w", err)
	}

	switch cfg.Events.Provider {
	case "kafka":
		s.Publisher, err = kafka.NewPublisher(kafka.Config{
			Brokers: cfg.Events.Brokers,
			Topic:   cfg.Events.Topic,
		}, s.logger)
		if err != nil {
			return fmt.Errorf("creating kafka publisher: %w", err)
		}
	case "nop", "":
		s.Publisher = nop.NewPublisher()
	default:
		return fmt.Errorf("unsupported events provider: %s", cfg.Events.Provider)
	}

	s.Recorder, err = chatlog.NewRecorder(&chatlog.Config{
		Store:     s.Store,
		Publisher: s.Publisher,
		Logger:    s.logger,
	})
	if err != nil {
		return fmt.Errorf("creating recorder: %w", err)
	}

	s.Orchestrator = orchestrator.New(orchestrator.Config{
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		BasePrompt:  cfg.Chat.BasePrompt,
		MaxFacts:    cfg.Chat.MaxFacts,
	}, s.Store, s.Chatter, s.Recorder, s.logger)

	return nil
}

// Close drains pending exchange writes, then releases every owned backend.
func (s *Stack) Close() {
	if s.Recorder != nil {
		s.Recorder.Close()
	}
	if s.Resolver != nil {
		s.Resolver.Close()
	}
	if s.Publisher != nil {
		if err := s.Publisher.Close(); err != nil {
			s.logger.Warn("closing publisher", zap.Error(err))
		}
	}
	if s.Store != nil {
		if err := s.Store.Close(); err != nil {
			s.logger.Warn("closing store", zap.Error(err))
		}
	}
	if s.vectors != nil {
		if err := s.vectors.Close(); err != nil {
			s.logger.Warn("closing vector driver", zap.Error(err))
		}
	}
	if s.embedder != nil {
		if err := s.embedder.Close(); err != nil {
			s.logger.Warn("closing embedder", zap.Error(err))
		}
	}
}
