// Package orchestrator runs a single conversational turn end to end: retrieve
// facts for the active identity, assemble the grounding prompt, stream the
// reply, and hand the completed exchange off for persistence.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/engramchat/engram/pkg/chatlog"
	"github.com/engramchat/engram/pkg/llm"
	"github.com/engramchat/engram/pkg/llm/provider"
	"github.com/engramchat/engram/pkg/memstore"
	"github.com/engramchat/engram/pkg/prompt"
	"github.com/engramchat/engram/pkg/session"
)

// ExchangeSink receives completed exchanges for persistence. Enqueue is the
// asynchronous fast path; RecordSync is the fallback when the queue is full.
type ExchangeSink interface {
	Enqueue(chatlog.Exchange) bool
	RecordSync(ctx context.Context, ex chatlog.Exchange) error
}

// Config carries the generation and retrieval settings for turns.
type Config struct {
	Model       string
	Temperature float64
	MaxTokens   int
	BasePrompt  string
	MaxFacts    int
}

// Turn is one request to generate a reply.
type Turn struct {
	// Session identifies the user and carries the active persona.
	Session *session.Session

	// Messages is the running conversation history, newest last. The last
	// user message anchors retrieval.
	Messages []llm.Message

	// RequirePersona fails the turn before retrieval when the session has
	// no active persona.
	RequirePersona bool
}

// Result is the outcome of a successful turn.
type Result struct {
	// Reply is the full assistant reply.
	Reply string

	// Facts are the memory facts that grounded the reply.
	Facts []memstore.Fact

	// GroundingPrompt is the assembled system prompt, kept for inspection.
	GroundingPrompt string
}

// Orchestrator coordinates memory, the model, and the exchange sink.
type Orchestrator struct {
	config  Config
	store   memstore.Store
	chatter provider.Chatter
	sink    ExchangeSink
	logger  *zap.Logger
}

// New creates an orchestrator. The store and sink may be nil-free fakes in
// tests; all four collaborators are required.
func New(config Config, store memstore.Store, chatter provider.Chatter, sink ExchangeSink, logger *zap.Logger) *Orchestrator {
	if config.MaxFacts <= 0 {
		config.MaxFacts = memstore.DefaultSearchLimit
	}

	return &Orchestrator{
		config:  config,
		store:   store,
		chatter: chatter,
		sink:    sink,
		logger:  logger,
	}
}

// RunTurn executes one turn. onPartial, when non-nil, is invoked with the
// growing reply after every streamed chunk; each call carries the entire
// reply so far, never a fragment. Nothing is persisted unless generation
// completes.
func (o *Orchestrator) RunTurn(ctx context.Context, turn Turn, onPartial func(string)) (*Result, error) {
	if turn.RequirePersona && turn.Session.Persona == nil {
		return nil, ErrNoActivePersona
	}

	// A history with no user-authored message yields an empty anchor text,
	// which is a valid degenerate retrieval input, not an error.
	userText := llm.LastUserText(turn.Messages)

	facts := o.retrieve(ctx, turn, userText)

	systemPrompt := prompt.Assemble(o.config.BasePrompt, turn.Session.Persona, facts, turn.Session.UserName)

	reply, err := o.generate(ctx, systemPrompt, turn.Messages, onPartial)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	o.persist(ctx, turn, userText, reply)

	return &Result{
		Reply:           reply,
		Facts:           facts,
		GroundingPrompt: systemPrompt,
	}, nil
}

// retrieve searches memory for facts relevant to the user's latest message.
// Retrieval failures degrade to an empty fact list; the turn proceeds
// ungrounded rather than failing.
func (o *Orchestrator) retrieve(ctx context.Context, turn Turn, userText string) []memstore.Fact {
	query := o.searchQuery(turn.Session, userText)

	facts, err := o.store.Search(ctx, query,
		memstore.WithCenter(turn.Session.IdentityHandle),
		memstore.WithLimit(o.config.MaxFacts),
	)
	if err != nil {
		o.logger.Warn("fact retrieval failed, proceeding without facts",
			zap.String("identity", turn.Session.IdentityHandle),
			zap.Error(err),
		)
		return nil
	}

	return facts
}

// searchQuery frames the user's message for retrieval. Naming both speakers
// keeps persona details from colliding with user facts in the search.
func (o *Orchestrator) searchQuery(s *session.Session, userText string) string {
	if s.Persona != nil {
		return fmt.Sprintf("%s talking to %s: %s", s.UserName, s.Persona.FullName, userText)
	}

	return fmt.Sprintf("%s: %s", s.UserName, userText)
}

// generate streams the reply, accumulating chunks and reporting the growing
// partial after each one.
func (o *Orchestrator) generate(ctx context.Context, systemPrompt string, messages []llm.Message, onPartial func(string)) (string, error) {
	req := &llm.ChatRequest{
		Model:    o.config.Model,
		Messages: messages,
		System:   systemPrompt,
	}
	if o.config.Temperature != 0 {
		temp := o.config.Temperature
		req.Temperature = &temp
	}
	if o.config.MaxTokens > 0 {
		maxTokens := o.config.MaxTokens
		req.MaxTokens = &maxTokens
	}

	var reply strings.Builder
	_, err := o.chatter.ChatStream(ctx, req, func(chunk llm.StreamChunk) error {
		if chunk.Message.Content == "" {
			return nil
		}

		reply.WriteString(chunk.Message.Content)
		if onPartial != nil {
			onPartial(reply.String())
		}

		return nil
	})
	if err != nil {
		return "", err
	}

	return reply.String(), nil
}

// persist hands the completed exchange to the sink, falling back to a
// synchronous write when the queue is full. Persistence failure never fails
// the turn; the reply was already produced.
func (o *Orchestrator) persist(ctx context.Context, turn Turn, userText, reply string) {
	ex := chatlog.Exchange{
		UserName:         turn.Session.UserName,
		IdentityHandle:   turn.Session.IdentityHandle,
		PersonaName:      turn.Session.PersonaName(),
		UserMessage:      userText,
		AssistantMessage: reply,
		At:               time.Now(),
	}

	if o.sink.Enqueue(ex) {
		return
	}

	if err := o.sink.RecordSync(ctx, ex); err != nil {
		o.logger.Error("persisting exchange failed",
			zap.String("identity", ex.IdentityHandle),
			zap.Error(err),
		)
	}
}
