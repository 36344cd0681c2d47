package chatlog

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/engramchat/engram/pkg/eventstream"
	"github.com/engramchat/engram/pkg/memstore"
)

var (
	defaultNumWorkers uint = 3
	defaultQueueSize  uint = 256
)

// Config is the configuration options for the recorder.
type Config struct {
	// Store is the memory store exchanges are persisted to.
	Store memstore.Store

	// Publisher announces persisted exchanges. Optional; when nil nothing
	// is published.
	Publisher eventstream.Publisher

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered exchange channel.
	QueueSize uint

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// Recorder persists exchanges asynchronously via a worker pool.
type Recorder struct {
	config *Config
	queue  chan Exchange
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewRecorder creates a recorder and starts its worker goroutines.
func NewRecorder(c *Config) (*Recorder, error) {
	if c.Store == nil {
		return nil, fmt.Errorf("recorder requires a store")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	r := &Recorder{
		config: c,
		queue:  make(chan Exchange, c.QueueSize),
		logger: c.Logger,
	}

	r.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go r.worker(i)
	}

	return r, nil
}

// Enqueue submits an exchange for asynchronous persistence.
// Returns true if enqueued, false if the queue is full and the caller must
// fall back to RecordSync.
func (r *Recorder) Enqueue(ex Exchange) bool {
	select {
	case r.queue <- ex:
		r.logger.Debug("exchange queued",
			zap.String("identity", ex.IdentityHandle),
		)
		return true
	default:
		r.logger.Warn("exchange not queued, queue full",
			zap.String("identity", ex.IdentityHandle),
		)
		return false
	}
}

// RecordSync persists an exchange on the calling goroutine. Used as the
// fallback when the queue is full so no exchange is ever dropped.
func (r *Recorder) RecordSync(ctx context.Context, ex Exchange) error {
	return r.record(ctx, ex)
}

// Close signals workers to stop and waits for in-flight exchanges to drain.
// Call this during graceful shutdown after the chat surface has stopped.
func (r *Recorder) Close() {
	close(r.queue)
	r.wg.Wait()
}

// worker is the inner worker thread that continuously pulls exchanges off the
// queue.
func (r *Recorder) worker(id uint) {
	defer r.wg.Done()
	r.logger.Debug("recorder worker started", zap.Uint("worker_id", id))

	for ex := range r.queue {
		if err := r.record(context.Background(), ex); err != nil {
			r.logger.Error("async exchange persistence failed",
				zap.String("identity", ex.IdentityHandle),
				zap.Error(err),
			)
		}
	}

	r.logger.Debug("recorder worker stopped", zap.Uint("worker_id", id))
}

// record stores the exchange as an episode, then publishes the persisted
// event. Publish failures are logged, not returned; the episode is already
// durable at that point.
func (r *Recorder) record(ctx context.Context, ex Exchange) error {
	if ex.At.IsZero() {
		ex.At = time.Now()
	}

	if err := r.config.Store.AddEpisode(ctx, ex.ToEpisode()); err != nil {
		return fmt.Errorf("storing exchange episode: %w", err)
	}

	r.logger.Info("exchange persisted",
		zap.String("identity", ex.IdentityHandle),
		zap.String("user", ex.UserName),
	)

	if r.config.Publisher == nil {
		return nil
	}

	event := &eventstream.ExchangePersistedEvent{
		SchemaVersion: eventstream.SchemaVersionV1,
		EventType:     eventstream.EventTypeExchangePersisted,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now(),
		Source: eventstream.EventSource{
			Project: "engram",
			Surface: "chat",
		},
		Exchange: eventstream.ExchangeRecord{
			IdentityHandle:   ex.IdentityHandle,
			UserName:         ex.UserName,
			PersonaName:      ex.PersonaName,
			UserMessage:      ex.UserMessage,
			AssistantMessage: ex.AssistantMessage,
			At:               ex.At,
		},
	}

	if err := r.config.Publisher.PublishExchange(ctx, event); err != nil {
		r.logger.Warn("publishing exchange event failed",
			zap.String("event_id", event.EventID),
			zap.Error(err),
		)
	}

	return nil
}
