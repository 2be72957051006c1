// Package worker provides async transaction ingestion for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/shrike/internal/domain"
	"github.com/opensource-finance/shrike/internal/pipeline"
)

// Worker consumes raw transactions from the EventBus and runs them
// through the scoring pipeline. It lets producers fire-and-forget
// while the synchronous HTTP path stays available for callers that
// want the verdict inline.
type Worker struct {
	bus      domain.EventBus
	pipeline *pipeline.Pipeline

	subscriptions []domain.Subscription
	processed     atomic.Int64
	rejected      atomic.Int64

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// Stats reports worker counters.
type Stats struct {
	SubscriptionCount int   `json:"subscription_count"`
	Processed         int64 `json:"processed"`
	Rejected          int64 `json:"rejected"`
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, pl *pipeline.Pipeline) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		pipeline: pl,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes to the ingestion topic.
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	sub, err := w.bus.Subscribe(w.ctx, domain.TopicTransactionIngested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("worker started", "topic", domain.TopicTransactionIngested)
	return nil
}

// handleMessage scores one queued transaction. Parse and validation
// failures are terminal for the message: there is no retry that would
// make a malformed payload valid.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var raw domain.RawTransaction
	if err := json.Unmarshal(msg.Payload, &raw); err != nil {
		w.rejected.Add(1)
		slog.Error("failed to parse transaction message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	scored, err := w.pipeline.ScoreAndIngest(ctx, raw)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateTransaction) {
			slog.Debug("duplicate transaction skipped",
				"trans_num", raw.String("trans_num"),
			)
			return nil
		}
		w.rejected.Add(1)
		slog.Error("async scoring failed",
			"trans_num", raw.String("trans_num"),
			"error", err,
		)
		return err
	}

	w.processed.Add(1)
	slog.Debug("transaction processed",
		"trans_num", scored.TransNum,
		"fraud_score", scored.FraudScore,
		"is_fraud", scored.IsFraud,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// GetStats returns current worker counters.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Processed:         w.processed.Load(),
		Rejected:          w.rejected.Load(),
	}
}

// Stop unsubscribes and halts processing.
func (w *Worker) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Warn("failed to unsubscribe", "topic", sub.Topic(), "error", err)
		}
	}
	w.subscriptions = nil
	w.cancel()

	slog.Info("worker stopped")
	return nil
}
