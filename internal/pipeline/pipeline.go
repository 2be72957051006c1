// Package pipeline wires validation, scoring, decision, and persistence
// into the score-and-ingest flow.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/opensource-finance/shrike/internal/domain"
	"github.com/opensource-finance/shrike/internal/history"
	"github.com/opensource-finance/shrike/internal/scorer"
)

var tracer = otel.Tracer("shrike-pipeline")

// Pipeline scores raw transactions and records the verdicts. Scoring
// calls are independent and run concurrently; the only shared mutable
// state is the store, whose insert is atomic per identifier.
type Pipeline struct {
	store   domain.Store
	bus     domain.EventBus
	history *history.Service
	scorer  scorer.Scorer
}

// New creates a pipeline around the selected scoring strategy.
func New(store domain.Store, bus domain.EventBus, hist *history.Service, sc scorer.Scorer) *Pipeline {
	return &Pipeline{
		store:   store,
		bus:     bus,
		history: hist,
		scorer:  sc,
	}
}

// ScorerName reports the active strategy.
func (p *Pipeline) ScorerName() string {
	return p.scorer.Name()
}

// ScoreAndIngest validates a raw payload, derives and scores it,
// applies the decision threshold, and inserts the result exactly once.
// The transaction lifecycle is received -> features_derived -> scored ->
// persisted | rejected(duplicate) | rejected(error); every terminal
// state is reported, never swallowed.
func (p *Pipeline) ScoreAndIngest(ctx context.Context, raw domain.RawTransaction) (*domain.ScoredTransaction, error) {
	ctx, span := tracer.Start(ctx, "pipeline.score_and_ingest")
	defer span.End()

	tx, err := domain.ParseTransaction(raw, p.scorer.RequiredFields())
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("trans_num", tx.TransNum))

	result, err := p.scorer.Score(ctx, raw)
	if err != nil {
		return nil, err
	}

	scored := &domain.ScoredTransaction{
		Transaction: *tx,
		FraudScore:  result.Score,
		IsFraud:     scorer.Decide(result.Score, p.scorer.Threshold()),
		Scorer:      p.scorer.Name(),
		Reasons:     result.Reasons,
	}
	span.SetAttributes(
		attribute.Float64("fraud_score", scored.FraudScore),
		attribute.Bool("is_fraud", scored.IsFraud),
	)

	if err := p.store.Insert(ctx, scored); err != nil {
		// A duplicate means the transaction was already recorded,
		// which is a no-op for the caller, not a scoring failure.
		return nil, err
	}

	if p.history != nil {
		p.history.Touch(ctx, tx.CCNum, tx.UnixTime)
	}

	p.publish(ctx, scored)

	return scored, nil
}

// publish emits the scored event and, for fraud verdicts, the alert.
// Event delivery is best effort; a bus failure never un-persists the
// record.
func (p *Pipeline) publish(ctx context.Context, scored *domain.ScoredTransaction) {
	if p.bus == nil {
		return
	}

	payload, err := json.Marshal(scored)
	if err != nil {
		slog.Error("failed to marshal scored transaction", "trans_num", scored.TransNum, "error", err)
		return
	}

	if err := p.bus.Publish(ctx, domain.TopicTransactionScored, payload); err != nil {
		slog.Warn("failed to publish scored event", "trans_num", scored.TransNum, "error", err)
	}

	if scored.IsFraud {
		if err := p.bus.Publish(ctx, domain.TopicFraudAlert, payload); err != nil {
			slog.Warn("failed to publish fraud alert", "trans_num", scored.TransNum, "error", err)
		}
	}
}

// ListRecent returns up to n stored records, most recent first.
func (p *Pipeline) ListRecent(ctx context.Context, n int) ([]*domain.ScoredTransaction, error) {
	return p.store.ListRecent(ctx, n)
}

// ClearAll empties the store and returns the number of removed records.
func (p *Pipeline) ClearAll(ctx context.Context) (int64, error) {
	count, err := p.store.ClearAll(ctx)
	if err != nil {
		return 0, err
	}
	slog.Info("transaction store cleared", "removed", count)
	return count, nil
}

// ClassifyError maps a pipeline error onto the record statuses used by
// batch results and HTTP responses.
func ClassifyError(err error) RecordStatus {
	switch {
	case errors.Is(err, domain.ErrDuplicateTransaction):
		return StatusDuplicate
	default:
		return StatusRejected
	}
}
