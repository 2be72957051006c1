package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/opensource-finance/shrike/internal/domain"
)

// RecordStatus is the terminal state of one record in a batch.
type RecordStatus string

const (
	StatusPersisted RecordStatus = "persisted"
	StatusDuplicate RecordStatus = "duplicate"
	StatusRejected  RecordStatus = "rejected"
)

// RecordResult reports the outcome for a single batch record.
type RecordResult struct {
	TransNum string       `json:"trans_num"`
	Status   RecordStatus `json:"status"`
	Score    float64      `json:"fraud_score,omitempty"`
	IsFraud  bool         `json:"is_fraud,omitempty"`
	Error    string       `json:"error,omitempty"`
}

// BatchResult aggregates per-record outcomes for a backfill run.
type BatchResult struct {
	Total      int            `json:"total"`
	Persisted  int            `json:"persisted"`
	Duplicates int            `json:"duplicates"`
	Rejected   int            `json:"rejected"`
	Results    []RecordResult `json:"results"`
}

const batchWorkers = 8

// IngestBatch scores and stores a slice of raw records. A failing
// record is reported in its slot and never aborts the rest; results
// keep input order.
func (p *Pipeline) IngestBatch(ctx context.Context, raws []domain.RawTransaction) *BatchResult {
	ctx, span := tracer.Start(ctx, "pipeline.ingest_batch")
	defer span.End()
	span.SetAttributes(attribute.Int("batch_size", len(raws)))

	results := make([]RecordResult, len(raws))

	var wg sync.WaitGroup
	sem := make(chan struct{}, batchWorkers)

	for i, raw := range raws {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, raw domain.RawTransaction) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = p.ingestOne(ctx, raw)
		}(i, raw)
	}
	wg.Wait()

	batch := &BatchResult{Total: len(raws), Results: results}
	for _, r := range results {
		switch r.Status {
		case StatusPersisted:
			batch.Persisted++
		case StatusDuplicate:
			batch.Duplicates++
		default:
			batch.Rejected++
		}
	}

	slog.Info("batch ingest complete",
		"total", batch.Total,
		"persisted", batch.Persisted,
		"duplicates", batch.Duplicates,
		"rejected", batch.Rejected,
	)
	span.SetAttributes(
		attribute.Int("persisted", batch.Persisted),
		attribute.Int("duplicates", batch.Duplicates),
		attribute.Int("rejected", batch.Rejected),
	)

	return batch
}

func (p *Pipeline) ingestOne(ctx context.Context, raw domain.RawTransaction) RecordResult {
	transNum := raw.String("trans_num")

	scored, err := p.ScoreAndIngest(ctx, raw)
	if err != nil {
		status := ClassifyError(err)
		if status == StatusRejected {
			slog.Warn("batch record rejected", "trans_num", transNum, "error", err)
		}
		return RecordResult{TransNum: transNum, Status: status, Error: err.Error()}
	}

	return RecordResult{
		TransNum: scored.TransNum,
		Status:   StatusPersisted,
		Score:    scored.FraudScore,
		IsFraud:  scored.IsFraud,
	}
}
