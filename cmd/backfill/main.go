// Backfill tool for loading historical transaction data into Shrike.
//
// Usage:
//   go run cmd/backfill/main.go -file /path/to/history.json
//   go run cmd/backfill/main.go -file /path/to/history.csv -limit 50000
//
// The tool scores every record through the configured pipeline and
// stores the verdicts. Records that fail validation or scoring are
// skipped and counted; duplicates are counted separately. The run never
// aborts on a bad record.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/shrike/internal/bus"
	"github.com/opensource-finance/shrike/internal/cache"
	"github.com/opensource-finance/shrike/internal/domain"
	"github.com/opensource-finance/shrike/internal/history"
	"github.com/opensource-finance/shrike/internal/model"
	"github.com/opensource-finance/shrike/internal/pipeline"
	"github.com/opensource-finance/shrike/internal/rules"
	"github.com/opensource-finance/shrike/internal/scorer"
	"github.com/opensource-finance/shrike/internal/store"
)

// numericColumns are CSV columns parsed as numbers; everything else
// stays a string.
var numericColumns = map[string]bool{
	"amt":        true,
	"lat":        true,
	"long":       true,
	"merch_lat":  true,
	"merch_long": true,
	"city_pop":   true,
	"unix_time":  true,
	"zip":        true,
	"is_fraud":   true,
}

func main() {
	filePath := flag.String("file", "", "Path to historical data (.json or .csv)")
	limit := flag.Int("limit", 0, "Maximum records to ingest (0 = all)")
	chunkSize := flag.Int("chunk", 1000, "Records per batch")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if *filePath == "" {
		fmt.Println("Usage: backfill -file /path/to/history.json [-limit 50000]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	cfg := domain.DefaultConfig()
	if os.Getenv("SHRIKE_TIER") == "pro" {
		cfg = domain.ProConfig()
	}
	if mode := os.Getenv("SHRIKE_MODE"); mode != "" {
		cfg.ScorerMode = domain.ScorerMode(mode)
	}
	if path := os.Getenv("SHRIKE_ARTIFACT"); path != "" {
		cfg.ArtifactPath = path
	}

	ctx := context.Background()

	pl, cleanup, err := buildPipeline(ctx, cfg)
	if err != nil {
		slog.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	raws, err := readRecords(*filePath, *limit)
	if err != nil {
		slog.Error("failed to read records", "file", *filePath, "error", err)
		os.Exit(1)
	}
	slog.Info("records loaded", "file", *filePath, "count", len(raws))

	start := time.Now()
	total := &pipeline.BatchResult{}

	for offset := 0; offset < len(raws); offset += *chunkSize {
		end := offset + *chunkSize
		if end > len(raws) {
			end = len(raws)
		}

		result := pl.IngestBatch(ctx, raws[offset:end])
		total.Total += result.Total
		total.Persisted += result.Persisted
		total.Duplicates += result.Duplicates
		total.Rejected += result.Rejected
	}

	duration := time.Since(start)

	fmt.Printf("\nBackfill complete in %v\n", duration.Round(time.Millisecond))
	fmt.Printf("  Total:      %d\n", total.Total)
	fmt.Printf("  Persisted:  %d\n", total.Persisted)
	fmt.Printf("  Duplicates: %d\n", total.Duplicates)
	fmt.Printf("  Rejected:   %d\n", total.Rejected)
	if duration.Seconds() > 0 {
		fmt.Printf("  Throughput: %.0f tx/sec\n", float64(total.Total)/duration.Seconds())
	}

	if total.Rejected > 0 {
		os.Exit(2)
	}
}

// buildPipeline wires the same components as the server, minus HTTP.
func buildPipeline(ctx context.Context, cfg *domain.Config) (*pipeline.Pipeline, func(), error) {
	storeImpl, err := store.New(cfg.Store)
	if err != nil {
		return nil, nil, fmt.Errorf("store: %w", err)
	}

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		storeImpl.Close()
		return nil, nil, fmt.Errorf("cache: %w", err)
	}

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		cacheImpl.Close()
		storeImpl.Close()
		return nil, nil, fmt.Errorf("event bus: %w", err)
	}

	cleanup := func() {
		busImpl.Close()
		cacheImpl.Close()
		storeImpl.Close()
	}

	historySvc := history.NewService(storeImpl, cacheImpl)

	engine, err := rules.NewEngine(100)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("rule engine: %w", err)
	}
	if err := engine.LoadRules(rules.BuiltinRules()); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("builtin rules: %w", err)
	}
	if dbRules, err := storeImpl.ListRuleConfigs(ctx); err == nil && len(dbRules) > 0 {
		if err := engine.LoadRules(dbRules); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("database rules: %w", err)
		}
	}

	var registry *model.Registry
	if cfg.ScorerMode != domain.ModeRules {
		registry = model.NewRegistry(cfg.ArtifactPath)
		if _, err := registry.Load(); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("model artifact: %w", err)
		}
	}

	sc, err := scorer.New(cfg.ScorerMode, engine, registry, historySvc.LastSeen, historySvc.Velocity)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("scorer: %w", err)
	}
	slog.Info("pipeline ready", "scorer", sc.Name(), "store", cfg.Store.Driver)

	return pipeline.New(storeImpl, busImpl, historySvc, sc), cleanup, nil
}

func readRecords(path string, limit int) ([]domain.RawTransaction, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return readJSON(path, limit)
	case ".csv":
		return readCSV(path, limit)
	default:
		return nil, fmt.Errorf("unsupported file type: %s", path)
	}
}

func readJSON(path string, limit int) ([]domain.RawTransaction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raws []domain.RawTransaction
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("expected a JSON array of transactions: %w", err)
	}

	if limit > 0 && len(raws) > limit {
		raws = raws[:limit]
	}
	return raws, nil
}

func readCSV(path string, limit int) ([]domain.RawTransaction, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	for i, col := range header {
		header[i] = strings.TrimSpace(strings.ToLower(col))
	}

	var raws []domain.RawTransaction
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		raw := make(domain.RawTransaction, len(header))
		for i, col := range header {
			if i >= len(record) {
				break
			}
			value := strings.TrimSpace(record[i])
			if numericColumns[col] {
				if f, err := strconv.ParseFloat(value, 64); err == nil {
					raw[col] = f
					continue
				}
			}
			raw[col] = value
		}
		raws = append(raws, raw)

		if limit > 0 && len(raws) >= limit {
			break
		}
	}

	return raws, nil
}
