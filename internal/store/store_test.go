package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/opensource-finance/shrike/internal/domain"
)

func newTestStore(t *testing.T) domain.Store {
	t.Helper()

	s, err := New(domain.StoreConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func scoredTx(transNum string, unixTime int64) *domain.ScoredTransaction {
	return &domain.ScoredTransaction{
		Transaction: domain.Transaction{
			TransNum: transNum,
			CCNum:    "4111111111111111",
			Merchant: "Corner Store",
			Category: "Groceries",
			Amount:   42.5,
			Lat:      40.0,
			Long:     -74.0,
			CityPop:  50000,
			UnixTime: unixTime,
		},
		FraudScore: 0.3,
		IsFraud:    false,
		Scorer:     "rule-based",
	}
}

func TestInsertAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Insert(ctx, scoredTx("T1", 1000)); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	txs, err := s.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(txs))
	}
	if txs[0].TransNum != "T1" || txs[0].Amount != 42.5 || txs[0].Scorer != "rule-based" {
		t.Errorf("round trip mismatch: %+v", txs[0])
	}
	if txs[0].Label != nil {
		t.Errorf("live record should have nil label, got %v", *txs[0].Label)
	}
}

func TestInsertDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	original := scoredTx("T123", 1000)
	original.FraudScore = 0.2
	if err := s.Insert(ctx, original); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}

	// Resubmission with a different score must not overwrite.
	dup := scoredTx("T123", 2000)
	dup.FraudScore = 0.99
	err := s.Insert(ctx, dup)
	if !errors.Is(err, domain.ErrDuplicateTransaction) {
		t.Fatalf("expected ErrDuplicateTransaction, got %v", err)
	}

	count, _ := s.Count(ctx)
	if count != 1 {
		t.Errorf("expected 1 record after duplicate, got %d", count)
	}

	txs, _ := s.ListRecent(ctx, 1)
	if txs[0].FraudScore != 0.2 {
		t.Errorf("duplicate overwrote the original: score %v", txs[0].FraudScore)
	}
}

func TestInsertConcurrentDuplicates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// The unique constraint is the only arbiter: exactly one of N
	// racing inserts for the same identifier may win.
	const racers = 10
	errs := make([]error, racers)

	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.Insert(ctx, scoredTx("T-race", int64(1000+i)))
		}(i)
	}
	wg.Wait()

	var wins, dups int
	for i, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domain.ErrDuplicateTransaction):
			dups++
		default:
			t.Errorf("racer %d: unexpected error %v", i, err)
		}
	}

	if wins != 1 || dups != racers-1 {
		t.Errorf("wins = %d, duplicates = %d, want 1 and %d", wins, dups, racers-1)
	}

	count, _ := s.Count(ctx)
	if count != 1 {
		t.Errorf("stored = %d, want 1", count)
	}
}

func TestInsertMissingTransNum(t *testing.T) {
	s := newTestStore(t)

	err := s.Insert(context.Background(), &domain.ScoredTransaction{})
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestListRecentOrderAndTruncation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		tx := scoredTx(fmt.Sprintf("T%d", i), int64(1000+i))
		if err := s.Insert(ctx, tx); err != nil {
			t.Fatalf("insert %d failed: %v", i, err)
		}
	}

	txs, err := s.ListRecent(ctx, 3)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(txs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(txs))
	}

	// Newest first.
	want := []string{"T4", "T3", "T2"}
	for i, tx := range txs {
		if tx.TransNum != want[i] {
			t.Errorf("position %d: got %s, want %s", i, tx.TransNum, want[i])
		}
	}

	// Asking for more than stored returns all of them.
	txs, _ = s.ListRecent(ctx, 100)
	if len(txs) != 5 {
		t.Errorf("expected 5 records, got %d", len(txs))
	}

	// Non-positive n returns nothing.
	txs, _ = s.ListRecent(ctx, 0)
	if len(txs) != 0 {
		t.Errorf("expected no records for n=0, got %d", len(txs))
	}
}

func TestClearAll(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		s.Insert(ctx, scoredTx(fmt.Sprintf("T%d", i), int64(1000+i)))
	}

	removed, err := s.ClearAll(ctx)
	if err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if removed != 3 {
		t.Errorf("expected 3 removed, got %d", removed)
	}

	count, _ := s.Count(ctx)
	if count != 0 {
		t.Errorf("expected empty store, got %d", count)
	}

	// Clearing an empty store is a zero-count success.
	removed, err = s.ClearAll(ctx)
	if err != nil || removed != 0 {
		t.Errorf("second clear: removed=%d err=%v", removed, err)
	}
}

func TestLabelRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	labeled := scoredTx("T-hist", 1000)
	truth := true
	labeled.Label = &truth
	if err := s.Insert(ctx, labeled); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	txs, _ := s.ListRecent(ctx, 1)
	if txs[0].Label == nil || *txs[0].Label != true {
		t.Errorf("label did not round trip: %+v", txs[0].Label)
	}
}

func TestLastCardTransaction(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ts, ok, err := s.LastCardTransaction(ctx, "4111111111111111")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if ok {
		t.Errorf("expected no history, got %d", ts)
	}

	s.Insert(ctx, scoredTx("T1", 1000))
	s.Insert(ctx, scoredTx("T2", 3000))
	s.Insert(ctx, scoredTx("T3", 2000))

	ts, ok, err = s.LastCardTransaction(ctx, "4111111111111111")
	if err != nil || !ok {
		t.Fatalf("lookup failed: ok=%v err=%v", ok, err)
	}
	if ts != 3000 {
		t.Errorf("expected latest unix_time 3000, got %d", ts)
	}
}

func TestRuleConfigRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rule := &domain.RuleConfig{
		ID:         "night-owl",
		Name:       "Night Owl",
		Expression: "hour < 5",
		Weight:     0.15,
		Reason:     "overnight transaction",
		Enabled:    true,
	}
	if err := s.SaveRuleConfig(ctx, rule); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	// Upsert updates in place.
	rule.Weight = 0.25
	if err := s.SaveRuleConfig(ctx, rule); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	configs, err := s.ListRuleConfigs(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(configs) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(configs))
	}
	if configs[0].Weight != 0.25 {
		t.Errorf("weight = %v, want 0.25", configs[0].Weight)
	}

	// Disabled rules are not listed.
	rule.Enabled = false
	s.SaveRuleConfig(ctx, rule)
	configs, _ = s.ListRuleConfigs(ctx)
	if len(configs) != 0 {
		t.Errorf("disabled rule should not be listed, got %d", len(configs))
	}
}

func TestRebind(t *testing.T) {
	s := &SQLStore{driver: "postgres"}
	got := s.rebind("SELECT * FROM t WHERE a = ? AND b = ?")
	want := "SELECT * FROM t WHERE a = $1 AND b = $2"
	if got != want {
		t.Errorf("rebind = %q, want %q", got, want)
	}

	s.driver = "sqlite"
	passthrough := "SELECT * FROM t WHERE a = ?"
	if got := s.rebind(passthrough); got != passthrough {
		t.Errorf("sqlite rebind should be a no-op, got %q", got)
	}
}
