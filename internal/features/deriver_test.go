package features

import (
	"errors"
	"math"
	"testing"

	"github.com/opensource-finance/shrike/internal/domain"
)

type fakeHistory struct {
	last int64
	ok   bool
}

func (h fakeHistory) LastSeen(ccNum string) (int64, bool) { return h.last, h.ok }

func fullRaw() domain.RawTransaction {
	return domain.RawTransaction{
		"trans_num":  "T1",
		"cc_num":     "4111111111111111",
		"amt":        150.0,
		"lat":        40.0,
		"long":       -74.0,
		"merch_lat":  41.0,
		"merch_long": -75.0,
		"city_pop":   9999.0,
		"unix_time":  1700000000.0,
	}
}

func TestDeriveFormulas(t *testing.T) {
	f, err := Derive(fullRaw(), nil)
	if err != nil {
		t.Fatalf("derive failed: %v", err)
	}

	if got, want := f["log_amt"], math.Log1p(150.0); math.Abs(got-want) > 1e-12 {
		t.Errorf("log_amt = %v, want %v", got, want)
	}

	// Planar distance over a 1x1 degree offset.
	if got, want := f["distance"], math.Sqrt(2); math.Abs(got-want) > 1e-12 {
		t.Errorf("distance = %v, want %v", got, want)
	}

	if got, want := f["amount_per_population"], 150.0/10000.0; math.Abs(got-want) > 1e-12 {
		t.Errorf("amount_per_population = %v, want %v", got, want)
	}

	if got, want := f["transaction_hour"], float64((1700000000/3600)%24); got != want {
		t.Errorf("transaction_hour = %v, want %v", got, want)
	}
	if got, want := f["day_of_week"], float64((1700000000/86400)%7); got != want {
		t.Errorf("day_of_week = %v, want %v", got, want)
	}
}

func TestDeriveHighAmountFlag(t *testing.T) {
	raw := fullRaw()

	raw["amt"] = 200.0
	f, _ := Derive(raw, nil)
	if f["high_amount_flag"] != 0 {
		t.Errorf("amt=200 should not flag, got %v", f["high_amount_flag"])
	}

	raw["amt"] = 200.01
	f, _ = Derive(raw, nil)
	if f["high_amount_flag"] != 1 {
		t.Errorf("amt=200.01 should flag, got %v", f["high_amount_flag"])
	}
}

func TestDeriveRawPassthrough(t *testing.T) {
	f, err := Derive(fullRaw(), nil)
	if err != nil {
		t.Fatalf("derive failed: %v", err)
	}

	for _, name := range RequiredRawFields() {
		if _, ok := f[name]; !ok {
			t.Errorf("raw field %s missing from derived set", name)
		}
	}
	if f["amt"] != 150.0 {
		t.Errorf("amt passthrough = %v, want 150", f["amt"])
	}
}

func TestDeriveMissingFieldNamesField(t *testing.T) {
	raw := fullRaw()
	delete(raw, "merch_lat")

	_, err := Derive(raw, nil)
	if err == nil {
		t.Fatal("expected derivation error for missing merch_lat")
	}
	if !errors.Is(err, domain.ErrFeatureDerivation) {
		t.Errorf("error %v should wrap ErrFeatureDerivation", err)
	}

	var fieldErr *domain.FieldError
	if !errors.As(err, &fieldErr) {
		t.Fatalf("error %v should carry the field name", err)
	}
	if fieldErr.Field != "merch_lat" {
		t.Errorf("field = %s, want merch_lat", fieldErr.Field)
	}
}

func TestDeriveTimeSinceLast(t *testing.T) {
	raw := fullRaw()

	// No history: neutral default of 0.
	f, _ := Derive(raw, nil)
	if f["time_since_last_transaction"] != 0 {
		t.Errorf("no history should yield 0, got %v", f["time_since_last_transaction"])
	}

	f, _ = Derive(raw, fakeHistory{ok: false})
	if f["time_since_last_transaction"] != 0 {
		t.Errorf("unknown card should yield 0, got %v", f["time_since_last_transaction"])
	}

	f, _ = Derive(raw, fakeHistory{last: 1700000000 - 3600, ok: true})
	if f["time_since_last_transaction"] != 3600 {
		t.Errorf("expected 3600 seconds since last, got %v", f["time_since_last_transaction"])
	}
}

func TestDeriveDeterministic(t *testing.T) {
	raw := fullRaw()
	first, _ := Derive(raw, fakeHistory{last: 1699990000, ok: true})

	for i := 0; i < 5; i++ {
		again, _ := Derive(raw, fakeHistory{last: 1699990000, ok: true})
		for k, v := range first {
			if again[k] != v {
				t.Fatalf("feature %s changed between runs: %v vs %v", k, v, again[k])
			}
		}
	}
}

func TestVector(t *testing.T) {
	derived := map[string]float64{"a": 1, "b": 2, "c": 3}

	vec, err := Vector(derived, []string{"c", "a"})
	if err != nil {
		t.Fatalf("vector failed: %v", err)
	}
	if vec[0] != 3 || vec[1] != 1 {
		t.Errorf("vector = %v, want [3 1]", vec)
	}

	_, err = Vector(derived, []string{"a", "missing"})
	if !errors.Is(err, domain.ErrFeatureDerivation) {
		t.Errorf("missing feature should be a derivation error, got %v", err)
	}
}
