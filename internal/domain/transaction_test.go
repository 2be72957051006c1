package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestRawTransactionCoercion(t *testing.T) {
	raw := RawTransaction{
		"f_float":  12.5,
		"f_int":    7,
		"f_string": "3.25",
		"f_num":    json.Number("99"),
		"s_float":  4111111111111111.0,
		"nullv":    nil,
	}

	if raw.Float("f_float") != 12.5 {
		t.Errorf("float = %v", raw.Float("f_float"))
	}
	if raw.Float("f_int") != 7 {
		t.Errorf("int as float = %v", raw.Float("f_int"))
	}
	if raw.Float("f_string") != 3.25 {
		t.Errorf("string as float = %v", raw.Float("f_string"))
	}
	if raw.Int("f_num") != 99 {
		t.Errorf("json.Number as int = %v", raw.Int("f_num"))
	}

	// Card numbers arriving as JSON floats must not grow an exponent.
	if got := raw.String("s_float"); got != "4111111111111111" {
		t.Errorf("numeric string = %q", got)
	}

	if raw.Has("nullv") {
		t.Error("null value should not count as present")
	}
	if raw.Has("absent") {
		t.Error("absent field should not count as present")
	}
	if raw.Float("absent") != 0 || raw.String("absent") != "" {
		t.Error("absent fields should read as zero values")
	}
}

func TestRawTransactionBool(t *testing.T) {
	raw := RawTransaction{"a": true, "b": 1.0, "c": 0.0}

	if v, ok := raw.Bool("a"); !ok || !v {
		t.Errorf("bool true: v=%v ok=%v", v, ok)
	}
	if v, ok := raw.Bool("b"); !ok || !v {
		t.Errorf("numeric 1: v=%v ok=%v", v, ok)
	}
	if v, ok := raw.Bool("c"); !ok || v {
		t.Errorf("numeric 0: v=%v ok=%v", v, ok)
	}
	if _, ok := raw.Bool("absent"); ok {
		t.Error("absent field should not decode as bool")
	}
}

func TestParseTransaction(t *testing.T) {
	raw := RawTransaction{
		"trans_num": "T1",
		"cc_num":    4111111111111111.0,
		"amt":       55.5,
		"city_pop":  50000.0,
		"unix_time": 1700000000.0,
		"is_fraud":  1.0,
	}

	tx, err := ParseTransaction(raw, []string{"trans_num", "amt"})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if tx.TransNum != "T1" || tx.Amount != 55.5 {
		t.Errorf("parsed: %+v", tx)
	}
	if tx.CCNum != "4111111111111111" {
		t.Errorf("cc_num = %q", tx.CCNum)
	}
	if tx.CityPop != 50000 || tx.UnixTime != 1700000000 {
		t.Errorf("numerics: pop=%d time=%d", tx.CityPop, tx.UnixTime)
	}
	if tx.Label == nil || *tx.Label != true {
		t.Errorf("label = %v", tx.Label)
	}
}

func TestParseTransactionMissingRequired(t *testing.T) {
	raw := RawTransaction{"trans_num": "T1"}

	_, err := ParseTransaction(raw, []string{"trans_num", "amt"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	var fieldErr *FieldError
	if !errors.As(err, &fieldErr) || fieldErr.Field != "amt" {
		t.Errorf("error should name the missing field: %v", err)
	}
}

func TestParseTransactionRejectsBadValues(t *testing.T) {
	_, err := ParseTransaction(RawTransaction{"trans_num": "", "amt": 1.0}, []string{"trans_num"})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("empty trans_num: %v", err)
	}

	_, err = ParseTransaction(RawTransaction{"trans_num": "T1", "amt": -5.0}, []string{"trans_num", "amt"})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("negative amount: %v", err)
	}

	_, err = ParseTransaction(RawTransaction{"trans_num": "T1", "amt": 1.0, "city_pop": -1.0}, []string{"trans_num", "amt"})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("negative city_pop: %v", err)
	}
}

func TestParseTransactionRejectsMalformedNumbers(t *testing.T) {
	// Present-but-garbage must fail validation, not coerce to 0.
	raw := RawTransaction{"trans_num": "T1", "amt": "garbage"}

	_, err := ParseTransaction(raw, []string{"trans_num", "amt"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("malformed amt should fail validation, got %v", err)
	}
	var fieldErr *FieldError
	if !errors.As(err, &fieldErr) || fieldErr.Field != "amt" {
		t.Errorf("error should name the malformed field: %v", err)
	}

	// Numeric strings are still accepted.
	tx, err := ParseTransaction(RawTransaction{"trans_num": "T1", "amt": "3.25"}, []string{"trans_num", "amt"})
	if err != nil {
		t.Fatalf("numeric string amt rejected: %v", err)
	}
	if tx.Amount != 3.25 {
		t.Errorf("amount = %v, want 3.25", tx.Amount)
	}

	// Garbage in an optional field stays a coercion concern.
	tx, err = ParseTransaction(RawTransaction{"trans_num": "T1", "amt": 1.0, "lat": "north"}, []string{"trans_num", "amt"})
	if err != nil || tx.Lat != 0 {
		t.Errorf("optional field: tx=%+v err=%v", tx, err)
	}
}

func TestErrorTaxonomy(t *testing.T) {
	err := NewValidationError("amt", "missing")
	if !errors.Is(err, ErrValidation) {
		t.Error("validation error should wrap ErrValidation")
	}
	if errors.Is(err, ErrFeatureDerivation) {
		t.Error("validation error must not match derivation")
	}

	err = NewDerivationError("distance", "inputs missing")
	if !errors.Is(err, ErrFeatureDerivation) {
		t.Error("derivation error should wrap ErrFeatureDerivation")
	}
}
