package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Transaction is an incoming card transaction, immutable once parsed.
// Field names follow the historical fraud dataset layout so that raw
// payloads, the row store, and the dashboard all speak the same schema.
type Transaction struct {
	TransDateTransTime string  `json:"trans_date_trans_time"`
	CCNum              string  `json:"cc_num"`
	Merchant           string  `json:"merchant"`
	Category           string  `json:"category"`
	Amount             float64 `json:"amt"`
	First              string  `json:"first"`
	Last               string  `json:"last"`
	Gender             string  `json:"gender"`
	Street             string  `json:"street"`
	City               string  `json:"city"`
	State              string  `json:"state"`
	Zip                string  `json:"zip"`
	Lat                float64 `json:"lat"`
	Long               float64 `json:"long"`
	CityPop            int64   `json:"city_pop"`
	Job                string  `json:"job"`
	DOB                string  `json:"dob"`
	TransNum           string  `json:"trans_num"`
	UnixTime           int64   `json:"unix_time"`
	MerchLat           float64 `json:"merch_lat"`
	MerchLong          float64 `json:"merch_long"`

	// Label is the ground-truth fraud flag carried by historical
	// backfill records. Nil for live traffic.
	Label *bool `json:"label,omitempty"`
}

// ScoredTransaction is a Transaction augmented with the pipeline verdict.
// Created exactly once per TransNum and never mutated afterwards.
type ScoredTransaction struct {
	Transaction

	FraudScore float64 `json:"fraud_score"`
	IsFraud    bool    `json:"is_fraud"`

	// Scorer names the strategy that produced the score.
	Scorer string `json:"scorer,omitempty"`

	// Reasons lists the rules that contributed, when rule-based.
	Reasons []string `json:"reasons,omitempty"`
}

// RawTransaction is the flat key/value payload as it arrives on the wire.
// Scorers read from it directly so each variant can apply its own policy
// for absent fields.
type RawTransaction map[string]any

// Has reports whether the field is present and non-null.
func (r RawTransaction) Has(field string) bool {
	v, ok := r[field]
	return ok && v != nil
}

// Float returns the field as a float64, tolerating the numeric shapes
// JSON decoding produces. Absent or non-numeric fields return 0.
func (r RawTransaction) Float(field string) float64 {
	switch v := r[field].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return 0
	}
}

// Int returns the field as an int64, defaulting to 0.
func (r RawTransaction) Int(field string) int64 {
	switch v := r[field].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	case json.Number:
		i, err := v.Int64()
		if err != nil {
			f, _ := v.Float64()
			return int64(f)
		}
		return i
	case string:
		i, _ := strconv.ParseInt(v, 10, 64)
		return i
	default:
		return 0
	}
}

// String returns the field as a string, defaulting to "". Numeric card
// numbers and zip codes are rendered without an exponent.
func (r RawTransaction) String(field string) string {
	switch v := r[field].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Numeric reports whether a present field carries a usable numeric
// value. Coercion via Float/Int maps garbage to 0; required fields are
// checked with Numeric first so malformed input is rejected instead.
func (r RawTransaction) Numeric(field string) bool {
	switch v := r[field].(type) {
	case float64, int64, int:
		return true
	case json.Number:
		_, err := v.Float64()
		return err == nil
	case string:
		_, err := strconv.ParseFloat(v, 64)
		return err == nil
	default:
		return false
	}
}

// Bool returns the field as a bool, accepting the 0/1 encoding used by
// the historical dataset.
func (r RawTransaction) Bool(field string) (bool, bool) {
	switch v := r[field].(type) {
	case bool:
		return v, true
	case float64:
		return v != 0, true
	case int64:
		return v != 0, true
	case json.Number:
		i, err := v.Int64()
		return i != 0, err == nil
	default:
		return false, false
	}
}

// numericFields are the dataset columns that must parse as numbers.
var numericFields = map[string]bool{
	"amt":        true,
	"lat":        true,
	"long":       true,
	"city_pop":   true,
	"unix_time":  true,
	"merch_lat":  true,
	"merch_long": true,
}

// ParseTransaction converts a raw payload into a Transaction, checking
// that every field in required is present and well-formed. Amount and
// city_pop must be non-negative and trans_num non-empty.
func ParseTransaction(raw RawTransaction, required []string) (*Transaction, error) {
	for _, field := range required {
		if !raw.Has(field) {
			return nil, NewValidationError(field, "required field is missing")
		}
		if numericFields[field] && !raw.Numeric(field) {
			return nil, NewValidationError(field, "malformed value, expected a number")
		}
	}

	tx := &Transaction{
		TransDateTransTime: raw.String("trans_date_trans_time"),
		CCNum:              raw.String("cc_num"),
		Merchant:           raw.String("merchant"),
		Category:           raw.String("category"),
		Amount:             raw.Float("amt"),
		First:              raw.String("first"),
		Last:               raw.String("last"),
		Gender:             raw.String("gender"),
		Street:             raw.String("street"),
		City:               raw.String("city"),
		State:              raw.String("state"),
		Zip:                raw.String("zip"),
		Lat:                raw.Float("lat"),
		Long:               raw.Float("long"),
		CityPop:            raw.Int("city_pop"),
		Job:                raw.String("job"),
		DOB:                raw.String("dob"),
		TransNum:           raw.String("trans_num"),
		UnixTime:           raw.Int("unix_time"),
		MerchLat:           raw.Float("merch_lat"),
		MerchLong:          raw.Float("merch_long"),
	}

	if label, ok := raw.Bool("is_fraud"); ok && raw.Has("is_fraud") {
		tx.Label = &label
	}

	if tx.TransNum == "" {
		return nil, NewValidationError("trans_num", "transaction identifier must not be empty")
	}
	if tx.Amount < 0 {
		return nil, NewValidationError("amt", "amount must be non-negative")
	}
	if tx.CityPop < 0 {
		return nil, NewValidationError("city_pop", "population must be non-negative")
	}

	return tx, nil
}
