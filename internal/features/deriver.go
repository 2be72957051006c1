// Package features computes derived scoring inputs from raw transactions.
package features

import (
	"math"

	"github.com/opensource-finance/shrike/internal/domain"
)

// Raw fields the deriver needs before it can compute anything. The
// deriver is strict: any of these absent fails the derivation, it never
// silently defaults a required field. Only card history is optional.
var requiredRawFields = []string{
	"amt",
	"lat",
	"long",
	"merch_lat",
	"merch_long",
	"city_pop",
	"unix_time",
}

// RequiredRawFields returns the raw fields derivation depends on.
func RequiredRawFields() []string {
	out := make([]string, len(requiredRawFields))
	copy(out, requiredRawFields)
	return out
}

// History supplies the optional per-card context: the unix time of the
// card's immediately preceding transaction.
type History interface {
	LastSeen(ccNum string) (int64, bool)
}

// Derive computes the full derived feature set for a raw transaction.
// Pure and side-effect free: same input and history always produce the
// same mapping. Raw numeric fields pass through under their own names so
// the artifact's feature list can mix raw and derived inputs.
func Derive(raw domain.RawTransaction, history History) (map[string]float64, error) {
	for _, field := range requiredRawFields {
		if !raw.Has(field) {
			return nil, domain.NewDerivationError(field, "required input is missing")
		}
	}

	amt := raw.Float("amt")
	lat := raw.Float("lat")
	long := raw.Float("long")
	merchLat := raw.Float("merch_lat")
	merchLong := raw.Float("merch_long")
	cityPop := raw.Float("city_pop")
	unixTime := raw.Int("unix_time")

	f := map[string]float64{
		"amt":        amt,
		"lat":        lat,
		"long":       long,
		"merch_lat":  merchLat,
		"merch_long": merchLong,
		"city_pop":   cityPop,
		"unix_time":  float64(unixTime),
	}

	f["log_amt"] = math.Log1p(amt)

	// Planar approximation over degrees. Only feeds the learned model,
	// not a physical measurement; training used the same formula.
	dLat := lat - merchLat
	dLong := long - merchLong
	f["distance"] = math.Sqrt(dLat*dLat + dLong*dLong)

	f["amount_per_population"] = amt / (cityPop + 1)

	hour := (unixTime / 3600) % 24
	day := (unixTime / 86400) % 7
	f["transaction_hour"] = float64(hour)
	f["day_of_week"] = float64(day)

	f["high_amount_flag"] = 0
	if amt > 200 {
		f["high_amount_flag"] = 1
	}
	f["is_weekend"] = 0
	if day == 5 || day == 6 {
		f["is_weekend"] = 1
	}

	// 0 when no prior transaction is known for the card.
	f["time_since_last_transaction"] = 0
	if history != nil {
		if prev, ok := history.LastSeen(raw.String("cc_num")); ok && prev > 0 {
			f["time_since_last_transaction"] = float64(unixTime - prev)
		}
	}

	return f, nil
}

// Vector orders the derived features by the artifact's declared feature
// list. A feature the model expects but derivation did not produce is a
// derivation failure.
func Vector(derived map[string]float64, order []string) ([]float64, error) {
	out := make([]float64, len(order))
	for i, name := range order {
		v, ok := derived[name]
		if !ok {
			return nil, domain.NewDerivationError(name, "feature required by model was not derived")
		}
		out[i] = v
	}
	return out, nil
}
