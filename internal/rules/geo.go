package rules

import (
	"math"

	"github.com/opensource-finance/shrike/internal/domain"
)

const earthRadiusKm = 6371.0

// Haversine returns the great-circle distance in kilometers between two
// coordinate pairs given in degrees.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const degToRad = math.Pi / 180.0

	phi1 := lat1 * degToRad
	phi2 := lat2 * degToRad
	dPhi := (lat2 - lat1) * degToRad
	dLambda := (lon2 - lon1) * degToRad

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)

	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// DistanceKm computes the payer-to-merchant distance for a raw
// transaction. Absent coordinates read as 0 degrees, consistent with
// the permissive rule-path defaults.
func DistanceKm(raw domain.RawTransaction) float64 {
	return Haversine(
		raw.Float("lat"), raw.Float("long"),
		raw.Float("merch_lat"), raw.Float("merch_long"),
	)
}
