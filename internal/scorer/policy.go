package scorer

// Decide maps a fraud score to the boolean fraud label. Pure and total:
// is_fraud when the score strictly exceeds the threshold.
func Decide(score, threshold float64) bool {
	return score > threshold
}
