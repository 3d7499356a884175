package tokens

// Estimate approximates the number of model tokens in text using the
// ~4 characters per token heuristic for English prose. Deterministic and
// monotonic in input length.
func Estimate(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + 3) / 4
}
