package security

// Similarity scores how closely two signatures match, as the fraction of
// byte positions holding the same value over the longer input. Biometric
// matchers are noisy, so acceptance is a threshold on this score rather
// than an exact comparison. Two empty inputs score 1; an empty input
// against a non-empty one scores 0.
func Similarity(a, b []byte) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}

	longer := len(a)
	if len(b) > longer {
		longer = len(b)
	}

	shorter := len(a)
	if len(b) < shorter {
		shorter = len(b)
	}

	matches := 0
	for i := 0; i < shorter; i++ {
		if a[i] == b[i] {
			matches++
		}
	}

	return float64(matches) / float64(longer)
}
