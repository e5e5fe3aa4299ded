package profile

// Derivative selects the finite-difference policy used to turn a PAI
// profile into PAVD. The caller picks one; there is no automatic
// fallback between them.
type Derivative int

const (
	// DerivativeCentral uses central differences in the interior and
	// one-sided differences at the two profile ends.
	DerivativeCentral Derivative = iota
	// DerivativeForward uses forward differences, with the last element
	// defined as zero to preserve the profile length.
	DerivativeForward
)

// PAVD differentiates a cumulative PAI profile into plant area volume
// density per height bin. PAI accumulates from the canopy top down, so
// it decreases with height and the density is its negated height
// derivative. Missing PAI values propagate into the neighboring PAVD
// bins.
func PAVD(pai []float64, heightRes float64, policy Derivative) []float64 {
	n := len(pai)
	out := make([]float64, n)
	if n == 0 {
		return out
	}

	switch policy {
	case DerivativeForward:
		for i := 0; i < n-1; i++ {
			out[i] = (pai[i] - pai[i+1]) / heightRes
		}
		out[n-1] = 0
	default:
		if n == 1 {
			out[0] = 0
			return out
		}
		out[0] = (pai[0] - pai[1]) / heightRes
		for i := 1; i < n-1; i++ {
			out[i] = (pai[i-1] - pai[i+1]) / (2 * heightRes)
		}
		out[n-1] = (pai[n-2] - pai[n-1]) / heightRes
	}
	return out
}

// IntegratePAVD integrates a PAVD profile over height with the
// trapezoidal rule. Up to discretization error this recovers the PAI
// difference between the ground and the canopy top.
func IntegratePAVD(pavd []float64, heightRes float64) float64 {
	if len(pavd) < 2 {
		return 0
	}
	sum := 0.0
	for i := 0; i < len(pavd)-1; i++ {
		sum += 0.5 * (pavd[i] + pavd[i+1]) * heightRes
	}
	return sum
}
