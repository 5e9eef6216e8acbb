package reference

import (
	"math"
)

// NumericalGradient estimates d loss / d x[i] for every element of x with
// central differences. x is perturbed in place and restored.
func NumericalGradient(loss func() float64, x []float32, eps float32) []float64 {
	grad := make([]float64, len(x))
	for i := range x {
		orig := x[i]
		x[i] = orig + eps
		plus := loss()
		x[i] = orig - eps
		minus := loss()
		x[i] = orig
		grad[i] = (plus - minus) / float64(2*eps)
	}
	return grad
}

// Dot returns sum(a[i] * w[i]) in float64, skipping cells where a is not
// finite (-Inf band cells carry no gradient).
func Dot(a, w []float32) float64 {
	var sum float64
	for i, v := range a {
		if math.IsInf(float64(v), 0) || math.IsNaN(float64(v)) {
			continue
		}
		sum += float64(v) * float64(w[i])
	}
	return sum
}

// MaxRelError returns max |got - want| / max(1, |want|) over all elements.
// Two infinities of the same sign compare equal; any other infinity or NaN
// mismatch yields +Inf.
func MaxRelError(got, want []float32) float64 {
	if len(got) != len(want) {
		return math.Inf(1)
	}
	var worst float64
	for i := range got {
		g, w := float64(got[i]), float64(want[i])
		if math.IsInf(w, 0) || math.IsInf(g, 0) {
			if g != w {
				return math.Inf(1)
			}
			continue
		}
		if math.IsNaN(g) || math.IsNaN(w) {
			return math.Inf(1)
		}
		worst = math.Max(worst, math.Abs(g-w)/math.Max(1, math.Abs(w)))
	}
	return worst
}

// MaxRelError64 is MaxRelError for a float64 expectation.
func MaxRelError64(got []float32, want []float64) float64 {
	w := make([]float32, len(want))
	for i, v := range want {
		w[i] = float32(v)
	}
	return MaxRelError(got, w)
}
