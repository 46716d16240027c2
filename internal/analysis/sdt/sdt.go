// Package sdt implements the signal-detection-theory math: d-prime,
// bias (beta), accuracy, and Matthews Correlation Coefficient over a
// confusion matrix, plus the Macmillan-Kaplan (1985) boundary
// correction. distuv.Normal supplies the inverse normal CDF.
package sdt

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

var stdNormal = distuv.Normal{Mu: 0, Sigma: 1}

// phiInverse is Φ⁻¹, the standard normal quantile function.
func phiInverse(p float64) float64 {
	return stdNormal.Quantile(p)
}

// ConfusionMatrix is a 2x2 [[hit,miss],[FA,CR]] matrix.
type ConfusionMatrix struct {
	Hit, Miss, FA, CR float64
}

// Dense returns the matrix as a gonum mat.Dense for callers that work
// with the NxN helpers.
func (m ConfusionMatrix) Dense() *mat.Dense {
	return mat.NewDense(2, 2, []float64{m.Hit, m.Miss, m.FA, m.CR})
}

// correctedRate applies the Macmillan-Kaplan correction: an empty
// row-sum yields rate 0 with nudge 1e-10; otherwise the nudge is
// 1/(2*row_sum), and any rate at or past the [0,1] boundary is nudged
// back inside it.
func correctedRate(hitOrFA, rowSum float64) float64 {
	var rate, nudge float64
	if rowSum == 0 {
		rate, nudge = 0, 1e-10
	} else {
		rate = hitOrFA / rowSum
		nudge = 1.0 / (2.0 * rowSum)
	}
	if rate >= 1 {
		rate = 1 - nudge
	}
	if rate <= 0 {
		rate = 0 + nudge
	}
	return rate
}

// HitRate and FARate return the Macmillan-Kaplan-corrected rates for m.
func (m ConfusionMatrix) HitRate() float64 {
	return correctedRate(m.Hit, m.Hit+m.Miss)
}

func (m ConfusionMatrix) FARate() float64 {
	return correctedRate(m.FA, m.FA+m.CR)
}

// Dprime computes d' = Φ⁻¹(hit_rate) - Φ⁻¹(fa_rate).
func Dprime(m ConfusionMatrix) float64 {
	return phiInverse(m.HitRate()) - phiInverse(m.FARate())
}

// Criterion computes c = -1/2 * (Φ⁻¹(hit_rate) + Φ⁻¹(fa_rate)).
func Criterion(m ConfusionMatrix) float64 {
	return -0.5 * (phiInverse(m.HitRate()) + phiInverse(m.FARate()))
}

// Bias computes β = exp(d'*c).
func Bias(m ConfusionMatrix) float64 {
	return math.Exp(Dprime(m) * Criterion(m))
}

// Accuracy computes the overall proportion-correct accuracy over an
// NxN confusion matrix (trace over total).
func Accuracy(m *mat.Dense) float64 {
	r, c := m.Dims()
	n := math.Min(float64(r), float64(c))
	var diag, total float64
	for i := 0; i < int(n); i++ {
		diag += m.At(i, i)
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			total += m.At(i, j)
		}
	}
	if total == 0 {
		return 0
	}
	return diag / total
}

// AccuracyCI computes the equal-tailed Beta(x, N-x) confidence
// interval for accuracy at the given alpha: one Beta distribution's
// alpha/2 and 1-alpha/2 quantiles, not a two-distribution
// Clopper-Pearson bound.
// gonum's distuv.Beta exposes CDF but not an inverse CDF, so both
// quantiles are found by bisection against CDF.
func AccuracyCI(m *mat.Dense, alpha float64) (lo, hi float64) {
	r, c := m.Dims()
	n := math.Min(float64(r), float64(c))
	var diag, total float64
	for i := 0; i < int(n); i++ {
		diag += m.At(i, i)
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			total += m.At(i, j)
		}
	}
	if total == 0 {
		return 0, 0
	}
	x := diag
	fail := total - x
	if x == 0 {
		return 0, 0
	}
	if fail == 0 {
		return 1, 1
	}
	return betaQuantile(x, fail, alpha/2), betaQuantile(x, fail, 1-alpha/2)
}

// betaQuantile finds p such that distuv.Beta{Alpha: a, Beta: b}.CDF(p) ==
// target, by bisection over [0,1].
func betaQuantile(a, b, target float64) float64 {
	dist := distuv.Beta{Alpha: a, Beta: b}
	lo, hi := 0.0, 1.0
	for i := 0; i < 100; i++ {
		mid := (lo + hi) / 2
		if dist.CDF(mid) < target {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2
}

// MCC computes the Matthews Correlation Coefficient of a 2x2 confusion
// matrix.
func MCC(m ConfusionMatrix) float64 {
	tp, tn, fp, fn := m.Hit, m.CR, m.FA, m.Miss
	denom := math.Sqrt((tp + fp) * (tp + fn) * (tn + fp) * (tn + fn))
	if denom == 0 {
		return 0
	}
	return (tp*tn - fp*fn) / denom
}
