package welch

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"permscreen/domain/core"
)

// Result holds a Welch's t-test outcome between two groups with unequal
// variances. Used as the parametric cross-check next to permutation
// p-values; the screening verdict itself never depends on it.
type Result struct {
	T          float64 // Welch's t-statistic
	DF         float64 // Welch-Satterthwaite degrees of freedom
	PValue     float64 // two-sided
	MeanA      float64
	MeanB      float64
	NA         int // usable (non-missing) observations in A
	NB         int
	EffectSize float64 // Cohen's d with pooled standard deviation
}

// TTest performs Welch's t-test between two samples, excluding NaN values
// from each sample independently. Fewer than two usable values in either
// sample makes the test undefined.
func TTest(column core.VariableKey, a, b []float64) (Result, error) {
	xa := dropMissing(a)
	xb := dropMissing(b)

	if len(xa) < 2 {
		return Result{}, core.NewDegenerateGroupError(column, "A", len(xa))
	}
	if len(xb) < 2 {
		return Result{}, core.NewDegenerateGroupError(column, "B", len(xb))
	}

	n1 := float64(len(xa))
	n2 := float64(len(xb))
	mean1 := mean(xa)
	mean2 := mean(xb)
	var1 := variance(xa, mean1)
	var2 := variance(xb, mean2)

	se := math.Sqrt(var1/n1 + var2/n2)
	if se == 0 {
		return Result{}, core.NewInvalidInputError("zero variance in both groups for column " + column.String())
	}
	tStat := (mean1 - mean2) / se

	// Welch-Satterthwaite equation
	df := math.Pow(var1/n1+var2/n2, 2) /
		(math.Pow(var1/n1, 2)/(n1-1) + math.Pow(var2/n2, 2)/(n2-1))

	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	pValue := 2 * dist.Survival(math.Abs(tStat))
	if pValue > 1 {
		pValue = 1
	}

	pooledSD := math.Sqrt(((n1-1)*var1 + (n2-1)*var2) / (n1 + n2 - 2))
	effectSize := 0.0
	if pooledSD > 0 {
		effectSize = (mean1 - mean2) / pooledSD
	}

	return Result{
		T:          tStat,
		DF:         df,
		PValue:     pValue,
		MeanA:      mean1,
		MeanB:      mean2,
		NA:         len(xa),
		NB:         len(xb),
		EffectSize: effectSize,
	}, nil
}

func dropMissing(data []float64) []float64 {
	out := make([]float64, 0, len(data))
	for _, v := range data {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

func mean(data []float64) float64 {
	sum := 0.0
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

func variance(data []float64, m float64) float64 {
	sumSq := 0.0
	for _, v := range data {
		d := v - m
		sumSq += d * d
	}
	return sumSq / float64(len(data)-1)
}
