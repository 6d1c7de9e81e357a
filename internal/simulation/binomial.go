package simulation

import (
	"math"
	randv2 "math/rand/v2"

	mstats "github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat/distuv"

	"permscreen/domain/core"
)

// CoinExperiment answers "you flipped a coin Tosses times and saw k heads;
// how surprising is that for a coin with ProbHeads?" by simulating the
// binomial count Draws times and reading the observed count off the
// simulated distribution.
type CoinExperiment struct {
	Tosses    int
	ProbHeads float64
	Draws     int
}

// CoinOutcome is one simulated reference distribution of head counts
type CoinOutcome struct {
	Counts   []float64
	expected float64
}

// Run simulates the experiment. Deterministic for a fixed seed.
func (e CoinExperiment) Run(seed int64) (*CoinOutcome, error) {
	if e.Tosses < 1 {
		return nil, core.NewInvalidInputError("toss count must be positive")
	}
	if e.ProbHeads <= 0 || e.ProbHeads >= 1 {
		return nil, core.NewInvalidInputError("head probability must be in (0, 1)")
	}
	if e.Draws < 1 {
		return nil, core.NewInvalidInputError("draw count must be positive")
	}

	dist := distuv.Binomial{
		N:   float64(e.Tosses),
		P:   e.ProbHeads,
		Src: randv2.NewPCG(uint64(seed), uint64(seed)*0x9e3779b97f4a7c15),
	}

	counts := make([]float64, e.Draws)
	for i := range counts {
		counts[i] = dist.Rand()
	}
	return &CoinOutcome{Counts: counts, expected: dist.Mean()}, nil
}

// PGreater is the one-sided query: the proportion of simulated counts
// strictly greater than the observed count.
func (o *CoinOutcome) PGreater(observed float64) float64 {
	exceed := 0
	for _, c := range o.Counts {
		if c > observed {
			exceed++
		}
	}
	return float64(exceed) / float64(len(o.Counts))
}

// PTwoSided is the proportion of simulated counts at least as far from the
// expected count as the observed one, in either direction.
func (o *CoinOutcome) PTwoSided(observed float64) float64 {
	distance := math.Abs(observed - o.expected)
	exceed := 0
	for _, c := range o.Counts {
		if math.Abs(c-o.expected) >= distance {
			exceed++
		}
	}
	return float64(exceed) / float64(len(o.Counts))
}

// Summary describes the simulated distribution
type Summary struct {
	Mean   float64
	StdDev float64
	Min    float64
	Q25    float64
	Median float64
	Q75    float64
	Max    float64
}

// Describe computes the distribution summary
func (o *CoinOutcome) Describe() Summary {
	mean, _ := mstats.Mean(o.Counts)
	stdDev, _ := mstats.StandardDeviationSample(o.Counts)
	min, _ := mstats.Min(o.Counts)
	q25, _ := mstats.Percentile(o.Counts, 25)
	median, _ := mstats.Median(o.Counts)
	q75, _ := mstats.Percentile(o.Counts, 75)
	max, _ := mstats.Max(o.Counts)
	return Summary{
		Mean:   mean,
		StdDev: stdDev,
		Min:    min,
		Q25:    q25,
		Median: median,
		Q75:    q75,
		Max:    max,
	}
}
