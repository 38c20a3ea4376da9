package lsh

import (
	"fmt"
	"math"

	"github.com/cognicore/neardup/pkg/neardup/internalerr"
)

// Params is the banding layout: Bands bands of Rows signature positions.
type Params struct {
	Bands int `yaml:"bands" json:"bands"`
	Rows  int `yaml:"rows" json:"rows"`
}

// Validate checks that the layout covers a numPerm-long signature exactly.
func (p Params) Validate(numPerm int) error {
	if p.Bands < 1 || p.Rows < 1 {
		return fmt.Errorf("%w: bands and rows must be positive (got b=%d r=%d)", internalerr.ErrInvalidConfig, p.Bands, p.Rows)
	}
	if p.Bands*p.Rows != numPerm {
		return fmt.Errorf("%w: bands*rows must equal num_perm (%d*%d != %d)", internalerr.ErrInvalidConfig, p.Bands, p.Rows, numPerm)
	}
	return nil
}

// Midpoint returns (1/b)^(1/r), the similarity where the S-curve is steepest.
func (p Params) Midpoint() float64 {
	return math.Pow(1/float64(p.Bands), 1/float64(p.Rows))
}

func (p Params) String() string {
	return fmt.Sprintf("b=%d r=%d", p.Bands, p.Rows)
}

// Weights balances false positives against false negatives when choosing Params.
type Weights struct {
	FalsePositive float64
	FalseNegative float64
}

// DefaultWeights weighs both error kinds equally.
func DefaultWeights() Weights {
	return Weights{FalsePositive: 0.5, FalseNegative: 0.5}
}

// CollisionProbability is the chance that two documents with Jaccard s share
// at least one band: 1 - (1 - s^r)^b.
func CollisionProbability(s float64, p Params) float64 {
	return 1 - math.Pow(1-math.Pow(s, float64(p.Rows)), float64(p.Bands))
}

// FalsePositiveArea integrates the collision probability below threshold.
func FalsePositiveArea(threshold float64, p Params) float64 {
	return integrate(func(s float64) float64 {
		return CollisionProbability(s, p)
	}, 0, threshold)
}

// FalseNegativeArea integrates the miss probability above threshold.
func FalseNegativeArea(threshold float64, p Params) float64 {
	return integrate(func(s float64) float64 {
		return 1 - CollisionProbability(s, p)
	}, threshold, 1)
}

// OptimalParams picks, among layouts with b*r == numPerm, the one minimizing
// the weighted false positive and false negative areas around threshold.
func OptimalParams(threshold float64, numPerm int, w Weights) (Params, error) {
	if threshold <= 0 || threshold >= 1 {
		return Params{}, fmt.Errorf("%w: threshold must be in (0, 1) (got %.3f)", internalerr.ErrInvalidConfig, threshold)
	}
	if numPerm < 1 {
		return Params{}, fmt.Errorf("%w: num_perm must be positive (got %d)", internalerr.ErrInvalidConfig, numPerm)
	}
	if w.FalsePositive < 0 || w.FalseNegative < 0 || w.FalsePositive+w.FalseNegative == 0 {
		return Params{}, fmt.Errorf("%w: weights must be non-negative and not both zero", internalerr.ErrInvalidConfig)
	}

	var (
		best    Params
		minCost = math.Inf(1)
	)
	for b := 1; b <= numPerm; b++ {
		if numPerm%b != 0 {
			continue
		}
		p := Params{Bands: b, Rows: numPerm / b}
		cost := w.FalsePositive*FalsePositiveArea(threshold, p) +
			w.FalseNegative*FalseNegativeArea(threshold, p)
		if cost < minCost {
			minCost = cost
			best = p
		}
	}
	return best, nil
}

const simpsonSteps = 200

// integrate applies composite Simpson's rule over [a, b].
func integrate(f func(float64) float64, a, b float64) float64 {
	if b <= a {
		return 0
	}
	h := (b - a) / simpsonSteps
	sum := f(a) + f(b)
	for i := 1; i < simpsonSteps; i++ {
		x := a + float64(i)*h
		if i%2 == 1 {
			sum += 4 * f(x)
		} else {
			sum += 2 * f(x)
		}
	}
	return sum * h / 3
}
