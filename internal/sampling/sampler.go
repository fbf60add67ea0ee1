// Package sampling provides the random draws used by the simulation.
//
// All stochastic components take a Sampler so tests can inject scripted
// values without touching the accumulation or selection logic.
package sampling

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Sampler is the source of every random draw in a step.
type Sampler interface {
	// Float64 returns a uniform value in [0, 1).
	Float64() float64

	// Bernoulli returns true with probability p.
	Bernoulli(p float64) bool

	// IntN returns a uniform integer in [0, n).
	IntN(n int) int

	// Exponential draws from an exponential distribution shifted by loc.
	Exponential(loc, scale float64) float64

	// Gamma draws from a gamma distribution shifted by loc.
	Gamma(shape, loc, scale float64) float64
}

// Random is the seeded Sampler backed by a PCG stream.
type Random struct {
	src *rand.PCG
	rng *rand.Rand
}

// NewRandom creates a Sampler whose whole stream is determined by seed.
func NewRandom(seed uint64) *Random {
	src := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	return &Random{src: src, rng: rand.New(src)}
}

func (r *Random) Float64() float64 { return r.rng.Float64() }

func (r *Random) Bernoulli(p float64) bool {
	return r.rng.Float64() < p
}

func (r *Random) IntN(n int) int {
	if n <= 0 {
		return 0
	}
	return r.rng.IntN(n)
}

// Exponential returns loc when scale is not positive.
func (r *Random) Exponential(loc, scale float64) float64 {
	if scale <= 0 {
		return loc
	}
	return loc + distuv.Exponential{Rate: 1 / scale, Src: r.src}.Rand()
}

// Gamma returns loc when shape or scale is not positive.
func (r *Random) Gamma(shape, loc, scale float64) float64 {
	if shape <= 0 || scale <= 0 {
		return loc
	}
	return loc + distuv.Gamma{Alpha: shape, Beta: 1 / scale, Src: r.src}.Rand()
}
