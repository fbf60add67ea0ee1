package sampling

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRandom_SameSeedSameStream(t *testing.T) {
	a, b := NewRandom(7), NewRandom(7)
	for i := 0; i < 20; i++ {
		assert.Equal(t, a.Float64(), b.Float64())
		assert.Equal(t, a.Exponential(0, 100), b.Exponential(0, 100))
		assert.Equal(t, a.Gamma(3, 0.001, 10), b.Gamma(3, 0.001, 10))
	}
}

func TestRandom_Domains(t *testing.T) {
	r := NewRandom(1)
	for i := 0; i < 200; i++ {
		assert.GreaterOrEqual(t, r.Exponential(5, 2), 5.0)
		assert.GreaterOrEqual(t, r.Gamma(3, 0.001, 1), 0.001)
		n := r.IntN(4)
		assert.True(t, n >= 0 && n < 4)
	}
	assert.Equal(t, 3.0, r.Exponential(3, 0))
	assert.Equal(t, 0.001, r.Gamma(3, 0.001, 0))
	assert.False(t, r.Bernoulli(0))
	assert.True(t, r.Bernoulli(1))
}

func TestScript_ReplaysThenDefaults(t *testing.T) {
	s := &Script{Uniforms: []float64{0.05, 0.9}, Ints: []int{5}, Default: 0.5}

	assert.True(t, s.Bernoulli(0.1))
	assert.False(t, s.Bernoulli(0.1))
	assert.Equal(t, 0.5, s.Float64())
	assert.Equal(t, 1, s.IntN(4))
	assert.Equal(t, 0, s.IntN(4))
	assert.Equal(t, 2, s.Calls["Bernoulli"])
}
