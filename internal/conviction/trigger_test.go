package conviction

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThreshold_Compute(t *testing.T) {
	th := Threshold{Alpha: 0.5, Beta: 0.2, Rho: 0.0025}

	tests := []struct {
		name      string
		requested float64
		pool      float64
		supply    float64
		want      float64
	}{
		{"zero request", 0, 1000, 1000, 2.5 / (0.5 * 0.04)},
		{"small share", 100, 2000, 1000, 2.5 / (0.5 * 0.15 * 0.15)},
		{"share at beta", 200, 1000, 1000, Unreachable},
		{"share above beta", 900, 1000, 1000, Unreachable},
		{"empty pool", 1, 0, 1000, Unreachable},
		{"negative pool", 1, -5, 1000, Unreachable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, th.Compute(tt.requested, tt.pool, tt.supply), 1e-9)
		})
	}
}

func TestThreshold_Monotone(t *testing.T) {
	trigger := Threshold{Alpha: 0.9, Beta: 0.2, Rho: 0.002}.Func()

	prev := trigger(0, 1000, 500)
	for req := 10.0; req < 200; req += 10 {
		next := trigger(req, 1000, 500)
		assert.Greater(t, next, prev, "requested %g", req)
		prev = next
	}

	// A bigger pool lowers the share and so the threshold.
	assert.Greater(t, trigger(50, 500, 500), trigger(50, 1000, 500))
}
