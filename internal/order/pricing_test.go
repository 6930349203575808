package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistancePricerCharge(t *testing.T) {
	p := DistancePricer{Base: 20, PerKm: 5, FreeAbove: 500}

	cases := []struct {
		name       string
		distanceKm float64
		amount     float64
		want       float64
	}{
		{"base only at zero distance", 0, 100, 20},
		{"base plus per-km", 6, 100, 50},
		{"free at threshold", 3, 500, 0},
		{"free above threshold", 15, 1200, 0},
		{"just below threshold still charged", 2, 499.99, 30},
		{"negative distance treated as zero", -4, 100, 20},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, p.Charge(tc.distanceKm, tc.amount), 1e-9)
		})
	}
}

func TestDistancePricerZeroThresholdNeverFree(t *testing.T) {
	p := DistancePricer{Base: 20, PerKm: 5}
	assert.InDelta(t, 25, p.Charge(1, 10000), 1e-9)
}
