package control

import (
	"fmt"
	"math"

	"github.com/banshee-data/precision.land/internal/config"
)

// Tier is the schedule entry for one altitude band.
type Tier struct {
	Band         int
	Tolerance    float64
	DescentSpeed float64
}

// Schedule maps relative altitude to a Tier in fixed-height bands. The last
// band covers every altitude above it.
type Schedule struct {
	bandHeight float64
	bands      []config.AltitudeBand
}

// NewSchedule returns a Schedule. Bands must be non-empty and non-decreasing
// in both tolerance and descent speed.
func NewSchedule(bandHeight float64, bands []config.AltitudeBand) (*Schedule, error) {
	if bandHeight <= 0 {
		return nil, fmt.Errorf("band height must be positive, got %f", bandHeight)
	}
	if len(bands) == 0 {
		return nil, fmt.Errorf("schedule needs at least one band")
	}
	for i := 1; i < len(bands); i++ {
		if bands[i].Tolerance < bands[i-1].Tolerance || bands[i].DescentSpeed < bands[i-1].DescentSpeed {
			return nil, fmt.Errorf("band %d decreases relative to band %d", i, i-1)
		}
	}
	return &Schedule{bandHeight: bandHeight, bands: append([]config.AltitudeBand(nil), bands...)}, nil
}

// Lookup returns the tier for altitude metres above the ground.
func (s *Schedule) Lookup(altitude float64) Tier {
	idx := 0
	if altitude > 0 && !math.IsNaN(altitude) {
		idx = int(math.Floor(altitude / s.bandHeight))
	}
	if idx >= len(s.bands) {
		idx = len(s.bands) - 1
	}
	b := s.bands[idx]
	return Tier{Band: idx, Tolerance: b.Tolerance, DescentSpeed: b.DescentSpeed}
}

// Bands returns the number of bands.
func (s *Schedule) Bands() int { return len(s.bands) }
