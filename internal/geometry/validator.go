package geometry

import (
	"fmt"

	"github.com/banshee-data/precision.land/internal/config"
)

// minEdge is the edge length below which a quad is degenerate.
const minEdge = 1e-6

// Rejection explains why a candidate failed validation.
type Rejection string

const (
	Accepted     Rejection = ""
	OutsideImage Rejection = "outside_image" // a corner on or past the border
	Degenerate   Rejection = "degenerate"    // an edge shorter than minEdge
	Skewed       Rejection = "skewed"        // edge ratio above MaxEdgeRatio
	TooSmall     Rejection = "too_small"     // area below MinArea
)

// Policy selects one candidate from the survivors of a frame.
type Policy string

const (
	SmallestArea   Policy = Policy(config.SelectSmallestArea)
	DivergenceSwap Policy = Policy(config.SelectDivergenceSwap)
)

// Config holds validation and selection parameters.
type Config struct {
	MaxEdgeRatio  float64
	MinArea       float64 // px²
	Policy        Policy
	SwapAreaDelta float64 // px², DivergenceSwap only
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		MaxEdgeRatio:  cfg.GetMaxEdgeRatio(),
		MinArea:       cfg.GetMinTagArea(),
		Policy:        Policy(cfg.GetSelectionPolicy()),
		SwapAreaDelta: cfg.GetSwapAreaDelta(),
	}
}

// Validator checks candidate quads against one image size at a time.
type Validator struct {
	cfg Config
}

// NewValidator returns a Validator, or an error if cfg cannot be used.
func NewValidator(cfg Config) (*Validator, error) {
	if cfg.MaxEdgeRatio < 1 {
		return nil, fmt.Errorf("max edge ratio must be >= 1, got %f", cfg.MaxEdgeRatio)
	}
	if cfg.MinArea < 0 {
		return nil, fmt.Errorf("min area must be non-negative, got %f", cfg.MinArea)
	}
	switch cfg.Policy {
	case SmallestArea, DivergenceSwap:
	case "":
		cfg.Policy = SmallestArea
	default:
		return nil, fmt.Errorf("unknown selection policy %q", cfg.Policy)
	}
	return &Validator{cfg: cfg}, nil
}

// Check validates q against a width×height image.
func (v *Validator) Check(q Quad, width, height int) Rejection {
	w, h := float64(width), float64(height)
	for _, p := range q {
		if p.X <= 0 || p.X >= w || p.Y <= 0 || p.Y >= h {
			return OutsideImage
		}
	}

	edges := q.Edges()
	lo, hi := edges[0], edges[0]
	for _, e := range edges[1:] {
		if e < lo {
			lo = e
		}
		if e > hi {
			hi = e
		}
	}
	if lo < minEdge {
		return Degenerate
	}
	if hi/lo > v.cfg.MaxEdgeRatio {
		return Skewed
	}

	if q.Area() < v.cfg.MinArea {
		return TooSmall
	}
	return Accepted
}

// Select validates every candidate and returns the authoritative one.
// ok is false when no candidate survives.
func (v *Validator) Select(cands []Quad, width, height int) (best Quad, ok bool) {
	survivors := make([]Quad, 0, len(cands))
	for _, q := range cands {
		if v.Check(q, width, height) == Accepted {
			survivors = append(survivors, q)
		}
	}
	if len(survivors) == 0 {
		return Quad{}, false
	}

	switch v.cfg.Policy {
	case DivergenceSwap:
		if len(survivors) >= 2 && survivors[0].Area()-survivors[1].Area() > v.cfg.SwapAreaDelta {
			return survivors[1], true
		}
		return survivors[0], true
	default:
		best = survivors[0]
		bestArea := best.Area()
		for _, q := range survivors[1:] {
			if a := q.Area(); a < bestArea {
				best, bestArea = q, a
			}
		}
		return best, true
	}
}
