// Package vision turns detector output into DetectionSamples: it validates
// candidate marker quads, picks the authoritative one, and absorbs short
// detector flicker.
package vision

import (
	"context"
	"time"

	"github.com/banshee-data/precision.land/internal/geometry"
)

// Frame is one detector result.
type Frame struct {
	Candidates []geometry.Quad `json:"candidates"`
	Width      int             `json:"width"`
	Height     int             `json:"height"`
	Timestamp  time.Time       `json:"timestamp"`
}

// Detector produces frames. Detect blocks until the next frame is available
// or ctx is done.
type Detector interface {
	Detect(ctx context.Context) (Frame, error)
}

// Sample is one marker observation. Errors are measured from the image centre:
// positive X is right of centre, positive Y is below it.
type Sample struct {
	Found       bool
	PixelX      float64
	PixelY      float64
	ImageWidth  int32
	ImageHeight int32
	RawErrorX   float64
	RawErrorY   float64
	NormErrorX  float64
	NormErrorY  float64
	TagArea     float64
	Timestamp   time.Time
}

// NewSample builds a found sample for marker q in a width×height image.
func NewSample(q geometry.Quad, width, height int, ts time.Time) Sample {
	c := q.Centre()
	w, h := float64(width), float64(height)
	s := Sample{
		Found:       true,
		PixelX:      c.X,
		PixelY:      c.Y,
		ImageWidth:  int32(width),
		ImageHeight: int32(height),
		RawErrorX:   c.X - w/2,
		RawErrorY:   c.Y - h/2,
		TagArea:     q.Area(),
		Timestamp:   ts,
	}
	if w > 0 {
		s.NormErrorX = s.RawErrorX / w
	}
	if h > 0 {
		s.NormErrorY = s.RawErrorY / h
	}
	return s
}
