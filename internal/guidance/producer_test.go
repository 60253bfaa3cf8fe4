package guidance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/precision.land/internal/config"
	"github.com/banshee-data/precision.land/internal/flight"
	"github.com/banshee-data/precision.land/internal/geometry"
	"github.com/banshee-data/precision.land/internal/monitoring"
	"github.com/banshee-data/precision.land/internal/vision"
)

func quiet(t *testing.T) {
	prev := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(prev) })
}

func TestLatest_ZeroValue(t *testing.T) {
	var l Latest[int]
	v, seq := l.Load()
	assert.Zero(t, v)
	assert.Zero(t, seq)

	l.Store(7)
	l.Store(9)
	v, seq = l.Load()
	assert.Equal(t, 9, v)
	assert.Equal(t, uint64(2), seq)
}

func TestLatest_ConcurrentAccess(t *testing.T) {
	var l Latest[vision.Sample]
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				l.Store(vision.Sample{Found: true, PixelX: float64(w), PixelY: float64(w)})
				s, _ := l.Load()
				// A reader never sees a half-written sample.
				assert.Equal(t, s.PixelX, s.PixelY)
			}
		}(w)
	}
	wg.Wait()
	_, seq := l.Load()
	assert.Equal(t, uint64(4000), seq)
}

// chanDetector hands out frames from a channel.
type chanDetector struct {
	frames chan vision.Frame
	err    error
}

func (d *chanDetector) Detect(ctx context.Context) (vision.Frame, error) {
	if d.err != nil {
		return vision.Frame{}, d.err
	}
	select {
	case <-ctx.Done():
		return vision.Frame{}, ctx.Err()
	case f := <-d.frames:
		return f, nil
	}
}

func square(x, y, side float64) geometry.Quad {
	return geometry.Quad{{X: x, Y: y}, {X: x + side, Y: y}, {X: x + side, Y: y + side}, {X: x, Y: y + side}}
}

func TestVisionProducer_PublishesSamples(t *testing.T) {
	quiet(t)
	tracker, err := vision.NewTrackerFromTuning(config.EmptyTuningConfig(), nil)
	require.NoError(t, err)

	det := &chanDetector{frames: make(chan vision.Frame)}
	out := &Latest[vision.Sample]{}
	p := NewVisionProducer(det, tracker, out)

	require.NoError(t, p.Start(context.Background()))
	assert.True(t, p.Running())
	assert.Error(t, p.Start(context.Background()))

	det.frames <- vision.Frame{Candidates: []geometry.Quad{square(300, 220, 40)}, Width: 640, Height: 480}
	require.Eventually(t, func() bool {
		_, seq := out.Load()
		return seq >= 1
	}, time.Second, 5*time.Millisecond)

	s, _ := out.Load()
	assert.True(t, s.Found)
	assert.Equal(t, 320.0, s.PixelX)
	assert.Equal(t, 0.0, s.NormErrorX)

	p.Stop()
	assert.False(t, p.Running())
	p.Stop()
}

func TestVisionProducer_DetectorErrorPublishesMiss(t *testing.T) {
	quiet(t)
	tracker, err := vision.NewTrackerFromTuning(config.EmptyTuningConfig(), nil)
	require.NoError(t, err)

	out := &Latest[vision.Sample]{}
	p := NewVisionProducer(&chanDetector{err: errors.New("camera gone")}, tracker, out)
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	require.Eventually(t, func() bool {
		_, seq := out.Load()
		return seq >= 1
	}, time.Second, 5*time.Millisecond)
	s, _ := out.Load()
	assert.False(t, s.Found)
}

func TestProducer_StopBeforeStart(t *testing.T) {
	p := newProducer("idle", func(ctx context.Context) error { return nil })
	p.Stop()
	p.Stop()
	assert.False(t, p.Running())
}

func TestProducer_Restart(t *testing.T) {
	calls := make(chan struct{}, 1)
	p := newProducer("restart", func(ctx context.Context) error {
		select {
		case calls <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return ctx.Err()
	})

	for i := 0; i < 2; i++ {
		require.NoError(t, p.Start(context.Background()))
		<-calls
		p.Stop()
		assert.False(t, p.Running())
	}
}

type fakeTelemetrySource struct {
	mu       sync.Mutex
	ch       chan flight.Telemetry
	cancels  int
	subCount int
}

func (f *fakeTelemetrySource) Subscribe() (<-chan flight.Telemetry, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subCount++
	return f.ch, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.cancels++
	}
}

func (f *fakeTelemetrySource) stats() (subs, cancels int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subCount, f.cancels
}

func TestTelemetryProducer_PublishesWithLandedFlag(t *testing.T) {
	quiet(t)
	src := &fakeTelemetrySource{ch: make(chan flight.Telemetry)}
	out := &Latest[TelemetrySnapshot]{}
	p := NewTelemetryProducer(src, 0.5, nil, out)
	require.NoError(t, p.Start(context.Background()))

	src.ch <- flight.Telemetry{RelativeAltitude: 3}
	require.Eventually(t, func() bool {
		s, _ := out.Load()
		return s.RelativeAltitude == 3
	}, time.Second, 5*time.Millisecond)
	s, _ := out.Load()
	assert.False(t, s.Landed)

	src.ch <- flight.Telemetry{RelativeAltitude: 0.2}
	require.Eventually(t, func() bool {
		s, _ := out.Load()
		return s.Landed
	}, time.Second, 5*time.Millisecond)

	p.Stop()
	subs, cancels := src.stats()
	assert.Equal(t, 1, subs)
	assert.Equal(t, 1, cancels)
}

func TestTelemetryProducer_ExitsWhenSourceCloses(t *testing.T) {
	quiet(t)
	src := &fakeTelemetrySource{ch: make(chan flight.Telemetry)}
	p := NewTelemetryProducer(src, 0.5, nil, &Latest[TelemetrySnapshot]{})
	require.NoError(t, p.Start(context.Background()))

	close(src.ch)
	require.Eventually(t, func() bool { return !p.Running() }, time.Second, 5*time.Millisecond)
	p.Stop()

	_, cancels := src.stats()
	assert.Equal(t, 1, cancels)
}
