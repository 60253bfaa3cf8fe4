package vision

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/precision.land/internal/geometry"
	"github.com/banshee-data/precision.land/internal/monitoring"
)

func TestParseFrame(t *testing.T) {
	f, err := ParseFrame([]byte(`{"width":640,"height":480,"ts_ns":1000,
		"candidates":[[[10,10],[60,10],[60,60],[10,60]]]}`))
	require.NoError(t, err)

	assert.Equal(t, 640, f.Width)
	assert.Equal(t, time.Unix(0, 1000), f.Timestamp)
	require.Len(t, f.Candidates, 1)
	assert.Equal(t, geometry.Point{X: 60, Y: 60}, f.Candidates[0][2])
}

func TestParseFrame_Rejects(t *testing.T) {
	_, err := ParseFrame([]byte(`not json`))
	assert.Error(t, err)
	_, err = ParseFrame([]byte(`{"width":0,"height":480}`))
	assert.Error(t, err)
}

func TestUDPDetector_ReceivesFrames(t *testing.T) {
	orig := monitoring.Logf
	monitoring.SetLogger(t.Logf)
	defer func() { monitoring.Logf = orig }()

	d, err := ListenUDP("127.0.0.1:0")
	require.NoError(t, err)
	defer d.Close()

	conn, err := net.Dial("udp", d.LocalAddr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte(`garbage`))
	require.NoError(t, err)
	_, err = conn.Write([]byte(`{"width":320,"height":240,"candidates":[]}`))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	f, err := d.Detect(ctx)
	require.NoError(t, err)
	assert.Equal(t, 320, f.Width)
	assert.Empty(t, f.Candidates)
}

func TestUDPDetector_ContextCancel(t *testing.T) {
	d, err := ListenUDP("127.0.0.1:0")
	require.NoError(t, err)
	defer d.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	_, err = d.Detect(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
