package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/precision.land/internal/flightlog"
)

func seed(t *testing.T) *flightlog.Store {
	t.Helper()
	store, err := flightlog.Open(filepath.Join(t.TempDir(), "log.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	t0 := time.Unix(1700000000, 0)
	require.NoError(t, store.InsertSession(ctx, flightlog.Session{ID: "one", StartedAt: t0}))
	require.NoError(t, store.InsertTransition(ctx, flightlog.TransitionRecord{
		Session: "one", Machine: flightlog.MachineLanding, From: "IDLE", To: "WAITING", At: t0, Altitude: 5,
	}))
	require.NoError(t, store.InsertTransition(ctx, flightlog.TransitionRecord{
		Session: "one", Machine: flightlog.MachineLanding, From: "WAITING", To: "CIRCLE", At: t0.Add(5 * time.Second), Altitude: 5,
	}))
	require.NoError(t, store.InsertTicks(ctx, []flightlog.TickRecord{
		{Session: "one", At: t0.Add(time.Second), DetectionMode: "TRACKING", LandingMode: "WAITING", Altitude: 5, Command: "hold"},
		{Session: "one", At: t0.Add(6 * time.Second), DetectionMode: "SEARCHING", LandingMode: "CIRCLE", Altitude: 5, Command: "velocity"},
	}))
	require.NoError(t, store.EndSession(ctx, "one", t0.Add(8*time.Second), "aborted"))
	return store
}

func TestPrintSummaries(t *testing.T) {
	store := seed(t)
	var buf bytes.Buffer
	require.NoError(t, printSummaries(context.Background(), &buf, store, 10))
	assert.Contains(t, buf.String(), "one")
	assert.Contains(t, buf.String(), "CIRCLE=3s")
}

func TestPrintSummaries_Empty(t *testing.T) {
	store, err := flightlog.Open(filepath.Join(t.TempDir(), "empty.db"))
	require.NoError(t, err)
	defer store.Close()

	var buf bytes.Buffer
	require.NoError(t, printSummaries(context.Background(), &buf, store, 0))
	assert.Equal(t, "no sessions recorded\n", buf.String())
}

func TestPrintTimeline(t *testing.T) {
	store := seed(t)
	var buf bytes.Buffer
	require.NoError(t, printTimeline(context.Background(), &buf, store, "one"))
	out := buf.String()
	assert.Contains(t, out, "WAITING -> CIRCLE")
	assert.Contains(t, out, "ended +8s: aborted")

	assert.Error(t, printTimeline(context.Background(), &buf, store, "nope"))
}

func TestExportTicks(t *testing.T) {
	store := seed(t)
	dir := t.TempDir()

	path, err := exportTicks(context.Background(), store, "one", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "one.csv"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[2], "6.000,SEARCHING,CIRCLE,"))

	named := filepath.Join(dir, "trace.csv")
	path, err = exportTicks(context.Background(), store, "one", named)
	require.NoError(t, err)
	assert.Equal(t, named, path)

	_, err = exportTicks(context.Background(), store, "nope", dir)
	assert.Error(t, err)
}

func TestExportPath_RejectsOutsideDirectories(t *testing.T) {
	_, err := exportPath("/etc/trace.csv", "one")
	assert.Error(t, err)
}
