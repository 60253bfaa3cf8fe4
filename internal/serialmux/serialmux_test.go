package serialmux

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case line, ok := <-ch:
		require.True(t, ok, "channel closed")
		return line
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for line")
	}
	return ""
}

func TestSerialMux_SendLineAppendsNewline(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	require.NoError(t, mux.SendLine(`{"cmd":"land"}`))
	require.NoError(t, mux.SendLine("{\"cmd\":\"disarm\"}\n"))
	assert.Equal(t, []string{`{"cmd":"land"}`, `{"cmd":"disarm"}`}, port.WrittenLines())
}

func TestSerialMux_SendLineErrors(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	boom := errors.New("usb unplugged")
	port.SetWriteError(boom)
	assert.ErrorIs(t, mux.SendLine("x"), boom)

	port.SetWriteError(nil)
	port.ShortWrites = true
	assert.ErrorIs(t, mux.SendLine("x"), ErrWriteFailed)
}

func TestSerialMux_MonitorFansOut(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	_, a := mux.Subscribe()
	idB, b := mux.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- mux.Monitor(ctx) }()

	port.AddReadData("first\nsecond\n")
	assert.Equal(t, "first", recv(t, a))
	assert.Equal(t, "second", recv(t, a))
	assert.Equal(t, "first", recv(t, b))

	mux.Unsubscribe(idB)
	assert.Equal(t, "second", recv(t, b), "buffered line survives unsubscribe")
	_, ok := <-b
	assert.False(t, ok)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Monitor did not return after cancel")
	}
}

func TestSerialMux_CloseClosesSubscribersAndPort(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	_, ch := mux.Subscribe()

	require.NoError(t, mux.Close())
	require.NoError(t, mux.Close(), "second close is a no-op")
	_, ok := <-ch
	assert.False(t, ok)
	assert.True(t, port.Closed())

	_, late := mux.Subscribe()
	_, ok = <-late
	assert.False(t, ok, "subscribing after close yields a closed channel")
}

func TestSerialMux_MonitorReturnsOnPortClose(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	done := make(chan error, 1)
	go func() { done <- mux.Monitor(context.Background()) }()
	require.NoError(t, mux.Close())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Monitor did not return after Close")
	}
}
