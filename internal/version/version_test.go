package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	assert.Equal(t, "lander dev (unknown) built unknown", String("lander"))

	prevSHA, prevVersion := GitSHA, Version
	t.Cleanup(func() { GitSHA, Version = prevSHA, prevVersion })
	GitSHA = "0123456789abcdef0123"
	Version = "v0.3.1"
	assert.Equal(t, "flightlog v0.3.1 (0123456789ab) built unknown", String("flightlog"))
}
