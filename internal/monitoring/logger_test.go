package monitoring

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got []string
	SetLogger(func(format string, v ...interface{}) {
		got = append(got, fmt.Sprintf(format, v...))
	})
	Logf("tick %d", 3)
	assert.Equal(t, []string{"tick 3"}, got)

	SetLogger(nil)
	Logf("muted")
	assert.Len(t, got, 1, "nil logger must be a no-op")
}

func TestWarnf_Prefix(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var line string
	SetLogger(func(format string, v ...interface{}) {
		line = fmt.Sprintf(format, v...)
	})
	Warnf("%d consecutive dispatch failures", 3)
	assert.Equal(t, "[warn] 3 consecutive dispatch failures", line)
}
