package flight

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recorder struct {
	calls []string
	err   error
}

func (r *recorder) call(name string) error {
	r.calls = append(r.calls, name)
	return r.err
}

func (r *recorder) SetVelocityBody(context.Context, VelocityBody) error    { return r.call("velocity") }
func (r *recorder) SetPositionNED(context.Context, PositionSetpoint) error { return r.call("position") }
func (r *recorder) Arm(context.Context) error                              { return r.call("arm") }
func (r *recorder) Takeoff(context.Context, float64) error                 { return r.call("takeoff") }
func (r *recorder) Land(context.Context) error                             { return r.call("land") }
func (r *recorder) Disarm(context.Context) error                           { return r.call("disarm") }

func TestDispatch(t *testing.T) {
	r := &recorder{}
	ctx := context.Background()

	assert.NoError(t, Dispatch(ctx, r, Command{}))
	assert.NoError(t, Dispatch(ctx, r, Hover()))
	assert.NoError(t, Dispatch(ctx, r, HoldAt(PositionNED{North: 1}, 90)))
	assert.NoError(t, Dispatch(ctx, r, Command{Kind: LandAndDisarm}))

	assert.Equal(t, []string{"velocity", "position", "land"}, r.calls)
}

func TestDispatch_PropagatesError(t *testing.T) {
	boom := errors.New("link down")
	err := Dispatch(context.Background(), &recorder{err: boom}, Hover())
	assert.ErrorIs(t, err, boom)
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "land_and_disarm", LandAndDisarm.String())
	assert.Equal(t, "kind(9)", Kind(9).String())
}
