package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianfs/onboard/pkg/schema"
)

// flakyPort fails welcome sends until recovered is flipped; every other
// channel always succeeds.
type flakyPort struct {
	recovered bool
	calls     int
}

func (f *flakyPort) SendWelcome(_ context.Context, _, _ string) error {
	f.calls++
	if !f.recovered {
		return errors.New("smtp connection refused")
	}
	return nil
}

func (f *flakyPort) SendStepReminder(_ context.Context, _, _, _ string) error { return nil }
func (f *flakyPort) SendMilestoneCelebration(_ context.Context, _, _, _ string) error {
	return nil
}
func (f *flakyPort) SendDelay(_ context.Context, _, _, _ string, _ time.Time) error {
	return nil
}
func (f *flakyPort) SendBlockerAlert(_ context.Context, _, _, _ string) error  { return nil }
func (f *flakyPort) SendCompletionNotice(_ context.Context, _, _ string) error { return nil }

func TestGuardedPort_OpensAfterThreshold(t *testing.T) {
	inner := &flakyPort{}
	cfg := BreakerConfig{FailureThreshold: 3, Cooldown: time.Hour, HalfOpenMax: 1}
	port := NewGuardedPort(inner, cfg)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := port.SendWelcome(ctx, "wf-1", "client-1")
		require.Error(t, err)
	}
	assert.Equal(t, BreakerOpen, port.State("welcome"))

	// Further sends are suppressed without reaching the inner port.
	before := inner.calls
	err := port.SendWelcome(ctx, "wf-1", "client-1")
	require.Error(t, err)
	obErr, ok := err.(*schema.OnboardError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeCircuitOpen, obErr.Code)
	assert.Equal(t, before, inner.calls)
}

func TestGuardedPort_ChannelsAreIndependent(t *testing.T) {
	inner := &flakyPort{}
	cfg := BreakerConfig{FailureThreshold: 1, Cooldown: time.Hour, HalfOpenMax: 1}
	port := NewGuardedPort(inner, cfg)
	ctx := context.Background()

	require.Error(t, port.SendWelcome(ctx, "wf-1", "client-1"))
	assert.Equal(t, BreakerOpen, port.State("welcome"))

	// The reminder channel rides on the embedded notifier and still works.
	require.NoError(t, port.SendStepReminder(ctx, "wf-1", "client-1", "Submit proof of address"))
	assert.Equal(t, BreakerClosed, port.State("step_reminder"))

	// So does the delay channel.
	require.NoError(t, port.SendDelay(ctx, "wf-1", "client-1", "remaining work increased", time.Now().Add(48*time.Hour)))
	assert.Equal(t, BreakerClosed, port.State("delay"))
}

func TestGuardedPort_RecoversThroughHalfOpen(t *testing.T) {
	inner := &flakyPort{}
	cfg := BreakerConfig{FailureThreshold: 1, Cooldown: 10 * time.Millisecond, HalfOpenMax: 1}
	port := NewGuardedPort(inner, cfg)
	ctx := context.Background()

	require.Error(t, port.SendWelcome(ctx, "wf-1", "client-1"))
	assert.Equal(t, BreakerOpen, port.State("welcome"))

	time.Sleep(15 * time.Millisecond)
	assert.Equal(t, BreakerHalfOpen, port.State("welcome"))

	// The probe succeeds once the channel has recovered, closing the circuit.
	inner.recovered = true
	require.NoError(t, port.SendWelcome(ctx, "wf-1", "client-1"))
	assert.Equal(t, BreakerClosed, port.State("welcome"))
}

func TestGuardedPort_ProbeFailureReopens(t *testing.T) {
	inner := &flakyPort{}
	cfg := BreakerConfig{FailureThreshold: 1, Cooldown: 10 * time.Millisecond, HalfOpenMax: 1}
	port := NewGuardedPort(inner, cfg)
	ctx := context.Background()

	require.Error(t, port.SendWelcome(ctx, "wf-1", "client-1"))
	time.Sleep(15 * time.Millisecond)

	require.Error(t, port.SendWelcome(ctx, "wf-1", "client-1")) // probe fails
	assert.Equal(t, BreakerOpen, port.State("welcome"))
}
