package session

import (
	"context"
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/gpu"
	"github.com/Carmen-Shannon/oxy-core/engine/gpu/gputest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeTransitionsToReady(t *testing.T) {
	acq := gputest.NewAcquirer()
	s := NewSession(acq)

	assert.Equal(t, StateUninitialized, s.State())
	assert.Equal(t, uuid.Nil, s.ID())
	_, _, err := s.Backend()
	assert.ErrorIs(t, err, common.ErrDeviceUnavailable)

	require.NoError(t, s.Initialize(context.Background()))
	assert.Equal(t, StateReady, s.State())
	assert.NotEqual(t, uuid.Nil, s.ID())

	backend, epoch, err := s.Backend()
	require.NoError(t, err)
	assert.Same(t, acq.Last(), backend)
	assert.True(t, s.Valid(epoch))

	// Already ready: no second acquisition.
	require.NoError(t, s.Initialize(context.Background()))
	assert.Equal(t, 1, acq.Acquired())
	assert.Equal(t, epoch, s.Epoch())
}

func TestInitializeFailure(t *testing.T) {
	acq := gputest.NewAcquirer()
	acq.FailWith(errors.New("no adapter"))
	s := NewSession(acq)

	err := s.Initialize(context.Background())
	require.ErrorIs(t, err, common.ErrDeviceUnavailable)
	assert.Equal(t, StateUninitialized, s.State())
}

func TestInitializeHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewSession(gputest.NewAcquirer())
	assert.ErrorIs(t, s.Initialize(ctx), common.ErrDeviceUnavailable)
}

// earlyLossAcquirer reports the device lost before Acquire returns.
type earlyLossAcquirer struct {
	*gputest.Acquirer
}

func (a earlyLossAcquirer) Acquire(ctx context.Context, lost gpu.LostFunc) (gpu.Backend, error) {
	b, err := a.Acquirer.Acquire(ctx, lost)
	if err != nil {
		return nil, err
	}
	lost("driver reset")
	return b, nil
}

func TestLossDuringAcquisitionIsApplied(t *testing.T) {
	acq := gputest.NewAcquirer()
	s := NewSession(earlyLossAcquirer{acq})
	invalidated := 0
	s.OnInvalidate(func(uint64) { invalidated++ })

	err := s.Initialize(context.Background())
	require.ErrorIs(t, err, common.ErrDeviceLost)
	assert.Equal(t, StateLost, s.State())
	assert.Equal(t, 1, invalidated)
	assert.True(t, acq.Last().Released())

	_, _, err = s.Backend()
	assert.ErrorIs(t, err, common.ErrDeviceUnavailable)
}

func TestDeviceLossInvalidatesInOrder(t *testing.T) {
	acq := gputest.NewAcquirer()
	s := NewSession(acq)
	require.NoError(t, s.Initialize(context.Background()))
	_, before, _ := s.Backend()

	var calls []string
	var seen uint64
	s.OnInvalidate(func(epoch uint64) {
		calls = append(calls, "pipelines")
		seen = epoch
	})
	s.OnInvalidate(func(uint64) { calls = append(calls, "objects") })

	acq.Last().Lose("driver reset")

	assert.Equal(t, StateLost, s.State())
	assert.Equal(t, []string{"pipelines", "objects"}, calls)
	assert.Equal(t, s.Epoch(), seen)
	assert.False(t, s.Valid(before))
	assert.True(t, acq.Last().Released())

	_, _, err := s.Backend()
	assert.ErrorIs(t, err, common.ErrDeviceUnavailable)

	// A second loss report is ignored.
	s.HandleDeviceLost("again")
	assert.Len(t, calls, 2)
}

func TestReinitializeAfterLoss(t *testing.T) {
	acq := gputest.NewAcquirer()
	s := NewSession(acq)
	require.NoError(t, s.Initialize(context.Background()))
	first := acq.Last()
	firstID := s.ID()

	s.HandleDeviceLost("simulated")
	require.NoError(t, s.Initialize(context.Background()))

	assert.Equal(t, StateReady, s.State())
	assert.Equal(t, 2, acq.Acquired())
	assert.NotEqual(t, firstID, s.ID())

	// The old device reporting loss late does not affect the new one.
	first.Lose("late report")
	assert.Equal(t, StateReady, s.State())
}

func TestConfigureSurfaceIsRememberedAcrossDevices(t *testing.T) {
	acq := gputest.NewAcquirer()
	s := NewSession(acq)

	err := s.ConfigureSurface(gputest.Surface{W: 800, H: 600})
	assert.ErrorIs(t, err, common.ErrDeviceUnavailable)

	require.NoError(t, s.Initialize(context.Background()))
	w, h := acq.Last().SurfaceSize()
	assert.Equal(t, 800, w)
	assert.Equal(t, 600, h)

	require.NoError(t, s.ConfigureSurface(gputest.Surface{W: 1024, H: 768}))
	w, h = acq.Last().SurfaceSize()
	assert.Equal(t, 1024, w)
	assert.Equal(t, 768, h)
}

func TestTeardown(t *testing.T) {
	acq := gputest.NewAcquirer()
	s := NewSession(acq, WithLogger(common.DiscardLogger()))
	require.NoError(t, s.Initialize(context.Background()))
	_, epoch, _ := s.Backend()

	invalidated := 0
	s.OnInvalidate(func(uint64) { invalidated++ })

	s.Teardown()
	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, 1, invalidated)
	assert.False(t, s.Valid(epoch))
	assert.True(t, acq.Last().Released())

	s.Teardown()
	assert.Equal(t, 1, invalidated)

	require.NoError(t, s.Initialize(context.Background()))
	assert.Equal(t, StateReady, s.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "State(9)", State(9).String())
}
