// Package session owns the graphics device lifecycle. A Session is the single source of truth
// for whether GPU work may happen, and its epoch lets every other component tell whether a
// resource it holds was created on the current device.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/gpu"
	"github.com/google/uuid"
)

// State is the lifecycle state of a Session.
type State int

const (
	// StateUninitialized is the state before the first Initialize.
	StateUninitialized State = iota

	// StateReady means a device is held and GPU work may proceed.
	StateReady

	// StateLost means the device was lost; Initialize may be called again.
	StateLost

	// StateClosed means Teardown released the device; Initialize may be called again.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateLost:
		return "lost"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// InvalidateFunc is called after the session leaves the Ready state. epoch is the new
// current epoch; anything created under an older epoch is stale.
type InvalidateFunc func(epoch uint64)

// Session holds the device, queue and surface for the lifetime of one acquisition and
// broadcasts invalidation when that lifetime ends.
type Session interface {
	// Initialize acquires a device. It is a no-op when the session is already Ready and is
	// allowed from every other state. A surface passed to an earlier ConfigureSurface is
	// configured on the new device.
	//
	// Parameters:
	//   - ctx: bounds device acquisition
	//
	// Returns:
	//   - error: ErrDeviceUnavailable (wrapped) if no device could be acquired; ErrDeviceLost
	//     (wrapped) if the device was lost before Initialize returned
	Initialize(ctx context.Context) error

	// ConfigureSurface remembers the presentation surface and configures it on the current
	// device. It is also used after a resize.
	//
	// Parameters:
	//   - surface: the presentation target
	//
	// Returns:
	//   - error: ErrDeviceUnavailable (wrapped) if the session is not Ready, or the backend's configuration error
	ConfigureSurface(surface gpu.Surface) error

	// HandleDeviceLost moves a Ready session to Lost, advances the epoch and runs every
	// invalidation hook. Calls in any other state are ignored.
	//
	// Parameters:
	//   - reason: a human readable description of the loss
	HandleDeviceLost(reason string)

	// Teardown invalidates like a loss, releases the device and moves the session to Closed.
	Teardown()

	// Backend returns the current backend together with the epoch it belongs to.
	//
	// Returns:
	//   - gpu.Backend: the backend
	//   - uint64: the current epoch
	//   - error: ErrDeviceUnavailable (wrapped) if the session is not Ready
	Backend() (gpu.Backend, uint64, error)

	// Valid reports whether the session is Ready and epoch is the current epoch.
	Valid(epoch uint64) bool

	// State returns the current lifecycle state.
	State() State

	// Epoch returns the current epoch.
	Epoch() uint64

	// ID returns the identifier of the current acquisition, uuid.Nil before the first one.
	ID() uuid.UUID

	// OnInvalidate registers a hook run on loss and teardown. Hooks run in registration order.
	//
	// Parameters:
	//   - hook: the function to call with the new epoch
	OnInvalidate(hook InvalidateFunc)
}

type session struct {
	mu     *sync.Mutex
	initMu *sync.Mutex

	acquirer gpu.Acquirer
	backend  gpu.Backend
	surface  gpu.Surface

	state State
	epoch uint64
	id    uuid.UUID

	hooks  []InvalidateFunc
	logger *slog.Logger
}

var _ Session = &session{}

// NewSession creates an uninitialized Session that acquires devices through acquirer.
//
// Parameters:
//   - acquirer: the device source
//   - options: functional options to configure the session
//
// Returns:
//   - Session: the session
func NewSession(acquirer gpu.Acquirer, options ...SessionBuilderOption) Session {
	s := &session{
		mu:       &sync.Mutex{},
		initMu:   &sync.Mutex{},
		acquirer: acquirer,
		state:    StateUninitialized,
	}
	for _, opt := range options {
		opt(s)
	}
	if s.logger == nil {
		s.logger = common.Logger()
	}
	return s
}

func (s *session) Initialize(ctx context.Context) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	s.mu.Lock()
	if s.state == StateReady {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if s.acquirer == nil {
		return fmt.Errorf("no device acquirer configured: %w", common.ErrDeviceUnavailable)
	}

	token := &acquisition{}
	backend, err := s.acquirer.Acquire(ctx, func(reason string) {
		s.handleLostFrom(token, reason)
	})
	if err != nil {
		s.logger.Error("graphics device acquisition failed", "error", err)
		return fmt.Errorf("%w: %v", common.ErrDeviceUnavailable, err)
	}

	s.mu.Lock()
	s.backend = backend
	s.epoch++
	token.epoch = s.epoch
	s.state = StateReady
	s.id = uuid.New()
	surface := s.surface
	epoch, id := s.epoch, s.id
	lostEarly, reason := token.lost, token.reason
	s.mu.Unlock()

	s.logger.Info("graphics session ready", "session", id, "epoch", epoch)

	if lostEarly {
		s.HandleDeviceLost(reason)
		return fmt.Errorf("%w: device lost during initialization: %s", common.ErrDeviceLost, reason)
	}

	if surface != nil {
		if err := backend.ConfigureSurface(surface); err != nil {
			s.logger.Warn("failed to configure remembered surface", "session", id, "error", err)
		}
	}
	return nil
}

func (s *session) ConfigureSurface(surface gpu.Surface) error {
	s.mu.Lock()
	s.surface = surface
	backend, state := s.backend, s.state
	s.mu.Unlock()

	if state != StateReady {
		return fmt.Errorf("configure surface in state %s: %w", state, common.ErrDeviceUnavailable)
	}
	return backend.ConfigureSurface(surface)
}

// acquisition ties a device-lost callback to the epoch its device was committed under. The
// callback may fire before the commit; the loss is then recorded and applied by Initialize.
type acquisition struct {
	epoch  uint64
	lost   bool
	reason string
}

func (s *session) handleLostFrom(token *acquisition, reason string) {
	s.mu.Lock()
	if token.epoch == 0 {
		token.lost, token.reason = true, reason
		s.mu.Unlock()
		s.logger.Warn("graphics device lost during initialization", "reason", reason)
		return
	}
	current := token.epoch == s.epoch
	s.mu.Unlock()
	if !current {
		s.logger.Debug("ignoring loss of a stale device", "reason", reason)
		return
	}
	s.HandleDeviceLost(reason)
}

func (s *session) HandleDeviceLost(reason string) {
	s.mu.Lock()
	if s.state != StateReady {
		s.mu.Unlock()
		return
	}
	backend := s.backend
	s.backend = nil
	s.state = StateLost
	s.epoch++
	epoch, id := s.epoch, s.id
	hooks := append([]InvalidateFunc(nil), s.hooks...)
	s.mu.Unlock()

	s.logger.Error("graphics device lost", "session", id, "reason", reason, "epoch", epoch)

	for _, hook := range hooks {
		hook(epoch)
	}
	if backend != nil {
		backend.Release()
	}
}

func (s *session) Teardown() {
	s.mu.Lock()
	if s.state != StateReady {
		s.state = StateClosed
		s.mu.Unlock()
		return
	}
	backend := s.backend
	s.backend = nil
	s.state = StateClosed
	s.epoch++
	epoch, id := s.epoch, s.id
	hooks := append([]InvalidateFunc(nil), s.hooks...)
	s.mu.Unlock()

	for _, hook := range hooks {
		hook(epoch)
	}
	backend.Release()

	s.logger.Info("graphics session closed", "session", id)
}

func (s *session) Backend() (gpu.Backend, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReady {
		return nil, s.epoch, fmt.Errorf("session is %s: %w", s.state, common.ErrDeviceUnavailable)
	}
	return s.backend, s.epoch, nil
}

func (s *session) Valid(epoch uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateReady && s.epoch == epoch
}

func (s *session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *session) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

func (s *session) ID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *session) OnInvalidate(hook InvalidateFunc) {
	if hook == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, hook)
}
