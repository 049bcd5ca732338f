// Package session owns the single capture resource of a verification
// session: exactly one camera device attached at a time, reconfigured in
// place for the second shot, and released on every terminal outcome.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"snapproof/internal/debug"
	"snapproof/internal/hw/camera"
)

// Authorizer reports whether capture hardware access is granted.
// It is a collaborator boundary; the real implementation lives with the
// platform (mobile permission prompt, rig provisioning, etc.).
type Authorizer interface {
	Authorized() bool
}

// AllowAll grants capture access unconditionally.
type AllowAll struct{}

func (AllowAll) Authorized() bool { return true }

// Manager is the Hardware Session Manager. All hardware operations are
// submitted to one dedicated serial worker and execute in submission
// order; the worker is the sole writer of the resource state. Construct
// a fresh Manager per verification session and Close it at session end.
type Manager struct {
	backend camera.Backend
	auth    Authorizer

	ops chan func()

	mu      sync.Mutex
	closed  bool
	dev     camera.Device // currently attached input; nil = none
	pos     camera.Position
	flash   camera.FlashMode
	running bool
}

// NewManager creates a manager for one verification session and starts
// its worker. auth may be nil, which means access is granted.
func NewManager(backend camera.Backend, auth Authorizer) *Manager {
	m := &Manager{
		backend: backend,
		auth:    auth,
		ops:     make(chan func(), 16),
	}
	go m.worker()
	return m
}

func (m *Manager) worker() {
	for op := range m.ops {
		op()
	}
}

// submit enqueues op on the serial worker. The mutex is held across the
// send so a concurrent Close cannot close the channel mid-send.
func (m *Manager) submit(op func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.ops <- op
	return nil
}

// do runs op on the worker and waits for its result.
func (m *Manager) do(op func() error) error {
	errCh := make(chan error, 1)
	if err := m.submit(func() { errCh <- op() }); err != nil {
		return err
	}
	return <-errCh
}

// Configure points the capture resource at the device serving pos: stops
// the resource if running, detaches the existing input, attaches the new
// one and restarts. The swap is atomic with respect to all other hardware
// operations because it runs as a single op on the serial worker, so the
// resource is never attached to two inputs.
func (m *Manager) Configure(pos camera.Position, flash camera.FlashMode) error {
	return m.do(func() error {
		debug.HW("configure", debug.Fmt("position=%s flash=%s", pos, flash))

		if m.auth != nil && !m.auth.Authorized() {
			return fmt.Errorf("configuring for %s: %w", pos, ErrPermissionDenied)
		}

		m.detach()

		dev, err := m.backend.Lookup(pos)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
		if err := dev.Start(); err != nil {
			return fmt.Errorf("%w: starting %s input: %v", ErrConfigurationFailed, pos, err)
		}

		m.mu.Lock()
		m.dev = dev
		m.pos = pos
		m.flash = flash
		m.running = true
		m.mu.Unlock()
		return nil
	})
}

// CapturePhoto triggers a single photograph on the attached input and
// returns the raw encoded bytes with the capture timestamp. Fails with
// ErrNotRunning while the resource is stopped.
func (m *Manager) CapturePhoto(ctx context.Context, flash camera.FlashMode) ([]byte, time.Time, error) {
	var raw []byte
	var at time.Time
	err := m.do(func() error {
		m.mu.Lock()
		dev, running := m.dev, m.running
		m.mu.Unlock()

		if !running || dev == nil {
			return ErrNotRunning
		}
		debug.HW("capture", debug.Fmt("flash=%s", flash))
		b, err := dev.Capture(ctx, flash)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCaptureFailed, err)
		}
		raw = b
		at = time.Now()
		return nil
	})
	return raw, at, err
}

// Teardown stops the resource if running and releases the attached input.
// Idempotent and safe from any state; it is enqueued on the same serial
// worker as every other operation, so it never preempts an in-flight
// configure or capture.
func (m *Manager) Teardown() {
	_ = m.do(func() error {
		m.detach()
		return nil
	})
}

// detach stops and releases the current input. Runs on the worker.
func (m *Manager) detach() {
	m.mu.Lock()
	dev, running := m.dev, m.running
	m.dev = nil
	m.running = false
	m.mu.Unlock()

	if dev == nil {
		return
	}
	debug.HW("teardown", "releasing camera input")
	if running {
		if err := dev.Stop(); err != nil {
			debug.Error(fmt.Errorf("stopping camera input: %w", err))
		}
	}
}

// Close tears the resource down and shuts the worker down. The manager
// accepts no operations afterwards.
func (m *Manager) Close() {
	m.Teardown()
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		close(m.ops)
	}
	m.mu.Unlock()
}

// Running reports whether the capture resource is running. For UI use
// only (shutter enablement); never infer protocol state from it.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Position returns the logical position the resource is configured for.
func (m *Manager) Position() camera.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pos
}

// Flash returns the flash mode of the last configuration.
func (m *Manager) Flash() camera.FlashMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flash
}
