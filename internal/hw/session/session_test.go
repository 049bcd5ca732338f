package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"snapproof/internal/hw/camera"
)

// fakeDevice records its lifecycle in a shared event log.
type fakeDevice struct {
	pos camera.Position
	log *eventLog

	captureErr error
	startErr   error
}

func (d *fakeDevice) Start() error {
	d.log.add("start:" + d.pos.String())
	return d.startErr
}

func (d *fakeDevice) Stop() error {
	d.log.add("stop:" + d.pos.String())
	return nil
}

func (d *fakeDevice) Capture(ctx context.Context, flash camera.FlashMode) ([]byte, error) {
	d.log.add("capture:" + d.pos.String())
	if d.captureErr != nil {
		return nil, d.captureErr
	}
	return []byte("frame-" + d.pos.String()), nil
}

// fakeBackend hands out fakeDevices sharing one event log.
type fakeBackend struct {
	log        *eventLog
	lookupErr  error
	startErr   error
	captureErr error
}

func (b *fakeBackend) Lookup(pos camera.Position) (camera.Device, error) {
	if b.lookupErr != nil {
		return nil, b.lookupErr
	}
	return &fakeDevice{pos: pos, log: b.log, startErr: b.startErr, captureErr: b.captureErr}, nil
}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(ev string) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// denyAll rejects every hardware access request.
type denyAll struct{}

func (denyAll) Authorized() bool { return false }

func newTestManager(t *testing.T) (*Manager, *eventLog) {
	t.Helper()
	log := &eventLog{}
	m := NewManager(&fakeBackend{log: log}, AllowAll{})
	t.Cleanup(m.Close)
	return m, log
}

// ---------- Configure ----------

func TestManager_ConfigureAndCapture(t *testing.T) {
	m, log := newTestManager(t)

	if err := m.Configure(camera.Selfie, camera.FlashOff); err != nil {
		t.Fatalf("Configure error: %v", err)
	}
	if !m.Running() {
		t.Error("resource should be running after Configure")
	}
	if m.Position() != camera.Selfie {
		t.Errorf("Position() = %v, want selfie", m.Position())
	}

	raw, at, err := m.CapturePhoto(context.Background(), camera.FlashOff)
	if err != nil {
		t.Fatalf("CapturePhoto error: %v", err)
	}
	if string(raw) != "frame-selfie" {
		t.Errorf("raw = %q", raw)
	}
	if at.IsZero() {
		t.Error("capture timestamp should be set")
	}

	want := []string{"start:selfie", "capture:selfie"}
	got := log.snapshot()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("events[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

// The single-input invariant: switching positions stops the old device
// before the new one starts, in strict order.
func TestManager_SwitchDetachesBeforeAttach(t *testing.T) {
	m, log := newTestManager(t)

	if err := m.Configure(camera.Selfie, camera.FlashOff); err != nil {
		t.Fatal(err)
	}
	if err := m.Configure(camera.Subject, camera.FlashOff); err != nil {
		t.Fatal(err)
	}

	want := []string{"start:selfie", "stop:selfie", "start:subject"}
	got := log.snapshot()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("events[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if m.Position() != camera.Subject {
		t.Errorf("Position() = %v, want subject", m.Position())
	}
}

func TestManager_ConfigureDenied(t *testing.T) {
	log := &eventLog{}
	m := NewManager(&fakeBackend{log: log}, denyAll{})
	defer m.Close()

	err := m.Configure(camera.Selfie, camera.FlashOff)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("expected ErrPermissionDenied, got %v", err)
	}
	if m.Running() {
		t.Error("resource must not run after denied configure")
	}
	if len(log.snapshot()) != 0 {
		t.Errorf("no device events expected, got %v", log.snapshot())
	}
}

func TestManager_ConfigureNoDevice(t *testing.T) {
	log := &eventLog{}
	m := NewManager(&fakeBackend{log: log, lookupErr: camera.ErrNoDevice}, AllowAll{})
	defer m.Close()

	err := m.Configure(camera.Subject, camera.FlashOff)
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("expected ErrDeviceUnavailable, got %v", err)
	}
	if m.Running() {
		t.Error("resource must not run after failed lookup")
	}
}

func TestManager_ConfigureStartFails(t *testing.T) {
	log := &eventLog{}
	m := NewManager(&fakeBackend{log: log, startErr: errors.New("busy")}, AllowAll{})
	defer m.Close()

	err := m.Configure(camera.Selfie, camera.FlashOff)
	if !errors.Is(err, ErrConfigurationFailed) {
		t.Errorf("expected ErrConfigurationFailed, got %v", err)
	}
	if m.Running() {
		t.Error("resource must not run after failed start")
	}
}

// ---------- CapturePhoto ----------

func TestManager_CaptureWithoutConfigure(t *testing.T) {
	m, _ := newTestManager(t)

	_, _, err := m.CapturePhoto(context.Background(), camera.FlashOff)
	if !errors.Is(err, ErrNotRunning) {
		t.Errorf("expected ErrNotRunning, got %v", err)
	}
}

func TestManager_CaptureAfterTeardown(t *testing.T) {
	m, _ := newTestManager(t)

	if err := m.Configure(camera.Selfie, camera.FlashOff); err != nil {
		t.Fatal(err)
	}
	m.Teardown()

	_, _, err := m.CapturePhoto(context.Background(), camera.FlashOff)
	if !errors.Is(err, ErrNotRunning) {
		t.Errorf("expected ErrNotRunning after teardown, got %v", err)
	}
}

func TestManager_CaptureDeviceError(t *testing.T) {
	log := &eventLog{}
	m := NewManager(&fakeBackend{log: log, captureErr: errors.New("sensor fault")}, AllowAll{})
	defer m.Close()

	if err := m.Configure(camera.Selfie, camera.FlashOff); err != nil {
		t.Fatal(err)
	}
	_, _, err := m.CapturePhoto(context.Background(), camera.FlashOff)
	if !errors.Is(err, ErrCaptureFailed) {
		t.Errorf("expected ErrCaptureFailed, got %v", err)
	}
}

// ---------- Teardown / Close ----------

func TestManager_TeardownIdempotent(t *testing.T) {
	m, log := newTestManager(t)

	if err := m.Configure(camera.Selfie, camera.FlashOff); err != nil {
		t.Fatal(err)
	}
	m.Teardown()
	m.Teardown()
	m.Teardown()

	want := []string{"start:selfie", "stop:selfie"}
	got := log.snapshot()
	if len(got) != len(want) {
		t.Fatalf("repeated teardown must release once: events = %v", got)
	}
	if m.Running() {
		t.Error("resource should be stopped after teardown")
	}
}

func TestManager_TeardownFromIdle(t *testing.T) {
	m, log := newTestManager(t)
	m.Teardown()
	if len(log.snapshot()) != 0 {
		t.Errorf("teardown with nothing attached should be a no-op, got %v", log.snapshot())
	}
}

func TestManager_ClosedRejectsOperations(t *testing.T) {
	log := &eventLog{}
	m := NewManager(&fakeBackend{log: log}, AllowAll{})
	m.Close()

	if err := m.Configure(camera.Selfie, camera.FlashOff); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed from Configure, got %v", err)
	}
	if _, _, err := m.CapturePhoto(context.Background(), camera.FlashOff); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed from CapturePhoto, got %v", err)
	}
}

func TestManager_CloseReleasesDevice(t *testing.T) {
	log := &eventLog{}
	m := NewManager(&fakeBackend{log: log}, AllowAll{})

	if err := m.Configure(camera.Subject, camera.FlashAuto); err != nil {
		t.Fatal(err)
	}
	m.Close()

	got := log.snapshot()
	if len(got) != 2 || got[1] != "stop:subject" {
		t.Errorf("Close should release the attached input, events = %v", got)
	}
}

// Concurrent submissions all execute; the serial worker keeps the
// resource consistent without external locking.
func TestManager_ConcurrentOperations(t *testing.T) {
	m, _ := newTestManager(t)

	if err := m.Configure(camera.Selfie, camera.FlashOff); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := m.CapturePhoto(context.Background(), camera.FlashOff)
			if err != nil {
				t.Errorf("concurrent capture error: %v", err)
			}
		}()
	}
	wg.Wait()
}
