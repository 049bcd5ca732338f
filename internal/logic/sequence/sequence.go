// Package sequence drives the dual-shot verification protocol: one
// manual shot, an automatic device switch with a stabilization countdown,
// one automatic shot, and two processed images at the end, with the
// camera resource released on every exit path.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"snapproof/internal/debug"
	"snapproof/internal/hw/camera"
	"snapproof/internal/hw/session"
	"snapproof/internal/logic/frame"
)

// ErrCancelled is wrapped by every error returned from Wait after the
// protocol ends in PhaseCancelled.
var ErrCancelled = errors.New("verification session cancelled")

// Config holds the protocol tunables.
type Config struct {
	// CountdownTicks is the number of stabilization ticks between the
	// device switch and the automatic second shot. <= 0 means 2.
	CountdownTicks int

	// TickInterval is the delay between countdown ticks. <= 0 means 1s.
	TickInterval time.Duration

	// CaptureTimeout bounds a single hardware capture. <= 0 means 15s.
	CaptureTimeout time.Duration

	// Flash is the initial flash mode; changeable mid-session via SetFlash.
	Flash camera.FlashMode
}

func (c Config) countdownTicks() int {
	if c.CountdownTicks <= 0 {
		return 2
	}
	return c.CountdownTicks
}

func (c Config) tickInterval() time.Duration {
	if c.TickInterval <= 0 {
		return time.Second
	}
	return c.TickInterval
}

func (c Config) captureTimeout() time.Duration {
	if c.CaptureTimeout <= 0 {
		return 15 * time.Second
	}
	return c.CaptureTimeout
}

// Result is the terminal output of a successful session. Ownership of
// both buffers transfers to the caller.
type Result struct {
	Selfie  frame.Image
	Subject frame.Image
}

// Sequencer owns one verification session: it serializes every external
// stimulus (user intents, hardware completions, processing completions,
// timer ticks) through a single event loop, so state transitions are
// atomic with respect to each other. The interactive side only reads
// snapshots and submits intents.
type Sequencer struct {
	id   uuid.UUID
	mgr  *session.Manager
	proc *frame.Processor
	cfg  Config

	events    chan event
	quit      chan struct{}
	cancelled atomic.Bool
	closeOnce sync.Once

	mu        sync.Mutex
	state     State
	terminal  chan struct{} // closed when a terminal phase is reached; remade on retake
	collected bool          // result handed out via Wait; reset on retake
	timer     *time.Timer
	subs      map[chan State]struct{}
}

// New creates a sequencer for one verification session. The manager must
// be freshly constructed for this session; the sequencer assumes
// exclusive command of it.
func New(mgr *session.Manager, proc *frame.Processor, cfg Config) *Sequencer {
	s := &Sequencer{
		id:       uuid.New(),
		mgr:      mgr,
		proc:     proc,
		cfg:      cfg,
		events:   make(chan event, 64),
		quit:     make(chan struct{}),
		state:    State{Phase: PhaseIdle, Flash: cfg.Flash},
		terminal: make(chan struct{}),
		subs:     make(map[chan State]struct{}),
	}
	go s.loop()
	return s
}

// ID returns the session identifier.
func (s *Sequencer) ID() string { return s.id.String() }

// Start begins the protocol at the given position. The first shot of the
// session is paced by the user; everything after it is automatic.
func (s *Sequencer) Start(pos camera.Position) {
	debug.Session(s.ID(), debug.Fmt("starting dual-shot session from %s", pos))
	s.post(startEvent{pos: pos})
}

// Trigger submits the manual capture intent. Ignored outside
// PhaseAwaitingManualCapture.
func (s *Sequencer) Trigger() {
	s.post(triggerEvent{})
}

// SetFlash changes the flash mode for subsequent captures.
func (s *Sequencer) SetFlash(mode camera.FlashMode) {
	s.post(flashEvent{mode: mode})
}

// Retake restarts the full protocol after PhaseComplete, discarding both
// stored images. Ignored in any other phase.
func (s *Sequencer) Retake() {
	s.post(retakeEvent{})
}

// Cancel requests user-initiated cancellation. The effect on the caller
// is immediate: no new hardware command will be enqueued from this point,
// a pending countdown tick fires into a no-op, and teardown is queued
// behind whatever operation is already in flight on the worker.
func (s *Sequencer) Cancel() {
	if !s.cancelled.CompareAndSwap(false, true) {
		return
	}
	s.stopTimer()
	s.post(cancelEvent{reason: "cancelled by user"})
}

// Snapshot returns the latest published state.
func (s *Sequencer) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Updates subscribes to state snapshots. Delivery is non-blocking; a slow
// subscriber misses intermediate snapshots, never the stream. The caller
// must invoke the returned cleanup when done.
func (s *Sequencer) Updates() (<-chan State, func()) {
	ch := make(chan State, 16)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	unsub := func() {
		s.mu.Lock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, unsub
}

// Wait blocks until the protocol reaches a terminal phase. On
// PhaseComplete it transfers ownership of both processed images to the
// caller and only then releases the hardware resource. On PhaseCancelled
// it returns an error wrapping ErrCancelled, with the hardware error
// attached when the cancellation was not user-initiated.
func (s *Sequencer) Wait(ctx context.Context) (Result, error) {
	for {
		s.mu.Lock()
		st := s.state
		term := s.terminal
		first := st.Phase == PhaseComplete && !s.collected
		if first {
			s.collected = true
		}
		s.mu.Unlock()

		if st.Phase == PhaseComplete {
			if first {
				debug.Session(s.ID(), "result collected, releasing camera resource")
				go s.mgr.Teardown()
			}
			return Result{Selfie: *st.Selfie, Subject: *st.Subject}, nil
		}
		if st.Phase == PhaseCancelled {
			if st.Err != nil {
				return Result{}, fmt.Errorf("%w: %w", ErrCancelled, st.Err)
			}
			return Result{}, fmt.Errorf("%w: %s", ErrCancelled, st.Reason)
		}

		select {
		case <-term:
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
}

// Close shuts the sequencer down. A non-terminal session is cancelled
// first, so the resource-safety contract holds on this path too.
func (s *Sequencer) Close() {
	if !s.Snapshot().Phase.Terminal() {
		s.Cancel()
		// Let the loop apply the cancel transition (and queue teardown)
		// before the loop goroutine exits.
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_, _ = s.Wait(ctx)
		cancel()
	}
	s.closeOnce.Do(func() { close(s.quit) })
}

// post delivers an event to the loop. The channel is sized well beyond
// the protocol's event count, so the send never blocks in practice.
func (s *Sequencer) post(ev event) {
	select {
	case s.events <- ev:
	case <-s.quit:
	}
}

func (s *Sequencer) loop() {
	for {
		select {
		case ev := <-s.events:
			s.step(ev)
		case <-s.quit:
			s.stopTimer()
			return
		}
	}
}

// step applies one event: transition, publish, execute commands. Runs
// only on the loop goroutine.
func (s *Sequencer) step(ev event) {
	s.mu.Lock()
	cur := s.state
	s.mu.Unlock()

	next, cmds := transition(cur, ev, s.cfg.countdownTicks())
	if next.Phase != cur.Phase || next.Countdown != cur.Countdown || next.Flash != cur.Flash {
		debug.State(next.Phase.String())
	}

	// Publish while holding the lock: unsubscribe closes channels under
	// the same lock, so the non-blocking sends below can never hit a
	// closed channel.
	s.mu.Lock()
	s.state = next
	if next.Phase.Terminal() && !cur.Phase.Terminal() {
		close(s.terminal)
	}
	if !next.Phase.Terminal() && cur.Phase.Terminal() {
		// Retake path: new round, new terminal signal, fresh collection.
		s.terminal = make(chan struct{})
		s.collected = false
	}
	for ch := range s.subs {
		select {
		case ch <- next:
		default:
			// subscriber lagging, skip
		}
	}
	s.mu.Unlock()

	for _, c := range cmds {
		s.exec(c)
	}
}

// exec runs one command. Hardware work goes through the manager's serial
// worker; processing goes to the background pool; neither blocks the
// event loop. After a cancel, only teardown may still be issued.
func (s *Sequencer) exec(c command) {
	switch c := c.(type) {
	case configureCmd:
		if s.cancelled.Load() {
			return
		}
		debug.Switch(c.pos.String())
		go func() {
			if err := s.mgr.Configure(c.pos, c.flash); err != nil {
				s.post(configureFailedEvent{err: err})
				return
			}
			if s.cancelled.Load() {
				// Cancellation raced the configure; its teardown may have
				// run first, so release again. Teardown is idempotent.
				s.mgr.Teardown()
				return
			}
			s.post(configuredEvent{})
		}()

	case captureCmd:
		if s.cancelled.Load() {
			return
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.captureTimeout())
			defer cancel()
			raw, at, err := s.mgr.CapturePhoto(ctx, c.flash)
			if err != nil {
				s.post(captureFailedEvent{err: err})
				return
			}
			debug.Shot(s.Snapshot().Position.String(), len(raw))
			s.post(capturedEvent{raw: raw, at: at})
		}()

	case processCmd:
		go func() {
			img := s.proc.Process(context.Background(), c.shot)
			s.post(processedEvent{img: img})
		}()

	case scheduleTickCmd:
		s.mu.Lock()
		s.timer = time.AfterFunc(s.cfg.tickInterval(), func() {
			if s.cancelled.Load() {
				return
			}
			s.post(tickEvent{})
		})
		s.mu.Unlock()

	case autoTriggerCmd:
		if s.cancelled.Load() {
			return
		}
		s.post(triggerEvent{})

	case teardownCmd:
		go s.mgr.Teardown()
	}
}

func (s *Sequencer) stopTimer() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
}
