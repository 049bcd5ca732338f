package web

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"snapproof/internal/logic/sequence"
)

// StreamEvent is a single SSE message: either a log line or a sequencer
// state snapshot.
type StreamEvent struct {
	Time  string     `json:"t"`
	Kind  string     `json:"k"` // "log" or "state"
	Level string     `json:"l,omitempty"`
	Msg   string     `json:"msg,omitempty"`
	State *StateView `json:"state,omitempty"`
}

// StateView is the presentation-facing projection of a sequencer
// snapshot: countdown text, capture-button enablement, position cues.
type StateView struct {
	Session         string `json:"session"`
	Phase           string `json:"phase"`
	Position        string `json:"position"`
	Flash           string `json:"flash"`
	Countdown       int    `json:"countdown,omitempty"`
	CountdownText   string `json:"countdown_text,omitempty"`
	CanCapture      bool   `json:"can_capture"`
	Reason          string `json:"reason,omitempty"`
	HardwareFailure bool   `json:"hardware_failure,omitempty"`
}

// ViewOf projects a sequencer state for the presentation layer. The
// capture button is only meaningful while the manual shot is pending.
func ViewOf(sessionID string, st sequence.State) StateView {
	v := StateView{
		Session:         sessionID,
		Phase:           st.Phase.String(),
		Position:        st.Position.String(),
		Flash:           st.Flash.String(),
		Countdown:       st.Countdown,
		CanCapture:      st.Phase == sequence.PhaseAwaitingManualCapture && st.Armed,
		Reason:          st.Reason,
		HardwareFailure: st.HardwareFailure,
	}
	if st.Phase == sequence.PhaseCountdown {
		v.CountdownText = strings.Repeat("•", st.Countdown)
	}
	return v
}

// StateBroadcaster distributes log lines and state snapshots to multiple
// SSE clients.
type StateBroadcaster struct {
	mu      sync.RWMutex
	clients map[chan string]struct{}
}

// NewStateBroadcaster creates a new broadcaster.
func NewStateBroadcaster() *StateBroadcaster {
	return &StateBroadcaster{
		clients: make(map[chan string]struct{}),
	}
}

// Subscribe returns a channel that receives broadcast messages and a cleanup function.
// The caller must call the returned cleanup when done (e.g. on client disconnect).
func (b *StateBroadcaster) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 64)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		delete(b.clients, ch)
		b.mu.Unlock()
		close(ch)
	}
	return ch, unsub
}

// Broadcast sends a log message to all subscribed clients.
// Slow clients may miss messages (non-blocking, buffered).
func (b *StateBroadcaster) Broadcast(level, msg string) {
	b.send(StreamEvent{
		Time:  time.Now().Format(time.RFC3339),
		Kind:  "log",
		Level: level,
		Msg:   msg,
	})
}

// BroadcastMsg is a convenience for level "info".
func (b *StateBroadcaster) BroadcastMsg(msg string) {
	b.Broadcast("info", msg)
}

// BroadcastState sends a sequencer state snapshot to all clients.
func (b *StateBroadcaster) BroadcastState(view StateView) {
	b.send(StreamEvent{
		Time:  time.Now().Format(time.RFC3339),
		Kind:  "state",
		State: &view,
	})
}

func (b *StateBroadcaster) send(evt StreamEvent) {
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	payload := string(data)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
			// channel full, skip
		}
	}
}

// BroadcastWriter implements io.Writer; each Write broadcasts the content to SSE clients.
func BroadcastWriter(b *StateBroadcaster) *broadcastWriter {
	return &broadcastWriter{b: b}
}

// broadcastWriter wraps StateBroadcaster as io.Writer for use with debug.SetOutput.
type broadcastWriter struct {
	b *StateBroadcaster
}

func (w *broadcastWriter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" {
		w.b.BroadcastMsg(msg)
	}
	return len(p), nil
}
