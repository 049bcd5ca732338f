package web

import (
	"context"
	"encoding/json"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"snapproof/internal/hw/camera"
	"snapproof/internal/logic/sequence"
	"snapproof/internal/verify"
)

// NewSessionFunc constructs a fresh sequencer (with its own hardware
// session manager underneath) and a cleanup that releases everything.
// Called from POST /session.
type NewSessionFunc func() (*sequence.Sequencer, func(), error)

// FormConfig holds default values for the client form (from config).
type FormConfig struct {
	StartPosition  string `json:"start_position"`
	CountdownTicks int    `json:"countdown_ticks"`
	Flash          string `json:"flash"`
}

// StartRequest is the POST /session body.
type StartRequest struct {
	StartPosition string `json:"start_position"`
	HabitID       string `json:"habit_id"`
}

// activeSession is the one verification session the server runs at a time.
type activeSession struct {
	seq        *sequence.Sequencer
	habitID    string
	cleanup    func()
	unsub      func()
	submitting bool // guarded by Handlers.mu; one submit owns the upload
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster  *StateBroadcaster
	NewSession   NewSessionFunc
	Uploader     verify.Uploader
	FormDefaults FormConfig

	mu       sync.Mutex
	current  *activeSession
	staticFS fs.FS
}

// NewHandlers creates handlers with the given dependencies.
// If newSession is nil, POST /session returns 503 Service Unavailable.
func NewHandlers(broadcaster *StateBroadcaster, newSession NewSessionFunc, uploader verify.Uploader, formDefaults FormConfig, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster:  broadcaster,
		NewSession:   newSession,
		Uploader:     uploader,
		FormDefaults: formDefaults,
		staticFS:     staticFS,
	}
}

// HandleConfig returns the form default values (from config) as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.FormDefaults)
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleStartSession handles POST /session: creates a fresh sequencer
// and begins the protocol at the requested position.
func (h *Handlers) HandleStartSession(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.StartPosition == "" {
		req.StartPosition = h.FormDefaults.StartPosition
	}
	pos, err := camera.ParsePosition(req.StartPosition)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if h.NewSession == nil {
		http.Error(w, "capture not configured", http.StatusServiceUnavailable)
		return
	}

	h.mu.Lock()
	if h.current != nil {
		h.mu.Unlock()
		http.Error(w, "a verification session is already in progress", http.StatusConflict)
		return
	}
	seq, cleanup, err := h.NewSession()
	if err != nil {
		h.mu.Unlock()
		http.Error(w, "starting session: "+err.Error(), http.StatusInternalServerError)
		return
	}
	updates, unsub := seq.Updates()
	h.current = &activeSession{seq: seq, habitID: req.HabitID, cleanup: cleanup, unsub: unsub}
	h.mu.Unlock()

	// Pump snapshots to SSE clients; release the session on cancellation.
	go h.watch(seq, updates)

	seq.Start(pos)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"session": seq.ID(), "status": "started"})
}

// watch forwards snapshots to the broadcaster and tears the active
// session down once it ends in cancellation. A completed session stays
// active so the client can choose between submit and retake.
func (h *Handlers) watch(seq *sequence.Sequencer, updates <-chan sequence.State) {
	for st := range updates {
		h.Broadcaster.BroadcastState(ViewOf(seq.ID(), st))
		if st.Phase == sequence.PhaseCancelled {
			h.release(seq)
			return
		}
	}
}

// release drops the active session if seq still owns it.
func (h *Handlers) release(seq *sequence.Sequencer) {
	h.mu.Lock()
	cur := h.current
	if cur == nil || cur.seq != seq {
		h.mu.Unlock()
		return
	}
	h.current = nil
	h.mu.Unlock()

	cur.unsub()
	cur.cleanup()
}

// active returns the current session or writes a 409.
func (h *Handlers) active(w http.ResponseWriter) *activeSession {
	h.mu.Lock()
	cur := h.current
	h.mu.Unlock()
	if cur == nil {
		http.Error(w, "no verification session in progress", http.StatusConflict)
		return nil
	}
	return cur
}

// HandleCapture handles POST /session/capture: the manual shutter intent.
// The sequencer ignores it outside the awaiting-manual phase.
func (h *Handlers) HandleCapture(w http.ResponseWriter, r *http.Request) {
	cur := h.active(w)
	if cur == nil {
		return
	}
	cur.seq.Trigger()
	w.WriteHeader(http.StatusAccepted)
}

// HandleCancel handles POST /session/cancel.
func (h *Handlers) HandleCancel(w http.ResponseWriter, r *http.Request) {
	cur := h.active(w)
	if cur == nil {
		return
	}
	cur.seq.Cancel()
	w.WriteHeader(http.StatusAccepted)
}

// HandleRetake handles POST /session/retake: restarts the full protocol
// after completion, discarding both images.
func (h *Handlers) HandleRetake(w http.ResponseWriter, r *http.Request) {
	cur := h.active(w)
	if cur == nil {
		return
	}
	cur.seq.Retake()
	w.WriteHeader(http.StatusAccepted)
}

// HandleFlash handles POST /session/flash. An explicit {"mode": "..."}
// sets the mode; an empty body cycles it.
func (h *Handlers) HandleFlash(w http.ResponseWriter, r *http.Request) {
	cur := h.active(w)
	if cur == nil {
		return
	}

	var body struct {
		Mode string `json:"mode"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	var mode camera.FlashMode
	if body.Mode == "" {
		mode = cur.seq.Snapshot().Flash.Cycle()
	} else {
		var err error
		mode, err = camera.ParseFlashMode(body.Mode)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	cur.seq.SetFlash(mode)
	w.WriteHeader(http.StatusAccepted)
}

// HandleSubmit handles POST /session/submit: collects the two processed
// images of a completed session and hands them to the verification
// uploader. Ownership of the buffers transfers here; the hardware
// resource is released as part of collection.
func (h *Handlers) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	cur := h.active(w)
	if cur == nil {
		return
	}
	if cur.seq.Snapshot().Phase != sequence.PhaseComplete {
		http.Error(w, "session is not complete", http.StatusConflict)
		return
	}

	// Claim the submit before collecting; a concurrent second submit
	// must never reach the uploader.
	h.mu.Lock()
	if cur.submitting {
		h.mu.Unlock()
		http.Error(w, "submit already in progress", http.StatusConflict)
		return
	}
	cur.submitting = true
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	res, err := cur.seq.Wait(ctx)
	if err != nil {
		h.submitDone(cur)
		http.Error(w, "collecting result: "+err.Error(), http.StatusConflict)
		return
	}
	if h.Uploader != nil {
		if err := h.Uploader.Submit(ctx, cur.seq.ID(), cur.habitID, res.Selfie, res.Subject); err != nil {
			h.submitDone(cur)
			http.Error(w, "submitting images: "+err.Error(), http.StatusBadGateway)
			return
		}
	}
	h.Broadcaster.BroadcastMsg("verification images submitted")
	h.release(cur.seq)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "submitted"})
}

// submitDone releases the submit claim so a failed submit can be retried.
func (h *Handlers) submitDone(cur *activeSession) {
	h.mu.Lock()
	cur.submitting = false
	h.mu.Unlock()
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	// Send initial comment to establish connection
	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
