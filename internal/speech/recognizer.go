// Package speech manages the speech recognition capture lifecycle.
// The recognition engine itself is external; this package reconciles
// the intended state (should be listening) with the observed state
// (engine actually running), restarting the engine after benign
// interruptions and stopping for good on permission denial or an
// intentional stop.
package speech

import (
	"log/slog"
	"sync"

	apperrors "github.com/speechtrack/platform/internal/errors"
)

// Phase is the reconciled capture state.
type Phase int

const (
	PhaseStopped Phase = iota
	PhaseStartRequested
	PhaseRunning
	PhaseStopping // stop requested, waiting for the engine to confirm
)

func (p Phase) String() string {
	switch p {
	case PhaseStartRequested:
		return "start_requested"
	case PhaseRunning:
		return "running"
	case PhaseStopping:
		return "stopping"
	default:
		return "stopped"
	}
}

// Engine is the external recognition engine. Implementations report
// results and termination through the Recognizer's Handle methods.
type Engine interface {
	Start() error
	Stop()
	Reset()
}

// Recognizer wraps an Engine with the capture intent state machine and
// the latest transcript snapshot.
type Recognizer struct {
	mu     sync.Mutex
	engine Engine
	phase  Phase
	text   string
	onText func(string)
}

// New creates a recognizer. A nil engine marks the environment as
// permanently unsupported: Start fails, everything else no-ops.
func New(engine Engine, onText func(string)) *Recognizer {
	return &Recognizer{engine: engine, onText: onText}
}

// Supported reports whether recognition is available at all.
func (r *Recognizer) Supported() bool {
	return r.engine != nil
}

// Phase returns the current reconciled state.
func (r *Recognizer) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// Text returns the latest transcript snapshot.
func (r *Recognizer) Text() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.text
}

// Start requests capture. Returns an Unsupported error when no engine
// is available; idempotent while already running.
func (r *Recognizer) Start() error {
	if r.engine == nil {
		return apperrors.New(apperrors.Unsupported, "speech recognition unavailable")
	}

	r.mu.Lock()
	if r.phase == PhaseRunning || r.phase == PhaseStartRequested {
		r.mu.Unlock()
		return nil
	}
	r.phase = PhaseStartRequested
	r.mu.Unlock()

	if err := r.engine.Start(); err != nil {
		r.mu.Lock()
		r.phase = PhaseStopped
		r.mu.Unlock()
		return apperrors.Wrap(err, apperrors.Unavailable, "recognition start failed")
	}

	r.mu.Lock()
	r.phase = PhaseRunning
	r.mu.Unlock()
	return nil
}

// Stop requests an intentional stop; the engine's end callback moves
// the phase to Stopped without triggering a restart.
func (r *Recognizer) Stop() {
	if r.engine == nil {
		return
	}
	r.mu.Lock()
	if r.phase == PhaseStopped {
		r.mu.Unlock()
		return
	}
	r.phase = PhaseStopping
	r.mu.Unlock()
	r.engine.Stop()
}

// Reset clears accumulated transcript text.
func (r *Recognizer) Reset() {
	if r.engine != nil {
		r.engine.Reset()
	}
	r.mu.Lock()
	r.text = ""
	r.mu.Unlock()
}

// HandleResult receives a transcript snapshot from the engine. The
// snapshot replaces previous text wholesale; it may shrink on an
// engine-level reset.
func (r *Recognizer) HandleResult(text string) {
	r.mu.Lock()
	r.text = text
	cb := r.onText
	r.mu.Unlock()
	if cb != nil {
		cb(text)
	}
}

// HandleEnd reconciles an engine termination with the current intent.
// Transient ends while we still want to listen restart the engine;
// permission denial and intentional stops are terminal.
func (r *Recognizer) HandleEnd(err error) {
	r.mu.Lock()
	phase := r.phase
	r.mu.Unlock()

	switch {
	case phase == PhaseStopping || phase == PhaseStopped:
		r.setPhase(PhaseStopped)

	case apperrors.IsCode(err, apperrors.PermissionDenied):
		slog.Warn("microphone permission denied, capture stopped")
		r.setPhase(PhaseStopped)

	default:
		// Momentary silence or a benign engine restart: keep listening.
		if err != nil {
			slog.Debug("recognition ended, restarting", "error", err)
		}
		if startErr := r.engine.Start(); startErr != nil {
			slog.Warn("recognition restart failed", "error", startErr)
			r.setPhase(PhaseStopped)
			return
		}
		r.setPhase(PhaseRunning)
	}
}

func (r *Recognizer) setPhase(p Phase) {
	r.mu.Lock()
	r.phase = p
	r.mu.Unlock()
}
