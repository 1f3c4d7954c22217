package playback

import (
	"context"
	"log/slog"
	"sync"
)

// Serial plays one utterance at a time: the current item must finish (or
// fail) before the next starts. Used by the text pipeline, where speech
// is synthesized on demand rather than streamed continuously.
type Serial struct {
	mu      sync.Mutex
	speak   func(ctx context.Context, text string) error
	pending []string
	busy    bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewSerial creates a serial queue. speak must block until the utterance
// has finished playing.
func NewSerial(speak func(ctx context.Context, text string) error) *Serial {
	ctx, cancel := context.WithCancel(context.Background())
	return &Serial{speak: speak, ctx: ctx, cancel: cancel}
}

// Enqueue adds an utterance and starts draining if idle.
func (s *Serial) Enqueue(text string) {
	if text == "" {
		return
	}
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.pending = append(s.pending, text)
	if s.busy {
		s.mu.Unlock()
		return
	}
	s.busy = true
	s.mu.Unlock()

	go s.drain()
}

func (s *Serial) drain() {
	for {
		s.mu.Lock()
		if len(s.pending) == 0 || s.ctx.Err() != nil {
			s.busy = false
			s.mu.Unlock()
			return
		}
		text := s.pending[0]
		s.pending = s.pending[1:]
		ctx := s.ctx
		s.mu.Unlock()

		// Errors do not stall the queue: processing resumes with the
		// next utterance.
		if err := s.speak(ctx, text); err != nil && ctx.Err() == nil {
			slog.Warn("utterance failed", "error", err)
		}
	}
}

// Speaking reports whether an utterance is playing or queued.
func (s *Serial) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy || len(s.pending) > 0
}

// Close cancels the current utterance and discards pending ones.
// Idempotent.
func (s *Serial) Close() {
	s.cancel()
	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()
}
