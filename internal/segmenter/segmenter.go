// Package segmenter turns an incrementally-arriving transcript into
// discrete translation requests
package segmenter

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/speechtrack/platform/internal/translate"
)

// Defaults for trigger tuning.
const (
	DefaultMinWords       = 5
	DefaultIdleAfter      = 2 * time.Second
	DefaultIdleMinWords   = 2
	DefaultTickInterval   = 500 * time.Millisecond
	DefaultStuckAfter     = 10 * time.Second
	DefaultRequestTimeout = 15 * time.Second

	// prefixCheckLen bounds the watermark extension check so minor
	// upstream revisions of early text don't read as a reset. Tunable,
	// not semantically meaningful.
	prefixCheckLen = 50
)

// boundaryMarks are the sentence-boundary characters that trigger a
// translation immediately.
const boundaryMarks = ".!?,;:"

// fillerWords never trigger a translation on their own.
var fillerWords = map[string]struct{}{
	"the": {}, "okay": {}, "um": {}, "uh": {}, "ah": {},
	"oh": {}, "hmm": {}, "hm": {}, "a": {}, "an": {},
}

// Config tunes segmentation triggers.
type Config struct {
	TargetLanguage string
	MinWords       int
	IdleAfter      time.Duration
	IdleMinWords   int
	TickInterval   time.Duration
	StuckAfter     time.Duration
	RequestTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MinWords <= 0 {
		c.MinWords = DefaultMinWords
	}
	if c.IdleAfter <= 0 {
		c.IdleAfter = DefaultIdleAfter
	}
	if c.IdleMinWords <= 0 {
		c.IdleMinWords = DefaultIdleMinWords
	}
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.StuckAfter <= 0 {
		c.StuckAfter = DefaultStuckAfter
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	return c
}

// Hooks receive segmenter output. All callbacks may be nil and may be
// invoked from background goroutines.
type Hooks struct {
	// Chunk is called for each streamed piece of translated text.
	Chunk func(string)
	// Segment is called with each finalized translated segment, for
	// downstream speech synthesis.
	Segment func(string)
	// Error is called with user-visible failures. Timeouts are
	// abandoned silently and never reported here.
	Error func(error)
}

// Segmenter tracks a watermark into the growing transcript and fires a
// translation request when new content is ready: sentence boundary,
// enough words, or an idle timeout. At most one request is in flight;
// extra triggers are dropped, not queued.
type Segmenter struct {
	mu            sync.Mutex
	cfg           Config
	translator    translate.Streamer
	hooks         Hooks
	lastProcessed string
	full          string
	lastDispatch  time.Time
	inFlight      bool
	inFlightSince time.Time
	gen           uint64
	translated    strings.Builder
	stopCh        chan struct{}
	stopOnce      sync.Once
}

// New creates a segmenter translating via tr.
func New(tr translate.Streamer, cfg Config, hooks Hooks) *Segmenter {
	return &Segmenter{
		cfg:          cfg.withDefaults(),
		translator:   tr,
		hooks:        hooks,
		lastDispatch: time.Now(),
		stopCh:       make(chan struct{}),
	}
}

// Start launches the background idle-trigger timer: slow, short
// utterances still get translated even if no boundary or word-count
// trigger ever fires.
func (s *Segmenter) Start() {
	go s.tickLoop()
}

// Stop halts the background timer. Idempotent.
func (s *Segmenter) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// SetTargetLanguage changes the translation target for future requests.
func (s *Segmenter) SetTargetLanguage(lang string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.TargetLanguage = lang
}

// Translated returns the committed translation buffer.
func (s *Segmenter) Translated() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.translated.String()
}

// Reset clears the watermark and the translation buffer.
func (s *Segmenter) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastProcessed = ""
	s.full = ""
	s.translated.Reset()
}

// Feed processes a transcript snapshot and fires at most one
// translation request.
func (s *Segmenter) Feed(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := s.freshContentLocked(text)
	s.full = text
	if strings.TrimSpace(fresh) == "" {
		return
	}

	words := len(strings.Fields(fresh))
	switch {
	case strings.ContainsAny(fresh, boundaryMarks):
		s.dispatchLocked(fresh, "boundary")
	case words >= s.cfg.MinWords:
		s.dispatchLocked(fresh, "word_count")
	}
}

// freshContentLocked diffs text against the watermark. An extension
// yields the suffix beyond the watermark; anything else is a source
// reset and the whole text counts as new.
func (s *Segmenter) freshContentLocked(text string) string {
	w := s.lastProcessed
	if w == "" {
		return text
	}
	n := min(len(w), prefixCheckLen)
	if len(text) >= len(w) && text[:n] == w[:n] {
		return text[len(w):]
	}
	slog.Info("transcript reset detected", "watermark_len", len(w), "text_len", len(text))
	s.lastProcessed = ""
	return text
}

// dispatchLocked starts a translation for fresh content, advancing the
// watermark to the full current transcript. Drops the trigger if a
// request is already in flight, unless that request looks stuck.
func (s *Segmenter) dispatchLocked(fresh, reason string) {
	if isFiller(fresh) {
		return
	}

	now := time.Now()
	if s.inFlight {
		if now.Sub(s.inFlightSince) < s.cfg.StuckAfter {
			slog.Debug("translation in flight, dropping trigger", "reason", reason)
			return
		}
		// Liveness: a hung call must not block translation forever.
		slog.Warn("force-clearing stuck translation", "age", now.Sub(s.inFlightSince))
	}

	s.inFlight = true
	s.inFlightSince = now
	s.lastProcessed = s.full
	s.lastDispatch = now
	// Each dispatch gets a generation. A force-cleared request that
	// eventually completes sees a newer generation and discards itself
	// instead of clearing state that belongs to its replacement.
	s.gen++

	text := strings.TrimSpace(fresh)
	lang := s.cfg.TargetLanguage
	slog.Debug("translation trigger", "reason", reason, "words", len(strings.Fields(text)))
	go s.run(text, lang, s.gen)
}

func (s *Segmenter) run(text, lang string, gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RequestTimeout)
	defer cancel()

	var result strings.Builder
	err := s.translator.TranslateStream(ctx, text, lang, func(chunk string) {
		s.mu.Lock()
		if s.gen != gen {
			s.mu.Unlock()
			return
		}
		s.translated.WriteString(chunk)
		s.mu.Unlock()
		result.WriteString(chunk)
		if s.hooks.Chunk != nil {
			s.hooks.Chunk(chunk)
		}
	})

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		slog.Debug("discarding superseded translation", "words", len(strings.Fields(text)))
		return
	}
	s.inFlight = false
	if err == nil {
		// Trailing space separates this segment from the next.
		s.translated.WriteString(" ")
	}
	s.mu.Unlock()

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			// Abandoned, not a user-facing failure.
			slog.Debug("translation timed out", "words", len(strings.Fields(text)))
			return
		}
		slog.Error("translation failed", "error", err)
		if s.hooks.Error != nil {
			s.hooks.Error(err)
		}
		return
	}

	if final := strings.TrimSpace(result.String()); final != "" && s.hooks.Segment != nil {
		s.hooks.Segment(final)
	}
}

func (s *Segmenter) tickLoop() {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.mu.Lock()
			pending := s.pendingLocked()
			idle := time.Since(s.lastDispatch) >= s.cfg.IdleAfter
			if idle && len(strings.Fields(pending)) >= s.cfg.IdleMinWords {
				s.dispatchLocked(pending, "idle")
			}
			s.mu.Unlock()
		}
	}
}

// pendingLocked returns unprocessed content without advancing state.
func (s *Segmenter) pendingLocked() string {
	w := s.lastProcessed
	if w == "" {
		return s.full
	}
	n := min(len(w), prefixCheckLen)
	if len(s.full) >= len(w) && s.full[:n] == w[:n] {
		return s.full[len(w):]
	}
	return s.full
}

// isFiller reports whether text contains nothing but filler words.
func isFiller(text string) bool {
	meaningful := 0
	for _, w := range strings.Fields(text) {
		w = strings.ToLower(strings.Trim(w, ".,!?;: "))
		if w == "" {
			continue
		}
		if _, ok := fillerWords[w]; !ok {
			meaningful++
		}
	}
	return meaningful == 0
}
