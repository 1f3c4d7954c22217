package segmenter

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	apperrors "github.com/speechtrack/platform/internal/errors"
)

type fakeTranslator struct {
	mu       sync.Mutex
	requests []string
	block    chan struct{} // when set, calls wait here or on ctx
	err      error
}

func (f *fakeTranslator) TranslateStream(ctx context.Context, text, lang string, onChunk func(string)) error {
	f.mu.Lock()
	f.requests = append(f.requests, text)
	block := f.block
	err := f.err
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		return err
	}
	onChunk("T:" + text)
	return nil
}

func (f *fakeTranslator) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.requests))
	copy(out, f.requests)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestBoundaryAndWordCountTriggers(t *testing.T) {
	tr := &fakeTranslator{}
	s := New(tr, Config{TargetLanguage: "French"}, Hooks{})

	// Fed word by word: the comma fires the first request, five more
	// words fire the second.
	full := ""
	for _, w := range strings.Split("Hello there, how are you today friend", " ") {
		if full != "" {
			full += " "
		}
		full += w
		s.Feed(full)
		time.Sleep(10 * time.Millisecond) // let the previous request settle
	}

	waitFor(t, func() bool { return len(tr.calls()) >= 2 })
	calls := tr.calls()

	if calls[0] != "Hello there," {
		t.Errorf("first request = %q, want %q", calls[0], "Hello there,")
	}
	if calls[1] != "how are you today friend" {
		t.Errorf("second request = %q, want %q", calls[1], "how are you today friend")
	}
}

func TestNoTriggerBelowThresholds(t *testing.T) {
	tr := &fakeTranslator{}
	s := New(tr, Config{}, Hooks{})

	s.Feed("just four small words")
	time.Sleep(50 * time.Millisecond)

	if n := len(tr.calls()); n != 0 {
		t.Errorf("requests = %d, want 0", n)
	}
}

func TestResetTreatsWholeTextAsNew(t *testing.T) {
	tr := &fakeTranslator{}
	s := New(tr, Config{}, Hooks{})

	s.Feed("the quick brown fox jumps over something")
	waitFor(t, func() bool { return len(tr.calls()) == 1 })
	time.Sleep(20 * time.Millisecond) // let the in-flight flag clear

	// Engine reset: replacement is not an extension of the watermark.
	s.Feed("completely different words arrive here now")
	waitFor(t, func() bool { return len(tr.calls()) == 2 })

	if got := tr.calls()[1]; got != "completely different words arrive here now" {
		t.Errorf("post-reset request = %q, want whole new transcript", got)
	}
}

func TestSingleInFlightDropsTriggers(t *testing.T) {
	tr := &fakeTranslator{block: make(chan struct{})}
	s := New(tr, Config{}, Hooks{})

	s.Feed("first sentence ends right here now.")
	waitFor(t, func() bool { return len(tr.calls()) == 1 })

	// Trigger while the first request is outstanding: dropped.
	s.Feed("first sentence ends right here now. second sentence also ends here friend.")
	time.Sleep(50 * time.Millisecond)
	if n := len(tr.calls()); n != 1 {
		t.Errorf("requests = %d, want 1 (second trigger dropped)", n)
	}

	close(tr.block)
}

func TestStuckInFlightForceCleared(t *testing.T) {
	block := make(chan struct{})
	tr := &fakeTranslator{block: block}
	s := New(tr, Config{StuckAfter: 20 * time.Millisecond}, Hooks{})

	s.Feed("first sentence ends right here now.")
	waitFor(t, func() bool { return len(tr.calls()) == 1 })

	time.Sleep(40 * time.Millisecond) // exceed the stuck threshold

	s.Feed("first sentence ends right here now. second sentence also ends here friend.")
	waitFor(t, func() bool { return len(tr.calls()) == 2 })

	close(block)
}

// gatedTranslator blocks each call on its own gate so the test can
// release them out of order.
type gatedTranslator struct {
	mu       sync.Mutex
	requests []string
	gates    []chan struct{}
}

func (f *gatedTranslator) TranslateStream(ctx context.Context, text, lang string, onChunk func(string)) error {
	gate := make(chan struct{})
	f.mu.Lock()
	f.requests = append(f.requests, text)
	f.gates = append(f.gates, gate)
	f.mu.Unlock()

	select {
	case <-gate:
	case <-ctx.Done():
		return ctx.Err()
	}
	onChunk("T:" + text)
	return nil
}

func (f *gatedTranslator) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.requests))
	copy(out, f.requests)
	return out
}

func (f *gatedTranslator) release(i int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	close(f.gates[i])
}

func TestForceClearedRequestStaysDiscarded(t *testing.T) {
	tr := &gatedTranslator{}
	s := New(tr, Config{StuckAfter: 100 * time.Millisecond}, Hooks{})

	s.Feed("first sentence ends right here now.")
	waitFor(t, func() bool { return len(tr.calls()) == 1 })

	time.Sleep(120 * time.Millisecond) // exceed the stuck threshold

	// Force-start a replacement past the stuck first request.
	s.Feed("first sentence ends right here now. second sentence also ends here friend.")
	waitFor(t, func() bool { return len(tr.calls()) == 2 })

	// The stuck request finally completes. Its completion must not clear
	// the replacement's in-flight state, and its output must not reach
	// the committed buffer.
	tr.release(0)
	time.Sleep(30 * time.Millisecond)
	if got := s.Translated(); got != "" {
		t.Errorf("Translated() = %q, want superseded output discarded", got)
	}

	// The replacement is young: a new trigger must be dropped.
	s.Feed("first sentence ends right here now. second sentence also ends here friend. third sentence keeps going onward too.")
	time.Sleep(50 * time.Millisecond)
	if n := len(tr.calls()); n != 2 {
		t.Errorf("requests = %d, want 2 (replacement still in flight)", n)
	}

	tr.release(1)
	waitFor(t, func() bool {
		return s.Translated() == "T:second sentence also ends here friend. "
	})
}

func TestRequestTimeoutAbandonedSilently(t *testing.T) {
	tr := &fakeTranslator{block: make(chan struct{})} // never released
	errCh := make(chan error, 1)
	s := New(tr, Config{RequestTimeout: 30 * time.Millisecond}, Hooks{
		Error: func(err error) { errCh <- err },
	})

	s.Feed("first sentence ends right here now.")
	waitFor(t, func() bool { return len(tr.calls()) == 1 })

	time.Sleep(60 * time.Millisecond) // past the deadline

	// The abandoned request cleared the in-flight flag, so a new trigger
	// proceeds without waiting out the stuck threshold.
	s.Feed("first sentence ends right here now. second sentence also ends here friend.")
	waitFor(t, func() bool { return len(tr.calls()) == 2 })

	select {
	case err := <-errCh:
		t.Errorf("timeout surfaced via the error hook: %v", err)
	default:
	}
}

func TestFillerOnlyContentNotDispatched(t *testing.T) {
	tr := &fakeTranslator{}
	s := New(tr, Config{}, Hooks{})

	s.Feed("um, uh. hmm.")
	time.Sleep(50 * time.Millisecond)

	if n := len(tr.calls()); n != 0 {
		t.Errorf("requests = %d, want 0 for filler-only content", n)
	}
}

func TestIdleTimerTrigger(t *testing.T) {
	tr := &fakeTranslator{}
	s := New(tr, Config{
		IdleAfter:    30 * time.Millisecond,
		TickInterval: 10 * time.Millisecond,
	}, Hooks{})
	s.Start()
	defer s.Stop()

	// Two words: below both immediate triggers, enough for the
	// dead-man's switch.
	s.Feed("hello friend")

	waitFor(t, func() bool { return len(tr.calls()) == 1 })
	if got := tr.calls()[0]; got != "hello friend" {
		t.Errorf("idle request = %q, want %q", got, "hello friend")
	}
}

func TestCommittedBufferAndSegmentHook(t *testing.T) {
	tr := &fakeTranslator{}
	var segMu sync.Mutex
	var segments []string
	s := New(tr, Config{}, Hooks{
		Segment: func(text string) {
			segMu.Lock()
			segments = append(segments, text)
			segMu.Unlock()
		},
	})

	s.Feed("first sentence ends right here now.")
	waitFor(t, func() bool {
		segMu.Lock()
		defer segMu.Unlock()
		return len(segments) == 1
	})

	if segments[0] != "T:first sentence ends right here now." {
		t.Errorf("segment = %q", segments[0])
	}
	// Committed buffer carries the trailing segment separator.
	if got := s.Translated(); got != "T:first sentence ends right here now. " {
		t.Errorf("Translated() = %q", got)
	}
}

func TestTranslationErrorSurfacedViaHook(t *testing.T) {
	tr := &fakeTranslator{err: apperrors.New(apperrors.Network, "socket closed")}
	errCh := make(chan error, 1)
	s := New(tr, Config{}, Hooks{
		Error: func(err error) { errCh <- err },
	})

	s.Feed("first sentence ends right here now.")

	select {
	case err := <-errCh:
		if !apperrors.IsCode(err, apperrors.Network) {
			t.Errorf("error code = %v, want Network", apperrors.CodeOf(err))
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for error hook")
	}
}

func TestIsFiller(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"um", true},
		{"uh, hmm.", true},
		{"the a an", true},
		{"", true},
		{"hello", false},
		{"um hello", false},
	}

	for _, tt := range tests {
		if got := isFiller(tt.text); got != tt.want {
			t.Errorf("isFiller(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}
