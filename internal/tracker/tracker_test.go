package tracker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/speechtrack/platform/internal/script"
)

func TestAdvanceOnNearMatch(t *testing.T) {
	tr := New(script.New("the cat sat on the mat"))

	tr.Update("the")
	if got := tr.ActiveIndex(); got != 1 {
		t.Errorf("ActiveIndex() = %d, want 1", got)
	}

	tr.Update("the cat")
	if got := tr.ActiveIndex(); got != 2 {
		t.Errorf("ActiveIndex() = %d, want 2", got)
	}
}

func TestDistanceGatedConfirmation(t *testing.T) {
	// "mat" is at index 5, distance 5 from the cursor: a lone match must
	// not advance, two consecutive words must.
	tr := New(script.New("the cat sat on the mat"))

	tr.Update("mat")
	if got := tr.ActiveIndex(); got != 0 {
		t.Errorf("ActiveIndex() after lone far match = %d, want 0", got)
	}

	tr.Update("the mat")
	if got := tr.ActiveIndex(); got != 6 {
		t.Errorf("ActiveIndex() after corroborated match = %d, want 6", got)
	}
}

func TestFarJumpNeedsThreeWords(t *testing.T) {
	words := make([]string, 30)
	for i := range words {
		words[i] = fmt.Sprintf("word%02d", i)
	}
	tr := New(script.New(strings.Join(words, " ")))

	// Candidate at distance 15: two consecutive words are not enough.
	tr.Update("word14 word15")
	if got := tr.ActiveIndex(); got != 0 {
		t.Errorf("ActiveIndex() after 2-word far match = %d, want 0", got)
	}

	tr.Update("word13 word14 word15")
	if got := tr.ActiveIndex(); got != 16 {
		t.Errorf("ActiveIndex() after 3-word far match = %d, want 16", got)
	}
}

func TestSearchWindowBoundsScan(t *testing.T) {
	// The only occurrence of the spoken words is beyond the window; the
	// cursor must not move.
	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("filler ")
	}
	b.WriteString("unique target words")
	tr := New(script.New(b.String()))

	tr.Update("unique target words")
	if got := tr.ActiveIndex(); got != 0 {
		t.Errorf("ActiveIndex() = %d, want 0 (match outside window)", got)
	}
}

func TestMonotonicUnderAutomaticTracking(t *testing.T) {
	tr := New(script.New("one two three four five six seven eight nine ten"))

	updates := []string{
		"one two",
		"one two three",
		"one", // shrinking transcript must not move the cursor back
		"garbage words nowhere",
		"one two three four",
	}

	prev := 0
	for _, u := range updates {
		tr.Update(u)
		if got := tr.ActiveIndex(); got < prev {
			t.Fatalf("cursor decreased from %d to %d on update %q", prev, got, u)
		} else {
			prev = got
		}
	}
}

func TestResetTranscriptMatchesFresh(t *testing.T) {
	tr := New(script.New("alpha beta gamma delta epsilon"))

	tr.Update("alpha beta")
	if got := tr.ActiveIndex(); got != 2 {
		t.Fatalf("ActiveIndex() = %d, want 2", got)
	}

	// Engine reset: a short unrelated replacement, then the speaker
	// continues. Only the tail of the current string matters.
	tr.Update("gamma")
	if got := tr.ActiveIndex(); got != 3 {
		t.Errorf("ActiveIndex() after reset = %d, want 3", got)
	}
}

func TestEmptyTranscriptNoOp(t *testing.T) {
	tr := New(script.New("one two three"))
	tr.Seek(2)

	tr.Update("")
	tr.Update("  ...  ")
	if got := tr.ActiveIndex(); got != 2 {
		t.Errorf("ActiveIndex() = %d, want 2", got)
	}
}

func TestSeekClampsAndAllowsBackward(t *testing.T) {
	tr := New(script.New("one two three"))

	tr.Seek(99)
	if got := tr.ActiveIndex(); got != 3 {
		t.Errorf("ActiveIndex() = %d, want 3 (clamped)", got)
	}

	tr.Seek(-5)
	if got := tr.ActiveIndex(); got != 0 {
		t.Errorf("ActiveIndex() = %d, want 0 (clamped)", got)
	}

	tr.Seek(2)
	tr.Seek(1) // backward navigation is allowed for the user
	if got := tr.ActiveIndex(); got != 1 {
		t.Errorf("ActiveIndex() = %d, want 1", got)
	}
}

func TestTrackingResumesFromManualPosition(t *testing.T) {
	tr := New(script.New("one two three four five six"))

	tr.Update("one two three")
	tr.Seek(1) // user clicks back

	// Tracking searches forward from the user's position, never from a
	// stale captured value.
	tr.Update("two three")
	if got := tr.ActiveIndex(); got != 3 {
		t.Errorf("ActiveIndex() = %d, want 3", got)
	}
}

func TestSkipAheadScenario(t *testing.T) {
	tr := New(script.New("one two three four five six seven eight nine ten eleven twelve"))

	tr.Update("one two")
	if got := tr.ActiveIndex(); got != 2 {
		t.Fatalf("ActiveIndex() = %d, want 2", got)
	}

	// Speaker skips to "nine" (distance 8 from index 2): a lone match
	// must not advance without corroborating context.
	tr.Update("one two three four five nine")
	if got := tr.ActiveIndex(); got != 2 {
		t.Errorf("ActiveIndex() after uncorroborated skip = %d, want 2", got)
	}

	tr.Update("one two three four five nine ten")
	if got := tr.ActiveIndex(); got != 10 {
		t.Errorf("ActiveIndex() after corroborated skip = %d, want 10", got)
	}
}

func TestSetScriptResetsCursor(t *testing.T) {
	tr := New(script.New("one two three"))
	tr.Update("one two")

	tr.SetScript(script.New("alpha beta"))
	if got := tr.ActiveIndex(); got != 0 {
		t.Errorf("ActiveIndex() = %d, want 0 after script change", got)
	}
}
