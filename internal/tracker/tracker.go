// Package tracker maintains the speaker's position within a script
package tracker

import (
	"sync"

	"github.com/speechtrack/platform/internal/script"
)

// Tracking constants
const (
	// SearchWindow bounds the forward scan from the active index. Caps the
	// per-update cost and keeps common words from matching unrelated
	// repetitions far ahead in the document.
	SearchWindow = 20

	// Distance bands for required corroborating matches.
	nearDistance = 1  // 0..1 words ahead: a single match is enough
	midDistance  = 10 // 2..10 words ahead: two consecutive matches
	// beyond midDistance: three consecutive matches
)

// Tracker holds the authoritative cursor into a script word sequence.
// Automatic tracking only ever moves the cursor forward; manual
// navigation may move it anywhere.
type Tracker struct {
	mu     sync.Mutex
	script *script.Script
	active int
}

// New creates a tracker over the given script with the cursor at 0.
func New(s *script.Script) *Tracker {
	return &Tracker{script: s}
}

// SetScript replaces the script model and resets the cursor.
func (t *Tracker) SetScript(s *script.Script) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.script = s
	t.active = 0
}

// ActiveIndex returns the current cursor position.
func (t *Tracker) ActiveIndex() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// ScriptLen returns the word count of the current script.
func (t *Tracker) ScriptLen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.script.Len()
}

// Seek sets the cursor directly (user navigation). Any direction is
// allowed; the value is clamped to the valid range.
func (t *Tracker) Seek(i int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i < 0 {
		i = 0
	}
	if n := t.script.Len(); i > n {
		i = n
	}
	t.active = i
}

// Reset moves the cursor back to the start of the script.
func (t *Tracker) Reset() {
	t.Seek(0)
}

// Update matches the tail of the transcript against the script and may
// advance the cursor. It looks only at the current transcript string, so
// a transcript that was reset or replaced upstream is handled the same
// way as a fresh one. The search always begins from the cursor's value
// at call time, so it never fights a position the user just set.
func (t *Tracker) Update(transcript string) {
	words := script.Tokenize(transcript)
	if len(words) == 0 {
		return
	}

	last := words[len(words)-1]
	var secondLast, thirdLast string
	if len(words) >= 2 {
		secondLast = words[len(words)-2]
	}
	if len(words) >= 3 {
		thirdLast = words[len(words)-3]
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	limit := t.active + SearchWindow
	if n := t.script.Len(); limit > n {
		limit = n
	}

	for i := t.active; i < limit; i++ {
		if t.script.Word(i).Normalized != last {
			continue
		}

		matches := 1
		if secondLast != "" && i >= 1 && t.script.Word(i-1).Normalized == secondLast {
			matches = 2
			if thirdLast != "" && i >= 2 && t.script.Word(i-2).Normalized == thirdLast {
				matches = 3
			}
		}

		// Single common words must not cause large jumps: the farther the
		// candidate, the more consecutive context it needs.
		distance := i - t.active
		required := 1
		switch {
		case distance > midDistance:
			required = 3
		case distance > nearDistance:
			required = 2
		}

		if matches >= required {
			// First qualifying candidate wins (nearest match preferred).
			t.active = i + 1
			return
		}
	}
}
