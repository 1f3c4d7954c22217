// Package pipeline implements the interchangeable streaming translation
// backends behind one lifecycle contract
package pipeline

import "context"

// Mode identifies a pipeline variant. The set is closed: the
// orchestrator activates at most one at a time.
type Mode string

const (
	ModeRealtime    Mode = "realtime"     // cloud audio-to-audio streaming
	ModeTextPipe    Mode = "textpipe"     // text translate, then speak
	ModeLocalOmni   Mode = "local_omni"   // local speech-to-speech turn model
	ModeLocalPipe   Mode = "local_pipe"   // local ASR + translation + TTS
	ModeLocalDuplex Mode = "local_duplex" // local frame-based full duplex
)

// Modes returns all variants in display order.
func Modes() []Mode {
	return []Mode{ModeRealtime, ModeTextPipe, ModeLocalOmni, ModeLocalPipe, ModeLocalDuplex}
}

// Valid reports whether m names a known variant.
func (m Mode) Valid() bool {
	switch m {
	case ModeRealtime, ModeTextPipe, ModeLocalOmni, ModeLocalPipe, ModeLocalDuplex:
		return true
	}
	return false
}

// Descriptor holds per-mode display metadata.
type Descriptor struct {
	Label  string
	Color  string
	Engine string
}

var descriptors = map[Mode]Descriptor{
	ModeRealtime:    {Label: "Realtime", Color: "#4f8ef7", Engine: "cloud streaming speech-to-speech"},
	ModeTextPipe:    {Label: "Translate + Speak", Color: "#34c088", Engine: "text translation with speech synthesis"},
	ModeLocalOmni:   {Label: "Local Omni", Color: "#b07af0", Engine: "local multimodal turn model"},
	ModeLocalPipe:   {Label: "Local Pipeline", Color: "#f0a04a", Engine: "local ASR, translation and TTS"},
	ModeLocalDuplex: {Label: "Local Duplex", Color: "#ef6a8a", Engine: "local full-duplex frame model"},
}

// Descriptor returns the display metadata for a mode.
func (m Mode) Descriptor() Descriptor {
	return descriptors[m]
}

// State is the connection state of a variant.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Config carries the session parameters a variant starts with.
type Config struct {
	TargetLanguage string
	Voice          string
	// ExternalASR switches the local pipeline to an externally-fed
	// transcript instead of capturing its own audio.
	ExternalASR bool
}

// Status is a read-only snapshot of a variant's observable state.
type Status struct {
	State          State
	Speaking       bool
	SourceText     string
	TranslatedText string
	// DraftText holds incrementally-revisable translation output,
	// replaced wholesale when the variant finalizes a segment.
	DraftText  string
	Err        string
	InputLevel float64
}

// Connected reports whether the variant has an open session.
func (s Status) Connected() bool { return s.State == StateConnected }

// Variant is the common lifecycle contract all five backends implement.
// Start is idempotent (an already-running variant stops first); Stop is
// idempotent and safe before Start; Feed is a no-op for variants that
// capture their own audio.
type Variant interface {
	Mode() Mode
	Start(ctx context.Context, cfg Config) error
	Stop()
	Feed(text string)
	Status() Status
}
