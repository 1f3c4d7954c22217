// Package translate defines the text translation and speech synthesis
// contracts consumed by the streaming pipelines
package translate

import "context"

// Audio is a synthesized speech payload: 16-bit little-endian mono PCM.
type Audio struct {
	PCM        []byte
	SampleRate int
}

// Voice selects synthesis characteristics.
type Voice struct {
	Name     string
	Language string // BCP-47 code, derived from the target language name
}

// Streamer translates text, delivering the result incrementally.
type Streamer interface {
	// TranslateStream translates text into targetLanguage, invoking
	// onChunk for each piece of the result as it arrives.
	TranslateStream(ctx context.Context, text, targetLanguage string, onChunk func(string)) error
}

// Synthesizer renders finalized text as speech audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, voice Voice) (Audio, error)
}
