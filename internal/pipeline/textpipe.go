package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/speechtrack/platform/internal/playback"
	"github.com/speechtrack/platform/internal/segmenter"
	"github.com/speechtrack/platform/internal/syncx"
	"github.com/speechtrack/platform/internal/translate"
)

// TextPipe is the translate-then-speak variant: externally-captured
// transcript text is segmented, each segment translated, and each
// finalized translation synthesized and played one utterance at a time.
// It never captures audio itself.
type TextPipe struct {
	translator translate.Streamer
	synth      translate.Synthesizer
	sink       playback.Sink
	segCfg     segmenter.Config
	status     *syncx.Guard[Status]

	mu     sync.Mutex
	seg    *segmenter.Segmenter
	serial *playback.Serial
}

// NewTextPipe creates the text pipeline variant delivering synthesized
// speech to sink.
func NewTextPipe(tr translate.Streamer, synth translate.Synthesizer, sink playback.Sink) *TextPipe {
	return &TextPipe{
		translator: tr,
		synth:      synth,
		sink:       sink,
		status:     syncx.NewGuard(Status{}),
	}
}

// Mode implements Variant.
func (p *TextPipe) Mode() Mode { return ModeTextPipe }

// Status implements Variant.
func (p *TextPipe) Status() Status {
	st := p.status.Get()
	p.mu.Lock()
	if p.serial != nil {
		st.Speaking = p.serial.Speaking()
	}
	p.mu.Unlock()
	return st
}

// Start implements Variant. There is no backend handshake: the variant
// is connected as soon as its segmenter is running.
func (p *TextPipe) Start(ctx context.Context, cfg Config) error {
	p.Stop()

	voice := translate.VoiceFor(cfg.Voice, cfg.TargetLanguage)
	serial := playback.NewSerial(func(ctx context.Context, text string) error {
		return p.speak(ctx, text, voice)
	})

	segCfg := p.segCfg
	segCfg.TargetLanguage = cfg.TargetLanguage
	seg := segmenter.New(p.translator, segCfg, segmenter.Hooks{
		Chunk: func(chunk string) {
			p.status.Write(func(st *Status) { st.DraftText += chunk })
		},
		Segment: func(text string) {
			// Finalized: move the segment from draft to committed and
			// hand it to synthesis.
			p.status.Write(func(st *Status) {
				st.TranslatedText += text + " "
				st.DraftText = ""
			})
			serial.Enqueue(text)
		},
		Error: func(err error) {
			p.status.Write(func(st *Status) { st.Err = err.Error() })
		},
	})
	seg.Start()

	p.mu.Lock()
	p.seg = seg
	p.serial = serial
	p.mu.Unlock()

	p.status.Set(Status{State: StateConnected})
	slog.Info("pipeline started", "mode", ModeTextPipe, "target", cfg.TargetLanguage)
	return nil
}

// Stop implements Variant. Idempotent.
func (p *TextPipe) Stop() {
	p.mu.Lock()
	seg, serial := p.seg, p.serial
	p.seg, p.serial = nil, nil
	p.mu.Unlock()

	if seg != nil {
		seg.Stop()
	}
	if serial != nil {
		serial.Close()
	}
	if seg != nil {
		slog.Info("pipeline stopped", "mode", ModeTextPipe)
	}
	p.status.Set(Status{State: StateDisconnected})
}

// Feed implements Variant: each transcript snapshot updates the visible
// source text and advances the segmenter.
func (p *TextPipe) Feed(text string) {
	p.mu.Lock()
	seg := p.seg
	p.mu.Unlock()
	if seg == nil {
		return
	}
	p.status.Write(func(st *Status) { st.SourceText = text })
	seg.Feed(text)
}

// speak synthesizes one utterance and blocks until it has played, so
// the serial queue cannot overlap utterances.
func (p *TextPipe) speak(ctx context.Context, text string, voice translate.Voice) error {
	clip, err := p.synth.Synthesize(ctx, text, voice)
	if err != nil {
		return err
	}
	audio := playback.Clip{PCM: clip.PCM, SampleRate: clip.SampleRate}
	p.sink(audio, time.Now())

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(audio.Duration()):
		return nil
	}
}
