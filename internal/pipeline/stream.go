package pipeline

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"sync"

	"github.com/speechtrack/platform/internal/audio"
	"github.com/speechtrack/platform/internal/playback"
	"github.com/speechtrack/platform/internal/syncx"
)

// streamAdapter describes how one WebSocket-backed variant differs from
// the others: endpoint, headers, capture rate, and its opening config
// message. Lifecycle, capture, playback and status handling are shared,
// so a fix lands in every variant at once.
type streamAdapter struct {
	mode       Mode
	url        string
	header     http.Header
	sampleRate int
	captures   func(cfg Config) bool
	configMsg  func(cfg Config) wireMessage
}

// Stream is the shared implementation of the WebSocket streaming
// variants (cloud realtime plus the three local backends).
type Stream struct {
	ad     streamAdapter
	sink   playback.Sink
	status *syncx.Guard[Status]

	mu     sync.Mutex
	sess   *session
	cap    *audio.Capturer
	queue  *playback.Queue
	cancel context.CancelFunc
}

func newStream(ad streamAdapter, sink playback.Sink) *Stream {
	return &Stream{ad: ad, sink: sink, status: syncx.NewGuard(Status{})}
}

// NewRealtime creates the cloud audio-to-audio streaming variant.
func NewRealtime(url, apiKey string, sink playback.Sink) *Stream {
	header := http.Header{}
	if apiKey != "" {
		header.Set("Authorization", "Bearer "+apiKey)
	}
	return newStream(streamAdapter{
		mode:       ModeRealtime,
		url:        url,
		header:     header,
		sampleRate: 16000,
		captures:   func(Config) bool { return true },
		configMsg: func(cfg Config) wireMessage {
			return wireMessage{Type: msgConfig, TargetLanguage: cfg.TargetLanguage, Voice: cfg.Voice}
		},
	}, sink)
}

// NewLocalOmni creates the local speech-to-speech turn-model variant.
func NewLocalOmni(baseURL string, sink playback.Sink) *Stream {
	return newStream(streamAdapter{
		mode:       ModeLocalOmni,
		url:        baseURL + "/ws/omni",
		sampleRate: 16000,
		captures:   func(Config) bool { return true },
		configMsg: func(cfg Config) wireMessage {
			return wireMessage{Type: msgConfig, TargetLanguage: cfg.TargetLanguage}
		},
	}, sink)
}

// NewLocalPipe creates the local ASR+translation+TTS variant. With
// ExternalASR set it captures no audio and is fed transcript text.
func NewLocalPipe(baseURL string, sink playback.Sink) *Stream {
	return newStream(streamAdapter{
		mode:       ModeLocalPipe,
		url:        baseURL + "/ws/pipeline",
		sampleRate: 16000,
		captures:   func(cfg Config) bool { return !cfg.ExternalASR },
		configMsg: func(cfg Config) wireMessage {
			asrMode := "local"
			if cfg.ExternalASR {
				asrMode = "browser"
			}
			return wireMessage{Type: msgConfig, TargetLanguage: cfg.TargetLanguage, ASRMode: asrMode}
		},
	}, sink)
}

// NewLocalDuplex creates the local frame-based full-duplex variant.
func NewLocalDuplex(baseURL string, sink playback.Sink) *Stream {
	return newStream(streamAdapter{
		mode:       ModeLocalDuplex,
		url:        baseURL + "/ws/personaplex",
		sampleRate: 24000,
		captures:   func(Config) bool { return true },
		configMsg: func(cfg Config) wireMessage {
			return wireMessage{Type: msgConfig, TargetLanguage: cfg.TargetLanguage}
		},
	}, sink)
}

// Mode implements Variant.
func (s *Stream) Mode() Mode { return s.ad.mode }

// Status implements Variant. Speaking reflects the playback queue live.
func (s *Stream) Status() Status {
	st := s.status.Get()
	s.mu.Lock()
	if s.queue != nil {
		st.Speaking = s.queue.Speaking()
	}
	level := s.cap
	s.mu.Unlock()
	if level != nil {
		st.InputLevel = level.Level()
	}
	return st
}

// Start implements Variant. A running stream is stopped first, so the
// previous session's resources are released before the new handshake.
func (s *Stream) Start(ctx context.Context, cfg Config) error {
	s.Stop()

	s.status.Set(Status{State: StateConnecting})
	runCtx, cancel := context.WithCancel(ctx)

	sess, err := dialSession(runCtx, s.ad.url, s.ad.header)
	if err != nil {
		cancel()
		s.status.Set(Status{State: StateDisconnected, Err: err.Error()})
		return err
	}
	if err := sess.send(runCtx, s.ad.configMsg(cfg)); err != nil {
		sess.close(context.Background())
		cancel()
		s.status.Set(Status{State: StateDisconnected, Err: err.Error()})
		return err
	}

	queue := playback.NewQueue(s.sink)
	var capt *audio.Capturer
	if s.ad.captures(cfg) {
		capt = audio.NewCapturer(s.ad.sampleRate, 100)
		if err := capt.Start(runCtx); err != nil {
			sess.close(context.Background())
			queue.Close()
			cancel()
			s.status.Set(Status{State: StateDisconnected, Err: err.Error()})
			return err
		}
		go s.pumpAudio(runCtx, sess, capt)
	}

	s.mu.Lock()
	s.sess = sess
	s.cap = capt
	s.queue = queue
	s.cancel = cancel
	s.mu.Unlock()

	go s.readLoop(runCtx, sess, queue)
	slog.Info("pipeline started", "mode", s.ad.mode, "target", cfg.TargetLanguage)
	return nil
}

// Stop implements Variant. Idempotent; safe before Start and on a
// partially-started stream.
func (s *Stream) Stop() {
	s.mu.Lock()
	sess, capt, queue, cancel := s.sess, s.cap, s.queue, s.cancel
	s.sess, s.cap, s.queue, s.cancel = nil, nil, nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if capt != nil {
		capt.Stop()
	}
	if sess != nil {
		sess.close(context.Background())
	}
	if queue != nil {
		queue.Close()
	}
	if sess != nil || capt != nil {
		slog.Info("pipeline stopped", "mode", s.ad.mode)
	}
	s.status.Set(Status{State: StateDisconnected})
}

// Feed implements Variant: forwards externally-captured transcript text
// to backends that accept it. No-op when the stream captures its own
// audio or is not running.
func (s *Stream) Feed(text string) {
	s.mu.Lock()
	sess := s.sess
	capturing := s.cap != nil
	s.mu.Unlock()
	if sess == nil || capturing {
		return
	}

	s.status.Write(func(st *Status) { st.SourceText = text })
	if err := sess.send(context.Background(), wireMessage{Type: msgText, Data: text}); err != nil {
		slog.Debug("transcript feed failed", "mode", s.ad.mode, "error", err)
	}
}

func (s *Stream) pumpAudio(ctx context.Context, sess *session, capt *audio.Capturer) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-capt.Output():
			msg := wireMessage{Type: msgAudio, Data: base64.StdEncoding.EncodeToString(frame.PCM)}
			if err := sess.send(ctx, msg); err != nil {
				if ctx.Err() == nil {
					slog.Debug("audio send failed", "mode", s.ad.mode, "error", err)
				}
				return
			}
		}
	}
}

func (s *Stream) readLoop(ctx context.Context, sess *session, queue *playback.Queue) {
	for {
		msg, err := sess.read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				// The socket died underneath us: mark this variant
				// disconnected without touching anything else.
				slog.Warn("pipeline session lost", "mode", s.ad.mode, "error", err)
				s.status.Write(func(st *Status) {
					st.State = StateDisconnected
					st.Err = "connection lost"
				})
			}
			return
		}
		s.handleMessage(msg, queue)
	}
}

func (s *Stream) handleMessage(msg wireMessage, queue *playback.Queue) {
	switch msg.Type {
	case msgStatus:
		switch msg.Data {
		case statusReady:
			s.status.Write(func(st *Status) {
				st.State = StateConnected
				st.Err = ""
			})
		case statusLoadingModel:
			// Backend is alive but loading weights; not ready for input.
			s.status.Write(func(st *Status) { st.State = StateConnecting })
		case statusProcessing:
			// Mid-session progress note; connection state is unchanged.
		}

	case msgSourceText, msgSourceInterim:
		s.status.Write(func(st *Status) { st.SourceText = msg.Data })

	case msgTranslated:
		s.status.Write(func(st *Status) { st.TranslatedText += msg.Data })

	case msgTranslatedDraft:
		s.status.Write(func(st *Status) { st.DraftText += msg.Data })

	case msgTranslatedFinal:
		// The finalized segment replaces all accumulated draft text.
		s.status.Write(func(st *Status) {
			st.TranslatedText += msg.Data + " "
			st.DraftText = ""
		})

	case msgAudio:
		pcm, err := base64.StdEncoding.DecodeString(msg.Data)
		if err != nil {
			slog.Debug("malformed audio payload", "mode", s.ad.mode)
			return
		}
		rate := msg.SampleRate
		if rate == 0 {
			rate = s.ad.sampleRate
		}
		queue.Enqueue(playback.Clip{PCM: pcm, SampleRate: rate})

	case msgError:
		slog.Warn("backend error", "mode", s.ad.mode, "message", msg.Message)
		s.status.Write(func(st *Status) { st.Err = msg.Message })
	}
}
