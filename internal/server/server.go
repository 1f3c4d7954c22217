// Package server provides the control HTTP and WebSocket surface
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	apperrors "github.com/speechtrack/platform/internal/errors"
	"github.com/speechtrack/platform/internal/orchestrator"
	"github.com/speechtrack/platform/internal/pipeline"
	"github.com/speechtrack/platform/internal/playback"
	"github.com/speechtrack/platform/internal/script"
	"github.com/speechtrack/platform/internal/speech"
	"github.com/speechtrack/platform/internal/trace"
	"github.com/speechtrack/platform/internal/tracker"
)

// clientMessage is the single inbound envelope; Type selects the fields
// that matter.
type clientMessage struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Mode     string `json:"mode,omitempty"`
	Enabled  bool   `json:"enabled,omitempty"`
	Language string `json:"language,omitempty"`
	Voice    string `json:"voice,omitempty"`
	External bool   `json:"external,omitempty"`
	Index    int    `json:"index"`
	Reason   string `json:"reason,omitempty"`
}

// commandMessage instructs clients to drive their recognition engine.
// Recognition runs in the UI (it owns the permission prompt); the server
// owns the intent: when to start, stop, and restart.
type commandMessage struct {
	Type    string `json:"type"`
	Command string `json:"command"`
}

// stateMessage is the periodic merged snapshot pushed to every client.
type stateMessage struct {
	Type           string  `json:"type"`
	Enabled        bool    `json:"enabled"`
	Mode           string  `json:"mode"`
	Label          string  `json:"label"`
	Color          string  `json:"color"`
	Engine         string  `json:"engine"`
	ConnState      string  `json:"conn_state"`
	Speaking       bool    `json:"speaking"`
	SourceText     string  `json:"source_text"`
	TranslatedText string  `json:"translated_text"`
	DraftText      string  `json:"draft_text"`
	Error          string  `json:"error,omitempty"`
	InputLevel     float64 `json:"input_level"`
	Position       int     `json:"position"`
	ScriptWords    int     `json:"script_words"`
	TrackingPhase  string  `json:"tracking_phase"`
}

type modeEntry struct {
	Mode   string `json:"mode"`
	Label  string `json:"label"`
	Color  string `json:"color"`
	Engine string `json:"engine"`
}

type modesMessage struct {
	Type  string      `json:"type"`
	Modes []modeEntry `json:"modes"`
}

type audioMessage struct {
	Type       string `json:"type"`
	Data       string `json:"data"`
	SampleRate int    `json:"sampleRate"`
	DelayMs    int64  `json:"delay_ms"`
}

type errorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// rateLimiter tracks message timestamps using a sliding window.
type rateLimiter struct {
	timestamps []time.Time
	mu         sync.Mutex
}

// allow checks if a message is allowed and records the timestamp if so.
func (r *rateLimiter) allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-RateLimitWindow)

	valid := r.timestamps[:0]
	for _, t := range r.timestamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	r.timestamps = valid

	if len(r.timestamps) >= RateLimitMessages {
		return false
	}

	r.timestamps = append(r.timestamps, now)
	return true
}

// Server exposes the orchestrator and tracker to UI clients over one
// WebSocket plus a small REST surface.
type Server struct {
	orch *orchestrator.Orchestrator
	trk  *tracker.Tracker
	rec  *speech.Recognizer

	mu         sync.RWMutex
	conns      map[*websocket.Conn]struct{}
	rateLimits map[*websocket.Conn]*rateLimiter

	stopCh   chan struct{}
	stopOnce sync.Once
}

// remoteEngine bridges the recognizer's engine contract to connected
// clients: commands go out as broadcasts, results come back as
// recognition_result / recognition_end messages.
type remoteEngine struct {
	s *Server
}

func (e *remoteEngine) Start() error {
	e.s.broadcast(commandMessage{Type: "recognition_command", Command: "start"})
	return nil
}

func (e *remoteEngine) Stop() {
	e.s.broadcast(commandMessage{Type: "recognition_command", Command: "stop"})
}

func (e *remoteEngine) Reset() {
	e.s.broadcast(commandMessage{Type: "recognition_command", Command: "reset"})
}

// New creates a server and starts its state broadcaster.
func New(orch *orchestrator.Orchestrator, trk *tracker.Tracker) *Server {
	s := &Server{
		orch:       orch,
		trk:        trk,
		conns:      make(map[*websocket.Conn]struct{}),
		rateLimits: make(map[*websocket.Conn]*rateLimiter),
		stopCh:     make(chan struct{}),
	}
	// One transcript snapshot drives both position tracking and the
	// active pipeline's external feed.
	s.rec = speech.New(&remoteEngine{s: s}, func(text string) {
		trk.Update(text)
		orch.Feed(text)
	})
	go s.broadcastState()
	return s
}

// Close stops the broadcaster. Open client connections close on their
// own when the HTTP server shuts down.
func (s *Server) Close() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("GET /api/health", s.handleHealth)

	// Apply middleware: trace -> CORS
	return corsMiddleware(trace.Middleware(mux))
}

// AudioSink returns a playback sink that ships synthesized audio to all
// connected clients, which own the actual output device.
func (s *Server) AudioSink() playback.Sink {
	return func(clip playback.Clip, startAt time.Time) {
		msg := audioMessage{
			Type:       "audio",
			Data:       base64.StdEncoding.EncodeToString(clip.PCM),
			SampleRate: clip.SampleRate,
			DelayMs:    max(time.Until(startAt).Milliseconds(), 0),
		}
		s.broadcast(msg)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.rateLimits[conn] = &rateLimiter{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		delete(s.rateLimits, conn)
		s.mu.Unlock()
	}()

	baseCtx := r.Context()
	log := trace.Logger(baseCtx)
	log.Info("control client connected", "remote", r.RemoteAddr)

	// New clients immediately learn the mode table and current state.
	_ = wsjson.Write(baseCtx, conn, s.modesMessage())
	_ = wsjson.Write(baseCtx, conn, s.stateSnapshot())

	for {
		var raw json.RawMessage
		if err := wsjson.Read(baseCtx, conn, &raw); err != nil {
			log.Debug("websocket read error", "error", err)
			return
		}

		s.mu.RLock()
		rl := s.rateLimits[conn]
		s.mu.RUnlock()

		if !rl.allow() {
			log.Warn("rate limit exceeded", "remote", r.RemoteAddr)
			_ = wsjson.Write(baseCtx, conn, errorMessage{Type: "error", Message: "rate limit exceeded"})
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		s.handleMessage(baseCtx, conn, msg)
	}
}

func (s *Server) handleMessage(ctx context.Context, conn *websocket.Conn, msg clientMessage) {
	// Pipelines must outlive the control connection that started them:
	// detach from the request's cancellation but keep its trace context.
	ctx = context.WithoutCancel(ctx)
	ctx, span := trace.StartSpan(ctx, "handle_"+msg.Type)
	defer span.End()
	log := trace.Logger(ctx)

	var err error
	switch msg.Type {
	case "set_script":
		model := script.New(msg.Text)
		s.trk.SetScript(model)
		log.Info("script loaded", "words", model.Len())

	case "transcript":
		// Direct feed for clients doing their own capture management.
		s.trk.Update(msg.Text)
		s.orch.Feed(msg.Text)

	case "tracking_start":
		if err = s.rec.Start(); err == nil {
			// Tracking owns the microphone now; pipelines that capture
			// switch to the externally-fed transcript.
			s.orch.SetTrackingCapture(ctx, true)
		}

	case "tracking_stop":
		s.rec.Stop()
		s.orch.SetTrackingCapture(ctx, false)

	case "recognition_result":
		s.rec.HandleResult(msg.Text)

	case "recognition_end":
		s.rec.HandleEnd(endError(msg.Reason))

	case "seek":
		s.trk.Seek(msg.Index)

	case "reset_position":
		s.trk.Reset()

	case "toggle":
		err = s.orch.SetEnabled(ctx, msg.Enabled)

	case "set_mode":
		err = s.orch.SetMode(ctx, pipeline.Mode(msg.Mode))

	case "set_language":
		cfg := s.orch.Config()
		cfg.TargetLanguage = msg.Language
		err = s.orch.UpdateConfig(ctx, cfg)

	case "set_voice":
		cfg := s.orch.Config()
		cfg.Voice = msg.Voice
		err = s.orch.UpdateConfig(ctx, cfg)

	case "set_tracking":
		s.orch.SetTrackingCapture(ctx, msg.External)

	case "restart":
		err = s.orch.Restart(ctx)

	default:
		log.Debug("unknown message type", "type", msg.Type)
		return
	}

	if err != nil {
		span.SetAttr("error", err.Error())
		log.Error("control message failed", "type", msg.Type, "error", err)
		_ = wsjson.Write(ctx, conn, errorMessage{Type: "error", Message: err.Error()})
	}

	// Control actions change state; push the result without waiting for
	// the next broadcast tick.
	s.broadcast(s.stateSnapshot())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	view := s.orch.View()
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":       "ok",
		"enabled":      view.Enabled,
		"mode":         string(view.Mode),
		"conn_state":   view.Status.State.String(),
		"script_words": s.trk.ScriptLen(),
	})
}

func (s *Server) modesMessage() modesMessage {
	msg := modesMessage{Type: "modes"}
	for _, m := range pipeline.Modes() {
		d := m.Descriptor()
		msg.Modes = append(msg.Modes, modeEntry{
			Mode: string(m), Label: d.Label, Color: d.Color, Engine: d.Engine,
		})
	}
	return msg
}

func (s *Server) stateSnapshot() stateMessage {
	view := s.orch.View()
	d := view.Descriptor
	return stateMessage{
		Type:           "state",
		Enabled:        view.Enabled,
		Mode:           string(view.Mode),
		Label:          d.Label,
		Color:          d.Color,
		Engine:         d.Engine,
		ConnState:      view.Status.State.String(),
		Speaking:       view.Status.Speaking,
		SourceText:     view.Status.SourceText,
		TranslatedText: view.Status.TranslatedText,
		DraftText:      view.Status.DraftText,
		Error:          view.Status.Err,
		InputLevel:     view.Status.InputLevel,
		Position:       s.trk.ActiveIndex(),
		ScriptWords:    s.trk.ScriptLen(),
		TrackingPhase:  s.rec.Phase().String(),
	}
}

// endError maps a client-reported recognition end reason onto the error
// taxonomy the recognizer's restart logic keys on.
func endError(reason string) error {
	switch reason {
	case "":
		return nil
	case "not-allowed", "service-not-allowed":
		return apperrors.New(apperrors.PermissionDenied, "microphone access denied")
	default:
		return apperrors.New(apperrors.Transient, reason)
	}
}

// broadcastState pushes a snapshot to all clients whenever it changes.
func (s *Server) broadcastState() {
	ticker := time.NewTicker(BroadcastInterval)
	defer ticker.Stop()

	var last stateMessage
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			snap := s.stateSnapshot()
			if snap == last {
				continue
			}
			last = snap
			s.broadcast(snap)
		}
	}
}

func (s *Server) broadcast(msg any) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for conn := range s.conns {
		go func(c *websocket.Conn) {
			_ = wsjson.Write(context.Background(), c, msg)
		}(conn)
	}
}
