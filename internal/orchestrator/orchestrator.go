// Package orchestrator owns which translation pipeline runs and
// sequences every activation through teardown-before-start
package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	apperrors "github.com/speechtrack/platform/internal/errors"
	"github.com/speechtrack/platform/internal/pipeline"
)

// trackingRestartGrace delays the restart after the external
// tracking-capture flag flips, so rapid toggles collapse into one
// restart instead of thrashing the microphone.
const trackingRestartGrace = 300 * time.Millisecond

// View is the orchestrator's merged snapshot for consumers: the active
// mode's descriptor plus its live status. Zero value means no pipeline
// is active.
type View struct {
	Enabled    bool
	Mode       pipeline.Mode
	Descriptor pipeline.Descriptor
	Status     pipeline.Status
}

// Orchestrator holds the full variant set and guarantees at most one is
// running. Every transition (enable, mode switch, config change,
// restart) tears all variants down before starting the selected one;
// the shared microphone makes anything less an ownership bug. All
// transitions are serialized under one lock.
type Orchestrator struct {
	variants map[pipeline.Mode]pipeline.Variant

	mu         sync.Mutex
	enabled    bool
	mode       pipeline.Mode
	cfg        pipeline.Config
	closed     bool
	graceTimer *time.Timer
}

// New creates an orchestrator over the given variants, initially
// disabled with the first variant's mode selected.
func New(cfg pipeline.Config, variants ...pipeline.Variant) *Orchestrator {
	byMode := make(map[pipeline.Mode]pipeline.Variant, len(variants))
	for _, v := range variants {
		byMode[v.Mode()] = v
	}
	o := &Orchestrator{variants: byMode, cfg: cfg}
	if len(variants) > 0 {
		o.mode = variants[0].Mode()
	}
	return o
}

// SetEnabled turns translation on or off. Enabling starts the selected
// mode; disabling tears everything down. Idempotent in both directions.
func (o *Orchestrator) SetEnabled(ctx context.Context, on bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || o.enabled == on {
		return nil
	}
	o.enabled = on
	if !on {
		o.stopAllLocked()
		slog.Info("translation disabled")
		return nil
	}
	slog.Info("translation enabled", "mode", o.mode)
	return o.activateLocked(ctx)
}

// SetMode selects a variant. If translation is enabled the switch takes
// effect immediately; otherwise it only changes what the next enable
// starts. Selecting the active mode is a no-op.
func (o *Orchestrator) SetMode(ctx context.Context, m pipeline.Mode) error {
	if !m.Valid() {
		return apperrors.Newf(apperrors.Parse, "unknown pipeline mode %q", m)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || o.mode == m {
		return nil
	}
	o.mode = m
	if !o.enabled {
		return nil
	}
	slog.Info("switching pipeline", "mode", m)
	return o.activateLocked(ctx)
}

// UpdateConfig applies new session parameters. An active pipeline
// restarts so the change takes effect; an idle one just records it.
func (o *Orchestrator) UpdateConfig(ctx context.Context, cfg pipeline.Config) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	if cfg == o.cfg {
		return nil
	}
	o.cfg = cfg
	if !o.enabled {
		return nil
	}
	slog.Info("pipeline config changed, restarting", "mode", o.mode, "target", cfg.TargetLanguage)
	return o.activateLocked(ctx)
}

// SetTrackingCapture records whether script tracking owns the
// microphone and feeds transcripts externally. An active pipeline is
// restarted after a short grace delay, so a rapid toggle (tracking
// stop/start) produces one restart, not two.
func (o *Orchestrator) SetTrackingCapture(ctx context.Context, external bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || o.cfg.ExternalASR == external {
		return
	}
	o.cfg.ExternalASR = external
	if !o.enabled {
		return
	}

	if o.graceTimer != nil {
		o.graceTimer.Stop()
	}
	slog.Info("tracking capture changed, scheduling restart", "external", external)
	o.graceTimer = time.AfterFunc(trackingRestartGrace, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if o.closed || !o.enabled {
			return
		}
		if err := o.activateLocked(ctx); err != nil {
			slog.Error("restart after capture change failed", "mode", o.mode, "error", err)
		}
	})
}

// Restart tears down and reactivates the current mode.
func (o *Orchestrator) Restart(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || !o.enabled {
		return nil
	}
	slog.Info("restarting pipeline", "mode", o.mode)
	return o.activateLocked(ctx)
}

// Feed forwards externally-captured transcript text to the active
// variant. Dropped when disabled.
func (o *Orchestrator) Feed(text string) {
	o.mu.Lock()
	v := o.activeLocked()
	o.mu.Unlock()
	if v != nil {
		v.Feed(text)
	}
}

// View returns the merged snapshot for the selected mode.
func (o *Orchestrator) View() View {
	o.mu.Lock()
	enabled, mode := o.enabled, o.mode
	v := o.activeLocked()
	o.mu.Unlock()

	view := View{Enabled: enabled, Mode: mode, Descriptor: mode.Descriptor()}
	if v != nil {
		view.Status = v.Status()
	}
	return view
}

// Mode returns the selected mode, active or not.
func (o *Orchestrator) Mode() pipeline.Mode {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mode
}

// Config returns the current session parameters.
func (o *Orchestrator) Config() pipeline.Config {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cfg
}

// Enabled reports whether translation is on.
func (o *Orchestrator) Enabled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.enabled
}

// Close tears everything down unconditionally. The orchestrator accepts
// no transitions afterwards.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	o.enabled = false
	o.stopAllLocked()
}

func (o *Orchestrator) activeLocked() pipeline.Variant {
	if !o.enabled {
		return nil
	}
	return o.variants[o.mode]
}

// activateLocked is the single activation path: stop every variant,
// then start the selected one. Stopping all (not just the previous
// active one) keeps the invariant robust against missed bookkeeping.
func (o *Orchestrator) activateLocked(ctx context.Context) error {
	o.stopAllLocked()
	v := o.variants[o.mode]
	if v == nil {
		return apperrors.Newf(apperrors.Unsupported, "no variant registered for mode %q", o.mode)
	}
	if err := v.Start(ctx, o.cfg); err != nil {
		return apperrors.Wrapf(err, apperrors.CodeOf(err), "starting %s pipeline", o.mode)
	}
	return nil
}

func (o *Orchestrator) stopAllLocked() {
	if o.graceTimer != nil {
		o.graceTimer.Stop()
		o.graceTimer = nil
	}
	for _, v := range o.variants {
		v.Stop()
	}
}
