// Package audio handles microphone capture with exclusive device ownership
package audio

import (
	"context"
	"encoding/binary"
	"log/slog"
	"math"
	"sync"

	"github.com/gordonklaus/portaudio"

	apperrors "github.com/speechtrack/platform/internal/errors"
)

// Frame is a captured block of microphone audio.
type Frame struct {
	PCM   []byte  // 16-bit little-endian mono
	Level float64 // normalized input level in [0, 1]
}

// Capturer owns the microphone handle for exactly one pipeline at a
// time. Ownership transfers only through Stop-then-Start; Start fails
// if the device cannot be acquired, and Stop releases everything and is
// safe to call repeatedly or before Start.
type Capturer struct {
	sampleRate   int
	framesPerBuf int

	mu      sync.Mutex
	stream  *portaudio.Stream
	cancel  context.CancelFunc
	running bool
	level   float64
	outCh   chan Frame
}

// NewCapturer creates a capturer producing frames at the given sample rate.
func NewCapturer(sampleRate, bufferFrames int) *Capturer {
	if bufferFrames <= 0 {
		bufferFrames = 100
	}
	return &Capturer{
		sampleRate:   sampleRate,
		framesPerBuf: 1024,
		outCh:        make(chan Frame, bufferFrames),
	}
}

// Output returns the channel for receiving captured frames.
func (c *Capturer) Output() <-chan Frame { return c.outCh }

// Start acquires the default input device and begins capturing.
// Idempotent: a second Start while running is a no-op.
func (c *Capturer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return apperrors.Wrap(err, apperrors.Unavailable, "audio subsystem init failed")
	}

	dev, err := portaudio.DefaultInputDevice()
	if err != nil {
		_ = portaudio.Terminate()
		return apperrors.Wrap(err, apperrors.Unsupported, "no input device available")
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(c.sampleRate),
		FramesPerBuffer: c.framesPerBuf,
	}

	buf := make([]float32, c.framesPerBuf)
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		_ = portaudio.Terminate()
		return apperrors.Wrap(err, apperrors.PermissionDenied, "microphone open failed")
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return apperrors.Wrap(err, apperrors.Unavailable, "microphone start failed")
	}

	capCtx, cancel := context.WithCancel(ctx)
	c.stream = stream
	c.cancel = cancel
	c.running = true
	slog.Info("microphone capture started", "device", dev.Name, "sample_rate", c.sampleRate)

	go c.readLoop(capCtx, stream, buf)
	return nil
}

func (c *Capturer) readLoop(ctx context.Context, stream *portaudio.Stream, buf []float32) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := stream.Read(); err != nil {
			if ctx.Err() == nil {
				slog.Debug("audio read error", "error", err)
			}
			return
		}

		level := RMSLevel(buf)
		c.mu.Lock()
		c.level = level
		c.mu.Unlock()

		frame := Frame{PCM: Float32ToPCM16(buf), Level: level}
		select {
		case c.outCh <- frame:
		default:
			slog.Debug("audio buffer full, dropping frame")
		}
	}
}

// Level returns the most recent normalized input level.
func (c *Capturer) Level() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.level
}

// Stop releases the device and the audio subsystem. Idempotent, safe
// before Start.
func (c *Capturer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.running = false
	c.level = 0
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.stream != nil {
		_ = c.stream.Stop()
		_ = c.stream.Close()
		c.stream = nil
	}
	_ = portaudio.Terminate()
	slog.Info("microphone capture stopped")
}

// Float32ToPCM16 converts float32 samples to 16-bit little-endian PCM.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(s * 32767)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// RMSLevel computes a normalized loudness estimate in [0, 1]. The raw
// RMS of speech rarely exceeds ~0.25, so it is scaled up before clamping.
func RMSLevel(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	level := rms * 4
	if level > 1 {
		level = 1
	}
	return level
}
