// Package playback schedules synthesized audio clips for sequential,
// non-overlapping output
package playback

import (
	"log/slog"
	"sync"
	"time"
)

// Clip is an opaque synthesized-audio payload: 16-bit little-endian mono PCM.
type Clip struct {
	PCM        []byte
	SampleRate int
}

// Duration returns the clip's play time.
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	samples := len(c.PCM) / 2
	return time.Duration(samples) * time.Second / time.Duration(c.SampleRate)
}

// Sink receives clips with their computed start times. The implementation
// must honor the start time; the queue only decides when.
type Sink func(clip Clip, startAt time.Time)

// stopper matches time.Timer's Stop for injectable timers in tests.
type stopper interface {
	Stop() bool
}

// Queue schedules clips ahead of time. Each clip starts no earlier than
// "now" and no earlier than the previous clip's end, so playback is
// strictly sequential and gap-free unless the queue is starved. Arrival
// jitter does not matter: clips may be enqueued back-to-back.
type Queue struct {
	mu     sync.Mutex
	sink   Sink
	now    func() time.Time
	after  func(d time.Duration, fn func()) stopper
	next   time.Time
	active int
	timers []stopper
	closed bool
}

// NewQueue creates a scheduled-ahead queue delivering to sink.
func NewQueue(sink Sink) *Queue {
	return newQueue(sink, time.Now, func(d time.Duration, fn func()) stopper {
		return time.AfterFunc(d, fn)
	})
}

func newQueue(sink Sink, now func() time.Time, after func(time.Duration, func()) stopper) *Queue {
	return &Queue{sink: sink, now: now, after: after}
}

// Enqueue schedules a clip. startAt = max(now, end of previous clip).
func (q *Queue) Enqueue(c Clip) {
	dur := c.Duration()
	if dur <= 0 {
		return
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	now := q.now()
	startAt := now
	if q.next.After(startAt) {
		startAt = q.next
	}
	q.next = startAt.Add(dur)
	q.active++
	timer := q.after(q.next.Sub(now), q.clipDone)
	q.timers = append(q.timers, timer)
	sink := q.sink
	q.mu.Unlock()

	slog.Debug("scheduled clip", "start_in", startAt.Sub(now), "duration", dur)
	sink(c, startAt)
}

func (q *Queue) clipDone() {
	q.mu.Lock()
	if q.active > 0 {
		q.active--
	}
	q.mu.Unlock()
}

// Speaking reports whether at least one scheduled clip has not finished.
func (q *Queue) Speaking() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active > 0
}

// Close stops all pending timers and discards queue state. Safe to call
// multiple times and on a queue that never played anything.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	for _, t := range q.timers {
		t.Stop()
	}
	q.timers = nil
	q.active = 0
	q.next = time.Time{}
}
