package playback

import (
	"sync"
	"testing"
	"time"
)

func TestSinkHolderDropsUntilBound(t *testing.T) {
	var h SinkHolder
	clip := Clip{PCM: make([]byte, 320), SampleRate: 16000}

	h.Emit(clip, time.Now()) // unbound: dropped, no panic

	var mu sync.Mutex
	var got []Clip
	h.Bind(func(c Clip, _ time.Time) {
		mu.Lock()
		got = append(got, c)
		mu.Unlock()
	})

	h.Emit(clip, time.Now())
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Errorf("delivered clips = %d, want 1", len(got))
	}
}

func TestSinkHolderConcurrentBindAndEmit(t *testing.T) {
	var h SinkHolder
	clip := Clip{PCM: []byte{0, 0}, SampleRate: 16000}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			h.Emit(clip, time.Time{})
		}
	}()
	for i := 0; i < 100; i++ {
		h.Bind(func(Clip, time.Time) {})
	}
	<-done
}
