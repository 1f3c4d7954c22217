package playback

import (
	"sync/atomic"
	"time"
)

// SinkHolder is a Sink destination bound after construction. Pipelines
// need a Sink before the component that ships audio to clients exists,
// so the destination is set later via Bind. Emit drops clips until
// then. Safe for concurrent Emit and Bind.
type SinkHolder struct {
	sink atomic.Pointer[Sink]
}

// Bind sets the destination. Calling again redirects future clips.
func (h *SinkHolder) Bind(s Sink) {
	h.sink.Store(&s)
}

// Emit forwards a clip to the bound destination, if any.
func (h *SinkHolder) Emit(clip Clip, startAt time.Time) {
	if s := h.sink.Load(); s != nil {
		(*s)(clip, startAt)
	}
}
