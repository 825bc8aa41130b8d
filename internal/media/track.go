package media

import (
	"sync/atomic"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
)

// Track kinds.
const (
	KindAudio = "audio"
	KindVideo = "video"
)

// Track wraps an outbound pion track with an enable gate. Disabling a track
// drops its samples in place; the track stays attached to every peer
// connection, so a mute click never costs an offer/answer round trip.
type Track struct {
	kind    string
	local   *webrtc.TrackLocalStaticSample
	enabled atomic.Bool
	stopped atomic.Bool
	onStop  func()
}

// NewTrack builds an enabled track of the given kind. onStop releases the
// per-track capture resource and may be nil.
func NewTrack(kind string, local *webrtc.TrackLocalStaticSample, onStop func()) *Track {
	t := &Track{kind: kind, local: local, onStop: onStop}
	t.enabled.Store(true)
	return t
}

// Kind reports "audio" or "video".
func (t *Track) Kind() string {
	return t.kind
}

// Local exposes the pion track for attaching to a peer connection.
func (t *Track) Local() *webrtc.TrackLocalStaticSample {
	return t.local
}

// Enabled reports whether samples are currently forwarded.
func (t *Track) Enabled() bool {
	return t.enabled.Load()
}

// SetEnabled toggles the gate.
func (t *Track) SetEnabled(enabled bool) {
	t.enabled.Store(enabled)
}

// Stopped reports whether the track has been stopped.
func (t *Track) Stopped() bool {
	return t.stopped.Load()
}

// WriteSample forwards a capture sample unless the track is disabled or
// stopped. Dropped samples are not an error.
func (t *Track) WriteSample(s pionmedia.Sample) error {
	if t.stopped.Load() || !t.enabled.Load() {
		return nil
	}
	return t.local.WriteSample(s)
}

// Stop permanently ends the track and releases its capture resource.
// Stopping twice is a no-op.
func (t *Track) Stop() {
	if t.stopped.Swap(true) {
		return
	}
	if t.onStop != nil {
		t.onStop()
	}
}
