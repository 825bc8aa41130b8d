// Package media is the local media controller: it owns the capture device
// handles, exposes mute/camera toggles as track-level enable gates, and is
// the only source of outbound tracks for the peer mesh. Toggling never
// renegotiates; switching devices replaces tracks in place.
package media

import "errors"

// Acquisition error kinds.
var (
	ErrPermissionDenied = errors.New("permission denied for capture device")
	ErrDeviceNotFound   = errors.New("capture device not found")
	ErrDeviceInUse      = errors.New("capture device already in use")
	ErrNotAcquired      = errors.New("no media acquired")
)

// Constraints selects which capture tracks to open. DeviceIDs are optional;
// empty means the platform default.
type Constraints struct {
	Audio         bool
	Video         bool
	AudioDeviceID string
	VideoDeviceID string
}

// Opener produces capture handles. Implementations hold exclusive ownership
// of the underlying hardware until the handle is released.
type Opener interface {
	Open(c Constraints) (*Handle, error)
}

// Handle is one exclusive acquisition of capture hardware.
type Handle struct {
	tracks  []*Track
	release func() error
}

// NewHandle builds a handle over the given tracks. release frees the
// hardware and may be nil.
func NewHandle(tracks []*Track, release func() error) *Handle {
	return &Handle{tracks: tracks, release: release}
}

// Tracks returns the capture tracks of this handle.
func (h *Handle) Tracks() []*Track {
	return h.tracks
}

// TrackOfKind returns the first track of the given kind, nil when absent.
func (h *Handle) TrackOfKind(kind string) *Track {
	for _, t := range h.tracks {
		if t.Kind() == kind {
			return t
		}
	}
	return nil
}

// Close stops every track and releases the hardware.
func (h *Handle) Close() error {
	for _, t := range h.tracks {
		t.Stop()
	}
	if h.release != nil {
		return h.release()
	}
	return nil
}
