package media

import (
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"
)

// Swapper replaces an attached outbound track of the given kind on every
// live peer connection. The peer manager implements it.
type Swapper interface {
	SwapTrack(kind string, newTrack webrtc.TrackLocal) error
}

// Controller owns the local capture handle and its tracks.
type Controller struct {
	opener Opener

	mu      sync.Mutex
	handle  *Handle
	swapper Swapper

	muted     bool
	cameraOff bool
}

// NewController builds a controller over the given capture backend.
func NewController(opener Opener) *Controller {
	return &Controller{opener: opener}
}

// SetSwapper registers the component that carries track swaps into the peer
// mesh. Must be set before SwitchDevice is used.
func (c *Controller) SetSwapper(s Swapper) {
	c.mu.Lock()
	c.swapper = s
	c.mu.Unlock()
}

// Acquire opens the capture device. Acquiring while already holding a handle
// returns ErrDeviceInUse; callers switch devices with SwitchDevice instead.
func (c *Controller) Acquire(constraints Constraints) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.handle != nil {
		return ErrDeviceInUse
	}
	handle, err := c.opener.Open(constraints)
	if err != nil {
		return err
	}
	c.handle = handle
	c.applyTogglesLocked()
	return nil
}

// Release stops every track and frees the hardware handle. It is safe on
// every exit path, including before any acquisition.
func (c *Controller) Release() {
	c.mu.Lock()
	handle := c.handle
	c.handle = nil
	c.mu.Unlock()

	if handle == nil {
		return
	}
	if err := handle.Close(); err != nil {
		slog.Warn("release capture device", "err", err)
	}
}

// Tracks returns the currently acquired tracks, nil before acquisition.
func (c *Controller) Tracks() []*Track {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handle == nil {
		return nil
	}
	return c.handle.Tracks()
}

// SwitchDevice acquires the new device first, swaps its tracks into every
// existing peer connection, and only then releases the old handle, so there
// is never a window with zero tracks attached.
//
// The open and swap run outside c.mu: the swapper walks the peer links, and
// link creation walks our tracks, so holding the lock across the swap would
// invert the two lock orders.
func (c *Controller) SwitchDevice(constraints Constraints) error {
	c.mu.Lock()
	if c.handle == nil {
		c.mu.Unlock()
		return ErrNotAcquired
	}
	swapper := c.swapper
	c.mu.Unlock()

	next, err := c.opener.Open(constraints)
	if err != nil {
		return err
	}

	if swapper != nil {
		for _, t := range next.Tracks() {
			if err := swapper.SwapTrack(t.Kind(), t.Local()); err != nil {
				next.Close()
				return err
			}
		}
	}

	c.mu.Lock()
	old := c.handle
	c.handle = next
	c.applyTogglesLocked()
	c.mu.Unlock()

	if old == nil {
		// Released mid-switch; the new handle is the only one left.
		return nil
	}
	return old.Close()
}

// SetMuted toggles the audio gate on the current tracks. No renegotiation.
func (c *Controller) SetMuted(muted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.muted = muted
	c.applyTogglesLocked()
}

// SetCameraOff toggles the video gate on the current tracks. No renegotiation.
func (c *Controller) SetCameraOff(off bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cameraOff = off
	c.applyTogglesLocked()
}

// Muted reports the audio toggle state.
func (c *Controller) Muted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted
}

// CameraOff reports the video toggle state.
func (c *Controller) CameraOff() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cameraOff
}

// applyTogglesLocked carries the sticky toggle state onto whatever tracks
// the current handle holds, so toggles survive a device switch.
func (c *Controller) applyTogglesLocked() {
	if c.handle == nil {
		return
	}
	for _, t := range c.handle.Tracks() {
		switch t.Kind() {
		case KindAudio:
			t.SetEnabled(!c.muted)
		case KindVideo:
			t.SetEnabled(!c.cameraOff)
		}
	}
}
