package media

import (
	"errors"
	"testing"

	"github.com/pion/webrtc/v4"
)

type fakeOpener struct {
	t        *testing.T
	opened   int
	released []int // handle numbers in release order
	failWith error
}

func (f *fakeOpener) Open(c Constraints) (*Handle, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.opened++
	n := f.opened

	var tracks []*Track
	if c.Audio {
		tracks = append(tracks, newFakeTrack(f.t, KindAudio))
	}
	if c.Video {
		tracks = append(tracks, newFakeTrack(f.t, KindVideo))
	}
	return NewHandle(tracks, func() error {
		f.released = append(f.released, n)
		return nil
	}), nil
}

func newFakeTrack(t *testing.T, kind string) *Track {
	mime := webrtc.MimeTypeOpus
	if kind == KindVideo {
		mime = webrtc.MimeTypeVP8
	}
	local, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mime}, kind, "fake-"+kind)
	if err != nil {
		t.Fatalf("new track: %v", err)
	}
	return NewTrack(kind, local, nil)
}

type recordingSwapper struct {
	swapped []string
	err     error
}

func (r *recordingSwapper) SwapTrack(kind string, _ webrtc.TrackLocal) error {
	if r.err != nil {
		return r.err
	}
	r.swapped = append(r.swapped, kind)
	return nil
}

func newTestController(t *testing.T) (*Controller, *fakeOpener) {
	opener := &fakeOpener{t: t}
	return NewController(opener), opener
}

func TestAcquireAndRelease(t *testing.T) {
	c, opener := newTestController(t)

	if err := c.Acquire(Constraints{Audio: true, Video: true}); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if len(c.Tracks()) != 2 {
		t.Fatalf("expected 2 tracks, got %d", len(c.Tracks()))
	}

	tracks := c.Tracks()
	c.Release()
	if len(opener.released) != 1 {
		t.Error("release did not free the hardware handle")
	}
	for _, tr := range tracks {
		if !tr.Stopped() {
			t.Errorf("%s track still running after release", tr.Kind())
		}
	}
	if c.Tracks() != nil {
		t.Error("tracks still reachable after release")
	}

	// Release on every exit path means double release must be harmless.
	c.Release()
}

func TestAcquireWhileHeldFails(t *testing.T) {
	c, _ := newTestController(t)
	if err := c.Acquire(Constraints{Audio: true}); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := c.Acquire(Constraints{Audio: true}); !errors.Is(err, ErrDeviceInUse) {
		t.Errorf("expected ErrDeviceInUse, got %v", err)
	}
}

func TestAcquireErrorKinds(t *testing.T) {
	for _, tc := range []struct {
		name string
		err  error
	}{
		{"permission denied", ErrPermissionDenied},
		{"device not found", ErrDeviceNotFound},
		{"device in use", ErrDeviceInUse},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := NewController(&fakeOpener{t: t, failWith: tc.err})
			if err := c.Acquire(Constraints{Audio: true}); !errors.Is(err, tc.err) {
				t.Errorf("expected %v, got %v", tc.err, err)
			}
		})
	}
}

func TestToggleGatesTracks(t *testing.T) {
	c, _ := newTestController(t)
	c.Acquire(Constraints{Audio: true, Video: true})

	c.SetMuted(true)
	c.SetCameraOff(true)
	for _, tr := range c.Tracks() {
		if tr.Enabled() {
			t.Errorf("%s track enabled despite toggle", tr.Kind())
		}
		if tr.Stopped() {
			t.Errorf("%s track stopped by a toggle; toggles must keep tracks attached", tr.Kind())
		}
	}

	c.SetMuted(false)
	for _, tr := range c.Tracks() {
		if tr.Kind() == KindAudio && !tr.Enabled() {
			t.Error("unmute did not re-enable the audio track")
		}
		if tr.Kind() == KindVideo && tr.Enabled() {
			t.Error("unmute touched the video gate")
		}
	}
}

func TestSwitchDeviceSwapsBeforeRelease(t *testing.T) {
	c, opener := newTestController(t)
	swapper := &recordingSwapper{}
	c.SetSwapper(swapper)
	c.Acquire(Constraints{Audio: true, Video: true})

	if err := c.SwitchDevice(Constraints{Audio: true, Video: true}); err != nil {
		t.Fatalf("switch: %v", err)
	}

	if len(swapper.swapped) != 2 {
		t.Fatalf("expected 2 track swaps, got %d", len(swapper.swapped))
	}
	// Handle 1 is released only after handle 2's tracks were swapped in.
	if len(opener.released) != 1 || opener.released[0] != 1 {
		t.Errorf("old handle release order wrong: %v", opener.released)
	}
	if opener.opened != 2 {
		t.Errorf("expected a second acquisition, got %d", opener.opened)
	}
}

func TestSwitchDeviceKeepsTogglesSticky(t *testing.T) {
	c, _ := newTestController(t)
	c.SetSwapper(&recordingSwapper{})
	c.Acquire(Constraints{Audio: true})
	c.SetMuted(true)

	if err := c.SwitchDevice(Constraints{Audio: true}); err != nil {
		t.Fatalf("switch: %v", err)
	}
	for _, tr := range c.Tracks() {
		if tr.Kind() == KindAudio && tr.Enabled() {
			t.Error("mute state lost across device switch")
		}
	}
	if !c.Muted() {
		t.Error("controller forgot mute state")
	}
}

func TestSwitchDeviceFailedSwapKeepsOldHandle(t *testing.T) {
	c, opener := newTestController(t)
	swapper := &recordingSwapper{err: errors.New("sender gone")}
	c.SetSwapper(swapper)
	c.Acquire(Constraints{Audio: true})

	if err := c.SwitchDevice(Constraints{Audio: true}); err == nil {
		t.Fatal("expected switch to fail")
	}
	// The failed replacement handle is closed, the original stays live.
	if len(opener.released) != 1 || opener.released[0] != 2 {
		t.Errorf("expected only the new handle released, got %v", opener.released)
	}
	if len(c.Tracks()) != 1 || c.Tracks()[0].Stopped() {
		t.Error("old tracks must survive a failed switch")
	}
}
