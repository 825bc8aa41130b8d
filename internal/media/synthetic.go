package media

import (
	"fmt"
	"time"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
)

// SyntheticOpener generates blank capture tracks. It stands in for real
// camera/microphone capture on headless machines: the tracks negotiate and
// flow like real ones, the frames are just empty.
type SyntheticOpener struct{}

// Open builds the requested synthetic tracks. A deviceId of "missing"
// simulates DeviceNotFound and "busy" simulates DeviceInUse, which keeps the
// degraded-join policy reachable without hardware.
func (SyntheticOpener) Open(c Constraints) (*Handle, error) {
	if c.AudioDeviceID == "missing" || c.VideoDeviceID == "missing" {
		return nil, ErrDeviceNotFound
	}
	if c.AudioDeviceID == "busy" || c.VideoDeviceID == "busy" {
		return nil, ErrDeviceInUse
	}

	var tracks []*Track
	if c.Audio {
		t, err := newSyntheticTrack(KindAudio, webrtc.MimeTypeOpus, 20*time.Millisecond)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, t)
	}
	if c.Video {
		t, err := newSyntheticTrack(KindVideo, webrtc.MimeTypeVP8, 100*time.Millisecond)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, t)
	}
	return NewHandle(tracks, nil), nil
}

func newSyntheticTrack(kind, mimeType string, interval time.Duration) (*Track, error) {
	local, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: mimeType},
		kind,
		fmt.Sprintf("huddle-%s", kind),
	)
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	track := NewTrack(kind, local, func() { close(done) })

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		payload := make([]byte, 16)
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				// WriteSample drops silently while the track is disabled.
				track.WriteSample(pionmedia.Sample{Data: payload, Duration: interval})
			}
		}
	}()

	return track, nil
}
