// Package session runs the client side of a huddle call: it joins a room
// through the signaling transport, reacts to membership changes, drives the
// per-peer negotiation and owns the local media for the duration of the call.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/janhae4/DATN-sub006/internal/config"
	"github.com/janhae4/DATN-sub006/internal/media"
	"github.com/janhae4/DATN-sub006/internal/peer"
	"github.com/janhae4/DATN-sub006/internal/protocol"
)

// Mode is the media posture the session ended up with after device
// acquisition. A device failure degrades the join instead of aborting it.
type Mode int

const (
	// ModeFull sends audio and video.
	ModeFull Mode = iota
	// ModeAudioOnly sends audio; the camera could not be acquired.
	ModeAudioOnly
	// ModeViewOnly sends nothing; the session only receives.
	ModeViewOnly
)

func (m Mode) String() string {
	switch m {
	case ModeFull:
		return "audio+video"
	case ModeAudioOnly:
		return "audio-only"
	case ModeViewOnly:
		return "view-only"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ErrRoomFull is returned by Join when the room is at capacity.
var ErrRoomFull = errors.New("room is full")

// Peer is the session's view of a remote room member.
type Peer struct {
	ID        string
	Info      protocol.MemberInfo
	Muted     bool
	CameraOff bool
	LinkState string
}

// Options configures Dial.
type Options struct {
	Config *config.Client
	RoomID string
	Info   protocol.MemberInfo

	// Audio and Video request the corresponding capture device.
	Audio bool
	Video bool
	// Device ids; empty picks the default device.
	AudioDevice string
	VideoDevice string

	// Opener supplies capture devices. Required when Audio or Video is set.
	Opener media.Opener
}

// Session is one participant's attachment to a room.
type Session struct {
	cfg    *config.Client
	roomID string
	info   protocol.MemberInfo
	mode   Mode

	transport *Transport
	media     *media.Controller
	manager   *peer.Manager

	selfID string

	mu    sync.Mutex
	peers map[string]*Peer

	events chan Event
	done   chan struct{}

	leaveOnce sync.Once
}

// Dial acquires local media and connects the signaling transport. Device
// failures degrade the session rather than failing it: no camera means
// audio-only, no devices at all means view-only.
func Dial(opts Options) (*Session, error) {
	s := &Session{
		cfg:    opts.Config,
		roomID: opts.RoomID,
		info:   opts.Info,
		mode:   ModeViewOnly,
		peers:  make(map[string]*Peer),
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}

	if opts.Audio || opts.Video {
		ctrl, mode, err := acquireDegrading(opts)
		if err != nil {
			return nil, err
		}
		s.media = ctrl
		s.mode = mode
	}

	s.transport = NewTransport(opts.Config.ServerURL)
	if err := s.transport.Connect(); err != nil {
		if s.media != nil {
			s.media.Release()
		}
		return nil, err
	}
	return s, nil
}

// acquireDegrading tries the requested constraints and steps down on device
// errors: full, then audio-only, then view-only.
func acquireDegrading(opts Options) (*media.Controller, Mode, error) {
	ctrl := media.NewController(opts.Opener)

	if opts.Audio && opts.Video {
		err := ctrl.Acquire(media.Constraints{
			Audio:         true,
			Video:         true,
			AudioDeviceID: opts.AudioDevice,
			VideoDeviceID: opts.VideoDevice,
		})
		if err == nil {
			return ctrl, ModeFull, nil
		}
		slog.Warn("camera unavailable, joining audio-only", "err", err)
	}

	if opts.Audio {
		err := ctrl.Acquire(media.Constraints{Audio: true, AudioDeviceID: opts.AudioDevice})
		if err == nil {
			return ctrl, ModeAudioOnly, nil
		}
		slog.Warn("microphone unavailable, joining view-only", "err", err)
	}

	return nil, ModeViewOnly, nil
}

// Join enters the room and blocks until the server acknowledges, rejects or
// ctx expires. On success the event loop is running and Events delivers the
// call's progress.
func (s *Session) Join(ctx context.Context) error {
	env, err := protocol.NewEnvelope(protocol.TypeJoin, protocol.JoinPayload{
		RoomID: s.roomID,
		Info:   s.info,
	})
	if err != nil {
		return err
	}
	s.transport.Send(env)

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("join %s: %w", s.roomID, ctx.Err())

		case env, ok := <-s.transport.Incoming():
			if !ok {
				return errors.New("connection closed during join")
			}
			switch env.Type {
			case protocol.TypeJoined:
				var joined protocol.JoinedPayload
				if err := env.DecodePayload(&joined); err != nil {
					return err
				}
				return s.start(&joined)

			case protocol.TypeRoomFull:
				return fmt.Errorf("join %s: %w", s.roomID, ErrRoomFull)

			case protocol.TypeError:
				var errPayload protocol.ErrorPayload
				if err := env.DecodePayload(&errPayload); err != nil {
					return err
				}
				return fmt.Errorf("join %s: %s", s.roomID, errPayload.Error)
			}
		}
	}
}

// start records the join acknowledgement, builds the peer manager and starts
// the event loop. Existing members initiate toward us, so no offers are sent
// here; our links are created lazily when their offers arrive.
func (s *Session) start(joined *protocol.JoinedPayload) error {
	s.selfID = joined.SelfID
	s.roomID = joined.RoomID

	for _, snap := range joined.Peers {
		s.peers[snap.MemberID] = &Peer{ID: snap.MemberID, Info: snap.Info}
	}

	manager, err := peer.NewManager(peer.ManagerConfig{
		LocalID:    s.selfID,
		Sender:     s,
		Media:      s.media,
		ICEServers: peer.ICEServersFromConfig(s.cfg),
		ICETimeout: s.cfg.ICETimeout,
		Events: peer.Events{
			OnTrack:       s.onTrack,
			OnStateChange: s.onLinkState,
			OnUnreachable: s.onUnreachable,
		},
	})
	if err != nil {
		return err
	}
	s.manager = manager

	go s.run()
	return nil
}

func (s *Session) run() {
	defer close(s.events)

	for env := range s.transport.Incoming() {
		s.dispatch(env)
	}

	// Incoming closed: the signaling connection is gone. The server treats
	// the disconnect as our leave; tear down the local half.
	select {
	case <-s.done:
	default:
		s.teardown()
		s.emit(Event{Kind: EventDisconnected})
	}
}

func (s *Session) dispatch(env *protocol.Envelope) {
	switch env.Type {
	case protocol.TypePeerJoined:
		var p protocol.PeerJoinedPayload
		if err := env.DecodePayload(&p); err != nil {
			slog.Warn("bad peer-joined payload", "err", err)
			return
		}
		s.mu.Lock()
		s.peers[p.MemberID] = &Peer{ID: p.MemberID, Info: p.Info}
		s.mu.Unlock()
		s.manager.HandlePeerJoined(p.MemberID)
		s.emit(Event{Kind: EventPeerJoined, MemberID: p.MemberID, Info: p.Info})

	case protocol.TypePeerLeft:
		var p protocol.PeerLeftPayload
		if err := env.DecodePayload(&p); err != nil {
			slog.Warn("bad peer-left payload", "err", err)
			return
		}
		s.mu.Lock()
		delete(s.peers, p.MemberID)
		s.mu.Unlock()
		s.manager.HandlePeerLeft(p.MemberID)
		s.emit(Event{Kind: EventPeerLeft, MemberID: p.MemberID})

	case protocol.TypeOffer:
		if sdp, ok := decodeSDP(env); ok {
			s.manager.HandleOffer(env.From, sdp)
		}

	case protocol.TypeAnswer:
		if sdp, ok := decodeSDP(env); ok {
			s.manager.HandleAnswer(env.From, sdp)
		}

	case protocol.TypeICECandidate:
		var p protocol.CandidatePayload
		if err := env.DecodePayload(&p); err != nil {
			slog.Warn("bad candidate payload", "from", env.From, "err", err)
			return
		}
		var candidate webrtc.ICECandidateInit
		if err := json.Unmarshal(p.Candidate, &candidate); err != nil {
			slog.Warn("bad candidate payload", "from", env.From, "err", err)
			return
		}
		s.manager.HandleCandidate(env.From, candidate)

	case protocol.TypeMediaState:
		var p protocol.MediaStatePayload
		if err := env.DecodePayload(&p); err != nil {
			slog.Warn("bad media-state payload", "err", err)
			return
		}
		s.mu.Lock()
		if remote, ok := s.peers[p.MemberID]; ok {
			remote.Muted = p.Muted
			remote.CameraOff = p.CameraOff
		}
		s.mu.Unlock()
		s.emit(Event{Kind: EventMediaState, MemberID: p.MemberID, Muted: p.Muted, CameraOff: p.CameraOff})

	case protocol.TypeError:
		var p protocol.ErrorPayload
		if err := env.DecodePayload(&p); err != nil {
			return
		}
		s.emit(Event{Kind: EventServerError, Err: errors.New(p.Error)})
	}
}

func decodeSDP(env *protocol.Envelope) (webrtc.SessionDescription, bool) {
	var p protocol.SDPPayload
	if err := env.DecodePayload(&p); err != nil {
		slog.Warn("bad sdp payload", "type", env.Type, "from", env.From, "err", err)
		return webrtc.SessionDescription{}, false
	}
	return webrtc.SessionDescription{Type: webrtc.NewSDPType(p.Type), SDP: p.SDP}, true
}

// SendOffer implements peer.Sender.
func (s *Session) SendOffer(to string, sdp webrtc.SessionDescription) error {
	return s.sendSDP(protocol.TypeOffer, to, sdp)
}

// SendAnswer implements peer.Sender.
func (s *Session) SendAnswer(to string, sdp webrtc.SessionDescription) error {
	return s.sendSDP(protocol.TypeAnswer, to, sdp)
}

func (s *Session) sendSDP(typ, to string, sdp webrtc.SessionDescription) error {
	env, err := protocol.NewEnvelope(typ, protocol.SDPPayload{
		Type: sdp.Type.String(),
		SDP:  sdp.SDP,
	})
	if err != nil {
		return err
	}
	env.RoomID = s.roomID
	env.To = to
	s.transport.Send(env)
	return nil
}

// SendCandidate implements peer.Sender.
func (s *Session) SendCandidate(to string, candidate webrtc.ICECandidateInit) error {
	raw, err := json.Marshal(candidate)
	if err != nil {
		return fmt.Errorf("encode candidate: %w", err)
	}
	env, err := protocol.NewEnvelope(protocol.TypeICECandidate, protocol.CandidatePayload{Candidate: raw})
	if err != nil {
		return err
	}
	env.RoomID = s.roomID
	env.To = to
	s.transport.Send(env)
	return nil
}

// SetMuted toggles the microphone gate and announces the new state to the
// room. Purely a track-enable change, the links are untouched.
func (s *Session) SetMuted(muted bool) {
	if s.media == nil {
		return
	}
	s.media.SetMuted(muted)
	s.announceMediaState()
}

// SetCameraOff toggles the camera gate and announces the new state.
func (s *Session) SetCameraOff(off bool) {
	if s.media == nil {
		return
	}
	s.media.SetCameraOff(off)
	s.announceMediaState()
}

func (s *Session) announceMediaState() {
	env, err := protocol.NewEnvelope(protocol.TypeMediaState, protocol.MediaStatePayload{
		Muted:     s.media.Muted(),
		CameraOff: s.media.CameraOff(),
	})
	if err != nil {
		return
	}
	env.RoomID = s.roomID
	s.transport.Send(env)
}

// SwitchDevice swaps a capture device mid-call. The new track slides into the
// existing transceivers, so the remotes see the change without renegotiation.
func (s *Session) SwitchDevice(audioDevice, videoDevice string) error {
	if s.media == nil {
		return media.ErrNotAcquired
	}
	return s.media.SwitchDevice(media.Constraints{
		Audio:         s.mode != ModeViewOnly,
		Video:         s.mode == ModeFull,
		AudioDeviceID: audioDevice,
		VideoDeviceID: videoDevice,
	})
}

// Leave exits the room: the leave envelope goes out, every link closes and
// the capture devices stop, in that order, before Leave returns.
func (s *Session) Leave() {
	s.leaveOnce.Do(func() {
		close(s.done)

		env, err := protocol.NewEnvelope(protocol.TypeLeave, struct{}{})
		if err == nil {
			env.RoomID = s.roomID
			s.transport.Send(env)
		}
		s.teardown()
	})
}

func (s *Session) teardown() {
	if s.manager != nil {
		s.manager.Close()
	}
	if s.media != nil {
		s.media.Release()
	}
	s.transport.Close()
}

// Events returns the stream consumed by the UI. It closes after a disconnect
// or leave.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Peers returns the current remote members sorted by id.
func (s *Session) Peers() []Peer {
	s.mu.Lock()
	out := make([]Peer, 0, len(s.peers))
	for _, p := range s.peers {
		out = append(out, *p)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SelfID returns the server-assigned member id.
func (s *Session) SelfID() string { return s.selfID }

// RoomID returns the room this session joined.
func (s *Session) RoomID() string { return s.roomID }

// Mode returns the media posture chosen at dial time.
func (s *Session) Mode() Mode { return s.mode }

// Muted reports the local microphone gate.
func (s *Session) Muted() bool {
	return s.media != nil && s.media.Muted()
}

// CameraOff reports the local camera gate.
func (s *Session) CameraOff() bool {
	return s.media == nil || s.media.CameraOff()
}

func (s *Session) onTrack(remoteID string, track *webrtc.TrackRemote) {
	s.emit(Event{Kind: EventTrack, MemberID: remoteID, TrackKind: track.Kind().String()})
}

func (s *Session) onLinkState(remoteID string, state webrtc.PeerConnectionState) {
	s.mu.Lock()
	if remote, ok := s.peers[remoteID]; ok {
		remote.LinkState = state.String()
	}
	s.mu.Unlock()
	s.emit(Event{Kind: EventLinkState, MemberID: remoteID, LinkState: state.String()})
}

func (s *Session) onUnreachable(remoteID string, err error) {
	s.emit(Event{Kind: EventPeerUnreachable, MemberID: remoteID, Err: err})
}

// emit never blocks; a stalled UI loses events rather than stalling the call.
func (s *Session) emit(event Event) {
	select {
	case s.events <- event:
	default:
	}
}
