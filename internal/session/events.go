package session

import "github.com/janhae4/DATN-sub006/internal/protocol"

// EventKind discriminates session events delivered to the UI.
type EventKind int

const (
	// EventPeerJoined reports a new room member.
	EventPeerJoined EventKind = iota
	// EventPeerLeft reports a departed room member.
	EventPeerLeft
	// EventMediaState reports a remote mute or camera toggle.
	EventMediaState
	// EventLinkState reports a peer connection state transition.
	EventLinkState
	// EventTrack reports an inbound media track going live.
	EventTrack
	// EventPeerUnreachable reports a remote whose negotiation retry was spent.
	EventPeerUnreachable
	// EventServerError carries an error envelope from signald.
	EventServerError
	// EventDisconnected reports that the signaling connection dropped.
	EventDisconnected
)

// Event is a single session occurrence for the UI loop. Only the fields
// relevant to the Kind are set.
type Event struct {
	Kind     EventKind
	MemberID string
	Info     protocol.MemberInfo

	// EventMediaState
	Muted     bool
	CameraOff bool

	// EventLinkState
	LinkState string

	// EventTrack
	TrackKind string

	// EventPeerUnreachable, EventServerError
	Err error
}
