// Package protocol defines the signaling envelope exchanged between the
// huddle client and the signald server over the websocket transport.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Envelope is the wire format for every signaling message, in both
// directions. Payload is type-specific; To addresses a single member for
// unicast delivery, absent To means room broadcast where that is allowed.
type Envelope struct {
	Type    string          `json:"type"`
	RoomID  string          `json:"room_id,omitempty"`
	To      string          `json:"to,omitempty"`
	From    string          `json:"from,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Envelope type constants.
const (
	TypeJoin         = "join"
	TypeJoined       = "joined"
	TypeLeave        = "leave"
	TypePeerJoined   = "peer-joined"
	TypePeerLeft     = "peer-left"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice-candidate"
	TypeMediaState   = "media-state"
	TypeRoomFull     = "room-full"
	TypeError        = "error"
)

// MemberInfo describes a participant for display purposes. It is supplied by
// the identity provider at join time and echoed to other room members.
type MemberInfo struct {
	DisplayName string `json:"display_name,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
	Role        string `json:"role,omitempty"`
}

// PeerSnapshot pairs a member id with its display info in a joined payload.
type PeerSnapshot struct {
	MemberID string     `json:"member_id"`
	Info     MemberInfo `json:"info,omitempty"`
}

// JoinPayload is sent client to server to enter a room.
type JoinPayload struct {
	RoomID string     `json:"room_id"`
	Info   MemberInfo `json:"info,omitempty"`
}

// JoinedPayload acknowledges a successful join with the existing members,
// excluding the joiner itself.
type JoinedPayload struct {
	RoomID string         `json:"room_id"`
	SelfID string         `json:"self_id"`
	Peers  []PeerSnapshot `json:"peers"`
}

// PeerJoinedPayload announces a new member to the rest of the room.
type PeerJoinedPayload struct {
	MemberID string     `json:"member_id"`
	Info     MemberInfo `json:"info,omitempty"`
}

// PeerLeftPayload announces a departed member to the rest of the room.
type PeerLeftPayload struct {
	MemberID string `json:"member_id"`
}

// SDPPayload carries an offer or answer session description. The field
// names match the browser/pion JSON shape so either end can apply it directly.
type SDPPayload struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// CandidatePayload carries a trickled ICE candidate. The candidate is relayed
// opaquely; the server never inspects it.
type CandidatePayload struct {
	Candidate json.RawMessage `json:"candidate"`
}

// MediaStatePayload broadcasts a participant's mute/camera toggles. These are
// track-enable changes only and never cause renegotiation.
type MediaStatePayload struct {
	MemberID  string `json:"member_id,omitempty"`
	Muted     bool   `json:"muted"`
	CameraOff bool   `json:"camera_off"`
}

// RoomFullPayload rejects a join against a room at capacity.
type RoomFullPayload struct {
	RoomID string `json:"room_id"`
}

// ErrorPayload carries a server-side error back to the originating client.
type ErrorPayload struct {
	Error string `json:"error"`
}

// ErrTargetRequired is returned when an offer/answer/ice-candidate omits To
// in a room where the recipient cannot be inferred.
var ErrTargetRequired = errors.New("targeted delivery required: missing 'to'")

// NewEnvelope marshals payload into an envelope of the given type.
func NewEnvelope(typ string, payload any) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", typ, err)
	}
	return &Envelope{Type: typ, Payload: raw}, nil
}

// DecodePayload unmarshals the envelope payload into v.
func (e *Envelope) DecodePayload(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("empty %s payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// IsSignal reports whether the envelope type is one of the peer-to-peer
// negotiation messages relayed by the server.
func IsSignal(typ string) bool {
	switch typ {
	case TypeOffer, TypeAnswer, TypeICECandidate:
		return true
	}
	return false
}

// ValidateTarget enforces the addressing rule for negotiation messages:
// with more than two members in the room the recipient is ambiguous, so To
// is mandatory. In the two-party case the single recipient may be inferred.
func ValidateTarget(e *Envelope, roomSize int) error {
	if !IsSignal(e.Type) {
		return nil
	}
	if e.To == "" && roomSize > 2 {
		return ErrTargetRequired
	}
	return nil
}
