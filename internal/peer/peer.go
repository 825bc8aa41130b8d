// Package peer maintains one PeerLink per remote member and drives the
// offer/answer/ICE state machine over the signaling relay. Events for
// different remotes run in parallel; events for the same remote are
// serialized by that link's lock.
package peer

import (
	"errors"

	"github.com/pion/webrtc/v4"
)

// State is a PeerLink's negotiation state.
type State int

const (
	// StateIdle is the starting state and the re-entry point after teardown.
	StateIdle State = iota
	// StateHaveLocalOffer means we initiated and are waiting for an answer.
	StateHaveLocalOffer
	// StateHaveRemoteOffer means we received an offer and are answering.
	StateHaveRemoteOffer
	// StateStable means both descriptions are applied.
	StateStable
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateHaveLocalOffer:
		return "have-local-offer"
	case StateHaveRemoteOffer:
		return "have-remote-offer"
	case StateStable:
		return "stable"
	}
	return "unknown"
}

// Sentinel errors.
var (
	ErrUnreachable        = errors.New("peer unreachable")
	ErrNegotiationTimeout = errors.New("negotiation timed out")
)

// Sender carries outbound negotiation messages to the signaling relay.
type Sender interface {
	SendOffer(to string, sdp webrtc.SessionDescription) error
	SendAnswer(to string, sdp webrtc.SessionDescription) error
	SendCandidate(to string, candidate webrtc.ICECandidateInit) error
}

// Events are the manager's upward callbacks. All fields are optional.
// Callbacks may fire from pion goroutines; implementations must not call
// back into the manager synchronously.
type Events struct {
	// OnTrack fires when a remote track arrives.
	OnTrack func(remoteID string, track *webrtc.TrackRemote)
	// OnStateChange reports connection state transitions per remote.
	OnStateChange func(remoteID string, state webrtc.PeerConnectionState)
	// OnUnreachable fires after the single teardown-and-retry has failed.
	OnUnreachable func(remoteID string, err error)
}

// LinkStatus is a read-only snapshot of one PeerLink for display.
type LinkStatus struct {
	RemoteID  string
	State     State
	ConnState webrtc.PeerConnectionState
}
