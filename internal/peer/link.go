package peer

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
)

// Link is one client's connection to exactly one remote member. At most one
// Link exists per remote id; a reconnect tears the stale one down first.
//
// All negotiation events for a Link run under mu, which gives the
// single-writer-per-remote discipline; different Links proceed in parallel.
type Link struct {
	remoteID string

	mu      sync.Mutex
	pc      *webrtc.PeerConnection
	state   State
	pending []webrtc.ICECandidateInit
	closed  bool

	connState atomic.Int32
	iceTimer  *time.Timer
}

// RemoteID returns the remote member this link connects to.
func (l *Link) RemoteID() string {
	return l.remoteID
}

// State returns the current negotiation state.
func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// ConnState returns the last observed connection state.
func (l *Link) ConnState() webrtc.PeerConnectionState {
	return webrtc.PeerConnectionState(l.connState.Load())
}

func (l *Link) setConnState(s webrtc.PeerConnectionState) {
	l.connState.Store(int32(s))
}

// bufferOrAddLocked routes a candidate: buffered until a remote description
// exists, applied directly afterwards.
func (l *Link) bufferOrAddLocked(candidate webrtc.ICECandidateInit) error {
	if l.pc.RemoteDescription() == nil {
		l.pending = append(l.pending, candidate)
		return nil
	}
	return l.pc.AddICECandidate(candidate)
}

// flushPendingLocked applies candidates buffered before the remote
// description was set. Individual candidate failures are not fatal.
func (l *Link) flushPendingLocked() {
	for _, candidate := range l.pending {
		l.pc.AddICECandidate(candidate)
	}
	l.pending = nil
}

func (l *Link) stopICETimer() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.iceTimer != nil {
		l.iceTimer.Stop()
		l.iceTimer = nil
	}
}

// close tears the link down. Closing twice is a no-op.
func (l *Link) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeLocked()
}

func (l *Link) closeLocked() {
	if l.closed {
		return
	}
	l.closed = true
	l.state = StateIdle
	l.pending = nil
	if l.iceTimer != nil {
		l.iceTimer.Stop()
		l.iceTimer = nil
	}
	if l.pc != nil {
		l.pc.Close()
	}
}
