package peer

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/janhae4/DATN-sub006/internal/config"
	"github.com/janhae4/DATN-sub006/internal/media"
)

// ManagerConfig wires a Manager to its collaborators.
type ManagerConfig struct {
	// LocalID is our own member id; it decides glare tie-breaks.
	LocalID string
	// Sender carries outbound negotiation messages.
	Sender Sender
	// Media supplies the outbound tracks; may be nil for a view-only session.
	Media *media.Controller
	// ICEServers for every peer connection.
	ICEServers []webrtc.ICEServer
	// ICETimeout bounds each link's path to connected; zero means the default.
	ICETimeout time.Duration
	Events     Events
}

// Manager owns every PeerLink of the local participant.
type Manager struct {
	localID    string
	sender     Sender
	media      *media.Controller
	events     Events
	iceTimeout time.Duration

	api    *webrtc.API
	rtcCfg webrtc.Configuration

	mu          sync.Mutex
	closed      bool
	links       map[string]*Link
	retried     map[string]bool
	unreachable map[string]bool
}

// NewManager builds a manager with pion's default codecs and the process
// slog handler behind pion's logger.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	settings := webrtc.SettingEngine{LoggerFactory: slogFactory{}}

	timeout := cfg.ICETimeout
	if timeout <= 0 {
		timeout = config.DefaultICETimeout
	}

	m := &Manager{
		localID:     cfg.LocalID,
		sender:      cfg.Sender,
		media:       cfg.Media,
		events:      cfg.Events,
		iceTimeout:  timeout,
		api:         webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine), webrtc.WithSettingEngine(settings)),
		rtcCfg:      webrtc.Configuration{ICEServers: cfg.ICEServers},
		links:       make(map[string]*Link),
		retried:     make(map[string]bool),
		unreachable: make(map[string]bool),
	}
	if m.media != nil {
		m.media.SetSwapper(m)
	}
	return m, nil
}

// ICEServersFromConfig translates the client configuration into pion's form.
func ICEServersFromConfig(cfg *config.Client) []webrtc.ICEServer {
	var servers []webrtc.ICEServer
	if stun := cfg.GetSTUNServers(); stun != nil {
		servers = append(servers, webrtc.ICEServer{URLs: stun})
	}
	if turn := cfg.GetTURNServers(); turn != nil {
		user, pass := cfg.GetTURNCredentials()
		servers = append(servers, webrtc.ICEServer{
			URLs:       turn,
			Username:   user,
			Credential: pass,
		})
	}
	return servers
}

// HandlePeerJoined runs the initiator path for a freshly announced member:
// create the link, attach local tracks, offer.
func (m *Manager) HandlePeerJoined(remoteID string) {
	m.mu.Lock()
	delete(m.retried, remoteID)
	delete(m.unreachable, remoteID)
	m.mu.Unlock()

	link, err := m.ensureLink(remoteID)
	if err != nil {
		m.fail(remoteID, err)
		return
	}
	if err := m.initiate(link); err != nil {
		m.fail(remoteID, err)
	}
}

// HandleOffer runs the answerer path. It lazily creates the link because an
// offer can race ahead of our own join acknowledgement. Glare resolves by
// member id order: the lexicographically smaller id keeps its offer.
func (m *Manager) HandleOffer(remoteID string, sdp webrtc.SessionDescription) {
	if m.isUnreachable(remoteID) {
		return
	}
	link, err := m.ensureLink(remoteID)
	if err != nil {
		return
	}

	err = func() error {
		link.mu.Lock()
		defer link.mu.Unlock()
		if link.closed {
			return nil
		}

		switch link.state {
		case StateHaveLocalOffer:
			if m.localID < remoteID {
				// We win the glare: our offer stands, theirs is ignored.
				slog.Debug("glare: ignoring remote offer", "remote", remoteID)
				return nil
			}
			// We yield: discard our local offer and answer theirs.
			slog.Debug("glare: yielding to remote offer", "remote", remoteID)
			if err := m.rebuildLocked(link); err != nil {
				return err
			}
		case StateStable:
			// Renegotiation restarts from idle on a fresh connection.
			if err := m.rebuildLocked(link); err != nil {
				return err
			}
		}

		link.state = StateHaveRemoteOffer
		if err := link.pc.SetRemoteDescription(sdp); err != nil {
			return fmt.Errorf("set remote offer: %w", err)
		}
		link.flushPendingLocked()

		answer, err := link.pc.CreateAnswer(nil)
		if err != nil {
			return fmt.Errorf("create answer: %w", err)
		}
		if err := link.pc.SetLocalDescription(answer); err != nil {
			return fmt.Errorf("set local answer: %w", err)
		}
		link.state = StateStable
		return m.sender.SendAnswer(remoteID, *link.pc.LocalDescription())
	}()
	if err != nil {
		m.fail(remoteID, err)
	}
}

// HandleAnswer applies the remote answer to our pending offer. Answers in
// any other state are duplicates or stale and are ignored.
func (m *Manager) HandleAnswer(remoteID string, sdp webrtc.SessionDescription) {
	link := m.lookup(remoteID)
	if link == nil {
		return
	}

	err := func() error {
		link.mu.Lock()
		defer link.mu.Unlock()
		if link.closed || link.state != StateHaveLocalOffer {
			slog.Debug("ignoring unexpected answer", "remote", remoteID, "state", link.state)
			return nil
		}
		if err := link.pc.SetRemoteDescription(sdp); err != nil {
			return fmt.Errorf("set remote answer: %w", err)
		}
		link.flushPendingLocked()
		link.state = StateStable
		return nil
	}()
	if err != nil {
		m.fail(remoteID, err)
	}
}

// HandleCandidate routes a trickled candidate. A candidate for a link that
// does not exist or has not started negotiating is stale traffic from a
// torn-down link and is dropped silently, never an error.
func (m *Manager) HandleCandidate(remoteID string, candidate webrtc.ICECandidateInit) {
	link := m.lookup(remoteID)
	if link == nil {
		slog.Debug("dropping candidate for unknown link", "remote", remoteID)
		return
	}

	link.mu.Lock()
	defer link.mu.Unlock()
	if link.closed || link.state == StateIdle {
		slog.Debug("dropping candidate in idle state", "remote", remoteID)
		return
	}
	if err := link.bufferOrAddLocked(candidate); err != nil {
		// A bad candidate is not fatal to the link; connectivity can still
		// establish through the remaining ones.
		slog.Warn("add candidate failed", "remote", remoteID, "err", err)
	}
}

// HandlePeerLeft tears down the link unconditionally. Idempotent.
func (m *Manager) HandlePeerLeft(remoteID string) {
	m.mu.Lock()
	link := m.links[remoteID]
	delete(m.links, remoteID)
	delete(m.retried, remoteID)
	delete(m.unreachable, remoteID)
	m.mu.Unlock()

	if link != nil {
		link.close()
	}
}

// Close tears down every link; used on session teardown.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	links := make([]*Link, 0, len(m.links))
	for _, l := range m.links {
		links = append(links, l)
	}
	m.links = make(map[string]*Link)
	m.mu.Unlock()

	for _, l := range links {
		l.close()
	}
}

// SwapTrack replaces the outbound track of the given kind on every link.
// Used by the media controller's device switch; no renegotiation happens
// because the transceiver stays in place.
func (m *Manager) SwapTrack(kind string, newTrack webrtc.TrackLocal) error {
	m.mu.Lock()
	links := make([]*Link, 0, len(m.links))
	for _, l := range m.links {
		links = append(links, l)
	}
	m.mu.Unlock()

	for _, link := range links {
		link.mu.Lock()
		for _, sender := range link.pc.GetSenders() {
			if sender.Track() != nil && sender.Track().Kind().String() == kind {
				if err := sender.ReplaceTrack(newTrack); err != nil {
					link.mu.Unlock()
					return fmt.Errorf("replace %s track for %s: %w", kind, link.remoteID, err)
				}
			}
		}
		link.mu.Unlock()
	}
	return nil
}

// Link returns the live link for remoteID, nil when absent.
func (m *Manager) Link(remoteID string) *Link {
	return m.lookup(remoteID)
}

// Snapshot lists the current links sorted by remote id.
func (m *Manager) Snapshot() []LinkStatus {
	m.mu.Lock()
	out := make([]LinkStatus, 0, len(m.links))
	for _, l := range m.links {
		out = append(out, LinkStatus{
			RemoteID:  l.remoteID,
			State:     l.State(),
			ConnState: l.ConnState(),
		})
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].RemoteID < out[j].RemoteID })
	return out
}

func (m *Manager) lookup(remoteID string) *Link {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.links[remoteID]
}

func (m *Manager) isUnreachable(remoteID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unreachable[remoteID]
}

// ensureLink returns the existing link for remoteID or creates one in idle.
func (m *Manager) ensureLink(remoteID string) (*Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrUnreachable
	}
	if link, ok := m.links[remoteID]; ok {
		return link, nil
	}

	link := &Link{remoteID: remoteID}
	pc, err := m.buildPC(link)
	if err != nil {
		return nil, err
	}
	link.pc = pc
	link.iceTimer = time.AfterFunc(m.iceTimeout, func() {
		if link.ConnState() != webrtc.PeerConnectionStateConnected {
			m.fail(remoteID, ErrNegotiationTimeout)
		}
	})
	m.links[remoteID] = link
	return link, nil
}

// buildPC creates a peer connection with handlers and the current local
// tracks attached.
func (m *Manager) buildPC(link *Link) (*webrtc.PeerConnection, error) {
	pc, err := m.api.NewPeerConnection(m.rtcCfg)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	remoteID := link.remoteID
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		if err := m.sender.SendCandidate(remoteID, c.ToJSON()); err != nil {
			slog.Warn("send candidate failed", "remote", remoteID, "err", err)
		}
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if m.events.OnTrack != nil {
			m.events.OnTrack(remoteID, track)
		}
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		link.setConnState(s)
		if m.events.OnStateChange != nil {
			m.events.OnStateChange(remoteID, s)
		}
		switch s {
		case webrtc.PeerConnectionStateConnected:
			link.stopICETimer()
		case webrtc.PeerConnectionStateFailed:
			go m.fail(remoteID, fmt.Errorf("connection failed"))
		}
	})

	if m.media != nil {
		for _, t := range m.media.Tracks() {
			if _, err := pc.AddTrack(t.Local()); err != nil {
				pc.Close()
				return nil, fmt.Errorf("attach %s track: %w", t.Kind(), err)
			}
		}
	}
	return pc, nil
}

// rebuildLocked replaces the link's peer connection with a fresh idle one,
// discarding any local offer and buffered candidates. Caller holds link.mu.
func (m *Manager) rebuildLocked(link *Link) error {
	if link.pc != nil {
		link.pc.Close()
	}
	pc, err := m.buildPC(link)
	if err != nil {
		return err
	}
	link.pc = pc
	link.state = StateIdle
	link.pending = nil
	return nil
}

// initiate runs the initiator path on an idle link.
func (m *Manager) initiate(link *Link) error {
	link.mu.Lock()
	defer link.mu.Unlock()
	if link.closed {
		return nil
	}

	offer, err := link.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := link.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local offer: %w", err)
	}
	link.state = StateHaveLocalOffer
	return m.sender.SendOffer(link.remoteID, *link.pc.LocalDescription())
}

// fail tears the link down and retries once from idle; a second failure
// marks the remote unreachable and surfaces it. Failures stay local to the
// one remote, other links are untouched.
func (m *Manager) fail(remoteID string, cause error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	link, ok := m.links[remoteID]
	if !ok {
		// The remote already left, or another failure path handled this
		// link. A late ICE timer or state callback must not resurrect it.
		m.mu.Unlock()
		return
	}
	delete(m.links, remoteID)
	alreadyRetried := m.retried[remoteID]
	m.retried[remoteID] = true
	if alreadyRetried {
		m.unreachable[remoteID] = true
	}
	m.mu.Unlock()

	link.close()

	if alreadyRetried {
		slog.Warn("peer unreachable", "remote", remoteID, "err", cause)
		if m.events.OnUnreachable != nil {
			m.events.OnUnreachable(remoteID, fmt.Errorf("%w: %v", ErrUnreachable, cause))
		}
		return
	}

	slog.Info("negotiation failed, retrying once", "remote", remoteID, "err", cause)
	fresh, err := m.ensureLink(remoteID)
	if err != nil {
		m.markUnreachable(remoteID, err)
		return
	}
	if err := m.initiate(fresh); err != nil {
		m.fail(remoteID, err)
	}
}

// markUnreachable records the verdict when the retry could not even build a
// fresh link.
func (m *Manager) markUnreachable(remoteID string, cause error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.unreachable[remoteID] = true
	m.mu.Unlock()

	slog.Warn("peer unreachable", "remote", remoteID, "err", cause)
	if m.events.OnUnreachable != nil {
		m.events.OnUnreachable(remoteID, fmt.Errorf("%w: %v", ErrUnreachable, cause))
	}
}
