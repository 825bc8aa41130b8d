// Package signaling implements the server-side relay: it admits members into
// rooms through the registry and fans signaling envelopes out with the
// correct addressing. All room state changes flow through the Hub's single
// goroutine, so every protocol decision lives in one dispatch switch.
package signaling

import (
	"errors"
	"log/slog"

	"github.com/janhae4/DATN-sub006/internal/history"
	"github.com/janhae4/DATN-sub006/internal/metrics"
	"github.com/janhae4/DATN-sub006/internal/protocol"
	"github.com/janhae4/DATN-sub006/internal/registry"
)

// inbound pairs an envelope with the client that sent it.
type inbound struct {
	client *Client
	env    *protocol.Envelope
}

// Hub is the signaling relay. It owns the client table and drives the
// registry; nothing else touches either.
type Hub struct {
	registry *registry.Registry
	metrics  *metrics.Metrics
	history  history.Recorder

	// clients is only touched from the Run goroutine.
	clients map[string]*Client

	Register   chan *Client
	Unregister chan *Client
	Inbound    chan inbound

	stop chan struct{}
}

// NewHub wires the relay to its registry, metrics, and history recorder.
func NewHub(reg *registry.Registry, m *metrics.Metrics, rec history.Recorder) *Hub {
	if rec == nil {
		rec = history.Nop{}
	}
	return &Hub{
		registry:   reg,
		metrics:    m,
		history:    rec,
		clients:    make(map[string]*Client),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Inbound:    make(chan inbound),
		stop:       make(chan struct{}),
	}
}

// Run processes registrations and envelopes until Stop is called. It is the
// only goroutine that mutates hub state.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.clients[client.ID] = client
			slog.Info("client connected", "member", client.ID, "addr", client.RemoteAddr())

		case client := <-h.Unregister:
			h.handleDisconnect(client)

		case msg := <-h.Inbound:
			h.dispatch(msg.client, msg.env)

		case <-h.stop:
			return
		}
	}
}

// Stop terminates the Run loop.
func (h *Hub) Stop() {
	close(h.stop)
}

// dispatch is the single decision point for every inbound envelope.
func (h *Hub) dispatch(c *Client, env *protocol.Envelope) {
	switch env.Type {
	case protocol.TypeJoin:
		h.handleJoin(c, env)
	case protocol.TypeLeave:
		h.handleLeave(c, false)
	case protocol.TypeOffer, protocol.TypeAnswer, protocol.TypeICECandidate:
		h.relaySignal(c, env)
	case protocol.TypeMediaState:
		h.relayMediaState(c, env)
	default:
		slog.Warn("unknown envelope type", "type", env.Type, "member", c.ID)
		h.sendError(c, "unknown message type: "+env.Type)
	}
}

func (h *Hub) handleJoin(c *Client, env *protocol.Envelope) {
	var payload protocol.JoinPayload
	if err := env.DecodePayload(&payload); err != nil {
		h.sendError(c, "malformed join payload")
		return
	}
	if payload.RoomID == "" {
		h.sendError(c, "join requires a room id")
		return
	}

	res, err := h.registry.Join(payload.RoomID, c.ID, payload.Info)
	if errors.Is(err, registry.ErrRoomFull) {
		slog.Info("join rejected, room full", "room", payload.RoomID, "member", c.ID)
		h.metrics.JoinsRejected.Inc()
		h.send(c, mustEnvelope(protocol.TypeRoomFull, protocol.RoomFullPayload{RoomID: payload.RoomID}))
		return
	}
	if err != nil {
		h.sendError(c, err.Error())
		return
	}

	if res.AutoLeft != nil {
		h.announceLeft(*res.AutoLeft)
	}
	if res.Created {
		h.history.RoomCreated(res.RoomID, c.ID)
	}

	peers := make([]protocol.PeerSnapshot, 0, len(res.Existing))
	for _, m := range res.Existing {
		peers = append(peers, protocol.PeerSnapshot{MemberID: m.ID, Info: m.Info})
	}
	h.send(c, mustEnvelope(protocol.TypeJoined, protocol.JoinedPayload{
		RoomID: res.RoomID,
		SelfID: c.ID,
		Peers:  peers,
	}))

	if !res.AlreadyMember {
		joined := mustEnvelope(protocol.TypePeerJoined, protocol.PeerJoinedPayload{
			MemberID: c.ID,
			Info:     payload.Info,
		})
		h.broadcast(res.RoomID, joined, c.ID)
		h.metrics.JoinsTotal.Inc()
	}

	h.updateGauges()
	slog.Info("member joined", "room", res.RoomID, "member", c.ID, "peers", len(peers))
}

// handleLeave runs for explicit leave envelopes and for transport
// disconnects; both take the identical cleanup path.
func (h *Hub) handleLeave(c *Client, byDisconnect bool) {
	res := h.registry.Leave(c.ID)
	if res.RoomID == "" {
		return
	}
	if byDisconnect {
		h.metrics.DisconnectSwept.Inc()
	}
	h.announceLeft(res)
	h.updateGauges()
	slog.Info("member left", "room", res.RoomID, "member", c.ID, "remaining", res.Remaining, "disconnect", byDisconnect)
}

func (h *Hub) announceLeft(res registry.LeaveResult) {
	if res.RoomID == "" {
		return
	}
	if res.Destroyed {
		h.history.RoomDestroyed(res.RoomID)
		return
	}
	left := mustEnvelope(protocol.TypePeerLeft, protocol.PeerLeftPayload{MemberID: res.MemberID})
	h.broadcast(res.RoomID, left, res.MemberID)
}

func (h *Hub) handleDisconnect(c *Client) {
	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	delete(h.clients, c.ID)
	h.handleLeave(c, true)
	close(c.send)
	slog.Info("client disconnected", "member", c.ID)
}

// relaySignal forwards offer/answer/ice-candidate envelopes. Unicast via To
// is mandatory once the room holds more than two members; in the two-party
// case the single recipient is inferred.
func (h *Hub) relaySignal(c *Client, env *protocol.Envelope) {
	roomID, ok := h.registry.RoomOf(c.ID)
	if !ok {
		h.sendError(c, "not in a room")
		return
	}

	size := h.registry.Size(roomID)
	if err := protocol.ValidateTarget(env, size); err != nil {
		h.sendError(c, err.Error())
		return
	}

	out := &protocol.Envelope{
		Type:    env.Type,
		RoomID:  roomID,
		From:    c.ID,
		Payload: env.Payload,
	}

	if env.To != "" {
		h.unicast(roomID, env.To, out, c)
		h.metrics.SignalsRelayed.WithLabelValues(env.Type).Inc()
		return
	}

	// Two-party room: the recipient is the only other member.
	for _, m := range h.registry.MembersOf(roomID) {
		if m.ID == c.ID {
			continue
		}
		if target, ok := h.clients[m.ID]; ok {
			h.send(target, out)
		}
	}
	h.metrics.SignalsRelayed.WithLabelValues(env.Type).Inc()
}

// relayMediaState broadcasts mute/camera toggles to the rest of the room.
// These never touch negotiation state.
func (h *Hub) relayMediaState(c *Client, env *protocol.Envelope) {
	roomID, ok := h.registry.RoomOf(c.ID)
	if !ok {
		h.sendError(c, "not in a room")
		return
	}

	var payload protocol.MediaStatePayload
	if err := env.DecodePayload(&payload); err != nil {
		h.sendError(c, "malformed media-state payload")
		return
	}
	payload.MemberID = c.ID

	out := mustEnvelope(protocol.TypeMediaState, payload)
	out.From = c.ID
	out.RoomID = roomID
	h.broadcast(roomID, out, c.ID)
	h.metrics.SignalsRelayed.WithLabelValues(protocol.TypeMediaState).Inc()
}

// unicast delivers to a single member, dropping silently when the target is
// not in the sender's room (stale addressing from a racing leave).
func (h *Hub) unicast(roomID, targetID string, env *protocol.Envelope, sender *Client) {
	targetRoom, ok := h.registry.RoomOf(targetID)
	if !ok || targetRoom != roomID {
		slog.Debug("dropping signal for absent target", "type", env.Type, "target", targetID)
		return
	}
	if target, ok := h.clients[targetID]; ok {
		h.send(target, env)
	}
}

func (h *Hub) broadcast(roomID string, env *protocol.Envelope, exclude string) {
	for _, m := range h.registry.MembersOf(roomID) {
		if m.ID == exclude {
			continue
		}
		if target, ok := h.clients[m.ID]; ok {
			h.send(target, env)
		}
	}
}

// send queues an envelope without blocking the hub loop. A full client
// buffer drops the message; the client's ping/pong deadline will reap truly
// stuck connections.
func (h *Hub) send(c *Client, env *protocol.Envelope) {
	select {
	case c.send <- env:
	default:
		slog.Warn("send buffer full, dropping envelope", "member", c.ID, "type", env.Type)
	}
}

// sendError reports a problem synchronously to the originating client only.
// Errors are never broadcast.
func (h *Hub) sendError(c *Client, msg string) {
	h.send(c, mustEnvelope(protocol.TypeError, protocol.ErrorPayload{Error: msg}))
}

func (h *Hub) updateGauges() {
	h.metrics.ActiveRooms.Set(float64(h.registry.RoomCount()))

	total := 0
	for _, c := range h.clients {
		if _, ok := h.registry.RoomOf(c.ID); ok {
			total++
		}
	}
	h.metrics.ActiveMembers.Set(float64(total))
}

func mustEnvelope(typ string, payload any) *protocol.Envelope {
	env, err := protocol.NewEnvelope(typ, payload)
	if err != nil {
		// Payload structs are our own types; failing to marshal them is a
		// programming error.
		panic(err)
	}
	return env
}
