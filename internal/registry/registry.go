// Package registry owns the room to member mapping for the signaling server.
// It is the single owner of that state: every mutation goes through Join and
// Leave, applied atomically under one lock, and reads hand out snapshots only.
package registry

import (
	"errors"
	"sync"
	"time"

	"github.com/janhae4/DATN-sub006/internal/protocol"
)

// DefaultCapacity is the room ceiling applied when no capacity is configured.
const DefaultCapacity = 55

// ErrRoomFull rejects a join against a room at capacity. The registry state
// is left untouched when it is returned.
var ErrRoomFull = errors.New("room is full")

// Member is a participant registered in a room.
type Member struct {
	ID       string
	Info     protocol.MemberInfo
	JoinedAt time.Time
}

type room struct {
	id        string
	owner     string
	createdAt time.Time
	members   map[string]Member
}

// Registry maps rooms to members and members to rooms. A room exists exactly
// while its member set is non-empty; the last leave deletes it.
type Registry struct {
	mu         sync.Mutex
	capacity   int
	rooms      map[string]*room
	memberRoom map[string]string
}

// New creates an empty registry with the given room capacity. Non-positive
// capacities fall back to DefaultCapacity.
func New(capacity int) *Registry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Registry{
		capacity:   capacity,
		rooms:      make(map[string]*room),
		memberRoom: make(map[string]string),
	}
}

// JoinResult reports the outcome of a successful join.
type JoinResult struct {
	RoomID string
	// Created is set when this join brought the room into existence, making
	// the joiner its implicit owner.
	Created bool
	// AlreadyMember is set when the member was already registered in this
	// room; the join is then a no-op snapshot read.
	AlreadyMember bool
	// Existing is the member snapshot at join time, excluding the joiner.
	Existing []Member
	// AutoLeft is non-nil when single-room membership forced the member out
	// of a previous room first.
	AutoLeft *LeaveResult
}

// LeaveResult reports the outcome of a leave. A zero value (empty RoomID)
// means the member was not registered anywhere.
type LeaveResult struct {
	MemberID  string
	RoomID    string
	Remaining int
	// Destroyed is set when this leave emptied the room and deleted it.
	Destroyed bool
}

// Join registers memberID in roomID, creating the room on first join. A
// member active in another room is moved: the previous room's leave is
// applied first and reported in AutoLeft so the caller can announce it.
// Returns ErrRoomFull without mutating anything when the room is at capacity.
func (r *Registry) Join(roomID, memberID string, info protocol.MemberInfo) (*JoinResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.memberRoom[memberID]; ok && prev == roomID {
		return &JoinResult{
			RoomID:        roomID,
			AlreadyMember: true,
			Existing:      r.snapshotLocked(roomID, memberID),
		}, nil
	}

	if rm, ok := r.rooms[roomID]; ok && len(rm.members) >= r.capacity {
		return nil, ErrRoomFull
	}

	res := &JoinResult{RoomID: roomID}
	if prev, ok := r.memberRoom[memberID]; ok {
		left := r.leaveLocked(memberID, prev)
		res.AutoLeft = &left
	}

	rm, ok := r.rooms[roomID]
	if !ok {
		rm = &room{
			id:        roomID,
			owner:     memberID,
			createdAt: time.Now(),
			members:   make(map[string]Member),
		}
		r.rooms[roomID] = rm
		res.Created = true
	}

	res.Existing = r.snapshotLocked(roomID, memberID)
	rm.members[memberID] = Member{ID: memberID, Info: info, JoinedAt: time.Now()}
	r.memberRoom[memberID] = roomID
	return res, nil
}

// Leave removes memberID from whichever room it is in. Leaving while not
// registered is a no-op returning a zero result, never an error, so duplicate
// disconnect events are harmless.
func (r *Registry) Leave(memberID string) LeaveResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, ok := r.memberRoom[memberID]
	if !ok {
		return LeaveResult{}
	}
	return r.leaveLocked(memberID, roomID)
}

func (r *Registry) leaveLocked(memberID, roomID string) LeaveResult {
	res := LeaveResult{MemberID: memberID, RoomID: roomID}
	delete(r.memberRoom, memberID)

	rm, ok := r.rooms[roomID]
	if !ok {
		return res
	}
	delete(rm.members, memberID)
	res.Remaining = len(rm.members)
	if res.Remaining == 0 {
		delete(r.rooms, roomID)
		res.Destroyed = true
	}
	return res
}

// MembersOf returns a snapshot of the room's members. Mutating the returned
// slice has no effect on registry state. A missing room yields nil.
func (r *Registry) MembersOf(roomID string) []Member {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked(roomID, "")
}

// RoomOf reports which room memberID is registered in, if any.
func (r *Registry) RoomOf(memberID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	roomID, ok := r.memberRoom[memberID]
	return roomID, ok
}

// Size returns the current member count of roomID, zero when it does not exist.
func (r *Registry) Size(roomID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rm, ok := r.rooms[roomID]; ok {
		return len(rm.members)
	}
	return 0
}

// RoomCount returns the number of live rooms.
func (r *Registry) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// Owner returns the implicit owner of roomID, the member whose join created it.
func (r *Registry) Owner(roomID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rm, ok := r.rooms[roomID]; ok {
		return rm.owner, true
	}
	return "", false
}

func (r *Registry) snapshotLocked(roomID, exclude string) []Member {
	rm, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	out := make([]Member, 0, len(rm.members))
	for id, m := range rm.members {
		if id == exclude {
			continue
		}
		out = append(out, m)
	}
	return out
}
