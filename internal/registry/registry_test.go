package registry

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/janhae4/DATN-sub006/internal/protocol"
)

func TestJoinCreatesRoom(t *testing.T) {
	r := New(55)

	res, err := r.Join("r1", "alice", protocol.MemberInfo{DisplayName: "Alice"})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if !res.Created {
		t.Error("expected first join to create the room")
	}
	if len(res.Existing) != 0 {
		t.Errorf("expected empty peer snapshot, got %d", len(res.Existing))
	}
	if owner, _ := r.Owner("r1"); owner != "alice" {
		t.Errorf("expected alice as implicit owner, got %q", owner)
	}
	if r.Size("r1") != 1 {
		t.Errorf("expected 1 member, got %d", r.Size("r1"))
	}
}

func TestJoinReturnsExistingPeers(t *testing.T) {
	r := New(55)
	if _, err := r.Join("r1", "alice", protocol.MemberInfo{}); err != nil {
		t.Fatalf("alice join: %v", err)
	}

	res, err := r.Join("r1", "bob", protocol.MemberInfo{})
	if err != nil {
		t.Fatalf("bob join: %v", err)
	}
	if res.Created {
		t.Error("second join must not report room creation")
	}
	if len(res.Existing) != 1 || res.Existing[0].ID != "alice" {
		t.Errorf("expected snapshot [alice], got %+v", res.Existing)
	}
}

func TestRoomFullDoesNotMutate(t *testing.T) {
	r := New(2)
	for _, id := range []string{"a", "b"} {
		if _, err := r.Join("r1", id, protocol.MemberInfo{}); err != nil {
			t.Fatalf("join %s: %v", id, err)
		}
	}

	_, err := r.Join("r1", "c", protocol.MemberInfo{})
	if !errors.Is(err, ErrRoomFull) {
		t.Fatalf("expected ErrRoomFull, got %v", err)
	}
	if r.Size("r1") != 2 {
		t.Errorf("rejected join mutated the room: size=%d", r.Size("r1"))
	}
	if _, ok := r.RoomOf("c"); ok {
		t.Error("rejected member must not be registered")
	}
}

func TestLeaveIsIdempotent(t *testing.T) {
	r := New(55)
	r.Join("r1", "alice", protocol.MemberInfo{})
	r.Join("r1", "bob", protocol.MemberInfo{})

	first := r.Leave("bob")
	if first.RoomID != "r1" || first.Remaining != 1 {
		t.Errorf("unexpected first leave result: %+v", first)
	}

	second := r.Leave("bob")
	if second.RoomID != "" || second.Remaining != 0 || second.Destroyed {
		t.Errorf("second leave must be an empty no-op, got %+v", second)
	}
	if r.Size("r1") != 1 {
		t.Errorf("duplicate leave affected room state: size=%d", r.Size("r1"))
	}
}

func TestEmptyRoomIsDeleted(t *testing.T) {
	r := New(55)
	r.Join("r1", "alice", protocol.MemberInfo{})

	res := r.Leave("alice")
	if !res.Destroyed {
		t.Error("last leave must destroy the room")
	}
	if r.RoomCount() != 0 {
		t.Errorf("orphaned room persists: count=%d", r.RoomCount())
	}
	if got := r.MembersOf("r1"); got != nil {
		t.Errorf("expected nil snapshot for deleted room, got %v", got)
	}
}

func TestSingleRoomMembership(t *testing.T) {
	r := New(55)
	r.Join("r1", "alice", protocol.MemberInfo{})
	r.Join("r1", "bob", protocol.MemberInfo{})

	res, err := r.Join("r2", "bob", protocol.MemberInfo{})
	if err != nil {
		t.Fatalf("join r2: %v", err)
	}
	if res.AutoLeft == nil || res.AutoLeft.RoomID != "r1" {
		t.Fatalf("expected auto-leave of r1, got %+v", res.AutoLeft)
	}
	if r.Size("r1") != 1 {
		t.Errorf("bob still counted in r1: size=%d", r.Size("r1"))
	}
	if got, _ := r.RoomOf("bob"); got != "r2" {
		t.Errorf("bob should be in r2, got %q", got)
	}
}

func TestRejoinSameRoomIsNoOp(t *testing.T) {
	r := New(55)
	r.Join("r1", "alice", protocol.MemberInfo{})
	r.Join("r1", "bob", protocol.MemberInfo{})

	res, err := r.Join("r1", "bob", protocol.MemberInfo{})
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if !res.AlreadyMember {
		t.Error("expected AlreadyMember on rejoin")
	}
	if r.Size("r1") != 2 {
		t.Errorf("rejoin changed membership: size=%d", r.Size("r1"))
	}
}

func TestSnapshotIsDefensive(t *testing.T) {
	r := New(55)
	r.Join("r1", "alice", protocol.MemberInfo{DisplayName: "Alice"})
	r.Join("r1", "bob", protocol.MemberInfo{})

	snap := r.MembersOf("r1")
	for i := range snap {
		snap[i].ID = "mutated"
		snap[i].Info.DisplayName = "mutated"
	}

	for _, m := range r.MembersOf("r1") {
		if m.ID == "mutated" {
			t.Fatal("mutating the snapshot corrupted registry state")
		}
	}
}

func TestConcurrentJoinsRespectCapacity(t *testing.T) {
	const capacity = 55
	const contenders = 200

	r := New(capacity)
	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0

	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, err := r.Join("r2", fmt.Sprintf("m-%03d", n), protocol.MemberInfo{}); err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if admitted != capacity {
		t.Errorf("admitted %d members, capacity is %d", admitted, capacity)
	}
	if got := r.Size("r2"); got != capacity {
		t.Errorf("room size %d exceeds capacity %d", got, capacity)
	}
}

func TestConcurrentJoinLeaveChurn(t *testing.T) {
	r := New(10)
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("m-%02d", n)
			for j := 0; j < 20; j++ {
				r.Join("churn", id, protocol.MemberInfo{})
				r.Leave(id)
			}
		}(i)
	}
	wg.Wait()

	// Every goroutine finished on a leave, so the room must be gone.
	if r.RoomCount() != 0 {
		t.Errorf("expected no rooms after churn, got %d", r.RoomCount())
	}
}
