package peer

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/janhae4/DATN-sub006/internal/media"
)

// recordingSender captures outbound signaling instead of delivering it, so
// tests control delivery order explicitly.
type recordingSender struct {
	mu         sync.Mutex
	offers     []sentSDP
	answers    []sentSDP
	candidates []string
}

type sentSDP struct {
	to  string
	sdp webrtc.SessionDescription
}

func (r *recordingSender) SendOffer(to string, sdp webrtc.SessionDescription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.offers = append(r.offers, sentSDP{to, sdp})
	return nil
}

func (r *recordingSender) SendAnswer(to string, sdp webrtc.SessionDescription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.answers = append(r.answers, sentSDP{to, sdp})
	return nil
}

func (r *recordingSender) SendCandidate(to string, c webrtc.ICECandidateInit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.candidates = append(r.candidates, to)
	return nil
}

func (r *recordingSender) offerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.offers)
}

func (r *recordingSender) answerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.answers)
}

func (r *recordingSender) lastOffer(t *testing.T) sentSDP {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.offers) == 0 {
		t.Fatal("no offer was sent")
	}
	return r.offers[len(r.offers)-1]
}

func (r *recordingSender) lastAnswer(t *testing.T) sentSDP {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.answers) == 0 {
		t.Fatal("no answer was sent")
	}
	return r.answers[len(r.answers)-1]
}

func newTestManager(t *testing.T, localID string, events Events) (*Manager, *recordingSender) {
	t.Helper()

	ctrl := media.NewController(media.SyntheticOpener{})
	if err := ctrl.Acquire(media.Constraints{Audio: true}); err != nil {
		t.Fatalf("acquire media: %v", err)
	}
	t.Cleanup(ctrl.Release)

	sender := &recordingSender{}
	m, err := NewManager(ManagerConfig{
		LocalID: localID,
		Sender:  sender,
		Media:   ctrl,
		Events:  events,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	t.Cleanup(m.Close)
	return m, sender
}

const testCandidate = "candidate:1 1 UDP 2130706431 127.0.0.1 54400 typ host"

func TestInitiatorPath(t *testing.T) {
	m, sender := newTestManager(t, "alice", Events{})

	m.HandlePeerJoined("bob")

	if sender.offerCount() != 1 {
		t.Fatalf("expected 1 offer, got %d", sender.offerCount())
	}
	if got := sender.lastOffer(t).to; got != "bob" {
		t.Errorf("offer addressed to %q, want bob", got)
	}
	if st := m.Link("bob").State(); st != StateHaveLocalOffer {
		t.Errorf("state = %s, want have-local-offer", st)
	}
}

func TestAnswererPath(t *testing.T) {
	alice, aliceSender := newTestManager(t, "alice", Events{})
	bob, bobSender := newTestManager(t, "bob", Events{})

	alice.HandlePeerJoined("bob")
	offer := aliceSender.lastOffer(t)

	// Bob never saw a peer-joined for alice; the offer races ahead and the
	// link is created lazily.
	bob.HandleOffer("alice", offer.sdp)

	if bobSender.answerCount() != 1 {
		t.Fatalf("expected 1 answer, got %d", bobSender.answerCount())
	}
	if st := bob.Link("alice").State(); st != StateStable {
		t.Errorf("bob state = %s, want stable", st)
	}

	alice.HandleAnswer("bob", bobSender.lastAnswer(t).sdp)
	if st := alice.Link("bob").State(); st != StateStable {
		t.Errorf("alice state = %s, want stable", st)
	}
}

func TestGlareResolutionIsDeterministic(t *testing.T) {
	for _, order := range []string{"alice-first", "bob-first"} {
		t.Run(order, func(t *testing.T) {
			alice, aliceSender := newTestManager(t, "alice", Events{})
			bob, bobSender := newTestManager(t, "bob", Events{})

			// Both sides offer simultaneously.
			alice.HandlePeerJoined("bob")
			bob.HandlePeerJoined("alice")
			aliceOffer := aliceSender.lastOffer(t)
			bobOffer := bobSender.lastOffer(t)

			if order == "alice-first" {
				alice.HandleOffer("bob", bobOffer.sdp)
				bob.HandleOffer("alice", aliceOffer.sdp)
			} else {
				bob.HandleOffer("alice", aliceOffer.sdp)
				alice.HandleOffer("bob", bobOffer.sdp)
			}

			// alice < bob: alice stays initiator and must not answer.
			if aliceSender.answerCount() != 0 {
				t.Error("initiator side sent an answer during glare")
			}
			if st := alice.Link("bob").State(); st != StateHaveLocalOffer {
				t.Errorf("alice state = %s, want have-local-offer", st)
			}

			// bob yields and answers alice's offer.
			if bobSender.answerCount() != 1 {
				t.Fatalf("expected bob to answer once, got %d", bobSender.answerCount())
			}
			if st := bob.Link("alice").State(); st != StateStable {
				t.Errorf("bob state = %s, want stable", st)
			}

			alice.HandleAnswer("bob", bobSender.lastAnswer(t).sdp)
			if st := alice.Link("bob").State(); st != StateStable {
				t.Errorf("alice final state = %s, want stable", st)
			}
		})
	}
}

func TestCandidateBufferedUntilRemoteDescription(t *testing.T) {
	alice, aliceSender := newTestManager(t, "alice", Events{})
	bob, bobSender := newTestManager(t, "bob", Events{})

	alice.HandlePeerJoined("bob")

	// No remote description yet: the candidate must be buffered, not applied.
	alice.HandleCandidate("bob", webrtc.ICECandidateInit{Candidate: testCandidate})
	link := alice.Link("bob")
	link.mu.Lock()
	buffered := len(link.pending)
	link.mu.Unlock()
	if buffered != 1 {
		t.Fatalf("expected 1 buffered candidate, got %d", buffered)
	}

	bob.HandleOffer("alice", aliceSender.lastOffer(t).sdp)
	alice.HandleAnswer("bob", bobSender.lastAnswer(t).sdp)

	link.mu.Lock()
	buffered = len(link.pending)
	link.mu.Unlock()
	if buffered != 0 {
		t.Errorf("%d candidates still buffered after remote description", buffered)
	}
}

func TestStaleCandidateDroppedSilently(t *testing.T) {
	m, _ := newTestManager(t, "alice", Events{})

	// No link exists for this remote: the candidate is stale traffic from a
	// torn-down link and must neither error nor create a link.
	m.HandleCandidate("ghost", webrtc.ICECandidateInit{Candidate: testCandidate})

	if m.Link("ghost") != nil {
		t.Error("stale candidate recreated a link")
	}
}

func TestPeerLeftIsIdempotent(t *testing.T) {
	m, _ := newTestManager(t, "alice", Events{})
	m.HandlePeerJoined("bob")

	m.HandlePeerLeft("bob")
	if m.Link("bob") != nil {
		t.Fatal("link survived peer-left")
	}
	// Second teardown of an already-closed link is a no-op.
	m.HandlePeerLeft("bob")
}

func TestMuteNeverTriggersRenegotiation(t *testing.T) {
	ctrl := media.NewController(media.SyntheticOpener{})
	if err := ctrl.Acquire(media.Constraints{Audio: true, Video: true}); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	t.Cleanup(ctrl.Release)

	sender := &recordingSender{}
	m, err := NewManager(ManagerConfig{LocalID: "alice", Sender: sender, Media: ctrl})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	t.Cleanup(m.Close)

	m.HandlePeerJoined("bob")
	before := sender.offerCount()

	ctrl.SetMuted(true)
	ctrl.SetMuted(false)
	ctrl.SetCameraOff(true)
	ctrl.SetCameraOff(false)

	if got := sender.offerCount(); got != before {
		t.Errorf("track toggles emitted %d extra offers", got-before)
	}
	if sender.answerCount() != 0 {
		t.Error("track toggles emitted answers")
	}
}

func TestNegotiationFailureRetriesOnceThenUnreachable(t *testing.T) {
	var mu sync.Mutex
	var unreachable []string
	events := Events{
		OnUnreachable: func(remoteID string, err error) {
			mu.Lock()
			unreachable = append(unreachable, remoteID)
			mu.Unlock()
		},
	}
	m, sender := newTestManager(t, "alice", events)

	m.HandlePeerJoined("bob")
	if sender.offerCount() != 1 {
		t.Fatalf("expected initial offer, got %d", sender.offerCount())
	}

	garbage := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "not sdp"}

	// First failure tears down and retries from idle: a second offer goes out.
	m.HandleAnswer("bob", garbage)
	if sender.offerCount() != 2 {
		t.Fatalf("expected retry offer, got %d offers", sender.offerCount())
	}
	mu.Lock()
	n := len(unreachable)
	mu.Unlock()
	if n != 0 {
		t.Fatal("marked unreachable before the retry was spent")
	}

	// Second failure marks the remote unreachable.
	m.HandleAnswer("bob", garbage)
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(unreachable) == 1 && unreachable[0] == "bob"
	})
	if m.Link("bob") != nil {
		t.Error("unreachable remote still has a live link")
	}
	if sender.offerCount() != 2 {
		t.Errorf("unreachable remote was retried again: %d offers", sender.offerCount())
	}

	// Further offers from the unreachable remote are ignored.
	m.HandleOffer("bob", webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "x"})
	if m.Link("bob") != nil {
		t.Error("offer from unreachable remote recreated a link")
	}

	// A fresh peer-joined clears the verdict.
	m.HandlePeerJoined("bob")
	if m.Link("bob") == nil {
		t.Error("rejoin did not reset reachability")
	}
}

func TestLinksAreIndependent(t *testing.T) {
	m, sender := newTestManager(t, "alice", Events{})

	m.HandlePeerJoined("bob")
	m.HandlePeerJoined("carol")
	if sender.offerCount() != 2 {
		t.Fatalf("expected 2 offers, got %d", sender.offerCount())
	}

	// Failing bob twice must leave carol's link untouched.
	garbage := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "not sdp"}
	m.HandleAnswer("bob", garbage)
	m.HandleAnswer("bob", garbage)

	if m.Link("carol") == nil {
		t.Fatal("carol's link was affected by bob's failure")
	}
	if st := m.Link("carol").State(); st != StateHaveLocalOffer {
		t.Errorf("carol state = %s, want have-local-offer", st)
	}
}

func TestDeviceSwitchConcurrentWithLinkCreation(t *testing.T) {
	ctrl := media.NewController(media.SyntheticOpener{})
	if err := ctrl.Acquire(media.Constraints{Audio: true, Video: true}); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	t.Cleanup(ctrl.Release)

	sender := &recordingSender{}
	m, err := NewManager(ManagerConfig{LocalID: "alice", Sender: sender, Media: ctrl})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	t.Cleanup(m.Close)

	// Link creation walks the controller's tracks while the device switch
	// walks the manager's links; run both sides in lockstep and require the
	// whole round to finish.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			var wg sync.WaitGroup
			wg.Add(2)
			remoteID := fmt.Sprintf("peer-%d", i)
			go func() {
				defer wg.Done()
				m.HandlePeerJoined(remoteID)
			}()
			go func() {
				defer wg.Done()
				ctrl.SwitchDevice(media.Constraints{Audio: true, Video: true})
			}()
			wg.Wait()
		}
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("device switch deadlocked against link creation")
	}
}

func TestLateFailureAfterPeerLeftIsIgnored(t *testing.T) {
	var mu sync.Mutex
	var unreachable int
	events := Events{
		OnUnreachable: func(string, error) {
			mu.Lock()
			unreachable++
			mu.Unlock()
		},
	}
	m, sender := newTestManager(t, "alice", events)

	m.HandlePeerJoined("bob")
	m.HandlePeerLeft("bob")

	// A stale ICE timer or connection-state callback firing after the
	// teardown must not rebuild the link or send anything.
	m.fail("bob", errors.New("stale timer"))

	if m.Link("bob") != nil {
		t.Error("late failure resurrected a departed remote's link")
	}
	if sender.offerCount() != 1 {
		t.Errorf("late failure sent a retry offer: %d offers", sender.offerCount())
	}
	mu.Lock()
	n := unreachable
	mu.Unlock()
	if n != 0 {
		t.Error("late failure marked a departed remote unreachable")
	}
}

func TestICETimeoutSpendsRetryThenUnreachable(t *testing.T) {
	var mu sync.Mutex
	var verdicts []error
	events := Events{
		OnUnreachable: func(_ string, err error) {
			mu.Lock()
			verdicts = append(verdicts, err)
			mu.Unlock()
		},
	}

	ctrl := media.NewController(media.SyntheticOpener{})
	if err := ctrl.Acquire(media.Constraints{Audio: true}); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	t.Cleanup(ctrl.Release)

	sender := &recordingSender{}
	m, err := NewManager(ManagerConfig{
		LocalID:    "alice",
		Sender:     sender,
		Media:      ctrl,
		ICETimeout: 100 * time.Millisecond,
		Events:     events,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	t.Cleanup(m.Close)

	// No remote ever answers: the first timeout tears down and re-offers,
	// the second spends the retry and surfaces the verdict.
	m.HandlePeerJoined("bob")

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(verdicts) == 1
	})

	mu.Lock()
	verdict := verdicts[0]
	mu.Unlock()
	if !errors.Is(verdict, ErrUnreachable) {
		t.Errorf("verdict = %v, want ErrUnreachable", verdict)
	}
	if got := sender.offerCount(); got != 2 {
		t.Errorf("expected initial offer plus one retry, got %d offers", got)
	}
	if m.Link("bob") != nil {
		t.Error("unreachable remote still has a live link")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}
