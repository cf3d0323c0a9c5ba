package matching

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/counterpoint/match-service/internal/scoring"
)

func lifecycleUnderTest(autoAccept bool) (*Lifecycle, *fakeStore, *fakeEvents) {
	st := newFakeStore()
	st.add(eligibleProfile("alice", "climate", 1, 1, "mon-evening"))
	st.add(eligibleProfile("bob", "climate", -1, 1, "mon-evening"))
	events := &fakeEvents{}
	lc := NewLifecycle(st, events, LifecycleConfig{
		AutoAccept: autoAccept,
		MatchTTL:   14 * 24 * time.Hour,
	})
	return lc, st, events
}

func TestLifecycleCreate_AutoAccept(t *testing.T) {
	lc, st, events := lifecycleUnderTest(true)

	m, err := lc.Create(context.Background(), "alice", "bob", 2.0, scoring.IdealMatch, "mon-evening")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Status != StatusAccepted {
		t.Errorf("auto-accept mode should create accepted matches, got %s", m.Status)
	}
	if m.ExpiresAt == nil {
		t.Error("expected an expiry deadline")
	}
	if m.Topic != "climate" {
		t.Errorf("expected topic climate, got %s", m.Topic)
	}

	alice := st.profiles["alice"]
	bob := st.profiles["bob"]
	if !alice.HasPartner || alice.PartnerID != "bob" {
		t.Errorf("alice not flagged partnered: has=%v partner=%s", alice.HasPartner, alice.PartnerID)
	}
	if !bob.HasPartner || bob.PartnerID != "alice" {
		t.Errorf("bob not flagged partnered: has=%v partner=%s", bob.HasPartner, bob.PartnerID)
	}
	if len(events.created) != 1 {
		t.Errorf("expected 1 created event, got %d", len(events.created))
	}
}

func TestLifecycleCreate_PendingMode(t *testing.T) {
	lc, _, _ := lifecycleUnderTest(false)

	m, err := lc.Create(context.Background(), "alice", "bob", 2.0, scoring.IdealMatch, "mon-evening")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Status != StatusPending {
		t.Errorf("expected pending match, got %s", m.Status)
	}
	if m.ExpiresAt == nil {
		t.Fatal("pending matches must carry an expiry deadline")
	}
	ttl := time.Until(*m.ExpiresAt)
	if ttl < 13*24*time.Hour || ttl > 15*24*time.Hour {
		t.Errorf("expected roughly 14 day TTL, got %s", ttl)
	}
}

func TestLifecycleCreate_SelfMatch(t *testing.T) {
	lc, _, _ := lifecycleUnderTest(true)
	if _, err := lc.Create(context.Background(), "alice", "alice", 2.0, scoring.IdealMatch, ""); !errors.Is(err, ErrSelfMatch) {
		t.Errorf("expected ErrSelfMatch, got %v", err)
	}
}

func TestLifecycleCreate_UnknownParticipant(t *testing.T) {
	lc, _, _ := lifecycleUnderTest(true)
	if _, err := lc.Create(context.Background(), "alice", "ghost", 2.0, scoring.IdealMatch, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLifecycleAccept(t *testing.T) {
	lc, _, events := lifecycleUnderTest(false)
	m, err := lc.Create(context.Background(), "alice", "bob", 2.0, scoring.IdealMatch, "mon-evening")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := lc.Accept(context.Background(), m.ID, "alice"); err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	if m.Status != StatusAccepted {
		t.Errorf("expected accepted, got %s", m.Status)
	}
	if len(events.accepted) != 1 {
		t.Errorf("expected 1 accepted event, got %d", len(events.accepted))
	}

	// Accepting again is a no-op.
	if err := lc.Accept(context.Background(), m.ID, "bob"); err != nil {
		t.Errorf("re-accept should be a no-op, got %v", err)
	}
	if len(events.accepted) != 1 {
		t.Errorf("re-accept must not re-publish, got %d events", len(events.accepted))
	}
}

func TestLifecycleAccept_Unauthorized(t *testing.T) {
	lc, st, _ := lifecycleUnderTest(false)
	st.add(eligibleProfile("mallory", "climate", 0, 1))
	m, err := lc.Create(context.Background(), "alice", "bob", 2.0, scoring.IdealMatch, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := lc.Accept(context.Background(), m.ID, "mallory"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestLifecycleAccept_ResolvedMatch(t *testing.T) {
	lc, _, _ := lifecycleUnderTest(false)
	m, err := lc.Create(context.Background(), "alice", "bob", 2.0, scoring.IdealMatch, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := lc.Reject(context.Background(), m.ID, "alice"); err != nil {
		t.Fatalf("reject failed: %v", err)
	}

	if err := lc.Accept(context.Background(), m.ID, "bob"); !errors.Is(err, ErrAlreadyResolved) {
		t.Errorf("expected ErrAlreadyResolved, got %v", err)
	}
}

func TestLifecycleReject_ReleasesBothParticipants(t *testing.T) {
	lc, st, events := lifecycleUnderTest(true)
	m, err := lc.Create(context.Background(), "alice", "bob", 2.0, scoring.IdealMatch, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Rejection is allowed even from accepted.
	if err := lc.Reject(context.Background(), m.ID, "bob"); err != nil {
		t.Fatalf("reject failed: %v", err)
	}
	if m.Status != StatusRejected {
		t.Errorf("expected rejected, got %s", m.Status)
	}

	for _, id := range []string{"alice", "bob"} {
		p := st.profiles[id]
		if p.HasPartner || p.PartnerID != "" {
			t.Errorf("%s not released: has=%v partner=%s", id, p.HasPartner, p.PartnerID)
		}
	}
	if len(events.rejected) != 1 {
		t.Errorf("expected 1 rejected event, got %d", len(events.rejected))
	}

	// Terminal afterwards.
	if err := lc.Reject(context.Background(), m.ID, "alice"); !errors.Is(err, ErrAlreadyResolved) {
		t.Errorf("expected ErrAlreadyResolved on double reject, got %v", err)
	}
}

func TestLifecycleExpireStale(t *testing.T) {
	lc, st, events := lifecycleUnderTest(false)
	m, err := lc.Create(context.Background(), "alice", "bob", 2.0, scoring.IdealMatch, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Not yet due.
	n, err := lc.ExpireStale(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Errorf("expected nothing expired before the deadline, got %d", n)
	}

	n, err = lc.ExpireStale(context.Background(), m.ExpiresAt.Add(time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 match expired, got %d", n)
	}
	if m.Status != StatusExpired {
		t.Errorf("expected expired, got %s", m.Status)
	}
	for _, id := range []string{"alice", "bob"} {
		if st.profiles[id].HasPartner {
			t.Errorf("%s should be released on expiry", id)
		}
	}
	if len(events.expired) != 1 {
		t.Errorf("expected 1 expired event, got %d", len(events.expired))
	}
}

func TestLifecycleExpireStale_IgnoresAcceptedMatches(t *testing.T) {
	lc, _, _ := lifecycleUnderTest(true)
	m, err := lc.Create(context.Background(), "alice", "bob", 2.0, scoring.IdealMatch, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	n, err := lc.ExpireStale(context.Background(), m.ExpiresAt.Add(time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Errorf("accepted matches must never expire, got %d", n)
	}
	if m.Status != StatusAccepted {
		t.Errorf("expected accepted, got %s", m.Status)
	}
}
