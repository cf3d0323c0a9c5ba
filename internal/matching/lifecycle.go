package matching

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/counterpoint/match-service/internal/metrics"
	"github.com/counterpoint/match-service/internal/scoring"
)

// LifecycleConfig selects the match creation model.
type LifecycleConfig struct {
	// AutoAccept makes newly created matches commit immediately as
	// accepted (the batch model). When false, matches start pending and
	// wait for both-party acceptance or expiry. A deployment runs exactly
	// one of the two modes.
	AutoAccept bool

	// MatchTTL is how long a match stays actionable before the expiry
	// sweep may claim it (pending matches only).
	MatchTTL time.Duration
}

// Lifecycle drives the match state machine:
//
//	pending -> accepted | rejected | expired
//
// Accepting sets mutual partner flags on both participants; rejecting and
// expiring release both participants back into the eligible pool.
type Lifecycle struct {
	store  Store
	events Events // optional
	cfg    LifecycleConfig
}

// NewLifecycle creates a Lifecycle over the store. events may be nil.
func NewLifecycle(store Store, events Events, cfg LifecycleConfig) *Lifecycle {
	return &Lifecycle{store: store, events: events, cfg: cfg}
}

// Create persists a new match between two distinct, existing participants.
// Returns ErrSelfMatch when aID == bID and ErrNotFound when either
// participant is missing. The match row and both participants' partner
// flags are written in one transaction by the store.
func (l *Lifecycle) Create(ctx context.Context, aID, bID string, oppositionScore float64, decision scoring.Decision, slot string) (*Match, error) {
	if aID == bID {
		return nil, ErrSelfMatch
	}

	a, err := l.store.GetProfile(ctx, aID)
	if err != nil {
		return nil, err
	}
	b, err := l.store.GetProfile(ctx, bID)
	if err != nil {
		return nil, err
	}

	topic := a.Topic
	if topic == "" {
		topic = b.Topic
	}

	status := StatusPending
	if l.cfg.AutoAccept {
		status = StatusAccepted
	}

	now := time.Now().UTC()
	expires := now.Add(l.cfg.MatchTTL)
	m := &Match{
		ID:              uuid.New().String(),
		ParticipantA:    a.ID,
		ParticipantB:    b.ID,
		Topic:           topic,
		OppositionScore: oppositionScore,
		Decision:        decision,
		Status:          status,
		ScheduledSlot:   slot,
		CreatedAt:       now,
		ExpiresAt:       &expires,
	}

	if err := l.store.CreateMatch(ctx, m); err != nil {
		return nil, fmt.Errorf("lifecycle: create match %s-%s: %w", aID, bID, err)
	}

	metrics.MatchesCreatedTotal.WithLabelValues(string(decision)).Inc()
	l.notify(l.eventsOrNil().MatchCreated, m, "created")
	return m, nil
}

// Accept marks a match accepted on behalf of actorID, who must be one of
// the pair. Accepting an already-accepted match is a no-op; rejected and
// expired matches cannot be accepted.
func (l *Lifecycle) Accept(ctx context.Context, matchID, actorID string) error {
	m, err := l.store.GetMatch(ctx, matchID)
	if err != nil {
		return err
	}
	if !m.IsParticipant(actorID) {
		return ErrUnauthorized
	}
	switch m.Status {
	case StatusAccepted:
		return nil
	case StatusRejected, StatusExpired:
		return ErrAlreadyResolved
	}

	if err := l.store.AcceptMatch(ctx, matchID); err != nil {
		return fmt.Errorf("lifecycle: accept match %s: %w", matchID, err)
	}

	m.Status = StatusAccepted
	l.notify(l.eventsOrNil().MatchAccepted, m, "accepted")
	return nil
}

// Reject marks a match rejected on behalf of actorID and releases both
// participants back into the eligible pool. Rejection is permitted from
// pending and from accepted (in the immediate-commit model rejection is a
// participant's only exit); rejected and expired matches stay terminal.
func (l *Lifecycle) Reject(ctx context.Context, matchID, actorID string) error {
	m, err := l.store.GetMatch(ctx, matchID)
	if err != nil {
		return err
	}
	if !m.IsParticipant(actorID) {
		return ErrUnauthorized
	}
	switch m.Status {
	case StatusRejected, StatusExpired:
		return ErrAlreadyResolved
	}

	if err := l.store.RejectMatch(ctx, matchID); err != nil {
		return fmt.Errorf("lifecycle: reject match %s: %w", matchID, err)
	}

	m.Status = StatusRejected
	l.notify(l.eventsOrNil().MatchRejected, m, "rejected")
	return nil
}

// ExpireStale transitions every pending match whose deadline passed to
// expired, releasing the participants. Returns the number expired.
func (l *Lifecycle) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	expired, err := l.store.ExpireStaleMatches(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("lifecycle: expire stale: %w", err)
	}

	for _, m := range expired {
		metrics.MatchesExpiredTotal.Inc()
		l.notify(l.eventsOrNil().MatchExpired, m, "expired")
	}
	return len(expired), nil
}

func (l *Lifecycle) eventsOrNil() Events {
	if l.events == nil {
		return noEvents{}
	}
	return l.events
}

func (l *Lifecycle) notify(publish func(*Match) error, m *Match, verb string) {
	if err := publish(m); err != nil {
		log.Printf("[lifecycle] publish match %s %s: %v", verb, m.ID, err)
	}
}

// noEvents is the null publisher used when no Events sink is configured.
type noEvents struct{}

func (noEvents) MatchCreated(*Match) error      { return nil }
func (noEvents) MatchAccepted(*Match) error     { return nil }
func (noEvents) MatchRejected(*Match) error     { return nil }
func (noEvents) MatchExpired(*Match) error      { return nil }
func (noEvents) PassCompleted(*PassStats) error { return nil }
