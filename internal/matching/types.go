// Package matching implements the opposition-based matching engine for the
// discussion study: eligibility filtering, time-slot overlap, the greedy
// per-participant Pairer, the match lifecycle state machine, and the
// periodic batch Scheduler. Persistence, event delivery, and the pair cache
// are consumed through the narrow interfaces defined here.
package matching

import (
	"context"
	"time"

	"github.com/counterpoint/match-service/internal/scoring"
)

// MaxTimeSlots is the number of availability options a participant may
// declare.
const MaxTimeSlots = 3

// Profile is the matching-relevant view of a participant.
type Profile struct {
	ID                string
	Topic             string // empty when the participant has not picked one
	ScreeningComplete bool
	Extremist         bool
	Openness          *float64 // nil until the questionnaire is scored
	Answers           scoring.Answers
	Weights           scoring.Weights
	Slots             []string // up to MaxTimeSlots declared availability options
	HasPartner        bool
	PartnerID         string
	CreatedAt         time.Time
}

// Status is the lifecycle state of a match.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected || s == StatusExpired
}

// Match is one pairing of two distinct participants on a shared topic.
type Match struct {
	ID              string
	ParticipantA    string
	ParticipantB    string
	Topic           string
	OppositionScore float64
	Decision        scoring.Decision
	Status          Status
	ScheduledSlot   string // empty when no common slot was recorded
	CreatedAt       time.Time
	ExpiresAt       *time.Time
}

// IsParticipant reports whether id is one of the matched pair.
func (m *Match) IsParticipant(id string) bool {
	return id == m.ParticipantA || id == m.ParticipantB
}

// Partner returns the other member of the pair, or "" if id is not part of
// the match.
func (m *Match) Partner(id string) string {
	switch id {
	case m.ParticipantA:
		return m.ParticipantB
	case m.ParticipantB:
		return m.ParticipantA
	}
	return ""
}

// Proposal is the Pairer's recommendation for one participant.
type Proposal struct {
	ParticipantID   string
	PartnerID       string
	Topic           string
	OppositionScore float64
	Decision        scoring.Decision
	Slot            string
	Compatibility   float64
}

// PassStats aggregates one batch pass for observability.
type PassStats struct {
	StartedAt          time.Time
	Duration           time.Duration
	UsersProcessed     int
	MatchesCreated     int
	IdealMatches       int
	TopicsProcessed    int
	ExcludedTooSimilar int
	ExcludedTooExtreme int
	ExcludedNoOverlap  int
	CacheSkips         int
	Errors             int
}

// Store is the persistence surface the engine consumes. Implementations
// must make CreateMatch, AcceptMatch, RejectMatch, and ExpireStaleMatches
// atomic: a match row change and the corresponding participant flag flips
// land together or not at all.
type Store interface {
	// GetProfile returns a participant's matching profile, or ErrNotFound.
	GetProfile(ctx context.Context, id string) (*Profile, error)

	// ListEligibleProfiles returns profiles passing the cheap store-side
	// eligibility predicates (screened, not extremist, unpartnered, topic
	// and openness present) in a stable order. Answer completeness is
	// re-verified by the engine.
	ListEligibleProfiles(ctx context.Context) ([]*Profile, error)

	// CreateMatch persists m and flips both participants'
	// has_partner/partner_id in one transaction.
	CreateMatch(ctx context.Context, m *Match) error

	// GetMatch returns a match by id, or ErrNotFound.
	GetMatch(ctx context.Context, id string) (*Match, error)

	// ListMatchesForParticipant returns matches involving the participant,
	// newest first, optionally filtered by status ("" for all).
	ListMatchesForParticipant(ctx context.Context, participantID string, status Status) ([]*Match, error)

	// AcceptMatch marks the match accepted and sets mutual
	// has_partner/partner_id on both participants.
	AcceptMatch(ctx context.Context, matchID string) error

	// RejectMatch marks the match rejected and releases both participants
	// back into the eligible pool.
	RejectMatch(ctx context.Context, matchID string) error

	// ExpireStaleMatches transitions pending matches whose expires_at is
	// before now to expired, releases their participants, and returns the
	// transitioned matches.
	ExpireStaleMatches(ctx context.Context, now time.Time) ([]*Match, error)

	// RecordPass persists a batch pass statistics row.
	RecordPass(ctx context.Context, stats *PassStats) error
}

// PairCache remembers recently evaluated non-ideal pairs so hourly passes
// do not rescore them. Invalidate drops every record involving a
// participant after their answers change. Implementations should fail
// open: a cache outage must never block matching.
type PairCache interface {
	Get(ctx context.Context, a, b string) (scoring.Decision, bool, error)
	Put(ctx context.Context, a, b string, d scoring.Decision) error
	Invalidate(ctx context.Context, participantID string) error
}

// Events receives lifecycle notifications for downstream consumers such as
// the notification layer. All methods are fire-and-forget from the
// engine's perspective; delivery failures are logged, never fatal.
type Events interface {
	MatchCreated(m *Match) error
	MatchAccepted(m *Match) error
	MatchRejected(m *Match) error
	MatchExpired(m *Match) error
	PassCompleted(stats *PassStats) error
}
