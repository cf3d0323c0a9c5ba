package matching

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/counterpoint/match-service/internal/scoring"
)

// fakeStore is an in-memory Store for engine tests. Listing order follows
// insertion order so pass behavior is deterministic.
type fakeStore struct {
	profiles      map[string]*Profile
	order         []string
	matches       map[string]*Match
	matchOrder    []string
	passes        []*PassStats
	failCreateFor map[string]bool // participant IDs whose CreateMatch fails
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		profiles:      make(map[string]*Profile),
		matches:       make(map[string]*Match),
		failCreateFor: make(map[string]bool),
	}
}

func (f *fakeStore) add(p *Profile) {
	f.profiles[p.ID] = p
	f.order = append(f.order, p.ID)
}

func (f *fakeStore) GetProfile(ctx context.Context, id string) (*Profile, error) {
	p, ok := f.profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) ListEligibleProfiles(ctx context.Context) ([]*Profile, error) {
	var out []*Profile
	for _, id := range f.order {
		p := f.profiles[id]
		if p.ScreeningComplete && !p.Extremist && !p.HasPartner && p.Topic != "" && p.Openness != nil {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateMatch(ctx context.Context, m *Match) error {
	if f.failCreateFor[m.ParticipantA] || f.failCreateFor[m.ParticipantB] {
		return errors.New("fake: create failed")
	}
	f.matches[m.ID] = m
	f.matchOrder = append(f.matchOrder, m.ID)
	f.setPartner(m.ParticipantA, m.ParticipantB)
	f.setPartner(m.ParticipantB, m.ParticipantA)
	return nil
}

func (f *fakeStore) GetMatch(ctx context.Context, id string) (*Match, error) {
	m, ok := f.matches[id]
	if !ok {
		return nil, ErrNotFound
	}
	return m, nil
}

func (f *fakeStore) ListMatchesForParticipant(ctx context.Context, participantID string, status Status) ([]*Match, error) {
	var out []*Match
	for i := len(f.matchOrder) - 1; i >= 0; i-- {
		m := f.matches[f.matchOrder[i]]
		if !m.IsParticipant(participantID) {
			continue
		}
		if status != "" && m.Status != status {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeStore) AcceptMatch(ctx context.Context, matchID string) error {
	m, ok := f.matches[matchID]
	if !ok {
		return ErrNotFound
	}
	m.Status = StatusAccepted
	f.setPartner(m.ParticipantA, m.ParticipantB)
	f.setPartner(m.ParticipantB, m.ParticipantA)
	return nil
}

func (f *fakeStore) RejectMatch(ctx context.Context, matchID string) error {
	m, ok := f.matches[matchID]
	if !ok {
		return ErrNotFound
	}
	m.Status = StatusRejected
	f.release(m.ParticipantA)
	f.release(m.ParticipantB)
	return nil
}

func (f *fakeStore) ExpireStaleMatches(ctx context.Context, now time.Time) ([]*Match, error) {
	var expired []*Match
	for _, id := range f.matchOrder {
		m := f.matches[id]
		if m.Status != StatusPending || m.ExpiresAt == nil || !m.ExpiresAt.Before(now) {
			continue
		}
		m.Status = StatusExpired
		f.release(m.ParticipantA)
		f.release(m.ParticipantB)
		expired = append(expired, m)
	}
	return expired, nil
}

func (f *fakeStore) RecordPass(ctx context.Context, stats *PassStats) error {
	f.passes = append(f.passes, stats)
	return nil
}

func (f *fakeStore) setPartner(id, partnerID string) {
	if p, ok := f.profiles[id]; ok {
		p.HasPartner = true
		p.PartnerID = partnerID
	}
}

func (f *fakeStore) release(id string) {
	if p, ok := f.profiles[id]; ok {
		p.HasPartner = false
		p.PartnerID = ""
	}
}

// fakeCache is an in-memory PairCache recording hits and puts.
type fakeCache struct {
	entries map[string]scoring.Decision
	gets    int
	puts    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]scoring.Decision)}
}

func pairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}

func (f *fakeCache) Get(ctx context.Context, a, b string) (scoring.Decision, bool, error) {
	f.gets++
	d, ok := f.entries[pairKey(a, b)]
	return d, ok, nil
}

func (f *fakeCache) Put(ctx context.Context, a, b string, d scoring.Decision) error {
	f.puts++
	f.entries[pairKey(a, b)] = d
	return nil
}

func (f *fakeCache) Invalidate(ctx context.Context, participantID string) error {
	for key := range f.entries {
		if strings.HasPrefix(key, participantID+":") || strings.HasSuffix(key, ":"+participantID) {
			delete(f.entries, key)
		}
	}
	return nil
}

// fakeEvents records lifecycle notifications.
type fakeEvents struct {
	created  []*Match
	accepted []*Match
	rejected []*Match
	expired  []*Match
	passes   []*PassStats
}

func (f *fakeEvents) MatchCreated(m *Match) error  { f.created = append(f.created, m); return nil }
func (f *fakeEvents) MatchAccepted(m *Match) error { f.accepted = append(f.accepted, m); return nil }
func (f *fakeEvents) MatchRejected(m *Match) error { f.rejected = append(f.rejected, m); return nil }
func (f *fakeEvents) MatchExpired(m *Match) error  { f.expired = append(f.expired, m); return nil }
func (f *fakeEvents) PassCompleted(s *PassStats) error {
	f.passes = append(f.passes, s)
	return nil
}

// eligibleProfile builds a complete, screened, unpartnered profile with
// every matching dimension set to score.
func eligibleProfile(id, topic string, score, openness float64, slots ...string) *Profile {
	var answers scoring.Answers
	for i := range answers {
		v := score
		answers[i] = &v
	}
	op := openness
	return &Profile{
		ID:                id,
		Topic:             topic,
		ScreeningComplete: true,
		Openness:          &op,
		Answers:           answers,
		Weights:           scoring.UniformWeights(),
		Slots:             slots,
		CreatedAt:         time.Now(),
	}
}

// profileN is a convenience for numbered test participants.
func profileN(n int, topic string, score, openness float64, slots ...string) *Profile {
	return eligibleProfile(fmt.Sprintf("user-%d", n), topic, score, openness, slots...)
}
