package matching

import (
	"context"
	"log"

	"github.com/counterpoint/match-service/internal/scoring"
)

// Pairer scans a participant's same-topic candidates and returns the best
// available partner: overlapping availability, an opposition score in the
// ideal band, and the highest composite compatibility. The scan is greedy
// and order-dependent; ties keep the first-encountered candidate.
type Pairer struct {
	store Store
	cache PairCache // optional
}

// NewPairer creates a Pairer over the given store. cache may be nil.
func NewPairer(store Store, cache PairCache) *Pairer {
	return &Pairer{store: store, cache: cache}
}

// scanCounts tallies why candidates dropped out of one scan.
type scanCounts struct {
	tooSimilar int
	tooExtreme int
	noOverlap  int
	cacheSkips int
}

func (c scanCounts) addTo(stats *PassStats) {
	stats.ExcludedTooSimilar += c.tooSimilar
	stats.ExcludedTooExtreme += c.tooExtreme
	stats.ExcludedNoOverlap += c.noOverlap
	stats.CacheSkips += c.cacheSkips
}

// FindBestMatch loads the participant and all eligible same-topic
// candidates and returns the best proposal, or (nil, nil) when no
// candidate survives the filters. The participant's own eligibility
// failures are returned as errors (ErrNotEligible reasons, ErrNotFound).
func (p *Pairer) FindBestMatch(ctx context.Context, participantID string) (*Proposal, error) {
	profile, err := p.store.GetProfile(ctx, participantID)
	if err != nil {
		return nil, err
	}
	if err := CheckEligibility(profile); err != nil {
		return nil, err
	}

	pool, err := p.store.ListEligibleProfiles(ctx)
	if err != nil {
		return nil, err
	}

	candidates := make([]*Profile, 0, len(pool))
	for _, c := range pool {
		if c.ID != profile.ID && c.Topic == profile.Topic {
			candidates = append(candidates, c)
		}
	}

	best, _ := p.bestAmong(ctx, profile, candidates)
	return best, nil
}

// bestAmong runs the candidate scan for one already-eligible participant
// against a pre-fetched candidate slice. Used by FindBestMatch and by the
// Scheduler within a pass (where the pool is fetched once per pass).
func (p *Pairer) bestAmong(ctx context.Context, u *Profile, candidates []*Profile) (*Proposal, scanCounts) {
	var best *Proposal
	var counts scanCounts

	for _, c := range candidates {
		if c.ID == u.ID {
			continue
		}
		if err := CheckEligibility(c); err != nil {
			log.Printf("[pairer] candidate %s skipped: %v", c.ID, err)
			continue
		}

		slot, ok := SlotOverlap(u.Slots, c.Slots)
		if !ok {
			counts.noOverlap++
			continue
		}

		// Known non-ideal pairs are skipped without rescoring. Cache
		// errors fail open.
		if p.cache != nil {
			if d, hit, err := p.cache.Get(ctx, u.ID, c.ID); err == nil && hit && d != scoring.IdealMatch {
				counts.cacheSkips++
				continue
			}
		}

		score, decision, err := scoring.Opposition(u.Answers, c.Answers, u.Weights)
		if err != nil {
			// Insufficient shared dimensions: treated as too similar,
			// never matched.
			log.Printf("[pairer] pair %s-%s: %v", u.ID, c.ID, err)
			counts.tooSimilar++
			p.remember(ctx, u.ID, c.ID, scoring.TooSimilar)
			continue
		}
		if decision != scoring.IdealMatch {
			if decision == scoring.TooSimilar {
				counts.tooSimilar++
			} else {
				counts.tooExtreme++
			}
			p.remember(ctx, u.ID, c.ID, decision)
			continue
		}

		compat := scoring.Compatibility(score, *u.Openness, *c.Openness)
		if best == nil || compat > best.Compatibility {
			best = &Proposal{
				ParticipantID:   u.ID,
				PartnerID:       c.ID,
				Topic:           u.Topic,
				OppositionScore: score,
				Decision:        decision,
				Slot:            slot,
				Compatibility:   compat,
			}
		}
	}

	return best, counts
}

// remember records a non-ideal outcome in the pair cache, best effort.
// Ideal outcomes are never cached: availability and eligibility change
// between passes.
func (p *Pairer) remember(ctx context.Context, a, b string, d scoring.Decision) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Put(ctx, a, b, d); err != nil {
		log.Printf("[pairer] pair cache put %s-%s: %v", a, b, err)
	}
}
