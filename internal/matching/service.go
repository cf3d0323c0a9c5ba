package matching

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/counterpoint/match-service/internal/metrics"
	"github.com/counterpoint/match-service/internal/scoring"
)

// SchedulerConfig holds tunable parameters for the batch scheduler.
type SchedulerConfig struct {
	Interval   time.Duration // wake interval between batch passes
	MatchTTL   time.Duration // lifetime of a created match
	AutoAccept bool          // create matches directly accepted
}

// DefaultSchedulerConfig returns the production defaults: one pass per
// hour, matches live for 14 days.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:   time.Hour,
		MatchTTL:   14 * 24 * time.Hour,
		AutoAccept: true,
	}
}

// Scheduler is the periodic driver of the matching engine. Each cycle it
// expires stale matches, then runs one batch pass: eligible participants
// grouped by topic, greedily paired in a stable order, each successful
// pairing committed atomically before the next participant is considered.
//
// The deployment model assumes exactly one Scheduler instance; within a
// pass processing is sequential so the transient used set is visible to
// later iterations.
type Scheduler struct {
	cfg       SchedulerConfig
	store     Store
	pairer    *Pairer
	lifecycle *Lifecycle
	events    Events // optional
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewScheduler constructs the scheduler service. events may be nil.
func NewScheduler(cfg SchedulerConfig, store Store, pairer *Pairer, lifecycle *Lifecycle, events Events) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:       cfg,
		store:     store,
		pairer:    pairer,
		lifecycle: lifecycle,
		events:    events,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// Start launches the scheduler loop in a background goroutine.
func (s *Scheduler) Start() {
	go s.loop()
	log.Printf("[scheduler] started (interval=%s, match_ttl=%s, auto_accept=%v)",
		s.cfg.Interval, s.cfg.MatchTTL, s.cfg.AutoAccept)
}

// Stop signals the loop to exit and waits for the in-flight cycle to finish.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.done
	log.Println("[scheduler] stopped")
}

func (s *Scheduler) loop() {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.runCycle()
		}
	}
}

// runCycle is one scheduler wakeup: expiry sweep, then a batch pass.
func (s *Scheduler) runCycle() {
	if n, err := s.lifecycle.ExpireStale(s.ctx, time.Now().UTC()); err != nil {
		log.Printf("[scheduler] expiry sweep: %v", err)
	} else if n > 0 {
		log.Printf("[scheduler] expired %d stale matches", n)
	}

	if _, err := s.RunPass(s.ctx); err != nil {
		log.Printf("[scheduler] batch pass: %v", err)
	}
}

// RunPass executes one batch matching pass and returns its statistics.
// Per-participant failures are logged and isolated; only a failure to read
// the eligible pool aborts the pass.
func (s *Scheduler) RunPass(ctx context.Context) (*PassStats, error) {
	start := time.Now()
	stats := &PassStats{StartedAt: start.UTC()}

	pool, err := s.store.ListEligibleProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("scheduler: list eligible: %w", err)
	}
	stats.UsersProcessed = len(pool)
	metrics.EligibleParticipants.Set(float64(len(pool)))

	// Group by topic, re-verifying the full predicate set (the store only
	// filters the cheap flags).
	byTopic := make(map[string][]*Profile)
	for _, p := range pool {
		if err := CheckEligibility(p); err != nil {
			log.Printf("[scheduler] participant %s skipped: %v", p.ID, err)
			continue
		}
		byTopic[p.Topic] = append(byTopic[p.Topic], p)
	}
	stats.TopicsProcessed = len(byTopic)

	topics := make([]string, 0, len(byTopic))
	for t := range byTopic {
		topics = append(topics, t)
	}
	sort.Strings(topics)

	// used tracks participants paired within this pass so later iterations
	// cannot double-book them before their persisted flag is visible.
	used := make(map[string]bool)

	for _, topic := range topics {
		group := byTopic[topic]
		if len(group) < 2 {
			continue
		}

		for _, u := range group {
			if used[u.ID] || u.HasPartner {
				continue
			}

			candidates := make([]*Profile, 0, len(group)-1)
			for _, c := range group {
				if c.ID != u.ID && !used[c.ID] {
					candidates = append(candidates, c)
				}
			}

			proposal, counts := s.pairer.bestAmong(ctx, u, candidates)
			counts.addTo(stats)
			if proposal == nil {
				continue
			}

			m, err := s.lifecycle.Create(ctx, proposal.ParticipantID, proposal.PartnerID,
				proposal.OppositionScore, proposal.Decision, proposal.Slot)
			if err != nil {
				// Isolated: the store rolled the unit of work back, the
				// pass moves on to the next participant.
				log.Printf("[scheduler] create match %s-%s: %v",
					proposal.ParticipantID, proposal.PartnerID, err)
				stats.Errors++
				metrics.PassErrorsTotal.Inc()
				continue
			}

			used[u.ID] = true
			used[proposal.PartnerID] = true
			stats.MatchesCreated++
			if m.Decision == scoring.IdealMatch {
				stats.IdealMatches++
			}
			log.Printf("[scheduler] matched %s <-> %s topic=%s opposition=%.2f slot=%s",
				u.ID, proposal.PartnerID, topic, proposal.OppositionScore, proposal.Slot)
		}
	}

	stats.Duration = time.Since(start)
	metrics.PassesTotal.Inc()
	metrics.PassDuration.Observe(stats.Duration.Seconds())

	if err := s.store.RecordPass(ctx, stats); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("[scheduler] record pass: %v", err)
	}
	if s.events != nil {
		if err := s.events.PassCompleted(stats); err != nil {
			log.Printf("[scheduler] publish pass completed: %v", err)
		}
	}

	log.Printf("[scheduler] pass done: users=%d matches=%d ideal=%d topics=%d duration=%s",
		stats.UsersProcessed, stats.MatchesCreated, stats.IdealMatches,
		stats.TopicsProcessed, stats.Duration.Round(time.Millisecond))
	return stats, nil
}
