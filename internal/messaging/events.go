package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/counterpoint/match-service/internal/matching"
)

// MatchEvent is the JSON payload published on the per-participant match
// subjects. PartnerID is relative to the receiving participant.
type MatchEvent struct {
	MatchID         string     `json:"match_id"`
	PartnerID       string     `json:"partner_id"`
	Topic           string     `json:"topic"`
	OppositionScore float64    `json:"opposition_score"`
	Decision        string     `json:"decision"`
	Status          string     `json:"status"`
	ScheduledSlot   string     `json:"scheduled_slot,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
}

// PassCompletedEvent is the JSON payload published after every batch pass.
type PassCompletedEvent struct {
	StartedAt       time.Time `json:"started_at"`
	DurationSeconds float64   `json:"duration_seconds"`
	UsersProcessed  int       `json:"users_processed"`
	MatchesCreated  int       `json:"matches_created"`
	IdealMatches    int       `json:"ideal_matches"`
	TopicsProcessed int       `json:"topics_processed"`
}

// Publisher adapts the NATS client to the engine's Events interface. Each
// lifecycle event is published once per participant so the notification
// layer can address mail without joining against the store.
type Publisher struct {
	client *Client
}

// NewPublisher wraps the NATS client as an event publisher.
func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// MatchCreated publishes match.created.<id> to both participants.
func (p *Publisher) MatchCreated(m *matching.Match) error {
	return p.publishBoth(SubjectMatchCreated, m)
}

// MatchAccepted publishes match.accepted.<id> to both participants.
func (p *Publisher) MatchAccepted(m *matching.Match) error {
	return p.publishBoth(SubjectMatchAccepted, m)
}

// MatchRejected publishes match.rejected.<id> to both participants.
func (p *Publisher) MatchRejected(m *matching.Match) error {
	return p.publishBoth(SubjectMatchRejected, m)
}

// MatchExpired publishes match.expired.<id> to both participants.
func (p *Publisher) MatchExpired(m *matching.Match) error {
	return p.publishBoth(SubjectMatchExpired, m)
}

// PassCompleted publishes the pass summary.
func (p *Publisher) PassCompleted(stats *matching.PassStats) error {
	data, err := json.Marshal(PassCompletedEvent{
		StartedAt:       stats.StartedAt,
		DurationSeconds: stats.Duration.Seconds(),
		UsersProcessed:  stats.UsersProcessed,
		MatchesCreated:  stats.MatchesCreated,
		IdealMatches:    stats.IdealMatches,
		TopicsProcessed: stats.TopicsProcessed,
	})
	if err != nil {
		return fmt.Errorf("messaging: marshal pass event: %w", err)
	}
	return p.client.Publish(SubjectPassCompleted, data)
}

func (p *Publisher) publishBoth(subject string, m *matching.Match) error {
	for _, pid := range []string{m.ParticipantA, m.ParticipantB} {
		data, err := json.Marshal(MatchEvent{
			MatchID:         m.ID,
			PartnerID:       m.Partner(pid),
			Topic:           m.Topic,
			OppositionScore: m.OppositionScore,
			Decision:        string(m.Decision),
			Status:          string(m.Status),
			ScheduledSlot:   m.ScheduledSlot,
			ExpiresAt:       m.ExpiresAt,
		})
		if err != nil {
			return fmt.Errorf("messaging: marshal match event: %w", err)
		}
		if err := p.client.Publish(subject+"."+pid, data); err != nil {
			return err
		}
	}
	return nil
}
