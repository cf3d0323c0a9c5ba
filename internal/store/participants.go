package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/counterpoint/match-service/internal/matching"
	"github.com/counterpoint/match-service/internal/scoring"
)

// Participant is the full persisted participant record. Opinion answers
// live in opinion_responses and are joined into matching.Profile on read.
type Participant struct {
	ID                string
	Email             string
	DisplayName       string
	Topic             string // "" when unset
	ScreeningComplete bool
	Extremist         bool
	Openness          *float64
	HasPartner        bool
	PartnerID         string // "" when unset
	TimeSlots         [matching.MaxTimeSlots]string
	CreatedAt         time.Time
}

// CreateParticipant inserts a new participant record.
func (s *Store) CreateParticipant(ctx context.Context, p *Participant) error {
	const query = `
		INSERT INTO participants
			(id, email, display_name, topic, screening_complete, is_extremist,
			 openness_score, has_partner, partner_id,
			 time_slot_1, time_slot_2, time_slot_3)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.Email, p.DisplayName,
		nullString(p.Topic), p.ScreeningComplete, p.Extremist,
		nullFloat(p.Openness), p.HasPartner, nullString(p.PartnerID),
		nullString(p.TimeSlots[0]), nullString(p.TimeSlots[1]), nullString(p.TimeSlots[2]),
	)
	if err != nil {
		return fmt.Errorf("store: insert participant: %w", err)
	}
	return nil
}

// SetTimeSlots replaces a participant's declared availability options.
func (s *Store) SetTimeSlots(ctx context.Context, participantID string, slots [matching.MaxTimeSlots]string) error {
	const query = `
		UPDATE participants
		SET time_slot_1 = $2, time_slot_2 = $3, time_slot_3 = $4
		WHERE id = $1`

	res, err := s.db.ExecContext(ctx, query, participantID,
		nullString(slots[0]), nullString(slots[1]), nullString(slots[2]))
	if err != nil {
		return fmt.Errorf("store: set time slots: %w", err)
	}
	return requireRow(res)
}

// GetProfile loads one participant's matching profile, including their
// matching answers and the active dimension weights.
func (s *Store) GetProfile(ctx context.Context, id string) (*matching.Profile, error) {
	const query = `
		SELECT id, topic, screening_complete, is_extremist, openness_score,
		       has_partner, partner_id, time_slot_1, time_slot_2, time_slot_3,
		       created_at
		FROM participants
		WHERE id = $1`

	profile, err := scanProfile(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, matching.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get profile %s: %w", id, err)
	}

	weights, err := s.matchingWeights(ctx)
	if err != nil {
		return nil, err
	}
	profile.Weights = weights

	const answersQuery = `
		SELECT d.question_number, r.score
		FROM opinion_responses r
		JOIN opinion_dimensions d ON d.id = r.dimension_id
		WHERE r.participant_id = $1 AND d.question_type = 'matching' AND d.is_active`

	rows, err := s.db.QueryContext(ctx, answersQuery, id)
	if err != nil {
		return nil, fmt.Errorf("store: load answers %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var num int
		var score float64
		if err := rows.Scan(&num, &score); err != nil {
			return nil, fmt.Errorf("store: scan answer: %w", err)
		}
		if num >= 1 && num <= scoring.NumMatchingDimensions {
			v := score
			profile.Answers[num-1] = &v
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate answers: %w", err)
	}

	return profile, nil
}

// ListEligibleProfiles returns the profiles passing the store-side
// eligibility flags, ordered by registration time for a stable pass order.
// Answer completeness is the engine's concern.
func (s *Store) ListEligibleProfiles(ctx context.Context) ([]*matching.Profile, error) {
	const query = `
		SELECT id, topic, screening_complete, is_extremist, openness_score,
		       has_partner, partner_id, time_slot_1, time_slot_2, time_slot_3,
		       created_at
		FROM participants
		WHERE screening_complete
		  AND NOT is_extremist
		  AND NOT has_partner
		  AND topic IS NOT NULL
		  AND openness_score IS NOT NULL
		ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: list eligible: %w", err)
	}
	defer rows.Close()

	var profiles []*matching.Profile
	byID := make(map[string]*matching.Profile)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan eligible: %w", err)
		}
		profiles = append(profiles, p)
		byID[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate eligible: %w", err)
	}
	if len(profiles) == 0 {
		return nil, nil
	}

	weights, err := s.matchingWeights(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range profiles {
		p.Weights = weights
	}

	const answersQuery = `
		SELECT r.participant_id, d.question_number, r.score
		FROM opinion_responses r
		JOIN opinion_dimensions d ON d.id = r.dimension_id
		JOIN participants p ON p.id = r.participant_id
		WHERE d.question_type = 'matching' AND d.is_active
		  AND p.screening_complete
		  AND NOT p.is_extremist
		  AND NOT p.has_partner
		  AND p.topic IS NOT NULL
		  AND p.openness_score IS NOT NULL`

	answerRows, err := s.db.QueryContext(ctx, answersQuery)
	if err != nil {
		return nil, fmt.Errorf("store: load pool answers: %w", err)
	}
	defer answerRows.Close()

	for answerRows.Next() {
		var pid string
		var num int
		var score float64
		if err := answerRows.Scan(&pid, &num, &score); err != nil {
			return nil, fmt.Errorf("store: scan pool answer: %w", err)
		}
		p, ok := byID[pid]
		if !ok || num < 1 || num > scoring.NumMatchingDimensions {
			continue
		}
		v := score
		p.Answers[num-1] = &v
	}
	if err := answerRows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate pool answers: %w", err)
	}

	return profiles, nil
}

// matchingWeights loads the default weight vector for the 10 active
// matching dimensions, indexed by question_number-1.
func (s *Store) matchingWeights(ctx context.Context) (scoring.Weights, error) {
	const query = `
		SELECT question_number, default_weight
		FROM opinion_dimensions
		WHERE question_type = 'matching' AND is_active`

	weights := scoring.UniformWeights()
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return weights, fmt.Errorf("store: load weights: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var num int
		var w float64
		if err := rows.Scan(&num, &w); err != nil {
			return weights, fmt.Errorf("store: scan weight: %w", err)
		}
		if num >= 1 && num <= scoring.NumMatchingDimensions {
			weights[num-1] = w
		}
	}
	if err := rows.Err(); err != nil {
		return weights, fmt.Errorf("store: iterate weights: %w", err)
	}
	return weights, nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*matching.Profile, error) {
	var (
		p         matching.Profile
		topic     sql.NullString
		openness  sql.NullFloat64
		partnerID sql.NullString
		slots     [matching.MaxTimeSlots]sql.NullString
	)

	err := row.Scan(&p.ID, &topic, &p.ScreeningComplete, &p.Extremist, &openness,
		&p.HasPartner, &partnerID, &slots[0], &slots[1], &slots[2], &p.CreatedAt)
	if err != nil {
		return nil, err
	}

	p.Topic = topic.String
	p.PartnerID = partnerID.String
	if openness.Valid {
		v := openness.Float64
		p.Openness = &v
	}
	for _, s := range slots {
		if s.Valid && s.String != "" {
			p.Slots = append(p.Slots, s.String)
		}
	}
	return &p, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	}
	if n == 0 {
		return matching.ErrNotFound
	}
	return nil
}
