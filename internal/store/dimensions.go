package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/counterpoint/match-service/internal/matching"
	"github.com/counterpoint/match-service/internal/scoring"
)

// Dimension is one named opinion axis. The 5 attitude dimensions feed the
// openness screen; the 10 matching dimensions feed pair scoring. Static
// reference data, seeded by migration.
type Dimension struct {
	ID             int
	Name           string
	DisplayName    string
	QuestionType   string // "attitude" or "matching"
	QuestionNumber int
	Description    string
	DefaultWeight  float64
	Active         bool
}

// Response is one participant's stored answer on one dimension.
type Response struct {
	DimensionID    int
	Name           string
	DisplayName    string
	QuestionType   string
	QuestionNumber int
	Score          float64
	CustomWeight   *float64
	UpdatedAt      time.Time
}

// EffectiveWeight returns the custom weight when set, else the dimension
// default.
func (r *Response) EffectiveWeight(defaultWeight float64) float64 {
	if r.CustomWeight != nil {
		return *r.CustomWeight
	}
	return defaultWeight
}

// ResponseInput is one incoming questionnaire answer, addressed by
// dimension name.
type ResponseInput struct {
	Dimension string
	Score     float64
}

// QuestionnaireResult summarizes the recomputed screening signals after a
// submission.
type QuestionnaireResult struct {
	Saved         int
	Openness      *float64
	Extremist     bool
	OpennessLabel string
}

// ListDimensions returns the opinion dimensions in question order.
func (s *Store) ListDimensions(ctx context.Context, activeOnly bool) ([]*Dimension, error) {
	query := `
		SELECT id, name, display_name, question_type, question_number,
		       description, default_weight, is_active
		FROM opinion_dimensions`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY question_type, question_number`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: list dimensions: %w", err)
	}
	defer rows.Close()

	var dims []*Dimension
	for rows.Next() {
		var d Dimension
		if err := rows.Scan(&d.ID, &d.Name, &d.DisplayName, &d.QuestionType,
			&d.QuestionNumber, &d.Description, &d.DefaultWeight, &d.Active); err != nil {
			return nil, fmt.Errorf("store: scan dimension: %w", err)
		}
		dims = append(dims, &d)
	}
	return dims, rows.Err()
}

// ListResponses returns a participant's stored answers with their
// dimension metadata, in question order.
func (s *Store) ListResponses(ctx context.Context, participantID string) ([]*Response, error) {
	const query = `
		SELECT r.dimension_id, d.name, d.display_name, d.question_type,
		       d.question_number, r.score, r.custom_weight, r.updated_at
		FROM opinion_responses r
		JOIN opinion_dimensions d ON d.id = r.dimension_id
		WHERE r.participant_id = $1
		ORDER BY d.question_type, d.question_number`

	rows, err := s.db.QueryContext(ctx, query, participantID)
	if err != nil {
		return nil, fmt.Errorf("store: list responses: %w", err)
	}
	defer rows.Close()

	var responses []*Response
	for rows.Next() {
		var (
			r      Response
			weight sql.NullFloat64
		)
		if err := rows.Scan(&r.DimensionID, &r.Name, &r.DisplayName, &r.QuestionType,
			&r.QuestionNumber, &r.Score, &weight, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan response: %w", err)
		}
		if weight.Valid {
			w := weight.Float64
			r.CustomWeight = &w
		}
		responses = append(responses, &r)
	}
	return responses, rows.Err()
}

// SaveResponses upserts questionnaire answers for a participant and
// recomputes the derived openness score and extremist flag from the full
// stored attitude set. Answers addressing unknown dimensions or falling
// outside the -2..+2 scale are rejected before anything is written.
func (s *Store) SaveResponses(ctx context.Context, participantID string, inputs []ResponseInput) (*QuestionnaireResult, error) {
	if _, err := s.GetProfile(ctx, participantID); err != nil {
		return nil, err
	}

	dims, err := s.ListDimensions(ctx, true)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]*Dimension, len(dims))
	for _, d := range dims {
		byName[d.Name] = d
	}

	for _, in := range inputs {
		if _, ok := byName[in.Dimension]; !ok {
			return nil, fmt.Errorf("store: unknown dimension %q", in.Dimension)
		}
		if in.Score < -2 || in.Score > 2 {
			return nil, fmt.Errorf("store: score %.2f for %q outside [-2, 2]", in.Score, in.Dimension)
		}
	}

	result := &QuestionnaireResult{}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		const upsert = `
			INSERT INTO opinion_responses (participant_id, dimension_id, score, updated_at)
			VALUES ($1, $2, $3, NOW())
			ON CONFLICT (participant_id, dimension_id)
			DO UPDATE SET score = EXCLUDED.score, updated_at = NOW()`

		for _, in := range inputs {
			d := byName[in.Dimension]
			if _, err := tx.ExecContext(ctx, upsert, participantID, d.ID, in.Score); err != nil {
				return fmt.Errorf("store: upsert response %q: %w", in.Dimension, err)
			}
			result.Saved++
		}

		const attitudes = `
			SELECT r.score
			FROM opinion_responses r
			JOIN opinion_dimensions d ON d.id = r.dimension_id
			WHERE r.participant_id = $1 AND d.question_type = 'attitude' AND d.is_active
			ORDER BY d.question_number`

		rows, err := tx.QueryContext(ctx, attitudes, participantID)
		if err != nil {
			return fmt.Errorf("store: load attitude answers: %w", err)
		}
		defer rows.Close()

		var scores []float64
		for rows.Next() {
			var v float64
			if err := rows.Scan(&v); err != nil {
				return fmt.Errorf("store: scan attitude answer: %w", err)
			}
			scores = append(scores, v)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("store: iterate attitude answers: %w", err)
		}

		openness, ok := scoring.OpennessScore(scores)
		if !ok {
			return nil
		}

		result.Openness = &openness
		result.Extremist = scoring.IsExtremist(openness)
		result.OpennessLabel = scoring.OpennessCategory(openness)

		const update = `
			UPDATE participants
			SET openness_score = $2, is_extremist = $3
			WHERE id = $1`
		if _, err := tx.ExecContext(ctx, update, participantID, openness, result.Extremist); err != nil {
			return fmt.Errorf("store: update screening signals: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// IncompleteParticipant identifies an otherwise-eligible participant whose
// matching answers are incomplete (the diagnostics view).
type IncompleteParticipant struct {
	ID          string
	Email       string
	Topic       string
	AnswerCount int
}

// ListIncompleteEligible returns participants passing the store-side
// eligibility flags but holding fewer than the 10 required matching
// answers. These are the users a pass will silently skip.
func (s *Store) ListIncompleteEligible(ctx context.Context) ([]*IncompleteParticipant, error) {
	const query = `
		SELECT p.id, p.email, COALESCE(p.topic, ''), COUNT(r.id) AS answers
		FROM participants p
		LEFT JOIN opinion_responses r ON r.participant_id = p.id
			AND r.dimension_id IN (
				SELECT id FROM opinion_dimensions
				WHERE question_type = 'matching' AND is_active
			)
		WHERE p.screening_complete
		  AND NOT p.is_extremist
		  AND NOT p.has_partner
		  AND p.topic IS NOT NULL
		  AND p.openness_score IS NOT NULL
		GROUP BY p.id, p.email, p.topic
		HAVING COUNT(r.id) < $1
		ORDER BY p.created_at`

	rows, err := s.db.QueryContext(ctx, query, scoring.NumMatchingDimensions)
	if err != nil {
		return nil, fmt.Errorf("store: list incomplete: %w", err)
	}
	defer rows.Close()

	var out []*IncompleteParticipant
	for rows.Next() {
		var ip IncompleteParticipant
		if err := rows.Scan(&ip.ID, &ip.Email, &ip.Topic, &ip.AnswerCount); err != nil {
			return nil, fmt.Errorf("store: scan incomplete: %w", err)
		}
		out = append(out, &ip)
	}
	return out, rows.Err()
}

var _ matching.Store = (*Store)(nil)
