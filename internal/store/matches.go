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

// CreateMatch persists the match and flips both participants'
// has_partner/partner_id in one transaction. A missing participant or a
// self-match surfaces as an error and nothing is written.
func (s *Store) CreateMatch(ctx context.Context, m *matching.Match) error {
	if m.ParticipantA == m.ParticipantB {
		return matching.ErrSelfMatch
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		const insert = `
			INSERT INTO matches
				(id, participant_a, participant_b, topic, opposition_score,
				 decision, status, scheduled_slot, created_at, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

		_, err := tx.ExecContext(ctx, insert,
			m.ID, m.ParticipantA, m.ParticipantB, m.Topic, m.OppositionScore,
			string(m.Decision), string(m.Status), nullString(m.ScheduledSlot),
			m.CreatedAt, m.ExpiresAt,
		)
		if err != nil {
			return fmt.Errorf("store: insert match: %w", err)
		}

		if err := setPartner(ctx, tx, m.ParticipantA, m.ParticipantB); err != nil {
			return err
		}
		return setPartner(ctx, tx, m.ParticipantB, m.ParticipantA)
	})
}

// GetMatch returns a match by id, or matching.ErrNotFound.
func (s *Store) GetMatch(ctx context.Context, id string) (*matching.Match, error) {
	const query = `
		SELECT id, participant_a, participant_b, topic, opposition_score,
		       decision, status, scheduled_slot, created_at, expires_at
		FROM matches
		WHERE id = $1`

	m, err := scanMatch(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, matching.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get match %s: %w", id, err)
	}
	return m, nil
}

// ListMatchesForParticipant returns the participant's matches newest
// first, optionally filtered by status.
func (s *Store) ListMatchesForParticipant(ctx context.Context, participantID string, status matching.Status) ([]*matching.Match, error) {
	query := `
		SELECT id, participant_a, participant_b, topic, opposition_score,
		       decision, status, scheduled_slot, created_at, expires_at
		FROM matches
		WHERE (participant_a = $1 OR participant_b = $1)`
	args := []any{participantID}

	if status != "" {
		query += ` AND status = $2`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list matches for %s: %w", participantID, err)
	}
	defer rows.Close()

	var matches []*matching.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate matches: %w", err)
	}
	return matches, nil
}

// AcceptMatch marks the match accepted and sets mutual partner flags on
// both participants in one transaction.
func (s *Store) AcceptMatch(ctx context.Context, matchID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		m, err := lockMatch(ctx, tx, matchID)
		if err != nil {
			return err
		}

		const update = `UPDATE matches SET status = 'accepted' WHERE id = $1`
		if _, err := tx.ExecContext(ctx, update, matchID); err != nil {
			return fmt.Errorf("store: accept match: %w", err)
		}

		if err := setPartner(ctx, tx, m.ParticipantA, m.ParticipantB); err != nil {
			return err
		}
		return setPartner(ctx, tx, m.ParticipantB, m.ParticipantA)
	})
}

// RejectMatch marks the match rejected and releases both participants back
// into the eligible pool in one transaction.
func (s *Store) RejectMatch(ctx context.Context, matchID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		m, err := lockMatch(ctx, tx, matchID)
		if err != nil {
			return err
		}

		const update = `UPDATE matches SET status = 'rejected' WHERE id = $1`
		if _, err := tx.ExecContext(ctx, update, matchID); err != nil {
			return fmt.Errorf("store: reject match: %w", err)
		}

		return releasePair(ctx, tx, m)
	})
}

// ExpireStaleMatches transitions pending matches past their deadline to
// expired, releases their participants, and returns the transitioned
// matches.
func (s *Store) ExpireStaleMatches(ctx context.Context, now time.Time) ([]*matching.Match, error) {
	var expired []*matching.Match

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		const query = `
			SELECT id, participant_a, participant_b, topic, opposition_score,
			       decision, status, scheduled_slot, created_at, expires_at
			FROM matches
			WHERE status = 'pending' AND expires_at IS NOT NULL AND expires_at < $1
			ORDER BY expires_at
			FOR UPDATE`

		rows, err := tx.QueryContext(ctx, query, now)
		if err != nil {
			return fmt.Errorf("store: select stale matches: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			m, err := scanMatch(rows)
			if err != nil {
				return fmt.Errorf("store: scan stale match: %w", err)
			}
			expired = append(expired, m)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("store: iterate stale matches: %w", err)
		}

		for _, m := range expired {
			const update = `UPDATE matches SET status = 'expired' WHERE id = $1`
			if _, err := tx.ExecContext(ctx, update, m.ID); err != nil {
				return fmt.Errorf("store: expire match %s: %w", m.ID, err)
			}
			if err := releasePair(ctx, tx, m); err != nil {
				return err
			}
			m.Status = matching.StatusExpired
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}

// lockMatch loads a match row inside a transaction with a row lock.
func lockMatch(ctx context.Context, tx *sql.Tx, matchID string) (*matching.Match, error) {
	const query = `
		SELECT id, participant_a, participant_b, topic, opposition_score,
		       decision, status, scheduled_slot, created_at, expires_at
		FROM matches
		WHERE id = $1
		FOR UPDATE`

	m, err := scanMatch(tx.QueryRowContext(ctx, query, matchID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, matching.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: lock match %s: %w", matchID, err)
	}
	return m, nil
}

func setPartner(ctx context.Context, tx *sql.Tx, participantID, partnerID string) error {
	const update = `
		UPDATE participants
		SET has_partner = TRUE, partner_id = $2
		WHERE id = $1`

	res, err := tx.ExecContext(ctx, update, participantID, partnerID)
	if err != nil {
		return fmt.Errorf("store: set partner %s: %w", participantID, err)
	}
	return requireRow(res)
}

// releasePair clears has_partner/partner_id on both sides of a match. The
// partner_id guard keeps a release from touching a participant whose
// current partner is from a different match.
func releasePair(ctx context.Context, tx *sql.Tx, m *matching.Match) error {
	const update = `
		UPDATE participants
		SET has_partner = FALSE, partner_id = NULL
		WHERE id = $1 AND partner_id = $2`

	if _, err := tx.ExecContext(ctx, update, m.ParticipantA, m.ParticipantB); err != nil {
		return fmt.Errorf("store: release %s: %w", m.ParticipantA, err)
	}
	if _, err := tx.ExecContext(ctx, update, m.ParticipantB, m.ParticipantA); err != nil {
		return fmt.Errorf("store: release %s: %w", m.ParticipantB, err)
	}
	return nil
}

func scanMatch(row rowScanner) (*matching.Match, error) {
	var (
		m        matching.Match
		decision string
		status   string
		slot     sql.NullString
		expires  sql.NullTime
	)

	err := row.Scan(&m.ID, &m.ParticipantA, &m.ParticipantB, &m.Topic,
		&m.OppositionScore, &decision, &status, &slot, &m.CreatedAt, &expires)
	if err != nil {
		return nil, err
	}

	m.Decision = scoring.Decision(decision)
	m.Status = matching.Status(status)
	m.ScheduledSlot = slot.String
	if expires.Valid {
		t := expires.Time
		m.ExpiresAt = &t
	}
	return &m, nil
}
