package store

import (
	"context"
	"fmt"
	"time"

	"github.com/counterpoint/match-service/internal/matching"
)

// RecordPass persists one pass summary row for operational history.
func (s *Store) RecordPass(ctx context.Context, stats *matching.PassStats) error {
	const query = `
		INSERT INTO matching_passes (
			started_at, duration_seconds, users_processed, matches_created,
			ideal_matches, topics_processed, excluded_too_similar,
			excluded_too_extreme, excluded_no_overlap, cache_skips, errors
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.db.ExecContext(ctx, query,
		stats.StartedAt,
		stats.Duration.Seconds(),
		stats.UsersProcessed,
		stats.MatchesCreated,
		stats.IdealMatches,
		stats.TopicsProcessed,
		stats.ExcludedTooSimilar,
		stats.ExcludedTooExtreme,
		stats.ExcludedNoOverlap,
		stats.CacheSkips,
		stats.Errors,
	)
	if err != nil {
		return fmt.Errorf("store: record pass: %w", err)
	}
	return nil
}

// ListRecentPasses returns the latest pass summaries, newest first.
func (s *Store) ListRecentPasses(ctx context.Context, limit int) ([]*matching.PassStats, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `
		SELECT started_at, duration_seconds, users_processed, matches_created,
		       ideal_matches, topics_processed, excluded_too_similar,
		       excluded_too_extreme, excluded_no_overlap, cache_skips, errors
		FROM matching_passes
		ORDER BY started_at DESC
		LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list passes: %w", err)
	}
	defer rows.Close()

	var passes []*matching.PassStats
	for rows.Next() {
		var (
			st      matching.PassStats
			seconds float64
		)
		if err := rows.Scan(&st.StartedAt, &seconds, &st.UsersProcessed,
			&st.MatchesCreated, &st.IdealMatches, &st.TopicsProcessed,
			&st.ExcludedTooSimilar, &st.ExcludedTooExtreme,
			&st.ExcludedNoOverlap, &st.CacheSkips, &st.Errors); err != nil {
			return nil, fmt.Errorf("store: scan pass: %w", err)
		}
		st.Duration = time.Duration(seconds * float64(time.Second))
		passes = append(passes, &st)
	}
	return passes, rows.Err()
}
