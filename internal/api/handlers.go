package api

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/counterpoint/match-service/internal/matching"
	"github.com/counterpoint/match-service/internal/ratelimit"
	"github.com/counterpoint/match-service/internal/scoring"
	"github.com/counterpoint/match-service/internal/store"
)

type dimensionJSON struct {
	Name           string  `json:"name"`
	DisplayName    string  `json:"display_name"`
	QuestionType   string  `json:"question_type"`
	QuestionNumber int     `json:"question_number"`
	Description    string  `json:"description,omitempty"`
	DefaultWeight  float64 `json:"default_weight"`
}

func (s *Server) handleListDimensions(w http.ResponseWriter, r *http.Request) {
	dims, err := s.dir.ListDimensions(r.Context(), true)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]dimensionJSON, 0, len(dims))
	for _, d := range dims {
		out = append(out, dimensionJSON{
			Name:           d.Name,
			DisplayName:    d.DisplayName,
			QuestionType:   d.QuestionType,
			QuestionNumber: d.QuestionNumber,
			Description:    d.Description,
			DefaultWeight:  d.DefaultWeight,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type opinionJSON struct {
	Dimension      string    `json:"dimension"`
	DisplayName    string    `json:"display_name"`
	QuestionType   string    `json:"question_type"`
	QuestionNumber int       `json:"question_number"`
	Score          float64   `json:"score"`
	Weight         float64   `json:"weight"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (s *Server) handleGetOpinions(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.dir.GetProfile(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	responses, err := s.dir.ListResponses(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	dims, err := s.dir.ListDimensions(r.Context(), true)
	if err != nil {
		writeError(w, err)
		return
	}
	defaults := make(map[int]float64, len(dims))
	for _, d := range dims {
		defaults[d.ID] = d.DefaultWeight
	}

	out := make([]opinionJSON, 0, len(responses))
	for _, resp := range responses {
		out = append(out, opinionJSON{
			Dimension:      resp.Name,
			DisplayName:    resp.DisplayName,
			QuestionType:   resp.QuestionType,
			QuestionNumber: resp.QuestionNumber,
			Score:          resp.Score,
			Weight:         resp.EffectiveWeight(defaults[resp.DimensionID]),
			UpdatedAt:      resp.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type saveOpinionsRequest struct {
	Responses []struct {
		Dimension string  `json:"dimension"`
		Score     float64 `json:"score"`
	} `json:"responses"`
}

func (s *Server) handleSaveOpinions(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.allow(r.Context(), w, id, ratelimit.RuleOpinions) {
		return
	}

	var req saveOpinionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if len(req.Responses) == 0 {
		badRequest(w, "no responses supplied")
		return
	}

	inputs := make([]store.ResponseInput, 0, len(req.Responses))
	for _, in := range req.Responses {
		inputs = append(inputs, store.ResponseInput{Dimension: in.Dimension, Score: in.Score})
	}

	result, err := s.dir.SaveResponses(r.Context(), id, inputs)
	if err != nil {
		writeError(w, err)
		return
	}

	// Cached pair evaluations are stale once the answers change. Drop them
	// so the next pass rescoring uses the new responses; failures here do
	// not fail the save.
	if s.cache != nil {
		if err := s.cache.Invalidate(r.Context(), id); err != nil {
			log.Printf("[api] pair cache invalidate for %s: %v", id, err)
		}
	}

	writeJSON(w, http.StatusOK, struct {
		Saved         int      `json:"saved"`
		OpennessScore *float64 `json:"openness_score"`
		IsExtremist   bool     `json:"is_extremist"`
		OpennessLabel string   `json:"openness_label,omitempty"`
	}{
		Saved:         result.Saved,
		OpennessScore: result.Openness,
		IsExtremist:   result.Extremist,
		OpennessLabel: result.OpennessLabel,
	})
}

type matchJSON struct {
	ID              string     `json:"id"`
	ParticipantA    string     `json:"participant_a"`
	ParticipantB    string     `json:"participant_b"`
	Topic           string     `json:"topic"`
	OppositionScore float64    `json:"opposition_score"`
	Decision        string     `json:"decision"`
	Status          string     `json:"status"`
	ScheduledSlot   string     `json:"scheduled_slot,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
}

func toMatchJSON(m *matching.Match) matchJSON {
	return matchJSON{
		ID:              m.ID,
		ParticipantA:    m.ParticipantA,
		ParticipantB:    m.ParticipantB,
		Topic:           m.Topic,
		OppositionScore: m.OppositionScore,
		Decision:        string(m.Decision),
		Status:          string(m.Status),
		ScheduledSlot:   m.ScheduledSlot,
		CreatedAt:       m.CreatedAt,
		ExpiresAt:       m.ExpiresAt,
	}
}

func (s *Server) handleListMatches(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.dir.GetProfile(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	status := matching.Status(r.URL.Query().Get("status"))
	switch status {
	case "", matching.StatusPending, matching.StatusAccepted, matching.StatusRejected, matching.StatusExpired:
	default:
		badRequest(w, "unknown status filter")
		return
	}

	matches, err := s.dir.ListMatchesForParticipant(r.Context(), id, status)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]matchJSON, 0, len(matches))
	for _, m := range matches {
		out = append(out, toMatchJSON(m))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleBestMatch(w http.ResponseWriter, r *http.Request) {
	proposal, err := s.pairer.FindBestMatch(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if proposal == nil {
		writeJSON(w, http.StatusOK, struct {
			MatchFound bool `json:"match_found"`
		}{false})
		return
	}

	writeJSON(w, http.StatusOK, struct {
		MatchFound      bool    `json:"match_found"`
		PartnerID       string  `json:"partner_id"`
		Topic           string  `json:"topic"`
		OppositionScore float64 `json:"opposition_score"`
		Decision        string  `json:"decision"`
		Slot            string  `json:"slot"`
		Compatibility   float64 `json:"compatibility"`
	}{
		MatchFound:      true,
		PartnerID:       proposal.PartnerID,
		Topic:           proposal.Topic,
		OppositionScore: proposal.OppositionScore,
		Decision:        string(proposal.Decision),
		Slot:            proposal.Slot,
		Compatibility:   proposal.Compatibility,
	})
}

type matchActionRequest struct {
	ParticipantID string `json:"participant_id"`
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	s.handleMatchAction(w, r, s.lifecycle.Accept, matching.StatusAccepted)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	s.handleMatchAction(w, r, s.lifecycle.Reject, matching.StatusRejected)
}

func (s *Server) handleMatchAction(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, matchID, actorID string) error, result matching.Status) {
	var req matchActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if req.ParticipantID == "" {
		badRequest(w, "participant_id is required")
		return
	}

	if err := action(r.Context(), r.PathValue("id"), req.ParticipantID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
	}{string(result)})
}

func (s *Server) handleCompatibility(w http.ResponseWriter, r *http.Request) {
	aID := r.URL.Query().Get("a")
	bID := r.URL.Query().Get("b")
	if aID == "" || bID == "" {
		badRequest(w, "query parameters a and b are required")
		return
	}
	if aID == bID {
		writeError(w, matching.ErrSelfMatch)
		return
	}

	a, err := s.dir.GetProfile(r.Context(), aID)
	if err != nil {
		writeError(w, err)
		return
	}
	b, err := s.dir.GetProfile(r.Context(), bID)
	if err != nil {
		writeError(w, err)
		return
	}

	score, decision, err := scoring.Opposition(a.Answers, b.Answers, a.Weights)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	resp := struct {
		OppositionScore float64  `json:"opposition_score"`
		Decision        string   `json:"decision"`
		Compatibility   *float64 `json:"compatibility,omitempty"`
		SlotOverlap     string   `json:"slot_overlap,omitempty"`
	}{
		OppositionScore: score,
		Decision:        string(decision),
	}
	if a.Openness != nil && b.Openness != nil {
		compat := scoring.Compatibility(score, *a.Openness, *b.Openness)
		resp.Compatibility = &compat
	}
	if slot, ok := matching.SlotOverlap(a.Slots, b.Slots); ok {
		resp.SlotOverlap = slot
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListPasses(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	passes, err := s.dir.ListRecentPasses(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, passes)
}

func (s *Server) handleListIncomplete(w http.ResponseWriter, r *http.Request) {
	incomplete, err := s.dir.ListIncompleteEligible(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, incomplete)
}

func (s *Server) handleRunPass(w http.ResponseWriter, r *http.Request) {
	if !s.allow(r.Context(), w, clientHost(r), ratelimit.RuleRunPass) {
		return
	}

	stats, err := s.scheduler.RunPass(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// allow applies the rule when a limiter is configured, writing the 429
// itself on refusal. A nil limiter admits everything.
func (s *Server) allow(ctx context.Context, w http.ResponseWriter, identifier string, rule ratelimit.Rule) bool {
	if s.limiter == nil {
		return true
	}
	ok, _ := s.limiter.Allow(ctx, identifier, rule)
	if !ok {
		rateLimited(w)
	}
	return ok
}

// clientHost extracts the caller's host for rate-limit bucketing.
func clientHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
