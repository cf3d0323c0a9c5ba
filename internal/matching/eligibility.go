package matching

// CheckEligibility verifies every predicate a participant must satisfy to
// enter a matching pass. A nil return means eligible; otherwise the first
// failing predicate's reason is returned (all reasons satisfy
// errors.Is(err, ErrNotEligible)).
func CheckEligibility(p *Profile) error {
	switch {
	case !p.ScreeningComplete:
		return ErrNotScreened
	case p.Extremist:
		return ErrExtremist
	case p.HasPartner:
		return ErrHasPartner
	case p.Topic == "":
		return ErrNoTopic
	case p.Openness == nil:
		return ErrNoOpenness
	case !p.Answers.Complete():
		return ErrIncompleteAnswers
	}
	return nil
}
