package matching

import "errors"

// Operation errors surfaced to callers of the engine.
var (
	ErrNotFound        = errors.New("matching: not found")
	ErrUnauthorized    = errors.New("matching: participant is not party to the match")
	ErrSelfMatch       = errors.New("matching: participant cannot be matched with themselves")
	ErrAlreadyResolved = errors.New("matching: match already resolved")
)

// Eligibility failure reasons. All satisfy errors.Is(err, ErrNotEligible).
var (
	ErrNotEligible = errors.New("matching: participant not eligible")

	ErrNotScreened       = eligibilityError("screening not complete")
	ErrExtremist         = eligibilityError("flagged extremist")
	ErrHasPartner        = eligibilityError("already has a partner")
	ErrNoTopic           = eligibilityError("no topic selected")
	ErrNoOpenness        = eligibilityError("openness score not computed")
	ErrIncompleteAnswers = eligibilityError("incomplete matching answers")
)

type eligibilityError string

func (e eligibilityError) Error() string { return "matching: not eligible: " + string(e) }

// Is lets every eligibility reason match ErrNotEligible.
func (e eligibilityError) Is(target error) bool { return target == ErrNotEligible }
