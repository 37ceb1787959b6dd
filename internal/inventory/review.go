package inventory

import (
	"time"

	"github.com/freshkeep/freshkeep/internal/vision"
)

// ReviewSession holds recognition candidates awaiting user confirmation.
// Sessions are transient: nothing in them touches the store until the
// user accepts, and a cancelled session vanishes without a trace. The
// ids minted here identify rows in the review dialog only; accepted
// items always receive fresh inventory ids.
type ReviewSession struct {
	ID         string             `json:"id"`
	Candidates []*ReviewCandidate `json:"candidates"`
	Image      []byte             `json:"-"`
	CreatedAt  time.Time          `json:"created_at"`
}

// ReviewCandidate is one recognized item in a review session
type ReviewCandidate struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// newReviewSession builds a session from recognition output, guessing a
// category for each candidate from its name.
func newReviewSession(id string, candidates []vision.Candidate, png []byte, idGen IDGenerator, now time.Time) *ReviewSession {
	session := &ReviewSession{
		ID:         id,
		Candidates: make([]*ReviewCandidate, 0, len(candidates)),
		Image:      png,
		CreatedAt:  now,
	}
	for _, candidate := range candidates {
		session.Candidates = append(session.Candidates, &ReviewCandidate{
			ID:         idGen.Generate(),
			Name:       candidate.Name,
			Category:   GuessCategory(candidate.Name),
			Confidence: candidate.Confidence,
		})
	}
	return session
}
