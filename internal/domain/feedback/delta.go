// Package feedback turns recruiter star ratings into reward observations and
// policy updates.
package feedback

import (
	"fmt"

	"github.com/okian/talentloop/internal/domain/model"
)

// Star rating bounds.
const (
	MinStars = 1
	MaxStars = 5
)

// pointsPerStar spreads the 1..5 star range over 0..100.
const pointsPerStar = (model.MaxScore - model.MinScore) / (MaxStars - MinStars)

// RecruiterScore maps stars {1..5} onto {0,25,50,75,100}.
func RecruiterScore(stars int) (int, error) {
	if stars < MinStars || stars > MaxStars {
		return 0, fmt.Errorf("%w: recruiter_stars must be between %d and %d, got %d", ErrInvalidInput, MinStars, MaxStars, stars)
	}
	return (stars - MinStars) * pointsPerStar, nil
}

// ComputeDelta returns the recruiter score for stars and its difference from aiScore.
func ComputeDelta(aiScore, stars int) (recruiterScore, delta int, err error) {
	recruiterScore, err = RecruiterScore(stars)
	if err != nil {
		return 0, 0, err
	}
	return recruiterScore, recruiterScore - aiScore, nil
}
