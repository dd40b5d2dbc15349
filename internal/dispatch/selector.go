package dispatch

import (
	"strings"

	"github.com/avvvet/chatbuddy/internal/models"
)

const genericPenalty = 5

var formatPriority = map[models.ResponseFormat]int{
	models.FormatCarousel:      10,
	models.FormatProductDetail: 9,
	models.FormatComparison:    8,
	models.FormatForm:          7,
	models.FormatMixed:         6,
	models.FormatText:          5,
	models.FormatQuickReplies:  4,
}

// Selector picks the best candidate of a turn.
type Selector struct {
	genericPhrases []string
}

func NewSelector(genericPhrases []string) *Selector {
	return &Selector{genericPhrases: genericPhrases}
}

// Score rates a candidate: format priority, plus one per carousel item,
// minus a penalty for generic boilerplate content.
func (s *Selector) Score(candidate *models.CandidateResponse) int {
	score, ok := formatPriority[candidate.Format]
	if !ok {
		score = 1
	}

	score += candidate.ItemCount()

	for _, phrase := range s.genericPhrases {
		if phrase != "" && strings.Contains(candidate.Content, phrase) {
			score -= genericPenalty
			break
		}
	}
	return score
}

// Select returns the highest scoring candidate. Ties go to the earliest
// candidate. A single candidate is returned as is; an empty list yields nil.
func (s *Selector) Select(candidates []*models.CandidateResponse) *models.CandidateResponse {
	switch len(candidates) {
	case 0:
		return nil
	case 1:
		return candidates[0]
	}

	best := candidates[0]
	bestScore := s.Score(best)
	for _, candidate := range candidates[1:] {
		if score := s.Score(candidate); score > bestScore {
			best, bestScore = candidate, score
		}
	}
	return best
}
