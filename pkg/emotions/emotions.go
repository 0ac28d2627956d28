// Package emotions turns per-category facial expression scores from an
// external classifier into a reading with a dominant category.
package emotions

import (
	"context"
	"fmt"
	"time"
)

// Category is one of the seven expression classes.
type Category string

// The seven categories in canonical order.
const (
	Happy     Category = "happy"
	Sad       Category = "sad"
	Angry     Category = "angry"
	Fearful   Category = "fearful"
	Disgusted Category = "disgusted"
	Surprised Category = "surprised"
	Neutral   Category = "neutral"
)

// Categories lists every category in canonical order. Ties in Classify go
// to the category that appears first here.
var Categories = [...]Category{Happy, Sad, Angry, Fearful, Disgusted, Surprised, Neutral}

// Parse returns the category named s.
func Parse(s string) (Category, error) {
	for _, c := range Categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

// Valid reports whether c is one of the seven categories.
func (c Category) Valid() bool {
	_, err := Parse(string(c))
	return err == nil
}

// Scores holds one probability per category.
type Scores struct {
	Happy     float64 `json:"happy"`
	Sad       float64 `json:"sad"`
	Angry     float64 `json:"angry"`
	Fearful   float64 `json:"fearful"`
	Disgusted float64 `json:"disgusted"`
	Surprised float64 `json:"surprised"`
	Neutral   float64 `json:"neutral"`
}

// Get returns the score of c, or 0 for an unknown category.
func (s Scores) Get(c Category) float64 {
	switch c {
	case Happy:
		return s.Happy
	case Sad:
		return s.Sad
	case Angry:
		return s.Angry
	case Fearful:
		return s.Fearful
	case Disgusted:
		return s.Disgusted
	case Surprised:
		return s.Surprised
	case Neutral:
		return s.Neutral
	default:
		return 0
	}
}

// Set assigns the score of c. Unknown categories are ignored.
func (s *Scores) Set(c Category, v float64) {
	switch c {
	case Happy:
		s.Happy = v
	case Sad:
		s.Sad = v
	case Angry:
		s.Angry = v
	case Fearful:
		s.Fearful = v
	case Disgusted:
		s.Disgusted = v
	case Surprised:
		s.Surprised = v
	case Neutral:
		s.Neutral = v
	}
}

// Reading is a classified frame.
type Reading struct {
	Scores
	Dominant      Category  `json:"dominant"`
	DominantScore float64   `json:"dominantScore"`
	Timestamp     time.Time `json:"-"`
}

// Classify picks the highest scoring category. Ties go to the earlier
// category in canonical order. When no score is positive the reading is
// Neutral with a score of 0.
func Classify(s Scores, at time.Time) Reading {
	best := Categories[0]
	bestScore := s.Get(best)
	for _, c := range Categories[1:] {
		if v := s.Get(c); v > bestScore {
			best, bestScore = c, v
		}
	}
	if bestScore <= 0 {
		best, bestScore = Neutral, 0
	}
	return Reading{Scores: s, Dominant: best, DominantScore: bestScore, Timestamp: at}
}

// Classifier produces expression scores for a JPEG frame. A nil result with
// a nil error means no face was found.
type Classifier interface {
	Expressions(ctx context.Context, jpeg []byte) (*Scores, error)
}

// Fixed is a Classifier that always returns the same scores.
type Fixed struct {
	Scores *Scores
}

// Expressions returns f.Scores.
func (f Fixed) Expressions(ctx context.Context, _ []byte) (*Scores, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.Scores == nil {
		return nil, nil
	}
	cp := *f.Scores
	return &cp, nil
}
