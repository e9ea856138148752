package analyzer

import "math"

// Scoring weights
const (
	weightRelevance = 0.4
	weightUrgency   = 0.3
	weightBudget    = 0.2
	weightContact   = 0.1
)

// ScoreInput is everything the scorer looks at
type ScoreInput struct {
	MatchedKeywords int
	TotalKeywords   int
	Confidence      float64
	Urgent          bool
	Budget          bool
	Contact         bool
}

// Scores is the breakdown of a lead's score, each in [0, 1]
type Scores struct {
	Relevance float64
	Urgency   float64
	Budget    float64
	Contact   float64
	Total     float64
}

// Score combines keyword coverage, classifier confidence and intent signals
func Score(in ScoreInput) Scores {
	total := in.TotalKeywords
	if total < 1 {
		total = 1
	}
	ratio := float64(in.MatchedKeywords) / float64(total)

	s := Scores{
		Relevance: math.Min(1.0, ratio*0.5+in.Confidence*0.5),
		Urgency:   pick(in.Urgent, 1.0, 0.5),
		Budget:    pick(in.Budget, 1.0, 0.3),
		Contact:   pick(in.Contact, 1.0, 0.2),
	}
	s.Total = s.Relevance*weightRelevance +
		s.Urgency*weightUrgency +
		s.Budget*weightBudget +
		s.Contact*weightContact

	s.Relevance = round3(s.Relevance)
	s.Total = round3(s.Total)
	return s
}

// Tier buckets a total score into hot, warm or cold
func Tier(total float64) string {
	switch {
	case total >= 0.8:
		return "hot"
	case total >= 0.5:
		return "warm"
	default:
		return "cold"
	}
}

func pick(cond bool, yes, no float64) float64 {
	if cond {
		return yes
	}
	return no
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
