// internal/rating/elo.go
package rating

import "math"

const (
	// provisionalGames is the games-played threshold below which ratings move faster.
	provisionalGames = 30
	kProvisional     = 40
	kEstablished     = 32
)

// Participant is a real (non-bot) player's pre-game snapshot.
type Participant struct {
	UserID string
	Rating int
	Games  int
	Winner bool
}

// KFactor returns the ELO K for a player with the given games played.
func KFactor(games int) int {
	if games < provisionalGames {
		return kProvisional
	}
	return kEstablished
}

// Expected is the expected score of a player rated ra against one rated rb.
func Expected(ra, rb int) float64 {
	return 1 / (1 + math.Pow(10, float64(rb-ra)/400))
}

// Actual is p's score against opp: a winner scores 1 against everyone, a loser
// scores 0 against the winner and 0.5 against every other loser.
func Actual(p, opp Participant) float64 {
	switch {
	case p.Winner:
		return 1
	case opp.Winner:
		return 0
	default:
		return 0.5
	}
}

// Averages returns p's mean actual and mean expected score over all other
// participants in ps.
func Averages(p Participant, ps []Participant) (actual, expected float64) {
	n := 0
	for _, opp := range ps {
		if opp.UserID == p.UserID {
			continue
		}
		actual += Actual(p, opp)
		expected += Expected(p.Rating, opp.Rating)
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return actual / float64(n), expected / float64(n)
}

// Compute returns the new rating of every participant, index-aligned with ps.
// All ratings are derived from the same pre-game snapshot.
func Compute(ps []Participant) []int {
	out := make([]int, len(ps))
	for i, p := range ps {
		if len(ps) < 2 {
			out[i] = p.Rating
			continue
		}
		actual, expected := Averages(p, ps)
		k := float64(KFactor(p.Games))
		out[i] = int(math.Round(float64(p.Rating) + k*(actual-expected)))
	}
	return out
}
