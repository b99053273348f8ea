// Package rating computes PPI changes for a finished multiplayer game.
//
// Every player is compared against every other player as if they had played
// a two-player Elo match: finishing ahead scores 1, a shared placement 0.5,
// finishing behind 0. The expected score for each pairing comes from the
// usual logistic curve over the rating gap, and the change is K times the
// gap between what the player scored and what they were expected to score.
package rating

import "math"

// DefaultK is the rating sensitivity used by the ladder.
const DefaultK = 24

// Outcome is one player's final placement and rating going into the game.
// Lower placements are better.
type Outcome struct {
	UserID    string
	Placement int
	Rating    int
}

// Change is the signed rating delta for one player.
type Change struct {
	UserID string
	Delta  int
}

// Calculator applies the round-robin comparison with a fixed K factor.
type Calculator struct {
	K float64
}

// New returns a Calculator. A non-positive k falls back to DefaultK.
func New(k float64) Calculator {
	if k <= 0 {
		k = DefaultK
	}
	return Calculator{K: k}
}

// Compute returns one Change per outcome, in input order.
func (c Calculator) Compute(outcomes []Outcome) []Change {
	changes := make([]Change, len(outcomes))
	for i, me := range outcomes {
		var actual, expected float64
		for j, them := range outcomes {
			if i == j {
				continue
			}
			actual += pairScore(me.Placement, them.Placement)
			expected += Expected(me.Rating, them.Rating)
		}
		changes[i] = Change{UserID: me.UserID, Delta: roundHalfUp(c.K * (actual - expected))}
	}
	return changes
}

// Expected is the probability that a player rated r beats one rated opp.
func Expected(r, opp int) float64 {
	return 1 / (1 + math.Pow(10, float64(opp-r)/400))
}

func pairScore(mine, theirs int) float64 {
	switch {
	case mine < theirs:
		return 1
	case mine == theirs:
		return 0.5
	default:
		return 0
	}
}

// roundHalfUp rounds .5 toward positive infinity so that -0.5 becomes 0.
func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}
