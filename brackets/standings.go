package brackets

import "github.com/Dosada05/pong-arena/models"

// RoundOutcome is the verdict on one round of a tournament.
type RoundOutcome struct {
	Scores   map[models.UserID]int
	MaxScore int
	// Winner is set when exactly one player holds MaxScore, or when a single player remains.
	Winner *models.UserID
	// Survivors keep their roster order; Eliminated are the players below MaxScore.
	Survivors  []models.UserID
	Eliminated []models.UserID
}

// Undecided reports a round where nobody won a match among two or more players.
func (o RoundOutcome) Undecided() bool {
	return o.Winner == nil && o.MaxScore == 0
}

// TallyWins counts the wins of every player in one round. Draws (nil results) and
// winners outside the roster are ignored.
func TallyWins(players []models.UserID, results []*models.UserID) map[models.UserID]int {
	scores := make(map[models.UserID]int, len(players))
	for _, p := range players {
		scores[p] = 0
	}
	for _, w := range results {
		if w == nil {
			continue
		}
		if _, ok := scores[*w]; ok {
			scores[*w]++
		}
	}
	return scores
}

// DecideRound applies the elimination rule: a unique top scorer wins the tournament,
// otherwise every top scorer advances and the rest drop out. A lone player wins outright.
func DecideRound(players []models.UserID, results []*models.UserID) RoundOutcome {
	scores := TallyWins(players, results)
	out := RoundOutcome{Scores: scores}

	switch len(players) {
	case 0:
		return out
	case 1:
		out.Winner = models.UserIDPtr(players[0])
		out.Survivors = []models.UserID{players[0]}
		return out
	}

	for _, p := range players {
		if scores[p] > out.MaxScore {
			out.MaxScore = scores[p]
		}
	}
	if out.MaxScore == 0 {
		out.Survivors = append([]models.UserID(nil), players...)
		return out
	}

	for _, p := range players {
		if scores[p] == out.MaxScore {
			out.Survivors = append(out.Survivors, p)
		} else {
			out.Eliminated = append(out.Eliminated, p)
		}
	}
	if len(out.Survivors) == 1 {
		out.Winner = models.UserIDPtr(out.Survivors[0])
	}
	return out
}
