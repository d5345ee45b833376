package brackets

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotEnoughPlayers = errors.New("round robin needs at least two players")
	ErrDuplicatePlayer  = errors.New("player appears twice in the roster")
)

type RoundRobinGenerator struct{}

func NewRoundRobinGenerator() ScheduleGenerator {
	return &RoundRobinGenerator{}
}

func (g *RoundRobinGenerator) GetName() string {
	return "RoundRobin"
}

// GenerateSchedule pairs every player with every other player exactly once,
// n*(n-1)/2 matches ordered by roster position.
func (g *RoundRobinGenerator) GenerateSchedule(ctx context.Context, params GenerateScheduleParams) ([]*ScheduledMatch, error) {
	players := params.Players
	if len(players) < 2 {
		return nil, fmt.Errorf("%w (found %d)", ErrNotEnoughPlayers, len(players))
	}

	seen := make(map[string]struct{}, len(players))
	for _, p := range players {
		if _, dup := seen[string(p)]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePlayer, p)
		}
		seen[string(p)] = struct{}{}
	}

	matches := make([]*ScheduledMatch, 0, len(players)*(len(players)-1)/2)
	matchOrder := 0

	for i := 0; i < len(players); i++ {
		for j := i + 1; j < len(players); j++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			matchOrder++
			matches = append(matches, &ScheduledMatch{
				UID:          fmt.Sprintf("T%s_R%d_M%d", params.TournamentID, params.Round, matchOrder),
				Round:        params.Round,
				OrderInRound: matchOrder,
				Player1:      players[i],
				Player2:      players[j],
			})
		}
	}

	return matches, nil
}
