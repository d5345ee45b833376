package brackets_test

import (
	"testing"

	"github.com/Dosada05/pong-arena/brackets"
	"github.com/Dosada05/pong-arena/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func winners(ids ...string) []*models.UserID {
	out := make([]*models.UserID, len(ids))
	for i, id := range ids {
		if id != "" {
			out[i] = models.UserIDPtr(models.UserID(id))
		}
	}
	return out
}

func TestDecideRound(t *testing.T) {
	abc := []models.UserID{"A", "B", "C"}

	tests := []struct {
		name           string
		players        []models.UserID
		results        []*models.UserID
		wantScores     map[models.UserID]int
		wantWinner     models.UserID
		wantSurvivors  []models.UserID
		wantEliminated []models.UserID
		wantUndecided  bool
	}{
		{
			name:          "unique top scorer wins",
			players:       abc,
			results:       winners("A", "B", "A"),
			wantScores:    map[models.UserID]int{"A": 2, "B": 1, "C": 0},
			wantWinner:    "A",
			wantSurvivors: []models.UserID{"A"},
			wantEliminated: []models.UserID{
				"B", "C",
			},
		},
		{
			name:           "tie keeps every top scorer",
			players:        abc,
			results:        winners("A", "B"),
			wantScores:     map[models.UserID]int{"A": 1, "B": 1, "C": 0},
			wantSurvivors:  []models.UserID{"A", "B"},
			wantEliminated: []models.UserID{"C"},
		},
		{
			name:          "all draws is undecided",
			players:       abc,
			results:       winners("", "", ""),
			wantScores:    map[models.UserID]int{"A": 0, "B": 0, "C": 0},
			wantSurvivors: abc,
			wantUndecided: true,
		},
		{
			name:          "sole survivor wins without matches",
			players:       []models.UserID{"B"},
			results:       nil,
			wantScores:    map[models.UserID]int{"B": 0},
			wantWinner:    "B",
			wantSurvivors: []models.UserID{"B"},
		},
		{
			name:          "winners outside the roster are ignored",
			players:       []models.UserID{"A", "B"},
			results:       winners("Z", "B"),
			wantScores:    map[models.UserID]int{"A": 0, "B": 1},
			wantWinner:    "B",
			wantSurvivors: []models.UserID{"B"},
			wantEliminated: []models.UserID{
				"A",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := brackets.DecideRound(tt.players, tt.results)

			assert.Equal(t, tt.wantScores, out.Scores)
			if tt.wantWinner == "" {
				assert.Nil(t, out.Winner)
			} else {
				require.NotNil(t, out.Winner)
				assert.Equal(t, tt.wantWinner, *out.Winner)
			}
			assert.Equal(t, tt.wantSurvivors, out.Survivors)
			assert.Equal(t, tt.wantEliminated, out.Eliminated)
			assert.Equal(t, tt.wantUndecided, out.Undecided())
		})
	}
}

func TestDecideRound_Deterministic(t *testing.T) {
	players := []models.UserID{"C", "A", "B"}
	results := winners("A", "C")

	first := brackets.DecideRound(players, results)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, brackets.DecideRound(players, results))
	}
	assert.Equal(t, []models.UserID{"C", "A"}, first.Survivors)
}
