package brackets

import (
	"context"

	"github.com/Dosada05/pong-arena/models"
)

type GenerateScheduleParams struct {
	TournamentID string
	Round        int
	Players      []models.UserID
}

// ScheduledMatch is one pairing of a tournament round, played in OrderInRound order.
type ScheduledMatch struct {
	UID          string
	Round        int
	OrderInRound int
	Player1      models.UserID
	Player2      models.UserID
}

func (m *ScheduledMatch) Pair() models.ScheduledPair {
	return models.ScheduledPair{Player1: m.Player1, Player2: m.Player2}
}

type ScheduleGenerator interface {
	GenerateSchedule(ctx context.Context, params GenerateScheduleParams) ([]*ScheduledMatch, error)

	GetName() string
}
