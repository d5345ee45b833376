package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/Dosada05/pong-arena/models"
	"github.com/Dosada05/pong-arena/statestore"
)

const (
	EventMatchFinished      = "match_finished"
	EventTournamentFinished = "tournament_finished"
)

// Event is what one process announces to the others on statestore.EventsChannel.
type Event struct {
	Type         string          `json:"type"`
	Instance     string          `json:"instance"`
	MatchID      string          `json:"match_id,omitempty"`
	TournamentID string          `json:"tournament_id,omitempty"`
	Users        []models.UserID `json:"users,omitempty"`
	Winner       *models.UserID  `json:"winner"`
	Reason       string          `json:"reason,omitempty"`
	Score        []int           `json:"score,omitempty"`
	Canceled     bool            `json:"canceled,omitempty"`
}

type EventBus struct {
	store    statestore.Store
	instance string
	logger   *slog.Logger
}

func NewEventBus(store statestore.Store, instanceID string, logger *slog.Logger) *EventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBus{store: store, instance: instanceID, logger: logger.With(slog.String("component", "events"))}
}

func (b *EventBus) publish(ev Event) {
	ev.Instance = b.instance
	payload, err := json.Marshal(ev)
	if err != nil {
		b.logger.Error("Failed to encode event", slog.Any("error", err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := b.store.Publish(ctx, statestore.EventsChannel, payload); err != nil {
		b.logger.Warn("Failed to publish event", slog.String("type", ev.Type), slog.Any("error", err))
	}
}

// MatchFinished is a FinishObserver.
func (b *EventBus) MatchFinished(o MatchOutcome) {
	b.publish(Event{
		Type:         EventMatchFinished,
		MatchID:      o.MatchID,
		TournamentID: o.TournamentID,
		Users:        o.Users,
		Winner:       o.Winner,
		Reason:       string(o.Reason),
		Score:        o.Score[:],
	})
}

// TournamentFinished is a TournamentObserver.
func (b *EventBus) TournamentFinished(s models.TournamentSummary) {
	b.publish(Event{
		Type:         EventTournamentFinished,
		TournamentID: s.ID,
		Users:        s.Players,
		Winner:       s.Winner,
		Canceled:     s.Canceled,
	})
}

// Listen calls handle for every event published by other processes until ctx ends.
func (b *EventBus) Listen(ctx context.Context, handle func(Event)) error {
	sub, err := b.store.Subscribe(ctx, statestore.EventsChannel)
	if err != nil {
		return err
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-sub.Messages():
			if !ok {
				return nil
			}
			var ev Event
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				b.logger.Warn("Dropping malformed event", slog.Any("error", err))
				continue
			}
			if ev.Instance == b.instance {
				continue
			}
			handle(ev)
		}
	}
}
