package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/Dosada05/pong-arena/models"
)

// MatchCreator is the part of MatchService the matchmaking queue depends on.
type MatchCreator interface {
	CreateMatch(ctx context.Context, req MatchRequest) (*MatchSession, error)
}

// MatchmakingQueue pairs waiting users strictly in arrival order.
type MatchmakingQueue struct {
	registry  *Registry
	matches   MatchCreator
	messenger Messenger
	logger    *slog.Logger

	mu      sync.Mutex
	entries []models.UserID
}

func NewMatchmakingQueue(registry *Registry, matches MatchCreator, messenger Messenger, logger *slog.Logger) *MatchmakingQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &MatchmakingQueue{
		registry:  registry,
		matches:   matches,
		messenger: messenger,
		logger:    logger.With(slog.String("component", "matchmaking")),
	}
}

// Enqueue appends userID to the queue and pairs the queue right away. A user already
// queued, playing or registered in a tournament gets an *AlreadyRegisteredError.
func (q *MatchmakingQueue) Enqueue(ctx context.Context, userID models.UserID) error {
	if err := q.registry.ReserveQueue(ctx, userID); err != nil {
		return err
	}

	q.mu.Lock()
	q.entries = append(q.entries, userID)
	position := len(q.entries)
	q.mu.Unlock()

	q.logger.Info("User queued", slog.String("user_id", userID.String()), slog.Int("position", position))
	q.messenger.SendJSON(LobbyRoom, userID, models.QueueMessage{Type: models.TypeMatchmakingQueued, Position: position})
	q.TryPair(ctx)
	return nil
}

// Remove takes userID out of the queue. It reports whether the user was queued.
func (q *MatchmakingQueue) Remove(ctx context.Context, userID models.UserID) bool {
	q.mu.Lock()
	idx := q.indexOf(userID)
	if idx >= 0 {
		q.entries = append(q.entries[:idx], q.entries[idx+1:]...)
	}
	q.mu.Unlock()

	if idx < 0 {
		return false
	}
	q.registry.ReleaseQueue(ctx, userID)
	q.logger.Info("User left the queue", slog.String("user_id", userID.String()))
	q.messenger.SendJSON(LobbyRoom, userID, models.QueueMessage{Type: models.TypeMatchmakingLeft})
	return true
}

// TryPair creates matches from the two longest-waiting users for as long as at least
// two users wait.
func (q *MatchmakingQueue) TryPair(ctx context.Context) []*MatchSession {
	q.mu.Lock()
	defer q.mu.Unlock()

	var created []*MatchSession
	for len(q.entries) >= 2 {
		pair := []models.UserID{q.entries[0], q.entries[1]}
		q.entries = q.entries[2:]

		m, err := q.matches.CreateMatch(ctx, MatchRequest{Users: pair, FromQueue: true})
		if err == nil {
			created = append(created, m)
			continue
		}

		var regErr *AlreadyRegisteredError
		if errors.As(err, &regErr) {
			// One of the two is busy elsewhere; the other keeps its place at the head.
			q.logger.Warn("Queued user is no longer available",
				slog.String("user_id", regErr.UserID.String()),
				slog.Any("error", err))
			q.registry.ReleaseQueue(ctx, regErr.UserID)
			for i := len(pair) - 1; i >= 0; i-- {
				if pair[i] != regErr.UserID {
					q.entries = append([]models.UserID{pair[i]}, q.entries...)
				}
			}
			continue
		}

		q.logger.Error("Failed to create match for queued users", slog.Any("users", pair), slog.Any("error", err))
		for _, u := range pair {
			q.registry.ReleaseQueue(ctx, u)
			q.messenger.SendJSON(LobbyRoom, u, models.NewErrorMessage("matchmaking_failed", "could not create a match"))
		}
	}
	return created
}

func (q *MatchmakingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Position returns the 1-based place of userID, or 0 when not queued.
func (q *MatchmakingQueue) Position(userID models.UserID) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.indexOf(userID) + 1
}

// Snapshot returns the queued users, longest waiting first.
func (q *MatchmakingQueue) Snapshot() []models.UserID {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]models.UserID(nil), q.entries...)
}

// indexOf must be called with mu held.
func (q *MatchmakingQueue) indexOf(userID models.UserID) int {
	for i, u := range q.entries {
		if u == userID {
			return i
		}
	}
	return -1
}
