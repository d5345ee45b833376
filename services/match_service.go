package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/Dosada05/pong-arena/config"
	"github.com/Dosada05/pong-arena/game"
	"github.com/Dosada05/pong-arena/models"
)

// MatchRequest describes a match to create.
type MatchRequest struct {
	Users        []models.UserID
	TournamentID string
	// FromQueue hands the users' matchmaking reservations over to the match.
	FromQueue bool
}

// MatchHandle is what a tournament needs to follow a launched match.
type MatchHandle interface {
	ID() string
	Done() <-chan struct{}
	Outcome() (MatchOutcome, bool)
}

type MatchLauncher interface {
	LaunchMatch(ctx context.Context, req MatchRequest) (MatchHandle, error)
}

type MatchServiceParams struct {
	Registry  *Registry
	Messenger Messenger
	Clock     clockwork.Clock
	Config    config.MatchConfig
	Game      game.Settings
	Logger    *slog.Logger
}

// MatchService creates match sessions, registers them and runs each one until it
// finishes. Every session goroutine belongs to the service and is awaited by Shutdown.
type MatchService struct {
	registry  *Registry
	messenger Messenger
	clock     clockwork.Clock
	cfg       config.MatchConfig
	game      game.Settings
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	group  errgroup.Group

	mu        sync.RWMutex
	closed    bool
	observers []FinishObserver
}

func NewMatchService(p MatchServiceParams) *MatchService {
	if p.Clock == nil {
		p.Clock = clockwork.NewRealClock()
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &MatchService{
		registry:  p.Registry,
		messenger: p.Messenger,
		clock:     p.Clock,
		cfg:       p.Config,
		game:      p.Game,
		logger:    p.Logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// OnFinish subscribes obs to the Finished event of every match created afterwards.
func (s *MatchService) OnFinish(obs FinishObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, obs)
}

func (s *MatchService) CreateMatch(ctx context.Context, req MatchRequest) (*MatchSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrServiceClosed
	}

	id := uuid.NewString()
	observers := make([]FinishObserver, 0, len(s.observers)+1)
	observers = append(observers, func(o MatchOutcome) {
		s.registry.RemoveMatch(context.Background(), o.MatchID)
	})
	observers = append(observers, s.observers...)

	session, err := NewMatchSession(MatchSessionParams{
		ID:           id,
		TournamentID: req.TournamentID,
		Users:        req.Users,
		Config:       s.cfg,
		Game:         s.game,
		Clock:        s.clock,
		Messenger:    s.messenger,
		Logger:       s.logger,
		Observers:    observers,
	})
	if err != nil {
		return nil, err
	}
	if err := s.registry.AddMatch(ctx, session, req.FromQueue); err != nil {
		return nil, err
	}

	s.group.Go(func() error {
		if err := session.Run(s.ctx); err != nil {
			s.logger.Error("Match session failed", slog.String("match_id", id), slog.Any("error", err))
		}
		return nil
	})

	for _, u := range req.Users {
		s.messenger.SendJSON(LobbyRoom, u, models.MatchAssignedMessage{
			Type:         models.TypeMatchAssigned,
			MatchID:      id,
			TournamentID: req.TournamentID,
		})
	}
	s.logger.Info("Match created",
		slog.String("match_id", id),
		slog.Any("users", req.Users),
		slog.String("tournament_id", req.TournamentID))
	return session, nil
}

func (s *MatchService) LaunchMatch(ctx context.Context, req MatchRequest) (MatchHandle, error) {
	m, err := s.CreateMatch(ctx, req)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// CreateLocalMatch starts a single-device match where userID drives both paddles.
func (s *MatchService) CreateLocalMatch(ctx context.Context, userID models.UserID) (*MatchSession, error) {
	return s.CreateMatch(ctx, MatchRequest{Users: []models.UserID{userID}})
}

func (s *MatchService) GetMatch(matchID string) (*MatchSession, error) {
	m, ok := s.registry.GetMatch(matchID)
	if !ok {
		return nil, ErrMatchNotFound
	}
	return m, nil
}

// Shutdown aborts every live match and waits for their observers to complete.
func (s *MatchService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	done := make(chan error, 1)
	go func() { done <- s.group.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("waiting for matches to finish: %w", ctx.Err())
	}
}

// ActiveMatch returns the live match userID is assigned to, if any.
func (s *MatchService) ActiveMatch(userID models.UserID) (*MatchSession, bool) {
	id, ok := s.registry.GetUserMatchID(userID)
	if !ok {
		return nil, false
	}
	return s.registry.GetMatch(id)
}
