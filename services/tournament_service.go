package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/Dosada05/pong-arena/brackets"
	"github.com/Dosada05/pong-arena/config"
	"github.com/Dosada05/pong-arena/models"
)

const maxTournamentNameLength = 64

type TournamentServiceParams struct {
	Registry  *Registry
	Launcher  MatchLauncher
	Messenger Messenger
	Clock     clockwork.Clock
	Config    config.TournamentConfig
	Generator brackets.ScheduleGenerator
	Logger    *slog.Logger
}

type TournamentService struct {
	registry  *Registry
	launcher  MatchLauncher
	messenger Messenger
	clock     clockwork.Clock
	cfg       config.TournamentConfig
	generator brackets.ScheduleGenerator
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	group  errgroup.Group

	mu        sync.RWMutex
	closed    bool
	observers []TournamentObserver
}

func NewTournamentService(p TournamentServiceParams) *TournamentService {
	if p.Clock == nil {
		p.Clock = clockwork.NewRealClock()
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	if p.Generator == nil {
		p.Generator = brackets.NewRoundRobinGenerator()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &TournamentService{
		registry:  p.Registry,
		launcher:  p.Launcher,
		messenger: p.Messenger,
		clock:     p.Clock,
		cfg:       p.Config,
		generator: p.Generator,
		logger:    p.Logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// OnFinish subscribes obs to the end of every tournament created afterwards.
func (s *TournamentService) OnFinish(obs TournamentObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, obs)
}

func (s *TournamentService) validate(name string, maxPlayers int) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxTournamentNameLength {
		return "", fmt.Errorf("%w: name must be 1 to %d characters", ErrInvalidTournament, maxTournamentNameLength)
	}
	if maxPlayers < s.cfg.MinPlayers || maxPlayers > s.cfg.MaxPlayers {
		return "", fmt.Errorf("%w: max_players must be between %d and %d",
			ErrInvalidTournament, s.cfg.MinPlayers, s.cfg.MaxPlayers)
	}
	return name, nil
}

// Create opens a tournament owned by owner, who becomes its first member.
func (s *TournamentService) Create(ctx context.Context, owner models.UserID, name string, maxPlayers int) (*TournamentSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrServiceClosed
	}
	name, err := s.validate(name, maxPlayers)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	observers := make([]TournamentObserver, 0, len(s.observers)+1)
	observers = append(observers, func(summary models.TournamentSummary) {
		s.registry.RemoveTournament(context.Background(), summary.ID)
	})
	observers = append(observers, s.observers...)

	t := NewTournamentSession(TournamentSessionParams{
		ID:         id,
		Name:       name,
		Owner:      owner,
		MaxPlayers: maxPlayers,
		Config:     s.cfg,
		Generator:  s.generator,
		Launcher:   s.launcher,
		Messenger:  s.messenger,
		Clock:      s.clock,
		Logger:     s.logger,
		Observers:  observers,
	})
	if err := s.registry.AddTournament(ctx, t); err != nil {
		return nil, err
	}

	s.logger.Info("Tournament created",
		slog.String("tournament_id", id),
		slog.String("owner", owner.String()),
		slog.Int("max_players", maxPlayers))
	s.messenger.SendJSON(LobbyRoom, owner, models.TournamentEventMessage{
		Type:       models.TypeTournamentCreated,
		Tournament: t.Info(),
	})
	return t, nil
}

func (s *TournamentService) Get(tournamentID string) (*TournamentSession, error) {
	t, ok := s.registry.GetTournament(tournamentID)
	if !ok {
		return nil, ErrTournamentNotFound
	}
	return t, nil
}

func (s *TournamentService) Register(ctx context.Context, tournamentID string, userID models.UserID) error {
	t, err := s.Get(tournamentID)
	if err != nil {
		return err
	}
	if err := s.registry.JoinTournament(ctx, tournamentID, userID); err != nil {
		return err
	}
	if err := t.AddUser(userID); err != nil {
		s.registry.LeaveTournament(ctx, tournamentID, userID)
		return err
	}

	s.logger.Info("User registered to tournament",
		slog.String("tournament_id", tournamentID),
		slog.String("user_id", userID.String()))
	s.broadcast(t, models.TournamentEventMessage{
		Type:       models.TypeTournamentRegistered,
		Tournament: t.Info(),
		UserID:     userID,
	})
	return nil
}

// Unregister removes userID from an open tournament. The owner leaving cancels it.
func (s *TournamentService) Unregister(ctx context.Context, tournamentID string, userID models.UserID) error {
	t, err := s.Get(tournamentID)
	if err != nil {
		return err
	}
	canceled, err := t.RemoveUser(userID)
	if err != nil {
		return err
	}
	if canceled {
		return nil
	}
	s.registry.LeaveTournament(ctx, tournamentID, userID)

	s.logger.Info("User unregistered from tournament",
		slog.String("tournament_id", tournamentID),
		slog.String("user_id", userID.String()))
	event := models.TournamentEventMessage{
		Type:       models.TypeTournamentUnregistered,
		Tournament: t.Info(),
		UserID:     userID,
	}
	s.broadcast(t, event)
	s.messenger.SendJSON(LobbyRoom, userID, event)
	return nil
}

// Start begins the rounds of a tournament. Only its owner may start it.
func (s *TournamentService) Start(ctx context.Context, tournamentID string, userID models.UserID) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrServiceClosed
	}
	t, err := s.Get(tournamentID)
	if err != nil {
		return err
	}
	if t.Owner() != userID {
		return ErrNotTournamentOwner
	}
	if err := t.Start(); err != nil {
		return err
	}

	s.broadcast(t, models.TournamentEventMessage{Type: models.TypeTournamentStarted, Tournament: t.Info()})
	s.group.Go(func() error {
		if err := t.Run(s.ctx); err != nil {
			s.logger.Error("Tournament failed", slog.String("tournament_id", t.ID()), slog.Any("error", err))
		}
		return nil
	})
	return nil
}

// Cancel ends an open tournament. Only its owner may cancel it.
func (s *TournamentService) Cancel(ctx context.Context, tournamentID string, userID models.UserID) error {
	t, err := s.Get(tournamentID)
	if err != nil {
		return err
	}
	if t.Owner() != userID {
		return ErrNotTournamentOwner
	}
	return t.Cancel()
}

// OpenTournaments lists the tournaments still accepting registrations.
func (s *TournamentService) OpenTournaments() []models.TournamentInfo {
	var open []models.TournamentInfo
	for _, t := range s.registry.Tournaments() {
		if t.Open() {
			open = append(open, t.Info())
		}
	}
	return open
}

func (s *TournamentService) broadcast(t *TournamentSession, v any) {
	for _, p := range t.Players() {
		s.messenger.SendJSON(LobbyRoom, p, v)
	}
}

// Shutdown stops every running tournament and waits for the drivers to return.
// Open tournaments are canceled.
func (s *TournamentService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	for _, t := range s.registry.Tournaments() {
		if t.Open() {
			_ = t.Cancel()
		}
	}
	s.cancel()
	done := make(chan error, 1)
	go func() { done <- s.group.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("waiting for tournaments to finish: %w", ctx.Err())
	}
}
