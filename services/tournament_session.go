package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/Dosada05/pong-arena/brackets"
	"github.com/Dosada05/pong-arena/config"
	"github.com/Dosada05/pong-arena/models"
)

// TournamentObserver is notified exactly once when a tournament finishes or is canceled.
type TournamentObserver func(models.TournamentSummary)

type TournamentSessionParams struct {
	ID         string
	Name       string
	Owner      models.UserID
	MaxPlayers int
	Config     config.TournamentConfig
	Generator  brackets.ScheduleGenerator
	Launcher   MatchLauncher
	Messenger  Messenger
	Clock      clockwork.Clock
	Logger     *slog.Logger
	Observers  []TournamentObserver
}

// TournamentSession runs round-robin rounds over a fixed roster, one match at a time,
// eliminating everybody below the top score of a round until a single winner remains.
type TournamentSession struct {
	id         string
	name       string
	owner      models.UserID
	maxPlayers int
	createdAt  time.Time
	cfg        config.TournamentConfig
	generator  brackets.ScheduleGenerator
	launcher   MatchLauncher
	messenger  Messenger
	clock      clockwork.Clock
	logger     *slog.Logger
	done       chan struct{}

	mu        sync.RWMutex
	players   []models.UserID
	active    []models.UserID
	schedule  []models.ScheduledPair
	results   []*models.UserID
	winCounts map[models.UserID]int
	rounds    []models.TournamentRound
	winner    *models.UserID
	running   bool
	finished  bool
	canceled  bool
	observers []TournamentObserver
}

func NewTournamentSession(p TournamentSessionParams) *TournamentSession {
	if p.Clock == nil {
		p.Clock = clockwork.NewRealClock()
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	if p.Generator == nil {
		p.Generator = brackets.NewRoundRobinGenerator()
	}
	return &TournamentSession{
		id:         p.ID,
		name:       p.Name,
		owner:      p.Owner,
		maxPlayers: p.MaxPlayers,
		createdAt:  p.Clock.Now(),
		cfg:        p.Config,
		generator:  p.Generator,
		launcher:   p.Launcher,
		messenger:  p.Messenger,
		clock:      p.Clock,
		logger:     p.Logger.With(slog.String("tournament_id", p.ID)),
		done:       make(chan struct{}),
		players:    []models.UserID{p.Owner},
		winCounts:  make(map[models.UserID]int),
		observers:  append([]TournamentObserver(nil), p.Observers...),
	}
}

func (t *TournamentSession) ID() string            { return t.id }
func (t *TournamentSession) Name() string          { return t.name }
func (t *TournamentSession) Owner() models.UserID  { return t.owner }
func (t *TournamentSession) CreatedAt() time.Time  { return t.createdAt }
func (t *TournamentSession) Done() <-chan struct{} { return t.done }

func (t *TournamentSession) Players() []models.UserID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]models.UserID(nil), t.players...)
}

func (t *TournamentSession) ActivePlayers() []models.UserID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]models.UserID(nil), t.active...)
}

func (t *TournamentSession) Running() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.running
}

func (t *TournamentSession) Finished() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.finished
}

func (t *TournamentSession) Winner() *models.UserID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.winner
}

func (t *TournamentSession) WinCounts() map[models.UserID]int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[models.UserID]int, len(t.winCounts))
	for u, n := range t.winCounts {
		out[u] = n
	}
	return out
}

// Open reports whether the roster can still change.
func (t *TournamentSession) Open() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return !t.running && !t.finished
}

func (t *TournamentSession) Info() models.TournamentInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return models.TournamentInfo{
		ID:         t.id,
		Name:       t.name,
		Owner:      t.owner,
		MaxPlayers: t.maxPlayers,
		Players:    append([]models.UserID(nil), t.players...),
		Running:    t.running,
	}
}

// OnFinish subscribes obs to the end of the tournament.
func (t *TournamentSession) OnFinish(obs TournamentObserver) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observers = append(t.observers, obs)
}

func (t *TournamentSession) AddUser(userID models.UserID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running || t.finished {
		return ErrTournamentStarted
	}
	for _, p := range t.players {
		if p == userID {
			return alreadyRegistered(userID, KindTournament, t.id)
		}
	}
	if len(t.players) >= t.maxPlayers {
		return ErrTournamentFull
	}
	t.players = append(t.players, userID)
	return nil
}

// RemoveUser drops userID from the roster. Removing the owner cancels the tournament,
// which is reported by the first return value.
func (t *TournamentSession) RemoveUser(userID models.UserID) (bool, error) {
	t.mu.Lock()
	if t.running || t.finished {
		t.mu.Unlock()
		return false, ErrTournamentStarted
	}
	idx := -1
	for i, p := range t.players {
		if p == userID {
			idx = i
			break
		}
	}
	if idx < 0 {
		t.mu.Unlock()
		return false, ErrNotInTournament
	}
	if userID == t.owner {
		t.mu.Unlock()
		return true, t.Cancel()
	}
	t.players = append(t.players[:idx], t.players[idx+1:]...)
	t.mu.Unlock()
	return false, nil
}

// Cancel ends a tournament that has not started. Every member is told.
func (t *TournamentSession) Cancel() error {
	t.mu.Lock()
	if t.running || t.finished {
		t.mu.Unlock()
		return ErrTournamentStarted
	}
	t.finished = true
	t.canceled = true
	t.mu.Unlock()

	t.logger.Info("Tournament canceled")
	t.notifyAll(models.TournamentCanceledMessage{Type: models.TypeTournamentCanceled, TournamentID: t.id})
	t.complete()
	return nil
}

// Start freezes the roster. The rounds are played by Run.
func (t *TournamentSession) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running || t.finished {
		return ErrTournamentStarted
	}
	if len(t.players) < t.cfg.MinPlayers {
		return fmt.Errorf("%w: %d of %d", ErrNotEnoughPlayers, len(t.players), t.cfg.MinPlayers)
	}
	t.running = true
	t.active = append([]models.UserID(nil), t.players...)
	return nil
}

// Run plays rounds until a winner is found, no winner can be determined, the round
// cap is reached or ctx is cancelled. It must follow a successful Start.
func (t *TournamentSession) Run(ctx context.Context) error {
	t.mu.RLock()
	running := t.running
	t.mu.RUnlock()
	if !running {
		return fmt.Errorf("tournament %s: run called before start", t.id)
	}

	defer t.finish()
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("Tournament driver panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	t.logger.Info("Tournament started", slog.Any("players", t.Players()))
	firstMatch := true
	for round := 1; ; round++ {
		active := t.ActivePlayers()
		if len(active) == 1 {
			t.setWinner(active[0])
			return nil
		}
		if round > t.cfg.MaxRounds {
			t.logger.Info("Round limit reached without a winner", slog.Int("max_rounds", t.cfg.MaxRounds))
			return nil
		}

		pairs, err := t.generator.GenerateSchedule(ctx, brackets.GenerateScheduleParams{
			TournamentID: t.id,
			Round:        round,
			Players:      active,
		})
		if err != nil {
			if ctx.Err() == nil {
				t.logger.Error("Failed to generate round schedule", slog.Int("round", round), slog.Any("error", err))
			}
			return nil
		}

		schedule := make([]models.ScheduledPair, len(pairs))
		for i, sm := range pairs {
			schedule[i] = sm.Pair()
		}
		t.mu.Lock()
		t.schedule = schedule
		t.results = make([]*models.UserID, 0, len(schedule))
		t.mu.Unlock()
		t.notifyAll(models.TournamentScheduleMessage{
			Type:         models.TypeTournamentSchedule,
			TournamentID: t.id,
			Round:        round,
			Matches:      schedule,
		})

		for _, pair := range schedule {
			if !firstMatch {
				select {
				case <-t.clock.After(t.cfg.MatchDelay):
				case <-ctx.Done():
					return nil
				}
			}
			firstMatch = false

			winner, err := t.playMatch(ctx, round, pair)
			if err != nil {
				return nil
			}
			t.mu.Lock()
			t.results = append(t.results, winner)
			t.mu.Unlock()
		}

		if done := t.closeRound(round, active); done {
			return nil
		}
	}
}

// playMatch launches one scheduled match and blocks until it finishes. A match that
// cannot be created counts as a draw.
func (t *TournamentSession) playMatch(ctx context.Context, round int, pair models.ScheduledPair) (*models.UserID, error) {
	handle, err := t.launcher.LaunchMatch(ctx, MatchRequest{
		Users:        []models.UserID{pair.Player1, pair.Player2},
		TournamentID: t.id,
	})
	if err != nil {
		if errors.Is(err, ErrServiceClosed) || ctx.Err() != nil {
			return nil, err
		}
		t.logger.Error("Failed to launch tournament match",
			slog.Int("round", round),
			slog.String("player1", pair.Player1.String()),
			slog.String("player2", pair.Player2.String()),
			slog.Any("error", err))
		return nil, nil
	}

	select {
	case <-handle.Done():
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	outcome, _ := handle.Outcome()
	if outcome.Reason == ReasonAborted {
		return nil, ErrServiceClosed
	}
	return outcome.Winner, nil
}

// closeRound scores the round and reports whether the tournament is over.
func (t *TournamentSession) closeRound(round int, active []models.UserID) bool {
	t.mu.Lock()
	results := append([]*models.UserID(nil), t.results...)
	schedule := t.schedule
	t.mu.Unlock()

	outcome := brackets.DecideRound(active, results)

	t.mu.Lock()
	for u, n := range outcome.Scores {
		t.winCounts[u] += n
	}
	t.rounds = append(t.rounds, models.TournamentRound{
		Number:     round,
		Schedule:   schedule,
		Results:    results,
		Scores:     outcome.Scores,
		Eliminated: outcome.Eliminated,
	})
	t.mu.Unlock()

	t.logger.Info("Round finished",
		slog.Int("round", round),
		slog.Int("max_score", outcome.MaxScore),
		slog.Any("eliminated", outcome.Eliminated))

	switch {
	case outcome.Winner != nil:
		t.setWinner(*outcome.Winner)
		return true
	case outcome.Undecided():
		t.logger.Info("Every match of the round was drawn, no winner can be determined", slog.Int("round", round))
		return true
	}

	if len(outcome.Eliminated) > 0 {
		t.notifyAll(models.TournamentDropOutMessage{
			Type:         models.TypeTournamentDropOut,
			TournamentID: t.id,
			Round:        round,
			UserIDs:      outcome.Eliminated,
		})
	}
	t.mu.Lock()
	t.active = outcome.Survivors
	t.mu.Unlock()
	return false
}

func (t *TournamentSession) setWinner(userID models.UserID) {
	t.mu.Lock()
	t.winner = models.UserIDPtr(userID)
	t.mu.Unlock()
}

func (t *TournamentSession) finish() {
	t.mu.Lock()
	t.running = false
	t.finished = true
	winner := t.winner
	scores := make(map[models.UserID]int, len(t.players))
	for _, p := range t.players {
		scores[p] = t.winCounts[p]
	}
	t.mu.Unlock()

	t.notifyAll(models.TournamentFinishedMessage{
		Type:         models.TypeTournamentFinished,
		TournamentID: t.id,
		Winner:       winner,
		UserScores:   scores,
	})
	winnerID := ""
	if winner != nil {
		winnerID = winner.String()
	}
	t.logger.Info("Tournament finished", slog.String("winner", winnerID))
	t.complete()
}

// complete runs the observers and releases waiters.
func (t *TournamentSession) complete() {
	summary := t.Summary()
	t.mu.Lock()
	observers := t.observers
	t.observers = nil
	t.mu.Unlock()

	for _, obs := range observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.logger.Error("Tournament observer panicked", slog.Any("panic", r))
				}
			}()
			obs(summary)
		}()
	}
	close(t.done)
}

func (t *TournamentSession) Summary() models.TournamentSummary {
	t.mu.RLock()
	defer t.mu.RUnlock()
	counts := make(map[models.UserID]int, len(t.winCounts))
	for u, n := range t.winCounts {
		counts[u] = n
	}
	return models.TournamentSummary{
		ID:         t.id,
		Name:       t.name,
		Owner:      t.owner,
		Players:    append([]models.UserID(nil), t.players...),
		Rounds:     append([]models.TournamentRound(nil), t.rounds...),
		WinCounts:  counts,
		Winner:     t.winner,
		Canceled:   t.canceled,
		FinishedAt: t.clock.Now(),
	}
}

func (t *TournamentSession) notifyAll(v any) {
	for _, p := range t.Players() {
		t.messenger.SendJSON(LobbyRoom, p, v)
	}
}
