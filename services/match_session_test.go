package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/pong-arena/config"
	"github.com/Dosada05/pong-arena/game"
	"github.com/Dosada05/pong-arena/models"
	"github.com/Dosada05/pong-arena/services"
)

const (
	alice models.UserID = "alice"
	bob   models.UserID = "bob"
	carol models.UserID = "carol"
)

type sessionFixture struct {
	session   *services.MatchSession
	messenger *recordingMessenger
	cancel    context.CancelFunc
	runErr    chan error
	outcomes  chan services.MatchOutcome
}

func startSession(t *testing.T, users []models.UserID, cfg config.MatchConfig, settings game.Settings, clock clockwork.Clock) *sessionFixture {
	t.Helper()
	messenger := newRecordingMessenger()
	outcomes := make(chan services.MatchOutcome, 4)
	session, err := services.NewMatchSession(services.MatchSessionParams{
		ID:        "m1",
		Users:     users,
		Config:    cfg,
		Game:      settings,
		Clock:     clock,
		Messenger: messenger,
		Logger:    testLogger(),
		Observers: []services.FinishObserver{func(o services.MatchOutcome) { outcomes <- o }},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	f := &sessionFixture{
		session:   session,
		messenger: messenger,
		cancel:    cancel,
		runErr:    make(chan error, 1),
		outcomes:  outcomes,
	}
	go func() { f.runErr <- session.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-session.Done()
	})
	return f
}

func (f *sessionFixture) waitOutcome(t *testing.T) services.MatchOutcome {
	t.Helper()
	select {
	case <-f.session.Done():
	case <-time.After(waitFor):
		t.Fatal("match did not finish")
	}
	outcome, ok := f.session.Outcome()
	require.True(t, ok)
	return outcome
}

func TestNewMatchSession_RejectsInvalidUsers(t *testing.T) {
	tests := []struct {
		name  string
		users []models.UserID
	}{
		{"no users", nil},
		{"three users", []models.UserID{alice, bob, carol}},
		{"same user twice", []models.UserID{alice, alice}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := services.NewMatchSession(services.MatchSessionParams{
				ID:        "m",
				Users:     tt.users,
				Config:    testMatchConfig(),
				Game:      testGameSettings(),
				Messenger: newRecordingMessenger(),
				Logger:    testLogger(),
			})
			assert.ErrorIs(t, err, services.ErrInvalidPlayers)
		})
	}
}

func TestMatchSession_ConnectSendsInitialStateAndStartsWhenAllConnected(t *testing.T) {
	f := startSession(t, []models.UserID{alice, bob}, testMatchConfig(), testGameSettings(), clockwork.NewRealClock())
	ctx := context.Background()

	require.NoError(t, f.session.Connect(ctx, alice))
	assert.Equal(t, services.StateAwaitingConnections, f.session.State())
	assert.Equal(t, []models.UserID{alice}, f.session.ConnectedUsers())

	frames := f.messenger.all(alice)
	require.Len(t, frames, 3)
	assert.Equal(t, models.TypeUserMapping, frames[0].msgType)
	assert.True(t, frames[1].binary)
	assert.Len(t, frames[1].payload, game.FrameSize)
	assert.Equal(t, models.TypePlayerScores, frames[2].msgType)

	mapping := decode[models.UserMappingMessage](t, frames[0].payload)
	assert.False(t, mapping.IsLocalMatch)
	assert.Equal(t, alice, mapping.Player1)
	require.NotNil(t, mapping.Player2)
	assert.Equal(t, bob, *mapping.Player2)

	require.NoError(t, f.session.Connect(ctx, bob))
	assert.Equal(t, services.StateRunning, f.session.State())

	initial := game.NewSimulation(testGameSettings()).Positions()
	require.Eventually(t, func() bool {
		return f.session.Positions()[4] != initial[4]
	}, waitFor, pollEvery, "ball should move once the match runs")
}

func TestMatchSession_RejectsUnassignedAndInvalidInput(t *testing.T) {
	f := startSession(t, []models.UserID{alice, bob}, testMatchConfig(), testGameSettings(), clockwork.NewRealClock())
	ctx := context.Background()

	assert.ErrorIs(t, f.session.Connect(ctx, carol), services.ErrNotAssigned)
	assert.ErrorIs(t, f.session.UpdateDirection(ctx, carol, 1, 0), services.ErrNotAssigned)
	assert.ErrorIs(t, f.session.UpdateDirection(ctx, alice, 1, 0), services.ErrNotConnected)
	assert.ErrorIs(t, f.session.Disconnect(ctx, alice), services.ErrNotConnected)

	require.NoError(t, f.session.Connect(ctx, alice))
	assert.ErrorIs(t, f.session.UpdateDirection(ctx, alice, 2, 0), services.ErrInvalidDirection)
	assert.NoError(t, f.session.UpdateDirection(ctx, alice, -1, 0))
}

func TestMatchSession_PaddleFollowsDirection(t *testing.T) {
	f := startSession(t, []models.UserID{alice, bob}, testMatchConfig(), testGameSettings(), clockwork.NewRealClock())
	ctx := context.Background()
	require.NoError(t, f.session.Connect(ctx, alice))
	require.NoError(t, f.session.Connect(ctx, bob))

	start := f.session.Positions()
	require.NoError(t, f.session.UpdateDirection(ctx, bob, 1, 0))
	require.Eventually(t, func() bool {
		return f.session.Positions()[3] > start[3]
	}, waitFor, pollEvery)
	assert.Equal(t, start[1], f.session.Positions()[1], "left paddle stays put")
}

func TestMatchSession_DisconnectPausesAndReconnectResumes(t *testing.T) {
	f := startSession(t, []models.UserID{alice, bob}, testMatchConfig(), testGameSettings(), clockwork.NewRealClock())
	ctx := context.Background()
	require.NoError(t, f.session.Connect(ctx, alice))
	require.NoError(t, f.session.Connect(ctx, bob))

	require.NoError(t, f.session.Disconnect(ctx, alice))
	assert.Equal(t, services.StatePaused, f.session.State())
	assert.Equal(t, []models.UserID{bob}, f.session.ConnectedUsers())

	notices := f.messenger.jsonOf(bob, models.TypeUserDisconnected)
	require.Len(t, notices, 1)
	assert.Equal(t, alice, decode[models.UserDisconnectedMessage](t, notices[0]).UserID)

	paused := f.session.Positions()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, paused, f.session.Positions(), "no ticks while paused")

	require.NoError(t, f.session.Connect(ctx, alice))
	assert.Equal(t, services.StateRunning, f.session.State())
	require.Eventually(t, func() bool {
		return f.session.Positions() != paused
	}, waitFor, pollEvery)
}

func TestMatchSession_ReconnectCancelsTheTimeout(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cfg := testMatchConfig()
	f := startSession(t, []models.UserID{alice, bob}, cfg, testGameSettings(), clock)
	ctx := context.Background()
	require.NoError(t, f.session.Connect(ctx, alice))
	require.NoError(t, f.session.Connect(ctx, bob))

	require.NoError(t, f.session.Disconnect(ctx, alice))
	assert.Equal(t, services.StatePaused, f.session.State())
	clock.Advance(cfg.ReconnectTimeout / 2)
	require.NoError(t, f.session.Connect(ctx, alice))
	assert.Equal(t, services.StateRunning, f.session.State())

	clock.Advance(2 * cfg.ReconnectTimeout)
	assert.Never(t, func() bool {
		_, finished := f.session.Outcome()
		return finished
	}, 100*time.Millisecond, pollEvery)
	assert.Equal(t, services.StateRunning, f.session.State())
	assert.Empty(t, f.session.BlockedUsers())
	assert.Empty(t, f.outcomes)
}

func TestMatchSession_BlockedUserLosesWhenTheOtherReturns(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cfg := testMatchConfig()
	f := startSession(t, []models.UserID{alice, bob}, cfg, testGameSettings(), clock)
	ctx := context.Background()
	require.NoError(t, f.session.Connect(ctx, alice))
	require.NoError(t, f.session.Connect(ctx, bob))

	require.NoError(t, f.session.Disconnect(ctx, alice))
	clock.Advance(cfg.ReconnectTimeout / 2)
	require.NoError(t, f.session.Disconnect(ctx, bob))
	clock.Advance(cfg.ReconnectTimeout / 2)

	require.Eventually(t, func() bool {
		return len(f.session.BlockedUsers()) == 1
	}, waitFor, pollEvery)
	assert.Equal(t, []models.UserID{alice}, f.session.BlockedUsers())
	assert.Equal(t, services.StatePaused, f.session.State(), "nobody is connected to win yet")
	assert.ErrorIs(t, f.session.Connect(ctx, alice), services.ErrUserBlocked)

	require.NoError(t, f.session.Connect(ctx, bob))
	outcome := f.waitOutcome(t)
	assert.Equal(t, services.ReasonDisconnectTimeout, outcome.Reason)
	require.NotNil(t, outcome.Winner)
	assert.Equal(t, bob, *outcome.Winner)
	assert.Equal(t, cfg.ScoreLimit, outcome.Score[1])
	assert.Equal(t, 0, outcome.Score[0])
}

func TestMatchSession_ReconnectTimeoutAwardsTheRemainingUser(t *testing.T) {
	cfg := testMatchConfig()
	cfg.ReconnectTimeout = 50 * time.Millisecond
	f := startSession(t, []models.UserID{alice, bob}, cfg, testGameSettings(), clockwork.NewRealClock())
	ctx := context.Background()
	require.NoError(t, f.session.Connect(ctx, alice))
	require.NoError(t, f.session.Connect(ctx, bob))
	require.NoError(t, f.session.Disconnect(ctx, alice))

	outcome := f.waitOutcome(t)
	assert.Equal(t, services.ReasonDisconnectTimeout, outcome.Reason)
	require.NotNil(t, outcome.Winner)
	assert.Equal(t, bob, *outcome.Winner)
	assert.Equal(t, cfg.ScoreLimit, outcome.Score[1])
	assert.Equal(t, services.StateFinished, f.session.State())

	gameOver := f.messenger.jsonOf(bob, models.TypeGameOver)
	require.Len(t, gameOver, 1)
	msg := decode[models.GameOverMessage](t, gameOver[0])
	assert.Equal(t, string(services.ReasonDisconnectTimeout), msg.Reason)
	require.NotNil(t, msg.Winner)
	assert.Equal(t, bob, *msg.Winner)
	assert.True(t, f.messenger.disconnected(bob))

	assert.ErrorIs(t, f.session.Connect(ctx, alice), services.ErrMatchFinished)
}

func TestMatchSession_TooManyDisconnectsEndsTheMatch(t *testing.T) {
	cfg := testMatchConfig()
	cfg.MaxReconnections = 2
	f := startSession(t, []models.UserID{alice, bob}, cfg, testGameSettings(), clockwork.NewRealClock())
	ctx := context.Background()
	require.NoError(t, f.session.Connect(ctx, alice))
	require.NoError(t, f.session.Connect(ctx, bob))

	require.NoError(t, f.session.Disconnect(ctx, alice))
	require.NoError(t, f.session.Connect(ctx, alice))
	require.NoError(t, f.session.Disconnect(ctx, alice))

	outcome := f.waitOutcome(t)
	assert.Equal(t, services.ReasonDisconnectedTooManyTimes, outcome.Reason)
	require.NotNil(t, outcome.Winner)
	assert.Equal(t, bob, *outcome.Winner)
}

func TestMatchSession_BothUsersMissingIsADraw(t *testing.T) {
	cfg := testMatchConfig()
	cfg.ReconnectTimeout = 50 * time.Millisecond
	f := startSession(t, []models.UserID{alice, bob}, cfg, testGameSettings(), clockwork.NewRealClock())
	ctx := context.Background()
	require.NoError(t, f.session.Connect(ctx, alice))
	require.NoError(t, f.session.Connect(ctx, bob))
	require.NoError(t, f.session.Disconnect(ctx, alice))
	require.NoError(t, f.session.Disconnect(ctx, bob))

	outcome := f.waitOutcome(t)
	assert.Equal(t, services.ReasonDraw, outcome.Reason)
	assert.Nil(t, outcome.Winner)
}

func TestMatchSession_ScoreLimitEndsTheMatch(t *testing.T) {
	cfg := testMatchConfig()
	cfg.ScoreLimit = 2
	settings := testGameSettings()
	settings.BallDirection = game.Vector{X: -1, Y: 0}
	f := startSession(t, []models.UserID{alice, bob}, cfg, settings, clockwork.NewRealClock())
	ctx := context.Background()
	require.NoError(t, f.session.Connect(ctx, alice))
	require.NoError(t, f.session.Connect(ctx, bob))
	// The ball flies straight left; moving the left paddle away lets every shot through.
	require.NoError(t, f.session.UpdateDirection(ctx, alice, -1, 0))

	outcome := f.waitOutcome(t)
	assert.Equal(t, services.ReasonScore, outcome.Reason)
	require.NotNil(t, outcome.Winner)
	assert.Equal(t, bob, *outcome.Winner)
	assert.Equal(t, [2]int{0, 2}, outcome.Score)

	scores := f.messenger.jsonOf(alice, models.TypePlayerScores)
	require.NotEmpty(t, scores)
	last := decode[models.PlayerScoresMessage](t, scores[len(scores)-1])
	assert.Equal(t, 2, last.Player2)

	types := f.messenger.types(alice)
	assert.Equal(t, models.TypeGameOver, types[len(types)-1])
}

func TestMatchSession_ConnectTimeout(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cfg := testMatchConfig()
	f := startSession(t, []models.UserID{alice, bob}, cfg, testGameSettings(), clock)
	require.NoError(t, f.session.Connect(context.Background(), alice))

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(cfg.ConnectTimeout)

	outcome := f.waitOutcome(t)
	assert.Equal(t, services.ReasonMatchConnectTimeout, outcome.Reason)
	assert.Nil(t, outcome.Winner)
	assert.True(t, f.messenger.disconnected(alice))
	assert.True(t, f.messenger.disconnected(bob))
}

func TestMatchSession_CountdownPrecedesPlay(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cfg := testMatchConfig()
	cfg.StartTimer = 2
	f := startSession(t, []models.UserID{alice, bob}, cfg, testGameSettings(), clock)
	ctx := context.Background()
	require.NoError(t, f.session.Connect(ctx, alice))
	require.NoError(t, f.session.Connect(ctx, bob))

	timerValues := func() []int {
		var out []int
		for _, p := range f.messenger.jsonOf(alice, models.TypeStartTimerUpdate) {
			out = append(out, decode[models.StartTimerMessage](t, p).StartTimer)
		}
		return out
	}
	assert.Equal(t, []int{2}, timerValues())

	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return len(timerValues()) == 2 }, waitFor, pollEvery)
	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return len(timerValues()) == 3 }, waitFor, pollEvery)
	assert.Equal(t, []int{2, 1, 0}, timerValues())

	start := f.session.Positions()
	require.Eventually(t, func() bool {
		clock.Advance(time.Second / time.Duration(cfg.TickRate))
		return f.session.Positions() != start
	}, waitFor, pollEvery)
}

func TestMatchSession_LocalMatch(t *testing.T) {
	f := startSession(t, []models.UserID{alice}, testMatchConfig(), testGameSettings(), clockwork.NewRealClock())
	ctx := context.Background()
	assert.True(t, f.session.IsLocal())

	require.NoError(t, f.session.Connect(ctx, alice))
	assert.Equal(t, services.StateRunning, f.session.State())

	mapping := decode[models.UserMappingMessage](t, f.messenger.jsonOf(alice, models.TypeUserMapping)[0])
	assert.True(t, mapping.IsLocalMatch)
	assert.Nil(t, mapping.Player2)

	start := f.session.Positions()
	require.NoError(t, f.session.UpdateDirection(ctx, alice, 1, game.SlotRight))
	assert.ErrorIs(t, f.session.UpdateDirection(ctx, alice, 1, 2), services.ErrInvalidSlot)
	require.Eventually(t, func() bool {
		return f.session.Positions()[3] > start[3]
	}, waitFor, pollEvery, "the slot picks the paddle")

	require.NoError(t, f.session.Disconnect(ctx, alice))
	outcome := f.waitOutcome(t)
	assert.Equal(t, services.ReasonLocalMatchAborted, outcome.Reason)
	assert.True(t, outcome.Local)
	assert.Nil(t, outcome.Winner)
}

func TestMatchSession_CancelAbortsAndNotifiesOnce(t *testing.T) {
	f := startSession(t, []models.UserID{alice, bob}, testMatchConfig(), testGameSettings(), clockwork.NewRealClock())
	var late []services.MatchOutcome

	f.cancel()
	outcome := f.waitOutcome(t)
	assert.Equal(t, services.ReasonAborted, outcome.Reason)
	require.NoError(t, <-f.runErr)

	require.Len(t, f.outcomes, 1)
	assert.Equal(t, outcome, <-f.outcomes)

	f.session.OnFinish(func(o services.MatchOutcome) { late = append(late, o) })
	require.Len(t, late, 1, "late subscribers are called right away")
	assert.Equal(t, "m1", late[0].MatchID)

	assert.Error(t, f.session.Run(context.Background()), "run is single use")
}
