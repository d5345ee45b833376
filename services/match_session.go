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

	"github.com/Dosada05/pong-arena/config"
	"github.com/Dosada05/pong-arena/game"
	"github.com/Dosada05/pong-arena/models"
)

type MatchState int

const (
	StateAwaitingConnections MatchState = iota
	StateRunning
	StatePaused
	StateFinished
)

func (s MatchState) String() string {
	switch s {
	case StateAwaitingConnections:
		return "awaiting_connections"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateFinished:
		return "finished"
	default:
		return fmt.Sprintf("MatchState(%d)", int(s))
	}
}

// FinishReason is why a match reached StateFinished.
type FinishReason string

const (
	ReasonScore                    FinishReason = "score"
	ReasonDisconnectTimeout        FinishReason = "disconnect_timeout"
	ReasonDisconnectedTooManyTimes FinishReason = "disconnected_too_many_times"
	ReasonMatchConnectTimeout      FinishReason = "match_connect_timeout"
	ReasonDraw                     FinishReason = "draw"
	ReasonLocalMatchAborted        FinishReason = "local_match_aborted"
	ReasonAborted                  FinishReason = "aborted"
	ReasonInternalError            FinishReason = "internal_error"
)

// MatchOutcome is the Finished event of a match session.
type MatchOutcome struct {
	MatchID      string
	TournamentID string
	// Users holds the assigned users in slot order: Users[0] plays the left paddle.
	Users      []models.UserID
	Local      bool
	Reason     FinishReason
	Winner     *models.UserID
	Score      [2]int
	FinishedAt time.Time
}

// FinishObserver is notified exactly once when a match finishes.
type FinishObserver func(MatchOutcome)

const countdownInterval = time.Second

type commandKind int

const (
	cmdConnect commandKind = iota
	cmdDisconnect
	cmdDirection
)

type matchCommand struct {
	kind      commandKind
	userID    models.UserID
	direction int
	slot      int
	reply     chan error
}

type reconnectExpired struct {
	userID models.UserID
	gen    uint64
}

type reconnectTimer struct {
	timer clockwork.Timer
	gen   uint64
}

type matchSnapshot struct {
	state     MatchState
	score     [2]int
	connected []models.UserID
	blocked   []models.UserID
	positions game.Positions
}

type MatchSessionParams struct {
	ID           string
	TournamentID string
	Users        []models.UserID
	Config       config.MatchConfig
	Game         game.Settings
	Clock        clockwork.Clock
	Messenger    Messenger
	Logger       *slog.Logger
	Observers    []FinishObserver
}

// MatchSession is the authoritative actor of one match. A single goroutine started by
// Run owns the simulation, the connection sets and every timer; Connect, Disconnect and
// UpdateDirection post commands to it.
type MatchSession struct {
	id           string
	tournamentID string
	users        []models.UserID
	local        bool
	room         string
	cfg          config.MatchConfig
	clock        clockwork.Clock
	messenger    Messenger
	logger       *slog.Logger

	commands    chan matchCommand
	timerEvents chan reconnectExpired
	done        chan struct{}
	runOnce     sync.Once

	mu        sync.RWMutex
	snapshot  matchSnapshot
	observers []FinishObserver
	outcome   *MatchOutcome

	// Owned by the run goroutine.
	sim             *game.Simulation
	slots           map[models.UserID]int
	connected       map[models.UserID]bool
	blocked         map[models.UserID]bool
	disconnects     map[models.UserID]int
	reconnectTimers map[models.UserID]reconnectTimer
	timerGen        uint64
	connectTimer    clockwork.Timer
	countdownTicker clockwork.Ticker
	tickTicker      clockwork.Ticker
	countdown       int
	score           [2]int
	state           MatchState
	ending          bool
	reason          FinishReason
	winner          *models.UserID
}

func NewMatchSession(p MatchSessionParams) (*MatchSession, error) {
	if len(p.Users) < 1 || len(p.Users) > 2 || (len(p.Users) == 2 && p.Users[0] == p.Users[1]) {
		return nil, ErrInvalidPlayers
	}
	if p.Messenger == nil {
		return nil, errors.New("match session requires a messenger")
	}
	if p.Clock == nil {
		p.Clock = clockwork.NewRealClock()
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	settings := p.Game
	settings.TickRate = p.Config.TickRate
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid game settings: %w", err)
	}
	if err := p.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid match config: %w", err)
	}

	m := &MatchSession{
		id:              p.ID,
		tournamentID:    p.TournamentID,
		users:           append([]models.UserID(nil), p.Users...),
		local:           len(p.Users) == 1,
		room:            MatchRoom(p.ID),
		cfg:             p.Config,
		clock:           p.Clock,
		messenger:       p.Messenger,
		logger:          p.Logger.With(slog.String("match_id", p.ID)),
		commands:        make(chan matchCommand, 16),
		timerEvents:     make(chan reconnectExpired, 4),
		done:            make(chan struct{}),
		observers:       append([]FinishObserver(nil), p.Observers...),
		sim:             game.NewSimulation(settings),
		slots:           make(map[models.UserID]int, len(p.Users)),
		connected:       make(map[models.UserID]bool, len(p.Users)),
		blocked:         make(map[models.UserID]bool),
		disconnects:     make(map[models.UserID]int),
		reconnectTimers: make(map[models.UserID]reconnectTimer),
		state:           StateAwaitingConnections,
	}
	for i, u := range m.users {
		m.slots[u] = i
	}
	m.publish()
	return m, nil
}

func (m *MatchSession) ID() string             { return m.id }
func (m *MatchSession) TournamentID() string   { return m.tournamentID }
func (m *MatchSession) IsLocal() bool          { return m.local }
func (m *MatchSession) Done() <-chan struct{}  { return m.done }
func (m *MatchSession) Users() []models.UserID { return append([]models.UserID(nil), m.users...) }
func (m *MatchSession) IsAssigned(u models.UserID) bool {
	_, ok := m.slots[u]
	return ok
}

func (m *MatchSession) State() MatchState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot.state
}

func (m *MatchSession) Score() [2]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot.score
}

func (m *MatchSession) ConnectedUsers() []models.UserID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.UserID(nil), m.snapshot.connected...)
}

// BlockedUsers lists the users who let their reconnect window expire.
func (m *MatchSession) BlockedUsers() []models.UserID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.UserID(nil), m.snapshot.blocked...)
}

func (m *MatchSession) Positions() game.Positions {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot.positions
}

// Outcome returns the Finished event once the match has finished.
func (m *MatchSession) Outcome() (MatchOutcome, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.outcome == nil {
		return MatchOutcome{}, false
	}
	return *m.outcome, true
}

// OnFinish subscribes obs to the Finished event. Subscribing after the match finished
// calls obs right away.
func (m *MatchSession) OnFinish(obs FinishObserver) {
	m.mu.Lock()
	if m.outcome == nil {
		m.observers = append(m.observers, obs)
		m.mu.Unlock()
		return
	}
	outcome := *m.outcome
	m.mu.Unlock()
	obs(outcome)
}

func (m *MatchSession) Connect(ctx context.Context, userID models.UserID) error {
	return m.submit(ctx, matchCommand{kind: cmdConnect, userID: userID})
}

func (m *MatchSession) Disconnect(ctx context.Context, userID models.UserID) error {
	return m.submit(ctx, matchCommand{kind: cmdDisconnect, userID: userID})
}

// UpdateDirection moves the paddle of userID. slot is only read for local matches,
// where a single connection drives both paddles.
func (m *MatchSession) UpdateDirection(ctx context.Context, userID models.UserID, direction, slot int) error {
	return m.submit(ctx, matchCommand{kind: cmdDirection, userID: userID, direction: direction, slot: slot})
}

func (m *MatchSession) submit(ctx context.Context, cmd matchCommand) error {
	cmd.reply = make(chan error, 1)
	select {
	case m.commands <- cmd:
	case <-m.done:
		return ErrMatchFinished
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-m.done:
		select {
		case err := <-cmd.reply:
			return err
		default:
			return ErrMatchFinished
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drives the match until it finishes. Cancelling ctx ends the match with ReasonAborted.
// Observers and connection teardown complete before Run returns.
func (m *MatchSession) Run(ctx context.Context) error {
	first := false
	m.runOnce.Do(func() { first = true })
	if !first {
		return fmt.Errorf("match %s: run called twice", m.id)
	}

	defer m.finalize()
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Match session panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			if !m.ending {
				m.ending = true
				m.reason = ReasonInternalError
				m.winner = nil
				m.state = StateFinished
				m.publish()
			}
		}
	}()

	m.connectTimer = m.clock.NewTimer(m.cfg.ConnectTimeout)
	m.logger.Info("Match session started",
		slog.Any("users", m.users),
		slog.Bool("local", m.local),
		slog.String("tournament_id", m.tournamentID))

	for !m.ending {
		select {
		case <-ctx.Done():
			m.end(ReasonAborted)
		case cmd := <-m.commands:
			cmd.reply <- m.handle(cmd)
		case ev := <-m.timerEvents:
			m.onReconnectExpired(ev)
		case <-timerChan(m.connectTimer):
			m.connectTimer = nil
			if m.state == StateAwaitingConnections {
				m.logger.Info("Not every user connected in time", slog.Duration("timeout", m.cfg.ConnectTimeout))
				m.end(ReasonMatchConnectTimeout)
			}
		case <-tickerChan(m.countdownTicker):
			m.onCountdown()
		case <-tickerChan(m.tickTicker):
			m.onTick()
		}
	}
	return nil
}

func (m *MatchSession) handle(cmd matchCommand) error {
	switch cmd.kind {
	case cmdConnect:
		return m.onConnect(cmd.userID)
	case cmdDisconnect:
		return m.onDisconnect(cmd.userID)
	case cmdDirection:
		return m.onDirection(cmd.userID, cmd.direction, cmd.slot)
	default:
		return fmt.Errorf("unknown command %d", cmd.kind)
	}
}

func (m *MatchSession) onConnect(userID models.UserID) error {
	log := m.logger.With(slog.String("user_id", userID.String()))
	if m.state == StateFinished {
		log.Warn("Connect to a finished match ignored")
		return ErrMatchFinished
	}
	if !m.IsAssigned(userID) {
		log.Warn("Connect from a user not assigned to the match")
		return ErrNotAssigned
	}
	if m.blocked[userID] {
		log.Warn("Connect from a user who failed to reconnect in time")
		return ErrUserBlocked
	}

	m.cancelReconnect(userID)
	wasConnected := m.connected[userID]
	m.connected[userID] = true
	m.publish()
	m.sendInitialState(userID)
	log.Info("User connected", slog.Bool("reconnect", m.disconnects[userID] > 0))

	if len(m.blocked) == 1 {
		m.end(ReasonDisconnectTimeout)
		return nil
	}
	if len(m.connected) < len(m.users) {
		return nil
	}

	if m.connectTimer != nil {
		m.connectTimer.Stop()
		m.connectTimer = nil
	}
	m.setState(StateRunning)
	if !(wasConnected && m.tickTicker != nil) {
		m.startCountdown()
	}
	return nil
}

func (m *MatchSession) onDisconnect(userID models.UserID) error {
	log := m.logger.With(slog.String("user_id", userID.String()))
	if !m.IsAssigned(userID) {
		log.Warn("Disconnect from a user not assigned to the match")
		return ErrNotAssigned
	}
	if !m.connected[userID] {
		return ErrNotConnected
	}

	delete(m.connected, userID)
	m.publish()

	if m.local {
		log.Info("Local match connection closed")
		m.end(ReasonLocalMatchAborted)
		return nil
	}

	for u := range m.connected {
		m.messenger.SendJSON(m.room, u, models.UserDisconnectedMessage{
			Type:   models.TypeUserDisconnected,
			UserID: userID,
		})
	}

	m.disconnects[userID]++
	log.Info("User disconnected", slog.Int("disconnects", m.disconnects[userID]))
	if m.disconnects[userID] >= m.cfg.MaxReconnections {
		m.end(ReasonDisconnectedTooManyTimes)
		return nil
	}

	m.stopPlay()
	if m.state == StateRunning {
		m.setState(StatePaused)
	}
	m.startReconnect(userID)
	return nil
}

func (m *MatchSession) onDirection(userID models.UserID, direction, slot int) error {
	if !m.IsAssigned(userID) {
		m.logger.Warn("Input from a user not assigned to the match", slog.String("user_id", userID.String()))
		return ErrNotAssigned
	}
	if !m.connected[userID] {
		m.logger.Warn("Input from a user not connected to the match", slog.String("user_id", userID.String()))
		return ErrNotConnected
	}
	if direction < -1 || direction > 1 {
		return ErrInvalidDirection
	}
	target := m.slots[userID]
	if m.local {
		if slot != game.SlotLeft && slot != game.SlotRight {
			return ErrInvalidSlot
		}
		target = slot
	}
	m.sim.SetDirection(target, direction)
	return nil
}

func (m *MatchSession) startReconnect(userID models.UserID) {
	m.cancelReconnect(userID)
	m.timerGen++
	ev := reconnectExpired{userID: userID, gen: m.timerGen}
	timer := m.clock.AfterFunc(m.cfg.ReconnectTimeout, func() {
		select {
		case m.timerEvents <- ev:
		case <-m.done:
		}
	})
	m.reconnectTimers[userID] = reconnectTimer{timer: timer, gen: ev.gen}
}

func (m *MatchSession) cancelReconnect(userID models.UserID) {
	if rt, ok := m.reconnectTimers[userID]; ok {
		rt.timer.Stop()
		delete(m.reconnectTimers, userID)
	}
}

func (m *MatchSession) onReconnectExpired(ev reconnectExpired) {
	rt, ok := m.reconnectTimers[ev.userID]
	if !ok || rt.gen != ev.gen {
		return
	}
	delete(m.reconnectTimers, ev.userID)
	if m.connected[ev.userID] {
		return
	}

	m.blocked[ev.userID] = true
	m.publish()
	m.logger.Info("User did not reconnect in time",
		slog.String("user_id", ev.userID.String()),
		slog.Duration("timeout", m.cfg.ReconnectTimeout))

	switch {
	case len(m.connected) > 0:
		m.end(ReasonDisconnectTimeout)
	case len(m.blocked) == len(m.users):
		m.end(ReasonDraw)
	}
}

func (m *MatchSession) startCountdown() {
	m.stopPlay()
	m.countdown = m.cfg.StartTimer
	if m.countdown <= 0 {
		m.startTicking()
		return
	}
	m.broadcast(models.StartTimerMessage{Type: models.TypeStartTimerUpdate, StartTimer: m.countdown})
	m.countdownTicker = m.clock.NewTicker(countdownInterval)
}

func (m *MatchSession) onCountdown() {
	m.countdown--
	m.broadcast(models.StartTimerMessage{Type: models.TypeStartTimerUpdate, StartTimer: m.countdown})
	if m.countdown > 0 {
		return
	}
	m.countdownTicker.Stop()
	m.countdownTicker = nil
	m.startTicking()
}

func (m *MatchSession) startTicking() {
	m.tickTicker = m.clock.NewTicker(time.Second / time.Duration(m.cfg.TickRate))
}

// stopPlay halts the countdown and the simulation ticks.
func (m *MatchSession) stopPlay() {
	if m.countdownTicker != nil {
		m.countdownTicker.Stop()
		m.countdownTicker = nil
	}
	if m.tickTicker != nil {
		m.tickTicker.Stop()
		m.tickTicker = nil
	}
}

func (m *MatchSession) onTick() {
	scorer, scored := m.sim.Advance()
	if scored {
		m.score[scorer]++
		m.publish()
		m.broadcast(m.scoresMessage())
		if m.score[scorer] >= m.cfg.ScoreLimit {
			m.end(ReasonScore)
			return
		}
	} else {
		m.publishPositions()
	}
	m.broadcastPositions()
}

// end moves the session to StateFinished. Only the first call has an effect.
func (m *MatchSession) end(reason FinishReason) {
	if m.ending {
		return
	}
	m.ending = true
	m.reason = reason
	m.stopPlay()

	switch reason {
	case ReasonDisconnectTimeout, ReasonDisconnectedTooManyTimes:
		if len(m.connected) == 1 {
			for u := range m.connected {
				m.winner = models.UserIDPtr(u)
				slot := m.slots[u]
				if m.score[slot] < m.cfg.ScoreLimit {
					m.score[slot] = m.cfg.ScoreLimit
				}
			}
		}
	case ReasonScore:
		if m.score[0] > m.score[1] {
			m.winner = models.UserIDPtr(m.users[0])
		} else if len(m.users) == 2 && m.score[1] > m.score[0] {
			m.winner = models.UserIDPtr(m.users[1])
		}
	}
	m.setState(StateFinished)
}

// finalize runs once after the loop exits: timers are cancelled first, then clients
// learn the result, then observers run, then the connections are closed.
func (m *MatchSession) finalize() {
	if m.connectTimer != nil {
		m.connectTimer.Stop()
		m.connectTimer = nil
	}
	m.stopPlay()
	for u := range m.reconnectTimers {
		m.cancelReconnect(u)
	}

	outcome := MatchOutcome{
		MatchID:      m.id,
		TournamentID: m.tournamentID,
		Users:        append([]models.UserID(nil), m.users...),
		Local:        m.local,
		Reason:       m.reason,
		Winner:       m.winner,
		Score:        m.score,
		FinishedAt:   m.clock.Now(),
	}

	m.mu.Lock()
	m.outcome = &outcome
	observers := m.observers
	m.observers = nil
	m.mu.Unlock()

	m.broadcast(m.scoresMessage())
	m.broadcast(models.GameOverMessage{Type: models.TypeGameOver, Winner: m.winner, Reason: string(m.reason)})

	for _, obs := range observers {
		m.notify(obs, outcome)
	}
	for _, u := range m.users {
		m.messenger.Disconnect(m.room, u)
	}
	close(m.done)

	winner := ""
	if m.winner != nil {
		winner = m.winner.String()
	}
	m.logger.Info("Match finished",
		slog.String("reason", string(m.reason)),
		slog.String("winner", winner),
		slog.Int("score_left", m.score[0]),
		slog.Int("score_right", m.score[1]))
}

func (m *MatchSession) notify(obs FinishObserver, outcome MatchOutcome) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Match finish observer panicked", slog.Any("panic", r))
		}
	}()
	obs(outcome)
}

func (m *MatchSession) setState(s MatchState) {
	if m.state == s {
		return
	}
	m.logger.Debug("Match state changed", slog.String("from", m.state.String()), slog.String("to", s.String()))
	m.state = s
	m.publish()
}

func (m *MatchSession) publish() {
	connected := make([]models.UserID, 0, len(m.connected))
	var blocked []models.UserID
	for _, u := range m.users {
		if m.connected[u] {
			connected = append(connected, u)
		}
		if m.blocked[u] {
			blocked = append(blocked, u)
		}
	}
	m.mu.Lock()
	m.snapshot = matchSnapshot{
		state:     m.state,
		score:     m.score,
		connected: connected,
		blocked:   blocked,
		positions: m.sim.Positions(),
	}
	m.mu.Unlock()
}

func (m *MatchSession) publishPositions() {
	p := m.sim.Positions()
	m.mu.Lock()
	m.snapshot.positions = p
	m.mu.Unlock()
}

func (m *MatchSession) scoresMessage() models.PlayerScoresMessage {
	return models.PlayerScoresMessage{Type: models.TypePlayerScores, Player1: m.score[0], Player2: m.score[1]}
}

func (m *MatchSession) sendInitialState(userID models.UserID) {
	mapping := models.UserMappingMessage{
		Type:         models.TypeUserMapping,
		IsLocalMatch: m.local,
		Player1:      m.users[0],
	}
	if len(m.users) == 2 {
		mapping.Player2 = models.UserIDPtr(m.users[1])
	}
	m.messenger.SendJSON(m.room, userID, mapping)
	if frame, err := m.sim.Positions().MarshalBinary(); err == nil {
		m.messenger.SendBinary(m.room, userID, frame)
	}
	m.messenger.SendJSON(m.room, userID, m.scoresMessage())
}

func (m *MatchSession) broadcast(v any) {
	for _, u := range m.users {
		m.messenger.SendJSON(m.room, u, v)
	}
}

func (m *MatchSession) broadcastPositions() {
	frame, err := m.sim.Positions().MarshalBinary()
	if err != nil {
		m.logger.Error("Failed to encode position frame", slog.Any("error", err))
		return
	}
	for _, u := range m.users {
		m.messenger.SendBinary(m.room, u, frame)
	}
}

func timerChan(t clockwork.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.Chan()
}

func tickerChan(t clockwork.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.Chan()
}
