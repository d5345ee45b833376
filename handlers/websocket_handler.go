package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/Dosada05/pong-arena/hub"
	"github.com/Dosada05/pong-arena/middleware"
	"github.com/Dosada05/pong-arena/models"
	"github.com/Dosada05/pong-arena/services"
)

// WebSocketHandler is the transport gateway: the lobby connection carries matchmaking,
// local match and tournament requests; a match connection carries one match.
type WebSocketHandler struct {
	hub         *hub.Hub
	matches     *services.MatchService
	queue       *services.MatchmakingQueue
	tournaments *services.TournamentService
	upgrader    websocket.Upgrader
	logger      *slog.Logger

	// Serializes connecting and disconnecting the same user to the same match.
	attach keyedMutex
}

func NewWebSocketHandler(
	h *hub.Hub,
	matches *services.MatchService,
	queue *services.MatchmakingQueue,
	tournaments *services.TournamentService,
	allowedOrigins []string,
	logger *slog.Logger,
) *WebSocketHandler {
	return &WebSocketHandler{
		hub:         h,
		matches:     matches,
		queue:       queue,
		tournaments: tournaments,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger,
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// ServeLobby handles GET /ws/lobby.
func (h *WebSocketHandler) ServeLobby(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Failed to upgrade lobby connection", slog.String("user_id", userID.String()), slog.Any("error", err))
		return
	}

	client := h.hub.NewClient(conn, services.LobbyRoom, userID)
	h.hub.Register(client)
	go client.WritePump()

	if m, ok := h.matches.ActiveMatch(userID); ok {
		h.hub.SendJSON(services.LobbyRoom, userID, models.MatchAssignedMessage{
			Type:         models.TypeMatchAssigned,
			MatchID:      m.ID(),
			TournamentID: m.TournamentID(),
		})
	}

	ctx := r.Context()
	client.ReadPump(func(messageType int, data []byte) {
		h.handleLobbyMessage(ctx, userID, messageType, data)
	})

	if h.hub.Unregister(client) {
		h.queue.Remove(context.Background(), userID)
	}
}

func (h *WebSocketHandler) handleLobbyMessage(ctx context.Context, userID models.UserID, messageType int, data []byte) {
	msg, ok := h.decode(userID, messageType, data)
	if !ok {
		return
	}

	var err error
	switch msg.Type {
	case models.TypeMatchmakingJoin:
		if msg.MatchType != models.MatchTypeOnline {
			err = services.ErrInvalidMatchType
			break
		}
		err = h.queue.Enqueue(ctx, userID)
	case models.TypeMatchmakingLeave:
		h.queue.Remove(ctx, userID)
	case models.TypeLocalMatchCreate:
		_, err = h.matches.CreateLocalMatch(ctx, userID)
	case models.TypeTournamentCreate:
		_, err = h.tournaments.Create(ctx, userID, msg.Name, msg.MaxPlayers)
	case models.TypeTournamentRegister:
		err = h.tournaments.Register(ctx, msg.TournamentID, userID)
	case models.TypeTournamentUnregister:
		err = h.tournaments.Unregister(ctx, msg.TournamentID, userID)
	case models.TypeTournamentStart:
		err = h.tournaments.Start(ctx, msg.TournamentID, userID)
	case models.TypeTournamentCancel:
		err = h.tournaments.Cancel(ctx, msg.TournamentID, userID)
	case models.TypeTournamentGetOpen:
		h.hub.SendJSON(services.LobbyRoom, userID, models.TournamentListMessage{
			Type:        models.TypeTournamentList,
			Tournaments: h.tournaments.OpenTournaments(),
		})
	default:
		h.logger.Warn("Unknown lobby message type dropped",
			slog.String("user_id", userID.String()),
			slog.String("type", string(msg.Type)))
		return
	}

	if err != nil {
		h.reject(services.LobbyRoom, userID, msg.Type, err)
	}
}

// ServeMatch handles GET /ws/matches/{matchID}. Opening the connection connects the
// user to the match; closing it disconnects the user.
func (h *WebSocketHandler) ServeMatch(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}
	matchID := chi.URLParam(r, "matchID")
	session, err := h.matches.GetMatch(matchID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if !session.IsAssigned(userID) {
		mapServiceErrorToHTTP(w, r, services.ErrNotAssigned)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Failed to upgrade match connection", slog.String("match_id", matchID), slog.Any("error", err))
		return
	}

	room := services.MatchRoom(matchID)
	key := room + "|" + userID.String()
	client := h.hub.NewClient(conn, room, userID)

	unlock := h.attach.Lock(key)
	h.hub.Register(client)
	go client.WritePump()

	ctx := r.Context()
	if err := session.Connect(ctx, userID); err != nil {
		h.reject(room, userID, "", err)
		h.hub.Disconnect(room, userID)
		unlock()
		client.ReadPump(func(int, []byte) {})
		h.hub.Unregister(client)
		return
	}
	unlock()

	client.ReadPump(func(messageType int, data []byte) {
		h.handleMatchMessage(ctx, session, userID, messageType, data)
	})

	unlock = h.attach.Lock(key)
	defer unlock()
	// Skipped when a newer connection of the user took over.
	if h.hub.Unregister(client) && !h.hub.Connected(room, userID) {
		err := session.Disconnect(context.Background(), userID)
		if err != nil && !errors.Is(err, services.ErrMatchFinished) && !errors.Is(err, services.ErrNotConnected) {
			h.logger.Warn("Failed to disconnect user from match",
				slog.String("match_id", matchID),
				slog.String("user_id", userID.String()),
				slog.Any("error", err))
		}
	}
}

func (h *WebSocketHandler) handleMatchMessage(ctx context.Context, session *services.MatchSession, userID models.UserID, messageType int, data []byte) {
	msg, ok := h.decode(userID, messageType, data)
	if !ok {
		return
	}
	if msg.Type != models.TypePlayerInput || msg.Direction == nil {
		h.logger.Warn("Unexpected match message dropped",
			slog.String("match_id", session.ID()),
			slog.String("user_id", userID.String()),
			slog.String("type", string(msg.Type)))
		return
	}
	slot := 0
	if msg.PlayerID != nil {
		slot = *msg.PlayerID
	}
	if err := session.UpdateDirection(ctx, userID, *msg.Direction, slot); err != nil {
		h.logger.Debug("Player input rejected",
			slog.String("match_id", session.ID()),
			slog.String("user_id", userID.String()),
			slog.Any("error", err))
	}
}

// decode parses a JSON control frame. Malformed frames are logged and dropped.
func (h *WebSocketHandler) decode(userID models.UserID, messageType int, data []byte) (models.InboundMessage, bool) {
	var msg models.InboundMessage
	if messageType != websocket.TextMessage {
		h.logger.Warn("Non-text frame dropped", slog.String("user_id", userID.String()))
		return msg, false
	}
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
		h.logger.Warn("Malformed frame dropped", slog.String("user_id", userID.String()), slog.Any("error", err))
		return msg, false
	}
	return msg, true
}

func (h *WebSocketHandler) reject(room string, userID models.UserID, request models.MessageType, err error) {
	level := slog.LevelWarn
	if errorCode(err) == "internal_error" {
		level = slog.LevelError
	}
	h.logger.Log(context.Background(), level, "Request rejected",
		slog.String("user_id", userID.String()),
		slog.String("request", string(request)),
		slog.Any("error", err))
	h.hub.SendJSON(room, userID, models.NewErrorMessage(errorCode(err), errorMessage(err)))
}

// keyedMutex hands out one mutex per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// Lock blocks until key is free and returns the matching unlock.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
