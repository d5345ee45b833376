package models

// MessageType discriminates every JSON frame exchanged with a client.
type MessageType string

// Inbound message types.
const (
	TypePlayerInput          MessageType = "player_input"
	TypeMatchmakingJoin      MessageType = "matchmaking_join"
	TypeMatchmakingLeave     MessageType = "matchmaking_leave"
	TypeLocalMatchCreate     MessageType = "local_match_create"
	TypeTournamentCreate     MessageType = "tournament_create"
	TypeTournamentRegister   MessageType = "tournament_register"
	TypeTournamentUnregister MessageType = "tournament_unregister"
	TypeTournamentStart      MessageType = "tournament_start"
	TypeTournamentCancel     MessageType = "tournament_cancel"
	TypeTournamentGetOpen    MessageType = "tournament_get_open"
)

// Outbound message types.
const (
	TypeUserMapping            MessageType = "user_mapping"
	TypeStartTimerUpdate       MessageType = "start_timer_update"
	TypePlayerScores           MessageType = "player_scores"
	TypeGameOver               MessageType = "game_over"
	TypeUserDisconnected       MessageType = "user_disconnected"
	TypeMatchAssigned          MessageType = "match_assigned"
	TypeMatchmakingQueued      MessageType = "matchmaking_queued"
	TypeMatchmakingLeft        MessageType = "matchmaking_left"
	TypeTournamentCreated      MessageType = "tournament_created"
	TypeTournamentRegistered   MessageType = "tournament_registered"
	TypeTournamentUnregistered MessageType = "tournament_unregistered"
	TypeTournamentStarted      MessageType = "tournament_started"
	TypeTournamentSchedule     MessageType = "tournament_schedule"
	TypeTournamentDropOut      MessageType = "tournament_drop_out"
	TypeTournamentFinished     MessageType = "tournament_finished"
	TypeTournamentCanceled     MessageType = "tournament_canceled"
	TypeTournamentList         MessageType = "tournament_list"
	TypeError                  MessageType = "error"
)

// MatchTypeOnline is the only match_type accepted by matchmaking_join.
const MatchTypeOnline = "online"

// InboundMessage is the union of every client request. Fields not used by Type stay zero.
type InboundMessage struct {
	Type         MessageType `json:"type"`
	Direction    *int        `json:"direction,omitempty"`
	PlayerID     *int        `json:"player_id,omitempty"`
	MatchType    string      `json:"match_type,omitempty"`
	Name         string      `json:"name,omitempty"`
	MaxPlayers   int         `json:"max_players,omitempty"`
	TournamentID string      `json:"tournament_id,omitempty"`
}

type UserMappingMessage struct {
	Type         MessageType `json:"type"`
	IsLocalMatch bool        `json:"is_local_match"`
	Player1      UserID      `json:"player1"`
	Player2      *UserID     `json:"player2,omitempty"`
}

type StartTimerMessage struct {
	Type       MessageType `json:"type"`
	StartTimer int         `json:"start_timer"`
}

type PlayerScoresMessage struct {
	Type    MessageType `json:"type"`
	Player1 int         `json:"player1"`
	Player2 int         `json:"player2"`
}

type GameOverMessage struct {
	Type   MessageType `json:"type"`
	Winner *UserID     `json:"winner"`
	Reason string      `json:"reason"`
}

type UserDisconnectedMessage struct {
	Type   MessageType `json:"type"`
	UserID UserID      `json:"user_id"`
}

type MatchAssignedMessage struct {
	Type         MessageType `json:"type"`
	MatchID      string      `json:"match_id"`
	TournamentID string      `json:"tournament_id,omitempty"`
}

type QueueMessage struct {
	Type     MessageType `json:"type"`
	Position int         `json:"position,omitempty"`
}

type ScheduledPair struct {
	Player1 UserID `json:"player1"`
	Player2 UserID `json:"player2"`
}

type TournamentScheduleMessage struct {
	Type         MessageType     `json:"type"`
	TournamentID string          `json:"tournament_id"`
	Round        int             `json:"round"`
	Matches      []ScheduledPair `json:"matches"`
}

type TournamentDropOutMessage struct {
	Type         MessageType `json:"type"`
	TournamentID string      `json:"tournament_id"`
	Round        int         `json:"round"`
	UserIDs      []UserID    `json:"user_ids"`
}

type TournamentFinishedMessage struct {
	Type         MessageType    `json:"type"`
	TournamentID string         `json:"tournament_id"`
	Winner       *UserID        `json:"winner"`
	UserScores   map[UserID]int `json:"user_scores"`
}

type TournamentCanceledMessage struct {
	Type         MessageType `json:"type"`
	TournamentID string      `json:"tournament_id"`
}

// TournamentInfo is the public view of a tournament roster.
type TournamentInfo struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Owner      UserID   `json:"owner"`
	MaxPlayers int      `json:"max_players"`
	Players    []UserID `json:"players"`
	Running    bool     `json:"running"`
}

type TournamentEventMessage struct {
	Type       MessageType    `json:"type"`
	Tournament TournamentInfo `json:"tournament"`
	UserID     UserID         `json:"user_id,omitempty"`
}

type TournamentListMessage struct {
	Type        MessageType      `json:"type"`
	Tournaments []TournamentInfo `json:"tournaments"`
}

type ErrorMessage struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
	Code    string      `json:"code,omitempty"`
}

func NewErrorMessage(code, message string) ErrorMessage {
	return ErrorMessage{Type: TypeError, Code: code, Message: message}
}
