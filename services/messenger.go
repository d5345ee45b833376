package services

import "github.com/Dosada05/pong-arena/models"

// LobbyRoom carries matchmaking and tournament traffic of a user.
const LobbyRoom = "lobby"

// MatchRoom is the room of the connections that play match id.
func MatchRoom(matchID string) string {
	return "match_" + matchID
}

// Messenger delivers frames to the connection a user holds in a room. Delivery is
// best effort: frames addressed to a user without a connection are dropped. Frames
// sent to one connection arrive in the order they were sent.
type Messenger interface {
	SendJSON(room string, userID models.UserID, v any)
	SendBinary(room string, userID models.UserID, data []byte)
	// Disconnect closes the user's connection in room once pending frames are written.
	Disconnect(room string, userID models.UserID)
}
