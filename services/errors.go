package services

import (
	"errors"
	"fmt"

	"github.com/Dosada05/pong-arena/models"
)

var (
	// Match session
	ErrNotAssigned      = errors.New("user is not assigned to this match")
	ErrNotConnected     = errors.New("user is not connected to this match")
	ErrMatchFinished    = errors.New("match is already finished")
	ErrUserBlocked      = errors.New("user failed to reconnect in time")
	ErrInvalidDirection = errors.New("direction must be -1, 0 or 1")
	ErrInvalidSlot      = errors.New("player slot must be 0 or 1")
	ErrInvalidPlayers   = errors.New("a match needs one or two distinct users")
	ErrMatchNotFound    = errors.New("match not found")

	// Matchmaking
	ErrInvalidMatchType = errors.New("unsupported match type")

	// Tournaments
	ErrTournamentNotFound = errors.New("tournament not found")
	ErrTournamentStarted  = errors.New("tournament has already started")
	ErrTournamentFull     = errors.New("tournament is full")
	ErrNotTournamentOwner = errors.New("only the tournament owner can perform this action")
	ErrNotEnoughPlayers   = errors.New("not enough players to start the tournament")
	ErrInvalidTournament  = errors.New("invalid tournament settings")
	ErrNotInTournament    = errors.New("user is not registered in this tournament")

	ErrAlreadyRegistered = errors.New("user is already registered")
	ErrServiceClosed     = errors.New("service is shutting down")
)

// RegistrationKind names what a user is already taking part in.
type RegistrationKind string

const (
	KindQueue      RegistrationKind = "queue"
	KindMatch      RegistrationKind = "match"
	KindTournament RegistrationKind = "tournament"
)

// AlreadyRegisteredError is returned by every double-registration check.
// errors.Is(err, ErrAlreadyRegistered) holds for it.
type AlreadyRegisteredError struct {
	UserID    models.UserID
	Kind      RegistrationKind
	SessionID string
}

func (e *AlreadyRegisteredError) Error() string {
	if e.SessionID == "" {
		return fmt.Sprintf("user %s is already in the %s", e.UserID, e.Kind)
	}
	return fmt.Sprintf("user %s is already in %s %s", e.UserID, e.Kind, e.SessionID)
}

func (e *AlreadyRegisteredError) Is(target error) bool {
	return target == ErrAlreadyRegistered
}

func alreadyRegistered(userID models.UserID, kind RegistrationKind, sessionID string) error {
	return &AlreadyRegisteredError{UserID: userID, Kind: kind, SessionID: sessionID}
}
