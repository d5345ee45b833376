package models

import "time"

// TournamentRound records one round-robin round of a tournament.
type TournamentRound struct {
	Number     int             `json:"number"`
	Schedule   []ScheduledPair `json:"schedule"`
	Results    []*UserID       `json:"results"`
	Scores     map[UserID]int  `json:"scores"`
	Eliminated []UserID        `json:"eliminated,omitempty"`
}

// TournamentSummary is the archived outcome of a finished or canceled tournament.
type TournamentSummary struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Owner      UserID            `json:"owner"`
	Players    []UserID          `json:"players"`
	Rounds     []TournamentRound `json:"rounds"`
	WinCounts  map[UserID]int    `json:"win_counts"`
	Winner     *UserID           `json:"winner"`
	Canceled   bool              `json:"canceled"`
	FinishedAt time.Time         `json:"finished_at"`
}
