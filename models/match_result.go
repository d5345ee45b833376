package models

import "time"

// MatchResult is the record handed to persistence once a remote match has finished.
type MatchResult struct {
	ID            int64     `json:"id"`
	MatchID       string    `json:"match_id"`
	TournamentID  *string   `json:"tournament_id,omitempty"`
	HomeUserID    UserID    `json:"home_user_id"`
	VisitorUserID UserID    `json:"visitor_user_id"`
	HomeScore     int       `json:"home_score"`
	VisitorScore  int       `json:"visitor_score"`
	WinnerUserID  *UserID   `json:"winner_user_id,omitempty"`
	Reason        string    `json:"reason"`
	FinishedAt    time.Time `json:"finished_at"`
}
