package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/pong-arena/models"
)

var (
	ErrMatchResultNotFound = errors.New("match result not found")
	ErrMatchResultConflict = errors.New("match result already recorded")
)

const matchResultsMatchIDKey = "match_results_match_id_key"

type MatchResultRepository interface {
	Create(ctx context.Context, result *models.MatchResult) error
	GetByMatchID(ctx context.Context, matchID string) (*models.MatchResult, error)
	ListByUser(ctx context.Context, userID models.UserID, limit int) ([]models.MatchResult, error)
}

type postgresMatchResultRepository struct {
	db SQLExecutor
}

func NewPostgresMatchResultRepository(db SQLExecutor) MatchResultRepository {
	return &postgresMatchResultRepository{db: db}
}

const matchResultColumns = `id, match_id, tournament_id, home_user_id, visitor_user_id,
	home_score, visitor_score, winner_user_id, reason, finished_at`

func (r *postgresMatchResultRepository) Create(ctx context.Context, result *models.MatchResult) error {
	query := `INSERT INTO match_results
		(match_id, tournament_id, home_user_id, visitor_user_id, home_score, visitor_score, winner_user_id, reason, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	err := r.db.QueryRowContext(ctx, query,
		result.MatchID,
		nullString(result.TournamentID),
		string(result.HomeUserID),
		string(result.VisitorUserID),
		result.HomeScore,
		result.VisitorScore,
		nullUserID(result.WinnerUserID),
		result.Reason,
		result.FinishedAt,
	).Scan(&result.ID)
	if err != nil {
		if isUniqueViolation(err, matchResultsMatchIDKey) {
			return ErrMatchResultConflict
		}
		return fmt.Errorf("failed to insert match result %s: %w", result.MatchID, err)
	}
	return nil
}

func (r *postgresMatchResultRepository) GetByMatchID(ctx context.Context, matchID string) (*models.MatchResult, error) {
	query := `SELECT ` + matchResultColumns + ` FROM match_results WHERE match_id = $1`

	result, err := scanMatchResult(r.db.QueryRowContext(ctx, query, matchID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMatchResultNotFound
		}
		return nil, fmt.Errorf("failed to get match result %s: %w", matchID, err)
	}
	return result, nil
}

func (r *postgresMatchResultRepository) ListByUser(ctx context.Context, userID models.UserID, limit int) ([]models.MatchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + matchResultColumns + ` FROM match_results
		WHERE home_user_id = $1 OR visitor_user_id = $1
		ORDER BY finished_at DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, string(userID), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list match results of user %s: %w", userID, err)
	}
	defer rows.Close()

	results := make([]models.MatchResult, 0)
	for rows.Next() {
		result, err := scanMatchResult(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match result: %w", err)
		}
		results = append(results, *result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate match results: %w", err)
	}
	return results, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMatchResult(row rowScanner) (*models.MatchResult, error) {
	var (
		result       models.MatchResult
		tournamentID sql.NullString
		winner       sql.NullString
		home         string
		visitor      string
	)
	err := row.Scan(
		&result.ID,
		&result.MatchID,
		&tournamentID,
		&home,
		&visitor,
		&result.HomeScore,
		&result.VisitorScore,
		&winner,
		&result.Reason,
		&result.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	result.HomeUserID = models.UserID(home)
	result.VisitorUserID = models.UserID(visitor)
	if tournamentID.Valid {
		result.TournamentID = &tournamentID.String
	}
	if winner.Valid {
		result.WinnerUserID = models.UserIDPtr(models.UserID(winner.String))
	}
	return &result, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullUserID(id *models.UserID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*id), Valid: true}
}
