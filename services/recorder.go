package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Dosada05/pong-arena/models"
	"github.com/Dosada05/pong-arena/repositories"
)

const recordTimeout = 5 * time.Second

// TournamentArchive keeps the summary of a finished tournament.
type TournamentArchive interface {
	SaveTournamentSummary(ctx context.Context, summary models.TournamentSummary) (string, error)
}

// ResultRecorder hands finished matches to persistence and finished tournaments to the
// archive. Either collaborator may be nil, in which case the record is only logged.
type ResultRecorder struct {
	results repositories.MatchResultRepository
	archive TournamentArchive
	logger  *slog.Logger
}

func NewResultRecorder(results repositories.MatchResultRepository, archive TournamentArchive, logger *slog.Logger) *ResultRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResultRecorder{
		results: results,
		archive: archive,
		logger:  logger.With(slog.String("component", "recorder")),
	}
}

// MatchResultFromOutcome builds the hand-off record: the home user plays slot 0.
func MatchResultFromOutcome(o MatchOutcome) models.MatchResult {
	result := models.MatchResult{
		MatchID:       o.MatchID,
		HomeUserID:    o.Users[0],
		VisitorUserID: o.Users[1],
		HomeScore:     o.Score[0],
		VisitorScore:  o.Score[1],
		WinnerUserID:  o.Winner,
		Reason:        string(o.Reason),
		FinishedAt:    o.FinishedAt,
	}
	if o.TournamentID != "" {
		id := o.TournamentID
		result.TournamentID = &id
	}
	return result
}

// RecordMatch is a FinishObserver. Local matches are not recorded.
func (r *ResultRecorder) RecordMatch(o MatchOutcome) {
	if o.Local || len(o.Users) != 2 {
		return
	}
	result := MatchResultFromOutcome(o)
	log := r.logger.With(
		slog.String("match_id", result.MatchID),
		slog.String("home", result.HomeUserID.String()),
		slog.String("visitor", result.VisitorUserID.String()),
		slog.Int("home_score", result.HomeScore),
		slog.Int("visitor_score", result.VisitorScore))

	if r.results == nil {
		log.Info("Match result not persisted, no database configured")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	err := r.results.Create(ctx, &result)
	switch {
	case err == nil:
		log.Info("Match result recorded", slog.Int64("result_id", result.ID))
	case errors.Is(err, repositories.ErrMatchResultConflict):
		log.Warn("Match result already recorded")
	default:
		log.Error("Failed to record match result", slog.Any("error", err))
	}
}

// ArchiveTournament is a TournamentObserver. Canceled tournaments are not archived.
func (r *ResultRecorder) ArchiveTournament(summary models.TournamentSummary) {
	log := r.logger.With(slog.String("tournament_id", summary.ID))
	if summary.Canceled {
		return
	}
	if r.archive == nil {
		log.Info("Tournament summary not archived, no archive configured", slog.Int("rounds", len(summary.Rounds)))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	url, err := r.archive.SaveTournamentSummary(ctx, summary)
	if err != nil {
		log.Error("Failed to archive tournament summary", slog.Any("error", err))
		return
	}
	log.Info("Tournament summary archived", slog.String("url", url))
}
