package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/Dosada05/pong-arena/models"
)

// TournamentArchive stores finished tournament summaries as JSON objects.
type TournamentArchive struct {
	uploader FileUploader
}

func NewTournamentArchive(uploader FileUploader) *TournamentArchive {
	return &TournamentArchive{uploader: uploader}
}

func TournamentSummaryKey(tournamentID string) string {
	return fmt.Sprintf("tournaments/%s.json", tournamentID)
}

// SaveTournamentSummary uploads summary and returns its public location, which is
// empty when the bucket has no public URL.
func (a *TournamentArchive) SaveTournamentSummary(ctx context.Context, summary models.TournamentSummary) (string, error) {
	payload, err := json.Marshal(summary)
	if err != nil {
		return "", fmt.Errorf("failed to encode tournament summary %s: %w", summary.ID, err)
	}
	result, err := a.uploader.Upload(ctx, TournamentSummaryKey(summary.ID), "application/json", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	return result.Location, nil
}
