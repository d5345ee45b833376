package handlers

import (
	"net/http"

	"github.com/Dosada05/pong-arena/middleware"
	"github.com/Dosada05/pong-arena/models"
	"github.com/Dosada05/pong-arena/services"
)

type TournamentHandler struct {
	tournamentService *services.TournamentService
}

func NewTournamentHandler(ts *services.TournamentService) *TournamentHandler {
	return &TournamentHandler{
		tournamentService: ts,
	}
}

type createTournamentInput struct {
	Name       string `json:"name"`
	MaxPlayers int    `json:"max_players"`
}

// CreateHandler обрабатывает POST /api/tournaments
func (h *TournamentHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required to create tournament")
		return
	}

	var input createTournamentInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	tournament, err := h.tournamentService.Create(r.Context(), currentUserID, input.Name, input.MaxPlayers)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"tournament": tournament.Info()}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ListOpenHandler обрабатывает GET /api/tournaments/open
func (h *TournamentHandler) ListOpenHandler(w http.ResponseWriter, r *http.Request) {
	open := h.tournamentService.OpenTournaments()
	if open == nil {
		open = []models.TournamentInfo{}
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournaments": open}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
