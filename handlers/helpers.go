package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Dosada05/pong-arena/services"
)

type jsonResponse map[string]interface{}

func readJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	maxBytes := 1_048_576
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil {
		var syntaxError *json.SyntaxError
		var unmarshalTypeError *json.UnmarshalTypeError
		var invalidUnmarshalError *json.InvalidUnmarshalError

		switch {
		case errors.As(err, &syntaxError):
			return fmt.Errorf("body contains badly-formed JSON (at character %d)", syntaxError.Offset)
		case errors.Is(err, io.ErrUnexpectedEOF):
			return errors.New("body contains badly-formed JSON")
		case errors.As(err, &unmarshalTypeError):
			if unmarshalTypeError.Field != "" {
				return fmt.Errorf("body contains incorrect JSON type for field %q", unmarshalTypeError.Field)
			}
			return fmt.Errorf("body contains incorrect JSON type (at character %d)", unmarshalTypeError.Offset)
		case errors.Is(err, io.EOF):
			return errors.New("body must not be empty")
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			fieldName := strings.TrimPrefix(err.Error(), "json: unknown field ")
			return fmt.Errorf("body contains unknown key %s", fieldName)
		case err.Error() == "http: request body too large":
			return fmt.Errorf("body must not be larger than %d bytes", maxBytes)
		case errors.As(err, &invalidUnmarshalError):
			panic(err)
		default:
			return err
		}
	}

	err = dec.Decode(&struct{}{})
	if !errors.Is(err, io.EOF) {
		return errors.New("body must only contain a single JSON value")
	}

	return nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}, headers http.Header) error {
	js, err := json.MarshalIndent(data, "", "\t")
	if err != nil {
		return err
	}
	js = append(js, '\n')

	for key, value := range headers {
		w.Header()[key] = value
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(js)
	if err != nil {
		return err
	}

	return nil
}

func errorResponse(w http.ResponseWriter, r *http.Request, status int, message interface{}) {
	env := jsonResponse{"error": message}
	if err := writeJSON(w, status, env, nil); err != nil {
		slog.Error("failed to write error response", slog.String("path", r.URL.Path), slog.Any("error", err))
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("internal server error", slog.String("path", r.URL.Path), slog.Any("error", err))
	message := "the server encountered a problem and could not process your request"
	errorResponse(w, r, http.StatusInternalServerError, message)
}

func badRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	errorResponse(w, r, http.StatusBadRequest, err.Error())
}

func notFoundResponse(w http.ResponseWriter, r *http.Request) {
	message := "the requested resource could not be found"
	errorResponse(w, r, http.StatusNotFound, message)
}

func conflictResponse(w http.ResponseWriter, r *http.Request, message string) {
	errorResponse(w, r, http.StatusConflict, message)
}

func unauthorizedResponse(w http.ResponseWriter, r *http.Request, message string) {
	errorResponse(w, r, http.StatusUnauthorized, message)
}

func forbiddenResponse(w http.ResponseWriter, r *http.Request, message string) {
	errorResponse(w, r, http.StatusForbidden, message)
}

// mapServiceErrorToHTTP turns service errors into HTTP responses.
func mapServiceErrorToHTTP(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrTournamentNotFound),
		errors.Is(err, services.ErrMatchNotFound):
		notFoundResponse(w, r)

	case errors.Is(err, services.ErrAlreadyRegistered),
		errors.Is(err, services.ErrTournamentFull),
		errors.Is(err, services.ErrTournamentStarted),
		errors.Is(err, services.ErrMatchFinished):
		conflictResponse(w, r, err.Error())

	case errors.Is(err, services.ErrInvalidTournament),
		errors.Is(err, services.ErrInvalidMatchType),
		errors.Is(err, services.ErrNotEnoughPlayers),
		errors.Is(err, services.ErrInvalidPlayers),
		errors.Is(err, services.ErrNotInTournament):
		badRequestResponse(w, r, err)

	case errors.Is(err, services.ErrNotTournamentOwner),
		errors.Is(err, services.ErrNotAssigned),
		errors.Is(err, services.ErrUserBlocked):
		forbiddenResponse(w, r, err.Error())

	case errors.Is(err, services.ErrServiceClosed):
		errorResponse(w, r, http.StatusServiceUnavailable, err.Error())

	default:
		serverErrorResponse(w, r, err)
	}
}

// errorCode names a service error in websocket error frames.
func errorCode(err error) string {
	switch {
	case errors.Is(err, services.ErrAlreadyRegistered):
		return "already_registered"
	case errors.Is(err, services.ErrTournamentNotFound):
		return "tournament_not_found"
	case errors.Is(err, services.ErrMatchNotFound):
		return "match_not_found"
	case errors.Is(err, services.ErrTournamentFull):
		return "tournament_full"
	case errors.Is(err, services.ErrTournamentStarted):
		return "tournament_started"
	case errors.Is(err, services.ErrNotTournamentOwner):
		return "not_tournament_owner"
	case errors.Is(err, services.ErrNotEnoughPlayers):
		return "not_enough_players"
	case errors.Is(err, services.ErrNotInTournament):
		return "not_in_tournament"
	case errors.Is(err, services.ErrInvalidTournament),
		errors.Is(err, services.ErrInvalidMatchType),
		errors.Is(err, services.ErrInvalidDirection),
		errors.Is(err, services.ErrInvalidSlot):
		return "invalid_request"
	case errors.Is(err, services.ErrNotAssigned):
		return "not_assigned"
	case errors.Is(err, services.ErrUserBlocked):
		return "reconnect_window_expired"
	case errors.Is(err, services.ErrMatchFinished):
		return "match_finished"
	case errors.Is(err, services.ErrServiceClosed):
		return "unavailable"
	default:
		return "internal_error"
	}
}

// errorMessage hides unexpected errors from clients.
func errorMessage(err error) string {
	if errorCode(err) == "internal_error" {
		return "the server could not process the request"
	}
	return err.Error()
}
