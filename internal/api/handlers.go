package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/spsquared/battleboxes-server/internal/room"
)

// handlers holds the route handler dependencies.
type handlers struct {
	manager *room.Manager
	auth    Authenticator
	sockets *socketCounter
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

// username authenticates the request, writing the error response itself on
// failure.
func (h *handlers) username(w http.ResponseWriter, r *http.Request) (string, bool) {
	username, err := h.auth(r)
	if err != nil {
		RecordConnectionRejected("auth")
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED")
		return "", false
	}
	return username, true
}

// joinError maps a manager join failure to an HTTP response.
func joinError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, room.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "ALREADY_EXISTS")
	case errors.Is(err, room.ErrRoomFull):
		writeError(w, http.StatusConflict, "ROOM_FULL")
	case errors.Is(err, room.ErrGameStarted):
		writeError(w, http.StatusConflict, "GAME_STARTED")
	case errors.Is(err, room.ErrRoomClosed):
		writeError(w, http.StatusNotFound, "NOT_FOUND")
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL")
	}
}

// handleGameList returns the public room listing.
// GET /games/gameList?all=true includes full and started rooms.
func (h *handlers) handleGameList(w http.ResponseWriter, r *http.Request) {
	onlyJoinable := r.URL.Query().Get("all") != "true"
	writeJSON(w, http.StatusOK, h.manager.GetGames(onlyJoinable))
}

// handleCreateGame creates a room hosted by the caller and seats them in
// it. POST /games/createGame with optional Options body.
func (h *handlers) handleCreateGame(w http.ResponseWriter, r *http.Request) {
	username, ok := h.username(w, r)
	if !ok {
		return
	}

	var opts room.Options
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
			writeError(w, http.StatusBadRequest, "BAD_REQUEST")
			return
		}
	} else {
		opts.Public = true
	}

	g, code, err := h.manager.CreateGame(r.Context(), username, opts)
	if err != nil {
		joinError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":   g.ID,
		"code": code,
		"game": g.Info(),
	})
}

// handleJoinGame reserves a seat in a room and returns the one-time socket
// auth code. POST /games/joinGame/{id}.
func (h *handlers) handleJoinGame(w http.ResponseWriter, r *http.Request) {
	username, ok := h.username(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	code, err := h.manager.JoinGame(r.Context(), id, username)
	if err != nil {
		joinError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"code": code})
}
