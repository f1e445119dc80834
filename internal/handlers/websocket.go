package handlers

import (
	"errors"
	"net/http"
)

func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())

	sessionID, err := readSessionID(r)
	if err != nil {
		h.sugar.Debug(err)
		if errors.Is(err, http.ErrNoCookie) {
			http.Error(w, "No session cookie was provided", http.StatusUnauthorized)
		} else {
			http.Error(w, "Session cookie is in improper format", http.StatusBadRequest)
		}
		return
	}

	h.hub.HandleClient(w, r, userID, sessionID)
}
