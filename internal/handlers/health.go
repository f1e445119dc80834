package handlers

import (
	"net/http"
)

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	err := h.db.PingContext(r.Context())
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "Database unavailable", http.StatusServiceUnavailable)
		return
	}

	_, err = w.Write([]byte("ok"))
	if err != nil {
		h.sugar.Error(err)
	}
}
