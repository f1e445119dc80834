package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/venaticlol/venatic/internal/models"
	"github.com/venaticlol/venatic/internal/storage"
	validate "github.com/venaticlol/venatic/internal/validator"
)

func (h *Handler) GetUserInfo(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())

	paramUserID := r.URL.Query().Get("userID")
	if paramUserID == "" {
		http.Error(w, "No user ID was specified", http.StatusBadRequest)
		return
	}

	requestedUserID := userID
	if paramUserID != "self" {
		var err error
		requestedUserID, err = parseID(paramUserID)
		if err != nil {
			http.Error(w, "Invalid user ID", http.StatusBadRequest)
			return
		}
	}

	var user models.User
	err := h.db.QueryRowContext(r.Context(), "SELECT id, username, display_name, date_of_birth, picture, discriminator FROM users WHERE id = ?", requestedUserID).
		Scan(&user.ID, &user.UserName, &user.DisplayName, &user.DateOfBirth, &user.Picture, &user.Discriminator)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "User not found", http.StatusNotFound)
			return
		}
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	// date of birth is private
	if requestedUserID != userID {
		user.DateOfBirth = ""
	}

	h.writeJSON(w, http.StatusOK, user)
}

func (h *Handler) UpdateUserInfo(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())

	displayName := strings.TrimSpace(r.URL.Query().Get("displayName"))
	if displayName != "" {
		if err := validate.Name(displayName, 64); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		_, err := h.db.ExecContext(r.Context(), "UPDATE users SET display_name = ? WHERE id = ?", displayName, userID)
		if err != nil {
			h.sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
			return
		}
	}

	pictureName, err := h.avatars.SaveFormFile(r, "picture")
	if err != nil && !isMissingFile(err) {
		h.sugar.Debug(err)
		if errors.Is(err, storage.ErrUnsupportedType) {
			http.Error(w, "Unsupported picture type", http.StatusBadRequest)
		} else {
			http.Error(w, "Couldn't process picture", http.StatusBadRequest)
		}
		return
	}
	if err == nil {
		_, err := h.db.ExecContext(r.Context(), "UPDATE users SET picture = ? WHERE id = ?", pictureName, userID)
		if err != nil {
			h.sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
			return
		}
	}
}
