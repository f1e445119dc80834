package handlers

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/venaticlol/venatic/internal/models"
)

func (h *Handler) GetMemberList(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())

	channelID, err := parseID(r.URL.Query().Get("channelID"))
	if err != nil {
		http.Error(w, "Invalid channel ID", http.StatusBadRequest)
		return
	}

	_, isMember, err := h.canAccessChannel(r.Context(), userID, channelID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Channel not found", http.StatusNotFound)
			return
		}
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}
	if !isMember {
		http.Error(w, "You are not a member of this server", http.StatusForbidden)
		return
	}

	rows, err := h.db.QueryContext(r.Context(), `
		SELECT
			users.id,
			users.username,
			users.display_name,
			users.picture,
			users.discriminator
		FROM
			channels
		JOIN
			server_members ON channels.server_id = server_members.server_id
		JOIN
			users ON server_members.user_id = users.id
		WHERE
			channels.id = ?
		ORDER BY
			users.id
		`, channelID)
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			h.sugar.Error(err)
			return
		}
	}()

	users := []models.User{}
	for rows.Next() {
		var user models.User
		err := rows.Scan(&user.ID, &user.UserName, &user.DisplayName, &user.Picture, &user.Discriminator)
		if err != nil {
			h.sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
			return
		}

		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, users)
}
