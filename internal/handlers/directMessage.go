package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"slices"

	"github.com/venaticlol/venatic/internal/hub"
	"github.com/venaticlol/venatic/internal/models"
	"github.com/venaticlol/venatic/internal/snowflake"
	validate "github.com/venaticlol/venatic/internal/validator"
)

// participants orders the pair so it maps to a single direct_messages row.
func participants(a int64, b int64) (int64, int64) {
	if a < b {
		return a, b
	}
	return b, a
}

func (h *Handler) isParticipant(ctx context.Context, userID int64, dmID int64) (bool, error) {
	var userLow, userHigh int64
	err := h.db.QueryRowContext(ctx, "SELECT user_low, user_high FROM direct_messages WHERE id = ?", dmID).Scan(&userLow, &userHigh)
	if err != nil {
		return false, err
	}
	return userID == userLow || userID == userHigh, nil
}

// OpenDirectMessage finds or creates the conversation with another user.
func (h *Handler) OpenDirectMessage(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())

	otherID, err := parseID(r.URL.Query().Get("userID"))
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}
	if otherID == userID {
		http.Error(w, "You can't message yourself", http.StatusBadRequest)
		return
	}

	dm := models.DirectMessage{}
	dm.UserLow, dm.UserHigh = participants(userID, otherID)

	err = h.db.QueryRowContext(r.Context(), "SELECT id, username, display_name, picture, discriminator FROM users WHERE id = ?", otherID).
		Scan(&dm.Other.ID, &dm.Other.UserName, &dm.Other.DisplayName, &dm.Other.Picture, &dm.Other.Discriminator)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "User not found", http.StatusNotFound)
			return
		}
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	created, err := h.findOrCreateDirectMessage(r.Context(), &dm)
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	if created {
		h.sugar.Debugf("Direct message ID [%d] opened between [%d] and [%d]", dm.ID, dm.UserLow, dm.UserHigh)

		// the other side sees the conversation with the opener as partner
		other := dm
		err = h.db.QueryRowContext(r.Context(), "SELECT id, username, display_name, picture, discriminator FROM users WHERE id = ?", userID).
			Scan(&other.Other.ID, &other.Other.UserName, &other.Other.DisplayName, &other.Other.Picture, &other.Other.Discriminator)
		if err != nil {
			h.sugar.Error(err)
		} else {
			err = h.hub.Emit(r.Context(), hub.DirectMessageOpened, hub.ViewUser, otherID, other)
			if err != nil {
				h.sugar.Error(err)
			}
		}
	}

	h.writeJSON(w, http.StatusOK, dm)
}

func (h *Handler) findOrCreateDirectMessage(ctx context.Context, dm *models.DirectMessage) (bool, error) {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, "SELECT id FROM direct_messages WHERE user_low = ? AND user_high = ?", dm.UserLow, dm.UserHigh).Scan(&dm.ID)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}

	dm.ID, err = h.snowflake.Generate()
	if err != nil {
		return false, err
	}

	_, err = tx.ExecContext(ctx, "INSERT INTO direct_messages (id, user_low, user_high) VALUES (?, ?, ?)", dm.ID, dm.UserLow, dm.UserHigh)
	if err != nil {
		return false, err
	}

	return true, tx.Commit()
}

func (h *Handler) GetDirectMessageList(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())

	rows, err := h.db.QueryContext(r.Context(), `
		SELECT
			dm.id,
			dm.user_low,
			dm.user_high,
			users.id,
			users.username,
			users.display_name,
			users.picture,
			users.discriminator
		FROM
			direct_messages dm
		JOIN
			users ON users.id = CASE WHEN dm.user_low = ? THEN dm.user_high ELSE dm.user_low END
		WHERE
			dm.user_low = ? OR dm.user_high = ?
		ORDER BY
			dm.id DESC
		`, userID, userID, userID)
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	dms := []models.DirectMessage{}
	for rows.Next() {
		var dm models.DirectMessage
		err := rows.Scan(&dm.ID, &dm.UserLow, &dm.UserHigh, &dm.Other.ID, &dm.Other.UserName, &dm.Other.DisplayName, &dm.Other.Picture, &dm.Other.Discriminator)
		if err != nil {
			h.sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
			return
		}
		dms = append(dms, dm)
	}

	if err := rows.Err(); err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, dms)
}

// directMessageAccess checks the dm exists and the user takes part in it,
// writing the error response itself.
func (h *Handler) directMessageAccess(w http.ResponseWriter, r *http.Request, userID int64, dmID int64) bool {
	isParticipant, err := h.isParticipant(r.Context(), userID, dmID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Conversation not found", http.StatusNotFound)
			return false
		}
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return false
	}
	if !isParticipant {
		http.Error(w, "You are not part of this conversation", http.StatusForbidden)
		return false
	}
	return true
}

func (h *Handler) CreateDirectMessageMessage(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())

	type AddMessageRequest struct {
		Message string `json:"message"`
		DmID    int64  `json:"dmID,string"`
	}

	var messageRequest AddMessageRequest
	err := json.NewDecoder(r.Body).Decode(&messageRequest)
	if err != nil {
		h.sugar.Debug(err)
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	err = validate.MessageText(messageRequest.Message)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if !h.directMessageAccess(w, r, userID, messageRequest.DmID) {
		return
	}

	messageID, err := h.snowflake.Generate()
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	msg := models.DirectMessageMessage{
		ID:        messageID,
		DmID:      messageRequest.DmID,
		UserID:    userID,
		Message:   messageRequest.Message,
		Timestamp: snowflake.ExtractTimestamp(messageID),
	}

	_, err = h.db.ExecContext(r.Context(), "INSERT INTO direct_message_messages (id, dm_id, user_id, message) VALUES (?, ?, ?, ?)", msg.ID, msg.DmID, msg.UserID, msg.Message)
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	msg.User.ID = userID
	err = h.db.QueryRowContext(r.Context(), "SELECT display_name, picture FROM users WHERE id = ?", userID).Scan(&msg.User.DisplayName, &msg.User.Picture)
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	err = h.hub.Emit(r.Context(), hub.DirectMessageCreated, hub.ViewDM, msg.DmID, msg)
	if err != nil {
		h.sugar.Error(err)
	}

	h.writeJSON(w, http.StatusCreated, msg)
}

func (h *Handler) GetDirectMessageMessages(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	sessionID := sessionIDFrom(r.Context())

	dmID, err := parseID(r.URL.Query().Get("dmID"))
	if err != nil {
		http.Error(w, "Invalid conversation ID", http.StatusBadRequest)
		return
	}

	before, limit, err := pageParams(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if !h.directMessageAccess(w, r, userID, dmID) {
		return
	}

	rows, err := h.db.QueryContext(r.Context(), `
		SELECT
			m.id,
			m.dm_id,
			m.user_id,
			m.message,
			users.display_name,
			users.picture
		FROM
			direct_message_messages m
		JOIN
			users ON m.user_id = users.id
		WHERE
			m.dm_id = ?
			AND (? = 0 OR m.id < ?)
		ORDER BY
			m.id DESC
		LIMIT ?
		`, dmID, before, before, limit)
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	messages := []models.DirectMessageMessage{}
	for rows.Next() {
		var msg models.DirectMessageMessage
		err := rows.Scan(&msg.ID, &msg.DmID, &msg.UserID, &msg.Message, &msg.User.DisplayName, &msg.User.Picture)
		if err != nil {
			h.sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
			return
		}
		msg.User.ID = msg.UserID
		msg.Timestamp = snowflake.ExtractTimestamp(msg.ID)
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	slices.Reverse(messages)

	// opening a conversation closes the server and channel views
	err = h.hub.Subscribe(r.Context(), sessionID, hub.ViewDM, dmID)
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, messages)
}
