package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"

	"github.com/venaticlol/venatic/internal/hub"
	"github.com/venaticlol/venatic/internal/models"
	"github.com/venaticlol/venatic/internal/snowflake"
	validate "github.com/venaticlol/venatic/internal/validator"
)

const (
	defaultMessageLimit = 50
	maxMessageLimit     = 100
)

// pageParams reads the optional before and limit query parameters.
func pageParams(r *http.Request) (before int64, limit int, err error) {
	limit = defaultMessageLimit

	if value := r.URL.Query().Get("before"); value != "" {
		before, err = parseID(value)
		if err != nil {
			return 0, 0, err
		}
	}

	if value := r.URL.Query().Get("limit"); value != "" {
		limit, err = strconv.Atoi(value)
		if err != nil || limit <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		limit = min(limit, maxMessageLimit)
	}

	return before, limit, nil
}

type messageIDs struct {
	ID        int64 `json:"id,string"`
	ChannelID int64 `json:"channelID,string"`
}

func (h *Handler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())

	type AddMessageRequest struct {
		Message   string `json:"message"`
		ChannelID int64  `json:"channelID,string"`
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

	_, isMember, err := h.canAccessChannel(r.Context(), userID, messageRequest.ChannelID)
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

	messageID, err := h.snowflake.Generate()
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	msg := models.Message{
		ID:        messageID,
		ChannelID: messageRequest.ChannelID,
		UserID:    userID,
		Message:   messageRequest.Message,
		Timestamp: snowflake.ExtractTimestamp(messageID),
		Edited:    false,
	}

	_, err = h.db.ExecContext(r.Context(), "INSERT INTO messages (id, channel_id, user_id, message, edited) VALUES (?, ?, ?, ?, ?)", msg.ID, msg.ChannelID, msg.UserID, msg.Message, msg.Edited)
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	msg.User.ID = userID
	err = h.db.QueryRowContext(r.Context(), "SELECT display_name, picture FROM users where id = ?", userID).Scan(&msg.User.DisplayName, &msg.User.Picture)
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	err = h.hub.Emit(r.Context(), hub.MessageCreated, hub.ViewChannel, msg.ChannelID, msg)
	if err != nil {
		h.sugar.Error(err)
	}

	h.writeJSON(w, http.StatusCreated, msg)
}

func (h *Handler) GetMessageList(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	sessionID := sessionIDFrom(r.Context())

	channelID, err := parseID(r.URL.Query().Get("channelID"))
	if err != nil {
		http.Error(w, "Invalid channel ID", http.StatusBadRequest)
		return
	}

	before, limit, err := pageParams(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
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

	query := `
		SELECT
			messages.id,
			messages.channel_id,
			messages.user_id,
			messages.message,
			messages.edited,
			users.display_name,
			users.picture
		FROM
			messages
		JOIN
			users ON messages.user_id = users.id
		WHERE
			messages.channel_id = ?
			AND (? = 0 OR messages.id < ?)
		ORDER BY
			messages.id DESC
		LIMIT ?
	`

	rows, err := h.db.QueryContext(r.Context(), query, channelID, before, before, limit)
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	var messages []models.Message = []models.Message{}

	for rows.Next() {
		var msg models.Message

		err := rows.Scan(&msg.ID, &msg.ChannelID, &msg.UserID, &msg.Message, &msg.Edited, &msg.User.DisplayName, &msg.User.Picture)
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

	// newest page was selected, clients render oldest first
	slices.Reverse(messages)

	err = h.hub.Subscribe(r.Context(), sessionID, hub.ViewChannel, channelID)
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, messages)
}

func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())

	messageID, err := parseID(r.URL.Query().Get("messageID"))
	if err != nil {
		http.Error(w, "Invalid message ID", http.StatusBadRequest)
		return
	}

	var channelID, authorID int64
	err = h.db.QueryRowContext(r.Context(), "SELECT channel_id, user_id FROM messages WHERE id = ?", messageID).Scan(&channelID, &authorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Message not found", http.StatusNotFound)
			return
		}
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	if authorID != userID {
		http.Error(w, "You can only delete your own messages", http.StatusForbidden)
		return
	}

	_, err = h.db.ExecContext(r.Context(), "DELETE FROM messages WHERE id = ? AND user_id = ?", messageID, userID)
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	err = h.hub.Emit(r.Context(), hub.MessageDeleted, hub.ViewChannel, channelID, messageIDs{ID: messageID, ChannelID: channelID})
	if err != nil {
		h.sugar.Error(err)
	}
}

// EditMessage replaces the text of one of the user's own messages.
func (h *Handler) EditMessage(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())

	type EditMessageRequest struct {
		MessageID int64  `json:"messageID,string"`
		Message   string `json:"message"`
	}

	var editRequest EditMessageRequest
	err := json.NewDecoder(r.Body).Decode(&editRequest)
	if err != nil {
		h.sugar.Debug(err)
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	err = validate.MessageText(editRequest.Message)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var msg models.Message
	err = h.db.QueryRowContext(r.Context(), "SELECT messages.id, messages.channel_id, messages.user_id, users.display_name, users.picture FROM messages JOIN users ON messages.user_id = users.id WHERE messages.id = ?", editRequest.MessageID).
		Scan(&msg.ID, &msg.ChannelID, &msg.UserID, &msg.User.DisplayName, &msg.User.Picture)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Message not found", http.StatusNotFound)
			return
		}
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	if msg.UserID != userID {
		http.Error(w, "You can only edit your own messages", http.StatusForbidden)
		return
	}

	_, err = h.db.ExecContext(r.Context(), "UPDATE messages SET message = ?, edited = ? WHERE id = ? AND user_id = ?", editRequest.Message, true, msg.ID, userID)
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	msg.Message = editRequest.Message
	msg.Edited = true
	msg.Timestamp = snowflake.ExtractTimestamp(msg.ID)
	msg.User.ID = userID

	err = h.hub.Emit(r.Context(), hub.MessageModified, hub.ViewChannel, msg.ChannelID, msg)
	if err != nil {
		h.sugar.Error(err)
	}

	h.writeJSON(w, http.StatusOK, msg)
}
