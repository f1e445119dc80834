package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/venaticlol/venatic/internal/hub"
	"github.com/venaticlol/venatic/internal/models"
	validate "github.com/venaticlol/venatic/internal/validator"
)

func (h *Handler) CreateChannel(w http.ResponseWriter, r *http.Request) {
	serverID, ok := h.ownedServer(w, r)
	if !ok {
		return
	}

	channelName := strings.TrimSpace(r.URL.Query().Get("name"))
	if channelName == "" {
		channelName = "New Channel"
	}
	if err := validate.Name(channelName, 32); err != nil {
		http.Error(w, "Channel name can't be longer than 32 characters", http.StatusBadRequest)
		return
	}

	channelType := r.URL.Query().Get("type")
	switch channelType {
	case "":
		channelType = models.ChannelTypeText
	case models.ChannelTypeText, models.ChannelTypeVoice:
	default:
		http.Error(w, "Channel type must be text or voice", http.StatusBadRequest)
		return
	}

	channelID, err := h.snowflake.Generate()
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	channel := models.Channel{
		ID:       channelID,
		ServerID: serverID,
		Name:     channelName,
		Type:     channelType,
	}

	_, err = h.db.ExecContext(r.Context(), "INSERT INTO channels (id, server_id, name, type) VALUES (?, ?, ?, ?)", channel.ID, channel.ServerID, channel.Name, channel.Type)
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	err = h.hub.Emit(r.Context(), hub.ChannelCreated, hub.ViewServer, serverID, channel)
	if err != nil {
		h.sugar.Error(err)
	}

	h.writeJSON(w, http.StatusCreated, channel)
}

func (h *Handler) GetChannelList(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	sessionID := sessionIDFrom(r.Context())

	serverID, err := parseID(r.URL.Query().Get("serverID"))
	if err != nil {
		http.Error(w, "Invalid server ID", http.StatusBadRequest)
		return
	}

	isMember, err := h.isServerMember(r.Context(), userID, serverID)
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}
	if !isMember {
		http.Error(w, "You are not a member of this server", http.StatusForbidden)
		return
	}

	rows, err := h.db.QueryContext(r.Context(), "SELECT id, server_id, name, type FROM channels WHERE server_id = ? ORDER BY id", serverID)
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	var channels []models.Channel = []models.Channel{}

	for rows.Next() {
		var channel models.Channel

		err := rows.Scan(&channel.ID, &channel.ServerID, &channel.Name, &channel.Type)
		if err != nil {
			h.sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
			return
		}

		channels = append(channels, channel)
	}

	if err := rows.Err(); err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	err = h.hub.Subscribe(r.Context(), sessionID, hub.ViewServer, serverID)
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, channels)
}

// ownedChannel parses channelID from the query and makes sure the user owns
// the channel's server. It writes the error response itself.
func (h *Handler) ownedChannel(w http.ResponseWriter, r *http.Request) (models.Channel, bool) {
	userID := userIDFrom(r.Context())

	channelID, err := parseID(r.URL.Query().Get("channelID"))
	if err != nil {
		http.Error(w, "Invalid channel ID", http.StatusBadRequest)
		return models.Channel{}, false
	}

	var channel models.Channel
	err = h.db.QueryRowContext(r.Context(), "SELECT id, server_id, name, type FROM channels WHERE id = ?", channelID).
		Scan(&channel.ID, &channel.ServerID, &channel.Name, &channel.Type)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Channel not found", http.StatusNotFound)
			return models.Channel{}, false
		}
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return models.Channel{}, false
	}

	ownsServer, err := h.isServerOwner(r.Context(), userID, channel.ServerID)
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return models.Channel{}, false
	}
	if !ownsServer {
		h.sugar.Warnf("User ID [%d] tried to modify channel ID [%d] in a server they don't own", userID, channelID)
		http.Error(w, "You don't own this server", http.StatusForbidden)
		return models.Channel{}, false
	}

	return channel, true
}

func (h *Handler) RenameChannel(w http.ResponseWriter, r *http.Request) {
	channel, ok := h.ownedChannel(w, r)
	if !ok {
		return
	}

	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if err := validate.Name(name, 32); err != nil {
		http.Error(w, "Channel name can't be empty or longer than 32 characters", http.StatusBadRequest)
		return
	}

	_, err := h.db.ExecContext(r.Context(), "UPDATE channels SET name = ? WHERE id = ?", name, channel.ID)
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}
	channel.Name = name

	err = h.hub.Emit(r.Context(), hub.ChannelModified, hub.ViewServer, channel.ServerID, channel)
	if err != nil {
		h.sugar.Error(err)
	}

	h.writeJSON(w, http.StatusOK, channel)
}

func (h *Handler) DeleteChannel(w http.ResponseWriter, r *http.Request) {
	channel, ok := h.ownedChannel(w, r)
	if !ok {
		return
	}

	_, err := h.db.ExecContext(r.Context(), "DELETE FROM channels WHERE id = ?", channel.ID)
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	err = h.hub.Emit(r.Context(), hub.ChannelDeleted, hub.ViewServer, channel.ServerID, models.Channel{ID: channel.ID, ServerID: channel.ServerID})
	if err != nil {
		h.sugar.Error(err)
	}
}
