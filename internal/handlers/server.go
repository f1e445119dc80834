package handlers

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/venaticlol/venatic/internal/hub"
	"github.com/venaticlol/venatic/internal/models"
	"github.com/venaticlol/venatic/internal/storage"
	validate "github.com/venaticlol/venatic/internal/validator"
)

const defaultChannelName = "general"

func (h *Handler) CreateServer(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())

	serverName := strings.TrimSpace(r.URL.Query().Get("name"))
	if serverName == "" {
		serverName = "My server"
	}
	if err := validate.Name(serverName, 64); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	picPath, err := h.icons.SaveFormFile(r, "picture")
	if err != nil && !isMissingFile(err) {
		h.sugar.Debug(err)
		if errors.Is(err, storage.ErrUnsupportedType) {
			http.Error(w, "Unsupported picture type", http.StatusBadRequest)
		} else {
			http.Error(w, "Couldn't process picture", http.StatusBadRequest)
		}
		return
	}

	serverID, err := h.snowflake.Generate()
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	channelID, err := h.snowflake.Generate()
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	server := models.Server{
		ID:      serverID,
		OwnerID: userID,
		Name:    serverName,
		Picture: picPath,
	}

	tx, err := h.db.BeginTx(r.Context(), nil)
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(r.Context(), "INSERT INTO servers (id, owner_id, name, picture) VALUES (?, ?, ?, ?)", server.ID, server.OwnerID, server.Name, server.Picture)
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	err = addServerMember(r.Context(), tx, serverID, userID)
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	_, err = tx.ExecContext(r.Context(), "INSERT INTO channels (id, server_id, name, type) VALUES (?, ?, ?, ?)", channelID, serverID, defaultChannelName, models.ChannelTypeText)
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	err = tx.Commit()
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusCreated, server)
}

func (h *Handler) GetServerList(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	sessionID := sessionIDFrom(r.Context())

	rows, err := h.db.QueryContext(r.Context(), "SELECT s.id, s.owner_id, s.name, s.picture FROM servers s JOIN server_members m ON s.id = m.server_id WHERE m.user_id = ? ORDER BY s.id", userID)
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

	servers := []models.Server{}

	for rows.Next() {
		var server models.Server

		err := rows.Scan(&server.ID, &server.OwnerID, &server.Name, &server.Picture)
		if err != nil {
			h.sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
			return
		}

		servers = append(servers, server)
	}

	if err := rows.Err(); err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	for _, server := range servers {
		err = h.hub.Subscribe(r.Context(), sessionID, hub.ViewServerList, server.ID)
		if err != nil {
			h.sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
			return
		}
	}

	h.writeJSON(w, http.StatusOK, servers)
}

// ownedServer parses serverID from the query and makes sure the user owns
// it. It writes the error response itself and reports whether to continue.
func (h *Handler) ownedServer(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID := userIDFrom(r.Context())

	serverID, err := parseID(r.URL.Query().Get("serverID"))
	if err != nil {
		http.Error(w, "Invalid server ID", http.StatusBadRequest)
		return 0, false
	}

	ownsServer, err := h.isServerOwner(r.Context(), userID, serverID)
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return 0, false
	}
	if !ownsServer {
		h.sugar.Warnf("User ID [%d] tried to modify server ID [%d] they don't own", userID, serverID)
		http.Error(w, "You don't own this server", http.StatusForbidden)
		return 0, false
	}

	return serverID, true
}

func (h *Handler) DeleteServer(w http.ResponseWriter, r *http.Request) {
	serverID, ok := h.ownedServer(w, r)
	if !ok {
		return
	}

	_, err := h.db.ExecContext(r.Context(), "DELETE FROM servers WHERE id = ?", serverID)
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	err = h.hub.Emit(r.Context(), hub.ServerDeleted, hub.ViewServerList, serverID, models.Server{ID: serverID})
	if err != nil {
		h.sugar.Error(err)
	}
}

func (h *Handler) RenameServer(w http.ResponseWriter, r *http.Request) {
	serverID, ok := h.ownedServer(w, r)
	if !ok {
		return
	}

	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if err := validate.Name(name, 64); err != nil {
		http.Error(w, "Server name can't be empty or longer than 64 characters", http.StatusBadRequest)
		return
	}

	_, err := h.db.ExecContext(r.Context(), "UPDATE servers SET name = ? WHERE id = ?", name, serverID)
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	var server models.Server
	err = h.db.QueryRowContext(r.Context(), "SELECT id, owner_id, name, picture FROM servers WHERE id = ?", serverID).
		Scan(&server.ID, &server.OwnerID, &server.Name, &server.Picture)
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	err = h.hub.Emit(r.Context(), hub.ServerModified, hub.ViewServerList, serverID, server)
	if err != nil {
		h.sugar.Error(err)
	}
}

func (h *Handler) JoinServer(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())

	serverID, err := parseID(r.URL.Query().Get("serverID"))
	if err != nil {
		http.Error(w, "Invalid server ID", http.StatusBadRequest)
		return
	}

	var server models.Server
	err = h.db.QueryRowContext(r.Context(), "SELECT id, owner_id, name, picture FROM servers WHERE id = ?", serverID).
		Scan(&server.ID, &server.OwnerID, &server.Name, &server.Picture)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Server not found", http.StatusNotFound)
			return
		}
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	isMember, err := h.isServerMember(r.Context(), userID, serverID)
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}
	if isMember {
		http.Error(w, "You are already a member of this server", http.StatusConflict)
		return
	}

	tx, err := h.db.BeginTx(r.Context(), nil)
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}
	defer tx.Rollback()

	err = addServerMember(r.Context(), tx, serverID, userID)
	if err == nil {
		err = tx.Commit()
	}
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	member := models.Member{ServerID: serverID}
	err = h.db.QueryRowContext(r.Context(), "SELECT id, display_name, picture FROM users WHERE id = ?", userID).
		Scan(&member.User.ID, &member.User.DisplayName, &member.User.Picture)
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	err = h.hub.Emit(r.Context(), hub.MemberJoined, hub.ViewServer, serverID, member)
	if err != nil {
		h.sugar.Error(err)
	}

	h.writeJSON(w, http.StatusOK, server)
}

func (h *Handler) LeaveServer(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())

	serverID, err := parseID(r.URL.Query().Get("serverID"))
	if err != nil {
		http.Error(w, "Invalid server ID", http.StatusBadRequest)
		return
	}

	ownsServer, err := h.isServerOwner(r.Context(), userID, serverID)
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}
	if ownsServer {
		http.Error(w, "The owner can't leave, delete the server instead", http.StatusBadRequest)
		return
	}

	result, err := h.db.ExecContext(r.Context(), "DELETE FROM server_members WHERE server_id = ? AND user_id = ?", serverID, userID)
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	affected, err := result.RowsAffected()
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}
	if affected == 0 {
		http.Error(w, "You are not a member of this server", http.StatusNotFound)
		return
	}

	for _, sessionID := range h.hub.Sessions(userID) {
		h.closeServerViews(r.Context(), userID, sessionID, serverID)
	}

	err = h.hub.Emit(r.Context(), hub.MemberLeft, hub.ViewServer, serverID, models.Member{ServerID: serverID, User: models.User{ID: userID}})
	if err != nil {
		h.sugar.Error(err)
	}
}

// closeServerViews stops the session from receiving anything of the server,
// including the channel it has open there.
func (h *Handler) closeServerViews(ctx context.Context, userID int64, sessionID int64, serverID int64) {
	for _, kind := range []hub.ViewKind{hub.ViewServerList, hub.ViewServer} {
		err := h.hub.Unsubscribe(ctx, userID, sessionID, kind, serverID)
		if err != nil {
			h.sugar.Error(err)
		}
	}

	channelID, open := h.hub.ActiveView(sessionID, hub.ViewChannel)
	if !open {
		return
	}

	channelServerID, err := h.channelServer(ctx, channelID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			h.sugar.Error(err)
		}
		return
	}
	if channelServerID != serverID {
		return
	}

	err = h.hub.Unsubscribe(ctx, userID, sessionID, hub.ViewChannel, channelID)
	if err != nil {
		h.sugar.Error(err)
	}
}
