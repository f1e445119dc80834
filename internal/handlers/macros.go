package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
)

var errInvalidID = errors.New("invalid ID")

func (h *Handler) isServerOwner(ctx context.Context, userID int64, serverID int64) (bool, error) {
	var ownsServer bool
	err := h.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM servers WHERE id = ? AND owner_id = ?)", serverID, userID).Scan(&ownsServer)
	if err != nil {
		return false, err
	}
	return ownsServer, nil
}

func (h *Handler) isServerMember(ctx context.Context, userID int64, serverID int64) (bool, error) {
	var isMember bool
	err := h.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM server_members WHERE server_id = ? AND user_id = ?)", serverID, userID).Scan(&isMember)
	if err != nil {
		return false, err
	}
	return isMember, nil
}

// channelServer returns the server of the channel, sql.ErrNoRows if the
// channel doesn't exist.
func (h *Handler) channelServer(ctx context.Context, channelID int64) (int64, error) {
	var serverID int64
	err := h.db.QueryRowContext(ctx, "SELECT server_id FROM channels WHERE id = ?", channelID).Scan(&serverID)
	return serverID, err
}

// canAccessChannel reports whether the user is a member of the channel's
// server. It returns sql.ErrNoRows if the channel doesn't exist.
func (h *Handler) canAccessChannel(ctx context.Context, userID int64, channelID int64) (int64, bool, error) {
	serverID, err := h.channelServer(ctx, channelID)
	if err != nil {
		return 0, false, err
	}
	isMember, err := h.isServerMember(ctx, userID, serverID)
	return serverID, isMember, err
}

func addServerMember(ctx context.Context, tx *sql.Tx, serverID int64, userID int64) error {
	_, err := tx.ExecContext(ctx, "INSERT INTO server_members (server_id, user_id) VALUES (?, ?)", serverID, userID)
	return err
}

func parseID(value string) (int64, error) {
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidID
	}
	return id, nil
}

func userIDFrom(ctx context.Context) int64 {
	return ctx.Value(UserIDKeyType{}).(int64)
}

func sessionIDFrom(ctx context.Context) int64 {
	return ctx.Value(SessionIDKeyType{}).(int64)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(value)
	if err != nil {
		h.sugar.Error(err)
	}
}

// isMissingFile is true when the multipart field wasn't sent at all.
func isMissingFile(err error) bool {
	return errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart)
}
