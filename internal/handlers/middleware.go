package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/venaticlol/venatic/internal/jwt"
	"github.com/venaticlol/venatic/internal/session"
)

const (
	SessionCookieName = "session"
	userExistsTTL     = 15 * time.Minute
	jwtRenewAfter     = 15 * time.Minute
	loginPage         = "/login.html"
)

type SessionIDKeyType struct{}
type UserIDKeyType struct{}
type PortalSessionKeyType struct{}

func readSessionID(r *http.Request) (int64, error) {
	sessionCookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(sessionCookie.Value, 10, 64)
}

// SessionVerifier lets the request through only if the session cookie
// belongs to a client connected to the hub, since the handlers behind it
// subscribe that client to what they return.
func (h *Handler) SessionVerifier(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID, err := readSessionID(r)
		if err != nil {
			h.sugar.Debug(err)
			switch {
			case errors.Is(err, http.ErrNoCookie):
				http.Error(w, "No session cookie was provided", http.StatusUnauthorized)
			default:
				http.Error(w, "Session cookie is in improper format", http.StatusBadRequest)
			}
			return
		}

		client, exists := h.hub.GetClient(sessionID)
		if !exists || client.UserID != userIDFrom(r.Context()) {
			http.Error(w, "You are not connected to websocket", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), SessionIDKeyType{}, sessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) UserVerifier(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jwtCookie, err := r.Cookie(jwt.CookieName)
		if err != nil {
			h.sugar.Debug(err)
			switch {
			case errors.Is(err, http.ErrNoCookie):
				http.Error(w, "No jwt cookie was provided", http.StatusUnauthorized)
			default:
				http.Error(w, "Couldn't read jwt cookie", http.StatusInternalServerError)
			}
			return
		}

		userToken, err := h.jwt.VerifyToken(jwtCookie.Value)
		if err != nil {
			h.sugar.Debug(err)
			http.SetCookie(w, jwt.ExpiredCookie())
			http.Error(w, "Couldn't verify JWT", http.StatusUnauthorized)
			return
		}

		userFound, err := h.userExists(r.Context(), userToken.UserID)
		if err != nil {
			h.sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
			return
		}

		// delete JWT token from client, this should run when a user deleted their account,
		// but kept the JWT token for any reason
		if !userFound {
			http.SetCookie(w, jwt.ExpiredCookie())
			http.Error(w, "", http.StatusUnauthorized)
			return
		}

		// renew JWT and cookie
		if userToken.IssuedAt != nil && time.Since(userToken.IssuedAt.Time) >= jwtRenewAfter {
			updatedCookie, err := h.jwt.CreateToken(userToken.Remember, userToken.UserID)
			if err != nil {
				h.sugar.Error(err)
				http.Error(w, "Couldn't renew cookie", http.StatusInternalServerError)
				return
			}

			http.SetCookie(w, &updatedCookie)
		}

		// this passes the authenticated user's ID to next handler
		ctx := context.WithValue(r.Context(), UserIDKeyType{}, userToken.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) userExists(ctx context.Context, userID int64) (bool, error) {
	key := fmt.Sprintf("user_exists:%d", userID)

	value, err := h.kv.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if value != "" {
		h.sugar.Debugf("User ID %d was found in cache", userID)
		return true, nil
	}

	var userFound bool
	err = h.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)", userID).Scan(&userFound)
	if err != nil {
		return false, err
	}

	if !userFound {
		h.sugar.Debugf("User ID %d was not found in database", userID)
		return false, nil
	}

	err = h.kv.Set(ctx, key, "y", userExistsTTL)
	if err != nil {
		return false, err
	}
	h.sugar.Debugf("User ID %d was found in database and was cached", userID)
	return true, nil
}

// PortalVerifier guards the download portal. Requests without a live
// session are sent back to the login page.
func (h *Handler) PortalVerifier(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var token string
		if cookie, err := r.Cookie(session.CookieName); err == nil {
			token = cookie.Value
		}

		s, err := h.sessions.Get(r.Context(), token)
		if err != nil {
			if !errors.Is(err, session.ErrSessionExpired) {
				h.sugar.Error(err)
				http.Error(w, "", http.StatusInternalServerError)
				return
			}

			for _, cookie := range session.ExpiredCookies() {
				http.SetCookie(w, cookie)
			}
			w.Header().Set("Location", loginPage)
			http.Error(w, "Session expired, please log in again", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), PortalSessionKeyType{}, s)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func portalSessionFrom(ctx context.Context) session.Session {
	return ctx.Value(PortalSessionKeyType{}).(session.Session)
}
