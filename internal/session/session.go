// Package session implements the download portal's login session gate.
package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"
	"github.com/venaticlol/venatic/internal/keyValue"
)

const (
	CookieName           = "venatic_auth_token"
	RememberMeCookieName = "venatic_remember_me"

	Duration           = 24 * time.Hour
	RememberMeDuration = 30 * 24 * time.Hour

	keyPrefix = "portal_session:"
)

var ErrSessionExpired = errors.New("session expired")

type Session struct {
	Username   string `json:"username"`
	Token      string `json:"token"`
	Expires    int64  `json:"expires"` // unix milliseconds
	RememberMe bool   `json:"rememberMe"`
}

func (s Session) Cookie(secure bool) *http.Cookie {
	cookie := &http.Cookie{
		Name:     CookieName,
		Value:    s.Token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}

	if s.RememberMe {
		cookie.Expires = time.UnixMilli(s.Expires)
	}
	return cookie
}

// Gate stores sessions in the key-value store. Validity is decided by the
// stored expiry, the key-value TTL only keeps the store from growing.
type Gate struct {
	kv  *keyValue.Store
	now func() time.Time
}

func NewGate(kv *keyValue.Store) *Gate {
	return &Gate{kv: kv, now: time.Now}
}

func (g *Gate) Create(ctx context.Context, username string, rememberMe bool) (Session, error) {
	duration := Duration
	if rememberMe {
		duration = RememberMeDuration
	}

	now := g.now()
	s := Session{
		Username:   username,
		Token:      generateToken(now),
		Expires:    now.Add(duration).UnixMilli(),
		RememberMe: rememberMe,
	}

	bytes, err := json.Marshal(s)
	if err != nil {
		return Session{}, err
	}

	err = g.kv.Set(ctx, keyPrefix+s.Token, string(bytes), duration)
	if err != nil {
		return Session{}, fmt.Errorf("failed to store session: %w", err)
	}

	return s, nil
}

// Get returns the session for token. Expired or inconsistent sessions are
// cleared and reported as ErrSessionExpired.
func (g *Gate) Get(ctx context.Context, token string) (Session, error) {
	if token == "" {
		return Session{}, ErrSessionExpired
	}

	value, err := g.kv.Get(ctx, keyPrefix+token)
	if err != nil {
		return Session{}, err
	}
	if value == "" {
		return Session{}, ErrSessionExpired
	}

	var s Session
	err = json.Unmarshal([]byte(value), &s)
	if err != nil || s.Token != token || s.Expires < g.now().UnixMilli() {
		clearErr := g.Clear(ctx, token)
		if clearErr != nil {
			return Session{}, clearErr
		}
		return Session{}, ErrSessionExpired
	}

	return s, nil
}

// Username returns who the session belongs to, or None when the session
// isn't valid.
func (g *Gate) Username(ctx context.Context, token string) (mo.Option[string], error) {
	s, err := g.Get(ctx, token)
	if errors.Is(err, ErrSessionExpired) {
		return mo.None[string](), nil
	} else if err != nil {
		return mo.None[string](), err
	}
	return mo.Some(s.Username), nil
}

func (g *Gate) Clear(ctx context.Context, token string) error {
	return g.kv.Del(ctx, keyPrefix+token)
}

// End removes the session and returns who it belonged to. Unknown or
// corrupt sessions give None.
func (g *Gate) End(ctx context.Context, token string) (mo.Option[string], error) {
	if token == "" {
		return mo.None[string](), nil
	}

	value, err := g.kv.GetDel(ctx, keyPrefix+token)
	if err != nil {
		return mo.None[string](), err
	}
	if value == "" {
		return mo.None[string](), nil
	}

	var s Session
	err = json.Unmarshal([]byte(value), &s)
	if err != nil || s.Token != token {
		return mo.None[string](), nil
	}
	return mo.Some(s.Username), nil
}

func ExpiredCookies() []*http.Cookie {
	return []*http.Cookie{
		{Name: CookieName, Value: "", Path: "/", Expires: time.Unix(0, 0), HttpOnly: true},
		{Name: RememberMeCookieName, Value: "", Path: "/", Expires: time.Unix(0, 0)},
	}
}

// generateToken returns the reversed base64 of the current time plus random
// data, the same token shape the portal has always handed out.
func generateToken(now time.Time) string {
	data := strconv.FormatInt(now.UnixMilli(), 10) + strings.ReplaceAll(uuid.NewString(), "-", "")
	encoded := []byte(base64.RawURLEncoding.EncodeToString([]byte(data)))
	slices.Reverse(encoded)
	return string(encoded)
}
