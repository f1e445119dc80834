package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/venaticlol/venatic/internal/download"
	"github.com/venaticlol/venatic/internal/keyauth"
	"github.com/venaticlol/venatic/internal/portal"
	"github.com/venaticlol/venatic/internal/session"
)

const (
	hwidResetDisabledMessage  = "HWID reset is disabled. Please contact support to reset your HWID."
	licenseCheckFailedMessage = "Failed to verify license. Please try again."
)

type portalMessage struct {
	Message string `json:"message"`
}

var portalUserErrors = []error{
	portal.ErrMissingFields,
	portal.ErrPasswordTooShort,
	portal.ErrPasswordMismatch,
	portal.ErrUsernameExists,
	portal.ErrUsernameTooShort,
}

func isPortalUserError(err error) bool {
	for _, userErr := range portalUserErrors {
		if errors.Is(err, userErr) {
			return true
		}
	}
	return false
}

func (h *Handler) PortalRegister(w http.ResponseWriter, r *http.Request) {
	type Registration struct {
		Username        string `json:"username"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirmPassword"`
	}

	var registration Registration
	err := json.NewDecoder(r.Body).Decode(&registration)
	if err != nil {
		h.sugar.Debug(err)
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	err = h.accounts.Register(r.Context(), registration.Username, registration.Password, registration.ConfirmPassword)
	if err != nil {
		if isPortalUserError(err) {
			status := http.StatusBadRequest
			if errors.Is(err, portal.ErrUsernameExists) {
				status = http.StatusConflict
			}
			h.writeJSON(w, status, portalMessage{Message: err.Error()})
			return
		}
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusCreated, portalMessage{Message: "Account created successfully! Please login."})
}

func (h *Handler) PortalLogin(w http.ResponseWriter, r *http.Request) {
	type Login struct {
		Username   string `json:"username"`
		Password   string `json:"password"`
		RememberMe bool   `json:"rememberMe"`
	}

	var login Login
	err := json.NewDecoder(r.Body).Decode(&login)
	if err != nil {
		h.sugar.Debug(err)
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	s, err := h.accounts.Login(r.Context(), login.Username, login.Password, login.RememberMe)
	if err != nil {
		switch {
		case errors.Is(err, portal.ErrMissingFields):
			h.writeJSON(w, http.StatusBadRequest, portalMessage{Message: err.Error()})
		case errors.Is(err, portal.ErrInvalidCredentials):
			h.writeJSON(w, http.StatusUnauthorized, portalMessage{Message: err.Error()})
		default:
			h.sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
		}
		return
	}

	http.SetCookie(w, s.Cookie(h.isHttps))
	http.SetCookie(w, &http.Cookie{
		Name:     session.RememberMeCookieName,
		Value:    strconv.FormatBool(s.RememberMe),
		Path:     "/",
		MaxAge:   int(session.RememberMeDuration.Seconds()),
		Secure:   h.isHttps,
		SameSite: http.SameSiteLaxMode,
	})

	h.writeJSON(w, http.StatusOK, s)
}

func (h *Handler) PortalLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(session.CookieName); err == nil && cookie.Value != "" {
		username, err := h.sessions.End(r.Context(), cookie.Value)
		if err != nil {
			h.sugar.Error(err)
		}
		if name, ok := username.Get(); ok {
			err = h.verifications.Clear(r.Context(), cookie.Value)
			if err != nil {
				h.sugar.Error(err)
			}
			h.sugar.Debugf("Portal user [%s] logged out", name)
		}
	}

	for _, cookie := range session.ExpiredCookies() {
		http.SetCookie(w, cookie)
	}
}

// PortalStatus tells the login page whether the browser already holds a
// valid session, it never redirects.
func (h *Handler) PortalStatus(w http.ResponseWriter, r *http.Request) {
	type Status struct {
		LoggedIn bool   `json:"loggedIn"`
		Username string `json:"username,omitempty"`
	}

	var token string
	if cookie, err := r.Cookie(session.CookieName); err == nil {
		token = cookie.Value
	}

	username, err := h.sessions.Username(r.Context(), token)
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, Status{LoggedIn: username.IsPresent(), Username: username.OrEmpty()})
}

func (h *Handler) PortalSession(w http.ResponseWriter, r *http.Request) {
	s := portalSessionFrom(r.Context())

	verified, err := h.verifications.IsValid(r.Context(), s.Token)
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	type SessionInfo struct {
		Username   string `json:"username"`
		Expires    int64  `json:"expires"`
		RememberMe bool   `json:"rememberMe"`
		Verified   bool   `json:"verified"`
	}

	h.writeJSON(w, http.StatusOK, SessionInfo{
		Username:   s.Username,
		Expires:    s.Expires,
		RememberMe: s.RememberMe,
		Verified:   verified,
	})
}

type licenseRequest struct {
	Key string `json:"key"`
}

func (h *Handler) readLicenseKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req licenseRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil {
		h.sugar.Debug(err)
		http.Error(w, "", http.StatusBadRequest)
		return "", false
	}

	key := strings.TrimSpace(req.Key)
	if key == "" {
		h.writeJSON(w, http.StatusBadRequest, portalMessage{Message: "Please enter a license key"})
		return "", false
	}
	return key, true
}

// CheckLicense validates a key with the vendor. Only a successful check
// unlocks the download, any failure removes a previous verification.
func (h *Handler) CheckLicense(w http.ResponseWriter, r *http.Request) {
	s := portalSessionFrom(r.Context())

	key, ok := h.readLicenseKey(w, r)
	if !ok {
		return
	}

	hwid := keyauth.HWID(w, r)

	result, err := h.license.License(r.Context(), key, hwid)
	if err != nil || !result.Success {
		clearErr := h.verifications.Clear(r.Context(), s.Token)
		if clearErr != nil {
			h.sugar.Error(clearErr)
		}

		if err != nil {
			h.sugar.Error(err)
			h.writeJSON(w, http.StatusBadGateway, keyauth.Result{Success: false, Message: licenseCheckFailedMessage})
			return
		}

		h.sugar.Debugf("License check for portal user [%s] failed: %s", s.Username, result.Message)
		h.writeJSON(w, http.StatusForbidden, result)
		return
	}

	_, err = h.verifications.Store(r.Context(), s.Token, key)
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	h.sugar.Debugf("Portal user [%s] verified a license", s.Username)
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	s := portalSessionFrom(r.Context())

	_, err := h.verifications.Get(r.Context(), s.Token)
	if err != nil {
		if errors.Is(err, download.ErrVerificationRequired) {
			h.writeJSON(w, http.StatusForbidden, portalMessage{Message: err.Error()})
			return
		}
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	h.sugar.Debugf("Portal user [%s] is downloading %s", s.Username, h.fetcher.Filename())

	err = h.fetcher.Stream(r.Context(), w)
	if err != nil {
		h.sugar.Error(err)
		// headers are only sent once the upstream answered
		if errors.Is(err, download.ErrDownloadFailed) {
			h.writeJSON(w, http.StatusBadGateway, portalMessage{Message: download.ErrDownloadFailed.Error()})
		}
	}
}

type cooldownInfo struct {
	Enabled   bool   `json:"enabled"`
	Remaining string `json:"remaining"`
	Seconds   int64  `json:"seconds"`
}

func (h *Handler) ResetHWID(w http.ResponseWriter, r *http.Request) {
	s := portalSessionFrom(r.Context())

	if !h.cfg.HwidResetEnabled {
		h.writeJSON(w, http.StatusForbidden, keyauth.Result{Success: false, Message: hwidResetDisabledMessage})
		return
	}

	key, ok := h.readLicenseKey(w, r)
	if !ok {
		return
	}

	remaining, err := h.cooldown.Remaining(r.Context(), s.Username)
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}
	if remaining > 0 {
		h.writeJSON(w, http.StatusTooManyRequests, keyauth.Result{
			Success: false,
			Message: "You can reset your HWID again in " + download.FormatRemaining(remaining),
		})
		return
	}

	claimed, err := h.cooldown.Claim(r.Context(), s.Username)
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}
	if !claimed {
		// another reset got in between
		h.writeJSON(w, http.StatusTooManyRequests, keyauth.Result{
			Success: false,
			Message: "You can reset your HWID again in " + download.FormatRemaining(download.CooldownDuration),
		})
		return
	}

	result, err := h.license.ResetHWID(r.Context(), key)
	if err != nil || !result.Success {
		releaseErr := h.cooldown.Release(r.Context(), s.Username)
		if releaseErr != nil {
			h.sugar.Error(releaseErr)
		}

		if err != nil {
			h.sugar.Error(err)
			h.writeJSON(w, http.StatusBadGateway, keyauth.Result{Success: false, Message: keyauth.ResetDisabledMessage})
			return
		}
		h.writeJSON(w, http.StatusBadRequest, result)
		return
	}

	// the key is bound to a new machine now, it has to be checked again
	err = h.verifications.Clear(r.Context(), s.Token)
	if err != nil {
		h.sugar.Error(err)
	}

	h.sugar.Infof("Portal user [%s] reset their HWID", s.Username)
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) HWIDCooldown(w http.ResponseWriter, r *http.Request) {
	s := portalSessionFrom(r.Context())

	remaining, err := h.cooldown.Remaining(r.Context(), s.Username)
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, cooldownInfo{
		Enabled:   h.cfg.HwidResetEnabled,
		Remaining: download.FormatRemaining(remaining),
		Seconds:   int64(remaining.Seconds()),
	})
}
