package handlers

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/venaticlol/venatic/internal/credentials"
	"github.com/venaticlol/venatic/internal/jwt"
	"github.com/venaticlol/venatic/internal/models"
	validate "github.com/venaticlol/venatic/internal/validator"
)

var (
	ErrUsernameTaken      = errors.New("username_taken")
	ErrInvalidCredentials = errors.New("invalid_credentials")
)

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	type Login struct {
		UserName string `json:"userName"`
		Password string `json:"password"`
	}

	var login Login
	err := json.NewDecoder(r.Body).Decode(&login)
	if err != nil {
		h.sugar.Debug(err)
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	var userID int64
	var password []byte

	err = h.db.QueryRowContext(r.Context(), "SELECT id, password FROM users WHERE username = ?", validate.FoldUsername(login.UserName)).Scan(&userID, &password)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.sugar.Debug(err)
			http.Error(w, ErrInvalidCredentials.Error(), http.StatusUnauthorized)
		} else {
			h.sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
		}
		return
	}

	err = credentials.Compare(password, login.Password)
	if err != nil {
		h.sugar.Debug(err)
		if errors.Is(err, credentials.ErrMismatch) {
			http.Error(w, ErrInvalidCredentials.Error(), http.StatusUnauthorized)
		} else {
			http.Error(w, "", http.StatusInternalServerError)
		}
		return
	}

	cookie, err := h.jwt.CreateToken(r.URL.Query().Get("rememberMe") == "true", userID)
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &cookie)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, jwt.ExpiredCookie())
	http.SetCookie(w, &http.Cookie{Name: SessionCookieName, Value: "", Path: "/", Expires: time.Unix(0, 0), HttpOnly: true})
}

type Registration struct {
	UserName        string `json:"userName" validate:"required"`
	DisplayName     string `json:"displayName" validate:"max=64"`
	DateOfBirth     string `json:"dateOfBirth" validate:"required"`
	Password        string `json:"password" validate:"required"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var registerErrors = make(map[string]string)

	var registration Registration
	err := json.NewDecoder(r.Body).Decode(&registration)
	if err != nil {
		h.sugar.Debug(err)
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	err = h.validate.Struct(registration)
	if err != nil {
		var validateErrs validator.ValidationErrors
		if !errors.As(err, &validateErrs) {
			h.sugar.Error(err)
			http.Error(w, "", http.StatusInternalServerError)
			return
		}
		for _, e := range validateErrs {
			registerErrors[e.Field()] = e.Tag()
		}
	}

	userName := validate.FoldUsername(registration.UserName)

	if _, failed := registerErrors["userName"]; !failed {
		if err := validate.Username(userName); err != nil {
			registerErrors["userName"] = err.Error()
		}
	}
	if _, failed := registerErrors["password"]; !failed {
		if err := validate.Password(registration.Password); err != nil {
			registerErrors["password"] = err.Error()
		}
	}
	if _, failed := registerErrors["dateOfBirth"]; !failed {
		if err := validate.DateOfBirth(registration.DateOfBirth, time.Now()); err != nil {
			registerErrors["dateOfBirth"] = err.Error()
		}
	}

	// sends back 400 with the form field errors
	if len(registerErrors) > 0 {
		h.writeJSON(w, http.StatusBadRequest, registerErrors)
		return
	}

	displayName := strings.TrimSpace(registration.DisplayName)
	if displayName == "" {
		displayName = strings.TrimSpace(registration.UserName)
	}

	passwordBytes, err := credentials.Hash(registration.Password)
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	userID, err := h.snowflake.Generate()
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	discriminator, err := newDiscriminator()
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	user := models.User{
		ID:            userID,
		UserName:      userName,
		DisplayName:   displayName,
		DateOfBirth:   registration.DateOfBirth,
		Discriminator: discriminator,
		Password:      passwordBytes,
	}

	err = h.insertUser(r.Context(), user)
	if err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			h.sugar.Debugf("Username [%s] is already taken", userName)
			h.writeJSON(w, http.StatusConflict, map[string]string{"userName": ErrUsernameTaken.Error()})
			return
		}
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	h.sugar.Debugf("User [%s] registered with ID [%d]", userName, userID)

	cookie, err := h.jwt.CreateToken(false, userID)
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &cookie)
	h.writeJSON(w, http.StatusCreated, user)
}

// insertUser writes the user and its username index row together.
func (h *Handler) insertUser(ctx context.Context, user models.User) error {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var taken bool
	err = tx.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM usernames WHERE username = ?)", user.UserName).Scan(&taken)
	if err != nil {
		return err
	}
	if taken {
		return ErrUsernameTaken
	}

	_, err = tx.ExecContext(ctx, "INSERT INTO users (id, username, display_name, date_of_birth, picture, discriminator, password) VALUES (?, ?, ?, ?, ?, ?, ?)",
		user.ID, user.UserName, user.DisplayName, user.DateOfBirth, user.Picture, user.Discriminator, user.Password)
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}

	_, err = tx.ExecContext(ctx, "INSERT INTO usernames (username, user_id) VALUES (?, ?)", user.UserName, user.ID)
	if err != nil {
		return fmt.Errorf("inserting username index: %w", err)
	}

	return tx.Commit()
}

func newDiscriminator() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(9999))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%04d", n.Int64()+1), nil
}

func (h *Handler) NewSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := h.snowflake.Generate()
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	sessionCookie := http.Cookie{
		Name:     SessionCookieName,
		Value:    strconv.FormatInt(sessionID, 10),
		Path:     "/",
		HttpOnly: true,
		Secure:   h.isHttps,
		SameSite: http.SameSiteLaxMode,
	}
	http.SetCookie(w, &sessionCookie)
}
