// Package portal holds the download portal's account table.
package portal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/venaticlol/venatic/internal/credentials"
	"github.com/venaticlol/venatic/internal/session"
	"go.uber.org/zap"
)

// The messages are shown to users as they are.
var (
	ErrMissingFields      = errors.New("Please fill in all fields")
	ErrPasswordTooShort   = errors.New("Password must be at least 6 characters")
	ErrPasswordMismatch   = errors.New("Passwords do not match")
	ErrUsernameExists     = errors.New("Username already exists. Please choose another.")
	ErrUsernameTooShort   = errors.New("Username must be at least 3 characters")
	ErrInvalidCredentials = errors.New("Invalid username or password")
)

const (
	minPasswordLength = 6
	minUsernameLength = 3
)

type Account struct {
	Username  string
	Password  string
	CreatedAt int64 // unix milliseconds
}

// Accounts keeps portal accounts in the portal_accounts table, separate
// from chat users.
type Accounts struct {
	sugar    *zap.SugaredLogger
	db       *sql.DB
	sessions *session.Gate
	now      func() time.Time
}

func NewAccounts(sugar *zap.SugaredLogger, db *sql.DB, sessions *session.Gate) *Accounts {
	return &Accounts{sugar: sugar, db: db, sessions: sessions, now: time.Now}
}

// length counts UTF-16 code units, the unit the legacy hash works on.
func length(s string) int {
	return len(utf16.Encode([]rune(s)))
}

func (a *Accounts) Register(ctx context.Context, username string, password string, confirmPassword string) error {
	username = strings.TrimSpace(username)

	if username == "" || password == "" || confirmPassword == "" {
		return ErrMissingFields
	}
	if length(password) < minPasswordLength {
		return ErrPasswordTooShort
	}
	if password != confirmPassword {
		return ErrPasswordMismatch
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists bool
	err = tx.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM portal_accounts WHERE username = ?)", username).Scan(&exists)
	if err != nil {
		return err
	}
	if exists {
		return ErrUsernameExists
	}

	if length(username) < minUsernameLength {
		return ErrUsernameTooShort
	}

	_, err = tx.ExecContext(ctx, "INSERT INTO portal_accounts (username, password, created_at) VALUES (?, ?, ?)", username, credentials.LegacyHash(password), a.now().UnixMilli())
	if err == nil {
		err = tx.Commit()
	}
	if err != nil {
		_ = tx.Rollback()
		// lost a race against another registration of the same name
		if account, getErr := a.get(ctx, username); getErr == nil && account != nil {
			return ErrUsernameExists
		}
		return fmt.Errorf("failed to store account: %w", err)
	}

	a.sugar.Debugf("Portal account [%s] was created", username)
	return nil
}

func (a *Accounts) Login(ctx context.Context, username string, password string, rememberMe bool) (session.Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return session.Session{}, ErrMissingFields
	}

	account, err := a.get(ctx, username)
	if err != nil {
		return session.Session{}, err
	}
	if account == nil {
		return session.Session{}, ErrInvalidCredentials
	}

	err = credentials.CompareLegacy(account.Password, password)
	if err != nil {
		return session.Session{}, ErrInvalidCredentials
	}

	return a.sessions.Create(ctx, username, rememberMe)
}

func (a *Accounts) get(ctx context.Context, username string) (*Account, error) {
	account := Account{Username: username}
	err := a.db.QueryRowContext(ctx, "SELECT password, created_at FROM portal_accounts WHERE username = ?", username).
		Scan(&account.Password, &account.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return &account, nil
}
