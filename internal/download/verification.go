// Package download gates the portal's file download behind a recent license
// verification.
package download

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/venaticlol/venatic/internal/keyValue"
)

const (
	TokenExpiryTime = time.Hour

	verifyKeyPrefix = "portal_verify:"
	fragmentLength  = 10
)

var ErrVerificationRequired = errors.New("Verification required")

type Verification struct {
	Token           string `json:"token"`
	Timestamp       int64  `json:"timestamp"` // unix milliseconds
	LicenseFragment string `json:"licenseFragment"`
}

// Gate keeps one verification per portal session.
type Gate struct {
	kv  *keyValue.Store
	now func() time.Time
}

func NewGate(kv *keyValue.Store) *Gate {
	return &Gate{kv: kv, now: time.Now}
}

func (g *Gate) Store(ctx context.Context, sessionToken string, licenseKey string) (Verification, error) {
	now := g.now()

	fragment := licenseKey
	if len(fragment) > fragmentLength {
		fragment = fragment[:fragmentLength]
	}

	v := Verification{
		Token:           ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		Timestamp:       now.UnixMilli(),
		LicenseFragment: base64.StdEncoding.EncodeToString([]byte(fragment)),
	}

	bytes, err := json.Marshal(v)
	if err != nil {
		return Verification{}, err
	}

	err = g.kv.Set(ctx, verifyKeyPrefix+sessionToken, string(bytes), TokenExpiryTime)
	if err != nil {
		return Verification{}, fmt.Errorf("failed to store verification: %w", err)
	}
	return v, nil
}

// Get returns the session's verification, or ErrVerificationRequired when
// there is none or it is older than TokenExpiryTime. Stale ones are cleared.
func (g *Gate) Get(ctx context.Context, sessionToken string) (Verification, error) {
	value, err := g.kv.Get(ctx, verifyKeyPrefix+sessionToken)
	if err != nil {
		return Verification{}, err
	}
	if value == "" {
		return Verification{}, ErrVerificationRequired
	}

	var v Verification
	err = json.Unmarshal([]byte(value), &v)
	if err != nil || v.Token == "" || g.now().UnixMilli()-v.Timestamp > TokenExpiryTime.Milliseconds() {
		clearErr := g.Clear(ctx, sessionToken)
		if clearErr != nil {
			return Verification{}, clearErr
		}
		return Verification{}, ErrVerificationRequired
	}

	return v, nil
}

func (g *Gate) IsValid(ctx context.Context, sessionToken string) (bool, error) {
	_, err := g.Get(ctx, sessionToken)
	if errors.Is(err, ErrVerificationRequired) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return true, nil
}

func (g *Gate) Clear(ctx context.Context, sessionToken string) error {
	return g.kv.Del(ctx, verifyKeyPrefix+sessionToken)
}
