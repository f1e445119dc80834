package download

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/venaticlol/venatic/internal/keyValue"
)

const (
	CooldownDuration = 24 * time.Hour

	cooldownKeyPrefix = "hwid_reset:"
)

// Cooldown limits HWID resets to one per CooldownDuration per portal user.
type Cooldown struct {
	kv  *keyValue.Store
	now func() time.Time
}

func NewCooldown(kv *keyValue.Store) *Cooldown {
	return &Cooldown{kv: kv, now: time.Now}
}

func (c *Cooldown) Remaining(ctx context.Context, username string) (time.Duration, error) {
	value, err := c.kv.Get(ctx, cooldownKeyPrefix+username)
	if err != nil {
		return 0, err
	}
	if value == "" {
		return 0, nil
	}

	lastReset, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad cooldown timestamp %q: %w", value, err)
	}

	remaining := CooldownDuration - c.now().Sub(time.UnixMilli(lastReset))
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}

// Claim starts the cooldown unless one is already running and reports
// whether it did. Two concurrent resets can't both claim it.
func (c *Cooldown) Claim(ctx context.Context, username string) (bool, error) {
	now := strconv.FormatInt(c.now().UnixMilli(), 10)
	claimed, err := c.kv.SetNX(ctx, cooldownKeyPrefix+username, now, CooldownDuration)
	if err != nil || claimed {
		return claimed, err
	}

	// the key can outlive the cooldown when the stored time is behind
	remaining, err := c.Remaining(ctx, username)
	if err != nil || remaining > 0 {
		return false, err
	}
	return true, c.kv.Set(ctx, cooldownKeyPrefix+username, now, CooldownDuration)
}

// Release gives a claimed cooldown back, used when the reset didn't happen.
func (c *Cooldown) Release(ctx context.Context, username string) error {
	return c.kv.Del(ctx, cooldownKeyPrefix+username)
}

// FormatRemaining renders d as HH:MM:SS.
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := int(d / time.Hour)
	minutes := int(d % time.Hour / time.Minute)
	seconds := int(d % time.Minute / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}
