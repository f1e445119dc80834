package download

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/venaticlol/venatic/internal/keyValue"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *keyValue.Store {
	t.Helper()
	kv := keyValue.New(zap.NewNop().Sugar(), nil, true)
	t.Cleanup(kv.Close)
	return kv
}

func TestVerificationLifetime(t *testing.T) {
	ctx := context.Background()
	g := NewGate(newTestStore(t))
	now := time.Now()
	g.now = func() time.Time { return now }

	v, err := g.Store(ctx, "session", "ABCDEFGHIJKLMNOP")
	require.NoError(t, err)
	assert.NotEmpty(t, v.Token)
	assert.Equal(t, "QUJDREVGR0hJSg==", v.LicenseFragment) // base64("ABCDEFGHIJ")

	valid, err := g.IsValid(ctx, "session")
	require.NoError(t, err)
	assert.True(t, valid)

	now = now.Add(TokenExpiryTime)
	valid, err = g.IsValid(ctx, "session")
	require.NoError(t, err)
	assert.True(t, valid, "exactly one hour old is still valid")

	now = now.Add(time.Millisecond)
	_, err = g.Get(ctx, "session")
	assert.True(t, errors.Is(err, ErrVerificationRequired))

	// cleared, so rewinding the clock doesn't bring it back
	now = now.Add(-time.Hour)
	valid, err = g.IsValid(ctx, "session")
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestVerificationIsPerSession(t *testing.T) {
	ctx := context.Background()
	g := NewGate(newTestStore(t))

	_, err := g.Store(ctx, "a", "KEY")
	require.NoError(t, err)

	valid, err := g.IsValid(ctx, "b")
	require.NoError(t, err)
	assert.False(t, valid)

	require.NoError(t, g.Clear(ctx, "a"))
	valid, err = g.IsValid(ctx, "a")
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestFileURL(t *testing.T) {
	f := File{URLBase: "https://files.catbox.moe/", FileID: "qBnY4FjN", Ext: ".rar"}

	fileURL, err := f.URL()
	require.NoError(t, err)
	assert.Equal(t, "https://files.catbox.moe/61xbpj.rar", fileURL)
	assert.Equal(t, "qBnY4FjN", ObfuscateFileID("61xbpj"))

	_, err = File{FileID: "!!!"}.URL()
	assert.Error(t, err)
}

func TestFetcherStream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/abc.rar" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("payload"))
	}))
	t.Cleanup(upstream.Close)

	f := NewFetcher(File{URLBase: upstream.URL + "/", FileID: ObfuscateFileID("abc"), Ext: ".rar", Filename: "Tool.rar"}, upstream.Client())

	w := httptest.NewRecorder()
	require.NoError(t, f.Stream(context.Background(), w))
	assert.Equal(t, "payload", w.Body.String())
	assert.Equal(t, `attachment; filename=Tool.rar`, w.Header().Get("Content-Disposition"))

	missing := NewFetcher(File{URLBase: upstream.URL + "/", FileID: ObfuscateFileID("nope"), Ext: ".rar"}, upstream.Client())
	w = httptest.NewRecorder()
	err := missing.Stream(context.Background(), w)
	assert.True(t, errors.Is(err, ErrDownloadFailed))
	assert.Empty(t, w.Header().Get("Content-Disposition"))
}

func TestCooldown(t *testing.T) {
	ctx := context.Background()
	c := NewCooldown(newTestStore(t))
	now := time.UnixMilli(time.Now().UnixMilli())
	c.now = func() time.Time { return now }

	remaining, err := c.Remaining(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, remaining)

	claimed, err := c.Claim(ctx, "alice")
	require.NoError(t, err)
	require.True(t, claimed)

	claimed, err = c.Claim(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, claimed)

	now = now.Add(90 * time.Minute)
	remaining, err = c.Remaining(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, CooldownDuration-90*time.Minute, remaining)
	assert.Equal(t, "22:30:00", FormatRemaining(remaining))

	now = now.Add(CooldownDuration)
	remaining, err = c.Remaining(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, remaining)

	// the store still holds the key, the cooldown itself is over
	claimed, err = c.Claim(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestCooldownRelease(t *testing.T) {
	ctx := context.Background()
	c := NewCooldown(newTestStore(t))

	claimed, err := c.Claim(ctx, "alice")
	require.NoError(t, err)
	require.True(t, claimed)

	require.NoError(t, c.Release(ctx, "alice"))

	remaining, err := c.Remaining(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, remaining)

	claimed, err = c.Claim(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestFormatRemaining(t *testing.T) {
	tests := []struct {
		d        time.Duration
		expected string
	}{
		{d: 0, expected: "00:00:00"},
		{d: -time.Second, expected: "00:00:00"},
		{d: 59 * time.Second, expected: "00:00:59"},
		{d: time.Hour + 2*time.Minute + 3*time.Second + 999*time.Millisecond, expected: "01:02:03"},
		{d: 23*time.Hour + 59*time.Minute + 59*time.Second, expected: "23:59:59"},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.expected, FormatRemaining(tc.d))
	}
}
