package keyauth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type vendor struct {
	mutex    sync.Mutex
	requests []url.Values
	handle   func(form url.Values) (int, string)
}

func (v *vendor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Content-Type") != "application/x-www-form-urlencoded" {
		http.Error(w, "bad content type", http.StatusBadRequest)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	v.mutex.Lock()
	v.requests = append(v.requests, r.PostForm)
	v.mutex.Unlock()

	status, body := v.handle(r.PostForm)
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func (v *vendor) types() []string {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	var types []string
	for _, r := range v.requests {
		types = append(types, r.Get("type"))
	}
	return types
}

func newTestClient(t *testing.T, handle func(form url.Values) (int, string)) (*Client, *vendor) {
	t.Helper()
	v := &vendor{handle: handle}
	server := httptest.NewServer(v)
	t.Cleanup(server.Close)

	c := New(Options{Name: "app", OwnerID: "owner", Version: "1.0", URL: server.URL}, zap.NewNop().Sugar())
	return c, v
}

const licenseOK = `{
	"success": true,
	"message": "Logged in!",
	"info": {
		"username": "KEY-123",
		"ip": "1.2.3.4",
		"hwid": null,
		"createdate": "1700000000",
		"lastlogin": "1700000100",
		"subscriptions": [{"subscription": "default", "key": "KEY-123", "expiry": "1800000000"}]
	}
}`

func TestLicenseSuccess(t *testing.T) {
	c, v := newTestClient(t, func(form url.Values) (int, string) {
		switch form.Get("type") {
		case "init":
			return http.StatusOK, `{"success": true, "message": "Initialized", "sessionid": "sess-1"}`
		case "license":
			if form.Get("sessionid") != "sess-1" || form.Get("key") != "KEY-123" || form.Get("hwid") != "HW" {
				return http.StatusOK, `{"success": false, "message": "bad form"}`
			}
			if form.Get("name") != "app" || form.Get("ownerid") != "owner" {
				return http.StatusOK, `{"success": false, "message": "bad app"}`
			}
			return http.StatusOK, licenseOK
		}
		return http.StatusBadRequest, ""
	})

	result, err := c.License(context.Background(), "KEY-123", "HW")
	require.NoError(t, err)
	require.True(t, result.Success, result.Message)
	require.NotNil(t, result.Data)

	assert.Equal(t, "KEY-123", result.Data.Username)
	assert.Equal(t, "N/A", result.Data.HWID)
	assert.Equal(t, "1800000000", result.Data.Expires)
	assert.Equal(t, "default", result.Data.Subscription)
	assert.Len(t, result.Data.Subscriptions, 1)
	assert.Equal(t, []string{"init", "license"}, v.types())
}

func TestLicenseFailureSurfacesVendorMessage(t *testing.T) {
	c, _ := newTestClient(t, func(form url.Values) (int, string) {
		if form.Get("type") == "init" {
			return http.StatusOK, `{"success": true, "sessionid": "s"}`
		}
		return http.StatusOK, `{"success": false, "message": "Key Not Found."}`
	})

	result, err := c.License(context.Background(), "nope", "HW")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "Key Not Found.", result.Message)
	assert.Nil(t, result.Data)
}

func TestInitOnlyOnce(t *testing.T) {
	c, v := newTestClient(t, func(form url.Values) (int, string) {
		if form.Get("type") == "init" {
			return http.StatusOK, `{"success": true, "sessionid": "s"}`
		}
		return http.StatusOK, `{"success": false, "message": "no"}`
	})

	ctx := context.Background()
	require.NoError(t, c.Init(ctx))
	_, err := c.License(ctx, "a", "HW")
	require.NoError(t, err)
	_, err = c.License(ctx, "b", "HW")
	require.NoError(t, err)

	assert.Equal(t, []string{"init", "license", "license"}, v.types())
}

func TestInitInvalidApplication(t *testing.T) {
	c, _ := newTestClient(t, func(form url.Values) (int, string) {
		return http.StatusOK, `KeyAuth_Invalid`
	})

	err := c.Init(context.Background())
	assert.True(t, errors.Is(err, ErrInvalidApplication))

	_, err = c.License(context.Background(), "a", "HW")
	assert.True(t, errors.Is(err, ErrInvalidApplication))
}

func TestHTTPErrorStatus(t *testing.T) {
	c, _ := newTestClient(t, func(form url.Values) (int, string) {
		return http.StatusBadGateway, "upstream down"
	})

	err := c.Init(context.Background())
	assert.True(t, errors.Is(err, ErrInitFailed))
}

func TestResetHWID(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		success  bool
		expected string
	}{
		{name: "Success", status: http.StatusOK, body: `{"success": true, "message": "Reset!"}`, success: true, expected: "Reset!"},
		{name: "Endpoint missing", status: http.StatusOK, body: `{"success": false, "message": "Type Not Found"}`, expected: ResetUnavailableMessage},
		{name: "Missing parameter", status: http.StatusOK, body: `{"success": false, "message": "Invalid parameter"}`, expected: ResetUnavailableMessage},
		{name: "Other failure", status: http.StatusOK, body: `{"success": false, "message": "Key is banned"}`, expected: "Key is banned"},
		{name: "Transport failure", status: http.StatusInternalServerError, body: "", expected: ResetDisabledMessage},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(form url.Values) (int, string) {
				if form.Get("type") == "init" {
					return http.StatusOK, `{"success": true, "sessionid": "s"}`
				}
				return tc.status, tc.body
			})

			result, err := c.ResetHWID(context.Background(), "KEY")
			require.NoError(t, err)
			assert.Equal(t, tc.success, result.Success)
			assert.Equal(t, tc.expected, result.Message)
		})
	}
}

func TestHWIDCookie(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("User-Agent", "Mozilla/5.0 test")
	r.Header.Set(FingerprintHeader, "data:image/png;base64,AAAA")
	w := httptest.NewRecorder()

	hwid := HWID(w, r)
	assert.Len(t, hwid, 32)
	assert.Equal(t, GenerateHWID("Mozilla/5.0 test", "data:image/png;base64,AAAA"), hwid)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, HWIDCookieName, cookies[0].Name)
	assert.Equal(t, hwid, cookies[0].Value)

	// a browser that already has one keeps it
	r2 := httptest.NewRequest(http.MethodPost, "/", nil)
	r2.AddCookie(&http.Cookie{Name: HWIDCookieName, Value: "existing"})
	w2 := httptest.NewRecorder()
	assert.Equal(t, "existing", HWID(w2, r2))
	assert.Empty(t, w2.Result().Cookies())
}

func TestGenerateHWIDDistinguishesFingerprints(t *testing.T) {
	ua := "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	assert.NotEqual(t, GenerateHWID(ua, "a"), GenerateHWID(ua, "b"))
}
