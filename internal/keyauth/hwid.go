package keyauth

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"
)

const (
	HWIDCookieName    = "hwid"
	FingerprintHeader = "X-Fingerprint"
	hwidMaxAge        = 31536000 // one year
)

// HWID returns the pseudo hardware ID for the requesting browser, issuing
// and storing a new one in a cookie when it doesn't have one yet.
func HWID(w http.ResponseWriter, r *http.Request) string {
	cookie, err := r.Cookie(HWIDCookieName)
	if err == nil && cookie.Value != "" {
		return cookie.Value
	}

	hwid := GenerateHWID(r.UserAgent(), fingerprint(r))
	http.SetCookie(w, &http.Cookie{
		Name:     HWIDCookieName,
		Value:    hwid,
		Path:     "/",
		MaxAge:   hwidMaxAge,
		SameSite: http.SameSiteLaxMode,
	})
	return hwid
}

// GenerateHWID digests before truncating, otherwise every browser sharing a
// user agent prefix would end up with the same 32 characters.
func GenerateHWID(userAgent string, fingerprint string) string {
	sum := sha256.Sum256([]byte(userAgent + fingerprint))
	return base64.RawURLEncoding.EncodeToString(sum[:])[:32]
}

// fingerprint prefers the canvas fingerprint the page sends along and falls
// back to a digest of headers that stay stable for one browser.
func fingerprint(r *http.Request) string {
	if fp := r.Header.Get(FingerprintHeader); fp != "" {
		return fp
	}

	h := sha256.New()
	for _, name := range []string{"Accept-Language", "Accept-Encoding", "Sec-Ch-Ua", "Sec-Ch-Ua-Platform"} {
		h.Write([]byte(r.Header.Get(name)))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
