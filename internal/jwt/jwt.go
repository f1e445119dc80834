package jwt

import (
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	CookieName       = "JWT"
	lifeTime         = time.Hour * 24         // 1 day
	rememberLifeTime = time.Hour * 24 * 7 * 4 // 4 weeks
)

type UserToken struct {
	UserID   int64 `json:"userID,string"`
	Remember bool  `json:"rem"`
	jwt.RegisteredClaims
}

type Issuer struct {
	secret  []byte
	isHttps bool
}

func NewIssuer(secret string, isHttps bool) *Issuer {
	return &Issuer{secret: []byte(secret), isHttps: isHttps}
}

func (i *Issuer) CreateToken(rememberMe bool, userID int64) (http.Cookie, error) {
	tokenLifeTime := lifeTime
	if rememberMe {
		tokenLifeTime = rememberLifeTime
	}

	currentTime := time.Now().UTC()
	expirationDate := currentTime.Add(tokenLifeTime)

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, UserToken{
		UserID:   userID,
		Remember: rememberMe,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(currentTime),
			ExpiresAt: jwt.NewNumericDate(expirationDate),
		},
	})

	tokenString, err := token.SignedString(i.secret)
	if err != nil {
		return http.Cookie{}, err
	}

	cookie := http.Cookie{
		Name:     CookieName,
		Value:    tokenString,
		Path:     "/",
		HttpOnly: true,
		Secure:   i.isHttps,
		SameSite: http.SameSiteLaxMode,
	}

	// without Expires the browser drops the cookie when it closes
	if rememberMe {
		cookie.Expires = expirationDate
	}

	return cookie, nil
}

func (i *Issuer) VerifyToken(tokenString string) (UserToken, error) {
	token, err := jwt.ParseWithClaims(tokenString, &UserToken{}, func(token *jwt.Token) (any, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}))
	if err != nil {
		return UserToken{}, err
	} else if claims, ok := token.Claims.(*UserToken); ok {
		return *claims, nil
	} else {
		return UserToken{}, errors.New("invalid token")
	}
}

func ExpiredCookie() *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
	}
}
