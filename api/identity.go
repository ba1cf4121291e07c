package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the authenticated caller
type Identity struct {
	UserID      string
	Email       string
	DisplayName string
}

// Header names of the development identity and the tab id
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserEmail = "X-User-Email"
	HeaderUserName  = "X-User-Name"
	HeaderTabID     = "X-Tab-ID"
	HeaderRequestID = "X-Request-ID"
)

// ErrUnauthenticated is returned if a request carries no valid identity
var ErrUnauthenticated = errors.New("authentication required")

// Claims is the payload of an identity token. The subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// authenticator extracts the Identity of a request
type authenticator struct {
	cfg AuthConfig
}

// identify returns the caller of r or an error wrapping ErrUnauthenticated
func (a *authenticator) identify(r *http.Request) (Identity, error) {
	if a.cfg.DevMode() {
		id := Identity{
			UserID:      strings.TrimSpace(r.Header.Get(HeaderUserID)),
			Email:       strings.TrimSpace(r.Header.Get(HeaderUserEmail)),
			DisplayName: strings.TrimSpace(r.Header.Get(HeaderUserName)),
		}
		if id.UserID == "" {
			return Identity{}, fmt.Errorf("%w: missing %s header", ErrUnauthenticated, HeaderUserID)
		}
		return id, nil
	}

	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		return Identity{}, fmt.Errorf("%w: missing bearer token", ErrUnauthenticated)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(a.cfg.Leeway),
		jwt.WithExpirationRequired(),
	}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
	}

	var claims Claims
	if _, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return []byte(a.cfg.JWTSecret), nil
	}, opts...); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Identity{}, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}

	return Identity{
		UserID:      claims.Subject,
		Email:       claims.Email,
		DisplayName: claims.Name,
	}, nil
}

// SignToken issues an HS256 identity token. It is used by the cli and by tests.
func SignToken(secret string, claims Claims) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("signing secret is required")
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
