package middleware

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/iaconlabs/owinbridge/owin"
)

// HashPassword returns the bcrypt hash BasicAuth expects.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// BasicAuth returns a middleware requiring HTTP Basic credentials for user
// whose password matches the bcrypt hash. Other requests get a 401 with a
// WWW-Authenticate challenge for realm.
func BasicAuth(realm, user, hash string) owin.Middleware {
	challenge := fmt.Sprintf("Basic realm=%q, charset=\"UTF-8\"", realm)
	return func(next owin.AppFunc) owin.AppFunc {
		return func(env owin.Environment) error {
			name, password, ok := basicCredentials(env.RequestHeaders().Get("Authorization"))
			if ok && subtle.ConstantTimeCompare([]byte(name), []byte(user)) == 1 &&
				bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil {
				return next(env)
			}
			env.ResponseHeaders().Set("WWW-Authenticate", challenge)
			return sendJSONError(env, "unauthorized", http.StatusUnauthorized)
		}
	}
}

func basicCredentials(header string) (string, string, bool) {
	const prefix = "Basic "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", "", false
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(header[len(prefix):]))
	if err != nil {
		return "", "", false
	}
	return strings.Cut(string(raw), ":")
}
