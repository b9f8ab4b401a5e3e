package rest

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"barberbook/backend/internal/domain"
)

// Claims are the bearer token claims. Subject carries the numeric user id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

var errInvalidToken = errors.New("invalid token")

// Authenticate requires an HS256 bearer token and stores the caller's
// domain.Actor in the request context.
func Authenticate(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				writeErrorBody(w, http.StatusUnauthorized, "unauthenticated", "authentication is not configured")
				return
			}
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				writeErrorBody(w, http.StatusUnauthorized, "unauthenticated", "missing bearer token")
				return
			}
			actor, err := parseActor(strings.TrimPrefix(auth, "Bearer "), secret)
			if err != nil {
				writeErrorBody(w, http.StatusUnauthorized, "unauthenticated", err.Error())
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyActor, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func parseActor(tokenString, secret string) (domain.Actor, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return domain.Actor{}, errInvalidToken
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return domain.Actor{}, errors.New("token subject must be a user id")
	}
	role := domain.Role(strings.ToUpper(strings.TrimSpace(claims.Role)))
	if !role.Valid() {
		return domain.Actor{}, errors.New("token role is not recognized")
	}
	return domain.Actor{ID: id, Role: role}, nil
}

// ActorFromContext returns the authenticated caller, if any.
func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	a, ok := ctx.Value(ctxKeyActor).(domain.Actor)
	return a, ok
}
