package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"taskcal/internal/apperr"
	"taskcal/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

// authRoute labels failures rejected before routing.
const authRoute = "auth"

type userIDKey struct{}

// UserIDFromContext returns the authenticated user id placed by JWTAuth.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey{}).(string)
	return id, ok && id != ""
}

func withUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// JWTAuth verifies HS256 bearer tokens issued by the primary service. The
// subject claim is the user id.
type JWTAuth struct {
	secret []byte
	issuer string
	parser *jwt.Parser
}

func NewJWTAuth(cfg config.APIAuthConfig) *JWTAuth {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	return &JWTAuth{
		secret: []byte(cfg.JWTSecret),
		issuer: cfg.Issuer,
		parser: jwt.NewParser(opts...),
	}
}

func (a *JWTAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, authErr := bearerToken(r)
		if authErr != nil {
			logFailure(r, nil, authRoute, authErr)
			fail(w, r, authErr)
			return
		}

		userID, err := a.Verify(raw)
		if err != nil {
			appErr := apperr.Classify(err)
			logFailure(r, nil, authRoute, appErr)
			fail(w, r, appErr)
			return
		}

		next.ServeHTTP(w, r.WithContext(withUserID(r.Context(), userID)))
	})
}

// Verify checks the token and returns its subject.
func (a *JWTAuth) Verify(raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := a.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		message := "Invalid token"
		if errors.Is(err, jwt.ErrTokenExpired) {
			message = "Token expired"
		}
		return "", apperr.Wrap(apperr.KindAuth, message, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", apperr.NewAuth("Token has no subject")
	}
	return claims.Subject, nil
}

// Issue signs a token for userID. A zero ttl issues a token without expiry.
func (a *JWTAuth) Issue(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:  userID,
		Issuer:   a.issuer,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func bearerToken(r *http.Request) (string, *apperr.Error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", apperr.NewAuth("Missing authorization header")
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", apperr.NewAuth("Authorization header must be a bearer token")
	}
	return strings.TrimSpace(token), nil
}
