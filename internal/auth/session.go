package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/cuongbtq/voiceover-be/internal/api/domain"
)

// SystemSecretHeader carries the shared secret of trusted system callers.
const SystemSecretHeader = "x-job-system-secret"

// Claims are the session token claims. The subject is the user id.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// UserProvisioner creates a user on first sight.
type UserProvisioner interface {
	EnsureUser(ctx context.Context, userID, email string, initialCredits int64) (*domain.User, error)
}

type Config struct {
	JWTSecret     string
	CookieName    string
	SystemSecret  string
	SignupCredits int64
}

// SessionResolver maps a request's session token to a user identity.
type SessionResolver struct {
	secret        []byte
	cookieName    string
	systemSecret  string
	signupCredits int64
	users         UserProvisioner
	logger        *slog.Logger
}

func NewSessionResolver(cfg Config, users UserProvisioner, logger *slog.Logger) *SessionResolver {
	return &SessionResolver{
		secret:        []byte(cfg.JWTSecret),
		cookieName:    cfg.CookieName,
		systemSecret:  cfg.SystemSecret,
		signupCredits: cfg.SignupCredits,
		users:         users,
		logger:        logger,
	}
}

// Resolve authenticates r by bearer token or session cookie and returns the
// user, provisioning it on first sight.
func (s *SessionResolver) Resolve(r *http.Request) (*domain.User, error) {
	raw := tokenFromRequest(r, s.cookieName)
	if raw == "" {
		return nil, domain.ErrUnauthenticated
	}

	claims, err := s.parse(raw)
	if err != nil {
		s.logger.Debug("Session token rejected", slog.Any("error", err))
		return nil, domain.ErrUnauthenticated
	}

	user, err := s.users.EnsureUser(r.Context(), claims.Subject, claims.Email, s.signupCredits)
	if err != nil {
		return nil, fmt.Errorf("failed to load session user: %w", err)
	}
	return user, nil
}

func (s *SessionResolver) parse(raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token is invalid")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// IssueToken signs a session token for userID valid for ttl.
func (s *SessionResolver) IssueToken(userID, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// IsSystem reports whether r carries the configured system secret.
// An unconfigured secret never matches.
func (s *SessionResolver) IsSystem(r *http.Request) bool {
	return SecretMatches(s.systemSecret, r.Header.Get(SystemSecretHeader))
}

// SecretMatches compares a provided shared secret with the expected one.
func SecretMatches(expected, provided string) bool {
	if expected == "" || provided == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(provided)) == 1
}

func tokenFromRequest(r *http.Request, cookieName string) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if cookieName == "" {
		return ""
	}
	if c, err := r.Cookie(cookieName); err == nil {
		return c.Value
	}
	return ""
}
