// Package auth implements the Auth Integration surface of the Security
// Gatekeeper (spec §4.2): authenticate/validate/authorise built on
// github.com/golang-jwt/jwt/v5, with a configurable role-capability
// matrix. Denials always carry a reason.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session is the decoded identity behind a validated token.
type Session struct {
	UserID string
	Role   string
	Token  string
}

// Claims extends jwt.RegisteredClaims with the orchestrator's identity
// fields.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

var ErrInvalidToken = errors.New("auth: invalid or expired token")

// RoleMatrix maps a role to the set of capabilities it grants, loaded from
// configuration per spec §4.2.
type RoleMatrix map[string][]string

// DefaultRoleMatrix matches the capability set used by the orchestrator's
// own REST surface and agent channel.
func DefaultRoleMatrix() RoleMatrix {
	return RoleMatrix{
		"admin": {"project:write", "project:read", "task:write", "task:read", "agent:manage", "audit:read"},
		"operator": {"project:read", "task:write", "task:read"},
		"agent":    {"task:read", "task:write", "job:write"},
		"viewer":   {"project:read", "task:read"},
	}
}

func (m RoleMatrix) allows(role, capability string) bool {
	for _, c := range m[role] {
		if c == capability {
			return true
		}
	}
	return false
}

// Authenticator issues and verifies bearer tokens and enforces the
// role-capability matrix.
type Authenticator struct {
	secret []byte
	expiry time.Duration
	issuer string
	roles  RoleMatrix
}

// Config configures an Authenticator.
type Config struct {
	Secret []byte
	Expiry time.Duration
	Issuer string
	Roles  RoleMatrix
}

// New builds an Authenticator. A zero Expiry defaults to 24h; a nil Roles
// uses DefaultRoleMatrix.
func New(cfg Config) *Authenticator {
	if cfg.Expiry <= 0 {
		cfg.Expiry = 24 * time.Hour
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "orchestrator"
	}
	if cfg.Roles == nil {
		cfg.Roles = DefaultRoleMatrix()
	}
	return &Authenticator{secret: cfg.Secret, expiry: cfg.Expiry, issuer: cfg.Issuer, roles: cfg.Roles}
}

// Authenticate issues a signed token and session for user/role.
func (a *Authenticator) Authenticate(user, role string) (token string, session Session, err error) {
	claims := &Claims{
		UserID: user,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(a.expiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    a.issuer,
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(a.secret)
	if err != nil {
		return "", Session{}, err
	}
	return signed, Session{UserID: user, Role: role, Token: signed}, nil
}

// Validate parses and verifies a bearer token, returning its Session.
func (a *Authenticator) Validate(tokenString string) (Session, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return Session{}, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Session{}, ErrInvalidToken
	}
	return Session{UserID: claims.UserID, Role: claims.Role, Token: tokenString}, nil
}

type sessionKey struct{}

// WithSession attaches session to ctx so downstream handlers can recover
// it for capability checks without re-validating the bearer token.
func WithSession(ctx context.Context, session Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, session)
}

// SessionFromContext recovers a Session attached by WithSession.
func SessionFromContext(ctx context.Context) (Session, bool) {
	session, ok := ctx.Value(sessionKey{}).(Session)
	return session, ok
}

// Denial explains why Authorise rejected a request.
type Denial struct {
	Reason string
}

func (d Denial) Error() string { return d.Reason }

// Authorise checks whether session's role grants capability.
func (a *Authenticator) Authorise(session Session, capability string) error {
	if session.Role == "" {
		return Denial{Reason: "session has no role"}
	}
	if !a.roles.allows(session.Role, capability) {
		return Denial{Reason: fmt.Sprintf("role %q lacks capability %q", session.Role, capability)}
	}
	return nil
}
