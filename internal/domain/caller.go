package domain

import (
	"context"
	"errors"
)

// Role is the capability an authenticated caller holds.
type Role string

const (
	// RoleAdmin may act on any lot regardless of ownership
	RoleAdmin Role = "admin"

	// RoleIssuer may issue new lots
	RoleIssuer Role = "issuer"

	// RoleVerifier may move lots through the verification workflow
	RoleVerifier Role = "verifier"

	// RoleTrader may transfer, list, bid and retire lots it owns
	RoleTrader Role = "trader"
)

var validRoles = map[Role]bool{
	RoleAdmin:    true,
	RoleIssuer:   true,
	RoleVerifier: true,
	RoleTrader:   true,
}

// IsValid checks if the role is known
func (r Role) IsValid() bool {
	return validRoles[r]
}

// CanIssue checks if the role can issue lots
func (r Role) CanIssue() bool {
	return r == RoleAdmin || r == RoleIssuer
}

// CanVerify checks if the role can verify or reject lots
func (r Role) CanVerify() bool {
	return r == RoleAdmin || r == RoleVerifier
}

// IsAdmin checks for the ownership override
func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}

// Caller is the already-authenticated identity behind a request.
type Caller struct {
	ID   string
	Role Role
}

// SystemCaller is used by sweeps and other internal jobs.
var SystemCaller = Caller{ID: "system", Role: RoleAdmin}

// Authentication errors
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

type callerKey struct{}

// WithCaller stores c in ctx.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFromContext returns the caller stored by WithCaller.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}
