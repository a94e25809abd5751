// Package access decides which caller may run which operation.
package access

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrUnknownRole      = errors.New("unknown role")
)

type Role string

const (
	RoleGuest Role = "guest"
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func (r Role) rank() int {
	switch r {
	case RoleAdmin:
		return 2
	case RoleUser:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether r is ranked at or above required.
func (r Role) AtLeast(required Role) bool {
	return r.rank() >= required.rank()
}

func ParseRole(value string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(value))) {
	case RoleGuest:
		return RoleGuest, nil
	case RoleUser:
		return RoleUser, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", ErrUnknownRole
	}
}

// Caller is the resolved principal behind a request. An empty Identity is an
// anonymous guest.
type Caller struct {
	Identity string
	Role     Role
}

func Anonymous() Caller {
	return Caller{Role: RoleGuest}
}

func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}

func (c Caller) Anonymous() bool {
	return c.Identity == ""
}

// Authorize is the gate every protected operation calls first.
func Authorize(caller Caller, required Role) error {
	if caller.Role.AtLeast(required) {
		return nil
	}
	return ErrPermissionDenied
}

// AuthorizeSelfOrAdmin lets a caller act on its own identity, or an admin on any.
func AuthorizeSelfOrAdmin(caller Caller, identity string) error {
	if caller.IsAdmin() {
		return nil
	}
	if !caller.Anonymous() && caller.Identity == identity {
		return nil
	}
	return ErrPermissionDenied
}

type callerKey struct{}

func WithCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFromContext falls back to an anonymous guest.
func CallerFromContext(ctx context.Context) Caller {
	caller, ok := ctx.Value(callerKey{}).(Caller)
	if !ok {
		return Anonymous()
	}
	return caller
}
