package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"vsrepair/booking-service/internal/access"
	"vsrepair/booking-service/internal/intake"
	"vsrepair/booking-service/internal/models"

	"go.uber.org/zap"
)

// ResolveCaller maps a session token to its caller. An empty token is an
// anonymous guest; an unknown or expired one fails with store.ErrSessionNotFound.
func (s *Service) ResolveCaller(ctx context.Context, token string) (access.Caller, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return access.Anonymous(), nil
	}
	session, err := s.store.GetSession(ctx, token)
	if err != nil {
		return access.Caller{}, err
	}
	role, err := s.roleOf(ctx, session.Identity)
	if err != nil {
		return access.Caller{}, err
	}
	return access.Caller{Identity: session.Identity, Role: role}, nil
}

func (s *Service) roleOf(ctx context.Context, identity string) (access.Role, error) {
	raw, ok, err := s.store.GetUserRole(ctx, identity)
	if err != nil {
		return "", err
	}
	if !ok {
		return access.RoleGuest, nil
	}
	role, err := access.ParseRole(raw)
	if err != nil {
		s.log.Warn("stored role is unknown, treating as guest", zap.String("identity", identity), zap.String("role", raw))
		return access.RoleGuest, nil
	}
	return role, nil
}

func (s *Service) CallerRole(caller access.Caller) access.Role {
	if caller.Role == "" {
		return access.RoleGuest
	}
	return caller.Role
}

func (s *Service) IsCallerAdmin(caller access.Caller) bool {
	return caller.IsAdmin()
}

// AssignUserRole is admin only. The change applies to the target's next request.
func (s *Service) AssignUserRole(ctx context.Context, caller access.Caller, identity, role string) error {
	if err := access.Authorize(caller, access.RoleAdmin); err != nil {
		return err
	}
	identity = strings.TrimSpace(identity)
	fields := intake.FieldErrors{}
	if identity == "" {
		fields["identity"] = "Identity is required"
	}
	parsed, err := access.ParseRole(role)
	if err != nil {
		fields["role"] = "Role must be one of admin, user, guest"
	}
	if len(fields) > 0 {
		return &intake.ValidationError{Fields: fields}
	}
	if err := s.store.SetUserRole(ctx, identity, string(parsed)); err != nil {
		return err
	}
	s.log.Info("user role assigned", zap.String("identity", identity), zap.String("role", string(parsed)), zap.String("by", caller.Identity))
	return nil
}

// GetCallerUserProfile reports false when the caller has not saved a profile.
func (s *Service) GetCallerUserProfile(ctx context.Context, caller access.Caller) (models.UserProfile, bool, error) {
	if err := access.Authorize(caller, access.RoleUser); err != nil {
		return models.UserProfile{}, false, err
	}
	return s.store.GetUserProfile(ctx, caller.Identity)
}

func (s *Service) SaveCallerUserProfile(ctx context.Context, caller access.Caller, profile models.UserProfile) error {
	if err := access.Authorize(caller, access.RoleUser); err != nil {
		return err
	}
	if caller.Anonymous() {
		return access.ErrPermissionDenied
	}
	profile = models.UserProfile{
		Name:  strings.TrimSpace(profile.Name),
		Email: strings.TrimSpace(profile.Email),
		Phone: strings.TrimSpace(profile.Phone),
	}
	return s.store.SaveUserProfile(ctx, caller.Identity, profile)
}

func (s *Service) GetUserProfile(ctx context.Context, caller access.Caller, identity string) (models.UserProfile, bool, error) {
	if err := access.AuthorizeSelfOrAdmin(caller, identity); err != nil {
		return models.UserProfile{}, false, err
	}
	return s.store.GetUserProfile(ctx, identity)
}

// BootstrapAdmin grants identity the admin role and, when token is set,
// registers a session for it valid for ttl.
func (s *Service) BootstrapAdmin(ctx context.Context, identity, token string, ttl time.Duration) error {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return errors.New("bootstrap admin: identity is required")
	}
	if err := s.store.SetUserRole(ctx, identity, string(access.RoleAdmin)); err != nil {
		return fmt.Errorf("bootstrap admin role: %w", err)
	}
	if token != "" {
		if ttl <= 0 {
			ttl = 365 * 24 * time.Hour
		}
		if err := s.store.CreateSession(ctx, token, identity, s.now().Add(ttl)); err != nil {
			return fmt.Errorf("bootstrap admin session: %w", err)
		}
	}
	s.log.Info("admin bootstrapped", zap.String("identity", identity), zap.Bool("session", token != ""))
	return nil
}
