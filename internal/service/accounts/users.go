package accounts

import (
	"context"
	"fmt"
	"strings"

	"github.com/kubikal7/ski-jumping-management/internal/auth"
	"github.com/kubikal7/ski-jumping-management/internal/authz"
	"github.com/kubikal7/ski-jumping-management/internal/model"
	"github.com/kubikal7/ski-jumping-management/internal/storage"
)

// Users lists users.
func (s *Service) Users(ctx context.Context, f model.UserFilter, p model.Page) ([]model.User, int, error) {
	users, total, err := s.db.ListUsers(ctx, f, p)
	if err != nil {
		return nil, 0, storage.Classify(err, "users")
	}
	return users, total, nil
}

// User returns one user.
func (s *Service) User(ctx context.Context, id int64) (model.User, error) {
	u, err := s.db.GetUser(ctx, id)
	if err != nil {
		return model.User{}, storage.Classify(err, fmt.Sprintf("user %d", id))
	}
	return u, nil
}

// profile is the part of a user that both create and update requests carry.
type profile struct {
	firstName, lastName, login string
	caps                       []model.Capability
	teamIDs                    []int64
	birthDate                  *model.Date
	nationality, photoURL      *string
	weight, height             *float64
	active                     *bool
}

func (s *Service) applyProfile(ctx context.Context, u *model.User, p profile) error {
	caps, err := model.Capabilities(p.caps).Normalize()
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrInvalidRequest, err)
	}
	if len(caps) == 0 {
		return fmt.Errorf("%w: user must have at least one capability", model.ErrInvalidRequest)
	}
	u.FirstName = strings.TrimSpace(p.firstName)
	u.LastName = strings.TrimSpace(p.lastName)
	u.Login = strings.TrimSpace(p.login)
	if u.FirstName == "" || u.LastName == "" || u.Login == "" {
		return fmt.Errorf("%w: first name, last name and login are required", model.ErrInvalidRequest)
	}
	missing, err := s.db.MissingTeams(ctx, p.teamIDs)
	if err != nil {
		return storage.Classify(err, "teams")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: teams not found: %v", model.ErrInvalidRequest, missing)
	}
	u.Capabilities = caps
	u.TeamIDs = p.teamIDs
	u.BirthDate = nil
	if p.birthDate != nil {
		u.BirthDate = p.birthDate.TimePtr()
	}
	u.Nationality = p.nationality
	u.PhotoURL = p.photoURL
	u.Weight = p.weight
	u.Height = p.height
	if p.active != nil {
		u.Active = *p.active
	}
	return nil
}

// CreateUser adds an account. Requires MANAGER; only an ADMIN may grant
// ADMIN. The new user must change the password at first login.
func (s *Service) CreateUser(ctx context.Context, actor authz.Actor, req model.CreateUserRequest) (model.User, error) {
	if err := authz.CheckUserAdministration(actor, nil, req.Capabilities); err != nil {
		return model.User{}, err
	}
	u := model.User{Active: true, MustChangePassword: true}
	if err := s.applyProfile(ctx, &u, profile{
		firstName: req.FirstName, lastName: req.LastName, login: req.Login,
		caps: req.Capabilities, teamIDs: req.TeamIDs, birthDate: req.BirthDate,
		nationality: req.Nationality, photoURL: req.PhotoURL,
		weight: req.Weight, height: req.Height, active: req.Active,
	}); err != nil {
		return model.User{}, err
	}
	hash, err := newPasswordHash(req.Password, "")
	if err != nil {
		return model.User{}, err
	}
	u.PasswordHash = hash

	created, err := s.db.CreateUser(ctx, u)
	if err != nil {
		return model.User{}, storage.Classify(err, fmt.Sprintf("login %q", u.Login))
	}
	s.logger.Info("accounts: user created", "user_id", created.ID, "capabilities", created.Capabilities, "actor", actor.UserID)
	return created, nil
}

// UpdateUser overwrites a user's profile, capabilities and teams. Changed
// capabilities apply from the user's next login.
func (s *Service) UpdateUser(ctx context.Context, actor authz.Actor, id int64, req model.UpdateUserRequest) (model.User, error) {
	target, err := s.User(ctx, id)
	if err != nil {
		return model.User{}, err
	}
	if err := authz.CheckUserAdministration(actor, &target, req.Capabilities); err != nil {
		return model.User{}, err
	}
	u := target
	if err := s.applyProfile(ctx, &u, profile{
		firstName: req.FirstName, lastName: req.LastName, login: req.Login,
		caps: req.Capabilities, teamIDs: req.TeamIDs, birthDate: req.BirthDate,
		nationality: req.Nationality, photoURL: req.PhotoURL,
		weight: req.Weight, height: req.Height, active: req.Active,
	}); err != nil {
		return model.User{}, err
	}
	updated, err := s.db.UpdateUser(ctx, u)
	if err != nil {
		if storage.IsUniqueViolation(err) {
			return model.User{}, storage.Classify(err, fmt.Sprintf("login %q", u.Login))
		}
		return model.User{}, storage.Classify(err, fmt.Sprintf("user %d", id))
	}
	s.teams.Invalidate(id)
	s.logger.Info("accounts: user updated", "user_id", id, "actor", actor.UserID)
	return updated, nil
}

// DeleteUser removes a user with everything that references it.
func (s *Service) DeleteUser(ctx context.Context, actor authz.Actor, id int64) error {
	target, err := s.User(ctx, id)
	if err != nil {
		return err
	}
	if err := authz.CheckUserAdministration(actor, &target, nil); err != nil {
		return err
	}
	if err := s.db.DeleteUser(ctx, id); err != nil {
		return storage.Classify(err, fmt.Sprintf("user %d", id))
	}
	s.teams.Invalidate(id)
	s.logger.Info("accounts: user deleted", "user_id", id, "actor", actor.UserID)
	return nil
}

// ResetPassword sets another user's password and forces a change at next
// login.
func (s *Service) ResetPassword(ctx context.Context, actor authz.Actor, id int64, newPassword string) error {
	target, err := s.User(ctx, id)
	if err != nil {
		return err
	}
	if err := authz.CheckUserAdministration(actor, &target, nil); err != nil {
		return err
	}
	hash, err := newPasswordHash(newPassword, target.PasswordHash)
	if err != nil {
		return err
	}
	if err := s.db.SetPassword(ctx, id, hash, true); err != nil {
		return storage.Classify(err, fmt.Sprintf("user %d", id))
	}
	s.logger.Info("accounts: password reset", "user_id", id, "actor", actor.UserID)
	return nil
}

// ChangeOwnPassword replaces the caller's password after checking the old
// one, and clears the must-change flag.
func (s *Service) ChangeOwnPassword(ctx context.Context, userID int64, oldPassword, newPassword string) error {
	u, err := s.User(ctx, userID)
	if err != nil {
		return err
	}
	ok, err := auth.VerifyPassword(oldPassword, u.PasswordHash)
	if err != nil {
		s.logger.Warn("accounts: unreadable password hash", "user_id", userID, "error", err)
	}
	if !ok {
		return fmt.Errorf("%w: wrong old password", model.ErrInvalidRequest)
	}
	hash, err := newPasswordHash(newPassword, u.PasswordHash)
	if err != nil {
		return err
	}
	if err := s.db.SetPassword(ctx, userID, hash, false); err != nil {
		return storage.Classify(err, fmt.Sprintf("user %d", userID))
	}
	s.logger.Info("accounts: password changed", "user_id", userID)
	return nil
}
