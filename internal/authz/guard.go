// Package authz holds the team-scope authorization predicate shared by every
// mutating entry point.
//
// Both the HTTP server and the MCP server import this package; neither
// imports the other.
package authz

import (
	"context"
	"fmt"
	"slices"

	"github.com/kubikal7/ski-jumping-management/internal/model"
)

// Operation names a family of team-scoped mutations.
type Operation string

const (
	OpParticipants   Operation = "participants"
	OpResults        Operation = "results"
	OpInjuries       Operation = "injuries"
	OpTeamMembership Operation = "team_membership"
)

// ScopedCapability returns the capability that grants op within the actor's
// own teams.
func (op Operation) ScopedCapability() model.Capability {
	switch op {
	case OpInjuries:
		return model.CapInjuryManager
	case OpParticipants, OpResults, OpTeamMembership:
		return model.CapTrainer
	default:
		return ""
	}
}

// Actor is the authenticated caller as seen by the guard.
type Actor struct {
	UserID       int64
	Capabilities model.Capabilities
	TeamIDs      []int64
}

// IsAdmin reports whether the actor bypasses team scoping.
func (a Actor) IsAdmin() bool { return a.Capabilities.Has(model.CapAdmin) }

// Permitted decides whether actor may perform op on a resource owned by (or
// open to) resourceTeams:
//   - ADMIN: always
//   - the op's scoped capability: only if the team sets intersect
//   - anything else: never, regardless of team overlap
func Permitted(actor Actor, op Operation, resourceTeams []int64) bool {
	if actor.IsAdmin() {
		return true
	}
	scoped := op.ScopedCapability()
	if scoped == "" || !actor.Capabilities.Has(scoped) {
		return false
	}
	return intersects(actor.TeamIDs, resourceTeams)
}

// Check is Permitted as an error: nil when allowed, model.ErrAccessDenied
// otherwise.
func Check(actor Actor, op Operation, resourceTeams []int64) error {
	if Permitted(actor, op, resourceTeams) {
		return nil
	}
	return fmt.Errorf("%w: %s outside your teams", model.ErrAccessDenied, op)
}

// RequireAny fails with model.ErrAccessDenied unless the actor holds at least
// one of caps. ADMIN always passes.
func RequireAny(actor Actor, caps ...model.Capability) error {
	if actor.IsAdmin() || actor.Capabilities.HasAny(caps...) {
		return nil
	}
	return fmt.Errorf("%w: requires one of %v", model.ErrAccessDenied, caps)
}

// CheckUserAdministration enforces the account rules for non-admins: only an
// ADMIN may grant the ADMIN capability or modify an existing ADMIN account.
// target is nil when creating a user.
func CheckUserAdministration(actor Actor, target *model.User, granted model.Capabilities) error {
	if actor.IsAdmin() {
		return nil
	}
	if !actor.Capabilities.Has(model.CapManager) {
		return fmt.Errorf("%w: user administration requires MANAGER", model.ErrAccessDenied)
	}
	if granted.Has(model.CapAdmin) {
		return fmt.Errorf("%w: only an administrator can grant ADMIN", model.ErrAccessDenied)
	}
	if target != nil && target.Capabilities.Has(model.CapAdmin) {
		return fmt.Errorf("%w: only an administrator can modify an administrator", model.ErrAccessDenied)
	}
	return nil
}

func intersects(a, b []int64) bool {
	for _, x := range a {
		if slices.Contains(b, x) {
			return true
		}
	}
	return false
}

// TeamSource resolves a user's current team memberships.
type TeamSource interface {
	UserTeamIDs(ctx context.Context, userID int64) ([]int64, error)
}

// LoadActor builds the Actor for an authenticated user. Team memberships are
// read from src on every call unless cache holds a fresh entry; capabilities
// come from the caller's token.
func LoadActor(ctx context.Context, src TeamSource, cache *TeamCache, userID int64, caps model.Capabilities) (Actor, error) {
	actor := Actor{UserID: userID, Capabilities: caps}
	if actor.IsAdmin() {
		return actor, nil
	}
	if teams, ok := cache.Get(userID); ok {
		actor.TeamIDs = teams
		return actor, nil
	}
	teams, err := src.UserTeamIDs(ctx, userID)
	if err != nil {
		return Actor{}, fmt.Errorf("authz: load teams for user %d: %w", userID, err)
	}
	cache.Set(userID, teams)
	actor.TeamIDs = teams
	return actor, nil
}
