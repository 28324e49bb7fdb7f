package roster

import (
	"context"
	"fmt"

	"github.com/kubikal7/ski-jumping-management/internal/authz"
	"github.com/kubikal7/ski-jumping-management/internal/model"
	"github.com/kubikal7/ski-jumping-management/internal/storage"
)

func (s *Service) checkMembershipTarget(ctx context.Context, actor authz.Actor, userID, teamID int64) error {
	if err := authz.Check(actor, authz.OpTeamMembership, []int64{teamID}); err != nil {
		return err
	}
	if _, err := s.db.GetUser(ctx, userID); err != nil {
		return storage.Classify(err, fmt.Sprintf("user %d", userID))
	}
	if _, err := s.db.GetTeam(ctx, teamID); err != nil {
		return storage.Classify(err, fmt.Sprintf("team %d", teamID))
	}
	return nil
}

// AddMember puts a user into a team.
func (s *Service) AddMember(ctx context.Context, actor authz.Actor, userID, teamID int64) error {
	if err := s.checkMembershipTarget(ctx, actor, userID, teamID); err != nil {
		return err
	}
	added, err := s.db.AddUserToTeam(ctx, userID, teamID)
	if err != nil {
		return storage.Classify(err, "team membership")
	}
	if !added {
		return fmt.Errorf("%w: user %d is already a member of team %d", model.ErrInvalidRequest, userID, teamID)
	}
	s.teams.Invalidate(userID)
	s.logger.Info("roster: team member added", "user_id", userID, "team_id", teamID, "actor", actor.UserID)
	return nil
}

// RemoveMember takes a user out of a team.
func (s *Service) RemoveMember(ctx context.Context, actor authz.Actor, userID, teamID int64) error {
	if err := s.checkMembershipTarget(ctx, actor, userID, teamID); err != nil {
		return err
	}
	removed, err := s.db.RemoveUserFromTeam(ctx, userID, teamID)
	if err != nil {
		return storage.Classify(err, "team membership")
	}
	if !removed {
		return fmt.Errorf("%w: user %d is not a member of team %d", model.ErrInvalidRequest, userID, teamID)
	}
	s.teams.Invalidate(userID)
	s.logger.Info("roster: team member removed", "user_id", userID, "team_id", teamID, "actor", actor.UserID)
	return nil
}
