package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/kubikal7/ski-jumping-management/internal/authz"
	"github.com/kubikal7/ski-jumping-management/internal/model"
	"github.com/kubikal7/ski-jumping-management/internal/storage"
)

func teamFromRequest(req model.TeamRequest) (model.Team, error) {
	t := model.Team{Name: strings.TrimSpace(req.Name), Description: req.Description}
	if t.Name == "" {
		return model.Team{}, fmt.Errorf("%w: team name is required", model.ErrInvalidRequest)
	}
	return t, nil
}

// Teams lists teams whose name contains name.
func (s *Service) Teams(ctx context.Context, name string, p model.Page) ([]model.Team, int, error) {
	teams, total, err := s.db.ListTeams(ctx, name, p)
	if err != nil {
		return nil, 0, storage.Classify(err, "teams")
	}
	return teams, total, nil
}

// Team returns one team.
func (s *Service) Team(ctx context.Context, id int64) (model.Team, error) {
	t, err := s.db.GetTeam(ctx, id)
	if err != nil {
		return model.Team{}, storage.Classify(err, fmt.Sprintf("team %d", id))
	}
	return t, nil
}

// TeamAthletes returns the athletes of a team ordered by last name.
func (s *Service) TeamAthletes(ctx context.Context, id int64) ([]model.User, error) {
	if _, err := s.Team(ctx, id); err != nil {
		return nil, err
	}
	users, err := s.db.TeamAthletes(ctx, id)
	if err != nil {
		return nil, storage.Classify(err, "team athletes")
	}
	return users, nil
}

// CreateTeam adds a team. Names are unique ignoring case. Requires MANAGER.
func (s *Service) CreateTeam(ctx context.Context, actor authz.Actor, req model.TeamRequest) (model.Team, error) {
	if err := authz.RequireAny(actor, model.CapManager); err != nil {
		return model.Team{}, err
	}
	t, err := teamFromRequest(req)
	if err != nil {
		return model.Team{}, err
	}
	created, err := s.db.CreateTeam(ctx, t)
	if err != nil {
		return model.Team{}, storage.Classify(err, fmt.Sprintf("team %q", t.Name))
	}
	s.logger.Info("catalog: team created", "team_id", created.ID, "actor", actor.UserID)
	return created, nil
}

// UpdateTeam renames or redescribes a team. Requires MANAGER.
func (s *Service) UpdateTeam(ctx context.Context, actor authz.Actor, id int64, req model.TeamRequest) (model.Team, error) {
	if err := authz.RequireAny(actor, model.CapManager); err != nil {
		return model.Team{}, err
	}
	t, err := teamFromRequest(req)
	if err != nil {
		return model.Team{}, err
	}
	t.ID = id
	updated, err := s.db.UpdateTeam(ctx, t)
	if err != nil {
		if storage.IsUniqueViolation(err) {
			return model.Team{}, storage.Classify(err, fmt.Sprintf("team %q", t.Name))
		}
		return model.Team{}, storage.Classify(err, fmt.Sprintf("team %d", id))
	}
	return updated, nil
}

// DeleteTeam removes a team, its memberships and its event admissions.
// Requires MANAGER.
func (s *Service) DeleteTeam(ctx context.Context, actor authz.Actor, id int64) error {
	if err := authz.RequireAny(actor, model.CapManager); err != nil {
		return err
	}
	if err := s.db.DeleteTeam(ctx, id); err != nil {
		return storage.Classify(err, fmt.Sprintf("team %d", id))
	}
	s.logger.Info("catalog: team deleted", "team_id", id, "actor", actor.UserID)
	return nil
}
