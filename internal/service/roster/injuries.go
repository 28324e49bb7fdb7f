package roster

import (
	"context"
	"fmt"

	"github.com/kubikal7/ski-jumping-management/internal/authz"
	"github.com/kubikal7/ski-jumping-management/internal/model"
	"github.com/kubikal7/ski-jumping-management/internal/storage"
)

// Injuries lists injuries matching f.
func (s *Service) Injuries(ctx context.Context, f model.InjuryFilter, p model.Page) ([]model.Injury, int, error) {
	out, total, err := s.db.ListInjuries(ctx, f, p)
	if err != nil {
		return nil, 0, storage.Classify(err, "injuries")
	}
	return out, total, nil
}

// Injury returns one injury.
func (s *Service) Injury(ctx context.Context, id int64) (model.Injury, error) {
	in, err := s.db.GetInjury(ctx, id)
	return in, storage.Classify(err, fmt.Sprintf("injury %d", id))
}

func injuryFromRequest(req model.InjuryRequest) (model.Injury, error) {
	in := model.Injury{
		AthleteID:   req.AthleteID,
		Severity:    req.Severity,
		Description: req.Description,
	}
	if req.InjuryDate == nil {
		return model.Injury{}, fmt.Errorf("%w: injury_date is required", model.ErrInvalidRequest)
	}
	in.InjuryDate = req.InjuryDate.Time
	if req.RecoveryDate != nil {
		in.RecoveryDate = req.RecoveryDate.TimePtr()
		if in.RecoveryDate.Before(in.InjuryDate) {
			return model.Injury{}, fmt.Errorf("%w: recovery_date must not be before injury_date", model.ErrInvalidRequest)
		}
	}
	if !in.Severity.Valid() {
		return model.Injury{}, fmt.Errorf("%w: unknown severity %q", model.ErrInvalidRequest, req.Severity)
	}
	return in, nil
}

// RecordInjury creates an injury for an athlete in one of the caller's teams.
func (s *Service) RecordInjury(ctx context.Context, actor authz.Actor, req model.InjuryRequest) (model.Injury, error) {
	in, err := injuryFromRequest(req)
	if err != nil {
		return model.Injury{}, err
	}
	athlete, err := s.loadAthlete(ctx, req.AthleteID, "have an injury recorded")
	if err != nil {
		return model.Injury{}, err
	}
	if err := authz.Check(actor, authz.OpInjuries, athlete.TeamIDs); err != nil {
		return model.Injury{}, err
	}
	out, err := s.db.CreateInjury(ctx, in)
	return out, storage.Classify(err, "injury")
}

// EditInjury overwrites an injury. The caller must be allowed on both the
// athlete it currently belongs to and the one named in req.
func (s *Service) EditInjury(ctx context.Context, actor authz.Actor, id int64, req model.InjuryRequest) (model.Injury, error) {
	in, err := injuryFromRequest(req)
	if err != nil {
		return model.Injury{}, err
	}
	current, err := s.db.GetInjury(ctx, id)
	if err != nil {
		return model.Injury{}, storage.Classify(err, fmt.Sprintf("injury %d", id))
	}
	if current.AthleteID != req.AthleteID {
		prev, err := s.db.GetUser(ctx, current.AthleteID)
		if err != nil {
			return model.Injury{}, storage.Classify(err, fmt.Sprintf("user %d", current.AthleteID))
		}
		if err := authz.Check(actor, authz.OpInjuries, prev.TeamIDs); err != nil {
			return model.Injury{}, err
		}
	}
	athlete, err := s.loadAthlete(ctx, req.AthleteID, "have an injury recorded")
	if err != nil {
		return model.Injury{}, err
	}
	if err := authz.Check(actor, authz.OpInjuries, athlete.TeamIDs); err != nil {
		return model.Injury{}, err
	}
	in.ID = id
	out, err := s.db.UpdateInjury(ctx, in)
	return out, storage.Classify(err, fmt.Sprintf("injury %d", id))
}

// DeleteInjury removes an injury.
func (s *Service) DeleteInjury(ctx context.Context, actor authz.Actor, id int64) error {
	in, err := s.db.GetInjury(ctx, id)
	if err != nil {
		return storage.Classify(err, fmt.Sprintf("injury %d", id))
	}
	athlete, err := s.db.GetUser(ctx, in.AthleteID)
	if err != nil {
		return storage.Classify(err, fmt.Sprintf("user %d", in.AthleteID))
	}
	if err := authz.Check(actor, authz.OpInjuries, athlete.TeamIDs); err != nil {
		return err
	}
	return storage.Classify(s.db.DeleteInjury(ctx, id), fmt.Sprintf("injury %d", id))
}
