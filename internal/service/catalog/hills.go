package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/kubikal7/ski-jumping-management/internal/authz"
	"github.com/kubikal7/ski-jumping-management/internal/model"
	"github.com/kubikal7/ski-jumping-management/internal/storage"
)

func hillFromRequest(req model.HillRequest) (model.Hill, error) {
	h := model.Hill{
		Name:              strings.TrimSpace(req.Name),
		City:              req.City,
		Country:           req.Country,
		HillSize:          req.HillSize,
		ConstructionPoint: req.ConstructionPoint,
		Latitude:          req.Latitude,
		Longitude:         req.Longitude,
	}
	if h.Name == "" {
		return model.Hill{}, fmt.Errorf("%w: hill name is required", model.ErrInvalidRequest)
	}
	if h.HillSize <= 0 {
		return model.Hill{}, fmt.Errorf("%w: hill size must be positive", model.ErrInvalidRequest)
	}
	return h, nil
}

// Hills lists hills.
func (s *Service) Hills(ctx context.Context, f model.HillFilter, p model.Page) ([]model.Hill, int, error) {
	hills, total, err := s.db.ListHills(ctx, f, p)
	if err != nil {
		return nil, 0, storage.Classify(err, "hills")
	}
	return hills, total, nil
}

// Hill returns one hill.
func (s *Service) Hill(ctx context.Context, id int64) (model.Hill, error) {
	h, err := s.db.GetHill(ctx, id)
	if err != nil {
		return model.Hill{}, storage.Classify(err, fmt.Sprintf("hill %d", id))
	}
	return h, nil
}

// CreateHill adds a hill. Requires OPERATE.
func (s *Service) CreateHill(ctx context.Context, actor authz.Actor, req model.HillRequest) (model.Hill, error) {
	if err := authz.RequireAny(actor, model.CapOperate); err != nil {
		return model.Hill{}, err
	}
	h, err := hillFromRequest(req)
	if err != nil {
		return model.Hill{}, err
	}
	created, err := s.db.CreateHill(ctx, h)
	if err != nil {
		return model.Hill{}, storage.Classify(err, "hill")
	}
	s.logger.Info("catalog: hill created", "hill_id", created.ID, "actor", actor.UserID)
	return created, nil
}

// UpdateHill overwrites a hill. Requires OPERATE.
func (s *Service) UpdateHill(ctx context.Context, actor authz.Actor, id int64, req model.HillRequest) (model.Hill, error) {
	if err := authz.RequireAny(actor, model.CapOperate); err != nil {
		return model.Hill{}, err
	}
	h, err := hillFromRequest(req)
	if err != nil {
		return model.Hill{}, err
	}
	h.ID = id
	updated, err := s.db.UpdateHill(ctx, h)
	if err != nil {
		return model.Hill{}, storage.Classify(err, fmt.Sprintf("hill %d", id))
	}
	return updated, nil
}

// HillHasEvents reports whether any event is held on the hill.
func (s *Service) HillHasEvents(ctx context.Context, id int64) (bool, error) {
	if _, err := s.Hill(ctx, id); err != nil {
		return false, err
	}
	_, total, err := s.db.ListEvents(ctx, model.EventFilter{HillIDs: []int64{id}}, model.Page{Limit: 1})
	if err != nil {
		return false, storage.Classify(err, "events")
	}
	return total > 0, nil
}

// DeleteHill removes a hill. A hill that still hosts events is refused
// with model.ErrConflict. Requires OPERATE.
func (s *Service) DeleteHill(ctx context.Context, actor authz.Actor, id int64) error {
	if err := authz.RequireAny(actor, model.CapOperate); err != nil {
		return err
	}
	err := s.db.DeleteHill(ctx, id)
	if storage.IsForeignKeyViolation(err) {
		return fmt.Errorf("%w: hill %d still has events", model.ErrConflict, id)
	}
	if err != nil {
		return storage.Classify(err, fmt.Sprintf("hill %d", id))
	}
	s.logger.Info("catalog: hill deleted", "hill_id", id, "actor", actor.UserID)
	return nil
}
