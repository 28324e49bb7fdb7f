package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kubikal7/ski-jumping-management/internal/authz"
	"github.com/kubikal7/ski-jumping-management/internal/model"
	"github.com/kubikal7/ski-jumping-management/internal/season"
	"github.com/kubikal7/ski-jumping-management/internal/storage"
)

// eventFromRequest validates req and checks that its hill and allowed teams
// exist.
func (s *Service) eventFromRequest(ctx context.Context, req model.EventRequest) (model.Event, error) {
	e := model.Event{
		Name:           strings.TrimSpace(req.Name),
		Type:           req.Type,
		HillID:         req.HillID,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
		Description:    req.Description,
		Level:          req.Level,
		AllowedTeamIDs: req.AllowedTeamIDs,
	}
	switch {
	case e.Name == "":
		return model.Event{}, fmt.Errorf("%w: event name is required", model.ErrInvalidRequest)
	case !e.Type.Valid():
		return model.Event{}, fmt.Errorf("%w: unknown event type %q", model.ErrInvalidRequest, e.Type)
	case e.StartDate.IsZero() || e.EndDate.IsZero():
		return model.Event{}, fmt.Errorf("%w: start and end dates are required", model.ErrInvalidRequest)
	case e.EndDate.Before(e.StartDate):
		return model.Event{}, fmt.Errorf("%w: end date cannot be before start date", model.ErrInvalidRequest)
	case e.Level < model.MinEventLevel || e.Level > model.MaxEventLevel:
		return model.Event{}, fmt.Errorf("%w: level must be between %d and %d",
			model.ErrInvalidRequest, model.MinEventLevel, model.MaxEventLevel)
	}

	if _, err := s.db.GetHill(ctx, e.HillID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.Event{}, fmt.Errorf("%w: hill %d does not exist", model.ErrInvalidRequest, e.HillID)
		}
		return model.Event{}, storage.Classify(err, "hill")
	}
	missing, err := s.db.MissingTeams(ctx, e.AllowedTeamIDs)
	if err != nil {
		return model.Event{}, storage.Classify(err, "teams")
	}
	if len(missing) > 0 {
		return model.Event{}, fmt.Errorf("%w: teams not found: %v", model.ErrInvalidRequest, missing)
	}
	return e, nil
}

// Events lists events matching f.
func (s *Service) Events(ctx context.Context, f model.EventFilter, p model.Page) ([]model.Event, int, error) {
	events, total, err := s.db.ListEvents(ctx, f, p)
	if err != nil {
		return nil, 0, storage.Classify(err, "events")
	}
	return events, total, nil
}

// Event returns one event.
func (s *Service) Event(ctx context.Context, id int64) (model.Event, error) {
	e, err := s.db.GetEvent(ctx, id)
	if err != nil {
		return model.Event{}, storage.Classify(err, fmt.Sprintf("event %d", id))
	}
	return e, nil
}

// today returns the start of the current UTC day.
func (s *Service) today() time.Time {
	return s.now().UTC().Truncate(24 * time.Hour)
}

// UpcomingEvents narrows f to events starting today or later, soonest first.
// f usually carries one athlete, hill or team.
func (s *Service) UpcomingEvents(ctx context.Context, f model.EventFilter, p model.Page) ([]model.Event, int, error) {
	today := s.today()
	f.StartFrom, f.StartTo = &today, nil
	f.Ascending = true
	return s.Events(ctx, f, p)
}

// PastEvents narrows f to events that started before today, latest first.
func (s *Service) PastEvents(ctx context.Context, f model.EventFilter, p model.Page) ([]model.Event, int, error) {
	before := s.today().Add(-time.Nanosecond)
	f.StartFrom, f.StartTo = nil, &before
	f.Ascending = false
	return s.Events(ctx, f, p)
}

// CreateEvent adds an event. Requires OPERATE.
func (s *Service) CreateEvent(ctx context.Context, actor authz.Actor, req model.EventRequest) (model.Event, error) {
	if err := authz.RequireAny(actor, model.CapOperate); err != nil {
		return model.Event{}, err
	}
	e, err := s.eventFromRequest(ctx, req)
	if err != nil {
		return model.Event{}, err
	}
	created, err := s.db.CreateEvent(ctx, e)
	if err != nil {
		return model.Event{}, storage.Classify(err, "event")
	}
	s.logger.Info("catalog: event created", "event_id", created.ID, "season", season.Key(created.StartDate.UTC()), "actor", actor.UserID)
	return created, nil
}

// UpdateEvent overwrites an event. When the start date moves into another
// season, that season's partitions are provisioned first and the event's
// participants and results follow it. Requires OPERATE.
func (s *Service) UpdateEvent(ctx context.Context, actor authz.Actor, id int64, req model.EventRequest) (model.Event, error) {
	if err := authz.RequireAny(actor, model.CapOperate); err != nil {
		return model.Event{}, err
	}
	prev, err := s.Event(ctx, id)
	if err != nil {
		return model.Event{}, err
	}
	e, err := s.eventFromRequest(ctx, req)
	if err != nil {
		return model.Event{}, err
	}
	e.ID = id

	oldKey, newKey := season.Key(prev.StartDate.UTC()), season.Key(e.StartDate.UTC())
	if oldKey != newKey {
		if err := s.partitions.Ensure(ctx, newKey, storage.TableParticipants, storage.TableResults); err != nil {
			return model.Event{}, err
		}
	}
	updated, err := s.db.UpdateEvent(ctx, e)
	if err != nil {
		return model.Event{}, storage.Classify(err, fmt.Sprintf("event %d", id))
	}
	if oldKey != newKey {
		s.logger.Info("catalog: event moved season", "event_id", id, "from", oldKey, "to", newKey, "actor", actor.UserID)
	}
	return updated, nil
}

// DeleteEvent removes an event with its participants and results. Requires
// OPERATE.
func (s *Service) DeleteEvent(ctx context.Context, actor authz.Actor, id int64) error {
	if err := authz.RequireAny(actor, model.CapOperate); err != nil {
		return err
	}
	if err := s.db.DeleteEvent(ctx, id); err != nil {
		return storage.Classify(err, fmt.Sprintf("event %d", id))
	}
	s.logger.Info("catalog: event deleted", "event_id", id, "actor", actor.UserID)
	return nil
}
