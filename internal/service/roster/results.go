package roster

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kubikal7/ski-jumping-management/internal/authz"
	"github.com/kubikal7/ski-jumping-management/internal/model"
	"github.com/kubikal7/ski-jumping-management/internal/season"
	"github.com/kubikal7/ski-jumping-management/internal/storage"
)

// Result stream actions.
const (
	ActionRecorded  = "recorded"
	ActionCorrected = "corrected"
	ActionDeleted   = "deleted"
)

// Results lists results matching f. A filter naming neither an event nor an
// athlete returns an empty page.
func (s *Service) Results(ctx context.Context, f model.ResultFilter, p model.Page) ([]model.Result, int, error) {
	rs, total, err := s.db.ListResults(ctx, f, p)
	if err != nil {
		return nil, 0, storage.Classify(err, "results")
	}
	return rs, total, nil
}

// Result returns one result.
func (s *Service) Result(ctx context.Context, id int64) (model.Result, error) {
	r, err := s.db.GetResult(ctx, id)
	return r, storage.Classify(err, fmt.Sprintf("result %d", id))
}

// checkResultTarget loads the event and athlete a result points at and
// enforces the participant and team rules.
func (s *Service) checkResultTarget(ctx context.Context, actor authz.Actor, req model.ResultRequest) (model.Event, error) {
	event, err := s.db.GetEvent(ctx, req.EventID)
	if err != nil {
		return model.Event{}, storage.Classify(err, fmt.Sprintf("event %d", req.EventID))
	}
	if _, err := s.db.GetUser(ctx, req.AthleteID); err != nil {
		return model.Event{}, storage.Classify(err, fmt.Sprintf("user %d", req.AthleteID))
	}
	registered, err := s.db.IsParticipant(ctx, event.ID, req.AthleteID)
	if err != nil {
		return model.Event{}, storage.Classify(err, "participant")
	}
	if !registered {
		return model.Event{}, fmt.Errorf("%w: athlete %d is not registered for event %d", model.ErrInvalidRequest, req.AthleteID, event.ID)
	}
	if err := authz.Check(actor, authz.OpResults, event.AllowedTeamIDs); err != nil {
		return model.Event{}, err
	}
	return event, nil
}

func resultFromRequest(req model.ResultRequest, seasonKey string) model.Result {
	return model.Result{
		EventID:          req.EventID,
		AthleteID:        req.AthleteID,
		Season:           seasonKey,
		AttemptNumber:    req.AttemptNumber,
		JumpLength:       req.JumpLength,
		StylePoints:      req.StylePoints,
		WindCompensation: req.WindCompensation,
		Gate:             req.Gate,
		TotalPoints:      req.TotalPoints,
		CoachComment:     req.CoachComment,
		VideoURL:         req.VideoURL,
		SpeedTakeoff:     req.SpeedTakeoff,
		FlightTime:       req.FlightTime,
	}
}

// RecordResult stores a new result in the season partition of its event.
func (s *Service) RecordResult(ctx context.Context, actor authz.Actor, req model.ResultRequest) (model.Result, error) {
	event, err := s.checkResultTarget(ctx, actor, req)
	if err != nil {
		return model.Result{}, err
	}
	key := season.Key(event.StartDate.UTC())
	if err := s.partitions.Ensure(ctx, key, storage.TableResults); err != nil {
		return model.Result{}, err
	}
	r, err := s.db.CreateResult(ctx, resultFromRequest(req, key))
	if err != nil {
		return model.Result{}, storage.Classify(err, "result")
	}
	s.publish(ctx, ActionRecorded, r)
	return r, nil
}

// CorrectResult overwrites a result. Pointing it at an event in another
// season moves the row to that season's partition. The caller must be
// allowed on both the current and the new event.
func (s *Service) CorrectResult(ctx context.Context, actor authz.Actor, id int64, req model.ResultRequest) (model.Result, error) {
	current, err := s.db.GetResult(ctx, id)
	if err != nil {
		return model.Result{}, storage.Classify(err, fmt.Sprintf("result %d", id))
	}
	if current.EventID != req.EventID {
		prev, err := s.db.GetEvent(ctx, current.EventID)
		if err != nil {
			return model.Result{}, storage.Classify(err, fmt.Sprintf("event %d", current.EventID))
		}
		if err := authz.Check(actor, authz.OpResults, prev.AllowedTeamIDs); err != nil {
			return model.Result{}, err
		}
	}
	event, err := s.checkResultTarget(ctx, actor, req)
	if err != nil {
		return model.Result{}, err
	}

	key := season.Key(event.StartDate.UTC())
	if err := s.partitions.Ensure(ctx, key, storage.TableResults); err != nil {
		return model.Result{}, err
	}
	next := resultFromRequest(req, key)
	next.ID = id
	r, err := s.db.UpdateResult(ctx, next)
	if err != nil {
		return model.Result{}, storage.Classify(err, fmt.Sprintf("result %d", id))
	}
	s.publish(ctx, ActionCorrected, r)
	return r, nil
}

// DeleteResult removes a result.
func (s *Service) DeleteResult(ctx context.Context, actor authz.Actor, id int64) error {
	r, err := s.db.GetResult(ctx, id)
	if err != nil {
		return storage.Classify(err, fmt.Sprintf("result %d", id))
	}
	event, err := s.db.GetEvent(ctx, r.EventID)
	if err != nil {
		return storage.Classify(err, fmt.Sprintf("event %d", r.EventID))
	}
	if err := authz.Check(actor, authz.OpResults, event.AllowedTeamIDs); err != nil {
		return err
	}
	if err := s.db.DeleteResult(ctx, id); err != nil {
		return storage.Classify(err, fmt.Sprintf("result %d", id))
	}
	s.publish(ctx, ActionDeleted, r)
	return nil
}

// publish announces a result change on the live feed. The write has already
// committed, so failures are logged only.
func (s *Service) publish(ctx context.Context, action string, r model.Result) {
	payload, err := json.Marshal(model.ResultEvent{
		Action:    action,
		ResultID:  r.ID,
		EventID:   r.EventID,
		AthleteID: r.AthleteID,
		Season:    r.Season,
	})
	if err != nil {
		s.logger.Error("roster: marshal result event", "error", err)
		return
	}
	if err := s.db.Notify(ctx, storage.ChannelResults, string(payload)); err != nil {
		s.logger.Warn("roster: notify result change failed", "result_id", r.ID, "error", err)
	}
}
