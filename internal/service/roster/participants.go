package roster

import (
	"context"
	"fmt"

	"github.com/kubikal7/ski-jumping-management/internal/authz"
	"github.com/kubikal7/ski-jumping-management/internal/model"
	"github.com/kubikal7/ski-jumping-management/internal/season"
	"github.com/kubikal7/ski-jumping-management/internal/storage"
)

// EventParticipants lists the athletes registered for an event.
func (s *Service) EventParticipants(ctx context.Context, eventID int64) ([]model.Participant, error) {
	if _, err := s.db.GetEvent(ctx, eventID); err != nil {
		return nil, storage.Classify(err, fmt.Sprintf("event %d", eventID))
	}
	ps, err := s.db.ListEventParticipants(ctx, eventID)
	return ps, storage.Classify(err, "participants")
}

// AthleteParticipations lists every event an athlete is registered for.
func (s *Service) AthleteParticipations(ctx context.Context, athleteID int64) ([]model.Participant, error) {
	if _, err := s.db.GetUser(ctx, athleteID); err != nil {
		return nil, storage.Classify(err, fmt.Sprintf("user %d", athleteID))
	}
	ps, err := s.db.ListAthleteParticipations(ctx, athleteID)
	return ps, storage.Classify(err, "participations")
}

// Register adds an athlete to an event. The caller must be allowed to manage
// participants of one of the event's teams.
func (s *Service) Register(ctx context.Context, actor authz.Actor, req model.ParticipantRequest) (model.Participant, error) {
	event, err := s.db.GetEvent(ctx, req.EventID)
	if err != nil {
		return model.Participant{}, storage.Classify(err, fmt.Sprintf("event %d", req.EventID))
	}
	if err := authz.Check(actor, authz.OpParticipants, event.AllowedTeamIDs); err != nil {
		return model.Participant{}, err
	}
	if _, err := s.loadAthlete(ctx, req.AthleteID, "be added as participant"); err != nil {
		return model.Participant{}, err
	}

	already, err := s.db.IsParticipant(ctx, event.ID, req.AthleteID)
	if err != nil {
		return model.Participant{}, storage.Classify(err, "participant")
	}
	if already {
		return model.Participant{}, fmt.Errorf("%w: athlete %d is already registered for event %d", model.ErrConflict, req.AthleteID, event.ID)
	}

	key := season.Key(event.StartDate.UTC())
	if err := s.partitions.Ensure(ctx, key, storage.TableParticipants); err != nil {
		return model.Participant{}, err
	}
	p, err := s.db.CreateParticipant(ctx, model.Participant{EventID: event.ID, AthleteID: req.AthleteID, Season: key})
	if err != nil {
		// Lost a race with a concurrent registration.
		return model.Participant{}, storage.Classify(err, "participant")
	}
	s.logger.Info("roster: participant registered",
		"event_id", event.ID, "athlete_id", req.AthleteID, "season", key, "actor", actor.UserID)
	return p, nil
}

// Withdraw removes a registration. Results already recorded for the athlete
// at that event are kept.
func (s *Service) Withdraw(ctx context.Context, actor authz.Actor, participantID int64) error {
	p, err := s.db.GetParticipant(ctx, participantID)
	if err != nil {
		return storage.Classify(err, fmt.Sprintf("participant %d", participantID))
	}
	event, err := s.db.GetEvent(ctx, p.EventID)
	if err != nil {
		return storage.Classify(err, fmt.Sprintf("event %d", p.EventID))
	}
	if err := authz.Check(actor, authz.OpParticipants, event.AllowedTeamIDs); err != nil {
		return err
	}
	if err := s.db.DeleteParticipant(ctx, participantID); err != nil {
		return storage.Classify(err, fmt.Sprintf("participant %d", participantID))
	}
	s.logger.Info("roster: participant withdrawn", "participant_id", participantID, "event_id", p.EventID, "actor", actor.UserID)
	return nil
}
