package server

import (
	"context"
	"net/http"

	"github.com/kubikal7/ski-jumping-management/internal/authz"
	"github.com/kubikal7/ski-jumping-management/internal/model"
)

// HandleListHills handles GET /v1/hills.
func (h *Handlers) HandleListHills(w http.ResponseWriter, r *http.Request) {
	q := newQueryParams(r)
	f := model.HillFilter{
		Name:        q.str("name"),
		City:        q.str("city"),
		Country:     q.str("country"),
		MinHillSize: q.float("min_hill_size"),
		MaxHillSize: q.float("max_hill_size"),
	}
	p := q.page()
	if err := q.err(); err != nil {
		h.fail(w, r, err)
		return
	}
	hills, total, err := h.catalog.Hills(r.Context(), f, p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeList(w, r, hills, total, p)
}

// HandleGetHill handles GET /v1/hills/{id}.
func (h *Handlers) HandleGetHill(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	hill, err := h.catalog.Hill(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, hill)
}

// HandleHillHasEvents handles GET /v1/hills/{id}/has-events.
func (h *Handlers) HandleHillHasEvents(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	has, err := h.catalog.HillHasEvents(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]bool{"has_events": has})
}

// HandleCreateHill handles POST /v1/hills.
func (h *Handlers) HandleCreateHill(w http.ResponseWriter, r *http.Request, actor authz.Actor) {
	var req model.HillRequest
	if !h.decode(w, r, &req) {
		return
	}
	hill, err := h.catalog.CreateHill(r.Context(), actor, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, hill)
}

// HandleUpdateHill handles PUT /v1/hills/{id}.
func (h *Handlers) HandleUpdateHill(w http.ResponseWriter, r *http.Request, actor authz.Actor) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req model.HillRequest
	if !h.decode(w, r, &req) {
		return
	}
	hill, err := h.catalog.UpdateHill(r.Context(), actor, id, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, hill)
}

// HandleDeleteHill handles DELETE /v1/hills/{id}.
func (h *Handlers) HandleDeleteHill(w http.ResponseWriter, r *http.Request, actor authz.Actor) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.catalog.DeleteHill(r.Context(), actor, id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleListTeams handles GET /v1/teams.
func (h *Handlers) HandleListTeams(w http.ResponseWriter, r *http.Request) {
	q := newQueryParams(r)
	name := q.str("name")
	p := q.page()
	if err := q.err(); err != nil {
		h.fail(w, r, err)
		return
	}
	teams, total, err := h.catalog.Teams(r.Context(), name, p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeList(w, r, teams, total, p)
}

// HandleGetTeam handles GET /v1/teams/{id}.
func (h *Handlers) HandleGetTeam(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	team, err := h.catalog.Team(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, team)
}

// HandleTeamAthletes handles GET /v1/teams/{id}/athletes.
func (h *Handlers) HandleTeamAthletes(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	athletes, err := h.catalog.TeamAthletes(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if athletes == nil {
		athletes = []model.User{}
	}
	writeJSON(w, r, http.StatusOK, athletes)
}

// HandleCreateTeam handles POST /v1/teams.
func (h *Handlers) HandleCreateTeam(w http.ResponseWriter, r *http.Request, actor authz.Actor) {
	var req model.TeamRequest
	if !h.decode(w, r, &req) {
		return
	}
	team, err := h.catalog.CreateTeam(r.Context(), actor, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, team)
}

// HandleUpdateTeam handles PUT /v1/teams/{id}.
func (h *Handlers) HandleUpdateTeam(w http.ResponseWriter, r *http.Request, actor authz.Actor) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req model.TeamRequest
	if !h.decode(w, r, &req) {
		return
	}
	team, err := h.catalog.UpdateTeam(r.Context(), actor, id, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, team)
}

// HandleDeleteTeam handles DELETE /v1/teams/{id}.
func (h *Handlers) HandleDeleteTeam(w http.ResponseWriter, r *http.Request, actor authz.Actor) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.catalog.DeleteTeam(r.Context(), actor, id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func eventFilter(q *queryParams) model.EventFilter {
	return model.EventFilter{
		Name:        q.str("name"),
		Type:        model.EventType(q.str("type")),
		HillIDs:     q.ids("hill_id"),
		TeamIDs:     q.ids("team_id"),
		AthleteIDs:  q.ids("athlete_id"),
		StartFrom:   q.time("start_from"),
		StartTo:     q.time("start_to"),
		EndFrom:     q.time("end_from"),
		EndTo:       q.time("end_to"),
		MinLevel:    q.int("min_level"),
		MaxLevel:    q.int("max_level"),
		Description: q.str("description"),
		Ascending:   q.str("order") == "asc",
	}
}

type eventLister func(ctx context.Context, f model.EventFilter, p model.Page) ([]model.Event, int, error)

func (h *Handlers) listEvents(w http.ResponseWriter, r *http.Request, list eventLister) {
	q := newQueryParams(r)
	f := eventFilter(q)
	p := q.page()
	if f.Type != "" && !f.Type.Valid() {
		q.fail("type", "COMPETITION, TRAINING or TRIAL")
	}
	if err := q.err(); err != nil {
		h.fail(w, r, err)
		return
	}
	events, total, err := list(r.Context(), f, p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeList(w, r, events, total, p)
}

// HandleListEvents handles GET /v1/events.
func (h *Handlers) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	h.listEvents(w, r, h.catalog.Events)
}

// HandleUpcomingEvents handles GET /v1/events/upcoming. The usual event
// filters narrow it to an athlete, hill or team.
func (h *Handlers) HandleUpcomingEvents(w http.ResponseWriter, r *http.Request) {
	h.listEvents(w, r, h.catalog.UpcomingEvents)
}

// HandlePastEvents handles GET /v1/events/past.
func (h *Handlers) HandlePastEvents(w http.ResponseWriter, r *http.Request) {
	h.listEvents(w, r, h.catalog.PastEvents)
}

// HandleGetEvent handles GET /v1/events/{id}.
func (h *Handlers) HandleGetEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ev, err := h.catalog.Event(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, ev)
}

// HandleCreateEvent handles POST /v1/events.
func (h *Handlers) HandleCreateEvent(w http.ResponseWriter, r *http.Request, actor authz.Actor) {
	var req model.EventRequest
	if !h.decode(w, r, &req) {
		return
	}
	ev, err := h.catalog.CreateEvent(r.Context(), actor, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, ev)
}

// HandleUpdateEvent handles PUT /v1/events/{id}.
func (h *Handlers) HandleUpdateEvent(w http.ResponseWriter, r *http.Request, actor authz.Actor) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req model.EventRequest
	if !h.decode(w, r, &req) {
		return
	}
	ev, err := h.catalog.UpdateEvent(r.Context(), actor, id, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, ev)
}

// HandleDeleteEvent handles DELETE /v1/events/{id}.
func (h *Handlers) HandleDeleteEvent(w http.ResponseWriter, r *http.Request, actor authz.Actor) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.catalog.DeleteEvent(r.Context(), actor, id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
