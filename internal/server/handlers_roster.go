package server

import (
	"net/http"
	"time"

	"github.com/kubikal7/ski-jumping-management/internal/authz"
	"github.com/kubikal7/ski-jumping-management/internal/model"
	"github.com/kubikal7/ski-jumping-management/internal/season"
)

const sseKeepalive = 15 * time.Second

// HandleEventParticipants handles GET /v1/events/{id}/participants.
func (h *Handlers) HandleEventParticipants(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out, err := h.roster.EventParticipants(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if out == nil {
		out = []model.Participant{}
	}
	writeJSON(w, r, http.StatusOK, out)
}

// HandleAthleteParticipations handles GET /v1/athletes/{id}/participations.
func (h *Handlers) HandleAthleteParticipations(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out, err := h.roster.AthleteParticipations(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if out == nil {
		out = []model.Participant{}
	}
	writeJSON(w, r, http.StatusOK, out)
}

// HandleRegisterParticipant handles POST /v1/participants.
func (h *Handlers) HandleRegisterParticipant(w http.ResponseWriter, r *http.Request, actor authz.Actor) {
	var req model.ParticipantRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.roster.Register(r.Context(), actor, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, p)
}

// HandleWithdrawParticipant handles DELETE /v1/participants/{id}.
func (h *Handlers) HandleWithdrawParticipant(w http.ResponseWriter, r *http.Request, actor authz.Actor) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.roster.Withdraw(r.Context(), actor, id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func resultFilter(q *queryParams) model.ResultFilter {
	f := model.ResultFilter{
		EventID:         q.int64("event_id"),
		AthleteIDs:      q.ids("athlete_id"),
		Seasons:         q.strs("season"),
		AttemptNumber:   q.int("attempt_number"),
		MinJumpLength:   q.float("min_jump_length"),
		MaxJumpLength:   q.float("max_jump_length"),
		MinStylePoints:  q.float("min_style_points"),
		MaxStylePoints:  q.float("max_style_points"),
		MinWind:         q.float("min_wind"),
		MaxWind:         q.float("max_wind"),
		Gate:            q.int("gate"),
		MinTotalPoints:  q.float("min_total_points"),
		MaxTotalPoints:  q.float("max_total_points"),
		MinSpeedTakeoff: q.float("min_speed_takeoff"),
		MaxSpeedTakeoff: q.float("max_speed_takeoff"),
		MinFlightTime:   q.float("min_flight_time"),
		MaxFlightTime:   q.float("max_flight_time"),
		EventStartFrom:  q.time("start_from"),
		EventStartTo:    q.time("start_to"),
	}
	for _, s := range f.Seasons {
		if season.Validate(s) != nil {
			q.fail("season", "YYYY/YYYY+1")
			break
		}
	}
	return f
}

// HandleListResults handles GET /v1/results. Without event_id or athlete_id
// the list is empty.
func (h *Handlers) HandleListResults(w http.ResponseWriter, r *http.Request) {
	q := newQueryParams(r)
	f := resultFilter(q)
	p := q.page()
	if err := q.err(); err != nil {
		h.fail(w, r, err)
		return
	}
	results, total, err := h.roster.Results(r.Context(), f, p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeList(w, r, results, total, p)
}

// HandleGetResult handles GET /v1/results/{id}.
func (h *Handlers) HandleGetResult(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.roster.Result(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// HandleRecordResult handles POST /v1/results.
func (h *Handlers) HandleRecordResult(w http.ResponseWriter, r *http.Request, actor authz.Actor) {
	var req model.ResultRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.roster.RecordResult(r.Context(), actor, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, res)
}

// HandleCorrectResult handles PUT /v1/results/{id}.
func (h *Handlers) HandleCorrectResult(w http.ResponseWriter, r *http.Request, actor authz.Actor) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req model.ResultRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.roster.CorrectResult(r.Context(), actor, id, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// HandleDeleteResult handles DELETE /v1/results/{id}.
func (h *Handlers) HandleDeleteResult(w http.ResponseWriter, r *http.Request, actor authz.Actor) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.roster.DeleteResult(r.Context(), actor, id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleResultStream handles GET /v1/results/stream (SSE). Optional event_id
// and athlete_id parameters narrow the feed.
func (h *Handlers) HandleResultStream(w http.ResponseWriter, r *http.Request) {
	if h.broker == nil {
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeInternalError,
			"live results not available (LISTEN/NOTIFY not configured)")
		return
	}
	q := newQueryParams(r)
	eventID := q.int64("event_id")
	athleteID := q.int64("athlete_id")
	if err := q.err(); err != nil {
		h.fail(w, r, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "streaming not supported")
		return
	}

	// Subscribe before the headers go out so a client that sees the 200 is
	// guaranteed to receive every later change.
	ch := h.broker.Subscribe()
	defer h.broker.Unsubscribe(ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Idle streams would otherwise hit the server's WriteTimeout.
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	keepalive := time.NewTicker(sseKeepalive)
	defer keepalive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepalive.C:
			if _, err := w.Write([]byte(":keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if eventID != nil && msg.Event.EventID != *eventID {
				continue
			}
			if athleteID != nil && msg.Event.AthleteID != *athleteID {
				continue
			}
			if _, err := w.Write(msg.SSE); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// HandleListInjuries handles GET /v1/injuries.
func (h *Handlers) HandleListInjuries(w http.ResponseWriter, r *http.Request) {
	q := newQueryParams(r)
	f := model.InjuryFilter{
		AthleteIDs:   q.ids("athlete_id"),
		TeamIDs:      q.ids("team_id"),
		Severity:     model.Severity(q.str("severity")),
		InjuryFrom:   q.time("injury_from"),
		InjuryTo:     q.time("injury_to"),
		RecoveryFrom: q.time("recovery_from"),
		RecoveryTo:   q.time("recovery_to"),
		Description:  q.str("description"),
	}
	if f.Severity != "" && !f.Severity.Valid() {
		q.fail("severity", "LOW, MEDIUM, HIGH or CRITICAL")
	}
	p := q.page()
	if err := q.err(); err != nil {
		h.fail(w, r, err)
		return
	}
	injuries, total, err := h.roster.Injuries(r.Context(), f, p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeList(w, r, injuries, total, p)
}

// HandleGetInjury handles GET /v1/injuries/{id}.
func (h *Handlers) HandleGetInjury(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	in, err := h.roster.Injury(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, in)
}

// HandleRecordInjury handles POST /v1/injuries.
func (h *Handlers) HandleRecordInjury(w http.ResponseWriter, r *http.Request, actor authz.Actor) {
	var req model.InjuryRequest
	if !h.decode(w, r, &req) {
		return
	}
	in, err := h.roster.RecordInjury(r.Context(), actor, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, in)
}

// HandleEditInjury handles PUT /v1/injuries/{id}.
func (h *Handlers) HandleEditInjury(w http.ResponseWriter, r *http.Request, actor authz.Actor) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req model.InjuryRequest
	if !h.decode(w, r, &req) {
		return
	}
	in, err := h.roster.EditInjury(r.Context(), actor, id, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, in)
}

// HandleDeleteInjury handles DELETE /v1/injuries/{id}.
func (h *Handlers) HandleDeleteInjury(w http.ResponseWriter, r *http.Request, actor authz.Actor) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.roster.DeleteInjury(r.Context(), actor, id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
