package server

import (
	"net/http"

	"github.com/kubikal7/ski-jumping-management/internal/authz"
	"github.com/kubikal7/ski-jumping-management/internal/ctxutil"
	"github.com/kubikal7/ski-jumping-management/internal/model"
)

// HandleListUsers handles GET /v1/users.
func (h *Handlers) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	q := newQueryParams(r)
	f := model.UserFilter{
		Search:       q.str("search"),
		Capabilities: q.capabilities("capability"),
		TeamIDs:      q.ids("team_id"),
		Nationality:  q.str("nationality"),
		ActiveOnly:   q.boolean("active"),
	}
	p := q.page()
	if err := q.err(); err != nil {
		h.fail(w, r, err)
		return
	}
	users, total, err := h.accounts.Users(r.Context(), f, p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeList(w, r, users, total, p)
}

// HandleMe handles GET /v1/users/me.
func (h *Handlers) HandleMe(w http.ResponseWriter, r *http.Request) {
	claims := ctxutil.ClaimsFromContext(r.Context())
	u, err := h.accounts.User(r.Context(), claims.UserID())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, u)
}

// HandleGetUser handles GET /v1/users/{id}.
func (h *Handlers) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	u, err := h.accounts.User(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, u)
}

// HandleCreateUser handles POST /v1/users.
func (h *Handlers) HandleCreateUser(w http.ResponseWriter, r *http.Request, actor authz.Actor) {
	var req model.CreateUserRequest
	if !h.decode(w, r, &req) {
		return
	}
	u, err := h.accounts.CreateUser(r.Context(), actor, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, u)
}

// HandleUpdateUser handles PUT /v1/users/{id}.
func (h *Handlers) HandleUpdateUser(w http.ResponseWriter, r *http.Request, actor authz.Actor) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req model.UpdateUserRequest
	if !h.decode(w, r, &req) {
		return
	}
	u, err := h.accounts.UpdateUser(r.Context(), actor, id, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, u)
}

// HandleDeleteUser handles DELETE /v1/users/{id}.
func (h *Handlers) HandleDeleteUser(w http.ResponseWriter, r *http.Request, actor authz.Actor) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.accounts.DeleteUser(r.Context(), actor, id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleResetPassword handles PUT /v1/users/{id}/password.
func (h *Handlers) HandleResetPassword(w http.ResponseWriter, r *http.Request, actor authz.Actor) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req model.ResetPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.accounts.ResetPassword(r.Context(), actor, id, req.NewPassword); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleChangeOwnPassword handles PUT /v1/users/me/password.
func (h *Handlers) HandleChangeOwnPassword(w http.ResponseWriter, r *http.Request) {
	var req model.ChangePasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	claims := ctxutil.ClaimsFromContext(r.Context())
	if err := h.accounts.ChangeOwnPassword(r.Context(), claims.UserID(), req.OldPassword, req.NewPassword); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func membershipIDs(r *http.Request) (userID, teamID int64, err error) {
	if userID, err = pathID(r, "user_id"); err != nil {
		return 0, 0, err
	}
	if teamID, err = pathID(r, "team_id"); err != nil {
		return 0, 0, err
	}
	return userID, teamID, nil
}

// HandleAddMember handles POST /v1/users/{user_id}/teams/{team_id}.
func (h *Handlers) HandleAddMember(w http.ResponseWriter, r *http.Request, actor authz.Actor) {
	userID, teamID, err := membershipIDs(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.roster.AddMember(r.Context(), actor, userID, teamID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRemoveMember handles DELETE /v1/users/{user_id}/teams/{team_id}.
func (h *Handlers) HandleRemoveMember(w http.ResponseWriter, r *http.Request, actor authz.Actor) {
	userID, teamID, err := membershipIDs(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.roster.RemoveMember(r.Context(), actor, userID, teamID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
