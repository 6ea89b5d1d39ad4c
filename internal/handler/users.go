package handler

import (
	"net/http"

	"github.com/sakif/precinct/internal/model"
	"github.com/sakif/precinct/internal/service"
)

// UserHandler serves the signed-in officer's profile and the admin account
// screens.
type UserHandler struct {
	users *service.UserService
}

func NewUserHandler(users *service.UserService) *UserHandler {
	return &UserHandler{users: users}
}

// HandleMe returns the current user.
//
// HTTP: GET /api/me
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	id, err := currentUserID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	u, err := h.users.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u.View())
}

// HandleUpdateMe applies a profile update.
//
// HTTP: PATCH /api/me
// Body: any of {"rpName", "rank", "badgeNumber", "password"}; null clears
// rpName and rank.
func (h *UserHandler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	id, err := currentUserID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req service.ProfileUpdate
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	u, err := h.users.UpdateProfile(r.Context(), id, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u.View())
}

// =========================================================================
// ADMIN
// =========================================================================

// HandleList returns every account.
//
// HTTP: GET /api/admin/users
func (h *UserHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]model.UserView, 0, len(users))
	for _, u := range users {
		views = append(views, u.View())
	}
	writeJSON(w, http.StatusOK, views)
}

// HandleDelete removes an account.
//
// HTTP: DELETE /api/admin/users/{id}
func (h *UserHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	actor, target, err := actorAndTarget(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.users.Delete(r.Context(), actor, target); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setAdminRequest struct {
	IsAdmin bool `json:"isAdmin"`
}

// HandleSetAdmin promotes or demotes.
//
// HTTP: PUT /api/admin/users/{id}/admin
// Body: {"isAdmin": true}
func (h *UserHandler) HandleSetAdmin(w http.ResponseWriter, r *http.Request) {
	actor, target, err := actorAndTarget(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req setAdminRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	u, err := h.users.SetAdmin(r.Context(), actor, target, req.IsAdmin)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u.View())
}

type setRankRequest struct {
	Rank model.Nullable[string] `json:"rank"`
}

// HandleSetRank sets or clears a rank.
//
// HTTP: PUT /api/admin/users/{id}/rank
// Body: {"rank": "Sergeant"} or {"rank": null}
func (h *UserHandler) HandleSetRank(w http.ResponseWriter, r *http.Request) {
	actor, target, err := actorAndTarget(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req setRankRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	u, err := h.users.SetRank(r.Context(), actor, target, req.Rank)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u.View())
}

// HandleTerminate puts the user on the terminated list.
//
// HTTP: POST /api/admin/users/{id}/terminate
func (h *UserHandler) HandleTerminate(w http.ResponseWriter, r *http.Request) {
	actor, target, err := actorAndTarget(r)
	if err != nil {
		writeError(w, err)
		return
	}
	entry, err := h.users.Terminate(r.Context(), actor, target)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

type blockRequest struct {
	Username string `json:"username"`
}

// HandleListBlocked: GET /api/admin/blocked
func (h *UserHandler) HandleListBlocked(w http.ResponseWriter, r *http.Request) {
	entries, err := h.users.ListBlocked(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmptyList(entries))
}

// HandleBlock: POST /api/admin/blocked  {"username": "..."}
func (h *UserHandler) HandleBlock(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	entry, err := h.users.Block(r.Context(), req.Username)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// HandleUnblock: DELETE /api/admin/blocked/{username}
func (h *UserHandler) HandleUnblock(w http.ResponseWriter, r *http.Request) {
	if err := h.users.Unblock(r.Context(), r.PathValue("username")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleListTerminated: GET /api/admin/terminated
func (h *UserHandler) HandleListTerminated(w http.ResponseWriter, r *http.Request) {
	entries, err := h.users.ListTerminated(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmptyList(entries))
}

// HandleUnterminate: DELETE /api/admin/terminated/{username}
func (h *UserHandler) HandleUnterminate(w http.ResponseWriter, r *http.Request) {
	if err := h.users.Unterminate(r.Context(), r.PathValue("username")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func actorAndTarget(r *http.Request) (actor, target int64, err error) {
	if actor, err = currentUserID(r); err != nil {
		return 0, 0, err
	}
	if target, err = pathUserID(r); err != nil {
		return 0, 0, err
	}
	return actor, target, nil
}

// orEmptyList makes nil slices encode as [] instead of null.
func orEmptyList[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
