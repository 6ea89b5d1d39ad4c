package handler

import (
	"net/http"
	"strconv"

	"github.com/sakif/precinct/internal/apperror"
	"github.com/sakif/precinct/internal/model"
	"github.com/sakif/precinct/internal/service"
)

// viewer resolves the signed-in user into the service.Viewer the record
// services filter on.
func viewer(r *http.Request, users *service.UserService) (service.Viewer, error) {
	id, err := currentUserID(r)
	if err != nil {
		return service.Viewer{}, err
	}
	return users.Viewer(r.Context(), id)
}

// wantAll reads the ?all= query flag. Anything but a valid boolean is a 400.
func wantAll(r *http.Request) (bool, error) {
	raw := r.URL.Query().Get("all")
	if raw == "" {
		return false, nil
	}
	all, err := strconv.ParseBool(raw)
	if err != nil {
		return false, apperror.ValidationFailed("all", "all must be true or false")
	}
	return all, nil
}

// =========================================================================
// CITATIONS
// =========================================================================

// CitationHandler serves /api/citations and its admin routes.
type CitationHandler struct {
	citations *service.CitationService
	users     *service.UserService
}

func NewCitationHandler(citations *service.CitationService, users *service.UserService) *CitationHandler {
	return &CitationHandler{citations: citations, users: users}
}

// HandleCreate files a citation and posts it to Discord.
//
// HTTP: POST /api/citations
// The response is 201 even when the Discord post failed; discordMessageId is
// null in that case.
func (h *CitationHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	v, err := viewer(r, h.users)
	if err != nil {
		writeError(w, err)
		return
	}
	var draft model.Citation
	if err := decodeJSON(w, r, &draft); err != nil {
		writeError(w, err)
		return
	}
	c, err := h.citations.Create(r.Context(), v, draft)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// HandleList: GET /api/citations[?all=true]
func (h *CitationHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	v, err := viewer(r, h.users)
	if err != nil {
		writeError(w, err)
		return
	}
	all, err := wantAll(r)
	if err != nil {
		writeError(w, err)
		return
	}
	list, err := h.citations.List(r.Context(), v, all)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmptyList(list))
}

// HandleGet: GET /api/citations/{id}
func (h *CitationHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	v, err := viewer(r, h.users)
	if err != nil {
		writeError(w, err)
		return
	}
	c, err := h.citations.Get(r.Context(), v, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// HandleDelete removes a citation and retracts its Discord message.
//
// HTTP: DELETE /api/admin/citations/{id}
func (h *CitationHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.citations.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDeleteAll: DELETE /api/admin/citations
func (h *CitationHandler) HandleDeleteAll(w http.ResponseWriter, r *http.Request) {
	res, err := h.citations.DeleteAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleRepost posts a citation whose original post failed.
//
// HTTP: POST /api/admin/citations/{id}/repost
func (h *CitationHandler) HandleRepost(w http.ResponseWriter, r *http.Request) {
	c, err := h.citations.Repost(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// =========================================================================
// ARRESTS
// =========================================================================

// ArrestHandler serves /api/arrests and its admin routes. Arrests are
// always returned as model.ArrestView so the derived warrantRequired flag
// is included.
type ArrestHandler struct {
	arrests *service.ArrestService
	users   *service.UserService
}

func NewArrestHandler(arrests *service.ArrestService, users *service.UserService) *ArrestHandler {
	return &ArrestHandler{arrests: arrests, users: users}
}

// HandleCreate: POST /api/arrests
func (h *ArrestHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	v, err := viewer(r, h.users)
	if err != nil {
		writeError(w, err)
		return
	}
	var draft model.Arrest
	if err := decodeJSON(w, r, &draft); err != nil {
		writeError(w, err)
		return
	}
	a, err := h.arrests.Create(r.Context(), v, draft)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a.View())
}

// HandleList: GET /api/arrests[?all=true]
func (h *ArrestHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	v, err := viewer(r, h.users)
	if err != nil {
		writeError(w, err)
		return
	}
	all, err := wantAll(r)
	if err != nil {
		writeError(w, err)
		return
	}
	list, err := h.arrests.List(r.Context(), v, all)
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]model.ArrestView, 0, len(list))
	for _, a := range list {
		views = append(views, a.View())
	}
	writeJSON(w, http.StatusOK, views)
}

// HandleGet: GET /api/arrests/{id}
func (h *ArrestHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	v, err := viewer(r, h.users)
	if err != nil {
		writeError(w, err)
		return
	}
	a, err := h.arrests.Get(r.Context(), v, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.View())
}

// HandleAdjust corrects jail time, time served, court details or notes.
//
// HTTP: PATCH /api/admin/arrests/{id}
func (h *ArrestHandler) HandleAdjust(w http.ResponseWriter, r *http.Request) {
	var patch model.ArrestPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, err)
		return
	}
	a, err := h.arrests.Adjust(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.View())
}

// HandleDelete: DELETE /api/admin/arrests/{id}
func (h *ArrestHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.arrests.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDeleteAll: DELETE /api/admin/arrests
func (h *ArrestHandler) HandleDeleteAll(w http.ResponseWriter, r *http.Request) {
	res, err := h.arrests.DeleteAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleRepost: POST /api/admin/arrests/{id}/repost
func (h *ArrestHandler) HandleRepost(w http.ResponseWriter, r *http.Request) {
	a, err := h.arrests.Repost(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.View())
}
