package httpapi

import (
	"net/http"
	"strings"

	"voluntra.org/internal/audit"
	"voluntra.org/internal/auth"
	"voluntra.org/internal/events"
	"voluntra.org/internal/permission"
)

const resourceTypeEvent = "event"

func (a *API) handleEventsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listEvents(w, r)
	case http.MethodPost:
		a.createEvent(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleEventResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/events/"), "/")
	if path == "" {
		writeFailure(w, r, auth.ErrNotFound)
		return
	}

	if id, ok := strings.CutSuffix(path, "/publish"); ok {
		id = strings.Trim(id, "/")
		if id == "" {
			writeFailure(w, r, auth.ErrNotFound)
			return
		}
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.publishEvent(w, r, id)
		return
	}

	if strings.Contains(path, "/") {
		writeFailure(w, r, auth.ErrNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		a.getEvent(w, r, path)
	case http.MethodPut:
		a.updateEvent(w, r, path)
	case http.MethodDelete:
		a.deleteEvent(w, r, path)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) listEvents(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}
	if err := a.pipeline.GateSubscription(rc); err != nil {
		writeFailure(w, r, err)
		return
	}
	if err := a.pipeline.RequireRole(rc, auth.RoleVolunteer); err != nil {
		writeFailure(w, r, err)
		return
	}
	list, err := a.events.List(r.Context(), rc.OrgID())
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeResult(w, r, http.StatusOK, map[string]any{"items": list})
}

func (a *API) createEvent(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}
	// Subscription gating runs before permission evaluation so a lapsed
	// tenant is never reported as a permission problem.
	if err := a.pipeline.GateSubscription(rc); err != nil {
		writeFailure(w, r, err)
		return
	}
	if err := a.pipeline.RequirePermission(r.Context(), rc, permission.KeyEventsCreate); err != nil {
		writeFailure(w, r, err)
		return
	}

	var in events.Input
	if err := decodeJSON(w, r, &in); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	ev, err := a.events.Create(r.Context(), rc.OrgID(), rc.Profile.ID, in)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "events.create", map[string]any{"event_id": ev.ID})
	w.Header().Set("Location", "/v1/events/"+ev.ID)
	writeResult(w, r, http.StatusCreated, ev)
}

func (a *API) getEvent(w http.ResponseWriter, r *http.Request, id string) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}
	if err := a.pipeline.GateSubscription(rc); err != nil {
		writeFailure(w, r, err)
		return
	}
	if err := a.pipeline.RequireRole(rc, auth.RoleVolunteer); err != nil {
		writeFailure(w, r, err)
		return
	}
	if err := a.pipeline.AssertResourceOwnership(r.Context(), rc, resourceTypeEvent, id); err != nil {
		writeFailure(w, r, err)
		return
	}
	ev, err := a.events.Get(r.Context(), id)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeResult(w, r, http.StatusOK, ev)
}

func (a *API) updateEvent(w http.ResponseWriter, r *http.Request, id string) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}
	if err := a.pipeline.GateSubscription(rc); err != nil {
		writeFailure(w, r, err)
		return
	}
	if err := a.pipeline.RequirePermission(r.Context(), rc, permission.KeyEventsUpdate); err != nil {
		writeFailure(w, r, err)
		return
	}
	if err := a.pipeline.AssertResourceOwnership(r.Context(), rc, resourceTypeEvent, id); err != nil {
		writeFailure(w, r, err)
		return
	}

	var in events.Input
	if err := decodeJSON(w, r, &in); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	ev, err := a.events.Update(r.Context(), id, in)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "events.update", map[string]any{"event_id": ev.ID})
	writeResult(w, r, http.StatusOK, ev)
}

func (a *API) publishEvent(w http.ResponseWriter, r *http.Request, id string) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}
	if err := a.pipeline.GateSubscription(rc); err != nil {
		writeFailure(w, r, err)
		return
	}
	if err := a.pipeline.RequirePermission(r.Context(), rc, permission.KeyEventsPublish); err != nil {
		writeFailure(w, r, err)
		return
	}
	if err := a.pipeline.AssertResourceOwnership(r.Context(), rc, resourceTypeEvent, id); err != nil {
		writeFailure(w, r, err)
		return
	}
	ev, err := a.events.SetPublished(r.Context(), id, true)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "events.publish", map[string]any{"event_id": ev.ID})
	writeResult(w, r, http.StatusOK, ev)
}

func (a *API) deleteEvent(w http.ResponseWriter, r *http.Request, id string) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}
	if err := a.pipeline.GateSubscription(rc); err != nil {
		writeFailure(w, r, err)
		return
	}
	if err := a.pipeline.RequirePermission(r.Context(), rc, permission.KeyEventsDelete); err != nil {
		writeFailure(w, r, err)
		return
	}
	if err := a.pipeline.AssertResourceOwnership(r.Context(), rc, resourceTypeEvent, id); err != nil {
		writeFailure(w, r, err)
		return
	}
	if err := a.events.Delete(r.Context(), id); err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "events.delete", map[string]any{"event_id": id})
	writeResult(w, r, http.StatusOK, map[string]any{"deleted": id})
}
