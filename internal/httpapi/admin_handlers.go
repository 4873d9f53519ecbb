package httpapi

import (
	"net/http"
	"strings"

	"voluntra.org/internal/audit"
	"voluntra.org/internal/auth"
	"voluntra.org/internal/permission"
)

type upsertOverrideRequest struct {
	Key     string    `json:"key"`
	MinRole auth.Role `json:"min_role"`
}

// Templates are platform-wide defaults and read-only over this API: a write
// here would let one organization's admin weaken every other tenant at once.
// Tenant admins adjust behavior through their own overrides; template edits
// stay an operator concern (migrations, seeds).
func (a *API) handleTemplates(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}
	if err := a.pipeline.GateSubscription(rc); err != nil {
		writeFailure(w, r, err)
		return
	}
	if err := a.pipeline.RequirePermission(r.Context(), rc, permission.KeyPermsManage); err != nil {
		writeFailure(w, r, err)
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	templates, err := a.perms.Templates(r.Context())
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeResult(w, r, http.StatusOK, map[string]any{"items": templates})
}

// Overrides are tenant-scoped: an organization admin manages the overrides of
// their own organization only.
func (a *API) handleOverridesCollection(w http.ResponseWriter, r *http.Request) {
	rc, ok := requestContext(w, r)
	if !ok {
		return
	}
	if err := a.pipeline.GateSubscription(rc); err != nil {
		writeFailure(w, r, err)
		return
	}
	if err := a.pipeline.RequirePermission(r.Context(), rc, permission.KeyPermsManage); err != nil {
		writeFailure(w, r, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		overrides, err := a.perms.Overrides(r.Context(), rc.OrgID())
		if err != nil {
			writeFailure(w, r, err)
			return
		}
		writeResult(w, r, http.StatusOK, map[string]any{"items": overrides})
	case http.MethodPut:
		var req upsertOverrideRequest
		if err := decodeJSON(w, r, &req); err != nil {
			badRequest(w, r, err.Error())
			return
		}
		o := permission.Override{
			OrganizationID: rc.OrgID(),
			Key:            req.Key,
			MinRole:        req.MinRole,
		}
		if err := a.perms.SetOverride(r.Context(), o); err != nil {
			writeFailure(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "permissions.override.update", map[string]any{
			"key":      o.Key,
			"min_role": o.MinRole.String(),
		})
		writeResult(w, r, http.StatusOK, o)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

func (a *API) handleOverrideResource(w http.ResponseWriter, r *http.Request) {
	key := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/permissions/overrides/"), "/")
	if key == "" || strings.Contains(key, "/") {
		writeFailure(w, r, auth.ErrNotFound)
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}

	rc, ok := requestContext(w, r)
	if !ok {
		return
	}
	if err := a.pipeline.GateSubscription(rc); err != nil {
		writeFailure(w, r, err)
		return
	}
	if err := a.pipeline.RequirePermission(r.Context(), rc, permission.KeyPermsManage); err != nil {
		writeFailure(w, r, err)
		return
	}
	if err := a.perms.RemoveOverride(r.Context(), rc.OrgID(), key); err != nil {
		writeFailure(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "permissions.override.delete", map[string]any{"key": key})
	writeResult(w, r, http.StatusOK, map[string]any{"deleted": key})
}
