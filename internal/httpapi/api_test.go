package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"voluntra.org/internal/auth"
	"voluntra.org/internal/events"
	"voluntra.org/internal/permission"
)

const (
	testSecret        = "httpapi-test-secret-32-bytes-long!!!"
	testBillingSecret = "whsec_test"

	orgA      = "org-a"
	orgB      = "org-b"
	orgLapsed = "org-lapsed"
)

type fixture struct {
	handler http.Handler
	dir     *auth.MemoryDirectory
	events  *events.InMemory
	perms   *permission.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dir := auth.NewMemoryDirectory()
	now := time.Now().UTC()
	for _, org := range []auth.Organization{
		{ID: orgA, Name: "Alpha", SubscriptionStatus: auth.SubscriptionActive, CreatedAt: now, UpdatedAt: now},
		{ID: orgB, Name: "Beta", SubscriptionStatus: auth.SubscriptionTrial, CreatedAt: now, UpdatedAt: now},
		{ID: orgLapsed, Name: "Lapsed", SubscriptionStatus: auth.SubscriptionCancelled, CreatedAt: now, UpdatedAt: now},
	} {
		dir.AddOrganization(org)
	}
	profiles := []auth.Profile{
		{ID: "p-vol-a", SubjectID: "vol-a", OrganizationID: orgA, Role: auth.RoleVolunteer, IsActive: true},
		{ID: "p-lead-a", SubjectID: "lead-a", OrganizationID: orgA, Role: auth.RoleCommitteeLead, IsActive: true},
		{ID: "p-board-a", SubjectID: "board-a", OrganizationID: orgA, Role: auth.RoleBoardMember, IsActive: true},
		{ID: "p-admin-a", SubjectID: "admin-a", OrganizationID: orgA, Role: auth.RoleAdmin, IsActive: true},
		{ID: "p-inactive-a", SubjectID: "inactive-a", OrganizationID: orgA, Role: auth.RoleAdmin, IsActive: false},
		{ID: "p-admin-b", SubjectID: "admin-b", OrganizationID: orgB, Role: auth.RoleAdmin, IsActive: true},
		{ID: "p-vol-lapsed", SubjectID: "vol-lapsed", OrganizationID: orgLapsed, Role: auth.RoleVolunteer, IsActive: true},
	}
	for _, p := range profiles {
		dir.AddProfile(p)
	}

	eventSvc := events.NewInMemory()
	dir.RegisterResource("event", func(ctx context.Context, id string) (string, error) {
		orgID, err := eventSvc.OwnerOrg(ctx, id)
		if err != nil {
			return "", auth.ErrNotFound
		}
		return orgID, nil
	})

	store, err := permission.NewStore(permission.NewMemorySource(permission.Builtins...))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	cache, err := permission.NewCache(store)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}

	verifier, err := auth.NewVerifier(auth.WithHS256Secret(testSecret))
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	pipeline, err := auth.NewPipeline(verifier, dir, cache)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	api, err := New(Config{
		Pipeline:      pipeline,
		Events:        eventSvc,
		Permissions:   store,
		Billing:       dir,
		Version:       "test",
		BillingSecret: testBillingSecret,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	return &fixture{handler: api.Handler(), dir: dir, events: eventSvc, perms: store}
}

func token(t *testing.T, subject string) string {
	t.Helper()
	claims := jwt.MapClaims{"sub": subject, "exp": time.Now().Add(time.Hour).Unix()}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func expiredToken(t *testing.T, subject string) string {
	t.Helper()
	claims := jwt.MapClaims{"sub": subject, "exp": time.Now().Add(-time.Hour).Unix()}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func (f *fixture) do(t *testing.T, method, path, bearer string, body any) (*httptest.ResponseRecorder, Envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var env Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: decode envelope from %q: %v", method, path, rec.Body.String(), err)
	}
	return rec, env
}

func requireCode(t *testing.T, rec *httptest.ResponseRecorder, env Envelope, status int, code string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, status, rec.Body.String())
	}
	if env.Success {
		t.Fatal("failure envelope has success=true")
	}
	if env.Data != nil {
		t.Fatal("failure envelope carries data")
	}
	if len(env.Errors) == 0 {
		t.Fatal("failure envelope has no errors")
	}
	if env.Errors[0].Code != code {
		t.Fatalf("error code = %q, want %q", env.Errors[0].Code, code)
	}
}

func eventBody() map[string]any {
	return map[string]any{
		"title":     "Park Cleanup",
		"location":  "Main Park",
		"starts_at": time.Now().Add(72 * time.Hour).UTC().Format(time.RFC3339),
		"capacity":  25,
	}
}

func (f *fixture) createEvent(t *testing.T, bearer string) string {
	t.Helper()
	rec, env := f.do(t, http.MethodPost, "/v1/events", bearer, eventBody())
	if rec.Code != http.StatusCreated {
		t.Fatalf("create event: status = %d, body %s", rec.Code, rec.Body.String())
	}
	data, ok := env.Data.(map[string]any)
	if !ok {
		t.Fatalf("create event: data = %T", env.Data)
	}
	id, _ := data["id"].(string)
	if id == "" {
		t.Fatal("create event: no id in response")
	}
	return id
}

func TestCommitteeLeadCreatesEvent(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(t, http.MethodPost, "/v1/events", token(t, "lead-a"), eventBody())
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if !env.Success {
		t.Error("success envelope has success=false")
	}
	if env.Errors != nil {
		t.Error("success envelope carries errors")
	}
	if env.Meta.RequestID == "" {
		t.Error("meta.request_id is empty")
	}
	if env.Meta.Version != "v1" {
		t.Errorf("meta.version = %q", env.Meta.Version)
	}
	if rec.Header().Get("Location") == "" {
		t.Error("missing Location header")
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("missing X-Request-Id header")
	}

	data := env.Data.(map[string]any)
	if data["organization_id"] != orgA {
		t.Errorf("organization_id = %v, want %s", data["organization_id"], orgA)
	}
	if data["published"] != false {
		t.Error("new event must be unpublished")
	}
}

func TestVolunteerCannotDelete(t *testing.T) {
	f := newFixture(t)
	id := f.createEvent(t, token(t, "lead-a"))

	rec, env := f.do(t, http.MethodDelete, "/v1/events/"+id, token(t, "vol-a"), nil)
	requireCode(t, rec, env, http.StatusForbidden, CodeForbidden)

	// The event is untouched.
	if _, err := f.events.Get(context.Background(), id); err != nil {
		t.Errorf("event was deleted by a forbidden request: %v", err)
	}
}

func TestLapsedSubscriptionGatesBeforePermission(t *testing.T) {
	f := newFixture(t)

	// A volunteer in a cancelled org would also fail the permission check;
	// the subscription gate must answer first.
	rec, env := f.do(t, http.MethodPost, "/v1/events", token(t, "vol-lapsed"), eventBody())
	requireCode(t, rec, env, http.StatusPaymentRequired, CodeSubscriptionRequired)
}

func TestExpiredCredential(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(t, http.MethodGet, "/v1/events", expiredToken(t, "lead-a"), nil)
	requireCode(t, rec, env, http.StatusUnauthorized, CodeUnauthenticated)
}

func TestMissingCredential(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(t, http.MethodGet, "/v1/events", "", nil)
	requireCode(t, rec, env, http.StatusUnauthorized, CodeUnauthenticated)
}

func TestUnknownSubject(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(t, http.MethodGet, "/v1/events", token(t, "stranger"), nil)
	requireCode(t, rec, env, http.StatusForbidden, CodeProfileNotFound)
}

func TestInactiveProfileDenied(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(t, http.MethodPost, "/v1/events", token(t, "inactive-a"), eventBody())
	requireCode(t, rec, env, http.StatusForbidden, CodeForbidden)
}

func TestCrossTenantLooksLikeNotFound(t *testing.T) {
	f := newFixture(t)
	id := f.createEvent(t, token(t, "lead-a"))

	crossRec, crossEnv := f.do(t, http.MethodDelete, "/v1/events/"+id, token(t, "admin-b"), nil)
	missingRec, missingEnv := f.do(t, http.MethodDelete, "/v1/events/does-not-exist", token(t, "admin-b"), nil)

	requireCode(t, crossRec, crossEnv, http.StatusNotFound, CodeNotFound)
	requireCode(t, missingRec, missingEnv, http.StatusNotFound, CodeNotFound)

	// Identical surface: same status, code and message for both.
	if crossEnv.Errors[0].Message != missingEnv.Errors[0].Message {
		t.Errorf("cross-tenant message %q differs from not-found message %q",
			crossEnv.Errors[0].Message, missingEnv.Errors[0].Message)
	}

	// The event still exists for its owner.
	rec, _ := f.do(t, http.MethodGet, "/v1/events/"+id, token(t, "vol-a"), nil)
	if rec.Code != http.StatusOK {
		t.Errorf("owner read after foreign delete attempt: status = %d", rec.Code)
	}
}

func TestPublishRequiresBoardMember(t *testing.T) {
	f := newFixture(t)
	id := f.createEvent(t, token(t, "lead-a"))

	rec, env := f.do(t, http.MethodPost, "/v1/events/"+id+"/publish", token(t, "lead-a"), nil)
	requireCode(t, rec, env, http.StatusForbidden, CodeForbidden)

	rec, env = f.do(t, http.MethodPost, "/v1/events/"+id+"/publish", token(t, "board-a"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("board member publish: status = %d, body %s", rec.Code, rec.Body.String())
	}
	if env.Data.(map[string]any)["published"] != true {
		t.Error("event not published")
	}
}

func TestOverrideLoosensThenReverts(t *testing.T) {
	f := newFixture(t)
	volToken := token(t, "vol-a")
	adminToken := token(t, "admin-a")

	// Default: volunteers cannot create events.
	rec, env := f.do(t, http.MethodPost, "/v1/events", volToken, eventBody())
	requireCode(t, rec, env, http.StatusForbidden, CodeForbidden)

	// Admin loosens events.create for this organization.
	rec, _ = f.do(t, http.MethodPut, "/v1/permissions/overrides", adminToken, map[string]any{
		"key":      "events.create",
		"min_role": "volunteer",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("set override: status = %d, body %s", rec.Code, rec.Body.String())
	}

	// The cached decision is refreshed on the next check.
	rec, _ = f.do(t, http.MethodPost, "/v1/events", volToken, eventBody())
	if rec.Code != http.StatusCreated {
		t.Fatalf("volunteer create after override: status = %d, body %s", rec.Code, rec.Body.String())
	}

	// Other tenants are unaffected: org-b volunteers would still be denied,
	// and removing the override reverts this tenant to the template default.
	rec, _ = f.do(t, http.MethodDelete, "/v1/permissions/overrides/events.create", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete override: status = %d, body %s", rec.Code, rec.Body.String())
	}
	rec, env = f.do(t, http.MethodPost, "/v1/events", volToken, eventBody())
	requireCode(t, rec, env, http.StatusForbidden, CodeForbidden)
}

func TestTemplateDefaultsReadOnly(t *testing.T) {
	f := newFixture(t)

	// One tenant's admin must not be able to weaken the platform-wide
	// default that every other tenant inherits.
	rec, env := f.do(t, http.MethodPut, "/v1/permissions/templates", token(t, "admin-b"), map[string]any{
		"key":              "events.create",
		"module":           "events",
		"default_min_role": "volunteer",
	})
	requireCode(t, rec, env, http.StatusMethodNotAllowed, CodeMethodNotAllowed)
	if allow := rec.Header().Get("Allow"); allow != http.MethodGet {
		t.Errorf("Allow = %q, want GET", allow)
	}

	// org-a still holds the template default: its volunteers stay denied.
	rec, env = f.do(t, http.MethodPost, "/v1/events", token(t, "vol-a"), eventBody())
	requireCode(t, rec, env, http.StatusForbidden, CodeForbidden)

	// Reading the defaults remains available to admins.
	rec, env = f.do(t, http.MethodGet, "/v1/permissions/templates", token(t, "admin-a"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin template list: status = %d, body %s", rec.Code, rec.Body.String())
	}
	items, ok := env.Data.(map[string]any)["items"].([]any)
	if !ok || len(items) == 0 {
		t.Error("template list is empty")
	}
}

func TestTemplatesGatedOnSubscription(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(t, http.MethodGet, "/v1/permissions/templates", token(t, "vol-lapsed"), nil)
	requireCode(t, rec, env, http.StatusPaymentRequired, CodeSubscriptionRequired)
}

func TestPermissionAdminRequiresAdmin(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(t, http.MethodPut, "/v1/permissions/overrides", token(t, "board-a"), map[string]any{
		"key":      "events.create",
		"min_role": "volunteer",
	})
	requireCode(t, rec, env, http.StatusForbidden, CodeForbidden)

	rec, env = f.do(t, http.MethodPut, "/v1/permissions/templates", token(t, "board-a"), map[string]any{
		"key":              "events.create",
		"module":           "events",
		"default_min_role": "volunteer",
	})
	requireCode(t, rec, env, http.StatusForbidden, CodeForbidden)
}

func TestOverrideForUnknownKeyRejected(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(t, http.MethodPut, "/v1/permissions/overrides", token(t, "admin-a"), map[string]any{
		"key":      "no.such.key",
		"min_role": "volunteer",
	})
	requireCode(t, rec, env, http.StatusInternalServerError, CodeUnknownPermission)
}

func TestListScopedToTenant(t *testing.T) {
	f := newFixture(t)
	f.createEvent(t, token(t, "lead-a"))

	rec, env := f.do(t, http.MethodGet, "/v1/events", token(t, "admin-b"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status = %d", rec.Code)
	}
	items := env.Data.(map[string]any)["items"]
	if items != nil {
		if list, ok := items.([]any); ok && len(list) != 0 {
			t.Errorf("org-b sees %d foreign events", len(list))
		}
	}
}

func TestEventValidation(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(t, http.MethodPost, "/v1/events", token(t, "lead-a"), map[string]any{
		"title": "",
	})
	requireCode(t, rec, env, http.StatusBadRequest, CodeValidation)
}

func TestHealthzIsPublic(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: status = %d", rec.Code)
	}
	if !env.Success {
		t.Error("healthz envelope has success=false")
	}
}

func TestUnknownPathIs404(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(t, http.MethodGet, "/v1/unknown", token(t, "admin-a"), nil)
	requireCode(t, rec, env, http.StatusNotFound, CodeNotFound)
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t)

	rec, env := f.do(t, http.MethodPatch, "/v1/events", token(t, "lead-a"), nil)
	requireCode(t, rec, env, http.StatusMethodNotAllowed, CodeMethodNotAllowed)
	if allow := rec.Header().Get("Allow"); allow == "" {
		t.Error("missing Allow header")
	}
}
