package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"leadgrid.io/internal/auth"
)

type apiClient struct {
	t    *testing.T
	base string
	http *http.Client
}

func newTestAPI(t *testing.T) (*httptest.Server, *apiClient) {
	t.Helper()
	svc, err := auth.NewService(auth.NewMemoryStore(),
		auth.WithTokenSecret("test-secret"),
		auth.WithIssuer("test-issuer"),
		auth.WithBcryptCost(bcrypt.MinCost),
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	api := New(ReadyProbe{}, "test", svc)
	api.rateBurst = 1000
	api.ratePerSec = 1000
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	return srv, &apiClient{t: t, base: srv.URL, http: srv.Client()}
}

func (c *apiClient) post(path string, body any, token string) *http.Response {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			c.t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(http.MethodPost, c.base+path, &buf)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func (c *apiClient) get(path, token string) *http.Response {
	c.t.Helper()
	req, err := http.NewRequest(http.MethodGet, c.base+path, nil)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

type principalBody struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	AccountType string `json:"account_type"`
	TenantID    string `json:"tenant_id"`
	IsActive    bool   `json:"is_active"`
}

type tokenBody struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	Principal    principalBody `json:"principal"`
}

type principalEnvelope struct {
	Principal principalBody `json:"principal"`
}

type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id"`
}

func registerUser(t *testing.T, c *apiClient, email, password string) principalBody {
	t.Helper()
	resp := c.post("/v1/auth/register", map[string]any{
		"email":        email,
		"password":     password,
		"account_type": "user",
		"tenant_id":    "tenant-1",
	}, "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d", resp.StatusCode)
	}
	return decode[principalEnvelope](t, resp).Principal
}

func login(t *testing.T, c *apiClient, email, password, accountType string) tokenBody {
	t.Helper()
	resp := c.post("/v1/auth/login", map[string]any{
		"email":        email,
		"password":     password,
		"account_type": accountType,
	}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	return decode[tokenBody](t, resp)
}

func TestAuthLifecycle(t *testing.T) {
	_, c := newTestAPI(t)

	registered := registerUser(t, c, "flow@example.com", "hunter2secure")
	if registered.Email != "flow@example.com" || registered.AccountType != "user" {
		t.Fatalf("unexpected registered principal: %+v", registered)
	}

	first := login(t, c, "flow@example.com", "hunter2secure", "user")
	if first.AccessToken == "" || first.RefreshToken == "" {
		t.Fatal("login returned empty tokens")
	}
	if first.Principal.TenantID != "tenant-1" {
		t.Fatalf("tenant not echoed: %+v", first.Principal)
	}

	profile := c.get("/v1/auth/profile", first.AccessToken)
	if profile.StatusCode != http.StatusOK {
		t.Fatalf("profile status = %d", profile.StatusCode)
	}
	got := decode[principalEnvelope](t, profile).Principal
	if got.ID != registered.ID {
		t.Fatalf("profile principal mismatch: %s vs %s", got.ID, registered.ID)
	}

	// Rotate the refresh token; the presented token must stop working.
	rotated := decode[tokenBody](t, mustStatus(t, c.post("/v1/auth/refresh", map[string]any{
		"refresh_token": first.RefreshToken,
	}, ""), http.StatusOK))
	if rotated.RefreshToken == first.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}

	replay := c.post("/v1/auth/refresh", map[string]any{
		"refresh_token": first.RefreshToken,
	}, "")
	if replay.StatusCode != http.StatusUnauthorized {
		t.Fatalf("replayed refresh status = %d, want 401", replay.StatusCode)
	}
	replay.Body.Close()

	// Logout revokes every session, including the rotated one.
	mustStatus(t, c.post("/v1/auth/logout", nil, rotated.AccessToken), http.StatusOK).Body.Close()
	afterLogout := c.post("/v1/auth/refresh", map[string]any{
		"refresh_token": rotated.RefreshToken,
	}, "")
	if afterLogout.StatusCode != http.StatusUnauthorized {
		t.Fatalf("refresh after logout status = %d, want 401", afterLogout.StatusCode)
	}
	afterLogout.Body.Close()
}

func mustStatus(t *testing.T, resp *http.Response, want int) *http.Response {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("status = %d, want %d", resp.StatusCode, want)
	}
	return resp
}

func TestChangePasswordEndpoint(t *testing.T) {
	_, c := newTestAPI(t)

	registerUser(t, c, "pw@example.com", "originalpass")
	session := login(t, c, "pw@example.com", "originalpass", "user")

	wrong := c.post("/v1/auth/change-password", map[string]any{
		"old_password": "not-the-password",
		"new_password": "replacementpass",
	}, session.AccessToken)
	if wrong.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong old password status = %d, want 401", wrong.StatusCode)
	}
	wrong.Body.Close()

	// The failed attempt must leave existing sessions alive.
	stillValid := decode[tokenBody](t, mustStatus(t, c.post("/v1/auth/refresh", map[string]any{
		"refresh_token": session.RefreshToken,
	}, ""), http.StatusOK))

	mustStatus(t, c.post("/v1/auth/change-password", map[string]any{
		"old_password": "originalpass",
		"new_password": "replacementpass",
	}, stillValid.AccessToken), http.StatusOK).Body.Close()

	// Every session is revoked after a successful change.
	revoked := c.post("/v1/auth/refresh", map[string]any{
		"refresh_token": stillValid.RefreshToken,
	}, "")
	if revoked.StatusCode != http.StatusUnauthorized {
		t.Fatalf("refresh after password change status = %d, want 401", revoked.StatusCode)
	}
	revoked.Body.Close()

	oldLogin := c.post("/v1/auth/login", map[string]any{
		"email":        "pw@example.com",
		"password":     "originalpass",
		"account_type": "user",
	}, "")
	if oldLogin.StatusCode != http.StatusUnauthorized {
		t.Fatalf("old password login status = %d, want 401", oldLogin.StatusCode)
	}
	oldLogin.Body.Close()

	login(t, c, "pw@example.com", "replacementpass", "user")
}

func TestLoginFailuresShareOneBody(t *testing.T) {
	_, c := newTestAPI(t)
	registerUser(t, c, "known@example.com", "correcthorse")

	wrongPassword := c.post("/v1/auth/login", map[string]any{
		"email":        "known@example.com",
		"password":     "battery-staple",
		"account_type": "user",
	}, "")
	unknownEmail := c.post("/v1/auth/login", map[string]any{
		"email":        "ghost@example.com",
		"password":     "battery-staple",
		"account_type": "user",
	}, "")

	if wrongPassword.StatusCode != http.StatusUnauthorized || unknownEmail.StatusCode != http.StatusUnauthorized {
		t.Fatalf("statuses = %d / %d, want 401 / 401", wrongPassword.StatusCode, unknownEmail.StatusCode)
	}
	a := decode[errorBody](t, wrongPassword)
	b := decode[errorBody](t, unknownEmail)
	if a.Error != b.Error {
		t.Fatalf("failure messages differ: %q vs %q", a.Error, b.Error)
	}
}

func TestSameEmailBothKinds(t *testing.T) {
	_, c := newTestAPI(t)

	registerUser(t, c, "shared@example.com", "userpassword")
	mustStatus(t, c.post("/v1/auth/register", map[string]any{
		"email":        "shared@example.com",
		"password":     "adminpassword",
		"account_type": "admin",
	}, ""), http.StatusCreated).Body.Close()

	userSession := login(t, c, "shared@example.com", "userpassword", "user")
	adminSession := login(t, c, "shared@example.com", "adminpassword", "admin")

	if userSession.Principal.AccountType != "user" || adminSession.Principal.AccountType != "admin" {
		t.Fatalf("kind mixup: %q / %q", userSession.Principal.AccountType, adminSession.Principal.AccountType)
	}
	if userSession.Principal.ID == adminSession.Principal.ID {
		t.Fatal("distinct kinds must be distinct principals")
	}

	// Admin credentials never unlock the user namespace.
	crossed := c.post("/v1/auth/login", map[string]any{
		"email":        "shared@example.com",
		"password":     "adminpassword",
		"account_type": "user",
	}, "")
	if crossed.StatusCode != http.StatusUnauthorized {
		t.Fatalf("cross-kind login status = %d, want 401", crossed.StatusCode)
	}
	crossed.Body.Close()
}

func TestRegisterValidationResponses(t *testing.T) {
	_, c := newTestAPI(t)

	missingTenant := c.post("/v1/auth/register", map[string]any{
		"email":        "u@example.com",
		"password":     "longenough",
		"account_type": "user",
	}, "")
	if missingTenant.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing tenant status = %d, want 400", missingTenant.StatusCode)
	}
	missingTenant.Body.Close()

	registerUser(t, c, "dup@example.com", "longenough")
	dup := c.post("/v1/auth/register", map[string]any{
		"email":        "dup@example.com",
		"password":     "longenough",
		"account_type": "user",
		"tenant_id":    "tenant-2",
	}, "")
	if dup.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate status = %d, want 409", dup.StatusCode)
	}
	body := decode[errorBody](t, dup)
	if body.Error != "email already exists" {
		t.Fatalf("unexpected conflict body: %+v", body)
	}
}

func TestProtectedRoutesRejectMissingToken(t *testing.T) {
	_, c := newTestAPI(t)

	resp := c.get("/v1/auth/profile", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	if resp.Header.Get("WWW-Authenticate") == "" {
		t.Fatal("expected WWW-Authenticate challenge")
	}
	resp.Body.Close()

	garbled := c.get("/v1/auth/profile", "not-a-jwt")
	if garbled.StatusCode != http.StatusUnauthorized {
		t.Fatalf("garbled token status = %d, want 401", garbled.StatusCode)
	}
	garbled.Body.Close()
}

func TestMethodNotAllowed(t *testing.T) {
	_, c := newTestAPI(t)

	resp := c.get("/v1/auth/login", "")
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.StatusCode)
	}
	if allow := resp.Header.Get("Allow"); allow != http.MethodPost {
		t.Fatalf("Allow = %q, want POST", allow)
	}
	resp.Body.Close()
}

func TestHealthEndpoints(t *testing.T) {
	_, c := newTestAPI(t)

	for _, path := range []string{"/healthz", "/readyz", "/v1/info"} {
		resp := c.get(path, "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s status = %d, want 200", path, resp.StatusCode)
		}
		resp.Body.Close()
	}
}
