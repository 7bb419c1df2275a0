package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"marketplace/internal/auth"
	"marketplace/internal/store/memory"
)

const testPassword = "correct horse battery staple"

type apiClient struct {
	baseURL string
	client  *http.Client
	store   *memory.Store
	api     *API
	t       *testing.T
}

func newServices(t *testing.T, revocations auth.RevocationRegistry, store *memory.Store) Services {
	t.Helper()
	codec, err := auth.NewTokenCodec([]byte("test-secret"))
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	sessions, err := auth.NewSessionManager(store, store, revocations, codec)
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	authn, err := auth.NewAuthenticator(codec, revocations, store)
	if err != nil {
		t.Fatalf("authenticator: %v", err)
	}
	evaluator, err := auth.NewEvaluator(store)
	if err != nil {
		t.Fatalf("evaluator: %v", err)
	}
	registrar, err := auth.NewRegistrar(store)
	if err != nil {
		t.Fatalf("registrar: %v", err)
	}
	return Services{Sessions: sessions, Authenticator: authn, Evaluator: evaluator, Registrar: registrar}
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	store := memory.New()
	if err := auth.EnsureBuiltins(context.Background(), store); err != nil {
		t.Fatalf("seed rbac: %v", err)
	}
	revocations := memory.NewRevocations(nil)
	t.Cleanup(revocations.Close)

	api := New(ReadyProbe{}, "test", newServices(t, revocations, store))
	return serve(t, api, store)
}

func serve(t *testing.T, api *API, store *memory.Store) *apiClient {
	t.Helper()
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		store:   store,
		api:     api,
		t:       t,
	}
}

func (c *apiClient) post(path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) get(path string, params url.Values, headers map[string]string) *http.Response {
	c.t.Helper()
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		c.t.Fatalf("parse url: %v", err)
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) register(email string) string {
	c.t.Helper()
	resp := c.post("/v1/auth/register", map[string]string{
		"email":            email,
		"username":         email,
		"password":         testPassword,
		"password_confirm": testPassword,
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		c.t.Fatalf("register: expected 201, got %d", resp.StatusCode)
	}
	var out map[string]any
	decodeBody(c.t, resp, &out)
	id, _ := out["id"].(string)
	if id == "" {
		c.t.Fatalf("register: missing id in %v", out)
	}
	return id
}

func (c *apiClient) login(email string) auth.TokenPair {
	c.t.Helper()
	resp := c.post("/v1/auth/login", map[string]string{"email": email, "password": testPassword}, nil)
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("login: expected 200, got %d", resp.StatusCode)
	}
	var pair auth.TokenPair
	decodeBody(c.t, resp, &pair)
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		c.t.Fatalf("login: incomplete pair %+v", pair)
	}
	return pair
}

func bearerHeader(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	defer resp.Body.Close()
	if resp.StatusCode != want {
		t.Fatalf("expected %d, got %d", want, resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	c := newTestAPI(t)
	resp := c.get("/healthz", nil, nil)
	var out map[string]any
	decodeBody(t, resp, &out)
	if resp.StatusCode != http.StatusOK || out["status"] != "ok" {
		t.Fatalf("unexpected healthz: %d %v", resp.StatusCode, out)
	}
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestReadyzReportsStoreFailure(t *testing.T) {
	store := memory.New()
	revocations := memory.NewRevocations(nil)
	t.Cleanup(revocations.Close)
	probe := ReadyProbe{Store: pingFunc(func(context.Context) error { return context.DeadlineExceeded })}
	c := serve(t, New(probe, "test", newServices(t, revocations, store)), store)

	expectStatus(t, c.get("/readyz", nil, nil), http.StatusServiceUnavailable)
}

func TestRegisterLoginMe(t *testing.T) {
	c := newTestAPI(t)
	c.register("Buyer@Example.com")
	pair := c.login("buyer@example.com")

	resp := c.get("/v1/auth/me", nil, bearerHeader(pair.AccessToken))
	var me auth.Principal
	decodeBody(t, resp, &me)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me: expected 200, got %d", resp.StatusCode)
	}
	if me.Email != "buyer@example.com" || !me.Active {
		t.Fatalf("unexpected principal: %+v", me)
	}
}

func TestRegisterStoresNames(t *testing.T) {
	c := newTestAPI(t)
	resp := c.post("/v1/auth/register", map[string]string{
		"email":            "named@example.com",
		"username":         "named",
		"first_name":       "Grace",
		"last_name":        "Hopper",
		"password":         testPassword,
		"password_confirm": testPassword,
	}, nil)
	var out map[string]any
	decodeBody(t, resp, &out)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d", resp.StatusCode)
	}
	if out["first_name"] != "Grace" || out["last_name"] != "Hopper" {
		t.Fatalf("names missing from response: %v", out)
	}
	id, _ := out["id"].(string)
	u, err := c.store.FindUserByID(context.Background(), id)
	if err != nil {
		t.Fatalf("FindUserByID: %v", err)
	}
	if u.FirstName != "Grace" || u.LastName != "Hopper" {
		t.Fatalf("names not stored: %+v", u)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	c := newTestAPI(t)
	c.register("dup@example.com")
	resp := c.post("/v1/auth/register", map[string]string{
		"email":            "dup@example.com",
		"username":         "other",
		"password":         testPassword,
		"password_confirm": testPassword,
	}, nil)
	expectStatus(t, resp, http.StatusConflict)
}

func TestRegisterRejectsMismatchedPasswords(t *testing.T) {
	c := newTestAPI(t)
	resp := c.post("/v1/auth/register", map[string]string{
		"email":            "x@example.com",
		"username":         "x",
		"password":         testPassword,
		"password_confirm": "something else",
	}, nil)
	expectStatus(t, resp, http.StatusBadRequest)
}

func TestLoginDenialIsGeneric(t *testing.T) {
	c := newTestAPI(t)
	c.register("seller@example.com")

	for name, body := range map[string]map[string]string{
		"wrong password": {"email": "seller@example.com", "password": "nope"},
		"unknown email":  {"email": "ghost@example.com", "password": testPassword},
	} {
		t.Run(name, func(t *testing.T) {
			resp := c.post("/v1/auth/login", body, nil)
			var out map[string]any
			decodeBody(t, resp, &out)
			if resp.StatusCode != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", resp.StatusCode)
			}
			if out["error"] != "unauthorized" {
				t.Fatalf("expected generic error, got %v", out["error"])
			}
			if resp.Header.Get("WWW-Authenticate") == "" {
				t.Fatalf("expected WWW-Authenticate header set")
			}
		})
	}
}

func TestLoginRejectsUnknownFields(t *testing.T) {
	c := newTestAPI(t)
	resp := c.post("/v1/auth/login", map[string]string{"email": "a@example.com", "password": "x", "otp": "1"}, nil)
	expectStatus(t, resp, http.StatusBadRequest)
}

func TestRefreshIsSingleUse(t *testing.T) {
	c := newTestAPI(t)
	c.register("rotate@example.com")
	pair := c.login("rotate@example.com")

	resp := c.post("/v1/auth/refresh", map[string]string{"refresh_token": pair.RefreshToken}, nil)
	var next auth.TokenPair
	decodeBody(t, resp, &next)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d", resp.StatusCode)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}

	expectStatus(t, c.post("/v1/auth/refresh", map[string]string{"refresh_token": pair.RefreshToken}, nil), http.StatusUnauthorized)
	// An immediate replay looks like a client racing itself; the successor survives.
	expectStatus(t, c.post("/v1/auth/refresh", map[string]string{"refresh_token": next.RefreshToken}, nil), http.StatusOK)
}

func TestLogoutRevokesAccessAndRefresh(t *testing.T) {
	c := newTestAPI(t)
	c.register("leave@example.com")
	pair := c.login("leave@example.com")

	resp := c.post("/v1/auth/logout", map[string]string{"refresh_token": pair.RefreshToken}, bearerHeader(pair.AccessToken))
	expectStatus(t, resp, http.StatusNoContent)

	expectStatus(t, c.get("/v1/auth/me", nil, bearerHeader(pair.AccessToken)), http.StatusUnauthorized)
	expectStatus(t, c.post("/v1/auth/refresh", map[string]string{"refresh_token": pair.RefreshToken}, nil), http.StatusUnauthorized)
}

func TestLogoutWithoutBodyRevokesBearer(t *testing.T) {
	c := newTestAPI(t)
	c.register("quick@example.com")
	pair := c.login("quick@example.com")

	expectStatus(t, c.post("/v1/auth/logout", nil, bearerHeader(pair.AccessToken)), http.StatusNoContent)
	expectStatus(t, c.get("/v1/auth/me", nil, bearerHeader(pair.AccessToken)), http.StatusUnauthorized)
}

func TestLogoutRequiresPrincipal(t *testing.T) {
	c := newTestAPI(t)
	expectStatus(t, c.post("/v1/auth/logout", nil, nil), http.StatusUnauthorized)
}

func TestDeactivateBlocksFurtherLogins(t *testing.T) {
	c := newTestAPI(t)
	c.register("gone@example.com")
	pair := c.login("gone@example.com")

	expectStatus(t, c.post("/v1/auth/deactivate", nil, bearerHeader(pair.AccessToken)), http.StatusNoContent)
	expectStatus(t, c.get("/v1/auth/me", nil, bearerHeader(pair.AccessToken)), http.StatusUnauthorized)
	resp := c.post("/v1/auth/login", map[string]string{"email": "gone@example.com", "password": testPassword}, nil)
	expectStatus(t, resp, http.StatusUnauthorized)
}

func TestAuthorizeEndpoint(t *testing.T) {
	c := newTestAPI(t)
	userID := c.register("customer@example.com")
	ctx := context.Background()
	role, err := c.store.FindRoleByName(ctx, "customer")
	if err != nil {
		t.Fatalf("find role: %v", err)
	}
	if err := c.store.AssignRole(ctx, userID, role.ID); err != nil {
		t.Fatalf("assign role: %v", err)
	}
	pair := c.login("customer@example.com")

	cases := map[string]bool{
		auth.PermOrderCreate:  true,
		auth.PermOrderReadAll: false,
	}
	for code, want := range cases {
		resp := c.get("/v1/auth/authorize", url.Values{"permission": {code}}, bearerHeader(pair.AccessToken))
		var out map[string]any
		decodeBody(t, resp, &out)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", code, resp.StatusCode)
		}
		if out["allowed"] != want {
			t.Fatalf("%s: expected allowed=%v, got %v", code, want, out["allowed"])
		}
	}

	expectStatus(t, c.get("/v1/auth/authorize", nil, bearerHeader(pair.AccessToken)), http.StatusBadRequest)
}

func TestMethodNotAllowed(t *testing.T) {
	c := newTestAPI(t)
	resp := c.get("/v1/auth/login", nil, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Allow") != http.MethodPost {
		t.Fatalf("unexpected Allow header %q", resp.Header.Get("Allow"))
	}
}
