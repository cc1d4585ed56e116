package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"payrollhub.org/internal/audit"
	"payrollhub.org/internal/auth"
	"payrollhub.org/internal/consistency"
	"payrollhub.org/internal/fault"
	"payrollhub.org/internal/kv"
	"payrollhub.org/internal/notify"
	"payrollhub.org/internal/obs"
	"payrollhub.org/internal/ratelimit"
	"payrollhub.org/internal/users"
)

const testPassword = "correct-horse"

var (
	hashOnce   sync.Once
	cachedHash string
)

func passwordHash(t *testing.T) string {
	t.Helper()
	hashOnce.Do(func() {
		h, err := auth.HashPassword(testPassword)
		if err != nil {
			t.Fatalf("hash: %v", err)
		}
		cachedHash = h
	})
	return cachedHash
}

type directory struct {
	mu    sync.Mutex
	users map[string]auth.User
	roles map[string]auth.Role
}

func (d *directory) User(_ context.Context, id string) (auth.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return auth.User{}, auth.ErrNotFound
	}
	return u, nil
}

func (d *directory) UserByUsername(_ context.Context, username string) (auth.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.users {
		if u.Username == username {
			return u, nil
		}
	}
	return auth.User{}, auth.ErrNotFound
}

func (d *directory) Role(_ context.Context, id string) (auth.Role, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.roles[id]
	if !ok {
		return auth.Role{}, auth.ErrNotFound
	}
	return r, nil
}

// userTx writes straight into the directory and the audit store.
type userTx struct {
	*directory
	audits *audit.MemoryStore
}

func (t userTx) Append(ctx context.Context, e *audit.Entry) error { return t.audits.Append(ctx, e) }

func (t userTx) InsertUser(_ context.Context, u *auth.User) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, existing := range t.users {
		if existing.Username == u.Username {
			return fault.Conflict("username taken", nil)
		}
	}
	u.CreatedAt = time.Now().UTC()
	t.users[u.ID] = *u
	return nil
}

type userUnit struct{ tx userTx }

func (u userUnit) InTx(_ context.Context, fn func(tx users.Tx) error) error { return fn(u.tx) }

type revenueStore struct {
	mu       sync.Mutex
	revenues map[string]consistency.Revenue
	notes    []consistency.Notification
	audits   *audit.MemoryStore
}

func (s *revenueStore) InTx(_ context.Context, fn func(tx consistency.Tx) error) error {
	return fn(s)
}

func (s *revenueStore) Append(ctx context.Context, e *audit.Entry) error {
	return s.audits.Append(ctx, e)
}

func (s *revenueStore) InsertRevenue(_ context.Context, r *consistency.Revenue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.revenues {
		if existing.BranchID == r.BranchID && existing.Date.Equal(r.Date) {
			return fault.Conflict("duplicate", nil)
		}
	}
	s.revenues[r.ID] = *r
	return nil
}

func (s *revenueStore) InsertNotification(_ context.Context, n *consistency.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = append(s.notes, *n)
	return nil
}

func (s *revenueStore) Revenue(_ context.Context, id string) (consistency.Revenue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.revenues[id]
	if !ok {
		return consistency.Revenue{}, consistency.ErrRevenueNotFound
	}
	return r, nil
}

func (s *revenueStore) ListScoped(context.Context, string, []any) ([]consistency.Revenue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]consistency.Revenue, 0, len(s.revenues))
	for _, r := range s.revenues {
		out = append(out, r)
	}
	return out, nil
}

func (s *revenueStore) AlertRecipients(context.Context, string) ([]string, error) {
	return []string{"u-adm"}, nil
}

type recordingDispatcher struct {
	mu     sync.Mutex
	alerts []notify.Alert
}

func (d *recordingDispatcher) Dispatch(_ context.Context, a notify.Alert) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.alerts = append(d.alerts, a)
	return nil
}

type testEnv struct {
	t          *testing.T
	srv        *httptest.Server
	kv         *kv.Memory
	sessions   *auth.SessionStore
	audits     *audit.MemoryStore
	revenues   *revenueStore
	dispatcher *recordingDispatcher
}

// fixedNow keeps every rate-limit window inside one test.
var fixedNow = time.Date(2026, 5, 3, 12, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	hash := passwordHash(t)
	dir := &directory{
		users: map[string]auth.User{
			"u-acc": {ID: "u-acc", Username: "accountant", PasswordHash: hash, RoleID: "accountant", BranchID: "b-1", Active: true},
			"u-adm": {ID: "u-adm", Username: "admin", PasswordHash: hash, RoleID: "admin", Active: true},
		},
		roles: map[string]auth.Role{
			"accountant": {ID: "accountant", Capabilities: map[auth.Capability]bool{
				auth.CanAddRevenue: true, auth.CanViewRevenue: true,
			}},
			"admin": {ID: "admin", Capabilities: map[auth.Capability]bool{
				auth.CanManageUsers: true, auth.CanViewAllBranches: true, auth.CanViewAudit: true,
				auth.CanViewRevenue: true, auth.CanAddRevenue: true,
			}},
		},
	}

	mem := kv.NewMemory()
	discard := obs.Discard()
	sessions := auth.NewSessionStore(mem, auth.WithSessionLogger(discard))
	limiter, err := ratelimit.New(mem, ratelimit.WithLogger(discard), ratelimit.WithClock(func() time.Time { return fixedNow }))
	if err != nil {
		t.Fatalf("ratelimit.New: %v", err)
	}
	audits := audit.NewMemoryStore()
	auditLog := audit.New(audits, audits, audit.WithLogger(discard))
	revs := &revenueStore{revenues: map[string]consistency.Revenue{}, audits: audits}
	dispatcher := &recordingDispatcher{}

	api := New(Deps{
		Guard:    auth.NewAccessGuard(sessions, auth.NewPermissionResolver(dir), discard),
		Auth:     auth.NewAuthenticator(dir, sessions, time.Hour, discard),
		Limiter:  limiter,
		Audit:    auditLog,
		Revenues: consistency.NewService(revs, revs, revs, dispatcher, auditLog, consistency.WithLogger(discard)),
		Users:    users.NewService(userUnit{tx: userTx{directory: dir, audits: audits}}, auditLog, users.WithLogger(discard)),
		Ready:    ReadyProbe{KV: mem},
	}, append([]Option{WithLogger(discard), WithVersion("test")}, opts...)...)

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	return &testEnv{t: t, srv: srv, kv: mem, sessions: sessions, audits: audits, revenues: revs, dispatcher: dispatcher}
}

// session opens a session directly, bypassing the login endpoint.
func (e *testEnv) session(userID, username, branch string) string {
	e.t.Helper()
	s, err := e.sessions.Create(context.Background(), userID, username, branch, time.Hour)
	if err != nil {
		e.t.Fatalf("create session: %v", err)
	}
	return s.Token
}

func (e *testEnv) do(method, path string, body any, headers map[string]string) *http.Response {
	e.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			e.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.srv.URL+path, bytes.NewReader(payload))
	if err != nil {
		e.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := e.srv.Client().Do(req)
	if err != nil {
		e.t.Fatalf("do request: %v", err)
	}
	return resp
}

func bearerHeader(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(http.MethodGet, "/healthz", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body := decode[map[string]any](t, resp)
	if body["version"] != "test" {
		t.Fatalf("unexpected body %v", body)
	}

	resp = env.do(http.MethodGet, "/readyz", nil, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected ready, got %d", resp.StatusCode)
	}
	env.kv.FailWith(context.DeadlineExceeded)
	resp = env.do(http.MethodGet, "/readyz", nil, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

func TestUnauthenticatedRequestsAreRejected(t *testing.T) {
	env := newTestEnv(t)
	for _, headers := range []map[string]string{
		nil,
		{"Authorization": "Bearer not-a-session"},
		{"Authorization": "Basic YWRtaW46YWRtaW4="},
	} {
		resp := env.do(http.MethodGet, "/v1/revenues", nil, headers)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("headers %v: expected 401, got %d", headers, resp.StatusCode)
		}
		body := decode[errorBody](t, resp)
		if body.Error != "unauthenticated" || body.RequestID == "" {
			t.Fatalf("unexpected body %+v", body)
		}
	}
}

func TestErrorMessageIsLocalized(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(http.MethodGet, "/v1/auth/me", nil, map[string]string{"Accept-Language": "ar-SA,ar;q=0.9"})
	body := decode[errorBody](t, resp)
	if body.Message != fault.Message(fault.KindUnauthenticated, "ar") {
		t.Fatalf("expected Arabic message, got %q", body.Message)
	}
}

func TestCreateUserWithoutCapabilityTouchesNothing(t *testing.T) {
	env := newTestEnv(t)
	token := env.session("u-acc", "accountant", "b-1")
	keysBefore := env.kv.Len()

	headers := bearerHeader(token)
	headers["X-Permissions"] = "canManageUsers,canViewAllBranches"
	resp := env.do(http.MethodPost, "/v1/users", map[string]any{
		"username":    "intruder",
		"password":    testPassword,
		"role_id":     "admin",
		"permissions": []string{"canManageUsers"},
	}, headers)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	if body := decode[errorBody](t, resp); body.Error != "forbidden" {
		t.Fatalf("unexpected body %+v", body)
	}
	if n := len(env.audits.Entries()); n != 0 {
		t.Fatalf("expected no audit rows, got %d", n)
	}
	if env.kv.Len() != keysBefore {
		t.Fatalf("rate-limit counters were touched: %d keys, want %d", env.kv.Len(), keysBefore)
	}
}

func TestCreateUserAuditsOnce(t *testing.T) {
	env := newTestEnv(t)
	token := env.session("u-adm", "admin", "")

	resp := env.do(http.MethodPost, "/v1/users", createUserRequest{
		Username: "amal", Password: testPassword, RoleID: "accountant", BranchID: "b-1",
	}, bearerHeader(token))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	u := decode[userResponse](t, resp)
	entries := env.audits.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(entries))
	}
	e := entries[0]
	if e.ActorID != "u-adm" || e.ResourceType != "users" || e.ResourceID != u.ID || e.Action != audit.ActionCreate {
		t.Fatalf("unexpected audit entry %+v", e)
	}
	if e.Metadata["request_id"] == nil || e.ClientIP == "" {
		t.Fatalf("expected request attributes on entry, got %+v", e)
	}

	resp = env.do(http.MethodPost, "/v1/users", createUserRequest{
		Username: "amal", Password: testPassword, RoleID: "accountant", BranchID: "b-1",
	}, bearerHeader(token))
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate, got %d", resp.StatusCode)
	}
}

func TestRecordRevenueMismatch(t *testing.T) {
	env := newTestEnv(t)
	token := env.session("u-acc", "accountant", "b-1")

	resp := env.do(http.MethodPost, "/v1/revenues", map[string]any{
		"branch_id": "b-1", "date": "2026-05-03", "cash": "100", "network": "50", "budget": "0", "total": "151",
	}, bearerHeader(token))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	rev := decode[revenueResponse](t, resp)
	if rev.IsMatched || rev.CalculatedTotal != "150.00" || rev.Total != "151.00" {
		t.Fatalf("unexpected revenue %+v", rev)
	}
	if len(env.revenues.notes) != 1 {
		t.Fatalf("expected one stored notification, got %d", len(env.revenues.notes))
	}
	if len(env.dispatcher.alerts) != 1 || env.dispatcher.alerts[0].RelatedEntityID != rev.ID {
		t.Fatalf("expected one dispatched alert for %s, got %+v", rev.ID, env.dispatcher.alerts)
	}
	entries := env.audits.Entries()
	if len(entries) != 1 || entries[0].ResourceID != rev.ID || entries[0].ActorID != "u-acc" {
		t.Fatalf("unexpected audit entries %+v", entries)
	}

	resp = env.do(http.MethodGet, "/v1/revenues/"+rev.ID, nil, bearerHeader(token))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on get, got %d", resp.StatusCode)
	}
	if got := decode[revenueResponse](t, resp); got.ID != rev.ID || got.Date != "2026-05-03" {
		t.Fatalf("unexpected revenue %+v", got)
	}
}

func TestRecordRevenueOtherBranchForbidden(t *testing.T) {
	env := newTestEnv(t)
	token := env.session("u-acc", "accountant", "b-1")

	resp := env.do(http.MethodPost, "/v1/revenues", map[string]any{
		"branch_id": "b-2", "date": "2026-05-03", "cash": "1", "network": "0", "budget": "0", "total": "1",
	}, bearerHeader(token))
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}

	resp = env.do(http.MethodGet, "/v1/revenues?branch_id=b-2", nil, bearerHeader(token))
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 on list, got %d", resp.StatusCode)
	}
}

func TestRecordRevenueValidation(t *testing.T) {
	env := newTestEnv(t)
	token := env.session("u-acc", "accountant", "b-1")

	resp := env.do(http.MethodPost, "/v1/revenues", map[string]any{
		"branch_id": "b-1", "date": "03/05/2026", "cash": "1", "network": "0", "budget": "0", "total": "1",
	}, bearerHeader(token))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if body := decode[errorBody](t, resp); body.Error != "validation" || body.Field != "date" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestFinancialCriticalRateLimit(t *testing.T) {
	env := newTestEnv(t)
	token := env.session("u-acc", "accountant", "b-1")

	for i := 1; i <= 6; i++ {
		day := time.Date(2026, 4, i, 0, 0, 0, 0, time.UTC).Format(dateLayout)
		resp := env.do(http.MethodPost, "/v1/revenues", map[string]any{
			"branch_id": "b-1", "date": day, "cash": "1", "network": "0", "budget": "0", "total": "1",
		}, bearerHeader(token))
		if i <= 5 {
			resp.Body.Close()
			if resp.StatusCode != http.StatusCreated {
				t.Fatalf("request %d: expected 201, got %d", i, resp.StatusCode)
			}
			continue
		}
		if resp.StatusCode != http.StatusTooManyRequests {
			t.Fatalf("request %d: expected 429, got %d", i, resp.StatusCode)
		}
		if resp.Header.Get("Retry-After") == "" {
			t.Fatal("expected Retry-After header")
		}
		body := decode[errorBody](t, resp)
		if body.RetryAfter <= 0 || body.RetryAfter > 60 {
			t.Fatalf("retry_after out of range: %d", body.RetryAfter)
		}
	}
	if n := len(env.audits.Entries()); n != 5 {
		t.Fatalf("expected 5 audit entries, got %d", n)
	}
}

func TestLoginMeLogout(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(http.MethodPost, "/v1/auth/login", loginRequest{Username: "accountant", Password: testPassword}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == sessionCookie {
			cookie = c
		}
	}
	login := decode[loginResponse](t, resp)
	if login.Token == "" || login.UserID != "u-acc" {
		t.Fatalf("unexpected login response %+v", login)
	}
	if cookie == nil || cookie.Value != login.Token || !cookie.HttpOnly {
		t.Fatalf("expected http-only session cookie, got %+v", cookie)
	}

	resp = env.do(http.MethodGet, "/v1/auth/me", nil, map[string]string{"Cookie": sessionCookie + "=" + login.Token})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on me, got %d", resp.StatusCode)
	}
	me := decode[meResponse](t, resp)
	if me.BranchID != "b-1" || len(me.Capabilities) != 2 {
		t.Fatalf("unexpected me %+v", me)
	}

	resp = env.do(http.MethodPost, "/v1/auth/logout", nil, bearerHeader(login.Token))
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 on logout, got %d", resp.StatusCode)
	}
	resp = env.do(http.MethodGet, "/v1/auth/me", nil, bearerHeader(login.Token))
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", resp.StatusCode)
	}

	var actions []audit.Action
	for _, e := range env.audits.Entries() {
		actions = append(actions, e.Action)
	}
	if len(actions) != 2 || actions[0] != audit.ActionExecute || actions[1] != audit.ActionDelete {
		t.Fatalf("unexpected audit actions %v", actions)
	}
}

func TestLoginFailureIsAuditedAndUniform(t *testing.T) {
	env := newTestEnv(t)

	wrong := env.do(http.MethodPost, "/v1/auth/login", loginRequest{Username: "accountant", Password: "wrong-password"}, nil)
	unknown := env.do(http.MethodPost, "/v1/auth/login", loginRequest{Username: "nobody", Password: "wrong-password"}, nil)
	a, b := decode[errorBody](t, wrong), decode[errorBody](t, unknown)
	if wrong.StatusCode != http.StatusUnauthorized || unknown.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401s, got %d and %d", wrong.StatusCode, unknown.StatusCode)
	}
	if a.Message != b.Message {
		t.Fatalf("failure messages differ: %q vs %q", a.Message, b.Message)
	}
	entries := env.audits.Entries()
	if len(entries) != 2 || entries[0].ActorID != anonymousActor || entries[0].Metadata["outcome"] != "denied" {
		t.Fatalf("unexpected audit entries %+v", entries)
	}
}

func TestAuditQueryRequiresCapability(t *testing.T) {
	env := newTestEnv(t)
	acc := env.session("u-acc", "accountant", "b-1")
	adm := env.session("u-adm", "admin", "")

	resp := env.do(http.MethodGet, "/v1/audit", nil, bearerHeader(acc))
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}

	resp = env.do(http.MethodPost, "/v1/users", createUserRequest{
		Username: "amal", Password: testPassword, RoleID: "accountant", BranchID: "b-1",
	}, bearerHeader(adm))
	resp.Body.Close()

	resp = env.do(http.MethodGet, "/v1/audit?resource_type=users&limit=10", nil, bearerHeader(adm))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body := decode[struct {
		Items []audit.Entry `json:"items"`
	}](t, resp)
	if len(body.Items) != 1 || body.Items[0].ResourceType != "users" {
		t.Fatalf("unexpected items %+v", body.Items)
	}

	resp = env.do(http.MethodGet, "/v1/audit?from=yesterday", nil, bearerHeader(adm))
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 on bad from, got %d", resp.StatusCode)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(http.MethodDelete, "/v1/revenues", nil, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed || resp.Header.Get("Allow") == "" {
		t.Fatalf("expected 405 with Allow, got %d", resp.StatusCode)
	}
}

func TestLoginLimitIgnoresRotatingForwardedFor(t *testing.T) {
	env := newTestEnv(t)

	limited := 0
	for i := 0; i < 12; i++ {
		resp := env.do(http.MethodPost, "/v1/auth/login",
			loginRequest{Username: "accountant", Password: "wrong-password"},
			map[string]string{"X-Forwarded-For": fmt.Sprintf("198.51.100.%d", i)})
		resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			limited++
			if resp.Header.Get("Retry-After") == "" {
				t.Fatal("expected Retry-After on 429")
			}
		}
	}
	if limited != 2 {
		t.Fatalf("expected attempts 11 and 12 to be limited, got %d limited", limited)
	}
	for _, e := range env.audits.Entries() {
		if e.ClientIP != "127.0.0.1" {
			t.Fatalf("audit entry recorded forged client ip %q", e.ClientIP)
		}
	}
}

func TestLoginLimitPerClientBehindTrustedProxy(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"127.0.0.1"})
	if err != nil {
		t.Fatalf("ParseTrustedProxies: %v", err)
	}
	env := newTestEnv(t, WithTrustedProxies(trusted))

	attempt := func(xff string) int {
		resp := env.do(http.MethodPost, "/v1/auth/login",
			loginRequest{Username: "accountant", Password: "wrong-password"},
			map[string]string{"X-Forwarded-For": xff})
		resp.Body.Close()
		return resp.StatusCode
	}
	for i := 0; i < 10; i++ {
		if code := attempt("203.0.113.7"); code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, code)
		}
	}
	// A spoofed left-most hop does not escape the counter.
	if code := attempt("1.1.1.1, 203.0.113.7"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}
	if code := attempt("203.0.113.8"); code != http.StatusUnauthorized {
		t.Fatalf("other client behind the proxy: expected 401, got %d", code)
	}
	if ip := env.audits.Entries()[0].ClientIP; ip != "203.0.113.7" {
		t.Fatalf("audit client ip = %q", ip)
	}
}

func TestLogoutKeepsSessionWhenAuditFails(t *testing.T) {
	env := newTestEnv(t)
	token := env.session("u-acc", "accountant", "b-1")

	env.audits.FailWith(errors.New("audit table locked"))
	resp := env.do(http.MethodPost, "/v1/auth/logout", nil, bearerHeader(token))
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	env.audits.FailWith(nil)

	resp = env.do(http.MethodGet, "/v1/auth/me", nil, bearerHeader(token))
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("session must survive a failed logout, got %d", resp.StatusCode)
	}
	if n := len(env.audits.Entries()); n != 0 {
		t.Fatalf("expected no audit entries, got %d", n)
	}
}

func TestMalformedBodyMessageIsFixed(t *testing.T) {
	env := newTestEnv(t)
	for _, body := range []json.RawMessage{
		json.RawMessage(`{"username": 5, "password": "x"}`),
		json.RawMessage(`{"user": "accountant"}`),
	} {
		resp := env.do(http.MethodPost, "/v1/auth/login", body, nil)
		got := decode[errorBody](t, resp)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", resp.StatusCode)
		}
		if got.Message != "malformed JSON body" || got.Field != "body" {
			t.Fatalf("unexpected error body %+v", got)
		}
	}
}
