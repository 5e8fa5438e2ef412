package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/inventory/internal/repo"
	"github.com/Skotchmaster/inventory/internal/search"
	"github.com/Skotchmaster/inventory/internal/service"
	"github.com/Skotchmaster/inventory/internal/transport"
	"github.com/Skotchmaster/inventory/pkg/cache"
	pkgdb "github.com/Skotchmaster/inventory/pkg/db"
	"github.com/Skotchmaster/inventory/pkg/events"
	"github.com/Skotchmaster/inventory/pkg/logging"
	"github.com/Skotchmaster/inventory/pkg/tokens"
)

type codeSink struct {
	mu    sync.Mutex
	codes map[string]string
	fail  bool
}

func (s *codeSink) Send(_ context.Context, _, contact, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("provider down")
	}
	s.codes[contact] = code
	return nil
}

func (s *codeSink) code(contact string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codes[contact]
}

type server struct {
	e      *echo.Echo
	sink   *codeSink
	tokens *tokens.Service
	ready  error
}

func newServer(t *testing.T) *server {
	t.Helper()

	ctx := context.Background()
	gdb, err := pkgdb.Open(ctx, pkgdb.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = pkgdb.Close(gdb) })

	r := repo.New(gdb)
	require.NoError(t, r.Migrate(ctx))

	mem := cache.NewMemory()
	sink := &codeSink{codes: map[string]string{}}
	tok, err := tokens.NewService([]byte("http-test-secret"))
	require.NoError(t, err)
	rec := &events.Recorder{}

	otp := service.NewOTPService(mem, sink, service.DefaultOTPTTL, service.DefaultOTPResendInterval)
	s := &server{sink: sink, tokens: tok}

	s.e = New(logging.NewWithWriter(io.Discard, "error"), &Deps{
		AuthHandler: &AuthHTTP{Svc: &service.AuthService{Users: r, Tokens: tok, OTP: otp, Events: rec}},
		CatalogHandler: &CatalogHTTP{Svc: &service.CatalogService{
			Store: r, Cache: mem, Search: search.StoreIndex{Store: r}, Events: rec,
		}},
		Verifier:  tok,
		AdminRole: "admin",
		Ready: []Check{
			{Name: "db", Probe: func(ctx context.Context) error { return pkgdb.Ping(ctx, gdb) }},
			{Name: "stub", Probe: func(context.Context) error { return s.ready }},
		},
	})
	return s
}

func (s *server) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) transport.Envelope {
	t.Helper()
	var env transport.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func (s *server) login(t *testing.T, username, password, role string) string {
	t.Helper()

	rec := s.do(t, http.MethodPost, "/api/auth/register", map[string]any{
		"username": username, "password": password, "role": role,
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/auth/login", map[string]any{"username": username, "password": password}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	env := decodeEnvelope(t, rec)
	data := env.Data.(map[string]any)
	return data["token"].(string)
}

func TestRegisterAndLogin(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, http.MethodPost, "/api/auth/register", map[string]any{
		"username": "alice_1", "password": "pw", "email": "alice@example.com",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.True(t, env.Status)
	assert.NotContains(t, rec.Body.String(), "passwordHash")
	assert.NotContains(t, rec.Body.String(), "PasswordHash")

	rec = s.do(t, http.MethodPost, "/api/auth/register", map[string]any{"username": "alice_1", "password": "x"}, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	env = decodeEnvelope(t, rec)
	assert.False(t, env.Status)
	assert.Equal(t, "conflict", env.Error)
	assert.Nil(t, env.Data)

	rec = s.do(t, http.MethodPost, "/api/auth/register", map[string]any{"username": "bob", "password": "x"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/auth/login", map[string]any{"username": "nobody_here", "password": "pw"}, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/auth/login", map[string]any{"username": "alice_1", "password": "bad"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/auth/login", map[string]any{"username": "alice_1", "password": "pw"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	env = decodeEnvelope(t, rec)
	data := env.Data.(map[string]any)
	assert.Equal(t, "user", data["role"])

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == tokens.CookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.Equal(t, data["token"], cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, 3600, cookie.MaxAge)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
}

func TestLogoutClearsCookie(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, http.MethodPost, "/api/logout", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Result().Cookies())
	assert.Equal(t, -1, rec.Result().Cookies()[0].MaxAge)
}

func TestOTPFlow(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, http.MethodPost, "/api/auth/register", map[string]any{
		"username": "carol_99", "password": "pw", "phone": "+15550002",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/auth/login/send-otp", map[string]any{"contact": "+15550002", "contactType": "fax"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/auth/login/send-otp", map[string]any{"contact": "+19999999", "contactType": "phone"}, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/auth/login/send-otp", map[string]any{"contact": "+15550002", "contactType": "phone"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	code := s.sink.code("+15550002")
	require.Len(t, code, 6)
	assert.NotContains(t, rec.Body.String(), code)

	rec = s.do(t, http.MethodPost, "/api/auth/login/resend-otp", map[string]any{"contact": "+15550002", "contactType": "phone"}, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/auth/login/verify-otp", map[string]any{"contact": "+15550002", "inputOtp": "wrong!"}, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/auth/login/verify-otp", map[string]any{"contact": "+15550002", "inputOtp": code}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeEnvelope(t, rec).Data.(map[string]any)
	id, err := s.tokens.Verify(data["token"].(string))
	require.NoError(t, err)
	assert.Equal(t, "carol_99", id.Username)
}

func TestSendOTP_DeliveryFailure(t *testing.T) {
	s := newServer(t)
	s.sink.fail = true

	rec := s.do(t, http.MethodPost, "/api/auth/register", map[string]any{
		"username": "dave_01", "password": "pw", "email": "dave@example.com",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/auth/login/send-otp", map[string]any{"contact": "dave@example.com", "contactType": "email"}, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "provider down")
}

func TestProducts_RequireAuthentication(t *testing.T) {
	s := newServer(t)

	rec := s.do(t, http.MethodGet, "/api/products", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthenticated", decodeEnvelope(t, rec).Error)

	rec = s.do(t, http.MethodGet, "/api/products", nil, "garbage")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProductsCRUD(t *testing.T) {
	s := newServer(t)
	token := s.login(t, "alice_1", "pw", "user")

	for i := 1; i <= 5; i++ {
		rec := s.do(t, http.MethodPost, "/api/products", map[string]any{
			"name": fmt.Sprintf("Product-%d", i), "description": "d", "price": 10 * i, "category": "tools", "stock": i,
		}, token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := s.do(t, http.MethodPost, "/api/products", map[string]any{
		"name": "Product-1", "description": "d", "price": 1, "category": "tools", "stock": 1,
	}, token)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/products", map[string]any{
		"name": "Product-9", "description": "d", "price": 1, "category": "tools", "stock": 1.5,
	}, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/products?page=2&limit=2", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	var page transport.ProductPage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Data, 2)
	assert.Equal(t, "Product-3", page.Data[0].Name)
	assert.Equal(t, int64(3), page.Metadata.TotalPages)
	assert.Equal(t, int64(5), page.Metadata.TotalProducts)
	assert.Equal(t, 2, page.CurrentPage)

	rec = s.do(t, http.MethodGet, "/api/products?page=abc&limit=xyz", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 1, page.CurrentPage)
	assert.Len(t, page.Data, 2)

	rec = s.do(t, http.MethodGet, "/api/products?minPrice=cheap", nil, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	id := page.Data[0].ID
	rec = s.do(t, http.MethodPut, fmt.Sprintf("/api/products/%d", id), map[string]any{"stock": 10}, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"stock":10`)
	assert.Contains(t, rec.Body.String(), `"name":"Product-1"`)

	rec = s.do(t, http.MethodGet, fmt.Sprintf("/api/products/%d", id), nil, token)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/products/not-a-number", nil, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodDelete, fmt.Sprintf("/api/products/%d", id), nil, token)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, fmt.Sprintf("/api/products/%d", id), nil, token)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodDelete, fmt.Sprintf("/api/products/%d", id), nil, token)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/products/9999", map[string]any{"stock": 1}, token)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/products/search?q=product-2", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Data, 1)
	assert.Equal(t, "Product-2", page.Data[0].Name)
}

func TestStats_RoleGate(t *testing.T) {
	s := newServer(t)
	userToken := s.login(t, "plain_user", "pw", "user")
	adminToken := s.login(t, "root_admin", "pw", "admin")

	rec := s.do(t, http.MethodGet, "/api/products/stats", nil, userToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", decodeEnvelope(t, rec).Error)

	rec = s.do(t, http.MethodGet, "/api/products/stats", nil, adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeEnvelope(t, rec).Status)

	expired, err := tokens.NewService([]byte("http-test-secret"), tokens.WithClock(func() time.Time {
		return time.Now().Add(-2 * time.Hour)
	}))
	require.NoError(t, err)
	stale, _, err := expired.Issue(tokens.Identity{Username: "root_admin", Role: "admin"})
	require.NoError(t, err)

	rec = s.do(t, http.MethodGet, "/api/products/stats", nil, stale)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "token expired"))
}

func TestHealth(t *testing.T) {
	s := newServer(t)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health/live", nil, "").Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health/ready", nil, "").Code)

	s.ready = errors.New("down")
	rec := s.do(t, http.MethodGet, "/health/ready", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestErrorHandler_HidesInternalErrors(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	ErrorHandler(errors.New("pq: password authentication failed for user \"inventory\""), c)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "pq:")
	assert.Contains(t, rec.Body.String(), `"internal_error"`)
}

func TestAuthRateLimit(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler
	h := &AuthHTTP{}
	Register(e, &Deps{AuthHandler: h, CatalogHandler: &CatalogHTTP{}, AuthRateLimit: 1})

	hit := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader("{"))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusBadRequest, hit())
	assert.Equal(t, http.StatusTooManyRequests, hit())
}
