package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osparrot/swiftpayme-platform-sub005/internal/adapter/http/dto"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/adapter/http/handler"
	apimiddleware "github.com/osparrot/swiftpayme-platform-sub005/internal/adapter/http/middleware"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/adapter/repository/memory"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/domain"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/infrastructure/auth"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/infrastructure/metrics"
	"github.com/osparrot/swiftpayme-platform-sub005/internal/usecase"
)

type seqIDGen struct{ n atomic.Int64 }

func (g *seqIDGen) Generate() string { return fmt.Sprintf("id-%06d", g.n.Add(1)) }

func newRouterConfig(opts ...func(*RouterConfig)) RouterConfig {
	store := memory.NewStore()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	deps := usecase.Dependencies{
		Stores:  store.Stores(),
		IDGen:   &seqIDGen{},
		Metrics: m,
		Logger:  zerolog.Nop(),
	}
	v := dto.NewValidator()

	cfg := RouterConfig{
		AccountHandler: handler.NewAccountHandler(usecase.NewAccountUseCase(deps), v),
		BucketHandler:  handler.NewBucketHandler(usecase.NewBucketUseCase(deps), v),
		JournalHandler: handler.NewJournalHandler(usecase.NewPostingUseCase(deps), v),
		LedgerHandler:  handler.NewLedgerHandler(usecase.NewReportUseCase(deps), usecase.NewReconciliationUseCase(deps)),
		HealthHandler:  handler.NewHealthHandler(nil),
		Logger:         zerolog.Nop(),
		Metrics:        m,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

type client struct {
	t      *testing.T
	router http.Handler
	token  string
}

func (c *client) do(method, path, body string, out any) *httptest.ResponseRecorder {
	c.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	rec := httptest.NewRecorder()
	c.router.ServeHTTP(rec, req)

	if out != nil && rec.Code < 300 {
		var env struct {
			Success bool            `json:"success"`
			Data    json.RawMessage `json:"data"`
		}
		require.NoError(c.t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
		require.True(c.t, env.Success)
		require.NoError(c.t, json.Unmarshal(env.Data, out))
	}
	return rec
}

func TestNewRouter_HealthEndpointAvailable(t *testing.T) {
	router := NewRouter(newRouterConfig())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected /health to return 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected /ready to return 200, got %d", rec.Code)
	}
}

func TestNewRouter_RegistersKeyRoutes(t *testing.T) {
	router := NewRouter(newRouterConfig())

	chiRoutes, ok := router.(chi.Routes)
	if !ok {
		t.Fatal("router does not implement chi.Routes")
	}

	expected := map[string]bool{
		"POST /api/v1/accounts":                      false,
		"GET /api/v1/accounts":                       false,
		"GET /api/v1/accounts/by-number/{number}":    false,
		"GET /api/v1/accounts/{id}":                  false,
		"GET /api/v1/accounts/{id}/balances":         false,
		"GET /api/v1/accounts/{id}/sufficient":       false,
		"GET /api/v1/accounts/{id}/journal-entries":  false,
		"POST /api/v1/accounts/{id}/parent":          false,
		"POST /api/v1/accounts/{id}/close":           false,
		"POST /api/v1/accounts/{id}/deactivate":      false,
		"POST /api/v1/accounts/{id}/activate":        false,
		"POST /api/v1/accounts/{id}/freeze":          false,
		"POST /api/v1/accounts/{id}/unfreeze":        false,
		"GET /api/v1/accounts/{id}/reconciliation":   false,
		"POST /api/v1/accounts/{id}/reserve":         false,
		"POST /api/v1/accounts/{id}/release":         false,
		"POST /api/v1/accounts/{id}/escrow":          false,
		"POST /api/v1/accounts/{id}/escrow/release":  false,
		"POST /api/v1/transactions":                  false,
		"POST /api/v1/journal-entries":               false,
		"GET /api/v1/journal-entries/{ref}":          false,
		"POST /api/v1/journal-entries/{ref}/reverse": false,
		"GET /api/v1/ledger/trial-balance":           false,
		"GET /api/v1/ledger/audit-trail":             false,
		"GET /api/v1/ledger/audit-logs":              false,
		"GET /api/v1/ledger/reconciliation":          false,
		"GET /metrics":                               false,
	}

	err := chi.Walk(chiRoutes, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		route = strings.TrimSuffix(strings.ReplaceAll(route, "/*/", "/"), "/")
		key := method + " " + route
		if _, ok := expected[key]; ok {
			expected[key] = true
		}
		return nil
	})
	require.NoError(t, err)

	for route, found := range expected {
		assert.True(t, found, "expected route %s to be registered", route)
	}
}

func TestNewRouter_PostingFlow(t *testing.T) {
	c := &client{t: t, router: NewRouter(newRouterConfig())}

	var treasury, alice dto.AccountResponse
	rec := c.do(http.MethodPost, "/api/v1/accounts",
		`{"reference":"open-treasury","name":"treasury","type":"asset","currency":"USD","actor":"ops"}`, &treasury)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = c.do(http.MethodPost, "/api/v1/accounts",
		`{"reference":"open-alice","name":"alice","type":"liability","currency":"USD","actor":"ops"}`, &alice)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	deposit := fmt.Sprintf(`{"reference":"dep-1","debitAccountId":%q,"creditAccountId":%q,"amount":"100","currency":"USD","mirrorAvailable":true,"actor":"deposits"}`,
		treasury.ID, alice.ID)
	var posting dto.PostingResponse
	rec = c.do(http.MethodPost, "/api/v1/transactions", deposit, &posting)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "100", posting.Balances[alice.ID].Available)
	assert.False(t, posting.Replayed)

	rec = c.do(http.MethodPost, "/api/v1/transactions", deposit, &posting)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, posting.Replayed)

	var move dto.BucketMoveResponse
	rec = c.do(http.MethodPost, "/api/v1/accounts/"+alice.ID+"/reserve", `{"reference":"res-1","amount":"40","actor":"purchase"}`, &move)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "60", move.Balances.Available)
	assert.Equal(t, "40", move.Balances.Reserved)

	rec = c.do(http.MethodPost, "/api/v1/accounts/"+alice.ID+"/reserve", `{"reference":"res-2","amount":"70","actor":"purchase"}`, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var balances dto.BalancesResponse
	rec = c.do(http.MethodGet, "/api/v1/accounts/"+alice.ID+"/balances", "", &balances)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "100", balances.Current)
	assert.Equal(t, "40", balances.Reserved)

	var tb dto.TrialBalanceResponse
	rec = c.do(http.MethodGet, "/api/v1/ledger/trial-balance?currency=USD", "", &tb)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, tb.Balanced)

	var recon dto.ReconciliationResponse
	rec = c.do(http.MethodGet, "/api/v1/ledger/reconciliation", "", &recon)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, recon.Discrepancies)
	assert.True(t, recon.LedgerConsistent)

	var reversal dto.PostingResponse
	rec = c.do(http.MethodPost, "/api/v1/journal-entries/dep-1/reverse", `{"reference":"rev-1","reason":"chargeback","actor":"ops"}`, &reversal)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "reversal would pull reserved funds out of available")

	rec = c.do(http.MethodGet, "/api/v1/journal-entries/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = c.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `swiftpay_ledger_postings_total`)
}

func TestNewRouter_AuthenticationAndRoles(t *testing.T) {
	jwtManager := auth.NewJWTManager("test-secret", "swiftpay-ledger", time.Hour)
	router := NewRouter(newRouterConfig(func(cfg *RouterConfig) {
		cfg.Verifier = jwtManager
	}))

	token := func(id string, role domain.Role) string {
		tok, err := jwtManager.Generate(&domain.Actor{ID: id, Role: role})
		require.NoError(t, err)
		return tok
	}

	anonymous := &client{t: t, router: router}
	rec := anonymous.do(http.MethodGet, "/api/v1/accounts", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = anonymous.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "health stays public")

	viewer := &client{t: t, router: router, token: token("dashboard", domain.RoleViewer)}
	rec = viewer.do(http.MethodGet, "/api/v1/accounts", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = viewer.do(http.MethodPost, "/api/v1/accounts", `{"reference":"r","name":"n","type":"asset","currency":"USD"}`, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	service := &client{t: t, router: router, token: token("wallet-service", domain.RoleService)}
	var acc dto.AccountResponse
	rec = service.do(http.MethodPost, "/api/v1/accounts", `{"reference":"r","name":"n","type":"asset","currency":"USD","actor":"spoofed"}`, &acc)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = service.do(http.MethodPost, "/api/v1/accounts/"+acc.ID+"/freeze", `{"reference":"f-1"}`, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	admin := &client{t: t, router: router, token: token("ops-admin", domain.RoleAdmin)}
	var logs []dto.AuditLogResponse
	rec = admin.do(http.MethodGet, "/api/v1/ledger/audit-logs?resourceId="+acc.ID, "", &logs)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, logs)
	assert.Equal(t, "wallet-service", logs[0].Actor, "the token subject wins over the body actor")
}

type stubIdempotencyStore struct {
	checkCalled bool
}

func (s *stubIdempotencyStore) CheckAndSet(context.Context, string, []byte, time.Duration) (bool, []byte, error) {
	s.checkCalled = true
	return false, nil, nil
}

func (s *stubIdempotencyStore) Update(context.Context, string, []byte, time.Duration) error { return nil }

func (s *stubIdempotencyStore) Release(context.Context, string) error { return nil }

func TestNewRouter_IdempotencyMiddlewareInvokesStore(t *testing.T) {
	store := &stubIdempotencyStore{}
	router := NewRouter(newRouterConfig(func(cfg *RouterConfig) {
		cfg.IdempotencyStore = store
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/accounts",
		strings.NewReader(`{"reference":"r","name":"n","type":"asset","currency":"USD","actor":"ops"}`))
	req.Header.Set(apimiddleware.IdempotencyKeyHeader, "key-123")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if !store.checkCalled {
		t.Fatalf("expected idempotency store to be used")
	}
}
