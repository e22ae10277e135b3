package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeart/internal/core/datacontext"
	"codeart/internal/core/lock"
	"codeart/internal/domain/auth"
	"codeart/internal/domain/order"
	"codeart/internal/infrastructure/http/v1/dto"
	"codeart/internal/infrastructure/http/v1/handlers"
	"codeart/internal/infrastructure/storage/memory"
	"codeart/pkg/logger"
)

type testServer struct {
	t      *testing.T
	store  *memory.Store
	pool   *datacontext.Pool
	router http.Handler
	jwt    *auth.JWTService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.NewStore()
	pool := datacontext.NewPool(datacontext.PoolConfig{MaxIdle: 4}, datacontext.Options{
		Transactions: store,
		Locker:       lock.NewMemory(),
	}, logger.Nop())
	t.Cleanup(func() { pool.Close(context.Background()) })

	jwt := auth.NewJWTService(auth.DefaultJWTConfig("test-secret"))
	router := NewRouter(RouterConfig{
		AppName: "codeart",
		Version: "test",
		Pool:    pool,
		Logger:  logger.Nop(),
		JWT:     jwt,
		Orders:  order.NewService(memory.NewOrderRepo(store), nil),
		HealthChecks: map[string]handlers.Check{
			"storage": func(context.Context) error { return nil },
		},
	})
	return &testServer{t: t, store: store, pool: pool, router: router, jwt: jwt}
}

func (s *testServer) do(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	s.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (s *testServer) createOrder(customer string) dto.OrderResponse {
	s.t.Helper()
	w := s.do(http.MethodPost, "/api/v1/orders", map[string]any{
		"customer": customer, "total": "10.50", "currency": "EUR",
	})
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[dto.OrderResponse](s.t, w)
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/health/live", nil).Code)

	ready := s.do(http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, ready.Code)
	assert.Contains(t, ready.Body.String(), `"storage":"healthy"`)

	info := decode[map[string]any](t, s.do(http.MethodGet, "/health/info", nil))
	assert.Equal(t, "codeart", info["app"])
	assert.Contains(t, info, "data_context")
}

func TestOrderLifecycle(t *testing.T) {
	s := newTestServer(t)

	created := s.createOrder("Acme")
	assert.Equal(t, "draft", created.Status)
	assert.Equal(t, 1, created.Version)
	assert.True(t, strings.HasPrefix(created.Number, "ORD-"), created.Number)
	assert.Equal(t, 1, s.store.Commits())

	got := s.do(http.MethodGet, "/api/v1/orders/"+created.ID+"?level=ReadOnly", nil)
	require.Equal(t, http.StatusOK, got.Code)
	assert.Equal(t, "Acme", decode[dto.OrderResponse](t, got).Customer)

	confirmed := s.do(http.MethodPost, "/api/v1/orders/"+created.ID+"/confirm", nil)
	require.Equal(t, http.StatusOK, confirmed.Code, confirmed.Body.String())
	assert.Equal(t, 2, decode[dto.OrderResponse](t, confirmed).Version)

	rejected := s.do(http.MethodDelete, "/api/v1/orders/"+created.ID, nil)
	assert.Equal(t, http.StatusBadRequest, rejected.Code)

	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/v1/orders/"+created.ID+"/cancel", nil).Code)
	assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, "/api/v1/orders/"+created.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/v1/orders/"+created.ID, nil).Code)
}

func TestLockingReadsRunInOwnTransaction(t *testing.T) {
	s := newTestServer(t)
	created := s.createOrder("Acme")

	for _, level := range []string{"single", "HoldSingle", "share", "mirroring"} {
		w := s.do(http.MethodGet, "/api/v1/orders/"+created.ID+"?level="+level, nil)
		assert.Equal(t, http.StatusOK, w.Code, level)
	}
	list := s.do(http.MethodGet, "/api/v1/orders?level=single", nil)
	assert.Equal(t, http.StatusOK, list.Code)

	after := decode[dto.OrderResponse](t, s.do(http.MethodGet, "/api/v1/orders/"+created.ID, nil))
	assert.Equal(t, 1, after.Version, "locking reads do not write")
}

func TestUpdateWithStaleVersionConflicts(t *testing.T) {
	s := newTestServer(t)
	created := s.createOrder("Acme")

	stale := s.do(http.MethodPut, "/api/v1/orders/"+created.ID, map[string]any{"customer": "Globex", "version": 7})
	assert.Equal(t, http.StatusConflict, stale.Code)

	ok := s.do(http.MethodPut, "/api/v1/orders/"+created.ID, map[string]any{"customer": "Globex", "version": 1})
	require.Equal(t, http.StatusOK, ok.Code, ok.Body.String())
	updated := decode[dto.OrderResponse](t, ok)
	assert.Equal(t, "Globex", updated.Customer)
	assert.Equal(t, 2, updated.Version)
}

func TestBadRequests(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"malformed id", http.MethodGet, "/api/v1/orders/nope", nil, http.StatusBadRequest},
		{"unknown level", http.MethodGet, "/api/v1/orders?level=Exclusive", nil, http.StatusBadRequest},
		{"unknown filter field", http.MethodGet, "/api/v1/orders?filter=" + url.QueryEscape(`[{"field":"secret","operator":"eq","value":1}]`), nil, http.StatusBadRequest},
		{"missing customer", http.MethodPost, "/api/v1/orders", map[string]any{"currency": "EUR"}, http.StatusBadRequest},
		{"negative total", http.MethodPost, "/api/v1/orders", map[string]any{"customer": "A", "currency": "EUR", "total": -1}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestBatchCreateIsAtomic(t *testing.T) {
	s := newTestServer(t)

	bad := s.do(http.MethodPost, "/api/v1/orders/batch", map[string]any{"orders": []map[string]any{
		{"customer": "Acme", "currency": "EUR", "total": 1},
		{"customer": "Globex", "currency": "EUR", "total": -1},
	}})
	assert.Equal(t, http.StatusUnprocessableEntity, bad.Code)
	assert.Zero(t, s.store.Commits())

	good := s.do(http.MethodPost, "/api/v1/orders/batch", map[string]any{"orders": []map[string]any{
		{"customer": "Acme", "currency": "EUR", "total": 1},
		{"customer": "Globex", "currency": "USD", "total": 2},
	}})
	require.Equal(t, http.StatusCreated, good.Code, good.Body.String())
	assert.Len(t, decode[[]dto.OrderResponse](t, good), 2)
	assert.Equal(t, 1, s.store.Commits(), "one storage transaction for the batch")

	list := decode[dto.GenericListResponse[dto.OrderResponse]](t, s.do(http.MethodGet, "/api/v1/orders?orderBy=-total&pageSize=1", nil))
	require.Len(t, list.Data, 1)
	assert.Equal(t, "Globex", list.Data[0].Customer)
	assert.Equal(t, 2, list.Pagination.TotalItems)
	assert.Equal(t, 2, list.Pagination.TotalPages)
}

func TestSessions(t *testing.T) {
	s := newTestServer(t)

	anon := s.do(http.MethodGet, "/api/v1/orders", nil)
	require.Equal(t, http.StatusOK, anon.Code)
	assert.True(t, strings.HasPrefix(anon.Header().Get("X-Session-ID"), "anon-"))

	named := s.do(http.MethodGet, "/api/v1/orders", nil, "X-Session-ID", "s-42")
	assert.Equal(t, "s-42", named.Header().Get("X-Session-ID"))

	issued := s.do(http.MethodPost, "/api/v1/auth/session", map[string]any{"subject": "alice"})
	require.Equal(t, http.StatusCreated, issued.Code)
	token := decode[map[string]any](t, issued)["token"].(string)

	authed := s.do(http.MethodGet, "/api/v1/orders", nil, "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, authed.Code)
	session, err := s.jwt.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, session.SessionID, authed.Header().Get("X-Session-ID"))

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/v1/orders", nil, "Authorization", "Bearer junk").Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/v1/orders", nil, "Authorization", "Basic abc").Code)

	assert.Zero(t, s.pool.Stats().Active, "every request released its context")
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.createOrder("Acme")

	w := s.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "codeart_http_requests_total")
}
