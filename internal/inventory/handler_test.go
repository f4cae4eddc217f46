package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/stockpilot/stockpilot/internal/idempotency"
)

type memoryKeyStore struct {
	mu      sync.Mutex
	records map[string]*idempotency.Record
}

func newMemoryKeyStore() *memoryKeyStore {
	return &memoryKeyStore{records: make(map[string]*idempotency.Record)}
}

func (s *memoryKeyStore) Claim(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[key]; ok {
		return false, nil
	}
	s.records[key] = &idempotency.Record{Key: key}
	return true, nil
}

func (s *memoryKeyStore) Get(ctx context.Context, key string) (idempotency.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		return idempotency.Record{}, false, nil
	}
	return *rec, true, nil
}

func (s *memoryKeyStore) StoreResponse(ctx context.Context, key string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[key]; ok {
		rec.ResponseBody = body
	}
	return nil
}

func (s *memoryKeyStore) Touch(ctx context.Context, key string) error { return nil }

func (s *memoryKeyStore) Release(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

func newTestRouter(t *testing.T, repo *memoryRepo) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(testingWriter{t}, nil))
	handler := NewHandler(logger, NewService(repo))
	idem := idempotency.NewMiddleware(newMemoryKeyStore(), logger, 0)
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		handler.MountRoutes(r, idem.Handle)
	})
	return r
}

type testingWriter struct{ t *testing.T }

func (w testingWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}

func postJSON(t *testing.T, router http.Handler, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleInbound(t *testing.T) {
	repo := newMemoryRepo()
	router := newTestRouter(t, repo)
	locA, itemX := uuid.New(), uuid.New()

	body := fmt.Sprintf(`{"locationId":%q,"itemId":%q,"quantity":100}`, locA, itemX)
	rec := postJSON(t, router, "/api/inventory/inbound", body, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"transactionGroupId"`)
	require.EqualValues(t, 100, repo.balance(t, locA, itemX))
}

func TestHandleInboundValidation(t *testing.T) {
	router := newTestRouter(t, newMemoryRepo())

	rec := postJSON(t, router, "/api/inventory/inbound", `{"quantity":5}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := fmt.Sprintf(`{"locationId":%q,"itemId":%q,"quantity":-1}`, uuid.New(), uuid.New())
	rec = postJSON(t, router, "/api/inventory/inbound", body, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, router, "/api/inventory/inbound", `not json`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleTransferErrors(t *testing.T) {
	repo := newMemoryRepo()
	router := newTestRouter(t, repo)
	locA, locB, itemX := uuid.New(), uuid.New(), uuid.New()

	same := fmt.Sprintf(`{"fromLocationId":%q,"toLocationId":%q,"itemId":%q,"quantity":1}`, locA, locA, itemX)
	rec := postJSON(t, router, "/api/inventory/transfer", same, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	short := fmt.Sprintf(`{"fromLocationId":%q,"toLocationId":%q,"itemId":%q,"quantity":9999}`, locA, locB, itemX)
	rec = postJSON(t, router, "/api/inventory/transfer", short, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "available 0, requested 9999")
}

func TestTransferIdempotencyReplay(t *testing.T) {
	repo := newMemoryRepo()
	router := newTestRouter(t, repo)
	locA, locB, itemX := uuid.New(), uuid.New(), uuid.New()

	seed := fmt.Sprintf(`{"locationId":%q,"itemId":%q,"quantity":100}`, locA, itemX)
	require.Equal(t, http.StatusOK, postJSON(t, router, "/api/inventory/inbound", seed, nil).Code)

	transfer := fmt.Sprintf(`{"fromLocationId":%q,"toLocationId":%q,"itemId":%q,"quantity":40}`, locA, locB, itemX)
	headers := map[string]string{idempotency.HeaderName: "txn-123"}

	first := postJSON(t, router, "/api/inventory/transfer", transfer, headers)
	require.Equal(t, http.StatusOK, first.Code)

	second := postJSON(t, router, "/api/inventory/transfer", transfer, headers)
	require.Equal(t, http.StatusOK, second.Code)
	require.Equal(t, first.Body.String(), second.Body.String())

	// The balance moved exactly once.
	require.EqualValues(t, 60, repo.balance(t, locA, itemX))
	require.EqualValues(t, 40, repo.balance(t, locB, itemX))
	require.Len(t, repo.ledger, 3)
}

func TestHandleListStock(t *testing.T) {
	repo := newMemoryRepo()
	router := newTestRouter(t, repo)
	locA, itemX := uuid.New(), uuid.New()

	seed := fmt.Sprintf(`{"locationId":%q,"itemId":%q,"quantity":7}`, locA, itemX)
	require.Equal(t, http.StatusOK, postJSON(t, router, "/api/inventory/inbound", seed, nil).Code)

	req := httptest.NewRequest(http.MethodGet, "/api/stock?locationId="+locA.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"quantity":7`)

	req = httptest.NewRequest(http.MethodGet, "/api/stock?locationId=nope", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
