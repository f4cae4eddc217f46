package idempotency

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/stockpilot/stockpilot/internal/platform/httpx"
)

// HeaderName carries the client's idempotency key.
const HeaderName = "Idempotency-Key"

// StorePort abstracts the store for the middleware.
type StorePort interface {
	Claim(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) (Record, bool, error)
	StoreResponse(ctx context.Context, key string, body []byte) error
	Touch(ctx context.Context, key string) error
	Release(ctx context.Context, key string) error
}

// Middleware deduplicates write requests by idempotency key. Requests
// without a key pass through untouched; idempotency is opt-in.
type Middleware struct {
	store     StorePort
	logger    *slog.Logger
	wait      time.Duration
	pollEvery time.Duration
}

// NewMiddleware constructs Middleware. wait bounds how long a losing
// concurrent request polls for the winner's stored response.
func NewMiddleware(store StorePort, logger *slog.Logger, wait time.Duration) *Middleware {
	if wait <= 0 {
		wait = 2 * time.Second
	}
	return &Middleware{store: store, logger: logger, wait: wait, pollEvery: 100 * time.Millisecond}
}

// Handle wraps a write handler. The key claim happens before the handler
// runs, so two concurrent requests with the same key execute the operation
// exactly once: the claim loser replays the winner's stored response.
func (m *Middleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(HeaderName))
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}

		claimed, err := m.store.Claim(r.Context(), key)
		if err != nil {
			m.logger.Error("idempotency claim failed", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
			return
		}
		if !claimed {
			m.replay(w, r, key)
			return
		}

		recorder := &responseBuffer{header: http.Header{}, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		if recorder.status >= 200 && recorder.status < 300 {
			if err := m.store.StoreResponse(r.Context(), key, recorder.body.Bytes()); err != nil {
				m.logger.Error("idempotency store response failed", slog.String("key", key), slog.Any("error", err))
			}
		} else {
			// Failed executions are not memoised; the retry re-runs the
			// operation under the same key.
			if err := m.store.Release(r.Context(), key); err != nil {
				m.logger.Error("idempotency release failed", slog.String("key", key), slog.Any("error", err))
			}
		}
		recorder.copyTo(w)
	})
}

// replay serves the stored response for an already-claimed key, polling
// briefly when the claiming request is still in flight.
func (m *Middleware) replay(w http.ResponseWriter, r *http.Request, key string) {
	deadline := time.Now().Add(m.wait)
	for {
		rec, found, err := m.store.Get(r.Context(), key)
		if err != nil {
			m.logger.Error("idempotency lookup failed", slog.String("key", key), slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
			return
		}
		if found && rec.ResponseBody != nil {
			if err := m.store.Touch(r.Context(), key); err != nil {
				m.logger.Warn("idempotency touch failed", slog.String("key", key), slog.Any("error", err))
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(rec.ResponseBody)
			return
		}
		if !found {
			// The claim was released after a failed execution; the client
			// should retry.
			httpx.Problem(w, http.StatusConflict, "Request Failed", "a previous request with this idempotency key failed; retry")
			return
		}
		if time.Now().After(deadline) {
			httpx.Problem(w, http.StatusConflict, "Request In Progress", "a request with this idempotency key is still being processed")
			return
		}
		select {
		case <-r.Context().Done():
			return
		case <-time.After(m.pollEvery):
		}
	}
}

type responseBuffer struct {
	header http.Header
	body   bytes.Buffer
	status int
}

func (b *responseBuffer) Header() http.Header { return b.header }

func (b *responseBuffer) WriteHeader(status int) { b.status = status }

func (b *responseBuffer) Write(data []byte) (int, error) { return b.body.Write(data) }

func (b *responseBuffer) copyTo(w http.ResponseWriter) {
	for k, values := range b.header {
		for _, v := range values {
			w.Header()[k] = append(w.Header()[k], v)
		}
	}
	w.WriteHeader(b.status)
	_, _ = w.Write(b.body.Bytes())
}
