// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MKhiriev/go-pos-keeper/internal/config"
	"github.com/MKhiriev/go-pos-keeper/internal/logger"
	"github.com/MKhiriev/go-pos-keeper/internal/utils"
	"github.com/MKhiriev/go-pos-keeper/models"
)

// newTestBackend creates an httpRemoteBackend pointed at the test server.
func newTestBackend(t *testing.T, serverURL string) *httpRemoteBackend {
	t.Helper()
	adapterCfg := config.ClientAdapter{
		HTTPAddress:    serverURL,
		RequestTimeout: 2 * time.Second,
		Token:          "test-token",
	}

	b, err := NewHTTPRemoteBackend(adapterCfg, logger.Nop())
	require.NoError(t, err)
	return b.(*httpRemoteBackend)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ── Create ──────────────────────────────────────────────────────────────────

func TestCreate_Success(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/api/products/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "shop-1", r.Header.Get(headerTenantID))
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "key-1", r.Header.Get(headerIdempotencyKey))

		var rec models.Record
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&rec))
		assert.Equal(t, "p1", rec.ID)
		assert.JSONEq(t, `{"price":10}`, string(rec.Payload))

		rec.Version = 1
		writeJSON(w, http.StatusCreated, rec)
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	b := newTestBackend(t, srv.URL)
	ctx := utils.WithIdempotencyKey(context.Background(), "key-1")

	got, err := b.Create(ctx, models.Product, "shop-1", models.Record{
		ID: "p1", TenantID: "shop-1", Payload: json.RawMessage(`{"price":10}`),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, "shop-1", got.TenantID)
}

func TestCreate_EmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	got, err := newTestBackend(t, srv.URL).Create(context.Background(), models.Customer, "shop-1", models.Record{ID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, models.Record{}, got)
}

// ── Update / Delete ─────────────────────────────────────────────────────────

func TestUpdate_SendsPatchAndVersion(t *testing.T) {
	r := chi.NewRouter()
	r.Patch("/api/products/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "p1", chi.URLParam(r, "id"))
		assert.Equal(t, "3", r.Header.Get(headerIfMatch))

		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"stock":5}`, string(body))

		writeJSON(w, http.StatusOK, map[string]any{"id": "p1", "payload": map[string]int{"stock": 5}, "version": 4})
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	got, err := newTestBackend(t, srv.URL).Update(context.Background(), models.Product, "shop-1", "p1", json.RawMessage(`{"stock":5}`), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.Version)
}

func TestUpdate_Conflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, map[string]any{"id": "p1", "payload": map[string]int{"stock": 3}})
	}))
	defer srv.Close()

	_, err := newTestBackend(t, srv.URL).Update(context.Background(), models.Product, "shop-1", "p1", json.RawMessage(`{"stock":5}`), 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)

	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.JSONEq(t, `{"id":"p1","payload":{"stock":3}}`, string(conflict.ServerPayload))
	assert.False(t, IsRetryable(err))
}

func TestDelete_NoVersionHeader(t *testing.T) {
	r := chi.NewRouter()
	r.Delete("/api/customers/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "c1", chi.URLParam(r, "id"))
		assert.Empty(t, r.Header.Get(headerIfMatch))
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	require.NoError(t, newTestBackend(t, srv.URL).Delete(context.Background(), models.Customer, "shop-1", "c1", 0))
}

// ── ListAll ─────────────────────────────────────────────────────────────────

func TestListAll_FillsTenant(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/transactions/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "shop-1", r.Header.Get(headerTenantID))
		writeJSON(w, http.StatusOK, []map[string]any{
			{"id": "tx1", "payload": map[string]int{"total": 5}},
			{"id": "tx2", "tenant_id": "shop-1", "payload": map[string]int{"total": 7}},
		})
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	got, err := newTestBackend(t, srv.URL).ListAll(context.Background(), models.Transaction, "shop-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "shop-1", got[0].TenantID)
	assert.Equal(t, "tx2", got[1].ID)
}

func TestListAll_InvalidBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	_, err := newTestBackend(t, srv.URL).ListAll(context.Background(), models.Product, "shop-1")
	assert.ErrorIs(t, err, ErrRemoteRejected)
}

// ── error mapping ───────────────────────────────────────────────────────────

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		status    int
		want      error
		retryable bool
	}{
		{status: http.StatusInternalServerError, want: ErrRemoteUnavailable, retryable: true},
		{status: http.StatusBadGateway, want: ErrRemoteUnavailable, retryable: true},
		{status: http.StatusServiceUnavailable, want: ErrRemoteUnavailable, retryable: true},
		{status: http.StatusRequestTimeout, want: ErrRemoteUnavailable, retryable: true},
		{status: http.StatusTooManyRequests, want: ErrRemoteUnavailable, retryable: true},
		{status: http.StatusBadRequest, want: ErrRemoteRejected},
		{status: http.StatusUnprocessableEntity, want: ErrRemoteRejected},
		{status: http.StatusNotFound, want: ErrRemoteRejected},
		{status: http.StatusUnauthorized, want: ErrUnauthorized},
		{status: http.StatusConflict, want: ErrConflict},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			err := newTestBackend(t, srv.URL).Delete(context.Background(), models.Product, "shop-1", "p1", 0)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.retryable, IsRetryable(err))
		})
	}
}

func TestUnauthorizedIsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := newTestBackend(t, srv.URL).Delete(context.Background(), models.Product, "shop-1", "p1", 0)
	assert.ErrorIs(t, err, ErrRemoteRejected)
}

func TestTransportErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newTestBackend(t, url).Create(context.Background(), models.Product, "shop-1", models.Record{ID: "p1"})
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestTimeoutIsRetryable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	b := newTestBackend(t, srv.URL)
	b.client.SetTimeout(50 * time.Millisecond)

	_, err := b.ListAll(context.Background(), models.Product, "shop-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRemoteUnavailable)
}

func TestUnknownKind(t *testing.T) {
	b := newTestBackend(t, "http://localhost:1")

	_, err := b.ListAll(context.Background(), models.EntityKind("employee"), "shop-1")
	assert.ErrorIs(t, err, ErrRemoteRejected)
}

// ── misc ────────────────────────────────────────────────────────────────────

func TestNormalizeBaseURL(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "localhost:8080", want: "http://localhost:8080"},
		{raw: " https://pos.example.com/ ", want: "https://pos.example.com"},
		{raw: "", wantErr: true},
		{raw: "http://", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := normalizeBaseURL(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSetToken(t *testing.T) {
	b := newTestBackend(t, "http://localhost:1")
	assert.Equal(t, "test-token", b.Token())

	b.SetToken("  other  ")
	assert.Equal(t, "other", b.Token())

	b.SetToken("Bearer abc.def")
	assert.Equal(t, "abc.def", b.Token())
}

func TestTenantFromToken(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"tenant_id": "shop-1"}).SignedString([]byte("k"))
	require.NoError(t, err)

	tenantID, err := TenantFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, "shop-1", tenantID)

	tenantID, err = TenantFromToken("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, "shop-1", tenantID)

	_, err = TenantFromToken("garbage")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestConflictErrorMessage(t *testing.T) {
	assert.Equal(t, "version conflict", (&ConflictError{}).Error())
	assert.Contains(t, newConflictError([]byte("stale")).Error(), "stale")
	assert.Nil(t, newConflictError([]byte("stale")).ServerPayload)
}
