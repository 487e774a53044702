package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/go-resty/resty/v2"

	"github.com/MKhiriev/go-pos-keeper/internal/config"
	"github.com/MKhiriev/go-pos-keeper/internal/logger"
	"github.com/MKhiriev/go-pos-keeper/internal/utils"
	"github.com/MKhiriev/go-pos-keeper/models"
)

const (
	headerTenantID       = "X-Tenant-ID"
	headerIdempotencyKey = "Idempotency-Key"
	headerIfMatch        = "If-Match"
)

type httpRemoteBackend struct {
	client *utils.HTTPClient

	mu    sync.RWMutex
	token string

	logger *logger.Logger
}

// NewHTTPRemoteBackend constructs an HTTP/REST implementation of
// [RemoteBackend]. It normalises and validates the base URL from
// adapterCfg.HTTPAddress and bounds every request by adapterCfg.RequestTimeout.
//
// Routes, per collection (products, customers, transactions):
//
//	POST   /api/{collection}/      create
//	PATCH  /api/{collection}/{id}  update (JSON object patch)
//	DELETE /api/{collection}/{id}  delete
//	GET    /api/{collection}/      list the tenant's collection
func NewHTTPRemoteBackend(adapterCfg config.ClientAdapter, logger *logger.Logger) (RemoteBackend, error) {
	baseURL, err := normalizeBaseURL(adapterCfg.HTTPAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid adapter http address: %w", err)
	}

	h := &httpRemoteBackend{
		client: utils.NewJSONClient(baseURL, adapterCfg.RequestTimeout),
		logger: logger,
	}
	h.SetToken(adapterCfg.Token)

	return h, nil
}

func normalizeBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty address")
	}

	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("address must include host and scheme")
	}

	return strings.TrimRight(u.String(), "/"), nil
}

// TenantFromToken returns the tenant the bearer token was issued for.
func TenantFromToken(token string) (string, error) {
	tenantID, err := utils.ParseTenantIDFromJWT(stripBearer(token))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	return tenantID, nil
}

func (h *httpRemoteBackend) SetToken(token string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.token = stripBearer(token)
}

// stripBearer accepts a token given either bare or as "Bearer <token>".
func stripBearer(token string) string {
	if raw, err := utils.ParseBearerToken(token); err == nil {
		return raw
	}
	return strings.TrimSpace(token)
}

func (h *httpRemoteBackend) Token() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.token
}

func (h *httpRemoteBackend) Create(ctx context.Context, kind models.EntityKind, tenantID string, rec models.Record) (models.Record, error) {
	path, err := collectionPath(kind)
	if err != nil {
		return models.Record{}, err
	}

	resp, err := h.tenantRequest(ctx, tenantID).
		SetBody(rec).
		Post(path + "/")
	if err != nil {
		return models.Record{}, fmt.Errorf("%w: create request: %w", ErrRemoteUnavailable, err)
	}
	if err = mapHTTPError(resp); err != nil {
		return models.Record{}, err
	}

	return h.decodeRecord(ctx, resp, tenantID)
}

func (h *httpRemoteBackend) Update(ctx context.Context, kind models.EntityKind, tenantID, id string, patch json.RawMessage, version int64) (models.Record, error) {
	path, err := collectionPath(kind)
	if err != nil {
		return models.Record{}, err
	}

	req := h.tenantRequest(ctx, tenantID).
		SetPathParam("id", id).
		SetBody(patch)
	setVersion(req, version)

	resp, err := req.Patch(path + "/{id}")
	if err != nil {
		return models.Record{}, fmt.Errorf("%w: update request: %w", ErrRemoteUnavailable, err)
	}
	if err = mapHTTPError(resp); err != nil {
		return models.Record{}, err
	}

	return h.decodeRecord(ctx, resp, tenantID)
}

func (h *httpRemoteBackend) Delete(ctx context.Context, kind models.EntityKind, tenantID, id string, version int64) error {
	path, err := collectionPath(kind)
	if err != nil {
		return err
	}

	req := h.tenantRequest(ctx, tenantID).SetPathParam("id", id)
	setVersion(req, version)

	resp, err := req.Delete(path + "/{id}")
	if err != nil {
		return fmt.Errorf("%w: delete request: %w", ErrRemoteUnavailable, err)
	}

	return mapHTTPError(resp)
}

func (h *httpRemoteBackend) ListAll(ctx context.Context, kind models.EntityKind, tenantID string) ([]models.Record, error) {
	path, err := collectionPath(kind)
	if err != nil {
		return nil, err
	}

	resp, err := h.tenantRequest(ctx, tenantID).Get(path + "/")
	if err != nil {
		return nil, fmt.Errorf("%w: list request: %w", ErrRemoteUnavailable, err)
	}
	if err = mapHTTPError(resp); err != nil {
		return nil, err
	}

	records := make([]models.Record, 0)
	if err = json.Unmarshal(resp.Body(), &records); err != nil {
		return nil, fmt.Errorf("%w: decode %s list: %w", ErrRemoteRejected, kind, err)
	}

	for i := range records {
		if records[i].TenantID == "" {
			records[i].TenantID = tenantID
		}
	}

	return records, nil
}

func (h *httpRemoteBackend) tenantRequest(ctx context.Context, tenantID string) *resty.Request {
	req := h.client.R().
		SetContext(ctx).
		SetHeader(headerTenantID, tenantID)

	if token := h.Token(); token != "" {
		req.SetAuthToken(token)
	}
	if key, ok := utils.GetIdempotencyKeyFromContext(ctx); ok {
		req.SetHeader(headerIdempotencyKey, key)
	}

	return req
}

// decodeRecord reads the record in a write response. An empty or unreadable
// body yields the zero record: the write itself succeeded.
func (h *httpRemoteBackend) decodeRecord(ctx context.Context, resp *resty.Response, tenantID string) (models.Record, error) {
	body := resp.Body()
	if len(strings.TrimSpace(string(body))) == 0 {
		return models.Record{}, nil
	}

	var rec models.Record
	if err := json.Unmarshal(body, &rec); err != nil {
		logger.FromContext(ctx).Warn().Err(err).
			Str("func", "httpRemoteBackend.decodeRecord").
			Str("tenant_id", tenantID).
			Msg("ignoring unreadable write response body")
		return models.Record{}, nil
	}
	if rec.TenantID == "" {
		rec.TenantID = tenantID
	}

	return rec, nil
}

func collectionPath(kind models.EntityKind) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("%w: unknown entity kind %q", ErrRemoteRejected, kind)
	}
	return "/api/" + string(kind.Collection()), nil
}

func setVersion(req *resty.Request, version int64) {
	if version > 0 {
		req.SetHeader(headerIfMatch, strconv.FormatInt(version, 10))
	}
}

// IsRetryable reports whether err from a [RemoteBackend] call may succeed
// when repeated unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRemoteUnavailable)
}
