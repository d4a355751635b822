package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/grants"
	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/store/memory"
)

func TestServer_ListGrants_Envelope(t *testing.T) {
	t.Parallel()

	store := memory.New(nil)
	for i := 0; i < 25; i++ {
		require.NoError(t, store.Upsert(context.Background(), grants.Opportunity{
			ID:    "op-" + strconv.Itoa(i),
			Title: "Research Grant " + strconv.Itoa(i),
		}))
	}
	server := newTestServer(store)

	req := httptest.NewRequest(http.MethodGet, "/grants?page=2&limit=10", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 25, resp.Pagination.Total)
	require.Equal(t, 2, resp.Pagination.Page)
	require.Equal(t, 10, resp.Pagination.Limit)
	require.Equal(t, 3, resp.Pagination.Pages)
	require.Len(t, resp.Grants, 10)
}

func TestServer_ListGrants_EmptyStoreReturnsEmptyArray(t *testing.T) {
	t.Parallel()

	server := newTestServer(memory.New(nil))
	req := httptest.NewRequest(http.MethodGet, "/grants", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"grants":[]`)
}

func TestServer_ListGrants_ClampsBadParams(t *testing.T) {
	t.Parallel()

	store := memory.New(nil)
	require.NoError(t, store.Upsert(context.Background(), grants.Opportunity{ID: "1", Title: "t"}))
	server := newTestServer(store)

	req := httptest.NewRequest(http.MethodGet, "/grants?page=-3&limit=999999", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Pagination.Page)
	require.Equal(t, maxPageLimit, resp.Pagination.Limit)
}

func TestServer_ListGrants_Filters(t *testing.T) {
	t.Parallel()

	store := memory.New(nil)
	require.NoError(t, store.Upsert(context.Background(), grants.Opportunity{
		ID: "1", Title: "STEM Education Program", AgencyCode: "ED", Status: grants.StatusPosted,
	}))
	require.NoError(t, store.Upsert(context.Background(), grants.Opportunity{
		ID: "2", Title: "Rural Health Outreach", AgencyCode: "HHS", Status: grants.StatusClosed,
	}))
	server := newTestServer(store)

	req := httptest.NewRequest(http.MethodGet, "/grants?search=education&agency=ED&status=posted", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Pagination.Total)
	require.Equal(t, "1", resp.Grants[0].ID)
}

func TestServer_ListGrants_HTMLDashboard(t *testing.T) {
	t.Parallel()

	store := memory.New(nil)
	require.NoError(t, store.Upsert(context.Background(), grants.Opportunity{
		ID: "351423", Title: "Coastal Resilience <Fund>", AgencyName: "NOAA",
	}))
	server := newTestServer(store)

	req := httptest.NewRequest(http.MethodGet, "/grants?format=html", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	require.Contains(t, rec.Body.String(), "351423")
	// template escaping keeps raw markup out of the page
	require.Contains(t, rec.Body.String(), "Coastal Resilience &lt;Fund&gt;")
}

func TestServer_GetGrant_ReturnsRecord(t *testing.T) {
	t.Parallel()

	store := memory.New(nil)
	require.NoError(t, store.Upsert(context.Background(), grants.Opportunity{
		ID: "351423", Title: "Coastal Resilience Fund", AgencyName: "NOAA",
	}))
	server := newTestServer(store)

	req := httptest.NewRequest(http.MethodGet, "/grants/351423", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Coastal Resilience Fund")
}

func TestServer_GetGrant_MissingIsNotFound(t *testing.T) {
	t.Parallel()

	server := newTestServer(memory.New(nil))
	req := httptest.NewRequest(http.MethodGet, "/grants/nope", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "not found")
}

func TestServer_Health_ReportsComponents(t *testing.T) {
	t.Parallel()

	checks := map[string]HealthChecker{
		"database": func(context.Context) error { return nil },
	}
	server := NewServer(memory.New(nil), checks, Config{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"database":"ok"`)
	require.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestServer_Health_FailingComponentIs503(t *testing.T) {
	t.Parallel()

	checks := map[string]HealthChecker{
		"database": func(context.Context) error { return errors.New("connection refused") },
	}
	server := NewServer(memory.New(nil), checks, Config{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "connection refused")
	require.Contains(t, rec.Body.String(), `"status":"error"`)
}

func TestServer_APIKeyMiddleware(t *testing.T) {
	t.Parallel()

	server := NewServer(memory.New(nil), nil, Config{APIKey: "secret"}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/grants", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/grants", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// health stays open for probes
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	t.Parallel()

	server := newTestServer(memory.New(nil))
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "go_goroutines") ||
		strings.Contains(rec.Body.String(), "http_requests_total"))
}

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	newTestServer(memory.New(nil)).Handler().ServeHTTP(rec, req)

	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	if _, _, err := rw.Hijack(); err == nil || err.Error() != "hijacker not supported" {
		t.Fatalf("expected unsupported hijacker error, got %v", err)
	}

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	if err != nil {
		t.Fatalf("expected successful hijack, got %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close hijacked conn: %v", err)
	}
	if err := h.CloseClient(); err != nil {
		t.Fatalf("close hijacked client: %v", err)
	}
	if buf == nil {
		t.Fatal("expected buf to be non-nil")
	}
}

// --- helpers/fakes ---

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			return fmt.Errorf("close hijacker client: %w", err)
		}
	}
	return nil
}

func newTestServer(store grants.Store) *Server {
	checks := map[string]HealthChecker{
		"store": store.Ping,
	}
	return NewServer(store, checks, Config{RequestTimeout: 30 * time.Second}, zap.NewNop())
}
