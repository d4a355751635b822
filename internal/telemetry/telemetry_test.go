package telemetry

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/grants"
	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/source"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(recordsIngestedTotal.WithLabelValues("detail"))
	ObserveIngested(grants.TierDetail)
	require.Equal(t, before+1, testutil.ToFloat64(recordsIngestedTotal.WithLabelValues("detail")))

	before = testutil.ToFloat64(sourceAttemptsTotal.WithLabelValues("scrape", "transient_failure"))
	ObserveSourceAttempt(grants.TierScrape, source.OutcomeTransient)
	require.Equal(t, before+1, testutil.ToFloat64(sourceAttemptsTotal.WithLabelValues("scrape", "transient_failure")))

	before = testutil.ToFloat64(recordsRejectedTotal.WithLabelValues("missing_id"))
	ObserveRejected("missing_id")
	require.Equal(t, before+1, testutil.ToFloat64(recordsRejectedTotal.WithLabelValues("missing_id")))
}

func TestMiddlewareRecordsRequests(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/grants", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/grants", nil)
	rec := httptest.NewRecorder()
	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200"))
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, before+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200")))
}
