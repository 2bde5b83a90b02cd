package metrics_test

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tsbundle/tsb/internal/metrics"
)

func TestRegistryHandlerExposesCounters(t *testing.T) {
	r := metrics.New()
	r.ModulesRefined.Add(3)
	r.CacheHits.Inc()
	r.CacheMisses.Inc()
	r.ErrorsTotal.Inc()
	r.InFlightRefine.Set(2)
	r.MemCacheBytes.Set(1024)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	r.Handler().ServeHTTP(w, req)

	assert.Equal(t, 200, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "tsb_modules_refined_total 3")
	assert.Contains(t, body, "tsb_cache_hits_total 1")
	assert.Contains(t, body, "tsb_cache_misses_total 1")
	assert.Contains(t, body, "tsb_errors_total 1")
	assert.Contains(t, body, "tsb_refinements_in_flight 2")
	assert.Contains(t, body, "tsb_mem_cache_bytes 1024")
}
