package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/runway/internal/cache"
	"github.com/ZanzyTHEbar/runway/internal/database"
	"github.com/ZanzyTHEbar/runway/internal/intake"
	"github.com/ZanzyTHEbar/runway/internal/model"
	"github.com/ZanzyTHEbar/runway/internal/monitoring"
	"github.com/ZanzyTHEbar/runway/internal/privacy"
	"github.com/ZanzyTHEbar/runway/internal/ratelimit"
	"github.com/ZanzyTHEbar/runway/internal/scoring"
	"github.com/ZanzyTHEbar/runway/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newScorer(t *testing.T, names []string, weights []float64) *scoring.Scorer {
	t.Helper()
	schema, err := model.NewSchema(names)
	require.NoError(t, err)
	m, err := model.New(schema, weights, 0, "test-model")
	require.NoError(t, err)
	return scoring.NewScorer(m)
}

func baseOptions(t *testing.T) Options {
	return Options{
		Scorer:  newScorer(t, []string{"a", "b"}, []float64{2, -1}),
		Metrics: monitoring.NewMetrics(),
		Cache:   cache.NewCache(0),
	}
}

func withAudit(t *testing.T, opts Options) Options {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "runway.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	audit := database.NewAuditService(database.NewRepository(db), opts.Metrics, 16)
	t.Cleanup(audit.Close)
	opts.Audit = audit
	return opts
}

func do(r http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestSystemEndpoints(t *testing.T) {
	r := NewRouter(baseOptions(t))

	tests := []struct {
		name   string
		method string
		path   string
		status int
	}{
		{name: "root", method: http.MethodGet, path: "/", status: http.StatusOK},
		{name: "health", method: http.MethodGet, path: "/health", status: http.StatusOK},
		{name: "metrics", method: http.MethodGet, path: "/metrics", status: http.StatusOK},
		{name: "cache stats", method: http.MethodGet, path: "/cache/stats", status: http.StatusOK},
		{name: "POST /health not found", method: http.MethodPost, path: "/health", status: http.StatusNotFound},
		{name: "unknown route", method: http.MethodGet, path: "/nope", status: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, tt.method, tt.path, "")
			assert.Equal(t, tt.status, w.Code)
			assert.NotEmpty(t, w.Header().Get(monitoring.RequestIDHeader))
		})
	}
}

func TestHealth_ReportsModelAndDependencies(t *testing.T) {
	r := NewRouter(baseOptions(t))

	body := decode(t, do(r, http.MethodGet, "/health", ""))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test-model", body["model_version"])
	assert.Equal(t, float64(2), body["feature_count"])
	assert.Equal(t, map[string]any{"redis": "disabled", "nats": "disabled", "audit": "disabled"}, body["dependencies"])
}

func TestFeaturesAndModel(t *testing.T) {
	r := NewRouter(baseOptions(t))

	features := decode(t, do(r, http.MethodGet, "/features", ""))
	assert.Equal(t, []any{"a", "b"}, features["required_features"])
	assert.Equal(t, map[string]any{"a": "a", "b": "b"}, features["labels"])

	m := decode(t, do(r, http.MethodGet, "/model", ""))
	assert.Equal(t, "test-model", m["version"])
	importance := m["importance"].([]any)
	require.Len(t, importance, 2)
	assert.Equal(t, "a", importance[0].(map[string]any)["feature"])
	assert.Equal(t, "reduces_risk", importance[1].(map[string]any)["direction"])
}

func TestPredict_WorkedExample(t *testing.T) {
	opts := baseOptions(t)
	r := NewRouter(opts)

	w := do(r, http.MethodPost, "/predict", `{"a": 1, "b": 1}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(PredictionIDHeader))
	assert.JSONEq(t, `{
		"failure_probability": 0.7311,
		"risk_level": "High Risk",
		"top_risk_factors": ["a"],
		"positive_signals": ["b"]
	}`, w.Body.String())
	assert.Equal(t, int64(1), atomic.LoadInt64(&opts.Metrics.PredictionCount))
}

func TestPredict_Detail(t *testing.T) {
	r := NewRouter(baseOptions(t))

	body := decode(t, do(r, http.MethodPost, "/predict?detail=true", `{"a": 0, "b": 0}`))
	assert.Equal(t, 0.5, body["failure_probability"])
	assert.Equal(t, "Medium Risk", body["risk_level"])
	assert.Equal(t, []any{}, body["top_risk_factors"])
	assert.Equal(t, []any{}, body["positive_signals"])
	assert.Equal(t, 0.0, body["linear_score"])
	assert.Len(t, body["contributions"], 2)
}

func TestPredict_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		headers  []string
		status   int
		code     string
		category string
		missing  []any
		extra    []any
	}{
		{
			name:     "missing and extra",
			body:     `{"a": 1, "c": 1}`,
			status:   http.StatusBadRequest,
			code:     "SCHEMA_MISMATCH",
			category: "schema",
			missing:  []any{"b"},
			extra:    []any{"c"},
		},
		{
			name:     "missing only",
			body:     `{"a": 1}`,
			status:   http.StatusBadRequest,
			code:     "SCHEMA_MISMATCH",
			category: "schema",
			missing:  []any{"b"},
			extra:    []any{},
		},
		{
			name:     "extra string field",
			body:     `{"a": 1, "company": "Acme"}`,
			status:   http.StatusBadRequest,
			code:     "SCHEMA_MISMATCH",
			category: "schema",
			missing:  []any{"b"},
			extra:    []any{"company"},
		},
		{
			name:     "null value with extra key",
			body:     `{"a": 1, "b": null, "c": 2}`,
			status:   http.StatusBadRequest,
			code:     "SCHEMA_MISMATCH",
			category: "schema",
			missing:  []any{},
			extra:    []any{"c"},
		},
		{
			name:     "malformed json",
			body:     `{"a": 1,`,
			status:   http.StatusBadRequest,
			code:     "VALIDATION_ERROR",
			category: "validation",
		},
		{
			name:     "null value",
			body:     `{"a": null, "b": 1}`,
			status:   http.StatusBadRequest,
			code:     "VALIDATION_ERROR",
			category: "validation",
		},
		{
			name:     "non-numeric value",
			body:     `{"a": "high", "b": 1}`,
			status:   http.StatusBadRequest,
			code:     "VALIDATION_ERROR",
			category: "validation",
		},
		{
			name:     "wrong content type",
			body:     `{"a": 1, "b": 1}`,
			headers:  []string{"Content-Type", "text/plain"},
			status:   http.StatusUnsupportedMediaType,
			code:     "VALIDATION_ERROR",
			category: "validation",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := baseOptions(t)
			r := NewRouter(opts)

			w := do(r, http.MethodPost, "/predict", tt.body, tt.headers...)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Empty(t, w.Header().Get(PredictionIDHeader))

			body := decode(t, w)
			assert.Equal(t, tt.code, body["code"])
			assert.Equal(t, tt.category, body["category"])
			assert.NotEmpty(t, body["error"])
			if tt.missing != nil {
				assert.Equal(t, tt.missing, body["missing_features"])
				assert.Equal(t, tt.extra, body["extra_features"])
			}
			assert.Zero(t, atomic.LoadInt64(&opts.Metrics.PredictionCount))
		})
	}
}

func TestPredict_BodyTooLarge(t *testing.T) {
	opts := baseOptions(t)
	opts.Security = security.NewMiddleware(security.Config{MaxBodyBytes: 16})
	r := NewRouter(opts)

	w := do(r, http.MethodPost, "/predict", `{"a": 1, "b": 1, "padding": 123456789}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestPredictProfile(t *testing.T) {
	weights := make([]float64, len(intake.Features))
	for i, f := range intake.Features {
		switch f {
		case "is_CA":
			weights[i] = -1
		case "is_otherstate":
			weights[i] = 3
		}
	}

	opts := baseOptions(t)
	opts.Scorer = newScorer(t, intake.Features, weights)
	r := NewRouter(opts)

	w := do(r, http.MethodPost, "/predict/profile", `{"state_code": "CA", "category": "web", "funding_types": ["vc"]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "Low Risk", body["risk_level"])
	assert.Equal(t, []any{"is_CA"}, body["positive_signals"])

	body = decode(t, do(r, http.MethodPost, "/predict/profile", `{"state_code": "WA", "category": "web"}`))
	assert.Equal(t, "High Risk", body["risk_level"])
	assert.Equal(t, []any{"is_otherstate"}, body["top_risk_factors"])

	w = do(r, http.MethodPost, "/predict/profile", `{"state_code": "CA", "valuation": 10}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/predict/profile", `{"funding_types": ["seed"]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuditEndpoints(t *testing.T) {
	opts := withAudit(t, baseOptions(t))
	r := NewRouter(opts)

	w := do(r, http.MethodPost, "/predict", `{"a": 1, "b": 1}`)
	require.Equal(t, http.StatusOK, w.Code)
	id := w.Header().Get(PredictionIDHeader)
	require.NotEmpty(t, id)

	require.Eventually(t, func() bool {
		return do(r, http.MethodGet, "/predictions/"+id, "").Code == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	rec := decode(t, do(r, http.MethodGet, "/predictions/"+id, ""))
	assert.Equal(t, id, rec["id"])
	assert.Equal(t, "http", rec["source"])
	assert.Equal(t, 0.7311, rec["failure_probability"])
	assert.Equal(t, "High Risk", rec["risk_level"])
	assert.NotContains(t, rec, "ip_address")

	list := decode(t, do(r, http.MethodGet, "/predictions?limit=5", ""))
	assert.Equal(t, float64(1), list["count"])
	assert.Equal(t, float64(5), list["limit"])

	stats := decode(t, do(r, http.MethodGet, "/predictions/stats", ""))
	assert.Equal(t, float64(1), stats["total"])
	assert.Equal(t, map[string]any{"High Risk": float64(1)}, stats["by_tier"])

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/predictions/unknown", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/predictions?limit=abc", "").Code)

	health := decode(t, do(r, http.MethodGet, "/health", ""))
	assert.Equal(t, "enabled", health["dependencies"].(map[string]any)["audit"])
}

func TestAuditEndpoints_Disabled(t *testing.T) {
	r := NewRouter(baseOptions(t))

	for _, path := range []string{"/predictions", "/predictions/stats", "/predictions/abc"} {
		w := do(r, http.MethodGet, path, "")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)
		assert.Equal(t, "SERVICE_UNAVAILABLE", decode(t, w)["code"])
	}
}

func TestAuditStoresAnonymizedClient(t *testing.T) {
	opts := withAudit(t, baseOptions(t))
	r := NewRouter(opts)

	w := do(r, http.MethodPost, "/predict", `{"a": 1, "b": 1}`)
	require.Equal(t, http.StatusOK, w.Code)
	id := w.Header().Get(PredictionIDHeader)

	var stored *database.PredictionRecord
	require.Eventually(t, func() bool {
		rec, err := opts.Audit.Repository().GetPrediction(context.Background(), id)
		stored = rec
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	// httptest requests come from 192.0.2.1
	assert.Equal(t, privacy.AnonymizeIP("192.0.2.1"), stored.IPAddress)
}

func TestPrivacyPolicy(t *testing.T) {
	tests := []struct {
		name     string
		opts     func(t *testing.T) Options
		wantKeys []string
	}{
		{
			name:     "audit disabled",
			opts:     baseOptions,
			wantKeys: []string{"audit", "stored_fields"},
		},
		{
			name: "retention configured",
			opts: func(t *testing.T) Options {
				opts := withAudit(t, baseOptions(t))
				opts.Privacy = privacy.NewService(opts.Audit.Repository(), 30)
				return opts
			},
			wantKeys: []string{"prediction_retention_days", "retention_enforced", "ip_anonymization_method"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(NewRouter(tt.opts(t)), http.MethodGet, "/privacy/policy", "")
			require.Equal(t, http.StatusOK, w.Code)
			body := decode(t, w)
			for _, key := range tt.wantKeys {
				assert.Contains(t, body, key)
			}
		})
	}
}

func TestPredict_RateLimited(t *testing.T) {
	opts := baseOptions(t)
	limiter := ratelimit.NewRateLimiter(nil, ratelimit.Config{PerMinute: 2}, opts.Metrics)
	t.Cleanup(limiter.Close)
	opts.Limiter = limiter
	r := NewRouter(opts)

	for i := 0; i < 2; i++ {
		w := do(r, http.MethodPost, "/predict", `{"a": 1, "b": 1}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	}

	w := do(r, http.MethodPost, "/predict", `{"a": 1, "b": 1}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", decode(t, w)["code"])

	// non-prediction routes are not limited
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/features", "").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/ratelimit/status", "").Code)
}

func TestPredict_CacheHitSkipsScoring(t *testing.T) {
	opts := baseOptions(t)
	c := cache.NewCache(time.Minute)
	t.Cleanup(c.Close)
	opts.Cache = c
	r := NewRouter(opts)

	first := do(r, http.MethodPost, "/predict", `{"a": 1, "b": 1}`)
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "MISS", first.Header().Get(cache.CacheHeader))

	second := do(r, http.MethodPost, "/predict", `{"a": 1, "b": 1}`)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "HIT", second.Header().Get(cache.CacheHeader))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Empty(t, second.Header().Get(PredictionIDHeader))

	assert.Equal(t, int64(1), atomic.LoadInt64(&opts.Metrics.PredictionCount))

	detail := do(r, http.MethodPost, "/predict?detail=true", `{"a": 1, "b": 1}`)
	assert.Equal(t, "MISS", detail.Header().Get(cache.CacheHeader))
}

func TestCORSPreflight(t *testing.T) {
	r := NewRouter(baseOptions(t))

	w := do(r, http.MethodOptions, "/predict", "",
		"Origin", "http://localhost:8501",
		"Access-Control-Request-Method", http.MethodPost)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:8501", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestReadRoutesAreCompressed(t *testing.T) {
	names := make([]string, 60)
	weights := make([]float64, 60)
	for i := range names {
		names[i] = "feature_with_a_long_name_" + strconv.Itoa(i)
		weights[i] = float64(i) / 10
	}
	opts := baseOptions(t)
	opts.Scorer = newScorer(t, names, weights)
	r := NewRouter(opts)

	w := do(r, http.MethodGet, "/model", "", "Accept-Encoding", "gzip")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))

	w = do(r, http.MethodGet, "/model", "")
	assert.Empty(t, w.Header().Get("Content-Encoding"))

	metrics := decode(t, do(r, http.MethodGet, "/metrics", ""))
	assert.Contains(t, metrics, "compression")
}
