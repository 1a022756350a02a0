package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fertility-cds-server/internal/domain"
	"github.com/fertility-cds-server/internal/protocol"
	"github.com/fertility-cds-server/internal/repository"
	"github.com/fertility-cds-server/internal/service"
	"github.com/fertility-cds-server/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, rateLimit domain.RateLimitConfig) (*Server, repository.Store) {
	t.Helper()
	bundle, err := protocol.Default()
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := &domain.Config{RateLimit: rateLimit, Logging: domain.LoggingConfig{Level: "info"}}
	engine := service.NewEngine(bundle, logger)
	store := repository.NewMemoryStore()
	sessions := session.NewManager(engine, store, nil, domain.SessionConfig{}, logger)

	server := NewServer(cfg, engine, sessions, store, logger)
	gin.SetMode(gin.TestMode)
	return server, store
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	server, _ := newTestServer(t, domain.RateLimitConfig{})
	w := doJSON(t, server.Handler(), http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "infertility-workup@1.0.0", body["protocol"])
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestRequestIDIsEchoed(t *testing.T) {
	server, _ := newTestServer(t, domain.RateLimitConfig{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "req-123")
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	assert.Equal(t, "req-123", w.Header().Get(requestIDHeader))
}

func TestClassify(t *testing.T) {
	server, _ := newTestServer(t, domain.RateLimitConfig{})

	w := doJSON(t, server.Handler(), http.MethodPost, "/api/v1/classify", domain.Observation{
		FSHmIUmL:    domain.Float(14),
		SpermCountM: domain.Float(3),
		WeightKg:    domain.Float(70),
		HeightCm:    domain.Float(165),
	})
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[ClassifyResponse](t, w)
	codes := []domain.FindingCode{}
	for _, f := range resp.Findings {
		codes = append(codes, f.Code)
	}
	assert.Equal(t, []domain.FindingCode{domain.DIMINISHED_OVARIAN_RESERVE, domain.MALE_FACTOR_COUNT}, codes)
	assert.Equal(t, domain.SeverityHigh, resp.MaxSeverity)
	assert.Equal(t, domain.BMIOverweight, resp.BMIBand)
}

func TestClassify_Invalid(t *testing.T) {
	server, _ := newTestServer(t, domain.RateLimitConfig{})

	w := doJSON(t, server.Handler(), http.MethodPost, "/api/v1/classify", domain.Observation{TSHmIUmL: domain.Float(-2)})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, domain.ErrCodeValidation, decode[domain.APIError](t, w).Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/classify", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, domain.ErrCodeInvalidInput, decode[domain.APIError](t, rec).Code)
}

func TestBMI(t *testing.T) {
	server, _ := newTestServer(t, domain.RateLimitConfig{})

	w := doJSON(t, server.Handler(), http.MethodPost, "/api/v1/bmi", map[string]float64{"weightKg": 50, "heightCm": 165})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.InDelta(t, 18.37, body["bmi"], 0.01)
	assert.Equal(t, string(domain.BMIUnderweight), body["band"])

	w = doJSON(t, server.Handler(), http.MethodPost, "/api/v1/bmi", map[string]float64{"weightKg": 50})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type recommendationsBody struct {
	Items []domain.RecommendationItem `json:"items"`
}

func TestRecommendationsAndCatalog(t *testing.T) {
	server, _ := newTestServer(t, domain.RateLimitConfig{})
	h := server.Handler()

	w := doJSON(t, h, http.MethodGet, "/api/v1/recommendations/anovulation", nil)
	require.Equal(t, http.StatusOK, w.Code)
	recs := decode[recommendationsBody](t, w)
	require.Len(t, recs.Items, 1)
	assert.Equal(t, "Clomid", recs.Items[0].TradeName)

	w = doJSON(t, h, http.MethodGet, "/api/v1/recommendations/nothing", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[recommendationsBody](t, w).Items)

	w = doJSON(t, h, http.MethodGet, "/api/v1/catalog/search?q=letro", nil)
	require.Equal(t, http.StatusOK, w.Code)
	search := decode[struct {
		Results []domain.MedicineCatalogEntry `json:"results"`
		Count   int                           `json:"count"`
	}](t, w)
	require.Equal(t, 2, search.Count)
	assert.Equal(t, "Femara", search.Results[0].TradeName)
	assert.Equal(t, "Letrozole", search.Results[1].TradeName)
}

func TestProtocolNodes(t *testing.T) {
	server, _ := newTestServer(t, domain.RateLimitConfig{})
	h := server.Handler()

	w := doJSON(t, h, http.MethodGet, "/api/v1/protocol/nodes/maleEvaluation", nil)
	require.Equal(t, http.StatusOK, w.Code)
	node := decode[domain.DecisionNode](t, w)
	assert.Len(t, node.Options, 2)

	w = doJSON(t, h, http.MethodGet, "/api/v1/protocol/nodes/nowhere", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, domain.ErrCodeUnknownNode, decode[domain.APIError](t, w).Code)

	w = doJSON(t, h, http.MethodGet, "/api/v1/protocol", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "start", decode[map[string]any](t, w)["startId"])
}

func TestSessionWorkflow(t *testing.T) {
	server, _ := newTestServer(t, domain.RateLimitConfig{})
	h := server.Handler()

	w := doJSON(t, h, http.MethodPost, "/api/v1/sessions", map[string]string{"patientRef": "MRN-42"})
	require.Equal(t, http.StatusCreated, w.Code)
	view := decode[session.View](t, w)
	base := "/api/v1/sessions/" + view.ID

	w = doJSON(t, h, http.MethodPut, base+"/observation", domain.Observation{ProgesteroneNgMl: domain.Float(3)})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[session.View](t, w).Findings.Has(domain.ANOVULATION_SUSPECTED))

	for _, step := range []map[string]any{
		{"option": 0},
		{"label": "Normal"},
		{"label": "< 5 ng/mL (No Ovulation)"},
		{"option": 0},
	} {
		w = doJSON(t, h, http.MethodPost, base+"/advance", step)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w = doJSON(t, h, http.MethodGet, base+"/node", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "anovulationWorkup", decode[domain.DecisionNode](t, w).ID)

	w = doJSON(t, h, http.MethodPost, base+"/advance", map[string]any{"option": 0})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, h, http.MethodPost, base+"/lines/recommendation", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = doJSON(t, h, http.MethodPost, base+"/lines/catalog", map[string]string{"tradeName": "Aspirin"})
	require.Equal(t, http.StatusOK, w.Code)
	view = decode[session.View](t, w)
	require.Len(t, view.Prescription.Lines, 2)

	w = doJSON(t, h, http.MethodPost, base+"/lines/catalog", map[string]string{"tradeName": "Nope"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, h, http.MethodPatch, base+"/lines/1", map[string]any{"quantity": 0, "dosage": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, domain.ErrCodeInvalidQuantity, decode[domain.APIError](t, w).Code)

	w = doJSON(t, h, http.MethodPatch, base+"/lines/1", map[string]any{"quantity": 2})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, h, http.MethodDelete, base+"/lines/7", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, domain.ErrCodeIndexOutOfRange, decode[domain.APIError](t, w).Code)

	w = doJSON(t, h, http.MethodPut, base+"/notes", map[string]string{"notes": "Follow up day 21"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, h, http.MethodGet, base+"/summary", nil)
	require.Equal(t, http.StatusOK, w.Code)
	summary := decode[domain.PrescriptionSummary](t, w)
	assert.Equal(t, 3, summary.TotalUnits)
	assert.InDelta(t, 45.0+2*5.0, summary.EstimatedCost, 0.001)

	w = doJSON(t, h, http.MethodGet, base+"/breadcrumb", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, h, http.MethodPost, base+"/finalize", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	record := decode[domain.PrescriptionRecord](t, w)
	assert.Equal(t, "Follow up day 21", record.Prescription.Notes)
	assert.Equal(t, []string{"start", "maleEvaluation", "femaleEvaluation", "noOvulation", "anovulationWorkup"}, record.DecisionPath)

	w = doJSON(t, h, http.MethodGet, "/api/v1/prescriptions/"+record.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, h, http.MethodGet, "/api/v1/prescriptions?session="+view.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode[map[string]any](t, w)["count"])

	w = doJSON(t, h, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionDiscard(t *testing.T) {
	server, _ := newTestServer(t, domain.RateLimitConfig{})
	h := server.Handler()

	w := doJSON(t, h, http.MethodPost, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode[session.View](t, w).ID

	w = doJSON(t, h, http.MethodDelete, "/api/v1/sessions/"+id, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = doJSON(t, h, http.MethodDelete, "/api/v1/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListPrescriptions(t *testing.T) {
	server, store := newTestServer(t, domain.RateLimitConfig{})
	h := server.Handler()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Save(context.Background(), &domain.PrescriptionRecord{
			ID:           fmt.Sprintf("rx-%d", i),
			SessionID:    "s",
			Prescription: domain.Prescription{Lines: []domain.PrescriptionLine{{TradeName: "Clomid", Quantity: 1}}},
		}))
	}

	w := doJSON(t, h, http.MethodGet, "/api/v1/prescriptions?limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.EqualValues(t, 2, body["count"])
	assert.EqualValues(t, 3, body["total"])

	w = doJSON(t, h, http.MethodGet, "/api/v1/prescriptions?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, h, http.MethodGet, "/api/v1/prescriptions/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRateLimit(t *testing.T) {
	server, _ := newTestServer(t, domain.RateLimitConfig{Enabled: true, RequestsPerSecond: 0.001, Burst: 2})
	h := server.Handler()

	assert.Equal(t, http.StatusOK, doJSON(t, h, http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusOK, doJSON(t, h, http.MethodGet, "/health", nil).Code)

	w := doJSON(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, domain.ErrCodeRateLimit, decode[domain.APIError](t, w).Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{domain.NewValidationError("f", "bad", nil), http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", domain.ErrInvalidTransition), http.StatusConflict},
		{domain.ErrUnknownNode, http.StatusNotFound},
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrIndexOutOfRange, http.StatusBadRequest},
		{fmt.Errorf("save: %w", repository.ErrStoreUnavailable), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			status, _ := statusFor(tt.err)
			assert.Equal(t, tt.status, status)
		})
	}
}
