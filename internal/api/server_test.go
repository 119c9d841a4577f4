package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/orderparse/internal/model"
	"github.com/sells-group/orderparse/internal/monitoring"
	"github.com/sells-group/orderparse/internal/provider"
	"github.com/sells-group/orderparse/internal/store"
)

type fixture struct {
	parser    *mockParser
	providers *mockProviders
	runs      *mockRuns
	metrics   *mockMetrics
	handler   http.Handler
	uploads   string
	docs      string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		parser:    &mockParser{},
		providers: &mockProviders{},
		runs:      &mockRuns{},
		metrics:   &mockMetrics{},
		uploads:   t.TempDir(),
		docs:      t.TempDir(),
	}
	require.NoError(t, os.WriteFile(filepath.Join(f.docs, "order.pdf"), []byte("%PDF-1.4"), 0o644))
	srv := New(f.parser, f.providers, f.runs, f.metrics, Options{UploadDir: f.uploads, DocumentRoot: f.docs})
	f.handler = srv.Router()
	return f
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func successOutcome() *model.Outcome {
	return &model.Outcome{
		RunID:         "run-1",
		Status:        model.OutcomeSuccess,
		ProviderUsed:  "openai",
		ExtractedData: model.Fields{model.FieldClientCompanyName: model.String("ACME SRL")},
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("Content-Type"))
}

func TestParse_JSONBody(t *testing.T) {
	f := newFixture(t)
	f.parser.On("Parse", mock.Anything, filepath.Join(f.docs, "order.pdf"), model.Hints{RequestID: "req-1", SenderDomain: "acme.ro"}).
		Return(successOutcome())

	body := `{"document_ref":"order.pdf","request_id":"req-1","sender_domain":"acme.ro"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/parse", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := f.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "run-1", got["run_id"])
	assert.Equal(t, "success", got["status"])
	f.parser.AssertExpectations(t)
}

func TestParse_DefaultsRequestID(t *testing.T) {
	f := newFixture(t)
	f.parser.On("Parse", mock.Anything, filepath.Join(f.docs, "order.pdf"), mock.MatchedBy(func(h model.Hints) bool {
		return h.RequestID != ""
	})).Return(successOutcome())

	req := httptest.NewRequest(http.MethodPost, "/v1/parse", strings.NewReader(`{"document_ref":"order.pdf"}`))
	rec := f.do(req)

	assert.Equal(t, http.StatusOK, rec.Code)
	f.parser.AssertExpectations(t)
}

func TestParse_BadRequests(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"invalid json", `{`, "invalid request body"},
		{"missing ref", `{"request_id":"x"}`, "document_ref is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(httptest.NewRequest(http.MethodPost, "/v1/parse", strings.NewReader(tt.body)))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}
	f.parser.AssertNotCalled(t, "Parse", mock.Anything, mock.Anything, mock.Anything)
}

func TestParse_DocumentRefConfinedToRoot(t *testing.T) {
	f := newFixture(t)

	outside := filepath.Join(t.TempDir(), "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("API_KEY=x"), 0o600))
	require.NoError(t, os.Symlink(outside, filepath.Join(f.docs, "link.txt")))
	require.NoError(t, os.Mkdir(filepath.Join(f.docs, "inbox"), 0o755))

	tests := []struct {
		name string
		ref  string
		want int
	}{
		{"absolute path", "/etc/passwd", http.StatusBadRequest},
		{"parent traversal", "../x", http.StatusBadRequest},
		{"nested traversal", "inbox/../../x", http.StatusBadRequest},
		{"symlink out of root", "link.txt", http.StatusBadRequest},
		{"directory", "inbox", http.StatusBadRequest},
		{"missing file", "inbox/none.pdf", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := json.Marshal(map[string]string{"document_ref": tt.ref})
			require.NoError(t, err)
			rec := f.do(httptest.NewRequest(http.MethodPost, "/v1/parse", bytes.NewReader(body)))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
	f.parser.AssertNotCalled(t, "Parse", mock.Anything, mock.Anything, mock.Anything)
}

func TestParse_DocumentRefDisabledWithoutRoot(t *testing.T) {
	parser := &mockParser{}
	h := New(parser, &mockProviders{}, nil, nil, Options{}).Router()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/parse", strings.NewReader(`{"document_ref":"order.pdf"}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "upload the file")
	parser.AssertNotCalled(t, "Parse", mock.Anything, mock.Anything, mock.Anything)
}

func TestParse_MultipartUpload(t *testing.T) {
	f := newFixture(t)

	var seenPath string
	var seenContent []byte
	f.parser.On("Parse", mock.Anything, mock.AnythingOfType("string"), mock.MatchedBy(func(h model.Hints) bool {
		return h.RequestID == "req-9" && h.SenderDomain == "client.ro"
	})).Run(func(args mock.Arguments) {
		seenPath = args.String(1)
		seenContent, _ = os.ReadFile(seenPath)
	}).Return(successOutcome())

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "Order.TXT")
	require.NoError(t, err)
	_, err = part.Write([]byte("Client: ACME SRL"))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("request_id", "req-9"))
	require.NoError(t, mw.WriteField("sender_domain", "client.ro"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/parse", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := f.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, f.uploads, filepath.Dir(seenPath))
	assert.Equal(t, ".txt", filepath.Ext(seenPath))
	assert.Equal(t, "Client: ACME SRL", string(seenContent))

	// Upload is removed after parsing.
	_, err = os.Stat(seenPath)
	assert.True(t, os.IsNotExist(err))
}

func TestParse_MultipartMissingFile(t *testing.T) {
	f := newFixture(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("request_id", "req-9"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/parse", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := f.do(req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "file part is required")
}

func TestProviders_SortedByName(t *testing.T) {
	f := newFixture(t)
	f.providers.On("Status").Return(map[string]provider.Status{
		"openai":    {Provider: "openai", BreakerState: "open"},
		"anthropic": {Provider: "anthropic", BreakerState: "closed", Eligible: true},
	})

	rec := f.do(httptest.NewRequest(http.MethodGet, "/v1/providers", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Providers []provider.Status `json:"providers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Providers, 2)
	assert.Equal(t, "anthropic", got.Providers[0].Provider)
	assert.Equal(t, "open", got.Providers[1].BreakerState)
}

func TestProviderHealth(t *testing.T) {
	tests := []struct {
		name    string
		results []provider.HealthStatus
		want    int
	}{
		{"one healthy", []provider.HealthStatus{{Provider: "openai", Healthy: true}, {Provider: "anthropic", Error: "timeout"}}, http.StatusOK},
		{"none healthy", []provider.HealthStatus{{Provider: "openai", Error: "401"}}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.providers.On("CheckHealth", mock.Anything).Return(tt.results)

			rec := f.do(httptest.NewRequest(http.MethodGet, "/v1/providers/health", nil))
			assert.Equal(t, tt.want, rec.Code)
			assert.Contains(t, rec.Body.String(), `"providers"`)
		})
	}
}

func TestGetRun(t *testing.T) {
	f := newFixture(t)
	f.runs.On("GetRun", mock.Anything, "abc").Return(&model.Run{ID: "abc", Status: model.RunStatusComplete}, nil)
	f.runs.On("GetRun", mock.Anything, "missing").Return(nil, eris.Wrapf(store.ErrRunNotFound, "postgres: get run %s", "missing"))
	f.runs.On("GetRun", mock.Anything, "broken").Return(nil, errors.New("lookup failed: not found in cache"))

	rec := f.do(httptest.NewRequest(http.MethodGet, "/v1/runs/abc", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"abc"`)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/v1/runs/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/v1/runs/broken", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMetrics(t *testing.T) {
	f := newFixture(t)
	f.metrics.On("Collect", mock.Anything, 24).Return(&monitoring.MetricsSnapshot{RunsTotal: 7, LookbackHours: 24}, nil)
	f.metrics.On("Collect", mock.Anything, 6).Return(&monitoring.MetricsSnapshot{RunsTotal: 2, LookbackHours: 6}, nil)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/v1/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"runs_total":7`)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/v1/metrics?lookback_hours=6", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"runs_total":2`)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/v1/metrics?lookback_hours=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetrics_CollectError(t *testing.T) {
	f := newFixture(t)
	f.metrics.On("Collect", mock.Anything, 24).Return(nil, errors.New("db down"))

	rec := f.do(httptest.NewRequest(http.MethodGet, "/v1/metrics", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestNoStore(t *testing.T) {
	srv := New(&mockParser{}, &mockProviders{}, nil, nil, Options{})
	h := srv.Router()

	for _, path := range []string{"/v1/runs/abc", "/v1/metrics"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodOptions, "/v1/parse", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	rec := f.do(req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestParseBudget(t *testing.T) {
	assert.Equal(t, 13*time.Minute, ParseBudget(2*time.Minute, 3))
	assert.Equal(t, 3*time.Minute, ParseBudget(time.Minute, 0))

	srv := New(&mockParser{}, &mockProviders{}, nil, nil, Options{})
	assert.Equal(t, 13*time.Minute, srv.opts.RequestTimeout)
}
