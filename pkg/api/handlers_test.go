package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/ssargent/visionfs/pkg/codec"
	"github.com/ssargent/visionfs/pkg/config"
	"github.com/ssargent/visionfs/pkg/engine"
	"github.com/ssargent/visionfs/pkg/engine/lsm"
	"github.com/ssargent/visionfs/pkg/layout"
	"github.com/ssargent/visionfs/pkg/vision"
	"github.com/ssargent/visionfs/pkg/xfd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAPIKey = "test-key"

type rawResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// setupTestServer creates a router over a Pebble backed ORDERS file holding
// three orders: 1 ZETA, 2 ACME, 3 ACME
func setupTestServer(t *testing.T) http.Handler {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.DataDir = filepath.Join(t.TempDir(), "data")
	cfg.FilePrefix = cfg.DataDir
	cfg.XfdDirectory = "../xfd/testdata"

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	rt := engine.NewRuntime(lsm.New(nil), nil, engine.WithObserver(metrics))
	fs := vision.NewFileSystem(cfg, rt, xfd.NewRegistry(nil), nil,
		vision.WithConverter(codec.NewConverter(codec.WithLocation(time.UTC))))
	require.NoError(t, fs.Initialize())
	t.Cleanup(func() { _ = fs.Close() })

	f, err := fs.Make("orders", nil)
	require.NoError(t, err)
	require.NoError(t, f.Open(engine.InputOutput))
	for i, customer := range []string{"ZETA", "ACME", "ACME"} {
		rec := f.NewRecord()
		require.NoError(t, rec.SetLong("ORD-YEAR", 2024))
		require.NoError(t, rec.SetLong("ORD-NUMBER", int64(i+1)))
		require.NoError(t, rec.SetString("ORD-CUSTOMER", customer))
		require.NoError(t, rec.SetDate("ORD-DATE", time.Date(2024, 3, i+1, 0, 0, 0, 0, time.UTC)))
		require.NoError(t, rec.SetDecimal("ORD-TOTAL", decimal.New(int64(i+1)*1050, -2)))
		require.NoError(t, f.Write(rec))
	}
	require.NoError(t, f.Close())

	server := NewServer(fs, ServerConfig{APIKey: testAPIKey}, metrics, nil)
	return NewRouter(server, metrics, reg)
}

func get(t *testing.T, h http.Handler, path string) (int, rawResponse) {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	req.Header.Set("X-API-Key", testAPIKey)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var resp rawResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w.Code, resp
}

func getRecords(t *testing.T, h http.Handler, path string) RecordsResponse {
	t.Helper()
	code, resp := get(t, h, path)
	require.Equal(t, http.StatusOK, code, resp.Error)
	var out RecordsResponse
	require.NoError(t, json.Unmarshal(resp.Data, &out))
	require.Equal(t, len(out.Records), out.Count)
	return out
}

func column(records []map[string]any, field string) []any {
	out := make([]any, len(records))
	for i, r := range records {
		out[i] = r[field]
	}
	return out
}

func TestHandleHealth(t *testing.T) {
	h := setupTestServer(t)

	code, resp := get(t, h, "/api/v1/health")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Success)
	assert.JSONEq(t, `{"status":"healthy"}`, string(resp.Data))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/health", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandleListFiles(t *testing.T) {
	h := setupTestServer(t)

	code, resp := get(t, h, "/api/v1/files")
	require.Equal(t, http.StatusOK, code)

	var files []FileSummary
	require.NoError(t, json.Unmarshal(resp.Data, &files))
	require.Len(t, files, 1)
	assert.Equal(t, FileSummary{
		FileName:      "ORDERS",
		SelectName:    "ORDERS",
		MinRecordSize: 60,
		MaxRecordSize: 60,
		NumberOfKeys:  2,
		Fields:        13,
	}, files[0])
}

func TestHandleGetDefinition(t *testing.T) {
	h := setupTestServer(t)

	code, resp := get(t, h, "/api/v1/files/orders/definition")
	require.Equal(t, http.StatusOK, code)
	var def layout.FileDefinition
	require.NoError(t, json.Unmarshal(resp.Data, &def))
	assert.Equal(t, "ORDERS", def.FileName)
	assert.Len(t, def.Keys, 2)

	code, resp = get(t, h, "/api/v1/files/customers/definition")
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, resp.Success)
}

func TestHandleListRecords(t *testing.T) {
	h := setupTestServer(t)

	tests := []struct {
		name  string
		query string
		field string
		want  []any
	}{
		{"primary key order", "", "ORD-NUMBER", []any{1.0, 2.0, 3.0}},
		{"limit", "?limit=2", "ORD-NUMBER", []any{1.0, 2.0}},
		{"alternate key", "?key=1", "ORD-CUSTOMER", []any{"ACME", "ACME", "ZETA"}},
		{"alternate key start", "?key=1&start=ORD-CUSTOMER=ZETA", "ORD-CUSTOMER", []any{"ZETA"}},
		{"backward", "?mode=lt", "ORD-NUMBER", []any{3.0, 2.0, 1.0}},
		{"greater than", "?start=ORD-YEAR=2024&start=ORD-NUMBER=2&mode=gt", "ORD-NUMBER", []any{3.0}},
		{"equal miss", "?start=ORD-YEAR=2025&mode=eq", "ORD-NUMBER", []any{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := getRecords(t, h, "/api/v1/files/orders/records"+tt.query)
			assert.Equal(t, "ORDERS", out.File)
			assert.Equal(t, tt.want, column(out.Records, tt.field))
		})
	}

	t.Run("decoded values", func(t *testing.T) {
		out := getRecords(t, h, "/api/v1/files/orders/records?limit=1")
		require.Len(t, out.Records, 1)
		rec := out.Records[0]
		assert.Equal(t, "ZETA", rec["ORD-CUSTOMER"])
		assert.Equal(t, "10.5", rec["ORD-TOTAL"])
		assert.Equal(t, "2024-03-01T00:00:00Z", rec["ORD-DATE"])
		assert.Equal(t, "", rec["ROW-CODE(2)"])
	})
}

func TestHandleListRecords_Errors(t *testing.T) {
	h := setupTestServer(t)

	tests := []struct {
		name  string
		path  string
		code  int
	}{
		{"unknown file", "/api/v1/files/customers/records", http.StatusNotFound},
		{"limit zero", "/api/v1/files/orders/records?limit=0", http.StatusBadRequest},
		{"limit too large", "/api/v1/files/orders/records?limit=5000", http.StatusBadRequest},
		{"key not a number", "/api/v1/files/orders/records?key=x", http.StatusBadRequest},
		{"key out of range", "/api/v1/files/orders/records?key=5", http.StatusBadRequest},
		{"unknown mode", "/api/v1/files/orders/records?mode=zz", http.StatusBadRequest},
		{"start without value", "/api/v1/files/orders/records?start=ORD-YEAR", http.StatusBadRequest},
		{"unknown field", "/api/v1/files/orders/records?start=NOPE=1", http.StatusBadRequest},
		{"bad number", "/api/v1/files/orders/records?start=ORD-YEAR=abc", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := get(t, h, tt.path)
			assert.Equal(t, tt.code, code, resp.Error)
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestHandleGetRecord(t *testing.T) {
	h := setupTestServer(t)

	code, resp := get(t, h, "/api/v1/files/orders/record?ORD-YEAR=2024&ORD-NUMBER=2")
	require.Equal(t, http.StatusOK, code, resp.Error)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(resp.Data, &rec))
	assert.Equal(t, "ACME", rec["ORD-CUSTOMER"])
	assert.Equal(t, "21", rec["ORD-TOTAL"])

	code, resp = get(t, h, "/api/v1/files/orders/record?key=1&ORD-CUSTOMER=ZETA")
	require.Equal(t, http.StatusOK, code, resp.Error)
	require.NoError(t, json.Unmarshal(resp.Data, &rec))
	assert.Equal(t, 1.0, rec["ORD-NUMBER"])

	code, _ = get(t, h, "/api/v1/files/orders/record?ORD-YEAR=2024&ORD-NUMBER=9")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = get(t, h, "/api/v1/files/orders/record?ORD-NOTE=TOO-LONG")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := setupTestServer(t)
	getRecords(t, h, "/api/v1/files/orders/records")

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, `visionfs_engine_calls_total{operation="next",status="success"} 3`)
	assert.Contains(t, body, `visionfs_engine_calls_total{operation="next",status="not_found"} 1`)
	assert.Contains(t, body, `visionfs_records_served_total{file="ORDERS"} 3`)
	assert.Contains(t, body, `visionfs_http_requests_total{endpoint="/api/v1/files/{name}/records",method="GET",status_code="200"} 1`)
}
