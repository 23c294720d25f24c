package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"airspace-charge-auditor/internal/reconciler"
	"airspace-charge-auditor/internal/reporter"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

const scheduleCSV = "Date ADEP,Aircraft [reg],Flight number,ADEP ICAO,ADES ICAO,Trip number [id]\n" +
	"15/01/2024,4X-ABC,LY001,LFPG,EGLL,T1001\n" +
	"15/01/2024,4X-ZZZ,SN1234,LFPG,EGLL,T2002\n"

func chargeLine(date, callsign, route, tail string) string {
	pad := func(s string, width int) string {
		return s + strings.Repeat(" ", width-len(s))
	}
	return "1234567" + "01" + date + strings.Repeat(" ", 6) + pad(callsign, 10) + pad("   "+route, 20) + tail
}

func routeCharges() string {
	return strings.Join([]string{
		"INVOICE 12/3456789/24",
		chargeLine("15/01/2024", "LY001", "LFPGEGLL", " 4X-ABC 150,50"),
		chargeLine("15/01/2024", "SN1234", "LFPGEGLL", " 100,25"),
	}, "\n")
}

func oceanicCharges() string {
	return chargeLine("16/01/2024", "LY009", "LLBGLCLK", " 4X-EDF 49,25")
}

type upload struct {
	field, name, content string
}

func newTestServer(t *testing.T, config *Config) *Server {
	t.Helper()
	service, err := reconciler.NewAuditService(nil, nil, nil, nil)
	require.NoError(t, err)

	server, err := NewServer(config, service)
	require.NoError(t, err)
	return server
}

func multipartRequest(t *testing.T, target string, uploads []upload) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for _, u := range uploads {
		part, err := writer.CreateFormFile(u.field, u.name)
		require.NoError(t, err)
		_, err = part.Write([]byte(u.content))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func standardUploads() []upload {
	return []upload{
		{"schedule_file", "leon.csv", scheduleCSV},
		{"charge_files", "A2401.txt", routeCharges()},
		{"charge_files", "AIC2401.txt", oceanicCharges()},
	}
}

func serve(server *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestServer_StatusEndpoints(t *testing.T) {
	server := newTestServer(t, nil)

	for _, path := range []string{"/", "/health"} {
		t.Run(path, func(t *testing.T) {
			rec := serve(server, httptest.NewRequest(http.MethodGet, path, nil))

			assert.Equal(t, http.StatusOK, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, "ok", body["status"])
			assert.NotEmpty(t, body["timestamp"])
		})
	}
}

func TestServer_AuditJSON(t *testing.T) {
	server := newTestServer(t, nil)

	rec := serve(server, multipartRequest(t, "/audit/eurocontrol", standardUploads()))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Audit-ID"))

	body := decodeBody(t, rec)
	assert.Equal(t, rec.Header().Get("X-Audit-ID"), body["audit_id"])

	stats := body["stats"].(map[string]interface{})
	assert.Equal(t, float64(3), stats["total_rows"])
	assert.Equal(t, float64(2), stats["matched_rows"])
	assert.InDelta(t, 2.0/3.0, stats["match_rate"], 1e-9)
	assert.Equal(t, float64(300), stats["total_amount"])

	data := body["data"].([]interface{})
	require.Len(t, data, 3)
	first := data[0].(map[string]interface{})
	assert.Equal(t, "T1001", first["trip_id"])
	assert.Equal(t, "registration", first["match_method"])
	assert.Equal(t, "12/3456789/24", first["invoice_ref"])
	assert.Equal(t, 150.5, first["amount"])

	second := data[1].(map[string]interface{})
	assert.Equal(t, "T2002", second["trip_id"])
	assert.Equal(t, "flight_number", second["match_method"])

	third := data[2].(map[string]interface{})
	assert.Nil(t, third["trip_id"])
	assert.Equal(t, "unmatched", third["match_status"])

	assert.Len(t, body["unmatched"], 1)
}

func TestServer_AuditLegacyFieldNames(t *testing.T) {
	server := newTestServer(t, nil)

	rec := serve(server, multipartRequest(t, "/audit/eurocontrol", []upload{
		{"leon_file", "leon.csv", scheduleCSV},
		{"euro_files", "A2401.txt", routeCharges()},
	}))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stats := decodeBody(t, rec)["stats"].(map[string]interface{})
	assert.Equal(t, float64(2), stats["matched_rows"])
}

func TestServer_AuditDownloads(t *testing.T) {
	server := newTestServer(t, nil)

	t.Run("csv", func(t *testing.T) {
		rec := serve(server, multipartRequest(t, "/audit/eurocontrol?format=csv", standardUploads()))

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, reporter.FormatCSV.ContentType(), rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment;")
		assert.Contains(t, rec.Header().Get("Content-Disposition"), ".csv")
		assert.True(t, strings.HasPrefix(rec.Body.String(), "Invoice No,Date,Reg,Dep,Arr,Amount,Trip Number,Match Status,Match Method"))
		assert.Contains(t, rec.Body.String(), "Raw Line")
	})

	t.Run("xlsx", func(t *testing.T) {
		rec := serve(server, multipartRequest(t, "/audit/eurocontrol?format=xlsx", standardUploads()))

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, reporter.FormatXLSX.ContentType(), rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Header().Get("Content-Disposition"), ".xlsx")

		f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, []string{reporter.SheetMain, reporter.SheetUnmatched}, f.GetSheetList())
	})

	t.Run("unknown format", func(t *testing.T) {
		rec := serve(server, multipartRequest(t, "/audit/eurocontrol?format=pdf", standardUploads()))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid_value", decodeBody(t, rec)["code"])
	})
}

func TestServer_AuditErrors(t *testing.T) {
	tests := []struct {
		name    string
		uploads []upload
		status  int
		message string
		code    string
	}{
		{
			name: "no flight lines",
			uploads: []upload{
				{"schedule_file", "leon.csv", scheduleCSV},
				{"charge_files", "A2401.txt", "EUROCONTROL ROUTE CHARGES\nINVOICE 12/3456789/24\n"},
			},
			status:  http.StatusBadRequest,
			message: "No valid flight lines found",
			code:    "no_records",
		},
		{
			name: "schedule missing trip column",
			uploads: []upload{
				{"schedule_file", "leon.csv", "Date ADEP,Aircraft,Flight number,ADEP ICAO,ADES ICAO\n15/01/2024,4X-ABC,LY001,LFPG,EGLL\n"},
				{"charge_files", "A2401.txt", routeCharges()},
			},
			status: http.StatusUnprocessableEntity,
			code:   "missing_column",
		},
		{
			name: "unsupported schedule",
			uploads: []upload{
				{"schedule_file", "leon.pdf", "%PDF-1.4"},
				{"charge_files", "A2401.txt", routeCharges()},
			},
			status: http.StatusUnprocessableEntity,
			code:   "unsupported_format",
		},
		{
			name: "no schedule",
			uploads: []upload{
				{"charge_files", "A2401.txt", routeCharges()},
			},
			status: http.StatusBadRequest,
			code:   "missing_field",
		},
		{
			name: "no charge files",
			uploads: []upload{
				{"schedule_file", "leon.csv", scheduleCSV},
			},
			status: http.StatusBadRequest,
			code:   "missing_field",
		},
	}

	server := newTestServer(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(server, multipartRequest(t, "/audit/eurocontrol", tt.uploads))

			assert.Equal(t, tt.status, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, tt.code, body["code"])
			if tt.message != "" {
				assert.Equal(t, tt.message, body["error"])
			}
		})
	}
}

func TestServer_AuditMissingColumnsListed(t *testing.T) {
	server := newTestServer(t, nil)

	rec := serve(server, multipartRequest(t, "/audit/eurocontrol", []upload{
		{"schedule_file", "leon.csv", "Date ADEP,Aircraft,Flight number,ADEP ICAO,ADES ICAO\n15/01/2024,4X-ABC,LY001,LFPG,EGLL\n"},
		{"charge_files", "A2401.txt", routeCharges()},
	}))

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, []interface{}{"Trip number"}, decodeBody(t, rec)["missing_columns"])
}

func TestServer_AuditRequiresMultipart(t *testing.T) {
	server := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/audit/eurocontrol", strings.NewReader(`{"schedule_file":"leon.csv"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := serve(server, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing_field", decodeBody(t, rec)["code"])
}

func TestServer_UploadLimit(t *testing.T) {
	config := DefaultConfig()
	config.MaxUploadMB = 1
	server := newTestServer(t, config)

	large := strings.Repeat(oceanicCharges()+"\n", (2<<20)/len(oceanicCharges()))
	rec := serve(server, multipartRequest(t, "/audit/eurocontrol", []upload{
		{"schedule_file", "leon.csv", scheduleCSV},
		{"charge_files", "AIC2401.txt", large},
	}))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestServer_Metrics(t *testing.T) {
	server := newTestServer(t, nil)

	rec := serve(server, multipartRequest(t, "/audit/eurocontrol", standardUploads()))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(server, multipartRequest(t, "/audit/eurocontrol", []upload{
		{"schedule_file", "leon.csv", scheduleCSV},
		{"charge_files", "A.txt", "no flight lines here"},
	}))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	metrics := server.Metrics()
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.audits.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.audits.WithLabelValues(OutcomeClientError)))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.records.WithLabelValues("matched")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.records.WithLabelValues("unmatched")))

	rec = serve(server, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `auditor_audits_total{outcome="success"} 1`)
	assert.Contains(t, rec.Body.String(), "auditor_audit_duration_seconds_count 2")
}

func TestServer_CORS(t *testing.T) {
	config := DefaultConfig()
	config.AllowedOrigins = []string{"https://ops.example.com"}
	server := newTestServer(t, config)

	req := httptest.NewRequest(http.MethodOptions, "/audit/eurocontrol", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := serve(server, req)

	assert.Equal(t, "https://ops.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = multipartRequest(t, "/audit/eurocontrol", standardUploads())
	req.Header.Set("Origin", "https://ops.example.com")
	rec = serve(server, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	exposed := strings.ToLower(rec.Header().Get("Access-Control-Expose-Headers"))
	assert.Contains(t, exposed, "x-audit-id")
	assert.Contains(t, exposed, "content-disposition")
}

func TestNewServer_Validation(t *testing.T) {
	service, err := reconciler.NewAuditService(nil, nil, nil, nil)
	require.NoError(t, err)

	_, err = NewServer(nil, nil)
	assert.Error(t, err)

	_, err = NewServer(&Config{Addr: ":8080"}, service)
	assert.Error(t, err)

	_, err = NewServer(&Config{Addr: "", MaxUploadMB: 1}, service)
	assert.Error(t, err)

	server, err := NewServer(nil, service)
	require.NoError(t, err)
	assert.NotNil(t, server.Router())
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, OutcomeSuccess, outcome(nil))
	assert.Equal(t, OutcomeServerError, outcome(assert.AnError))
}
