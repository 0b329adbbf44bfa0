package api_test

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/paleoapi/compositegw/internal/api"
	"github.com/paleoapi/compositegw/internal/app"
	"github.com/paleoapi/compositegw/internal/config"
	"github.com/paleoapi/compositegw/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.Init()
	os.Exit(m.Run())
}

func testConfig(paleoURL, quatURL string) config.Config {
	return config.Config{
		Server: config.ServerConfig{Port: 8080},
		Upstreams: config.UpstreamsConfig{
			PaleobioBaseURL:   paleoURL,
			PaleobioEnabled:   true,
			QuaternaryBaseURL: quatURL,
			QuaternaryEnabled: true,
		},
		Composite: config.CompositeConfig{TimeoutSeconds: 5, Retries: 1, TickMs: 100},
		RateLimit: config.RateLimitConfig{DefaultRPS: 1000, DefaultBurst: 1000},
		Logging:   config.LoggingConfig{Development: true},
	}
}

func newTestServer(t *testing.T, cfg config.Config) *api.Server {
	t.Helper()
	a, err := app.NewApp(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return api.NewServer(a)
}

func TestServer_Healthz(t *testing.T) {
	s := newTestServer(t, testConfig("", ""))
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_Readyz(t *testing.T) {
	s := newTestServer(t, testConfig("", ""))
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_OccsListJSON_HappyFanOut(t *testing.T) {
	paleoSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"records":[{"oid":1,"nam":"Canis","eag":1,"lag":0.5}],"status_code":200,"warnings":[]}`))
	}))
	defer paleoSrv.Close()
	quatSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"data":[{"siteid":9,"taxonname":"Canis","ageolder":1000000,"ageyounger":500000}],"message":""}`))
	}))
	defer quatSrv.Close()

	s := newTestServer(t, testConfig(paleoSrv.URL, quatSrv.URL))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/occs/list.json?base_name=Canis&vocab=pbdb", nil)
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Records  []map[string]any `json:"records"`
		Warnings []string         `json:"warnings"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Records, 2)
	require.Empty(t, body.Warnings)
}

func TestServer_OccsListJSON_MissingSelectorReturns400(t *testing.T) {
	s := newTestServer(t, testConfig("", ""))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/occs/list.json", nil)
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_OccsListJSON_OneUpstreamDown(t *testing.T) {
	paleoSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{}`))
	}))
	defer paleoSrv.Close()
	quatSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"data":[{"siteid":9,"taxonname":"Canis","ageolder":1000000,"ageyounger":500000}],"message":""}`))
	}))
	defer quatSrv.Close()

	s := newTestServer(t, testConfig(paleoSrv.URL, quatSrv.URL))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/occs/list.json?base_name=Canis", nil)
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Records  []map[string]any `json:"records"`
		Warnings []string         `json:"warnings"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Records, 1)
	require.NotEmpty(t, body.Warnings)
}

func TestServer_OccsListCSV_HasHeaderRow(t *testing.T) {
	quatSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"data":[{"siteid":9,"taxonname":"Canis","ageolder":1000000,"ageyounger":500000}],"message":""}`))
	}))
	defer quatSrv.Close()

	cfg := testConfig("", quatSrv.URL)
	cfg.Upstreams.PaleobioEnabled = false
	s := newTestServer(t, cfg)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/occs/list.csv?base_name=Canis", nil)
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "text/csv")

	cr := csv.NewReader(strings.NewReader(rec.Body.String()))
	rows, err := cr.ReadAll()
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(rows), 2)
	require.Contains(t, rows[0], "database")
}

func TestServer_GetVocab_Known(t *testing.T) {
	s := newTestServer(t, testConfig("", ""))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/vocab/pbdb", nil)
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_GetVocab_UnknownReturns404(t *testing.T) {
	s := newTestServer(t, testConfig("", ""))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/vocab/bogus", nil)
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_ListRulesets(t *testing.T) {
	s := newTestServer(t, testConfig("", ""))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/rulesets", nil)
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_UnknownFormatExtensionReturns404(t *testing.T) {
	s := newTestServer(t, testConfig("", ""))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/occs/list.xml?base_name=Canis", nil)
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_RequestIDHeaderIsSet(t *testing.T) {
	s := newTestServer(t, testConfig("", ""))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.Handler().ServeHTTP(rec, req)

	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
