package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/huanchen1107/TawinCWA/app/database"
	"github.com/huanchen1107/TawinCWA/app/fetch"
	"github.com/huanchen1107/TawinCWA/app/service"
	"github.com/huanchen1107/TawinCWA/app/source"
	"github.com/huanchen1107/TawinCWA/app/table"
	"github.com/huanchen1107/TawinCWA/app/tasks"
)

type mockService struct {
	searchErr   error
	datasetErr  error
	refreshErr  error
	exportErr   error
	lastDays    int
	lastMinMag  float64
	lastForce   bool
	lastLimit   int
	lastCleanup int
	lastFormat  string
	lastKind    service.Kind
}

func (m *mockService) Search(ctx context.Context, sourceName, query, category string, limit int) ([]source.Descriptor, error) {
	m.lastLimit = limit
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return []source.Descriptor{{ID: "ds-1", Title: query, Source: sourceName}}, nil
}

func (m *mockService) GetDataset(ctx context.Context, sourceName, datasetID, format string, refresh bool) (*service.DatasetResult, error) {
	m.lastFormat = format
	if m.datasetErr != nil {
		return nil, m.datasetErr
	}
	t := table.New("name")
	t.Append(table.Record{"name": table.String("a")})
	t.Append(table.Record{"name": table.String("b")})
	return &service.DatasetResult{Source: sourceName, DatasetID: datasetID, Records: t, Cached: !refresh}, nil
}

func (m *mockService) Categories(ctx context.Context, sourceName string) ([]string, error) {
	if sourceName != "data_gov" {
		return nil, fmt.Errorf("%w: %s", source.ErrUnknownSource, sourceName)
	}
	return []string{"transport", "weather"}, nil
}

func (m *mockService) Sources() []string {
	return []string{"data_gov", "taiwan_cwa"}
}

func (m *mockService) GetWeatherForecast(ctx context.Context, force bool) ([]database.Forecast, *service.Metadata, error) {
	m.lastForce = force
	return []database.Forecast{{Location: "Taipei"}}, &service.Metadata{RecordCount: 1, IsFresh: true}, nil
}

func (m *mockService) GetEarthquakes(ctx context.Context, daysBack int, minMagnitude float64, force bool) ([]database.Earthquake, *service.Metadata, error) {
	m.lastDays, m.lastMinMag, m.lastForce = daysBack, minMagnitude, force
	return []database.Earthquake{}, &service.Metadata{}, nil
}

func (m *mockService) GetObservations(ctx context.Context, force bool) ([]database.Observation, *service.Metadata, error) {
	return nil, nil, &database.StoreError{Op: "query observations", Err: errors.New("disk I/O error")}
}

func (m *mockService) GetHealthStatus(ctx context.Context) (*service.HealthStatus, error) {
	return &service.HealthStatus{Score: 90, Status: "healthy", CheckedAt: time.Now()}, nil
}

func (m *mockService) ForceRefresh(ctx context.Context, kind service.Kind) (int, error) {
	m.lastKind = kind
	if m.refreshErr != nil {
		return 0, m.refreshErr
	}
	return 4, nil
}

func (m *mockService) ForceRefreshAll(ctx context.Context) (map[string]bool, error) {
	if m.refreshErr != nil {
		return nil, m.refreshErr
	}
	return map[string]bool{"forecasts": true, "earthquakes": false}, nil
}

func (m *mockService) ExportTable(ctx context.Context, name, path string) (string, int, error) {
	if name != "forecasts" {
		return "", 0, fmt.Errorf("%w: %s", database.ErrUnknownTable, name)
	}
	return "exports/forecasts.csv", 3, nil
}

func (m *mockService) ExportAll(ctx context.Context) (map[string]string, error) {
	if m.exportErr != nil {
		return nil, m.exportErr
	}
	return map[string]string{"forecasts": "exports/forecasts.csv"}, nil
}

func (m *mockService) Cleanup(ctx context.Context, retentionDays int) (*database.CleanupResult, error) {
	m.lastCleanup = retentionDays
	return &database.CleanupResult{Forecasts: 2, CallLogs: 1}, nil
}

func (m *mockService) TestConnectivity(ctx context.Context) map[string]service.ConnectivityResult {
	return map[string]service.ConnectivityResult{"taiwan_cwa": {Status: "online"}}
}

type mockScheduler struct{}

func (mockScheduler) Start()                                     {}
func (mockScheduler) Stop()                                      {}
func (mockScheduler) EnqueueTask(task tasks.TaskInterface) error { return nil }
func (mockScheduler) Health() map[string]interface{} {
	return map[string]interface{}{"status": "healthy"}
}

type mockConfigs map[string]*source.Config

func (m mockConfigs) GetConfig(sourceName string) (*source.Config, error) {
	config, ok := m[sourceName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", source.ErrUnknownSource, sourceName)
	}
	return config, nil
}

func (m mockConfigs) GetConfigs() map[string]*source.Config {
	return m
}

func setupTestServer(apiKey string) (*mockService, http.Handler) {
	svc := &mockService{}
	configs := mockConfigs{
		"data_gov":   {Name: "data_gov", Type: source.TypeCatalog, Enabled: true, BaseURL: "https://data.gov.tw", APIKey: "hidden"},
		"taiwan_cwa": {Name: "taiwan_cwa", Type: source.TypeCWA, Enabled: true, BaseURL: "https://opendata.cwa.gov.tw", APIKey: "hidden"},
		"census":     {Name: "census", Type: source.TypeCensus, Enabled: false, BaseURL: "https://api.census.gov"},
	}
	handler := NewHandler(svc, configs, mockScheduler{}, 30)
	return svc, NewServer(handler, apiKey)
}

func doRequest(t *testing.T, h http.Handler, method, path string, headers map[string]string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var body map[string]interface{}
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
		}
	}
	return w, body
}

func TestHealthEndpoint(t *testing.T) {
	_, server := setupTestServer("")

	w, body := doRequest(t, server, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if body["status"] != "ok" {
		t.Errorf("Expected status ok, got %v", body["status"])
	}
	if sources, ok := body["sources"].([]interface{}); !ok || len(sources) != 2 {
		t.Errorf("Expected 2 sources, got %v", body["sources"])
	}
	if scheduler, ok := body["scheduler"].(map[string]interface{}); !ok || scheduler["status"] != "healthy" {
		t.Errorf("Expected scheduler health, got %v", body["scheduler"])
	}
}

func TestAuthMiddleware(t *testing.T) {
	_, server := setupTestServer("secret")

	tests := []struct {
		name    string
		headers map[string]string
		status  int
	}{
		{"missing key", nil, http.StatusUnauthorized},
		{"wrong key", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"header key", map[string]string{"X-API-Key": "secret"}, http.StatusOK},
		{"bearer key", map[string]string{"Authorization": "Bearer secret"}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := doRequest(t, server, http.MethodGet, "/api/sources", tt.headers)
			if w.Code != tt.status {
				t.Errorf("Expected %d, got %d", tt.status, w.Code)
			}
		})
	}

	// Health stays public
	if w, _ := doRequest(t, server, http.MethodGet, "/health", nil); w.Code != http.StatusOK {
		t.Errorf("Expected public health endpoint, got %d", w.Code)
	}
}

func TestAPISearch(t *testing.T) {
	svc, server := setupTestServer("")

	w, body := doRequest(t, server, http.MethodGet, "/api/search?source=data_gov&q=bus", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if body["total"] != float64(1) {
		t.Errorf("Expected total 1, got %v", body["total"])
	}
	if svc.lastLimit != defaultSearchLimit {
		t.Errorf("Expected default limit %d, got %d", defaultSearchLimit, svc.lastLimit)
	}

	if w, _ := doRequest(t, server, http.MethodGet, "/api/search?q=bus", nil); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without source, got %d", w.Code)
	}
	if w, _ := doRequest(t, server, http.MethodGet, "/api/search?source=data_gov&limit=abc", nil); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad limit, got %d", w.Code)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"unknown source", fmt.Errorf("%w: nowhere", source.ErrUnknownSource), http.StatusNotFound},
		{"fetch", &fetch.FetchError{URL: "http://x", Attempts: 3, Err: errors.New("timeout")}, http.StatusBadGateway},
		{"parse", &source.ParseError{Source: "data_gov", Reason: "not json"}, http.StatusBadGateway},
		{"store", &database.StoreError{Op: "insert", Err: errors.New("locked")}, http.StatusInternalServerError},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, server := setupTestServer("")
			svc.searchErr = tt.err

			w, body := doRequest(t, server, http.MethodGet, "/api/search?source=data_gov", nil)
			if w.Code != tt.status {
				t.Errorf("Expected %d, got %d", tt.status, w.Code)
			}
			if body["details"] != tt.err.Error() {
				t.Errorf("Expected details %q, got %v", tt.err.Error(), body["details"])
			}
		})
	}
}

func TestAPIGetDataset(t *testing.T) {
	_, server := setupTestServer("")

	w, body := doRequest(t, server, http.MethodGet, "/api/datasets/data_gov/ds-1?refresh=true", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if w.Header().Get("X-Dataset-Rows") != "2" {
		t.Errorf("Expected 2 rows header, got %q", w.Header().Get("X-Dataset-Rows"))
	}
	if body["cached"] != false {
		t.Errorf("Expected refresh to bypass cache, got cached=%v", body["cached"])
	}
	if records, ok := body["records"].([]interface{}); !ok || len(records) != 2 {
		t.Errorf("Expected 2 records, got %v", body["records"])
	}
}

func TestAPIGetDatasetFormat(t *testing.T) {
	svc, server := setupTestServer("")

	if w, _ := doRequest(t, server, http.MethodGet, "/api/datasets/data_gov/ds-1?format=csv", nil); w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if svc.lastFormat != "csv" {
		t.Errorf("Expected format csv to be passed through, got %q", svc.lastFormat)
	}

	doRequest(t, server, http.MethodGet, "/api/datasets/data_gov/ds-1", nil)
	if svc.lastFormat != "" {
		t.Errorf("Expected no format by default, got %q", svc.lastFormat)
	}
}

func TestAPISources(t *testing.T) {
	_, server := setupTestServer("")

	w, body := doRequest(t, server, http.MethodGet, "/api/sources", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	configs, ok := body["configs"].([]interface{})
	if !ok || len(configs) != 3 {
		t.Fatalf("Expected 3 configs, got %v", body["configs"])
	}
	first := configs[0].(map[string]interface{})
	if first["name"] != "census" || first["enabled"] != false {
		t.Errorf("Expected configs sorted by name with census disabled, got %v", first)
	}
	for _, c := range configs {
		if _, leaked := c.(map[string]interface{})["api_key"]; leaked {
			t.Error("Expected API key to be withheld")
		}
	}

	w, body = doRequest(t, server, http.MethodGet, "/api/sources/taiwan_cwa", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if body["type"] != source.TypeCWA || body["registered"] != true {
		t.Errorf("Unexpected source info: %v", body)
	}
	if _, leaked := body["api_key"]; leaked {
		t.Error("Expected API key to be withheld")
	}

	_, body = doRequest(t, server, http.MethodGet, "/api/sources/census", nil)
	if body["registered"] != false {
		t.Errorf("Expected disabled census to be unregistered, got %v", body["registered"])
	}

	if w, _ := doRequest(t, server, http.MethodGet, "/api/sources/nowhere", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestAPIGetCategoriesUnknownSource(t *testing.T) {
	_, server := setupTestServer("")

	if w, _ := doRequest(t, server, http.MethodGet, "/api/categories/data_gov", nil); w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
	if w, _ := doRequest(t, server, http.MethodGet, "/api/categories/nowhere", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestAPIGetEarthquakes(t *testing.T) {
	svc, server := setupTestServer("")

	w, body := doRequest(t, server, http.MethodGet, "/api/earthquakes", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if svc.lastDays != defaultDaysBack || svc.lastMinMag != 0 || svc.lastForce {
		t.Errorf("Unexpected defaults: days=%d min=%v force=%v", svc.lastDays, svc.lastMinMag, svc.lastForce)
	}
	if records, ok := body["records"].([]interface{}); !ok || len(records) != 0 {
		t.Errorf("Expected empty records array, got %v", body["records"])
	}

	doRequest(t, server, http.MethodGet, "/api/earthquakes?days=3&min_magnitude=4.5&force=true", nil)
	if svc.lastDays != 3 || svc.lastMinMag != 4.5 || !svc.lastForce {
		t.Errorf("Unexpected params: days=%d min=%v force=%v", svc.lastDays, svc.lastMinMag, svc.lastForce)
	}

	for _, query := range []string{"days=0", "days=x", "min_magnitude=big"} {
		if w, _ := doRequest(t, server, http.MethodGet, "/api/earthquakes?"+query, nil); w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400 for %s, got %d", query, w.Code)
		}
	}
}

func TestAPIGetForecastAndObservations(t *testing.T) {
	svc, server := setupTestServer("")

	w, body := doRequest(t, server, http.MethodGet, "/api/weather/forecast?force=1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if !svc.lastForce {
		t.Error("Expected force to be passed through")
	}
	meta, ok := body["metadata"].(map[string]interface{})
	if !ok || meta["record_count"] != float64(1) {
		t.Errorf("Expected metadata with record_count 1, got %v", body["metadata"])
	}

	if w, _ := doRequest(t, server, http.MethodGet, "/api/weather/observations", nil); w.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500 for store failure, got %d", w.Code)
	}
}

func TestAPIRefreshAll(t *testing.T) {
	svc, server := setupTestServer("")

	w, body := doRequest(t, server, http.MethodPost, "/api/refresh", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if body["success"] != false {
		t.Errorf("Expected partial failure to report success=false, got %v", body["success"])
	}

	svc.refreshErr = &database.StoreError{Op: "save", Err: errors.New("locked")}
	if w, _ := doRequest(t, server, http.MethodPost, "/api/refresh", nil); w.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", w.Code)
	}
}

func TestAPIRefreshType(t *testing.T) {
	svc, server := setupTestServer("")

	w, body := doRequest(t, server, http.MethodPost, "/api/refresh/earthquakes", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if svc.lastKind != service.KindEarthquakes {
		t.Errorf("Expected earthquakes refresh, got %q", svc.lastKind)
	}
	if body["type"] != "earthquakes" || body["success"] != true || body["records"] != float64(4) {
		t.Errorf("Unexpected response: %v", body)
	}

	if w, _ := doRequest(t, server, http.MethodPost, "/api/refresh/tides", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown type, got %d", w.Code)
	}

	svc.refreshErr = fmt.Errorf("failed to refresh earthquakes: %w", &fetch.FetchError{URL: "http://x", Attempts: 3, Err: errors.New("timeout")})
	if w, _ := doRequest(t, server, http.MethodPost, "/api/refresh/earthquakes", nil); w.Code != http.StatusBadGateway {
		t.Errorf("Expected 502 for upstream failure, got %d", w.Code)
	}
}

func TestAPIExport(t *testing.T) {
	_, server := setupTestServer("")

	w, body := doRequest(t, server, http.MethodPost, "/api/export/forecasts", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if body["rows"] != float64(3) {
		t.Errorf("Expected 3 rows, got %v", body["rows"])
	}

	if w, _ := doRequest(t, server, http.MethodPost, "/api/export/users", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown table, got %d", w.Code)
	}

	w, body = doRequest(t, server, http.MethodPost, "/api/export", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if exports, ok := body["exports"].(map[string]interface{}); !ok || len(exports) != 1 {
		t.Errorf("Expected one export, got %v", body["exports"])
	}
}

func TestAPICleanup(t *testing.T) {
	svc, server := setupTestServer("")

	w, body := doRequest(t, server, http.MethodPost, "/api/cleanup", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if svc.lastCleanup != 30 {
		t.Errorf("Expected configured retention 30, got %d", svc.lastCleanup)
	}
	if body["total"] != float64(3) {
		t.Errorf("Expected total 3, got %v", body["total"])
	}

	doRequest(t, server, http.MethodPost, "/api/cleanup?days=7", nil)
	if svc.lastCleanup != 7 {
		t.Errorf("Expected retention 7, got %d", svc.lastCleanup)
	}

	if w, _ := doRequest(t, server, http.MethodPost, "/api/cleanup?days=0", nil); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestAPIStatusAndConnectivity(t *testing.T) {
	_, server := setupTestServer("")

	w, body := doRequest(t, server, http.MethodGet, "/api/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if body["health_score"] != float64(90) {
		t.Errorf("Expected score 90, got %v", body["health_score"])
	}

	w, body = doRequest(t, server, http.MethodGet, "/api/connectivity", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if cwa, ok := body["taiwan_cwa"].(map[string]interface{}); !ok || cwa["status"] != "online" {
		t.Errorf("Expected taiwan_cwa online, got %v", body["taiwan_cwa"])
	}
}

func TestRootAndFavicon(t *testing.T) {
	_, server := setupTestServer("")

	w, body := doRequest(t, server, http.MethodGet, "/", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if body["service"] != "TawinCWA" {
		t.Errorf("Unexpected service name %v", body["service"])
	}

	if w, _ := doRequest(t, server, http.MethodGet, "/favicon.ico", nil); w.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", w.Code)
	}

	if w, _ := doRequest(t, server, http.MethodOptions, "/api/sources", nil); w.Code != http.StatusNoContent {
		t.Errorf("Expected preflight 204, got %d", w.Code)
	}
}
