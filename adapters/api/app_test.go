package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"permscreen/adapters/permutation"
	"permscreen/adapters/tabular"
	"permscreen/app"
	"permscreen/domain/stats"
	"permscreen/internal"
	"permscreen/internal/testkit"
)

func newTestApp(t *testing.T) (*App, *testkit.InMemoryScreenStore) {
	t.Helper()
	kit := testkit.NewTestKit()
	store := kit.ScreenStore()
	logger := internal.NewLogger(internal.LogLevelError)
	service := app.NewScreenService(
		permutation.NewEngine(),
		tabular.NewCohortReader(),
		kit.RNGAdapter(),
		store,
		logger,
	)
	defaults := Defaults{NumPermutations: 500, Alpha: 0.05, Seed: 294}
	return NewApp(service, defaults, logger), store
}

func writeCohortCSV(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("sample,ER Status,NP_000001,NP_000002\n")
	for i := 0; i < 8; i++ {
		jitter := float64(i%4) * 0.4
		buf.WriteString(fmt.Sprintf("p%d,Positive,%g,%g\n", i, 9.5+jitter, 1.0+jitter))
	}
	for i := 8; i < 16; i++ {
		jitter := float64(i%4) * 0.4
		buf.WriteString(fmt.Sprintf("p%d,Negative,%g,%g\n", i, 1.5+jitter, 1.1+jitter))
	}

	path := filepath.Join(t.TempDir(), "cohort.csv")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestRunScreenEndpoint(t *testing.T) {
	api, store := newTestApp(t)
	path := writeCohortCSV(t)

	body, _ := json.Marshal(ScreenRequestBody{
		Path:          path,
		LabelColumn:   "ER Status",
		CategoryA:     "Positive",
		CategoryB:     "Negative",
		OutcomePrefix: "NP_",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/screens", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	api.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var result stats.ScreenResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 2, result.Manifest.ColumnsTested)
	assert.Equal(t, 500, result.Manifest.NumPermutations)
	assert.InDelta(t, 8.0, result.Results["NP_000001"].Observed, 1e-9)
	require.NotEmpty(t, result.Shortlist)
	assert.Equal(t, "NP_000001", string(result.Shortlist[0].Variable))

	// run was persisted
	saved, err := store.GetScreen(t.Context(), result.Manifest.ScreenID)
	require.NoError(t, err)
	assert.Equal(t, result.Manifest.Seed, saved.Manifest.Seed)
}

func TestRunScreenEndpointValidation(t *testing.T) {
	api, _ := newTestApp(t)

	cases := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{"path": `, http.StatusBadRequest},
		{"missing fields", `{"path": "/tmp/x.csv"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/screens", bytes.NewReader([]byte(tc.body)))
			rec := httptest.NewRecorder()
			api.Router().ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestGetScreenEndpoint(t *testing.T) {
	api, _ := newTestApp(t)
	path := writeCohortCSV(t)

	body, _ := json.Marshal(ScreenRequestBody{
		Path:          path,
		LabelColumn:   "ER Status",
		CategoryA:     "Positive",
		CategoryB:     "Negative",
		OutcomePrefix: "NP_",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/screens", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	api.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created stats.ScreenResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	getReq := httptest.NewRequest(http.MethodGet, "/api/screens/"+string(created.Manifest.ScreenID), nil)
	getRec := httptest.NewRecorder()
	api.Router().ServeHTTP(getRec, getReq)
	require.Equal(t, http.StatusOK, getRec.Code)

	var fetched stats.ScreenResult
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &fetched))
	assert.Equal(t, created.Manifest.ScreenID, fetched.Manifest.ScreenID)
	assert.Len(t, fetched.Results, 2)
}

func TestGetScreenEndpointNotFound(t *testing.T) {
	api, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/api/screens/does-not-exist", nil)
	rec := httptest.NewRecorder()
	api.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListScreensEndpoint(t *testing.T) {
	api, _ := newTestApp(t)
	path := writeCohortCSV(t)

	for i := 0; i < 2; i++ {
		seed := int64(100 + i)
		body, _ := json.Marshal(ScreenRequestBody{
			Path:          path,
			LabelColumn:   "ER Status",
			CategoryA:     "Positive",
			CategoryB:     "Negative",
			OutcomePrefix: "NP_",
			Seed:          &seed,
		})
		req := httptest.NewRequest(http.MethodPost, "/api/screens", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		api.Router().ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/screens?limit=10", nil)
	rec := httptest.NewRecorder()
	api.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var listing struct {
		Screens []stats.ScreenManifest `json:"screens"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	require.Len(t, listing.Screens, 2)
	assert.Equal(t, int64(101), listing.Screens[0].Seed) // newest first
}

func TestHealthEndpoint(t *testing.T) {
	api, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	api.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
