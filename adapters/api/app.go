package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"permscreen/app"
	"permscreen/domain/core"
	"permscreen/internal"
	apperrors "permscreen/internal/errors"
	"permscreen/ports"
)

// Defaults fill screen parameters omitted from a request
type Defaults struct {
	NumPermutations int
	Alpha           float64
	Seed            int64
}

// App exposes the screening service over HTTP
type App struct {
	router   *chi.Mux
	screens  *app.ScreenService
	defaults Defaults
	logger   *internal.Logger
}

// NewApp creates the HTTP application around a screening service
func NewApp(screens *app.ScreenService, defaults Defaults, logger *internal.Logger) *App {
	a := &App{
		router:   chi.NewRouter(),
		screens:  screens,
		defaults: defaults,
		logger:   logger.With("api"),
	}
	a.setupMiddleware()
	a.setupRoutes()
	return a
}

// Router returns the HTTP handler for serving
func (a *App) Router() http.Handler {
	return a.router
}

func (a *App) setupMiddleware() {
	a.router.Use(middleware.RequestID)
	a.router.Use(middleware.Logger)
	a.router.Use(middleware.Recoverer)
}

func (a *App) setupRoutes() {
	a.router.Get("/healthz", a.handleHealth)

	a.router.Post("/api/screens", a.handleRunScreen)
	a.router.Get("/api/screens", a.handleListScreens)
	a.router.Get("/api/screens/{id}", a.handleGetScreen)
}

// ScreenRequestBody is the POST /api/screens payload
type ScreenRequestBody struct {
	Path            string  `json:"path"`
	LabelColumn     string  `json:"label_column"`
	CategoryA       string  `json:"category_a"`
	CategoryB       string  `json:"category_b"`
	OutcomePrefix   string  `json:"outcome_prefix"`
	NumPermutations int     `json:"num_permutations,omitempty"`
	Alpha           float64 `json:"alpha,omitempty"`
	Seed            *int64  `json:"seed,omitempty"`
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	a.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) handleRunScreen(w http.ResponseWriter, r *http.Request) {
	var body ScreenRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Path == "" || body.LabelColumn == "" || body.CategoryA == "" || body.CategoryB == "" {
		a.respondError(w, http.StatusBadRequest, "path, label_column, category_a and category_b are required")
		return
	}

	req := app.ScreenRequest{
		Path: body.Path,
		Spec: ports.CohortSpec{
			LabelColumn:   body.LabelColumn,
			CategoryA:     body.CategoryA,
			CategoryB:     body.CategoryB,
			OutcomePrefix: body.OutcomePrefix,
		},
		NumPermutations: body.NumPermutations,
		Alpha:           body.Alpha,
		Seed:            a.defaults.Seed,
	}
	if req.NumPermutations == 0 {
		req.NumPermutations = a.defaults.NumPermutations
	}
	if req.Alpha == 0 {
		req.Alpha = a.defaults.Alpha
	}
	if body.Seed != nil {
		req.Seed = *body.Seed
	}

	result, err := a.screens.ScreenFile(r.Context(), req)
	if err != nil {
		a.respondServiceError(w, err)
		return
	}
	a.respondJSON(w, http.StatusCreated, result)
}

func (a *App) handleGetScreen(w http.ResponseWriter, r *http.Request) {
	screenID, err := core.ParseScreenID(chi.URLParam(r, "id"))
	if err != nil {
		a.respondError(w, http.StatusBadRequest, "invalid screen id")
		return
	}

	result, err := a.screens.GetScreen(r.Context(), screenID)
	if err != nil {
		a.respondServiceError(w, err)
		return
	}
	a.respondJSON(w, http.StatusOK, result)
}

func (a *App) handleListScreens(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			a.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	manifests, err := a.screens.ListScreens(r.Context(), limit)
	if err != nil {
		a.respondServiceError(w, err)
		return
	}
	a.respondJSON(w, http.StatusOK, map[string]interface{}{"screens": manifests})
}

// respondServiceError maps domain errors onto HTTP statuses
func (a *App) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case core.IsNotFoundError(err) || apperrors.GetCode(err) == apperrors.CodeNotFound:
		a.respondError(w, http.StatusNotFound, err.Error())
	case core.IsInvalidInput(err):
		a.respondError(w, http.StatusBadRequest, err.Error())
	case core.IsDegenerateGroup(err):
		a.respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		a.logger.Error("screen request failed: %v", err)
		a.respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func (a *App) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		a.logger.Error("failed to encode response: %v", err)
	}
}

func (a *App) respondError(w http.ResponseWriter, status int, message string) {
	a.respondJSON(w, status, map[string]string{"error": message})
}
