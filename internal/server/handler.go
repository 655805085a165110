// Package server exposes a read-mostly JSON API over an experiment root so
// trained runs can be browsed and re-evaluated without the CLI.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/behaviorlab/crowdsim/internal/app"
	"github.com/behaviorlab/crowdsim/internal/exp"
	"github.com/behaviorlab/crowdsim/internal/metrics"
	"github.com/behaviorlab/crowdsim/internal/task"
	"github.com/behaviorlab/crowdsim/internal/worker"
)

// Handler provides the HTTP API endpoints.
type Handler struct {
	app     *app.App
	expRoot string
	logger  *slog.Logger
}

// NewHandler creates an API handler over the app's experiment root.
func NewHandler(a *app.App, expRoot string) *Handler {
	return &Handler{app: a, expRoot: expRoot, logger: a.Logger()}
}

// RegisterRoutes sets up all API routes.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.handleHealth).Methods("GET")
	r.HandleFunc("/runs", h.handleListRuns).Methods("GET")
	r.HandleFunc("/runs/{name}", h.handleRunConfig).Methods("GET")
	r.HandleFunc("/runs/{name}/worker", h.handleRunWorker).Methods("GET")
	r.HandleFunc("/runs/{name}/anticheat", h.handleRunAntiCheat).Methods("GET")
	r.HandleFunc("/runs/{name}/distributions", h.handleRunDistributions).Methods("GET")
	r.HandleFunc("/runs/{name}/episodes", h.handleRunEpisodes).Methods("GET")
	r.HandleFunc("/runs/{name}/evaluations", h.handleRunEvaluations).Methods("GET")
	r.HandleFunc("/runs/{name}/evaluate", h.handleRunEvaluate).Methods("POST")
}

// respondJSON sends a JSON response.
func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("encoding response failed", "error", err)
	}
}

// respondError sends a JSON error response.
func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

func (h *Handler) openRun(w http.ResponseWriter, r *http.Request) (*exp.Run, bool) {
	name := mux.Vars(r)["name"]
	run, err := exp.Open(h.expRoot, name)
	if err != nil {
		if errors.Is(err, exp.ErrRunNotFound) {
			h.respondError(w, http.StatusNotFound, err.Error())
		} else {
			h.respondError(w, http.StatusInternalServerError, err.Error())
		}
		return nil, false
	}
	return run, true
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleListRuns(w http.ResponseWriter, _ *http.Request) {
	names, err := exp.List(h.expRoot)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if names == nil {
		names = []string{}
	}
	h.respondJSON(w, http.StatusOK, names)
}

func (h *Handler) handleRunConfig(w http.ResponseWriter, r *http.Request) {
	run, ok := h.openRun(w, r)
	if !ok {
		return
	}
	h.respondJSON(w, http.StatusOK, run.Config)
}

func (h *Handler) handleRunWorker(w http.ResponseWriter, r *http.Request) {
	run, ok := h.openRun(w, r)
	if !ok {
		return
	}
	props, err := worker.Load(run.Path(exp.WorkerPropertiesFile))
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.respondJSON(w, http.StatusOK, props)
}

func (h *Handler) handleRunAntiCheat(w http.ResponseWriter, r *http.Request) {
	run, ok := h.openRun(w, r)
	if !ok {
		return
	}
	settings, err := task.LoadAntiCheatSettings(run.Path(exp.AntiCheatFile))
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.respondJSON(w, http.StatusOK, settings)
}

func (h *Handler) handleRunDistributions(w http.ResponseWriter, r *http.Request) {
	run, ok := h.openRun(w, r)
	if !ok {
		return
	}
	data, err := os.ReadFile(run.Path(exp.DistributionsTextFile))
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	h.respondJSON(w, http.StatusOK, map[string][]string{"distributions": lines})
}

func (h *Handler) handleRunEpisodes(w http.ResponseWriter, r *http.Request) {
	run, ok := h.openRun(w, r)
	if !ok {
		return
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	store, err := metrics.Open(run.Path(exp.MetricsFile))
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer store.Close()
	episodes, err := store.Episodes(run.Config.RunID, limit)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if episodes == nil {
		episodes = []metrics.EpisodeRecord{}
	}
	h.respondJSON(w, http.StatusOK, episodes)
}

func (h *Handler) handleRunEvaluations(w http.ResponseWriter, r *http.Request) {
	run, ok := h.openRun(w, r)
	if !ok {
		return
	}
	store, err := metrics.Open(run.Path(exp.MetricsFile))
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer store.Close()
	evals, err := store.Evaluations(run.Config.RunID)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if evals == nil {
		evals = []metrics.EvaluationRecord{}
	}
	h.respondJSON(w, http.StatusOK, evals)
}

func (h *Handler) handleRunEvaluate(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	q := r.URL.Query()

	opts := app.EvaluateOptions{
		Run:      name,
		Episodes: 10,
		Workers:  4,
		Record:   q.Get("record") == "1",
	}
	if raw := q.Get("episodes"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.respondError(w, http.StatusBadRequest, "invalid episodes")
			return
		}
		opts.Episodes = parsed
	}
	if raw := q.Get("workers"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.respondError(w, http.StatusBadRequest, "invalid workers")
			return
		}
		opts.Workers = parsed
	}
	if raw := q.Get("seed"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "invalid seed")
			return
		}
		opts.Seed = parsed
	}

	report, err := h.app.Evaluate(r.Context(), opts)
	if err != nil {
		if errors.Is(err, exp.ErrRunNotFound) {
			h.respondError(w, http.StatusNotFound, err.Error())
			return
		}
		h.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.respondJSON(w, http.StatusOK, report)
}
