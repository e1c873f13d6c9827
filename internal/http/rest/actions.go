// Package rest exposes the action API: named remote actions that execute
// download runs, plus run history.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/italolelis/fetchpilot/internal/logctx"
	"github.com/italolelis/fetchpilot/internal/storage"
	"github.com/italolelis/fetchpilot/internal/task"
)

// Action is a named, remotely invokable run configuration. Preset fields
// override whatever the caller sends, so a preset action always runs the
// same way.
type Action struct {
	Name        string
	Description string
	Preset      *task.Params
}

// ActionPayload is the request body for the generic action.
type ActionPayload struct {
	TargetURL   string `json:"targetUrl"`
	Instruction string `json:"instruction"`
	MaxSteps    int    `json:"maxSteps"`
}

// RunExecutor executes one download run. Satisfied by *task.Runner.
type RunExecutor interface {
	Run(ctx context.Context, params task.Params) task.Result
}

type ActionHandler struct {
	username string
	password string
	runner   RunExecutor
	runs     storage.RunWriteRepository
	history  storage.RunReadRepository
	executor string
	actions  map[string]Action
}

// NewActionHandler creates the handler with the built-in action catalog:
// a payload-driven download action and a preset variant that always runs
// against the defaults.
func NewActionHandler(username, password string, runner RunExecutor, runs storage.RunWriteRepository, history storage.RunReadRepository) *ActionHandler {
	h := &ActionHandler{
		username: username,
		password: password,
		runner:   runner,
		runs:     runs,
		history:  history,
		executor: storage.GenerateExecutorID(),
		actions:  make(map[string]Action),
	}

	h.register(Action{
		Name:        "download-file",
		Description: "Drive the browser agent against a target page and capture the download it triggers.",
	})
	h.register(Action{
		Name:        "download-sample-file",
		Description: "Run the download flow against the configured default page.",
		Preset:      &task.Params{},
	})

	return h
}

func (h *ActionHandler) register(a Action) {
	h.actions[a.Name] = a
}

func (h *ActionHandler) Routes() http.Handler {
	r := chi.NewRouter()

	if h.username != "" {
		r.Use(h.basicAuthMiddleware)
	}

	r.Post("/v1/actions/{name}", h.HandleAction)
	r.Get("/v1/runs", h.HandleListRuns)
	r.Get("/v1/runs/{id}", h.HandleGetRun)

	return r
}

// HandleAction executes a named action. The run outcome is always answered
// with HTTP 200; Success inside the body tells the caller how it went.
func (h *ActionHandler) HandleAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logctx.LoggerFromContext(ctx)

	name := chi.URLParam(r, "name")

	action, ok := h.actions[name]
	if !ok {
		logger.WarnContext(ctx, "unknown action requested", "action", name)
		http.Error(w, "unknown action "+name, http.StatusNotFound)

		return
	}

	params, err := h.buildParams(r, action)
	if err != nil {
		logger.ErrorContext(ctx, "failed to decode action payload", "action", name, "err", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)

		return
	}

	params.CorrelationID = logctx.CorrelationIDFromContext(ctx)

	runID := uuid.New().String()

	logger.InfoContext(ctx, "executing action", "action", name, "run_id", runID)

	h.trackRun(ctx, runID, name, params)

	result := h.runner.Run(ctx, params)

	h.finishRun(ctx, runID, result)

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(result); err != nil {
		logger.ErrorContext(ctx, "failed to encode response", "err", err)
		http.Error(w, "failed to encode response", http.StatusInternalServerError)

		return
	}
}

// buildParams merges the request payload with the action preset. A preset
// action ignores the payload entirely.
func (h *ActionHandler) buildParams(r *http.Request, action Action) (task.Params, error) {
	if action.Preset != nil {
		return *action.Preset, nil
	}

	var payload ActionPayload

	err := json.NewDecoder(r.Body).Decode(&payload)
	if err != nil && !errors.Is(err, io.EOF) {
		return task.Params{}, err
	}

	return task.Params{
		TargetURL:   payload.TargetURL,
		Instruction: payload.Instruction,
		MaxSteps:    payload.MaxSteps,
	}, nil
}

func (h *ActionHandler) trackRun(ctx context.Context, runID, action string, params task.Params) {
	if h.runs == nil {
		return
	}

	logger := logctx.LoggerFromContext(ctx)

	err := h.runs.TrackRun(storage.RunRecord{
		RunID:         runID,
		Action:        action,
		CorrelationID: params.CorrelationID,
		TargetURL:     params.TargetURL,
		Executor:      h.executor,
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to track run", "run_id", runID, "err", err)
	}
}

func (h *ActionHandler) finishRun(ctx context.Context, runID string, result task.Result) {
	if h.runs == nil {
		return
	}

	logger := logctx.LoggerFromContext(ctx)

	if err := h.runs.FinishRun(runID, result.Status(), result.ResultMessage, result.DownloadedFilePath); err != nil {
		logger.ErrorContext(ctx, "failed to record run outcome", "run_id", runID, "err", err)
	}
}

func (h *ActionHandler) basicAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			http.Error(w, "invalid authorization format", http.StatusUnauthorized)

			return
		}

		if username != h.username || password != h.password {
			http.Error(w, "invalid username or password", http.StatusUnauthorized)

			return
		}

		next.ServeHTTP(w, r)
	})
}
