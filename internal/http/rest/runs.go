package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/italolelis/fetchpilot/internal/logctx"
	"github.com/italolelis/fetchpilot/internal/storage"
)

const defaultRunsLimit = 50

// RunView is the API shape of a run record.
type RunView struct {
	RunID         string `json:"runId"`
	Action        string `json:"action"`
	CorrelationID string `json:"correlationId,omitempty"`
	TargetURL     string `json:"targetUrl"`
	Status        string `json:"status"`
	ResultMessage string `json:"resultMessage,omitempty"`
	FilePath      string `json:"filePath,omitempty"`
	Executor      string `json:"executor,omitempty"`
	CreatedAt     string `json:"createdAt,omitempty"`
	FinishedAt    string `json:"finishedAt,omitempty"`
}

// HandleListRuns returns the most recent runs, newest first.
func (h *ActionHandler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logctx.LoggerFromContext(ctx)

	if h.history == nil {
		http.Error(w, "run history is not enabled", http.StatusNotFound)

		return
	}

	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)

			return
		}

		limit = parsed
	}

	runs, err := h.history.GetRuns(limit)
	if err != nil {
		logger.ErrorContext(ctx, "failed to list runs", "err", err)
		http.Error(w, "failed to list runs", http.StatusInternalServerError)

		return
	}

	views := make([]RunView, 0, len(runs))
	for _, run := range runs {
		views = append(views, toRunView(run))
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(map[string]any{"runs": views}); err != nil {
		logger.ErrorContext(ctx, "failed to encode response", "err", err)
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

// HandleGetRun returns a single run by id.
func (h *ActionHandler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logctx.LoggerFromContext(ctx)

	if h.history == nil {
		http.Error(w, "run history is not enabled", http.StatusNotFound)

		return
	}

	runID := chi.URLParam(r, "id")

	run, err := h.history.GetRun(runID)
	if err != nil {
		if errors.Is(err, storage.ErrRunNotFound) {
			http.Error(w, "run not found", http.StatusNotFound)

			return
		}

		logger.ErrorContext(ctx, "failed to get run", "run_id", runID, "err", err)
		http.Error(w, "failed to get run", http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(toRunView(*run)); err != nil {
		logger.ErrorContext(ctx, "failed to encode response", "err", err)
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

func toRunView(run storage.RunRecord) RunView {
	view := RunView{
		RunID:         run.RunID,
		Action:        run.Action,
		CorrelationID: run.CorrelationID,
		TargetURL:     run.TargetURL,
		Status:        run.Status,
		ResultMessage: run.ResultMessage,
		FilePath:      run.FilePath,
		Executor:      run.Executor,
	}

	if !run.CreatedAt.IsZero() {
		view.CreatedAt = run.CreatedAt.Format(time.RFC3339)
	}

	if !run.FinishedAt.IsZero() {
		view.FinishedAt = run.FinishedAt.Format(time.RFC3339)
	}

	return view
}
