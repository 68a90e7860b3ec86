package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-reply/internal/orchestrator"
)

// ErrorResponse is the JSON body of a failed API call.
type ErrorResponse struct {
	Error string `json:"error"`
	Stage string `json:"stage,omitempty"`
}

// Index renders the empty upload page.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	renderPage(w, http.StatusOK, pageData{})
}

// SubmitForm runs the pipeline on a form upload and re-renders the page.
func (h *Handler) SubmitForm(w http.ResponseWriter, r *http.Request) {
	result, err := h.handleUpload(w, r)
	if err != nil {
		status, _ := classify(err)
		renderPage(w, status, pageData{Error: err.Error(), Transcript: transcriptOf(err)})
		return
	}

	renderPage(w, http.StatusOK, pageData{
		Transcript: result.Transcript,
		Reply:      result.Reply,
		AudioSrc:   audioSrc(result),
	})
}

// ProcessAPI runs the pipeline on a form upload and answers with JSON.
func (h *Handler) ProcessAPI(w http.ResponseWriter, r *http.Request) {
	result, err := h.handleUpload(w, r)
	if err != nil {
		status, stage := classify(err)
		writeJSON(w, status, ErrorResponse{Error: err.Error(), Stage: stage})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Audio serves a generated reply by name.
func (h *Handler) Audio(w http.ResponseWriter, r *http.Request) {
	path, ok := h.artifacts.Lookup(chi.URLParam(r, "name"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	http.ServeFile(w, r, path)
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) (*orchestrator.Result, error) {
	up, err := h.receiveForm(w, r)
	if err != nil {
		h.logFailure(r.Context(), err)
		return nil, err
	}
	defer up.Remove()

	return h.run(r.Context(), up)
}

// run executes the pipeline and logs a failure once.
func (h *Handler) run(ctx context.Context, up *upload) (*orchestrator.Result, error) {
	result, err := h.proc.Process(ctx, up.Path)
	if err != nil {
		h.logFailure(ctx, err)
		return nil, err
	}
	return result, nil
}

func (h *Handler) logFailure(ctx context.Context, err error) {
	logger := zerolog.Ctx(ctx)
	if logger.GetLevel() == zerolog.Disabled {
		logger = &h.logger
	}

	status, stage := classify(err)
	event := logger.Error()
	if status < http.StatusInternalServerError {
		event = logger.Warn()
	}
	event.Err(err).Str("stage", stage).Int("status", status).Msg("Voice reply failed")
}

// classify maps a pipeline error to an HTTP status and the failing stage.
func classify(err error) (int, string) {
	var upErr *uploadError
	if errors.As(err, &upErr) {
		return upErr.status, "upload"
	}

	stage := ""
	var stageErr *orchestrator.StageError
	if errors.As(err, &stageErr) {
		stage = stageErr.Stage
	}

	var cfgErr *orchestrator.ConfigError
	if errors.As(err, &cfgErr) {
		return http.StatusServiceUnavailable, stage
	}
	return http.StatusInternalServerError, stage
}

func transcriptOf(err error) string {
	var stageErr *orchestrator.StageError
	if errors.As(err, &stageErr) {
		return stageErr.Transcript
	}
	return ""
}

func audioSrc(result *orchestrator.Result) string {
	return "/audio/" + filepath.Base(result.AudioPath)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
