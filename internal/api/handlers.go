package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"script-sandbox/internal/monitor"
	"script-sandbox/internal/script"
	"script-sandbox/internal/storage"
)

type Handlers struct {
	engine      script.Executor
	db          *storage.DB
	auditWriter *storage.AuditWriter
	metrics     *monitor.Metrics
	tracer      *monitor.Tracer
}

func NewHandlers(engine script.Executor, db *storage.DB, auditWriter *storage.AuditWriter, metrics *monitor.Metrics) *Handlers {
	return &Handlers{
		engine:      engine,
		db:          db,
		auditWriter: auditWriter,
		metrics:     metrics,
		tracer:      monitor.NewTracer(),
	}
}

func (h *Handlers) HandleExecute(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid JSON: "+err.Error(), "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	if h.engine == nil {
		writeError(w, "execution engine unavailable", "ENGINE_UNAVAILABLE", http.StatusServiceUnavailable, r)
		return
	}

	h.metrics.SourceSizeBytes.Observe(float64(len(req.SourceText)))
	h.metrics.ActiveExecutions.Inc()
	defer h.metrics.ActiveExecutions.Dec()

	ctx, span := h.tracer.StartSpan(r.Context(), "execute")
	defer span.End()

	start := time.Now()
	result, err := h.engine.Execute(ctx, script.Request{
		Source:    req.SourceText,
		Input:     req.InputValue,
		Variables: req.BoundVariables,
		TimeoutMS: req.TimeoutMS,
		Language:  req.GuestLanguageID,
	})
	elapsed := time.Since(start)

	if result == nil {
		switch {
		case errors.Is(err, script.ErrInvalidRequest), errors.Is(err, script.ErrUnsupportedLanguage):
			h.metrics.RecordExecution("rejected", elapsed.Seconds())
			writeError(w, err.Error(), "VALIDATION_ERROR", http.StatusBadRequest, r)
		default:
			log.Error().Err(err).Str("request_id", RequestIDFromContext(r.Context())).Msg("execution failed")
			writeError(w, "execution failed", "EXECUTION_FAILED", http.StatusInternalServerError, r)
		}
		return
	}

	// Guest-caused outcomes (runtime errors, timeouts, rejected source) all
	// come back as an envelope; only bookkeeping differs per sentinel.
	if errors.Is(err, script.ErrInternal) {
		h.metrics.EvaluatorFaultsTotal.Inc()
	}
	if errors.Is(err, script.ErrValidationRejected) {
		h.recordRejectionRules(req.SourceText)
	}
	if result.LogsTruncated {
		h.metrics.LogTruncationsTotal.Inc()
	}
	h.metrics.RecordExecution(string(result.Status), elapsed.Seconds())
	h.metrics.LogLinesPerRun.Observe(float64(len(result.LogLines)))

	span.SetAttributes(
		monitor.AttrExecID.String(result.ID),
		monitor.AttrStatus.String(string(result.Status)),
		monitor.AttrCodeHash.String(result.CodeHash),
		monitor.AttrElapsedMS.Int64(result.ElapsedMS),
	)

	h.logAudit(result, len(req.SourceText), start, r)

	writeJSON(w, http.StatusOK, toResponse(result))
}

func (h *Handlers) HandleValidate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid JSON: "+err.Error(), "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	if h.engine == nil {
		writeError(w, "execution engine unavailable", "ENGINE_UNAVAILABLE", http.StatusServiceUnavailable, r)
		return
	}

	verdict := h.engine.Validate(req.SourceText)

	resp := ValidateResponse{
		Allowed:    verdict.Allowed,
		Violations: make([]Violation, 0, len(verdict.Violations)),
	}
	for _, v := range verdict.Violations {
		h.metrics.RecordValidationRejection(v.Rule)
		resp.Violations = append(resp.Violations, Violation{
			Rule:    v.Rule,
			Message: v.Message,
			Line:    v.Line,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) HandleExecuteStream(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid JSON: "+err.Error(), "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	if h.engine == nil {
		writeError(w, "execution engine unavailable", "ENGINE_UNAVAILABLE", http.StatusServiceUnavailable, r)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sse := NewSSEWriter(w)
	if sse == nil {
		writeError(w, "streaming not supported", "STREAMING_UNSUPPORTED", http.StatusInternalServerError, r)
		return
	}

	sink := func(line script.LogLine) {
		data, err := json.Marshal(LogLine{Level: line.Level, Text: line.Text})
		if err != nil {
			return
		}
		if err := sse.SendEvent("log", data); err != nil {
			log.Warn().Err(err).Msg("dropping SSE log event")
		}
	}

	h.metrics.ActiveExecutions.Inc()
	defer h.metrics.ActiveExecutions.Dec()

	start := time.Now()
	result, err := h.engine.ExecuteStreaming(r.Context(), script.Request{
		Source:    req.SourceText,
		Input:     req.InputValue,
		Variables: req.BoundVariables,
		TimeoutMS: req.TimeoutMS,
		Language:  req.GuestLanguageID,
	}, sink)

	if result == nil {
		log.Error().Err(err).Str("request_id", RequestIDFromContext(r.Context())).Msg("streaming execution failed")
		_ = sse.SendEvent("error", []byte("execution failed"))
		return
	}

	h.metrics.RecordExecution(string(result.Status), time.Since(start).Seconds())

	doneData, _ := json.Marshal(toResponse(result))
	_ = sse.SendEvent("done", doneData)

	h.logAudit(result, len(req.SourceText), start, r)
}

func (h *Handlers) HandleGetExecution(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, "execution ID required", "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	if h.db == nil {
		writeError(w, "database not configured", "DB_UNAVAILABLE", http.StatusServiceUnavailable, r)
		return
	}

	exec, err := h.db.GetExecution(r.Context(), id)
	if err != nil {
		writeError(w, "execution not found", "NOT_FOUND", http.StatusNotFound, r)
		return
	}

	writeJSON(w, http.StatusOK, exec)
}

func (h *Handlers) HandleListExecutions(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeError(w, "database not configured", "DB_UNAVAILABLE", http.StatusServiceUnavailable, r)
		return
	}

	filter := storage.ExecutionFilter{
		Status: r.URL.Query().Get("status"),
		Limit:  100,
	}

	execs, err := h.db.ListExecutions(r.Context(), filter)
	if err != nil {
		writeError(w, "query failed", "INTERNAL", http.StatusInternalServerError, r)
		return
	}

	writeJSON(w, http.StatusOK, execs)
}

// recordRejectionRules re-runs the validator for metric attribution. The
// validator is pure and the source already failed it, so this is cheap
// relative to an execution.
func (h *Handlers) recordRejectionRules(source string) {
	verdict := h.engine.Validate(source)
	for _, v := range verdict.Violations {
		h.metrics.RecordValidationRejection(v.Rule)
	}
}

func (h *Handlers) logAudit(result *script.Result, sourceBytes int, start time.Time, r *http.Request) {
	if h.auditWriter == nil {
		return
	}

	var returnValue string
	if result.Status == script.StatusSuccess && result.ReturnValue != nil {
		if b, err := json.Marshal(result.ReturnValue); err == nil {
			returnValue = string(b)
		}
	}

	completedAt := time.Now()
	h.auditWriter.Log(&storage.Execution{
		ID:            result.ID,
		Status:        string(result.Status),
		CodeHash:      result.CodeHash,
		SourceBytes:   sourceBytes,
		ReturnValue:   returnValue,
		ErrorMessage:  result.ErrorMessage,
		LogLines:      len(result.LogLines),
		LogsTruncated: result.LogsTruncated,
		ElapsedMS:     result.ElapsedMS,
		RequestIP:     r.RemoteAddr,
		CreatedAt:     start,
		CompletedAt:   &completedAt,
	})
}

// toResponse converts the engine envelope to its wire form.
func toResponse(result *script.Result) ExecuteResponse {
	resp := ExecuteResponse{
		ID:            result.ID,
		Status:        string(result.Status),
		LogLines:      make([]LogLine, 0, len(result.LogLines)),
		LogsTruncated: result.LogsTruncated,
		ErrorMessage:  result.ErrorMessage,
		ElapsedMS:     result.ElapsedMS,
	}
	for _, line := range result.LogLines {
		resp.LogLines = append(resp.LogLines, LogLine{Level: line.Level, Text: line.Text})
	}
	if result.Status == script.StatusSuccess {
		if b, err := json.Marshal(result.ReturnValue); err == nil {
			resp.ReturnValue = b
		}
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, msg, code string, status int, r *http.Request) {
	resp := ErrorResponse{
		Error:     msg,
		Code:      code,
		RequestID: RequestIDFromContext(r.Context()),
	}
	writeJSON(w, status, resp)
}
