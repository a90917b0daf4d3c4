package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"script-sandbox/internal/monitor"
	"script-sandbox/internal/script"
)

// mockExecutor lets handler tests script the engine's behavior without
// running any guest code.
type mockExecutor struct {
	result  *script.Result
	err     error
	verdict script.Verdict
	lastReq script.Request
}

func (m *mockExecutor) Execute(_ context.Context, req script.Request) (*script.Result, error) {
	m.lastReq = req
	return m.result, m.err
}

func (m *mockExecutor) ExecuteStreaming(_ context.Context, req script.Request, sink script.LogSink) (*script.Result, error) {
	m.lastReq = req
	if m.result != nil && sink != nil {
		for _, line := range m.result.LogLines {
			sink(line)
		}
	}
	return m.result, m.err
}

func (m *mockExecutor) Validate(string) script.Verdict {
	return m.verdict
}

func newTestHandlers(engine script.Executor) *Handlers {
	return NewHandlers(engine, nil, nil, monitor.NewMetrics())
}

func postExecute(t *testing.T, h *Handlers, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/execute", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandleExecute(rec, req)
	return rec
}

func TestHandleExecute_SuccessEnvelope(t *testing.T) {
	mock := &mockExecutor{
		result: &script.Result{
			ID:          "exec-1",
			Status:      script.StatusSuccess,
			ReturnValue: float64(3),
			LogLines:    []script.LogLine{{Level: "info", Text: "hi"}},
			ElapsedMS:   7,
		},
	}
	h := newTestHandlers(mock)

	rec := postExecute(t, h, `{"sourceText":"1+2","timeoutMs":500}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["status"] != "success" {
		t.Errorf("status = %v", resp["status"])
	}
	if resp["returnValue"] != float64(3) {
		t.Errorf("returnValue = %v", resp["returnValue"])
	}
	if resp["elapsedMs"] != float64(7) {
		t.Errorf("elapsedMs = %v", resp["elapsedMs"])
	}
	if mock.lastReq.TimeoutMS != 500 {
		t.Errorf("engine saw timeout %d, want 500", mock.lastReq.TimeoutMS)
	}
}

func TestHandleExecute_FalseReturnValueSurvives(t *testing.T) {
	h := newTestHandlers(&mockExecutor{
		result: &script.Result{ID: "x", Status: script.StatusSuccess, ReturnValue: false, LogLines: []script.LogLine{}},
	})

	rec := postExecute(t, h, `{"sourceText":"false"}`)

	var resp map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	raw, ok := resp["returnValue"]
	if !ok {
		t.Fatal("returnValue key missing for a successful false return")
	}
	if string(raw) != "false" {
		t.Errorf("returnValue = %s, want false", raw)
	}
}

func TestHandleExecute_TimeoutOmitsReturnValue(t *testing.T) {
	h := newTestHandlers(&mockExecutor{
		result: &script.Result{
			ID:           "x",
			Status:       script.StatusTimeout,
			LogLines:     []script.LogLine{},
			ErrorMessage: "execution deadline exceeded",
			ElapsedMS:    200,
		},
		err: script.ErrTimeout,
	})

	rec := postExecute(t, h, `{"sourceText":"while(true){}","timeoutMs":200}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, timeouts are an envelope, not a transport error", rec.Code)
	}
	var resp map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if _, ok := resp["returnValue"]; ok {
		t.Error("returnValue must be absent for timeout")
	}
	if _, ok := resp["errorMessage"]; !ok {
		t.Error("errorMessage must be present for timeout")
	}
}

func TestHandleExecute_InvalidJSON(t *testing.T) {
	h := newTestHandlers(&mockExecutor{})

	rec := postExecute(t, h, `{not json`)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Code != "INVALID_REQUEST" {
		t.Errorf("code = %q", resp.Code)
	}
}

func TestHandleExecute_NilEngine(t *testing.T) {
	h := newTestHandlers(nil)

	rec := postExecute(t, h, `{"sourceText":"1"}`)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestHandleExecute_UnsupportedLanguage(t *testing.T) {
	h := newTestHandlers(&mockExecutor{err: script.ErrUnsupportedLanguage})

	rec := postExecute(t, h, `{"sourceText":"1","guestLanguageId":"python"}`)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Code != "VALIDATION_ERROR" {
		t.Errorf("code = %q", resp.Code)
	}
}

func TestHandleExecute_EngineFault(t *testing.T) {
	h := newTestHandlers(&mockExecutor{err: script.ErrInternal})

	rec := postExecute(t, h, `{"sourceText":"1"}`)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500 when no envelope is available", rec.Code)
	}
}

func TestHandleValidate(t *testing.T) {
	h := newTestHandlers(&mockExecutor{
		verdict: script.Verdict{
			Allowed: false,
			Violations: []script.Violation{
				{Rule: "dynamic_eval", Message: "eval is disabled", Line: 1},
			},
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/validate", strings.NewReader(`{"sourceText":"eval(x)"}`))
	rec := httptest.NewRecorder()
	h.HandleValidate(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp ValidateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Allowed {
		t.Error("Allowed = true, want false")
	}
	if len(resp.Violations) != 1 || resp.Violations[0].Rule != "dynamic_eval" {
		t.Errorf("Violations = %v", resp.Violations)
	}
}

func TestHandleExecuteStream_EmitsLogAndDoneEvents(t *testing.T) {
	h := newTestHandlers(&mockExecutor{
		result: &script.Result{
			ID:       "exec-s",
			Status:   script.StatusSuccess,
			LogLines: []script.LogLine{{Level: "info", Text: "a"}, {Level: "info", Text: "b"}},
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/execute/stream", strings.NewReader(`{"sourceText":"x"}`))
	rec := httptest.NewRecorder()
	h.HandleExecuteStream(rec, req)

	body := rec.Body.String()
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	if got := strings.Count(body, "event: log"); got != 2 {
		t.Errorf("log events = %d, want 2\n%s", got, body)
	}
	if !strings.Contains(body, "event: done") {
		t.Errorf("missing done event:\n%s", body)
	}
}

func TestHandleGetExecution_NoDatabase(t *testing.T) {
	h := newTestHandlers(&mockExecutor{})

	req := httptest.NewRequest(http.MethodGet, "/executions/abc", nil)
	req.SetPathValue("id", "abc")
	rec := httptest.NewRecorder()
	h.HandleGetExecution(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestToResponse_ReturnValuePresence(t *testing.T) {
	success := toResponse(&script.Result{Status: script.StatusSuccess, ReturnValue: nil})
	if string(success.ReturnValue) != "null" {
		t.Errorf("success null return = %q, want explicit null", success.ReturnValue)
	}

	failed := toResponse(&script.Result{Status: script.StatusError, ReturnValue: float64(1)})
	if failed.ReturnValue != nil {
		t.Errorf("error status carried returnValue %s", failed.ReturnValue)
	}

	timeout := toResponse(&script.Result{Status: script.StatusTimeout})
	if timeout.ReturnValue != nil {
		t.Errorf("timeout status carried returnValue %s", timeout.ReturnValue)
	}
}

func TestToResponse_LogLinesAlwaysPresent(t *testing.T) {
	resp := toResponse(&script.Result{Status: script.StatusError})
	b, err := json.Marshal(resp)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(b, []byte(`"logLines":[]`)) {
		t.Errorf("logLines must serialize as an empty array, got %s", b)
	}
}
