package errors

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPErrorAdapter_StatusCodeFor(t *testing.T) {
	adapter := NewHTTPErrorAdapter(nil)

	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"nil error", nil, http.StatusOK},
		{"validation", ValidationError("bad cause").Build(), http.StatusBadRequest},
		{"not found", NotFoundError("no state").Build(), http.StatusNotFound},
		{"transport", TransportError("nats down").Build(), http.StatusBadGateway},
		{"scheduler", SchedulerError("not started").Build(), http.StatusServiceUnavailable},
		{"internal", InternalError("boom").Build(), http.StatusInternalServerError},
		{"unclassified", &customHTTPError{msg: "x"}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := adapter.StatusCodeFor(tt.err); got != tt.expected {
				t.Errorf("StatusCodeFor() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestHTTPErrorAdapter_WriteErrorResponse(t *testing.T) {
	adapter := NewHTTPErrorAdapter(nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/debug/wake", nil)

	adapter.WriteErrorResponse(rec, req, ValidationError("seconds out of range").WithContext("seconds", 0).Build())

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body HTTPErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error != "seconds out of range" {
		t.Error("WriteErrorResponse() missing error message")
	}
	if body.Code != string(CategoryValidation) {
		t.Error("WriteErrorResponse() missing error code")
	}
}

func TestHTTPErrorAdapter_FormatRetryable(t *testing.T) {
	adapter := NewHTTPErrorAdapter(nil)
	resp := adapter.FormatErrorResponse(StoreError("sqlite busy").Build())
	if !resp.Retryable {
		t.Error("FormatErrorResponse() missing retryable flag for retryable error")
	}
	if resp.Details["retryable"] != true {
		t.Error("FormatErrorResponse() missing retryable detail")
	}
}

type customHTTPError struct {
	msg string
}

func (e *customHTTPError) Error() string {
	return e.msg
}
