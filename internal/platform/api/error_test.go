package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRateLimited_SetsRetryAfter(t *testing.T) {
	rr := httptest.NewRecorder()
	RateLimited(rr, "RATE_LIMITED", "slow down", "rid-1", 3)

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if got := rr.Header().Get("Retry-After"); got != "3" {
		t.Fatalf("expected Retry-After 3, got %q", got)
	}
	var body ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != "RATE_LIMITED" || body.Error.RequestID != "rid-1" {
		t.Fatalf("unexpected body %+v", body.Error)
	}
	if body.Error.Details["retry_after_sec"] != float64(3) {
		t.Fatalf("expected retry_after_sec detail, got %v", body.Error.Details)
	}
}

func TestInternal_HidesCause(t *testing.T) {
	rr := httptest.NewRecorder()
	Internal(rr, "")

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Fatalf("unexpected content type %q", ct)
	}
	var body ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != CodeInternal || body.Error.Message != "Internal server error" {
		t.Fatalf("unexpected body %+v", body.Error)
	}
}
