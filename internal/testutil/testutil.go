// Package testutil provides small HTTP assertion helpers shared by
// handler tests.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// AssertStatusCode fails the test when the recorded status differs
// from want.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status = %d, want %d", got, want)
	}
}

// NewTestRequest builds a bodyless request for handler tests.
func NewTestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

// NewTestRecorder returns a fresh response recorder.
func NewTestRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}

// DecodeJSON unmarshals a recorded JSON response into out, failing the
// test on a non-JSON Content-Type or malformed body.
func DecodeJSON(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("Content-Type = %q, want application/json", ct)
	}
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}
}
