package metrics

import (
	"net/http/httptest"
	"testing"
)

func TestHealthServer_LivenessReturns200(t *testing.T) {
	h := NewHealthServer(NewRegistry(), nil)

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	h.liveness(rec, req)

	if rec.Code != 200 {
		t.Fatalf("liveness status = %d, want 200", rec.Code)
	}
}

func TestHealthServer_ReadinessReflectsReadyFunc(t *testing.T) {
	h := NewHealthServer(NewRegistry(), func() bool { return false })

	req := httptest.NewRequest("GET", "/readiness", nil)
	rec := httptest.NewRecorder()
	h.readiness(rec, req)

	if rec.Code != 503 {
		t.Fatalf("readiness status = %d, want 503 when not ready", rec.Code)
	}
}

func TestHealthServer_ReadinessDefaultsToReady(t *testing.T) {
	h := NewHealthServer(NewRegistry(), nil)

	req := httptest.NewRequest("GET", "/readiness", nil)
	rec := httptest.NewRecorder()
	h.readiness(rec, req)

	if rec.Code != 200 {
		t.Fatalf("readiness status = %d, want 200 by default", rec.Code)
	}
}
