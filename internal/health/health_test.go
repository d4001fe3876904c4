package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// fakePinger and fakeCounter live in checkers_test.go.

func getReadyz(t *testing.T, h *Handler) (*httptest.ResponseRecorder, report) {
	t.Helper()
	req := httptest.NewRequest("GET", "/readyz", nil)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	var body report
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode readyz body: %v", err)
	}
	return rec, body
}

func TestHealthz_AlwaysOK(t *testing.T) {
	h := New(VoiceSessions(fakeCounter{})) // failing checker must not matter

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	h.Healthz(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var body report
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want %q", body.Status, "ok")
	}
}

func TestReadyz_ReadyWithStoreAndSession(t *testing.T) {
	h := New(Postgres(fakePinger{}), VoiceSessions(fakeCounter{n: 1}))

	rec, body := getReadyz(t, h)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want %q", body.Status, "ok")
	}
	if body.Checks["postgres"] != "ok" {
		t.Errorf("postgres check = %q, want ok", body.Checks["postgres"])
	}
	if body.Checks["voice_sessions"] != "ok" {
		t.Errorf("voice_sessions check = %q, want ok", body.Checks["voice_sessions"])
	}
}

func TestReadyz_UnreadyWithoutVoiceSession(t *testing.T) {
	h := New(Postgres(fakePinger{}), VoiceSessions(fakeCounter{}))

	rec, body := getReadyz(t, h)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	if body.Status != "fail" {
		t.Errorf("status = %q, want %q", body.Status, "fail")
	}
	if !strings.HasPrefix(body.Checks["voice_sessions"], "fail: ") {
		t.Errorf("voice_sessions check = %q, want failure", body.Checks["voice_sessions"])
	}
	// The healthy store still reports ok alongside the failure.
	if body.Checks["postgres"] != "ok" {
		t.Errorf("postgres check = %q, want ok", body.Checks["postgres"])
	}
}

func TestReadyz_NamesEveryBrokenDependency(t *testing.T) {
	h := New(
		Postgres(fakePinger{err: errors.New("connection refused")}),
		VoiceSessions(fakeCounter{}),
	)

	rec, body := getReadyz(t, h)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	if body.Checks["postgres"] != "fail: connection refused" {
		t.Errorf("postgres check = %q", body.Checks["postgres"])
	}
	if !strings.HasPrefix(body.Checks["voice_sessions"], "fail: ") {
		t.Errorf("voice_sessions check = %q, want failure", body.Checks["voice_sessions"])
	}
}

func TestReadyz_NoCheckersIsReady(t *testing.T) {
	rec, body := getReadyz(t, New())
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want %q", body.Status, "ok")
	}
}

func TestRegister_MountsBothRoutes(t *testing.T) {
	mux := http.NewServeMux()
	New(VoiceSessions(fakeCounter{n: 1})).Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest("GET", path, nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
			}
		})
	}
}

func TestReadyz_RespectsRequestCancellation(t *testing.T) {
	h := New(Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}
