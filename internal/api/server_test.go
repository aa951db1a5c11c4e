package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"punchclock/internal/attendance"
	"punchclock/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubService struct {
	lastReq attendance.Request
	result  attendance.Result
	err     error
}

func (s *stubService) Punch(_ context.Context, req attendance.Request) (attendance.Result, error) {
	s.lastReq = req
	return s.result, s.err
}

type stubLister struct {
	punches []attendance.Punch
	err     error
}

func (s *stubLister) List(context.Context, string, string, int, int) ([]attendance.Punch, error) {
	return s.punches, s.err
}

type stubRegistrar struct {
	lastID   string
	lastAddr string
	err      error
}

func (s *stubRegistrar) Register(_ context.Context, id, addr string) error {
	s.lastID, s.lastAddr = id, addr
	return s.err
}

func testConfig() config.App {
	return config.App{
		Env:            "test",
		JWTIssuer:      "punchclock-test",
		JWTSigningKey:  "test-signing-key",
		AccessTTL:      time.Minute,
		RefreshTTL:     time.Hour,
		RequestTimeout: time.Second,
	}
}

func doJSON(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("response is not JSON: %v\n%s", err, w.Body.String())
	}
	return out
}

func TestPunchEndpoint_MissingCardNumber(t *testing.T) {
	svc := &stubService{}
	srv := NewServer(testConfig(), svc, &stubLister{}, &stubRegistrar{}, nil, nil)
	w := doJSON(t, srv.Routes(), http.MethodPost, "/v1/punches", `{}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if got := decode(t, w)["error"]; got != "Card number is required" {
		t.Errorf("error = %v", got)
	}
}

func TestPunchEndpoint_RejectsUnknownFields(t *testing.T) {
	srv := NewServer(testConfig(), &stubService{}, &stubLister{}, &stubRegistrar{}, nil, nil)
	w := doJSON(t, srv.Routes(), http.MethodPost, "/v1/punches", `{"card_number":"C1","rfid":"yes"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestPunchEndpoint_BadPunchTime(t *testing.T) {
	srv := NewServer(testConfig(), &stubService{}, &stubLister{}, &stubRegistrar{}, nil, nil)
	w := doJSON(t, srv.Routes(), http.MethodPost, "/v1/punches", `{"card_number":"C1","punch_time":"yesterday"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestPunchEndpoint_UnknownCard(t *testing.T) {
	svc := &stubService{err: attendance.ErrCardNotRegistered}
	srv := NewServer(testConfig(), svc, &stubLister{}, &stubRegistrar{}, nil, nil)
	w := doJSON(t, srv.Routes(), http.MethodPost, "/v1/punches", `{"card_number":"GHOST"}`)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	body := decode(t, w)
	if body["error"] != "Card not registered" || body["card_number"] != "GHOST" {
		t.Errorf("body = %v", body)
	}
}

func TestPunchEndpoint_PersonNotFound(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{attendance.ErrStudentNotFound, "Student not found"},
		{attendance.ErrStaffNotFound, "Teacher not found"},
	}
	for _, tt := range tests {
		svc := &stubService{err: tt.err}
		srv := NewServer(testConfig(), svc, &stubLister{}, &stubRegistrar{}, nil, nil)
		w := doJSON(t, srv.Routes(), http.MethodPost, "/v1/punches", `{"card_number":"C1"}`)
		if w.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", w.Code)
		}
		if got := decode(t, w)["error"]; got != tt.want {
			t.Errorf("error = %v, want %s", got, tt.want)
		}
	}
}

func TestPunchEndpoint_StudentResponse(t *testing.T) {
	when := time.Date(2026, 3, 2, 8, 15, 0, 0, time.UTC)
	svc := &stubService{result: attendance.Result{
		Kind:       attendance.KindStudent,
		Name:       "Asha Rao",
		Status:     attendance.StatusLate,
		PunchedAt:  when,
		Date:       "2026-03-02",
		FirstPunch: true,
		Message:    "Attendance marked: late",
	}}
	srv := NewServer(testConfig(), svc, &stubLister{}, &stubRegistrar{}, nil, nil)
	w := doJSON(t, srv.Routes(), http.MethodPost, "/v1/punches",
		`{"card_number":"CARD-S1","device_ip":"10.0.0.5","punch_time":"2026-03-02T08:15:00Z"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200\n%s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["type"] != "student" || body["status"] != "late" || body["is_first_punch"] != true {
		t.Errorf("body = %v", body)
	}
	if _, hasLate := body["late_minutes"]; hasLate {
		t.Error("student response must not carry late_minutes")
	}
	if svc.lastReq.DeviceAddr != "10.0.0.5" {
		t.Errorf("device addr passed = %q", svc.lastReq.DeviceAddr)
	}
	if !svc.lastReq.PunchedAt.Equal(when) {
		t.Errorf("punch time passed = %v", svc.lastReq.PunchedAt)
	}
}

func TestPunchEndpoint_StaffLateResponse(t *testing.T) {
	svc := &stubService{result: attendance.Result{
		Kind:        attendance.KindStaff,
		Name:        "Vikram Nair",
		Status:      attendance.StatusLate,
		Action:      attendance.ActionPunchIn,
		LateMinutes: 45,
		PunchedAt:   time.Date(2026, 3, 2, 8, 45, 0, 0, time.UTC),
		Date:        "2026-03-02",
		FirstPunch:  true,
		Message:     "Punch in recorded",
	}}
	srv := NewServer(testConfig(), svc, &stubLister{}, &stubRegistrar{}, nil, nil)
	w := doJSON(t, srv.Routes(), http.MethodPost, "/v1/punches", `{"card_number":"CARD-T1"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := decode(t, w)
	if body["type"] != "teacher" || body["action"] != "punch_in" {
		t.Errorf("body = %v", body)
	}
	if body["late_minutes"] != float64(45) {
		t.Errorf("late_minutes = %v, want 45", body["late_minutes"])
	}
}

func TestPunchEndpoint_StoreErrorIs500(t *testing.T) {
	svc := &stubService{err: context.DeadlineExceeded}
	srv := NewServer(testConfig(), svc, &stubLister{}, &stubRegistrar{}, nil, nil)
	w := doJSON(t, srv.Routes(), http.MethodPost, "/v1/punches", `{"card_number":"C1"}`)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
}

func TestPunchEndpoint_RequiresDeviceAuthWhenEnabled(t *testing.T) {
	cfg := testConfig()
	cfg.RequireDeviceAuth = true
	srv := NewServer(cfg, &stubService{}, &stubLister{}, &stubRegistrar{}, nil, nil)
	w := doJSON(t, srv.Routes(), http.MethodPost, "/v1/punches", `{"card_number":"C1"}`)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestRegisterDevice(t *testing.T) {
	reg := &stubRegistrar{}
	srv := NewServer(testConfig(), &stubService{}, &stubLister{}, reg, nil, nil)
	w := doJSON(t, srv.Routes(), http.MethodPost, "/v1/devices/register",
		`{"device_id":"gate-1","device_ip":"10.0.0.5"}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201\n%s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["access_token"] == "" || body["refresh_token"] == "" {
		t.Errorf("tokens missing: %v", body)
	}
	if reg.lastID != "gate-1" || reg.lastAddr != "10.0.0.5" {
		t.Errorf("registered %q at %q", reg.lastID, reg.lastAddr)
	}
}

func TestHealthz_Degraded(t *testing.T) {
	health := func(context.Context) (bool, bool) { return true, false }
	srv := NewServer(testConfig(), &stubService{}, &stubLister{}, &stubRegistrar{}, nil, health)
	w := doJSON(t, srv.Routes(), http.MethodGet, "/healthz", "")

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}
