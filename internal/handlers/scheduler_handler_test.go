package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/clavis/internal/interfaces"
)

// mockSchedulerService implements interfaces.SchedulerService for testing
type mockSchedulerService struct {
	status interfaces.RefreshStatus
}

func (m *mockSchedulerService) Start() error { return nil }
func (m *mockSchedulerService) Stop() error  { return nil }
func (m *mockSchedulerService) Status() interfaces.RefreshStatus {
	return m.status
}

func TestGetRefreshStatusHandler(t *testing.T) {
	lastRun := time.Date(2026, 8, 21, 6, 0, 0, 0, time.UTC)
	mockService := &mockSchedulerService{
		status: interfaces.RefreshStatus{
			Enabled:   true,
			Schedule:  "0 */6 * * *",
			LastRun:   &lastRun,
			IsRunning: false,
			LastError: "",
		},
	}
	handler := NewSchedulerHandler(mockService, arbor.NewLogger())

	req := httptest.NewRequest("GET", "/api/refresh/status", nil)
	rec := httptest.NewRecorder()
	handler.GetRefreshStatusHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}

	var response map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response["enabled"] != true {
		t.Errorf("Expected enabled true, got %v", response["enabled"])
	}
	if response["schedule"] != "0 */6 * * *" {
		t.Errorf("Expected schedule echoed, got %v", response["schedule"])
	}
	if response["is_running"] != false {
		t.Errorf("Expected is_running false, got %v", response["is_running"])
	}
}

func TestGetRefreshStatusHandler_MethodNotAllowed(t *testing.T) {
	handler := NewSchedulerHandler(&mockSchedulerService{}, arbor.NewLogger())

	req := httptest.NewRequest("POST", "/api/refresh/status", nil)
	rec := httptest.NewRecorder()
	handler.GetRefreshStatusHandler(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", rec.Code)
	}
}
