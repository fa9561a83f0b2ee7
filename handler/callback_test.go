package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AnTengye/contractgraph/model"
)

type stubVerifier struct {
	valid string
}

func (v stubVerifier) VerifyCallback(checksum, _, uid string) bool {
	return uid == "uid-1" && checksum == v.valid
}

func callbackRequest(checksum, content string) *http.Request {
	body, _ := json.Marshal(CallbackRequest{Checksum: checksum, Content: content})
	req := httptest.NewRequest("POST", "/callback", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// waitForStatus polls until the callback's background work settles.
func waitForStatus(t *testing.T, h *CallbackHandler, id, status string) *model.Contract {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		c := h.store.Get(id)
		if c != nil && c.Status == status {
			return c
		}
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s to reach %s, last %+v", id, status, c)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCallbackHandlerHandleCallback(t *testing.T) {
	tests := []struct {
		name           string
		content        string
		expectedStatus int
		finalStatus    string
		errorMsg       string
	}{
		{
			name:           "failed task",
			content:        `{"task_id":"task-1","data_id":"callback-test","state":"failed","err_msg":"unsupported file"}`,
			expectedStatus: http.StatusOK,
			finalStatus:    model.StatusFailed,
			errorMsg:       "unsupported file",
		},
		{
			name:           "done without archive",
			content:        `{"task_id":"task-1","data_id":"callback-test","state":"done"}`,
			expectedStatus: http.StatusOK,
			finalStatus:    model.StatusFailed,
			errorMsg:       "conversion finished without a result archive",
		},
		{
			name:           "running task",
			content:        `{"task_id":"task-1","data_id":"callback-test","state":"running","extract_progress":{"extracted_pages":1,"total_pages":4}}`,
			expectedStatus: http.StatusOK,
			finalStatus:    model.StatusConverting,
		},
		{
			name:           "non-existent contract",
			content:        `{"task_id":"task-1","data_id":"non-existent","state":"done"}`,
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "invalid content format",
			content:        "invalid json",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewCallbackHandler(newTestExtraction(), nil, "")
			h.store.Save(&model.Contract{ID: "callback-test", Tenant: "tenant1", Status: model.StatusConverting, CreatedAt: time.Now()})

			router := gin.New()
			router.POST("/callback", h.HandleCallback)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, callbackRequest("", tt.content))

			if w.Code != tt.expectedStatus {
				t.Fatalf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			if tt.finalStatus == "" {
				return
			}
			c := waitForStatus(t, h, "callback-test", tt.finalStatus)
			if c.ErrorMsg != tt.errorMsg {
				t.Errorf("Expected error %q, got %q", tt.errorMsg, c.ErrorMsg)
			}
		})
	}
}

func TestCallbackHandlerIgnoresFinishedContract(t *testing.T) {
	h := NewCallbackHandler(newTestExtraction(), nil, "")
	h.store.Save(&model.Contract{ID: "finished", Tenant: "tenant1", Status: model.StatusCompleted, CreatedAt: time.Now()})

	router := gin.New()
	router.POST("/callback", h.HandleCallback)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, callbackRequest("", `{"task_id":"task-1","data_id":"finished","state":"done","full_zip_url":"http://example.com/r.zip"}`))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	time.Sleep(20 * time.Millisecond)
	if got := h.store.Get("finished").Status; got != model.StatusCompleted {
		t.Errorf("Expected duplicate notification to be ignored, got %s", got)
	}
}

func TestCallbackHandlerChecksum(t *testing.T) {
	h := NewCallbackHandler(newTestExtraction(), stubVerifier{valid: "good"}, "uid-1")
	h.store.Save(&model.Contract{ID: "signed", Tenant: "tenant1", Status: model.StatusConverting, CreatedAt: time.Now()})

	router := gin.New()
	router.POST("/callback", h.HandleCallback)
	content := `{"task_id":"task-1","data_id":"signed","state":"failed","err_msg":"bad scan"}`

	w := httptest.NewRecorder()
	router.ServeHTTP(w, callbackRequest("forged", content))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 for bad checksum, got %d", w.Code)
	}
	if got := h.store.Get("signed").Status; got != model.StatusConverting {
		t.Errorf("Expected contract untouched, got %s", got)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, callbackRequest("good", content))
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	waitForStatus(t, h, "signed", model.StatusFailed)
}

func TestCallbackHandlerInvalidRequest(t *testing.T) {
	h := NewCallbackHandler(newTestExtraction(), nil, "")

	router := gin.New()
	router.POST("/callback", h.HandleCallback)

	req := httptest.NewRequest("POST", "/callback", bytes.NewBufferString("not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}
