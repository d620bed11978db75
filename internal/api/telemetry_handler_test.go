package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pulsewire/client"
	"pulsewire/internal/netmon"
	"pulsewire/pkg/constraints"
	"pulsewire/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

func init() {
	logger.InitLogger("test")
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) (*gin.Engine, *client.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	pipeline, err := client.New(client.Config{
		Endpoint:     "http://127.0.0.1:1/ingest",
		TickInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	t.Cleanup(pipeline.Destroy)

	h := NewTelemetryHandler(pipeline, netmon.NewManual())
	return RegisterRoutes(h, rdb, "test-key", 1000), pipeline
}

func doJSON(r *gin.Engine, method, path, body string, withKey bool) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if withKey {
		req.Header.Set(constraints.HeaderAgentKey, "test-key")
	}
	r.ServeHTTP(w, req)
	return w
}

func TestSubmit_Accepted(t *testing.T) {
	r, pipeline := newTestRouter(t)

	w := doJSON(r, "POST", "/v1/telemetry",
		`{"session_id":"s-1","content":{"event":"click"},"priority":"high"}`, true)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}

	var body struct {
		ItemID string `json:"item_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.ItemID == "" {
		t.Error("expected a generated item id")
	}

	if got := pipeline.QueueStatus().Count; got != 1 {
		t.Errorf("expected 1 queued item, got %d", got)
	}
}

func TestSubmit_UnknownPriority(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(r, "POST", "/v1/telemetry",
		`{"session_id":"s-1","content":"x","priority":"urgent"}`, true)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestSubmit_RequiresAgentKey(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(r, "POST", "/v1/telemetry",
		`{"session_id":"s-1","content":"x"}`, false)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestSubmitBatch_Accepted(t *testing.T) {
	r, pipeline := newTestRouter(t)

	w := doJSON(r, "POST", "/v1/telemetry/batch",
		`{"session_id":"s-1","contents":[{"n":1},{"n":2},{"n":3}]}`, true)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	if got := pipeline.QueueStatus().Count; got != 3 {
		t.Errorf("expected 3 queued items, got %d", got)
	}
}

func TestQueueAndClear(t *testing.T) {
	r, _ := newTestRouter(t)

	doJSON(r, "POST", "/v1/telemetry", `{"session_id":"s-1","content":"x"}`, true)

	w := doJSON(r, "GET", "/v1/queue", "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var status struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if status.Count != 1 {
		t.Errorf("expected count 1, got %d", status.Count)
	}

	if w := doJSON(r, "DELETE", "/v1/queue", "", true); w.Code != http.StatusOK {
		t.Fatalf("clear: expected 200, got %d", w.Code)
	}

	w = doJSON(r, "GET", "/v1/queue", "", true)
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if status.Count != 0 {
		t.Errorf("expected empty queue after clear, got %d", status.Count)
	}
}

func TestUpdateConfig(t *testing.T) {
	r, pipeline := newTestRouter(t)

	w := doJSON(r, "PUT", "/v1/config",
		`{"batch_size":25,"tick_interval":"2s"}`, true)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	cfg := pipeline.Config()
	if cfg.BatchSize != 25 {
		t.Errorf("expected batch size 25, got %d", cfg.BatchSize)
	}
	if cfg.TickInterval != 2*time.Second {
		t.Errorf("expected tick interval 2s, got %v", cfg.TickInterval)
	}
}

func TestUpdateConfig_BadDuration(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(r, "PUT", "/v1/config", `{"tick_interval":"soon"}`, true)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestSetNetworkState(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(r, "PUT", "/v1/network", `{"online":true,"class":"poor"}`, true)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(r, "PUT", "/v1/network", `{"online":true,"class":"turbo"}`, true)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown class, got %d", w.Code)
	}
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(r, "GET", "/health", "", false)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}
