package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mizuki/formflow/internal/config"
	"github.com/mizuki/formflow/internal/relay"
	"github.com/mizuki/formflow/internal/store"
)

const testSecret = "hook-secret"

// newTestRouter wires a full router against an in-memory store and the given
// worker webhook URL.
func newTestRouter(ms *store.MemoryStore, workerURL string) *gin.Engine {
	cfg := &config.Config{
		Server: config.ServerConfig{
			Mode: "test",
			CORS: config.CORSConfig{AllowAllOrigins: true},
		},
	}
	workerCfg := &config.WorkerConfig{
		WebhookURL:      workerURL,
		DispatchTimeout: 5 * time.Second,
	}

	return SetupRouter(RouterDeps{
		Submitter: relay.NewSubmitter(ms, workerCfg),
		Callback:  relay.NewCallback(ms, relay.NewSecretAuthorizer(testSecret)),
		Streamer:  relay.NewStreamer(ms),
		Store:     ms,
	}, cfg)
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var decoded map[string]interface{}
	if w.Body.Len() > 0 && strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("bad JSON response %q: %v", w.Body.String(), err)
		}
	}
	return w, decoded
}

// sseEvent is one parsed server-sent event.
type sseEvent struct {
	event string
	data  string
}

func parseSSE(t *testing.T, body string) []sseEvent {
	t.Helper()
	var events []sseEvent
	var cur sseEvent
	for _, line := range strings.Split(body, "\n") {
		switch {
		case strings.HasPrefix(line, "event:"):
			cur.event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			cur.data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		case line == "" && cur.event != "":
			events = append(events, cur)
			cur = sseEvent{}
		}
	}
	return events
}

func TestEndToEndSubmitCallbackStream(t *testing.T) {
	worker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer worker.Close()

	ms := store.NewMemoryStore()
	r := newTestRouter(ms, worker.URL)

	// Submit the intake form.
	w, body := doJSON(t, r, http.MethodPost, "/api/v1/submit",
		`{"mail":"a@b.com","company_name":"X"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("submit status = %d, body = %s", w.Code, w.Body.String())
	}
	if body["ok"] != true {
		t.Fatalf("submit not ok: %v", body)
	}
	jobID, _ := body["jobId"].(string)
	if jobID == "" {
		t.Fatal("submit returned no jobId")
	}

	// Worker reports progress.
	w, body = doJSON(t, r, http.MethodPost, "/api/v1/callback",
		`{"jobId":"`+jobID+`","status":"running","progress":40,"message":"processing","secret":"`+testSecret+`"}`)
	if w.Code != http.StatusOK || body["ok"] != true {
		t.Fatalf("progress callback failed: %d %v", w.Code, body)
	}

	// Worker finishes.
	w, body = doJSON(t, r, http.MethodPost, "/api/v1/callback",
		`{"jobId":"`+jobID+`","status":"done","progress":100,"result":{"summary":"ok"},"secret":"`+testSecret+`"}`)
	if w.Code != http.StatusOK || body["ok"] != true {
		t.Fatalf("done callback failed: %d %v", w.Code, body)
	}

	// Stream the finished job: history replay then exactly one result event.
	sw := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/stream?jobId="+jobID, nil)
	r.ServeHTTP(sw, req)

	if ct := sw.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("stream content type = %q", ct)
	}

	events := parseSSE(t, sw.Body.String())
	if len(events) == 0 {
		t.Fatalf("no events in stream body: %q", sw.Body.String())
	}
	if events[0].event != "log" || events[0].data != relay.ConnectedMessage {
		t.Errorf("first event must be the connected ack, got %+v", events[0])
	}

	var logs []string
	var results []string
	for _, ev := range events {
		switch ev.event {
		case "log":
			logs = append(logs, ev.data)
		case "result":
			results = append(results, ev.data)
		case "error":
			t.Errorf("unexpected error event: %q", ev.data)
		}
	}

	foundProgress := false
	for _, l := range logs {
		if l == "processing (40%)" {
			foundProgress = true
		}
	}
	if !foundProgress {
		t.Errorf("expected a log line with progress context, got %v", logs)
	}

	if len(results) != 1 {
		t.Fatalf("expected exactly one result event, got %v", results)
	}
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(results[0]), &result); err != nil {
		t.Fatalf("result payload not JSON: %q", results[0])
	}
	if result["summary"] != "ok" {
		t.Errorf("result = %v", result)
	}
}

func TestEndToEndDispatchFailure(t *testing.T) {
	worker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer worker.Close()

	ms := store.NewMemoryStore()
	r := newTestRouter(ms, worker.URL)

	w, body := doJSON(t, r, http.MethodPost, "/api/v1/submit", `{"mail":"a@b.com"}`)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
	if body["ok"] != false {
		t.Errorf("expected ok:false, got %v", body)
	}
	jobID, _ := body["jobId"].(string)
	if jobID == "" {
		t.Fatal("dispatch failure response must carry the job id")
	}

	// The job is already terminal: the stream takes the history-only path
	// and closes with one error event.
	sw := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/stream?jobId="+jobID, nil)
	r.ServeHTTP(sw, req)

	events := parseSSE(t, sw.Body.String())
	errorCount := 0
	for _, ev := range events {
		if ev.event == "error" {
			errorCount++
		}
	}
	if errorCount != 1 {
		t.Fatalf("expected exactly one error event, got %d in %v", errorCount, events)
	}
	if ms.Notifier().SubscriberCount(jobID) != 0 {
		t.Error("terminal stream must not leave a live subscription")
	}
}

func TestCallbackEndpointStatuses(t *testing.T) {
	worker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer worker.Close()

	ms := store.NewMemoryStore()
	r := newTestRouter(ms, worker.URL)

	_, body := doJSON(t, r, http.MethodPost, "/api/v1/submit", `{"mail":"a@b.com"}`)
	jobID, _ := body["jobId"].(string)
	if jobID == "" {
		t.Fatal("submit returned no jobId")
	}

	tests := []struct {
		name string
		body string
		want int
	}{
		{"wrong secret", `{"jobId":"` + jobID + `","message":"x","secret":"nope"}`, http.StatusUnauthorized},
		{"missing jobId", `{"message":"x","secret":"` + testSecret + `"}`, http.StatusBadRequest},
		{"unknown job", `{"jobId":"ghost","message":"x","secret":"` + testSecret + `"}`, http.StatusNotFound},
		{"valid", `{"jobId":"` + jobID + `","message":"x","secret":"` + testSecret + `"}`, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := doJSON(t, r, http.MethodPost, "/api/v1/callback", tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestStreamRequiresJobID(t *testing.T) {
	ms := store.NewMemoryStore()
	r := newTestRouter(ms, "http://localhost:0")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/stream", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestJobInspectionEndpoint(t *testing.T) {
	worker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer worker.Close()

	ms := store.NewMemoryStore()
	r := newTestRouter(ms, worker.URL)

	_, body := doJSON(t, r, http.MethodPost, "/api/v1/submit", `{"mail":"a@b.com"}`)
	jobID, _ := body["jobId"].(string)

	w, job := doJSON(t, r, http.MethodGet, "/api/v1/jobs/"+jobID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if job["status"] != "queued" {
		t.Errorf("job status = %v", job["status"])
	}

	w, _ = doJSON(t, r, http.MethodGet, "/api/v1/jobs/ghost", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}
