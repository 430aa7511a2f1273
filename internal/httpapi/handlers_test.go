package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pongarena/server/internal/logging"
	"pongarena/server/internal/session"
)

type fakeReadiness struct {
	clients int
	lobbies int
	err     error
	uptime  time.Duration
}

func (f *fakeReadiness) ConnectedClients() int { return f.clients }
func (f *fakeReadiness) OpenLobbies() int      { return f.lobbies }
func (f *fakeReadiness) StartupError() error   { return f.err }
func (f *fakeReadiness) Uptime() time.Duration { return f.uptime }

func TestLivenessHandler(t *testing.T) {
	h := NewHandlerSet(Options{
		Logger:     logging.NewTestLogger(),
		TimeSource: func() time.Time { return time.Unix(0, 0).UTC() },
	})
	recorder := httptest.NewRecorder()
	h.LivenessHandler()(recorder, httptest.NewRequest(http.MethodGet, "/livez", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", recorder.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "alive" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestReadinessHandlerReportsStartupError(t *testing.T) {
	ready := &fakeReadiness{clients: 3, lobbies: 2, uptime: 90 * time.Second}
	h := NewHandlerSet(Options{Logger: logging.NewTestLogger(), Readiness: ready})

	recorder := httptest.NewRecorder()
	h.ReadinessHandler()(recorder, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("healthy server answered %d", recorder.Code)
	}

	//1.- A startup error must flip the endpoint to 503.
	ready.err = errors.New("database unavailable")
	recorder = httptest.NewRecorder()
	h.ReadinessHandler()(recorder, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("broken server answered %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), "database unavailable") {
		t.Fatalf("error message missing from body: %s", recorder.Body.String())
	}
}

func TestMetricsHandlerEmitsCounters(t *testing.T) {
	monitor := session.NewTickMonitor()
	monitor.Observe(2 * time.Millisecond)
	h := NewHandlerSet(Options{
		Logger: logging.NewTestLogger(),
		Stats: func() (int, int, int, int64) {
			return 4, 2, 1, 77
		},
		TickStats: monitor.Snapshot,
	})

	recorder := httptest.NewRecorder()
	h.MetricsHandler()(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := recorder.Body.String()
	for _, want := range []string{
		"pong_clients 4",
		"pong_lobbies 2",
		"pong_running_sessions 1",
		"pong_broadcasts_total 77",
		"pong_tick_samples_total 1",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q:\n%s", want, body)
		}
	}
}

func TestSlidingWindowLimiter(t *testing.T) {
	current := time.Unix(1000, 0)
	limiter := NewSlidingWindowLimiter(time.Minute, 2, func() time.Time { return current })

	if !limiter.Allow() || !limiter.Allow() {
		t.Fatal("first two events must pass")
	}
	if limiter.Allow() {
		t.Fatal("third event within the window must be denied")
	}
	if limiter.Remaining() != 0 {
		t.Fatalf("expected no remaining budget, got %d", limiter.Remaining())
	}

	//1.- Sliding past the window frees the budget again.
	current = current.Add(61 * time.Second)
	if !limiter.Allow() {
		t.Fatal("event after the window must pass")
	}

	//2.- Disabled limiters always allow.
	unlimited := NewSlidingWindowLimiter(0, 0, nil)
	for i := 0; i < 10; i++ {
		if !unlimited.Allow() {
			t.Fatal("disabled limiter denied an event")
		}
	}
}
