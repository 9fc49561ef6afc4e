package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"
	"time"
)

// Fake robot service paths.
const (
	PathRobots    = "/robots"
	PathMove      = "/move"
	PathReset     = "/reset"
	PathStartAuto = "/start-auto"
	PathStopAuto  = "/stop-auto"
)

// metersPerDegree approximates one degree of latitude.
const metersPerDegree = 111_320.0

// Call is one request received by FakeRobotService.
type Call struct {
	Method    string
	Path      string
	Body      map[string]any
	RequestID string
	At        time.Time
}

type failure struct {
	status int
	body   string
}

// FakeRobotService is an httptest server that mimics the robot service. It
// keeps fleet state in memory and can be scripted to fail or stall.
type FakeRobotService struct {
	server *httptest.Server

	mu       sync.Mutex
	robots   [][2]float64
	auto     bool
	calls    []Call
	failures map[string][]failure
	delays   map[string]time.Duration
	raw      map[string]string
}

// NewFakeRobotService starts a service with count robots. It is closed when
// the test ends.
func NewFakeRobotService(tb testing.TB, count int) *FakeRobotService {
	tb.Helper()
	f := &FakeRobotService{
		robots:   placeRobots(count),
		failures: make(map[string][]failure),
		delays:   make(map[string]time.Duration),
		raw:      make(map[string]string),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+PathRobots, f.handle(f.list))
	mux.HandleFunc("POST "+PathMove, f.handle(f.move))
	mux.HandleFunc("POST "+PathReset, f.handle(f.reset))
	mux.HandleFunc("POST "+PathStartAuto, f.handle(f.startAuto))
	mux.HandleFunc("POST "+PathStopAuto, f.handle(f.stopAuto))
	f.server = httptest.NewServer(mux)
	tb.Cleanup(f.server.Close)
	return f
}

// URL returns the base URL of the service.
func (f *FakeRobotService) URL() string {
	return f.server.URL
}

// FailNext makes the next times requests to path answer with status and body.
func (f *FakeRobotService) FailNext(path string, times, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for range times {
		f.failures[path] = append(f.failures[path], failure{status: status, body: body})
	}
}

// Delay stalls every request to path for d, or until the client gives up.
func (f *FakeRobotService) Delay(path string, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delays[path] = d
}

// RespondRaw replaces the success body for path. State still changes.
func (f *FakeRobotService) RespondRaw(path, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raw[path] = body
}

// SetRobots replaces the fleet.
func (f *FakeRobotService) SetRobots(robots [][2]float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.robots = append([][2]float64(nil), robots...)
}

// Robots returns a copy of the fleet.
func (f *FakeRobotService) Robots() [][2]float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][2]float64(nil), f.robots...)
}

// AutoRunning reports whether auto mode is on server-side.
func (f *FakeRobotService) AutoRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.auto
}

// SetAutoRunning sets the server-side auto flag.
func (f *FakeRobotService) SetAutoRunning(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.auto = on
}

// Calls returns every request received, in arrival order.
func (f *FakeRobotService) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Paths returns the path of every request received, in arrival order.
func (f *FakeRobotService) Paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	paths := make([]string, len(f.calls))
	for i, c := range f.calls {
		paths[i] = c.Path
	}
	return paths
}

// CallCount returns how many requests hit path.
func (f *FakeRobotService) CallCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Path == path {
			n++
		}
	}
	return n
}

type handlerFunc func(body map[string]any) any

func (f *FakeRobotService) handle(next handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			_ = json.Unmarshal(data, &body)
		}

		f.mu.Lock()
		f.calls = append(f.calls, Call{
			Method:    r.Method,
			Path:      r.URL.Path,
			Body:      body,
			RequestID: r.Header.Get("X-Request-Id"),
			At:        time.Now(),
		})
		delay := f.delays[r.URL.Path]
		var fail *failure
		if queue := f.failures[r.URL.Path]; len(queue) > 0 {
			fail = &queue[0]
			f.failures[r.URL.Path] = queue[1:]
		}
		f.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		if fail != nil {
			if fail.body == "" {
				w.WriteHeader(fail.status)
				return
			}
			http.Error(w, fail.body, fail.status)
			return
		}

		f.mu.Lock()
		resp := next(body)
		raw, hasRaw := f.raw[r.URL.Path]
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if hasRaw {
			_, _ = io.WriteString(w, raw)
			return
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// Handlers below run with f.mu held.

func (f *FakeRobotService) list(map[string]any) any {
	return map[string]any{"robots": slices.Clone(f.robots)}
}

func (f *FakeRobotService) move(body map[string]any) any {
	meters, _ := body["meters"].(float64)
	for i := range f.robots {
		f.robots[i][0] += meters / metersPerDegree
	}
	return map[string]any{"robots": slices.Clone(f.robots)}
}

func (f *FakeRobotService) reset(body map[string]any) any {
	count, _ := body["count"].(float64)
	f.robots = placeRobots(int(count))
	return map[string]any{"robots": slices.Clone(f.robots)}
}

func (f *FakeRobotService) startAuto(map[string]any) any {
	f.auto = true
	return map[string]any{"ok": true}
}

func (f *FakeRobotService) stopAuto(map[string]any) any {
	f.auto = false
	return map[string]any{"ok": true}
}

func placeRobots(count int) [][2]float64 {
	robots := make([][2]float64, max(count, 0))
	for i := range robots {
		robots[i] = [2]float64{22.3193 + float64(i)*0.001, 114.1694 - float64(i)*0.001}
	}
	return robots
}
