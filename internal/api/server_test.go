package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/albapepper/nearlist/internal/api/handler"
	"github.com/albapepper/nearlist/internal/cache"
	"github.com/albapepper/nearlist/internal/config"
	"github.com/albapepper/nearlist/internal/cooldown"
	"github.com/albapepper/nearlist/internal/engine"
	"github.com/albapepper/nearlist/internal/geo"
	"github.com/albapepper/nearlist/internal/notifications"
	"github.com/albapepper/nearlist/internal/position"
	"github.com/albapepper/nearlist/internal/stores"
	"github.com/albapepper/nearlist/internal/zone"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

var testStores = stores.Static{
	{ID: "1", Name: "Market", Coordinate: geo.Coordinate{Latitude: 40.0, Longitude: -75.0}, TriggerRadiusMeters: 100, ItemCount: 3},
	{ID: "2", Name: "Pharmacy", Coordinate: geo.Coordinate{Latitude: 40.01, Longitude: -75.0}, TriggerRadiusMeters: 50, ItemCount: 1},
}

type nopQueue struct{}

func (nopQueue) Enqueue(notifications.Command) bool { return true }

type fakeDB struct{ err error }

func (f fakeDB) HealthCheck(context.Context) error { return f.err }

type countingProvider struct {
	calls int
}

func (p *countingProvider) Stores(ctx context.Context) ([]zone.Store, error) {
	p.calls++
	return testStores.Stores(ctx)
}

func testConfig() *config.Config {
	return &config.Config{
		PositionSource:   config.SourceHTTP,
		CORSAllowOrigins: []string{"http://localhost:5173"},
	}
}

func newEngine() *engine.Engine {
	d := notifications.NewDispatcher(cooldown.NewMemory(), discardLogger)
	return engine.New(d, nopQueue{}, discardLogger)
}

func do(t *testing.T, h http.Handler, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealth(t *testing.T) {
	cfg := testConfig()
	deps := handler.Deps{Config: cfg, Cache: cache.New(false), Engine: newEngine(), Stores: testStores}

	r := NewRouter(deps, nil)
	if rec := do(t, r, "GET", "/health", ""); rec.Code != http.StatusOK {
		t.Fatalf("health: %d", rec.Code)
	}
	if rec := do(t, r, "GET", "/", ""); rec.Code != http.StatusOK || decode(t, rec)["position_source"] != "http" {
		t.Fatalf("root: %d %s", rec.Code, rec.Body)
	}

	rec := do(t, r, "GET", "/health/db", "")
	if rec.Code != http.StatusOK || decode(t, rec)["database"] != "disabled" {
		t.Fatalf("db disabled: %d %s", rec.Code, rec.Body)
	}

	deps.DB = fakeDB{err: errors.New("down")}
	rec = do(t, NewRouter(deps, nil), "GET", "/health/db", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestPostPosition_NotHTTPMode(t *testing.T) {
	cfg := testConfig()
	cfg.PositionSource = config.SourceMQTT
	r := NewRouter(handler.Deps{Config: cfg, Cache: cache.New(false), Engine: newEngine(), Stores: testStores}, nil)

	rec := do(t, r, "POST", "/api/v1/positions", `{"latitude":40,"longitude":-75}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestPostPosition_DrivesEngine(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng := newEngine()
	push := position.NewPushSource(0)
	done := make(chan struct{})
	go func() {
		defer close(done)
		eng.Run(ctx, push, testStores)
	}()

	r := NewRouter(handler.Deps{
		Config: testConfig(), Cache: cache.New(false), Engine: eng, Stores: testStores, Push: push,
	}, nil)

	// Wait until the engine has opened the stream.
	deadline := time.Now().Add(2 * time.Second)
	for {
		rec := do(t, r, "POST", "/api/v1/positions", `{"latitude":40.0001,"longitude":-75,"accuracy":5}`)
		if rec.Code == http.StatusAccepted {
			break
		}
		if rec.Code != http.StatusServiceUnavailable || time.Now().After(deadline) {
			t.Fatalf("unexpected %d %s", rec.Code, rec.Body)
		}
		time.Sleep(5 * time.Millisecond)
	}

	for eng.Status().Samples == 0 {
		if time.Now().After(deadline) {
			t.Fatal("engine never processed the sample")
		}
		time.Sleep(5 * time.Millisecond)
	}

	rec := do(t, r, "GET", "/api/v1/zone", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("zone: %d", rec.Code)
	}
	state := decode(t, rec)["engine"].(map[string]interface{})["state"].(map[string]interface{})
	if state["store_id"] != "1" || state["active"] != true {
		t.Fatalf("expected active in store 1, got %v", state)
	}

	cancel()
	<-done
}

func TestPostPosition_Rejects(t *testing.T) {
	r := NewRouter(handler.Deps{
		Config: testConfig(), Cache: cache.New(false), Engine: newEngine(), Stores: testStores,
		Push: position.NewPushSource(0),
	}, nil)

	tests := map[string]string{
		"not json":          `{`,
		"unknown field":     `{"lat":1,"lng":2}`,
		"missing longitude": `{"latitude":1}`,
		"out of range":      `{"latitude":95,"longitude":0}`,
		"negative accuracy": `{"latitude":1,"longitude":2,"accuracy":-1}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			if rec := do(t, r, "POST", "/api/v1/positions", body); rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d %s", rec.Code, rec.Body)
			}
		})
	}
}

func TestGetStores_CachesWithETag(t *testing.T) {
	provider := &countingProvider{}
	r := NewRouter(handler.Deps{
		Config: testConfig(), Cache: cache.New(true), Engine: newEngine(), Stores: provider,
	}, nil)

	first := do(t, r, "GET", "/api/v1/stores", "")
	if first.Code != http.StatusOK || first.Header().Get("X-Cache") != "MISS" {
		t.Fatalf("first: %d %q", first.Code, first.Header().Get("X-Cache"))
	}
	if n := decode(t, first)["count"]; n != float64(2) {
		t.Fatalf("expected 2 stores, got %v", n)
	}
	etag := first.Header().Get("ETag")

	second := do(t, r, "GET", "/api/v1/stores", "")
	if second.Header().Get("X-Cache") != "HIT" {
		t.Fatal("expected cache hit")
	}
	third := do(t, r, "GET", "/api/v1/stores", "", "If-None-Match", etag)
	if third.Code != http.StatusNotModified {
		t.Fatalf("expected 304, got %d", third.Code)
	}
	if provider.calls != 1 {
		t.Fatalf("expected 1 provider call, got %d", provider.calls)
	}
}

func TestGetStores_Near(t *testing.T) {
	r := NewRouter(handler.Deps{
		Config: testConfig(), Cache: cache.New(true), Engine: newEngine(), Stores: testStores,
	}, nil)

	rec := do(t, r, "GET", "/api/v1/stores?lat=40.01&lng=-75", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("near: %d %s", rec.Code, rec.Body)
	}
	list := decode(t, rec)["stores"].([]interface{})
	nearest := list[0].(map[string]interface{})
	if nearest["id"] != "2" || nearest["inside"] != true || nearest["distance"] != "0m" {
		t.Fatalf("unexpected nearest %v", nearest)
	}
	if far := list[1].(map[string]interface{}); far["distance"] != "1.1km" {
		t.Fatalf("unexpected far distance %v", far["distance"])
	}

	if rec := do(t, r, "GET", "/api/v1/stores?lat=abc&lng=1", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitEnabled = true
	cfg.RateLimitRequests = 2
	cfg.RateLimitWindow = time.Minute
	r := NewRouter(handler.Deps{Config: cfg, Cache: cache.New(false), Engine: newEngine(), Stores: testStores}, nil)

	// burst is half the window allowance
	if rec := do(t, r, "GET", "/health", ""); rec.Code != http.StatusOK {
		t.Fatalf("first request: %d", rec.Code)
	}
	rec := do(t, r, "GET", "/health", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After")
	}
}

func TestPostPosition_RejectsStaleSample(t *testing.T) {
	eng := newEngine()
	r := NewRouter(handler.Deps{
		Config: testConfig(), Cache: cache.New(false), Engine: eng, Stores: testStores,
		Push: position.NewPushSource(30 * time.Second),
	}, nil)

	old := time.Now().Add(-24 * time.Hour).UnixMilli()
	rec := do(t, r, "POST", "/api/v1/positions",
		fmt.Sprintf(`{"latitude":40.0001,"longitude":-75,"timestamp":%d}`, old))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %s", rec.Code, rec.Body)
	}
	if code := decode(t, rec)["error"].(map[string]interface{})["code"]; code != "STALE_SAMPLE" {
		t.Fatalf("expected STALE_SAMPLE, got %v", code)
	}

	ahead := time.Now().Add(time.Hour).UnixMilli()
	rec = do(t, r, "POST", "/api/v1/positions",
		fmt.Sprintf(`{"latitude":40.0001,"longitude":-75,"timestamp":%d}`, ahead))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for future sample, got %d %s", rec.Code, rec.Body)
	}

	if n := eng.Status().Samples; n != 0 {
		t.Fatalf("stale samples reached the engine: %d", n)
	}
}
