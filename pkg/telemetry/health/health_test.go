package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"mercator-hq/turnstile/pkg/config"
)

// TestNew tests the creation of a new health checker.
func TestNew(t *testing.T) {
	tests := []struct {
		name            string
		timeout         time.Duration
		expectedTimeout time.Duration
	}{
		{
			name:            "default timeout",
			timeout:         0,
			expectedTimeout: 5 * time.Second,
		},
		{
			name:            "custom timeout",
			timeout:         10 * time.Second,
			expectedTimeout: 10 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := New(tt.timeout)

			if checker.checkTimeout != tt.expectedTimeout {
				t.Errorf("expected timeout %v, got %v", tt.expectedTimeout, checker.checkTimeout)
			}
			if len(checker.ListChecks()) != 0 {
				t.Errorf("expected 0 checks, got %d", len(checker.ListChecks()))
			}
		})
	}
}

func TestRegisterAndUnregister(t *testing.T) {
	checker := New(time.Second)
	checker.RegisterCheck("journal", func(ctx context.Context) error { return nil })
	checker.RegisterCheck("limits", func(ctx context.Context) error { return nil })

	if got, want := checker.ListChecks(), []string{"journal", "limits"}; !reflect.DeepEqual(got, want) {
		t.Errorf("ListChecks() = %v, want %v", got, want)
	}

	checker.UnregisterCheck("journal")
	if got, want := checker.ListChecks(), []string{"limits"}; !reflect.DeepEqual(got, want) {
		t.Errorf("ListChecks() = %v, want %v", got, want)
	}
}

func TestCheckReadiness(t *testing.T) {
	tests := []struct {
		name     string
		checks   map[string]CheckFunc
		draining bool
		want     string
	}{
		{
			name: "no checks",
			want: StatusReady,
		},
		{
			name: "all healthy",
			checks: map[string]CheckFunc{
				"limits":  func(ctx context.Context) error { return nil },
				"journal": func(ctx context.Context) error { return nil },
			},
			want: StatusReady,
		},
		{
			name: "one unhealthy",
			checks: map[string]CheckFunc{
				"limits":  func(ctx context.Context) error { return nil },
				"journal": func(ctx context.Context) error { return errors.New("connection refused") },
			},
			want: StatusDegraded,
		},
		{
			name: "draining wins",
			checks: map[string]CheckFunc{
				"limits": func(ctx context.Context) error { return nil },
			},
			draining: true,
			want:     StatusDraining,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := New(time.Second)
			for name, check := range tt.checks {
				checker.RegisterCheck(name, check)
			}
			checker.SetDraining(tt.draining)

			status := checker.CheckReadiness(context.Background())
			if status.Status != tt.want {
				t.Errorf("status = %q, want %q", status.Status, tt.want)
			}
			if len(status.Checks) != len(tt.checks) {
				t.Errorf("expected %d results, got %d", len(tt.checks), len(status.Checks))
			}
		})
	}
}

func TestCheckReadinessReportsFailure(t *testing.T) {
	checker := New(time.Second)
	checker.RegisterCheck("journal", func(ctx context.Context) error {
		return errors.New("database is locked")
	})

	status := checker.CheckReadiness(context.Background())
	result := status.Checks["journal"]
	if result.Status != StatusUnhealthy {
		t.Errorf("status = %q, want %q", result.Status, StatusUnhealthy)
	}
	if result.Message != "database is locked" {
		t.Errorf("message = %q", result.Message)
	}
}

func TestCheckTimeout(t *testing.T) {
	checker := New(20 * time.Millisecond)
	checker.RegisterCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(500 * time.Millisecond)
		return nil
	})

	start := time.Now()
	status := checker.CheckReadiness(context.Background())
	if elapsed := time.Since(start); elapsed > 250*time.Millisecond {
		t.Errorf("readiness took %v, expected the check timeout to cut it short", elapsed)
	}
	if status.Status != StatusDegraded {
		t.Errorf("status = %q, want %q", status.Status, StatusDegraded)
	}
	if msg := status.Checks["slow"].Message; msg != ErrCheckTimeout.Error() {
		t.Errorf("message = %q, want %q", msg, ErrCheckTimeout.Error())
	}
}

func TestLivenessIgnoresDraining(t *testing.T) {
	checker := New(time.Second)
	checker.SetDraining(true)

	if status := checker.CheckLiveness(context.Background()); status.Status != StatusOK {
		t.Errorf("liveness = %q while draining, want %q", status.Status, StatusOK)
	}
	if !checker.Draining() {
		t.Error("expected Draining() to be true")
	}
}

func TestReadinessHandler(t *testing.T) {
	checker := New(time.Second)
	healthy := true
	checker.RegisterCheck("journal", func(ctx context.Context) error {
		if !healthy {
			return errors.New("down")
		}
		return nil
	})

	handler := checker.ReadinessHandler()

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body HealthStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Status != StatusReady {
		t.Errorf("status = %q", body.Status)
	}

	healthy = false
	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 when degraded, got %d", rec.Code)
	}
}

func TestHandlersRejectWrongMethod(t *testing.T) {
	checker := New(time.Second)
	handlers := map[string]http.HandlerFunc{
		"liveness":  checker.LivenessHandler(),
		"readiness": checker.ReadinessHandler(),
		"version":   VersionHandler(NewVersionInfo("1.0.0", "abc", "now")),
	}

	for name, h := range handlers {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h(rec, httptest.NewRequest(http.MethodPost, "/", nil))
			if rec.Code != http.StatusMethodNotAllowed {
				t.Errorf("expected 405, got %d", rec.Code)
			}
		})
	}
}

func TestVersionHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	VersionHandler(NewVersionInfo("1.2.3", "deadbeef", "2026-01-01"))(rec, httptest.NewRequest(http.MethodGet, "/version", nil))

	var info VersionInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if info.Version != "1.2.3" || info.Commit != "deadbeef" {
		t.Errorf("unexpected version info: %+v", info)
	}
	if info.GoVersion == "" {
		t.Error("expected go version to be set")
	}
}

func TestMountUsesConfiguredPaths(t *testing.T) {
	checker := New(time.Second)
	mux := http.NewServeMux()
	Mount(mux, checker, config.HealthConfig{LivenessPath: "/livez", ReadinessPath: "/readyz"}, NewVersionInfo("dev", "", ""), 0)

	for _, path := range []string{"/livez", "/readyz", "/version"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}

func TestRateLimitedHandler(t *testing.T) {
	calls := 0
	handler := RateLimitedHandler(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}, 3)

	codes := make([]int, 0, 5)
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		handler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		codes = append(codes, rec.Code)
	}

	want := []int{200, 200, 200, 429, 429}
	if !reflect.DeepEqual(codes, want) {
		t.Errorf("codes = %v, want %v", codes, want)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls to reach the handler, got %d", calls)
	}
}

func BenchmarkCheckReadiness(b *testing.B) {
	checker := New(time.Second)
	for _, name := range []string{"limits", "journal", "redis"} {
		checker.RegisterCheck(name, func(ctx context.Context) error { return nil })
	}

	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		checker.CheckReadiness(ctx)
	}
}
