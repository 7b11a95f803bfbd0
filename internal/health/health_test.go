package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func healthy(ctx context.Context) CheckResult {
	return CheckResult{Status: StatusHealthy}
}

func unhealthy(ctx context.Context) CheckResult {
	return CheckResult{Status: StatusUnhealthy, Error: "down"}
}

func TestOverallStatus(t *testing.T) {
	tests := []struct {
		name       string
		critical   Check
		optional   Check
		wantStatus Status
	}{
		{"all healthy", healthy, healthy, StatusHealthy},
		{"optional down", healthy, unhealthy, StatusDegraded},
		{"critical down", unhealthy, healthy, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker()
			c.RegisterFunc("engine", true, tt.critical)
			c.RegisterFunc("injector", false, tt.optional)

			if got := c.OverallStatus(); got != StatusUnknown {
				t.Errorf("before checks: status = %s, want unknown", got)
			}

			results := c.Check(context.Background())
			if len(results) != 2 {
				t.Fatalf("got %d results, want 2", len(results))
			}
			if got := c.OverallStatus(); got != tt.wantStatus {
				t.Errorf("status = %s, want %s", got, tt.wantStatus)
			}
		})
	}
}

func TestCheckTimeoutAndPanic(t *testing.T) {
	c := NewChecker()
	c.Register(&Component{
		Name:    "slow",
		Timeout: 20 * time.Millisecond,
		Check: func(ctx context.Context) CheckResult {
			<-ctx.Done()
			time.Sleep(10 * time.Millisecond)
			return CheckResult{Status: StatusHealthy}
		},
	})
	c.RegisterFunc("broken", false, func(ctx context.Context) CheckResult {
		panic("boom")
	})

	results := c.Check(context.Background())
	if r := results["slow"]; r.Status != StatusUnhealthy || r.Message != "check timed out" {
		t.Errorf("slow = %+v", r)
	}
	if r := results["broken"]; r.Status != StatusUnhealthy || r.Error != "boom" {
		t.Errorf("broken = %+v", r)
	}

	if _, ok := c.CheckComponent(context.Background(), "missing"); ok {
		t.Error("CheckComponent found an unregistered component")
	}
}

func TestPingCheck(t *testing.T) {
	ok := PingCheck("engine", func(context.Context) error { return nil })(context.Background())
	if ok.Status != StatusHealthy {
		t.Errorf("ok ping: %+v", ok)
	}

	failed := PingCheck("engine", func(context.Context) error { return errors.New("no reply") })(context.Background())
	if failed.Status != StatusUnhealthy || failed.Error != "no reply" {
		t.Errorf("failed ping: %+v", failed)
	}
}

func TestEnabledCheck(t *testing.T) {
	tests := []struct {
		name       string
		configured bool
		available  bool
		want       Status
	}{
		{"disabled", false, false, StatusHealthy},
		{"missing", true, false, StatusDegraded},
		{"present", true, true, StatusHealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EnabledCheck("injector", tt.configured, func() bool { return tt.available })(context.Background())
			if got.Status != tt.want {
				t.Errorf("status = %s, want %s", got.Status, tt.want)
			}
		})
	}
}

func TestHandlers(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("engine", true, healthy)
	c.RegisterFunc("injector", false, unhealthy)

	rec := httptest.NewRecorder()
	c.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readiness before SetReady = %d", rec.Code)
	}

	c.SetReady(true)
	rec = httptest.NewRecorder()
	c.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("readiness = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	c.HealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz?full=true", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health = %d", rec.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != StatusDegraded || !resp.Ready || len(resp.Components) != 2 {
		t.Errorf("response = %+v", resp)
	}

	rec = httptest.NewRecorder()
	c.LivenessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("liveness = %d", rec.Code)
	}
}
