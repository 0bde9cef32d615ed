package prometheus

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"approvalflow/circuit"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Namespace != "approvalflow" {
		t.Errorf("expected namespace 'approvalflow', got '%s'", cfg.Namespace)
	}
	if cfg.Subsystem != "" {
		t.Errorf("expected empty subsystem, got '%s'", cfg.Subsystem)
	}
	if cfg.Registry != prometheus.DefaultRegisterer {
		t.Error("expected default registry")
	}
}

func gatherNames(t *testing.T, reg *prometheus.Registry) map[string]int {
	t.Helper()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	names := make(map[string]int, len(mfs))
	for _, mf := range mfs {
		names[mf.GetName()] = len(mf.GetMetric())
	}
	return names
}

func TestPrometheusMetrics_RequestCreated(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(Config{Namespace: "test", Registry: reg})

	m.RequestCreated("trip")
	m.RequestCreated("trip")
	m.RequestCreated("seminar")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range mfs {
		if mf.GetName() == "test_request_created_total" {
			found = true
			series := mf.GetMetric()
			if len(series) != 2 {
				t.Errorf("expected 2 metric series, got %d", len(series))
			}
			for _, metric := range series {
				for _, label := range metric.GetLabel() {
					if label.GetName() == "kind" && label.GetValue() == "trip" {
						if metric.GetCounter().GetValue() != 2 {
							t.Errorf("expected trip count 2, got %f", metric.GetCounter().GetValue())
						}
					}
				}
			}
		}
	}
	if !found {
		t.Error("request_created_total metric not found")
	}
}

func TestPrometheusMetrics_CreateFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(Config{Namespace: "test", Registry: reg})

	m.RequestCreateFailed("trip", "duplicate_number")
	m.RequestCreateFailed("trip", "timeout")
	m.CreateAttempts("trip", 3)

	names := gatherNames(t, reg)
	if series := names["test_request_create_failed_total"]; series != 2 {
		t.Errorf("expected 2 failure series (different reasons), got %d", series)
	}
	if _, ok := names["test_create_attempts"]; !ok {
		t.Error("create_attempts metric not found")
	}
}

func TestPrometheusMetrics_DecisionMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(Config{Namespace: "test", Registry: reg})

	m.DecisionProcessed("approve", "head", 100*time.Millisecond)
	m.DecisionProcessed("reject", "vp", 50*time.Millisecond)
	m.DecisionRejected("approve", "stale_status")
	m.RequestApproved("trip")
	m.RequestReturned("comptroller")

	names := gatherNames(t, reg)
	for _, name := range []string{
		"test_decision_processed_total",
		"test_decision_duration_seconds",
		"test_decision_rejected_total",
		"test_request_approved_total",
		"test_request_returned_total",
	} {
		if _, ok := names[name]; !ok {
			t.Errorf("metric %s not found", name)
		}
	}
	if names["test_decision_processed_total"] != 2 {
		t.Errorf("expected 2 decision series, got %d", names["test_decision_processed_total"])
	}
}

func TestPrometheusMetrics_BudgetAndNotify(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(Config{Namespace: "test", Registry: reg})

	m.BudgetRevised("trip")
	m.NotifySent("head")
	m.NotifyFailed("head", "connection_refused")

	names := gatherNames(t, reg)
	for _, name := range []string{
		"test_budget_revised_total",
		"test_notify_sent_total",
		"test_notify_failed_total",
	} {
		if _, ok := names[name]; !ok {
			t.Errorf("metric %s not found", name)
		}
	}
}

func TestPrometheusMetrics_CircuitStateChanged(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(Config{Namespace: "test", Registry: reg})

	m.CircuitStateChanged("u-42", circuit.StateClosed)
	m.CircuitStateChanged("u-42", circuit.StateOpen)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range mfs {
		if mf.GetName() == "test_circuit_state" {
			found = true
			series := mf.GetMetric()
			if len(series) != 1 {
				t.Errorf("expected 1 metric series, got %d", len(series))
			}
			// Should be StateOpen
			if series[0].GetGauge().GetValue() != float64(circuit.StateOpen) {
				t.Errorf("expected state %d, got %f", circuit.StateOpen, series[0].GetGauge().GetValue())
			}
		}
	}
	if !found {
		t.Error("circuit_state metric not found")
	}
}

func TestPrometheusMetrics_RemindMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(Config{Namespace: "test", Registry: reg})

	m.RemindScanned(5)
	m.RemindSent("vp")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	foundScanned := false
	foundSent := false
	for _, mf := range mfs {
		switch mf.GetName() {
		case "test_remind_scanned_total":
			foundScanned = true
			if got := mf.GetMetric()[0].GetCounter().GetValue(); got != 5 {
				t.Errorf("expected scanned count 5, got %f", got)
			}
		case "test_remind_sent_total":
			foundSent = true
		}
	}
	if !foundScanned {
		t.Error("remind_scanned_total metric not found")
	}
	if !foundSent {
		t.Error("remind_sent_total metric not found")
	}
}

func TestPrometheusMetrics_LockMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(Config{Namespace: "test", Registry: reg})

	m.LockAcquired(10 * time.Millisecond)
	m.LockFailed("timeout")

	names := gatherNames(t, reg)
	for _, name := range []string{
		"test_lock_acquired_total",
		"test_lock_failed_total",
		"test_lock_acquire_duration_seconds",
	} {
		if _, ok := names[name]; !ok {
			t.Errorf("metric %s not found", name)
		}
	}
}
