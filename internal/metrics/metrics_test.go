package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegistryIsSingleton(t *testing.T) {
	a := Registry("tiempos_test")
	b := Registry("ignored")
	if a != b {
		t.Fatal("expected the same metrics instance")
	}
}

func TestObserveBackendLabelsOutcome(t *testing.T) {
	m := Registry("tiempos_test")
	m.ObserveBackend("emulator", "bets", "insert", "", time.Millisecond)
	m.ObserveBackend("emulator", "bets", "insert", "conflict", time.Millisecond)

	if got := testutil.ToFloat64(m.BackendRequests.WithLabelValues("emulator", "bets", "insert", "ok")); got < 1 {
		t.Fatalf("expected ok counter to be incremented, got %v", got)
	}
	if got := testutil.ToFloat64(m.BackendRequests.WithLabelValues("emulator", "bets", "insert", "conflict")); got < 1 {
		t.Fatalf("expected conflict counter to be incremented, got %v", got)
	}
}
