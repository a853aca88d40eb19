package mock

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestGateWaitsForOpDelay(t *testing.T) {
	g := Gate{Read: 20 * time.Millisecond}
	start := time.Now()
	if err := g.Wait(context.Background(), OpRead); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("expected at least 20ms, got %s", elapsed)
	}
}

func TestGateStopsOnCancel(t *testing.T) {
	g := Gate{Auth: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := g.Wait(ctx, OpAuth); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNoLatencyStillHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	if err := NoLatency().Wait(ctx, OpWrite); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cancel()
	if err := NoLatency().Wait(ctx, OpWrite); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDefaultGateOrdering(t *testing.T) {
	g := DefaultGate()
	if !(g.Read < g.Write && g.Write < g.List && g.List < g.Auth) {
		t.Fatalf("unexpected default delays: %+v", g)
	}
	if OpList.String() != "list" || Op(99).String() != "unknown" {
		t.Fatal("unexpected op names")
	}
}

func TestSequenceGenerator(t *testing.T) {
	g := &SequenceGenerator{Prefix: "usr"}
	if got := g.NewID(); got != "usr-0001" {
		t.Fatalf("expected usr-0001, got %s", got)
	}
	if got := g.NewID(); got != "usr-0002" {
		t.Fatalf("expected usr-0002, got %s", got)
	}
	if got := (&SequenceGenerator{}).NewID(); got != "id-0001" {
		t.Fatalf("expected id-0001, got %s", got)
	}
}

func TestStamperIsStrictlyIncreasing(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := stamper{clock: FixedClock{At: at}}
	first := s.next()
	second := s.next()
	if !first.Equal(at) {
		t.Fatalf("expected first stamp %s, got %s", at, first)
	}
	if !second.After(first) {
		t.Fatalf("expected %s after %s", second, first)
	}
}

func TestShortCode(t *testing.T) {
	code := shortCode(UUIDGenerator{}, "TX")
	if !strings.HasPrefix(code, "TX-") || len(code) != len("TX-")+8 {
		t.Fatalf("unexpected code %q", code)
	}
	if code != strings.ToUpper(code) {
		t.Fatalf("expected upper case, got %q", code)
	}
}
