package mock

import (
	"context"
	"time"
)

// Op classifies a terminal call for latency purposes.
type Op int

const (
	OpRead Op = iota
	OpWrite
	OpList
	OpAuth
)

func (o Op) String() string {
	switch o {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpList:
		return "list"
	case OpAuth:
		return "auth"
	default:
		return "unknown"
	}
}

// Gate delays each call by a per-op duration before its result becomes
// visible. Calls do not queue behind each other; each waits on its own timer.
type Gate struct {
	Read  time.Duration
	Write time.Duration
	List  time.Duration
	Auth  time.Duration
}

// DefaultGate models a remote round-trip.
func DefaultGate() Gate {
	return Gate{
		Read:  100 * time.Millisecond,
		Write: 200 * time.Millisecond,
		List:  300 * time.Millisecond,
		Auth:  800 * time.Millisecond,
	}
}

// NoLatency resolves every call immediately.
func NoLatency() Gate { return Gate{} }

func (g Gate) delay(op Op) time.Duration {
	switch op {
	case OpRead:
		return g.Read
	case OpWrite:
		return g.Write
	case OpList:
		return g.List
	case OpAuth:
		return g.Auth
	default:
		return 0
	}
}

// Wait blocks for op's delay. It returns ctx.Err() if ctx ends first, in which
// case the caller must not apply its mutation.
func (g Gate) Wait(ctx context.Context, op Op) error {
	d := g.delay(op)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
