package mock

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// IDGenerator produces unique record identifiers.
type IDGenerator interface {
	NewID() string
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// UUIDGenerator issues random v4 UUIDs.
type UUIDGenerator struct{}

// NewID implements IDGenerator.
func (UUIDGenerator) NewID() string {
	return uuid.NewString()
}

// SequenceGenerator issues prefix-0001, prefix-0002, ... for deterministic tests.
type SequenceGenerator struct {
	Prefix string

	mu   sync.Mutex
	next int
}

// NewID implements IDGenerator.
func (g *SequenceGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	prefix := g.Prefix
	if prefix == "" {
		prefix = "id"
	}
	return fmt.Sprintf("%s-%04d", prefix, g.next)
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant.
type FixedClock struct {
	At time.Time
}

// Now implements Clock.
func (c FixedClock) Now() time.Time { return c.At }

// stamper hands out strictly increasing timestamps even when the clock
// stalls or repeats.
type stamper struct {
	clock Clock
	last  time.Time
}

func (s *stamper) next() time.Time {
	now := s.clock.Now().UTC().Truncate(time.Microsecond)
	if !now.After(s.last) {
		now = s.last.Add(time.Microsecond)
	}
	s.last = now
	return now
}

// shortCode is a compact, upper-case code derived from a fresh identifier.
func shortCode(ids IDGenerator, prefix string) string {
	raw := strings.ToUpper(strings.ReplaceAll(ids.NewID(), "-", ""))
	if len(raw) > 8 {
		raw = raw[len(raw)-8:]
	}
	return prefix + "-" + raw
}
