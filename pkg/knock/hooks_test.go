package knock_test

import (
	"testing"
	"time"

	"github.com/merlos/openmelib-go/pkg/knock"
)

func TestClockFunc(t *testing.T) {
	fixed := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	c := knock.ClockFunc(func() time.Time { return fixed })
	if got := c.Now(); !got.Equal(fixed) {
		t.Errorf("Now() = %v, want %v", got, fixed)
	}
}

func TestSystemClock(t *testing.T) {
	got := knock.SystemClock.Now()
	if d := time.Since(got); d < 0 || d > 5*time.Second {
		t.Errorf("SystemClock.Now() = %v, not close to wall time", got)
	}
}

func TestBaseClock_SetBase(t *testing.T) {
	base := time.Date(2026, 8, 23, 9, 0, 0, 0, time.UTC)
	var c knock.BaseClock
	c.SetBase(base)

	first := c.Now()
	if first.Before(base) || first.After(base.Add(5*time.Second)) {
		t.Fatalf("Now() = %v, want close to %v", first, base)
	}

	time.Sleep(20 * time.Millisecond)
	second := c.Now()
	if !second.After(first) {
		t.Errorf("Now() did not advance: first %v, second %v", first, second)
	}
	if d := second.Sub(first); d < 20*time.Millisecond {
		t.Errorf("Now() advanced %v, want at least 20ms", d)
	}
}

func TestBaseClock_ReAnchor(t *testing.T) {
	var c knock.BaseClock
	c.SetBase(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	base2 := time.Date(2026, 8, 23, 9, 0, 0, 0, time.UTC)
	c.SetBase(base2)
	if got := c.Now(); got.Before(base2) || got.After(base2.Add(5*time.Second)) {
		t.Errorf("Now() after re-anchor = %v, want close to %v", got, base2)
	}
}

func TestBaseClock_ZeroValueStartsAtEpoch(t *testing.T) {
	var c knock.BaseClock
	got := c.Now()
	if got.Year() != 1970 {
		t.Errorf("zero-value Now() = %v, want epoch-relative time", got)
	}

	time.Sleep(20 * time.Millisecond)
	if next := c.Now(); !next.After(got) {
		t.Errorf("zero-value Now() did not advance: %v then %v", got, next)
	}
}
