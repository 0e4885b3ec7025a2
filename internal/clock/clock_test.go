package clock

import (
	"testing"
	"time"
)

func TestFixed_TodayFollowsSetAndAdvance(t *testing.T) {
	c := NewFixed(time.Date(2025, 11, 22, 23, 0, 0, 0, time.UTC))
	if got := c.Today().String(); got != "2025-11-22" {
		t.Fatalf("Today = %s, want 2025-11-22", got)
	}

	c.Advance(2 * time.Hour)
	if got := c.Today().String(); got != "2025-11-23" {
		t.Fatalf("Today = %s, want 2025-11-23", got)
	}

	c.Set(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if got := c.Today().String(); got != "2026-01-01" {
		t.Fatalf("Today = %s, want 2026-01-01", got)
	}
}

func TestSystem_TodayUsesLocation(t *testing.T) {
	ahead := time.FixedZone("UTC+14", 14*60*60)
	behind := time.FixedZone("UTC-12", -12*60*60)

	a := System{Location: ahead}.Today()
	b := System{Location: behind}.Today()
	if !a.After(b) {
		t.Fatalf("Today in UTC+14 (%s) should be after UTC-12 (%s)", a, b)
	}
}
