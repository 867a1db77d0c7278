// Package localtime holds the process-wide notion of "local" used to decide
// which calendar day an instant belongs to. The zone can be swapped at
// runtime when the host timezone changes.
package localtime

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"
)

// DayLayout is the calendar-date layout used for day stamps.
const DayLayout = "2006-01-02"

// Zone is a concurrency-safe, replaceable *time.Location.
type Zone struct {
	loc atomic.Pointer[time.Location]
}

// NewZone returns a Zone initialised to loc (time.Local when nil).
func NewZone(loc *time.Location) *Zone {
	z := &Zone{}
	z.Set(loc)
	return z
}

// Load resolves a zone by IANA name; empty means the process local zone.
func Load(name string) (*Zone, error) {
	if name == "" || name == "Local" {
		return NewZone(time.Local), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load location %q: %w", name, err)
	}
	return NewZone(loc), nil
}

// Location returns the current location.
func (z *Zone) Location() *time.Location {
	if z == nil {
		return time.Local
	}
	if loc := z.loc.Load(); loc != nil {
		return loc
	}
	return time.Local
}

// Set replaces the current location.
func (z *Zone) Set(loc *time.Location) {
	if loc == nil {
		loc = time.Local
	}
	z.loc.Store(loc)
}

// ReloadFromFile re-reads tzdata (e.g. /etc/localtime) and swaps it in.
// Go caches time.Local at start-up, so a host timezone change is only
// visible after an explicit reload.
func (z *Zone) ReloadFromFile(path string) (*time.Location, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read zoneinfo %s: %w", path, err)
	}
	loc, err := time.LoadLocationFromTZData("Local", data)
	if err != nil {
		return nil, fmt.Errorf("parse zoneinfo %s: %w", path, err)
	}
	z.Set(loc)
	return loc, nil
}

// DayStamp formats the local calendar date of t.
func (z *Zone) DayStamp(t time.Time) string {
	return t.In(z.Location()).Format(DayLayout)
}

// NextMidnight returns the local midnight strictly after now. It is always
// derived from now; callers must not extrapolate from a stored boundary.
func (z *Zone) NextMidnight(now time.Time) time.Time {
	local := now.In(z.Location())
	y, m, d := local.Date()
	next := time.Date(y, m, d+1, 0, 0, 0, 0, z.Location())
	if !next.After(now) {
		// Zones whose midnight is skipped by a DST jump can normalise
		// backwards; step a further day in that case.
		next = time.Date(y, m, d+2, 0, 0, 0, 0, z.Location())
	}
	return next
}
