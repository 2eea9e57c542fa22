package timeline

import (
	"fmt"
	"strings"
	"time"
)

const (
	newStopStep   = 2 * time.Minute
	zoneGuard     = 60 * time.Second
	fallbackAfter = 60 * time.Second
)

// NewStopArrival picks a base (unshifted) arrival for a new stop in zone. It lands
// two minutes after the zone's last stop when that leaves a minute before the next
// zone starts, otherwise one minute after the zone's last stop. The fallback may
// overlap the next zone; playback tolerates that.
func NewStopArrival(base Timeline, zone ZoneKey, now time.Time) time.Time {
	zoneMax, hasZone := base.ZoneMax(zone)

	anchor := now
	if first, ok := base.First(); ok {
		anchor = first
	}
	if hasZone {
		anchor = zoneMax
	}
	candidate := anchor.Add(newStopStep)

	rank := zone.Rank()
	if rank+1 >= len(ZoneOrder) {
		return candidate
	}
	nextMin, ok := base.rankMin(rank + 1)
	if !ok {
		return candidate
	}
	if candidate.Before(nextMin.Add(-zoneGuard)) {
		return candidate
	}
	if hasZone {
		return zoneMax.Add(fallbackAfter)
	}
	return candidate.Add(fallbackAfter)
}

// UniqueName returns desired (trimmed) if unused, otherwise the first free
// "desired (n)" for n >= 2.
func UniqueName(used map[string]bool, desired string) string {
	name := strings.TrimSpace(desired)
	if !used[name] {
		return name
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s (%d)", name, i)
		if !used[candidate] {
			return candidate
		}
	}
}

// BuildBase flattens the schedule and merges the viewer's stops into it. Each user
// stop gets a name that is unique within its zone; stops with an unparseable arrival
// are skipped.
func BuildBase(s Schedule, users []UserStop) Timeline {
	out := Flatten(s)
	used := make(map[ZoneKey]map[string]bool)
	for _, z := range s.Zones {
		names := used[z.Name]
		if names == nil {
			names = make(map[string]bool)
			used[z.Name] = names
		}
		for _, c := range z.Cities {
			names[c.Name] = true
		}
	}
	for _, u := range users {
		stop, ok := u.Stop()
		if !ok {
			continue
		}
		names := used[u.ZoneKey]
		if names == nil {
			names = make(map[string]bool)
			used[u.ZoneKey] = names
		}
		stop.City = UniqueName(names, u.City)
		names[stop.City] = true
		out = append(out, stop)
	}
	sortByArrival(out)
	return out
}
