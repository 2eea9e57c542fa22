package timeline

import (
	"slices"
)

// Flatten turns the nested schedule into a timeline sorted by arrival. Entries whose
// arrival does not parse or whose coordinates are missing or invalid are dropped.
func Flatten(s Schedule) Timeline {
	var out Timeline
	for _, z := range s.Zones {
		for _, c := range z.Cities {
			stop, ok := c.stop(z.Name)
			if !ok {
				continue
			}
			out = append(out, stop)
		}
	}
	sortByArrival(out)
	return out
}

func (c City) stop(zone ZoneKey) (Stop, bool) {
	if c.Coordinates == nil || !c.Coordinates.Valid() {
		return Stop{}, false
	}
	at, err := ParseArrival(c.ArrivalTimeUTC)
	if err != nil {
		return Stop{}, false
	}
	return Stop{
		ZoneKey: zone,
		City:    c.Name,
		Coords:  *c.Coordinates,
		Arrival: at,
		Msg:     c.Msg,
	}, true
}

// sortByArrival is stable so equal arrivals keep encounter order.
func sortByArrival(tl Timeline) {
	slices.SortStableFunc(tl, func(a, b Stop) int {
		return a.Arrival.Compare(b.Arrival)
	})
}
