package playback

import (
	"fmt"
	"math"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"sleigh-tracker/internal/timeline"
)

type Status struct {
	Headline string `json:"headline"`
	Subtext  string `json:"subtext"`
}

// Formatter renders status text in the viewer's locale and time zone.
type Formatter struct {
	loc     *time.Location
	printer *message.Printer
	clock12 bool
}

// NewFormatter returns a formatter for loc and the given BCP 47 locale tag.
// An unparseable tag falls back to English.
func NewFormatter(loc *time.Location, locale string) *Formatter {
	if loc == nil {
		loc = time.Local
	}
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.AmericanEnglish
	}
	return &Formatter{
		loc:     loc,
		printer: message.NewPrinter(tag),
		clock12: twelveHour(tag),
	}
}

// Regions whose preferred hour cycle is 1-12 with an AM/PM marker.
var twelveHourRegions = map[string]bool{
	"US": true, "CA": true, "AU": true, "NZ": true, "IN": true, "PH": true,
	"PK": true, "BD": true, "EG": true, "SA": true, "MX": true, "CO": true,
}

// twelveHour picks the clock style from the tag's region, inferring the region
// when the tag names only a language. French in Canada keeps the 24-hour clock.
func twelveHour(tag language.Tag) bool {
	region, _ := tag.Region()
	if !twelveHourRegions[region.String()] {
		return false
	}
	base, _ := tag.Base()
	fr, _ := language.French.Base()
	return !(region.String() == "CA" && base == fr)
}

// ETA renders a remaining duration the way the status line shows it.
func (f *Formatter) ETA(d time.Duration) string {
	if d <= 0 {
		return "now"
	}
	s := int64(d / time.Second)
	m := s / 60
	h := m / 60
	switch {
	case h > 0:
		return f.printer.Sprintf("%dh %dm", h, m%60)
	case m > 0:
		return f.printer.Sprintf("%dm %ds", m, s%60)
	}
	return f.printer.Sprintf("%ds", s%60)
}

// LocalTime renders t as a short wall-clock time in the viewer's zone.
func (f *Formatter) LocalTime(t time.Time) string {
	if f.clock12 {
		return t.In(f.loc).Format("3:04 PM")
	}
	return t.In(f.loc).Format("15:04")
}

// Zone names the viewer's time zone for display.
func (f *Formatter) Zone() string {
	name := f.loc.String()
	if name == "" || name == "Local" {
		return "local time"
	}
	return name
}

// Status builds the headline/subtext pair for a projection of tl at now.
func (f *Formatter) Status(tl timeline.Timeline, p Projection, now time.Time) Status {
	switch p.Phase {
	case PhasePending:
		start := tl[0].Arrival
		return Status{
			Headline: "Waiting to launch…",
			Subtext:  f.printer.Sprintf("Starts at %s (%s) • in %s", f.LocalTime(start), f.Zone(), f.ETA(start.Sub(now))),
		}
	case PhaseEnRoute:
		next := tl[p.Index+1]
		return Status{
			Headline: "En route",
			Subtext:  f.printer.Sprintf("Next: %s • ETA %s • %s (%s)", next.City, f.ETA(next.Arrival.Sub(now)), f.LocalTime(next.Arrival), f.Zone()),
		}
	case PhaseArrived:
		last := tl[p.Index]
		sub := last.Msg
		if sub == "" {
			sub = "Final stop reached"
		}
		return Status{Headline: last.City, Subtext: sub}
	}
	return Status{Headline: "Preparing sleigh…", Subtext: "Loading route"}
}

// ArrivalMessage is the one-shot notification text for reaching stop. final marks
// the last stop of the route.
func ArrivalMessage(stop timeline.Stop, final bool) string {
	if stop.Msg != "" {
		return stop.Msg
	}
	if final {
		return fmt.Sprintf("Santa is now at %s", stop.City)
	}
	return fmt.Sprintf("Santa arrived at %s", stop.City)
}

func etaSeconds(d time.Duration) float64 {
	return math.Max(0, d.Seconds())
}
