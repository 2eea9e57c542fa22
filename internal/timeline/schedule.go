package timeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// CityData is one scheduled visit as it appears in the schedule file.
type CityData struct {
	ArrivalTimeUTC string  `json:"arrival_time_utc"`
	Coordinates    *Coords `json:"coordinates"`
	Msg            string  `json:"msg,omitempty"`
}

type City struct {
	Name string
	CityData
}

type Zone struct {
	Name   ZoneKey
	Cities []City
}

// Schedule is the nested zone -> city -> visit document. Zones and cities keep the
// order in which they appear in the JSON source.
type Schedule struct {
	Zones []Zone
}

// UnmarshalJSON decodes the schedule preserving key order. Zone or city values that
// are not well-formed objects are skipped instead of failing the whole document.
func (s *Schedule) UnmarshalJSON(b []byte) error {
	var zones []Zone
	err := decodeObject(b, func(zoneName string, raw json.RawMessage) error {
		z := Zone{Name: ZoneKey(zoneName)}
		err := decodeObject(raw, func(cityName string, raw json.RawMessage) error {
			var cd CityData
			if err := json.Unmarshal(raw, &cd); err != nil {
				return nil
			}
			z.Cities = append(z.Cities, City{Name: cityName, CityData: cd})
			return nil
		})
		if err != nil {
			return nil
		}
		zones = append(zones, z)
		return nil
	})
	if err != nil {
		return fmt.Errorf("decode schedule: %w", err)
	}
	s.Zones = zones
	return nil
}

// MarshalJSON writes the schedule back in its nested form, keeping order.
func (s Schedule) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, z := range s.Zones {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(string(z.Name))
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteString(":{")
		for j, c := range z.Cities {
			if j > 0 {
				buf.WriteByte(',')
			}
			k, err := json.Marshal(c.Name)
			if err != nil {
				return nil, err
			}
			v, err := json.Marshal(c.CityData)
			if err != nil {
				return nil, err
			}
			buf.Write(k)
			buf.WriteByte(':')
			buf.Write(v)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Has reports whether the schedule contains a zone named zone.
func (s Schedule) Has(zone ZoneKey) bool {
	for _, z := range s.Zones {
		if z.Name == zone {
			return true
		}
	}
	return false
}

// ReadSchedule decodes a schedule document from r.
func ReadSchedule(r io.Reader) (Schedule, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return Schedule{}, fmt.Errorf("read schedule: %w", err)
	}
	var s Schedule
	if err := json.Unmarshal(b, &s); err != nil {
		return Schedule{}, err
	}
	return s, nil
}

// LoadScheduleFile reads the schedule document at path.
func LoadScheduleFile(path string) (Schedule, error) {
	f, err := os.Open(path)
	if err != nil {
		return Schedule{}, fmt.Errorf("open schedule: %w", err)
	}
	defer f.Close()
	return ReadSchedule(f)
}

// decodeObject walks the top-level keys of a JSON object in document order.
func decodeObject(b []byte, fn func(key string, raw json.RawMessage) error) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected object, got %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		if err := fn(key, raw); err != nil {
			return err
		}
	}
	_, err = dec.Token()
	return err
}

var arrivalLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseArrival parses an ISO-8601 arrival string. Strings without a zone designator
// are read as UTC, not as the host's local time as a browser Date would read them,
// so a schedule mixing zoned and unzoned strings may sort differently there.
func ParseArrival(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty arrival time")
	}
	for _, layout := range arrivalLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable arrival time %q", s)
}
