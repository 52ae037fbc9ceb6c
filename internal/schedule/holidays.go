package schedule

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultCountry is the calendar used for unknown or empty country codes.
const DefaultCountry = "INTL"

//go:embed holidays.yaml
var defaultHolidaysYAML []byte

var defaultCalendar = mustParseCalendar(defaultHolidaysYAML)

// HolidayCalendar maps a country code to its public holidays. It is
// read-only after construction.
type HolidayCalendar struct {
	days map[string]map[string]struct{}
}

// DefaultCalendar returns the calendar shipped with the binary.
func DefaultCalendar() *HolidayCalendar {
	return defaultCalendar
}

// ParseHolidayCalendar reads a YAML document of the form
// COUNTRY: ["2006-01-02", ...].
func ParseHolidayCalendar(data []byte) (*HolidayCalendar, error) {
	raw := map[string][]string{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse holiday calendar: %w", err)
	}

	cal := &HolidayCalendar{days: make(map[string]map[string]struct{}, len(raw))}
	for country, dates := range raw {
		set := make(map[string]struct{}, len(dates))
		for _, d := range dates {
			if _, err := time.Parse(time.DateOnly, d); err != nil {
				return nil, fmt.Errorf("holiday %q for %s: %w", d, country, err)
			}
			set[d] = struct{}{}
		}
		cal.days[strings.ToUpper(country)] = set
	}
	return cal, nil
}

// LoadHolidayCalendar reads a calendar from r.
func LoadHolidayCalendar(r io.Reader) (*HolidayCalendar, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return ParseHolidayCalendar(data)
}

// LoadHolidayFile reads a calendar from path, or returns the default one
// when path is empty.
func LoadHolidayFile(path string) (*HolidayCalendar, error) {
	if path == "" {
		return DefaultCalendar(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open holiday calendar: %w", err)
	}
	defer f.Close()
	return LoadHolidayCalendar(f)
}

// IsHoliday reports whether the civil date of local is a holiday in country.
func (c *HolidayCalendar) IsHoliday(country string, local time.Time) bool {
	if c == nil {
		return false
	}
	set, ok := c.days[strings.ToUpper(country)]
	if !ok {
		set = c.days[DefaultCountry]
	}
	_, hit := set[local.Format(time.DateOnly)]
	return hit
}

func mustParseCalendar(data []byte) *HolidayCalendar {
	cal, err := ParseHolidayCalendar(data)
	if err != nil {
		panic(err)
	}
	return cal
}
