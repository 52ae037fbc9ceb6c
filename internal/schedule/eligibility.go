// Package schedule decides when a campaign may contact prospects.
//
// Everything here is pure: the result depends only on the campaign settings,
// the instant passed in and the read-only holiday calendar.
package schedule

import (
	"fmt"
	"time"
	_ "time/tzdata"

	appErrors "github.com/unclebandit/prospect-outreach/internal/errors"
	"github.com/unclebandit/prospect-outreach/internal/model"
)

type Reason string

const (
	ReasonNone         Reason = ""
	ReasonWeekend      Reason = "weekend"
	ReasonHoliday      Reason = "holiday"
	ReasonOutsideHours Reason = "outside_hours"
)

// Config is the part of a campaign the evaluator reads.
type Config struct {
	Timezone       string
	WorkHourStart  int
	WorkHourEnd    int
	SkipWeekends   bool
	SkipHolidays   bool
	HolidayCountry string
}

// ConfigFromCampaign copies the scheduling settings out of c.
func ConfigFromCampaign(c *model.Campaign) Config {
	return Config{
		Timezone:       c.Timezone,
		WorkHourStart:  c.WorkingHoursStart,
		WorkHourEnd:    c.WorkingHoursEnd,
		SkipWeekends:   c.SkipWeekends,
		SkipHolidays:   c.SkipHolidays,
		HolidayCountry: c.HolidayCountry,
	}
}

// Eligibility is the answer for one instant. Warnings never block sending on
// their own; an empty window does, through Reason.
type Eligibility struct {
	Eligible  bool                            `json:"eligible"`
	Reason    Reason                          `json:"reason,omitempty"`
	LocalTime time.Time                       `json:"local_time"`
	Warnings  []*appErrors.ConfigurationError `json:"warnings,omitempty"`
}

// Evaluator binds a holiday calendar to the eligibility check.
type Evaluator struct {
	Holidays *HolidayCalendar
}

// NewEvaluator returns an evaluator using cal, or the embedded calendar when
// cal is nil.
func NewEvaluator(cal *HolidayCalendar) *Evaluator {
	if cal == nil {
		cal = DefaultCalendar()
	}
	return &Evaluator{Holidays: cal}
}

// IsEligibleNow evaluates cfg at now with the embedded holiday calendar.
func IsEligibleNow(cfg Config, now time.Time) Eligibility {
	return NewEvaluator(nil).IsEligibleNow(cfg, now)
}

// IsEligibleNow reports whether cfg allows sending at now.
func (e *Evaluator) IsEligibleNow(cfg Config, now time.Time) Eligibility {
	loc, warn := ResolveLocation(cfg.Timezone)
	local := now.In(loc)

	res := Eligibility{LocalTime: local}
	if warn != nil {
		res.Warnings = append(res.Warnings, warn)
	}

	if werr := validateWindow(cfg.WorkHourStart, cfg.WorkHourEnd); werr != nil {
		res.Warnings = append(res.Warnings, werr)
		res.Reason = ReasonOutsideHours
		return res
	}

	if cfg.SkipWeekends && isWeekend(local) {
		res.Reason = ReasonWeekend
		return res
	}

	if cfg.SkipHolidays && e.Holidays.IsHoliday(cfg.HolidayCountry, local) {
		res.Reason = ReasonHoliday
		return res
	}

	if h := local.Hour(); h < cfg.WorkHourStart || h >= cfg.WorkHourEnd {
		res.Reason = ReasonOutsideHours
		return res
	}

	res.Eligible = true
	return res
}

// ResolveLocation loads an IANA zone. Empty means UTC; anything that cannot
// be loaded, and the process-dependent "Local", fall back to UTC with a
// warning.
func ResolveLocation(tz string) (*time.Location, *appErrors.ConfigurationError) {
	if tz == "" || tz == "UTC" {
		return time.UTC, nil
	}
	if tz == "Local" {
		return time.UTC, &appErrors.ConfigurationError{Field: "timezone", Message: `"Local" is not a campaign timezone, using UTC`}
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC, &appErrors.ConfigurationError{
			Field:   "timezone",
			Message: fmt.Sprintf("unknown timezone %q, using UTC", tz),
		}
	}
	return loc, nil
}

// validateWindow accepts 0 <= start < end <= 24.
func validateWindow(start, end int) *appErrors.ConfigurationError {
	if start < 0 || start > 23 || end < 1 || end > 24 {
		return &appErrors.ConfigurationError{
			Field:   "working_hours",
			Message: fmt.Sprintf("hours %d-%d out of range", start, end),
		}
	}
	if start >= end {
		return &appErrors.ConfigurationError{
			Field:   "working_hours",
			Message: fmt.Sprintf("empty window %d-%d", start, end),
		}
	}
	return nil
}

func isWeekend(t time.Time) bool {
	d := t.Weekday()
	return d == time.Saturday || d == time.Sunday
}
