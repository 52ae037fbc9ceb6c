package schedule

import "time"

// maxSlotSearchDays bounds the roll-forward loop in NextSendSlot.
const maxSlotSearchDays = 400

// NextSendSlot spaces the index-th prospect spacing apart from base and
// rolls the result forward to the next instant the campaign may send.
// An empty or out-of-range window is reported as a ConfigurationError.
func (e *Evaluator) NextSendSlot(cfg Config, base time.Time, index int, spacing time.Duration) (time.Time, error) {
	if werr := validateWindow(cfg.WorkHourStart, cfg.WorkHourEnd); werr != nil {
		return time.Time{}, werr
	}
	loc, _ := ResolveLocation(cfg.Timezone)

	t := base.In(loc)
	if t.Hour() < cfg.WorkHourStart {
		t = dayStart(t, 0, cfg.WorkHourStart)
	}
	if index > 0 {
		t = t.Add(time.Duration(index) * spacing)
	}

	for i := 0; i < maxSlotSearchDays; i++ {
		switch {
		case cfg.SkipWeekends && isWeekend(t):
			t = dayStart(t, 1, cfg.WorkHourStart)
		case cfg.SkipHolidays && e.Holidays.IsHoliday(cfg.HolidayCountry, t):
			t = dayStart(t, 1, cfg.WorkHourStart)
		case t.Hour() >= cfg.WorkHourEnd:
			t = dayStart(t, 1, cfg.WorkHourStart)
		case t.Hour() < cfg.WorkHourStart:
			t = dayStart(t, 0, cfg.WorkHourStart)
		default:
			return t.UTC(), nil
		}
	}
	return t.UTC(), nil
}

// NextSendSlot uses the embedded holiday calendar.
func NextSendSlot(cfg Config, base time.Time, index int, spacing time.Duration) (time.Time, error) {
	return NewEvaluator(nil).NextSendSlot(cfg, base, index, spacing)
}

func dayStart(t time.Time, addDays, hour int) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+addDays, hour, 0, 0, 0, t.Location())
}
