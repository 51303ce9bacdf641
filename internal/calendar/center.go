package calendar

import (
	"sort"
	"time"

	"github.com/gymops/gymops/internal/shared"
)

// Config is the working configuration of a center for one fiscal year.
type Config struct {
	WorkDays              []int `json:"workDays"`
	AvailableVacationDays int   `json:"availableVacationDays"`
}

// Works reports whether the ISO weekday (1=Monday … 7=Sunday) is a working day.
func (c Config) Works(weekday int) bool {
	for _, d := range c.WorkDays {
		if d == weekday {
			return true
		}
	}
	return false
}

func (c Config) clone() Config {
	out := Config{AvailableVacationDays: c.AvailableVacationDays}
	if len(c.WorkDays) > 0 {
		out.WorkDays = append([]int(nil), c.WorkDays...)
	}
	return out
}

// LocalHoliday is a recurring yearly holiday observed by a single center.
type LocalHoliday struct {
	Month int    `json:"month"`
	Day   int    `json:"day"`
	Name  string `json:"name"`
}

// Center is a gym location.
type Center struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Active        bool           `json:"active"`
	Configs       map[int]Config `json:"configs"`
	Default       Config         `json:"defaultConfig"`
	LocalHolidays []LocalHoliday `json:"localHolidays"`
}

// ConfigFor returns a snapshot of the fiscal-year config, falling back to the default config.
func (c Center) ConfigFor(year int) Config {
	if cfg, ok := c.Configs[year]; ok {
		return cfg.clone()
	}
	return c.Default.clone()
}

// LocalHolidaysIn expands the recurring local holidays into dated exceptions for year.
// Entries that do not exist in that year (e.g. 29 February) are skipped.
func (c Center) LocalHolidaysIn(year int) []ExceptionDate {
	out := make([]ExceptionDate, 0, len(c.LocalHolidays))
	for _, h := range c.LocalHolidays {
		if h.Month < 1 || h.Month > 12 || h.Day < 1 {
			continue
		}
		t := time.Date(year, time.Month(h.Month), h.Day, 0, 0, 0, 0, time.UTC)
		if t.Month() != time.Month(h.Month) {
			continue
		}
		out = append(out, ExceptionDate{Date: shared.DateKey(t), Reason: h.Name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// Summary reports the effective working calendar of a center for a fiscal year.
type Summary struct {
	CenterID              string          `json:"centerId"`
	Year                  int             `json:"year"`
	WorkDays              int             `json:"workDays"`
	ExceptionDays         int             `json:"exceptionDays"`
	VacationDaysTaken     int             `json:"vacationDaysTaken"`
	VacationDaysAvailable int             `json:"vacationDaysAvailable"`
	VacationDaysRemaining int             `json:"vacationDaysRemaining"`
	LocalHolidays         []ExceptionDate `json:"localHolidays"`
}

// Summarize walks every day of year and counts the configured working days that remain open
// once holidays, vacations, closures and local holidays are removed.
func Summarize(center Center, cal *Calendar, year int) Summary {
	cfg := center.ConfigFor(year)
	local := center.LocalHolidaysIn(year)
	localIdx := make(map[string]struct{}, len(local))
	for _, d := range local {
		localIdx[d.Date] = struct{}{}
	}

	summary := Summary{
		CenterID:              center.ID,
		Year:                  year,
		VacationDaysAvailable: cfg.AvailableVacationDays,
		LocalHolidays:         local,
	}
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(year+1, time.January, 1, 0, 0, 0, 0, time.UTC)
	for day := start; day.Before(end); day = day.AddDate(0, 0, 1) {
		if !cfg.Works(shared.ISOWeekday(day)) {
			continue
		}
		key := shared.DateKey(day)
		_, isLocal := localIdx[key]
		switch {
		case cal.IsVacation(key):
			summary.VacationDaysTaken++
			summary.ExceptionDays++
		case isLocal || cal.ClosedFor(center.ID, key):
			summary.ExceptionDays++
		default:
			summary.WorkDays++
		}
	}
	summary.VacationDaysRemaining = summary.VacationDaysAvailable - summary.VacationDaysTaken
	return summary
}
