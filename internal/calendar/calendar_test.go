package calendar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleExceptions() Exceptions {
	return Exceptions{
		Year:      2024,
		Holidays:  []ExceptionDate{{Date: "2024-01-01", Reason: "New year"}},
		Vacations: []ExceptionDate{{Date: "2024-08-12", Reason: "Summer"}, {Date: "2024-08-13", Reason: "Summer"}},
		Closures: map[string][]ExceptionDate{
			"B": {{Date: "2024-03-04", Reason: "Maintenance"}},
			"A": {{Date: "2024-03-04", Reason: "Flooding"}},
		},
	}
}

func TestCalendarLookupPrecedence(t *testing.T) {
	cal := NewCalendar(sampleExceptions())

	hit, ok := cal.Lookup("2024-01-01")
	require.True(t, ok)
	assert.Equal(t, KindHoliday, hit.Kind)

	hit, ok = cal.Lookup("2024-08-12")
	require.True(t, ok)
	assert.Equal(t, KindVacation, hit.Kind)

	hit, ok = cal.Lookup("2024-03-04")
	require.True(t, ok)
	assert.Equal(t, KindClosure, hit.Kind)
	assert.Equal(t, "A", hit.CenterID, "closures are checked in center id order")

	_, ok = cal.Lookup("2024-03-05")
	assert.False(t, ok)
}

func TestCalendarClosedFor(t *testing.T) {
	cal := NewCalendar(Exceptions{Closures: map[string][]ExceptionDate{"A": {{Date: "2024-05-06"}}}})
	assert.True(t, cal.ClosedFor("A", "2024-05-06"))
	assert.False(t, cal.ClosedFor("B", "2024-05-06"))
	assert.True(t, cal.IsException("2024-05-06"))
}

func TestNilCalendar(t *testing.T) {
	var cal *Calendar
	assert.False(t, cal.IsException("2024-01-01"))
	assert.False(t, cal.ClosedFor("A", "2024-01-01"))
}

func TestParseKind(t *testing.T) {
	kind, err := ParseKind(" Holiday ")
	require.NoError(t, err)
	assert.Equal(t, KindHoliday, kind)
	_, err = ParseKind("strike")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestConfigForFallsBackToDefault(t *testing.T) {
	center := Center{
		ID:      "A",
		Configs: map[int]Config{2024: {WorkDays: []int{1, 2, 3}, AvailableVacationDays: 10}},
		Default: Config{WorkDays: []int{1, 2, 3, 4, 5}, AvailableVacationDays: 22},
	}
	assert.Equal(t, 10, center.ConfigFor(2024).AvailableVacationDays)
	assert.Equal(t, 22, center.ConfigFor(2025).AvailableVacationDays)

	snapshot := center.ConfigFor(2024)
	snapshot.WorkDays[0] = 7
	assert.Equal(t, 1, center.Configs[2024].WorkDays[0], "returned configs are snapshots")
}

func TestLocalHolidaysInSkipsMissingDays(t *testing.T) {
	center := Center{LocalHolidays: []LocalHoliday{{Month: 2, Day: 29, Name: "Leap"}, {Month: 9, Day: 11, Name: "Diada"}}}
	assert.Len(t, center.LocalHolidaysIn(2024), 2)
	days := center.LocalHolidaysIn(2025)
	require.Len(t, days, 1)
	assert.Equal(t, "2025-09-11", days[0].Date)
}

func TestSummarize(t *testing.T) {
	// January 2024: Monday 1st is a holiday; center works Mondays only.
	center := Center{
		ID:            "A",
		Default:       Config{WorkDays: []int{1}, AvailableVacationDays: 3},
		LocalHolidays: []LocalHoliday{{Month: 1, Day: 8, Name: "Local"}},
	}
	cal := NewCalendar(Exceptions{
		Holidays:  []ExceptionDate{{Date: "2024-01-01"}},
		Vacations: []ExceptionDate{{Date: "2024-08-12"}, {Date: "2024-08-14"}},
		Closures:  map[string][]ExceptionDate{"A": {{Date: "2024-01-15"}}, "B": {{Date: "2024-01-22"}}},
	})
	summary := Summarize(center, cal, 2024)

	// 2024 has 53 Mondays; removed: 01-01 holiday, 01-08 local, 01-15 closure, 08-12 vacation.
	assert.Equal(t, 49, summary.WorkDays)
	assert.Equal(t, 4, summary.ExceptionDays)
	assert.Equal(t, 1, summary.VacationDaysTaken, "vacations on non-working days are not counted")
	assert.Equal(t, 2, summary.VacationDaysRemaining)
}
