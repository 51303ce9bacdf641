package stats

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gymops/gymops/internal/attendance"
	"github.com/gymops/gymops/internal/programs"
	"github.com/gymops/gymops/internal/schedule"
	"github.com/gymops/gymops/internal/shared"
)

type classKey struct {
	date, time, program, center string
}

// AvgAttendeesPerClass divides the attendances by the number of distinct
// (date, time, program, center) classes they fall into.
func AvgAttendeesPerClass(results []attendance.Result) float64 {
	if len(results) == 0 {
		return 0
	}
	classes := make(map[classKey]struct{}, len(results))
	for _, r := range results {
		classes[classKey{r.Record.Date, r.Time, r.CanonicalProgram, r.Center}] = struct{}{}
	}
	return round1(float64(len(results)) / float64(len(classes)))
}

// YearlyTrend compares the monthly attendance average of the two most recent years with data.
// The current year divides by the elapsed fraction of the year in months; past years divide by
// the number of months with at least one class.
func YearlyTrend(results []attendance.Result, now time.Time) Trend {
	counts := make(map[int]int)
	months := make(map[int]map[time.Month]struct{})
	for _, r := range results {
		day, err := shared.ParseDate(r.Record.Date)
		if err != nil {
			continue
		}
		y := day.Year()
		counts[y]++
		if months[y] == nil {
			months[y] = make(map[time.Month]struct{})
		}
		months[y][day.Month()] = struct{}{}
	}
	if len(counts) < 2 {
		return TrendStable
	}
	years := make([]int, 0, len(counts))
	for y := range counts {
		years = append(years, y)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(years)))

	average := func(year int) float64 {
		elapsed := float64(len(months[year]))
		if year == now.Year() {
			elapsed = monthsElapsed(now)
		}
		if elapsed <= 0 {
			return 0
		}
		return float64(counts[year]) / elapsed
	}
	diff := average(years[0]) - average(years[1])
	switch {
	case diff > 0.5:
		return TrendUp
	case diff < -0.5:
		return TrendDown
	default:
		return TrendStable
	}
}

// monthsElapsed is the number of completed months of now's year plus the completed fraction of
// the current month.
func monthsElapsed(now time.Time) float64 {
	daysInMonth := time.Date(now.Year(), now.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
	return float64(now.Month()-1) + float64(now.Day())/float64(daysInMonth)
}

// MonthlyGrowth is the percent change in attendances between the current and previous calendar
// month, 0 when the previous month had none.
func MonthlyGrowth(results []attendance.Result, now time.Time) float64 {
	current := shared.MonthKey(now)
	previous := shared.MonthKey(time.Date(now.Year(), now.Month()-1, 1, 0, 0, 0, 0, time.UTC))
	cur, prev := 0, 0
	for _, r := range results {
		day, err := shared.ParseDate(r.Record.Date)
		if err != nil {
			continue
		}
		switch shared.MonthKey(day) {
		case current:
			cur++
		case previous:
			prev++
		}
	}
	if prev == 0 {
		return 0
	}
	return round1(float64(cur-prev) / float64(prev) * 100)
}

// SlotOf buckets a time label by its start hour; ok is false when the label has no hour.
func SlotOf(label string) (Slot, bool) {
	hourLabel, _, _ := strings.Cut(schedule.StartTime(label), ":")
	hour, err := strconv.Atoi(hourLabel)
	if err != nil || hour < 0 || hour > 23 {
		return SlotNone, false
	}
	switch {
	case hour < 12:
		return SlotMorning, true
	case hour < 18:
		return SlotAfternoon, true
	default:
		return SlotEvening, true
	}
}

// PreferredTimeSlot returns the busiest part of the day; ties go to the earlier slot.
func PreferredTimeSlot(results []attendance.Result) Slot {
	counts := make(map[Slot]int, 3)
	for _, r := range results {
		if slot, ok := SlotOf(r.Time); ok {
			counts[slot]++
		}
	}
	best, bestCount := SlotNone, 0
	for _, slot := range []Slot{SlotMorning, SlotAfternoon, SlotEvening} {
		if counts[slot] > bestCount {
			best, bestCount = slot, counts[slot]
		}
	}
	return best
}

// InCalendarRate is the percentage of attendances matched to a resolved session.
func InCalendarRate(results []attendance.Result) float64 {
	matched := 0
	for _, r := range results {
		if r.InCalendar {
			matched++
		}
	}
	return percent(matched, len(results))
}

// UnknownPrograms lists the canonical labels outside the program catalogue, sorted.
func UnknownPrograms(results []attendance.Result) []string {
	seen := make(map[string]struct{})
	for _, r := range results {
		if _, known := programs.Classify(r.CanonicalProgram); !known {
			seen[r.CanonicalProgram] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for label := range seen {
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}

func breakdowns(results []attendance.Result) (byYear, byMonth, byProgram, byCenter map[string]int) {
	byYear = make(map[string]int)
	byMonth = make(map[string]int)
	byProgram = make(map[string]int)
	byCenter = make(map[string]int)
	for _, r := range results {
		byProgram[r.CanonicalProgram]++
		if r.Center != "" {
			byCenter[r.Center]++
		}
		day, err := shared.ParseDate(r.Record.Date)
		if err != nil {
			continue
		}
		byYear[strconv.Itoa(day.Year())]++
		byMonth[shared.MonthKey(day)]++
	}
	return byYear, byMonth, byProgram, byCenter
}
