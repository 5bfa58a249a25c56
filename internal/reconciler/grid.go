package reconciler

import (
	"fmt"
	"time"

	"github.com/julianstephens/bayslots/internal/constants"
	"github.com/julianstephens/bayslots/internal/utils"
)

const minutesPerDay = 24 * 60

// Policy is the static business configuration for slot generation
type Policy struct {
	ForwardDays     int
	CleanupDays     int
	StartHour       int // first slot starts at StartHour:00
	EndHour         int // last slot starts at EndHour:LastStartMinute
	LastStartMinute int
	IntervalMinutes int
	Location        *time.Location
	Weekdays        utils.WeekdaySet
	RepairGaps      bool
	StorageTimeout  time.Duration
}

// DefaultPolicy returns the stock garage policy: weekdays 07:00-16:00 in 30 minute slots
func DefaultPolicy() Policy {
	loc, err := utils.LoadLocation(constants.DefaultTimezone)
	if err != nil {
		loc = time.UTC
	}
	days, _ := utils.ParseWeekdays(constants.DefaultWeekdays)
	return Policy{
		ForwardDays:     constants.DefaultForwardDays,
		CleanupDays:     constants.DefaultCleanupDays,
		StartHour:       constants.DefaultSlotStartHour,
		EndHour:         constants.DefaultSlotEndHour,
		LastStartMinute: constants.DefaultLastStartMinute,
		IntervalMinutes: constants.DefaultIntervalMinutes,
		Location:        loc,
		Weekdays:        utils.NewWeekdaySet(days),
		RepairGaps:      true,
		StorageTimeout:  constants.DefaultStorageTimeout,
	}
}

// GridSlot is one daily slot as minutes after midnight, End exclusive
type GridSlot struct {
	Start int
	End   int
}

func (g GridSlot) StartTime() string { return utils.ClockString(g.Start) }
func (g GridSlot) EndTime() string   { return utils.ClockString(g.End) }

// BuildGrid lays out the daily slot grid: contiguous, non-overlapping slots of
// IntervalMinutes starting at StartHour:00 with the last start no later than
// EndHour:LastStartMinute. A slot whose end would pass midnight is dropped.
func BuildGrid(p Policy) ([]GridSlot, error) {
	if p.IntervalMinutes <= 0 {
		return nil, fmt.Errorf("slot interval must be positive, got %d", p.IntervalMinutes)
	}
	if p.StartHour < 0 || p.StartHour > 23 {
		return nil, fmt.Errorf("slot start hour must be 0-23, got %d", p.StartHour)
	}
	if p.EndHour < 0 || p.EndHour > 23 {
		return nil, fmt.Errorf("slot end hour must be 0-23, got %d", p.EndHour)
	}
	if p.LastStartMinute < 0 || p.LastStartMinute > 59 {
		return nil, fmt.Errorf("last start minute must be 0-59, got %d", p.LastStartMinute)
	}

	first := p.StartHour * 60
	last := p.EndHour*60 + p.LastStartMinute
	if last < first {
		return nil, fmt.Errorf("last slot start %s is before first slot start %s", utils.ClockString(last), utils.ClockString(first))
	}

	var grid []GridSlot
	for start := first; start <= last; start += p.IntervalMinutes {
		end := start + p.IntervalMinutes
		if end > minutesPerDay-1 {
			// 24:00 is not representable as a TIME of the same date
			break
		}
		grid = append(grid, GridSlot{Start: start, End: end})
	}
	if len(grid) == 0 {
		return nil, fmt.Errorf("slot grid is empty: interval %d does not fit before midnight", p.IntervalMinutes)
	}
	return grid, nil
}

// OnGrid reports whether a stored start/end pair (HH:MM:SS) belongs to the grid
func OnGrid(grid []GridSlot, startTime, endTime string) bool {
	start, err := utils.ParseClockMinutes(startTime)
	if err != nil {
		return false
	}
	end, err := utils.ParseClockMinutes(endTime)
	if err != nil {
		return false
	}
	for _, g := range grid {
		if g.Start == start {
			return g.End == end
		}
	}
	return false
}
