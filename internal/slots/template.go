package slots

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"clinic/internal/model"
)

// Template describes a working day to be cut into equal slots.
type Template struct {
	StartTime    string `json:"startTime"`            // "08:00"
	EndTime      string `json:"endTime"`              // "16:00"
	BreakStart   string `json:"breakStart,omitempty"` // "12:00" (optional)
	BreakEnd     string `json:"breakEnd,omitempty"`   // "13:00" (optional)
	SlotDuration int    `json:"slotMinutes"`          // minutes
}

// Generate cuts the template into Available slots on date. Slots that would
// cross the break are skipped; a trailing remainder shorter than one slot is dropped.
func (t Template) Generate(date time.Time) ([]model.TimeSlot, error) {
	if t.SlotDuration <= 0 {
		return nil, fmt.Errorf("slotMinutes must be positive")
	}

	startTime, err := parseTimeOnDate(date, t.StartTime)
	if err != nil {
		return nil, fmt.Errorf("parse start time: %w", err)
	}
	endTime, err := parseTimeOnDate(date, t.EndTime)
	if err != nil {
		return nil, fmt.Errorf("parse end time: %w", err)
	}
	if !startTime.Before(endTime) {
		return nil, fmt.Errorf("start time must be before end time")
	}

	var breakStart, breakEnd time.Time
	hasBreak := t.BreakStart != "" && t.BreakEnd != ""
	if hasBreak {
		if breakStart, err = parseTimeOnDate(date, t.BreakStart); err != nil {
			return nil, fmt.Errorf("parse break start: %w", err)
		}
		if breakEnd, err = parseTimeOnDate(date, t.BreakEnd); err != nil {
			return nil, fmt.Errorf("parse break end: %w", err)
		}
	}

	step := time.Duration(t.SlotDuration) * time.Minute
	var out []model.TimeSlot
	for cursor := startTime; !cursor.Add(step).After(endTime); cursor = cursor.Add(step) {
		slotEnd := cursor.Add(step)
		if hasBreak && isOverlapping(cursor, slotEnd, breakStart, breakEnd) {
			continue
		}
		out = append(out, model.TimeSlot{StartTime: cursor, EndTime: slotEnd, Status: model.SlotAvailable})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("template produces no slots")
	}
	return out, nil
}

func isOverlapping(start1, end1, start2, end2 time.Time) bool {
	return start1.Before(end2) && end1.After(start2)
}

func parseTimeOnDate(date time.Time, timeStr string) (time.Time, error) {
	parts := strings.Split(timeStr, ":")
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("invalid time format: %s", timeStr)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return time.Time{}, fmt.Errorf("invalid hour: %s", parts[0])
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("invalid minute: %s", parts[1])
	}

	d := date.UTC()
	return time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, time.UTC), nil
}
