// Package report renders attendance exports.
package report

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"clinic/internal/model"
)

const maxSheetName = 31

var detailColumns = []string{"Date", "Employee", "Schedule", "Shift start", "Shift end", "Check-in", "Check-out", "Status"}

// workbook is a thin sequential writer over an excelize file.
type workbook struct {
	file  *excelize.File
	sheet string
	row   int
}

func newWorkbook() *workbook {
	return &workbook{file: excelize.NewFile()}
}

func (w *workbook) addSheet(name string) error {
	if len(name) > maxSheetName {
		name = name[:maxSheetName]
	}
	if w.sheet == "" {
		if err := w.file.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("rename sheet: %w", err)
		}
	} else if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}
	w.sheet = name
	w.row = 1
	return nil
}

func (w *workbook) header(columns []string) error {
	if err := w.write(toAny(columns)); err != nil {
		return err
	}
	style, err := w.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	start, _ := excelize.CoordinatesToCellName(1, w.row-1)
	end, _ := excelize.CoordinatesToCellName(len(columns), w.row-1)
	return w.file.SetCellStyle(w.sheet, start, end, style)
}

func (w *workbook) write(values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, w.row)
	if err != nil {
		return err
	}
	if err := w.file.SetSheetRow(w.sheet, cell, &values); err != nil {
		return fmt.Errorf("write row %d: %w", w.row, err)
	}
	w.row++
	return nil
}

// WriteMonthlyAttendance writes a workbook with one detail row per record and
// a per-employee status summary.
func WriteMonthlyAttendance(out io.Writer, month time.Time, records []model.Attendance) error {
	w := newWorkbook()
	defer func() { _ = w.file.Close() }()

	if err := w.addSheet("Attendance " + month.Format("2006-01")); err != nil {
		return err
	}
	if err := w.header(detailColumns); err != nil {
		return err
	}
	for i := range records {
		a := &records[i]
		if err := w.write([]any{
			a.Date.UTC().Format(time.DateOnly),
			a.EmployeeID,
			a.ScheduleID,
			clockTime(timePtr(model.EarliestStart(a.TimeSlots))),
			clockTime(timePtr(model.LatestEnd(a.TimeSlots))),
			clockTime(a.CheckInTime),
			clockTime(a.CheckOutTime),
			string(a.Status),
		}); err != nil {
			return err
		}
	}

	if err := w.addSheet("Summary"); err != nil {
		return err
	}
	statuses := model.AttendanceStatuses()
	columns := []string{"Employee"}
	for _, s := range statuses {
		columns = append(columns, string(s))
	}
	if err := w.header(append(columns, "Total")); err != nil {
		return err
	}

	counts := map[string]map[model.AttendanceStatus]int{}
	for _, a := range records {
		if counts[a.EmployeeID] == nil {
			counts[a.EmployeeID] = map[model.AttendanceStatus]int{}
		}
		counts[a.EmployeeID][a.Status]++
	}
	employees := make([]string, 0, len(counts))
	for id := range counts {
		employees = append(employees, id)
	}
	sort.Strings(employees)

	for _, id := range employees {
		row := []any{id}
		total := 0
		for _, s := range statuses {
			row = append(row, counts[id][s])
			total += counts[id][s]
		}
		if err := w.write(append(row, total)); err != nil {
			return err
		}
	}

	return w.file.Write(out)
}

func clockTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format("15:04:05")
}

func timePtr(t time.Time) *time.Time { return &t }

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
