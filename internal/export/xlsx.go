package export

import (
	"fmt"
	"io"
	"time"

	"taskcal/internal/models"

	"github.com/xuri/excelize/v2"
)

const DefaultSheetName = "Tasks"

const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var headers = []string{"ID", "Title", "Description", "Status", "Start", "End", "Calendar Event", "Created", "Updated"}

// statusFills colours the status cell.
var statusFills = map[models.TaskStatus]string{
	models.StatusPending:    "#FFEB9C",
	models.StatusInProgress: "#DDEBF7",
	models.StatusCompleted:  "#E2EFDA",
	models.StatusCancelled:  "#FFC7CE",
}

// WriteTasksXLSX renders tasks as a single-sheet workbook into w.
func WriteTasksXLSX(w io.Writer, sheetName string, tasks []*models.Task) error {
	if sheetName == "" {
		sheetName = DefaultSheetName
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, h)
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(headers), 1)
	_ = f.SetCellStyle(sheetName, "A1", lastHeader, headerStyle)

	statusStyles := make(map[models.TaskStatus]int, len(statusFills))
	for status, color := range statusFills {
		style, err := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
		})
		if err != nil {
			return fmt.Errorf("status style: %w", err)
		}
		statusStyles[status] = style
	}

	for i, task := range tasks {
		row := i + 2
		values := []any{
			task.ID,
			task.Title,
			deref(task.Description),
			string(task.Status),
			formatTime(task.StartTime),
			formatTime(task.EndTime),
			task.EventID(),
			task.CreatedAt.UTC().Format(time.RFC3339),
			task.UpdatedAt.UTC().Format(time.RFC3339),
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", row, err)
		}
		if style, ok := statusStyles[task.Status]; ok {
			statusCell, _ := excelize.CoordinatesToCellName(4, row)
			_ = f.SetCellStyle(sheetName, statusCell, statusCell, style)
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 38)
	_ = f.SetColWidth(sheetName, "B", "C", 40)
	_ = f.SetColWidth(sheetName, "D", "I", 22)
	_ = f.SetPanes(sheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
