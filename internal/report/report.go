// Package report renders user progress as spreadsheet exports.
package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/tutor-bot/internal/progress"
	"github.com/p-n-ai/tutor-bot/internal/store"
)

// SheetName is the worksheet holding the progress table.
const SheetName = "Progress"

// MIMEType is the content type of ProgressWorkbook output.
const MIMEType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Header is the first row of the progress sheet.
var Header = []any{"Topic", "Mastery", "Level", "Indicator"}

// percentFormat is excelize's built-in "0.00%" number format.
const percentFormat = 10

// FileName returns the attachment name for a user's export.
func FileName(userID int64) string {
	return fmt.Sprintf("progress-%d.xlsx", userID)
}

// ProgressWorkbook writes one row per topic in study order and returns the
// encoded XLSX file.
func ProgressWorkbook(userID int64, p store.Progress) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return nil, fmt.Errorf("naming sheet: %w", err)
	}
	if err := f.SetDocProps(&excelize.DocProperties{
		Title:   fmt.Sprintf("Learning progress for user %d", userID),
		Creator: "tutor-bot",
	}); err != nil {
		return nil, fmt.Errorf("setting document properties: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("creating header style: %w", err)
	}
	percent, err := f.NewStyle(&excelize.Style{NumFmt: percentFormat})
	if err != nil {
		return nil, fmt.Errorf("creating percent style: %w", err)
	}

	if err := f.SetSheetRow(SheetName, "A1", &Header); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}
	if err := f.SetCellStyle(SheetName, "A1", "D1", bold); err != nil {
		return nil, fmt.Errorf("styling header: %w", err)
	}

	for i, m := range p {
		row := i + 2
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return nil, err
		}
		values := []any{m.Topic, m.Score, progress.DifficultyLevel(m.Score), progress.Indicator(m.Score)}
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return nil, fmt.Errorf("writing row for %s: %w", m.Topic, err)
		}
	}
	if len(p) > 0 {
		last := fmt.Sprintf("B%d", len(p)+1)
		if err := f.SetCellStyle(SheetName, "B2", last, percent); err != nil {
			return nil, fmt.Errorf("styling mastery column: %w", err)
		}
	}

	if err := f.SetColWidth(SheetName, "A", "A", 28); err != nil {
		return nil, fmt.Errorf("sizing columns: %w", err)
	}
	if err := f.SetColWidth(SheetName, "B", "D", 14); err != nil {
		return nil, fmt.Errorf("sizing columns: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encoding workbook: %w", err)
	}
	return buf.Bytes(), nil
}
