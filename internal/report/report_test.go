package report_test

import (
	"bytes"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/tutor-bot/internal/report"
	"github.com/p-n-ai/tutor-bot/internal/store"
)

func openWorkbook(t *testing.T, data []byte) *excelize.File {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func TestProgressWorkbook(t *testing.T) {
	p := store.Progress{
		{Topic: "Python", Score: 2.0 / 3.0},
		{Topic: "Go", Score: 1},
		{Topic: "Rust", Score: 0},
	}
	data, err := report.ProgressWorkbook(42, p)
	if err != nil {
		t.Fatalf("ProgressWorkbook() error = %v", err)
	}
	f := openWorkbook(t, data)

	if sheets := f.GetSheetList(); len(sheets) != 1 || sheets[0] != report.SheetName {
		t.Fatalf("sheets = %v, want [%s]", sheets, report.SheetName)
	}

	rows, err := f.GetRows(report.SheetName, excelize.Options{RawCellValue: true})
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want header + 3", len(rows))
	}

	want := [][]string{
		{"Topic", "Mastery", "Level", "Indicator"},
		{"Python", "", "intermediate", "🟡"},
		{"Go", "1", "advanced", "🟢"},
		{"Rust", "0", "beginner", "🔴"},
	}
	for i, row := range want {
		for j, cell := range row {
			if j == 1 && i == 1 {
				continue
			}
			if rows[i][j] != cell {
				t.Errorf("row %d col %d = %q, want %q", i, j, rows[i][j], cell)
			}
		}
	}

	formatted, err := f.GetCellValue(report.SheetName, "B2")
	if err != nil {
		t.Fatalf("GetCellValue() error = %v", err)
	}
	if formatted != "66.67%" {
		t.Errorf("B2 formatted = %q, want 66.67%%", formatted)
	}
}

func TestProgressWorkbook_Empty(t *testing.T) {
	data, err := report.ProgressWorkbook(1, nil)
	if err != nil {
		t.Fatalf("ProgressWorkbook() error = %v", err)
	}
	rows, err := openWorkbook(t, data).GetRows(report.SheetName)
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("rows = %d, want header only", len(rows))
	}
}

func TestFileName(t *testing.T) {
	if got := report.FileName(42); got != "progress-42.xlsx" {
		t.Errorf("FileName() = %q", got)
	}
}
