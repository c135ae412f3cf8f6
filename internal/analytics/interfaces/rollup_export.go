package interfaces

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	domainstatistic "hydromet-cloud/internal/analytics/domain/statistic"
)

// RollupExportRow is one rollup row resolved to display names for export.
type RollupExportRow struct {
	Row            domainstatistic.DailyMeasurement
	StationName    string
	PhenomenonName string
	Unit           string
}

// BuildRollupXLSX renders daily rollup rows as a workbook with one summary
// sheet and one row per statistic.
func BuildRollupXLSX(rows []RollupExportRow) ([]byte, error) {
	f := excelize.NewFile()
	sheet := "daily"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{"Day", "Station", "Phenomenon", "Operation", "Value", "Unit"}
	for i, header := range headers {
		cell := fmt.Sprintf("%c1", 'A'+i)
		_ = f.SetCellValue(sheet, cell, header)
	}

	for i, row := range rows {
		line := i + 2
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", line), row.Row.Day.Format("2006-01-02"))
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", line), row.StationName)
		_ = f.SetCellValue(sheet, fmt.Sprintf("C%d", line), row.PhenomenonName)
		_ = f.SetCellValue(sheet, fmt.Sprintf("D%d", line), row.Row.Operation.String())
		_ = f.SetCellValue(sheet, fmt.Sprintf("E%d", line), row.Row.Value)
		_ = f.SetCellValue(sheet, fmt.Sprintf("F%d", line), row.Unit)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildRollupPDF renders daily rollup rows as a minimal tabular PDF.
func BuildRollupPDF(rows []RollupExportRow) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Daily Statistics")
	pdf.Ln(10)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(25, 6, "Day", "1", 0, "C", false, 0, "")
	pdf.CellFormat(45, 6, "Station", "1", 0, "C", false, 0, "")
	pdf.CellFormat(45, 6, "Phenomenon", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Operation", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Value", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 10)
	for _, row := range rows {
		pdf.CellFormat(25, 6, row.Row.Day.Format("2006-01-02"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(45, 6, row.StationName, "1", 0, "L", false, 0, "")
		pdf.CellFormat(45, 6, row.PhenomenonName, "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 6, row.Row.Operation.String(), "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%.2f %s", row.Row.Value, row.Unit), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
