// Package export renders profit reports as CSV and Excel downloads.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"

	"magiainterna/backend/internal/domain"
)

var profitHeaders = []string{"periodo", "etiqueta", "ventas", "ventas_brutas", "ingresos", "costo", "ganancia"}

func profitRows(report domain.ProfitReport) [][]int64 {
	rows := make([][]int64, 0, len(report.Buckets)+1)
	for _, b := range report.Buckets {
		rows = append(rows, []int64{int64(b.Sales), b.GrossSales, b.Revenue, b.Cost, b.Profit})
	}
	return rows
}

// ProfitCSV writes one row per bucket followed by a totals row.
func ProfitCSV(report domain.ProfitReport) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(profitHeaders); err != nil {
		return nil, err
	}
	for i, values := range profitRows(report) {
		b := report.Buckets[i]
		if err := w.Write(append([]string{b.Key, b.Label}, formatInts(values)...)); err != nil {
			return nil, err
		}
	}
	t := report.Totals
	if err := w.Write(append([]string{"total", "Total"}, formatInts([]int64{int64(t.Sales), t.GrossSales, t.Revenue, t.Cost, t.Profit})...)); err != nil {
		return nil, err
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ProfitXLSX builds a single-sheet workbook with a styled header and a bold
// totals row.
func ProfitXLSX(report domain.ProfitReport) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := "Ganancias"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#F3E5F5"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return nil, err
	}
	moneyStyle, err := f.NewStyle(&excelize.Style{NumFmt: 3})
	if err != nil {
		return nil, err
	}
	totalStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}, NumFmt: 3})
	if err != nil {
		return nil, err
	}

	for i, h := range profitHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return nil, err
		}
	}
	if err := f.SetCellStyle(sheet, "A1", "G1", headerStyle); err != nil {
		return nil, err
	}

	for i, values := range profitRows(report) {
		row := i + 2
		b := report.Buckets[i]
		if err := writeRow(f, sheet, row, b.Key, b.Label, values); err != nil {
			return nil, err
		}
		if err := f.SetCellStyle(sheet, fmt.Sprintf("D%d", row), fmt.Sprintf("G%d", row), moneyStyle); err != nil {
			return nil, err
		}
	}

	totalRow := len(report.Buckets) + 2
	t := report.Totals
	if err := writeRow(f, sheet, totalRow, "total", "Total", []int64{int64(t.Sales), t.GrossSales, t.Revenue, t.Cost, t.Profit}); err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(sheet, fmt.Sprintf("A%d", totalRow), fmt.Sprintf("G%d", totalRow), totalStyle); err != nil {
		return nil, err
	}

	colWidths := []float64{12, 12, 8, 16, 16, 16, 16}
	for i, w := range colWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(sheet, col, col, w); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, row int, key string, label string, values []int64) error {
	if err := f.SetCellValue(sheet, fmt.Sprintf("A%d", row), key); err != nil {
		return err
	}
	if err := f.SetCellValue(sheet, fmt.Sprintf("B%d", row), label); err != nil {
		return err
	}
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+3, row)
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return err
		}
	}
	return nil
}

func formatInts(values []int64) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strconv.FormatInt(v, 10)
	}
	return out
}
