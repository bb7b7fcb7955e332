package report

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"
)

// Header is the report CSV header.
var Header = []string{
	"store_id",
	"uptime_last_hour",
	"downtime_last_hour",
	"uptime_last_day",
	"downtime_last_day",
	"uptime_last_week",
	"downtime_last_week",
}

// Export formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
	FormatPDF  = "pdf"
)

// ContentType returns the MIME type for a format.
func ContentType(format string) string {
	switch format {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	default:
		return "text/csv"
	}
}

// Meta describes a report for rendered exports.
type Meta struct {
	ReportID    string
	ReferenceAt time.Time
	CompletedAt time.Time
	Stores      int
	Skipped     int
}

// WriteCSV writes the header and rows.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(r.Record()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a report written by WriteCSV.
func ReadCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)

	head, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read report: empty file")
		}
		return nil, fmt.Errorf("read report header: %w", err)
	}
	for i, name := range Header {
		if head[i] != name {
			return nil, fmt.Errorf("read report: unexpected column %q at %d", head[i], i)
		}
	}

	var rows []Row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read report: %w", err)
		}
		vals := make([]float64, len(rec)-1)
		for i := range vals {
			vals[i], err = strconv.ParseFloat(rec[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("read report: store %s column %s: %w", rec[0], Header[i+1], err)
			}
		}
		rows = append(rows, Row{
			StoreID:          rec[0],
			UptimeLastHour:   vals[0],
			DowntimeLastHour: vals[1],
			UptimeLastDay:    vals[2],
			DowntimeLastDay:  vals[3],
			UptimeLastWeek:   vals[4],
			DowntimeLastWeek: vals[5],
		})
	}
	return rows, nil
}

// BuildXLSX renders the report as a workbook with a summary and a rows sheet.
func BuildXLSX(meta Meta, rows []Row) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	summarySheet := "summary"
	rowsSheet := "stores"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(rowsSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(summarySheet, "A1", "Store Uptime Report")
	_ = f.SetCellValue(summarySheet, "A3", "Report ID")
	_ = f.SetCellValue(summarySheet, "B3", meta.ReportID)
	_ = f.SetCellValue(summarySheet, "A4", "Reference (UTC)")
	_ = f.SetCellValue(summarySheet, "B4", meta.ReferenceAt.UTC().Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A5", "Completed (UTC)")
	_ = f.SetCellValue(summarySheet, "B5", meta.CompletedAt.UTC().Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A6", "Stores")
	_ = f.SetCellValue(summarySheet, "B6", meta.Stores)
	_ = f.SetCellValue(summarySheet, "A7", "Skipped")
	_ = f.SetCellValue(summarySheet, "B7", meta.Skipped)

	for i, name := range Header {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		_ = f.SetCellValue(rowsSheet, cell, name)
	}
	for r, row := range rows {
		line := r + 2
		_ = f.SetCellValue(rowsSheet, fmt.Sprintf("A%d", line), row.StoreID)
		for c, v := range row.Values() {
			cell, err := excelize.CoordinatesToCellName(c+2, line)
			if err != nil {
				return nil, err
			}
			_ = f.SetCellFloat(rowsSheet, cell, v, 2, 64)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildPDF renders the report as a landscape table.
func BuildPDF(meta Meta, rows []Row) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Store Uptime Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Report: %s", meta.ReportID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Reference: %s", meta.ReferenceAt.UTC().Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Completed: %s", meta.CompletedAt.UTC().Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Stores: %d (skipped %d)", meta.Stores, meta.Skipped))
	pdf.Ln(8)

	widths := []float64{70, 32, 32, 32, 32, 32, 32}
	labels := []string{"Store", "Up hour (min)", "Down hour (min)", "Up day (h)", "Down day (h)", "Up week (h)", "Down week (h)"}
	pdf.SetFont("Arial", "B", 9)
	for i, l := range labels {
		pdf.CellFormat(widths[i], 6, l, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)

	// Rows flow onto new pages through the default auto page break.
	for _, row := range rows {
		pdf.CellFormat(widths[0], 6, row.StoreID, "1", 0, "L", false, 0, "")
		for i, v := range row.Values() {
			pdf.CellFormat(widths[i+1], 6, formatValue(v), "1", 0, "R", false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
