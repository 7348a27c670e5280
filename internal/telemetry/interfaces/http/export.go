package http

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	telemetry "plantform-cloud/internal/telemetry/domain"
)

// BuildHistoryXLSX renders a device's telemetry history as a workbook.
func BuildHistoryXLSX(deviceID string, records []telemetry.TelemetryRecord) ([]byte, error) {
	f := excelize.NewFile()
	sheet := "history"
	f.SetSheetName("Sheet1", sheet)

	_ = f.SetCellValue(sheet, "A1", "Device")
	_ = f.SetCellValue(sheet, "B1", deviceID)

	_ = f.SetCellValue(sheet, "A3", "Received At")
	_ = f.SetCellValue(sheet, "B3", "Temperature")
	_ = f.SetCellValue(sheet, "C3", "Humidity")
	_ = f.SetCellValue(sheet, "D3", "Chlorophyll")

	for i, record := range records {
		row := i + 4
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), record.ReceivedAt.Format(time.RFC3339))
		if record.Temperature != nil {
			_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", row), *record.Temperature)
		}
		if record.Humidity != nil {
			_ = f.SetCellValue(sheet, fmt.Sprintf("C%d", row), *record.Humidity)
		}
		if record.Chlorophyll != nil {
			_ = f.SetCellValue(sheet, fmt.Sprintf("D%d", row), *record.Chlorophyll)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildHistoryPDF renders a device's telemetry history as a table.
func BuildHistoryPDF(deviceID string, records []telemetry.TelemetryRecord) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Telemetry History")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Device: %s", deviceID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", time.Now().UTC().Format(time.RFC3339)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(55, 6, "Received At", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Temperature", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Humidity", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Chlorophyll", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, record := range records {
		pdf.CellFormat(55, 6, record.ReceivedAt.Format(time.RFC3339), "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 6, formatOptional(record.Temperature), "1", 0, "R", false, 0, "")
		pdf.CellFormat(40, 6, formatOptional(record.Humidity), "1", 0, "R", false, 0, "")
		pdf.CellFormat(40, 6, formatOptional(record.Chlorophyll), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatOptional(value *float64) string {
	if value == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *value)
}
