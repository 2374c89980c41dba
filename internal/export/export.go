// Package export renders the reservation ledger as an Excel report.
package export

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"marcador/internal/model"
)

// Ledger is the exporter's view of the reservation store.
type Ledger interface {
	ListRange(ctx context.Context, from, to string) ([]model.Reservation, error)
}

// Exporter writes ledger reports in xlsx format.
type Exporter struct {
	ledger Ledger
	logger *zerolog.Logger
}

func NewExporter(ledger Ledger, logger *zerolog.Logger) *Exporter {
	return &Exporter{ledger: ledger, logger: logger}
}

var reportColumns = []string{
	"Date", "Time", "Customer", "Service", "Duration (min)",
	"Status", "Created", "Remarcations",
}

// WriteReport renders every ledger row in [from, to] to w as a single
// xlsx sheet, returning the number of rows written.
func (e *Exporter) WriteReport(ctx context.Context, w io.Writer, from, to string) (int, error) {
	reservations, err := e.ledger.ListRange(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("load ledger rows: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := "Reservations"
	f.SetSheetName("Sheet1", sheet)

	for i, col := range reportColumns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return 0, err
		}
		if err := f.SetCellValue(sheet, cell, col); err != nil {
			return 0, err
		}
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		startCell, _ := excelize.CoordinatesToCellName(1, 1)
		endCell, _ := excelize.CoordinatesToCellName(len(reportColumns), 1)
		_ = f.SetCellStyle(sheet, startCell, endCell, style)
	}

	for i := range reservations {
		res := &reservations[i]
		values := []interface{}{
			res.Date, res.Time, res.CustomerID, res.ServiceID,
			res.ServiceDurationMinutes, res.Status,
			res.CreatedAt.Format("2006-01-02 15:04"), res.RemarcationCount,
		}
		for j, val := range values {
			cell, err := excelize.CoordinatesToCellName(j+1, i+2)
			if err != nil {
				return 0, err
			}
			if err := f.SetCellValue(sheet, cell, val); err != nil {
				return 0, err
			}
		}
	}

	if err := f.Write(w); err != nil {
		return 0, fmt.Errorf("write report: %w", err)
	}

	e.logger.Info().
		Str("from", from).
		Str("to", to).
		Int("rows", len(reservations)).
		Msg("ledger report written")
	return len(reservations), nil
}

// SaveReport writes the report to a file on disk.
func (e *Exporter) SaveReport(ctx context.Context, path, from, to string) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create report file: %w", err)
	}
	defer f.Close()
	return e.WriteReport(ctx, f, from, to)
}
