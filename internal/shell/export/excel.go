// Package export renders monthly statements to spreadsheet and PDF form.
package export

import (
	"bytes"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/artpar/vpsfleet/internal/core/domain"
)

// natBatchSize is how many NAT-pooled rows share one visual batch before a
// subtotal row is inserted. Presentation only, the fee math never batches.
const natBatchSize = 10

// Row fill colors, matching the statement color legend: blue for NAT-pooled
// servers, red for rows decommissioned in the billed month, purple for
// records excluded over date problems.
const (
	fillBlue   = "DDEBF7"
	fillRed    = "FFC7CE"
	fillPurple = "E4DFEC"
	fillGray   = "F2F2F2"
)

const moneyFormat = `$#,##0.00`

// BuildStatementXLSX renders a statement workbook: one colored row per billed
// server, NAT-pooled rows grouped in batches of ten with subtotals, followed
// by the NAT surcharge and a summary block.
func BuildStatementXLSX(statement *domain.Statement) ([]byte, error) {
	f := excelize.NewFile()
	sheet := "statement"
	f.SetSheetName("Sheet1", sheet)

	styles, err := newSheetStyles(f)
	if err != nil {
		return nil, fmt.Errorf("failed to create styles: %w", err)
	}

	headers := []string{"Server", "Host", "Country", "Status", "Decommissioned", "Usage", "Price/Month", "Total", "NAT Pool"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	_ = f.SetCellStyle(sheet, "A1", "I1", styles.header)

	row := 2
	pooledInBatch := 0
	batch := 1
	batchSubtotal := decimal.Zero

	for _, line := range statement.Lines {
		writeLine(f, sheet, row, &line)

		style := styles.plain
		if line.UsesNATPool {
			style = styles.pooled
		}
		if line.Status == domain.StatusDecommissioned {
			style = styles.decommissioned
		}
		applyRowStyle(f, sheet, row, style, styles)

		row++

		if line.UsesNATPool {
			pooledInBatch++
			batchSubtotal = batchSubtotal.Add(line.Total)
			if pooledInBatch == natBatchSize {
				writeBatchSubtotal(f, sheet, row, batch, batchSubtotal.InexactFloat64(), styles)
				row++
				batch++
				pooledInBatch = 0
				batchSubtotal = decimal.Zero
			}
		}
	}
	// Close out a trailing partial batch, but only if batching ever started.
	if pooledInBatch > 0 && batch > 1 {
		writeBatchSubtotal(f, sheet, row, batch, batchSubtotal.InexactFloat64(), styles)
		row++
	}

	for _, skipped := range statement.Skipped {
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), skipped.ServerName)
		_ = f.SetCellValue(sheet, fmt.Sprintf("F%d", row), "date error")
		_ = f.SetCellValue(sheet, fmt.Sprintf("I%d", row), skipped.Reason)
		_ = f.SetCellStyle(sheet, fmt.Sprintf("A%d", row), fmt.Sprintf("I%d", row), styles.skipped)
		row++
	}

	row++
	_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), "NAT pool fee")
	if statement.NATDetail != nil {
		_ = f.SetCellValue(sheet, fmt.Sprintf("F%d", row),
			fmt.Sprintf("%d servers, %d days @ rate %s", statement.NATDetail.PooledServers,
				statement.NATDetail.TotalDays, statement.NATDetail.Rate.String()))
	}
	_ = f.SetCellValue(sheet, fmt.Sprintf("H%d", row), statement.NATFee.InexactFloat64())
	_ = f.SetCellStyle(sheet, fmt.Sprintf("H%d", row), fmt.Sprintf("H%d", row), styles.money)
	row += 2

	writeSummary(f, sheet, row, statement, styles)

	_ = f.SetColWidth(sheet, "A", "A", 24)
	_ = f.SetColWidth(sheet, "B", "B", 18)
	_ = f.SetColWidth(sheet, "D", "F", 16)
	_ = f.SetColWidth(sheet, "G", "H", 14)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeLine(f *excelize.File, sheet string, row int, line *domain.LineItem) {
	natMark := ""
	if line.UsesNATPool {
		natMark = "yes"
	}
	_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), line.ServerName)
	_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", row), line.Host)
	_ = f.SetCellValue(sheet, fmt.Sprintf("C%d", row), line.Country)
	_ = f.SetCellValue(sheet, fmt.Sprintf("D%d", row), string(line.Status))
	_ = f.SetCellValue(sheet, fmt.Sprintf("E%d", row), line.DecommissionDate)
	_ = f.SetCellValue(sheet, fmt.Sprintf("F%d", row), line.UsageLabel)
	_ = f.SetCellValue(sheet, fmt.Sprintf("G%d", row), line.PricePerMonth.InexactFloat64())
	_ = f.SetCellValue(sheet, fmt.Sprintf("H%d", row), line.Total.InexactFloat64())
	_ = f.SetCellValue(sheet, fmt.Sprintf("I%d", row), natMark)
}

func writeBatchSubtotal(f *excelize.File, sheet string, row, batch int, subtotal float64, styles *sheetStyles) {
	_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), fmt.Sprintf("NAT batch %d subtotal", batch))
	_ = f.SetCellValue(sheet, fmt.Sprintf("H%d", row), subtotal)
	_ = f.SetCellStyle(sheet, fmt.Sprintf("A%d", row), fmt.Sprintf("I%d", row), styles.subtotal)
	_ = f.SetCellStyle(sheet, fmt.Sprintf("H%d", row), fmt.Sprintf("H%d", row), styles.subtotalMoney)
}

func writeSummary(f *excelize.File, sheet string, row int, statement *domain.Statement, styles *sheetStyles) {
	active, decommissioned, pooled := 0, 0, 0
	for _, line := range statement.Lines {
		if line.Status == domain.StatusDecommissioned {
			decommissioned++
		} else {
			active++
		}
		if line.UsesNATPool {
			pooled++
		}
	}

	entries := []struct {
		label string
		value any
		money bool
	}{
		{"Period", statement.Period.String(), false},
		{"Billed servers", len(statement.Lines), false},
		{"Active", active, false},
		{"Decommissioned this month", decommissioned, false},
		{"NAT pooled", pooled, false},
		{"Skipped (date errors)", len(statement.Skipped), false},
		{"Server subtotal", statement.LineTotal().InexactFloat64(), true},
		{"NAT pool fee", statement.NATFee.InexactFloat64(), true},
		{"Grand total", statement.GrandTotal.InexactFloat64(), true},
	}
	for i, e := range entries {
		r := row + i
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", r), e.label)
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", r), e.value)
		if e.money {
			_ = f.SetCellStyle(sheet, fmt.Sprintf("B%d", r), fmt.Sprintf("B%d", r), styles.money)
		}
	}
}

// =============================================================================
// Styles
// =============================================================================

type sheetStyles struct {
	header         int
	plain          int
	pooled         int
	decommissioned int
	skipped        int
	subtotal       int
	subtotalMoney  int
	money          int
	pooledMoney    int
	decommMoney    int
	plainMoney     int
}

func newSheetStyles(f *excelize.File) (*sheetStyles, error) {
	s := &sheetStyles{}
	var err error

	if s.header, err = f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{fillGray}, Pattern: 1},
	}); err != nil {
		return nil, err
	}
	if s.plain, err = f.NewStyle(&excelize.Style{}); err != nil {
		return nil, err
	}
	if s.pooled, err = f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{fillBlue}, Pattern: 1},
	}); err != nil {
		return nil, err
	}
	if s.decommissioned, err = f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{fillRed}, Pattern: 1},
	}); err != nil {
		return nil, err
	}
	if s.skipped, err = f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{fillPurple}, Pattern: 1},
	}); err != nil {
		return nil, err
	}
	if s.subtotal, err = f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Italic: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{fillGray}, Pattern: 1},
	}); err != nil {
		return nil, err
	}
	if s.subtotalMoney, err = f.NewStyle(&excelize.Style{
		Font:         &excelize.Font{Italic: true},
		Fill:         excelize.Fill{Type: "pattern", Color: []string{fillGray}, Pattern: 1},
		CustomNumFmt: ptr(moneyFormat),
	}); err != nil {
		return nil, err
	}
	if s.money, err = f.NewStyle(&excelize.Style{CustomNumFmt: ptr(moneyFormat)}); err != nil {
		return nil, err
	}
	if s.pooledMoney, err = f.NewStyle(&excelize.Style{
		Fill:         excelize.Fill{Type: "pattern", Color: []string{fillBlue}, Pattern: 1},
		CustomNumFmt: ptr(moneyFormat),
	}); err != nil {
		return nil, err
	}
	if s.decommMoney, err = f.NewStyle(&excelize.Style{
		Fill:         excelize.Fill{Type: "pattern", Color: []string{fillRed}, Pattern: 1},
		CustomNumFmt: ptr(moneyFormat),
	}); err != nil {
		return nil, err
	}
	if s.plainMoney, err = f.NewStyle(&excelize.Style{CustomNumFmt: ptr(moneyFormat)}); err != nil {
		return nil, err
	}
	return s, nil
}

// applyRowStyle fills the row and reapplies the money format on the price
// columns, which a plain fill style would otherwise clobber.
func applyRowStyle(f *excelize.File, sheet string, row, style int, styles *sheetStyles) {
	_ = f.SetCellStyle(sheet, fmt.Sprintf("A%d", row), fmt.Sprintf("I%d", row), style)
	moneyStyle := styles.plainMoney
	switch style {
	case styles.pooled:
		moneyStyle = styles.pooledMoney
	case styles.decommissioned:
		moneyStyle = styles.decommMoney
	}
	_ = f.SetCellStyle(sheet, fmt.Sprintf("G%d", row), fmt.Sprintf("H%d", row), moneyStyle)
}

func ptr(s string) *string { return &s }
