package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"

	"github.com/artpar/vpsfleet/internal/core/domain"
)

// BuildStatementPDF renders a statement as a single-table PDF.
func BuildStatementPDF(statement *domain.Statement) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Monthly VPS Statement")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Period: %s", statement.Period.String()))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(45, 6, "Server", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Host", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Status", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Usage", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Price/Month", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Total", "1", 0, "C", false, 0, "")
	pdf.CellFormat(20, 6, "NAT", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)

	for _, line := range statement.Lines {
		status := string(line.Status)
		if line.DecommissionDate != "" {
			status = fmt.Sprintf("%s %s", status, line.DecommissionDate)
		}
		natMark := ""
		if line.UsesNATPool {
			natMark = "yes"
		}
		pdf.CellFormat(45, 6, line.ServerName, "1", 0, "L", false, 0, "")
		pdf.CellFormat(35, 6, line.Host, "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 6, status, "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 6, line.UsageLabel, "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, "$"+line.PricePerMonth.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, "$"+line.Total.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(20, 6, natMark, "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	pdf.Ln(4)
	if statement.NATDetail != nil {
		pdf.Cell(0, 6, fmt.Sprintf("NAT pool: %d servers, %d server-days, rate %s",
			statement.NATDetail.PooledServers, statement.NATDetail.TotalDays, statement.NATDetail.Rate.String()))
		pdf.Ln(5)
	}
	pdf.Cell(0, 6, fmt.Sprintf("NAT pool fee: $%s", statement.NATFee.StringFixed(2)))
	pdf.Ln(5)
	pdf.SetFont("Arial", "B", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Grand total: $%s", statement.GrandTotal.StringFixed(2)))
	pdf.Ln(8)

	if len(statement.Skipped) > 0 {
		pdf.SetFont("Arial", "", 9)
		pdf.Cell(0, 6, "Skipped records:")
		pdf.Ln(5)
		for _, skipped := range statement.Skipped {
			pdf.Cell(0, 5, fmt.Sprintf("  %s: %s", skipped.ServerName, skipped.Reason))
			pdf.Ln(4)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
