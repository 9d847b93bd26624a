package http

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	cashapp "backoffice/internal/cash/application"
)

const dateLayout = "2006-01-02"

// BuildStatementPDF renders a register statement as PDF. The core fonts are
// cp1252, so free text is translated from UTF-8 before it is drawn.
func BuildStatementPDF(stmt cashapp.Statement, currency string) ([]byte, error) {
	reg := stmt.Register
	pdf := gofpdf.New("P", "mm", "A4", "")
	text := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Cash Register Statement")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Register: %d", reg.ID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Business date: %s", reg.BusinessDate.Format(dateLayout)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Status: %s", reg.Status))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Opened: %s", reg.OpenedAt.Format(time.RFC3339)))
	pdf.Ln(5)
	if reg.ClosedAt != nil {
		pdf.Cell(0, 6, fmt.Sprintf("Closed: %s", reg.ClosedAt.Format(time.RFC3339)))
		pdf.Ln(5)
	}

	pdf.Ln(4)
	pdf.Cell(0, 6, text(fmt.Sprintf("Opening balance (%s): %s", currency, reg.OpeningBalance.StringFixed(2))))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Total in: %s", stmt.Totals.In.StringFixed(2)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Total out: %s", stmt.Totals.Out.StringFixed(2)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Ledger balance: %s", stmt.Balance.StringFixed(2)))
	pdf.Ln(5)
	if reg.ClosingBalance.Valid {
		pdf.Cell(0, 6, fmt.Sprintf("Closing balance: %s", reg.ClosingBalance.Decimal.StringFixed(2)))
		pdf.Ln(5)
	}
	pdf.Ln(3)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(15, 6, "#", "1", 0, "C", false, 0, "")
	pdf.CellFormat(28, 6, "Date", "1", 0, "C", false, 0, "")
	pdf.CellFormat(15, 6, "Dir", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Amount", "1", 0, "C", false, 0, "")
	pdf.CellFormat(100, 6, "Description", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, tx := range stmt.Transactions {
		pdf.CellFormat(15, 6, fmt.Sprintf("%d", tx.ID), "1", 0, "R", false, 0, "")
		pdf.CellFormat(28, 6, tx.OpDate.Format(dateLayout), "1", 0, "C", false, 0, "")
		pdf.CellFormat(15, 6, string(tx.Direction), "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, tx.Amount.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(100, 6, text(tx.Description), "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildStatementXLSX renders a register statement as XLSX.
func BuildStatementXLSX(stmt cashapp.Statement, currency string) ([]byte, error) {
	reg := stmt.Register
	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "summary"
	itemsSheet := "transactions"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(itemsSheet); err != nil {
		return nil, err
	}

	closing := ""
	if reg.ClosingBalance.Valid {
		closing = reg.ClosingBalance.Decimal.StringFixed(2)
	}
	summary := [][2]any{
		{"Register", reg.ID},
		{"Business date", reg.BusinessDate.Format(dateLayout)},
		{"Status", string(reg.Status)},
		{"Currency", currency},
		{"Opening balance", reg.OpeningBalance.InexactFloat64()},
		{"Total in", stmt.Totals.In.InexactFloat64()},
		{"Total out", stmt.Totals.Out.InexactFloat64()},
		{"Ledger balance", stmt.Balance.InexactFloat64()},
		{"Closing balance", closing},
	}
	_ = f.SetCellValue(summarySheet, "A1", "Cash Register Statement")
	for i, row := range summary {
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", i+3), row[0])
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", i+3), row[1])
	}

	headers := []string{"ID", "Date", "Direction", "Amount", "Description", "Actor"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(itemsSheet, cell, header)
	}
	for i, tx := range stmt.Transactions {
		row := i + 2
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("A%d", row), tx.ID)
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("B%d", row), tx.OpDate.Format(dateLayout))
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("C%d", row), string(tx.Direction))
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("D%d", row), tx.Amount.InexactFloat64())
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("E%d", row), tx.Description)
		_ = f.SetCellValue(itemsSheet, fmt.Sprintf("F%d", row), tx.ActorID)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
