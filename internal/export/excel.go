// Package export renders reconciliation reports to external formats.
package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/terminalledger/commission-recon/internal/application/recon"
)

const (
	summarySheet = "Summary"
	matchedSheet = "Matched"
	failedSheet  = "Failed"
)

// WriteExcel saves the report as a workbook with summary, matched, and
// failed sheets.
func WriteExcel(report *recon.Report, filename string) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := writeSummarySheet(f, report); err != nil {
		return err
	}
	if err := writeMatchedSheet(f, report); err != nil {
		return err
	}
	if err := writeFailedSheet(f, report); err != nil {
		return err
	}

	// Drop the default sheet so Summary opens first
	_ = f.DeleteSheet("Sheet1")

	if err := f.SaveAs(filename); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func writeSummarySheet(f *excelize.File, report *recon.Report) error {
	if _, err := f.NewSheet(summarySheet); err != nil {
		return err
	}

	s := report.Summary
	rows := [][2]interface{}{
		{"Generated", report.GeneratedAt.Format("2006-01-02 15:04:05")},
		{"Dry run", report.DryRun},
		{"Total candidates", s.TotalCandidates},
		{"Matched", s.Matched},
		{"Failed", s.Failed},
		{"Rejected by time filter", s.RejectedByTimeFilter},
		{"No candidate found", s.UnmatchedNoCandidate},
		{"Summed with existing order", s.SummedWithExistingOrder},
		{"Match percentage", s.MatchPercentage},
		{"Total fee amount", s.TotalAmount.StringFixed(2)},
		{"Matched fee amount", s.MatchedAmount.StringFixed(2)},
		{"Failed fee amount", s.FailedAmount.StringFixed(2)},
		{"Time-filtered fee amount", s.RejectedByTimeFilterAmount.StringFixed(2)},
		{"Orders updated", s.OrdersUpdated},
	}
	for i, row := range rows {
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", i+1), row[0])
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", i+1), row[1])
	}
	return nil
}

func writeMatchedSheet(f *excelize.File, report *recon.Report) error {
	if _, err := f.NewSheet(matchedSheet); err != nil {
		return err
	}

	headers := []string{
		"Commission ID", "Order ID", "Order External ID", "Payment Group",
		"Reference Time", "Time Diff (h)", "Fee", "Order Total After",
		"Confidence", "Summed",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(matchedSheet, cell, h)
	}

	for i, m := range report.Details.Matched {
		values := []interface{}{
			m.CommissionID, m.OrderID, m.OrderExternalID, m.PaymentGroupKey,
			string(m.ReferenceTimeKind), m.TimeDiffHours,
			m.FeeAmount.StringFixed(2), m.OrderTotalAfter.StringFixed(2),
			string(m.Confidence), m.WasSummed,
		}
		for j, v := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+2)
			_ = f.SetCellValue(matchedSheet, cell, v)
		}
	}
	return nil
}

func writeFailedSheet(f *excelize.File, report *recon.Report) error {
	if _, err := f.NewSheet(failedSheet); err != nil {
		return err
	}

	headers := []string{
		"Commission ID", "Amount", "Fee", "Organization",
		"Transaction Time", "Reason",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(failedSheet, cell, h)
	}

	for i, fe := range report.Details.Failed {
		txTime := ""
		if fe.TransactionTime != nil {
			txTime = fe.TransactionTime.Format("2006-01-02 15:04:05")
		}
		values := []interface{}{
			fe.CommissionID, fe.Amount.StringFixed(2), fe.FeeAmount.StringFixed(2),
			fe.OrganizationID, txTime, string(fe.Reason),
		}
		for j, v := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+2)
			_ = f.SetCellValue(failedSheet, cell, v)
		}
	}
	return nil
}
