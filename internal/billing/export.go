package billing

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// BuildAggregationWorkbook renders aggregation rows into an xlsx workbook.
// Renderers live outside the engine; this writer only guarantees the stable
// row shape of the aggregation result.
func BuildAggregationWorkbook(res AggregationResult) (*excelize.File, error) {
	f := excelize.NewFile()
	sheet := "Billing"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("could not name sheet: %w", err)
	}

	header := []any{"Group", "Name", "Resource", "Worked Hours", "Billable Hours", "Non-Billable Hours", "Cost", "Locked"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("could not write header: %w", err)
	}

	rowNum := 2
	writeRow := func(vals []any) error {
		cell, err := excelize.CoordinatesToCellName(1, rowNum)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &vals); err != nil {
			return err
		}
		rowNum++
		return nil
	}

	for _, pr := range res.Projects {
		if err := writeRow([]any{"project", pr.ProjectName, "", pr.WorkedHours, pr.BillableHours, pr.NonBillableHours, pr.Cost, pr.Locked}); err != nil {
			return nil, err
		}
		for _, r := range pr.Resources {
			if err := writeRow([]any{"", "", r.UserName, r.WorkedHours, r.BillableHours, r.NonBillableHours, r.Cost, ""}); err != nil {
				return nil, err
			}
		}
	}
	for _, t := range res.Tasks {
		if err := writeRow([]any{"task", fmt.Sprintf("%s / %s", t.ProjectName, t.TaskName), "", t.WorkedHours, t.BillableHours, t.NonBillableHours, t.Cost, ""}); err != nil {
			return nil, err
		}
		for _, r := range t.Resources {
			if err := writeRow([]any{"", "", r.UserName, r.WorkedHours, r.BillableHours, r.NonBillableHours, r.Cost, ""}); err != nil {
				return nil, err
			}
		}
	}
	for _, u := range res.Users {
		if err := writeRow([]any{"user", u.UserName, "", u.WorkedHours, u.BillableHours, u.NonBillableHours, u.Cost, ""}); err != nil {
			return nil, err
		}
		for _, pr := range u.Projects {
			if err := writeRow([]any{"", "", pr.ProjectName, pr.WorkedHours, pr.BillableHours, pr.NonBillableHours, pr.Cost, pr.Locked}); err != nil {
				return nil, err
			}
		}
	}

	if err := writeRow([]any{"total", "", "", res.Summary.TotalWorkedHours, res.Summary.TotalBillableHours, res.Summary.TotalNonBillableHours, res.Summary.TotalCost, ""}); err != nil {
		return nil, err
	}

	return f, nil
}
