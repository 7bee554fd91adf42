// Package export renders assessment lists for download.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/samber/lo"

	"github.com/mind-engage/markingsheet/internal/assessment"
	"github.com/mind-engage/markingsheet/internal/scoring"
)

var Header = []string{
	"Student Name",
	"Assessor",
	"Marking Sheet",
	"Date",
	"Score",
	"Max Score",
	"Percentage",
	"Status",
	"Remarks",
	"Acknowledged",
}

const dateLayout = "2006-01-02"

// FileName is the download name for an export taken at now.
func FileName(now time.Time) string {
	return fmt.Sprintf("assessments-%s.csv", now.UTC().Format(dateLayout))
}

// WriteCSV writes a header row and one row per assessment.
func WriteCSV(w io.Writer, list []assessment.Assessment) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	if err := cw.WriteAll(lo.Map(list, func(a assessment.Assessment, _ int) []string { return record(a) })); err != nil {
		return fmt.Errorf("export: write csv: %w", err)
	}
	return nil
}

func record(a assessment.Assessment) []string {
	return []string{
		a.StudentName,
		a.AssessorName,
		lo.Ternary(a.MarkingSheetName == "", "Unknown", a.MarkingSheetName),
		a.CreatedAt.UTC().Format(dateLayout),
		fmt.Sprint(a.TotalScore),
		fmt.Sprint(a.MaxPossibleScore),
		scoring.FormatNumber(a.PercentageScore) + "%",
		string(lo.Ternary(a.Status == "", assessment.StatusPending, a.Status)),
		a.Remarks,
		lo.Ternary(a.Acknowledged(), "Yes", "No"),
	}
}
