package loans

import (
	"bytes"
	"encoding/csv"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const ReportFilename = "unqualified_data.csv"

var reportHeader = []string{"EMPLOYEE NUMBER", "EMPLOYEE NAME", "LOAN AMOUNT", "REASON"}

// WriteRejectedCSV renders unqualified then failed rows as CSV. The UTF-8 BOM lets
// Excel open names with non-ASCII characters correctly.
func WriteRejectedCSV(res *BatchResult) ([]byte, error) {
	var b bytes.Buffer
	enc := unicode.UTF8BOM.NewEncoder()
	tw := transform.NewWriter(&b, enc)
	w := csv.NewWriter(tw)

	if err := w.Write(reportHeader); err != nil {
		return nil, err
	}
	for _, u := range res.Unqualified {
		if err := w.Write([]string{u.EmployeeID, u.EmployeeName, u.Amount.String(), u.Reason}); err != nil {
			return nil, err
		}
	}
	for _, f := range res.Failed {
		if err := w.Write([]string{f.EmployeeID, f.EmployeeName, f.Amount.String(), f.Reason}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}
