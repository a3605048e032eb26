package loans

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// Column order of the upload template. Headers are matched after lower-casing
// and dropping everything that is not a letter or digit.
var templateColumns = []struct {
	name    string
	aliases []string
}{
	{"Employee No", []string{"employeeno", "employeenumber", "employeeid", "empno", "empid", "lnmemployeeno"}},
	{"Employee Name", []string{"employeename", "name", "fullname", "lnmemployeename"}},
	{"Amount", []string{"amount", "loanamount", "lnmamount"}},
}

type rowInput struct {
	EmployeeID   string `validate:"required,max=20"`
	EmployeeName string `validate:"max=150"`
	Amount       string `validate:"required,numeric"`
}

var rowValidator = validator.New()

// ParseWorkbook reads the first worksheet of an .xlsx payload into application rows.
// A leading header row is stripped after checking it names the template columns.
func ParseWorkbook(r io.Reader) ([]ApplicationRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, ErrMalformed("file is not a readable .xlsx workbook")
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrMalformed("workbook has no worksheets")
	}
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, ErrMalformed("unable to read worksheet " + sheets[0])
	}

	out := make([]ApplicationRow, 0, len(rows))
	headerChecked := false
	for i, cells := range rows {
		line := i + 1
		if isBlankRow(cells) {
			continue
		}
		if !headerChecked {
			headerChecked = true
			if looksLikeHeader(cells) {
				if err := checkHeader(cells); err != nil {
					return nil, err
				}
				continue
			}
		}

		row, err := parseRow(cells, line)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

func cell(cells []string, i int) string {
	if i < len(cells) {
		return strings.TrimSpace(cells[i])
	}
	return ""
}

func isBlankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// looksLikeHeader: a data row always carries a number in the amount column.
func looksLikeHeader(cells []string) bool {
	_, err := decimal.NewFromString(normalizeAmount(cell(cells, 2)))
	return err != nil
}

func checkHeader(cells []string) error {
	for i, col := range templateColumns {
		got := headerKey(cell(cells, i))
		matched := false
		for _, a := range col.aliases {
			if got == a {
				matched = true
				break
			}
		}
		if !matched {
			return ErrMalformed(fmt.Sprintf("column %d header %q does not match expected %q",
				i+1, cell(cells, i), col.name))
		}
	}
	return nil
}

func headerKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func normalizeAmount(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), ",", "")
}

func parseRow(cells []string, line int) (ApplicationRow, error) {
	in := rowInput{
		EmployeeID:   cell(cells, 0),
		EmployeeName: cell(cells, 1),
		Amount:       normalizeAmount(cell(cells, 2)),
	}
	if err := rowValidator.Struct(in); err != nil {
		return ApplicationRow{}, ErrMalformed(fmt.Sprintf("line %d: %s", line, describeValidation(err)))
	}

	amt, err := cellAmount(in.Amount)
	if err != nil {
		return ApplicationRow{}, ErrMalformed(fmt.Sprintf("line %d: amount %q is not a number", line, in.Amount))
	}
	if !amt.IsPositive() {
		return ApplicationRow{}, ErrMalformed(fmt.Sprintf("line %d: amount must be greater than zero", line))
	}

	return ApplicationRow{
		EmployeeID:   in.EmployeeID,
		EmployeeName: in.EmployeeName,
		Amount:       amt,
		Line:         line,
	}, nil
}

// cellAmount reads a numeric cell the way Excel shows it. The sheet XML keeps
// doubles at 17 significant digits (1500.1 is stored as 1500.0999999999999);
// the shortest float64 round-trip gives back the typed value.
func cellAmount(s string) (decimal.Decimal, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Decimal{}, fmt.Errorf("amount %q is not finite", s)
	}
	return decimal.NewFromFloat(f), nil
}

func describeValidation(err error) string {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) || len(ves) == 0 {
		return err.Error()
	}
	fe := ves[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "numeric":
		return fe.Field() + " must be a number"
	case "max":
		return fe.Field() + " is longer than " + fe.Param() + " characters"
	default:
		return fe.Field() + " is invalid"
	}
}
