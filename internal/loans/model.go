package loans

import (
	"database/sql"

	"github.com/shopspring/decimal"
)

const (
	// Remarks written on every loan created from an uploaded workbook.
	BatchRemarks = "Saved Using Uploader"

	// lnm_date layout, e.g. "March 05, 2024".
	LoanDateLayout = "January 02, 2006"

	statusActive   = "True"
	statusInactive = "False"

	firstInstallment   = 1
	batchPayrollPeriod = "--"
	excludedJobStatus  = "Processing for Clearance"

	ReasonNotExists    = "Employee not exists"
	ReasonExistingLoan = "Employee has existing loan"
)

// Loan is one row of tblloans_master.
type Loan struct {
	TransactionNumber string          `json:"transaction_number"`
	Date              string          `json:"date"`
	EmployeeID        string          `json:"employee_id"`
	DeductionCode     string          `json:"deduction_code"`
	Amount            decimal.Decimal `json:"amount"`
	Terms             decimal.Decimal `json:"terms"`
	PreparedBy        string          `json:"prepared_by"`
	ApprovedBy        string          `json:"approved_by"`
	Status            bool            `json:"status"`
	Balance           decimal.Decimal `json:"balance"`
	OriginalAmount    decimal.Decimal `json:"original_amount"`
	Division          string          `json:"division"`
	Remarks           string          `json:"remarks"`

	// EmployeeName is display-only and never persisted.
	EmployeeName string `json:"employee_name,omitempty"`
}

type LoanPayment struct {
	TransactionNumber string
	InstallmentNo     int
	Amount            decimal.Decimal
	PayrollPeriod     string
	DatePaid          string
	DivisionPaid      string
	CurrentBalance    string
	PrincipalBalance  decimal.Decimal
}

type LoanSummary struct {
	TransactionNumber    string
	EmployeeID           string
	EmployeeName         sql.NullString
	Date                 string
	DeductionDescription sql.NullString
	Amount               decimal.Decimal
	Balance              decimal.Decimal
}

type ApplicationRow struct {
	EmployeeID   string
	EmployeeName string
	Amount       decimal.Decimal
	Line         int
}

type DeductionOption struct {
	Code        string `json:"deduction_code"`
	Description string `json:"deduction_description"`
}

type ActiveUser struct {
	Name       string `json:"name_of_user"`
	EmployeeNo string `json:"user_empno"`
}

func statusText(active bool) string {
	if active {
		return statusActive
	}
	return statusInactive
}
