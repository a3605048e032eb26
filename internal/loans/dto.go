package loans

import (
	"JAD-loans-backend/internal/platform/db"

	"github.com/shopspring/decimal"
)

// ===== Requests =====

// UploadRequest is the multipart form posted with the workbook (field loan_file).
type UploadRequest struct {
	DeductionType string `form:"deduction_type" binding:"required"`
	DeductionCode string `form:"deduction_code" binding:"required"`
	PreparedBy    string `form:"prepared_by" binding:"required"`
	ApprovedBy    string `form:"approved_by" binding:"required"`
}

type DescriptionsRequest struct {
	DeductionType string `json:"deduction_type"`
}

// ===== Responses =====

type LoanSummaryResponse struct {
	TransactionNumber    string          `json:"transaction_number"`
	EmployeeID           string          `json:"employee_id"`
	EmployeeName         *string         `json:"employee_name,omitempty"`
	Date                 string          `json:"date"`
	DeductionDescription *string         `json:"deduction_description,omitempty"`
	Amount               decimal.Decimal `json:"amount"`
	Balance              decimal.Decimal `json:"balance"`
}

type ListLoansResult struct {
	Items       []LoanSummaryResponse `json:"items"`
	Total       int64                 `json:"total"`
	TotalPages  int                   `json:"total_pages"`
	CurrentPage int                   `json:"current_page"`
}

type UploadOptionsResponse struct {
	DeductionTypes        []db.DeductionType `json:"deduction_types"`
	DeductionDescriptions []DeductionOption  `json:"deduction_descriptions"`
	Users                 []ActiveUser       `json:"users"`
}

type UploadResponse struct {
	BatchID     string   `json:"batch_id"`
	Qualified   []Loan   `json:"qualified"`
	Unqualified []string `json:"unqualified"`
	Failed      []string `json:"failed"`
}

func toSummaryResponse(m LoanSummary) LoanSummaryResponse {
	return LoanSummaryResponse{
		TransactionNumber:    m.TransactionNumber,
		EmployeeID:           m.EmployeeID,
		EmployeeName:         nullToPtr(m.EmployeeName.String, m.EmployeeName.Valid),
		Date:                 m.Date,
		DeductionDescription: nullToPtr(m.DeductionDescription.String, m.DeductionDescription.Valid),
		Amount:               m.Amount,
		Balance:              m.Balance,
	}
}

func toUploadResponse(res *BatchResult) UploadResponse {
	out := UploadResponse{
		BatchID:     res.BatchID,
		Qualified:   res.Qualified,
		Unqualified: make([]string, 0, len(res.Unqualified)),
		Failed:      make([]string, 0, len(res.Failed)),
	}
	for _, u := range res.Unqualified {
		out.Unqualified = append(out.Unqualified, u.Text())
	}
	for _, f := range res.Failed {
		out.Failed = append(out.Failed, f.Text())
	}
	return out
}

func nullToPtr(s string, valid bool) *string {
	if valid {
		v := s
		return &v
	}
	return nil
}
