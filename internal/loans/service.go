package loans

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"

	"JAD-loans-backend/internal/platform/db"
)

const (
	msgSelectDescription      = "Please select a deduction description."
	msgSelectDescriptionFirst = "Please select a deduction description first and upload a file."

	// keeps (page-1)*pageSize far from int overflow
	maxPage = 1_000_000
)

type Service struct {
	repo           Repository
	proc           *Processor
	deductionTypes []db.DeductionType
	pageSize       int
	maxUploadBytes int64
}

// NewService wires the MySQL store. cfg is read-only after startup and shared.
func NewService(conn *sql.DB, cfg *db.Config) *Service {
	return newService(NewStore(conn), cfg)
}

func newService(repo Repository, cfg *db.Config) *Service {
	pageSize := cfg.Upload.PageSize
	if pageSize <= 0 {
		pageSize = 15
	}
	return &Service{
		repo:           repo,
		proc:           NewProcessor(repo),
		deductionTypes: cfg.DeductionTypes,
		pageSize:       pageSize,
		maxUploadBytes: cfg.Upload.MaxBytes,
	}
}

func (s *Service) MaxUploadBytes() int64 { return s.maxUploadBytes }

// GET /loans?page=
func (s *Service) ListLoans(ctx context.Context, page int) (ListLoansResult, error) {
	if page < 1 {
		page = 1
	}
	if page > maxPage {
		return ListLoansResult{}, ErrInvalid(fmt.Sprintf("page must be at most %d", maxPage))
	}
	offset := (page - 1) * s.pageSize
	rows, total, err := s.repo.LoansPage(ctx, offset, s.pageSize)
	if err != nil {
		return ListLoansResult{}, err
	}

	items := make([]LoanSummaryResponse, 0, len(rows))
	for _, r := range rows {
		items = append(items, toSummaryResponse(r))
	}
	totalPages := int((total + int64(s.pageSize) - 1) / int64(s.pageSize))
	return ListLoansResult{Items: items, Total: total, TotalPages: totalPages, CurrentPage: page}, nil
}

// GET /loans/:transaction_number
func (s *Service) GetLoan(ctx context.Context, tn string) (LoanSummaryResponse, error) {
	tn, err := CheckTransactionNumber(tn)
	if err != nil {
		return LoanSummaryResponse{}, err
	}
	m, err := s.repo.FetchLoanByTransactionNumber(ctx, tn)
	if err != nil {
		return LoanSummaryResponse{}, err
	}
	return toSummaryResponse(*m), nil
}

// DeductionDescriptions treats an empty list as "nothing selected", never as success.
func (s *Service) DeductionDescriptions(ctx context.Context, deductionType string) ([]DeductionOption, error) {
	deductionType = strings.TrimSpace(deductionType)
	if deductionType == "" {
		return nil, ErrInvalid(msgSelectDescriptionFirst)
	}
	opts, err := s.repo.FetchDeductionOptions(ctx, deductionType)
	if err != nil {
		return nil, err
	}
	if len(opts) == 0 {
		return nil, ErrInvalid(msgSelectDescriptionFirst)
	}
	return opts, nil
}

func (s *Service) ActiveUsers(ctx context.Context) ([]ActiveUser, error) {
	return s.repo.FetchActiveUsers(ctx)
}

// UploadOptions feeds the upload form: configured types, descriptions of the chosen type, users.
func (s *Service) UploadOptions(ctx context.Context, deductionType string) (UploadOptionsResponse, error) {
	out := UploadOptionsResponse{
		DeductionTypes:        s.deductionTypes,
		DeductionDescriptions: []DeductionOption{},
	}
	if out.DeductionTypes == nil {
		out.DeductionTypes = []db.DeductionType{}
	}
	if t := strings.TrimSpace(deductionType); t != "" {
		opts, err := s.repo.FetchDeductionOptions(ctx, t)
		if err != nil {
			return UploadOptionsResponse{}, err
		}
		out.DeductionDescriptions = opts
	}
	users, err := s.repo.FetchActiveUsers(ctx)
	if err != nil {
		return UploadOptionsResponse{}, err
	}
	out.Users = users
	return out, nil
}

// UploadLoans validates the selection before touching the file, so a bad request
// writes nothing.
func (s *Service) UploadLoans(ctx context.Context, req UploadRequest, file io.Reader) (*BatchResult, error) {
	req.DeductionType = strings.TrimSpace(req.DeductionType)
	req.DeductionCode = strings.TrimSpace(req.DeductionCode)
	if req.DeductionType == "" || req.DeductionCode == "" {
		return nil, ErrInvalid(msgSelectDescription)
	}
	if strings.TrimSpace(req.PreparedBy) == "" || strings.TrimSpace(req.ApprovedBy) == "" {
		return nil, ErrInvalid("prepared_by and approved_by are required")
	}

	opts, err := s.repo.FetchDeductionOptions(ctx, req.DeductionType)
	if err != nil {
		return nil, err
	}
	if len(opts) == 0 {
		return nil, ErrInvalid(msgSelectDescription)
	}
	if !containsCode(opts, req.DeductionCode) {
		return nil, ErrInvalid("deduction_code " + req.DeductionCode + " does not belong to deduction type " + req.DeductionType)
	}

	rows, err := ParseWorkbook(file)
	if err != nil {
		return nil, err
	}

	// A client that disconnects mid-batch still gets every row either saved or
	// reported; the row loop is not cut short by the request context.
	res, err := s.proc.ProcessBatch(context.WithoutCancel(ctx), rows, BatchParams{
		DeductionCode: req.DeductionCode,
		PreparedBy:    strings.TrimSpace(req.PreparedBy),
		ApprovedBy:    strings.TrimSpace(req.ApprovedBy),
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func containsCode(opts []DeductionOption, code string) bool {
	for _, o := range opts {
		if o.Code == code {
			return true
		}
	}
	return false
}
