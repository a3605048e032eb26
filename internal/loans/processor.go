package loans

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"time"

	ulid "github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

// -------------- Clock & ID --------------

type Clock interface{ Now() time.Time }
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type IDGen interface {
	NewULID(t time.Time) (string, error)
}
type ulidGen struct{}

func (ulidGen) NewULID(t time.Time) (string, error) {
	id, err := ulid.New(ulid.Timestamp(t), ulid.Monotonic(rand.Reader, 0))
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// -------------- Batch --------------

const maxAllocationAttempts = 3

type BatchParams struct {
	DeductionCode string
	PreparedBy    string
	ApprovedBy    string
}

type UnqualifiedEntry struct {
	EmployeeID   string
	EmployeeName string
	Amount       decimal.Decimal
	Reason       string
	Line         int
}

func (u UnqualifiedEntry) Text() string {
	return outcomeLine(u.EmployeeID, u.EmployeeName, u.Amount, u.Reason)
}

type FailedEntry struct {
	EmployeeID   string
	EmployeeName string
	Amount       decimal.Decimal
	Reason       string
	Line         int
}

func (f FailedEntry) Text() string {
	return outcomeLine(f.EmployeeID, f.EmployeeName, f.Amount, f.Reason)
}

// employeeId,employeeName,amount,reason
func outcomeLine(emp, name string, amt decimal.Decimal, reason string) string {
	return fmt.Sprintf("%s,%s,%s,%s\n", emp, name, amt.String(), reason)
}

// BatchResult partitions the input rows; every row lands in exactly one list.
type BatchResult struct {
	BatchID     string
	Qualified   []Loan
	Unqualified []UnqualifiedEntry
	Failed      []FailedEntry
}

type Processor struct {
	ledger  Ledger
	eval    *Evaluator
	numbers *Numberer
	clock   Clock
	id      IDGen
}

func NewProcessor(l Ledger) *Processor {
	return &Processor{
		ledger:  l,
		eval:    NewEvaluator(l),
		numbers: NewNumberer(l),
		clock:   realClock{},
		id:      ulidGen{},
	}
}

// ProcessBatch walks rows in order, one at a time. A row whose writes fail is
// recorded in Failed and the batch moves on; only context cancellation stops it.
// Nothing is written when the batch id cannot be generated.
func (p *Processor) ProcessBatch(ctx context.Context, rows []ApplicationRow, params BatchParams) (BatchResult, error) {
	batchID, err := p.id.NewULID(p.clock.Now())
	if err != nil {
		return BatchResult{}, errPersistence("generate batch id", err)
	}
	res := BatchResult{
		BatchID:     batchID,
		Qualified:   make([]Loan, 0, len(rows)),
		Unqualified: make([]UnqualifiedEntry, 0),
		Failed:      make([]FailedEntry, 0),
	}
	log.Printf("[INFO] batch %s: %d rows, deduction %s", res.BatchID, len(rows), params.DeductionCode)

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		el, err := p.eval.Evaluate(ctx, row.EmployeeID, params.DeductionCode)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			p.fail(&res, row, err)
			continue
		}
		if !el.Eligible() {
			res.Unqualified = append(res.Unqualified, UnqualifiedEntry{
				EmployeeID:   row.EmployeeID,
				EmployeeName: row.EmployeeName,
				Amount:       row.Amount,
				Reason:       el.Reason(),
				Line:         row.Line,
			})
			continue
		}

		loan, err := p.createLoan(ctx, res.BatchID, row, params)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			p.fail(&res, row, err)
			continue
		}
		res.Qualified = append(res.Qualified, *loan)
	}

	log.Printf("[INFO] batch %s: qualified=%d unqualified=%d failed=%d",
		res.BatchID, len(res.Qualified), len(res.Unqualified), len(res.Failed))
	return res, nil
}

func (p *Processor) createLoan(ctx context.Context, batchID string, row ApplicationRow, params BatchParams) (*Loan, error) {
	division, err := p.ledger.FetchEmployeeDivision(ctx, row.EmployeeID)
	if err != nil {
		return nil, err
	}
	date := p.clock.Now().Format(LoanDateLayout)

	for attempt := 1; ; attempt++ {
		n, err := p.numbers.AllocateNext(ctx)
		if err != nil {
			return nil, err
		}

		loan := newBatchLoan(n, date, row, params, division)
		payment := newBatchPayment(loan)
		err = p.ledger.CreateQualifiedLoan(ctx, n, loan, payment)
		if err == nil {
			return loan, nil
		}
		if !errors.Is(err, errSequenceTaken) || attempt >= maxAllocationAttempts {
			return nil, err
		}
		log.Printf("[WARN] batch %s: %s was issued concurrently, reallocating (attempt %d)", batchID, n, attempt)
	}
}

func (p *Processor) fail(res *BatchResult, row ApplicationRow, err error) {
	log.Printf("[WARN] batch %s: line %d employee %s not saved: %v", res.BatchID, row.Line, row.EmployeeID, err)
	res.Failed = append(res.Failed, FailedEntry{
		EmployeeID:   row.EmployeeID,
		EmployeeName: row.EmployeeName,
		Amount:       row.Amount,
		Reason:       failureReason(err),
		Line:         row.Line,
	})
}

// failureReason keeps storage details out of the uploader-facing report.
func failureReason(err error) string {
	var api *APIError
	if errors.As(err, &api) && api.Code != CodeInternal {
		return api.Message
	}
	return "Loan could not be saved"
}

func newBatchLoan(n TransactionNumber, date string, row ApplicationRow, params BatchParams, division string) *Loan {
	return &Loan{
		TransactionNumber: n.String(),
		Date:              date,
		EmployeeID:        row.EmployeeID,
		DeductionCode:     params.DeductionCode,
		Amount:            row.Amount,
		Terms:             row.Amount,
		PreparedBy:        params.PreparedBy,
		ApprovedBy:        params.ApprovedBy,
		Status:            true,
		Balance:           row.Amount,
		OriginalAmount:    row.Amount,
		Division:          division,
		Remarks:           BatchRemarks,
		EmployeeName:      row.EmployeeName,
	}
}

func newBatchPayment(l *Loan) *LoanPayment {
	return &LoanPayment{
		TransactionNumber: l.TransactionNumber,
		InstallmentNo:     firstInstallment,
		Amount:            l.Amount,
		PayrollPeriod:     batchPayrollPeriod,
		PrincipalBalance:  l.Amount,
	}
}
