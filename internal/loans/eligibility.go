package loans

import "context"

type eligibilityReader interface {
	CountQualifyingJobRecords(ctx context.Context, employeeID string) (int, error)
	CountConflictingLoans(ctx context.Context, employeeID, deductionCode string) (int, error)
}

// Eligibility is derived per employee + deduction code and never stored.
type Eligibility struct {
	Qualified       bool
	HasExistingLoan bool
}

func (e Eligibility) Eligible() bool { return e.Qualified && !e.HasExistingLoan }

func (e Eligibility) Reason() string {
	switch {
	case !e.Qualified:
		return ReasonNotExists
	case e.HasExistingLoan:
		return ReasonExistingLoan
	default:
		return ""
	}
}

type Evaluator struct {
	r eligibilityReader
}

func NewEvaluator(r eligibilityReader) *Evaluator { return &Evaluator{r: r} }

// Evaluate checks qualification first; the existing-loan query only runs for
// qualified employees since "not exists" wins anyway.
func (ev *Evaluator) Evaluate(ctx context.Context, employeeID, deductionCode string) (Eligibility, error) {
	jobs, err := ev.r.CountQualifyingJobRecords(ctx, employeeID)
	if err != nil {
		return Eligibility{}, err
	}
	if jobs == 0 {
		return Eligibility{}, nil
	}

	existing, err := ev.r.CountConflictingLoans(ctx, employeeID, deductionCode)
	if err != nil {
		return Eligibility{}, err
	}
	return Eligibility{Qualified: true, HasExistingLoan: existing > 0}, nil
}
