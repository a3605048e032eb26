package loans

import (
	"context"
	"errors"
	"io"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type seqID struct{ n int }

func (g *seqID) NewULID(time.Time) (string, error) {
	g.n++
	return "batch-" + strconv.Itoa(g.n), nil
}

// brokenEntropy fails like ulid.New does when its entropy source is exhausted.
type brokenEntropy struct{}

func (brokenEntropy) NewULID(time.Time) (string, error) { return "", io.ErrUnexpectedEOF }

var testNow = time.Date(2024, time.March, 5, 9, 30, 0, 0, time.UTC)

// memLedger is an in-memory Repository with the same commit semantics as Store:
// a loan, its payment and the generator advance land together or not at all.
type memLedger struct {
	mu sync.Mutex

	jobs       map[string]int
	divisions  map[string]string
	deductions map[string][]DeductionOption
	users      []ActiveUser
	names      map[string]string

	loans    []Loan
	payments []LoanPayment
	gen      *int64

	// createErr fails CreateQualifiedLoan for the given employee.
	createErr map[string]error
	// beforeCreate runs once, just before the next commit is checked.
	beforeCreate func(m *memLedger)
	evalErr      map[string]error
	createCalls  int
	pageCalls    int
}

func newMemLedger() *memLedger {
	return &memLedger{
		jobs:       map[string]int{},
		divisions:  map[string]string{},
		deductions: map[string][]DeductionOption{},
		names:      map[string]string{},
		createErr:  map[string]error{},
		evalErr:    map[string]error{},
	}
}

func (m *memLedger) addEmployee(id, division string) {
	m.jobs[id] = 1
	m.divisions[id] = division
}

func (m *memLedger) addLoan(l Loan) {
	m.loans = append(m.loans, l)
}

func (m *memLedger) setGenerator(v int64) { m.gen = &v }

func (m *memLedger) generator() (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen == nil {
		return 0, false
	}
	return *m.gen, true
}

func (m *memLedger) CountQualifyingJobRecords(_ context.Context, employeeID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.evalErr[employeeID]; err != nil {
		return 0, err
	}
	return m.jobs[employeeID], nil
}

func (m *memLedger) CountConflictingLoans(_ context.Context, employeeID, deductionCode string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, l := range m.loans {
		if l.EmployeeID == employeeID && l.DeductionCode == deductionCode &&
			l.Balance.IsPositive() && l.Balance.LessThanOrEqual(l.Amount) {
			n++
		}
	}
	return n, nil
}

func (m *memLedger) FetchGeneratorValue(context.Context) (int64, bool, error) {
	v, ok := m.generator()
	return v, ok, nil
}

func (m *memLedger) FetchEmployeeDivision(_ context.Context, employeeID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.divisions[employeeID]
	if !ok {
		return "", ErrNotFound("employee division not found")
	}
	return d, nil
}

func (m *memLedger) CreateQualifiedLoan(ctx context.Context, n TransactionNumber, l *Loan, p *LoanPayment) error {
	if hook := m.beforeCreate; hook != nil {
		m.beforeCreate = nil
		hook(m)
	}
	// database/sql aborts the transaction on a done context
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	if err := m.createErr[l.EmployeeID]; err != nil {
		return errPersistence("create loan "+l.TransactionNumber, err)
	}
	for _, existing := range m.loans {
		if existing.TransactionNumber == l.TransactionNumber {
			return errSequenceTaken
		}
	}
	var cur int64
	if m.gen != nil {
		cur = *m.gen
	}
	if cur != int64(n)-1 {
		return errSequenceTaken
	}

	m.loans = append(m.loans, *l)
	m.payments = append(m.payments, *p)
	next := int64(n)
	m.gen = &next
	return nil
}

func (m *memLedger) LoansPage(_ context.Context, offset, limit int) ([]LoanSummary, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pageCalls++
	active := make([]Loan, 0, len(m.loans))
	for _, l := range m.loans {
		if l.Status {
			active = append(active, l)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].TransactionNumber < active[j].TransactionNumber })

	out := []LoanSummary{}
	for i := offset; i < len(active) && i < offset+limit; i++ {
		out = append(out, m.summary(active[i]))
	}
	return out, int64(len(active)), nil
}

func (m *memLedger) FetchLoanByTransactionNumber(_ context.Context, tn string) (*LoanSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.loans {
		if l.TransactionNumber == tn {
			s := m.summary(l)
			return &s, nil
		}
	}
	return nil, ErrNotFound("loan not found")
}

func (m *memLedger) summary(l Loan) LoanSummary {
	s := LoanSummary{
		TransactionNumber: l.TransactionNumber,
		EmployeeID:        l.EmployeeID,
		Date:              l.Date,
		Amount:            l.Amount,
		Balance:           l.Balance,
	}
	if name, ok := m.names[l.EmployeeID]; ok {
		s.EmployeeName.String, s.EmployeeName.Valid = name, true
	}
	for _, opts := range m.deductions {
		for _, o := range opts {
			if o.Code == l.DeductionCode {
				s.DeductionDescription.String, s.DeductionDescription.Valid = o.Description, true
			}
		}
	}
	return s
}

func (m *memLedger) FetchDeductionOptions(_ context.Context, deductionType string) ([]DeductionOption, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]DeductionOption{}, m.deductions[deductionType]...)
	return out, nil
}

func (m *memLedger) FetchActiveUsers(context.Context) ([]ActiveUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ActiveUser{}, m.users...), nil
}

var errDiskFull = errors.New("disk full")

func newTestProcessor(l Ledger) *Processor {
	p := NewProcessor(l)
	p.clock = fixedClock{t: testNow}
	p.id = &seqID{}
	return p
}

func row(line int, emp, name, amount string) ApplicationRow {
	return ApplicationRow{
		EmployeeID:   emp,
		EmployeeName: name,
		Amount:       decimal.RequireFromString(amount),
		Line:         line,
	}
}
