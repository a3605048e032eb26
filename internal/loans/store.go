package loans

import (
	"context"
	"database/sql"
	"errors"

	"JAD-loans-backend/internal/platform/db"
)

// Ledger is the data access the batch upload needs.
type Ledger interface {
	CountQualifyingJobRecords(ctx context.Context, employeeID string) (int, error)
	CountConflictingLoans(ctx context.Context, employeeID, deductionCode string) (int, error)
	FetchGeneratorValue(ctx context.Context) (int64, bool, error)
	FetchEmployeeDivision(ctx context.Context, employeeID string) (string, error)
	CreateQualifiedLoan(ctx context.Context, n TransactionNumber, l *Loan, p *LoanPayment) error
}

// Repository is Ledger plus the read side behind the list and picker endpoints.
type Repository interface {
	Ledger
	LoansPage(ctx context.Context, offset, limit int) ([]LoanSummary, int64, error)
	FetchLoanByTransactionNumber(ctx context.Context, tn string) (*LoanSummary, error)
	FetchDeductionOptions(ctx context.Context, deductionType string) ([]DeductionOption, error)
	FetchActiveUsers(ctx context.Context) ([]ActiveUser, error)
}

type Store struct {
	db *sql.DB
}

func NewStore(conn *sql.DB) *Store { return &Store{db: conn} }

const loanSummaryColumns = `
	SELECT
		a.lnm_transactionno,
		a.lnm_employeeno,
		CONCAT(b.ji_lname, ', ', b.ji_fname, ' ', SUBSTR(b.ji_mname, 1, 1), '.') AS empname,
		a.lnm_date,
		c.deduction_description,
		a.lnm_amount,
		ROUND(a.lnm_balance, 2) AS lnm_balance
	FROM tblloans_master a
	LEFT JOIN trans_basicinfo b ON a.lnm_employeeno = b.ji_empNo
	LEFT JOIN ps_deduction c ON a.lnm_deductioncode = c.deduction_code`

func scanLoanSummary(sc interface{ Scan(dest ...any) error }) (LoanSummary, error) {
	var m LoanSummary
	err := sc.Scan(
		&m.TransactionNumber, &m.EmployeeID, &m.EmployeeName, &m.Date,
		&m.DeductionDescription, &m.Amount, &m.Balance,
	)
	return m, err
}

// LoansPage returns one page of active loans and the active-loan total from one snapshot.
func (s *Store) LoansPage(ctx context.Context, offset, limit int) ([]LoanSummary, int64, error) {
	var (
		items []LoanSummary
		total int64
	)
	err := db.ReadOnly(ctx, s.db, func(ctx context.Context, tx db.DBTX) error {
		var err error
		if items, err = fetchLoansPage(ctx, tx, offset, limit); err != nil {
			return err
		}
		total, err = countLoans(ctx, tx)
		return err
	})
	if err != nil {
		return nil, 0, errPersistence("list loans", err)
	}
	return items, total, nil
}

func fetchLoansPage(ctx context.Context, q db.DBTX, offset, limit int) ([]LoanSummary, error) {
	rows, err := q.QueryContext(ctx, loanSummaryColumns+`
	WHERE a.lnm_status = ?
	ORDER BY a.lnm_transactionno
	LIMIT ? OFFSET ?`, statusActive, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]LoanSummary, 0, limit)
	for rows.Next() {
		m, err := scanLoanSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func countLoans(ctx context.Context, q db.DBTX) (int64, error) {
	var total int64
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tblloans_master WHERE lnm_status = ?`, statusActive,
	).Scan(&total)
	return total, err
}

func (s *Store) FetchLoanByTransactionNumber(ctx context.Context, tn string) (*LoanSummary, error) {
	row := s.db.QueryRowContext(ctx, loanSummaryColumns+`
	WHERE a.lnm_transactionno = ?`, tn)
	m, err := scanLoanSummary(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound("loan not found")
		}
		return nil, errPersistence("get loan", err)
	}
	return &m, nil
}

func (s *Store) FetchDeductionOptions(ctx context.Context, deductionType string) ([]DeductionOption, error) {
	const q = `
	SELECT deduction_code, deduction_description
	FROM ps_deduction
	WHERE deduction_type = ?
	ORDER BY deduction_description ASC`

	rows, err := s.db.QueryContext(ctx, q, deductionType)
	if err != nil {
		return nil, errPersistence("list deductions", err)
	}
	defer rows.Close()

	out := make([]DeductionOption, 0, 16)
	for rows.Next() {
		var d DeductionOption
		if err := rows.Scan(&d.Code, &d.Description); err != nil {
			return nil, errPersistence("list deductions", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, errPersistence("list deductions", err)
	}
	return out, nil
}

func (s *Store) FetchActiveUsers(ctx context.Context) ([]ActiveUser, error) {
	const q = `
	SELECT CONCAT(user_lname, ', ', user_fname) AS name_of_user, user_empno
	FROM fm_user
	WHERE user_act = 1
	ORDER BY user_lname, user_fname`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, errPersistence("list users", err)
	}
	defer rows.Close()

	out := make([]ActiveUser, 0, 16)
	for rows.Next() {
		var u ActiveUser
		if err := rows.Scan(&u.Name, &u.EmployeeNo); err != nil {
			return nil, errPersistence("list users", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, errPersistence("list users", err)
	}
	return out, nil
}

// ---- eligibility ----

// CountQualifyingJobRecords counts active job records not in clearance processing.
func (s *Store) CountQualifyingJobRecords(ctx context.Context, employeeID string) (int, error) {
	const q = `
	SELECT COUNT(*) FROM trans_jobinfo
	WHERE ji_empNo = ?
	AND ji_active = 1
	AND ji_jobStat <> ?`
	var n int
	if err := s.db.QueryRowContext(ctx, q, employeeID, excludedJobStatus).Scan(&n); err != nil {
		return 0, errPersistence("count job records", err)
	}
	return n, nil
}

// CountConflictingLoans counts loans of the same deduction with 0 < balance <= amount.
func (s *Store) CountConflictingLoans(ctx context.Context, employeeID, deductionCode string) (int, error) {
	const q = `
	SELECT COUNT(*) FROM tblloans_master
	WHERE lnm_employeeno = ?
	AND lnm_deductioncode = ?
	AND lnm_balance > 0
	AND lnm_balance <= lnm_amount`
	var n int
	if err := s.db.QueryRowContext(ctx, q, employeeID, deductionCode).Scan(&n); err != nil {
		return 0, errPersistence("count existing loans", err)
	}
	return n, nil
}

func (s *Store) FetchEmployeeDivision(ctx context.Context, employeeID string) (string, error) {
	const q = `
	SELECT ji_div FROM trans_jobinfo
	WHERE ji_empNo = ?
	ORDER BY ji_active DESC
	LIMIT 1`
	var div sql.NullString
	if err := s.db.QueryRowContext(ctx, q, employeeID).Scan(&div); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound("employee division not found")
		}
		return "", errPersistence("get division", err)
	}
	return div.String, nil
}

// ---- generator ----

// FetchGeneratorValue returns the last issued sequence; ok is false when ps_generator is empty.
func (s *Store) FetchGeneratorValue(ctx context.Context) (int64, bool, error) {
	const q = `SELECT generator_ln FROM ps_generator ORDER BY generator_ln DESC LIMIT 1`
	var v int64
	if err := s.db.QueryRowContext(ctx, q).Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, errPersistence("read generator", err)
	}
	return v, true, nil
}

// advanceGeneratorTx moves the generator from -> to, failing with errSequenceTaken
// when another writer got there first.
func advanceGeneratorTx(ctx context.Context, tx db.DBTX, from, to int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE ps_generator SET generator_ln = ? WHERE generator_ln = ?`, to, from)
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff == 1 {
		return nil
	}
	if from > 0 {
		return errSequenceTaken
	}

	// nothing issued yet: create the singleton row
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM ps_generator`).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return errSequenceTaken
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO ps_generator (generator_ln) VALUES (?)`, to)
	return err
}

// ---- writes ----

func insertLoanTx(ctx context.Context, tx db.DBTX, l *Loan) error {
	const q = `
	INSERT INTO tblloans_master
	(lnm_transactionno, lnm_date, lnm_employeeno, lnm_deductioncode, lnm_amount, lnm_terms,
	 lnm_preparedby, lnm_approvedby, lnm_status, lnm_balance, lnm_originalamt, lnm_division, lnm_remarks)
	VALUES
	(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q,
		l.TransactionNumber, l.Date, l.EmployeeID, l.DeductionCode, l.Amount, l.Terms,
		l.PreparedBy, l.ApprovedBy, statusText(l.Status), l.Balance, l.OriginalAmount, l.Division, l.Remarks,
	)
	return err
}

func insertLoanPaymentTx(ctx context.Context, tx db.DBTX, p *LoanPayment) error {
	const q = `
	INSERT INTO tblloans_details
	(lnm_transactionno, lnd_no, lnd_amount, lnd_payrollperiodno, date_paid, div_paid, cur_balance, prin_balance)
	VALUES
	(?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q,
		p.TransactionNumber, p.InstallmentNo, p.Amount, p.PayrollPeriod,
		p.DatePaid, p.DivisionPaid, p.CurrentBalance, p.PrincipalBalance,
	)
	return err
}

// inLedgerTx runs fn in a write transaction. A duplicate transaction number, from
// an insert or from the commit, means another writer issued it first.
func (s *Store) inLedgerTx(ctx context.Context, fn db.TxFunc) error {
	err := db.RunInTx(ctx, s.db, nil, fn)
	if db.IsDuplicateKey(err) {
		return errSequenceTaken
	}
	return err
}

// CreateQualifiedLoan writes the loan master, its first detail row and the generator
// advance as one transaction. Any failure rolls all three back.
func (s *Store) CreateQualifiedLoan(ctx context.Context, n TransactionNumber, l *Loan, p *LoanPayment) error {
	err := s.inLedgerTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		if err := insertLoanTx(ctx, tx, l); err != nil {
			return err
		}
		if err := insertLoanPaymentTx(ctx, tx, p); err != nil {
			return err
		}
		return advanceGeneratorTx(ctx, tx, int64(n)-1, int64(n))
	})
	return errPersistence("create loan "+l.TransactionNumber, err)
}
