package loans

import (
	"context"
	"fmt"
	"strings"
)

const (
	transactionPrefix = "LN-JAD-"

	// lnm_transactionno is VARCHAR(20)
	maxTransactionNumberLen = 20
)

// TransactionNumber is a generator sequence value. Its text form is LN-JAD-NNNNNN.
type TransactionNumber int64

func (n TransactionNumber) String() string {
	return fmt.Sprintf("%s%06d", transactionPrefix, int64(n))
}

// CheckTransactionNumber trims s and checks it has the LN-JAD-NNNNNN shape. The
// text is returned as given: rows written elsewhere may carry more padding than
// String produces, and the stored text is the key.
func CheckTransactionNumber(s string) (string, error) {
	s = strings.TrimSpace(s)
	digits, ok := strings.CutPrefix(s, transactionPrefix)
	if !ok || len(digits) < 6 || len(s) > maxTransactionNumberLen || strings.Trim(digits, "0123456789") != "" {
		return "", ErrInvalid("transaction number must look like " + transactionPrefix + "000001")
	}
	return s, nil
}

type generatorReader interface {
	FetchGeneratorValue(ctx context.Context) (int64, bool, error)
}

// Numberer hands out the next transaction number. It never writes: the advance is
// committed together with the loan in Store.CreateQualifiedLoan.
type Numberer struct {
	gen generatorReader
}

func NewNumberer(gen generatorReader) *Numberer { return &Numberer{gen: gen} }

// AllocateNext returns last issued + 1, or 1 when nothing was issued yet.
// Two callers that read before either commits get the same value; the commit's
// compare-and-swap decides which one keeps it.
func (n *Numberer) AllocateNext(ctx context.Context) (TransactionNumber, error) {
	cur, ok, err := n.gen.FetchGeneratorValue(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 1, nil
	}
	return TransactionNumber(cur + 1), nil
}
