// Package balance applies a matched payment to an invoice balance.
package balance

import (
	"errors"
	"fmt"

	"github.com/smallbiznis/recouply/internal/batch"
	invoicedomain "github.com/smallbiznis/recouply/internal/invoice/domain"
)

// ErrInvoiceNotPayable rejects payments against canceled or voided invoices.
var ErrInvoiceNotPayable = errors.New("invoice_not_payable")

type State struct {
	Outstanding int64
	Status      invoicedomain.InvoiceStatus
}

type Result struct {
	Applied        int64
	Unapplied      int64
	NewOutstanding int64
	NewStatus      invoicedomain.InvoiceStatus
}

// Apply computes the balance after a payment. A payment against a Paid
// invoice is never absorbed; it fails with batch.ErrAlreadySettled so the
// anomaly reaches a human. Any overpayment is returned as Unapplied.
func Apply(state State, amount int64) (Result, error) {
	if amount <= 0 {
		return Result{}, batch.Validationf("payment amount must be positive")
	}
	switch state.Status {
	case invoicedomain.InvoiceStatusPaid:
		return Result{}, batch.ErrAlreadySettled
	case invoicedomain.InvoiceStatusCanceled, invoicedomain.InvoiceStatusVoided:
		return Result{}, fmt.Errorf("%w: %s", ErrInvoiceNotPayable, state.Status)
	}
	if state.Outstanding <= 0 {
		return Result{}, batch.ErrAlreadySettled
	}

	applied := min(amount, state.Outstanding)
	outstanding := state.Outstanding - applied
	return Result{
		Applied:        applied,
		Unapplied:      amount - applied,
		NewOutstanding: outstanding,
		NewStatus:      invoicedomain.StatusForBalance(outstanding),
	}, nil
}
