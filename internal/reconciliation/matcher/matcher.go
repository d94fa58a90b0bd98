// Package matcher resolves uploaded rows to debtors and invoices through
// explicit, ordered strategy lists.
package matcher

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recouply/internal/batch"
	"github.com/smallbiznis/recouply/internal/reconciliation/index"
)

const (
	MethodReferenceAndInvoice = "reference_and_invoice"

	StrategyCrossDebtorGuard        = "cross_debtor_guard"
	StrategyInsufficientIdentifiers = "insufficient_identifiers"
	StrategyUnknownReference        = "unknown_reference"
)

// Review reasons stored on payments that need a human.
const (
	ReasonInvoiceNotOwned         = "invoice not owned by debtor"
	ReasonInvoiceNotFound         = "invoice not found"
	ReasonInsufficientIdentifiers = "insufficient identifiers"
	ReasonUnknownReference        = "unknown account reference"
)

// PaymentInput carries the identifiers a payment row supplied.
type PaymentInput struct {
	AccountReference string
	InvoiceNumber    string
}

type Match struct {
	InvoiceID  snowflake.ID
	DebtorID   snowflake.ID
	Confidence float64
	Method     string
}

// Rejection is a typed refusal to match. It wraps batch.ErrMatchNotFound.
type Rejection struct {
	Strategy string
	Reason   string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", batch.ErrMatchNotFound, r.Reason)
}

func (r *Rejection) Unwrap() error {
	return batch.ErrMatchNotFound
}

// errNext lets a strategy defer to the next one in the list.
var errNext = errors.New("next")

// PaymentStrategy either matches, rejects, or returns errNext.
type PaymentStrategy struct {
	Name  string
	Apply func(snap *index.Snapshot, in PaymentInput) (Match, error)
}

// PaymentStrategies is the resolution policy, highest priority first. No
// fuzzy matching is attempted for payments.
var PaymentStrategies = []PaymentStrategy{
	{Name: MethodReferenceAndInvoice, Apply: matchReferenceAndInvoice},
	{Name: StrategyCrossDebtorGuard, Apply: guardCrossDebtor},
	{Name: StrategyInsufficientIdentifiers, Apply: requireIdentifiers},
	{Name: StrategyUnknownReference, Apply: rejectUnknownReference},
}

// MatchPayment runs PaymentStrategies in order. It is side-effect free.
func MatchPayment(snap *index.Snapshot, in PaymentInput) (Match, error) {
	in.AccountReference = strings.TrimSpace(in.AccountReference)
	in.InvoiceNumber = strings.TrimSpace(in.InvoiceNumber)
	for _, strategy := range PaymentStrategies {
		match, err := strategy.Apply(snap, in)
		if errors.Is(err, errNext) {
			continue
		}
		return match, err
	}
	return Match{}, &Rejection{Strategy: StrategyUnknownReference, Reason: ReasonUnknownReference}
}

func matchReferenceAndInvoice(snap *index.Snapshot, in PaymentInput) (Match, error) {
	if in.AccountReference == "" || in.InvoiceNumber == "" {
		return Match{}, errNext
	}
	debtorID, ok := snap.DebtorByReference(in.AccountReference)
	if !ok {
		return Match{}, errNext
	}
	entry, ok := snap.Invoice(in.InvoiceNumber)
	if !ok || entry.DebtorID != debtorID {
		return Match{}, errNext
	}
	return Match{
		InvoiceID:  entry.InvoiceID,
		DebtorID:   debtorID,
		Confidence: 1.0,
		Method:     MethodReferenceAndInvoice,
	}, nil
}

// guardCrossDebtor refuses an invoice hint that resolves to another debtor.
func guardCrossDebtor(snap *index.Snapshot, in PaymentInput) (Match, error) {
	if in.AccountReference == "" || in.InvoiceNumber == "" {
		return Match{}, errNext
	}
	if _, ok := snap.DebtorByReference(in.AccountReference); !ok {
		return Match{}, errNext
	}
	if _, ok := snap.Invoice(in.InvoiceNumber); ok {
		return Match{}, &Rejection{Strategy: StrategyCrossDebtorGuard, Reason: ReasonInvoiceNotOwned}
	}
	return Match{}, &Rejection{Strategy: StrategyCrossDebtorGuard, Reason: ReasonInvoiceNotFound}
}

func requireIdentifiers(_ *index.Snapshot, in PaymentInput) (Match, error) {
	if in.AccountReference == "" || in.InvoiceNumber == "" {
		return Match{}, &Rejection{Strategy: StrategyInsufficientIdentifiers, Reason: ReasonInsufficientIdentifiers}
	}
	return Match{}, errNext
}

func rejectUnknownReference(_ *index.Snapshot, _ PaymentInput) (Match, error) {
	return Match{}, &Rejection{Strategy: StrategyUnknownReference, Reason: ReasonUnknownReference}
}

// ReasonOf extracts the review reason from a matcher error.
func ReasonOf(err error) string {
	var rejection *Rejection
	if errors.As(err, &rejection) {
		return rejection.Reason
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
