package matcher

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recouply/internal/batch"
	debtordomain "github.com/smallbiznis/recouply/internal/debtor/domain"
	invoicedomain "github.com/smallbiznis/recouply/internal/invoice/domain"
	"github.com/smallbiznis/recouply/internal/reconciliation/index"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func snapshot() *index.Snapshot {
	return index.Build(
		[]debtordomain.Debtor{
			{ID: 1, ReferenceID: "RCP-GLOBEX", Name: "Globex", CompanyName: "Globex Corp", ExternalCustomerID: strPtr("C-1")},
			{ID: 2, ReferenceID: "RCP-INITECH", Name: "Initech"},
		},
		[]invoicedomain.Invoice{
			{ID: 100, DebtorID: 1, InvoiceNumber: "INV-1", AmountOutstanding: 500, Status: invoicedomain.InvoiceStatusOpen},
			{ID: 200, DebtorID: 2, InvoiceNumber: "INV-2", AmountOutstanding: 900, Status: invoicedomain.InvoiceStatusOpen},
		},
	)
}

func TestPaymentStrategyOrderIsVisible(t *testing.T) {
	names := make([]string, 0, len(PaymentStrategies))
	for _, s := range PaymentStrategies {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{
		MethodReferenceAndInvoice,
		StrategyCrossDebtorGuard,
		StrategyInsufficientIdentifiers,
		StrategyUnknownReference,
	}, names)
}

func TestMatchPayment(t *testing.T) {
	snap := snapshot()
	cases := []struct {
		name     string
		in       PaymentInput
		match    Match
		strategy string
		reason   string
	}{
		{
			name:  "exact",
			in:    PaymentInput{AccountReference: " rcp-globex ", InvoiceNumber: "inv-1"},
			match: Match{InvoiceID: 100, DebtorID: 1, Confidence: 1.0, Method: MethodReferenceAndInvoice},
		},
		{
			name:     "invoice of another debtor",
			in:       PaymentInput{AccountReference: "RCP-GLOBEX", InvoiceNumber: "INV-2"},
			strategy: StrategyCrossDebtorGuard,
			reason:   ReasonInvoiceNotOwned,
		},
		{
			name:     "unknown invoice",
			in:       PaymentInput{AccountReference: "RCP-GLOBEX", InvoiceNumber: "INV-404"},
			strategy: StrategyCrossDebtorGuard,
			reason:   ReasonInvoiceNotFound,
		},
		{
			name:     "no identifiers",
			in:       PaymentInput{},
			strategy: StrategyInsufficientIdentifiers,
			reason:   ReasonInsufficientIdentifiers,
		},
		{
			name:     "invoice only",
			in:       PaymentInput{InvoiceNumber: "INV-1"},
			strategy: StrategyInsufficientIdentifiers,
			reason:   ReasonInsufficientIdentifiers,
		},
		{
			name:     "reference only",
			in:       PaymentInput{AccountReference: "RCP-GLOBEX"},
			strategy: StrategyInsufficientIdentifiers,
			reason:   ReasonInsufficientIdentifiers,
		},
		{
			name:     "unknown reference",
			in:       PaymentInput{AccountReference: "RCP-NOPE", InvoiceNumber: "INV-1"},
			strategy: StrategyUnknownReference,
			reason:   ReasonUnknownReference,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			match, err := MatchPayment(snap, tc.in)
			if tc.reason == "" {
				require.NoError(t, err)
				assert.Equal(t, tc.match, match)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, batch.ErrMatchNotFound)
			var rejection *Rejection
			require.ErrorAs(t, err, &rejection)
			assert.Equal(t, tc.strategy, rejection.Strategy)
			assert.Equal(t, tc.reason, ReasonOf(err))
			assert.Equal(t, Match{}, match)
		})
	}
}

func TestMatchPaymentIsAccountScoped(t *testing.T) {
	other := index.Build(
		[]debtordomain.Debtor{{ID: 9, ReferenceID: "RCP-GLOBEX", Name: "Other Globex"}},
		nil,
	)

	_, err := MatchPayment(other, PaymentInput{AccountReference: "RCP-GLOBEX", InvoiceNumber: "INV-1"})

	assert.Equal(t, ReasonInvoiceNotFound, ReasonOf(err))
}

func TestMatchDebtorPriority(t *testing.T) {
	snap := snapshot()

	id, method, ok := MatchDebtor(snap, DebtorInput{AccountReference: "RCP-INITECH", ExternalID: "C-1"})
	assert.True(t, ok)
	assert.Equal(t, snowflake.ID(2), id)
	assert.Equal(t, DebtorByReference, method)

	id, method, ok = MatchDebtor(snap, DebtorInput{AccountReference: "RCP-UNKNOWN", ExternalID: "c-1", CompanyName: "Initech"})
	assert.True(t, ok)
	assert.Equal(t, snowflake.ID(1), id)
	assert.Equal(t, DebtorByExternalID, method)

	id, method, ok = MatchDebtor(snap, DebtorInput{CustomerName: "GLOBEX CORP."})
	assert.True(t, ok)
	assert.Equal(t, snowflake.ID(1), id)
	assert.Equal(t, DebtorByCompany, method)

	_, _, ok = MatchDebtor(snap, DebtorInput{CompanyName: "Hooli"})
	assert.False(t, ok)
}

func TestMatchDebtorCompanyMissDoesNotFallBackToCustomerName(t *testing.T) {
	snap := snapshot()

	_, _, ok := MatchDebtor(snap, DebtorInput{CompanyName: "Hooli", CustomerName: "Globex Corp"})

	assert.False(t, ok)
}
