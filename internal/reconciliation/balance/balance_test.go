package balance

import (
	"testing"

	"github.com/smallbiznis/recouply/internal/batch"
	invoicedomain "github.com/smallbiznis/recouply/internal/invoice/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyFullPayment(t *testing.T) {
	res, err := Apply(State{Outstanding: 50000, Status: invoicedomain.InvoiceStatusOpen}, 50000)

	require.NoError(t, err)
	assert.Equal(t, Result{Applied: 50000, NewOutstanding: 0, NewStatus: invoicedomain.InvoiceStatusPaid}, res)
}

func TestApplyPartialPayment(t *testing.T) {
	res, err := Apply(State{Outstanding: 50000, Status: invoicedomain.InvoiceStatusOpen}, 20000)

	require.NoError(t, err)
	assert.Equal(t, int64(30000), res.NewOutstanding)
	assert.Equal(t, invoicedomain.InvoiceStatusPartiallyPaid, res.NewStatus)
	assert.Equal(t, int64(20000), res.Applied)
}

func TestApplyOneCentFlipsOpenToPartiallyPaid(t *testing.T) {
	res, err := Apply(State{Outstanding: 50000, Status: invoicedomain.InvoiceStatusOpen}, 1)

	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPartiallyPaid, res.NewStatus)
}

func TestApplyPartialPaymentEndsPaymentPlan(t *testing.T) {
	res, err := Apply(State{Outstanding: 50000, Status: invoicedomain.InvoiceStatusInPaymentPlan}, 20000)

	require.NoError(t, err)
	assert.Equal(t, int64(30000), res.NewOutstanding)
	assert.Equal(t, invoicedomain.InvoiceStatusPartiallyPaid, res.NewStatus)
}

func TestApplyOverpaymentReportsRemainder(t *testing.T) {
	res, err := Apply(State{Outstanding: 300, Status: invoicedomain.InvoiceStatusPartiallyPaid}, 1000)

	require.NoError(t, err)
	assert.Equal(t, int64(300), res.Applied)
	assert.Equal(t, int64(700), res.Unapplied)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, res.NewStatus)
}

func TestApplyRejectsSettledAndClosed(t *testing.T) {
	_, err := Apply(State{Outstanding: 0, Status: invoicedomain.InvoiceStatusPaid}, 100)
	assert.ErrorIs(t, err, batch.ErrAlreadySettled)

	_, err = Apply(State{Outstanding: 100, Status: invoicedomain.InvoiceStatusVoided}, 100)
	assert.ErrorIs(t, err, ErrInvoiceNotPayable)

	_, err = Apply(State{Outstanding: 100, Status: invoicedomain.InvoiceStatusOpen}, 0)
	assert.ErrorIs(t, err, batch.ErrValidation)
}

func TestApplyIsMonotonic(t *testing.T) {
	state := State{Outstanding: 10000, Status: invoicedomain.InvoiceStatusOpen}
	for _, amount := range []int64{1, 2500, 333, 4000, 9999, 5} {
		res, err := Apply(state, amount)
		if err != nil {
			assert.ErrorIs(t, err, batch.ErrAlreadySettled)
			assert.Equal(t, invoicedomain.InvoiceStatusPaid, state.Status)
			continue
		}
		assert.LessOrEqual(t, res.NewOutstanding, state.Outstanding)
		assert.GreaterOrEqual(t, res.NewOutstanding, int64(0))
		assert.Equal(t, res.NewOutstanding == 0, res.NewStatus == invoicedomain.InvoiceStatusPaid)
		state = State{Outstanding: res.NewOutstanding, Status: res.NewStatus}
	}
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, state.Status)
}
