package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusSets(t *testing.T) {
	for _, status := range ActiveStatuses {
		assert.True(t, status.IsActive(), status)
		assert.False(t, status.IsTerminal(), status)
	}
	for _, status := range []InvoiceStatus{InvoiceStatusPaid, InvoiceStatusCanceled, InvoiceStatusVoided} {
		assert.False(t, status.IsActive(), status)
		assert.True(t, status.IsTerminal(), status)
	}
}

func TestParseStatus(t *testing.T) {
	status, ok := ParseStatus(" inpaymentplan ")
	assert.True(t, ok)
	assert.Equal(t, InvoiceStatusInPaymentPlan, status)

	_, ok = ParseStatus("archived")
	assert.False(t, ok)
}

func TestStatusForBalance(t *testing.T) {
	assert.Equal(t, InvoiceStatusPaid, StatusForBalance(0))
	assert.Equal(t, InvoiceStatusPartiallyPaid, StatusForBalance(1))
	assert.Equal(t, InvoiceStatusPaid, StatusForBalance(-5))
}

func TestDaysPastDue(t *testing.T) {
	due := time.Date(2025, 3, 1, 17, 0, 0, 0, time.UTC)

	assert.Equal(t, 0, DaysPastDue(due, time.Date(2025, 3, 1, 1, 0, 0, 0, time.UTC)))
	assert.Equal(t, 31, DaysPastDue(due, time.Date(2025, 4, 1, 23, 0, 0, 0, time.UTC)))
	assert.Equal(t, -2, DaysPastDue(due, time.Date(2025, 2, 27, 0, 0, 0, 0, time.UTC)))
}

func TestNormalizeInvoiceNumber(t *testing.T) {
	assert.Equal(t, "inv-001", NormalizeInvoiceNumber("  INV-001 "))
}
