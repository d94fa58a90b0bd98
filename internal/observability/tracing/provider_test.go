package tracing

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsContactFields(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("job", "dispatch_drafts"),
		attribute.String("recipient", "ap@example.com"),
		attribute.String("body", "pay now"),
	)

	assert.Equal(t, []attribute.KeyValue{attribute.String("job", "dispatch_drafts")}, attrs)
}

func TestSafeErrorKeepsPrefix(t *testing.T) {
	err := fmt.Errorf("upstream_unavailable: smtp dial ap@example.com: %w", errors.New("timeout"))

	assert.EqualError(t, SafeError(err), "upstream_unavailable")
	assert.Nil(t, SafeError(nil))
}
