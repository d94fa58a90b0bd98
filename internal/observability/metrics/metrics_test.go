package metrics

import (
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("account_id", "123"),
		attribute.String("invoice_id", "456"),
		attribute.String("file_type", "payments"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "account_id" && attrs[1].Key != "account_id" {
		t.Fatalf("expected account_id to be retained")
	}
	if attrs[0].Key != "file_type" && attrs[1].Key != "file_type" {
		t.Fatalf("expected file_type to be retained")
	}
}
