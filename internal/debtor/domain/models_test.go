package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewReferenceID(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		ref := NewReferenceID()
		assert.True(t, strings.HasPrefix(ref, "RCP-"))
		assert.Len(t, ref, 14)
		assert.Equal(t, strings.ToUpper(ref), ref)
		seen[ref] = true
	}
	assert.Len(t, seen, 100)
}

func TestNormalizeReferenceID(t *testing.T) {
	assert.Equal(t, "rcp-abc", NormalizeReferenceID("  RCP-ABC "))
}
