package batch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowErrorFormatting(t *testing.T) {
	err := NewRowError(3, "INV-1", Validationf("missing %s", "due_date"))

	assert.Equal(t, "row 3 (INV-1): validation_error: missing due_date", err.Error())
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "invoice 42: upstream_unavailable: smtp", NewRowError(0, "invoice 42", Upstreamf("smtp")).Error())
}

func TestCollectorSkipsConflictIgnored(t *testing.T) {
	c := NewCollector()

	assert.False(t, c.Fail(NewRowError(1, "", fmt.Errorf("draft exists: %w", ErrConflictIgnored))))
	assert.True(t, c.Fail(NewRowError(4, "", ErrMatchNotFound)))
	assert.True(t, c.Fail(NewRowError(2, "", ErrAlreadySettled)))

	assert.Equal(t, 2, c.ErrorCount())
	assert.Equal(t, []string{"row 2: already_settled", "row 4: match_not_found"}, c.Messages())
}

func TestForEachBoundsConcurrency(t *testing.T) {
	items := make([]int, 50)
	for i := range items {
		items[i] = i
	}
	var inFlight, peak, sum int64
	c := NewCollector()

	err := ForEach(context.Background(), 4, items, func(ctx context.Context, idx int, item int) error {
		cur := atomic.AddInt64(&inFlight, 1)
		for {
			old := atomic.LoadInt64(&peak)
			if cur <= old || atomic.CompareAndSwapInt64(&peak, old, cur) {
				break
			}
		}
		atomic.AddInt64(&sum, int64(item))
		c.Inc("processed", 1)
		atomic.AddInt64(&inFlight, -1)
		return nil
	})

	require.NoError(t, err)
	assert.LessOrEqual(t, peak, int64(4))
	assert.Equal(t, int64(1225), sum)
	assert.Equal(t, 50, c.Count("processed"))
}

func TestForEachStopsOnFatal(t *testing.T) {
	fatal := errors.New("db gone")
	items := []int{1, 2, 3}

	err := ForEach(context.Background(), 1, items, func(ctx context.Context, idx int, item int) error {
		if item == 2 {
			return fatal
		}
		return nil
	})

	assert.ErrorIs(t, err, fatal)
}

func TestForEachEmpty(t *testing.T) {
	called := false
	err := ForEach(context.Background(), 2, []string(nil), func(context.Context, int, string) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, called)
}
