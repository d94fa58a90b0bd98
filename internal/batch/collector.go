package batch

import (
	"errors"
	"sort"
	"sync"
)

// Collector aggregates counters and row errors from concurrent workers.
type Collector struct {
	mu       sync.Mutex
	counters map[string]int
	errs     []RowError
}

func NewCollector() *Collector {
	return &Collector{counters: map[string]int{}}
}

func (c *Collector) Inc(name string, n int) {
	if n == 0 {
		return
	}
	c.mu.Lock()
	c.counters[name] += n
	c.mu.Unlock()
}

func (c *Collector) Count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters[name]
}

// Fail records a row error. ErrConflictIgnored is a silent success and is
// never recorded. It reports whether the error was recorded.
func (c *Collector) Fail(err RowError) bool {
	if err.Err == nil || errors.Is(err.Err, ErrConflictIgnored) {
		return false
	}
	c.mu.Lock()
	c.errs = append(c.errs, err)
	c.mu.Unlock()
	return true
}

// Errors returns recorded row errors ordered by row number.
func (c *Collector) Errors() []RowError {
	c.mu.Lock()
	out := make([]RowError, len(c.errs))
	copy(out, c.errs)
	c.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Row != out[j].Row {
			return out[i].Row < out[j].Row
		}
		return out[i].Ref < out[j].Ref
	})
	return out
}

func (c *Collector) Messages() []string {
	errs := c.Errors()
	out := make([]string, 0, len(errs))
	for _, err := range errs {
		out = append(out, err.Error())
	}
	return out
}

func (c *Collector) ErrorCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.errs)
}
