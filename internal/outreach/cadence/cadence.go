// Package cadence decides which outreach steps fall due around a given day.
package cadence

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidCadence = errors.New("invalid_cadence")

// Step is a cadence position (1-based) and the day it is due.
type Step struct {
	Number     int
	TargetDate time.Time
}

// Window bounds an evaluation relative to today. Lookahead days ahead of
// today are included; CatchUp days behind today are too.
type Window struct {
	Lookahead int
	CatchUp   int
}

// Validate requires non-negative, strictly increasing offsets.
func Validate(days []int) error {
	for i, day := range days {
		if day < 0 {
			return fmt.Errorf("%w: offset %d is negative", ErrInvalidCadence, day)
		}
		if i > 0 && day <= days[i-1] {
			return fmt.Errorf("%w: offsets must be strictly increasing", ErrInvalidCadence)
		}
	}
	return nil
}

// Evaluate returns every step whose target date bucketEnteredAt+days[i]
// falls in [today-CatchUp, today+Lookahead]. Run once per day, each step is
// returned by some run before its date passes, and a step is never skipped
// by a later window.
func Evaluate(bucketEnteredAt, today time.Time, window Window, days []int) []Step {
	start := dayOf(bucketEnteredAt)
	from := dayOf(today).AddDate(0, 0, -max(window.CatchUp, 0))
	to := dayOf(today).AddDate(0, 0, max(window.Lookahead, 0))

	var steps []Step
	for i, offset := range days {
		target := start.AddDate(0, 0, offset)
		if target.Before(from) {
			continue
		}
		if target.After(to) {
			break
		}
		steps = append(steps, Step{Number: i + 1, TargetDate: target})
	}
	return steps
}

func dayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
