package sched

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Interval derives the expected gap between runs from a 5-field cron
// expression by measuring the distance between two consecutive fire times.
// Irregular schedules yield the gap following the reference time, which is
// good enough for staleness judgement.
func Interval(expr string, ref time.Time) (time.Duration, error) {
	sched, err := parser.Parse(expr)
	if err != nil {
		return 0, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}
	first := sched.Next(ref)
	second := sched.Next(first)
	return second.Sub(first), nil
}

// NextRun returns the next fire time after ref.
func NextRun(expr string, ref time.Time) (time.Time, error) {
	sched, err := parser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}
	return sched.Next(ref), nil
}

// StaleAfter returns the heartbeat age beyond which a backend counts as
// having missed a run: the schedule interval scaled by the grace factor.
func StaleAfter(expr string, graceFactor float64, ref time.Time) (time.Duration, error) {
	iv, err := Interval(expr, ref)
	if err != nil {
		return 0, err
	}
	if graceFactor < 1 {
		graceFactor = 1
	}
	return time.Duration(float64(iv) * graceFactor), nil
}
