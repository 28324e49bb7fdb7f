package skijump

import "time"

// Scorer turns an athlete's jump history into a fitness score for an event
// held on a hill of targetHillSize meters. referenceDate is the event start
// and oldestAllowed the start of the lookback window; history holds only
// jumps inside it. Higher is better.
//
// Implementations must be pure: the engine calls Score concurrently and
// expects the same answer for the same input.
type Scorer interface {
	Score(history []Jump, targetHillSize float64, referenceDate, oldestAllowed time.Time) float64
}

// ScorerFunc adapts a plain function to Scorer.
type ScorerFunc func(history []Jump, targetHillSize float64, referenceDate, oldestAllowed time.Time) float64

// Score calls f.
func (f ScorerFunc) Score(history []Jump, targetHillSize float64, referenceDate, oldestAllowed time.Time) float64 {
	return f(history, targetHillSize, referenceDate, oldestAllowed)
}
