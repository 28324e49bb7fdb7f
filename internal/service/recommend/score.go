package recommend

import (
	"math"
	"time"

	"github.com/kubikal7/ski-jumping-management/internal/model"
)

// Scorer turns an athlete's performance history into a fitness score for a
// target hill.
type Scorer interface {
	Score(records []model.PerformanceRecord, targetHillSize float64, referenceDate, oldestAllowed time.Time) float64
}

// ScorerFunc adapts a plain function to Scorer.
type ScorerFunc func(records []model.PerformanceRecord, targetHillSize float64, referenceDate, oldestAllowed time.Time) float64

// Score calls f.
func (f ScorerFunc) Score(records []model.PerformanceRecord, targetHillSize float64, referenceDate, oldestAllowed time.Time) float64 {
	return f(records, targetHillSize, referenceDate, oldestAllowed)
}

// DefaultScorer is the distance-efficiency, hill-similarity and recency model.
var DefaultScorer Scorer = ScorerFunc(Score)

// Score averages one contribution per record:
//
//	jumpRatio  = jump / hill
//	hillFactor = 1 - |hill - target| / target
//	recency    = max(0, (window - age) / window), or 1 for a zero-length window
//	contrib    = jumpRatio * hillFactor * recency * level
//
// age is the number of days from the event start to referenceDate and window
// the number of days from oldestAllowed to referenceDate. hillFactor is not
// clamped, so very dissimilar hills contribute negatively. An empty history
// scores 0.
func Score(records []model.PerformanceRecord, targetHillSize float64, referenceDate, oldestAllowed time.Time) float64 {
	if len(records) == 0 {
		return 0
	}
	window := float64(DaysBetween(oldestAllowed, referenceDate))

	var sum float64
	for _, r := range records {
		jumpRatio := r.JumpLength / r.HillSize
		hillFactor := 1 - math.Abs(r.HillSize-targetHillSize)/targetHillSize

		recency := 1.0
		if window > 0 {
			age := float64(DaysBetween(r.EventStartDate, referenceDate))
			recency = math.Max(0, (window-age)/window)
		}
		sum += jumpRatio * hillFactor * recency * float64(r.Level)
	}
	return sum / float64(len(records))
}

// DaysBetween counts whole calendar days from a to b in UTC. It is negative
// when b is before a.
func DaysBetween(a, b time.Time) int {
	da := civilDay(a)
	db := civilDay(b)
	return int(db.Sub(da).Hours() / 24)
}

func civilDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
