package domain

import "math"

// SavedAmount is the sum of all contributions; 0 when there are none.
func SavedAmount(g Goal) float64 {
	var sum float64
	for _, ct := range g.Contributions {
		sum += ct.Amount
	}
	return sum
}

// ProgressPercent is capped at 100 and is 0 for a non-positive target.
func ProgressPercent(g Goal) float64 {
	if g.TargetAmount <= 0 {
		return 0
	}
	return math.Min(SavedAmount(g)/g.TargetAmount*100, 100)
}

func Remaining(g Goal) float64 {
	return math.Max(g.TargetAmount-SavedAmount(g), 0)
}

// ExceedsTargetBy reports how far adding amount would take g past its target.
func ExceedsTargetBy(g Goal, amount float64) (float64, bool) {
	over := SavedAmount(g) + amount - g.TargetAmount
	if over <= 0 {
		return 0, false
	}
	return over, true
}

// Totals are portfolio-wide figures. Each currency figure is "everything
// expressed in that currency": the native bucket plus the other bucket
// converted at the current rate.
type Totals struct {
	TargetINR       float64 `json:"targetINR"`
	TargetUSD       float64 `json:"targetUSD"`
	SavedINR        float64 `json:"savedINR"`
	SavedUSD        float64 `json:"savedUSD"`
	AverageProgress float64 `json:"averageProgress"`
}

// PortfolioTotals aggregates goals with rate as the USD->INR multiplier. A
// rate <= 0 (or NaN) means no rate: converted parts are 0.
func PortfolioTotals(goals []Goal, rate float64) Totals {
	var (
		targetINR, targetUSD float64
		savedINR, savedUSD   float64
		progressSum          float64
		withTarget           int
	)
	for _, g := range goals {
		saved := SavedAmount(g)
		if g.Currency == INR {
			targetINR += g.TargetAmount
			savedINR += saved
		} else {
			targetUSD += g.TargetAmount
			savedUSD += saved
		}
		if g.TargetAmount > 0 {
			progressSum += ProgressPercent(g)
			withTarget++
		}
	}

	var avg float64
	if withTarget > 0 {
		avg = progressSum / float64(withTarget)
	}
	return Totals{
		TargetINR:       targetINR + usdToINR(targetUSD, rate),
		TargetUSD:       targetUSD + inrToUSD(targetINR, rate),
		SavedINR:        savedINR + usdToINR(savedUSD, rate),
		SavedUSD:        savedUSD + inrToUSD(savedINR, rate),
		AverageProgress: avg,
	}
}

func usdToINR(usd, rate float64) float64 {
	if !(rate > 0) {
		return 0
	}
	return usd * rate
}

func inrToUSD(inr, rate float64) float64 {
	if !(rate > 0) {
		return 0
	}
	return inr / rate
}
