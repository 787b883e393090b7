package transporthttp

import (
	"time"

	"example.com/goaltracker/internal/domain"
	"example.com/goaltracker/internal/exchangerate"
)

type goalView struct {
	domain.Goal
	SavedAmount      float64 `json:"savedAmount"`
	ProgressPercent  float64 `json:"progressPercent"`
	Remaining        float64 `json:"remaining"`
	TargetDisplay    string  `json:"targetDisplay"`
	SavedDisplay     string  `json:"savedDisplay"`
	RemainingDisplay string  `json:"remainingDisplay"`
}

func newGoalView(g domain.Goal) goalView {
	saved := domain.SavedAmount(g)
	remaining := domain.Remaining(g)
	return goalView{
		Goal:             g,
		SavedAmount:      saved,
		ProgressPercent:  domain.ProgressPercent(g),
		Remaining:        remaining,
		TargetDisplay:    domain.FormatCurrency(g.TargetAmount, g.Currency),
		SavedDisplay:     domain.FormatCurrency(saved, g.Currency),
		RemainingDisplay: domain.FormatCurrency(remaining, g.Currency),
	}
}

type contributionResp struct {
	Goal            goalView `json:"goal"`
	ExceedsTargetBy *float64 `json:"exceedsTargetBy,omitempty"`
	ExceedsDisplay  string   `json:"exceedsTargetByDisplay,omitempty"`
}

type rateView struct {
	Rate               *float64   `json:"rate"`
	LastUpdated        *time.Time `json:"lastUpdated"`
	IsLoading          bool       `json:"isLoading"`
	Error              string     `json:"error,omitempty"`
	Phase              string     `json:"phase"`
	Display            string     `json:"display"`
	LastUpdatedDisplay string     `json:"lastUpdatedDisplay"`
}

func newRateView(s exchangerate.State, lastUpdatedDisplay string) rateView {
	v := rateView{
		IsLoading:          s.IsLoading,
		Error:              s.Error,
		Phase:              s.Phase.String(),
		Display:            s.Display(),
		LastUpdatedDisplay: lastUpdatedDisplay,
	}
	if s.HasRate() {
		rate := s.Rate
		v.Rate = &rate
	}
	if !s.LastUpdated.IsZero() {
		ts := s.LastUpdated
		v.LastUpdated = &ts
	}
	return v
}

type totalsDisplay struct {
	TargetINR string `json:"targetINR"`
	TargetUSD string `json:"targetUSD"`
	SavedINR  string `json:"savedINR"`
	SavedUSD  string `json:"savedUSD"`
}

type overviewResp struct {
	GoalCount int           `json:"goalCount"`
	Totals    domain.Totals `json:"totals"`
	Display   totalsDisplay `json:"display"`
	Rate      rateView      `json:"rate"`
}

func newOverview(goals []domain.Goal, s exchangerate.State, lastUpdatedDisplay string) overviewResp {
	// Without a usable rate the converted parts are zero.
	rate := 0.0
	if s.HasRate() {
		rate = s.Rate
	}
	t := domain.PortfolioTotals(goals, rate)
	return overviewResp{
		GoalCount: len(goals),
		Totals:    t,
		Display: totalsDisplay{
			TargetINR: domain.FormatCurrency(t.TargetINR, domain.INR),
			TargetUSD: domain.FormatCurrency(t.TargetUSD, domain.USD),
			SavedINR:  domain.FormatCurrency(t.SavedINR, domain.INR),
			SavedUSD:  domain.FormatCurrency(t.SavedUSD, domain.USD),
		},
		Rate: newRateView(s, lastUpdatedDisplay),
	}
}
