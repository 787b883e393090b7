package exchangerate

import (
	"fmt"
	"time"
)

// Phase tracks the startup transition:
// Uninitialized -> CacheHydrated -> Settled. CacheHydrated is skipped when
// nothing usable is cached.
type Phase int

const (
	Uninitialized Phase = iota
	CacheHydrated
	Settled
)

func (p Phase) String() string {
	switch p {
	case Uninitialized:
		return "uninitialized"
	case CacheHydrated:
		return "cache-hydrated"
	case Settled:
		return "settled"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// State is a point-in-time view of the exchange rate. A zero Rate means
// no rate; a zero LastUpdated means no successful fetch is known. Error may
// be set while Rate is still usable.
type State struct {
	Rate        float64
	LastUpdated time.Time
	IsLoading   bool
	Error       string
	Phase       Phase
}

func (s State) HasRate() bool { return s.Rate > 0 }

// Display is the one-line rate summary shown next to the totals.
func (s State) Display() string {
	switch {
	case s.IsLoading:
		return "Loading..."
	case s.Error != "" && !s.HasRate():
		return "Error loading rate"
	case !s.HasRate():
		return "Rate unavailable"
	}
	return fmt.Sprintf("1 USD = ₹%.2f", s.Rate)
}

func (s State) formatLastUpdated(loc *time.Location) string {
	if s.LastUpdated.IsZero() {
		return "--:--:--"
	}
	return s.LastUpdated.In(loc).Format("15:04:05")
}
