package domain

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type Currency string

const (
	INR Currency = "INR"
	USD Currency = "USD"
)

// Goal is a named savings target. Contributions are append-only, in the
// order they were added.
type Goal struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	TargetAmount  float64        `json:"targetAmount"`
	Currency      Currency       `json:"currency"`
	Contributions []Contribution `json:"contributions"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// Contribution is a single dated deposit. Date is a calendar date (YYYY-MM-DD).
type Contribution struct {
	ID        string    `json:"id"`
	Amount    float64   `json:"amount"`
	Date      string    `json:"date"`
	CreatedAt time.Time `json:"createdAt"`
}

const (
	MinGoalNameLen = 2
	MaxGoalNameLen = 100
	DateLayout     = "2006-01-02"
)

type GoalInput struct {
	Name         string   `json:"name" validate:"required,min=2,max=100"`
	TargetAmount *float64 `json:"targetAmount" validate:"required,gt=0"`
	Currency     Currency `json:"currency" validate:"oneof=INR USD"`
}

type ContributionInput struct {
	Amount *float64 `json:"amount" validate:"required,gt=0"`
	Date   string   `json:"date" validate:"required,datetime=2006-01-02"`
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns a ULID string, monotonic within the same millisecond.
func NewID(now time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now), entropy).String()
}

// NewGoal validates in and builds a goal with no contributions.
func NewGoal(in GoalInput, now time.Time) (Goal, FieldErrors) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Currency == "" {
		in.Currency = INR
	}
	if errs := ValidateGoal(in); len(errs) > 0 {
		return Goal{}, errs
	}
	now = now.UTC()
	return Goal{
		ID:            NewID(now),
		Name:          in.Name,
		TargetAmount:  *in.TargetAmount,
		Currency:      in.Currency,
		Contributions: []Contribution{},
		CreatedAt:     now,
	}, nil
}

// NewContribution validates in against today's date in now's location.
func NewContribution(in ContributionInput, now time.Time) (Contribution, FieldErrors) {
	in.Date = strings.TrimSpace(in.Date)
	if errs := ValidateContribution(in, now); len(errs) > 0 {
		return Contribution{}, errs
	}
	created := now.UTC()
	return Contribution{
		ID:        NewID(created),
		Amount:    *in.Amount,
		Date:      in.Date,
		CreatedAt: created,
	}, nil
}

// WithContribution returns a copy of g with ct appended. g is not modified.
func (g Goal) WithContribution(ct Contribution) Goal {
	out := g
	out.Contributions = make([]Contribution, 0, len(g.Contributions)+1)
	out.Contributions = append(out.Contributions, g.Contributions...)
	out.Contributions = append(out.Contributions, ct)
	return out
}
