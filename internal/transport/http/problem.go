package transporthttp

import (
	"encoding/json"
	"net/http"

	"example.com/goaltracker/internal/domain"
)

// Problem types returned by this API. Anything else is "about:blank".
const (
	ProblemValidation   = "/problems/validation"
	ProblemGoalNotFound = "/problems/goal-not-found"
	ProblemRateLimited  = "/problems/rate-limited"
)

// Problem is an RFC 7807 body. Validation problems carry the failing fields
// both grouped by name (Errors) and in order (InvalidParams).
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	GoalID            string              `json:"goalId,omitempty"`
	Errors            map[string][]string `json:"errors,omitempty"`
	InvalidParams     domain.FieldErrors  `json:"invalidParams,omitempty"`
	RetryAfterSeconds int                 `json:"retryAfter,omitempty"`
}

func WriteProblem(w http.ResponseWriter, p Problem) {
	if p.Type == "" {
		p.Type = "about:blank"
	}
	if p.Title == "" {
		p.Title = http.StatusText(p.Status)
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

func validationProblem(errs domain.FieldErrors) Problem {
	return Problem{
		Type:          ProblemValidation,
		Title:         "validation failed",
		Status:        http.StatusBadRequest,
		Detail:        "one or more fields are invalid",
		Errors:        errs.ByField(),
		InvalidParams: errs,
	}
}

func goalNotFoundProblem(goalID string) Problem {
	return Problem{
		Type:   ProblemGoalNotFound,
		Title:  "not found",
		Status: http.StatusNotFound,
		Detail: "no goal with this id",
		GoalID: goalID,
	}
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
