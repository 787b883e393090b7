package transporthttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/juju/clock/testclock"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"

	"example.com/goaltracker/internal/config"
	"example.com/goaltracker/internal/domain"
	"example.com/goaltracker/internal/exchangerate"
	"example.com/goaltracker/internal/goalstore"
	"example.com/goaltracker/internal/metrics"
	"example.com/goaltracker/internal/storage/memory"
)

var now = time.Date(2026, 1, 9, 12, 0, 0, 0, time.UTC)

type stubSource struct {
	rate float64
	err  error
}

func (s stubSource) Configured() bool { return true }

func (s stubSource) FetchUSDRate(context.Context) (float64, error) { return s.rate, s.err }

type stubTrigger struct{ calls int }

// Trigger accepts the first call only, like a queue of one that is never drained.
func (s *stubTrigger) Trigger() bool {
	s.calls++
	return s.calls == 1
}

type failingPinger struct{ *memory.KV }

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

type fixture struct {
	deps    *ServerDeps
	handler http.Handler
	trigger *stubTrigger
}

func newFixture(c *qt.C, mutate func(*ServerDeps)) *fixture {
	kv := memory.NewKV()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	goals := goalstore.New(kv, m)
	rates := exchangerate.New(exchangerate.Config{
		Store:    kv,
		Source:   stubSource{rate: 80},
		Clock:    testclock.NewClock(now),
		Location: time.UTC,
		Metrics:  m,
	})
	rates.Refresh(context.Background())

	f := &fixture{trigger: &stubTrigger{}}
	f.deps = &ServerDeps{
		Cfg: config.Config{
			MaxBodyBytes:           1 << 20,
			RateLimitRefreshPerMin: 2,
		},
		Goals:     goals,
		Rates:     rates,
		Refresher: f.trigger,
		KV:        kv,
		Gatherer:  reg,
		Now:       func() time.Time { return now },
	}
	if mutate != nil {
		mutate(f.deps)
	}
	f.handler = f.deps.Router()
	return f
}

func (f *fixture) do(c *qt.C, method, path, body string, hdr ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](c *qt.C, rec *httptest.ResponseRecorder) T {
	var v T
	c.Assert(json.Unmarshal(rec.Body.Bytes(), &v), qt.IsNil, qt.Commentf("body: %s", rec.Body.String()))
	return v
}

func (f *fixture) createGoal(c *qt.C, body string) goalView {
	rec := f.do(c, http.MethodPost, "/goals", body)
	c.Assert(rec.Code, qt.Equals, http.StatusCreated, qt.Commentf("body: %s", rec.Body.String()))
	return decode[goalView](c, rec)
}

func TestHealth(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, nil)
	c.Assert(f.do(c, http.MethodGet, "/healthz", "").Code, qt.Equals, http.StatusOK)
	c.Assert(f.do(c, http.MethodGet, "/readyz", "").Code, qt.Equals, http.StatusOK)

	f = newFixture(c, func(d *ServerDeps) { d.KV = failingPinger{memory.NewKV()} })
	rec := f.do(c, http.MethodGet, "/readyz", "")
	c.Assert(rec.Code, qt.Equals, http.StatusServiceUnavailable)
	c.Assert(rec.Header().Get("Content-Type"), qt.Equals, "application/problem+json")
}

func TestCreateGoal(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, nil)

	g := f.createGoal(c, `{"name":"  Laptop ","targetAmount":50000}`)
	c.Assert(g.ID, qt.Not(qt.Equals), "")
	c.Assert(g.Name, qt.Equals, "Laptop")
	c.Assert(string(g.Currency), qt.Equals, "INR")
	c.Assert(g.Contributions, qt.HasLen, 0)
	c.Assert(g.TargetDisplay, qt.Equals, "₹50,000")

	rec := f.do(c, http.MethodGet, "/goals/"+g.ID, "")
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	c.Assert(decode[goalView](c, rec).Name, qt.Equals, "Laptop")

	list := decode[struct {
		Goals []goalView `json:"goals"`
	}](c, f.do(c, http.MethodGet, "/goals", ""))
	c.Assert(list.Goals, qt.HasLen, 1)
}

func TestCreateGoalRejectsBadInput(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, nil)

	rec := f.do(c, http.MethodPost, "/goals", `{"name":"x","targetAmount":0,"currency":"EUR"}`)
	c.Assert(rec.Code, qt.Equals, http.StatusBadRequest)
	p := decode[Problem](c, rec)
	c.Assert(p.Errors["name"], qt.DeepEquals, []string{"Goal name must be at least 2 characters"})
	c.Assert(p.Errors["targetAmount"], qt.DeepEquals, []string{"Target amount must be greater than 0"})
	c.Assert(p.Errors["currency"], qt.DeepEquals, []string{"Currency must be INR or USD"})
	c.Assert(p.Type, qt.Equals, ProblemValidation)
	c.Assert(p.InvalidParams, qt.HasLen, 3)
	c.Assert(p.InvalidParams[0], qt.Equals, domain.FieldError{Field: "name", Msg: "Goal name must be at least 2 characters"})

	rec = f.do(c, http.MethodPost, "/goals", `{"name":"Trip","targetAmount":10,"extra":true}`)
	c.Assert(rec.Code, qt.Equals, http.StatusBadRequest)
	c.Assert(decode[Problem](c, rec).Title, qt.Equals, "invalid json")

	req := httptest.NewRequest(http.MethodPost, "/goals", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "text/plain")
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	c.Assert(rr.Code, qt.Equals, http.StatusUnsupportedMediaType)

	c.Assert(f.deps.Goals.List(), qt.HasLen, 0)
}

func TestAPIKeyAuth(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, func(d *ServerDeps) {
		d.Cfg.APIKeys = map[string]struct{}{"secret": {}}
	})
	body := `{"name":"Trip","targetAmount":100,"currency":"USD"}`

	c.Assert(f.do(c, http.MethodPost, "/goals", body).Code, qt.Equals, http.StatusUnauthorized)
	c.Assert(f.do(c, http.MethodPost, "/goals", body, "X-API-Key", "wrong").Code, qt.Equals, http.StatusUnauthorized)
	c.Assert(f.do(c, http.MethodPost, "/goals", body, "X-API-Key", "secret").Code, qt.Equals, http.StatusCreated)
	// Reads stay open.
	c.Assert(f.do(c, http.MethodGet, "/goals", "").Code, qt.Equals, http.StatusOK)
}

func TestUnknownGoal(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, nil)
	rec := f.do(c, http.MethodGet, "/goals/nope", "")
	c.Assert(rec.Code, qt.Equals, http.StatusNotFound)
	p := decode[Problem](c, rec)
	c.Assert(p.Type, qt.Equals, ProblemGoalNotFound)
	c.Assert(p.GoalID, qt.Equals, "nope")

	rec = f.do(c, http.MethodPost, "/goals/nope/contributions", `{"amount":5,"date":"2026-01-01"}`)
	c.Assert(rec.Code, qt.Equals, http.StatusNotFound)
	c.Assert(decode[Problem](c, rec).GoalID, qt.Equals, "nope")
}

func TestAddContribution(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, nil)
	g := f.createGoal(c, `{"name":"Bike","targetAmount":100,"currency":"USD"}`)
	path := "/goals/" + g.ID + "/contributions"

	rec := f.do(c, http.MethodPost, path, `{"amount":60,"date":"2026-01-05"}`)
	c.Assert(rec.Code, qt.Equals, http.StatusCreated)
	resp := decode[contributionResp](c, rec)
	c.Assert(resp.ExceedsTargetBy, qt.IsNil)
	c.Assert(resp.Goal.SavedAmount, qt.Equals, 60.0)
	c.Assert(resp.Goal.ProgressPercent, qt.Equals, 60.0)

	rec = f.do(c, http.MethodPost, path, `{"amount":90,"date":"2026-01-09"}`)
	c.Assert(rec.Code, qt.Equals, http.StatusCreated)
	resp = decode[contributionResp](c, rec)
	c.Assert(resp.ExceedsTargetBy, qt.IsNotNil)
	c.Assert(*resp.ExceedsTargetBy, qt.Equals, 50.0)
	c.Assert(resp.ExceedsDisplay, qt.Equals, "$50")
	c.Assert(resp.Goal.ProgressPercent, qt.Equals, 100.0)
	c.Assert(resp.Goal.Remaining, qt.Equals, 0.0)
	c.Assert(resp.Goal.Contributions, qt.HasLen, 2)
	c.Assert(resp.Goal.Contributions[0].Amount, qt.Equals, 60.0)
}

func TestAddContributionRejectsBadInput(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, nil)
	g := f.createGoal(c, `{"name":"Bike","targetAmount":100}`)
	path := "/goals/" + g.ID + "/contributions"

	rec := f.do(c, http.MethodPost, path, `{"amount":10,"date":"2026-01-10"}`)
	c.Assert(rec.Code, qt.Equals, http.StatusBadRequest)
	c.Assert(decode[Problem](c, rec).Errors["date"], qt.DeepEquals, []string{"Date cannot be in the future"})

	rec = f.do(c, http.MethodPost, path, `{"amount":-1,"date":""}`)
	c.Assert(rec.Code, qt.Equals, http.StatusBadRequest)
	p := decode[Problem](c, rec)
	c.Assert(p.Errors["amount"], qt.DeepEquals, []string{"Contribution amount must be greater than 0"})
	c.Assert(p.Errors["date"], qt.DeepEquals, []string{"Date is required"})

	got, err := f.deps.Goals.Get(g.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Contributions, qt.HasLen, 0)
}

func TestOverview(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, nil)
	a := f.createGoal(c, `{"name":"Home","targetAmount":1000,"currency":"INR"}`)
	b := f.createGoal(c, `{"name":"Trip","targetAmount":100,"currency":"USD"}`)
	c.Assert(f.do(c, http.MethodPost, "/goals/"+a.ID+"/contributions", `{"amount":400,"date":"2026-01-01"}`).Code, qt.Equals, http.StatusCreated)
	c.Assert(f.do(c, http.MethodPost, "/goals/"+b.ID+"/contributions", `{"amount":50,"date":"2026-01-01"}`).Code, qt.Equals, http.StatusCreated)

	rec := f.do(c, http.MethodGet, "/overview", "")
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	o := decode[overviewResp](c, rec)
	c.Assert(o.GoalCount, qt.Equals, 2)
	c.Assert(o.Totals.TargetINR, qt.Equals, 9000.0)
	c.Assert(o.Totals.SavedINR, qt.Equals, 4400.0)
	c.Assert(o.Totals.AverageProgress, qt.Equals, 45.0)
	c.Assert(o.Display.TargetINR, qt.Equals, "₹9,000")
	c.Assert(o.Display.SavedINR, qt.Equals, "₹4,400")
	c.Assert(o.Display.TargetUSD, qt.Equals, "$113")
	c.Assert(o.Rate.Display, qt.Equals, "1 USD = ₹80.00")
	c.Assert(o.Rate.LastUpdatedDisplay, qt.Equals, "12:00:00")
}

func TestGetRates(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, nil)
	v := decode[rateView](c, f.do(c, http.MethodGet, "/rates", ""))
	c.Assert(v.Rate, qt.IsNotNil)
	c.Assert(*v.Rate, qt.Equals, 80.0)
	c.Assert(v.IsLoading, qt.IsFalse)
	c.Assert(v.Phase, qt.Equals, "settled")
	c.Assert(v.LastUpdated.Equal(now), qt.IsTrue)

	f = newFixture(c, func(d *ServerDeps) {
		d.Rates = exchangerate.New(exchangerate.Config{
			Store:    memory.NewKV(),
			Source:   stubSource{err: errors.New("offline")},
			Clock:    testclock.NewClock(now),
			Location: time.UTC,
		})
		d.Rates.Refresh(context.Background())
	})
	v = decode[rateView](c, f.do(c, http.MethodGet, "/rates", ""))
	c.Assert(v.Rate, qt.IsNil)
	c.Assert(v.LastUpdated, qt.IsNil)
	c.Assert(v.Error, qt.Equals, "offline")
	c.Assert(v.Display, qt.Equals, "Error loading rate")
	c.Assert(v.LastUpdatedDisplay, qt.Equals, "--:--:--")
}

func TestRefreshRates(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, nil)

	rec := f.do(c, http.MethodPost, "/rates/refresh", "")
	c.Assert(rec.Code, qt.Equals, http.StatusAccepted)
	c.Assert(decode[map[string]string](c, rec)["status"], qt.Equals, "queued")

	rec = f.do(c, http.MethodPost, "/rates/refresh", "")
	c.Assert(rec.Code, qt.Equals, http.StatusAccepted)
	c.Assert(decode[map[string]string](c, rec)["status"], qt.Equals, "pending")

	// Two per minute; the clock does not move.
	rec = f.do(c, http.MethodPost, "/rates/refresh", "")
	c.Assert(rec.Code, qt.Equals, http.StatusTooManyRequests)
	c.Assert(rec.Header().Get("Retry-After"), qt.Equals, "30")
	p := decode[Problem](c, rec)
	c.Assert(p.Type, qt.Equals, ProblemRateLimited)
	c.Assert(p.RetryAfterSeconds, qt.Equals, 30)
	c.Assert(f.trigger.calls, qt.Equals, 2)
}

func TestMetricsEndpoint(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, nil)
	f.createGoal(c, `{"name":"Home","targetAmount":1000}`)

	rec := f.do(c, http.MethodGet, "/metrics", "")
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	body := rec.Body.String()
	c.Assert(body, qt.Contains, `goaltracker_rate_refresh_total{outcome="success"} 1`)
	c.Assert(body, qt.Contains, "goaltracker_goals 1")
	c.Assert(body, qt.Contains, "goaltracker_usd_inr_rate 80")
}
