package transporthttp

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/goaltracker/internal/config"
	"example.com/goaltracker/internal/domain"
	"example.com/goaltracker/internal/exchangerate"
	"example.com/goaltracker/internal/goalstore"
	"example.com/goaltracker/internal/storage"
)

var logger = loggo.GetLogger("goaltracker.transport.http")

// RefreshTrigger queues an exchange rate refresh. It reports false when one
// is already pending.
type RefreshTrigger interface {
	Trigger() bool
}

type ServerDeps struct {
	Cfg       config.Config
	Goals     *goalstore.Store
	Rates     *exchangerate.Cache
	Refresher RefreshTrigger
	// KV is pinged by /readyz when it implements storage.Pinger.
	KV       storage.KV
	Gatherer prometheus.Gatherer
	Now      func() time.Time
}

func decodeJSONStrict(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// --- Health ---

func (d *ServerDeps) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (d *ServerDeps) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	if p, ok := d.KV.(storage.Pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			logger.Warningf("readyz: %v", err)
			WriteProblem(w, Problem{Status: http.StatusServiceUnavailable, Title: "not ready", Detail: "storage not reachable"})
			return
		}
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// --- Goals ---

func (d *ServerDeps) HandleListGoals(w http.ResponseWriter, r *http.Request) {
	goals := d.Goals.List()
	out := make([]goalView, len(goals))
	for i, g := range goals {
		out[i] = newGoalView(g)
	}
	WriteJSON(w, http.StatusOK, map[string]any{"goals": out})
}

func (d *ServerDeps) HandleGetGoal(w http.ResponseWriter, r *http.Request) {
	goalID := chi.URLParam(r, "goalID")
	g, err := d.Goals.Get(goalID)
	if err != nil {
		writeStoreError(w, goalID, err)
		return
	}
	WriteJSON(w, http.StatusOK, newGoalView(g))
}

func (d *ServerDeps) HandlePostGoal(w http.ResponseWriter, r *http.Request) {
	defer DrainBody(r)
	var in domain.GoalInput
	if err := decodeJSONStrict(r, &in); err != nil {
		WriteProblem(w, Problem{Status: http.StatusBadRequest, Title: "invalid json", Detail: err.Error()})
		return
	}
	g, errs := domain.NewGoal(in, d.Now())
	if len(errs) > 0 {
		writeValidation(w, errs)
		return
	}
	d.Goals.Add(r.Context(), g)
	logger.Infof("created goal %s (%s %v)", g.ID, g.Currency, g.TargetAmount)
	WriteJSON(w, http.StatusCreated, newGoalView(g))
}

func (d *ServerDeps) HandlePostContribution(w http.ResponseWriter, r *http.Request) {
	defer DrainBody(r)
	goalID := chi.URLParam(r, "goalID")
	if _, err := d.Goals.Get(goalID); err != nil {
		writeStoreError(w, goalID, err)
		return
	}
	var in domain.ContributionInput
	if err := decodeJSONStrict(r, &in); err != nil {
		WriteProblem(w, Problem{Status: http.StatusBadRequest, Title: "invalid json", Detail: err.Error()})
		return
	}
	ct, errs := domain.NewContribution(in, d.Now())
	if len(errs) > 0 {
		writeValidation(w, errs)
		return
	}
	g, err := d.Goals.AddContribution(r.Context(), goalID, ct)
	if err != nil {
		writeStoreError(w, goalID, err)
		return
	}
	logger.Infof("goal %s: added contribution %v on %s", g.ID, ct.Amount, ct.Date)

	resp := contributionResp{Goal: newGoalView(g)}
	if over, ok := domain.ExceedsTargetBy(g, 0); ok {
		resp.ExceedsTargetBy = &over
		resp.ExceedsDisplay = domain.FormatCurrency(over, g.Currency)
	}
	WriteJSON(w, http.StatusCreated, resp)
}

// --- Overview & rates ---

func (d *ServerDeps) HandleOverview(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, newOverview(d.Goals.List(), d.Rates.State(), d.Rates.FormatLastUpdated()))
}

func (d *ServerDeps) HandleGetRates(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, newRateView(d.Rates.State(), d.Rates.FormatLastUpdated()))
}

func (d *ServerDeps) HandleRefreshRates(w http.ResponseWriter, r *http.Request) {
	defer DrainBody(r)
	status := "pending"
	if d.Refresher.Trigger() {
		status = "queued"
		logger.Infof("queued manual rate refresh")
	}
	WriteJSON(w, http.StatusAccepted, map[string]string{"status": status})
}

func writeValidation(w http.ResponseWriter, errs domain.FieldErrors) {
	WriteProblem(w, validationProblem(errs))
}

func writeStoreError(w http.ResponseWriter, goalID string, err error) {
	if errors.Is(err, goalstore.ErrGoalNotFound) {
		WriteProblem(w, goalNotFoundProblem(goalID))
		return
	}
	logger.Errorf("goal store: %v", err)
	WriteProblem(w, Problem{Status: http.StatusInternalServerError, Title: "internal error", Detail: "unexpected goal store failure"})
}

// --- Router ---

func (d *ServerDeps) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: d.Cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-API-Key"},
		MaxAge:         300,
	}))

	r.Get("/healthz", d.HandleHealthz)
	r.Get("/readyz", d.HandleReadyz)
	if d.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Get("/goals", d.HandleListGoals)
	r.Get("/goals/{goalID}", d.HandleGetGoal)
	r.Get("/overview", d.HandleOverview)
	r.Get("/rates", d.HandleGetRates)

	r.Group(func(r chi.Router) {
		r.Use(APIKeyAuth(d.Cfg.APIKeys))
		r.Use(RequireJSON)
		r.Use(BodyLimit(d.Cfg.MaxBodyBytes))
		r.Post("/goals", d.HandlePostGoal)
		r.Post("/goals/{goalID}/contributions", d.HandlePostContribution)
	})

	// Refresh takes no body.
	r.Group(func(r chi.Router) {
		r.Use(APIKeyAuth(d.Cfg.APIKeys))
		r.Use(RateLimitPerMinute(d.Cfg.RateLimitRefreshPerMin, d.Now))
		r.Post("/rates/refresh", d.HandleRefreshRates)
	})

	return r
}
