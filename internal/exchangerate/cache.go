package exchangerate

//go:generate go run go.uber.org/mock/mockgen -package exchangerate -destination source_mock_test.go example.com/goaltracker/internal/exchangerate RateSource

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"example.com/goaltracker/internal/metrics"
	"example.com/goaltracker/internal/ratesource"
	"example.com/goaltracker/internal/storage"
)

var logger = loggo.GetLogger("goaltracker.exchangerate")

// Keys in the key-value store.
const (
	CacheKey          = "exchange_rate_cache"
	CacheTimestampKey = "exchange_rate_timestamp"
)

// timestampLayout is ISO-8601 with millisecond precision.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

const (
	msgNotConfigured       = "API key not configured. Please add EXCHANGE_RATE_API_KEY to your environment."
	msgCachedNotConfigured = "Using cached rate. API key not configured."
	msgFetchFailed         = "Failed to fetch exchange rate"
)

// RateSource fetches the current USD->INR multiplier.
type RateSource interface {
	// Configured reports whether the credential needed by FetchUSDRate is set.
	Configured() bool
	FetchUSDRate(ctx context.Context) (float64, error)
}

type Config struct {
	Store   storage.KV
	Source  RateSource
	Clock   clock.Clock
	// Location is used for human-readable timestamps. Defaults to time.Local.
	Location *time.Location
	Metrics  *metrics.Metrics
}

// Cache owns the process-wide exchange rate state. It never blocks readers
// on the network: State always returns the latest snapshot.
type Cache struct {
	store   storage.KV
	source  RateSource
	clock   clock.Clock
	loc     *time.Location
	metrics *metrics.Metrics

	mu       sync.Mutex
	state    State
	inFlight bool
}

func New(cfg Config) *Cache {
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Cache{
		store:   cfg.Store,
		source:  cfg.Source,
		clock:   cfg.Clock,
		loc:     cfg.Location,
		metrics: cfg.Metrics,
		state:   State{IsLoading: true, Phase: Uninitialized},
	}
}

// State returns a snapshot of the current state.
func (c *Cache) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// FormatLastUpdated renders the last successful fetch time as HH:MM:SS, or
// "--:--:--" when there is none.
func (c *Cache) FormatLastUpdated() string {
	return c.State().formatLastUpdated(c.loc)
}

// Start hydrates the state from the persisted cache, so a stale rate is
// visible at once, then runs the first refresh.
func (c *Cache) Start(ctx context.Context) {
	if cached, ok := c.loadCached(ctx); ok {
		c.mu.Lock()
		if c.state.Phase == Uninitialized {
			c.state.Rate = cached.rate
			c.state.LastUpdated = cached.timestamp
			c.state.IsLoading = true
			c.state.Phase = CacheHydrated
		}
		c.mu.Unlock()
		logger.Infof("hydrated cached rate %v from %s", cached.rate, cached.timestamp.Format(time.RFC3339))
	}
	c.Refresh(ctx)
}

// Refresh makes one fetch attempt and folds the outcome into the state. A
// call made while another is in flight returns immediately. Failures never
// escape: they surface as State.Error.
func (c *Cache) Refresh(ctx context.Context) {
	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		logger.Debugf("refresh already in flight, skipping")
		c.metrics.RefreshOutcome(metrics.OutcomeSkipped)
		return
	}
	c.inFlight = true
	configured := c.source != nil && c.source.Configured()
	if configured {
		c.state.IsLoading = true
		c.state.Error = ""
	}
	c.mu.Unlock()

	if !configured {
		c.refreshUnconfigured(ctx)
		return
	}

	rate, err := c.source.FetchUSDRate(ctx)
	if err == nil && !validRate(rate) {
		err = ratesource.ErrMalformedPayload
	}
	if err != nil {
		c.refreshFailed(ctx, err)
		return
	}

	now := c.clock.Now().Truncate(time.Millisecond)
	c.saveCached(ctx, rate, now)
	c.settle(func(s *State) {
		s.Rate = rate
		s.LastUpdated = now
		s.Error = ""
	})
	logger.Infof("fetched rate 1 USD = %v INR", rate)
	c.metrics.RefreshOutcome(metrics.OutcomeSuccess)
}

func (c *Cache) refreshUnconfigured(ctx context.Context) {
	cached, ok := c.loadCached(ctx)
	c.settle(func(s *State) {
		s.Error = msgNotConfigured
		if ok {
			s.Rate = cached.rate
			s.LastUpdated = cached.timestamp
			s.Error = msgCachedNotConfigured
		}
	})
	logger.Warningf("rate source not configured (cached rate available: %v)", ok)
	c.metrics.RefreshOutcome(metrics.OutcomeUnconfigured)
}

func (c *Cache) refreshFailed(ctx context.Context, cause error) {
	reason := cause.Error()
	cached, ok := c.loadCached(ctx)
	if ok {
		c.settle(func(s *State) {
			s.Rate = cached.rate
			s.LastUpdated = cached.timestamp
			s.Error = fmt.Sprintf("Failed to fetch new rate. Using cached rate from %s. Error: %s",
				cached.timestamp.In(c.loc).Format("2006-01-02 15:04:05"), reason)
		})
		logger.Warningf("fetch failed, using cached rate %v: %v", cached.rate, cause)
		c.metrics.RefreshOutcome(metrics.OutcomeFallback)
		return
	}
	if reason == "" {
		reason = msgFetchFailed
	}
	c.settle(func(s *State) {
		s.Rate = 0
		s.LastUpdated = time.Time{}
		s.Error = reason
	})
	logger.Errorf("fetch failed and no cached rate: %v", cause)
	c.metrics.RefreshOutcome(metrics.OutcomeFailure)
}

// settle applies the outcome and ends the attempt in one step.
func (c *Cache) settle(apply func(*State)) {
	c.mu.Lock()
	apply(&c.state)
	c.state.IsLoading = false
	c.state.Phase = Settled
	c.inFlight = false
	snapshot := c.state
	c.mu.Unlock()
	c.metrics.SetRate(snapshot.Rate, lastSuccess(snapshot))
}

func lastSuccess(s State) time.Time {
	if s.Error != "" {
		return time.Time{}
	}
	return s.LastUpdated
}

type cachedRate struct {
	rate      float64
	timestamp time.Time
}

// loadCached treats every storage or parse failure as a miss.
func (c *Cache) loadCached(ctx context.Context) (cachedRate, bool) {
	if c.store == nil {
		return cachedRate{}, false
	}
	rawRate, okRate, err := c.store.Get(ctx, CacheKey)
	if err != nil {
		c.storageFailed("get", errors.Annotatef(err, "load %s", CacheKey))
		return cachedRate{}, false
	}
	rawTS, okTS, err := c.store.Get(ctx, CacheTimestampKey)
	if err != nil {
		c.storageFailed("get", errors.Annotatef(err, "load %s", CacheTimestampKey))
		return cachedRate{}, false
	}
	if !okRate || !okTS || rawRate == "" || rawTS == "" {
		return cachedRate{}, false
	}
	rate, err := strconv.ParseFloat(rawRate, 64)
	if err != nil || !validRate(rate) {
		logger.Warningf("ignoring cached rate %q", rawRate)
		return cachedRate{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, rawTS)
	if err != nil {
		logger.Warningf("ignoring cached rate timestamp %q: %v", rawTS, err)
		return cachedRate{}, false
	}
	return cachedRate{rate: rate, timestamp: ts}, true
}

// saveCached is best-effort; failures are logged and dropped.
func (c *Cache) saveCached(ctx context.Context, rate float64, ts time.Time) {
	if c.store == nil {
		return
	}
	if err := c.store.Set(ctx, CacheKey, strconv.FormatFloat(rate, 'f', -1, 64)); err != nil {
		c.storageFailed("set", errors.Annotatef(err, "save %s", CacheKey))
		return
	}
	if err := c.store.Set(ctx, CacheTimestampKey, ts.UTC().Format(timestampLayout)); err != nil {
		c.storageFailed("set", errors.Annotatef(err, "save %s", CacheTimestampKey))
	}
}

func (c *Cache) storageFailed(op string, err error) {
	logger.Warningf("%v", err)
	c.metrics.StorageError(op)
}

func validRate(r float64) bool {
	return !math.IsNaN(r) && !math.IsInf(r, 0) && r > 0
}
