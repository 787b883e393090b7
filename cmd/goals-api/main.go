package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/juju/clock"
	"github.com/juju/loggo/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"example.com/goaltracker/internal/config"
	"example.com/goaltracker/internal/exchangerate"
	"example.com/goaltracker/internal/goalstore"
	"example.com/goaltracker/internal/metrics"
	"example.com/goaltracker/internal/ratesource"
	"example.com/goaltracker/internal/refresh"
	transport "example.com/goaltracker/internal/transport/http"
)

var logger = loggo.GetLogger("goaltracker.main")

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warningf(".env: %v", err)
	}
	cfg, err := config.Parse()
	if err != nil {
		logger.Criticalf("config: %v", err)
		os.Exit(1)
	}
	if err := loggo.ConfigureLoggers(cfg.LogLevel); err != nil {
		logger.Warningf("LOG_LEVEL %q: %v", cfg.LogLevel, err)
	}
	logger.Infof("config: backend=%s port=%s schedule=%q", cfg.KVBackend, cfg.Port, cfg.RateRefreshSchedule)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	kv, closeKV, err := openKV(ctx, cfg)
	if err != nil {
		logger.Criticalf("storage: %v", err)
		os.Exit(1)
	}
	defer closeKV()

	goals := goalstore.New(kv, m)
	goals.Load(ctx)

	source := ratesource.NewClient(cfg.ExchangeRateAPIURL, cfg.ExchangeRateAPIKey, cfg.RateFetchTimeout())
	if !source.Configured() {
		logger.Warningf("EXCHANGE_RATE_API_KEY not set; serving cached rates only")
	}
	rates := exchangerate.New(exchangerate.Config{
		Store:   kv,
		Source:  source,
		Clock:   clock.WallClock,
		Metrics: m,
	})

	worker := refresh.NewWorker(rates, cfg.RateRefreshSchedule)
	if err := worker.Start(ctx); err != nil {
		logger.Criticalf("refresh: %v", err)
		os.Exit(1)
	}

	deps := &transport.ServerDeps{
		Cfg:       cfg,
		Goals:     goals,
		Rates:     rates,
		Refresher: worker,
		KV:        kv,
		Gatherer:  reg,
		Now:       time.Now,
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           deps.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Infof("listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Criticalf("http server: %v", err)
			cancel()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	_ = srv.Shutdown(shutdownCtx)
	<-worker.Done()
	logger.Infof("stopped")
}
