package refresh

import (
	"context"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/robfig/cron/v3"
)

var logger = loggo.GetLogger("goaltracker.refresh")

// Refresher is the exchange rate cache as seen by the worker.
type Refresher interface {
	Start(ctx context.Context)
	Refresh(ctx context.Context)
}

// Worker runs every refresh on one goroutine. Triggers from the schedule and
// from callers share a queue of one: a trigger that arrives while another is
// pending is dropped.
type Worker struct {
	refresher Refresher
	queue     chan struct{}
	schedule  string
	cron      *cron.Cron
	done      chan struct{}
}

type cronLogger struct{}

func (cronLogger) Printf(format string, args ...interface{}) { logger.Infof(format, args...) }

// NewWorker returns a worker; an empty schedule disables periodic refreshes.
func NewWorker(r Refresher, schedule string) *Worker {
	return &Worker{
		refresher: r,
		queue:     make(chan struct{}, 1),
		schedule:  schedule,
		cron:      cron.New(cron.WithChain(cron.Recover(cron.PrintfLogger(cronLogger{})))),
		done:      make(chan struct{}),
	}
}

// Start runs the first activation of the refresher and then serves
// triggers until ctx is done.
func (w *Worker) Start(ctx context.Context) error {
	if w.schedule != "" {
		if _, err := w.cron.AddFunc(w.schedule, func() { w.Trigger() }); err != nil {
			return errors.Annotatef(err, "refresh schedule %q", w.schedule)
		}
		w.cron.Start()
		logger.Infof("scheduled rate refresh %q", w.schedule)
	}

	go func() {
		defer close(w.done)
		w.refresher.Start(ctx)
		for {
			select {
			case <-ctx.Done():
				<-w.cron.Stop().Done()
				return
			case <-w.queue:
				w.refresher.Refresh(ctx)
			}
		}
	}()
	return nil
}

// Trigger queues a refresh. It reports false when one is already queued.
func (w *Worker) Trigger() bool {
	select {
	case w.queue <- struct{}{}:
		return true
	default:
		logger.Debugf("refresh already queued")
		return false
	}
}

// Done is closed once the worker has stopped.
func (w *Worker) Done() <-chan struct{} { return w.done }
