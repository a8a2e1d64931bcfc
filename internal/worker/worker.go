// Package worker runs the periodic maintenance jobs: usage reconciliation, contract refills and plan expiry.
package worker

import (
	"context"
	"time"

	"github.com/cyverse/compute-qms/logging"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var log = logging.GetLogger().WithFields(logrus.Fields{"package": "worker"})

// Job is a unit of periodic work.
type Job struct {
	// Name identifies the job in log messages.
	Name string

	// Interval is the time between runs.
	Interval time.Duration

	// Run performs the work. Errors are logged; the job keeps running on schedule.
	Run func(ctx context.Context) error
}

// Scheduler runs jobs on fixed intervals until its context is cancelled.
type Scheduler struct {
	jobs []Job
}

// New returns an empty scheduler.
func New() *Scheduler {
	return &Scheduler{}
}

// Add registers a job. Jobs must be added before Run is called.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" {
		return errors.New("a job name is required")
	}
	if job.Interval <= 0 {
		return errors.Errorf("job %s: the interval must be positive", job.Name)
	}
	if job.Run == nil {
		return errors.Errorf("job %s: no run function", job.Name)
	}
	s.jobs = append(s.jobs, job)
	return nil
}

// Len returns the number of registered jobs.
func (s *Scheduler) Len() int {
	return len(s.jobs)
}

// runOnce runs a job a single time, recovering from panics so that one bad run can't stop the scheduler.
func runOnce(ctx context.Context, job Job) {
	log := log.WithFields(logrus.Fields{"context": "running job", "job": job.Name})

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("job panicked: %v", r)
		}
	}()

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Errorf("job failed: %s", err)
		return
	}
	log.Debugf("job finished in %s", time.Since(start))
}

// loop runs a single job immediately and then once per interval.
func loop(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	runOnce(ctx, job)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce(ctx, job)
		}
	}
}

// Run runs every registered job until ctx is cancelled. Each job runs in its own goroutine, so a slow job never
// delays the others. Runs of the same job never overlap.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, job := range s.jobs {
		log.Infof("scheduling %s every %s", job.Name, job.Interval)
		g.Go(func() error {
			loop(ctx, job)
			return nil
		})
	}

	return g.Wait()
}
