package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/libelia/libelia/internal/model"
)

// GradeFunc produces the result of one asynchronous job.
type GradeFunc func(ctx context.Context) (*model.GradingResponse, error)

// Runner executes jobs in the background and records their progress in a Store.
type Runner struct {
	store   Store
	timeout time.Duration
}

// NewRunner creates a Runner. timeout bounds each job; zero means no bound.
func NewRunner(store Store, timeout time.Duration) *Runner {
	return &Runner{store: store, timeout: timeout}
}

// Store returns the underlying job store.
func (r *Runner) Store() Store {
	return r.store
}

// Submit creates a pending job and runs fn in a new goroutine. The job keeps
// running after ctx is canceled; only ctx values are inherited.
func (r *Runner) Submit(ctx context.Context, fn GradeFunc) (*model.Job, error) {
	job, err := r.store.Create(ctx)
	if err != nil {
		return nil, err
	}
	go r.run(context.WithoutCancel(ctx), job.ID, fn)
	return job, nil
}

func (r *Runner) run(ctx context.Context, id string, fn GradeFunc) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	log := slog.With("job", id)

	if _, err := r.store.Update(ctx, id, Update{Status: model.JobProcessing}); err != nil {
		log.Error("mark job processing", "error", err)
		return
	}

	res, err := safeRun(ctx, fn)
	if err == nil && res != nil && !res.Success {
		err = errors.New("grading failed")
	}
	if err != nil {
		log.Warn("job failed", "error", err)
		if _, uerr := r.store.Update(context.WithoutCancel(ctx), id, Update{Status: model.JobFailed, Error: err.Error()}); uerr != nil {
			log.Error("mark job failed", "error", uerr)
		}
		return
	}
	if _, err := r.store.Update(context.WithoutCancel(ctx), id, Update{Status: model.JobCompleted, Result: res}); err != nil {
		log.Error("mark job completed", "error", err)
		return
	}
	log.Info("job completed")
}

func safeRun(ctx context.Context, fn GradeFunc) (res *model.GradingResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}
