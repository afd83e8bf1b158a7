// Package jobs tracks asynchronous gradings as single key-value records.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/libelia/libelia/internal/model"
)

var (
	ErrNotFound          = errors.New("job not found")
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// DefaultTTL is how long a job record is kept.
const DefaultTTL = 24 * time.Hour

// Store persists job records.
type Store interface {
	Create(ctx context.Context) (*model.Job, error)
	Get(ctx context.Context, id string) (*model.Job, error)
	Update(ctx context.Context, id string, u Update) (*model.Job, error)
}

// Update is a status change with its outcome.
type Update struct {
	Status model.JobStatus
	Result *model.GradingResponse
	Error  string
}

func newJob() *model.Job {
	now := time.Now().UTC()
	return &model.Job{
		ID:        uuid.NewString(),
		Status:    model.JobPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// apply validates the transition and applies u to job in place.
func apply(job *model.Job, u Update) error {
	if !job.Status.CanTransition(u.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, u.Status)
	}
	job.Status = u.Status
	job.Result = u.Result
	job.Error = u.Error
	job.UpdatedAt = time.Now().UTC()
	return nil
}
