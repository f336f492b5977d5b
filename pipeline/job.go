package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/wudi/docseal/content"
	"github.com/wudi/docseal/region"
)

// State is a Job's lifecycle state.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCanceled  State = "canceled"
)

// Status is a snapshot of a Job.
type Status struct {
	ID    string `json:"id"`
	State State  `json:"state"`
	// Message is a short description of the current stage or the failure.
	Message string `json:"message,omitempty"`
}

// Job is an extraction running in the background. Dropping a Job without
// waiting is safe; its goroutine ends when the extraction does.
type Job struct {
	id   string
	done chan struct{}

	mu     sync.Mutex
	state  State
	msg    string
	result Result
	err    error
}

// Start runs Extract in a new goroutine. Cancelling ctx stops the job.
func (p *Pipeline) Start(ctx context.Context, doc content.Document, sig, stamp *region.Region) *Job {
	j := &Job{
		id:    uuid.NewString(),
		done:  make(chan struct{}),
		state: StatePending,
	}
	go func() {
		defer close(j.done)
		j.set(StateRunning, "extracting leaves")
		res, err := p.Extract(ctx, doc, sig, stamp)
		j.finish(res, err)
	}()
	return j
}

// ID is a random UUID assigned at Start.
func (j *Job) ID() string { return j.id }

// Done is closed when the job finishes.
func (j *Job) Done() <-chan struct{} { return j.done }

// Status returns the current state.
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Status{ID: j.id, State: j.state, Message: j.msg}
}

// Wait blocks until the job finishes or ctx is done. A partial result is
// returned together with its region error.
func (j *Job) Wait(ctx context.Context) (Result, error) {
	select {
	case <-j.done:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result, j.err
}

func (j *Job) set(state State, msg string) {
	j.mu.Lock()
	j.state, j.msg = state, msg
	j.mu.Unlock()
}

func (j *Job) finish(res Result, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.result, j.err = res, err
	switch {
	case err == nil:
		j.state, j.msg = StateSucceeded, ""
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		j.state, j.msg = StateCanceled, err.Error()
	case res.RegionErr != nil:
		j.state, j.msg = StateFailed, "hashes extracted, regions unavailable: "+err.Error()
	default:
		j.state, j.msg = StateFailed, err.Error()
	}
}
