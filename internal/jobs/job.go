package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"StockCast/internal/domain/models"
)

// Status is the lifecycle state of a training job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusTraining  Status = "training"
	StatusComplete  Status = "complete"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError || s == StatusCancelled
}

// AlreadyRunningError is returned when a job for the same model fingerprint
// is still in flight.
type AlreadyRunningError struct {
	Fingerprint string
	JobID       string
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("training already running for model %s (job %s)", e.Fingerprint, e.JobID)
}

// Result is the output of a finished job.
type Result struct {
	ModelData   models.ModelData
	Predictions []models.PredictionPoint
}

// Job tracks one training request from submission to a terminal state.
// Fields behind mu are written by the worker goroutine and read by API
// handlers; done is closed exactly once when the job reaches a terminal
// state.
type Job struct {
	ID          string
	Fingerprint string
	Symbol      string
	CreatedAt   time.Time

	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	status   Status
	progress int
	message  string
	err      error
	result   *Result
	doneAt   time.Time
}

func (j *Job) setProgress(status Status, percent int, message string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Terminal() {
		return
	}
	j.status = status
	if percent > j.progress {
		j.progress = percent
	}
	j.message = message
}

func (j *Job) finish(status Status, result *Result, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Terminal() {
		return
	}
	j.status = status
	j.result = result
	j.err = err
	j.doneAt = time.Now()
	if err != nil {
		j.message = err.Error()
	}
	if status == StatusComplete {
		j.progress = 100
	}
	close(j.done)
}

// Status returns the current lifecycle state.
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Result returns the job's output and error once it is terminal. Both are
// nil/zero while the job is still running.
func (j *Job) Result() (*Result, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result, j.err
}

// Done is closed when the job reaches a terminal state.
func (j *Job) Done() <-chan struct{} { return j.done }

// View snapshots the job for API responses.
func (j *Job) View() models.JobView {
	j.mu.Lock()
	defer j.mu.Unlock()
	return models.JobView{
		JobID:       j.ID,
		Fingerprint: j.Fingerprint,
		Symbol:      j.Symbol,
		Status:      string(j.status),
		Progress:    j.progress,
		Message:     j.message,
	}
}

func (j *Job) terminalSince() (time.Time, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.status.Terminal() {
		return time.Time{}, false
	}
	return j.doneAt, true
}
