package classifier

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rewired-gh/unrestwatch/internal/logger"
)

// ErrTrainingInProgress is returned when a second training job is started.
var ErrTrainingInProgress = errors.New("training already in progress")

// TrainState is the lifecycle state of a Trainer.
type TrainState string

const (
	TrainIdle     TrainState = "idle"
	TrainRunning  TrainState = "training"
	TrainReady    TrainState = "ready"
	TrainFailed   TrainState = "failed"
	TrainCanceled TrainState = "canceled"
)

// TrainStatus describes the last or current training job.
type TrainStatus struct {
	State      TrainState `json:"state"`
	Records    int        `json:"records,omitempty"`
	StartedAt  time.Time  `json:"started_at,omitempty"`
	FinishedAt time.Time  `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// CompletionFunc is called after a training job with the job's final status
// and outcome.
type CompletionFunc func(status TrainStatus, err error, elapsed time.Duration)

// Trainer runs Model training as a cancelable background job and answers
// predictions with ErrNotReady while a job runs.
type Trainer struct {
	model      *Model
	onComplete CompletionFunc

	mu     sync.Mutex
	status TrainStatus
	cancel context.CancelFunc
	done   chan struct{}
}

// NewTrainer wraps model. A model that is already trained starts out ready.
func NewTrainer(model *Model, onComplete CompletionFunc) *Trainer {
	state := TrainIdle
	if model.Trained() {
		state = TrainReady
	}
	return &Trainer{model: model, onComplete: onComplete, status: TrainStatus{State: state}}
}

// Model returns the wrapped model.
func (t *Trainer) Model() *Model {
	return t.model
}

// Start launches training in the background. The job is bound to ctx and
// to Cancel.
func (t *Trainer) Start(ctx context.Context, X [][]float64, y []string, featureNames []string) error {
	return t.StartWith(ctx, X, y, featureNames, nil)
}

// StartWith is Start with a completion bound to this job only. It runs after
// the trainer-wide completion, before Wait returns.
func (t *Trainer) StartWith(ctx context.Context, X [][]float64, y []string, featureNames []string, done CompletionFunc) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.State == TrainRunning {
		return ErrTrainingInProgress
	}

	jobCtx, cancel := context.WithCancel(ctx)
	finished := make(chan struct{})
	t.cancel = cancel
	t.done = finished
	t.status = TrainStatus{State: TrainRunning, Records: len(X), StartedAt: time.Now()}

	go func() {
		defer close(finished)
		defer cancel()
		start := time.Now()
		err := t.model.Train(jobCtx, X, y, featureNames)
		elapsed := time.Since(start)

		t.mu.Lock()
		t.status.FinishedAt = time.Now()
		switch {
		case err == nil:
			t.status.State = TrainReady
		case errors.Is(err, context.Canceled):
			t.status.State = TrainCanceled
			t.status.Error = err.Error()
		default:
			t.status.State = TrainFailed
			t.status.Error = err.Error()
		}
		final := t.status
		t.mu.Unlock()

		if err != nil {
			logger.Error("Training failed: %v", err)
		}
		if t.onComplete != nil {
			t.onComplete(final, err, elapsed)
		}
		if done != nil {
			done(final, err, elapsed)
		}
	}()
	return nil
}

// Status returns the current job status.
func (t *Trainer) Status() TrainStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Cancel stops the running job, if any.
func (t *Trainer) Cancel() {
	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the running job, if any, has finished.
func (t *Trainer) Wait() {
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Predict forwards to the model unless training is in progress.
func (t *Trainer) Predict(X [][]float64) ([]string, [][]float64, error) {
	if t.Status().State == TrainRunning {
		return nil, nil, ErrNotReady
	}
	return t.model.Predict(X)
}
