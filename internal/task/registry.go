package task

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/toricodesthings/patent-analysis-service/internal/analysis"
)

// Registry is a concurrency-safe map of task id to task state.
// Entries are never removed.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]*Task
	now   func() time.Time
	newID func() string
}

func NewRegistry() *Registry {
	return &Registry{
		tasks: make(map[string]*Task),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Create registers a new pending task and returns its snapshot.
func (r *Registry) Create(filename, mimeType string) Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.newID()
	for {
		if _, exists := r.tasks[id]; !exists {
			break
		}
		id = r.newID()
	}

	now := r.now()
	t := &Task{
		ID:        id,
		Status:    StatusPending,
		Progress:  0,
		Message:   MsgPending,
		Filename:  filename,
		MIMEType:  mimeType,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.tasks[id] = t
	return *t
}

// Get returns a copy of the task so callers never observe later mutations.
func (r *Registry) Get(id string) (Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	return *t, nil
}

func (r *Registry) Start(id string) error {
	return r.update(id, func(t *Task) error {
		if t.Status != StatusPending {
			return transitionErr(t.Status, StatusProcessing)
		}
		t.Status = StatusProcessing
		t.Progress = ProgressStart
		t.Message = MsgAnalyzing
		return nil
	})
}

// Progress updates the checkpoint of a processing task.
func (r *Registry) Progress(id string, pct int, message string) error {
	return r.update(id, func(t *Task) error {
		if t.Status != StatusProcessing {
			return fmt.Errorf("%w: progress update on %s task", ErrInvalidTransition, t.Status)
		}
		if pct < t.Progress {
			pct = t.Progress
		}
		if pct > 100 {
			pct = 100
		}
		t.Progress = pct
		t.Message = message
		return nil
	})
}

func (r *Registry) Complete(id string, result analysis.Result) error {
	return r.update(id, func(t *Task) error {
		if t.Status != StatusProcessing {
			return transitionErr(t.Status, StatusCompleted)
		}
		res := result
		t.Status = StatusCompleted
		t.Progress = 100
		t.Message = MsgCompleted
		t.Result = &res
		return nil
	})
}

func (r *Registry) Fail(id string, cause error) error {
	return r.update(id, func(t *Task) error {
		if t.Status != StatusProcessing {
			return transitionErr(t.Status, StatusFailed)
		}
		msg := "unknown error"
		if cause != nil {
			msg = cause.Error()
		}
		t.Status = StatusFailed
		t.Message = fmt.Sprintf(msgFailedFmt, msg)
		t.Error = msg
		t.Result = nil
		return nil
	})
}

// Counts returns the number of tasks per status.
func (r *Registry) Counts() map[Status]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := map[Status]int{
		StatusPending:    0,
		StatusProcessing: 0,
		StatusCompleted:  0,
		StatusFailed:     0,
	}
	for _, t := range r.tasks {
		out[t.Status]++
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

func (r *Registry) update(id string, fn func(t *Task) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return ErrNotFound
	}
	if err := fn(t); err != nil {
		return err
	}
	t.UpdatedAt = r.now()
	return nil
}

func transitionErr(from, to Status) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
