// Package offload moves expensive operations off the calling goroutine.
// Offloading never changes results: a caller that cannot get a reply in
// time runs the same operation itself.
package offload

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wudi/pdfedit/observability"
)

// DefaultTimeout bounds how long Await waits for a reply.
const DefaultTimeout = 30 * time.Second

// Kind names an operation a handler is registered for.
type Kind string

const (
	KindAnalyze  Kind = "analyze"
	KindSearch   Kind = "search"
	KindCompress Kind = "compress"
)

var (
	ErrClosed    = errors.New("offload: closed")
	ErrNoHandler = errors.New("offload: no handler for kind")
	ErrQueueFull = errors.New("offload: queue full")
)

type Task struct {
	ID      string
	Kind    Kind
	Payload any
}

// Reply is the single answer to a Task. OK is false exactly when Err is
// set.
type Reply struct {
	TaskID  string
	OK      bool
	Result  any
	Err     error
	Elapsed time.Duration
	// Fallback reports that Await ran the operation on the caller.
	Fallback bool
}

// Handler performs one kind of task.
type Handler func(ctx context.Context, payload any) (any, error)

// Offloader accepts tasks and eventually sends exactly one Reply on the
// returned channel. A submitted task cannot be cancelled.
type Offloader interface {
	Submit(task Task) (<-chan Reply, error)
}

// Fallback runs a task's operation on the calling goroutine.
type Fallback func(ctx context.Context) (any, error)

// Await submits task and waits up to timeout for its reply. When the task
// cannot be submitted or the timeout passes, fallback runs synchronously
// instead and its outcome is returned with Fallback set. A non-positive
// timeout means DefaultTimeout. Errors reported by the worker are returned
// as they are.
func Await(ctx context.Context, off Offloader, task Task, timeout time.Duration, fallback Fallback, log observability.Logger) (Reply, error) {
	log = observability.OrNop(log)
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	start := time.Now()
	if off != nil {
		ch, err := off.Submit(task)
		if err == nil {
			timer := time.NewTimer(timeout)
			defer timer.Stop()
			select {
			case r := <-ch:
				return r, r.Err
			case <-ctx.Done():
				return Reply{TaskID: task.ID, Err: ctx.Err()}, ctx.Err()
			case <-timer.C:
				log.Warn("offloaded task timed out, running inline",
					observability.String("task", task.ID),
					observability.String("kind", string(task.Kind)),
					observability.Duration("timeout", timeout))
			}
		} else {
			log.Debug("offload unavailable, running inline",
				observability.String("task", task.ID),
				observability.Error("error", err))
		}
	}
	if fallback == nil {
		err := fmt.Errorf("offload: task %s: no fallback", task.ID)
		return Reply{TaskID: task.ID, Err: err}, err
	}
	res, err := fallback(ctx)
	r := Reply{TaskID: task.ID, OK: err == nil, Result: res, Err: err, Elapsed: time.Since(start), Fallback: true}
	return r, err
}

// run executes h with panics turned into errors.
func run(ctx context.Context, h Handler, t Task) (r Reply) {
	start := time.Now()
	r.TaskID = t.ID
	defer func() {
		if p := recover(); p != nil {
			r.OK, r.Result, r.Err = false, nil, fmt.Errorf("offload: task %s panicked: %v", t.ID, p)
		}
		r.Elapsed = time.Since(start)
	}()
	res, err := h(ctx, t.Payload)
	r.OK, r.Result, r.Err = err == nil, res, err
	return r
}

// Inline runs tasks on the submitting goroutine. Submit returns once the
// reply is buffered.
type Inline struct {
	handlers map[Kind]Handler
}

func NewInline() *Inline { return &Inline{handlers: map[Kind]Handler{}} }

func (in *Inline) Handle(kind Kind, h Handler) { in.handlers[kind] = h }

func (in *Inline) Submit(t Task) (<-chan Reply, error) {
	h, ok := in.handlers[t.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, t.Kind)
	}
	ch := make(chan Reply, 1)
	ch <- run(context.Background(), h, t)
	return ch, nil
}
