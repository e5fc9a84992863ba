// Package worker runs the work-queue poller: a single long-running loop
// that claims queued tasks oldest-first and feeds them to the external
// agent, one task in flight at a time.
package worker

import (
	"context"
	"log"
	"time"

	"github.com/ldi/taskpilot/internal/agent"
	"github.com/ldi/taskpilot/pkg/models"
)

const defaultInterval = 5 * time.Second

// Store defines the database operations required by the worker.
type Store interface {
	NextQueuedTask(ctx context.Context) (*models.Task, error)
	ResolveExecution(ctx context.Context, id, description string, failed bool) (*models.Task, error)
}

// Invoker executes a task through the external agent.
type Invoker interface {
	Run(ctx context.Context, task *models.Task) (string, error)
}

// Worker polls for queued tasks and executes them.
type Worker struct {
	store    Store
	invoker  Invoker
	interval time.Duration
}

func New(store Store, invoker Invoker, interval time.Duration) *Worker {
	if interval == 0 {
		interval = defaultInterval
	}
	return &Worker{
		store:    store,
		invoker:  invoker,
		interval: interval,
	}
}

// Run executes the poll loop until ctx is canceled. The loop has no other
// terminal state: scan errors are logged and treated as empty cycles, and
// the idle delay applies after every cycle, including ones that processed
// work, so the loop never tight-polls.
func (w *Worker) Run(ctx context.Context) error {
	log.Printf("[worker] started, polling every %s", w.interval)

	for {
		if err := w.processNext(ctx); err != nil {
			if ctx.Err() != nil {
				log.Printf("[worker] stopping: %v", ctx.Err())
				return ctx.Err()
			}
			log.Printf("[worker] cycle error: %v", err)
		}

		select {
		case <-ctx.Done():
			log.Printf("[worker] stopping: %v", ctx.Err())
			return ctx.Err()
		case <-time.After(w.interval):
		}
	}
}

// processNext runs one poll cycle: scan, invoke, resolve. The scan does not
// claim; the queue flag is cleared only as part of writing the outcome, so
// a crash mid-execution re-selects the task on the next scan.
func (w *Worker) processNext(ctx context.Context) error {
	task, err := w.store.NextQueuedTask(ctx)
	if err != nil {
		return err
	}
	if task == nil {
		return nil
	}

	log.Printf("[worker] executing task %s: %s", task.ID, task.Title)
	output, runErr := w.invoker.Run(ctx, task)

	// A shutdown mid-execution leaves the task queued on purpose: it will
	// be re-selected after restart rather than recorded as failed.
	if ctx.Err() != nil {
		return ctx.Err()
	}

	description, failed := agent.DescribeResult(output, runErr)
	if failed {
		log.Printf("[worker] task %s failed: %v", task.ID, runErr)
	} else {
		log.Printf("[worker] task %s done, output %d bytes", task.ID, len(output))
	}

	// Resolving clears the queue flag and fires the store's change hook,
	// which pushes both the project's task scope and the project list.
	if _, err := w.store.ResolveExecution(ctx, task.ID, description, failed); err != nil {
		return err
	}
	return nil
}
