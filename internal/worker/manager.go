package worker

import (
	"context"
	"sync"
)

// Manager owns the single worker instance. The poller must never run more
// than once per process, so Start is guarded against concurrent and
// repeated invocation; the API layer toggles it through this object rather
// than holding a process-wide handle.
type Manager struct {
	mu     sync.Mutex
	worker *Worker
	cancel context.CancelFunc
	done   chan struct{}
}

func NewManager(w *Worker) *Manager {
	return &Manager{worker: w}
}

// Start launches the poll loop in the background. Returns false if it is
// already running.
func (m *Manager) Start(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		return false
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done

	go func() {
		defer close(done)
		m.worker.Run(runCtx)
	}()
	return true
}

// Stop cancels the poll loop and waits for it to exit. Returns false if it
// was not running. An in-flight agent invocation is interrupted; its task
// stays queued and is re-selected on the next start.
func (m *Manager) Stop() bool {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.cancel = nil
	m.done = nil
	m.mu.Unlock()

	if cancel == nil {
		return false
	}
	cancel()
	<-done
	return true
}

// Active reports whether the poll loop is running.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}
