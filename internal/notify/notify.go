// Package notify recomputes aggregate state after a mutation and pushes it
// to the live-view channel. Delivery is notify-and-forget: read failures
// are logged, never surfaced to the mutation's caller, and there is no
// retry or acknowledgment.
package notify

import (
	"context"
	"log"

	"github.com/ldi/taskpilot/internal/db"
	"github.com/ldi/taskpilot/pkg/models"
)

// Sender is the fan-out half of the live-view channel.
type Sender interface {
	Broadcast(v any)
}

type Notifier struct {
	db     *db.DB
	sender Sender
}

func New(database *db.DB, sender Sender) *Notifier {
	return &Notifier{db: database, sender: sender}
}

// Changed is wired into the store's change hook: it runs after every
// successful mutation. projectID scopes task mutations; project-level
// mutations pass "". There is no diffing and no cache — every push
// re-reads full current state, trading an extra read per mutation for
// never drifting from the store.
func (n *Notifier) Changed(ctx context.Context, projectID string) {
	if projectID != "" {
		n.PushTasks(ctx, projectID)
	}
	// Task mutations also move project progress, so the project list is
	// refreshed on every change.
	n.PushProjects(ctx)
}

// PushProjects broadcasts the current project list with derived progress.
func (n *Notifier) PushProjects(ctx context.Context) {
	projects, err := n.db.ListProjects(ctx)
	if err != nil {
		log.Printf("[notify] failed to fetch projects for broadcast: %v", err)
		return
	}
	n.sender.Broadcast(&models.Event{
		Type:     models.EventUpdateProjects,
		Projects: projects,
	})
}

// PushTasks broadcasts the current task list of one project.
func (n *Notifier) PushTasks(ctx context.Context, projectID string) {
	tasks, err := n.db.ListTasks(ctx, &projectID)
	if err != nil {
		log.Printf("[notify] failed to fetch tasks for broadcast: %v", err)
		return
	}
	n.sender.Broadcast(&models.Event{
		Type:      models.EventUpdateTasks,
		Tasks:     tasks,
		ProjectID: projectID,
	})
}

// ProjectsSnapshot returns the event a freshly connected observer receives
// as its initial state.
func (n *Notifier) ProjectsSnapshot(ctx context.Context) (*models.Event, error) {
	projects, err := n.db.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	return &models.Event{
		Type:     models.EventUpdateProjects,
		Projects: projects,
	}, nil
}
