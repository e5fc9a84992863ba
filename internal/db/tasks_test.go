package db

import (
	"context"
	"strings"
	"testing"

	"github.com/ldi/taskpilot/pkg/models"
)

func seedProject(t *testing.T, db *DB, name string) *models.Project {
	t.Helper()
	p := &models.Project{Name: name}
	if err := db.CreateProject(context.Background(), p); err != nil {
		t.Fatalf("Failed to create project: %v", err)
	}
	return p
}

func TestTaskCRUD(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	p := seedProject(t, db, "Tasks")

	task := &models.Task{
		ProjectID:   p.ID,
		Title:       "Write spec",
		Description: "Initial notes",
	}
	if err := db.CreateTask(ctx, task); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}

	if len(task.ID) != 36 || !strings.Contains(task.ID, "-") {
		t.Errorf("Expected UUID-format ID, got %q", task.ID)
	}
	if task.Status != models.TaskStatusPending {
		t.Errorf("Expected default status pending, got %s", task.Status)
	}
	if task.CreatedAt.IsZero() {
		t.Error("Expected CreatedAt to be set")
	}

	fetched, err := db.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("Failed to get task: %v", err)
	}
	if fetched == nil {
		t.Fatal("Task not found")
	}
	if fetched.Title != "Write spec" || fetched.ProjectID != p.ID {
		t.Errorf("Unexpected task: %+v", fetched)
	}

	// Partial update: status only, title untouched
	status := models.TaskStatusCompleted
	updated, err := db.UpdateTask(ctx, task.ID, TaskUpdate{Status: &status})
	if err != nil {
		t.Fatalf("Failed to update task: %v", err)
	}
	if updated.Status != models.TaskStatusCompleted {
		t.Errorf("Expected status completed, got %s", updated.Status)
	}
	if updated.Title != "Write spec" {
		t.Errorf("Expected title untouched, got %s", updated.Title)
	}

	// Partial update: title only, status untouched
	title := "Write the spec"
	updated, err = db.UpdateTask(ctx, task.ID, TaskUpdate{Title: &title})
	if err != nil {
		t.Fatalf("Failed to update task: %v", err)
	}
	if updated.Title != "Write the spec" || updated.Status != models.TaskStatusCompleted {
		t.Errorf("Unexpected task after title update: %+v", updated)
	}

	if err := db.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("Failed to delete task: %v", err)
	}

	fetched, err = db.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("Failed to get task: %v", err)
	}
	if fetched != nil {
		t.Error("Expected task to be gone after delete")
	}
}

func TestUpdateTask_NoFields(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	p := seedProject(t, db, "NoFields")

	task := &models.Task{ProjectID: p.ID, Title: "unchanged"}
	if err := db.CreateTask(ctx, task); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}

	updated, err := db.UpdateTask(ctx, task.ID, TaskUpdate{})
	if err != nil {
		t.Fatalf("Empty update failed: %v", err)
	}
	if updated == nil || updated.Title != "unchanged" {
		t.Errorf("Expected current state back, got %+v", updated)
	}
}

func TestUpdateTask_InvalidStatus(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	p := seedProject(t, db, "Invalid")

	task := &models.Task{ProjectID: p.ID, Title: "t"}
	if err := db.CreateTask(ctx, task); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}

	bogus := models.TaskStatus("doing")
	_, err := db.UpdateTask(ctx, task.ID, TaskUpdate{Status: &bogus})
	if err == nil {
		t.Fatal("Expected CHECK constraint error for invalid status")
	}
}

func TestCreateTask_MissingProject(t *testing.T) {
	db := openTestDB(t)

	task := &models.Task{ProjectID: "no-such-project", Title: "orphan"}
	err := db.CreateTask(context.Background(), task)
	if err == nil {
		t.Fatal("Expected foreign key error for missing project")
	}
}

func TestListTasks_ScopedByProject(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	p1 := seedProject(t, db, "One")
	p2 := seedProject(t, db, "Two")

	for _, pid := range []string{p1.ID, p1.ID, p2.ID} {
		if err := db.CreateTask(ctx, &models.Task{ProjectID: pid, Title: "t"}); err != nil {
			t.Fatalf("Failed to create task: %v", err)
		}
	}

	all, err := db.ListTasks(ctx, nil)
	if err != nil {
		t.Fatalf("Failed to list all tasks: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Expected 3 tasks globally, got %d", len(all))
	}

	scoped, err := db.ListTasks(ctx, &p1.ID)
	if err != nil {
		t.Fatalf("Failed to list scoped tasks: %v", err)
	}
	if len(scoped) != 2 {
		t.Errorf("Expected 2 tasks in project one, got %d", len(scoped))
	}
}

func TestQueueTask_Idempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	p := seedProject(t, db, "Queue")

	task := &models.Task{ProjectID: p.ID, Title: "run me"}
	if err := db.CreateTask(ctx, task); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}

	queued, err := db.QueueTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("Failed to queue task: %v", err)
	}
	if queued.Status != models.TaskStatusQueued {
		t.Errorf("Expected status queued, got %s", queued.Status)
	}

	// Second call is a no-op returning current state.
	again, err := db.QueueTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("Second queue call failed: %v", err)
	}
	if again.Status != models.TaskStatusQueued {
		t.Errorf("Expected status still queued, got %s", again.Status)
	}
	if again.Title != "run me" {
		t.Errorf("Expected title unchanged, got %q", again.Title)
	}

	missing, err := db.QueueTask(ctx, "no-such-id")
	if err != nil {
		t.Fatalf("Queue of missing task errored: %v", err)
	}
	if missing != nil {
		t.Errorf("Expected nil for missing task, got %+v", missing)
	}
}

func TestQueueTask_CompletedStaysCompleted(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	p := seedProject(t, db, "Done")

	task := &models.Task{ProjectID: p.ID, Title: "t", Status: models.TaskStatusCompleted}
	if err := db.CreateTask(ctx, task); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}

	got, err := db.QueueTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("Failed to queue completed task: %v", err)
	}
	if got.Status != models.TaskStatusCompleted {
		t.Errorf("Expected completed task untouched, got status %s", got.Status)
	}
}

func TestQueueTask_FailedCanRequeue(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	p := seedProject(t, db, "Retry")

	task := &models.Task{ProjectID: p.ID, Title: "t", Status: models.TaskStatusFailed}
	if err := db.CreateTask(ctx, task); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}

	got, err := db.QueueTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("Failed to re-queue failed task: %v", err)
	}
	if got.Status != models.TaskStatusQueued {
		t.Errorf("Expected failed task re-queued, got status %s", got.Status)
	}
}

func TestNextQueuedTask_FIFO(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	p := seedProject(t, db, "FIFO")

	first := &models.Task{ProjectID: p.ID, Title: "first", Status: models.TaskStatusQueued}
	second := &models.Task{ProjectID: p.ID, Title: "second", Status: models.TaskStatusQueued}
	if err := db.CreateTask(ctx, first); err != nil {
		t.Fatalf("Failed to create first: %v", err)
	}
	if err := db.CreateTask(ctx, second); err != nil {
		t.Fatalf("Failed to create second: %v", err)
	}

	next, err := db.NextQueuedTask(ctx)
	if err != nil {
		t.Fatalf("Failed to scan queue: %v", err)
	}
	if next == nil || next.ID != first.ID {
		t.Fatalf("Expected oldest task first, got %+v", next)
	}

	// The scan must not claim: a second scan sees the same task.
	rescan, err := db.NextQueuedTask(ctx)
	if err != nil {
		t.Fatalf("Failed to rescan queue: %v", err)
	}
	if rescan == nil || rescan.ID != first.ID {
		t.Fatalf("Expected scan to leave task queued, got %+v", rescan)
	}

	if _, err := db.ResolveExecution(ctx, first.ID, "done", false); err != nil {
		t.Fatalf("Failed to resolve first: %v", err)
	}

	next, err = db.NextQueuedTask(ctx)
	if err != nil {
		t.Fatalf("Failed to scan queue: %v", err)
	}
	if next == nil || next.ID != second.ID {
		t.Fatalf("Expected second task after first resolved, got %+v", next)
	}

	if _, err := db.ResolveExecution(ctx, second.ID, "done", false); err != nil {
		t.Fatalf("Failed to resolve second: %v", err)
	}

	next, err = db.NextQueuedTask(ctx)
	if err != nil {
		t.Fatalf("Failed to scan queue: %v", err)
	}
	if next != nil {
		t.Errorf("Expected empty queue, got %+v", next)
	}
}

func TestResolveExecution(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	p := seedProject(t, db, "Resolve")

	task := &models.Task{ProjectID: p.ID, Title: "t", Status: models.TaskStatusQueued}
	if err := db.CreateTask(ctx, task); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}

	resolved, err := db.ResolveExecution(ctx, task.ID, "some output", false)
	if err != nil {
		t.Fatalf("Failed to resolve: %v", err)
	}
	if resolved.Status != models.TaskStatusPending {
		t.Errorf("Expected queue cleared to pending, got %s", resolved.Status)
	}
	if resolved.Description != "some output" {
		t.Errorf("Expected output persisted, got %q", resolved.Description)
	}
	if resolved.Title != "t" {
		t.Errorf("Expected title untouched, got %q", resolved.Title)
	}
}

func TestResolveExecution_Failure(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	p := seedProject(t, db, "Fail")

	task := &models.Task{ProjectID: p.ID, Title: "t", Status: models.TaskStatusQueued}
	if err := db.CreateTask(ctx, task); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}

	resolved, err := db.ResolveExecution(ctx, task.ID, "[Execution Failed] exit status 1", true)
	if err != nil {
		t.Fatalf("Failed to resolve: %v", err)
	}
	if resolved.Status != models.TaskStatusFailed {
		t.Errorf("Expected status failed, got %s", resolved.Status)
	}

	// Failed tasks leave the queue entirely; the FIFO cannot starve on them.
	next, err := db.NextQueuedTask(ctx)
	if err != nil {
		t.Fatalf("Failed to scan queue: %v", err)
	}
	if next != nil {
		t.Errorf("Expected failed task out of the queue, got %+v", next)
	}
}

func TestOnChange_Scope(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	var changes []string
	db.SetOnChange(func(ctx context.Context, projectID string) {
		changes = append(changes, projectID)
	})

	p := &models.Project{Name: "Hooked"}
	if err := db.CreateProject(ctx, p); err != nil {
		t.Fatalf("Failed to create project: %v", err)
	}

	task := &models.Task{ProjectID: p.ID, Title: "t"}
	if err := db.CreateTask(ctx, task); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}

	if err := db.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("Failed to delete task: %v", err)
	}

	want := []string{"", p.ID, p.ID}
	if len(changes) != len(want) {
		t.Fatalf("Expected %d change events, got %d (%v)", len(want), len(changes), changes)
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Errorf("Change %d: expected scope %q, got %q", i, want[i], changes[i])
		}
	}
}

func TestOnChange_NotFiredOnReadsOrNoOps(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	p := seedProject(t, db, "Quiet")
	task := &models.Task{ProjectID: p.ID, Title: "t", Status: models.TaskStatusQueued}
	if err := db.CreateTask(ctx, task); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}

	fired := 0
	db.SetOnChange(func(ctx context.Context, projectID string) { fired++ })

	if _, err := db.ListProjects(ctx); err != nil {
		t.Fatalf("Failed to list projects: %v", err)
	}
	if _, err := db.NextQueuedTask(ctx); err != nil {
		t.Fatalf("Failed to scan queue: %v", err)
	}
	// Queueing an already-queued task is a no-op and must not broadcast.
	if _, err := db.QueueTask(ctx, task.ID); err != nil {
		t.Fatalf("Failed to queue task: %v", err)
	}

	if fired != 0 {
		t.Errorf("Expected no change events for reads and no-ops, got %d", fired)
	}
}
