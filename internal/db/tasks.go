package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/ldi/taskpilot/pkg/models"
)

const taskColumns = `id, project_id, title, description, status, created_at`

// CreateTask inserts a new task into the database.
// If t.ID is empty, a new UUID is generated. A missing or bogus project_id
// fails the foreign key constraint; referential integrity lives in the
// store, not here.
func (db *DB) CreateTask(ctx context.Context, t *models.Task) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Status == "" {
		t.Status = models.TaskStatusPending
	}

	query := `
		INSERT INTO tasks (id, project_id, title, description, status)
		VALUES (?, ?, ?, ?, ?)
		RETURNING created_at
	`
	err := db.QueryRowContext(ctx, query,
		t.ID, t.ProjectID, t.Title, t.Description, t.Status,
	).Scan(&t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	db.triggerChange(ctx, t.ProjectID)
	return nil
}

// GetTask retrieves a task by its ID. Returns nil if no task exists.
func (db *DB) GetTask(ctx context.Context, id string) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`
	t := &models.Task{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.Status, &t.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	return t, nil
}

// ListTasks returns tasks ordered by creation time, optionally scoped to a
// project.
func (db *DB) ListTasks(ctx context.Context, projectID *string) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE 1=1`
	args := []interface{}{}

	if projectID != nil {
		query += " AND project_id = ?"
		args = append(args, *projectID)
	}

	query += " ORDER BY created_at ASC, rowid ASC"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		t := &models.Task{}
		err := rows.Scan(
			&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.Status, &t.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return tasks, nil
}

// TaskUpdate carriers the optional fields of a partial task update. Nil
// fields are left untouched.
type TaskUpdate struct {
	Title       *string
	Description *string
	Status      *models.TaskStatus
}

// UpdateTask applies a partial update and returns the updated task.
// Returns nil if no task exists. An invalid status is rejected by the
// schema's CHECK constraint and surfaces as a store error.
func (db *DB) UpdateTask(ctx context.Context, id string, upd TaskUpdate) (*models.Task, error) {
	query := `UPDATE tasks SET `
	args := []interface{}{}

	if upd.Title != nil {
		query += "title = ?, "
		args = append(args, *upd.Title)
	}
	if upd.Description != nil {
		query += "description = ?, "
		args = append(args, *upd.Description)
	}
	if upd.Status != nil {
		query += "status = ?, "
		args = append(args, *upd.Status)
	}

	// No fields to change; hand back current state.
	if len(args) == 0 {
		return db.GetTask(ctx, id)
	}

	query = query[:len(query)-2] + ` WHERE id = ? RETURNING ` + taskColumns
	args = append(args, id)

	t := &models.Task{}
	err := db.QueryRowContext(ctx, query, args...).Scan(
		&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.Status, &t.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	db.triggerChange(ctx, t.ProjectID)
	return t, nil
}

// DeleteTask deletes a task by its ID.
func (db *DB) DeleteTask(ctx context.Context, id string) error {
	var projectID string
	err := db.QueryRowContext(ctx,
		`DELETE FROM tasks WHERE id = ? RETURNING project_id`, id,
	).Scan(&projectID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("task not found: %s", id)
	}
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	db.triggerChange(ctx, projectID)
	return nil
}

// QueueTask marks a task as awaiting automated execution. Only pending and
// failed tasks can be queued; queueing a task that is already queued (or
// completed) is a no-op that returns current state, so repeated execute
// calls never compound. Returns nil if no task exists.
func (db *DB) QueueTask(ctx context.Context, id string) (*models.Task, error) {
	query := `
		UPDATE tasks
		SET status = 'queued'
		WHERE id = ? AND status IN ('pending', 'failed')
		RETURNING ` + taskColumns

	t := &models.Task{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.Status, &t.CreatedAt,
	)
	if err == sql.ErrNoRows {
		// Already queued, completed, or missing. GetTask disambiguates.
		return db.GetTask(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to queue task: %w", err)
	}

	db.triggerChange(ctx, t.ProjectID)
	return t, nil
}

// NextQueuedTask returns the oldest queued task without claiming it, or nil
// when the queue is empty. Strict FIFO by creation time is the fairness
// policy. The status flip happens later in ResolveExecution: a crash
// between scan and resolve leaves the task queued for the next scan
// (at-least-once, single poller instance assumed).
func (db *DB) NextQueuedTask(ctx context.Context) (*models.Task, error) {
	query := `
		SELECT ` + taskColumns + `
		FROM tasks
		WHERE status = 'queued'
		ORDER BY created_at ASC, rowid ASC
		LIMIT 1
	`
	t := &models.Task{}
	err := db.QueryRowContext(ctx, query).Scan(
		&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.Status, &t.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan queue: %w", err)
	}

	return t, nil
}

// ResolveExecution records an executor outcome: the description becomes the
// executor output (or failure text) and the queue state is cleared in the
// same statement. Failures park the task in 'failed' rather than leaving it
// queued, so a permanently broken task cannot starve the FIFO. Returns nil
// if the task vanished mid-execution.
func (db *DB) ResolveExecution(ctx context.Context, id, description string, failed bool) (*models.Task, error) {
	query := `
		UPDATE tasks
		SET description = ?,
		    status = CASE
		        WHEN ? THEN 'failed'
		        WHEN status = 'queued' THEN 'pending'
		        ELSE status
		    END
		WHERE id = ?
		RETURNING ` + taskColumns

	t := &models.Task{}
	err := db.QueryRowContext(ctx, query, description, failed, id).Scan(
		&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.Status, &t.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve execution: %w", err)
	}

	db.triggerChange(ctx, t.ProjectID)
	return t, nil
}
