package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/ldi/taskpilot/pkg/models"
)

// CreateProject inserts a new project. If p.ID is empty, a new UUID is
// generated.
func (db *DB) CreateProject(ctx context.Context, p *models.Project) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	query := `
		INSERT INTO projects (id, name, description)
		VALUES (?, ?, ?)
		RETURNING created_at
	`
	err := db.QueryRowContext(ctx, query, p.ID, p.Name, p.Description).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}

	db.triggerChange(ctx, "")
	return nil
}

// GetProject retrieves a project by its ID, including derived progress.
// Returns nil if no project exists.
func (db *DB) GetProject(ctx context.Context, id string) (*models.Project, error) {
	query := projectSelect + ` WHERE p.id = ? GROUP BY p.id`
	p := &models.Project{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.Name, &p.Description, &p.CreatedAt, &p.TotalTasks, &p.CompletedTasks,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	p.Progress = progress(p.CompletedTasks, p.TotalTasks)
	return p, nil
}

// ListProjects returns all projects with their task counts and progress,
// oldest first.
func (db *DB) ListProjects(ctx context.Context) ([]*models.Project, error) {
	query := projectSelect + ` GROUP BY p.id ORDER BY p.created_at ASC`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []*models.Project
	for rows.Next() {
		p := &models.Project{}
		err := rows.Scan(
			&p.ID, &p.Name, &p.Description, &p.CreatedAt, &p.TotalTasks, &p.CompletedTasks,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		p.Progress = progress(p.CompletedTasks, p.TotalTasks)
		projects = append(projects, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return projects, nil
}

// DeleteProject deletes a project by its ID. Its tasks go with it via the
// schema's ON DELETE CASCADE.
func (db *DB) DeleteProject(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("project not found: %s", id)
	}

	db.triggerChange(ctx, "")
	return nil
}

const projectSelect = `
	SELECT p.id, p.name, p.description, p.created_at,
	       COUNT(t.id) AS total_tasks,
	       COALESCE(SUM(CASE WHEN t.status = 'completed' THEN 1 ELSE 0 END), 0) AS completed_tasks
	FROM projects p
	LEFT JOIN tasks t ON t.project_id = p.id
`

// progress rounds 100*completed/total to the nearest integer, and is 0 for
// an empty project rather than a division error.
func progress(completed, total int) int {
	if total == 0 {
		return 0
	}
	return (100*completed + total/2) / total
}
