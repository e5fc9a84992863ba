package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ldi/taskpilot/internal/db"
	"github.com/ldi/taskpilot/pkg/models"
)

// NewServer creates a new MCP server exposing the tracker to agent hosts.
func NewServer(database *db.DB) *server.MCPServer {
	s := server.NewMCPServer("taskpilot", "1.0.0")

	s.AddTool(mcp.NewTool("add_project",
		mcp.WithDescription("Create a new project"),
		mcp.WithString("title", mcp.Description("Title of the project"), mcp.Required()),
		mcp.WithString("description", mcp.Description("Project description")),
	), addProjectHandler(database))

	s.AddTool(mcp.NewTool("list_projects",
		mcp.WithDescription("List all projects with their progress"),
	), listProjectsHandler(database))

	s.AddTool(mcp.NewTool("add_task",
		mcp.WithDescription("Add a new task to a project"),
		mcp.WithString("project_id", mcp.Description("ID of the project the task belongs to"), mcp.Required()),
		mcp.WithString("title", mcp.Description("Title of the task"), mcp.Required()),
		mcp.WithString("description", mcp.Description("Task description")),
	), addTaskHandler(database))

	s.AddTool(mcp.NewTool("list_tasks",
		mcp.WithDescription("List tasks, optionally scoped to one project"),
		mcp.WithString("project_id", mcp.Description("Only list tasks for this project")),
	), listTasksHandler(database))

	s.AddTool(mcp.NewTool("update_task",
		mcp.WithDescription("Update a task's status (e.g., mark as completed) and/or description"),
		mcp.WithString("id", mcp.Description("ID of the task to update"), mcp.Required()),
		mcp.WithString("status", mcp.Description("New status (pending|queued|completed|failed)")),
		mcp.WithString("description", mcp.Description("New description")),
	), updateTaskHandler(database))

	s.AddTool(mcp.NewTool("delete_task",
		mcp.WithDescription("Delete a task by ID"),
		mcp.WithString("id", mcp.Description("ID of the task to delete"), mcp.Required()),
	), deleteTaskHandler(database))

	return s
}

// Serve starts the MCP server on stdio.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func addProjectHandler(database *db.DB) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		title := mcp.ParseString(request, "title", "")
		if title == "" {
			return mcp.NewToolResultError("title is required"), nil
		}

		p := &models.Project{
			Name:        title,
			Description: mcp.ParseString(request, "description", ""),
		}
		if err := database.CreateProject(ctx, p); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Project added: #%s - %s", p.ID, p.Name)), nil
	}
}

func listProjectsHandler(database *db.DB) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		projects, err := database.ListProjects(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if len(projects) == 0 {
			return mcp.NewToolResultText("No projects found."), nil
		}

		lines := make([]string, 0, len(projects))
		for _, p := range projects {
			lines = append(lines, fmt.Sprintf("#%s: %s (%d%%, %d/%d tasks)",
				p.ID, p.Name, p.Progress, p.CompletedTasks, p.TotalTasks))
		}
		return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
	}
}

func addTaskHandler(database *db.DB) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		projectID := mcp.ParseString(request, "project_id", "")
		title := mcp.ParseString(request, "title", "")
		if projectID == "" || title == "" {
			return mcp.NewToolResultError("project_id and title are required"), nil
		}

		t := &models.Task{
			ProjectID:   projectID,
			Title:       title,
			Description: mcp.ParseString(request, "description", ""),
		}
		if err := database.CreateTask(ctx, t); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Task added: #%s - %s", t.ID, t.Title)), nil
	}
}

func listTasksHandler(database *db.DB) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var projectID *string
		if id := mcp.ParseString(request, "project_id", ""); id != "" {
			projectID = &id
		}

		tasks, err := database.ListTasks(ctx, projectID)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if len(tasks) == 0 {
			return mcp.NewToolResultText("No tasks found."), nil
		}

		lines := make([]string, 0, len(tasks))
		for _, t := range tasks {
			check := " "
			if t.Status == models.TaskStatusCompleted {
				check = "X"
			}
			lines = append(lines, fmt.Sprintf("[%s] #%s: %s", check, t.ID, t.Title))
		}
		return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
	}
}

func updateTaskHandler(database *db.DB) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseString(request, "id", "")
		if id == "" {
			return mcp.NewToolResultError("id is required"), nil
		}

		var upd db.TaskUpdate
		args, _ := request.Params.Arguments.(map[string]any)
		if s, ok := args["status"].(string); ok {
			status := models.TaskStatus(s)
			upd.Status = &status
		}
		if desc, ok := args["description"].(string); ok {
			upd.Description = &desc
		}

		t, err := database.UpdateTask(ctx, id, upd)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if t == nil {
			return mcp.NewToolResultError(fmt.Sprintf("Task #%s not found", id)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Task #%s updated to %s", t.ID, t.Status)), nil
	}
}

func deleteTaskHandler(database *db.DB) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := mcp.ParseString(request, "id", "")
		if id == "" {
			return mcp.NewToolResultError("id is required"), nil
		}

		if err := database.DeleteTask(ctx, id); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Task #%s deleted", id)), nil
	}
}
