package server

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ldi/taskpilot/internal/agent"
	"github.com/ldi/taskpilot/internal/db"
	"github.com/ldi/taskpilot/pkg/models"
)

func (s *Server) handleListProjects(c *gin.Context) {
	projects, err := s.db.ListProjects(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if projects == nil {
		projects = []*models.Project{}
	}
	c.JSON(http.StatusOK, projects)
}

type createProjectRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (s *Server) handleCreateProject(c *gin.Context) {
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Title is required"})
		return
	}

	p := &models.Project{Name: req.Title, Description: req.Description}
	if err := s.db.CreateProject(c.Request.Context(), p); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (s *Server) handleDeleteProject(c *gin.Context) {
	if err := s.db.DeleteProject(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListTasks(c *gin.Context) {
	var projectID *string
	if pid := c.Query("project_id"); pid != "" {
		projectID = &pid
	}

	tasks, err := s.db.ListTasks(c.Request.Context(), projectID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if tasks == nil {
		tasks = []*models.Task{}
	}
	c.JSON(http.StatusOK, tasks)
}

type createTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	ProjectID   string `json:"project_id"`
}

func (s *Server) handleCreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Title is required"})
		return
	}
	if req.ProjectID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "project_id is required"})
		return
	}

	t := &models.Task{
		ProjectID:   req.ProjectID,
		Title:       req.Title,
		Description: req.Description,
	}
	if err := s.db.CreateTask(c.Request.Context(), t); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, t)
}

type updateTaskRequest struct {
	Title       *string            `json:"title"`
	Description *string            `json:"description"`
	Status      *models.TaskStatus `json:"status"`
}

func (s *Server) handleUpdateTask(c *gin.Context) {
	var req updateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := s.db.UpdateTask(c.Request.Context(), c.Param("id"), db.TaskUpdate{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if task == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "task not found"})
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) handleDeleteTask(c *gin.Context) {
	if err := s.db.DeleteTask(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// handleExecuteTask is queue mode: flip the task to queued and return
// immediately, leaving the actual invocation to the poller. This keeps the
// request's lifetime decoupled from the agent's unbounded run time.
func (s *Server) handleExecuteTask(c *gin.Context) {
	task, err := s.db.QueueTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if task == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Task queued for execution",
		"task":    task,
	})
}

// handleExecuteTaskSpawn is spawn mode: invoke the agent now and respond
// when it exits. The invocation and write-back run on a detached context,
// so if the client times out and drops the request, the outcome is still
// persisted and broadcast; the HTTP response is best effort.
func (s *Server) handleExecuteTaskSpawn(c *gin.Context) {
	task, err := s.db.GetTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if task == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return
	}

	done := make(chan *models.Task, 1)
	go func() {
		ctx := context.Background()
		output, runErr := s.invoker.Run(ctx, task)
		description, failed := agent.DescribeResult(output, runErr)
		if runErr != nil {
			log.Printf("[spawn] task %s failed: %v", task.ID, runErr)
		}

		resolved, err := s.db.ResolveExecution(ctx, task.ID, description, failed)
		if err != nil {
			log.Printf("[spawn] failed to persist outcome for task %s: %v", task.ID, err)
		}
		done <- resolved
	}()

	resolved := <-done
	if resolved == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to persist execution outcome"})
		return
	}
	// An agent failure is a recorded outcome, not a request failure: the
	// task carries the failure text.
	c.JSON(http.StatusOK, resolved)
}

func (s *Server) handleWorkerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"active": s.manager.Active()})
}

func (s *Server) handleWorkerStart(c *gin.Context) {
	// The poller must outlive this request, so it is not tied to the
	// request context.
	s.manager.Start(context.Background())
	c.JSON(http.StatusOK, gin.H{"active": true})
}

func (s *Server) handleWorkerStop(c *gin.Context) {
	s.manager.Stop()
	c.JSON(http.StatusOK, gin.H{"active": false})
}
