package server

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/ldi/taskpilot/internal/db"
	"github.com/ldi/taskpilot/internal/hub"
	"github.com/ldi/taskpilot/internal/notify"
	"github.com/ldi/taskpilot/internal/worker"
	"github.com/ldi/taskpilot/pkg/models"
)

// Invoker executes a task through the external agent (spawn mode).
type Invoker interface {
	Run(ctx context.Context, task *models.Task) (string, error)
}

type Server struct {
	db       *db.DB
	hub      *hub.Hub
	notifier *notify.Notifier
	invoker  Invoker
	manager  *worker.Manager
	router   *gin.Engine
	server   *http.Server
	upgrader websocket.Upgrader
}

func New(database *db.DB, h *hub.Hub, notifier *notify.Notifier, invoker Invoker, manager *worker.Manager) *Server {
	s := &Server{
		db:       database,
		hub:      h,
		notifier: notifier,
		invoker:  invoker,
		manager:  manager,
		upgrader: websocket.Upgrader{
			// The backend URL is user-configurable in the client, so
			// cross-origin upgrades are expected.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	router := gin.Default()
	router.Use(cors())

	api := router.Group("/api")
	{
		api.GET("/projects", s.handleListProjects)
		api.POST("/projects", s.handleCreateProject)
		api.DELETE("/projects/:id", s.handleDeleteProject)

		api.GET("/tasks", s.handleListTasks)
		api.POST("/tasks", s.handleCreateTask)
		api.PUT("/tasks/:id", s.handleUpdateTask)
		api.DELETE("/tasks/:id", s.handleDeleteTask)
		api.POST("/tasks/:id/execute", s.handleExecuteTask)
		api.POST("/tasks/:id/execute-spawn", s.handleExecuteTaskSpawn)

		api.GET("/worker/status", s.handleWorkerStatus)
		api.POST("/worker/start", s.handleWorkerStart)
		api.POST("/worker/stop", s.handleWorkerStop)
	}

	router.GET("/ws", s.handleWebSocket)

	s.router = router
	return s
}

func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// handleWebSocket upgrades the connection, syncs initial state to the new
// observer only, then blocks reading until the client goes away. The
// client never sends meaningful frames; the read loop exists to detect
// disconnects.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed: %v", err)
		return
	}

	s.hub.Register(conn)
	defer s.hub.Unregister(conn)

	if ev, err := s.notifier.ProjectsSnapshot(c.Request.Context()); err != nil {
		log.Printf("[ws] initial sync failed: %v", err)
	} else {
		s.hub.SendTo(conn, ev)
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
