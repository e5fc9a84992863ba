package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ldi/taskpilot/internal/agent"
	"github.com/ldi/taskpilot/internal/db"
	"github.com/ldi/taskpilot/internal/hub"
	"github.com/ldi/taskpilot/internal/mcp"
	"github.com/ldi/taskpilot/internal/notify"
	"github.com/ldi/taskpilot/internal/server"
	"github.com/ldi/taskpilot/internal/worker"
	"github.com/ldi/taskpilot/pkg/models"
)

var (
	dbPath   string
	agentCmd string
)

func main() {
	flag.StringVar(&dbPath, "db-path", ".taskpilot/taskpilot.db", "Path to database file")
	flag.StringVar(&agentCmd, "agent", "gemini run", "Agent command the worker invokes for queued tasks")
	flag.Parse()

	if flag.NArg() == 0 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	var err error
	switch command {
	case "init":
		err = runInit(args)
	case "serve":
		err = runServe(args)
	case "mcp":
		err = runMCP(args)
	case "work":
		err = runWork(args)
	case "status":
		err = runStatus(args)
	case "list-projects":
		err = runListProjects(args)
	case "list-tasks":
		err = runListTasks(args)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: taskpilot [flags] <command> [arguments]")
	fmt.Println("\nCommands:")
	fmt.Println("  init           Initialize the database")
	fmt.Println("  serve          Run the HTTP API, live view channel and worker")
	fmt.Println("  mcp            Run the MCP server on stdio (co-hosts the HTTP API)")
	fmt.Println("  work           Run the worker loop in the foreground")
	fmt.Println("  status         Show tracker status")
	fmt.Println("  list-projects  List projects with progress")
	fmt.Println("  list-tasks     List tasks")
}

func openDB(ctx context.Context) (*db.DB, error) {
	database, err := db.Open(dbPath)
	if err != nil {
		return nil, err
	}
	if err := database.Init(ctx); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

func newRunner() *agent.Runner {
	parts := strings.Fields(agentCmd)
	if len(parts) == 0 {
		parts = []string{"gemini", "run"}
	}
	return agent.NewRunner(parts[0], parts[1:]...)
}

func runInit(args []string) error {
	dir := filepath.Dir(dbPath)
	if dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	ctx := context.Background()
	database, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	fmt.Printf("✓ Initialized database at %s\n", dbPath)
	return nil
}

func runServe(args []string) error {
	serveFlags := flag.NewFlagSet("serve", flag.ContinueOnError)
	port := serveFlags.String("port", "3000", "Port to listen on")
	interval := serveFlags.Duration("interval", 5*time.Second, "Worker polling interval")
	startWorker := serveFlags.Bool("worker", true, "Start the queue worker immediately")
	if err := serveFlags.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	h := hub.New()
	notifier := notify.New(database, h)
	database.SetOnChange(notifier.Changed)

	runner := newRunner()
	manager := worker.NewManager(worker.New(database, runner, *interval))
	if *startWorker {
		manager.Start(ctx)
		defer manager.Stop()
	}

	srv := server.New(database, h, notifier, runner, manager)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	fmt.Printf("Taskpilot running at http://localhost:%s\n", *port)
	if err := srv.Start(fmt.Sprintf(":%s", *port)); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// runMCP serves tools on stdio while hosting the HTTP API in the
// background, so a connected agent host and browser observers share
// one process and one database.
func runMCP(args []string) error {
	mcpFlags := flag.NewFlagSet("mcp", flag.ContinueOnError)
	port := mcpFlags.String("port", "3000", "Port for the co-hosted HTTP API")
	interval := mcpFlags.Duration("interval", 5*time.Second, "Worker polling interval")
	if err := mcpFlags.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	h := hub.New()
	notifier := notify.New(database, h)
	database.SetOnChange(notifier.Changed)

	runner := newRunner()
	manager := worker.NewManager(worker.New(database, runner, *interval))
	manager.Start(ctx)
	defer manager.Stop()

	srv := server.New(database, h, notifier, runner, manager)
	go func() {
		if err := srv.Start(fmt.Sprintf(":%s", *port)); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "HTTP server error: %v\n", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s := mcp.NewServer(database)
	return mcp.Serve(s)
}

func runWork(args []string) error {
	workFlags := flag.NewFlagSet("work", flag.ContinueOnError)
	interval := workFlags.Duration("interval", 5*time.Second, "Polling interval")
	if err := workFlags.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	fmt.Println("[worker] Started. Polling for tasks...")
	if err := worker.New(database, newRunner(), *interval).Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func runStatus(args []string) error {
	ctx := context.Background()
	database, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	projects, err := database.ListProjects(ctx)
	if err != nil {
		return err
	}
	tasks, err := database.ListTasks(ctx, nil)
	if err != nil {
		return err
	}

	statusCounts := make(map[models.TaskStatus]int)
	for _, t := range tasks {
		statusCounts[t.Status]++
	}

	fmt.Println("Taskpilot Status")
	fmt.Println("================")
	fmt.Printf("Projects:    %d\n", len(projects))
	fmt.Printf("Total Tasks: %d\n", len(tasks))
	fmt.Println("\nTask Breakdown:")
	fmt.Printf("  Pending:   %d\n", statusCounts[models.TaskStatusPending])
	fmt.Printf("  Queued:    %d\n", statusCounts[models.TaskStatusQueued])
	fmt.Printf("  Completed: %d\n", statusCounts[models.TaskStatusCompleted])
	fmt.Printf("  Failed:    %d\n", statusCounts[models.TaskStatusFailed])
	return nil
}

func runListProjects(args []string) error {
	ctx := context.Background()
	database, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	projects, err := database.ListProjects(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("%-36s %-25s %-10s %s\n", "ID", "NAME", "PROGRESS", "TASKS")
	fmt.Println(strings.Repeat("-", 80))
	for _, p := range projects {
		fmt.Printf("%-36s %-25s %-10s %d/%d\n", p.ID, p.Name,
			fmt.Sprintf("%d%%", p.Progress), p.CompletedTasks, p.TotalTasks)
	}
	return nil
}

func runListTasks(args []string) error {
	taskFlags := flag.NewFlagSet("list-tasks", flag.ContinueOnError)
	projectFilter := taskFlags.String("project", "", "Filter by project ID")
	if err := taskFlags.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	database, err := openDB(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	var projectID *string
	if *projectFilter != "" {
		projectID = projectFilter
	}

	tasks, err := database.ListTasks(ctx, projectID)
	if err != nil {
		return err
	}

	fmt.Printf("%-36s %-30s %-10s %s\n", "ID", "TITLE", "STATUS", "PROJECT")
	fmt.Println(strings.Repeat("-", 90))
	for _, t := range tasks {
		fmt.Printf("%-36s %-30s %-10s %s\n", t.ID, t.Title, t.Status, t.ProjectID)
	}
	return nil
}
