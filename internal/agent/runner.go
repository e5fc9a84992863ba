// Package agent wraps the external command-line agent that executes tasks.
// The agent is a black box: it takes a natural-language prompt and returns
// combined output after an unbounded amount of wall-clock time. No timeout
// is enforced here; an in-flight invocation runs to completion or process
// exit.
package agent

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/ldi/taskpilot/pkg/models"
)

// NoOutput is persisted as the task description when the agent exits
// cleanly but prints nothing.
const NoOutput = "Executed (No Output)"

// failedPrefix marks descriptions written after a failed invocation.
const failedPrefix = "[Execution Failed] "

// Runner invokes the external agent command for a task.
type Runner struct {
	command    string
	args       []string
	cmdFactory func(ctx context.Context, name string, arg ...string) *exec.Cmd
}

// NewRunner creates a Runner for the given command; args are passed before
// the prompt (e.g. NewRunner("gemini", "run")).
func NewRunner(command string, args ...string) *Runner {
	return &Runner{
		command:    command,
		args:       args,
		cmdFactory: exec.CommandContext,
	}
}

// Run invokes the agent synchronously with the task's title and description
// as the prompt and returns trimmed combined stdout+stderr. On failure the
// partial output collected so far is still returned alongside the error.
func (r *Runner) Run(ctx context.Context, task *models.Task) (string, error) {
	argv := append(append([]string{}, r.args...), Prompt(task))
	cmd := r.cmdFactory(ctx, r.command, argv...)

	out, err := cmd.CombinedOutput()
	output := strings.TrimSpace(string(out))
	if err != nil {
		return output, fmt.Errorf("agent invocation failed: %w", err)
	}
	return output, nil
}

// Prompt builds the agent prompt from a task.
func Prompt(task *models.Task) string {
	return fmt.Sprintf("Task: %s. Context: %s", task.Title, task.Description)
}

// DescribeResult maps an invocation outcome to the description persisted on
// the task and whether the task should be parked as failed. Both the poller
// and the spawn endpoint resolve through this, so the sentinels stay
// consistent.
func DescribeResult(output string, err error) (description string, failed bool) {
	if err != nil {
		return failedPrefix + err.Error(), true
	}
	if output == "" {
		return NoOutput, false
	}
	return output, false
}
