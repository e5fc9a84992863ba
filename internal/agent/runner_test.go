package agent

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"

	"github.com/ldi/taskpilot/pkg/models"
)

func TestRun_PassesPrompt(t *testing.T) {
	r := NewRunner("echo")

	task := &models.Task{Title: "Write spec", Description: "draft it"}
	out, err := r.Run(context.Background(), task)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out != "Task: Write spec. Context: draft it" {
		t.Errorf("Unexpected output: %q", out)
	}
}

func TestRun_PrependsArgs(t *testing.T) {
	var gotArgs []string
	r := NewRunner("gemini", "run")
	r.cmdFactory = func(ctx context.Context, name string, arg ...string) *exec.Cmd {
		gotArgs = append([]string{name}, arg...)
		return exec.CommandContext(ctx, "true")
	}

	task := &models.Task{Title: "t"}
	if _, err := r.Run(context.Background(), task); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []string{"gemini", "run", "Task: t. Context: "}
	if len(gotArgs) != len(want) {
		t.Fatalf("Expected argv %v, got %v", want, gotArgs)
	}
	for i := range want {
		if gotArgs[i] != want[i] {
			t.Errorf("argv[%d]: expected %q, got %q", i, want[i], gotArgs[i])
		}
	}
}

func TestRun_NonZeroExit(t *testing.T) {
	r := NewRunner("false")

	_, err := r.Run(context.Background(), &models.Task{Title: "t"})
	if err == nil {
		t.Fatal("Expected error for non-zero exit")
	}
	if !strings.Contains(err.Error(), "agent invocation failed") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestRun_MissingExecutable(t *testing.T) {
	r := NewRunner("taskpilot-no-such-binary")

	_, err := r.Run(context.Background(), &models.Task{Title: "t"})
	if err == nil {
		t.Fatal("Expected error for missing executable")
	}
}

func TestDescribeResult(t *testing.T) {
	cases := []struct {
		name       string
		output     string
		err        error
		wantDesc   string
		wantFailed bool
	}{
		{"output", "done", nil, "done", false},
		{"empty output", "", nil, NoOutput, false},
		{"failure", "partial", errors.New("exit status 1"), "[Execution Failed] exit status 1", true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			desc, failed := DescribeResult(c.output, c.err)
			if desc != c.wantDesc {
				t.Errorf("Expected description %q, got %q", c.wantDesc, desc)
			}
			if failed != c.wantFailed {
				t.Errorf("Expected failed=%v, got %v", c.wantFailed, failed)
			}
		})
	}
}
