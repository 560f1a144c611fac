package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const gitTimeout = 60 * time.Second

// GitTool runs a fixed set of git operations in the workspace repository.
type GitTool struct {
	Workspace string
}

func (t *GitTool) Name() string { return "git" }
func (t *GitTool) Description() string {
	return "Run git operations (status, branch, checkout, add, commit, push, pull, merge, diff, log, stash) in the workspace repository"
}
func (t *GitTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"op": map[string]any{
				"type": "string",
				"enum": []string{"status", "branch", "checkout", "add", "commit", "push", "pull", "merge", "diff", "log", "stash"},
			},
			"branch":  map[string]any{"type": "string", "description": "Branch name for checkout/merge/push"},
			"message": map[string]any{"type": "string", "description": "Commit message"},
			"files":   map[string]any{"type": "string", "description": "Pathspec for add (default: .)"},
			"create":  map[string]any{"type": "boolean", "description": "Create branch on checkout"},
		},
		"required": []string{"op"},
	}
}

func (t *GitTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	op, _ := args["op"].(string)
	branch, _ := args["branch"].(string)

	var gitArgs []string
	switch op {
	case "status":
		gitArgs = []string{"status", "--porcelain"}
	case "branch":
		gitArgs = []string{"branch", "--show-current"}
	case "checkout":
		if branch == "" {
			return nil, fmt.Errorf("branch is required for checkout")
		}
		if create, _ := args["create"].(bool); create {
			gitArgs = []string{"checkout", "-b", branch}
		} else {
			gitArgs = []string{"checkout", branch}
		}
	case "add":
		files, _ := args["files"].(string)
		if files == "" {
			files = "."
		}
		gitArgs = []string{"add", files}
	case "commit":
		message, _ := args["message"].(string)
		if message == "" {
			return nil, fmt.Errorf("message is required for commit")
		}
		gitArgs = []string{"commit", "-m", message}
	case "push":
		if branch != "" {
			gitArgs = []string{"push", "-u", "origin", branch}
		} else {
			gitArgs = []string{"push"}
		}
	case "pull":
		gitArgs = []string{"pull"}
	case "merge":
		if branch == "" {
			return nil, fmt.Errorf("branch is required for merge")
		}
		gitArgs = []string{"merge", branch, "--no-edit"}
	case "diff":
		gitArgs = []string{"diff", "--stat"}
	case "log":
		gitArgs = []string{"log", "--oneline", "-20"}
	case "stash":
		gitArgs = []string{"stash"}
	default:
		return nil, fmt.Errorf("unknown git op %q", op)
	}

	return t.run(ctx, gitArgs...)
}

func (t *GitTool) run(ctx context.Context, args ...string) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	if t.Workspace != "" {
		cmd.Dir = t.Workspace
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// Unlike the shell tool, a failed git operation is an error, not data:
	// callers treat git as a sequence of steps that must each succeed.
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("git %s: exit %d: %s",
				strings.Join(args, " "), exitErr.ExitCode(),
				strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}

	return map[string]any{
		"stdout":    stdout.String(),
		"stderr":    stderr.String(),
		"exit_code": 0,
	}, nil
}
