package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

// Commands agents are permitted to run. The first word of the command line
// must match one of these.
var allowedCommands = map[string]bool{
	"npm": true, "npx": true, "yarn": true, "pnpm": true,
	"node": true, "go": true, "python3": true,
	"git": true,
	"cat": true, "ls": true, "pwd": true, "echo": true, "mkdir": true,
	"cp": true, "mv": true, "rm": true, "touch": true, "head": true,
	"tail": true, "grep": true, "find": true, "wc": true, "sort": true,
	"uniq": true, "diff": true, "chmod": true,
	"make": true, "gofmt": true,
}

// Patterns blocked regardless of the base command.
var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`rm\s+(-rf?|--force|-r)\s+/(\s|$)`),
	regexp.MustCompile(`rm\s+-rf?\s+~`),
	regexp.MustCompile(`>\s*/dev/`),
	regexp.MustCompile(`\|\s*(ba)?sh`),
	regexp.MustCompile(`\$\(`),
	regexp.MustCompile("`[^`]+`"),
	regexp.MustCompile(`[;&]{1,2}\s*(rm|dd|mkfs)`),
	regexp.MustCompile(`sudo`),
	regexp.MustCompile(`chmod\s+777`),
}

// ShellTool executes an allow-listed command in the workspace.
type ShellTool struct {
	Workspace string
}

func (t *ShellTool) Name() string { return "shell" }
func (t *ShellTool) Description() string {
	return "Execute an allow-listed shell command in the project workspace"
}
func (t *ShellTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{"type": "string", "description": "Shell command to execute"},
			"timeout": map[string]any{"type": "integer", "description": "Timeout in seconds (default: 30, max: 300)"},
		},
		"required": []string{"command"},
	}
}

func (t *ShellTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	command, _ := args["command"].(string)
	if strings.TrimSpace(command) == "" {
		return nil, fmt.Errorf("command is required")
	}

	base := strings.Fields(command)[0]
	if !allowedCommands[base] {
		return nil, fmt.Errorf("command not allowed: %s", base)
	}
	for _, p := range dangerousPatterns {
		if p.MatchString(command) {
			return nil, fmt.Errorf("command blocked by safety pattern: %s", command)
		}
	}

	timeout := 30
	if v, ok := args["timeout"].(float64); ok && v > 0 {
		timeout = int(v)
	}
	if timeout > 300 {
		timeout = 300
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	if t.Workspace != "" {
		cmd.Dir = t.Workspace
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("exec command: %w", err)
		}
	}

	return map[string]any{
		"stdout":    stdout.String(),
		"stderr":    stderr.String(),
		"exit_code": exitCode,
	}, nil
}
