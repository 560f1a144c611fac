package tools

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// validatePath ensures the path is within the workspace and prevents traversal.
func validatePath(workspace, relPath string) (string, error) {
	if workspace == "" {
		return "", fmt.Errorf("no workspace configured")
	}
	abs := filepath.Join(workspace, filepath.Clean(relPath))
	absResolved, err := filepath.Abs(abs)
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}
	wsResolved, err := filepath.Abs(workspace)
	if err != nil {
		return "", fmt.Errorf("invalid workspace: %w", err)
	}
	if !strings.HasPrefix(absResolved, wsResolved+string(filepath.Separator)) && absResolved != wsResolved {
		return "", fmt.Errorf("path traversal not allowed: %s", relPath)
	}
	return absResolved, nil
}

// FileTool performs filesystem operations confined to the workspace root.
type FileTool struct {
	Workspace string
}

func (t *FileTool) Name() string { return "filesystem" }
func (t *FileTool) Description() string {
	return "Read, write, and inspect files in the project workspace"
}
func (t *FileTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"op": map[string]any{
				"type": "string",
				"enum": []string{"read", "write", "append", "list", "exists", "delete", "mkdir", "search"},
			},
			"path":    map[string]any{"type": "string", "description": "Relative path"},
			"content": map[string]any{"type": "string", "description": "Content for write/append"},
			"query":   map[string]any{"type": "string", "description": "Substring for search"},
		},
		"required": []string{"op", "path"},
	}
}

func (t *FileTool) Execute(_ context.Context, args map[string]any) (any, error) {
	op, _ := args["op"].(string)
	path, _ := args["path"].(string)
	absPath, err := validatePath(t.Workspace, path)
	if err != nil {
		return nil, err
	}

	switch op {
	case "read":
		data, err := os.ReadFile(absPath)
		if err != nil {
			return nil, fmt.Errorf("read file: %w", err)
		}
		return string(data), nil

	case "write":
		content, _ := args["content"].(string)
		if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
			return nil, fmt.Errorf("create directory: %w", err)
		}
		if err := os.WriteFile(absPath, []byte(content), 0o644); err != nil {
			return nil, fmt.Errorf("write file: %w", err)
		}
		return map[string]any{"path": path, "bytes_written": len(content)}, nil

	case "append":
		content, _ := args["content"].(string)
		f, err := os.OpenFile(absPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open file: %w", err)
		}
		defer f.Close()
		if _, err := f.WriteString(content); err != nil {
			return nil, fmt.Errorf("append file: %w", err)
		}
		return map[string]any{"path": path, "bytes_written": len(content)}, nil

	case "list":
		entries, err := os.ReadDir(absPath)
		if err != nil {
			return nil, fmt.Errorf("list directory: %w", err)
		}
		var files []map[string]any
		for _, e := range entries {
			info, err := e.Info()
			if err != nil {
				continue
			}
			files = append(files, map[string]any{
				"name":   e.Name(),
				"is_dir": e.IsDir(),
				"size":   info.Size(),
			})
		}
		return files, nil

	case "exists":
		_, err := os.Stat(absPath)
		return map[string]any{"exists": err == nil}, nil

	case "delete":
		if err := os.Remove(absPath); err != nil {
			return nil, fmt.Errorf("delete: %w", err)
		}
		return map[string]any{"deleted": path}, nil

	case "mkdir":
		if err := os.MkdirAll(absPath, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir: %w", err)
		}
		return map[string]any{"created": path}, nil

	case "search":
		query, _ := args["query"].(string)
		if query == "" {
			return nil, fmt.Errorf("query is required for search")
		}
		var matches []string
		err := filepath.WalkDir(absPath, func(p string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			data, err := os.ReadFile(p)
			if err != nil {
				return nil
			}
			if strings.Contains(string(data), query) {
				rel, _ := filepath.Rel(t.Workspace, p)
				matches = append(matches, rel)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("search: %w", err)
		}
		return matches, nil

	default:
		return nil, fmt.Errorf("unknown filesystem op %q", op)
	}
}
