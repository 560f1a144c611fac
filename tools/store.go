package tools

import (
	"context"
	"fmt"

	"github.com/agentsmith/agentos/store"
)

// StoreTool lets agents query and mutate tasks, messages, and activities
// directly. Activities are append-only; there is no update or delete op
// for them.
type StoreTool struct {
	Store   store.Store
	AgentID string
}

func (t *StoreTool) Name() string { return "store" }
func (t *StoreTool) Description() string {
	return "Query and update tasks, send messages, and log activity"
}
func (t *StoreTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"op": map[string]any{
				"type": "string",
				"enum": []string{"create_task", "get_task", "update_task", "list_tasks", "send_message", "list_messages", "log_activity"},
			},
			"task_id":     map[string]any{"type": "string"},
			"title":       map[string]any{"type": "string"},
			"description": map[string]any{"type": "string"},
			"status":      map[string]any{"type": "string"},
			"priority":    map[string]any{"type": "integer"},
			"content":     map[string]any{"type": "string"},
			"to_agent_id": map[string]any{"type": "string"},
			"message":     map[string]any{"type": "string"},
			"limit":       map[string]any{"type": "integer"},
		},
		"required": []string{"op"},
	}
}

func (t *StoreTool) Execute(_ context.Context, args map[string]any) (any, error) {
	op, _ := args["op"].(string)
	taskID, _ := args["task_id"].(string)

	switch op {
	case "create_task":
		title, _ := args["title"].(string)
		if title == "" {
			return nil, fmt.Errorf("title is required")
		}
		description, _ := args["description"].(string)
		priority := 1
		if v, ok := args["priority"].(float64); ok {
			priority = int(v)
		}
		task := &store.Task{
			Title:       title,
			Description: description,
			Priority:    priority,
			CreatedByID: t.AgentID,
		}
		id, err := t.Store.CreateTask(task)
		if err != nil {
			return nil, err
		}
		return map[string]any{"task_id": id}, nil

	case "get_task":
		if taskID == "" {
			return nil, fmt.Errorf("task_id is required")
		}
		return t.Store.GetTask(taskID)

	case "update_task":
		if taskID == "" {
			return nil, fmt.Errorf("task_id is required")
		}
		task, err := t.Store.GetTask(taskID)
		if err != nil {
			return nil, err
		}
		if v, ok := args["title"].(string); ok && v != "" {
			task.Title = v
		}
		if v, ok := args["description"].(string); ok && v != "" {
			task.Description = v
		}
		if v, ok := args["status"].(string); ok && v != "" {
			task.Status = store.TaskStatus(v)
		}
		if v, ok := args["priority"].(float64); ok {
			task.Priority = int(v)
		}
		if err := t.Store.UpdateTask(task); err != nil {
			return nil, err
		}
		return task, nil

	case "list_tasks":
		f := store.TaskFilter{Limit: 50}
		if v, ok := args["status"].(string); ok && v != "" {
			st := store.TaskStatus(v)
			f.Status = &st
		}
		if v, ok := args["limit"].(float64); ok && v > 0 {
			f.Limit = int(v)
		}
		return t.Store.ListTasks(f)

	case "send_message":
		content, _ := args["content"].(string)
		if content == "" {
			return nil, fmt.Errorf("content is required")
		}
		toAgentID, _ := args["to_agent_id"].(string)
		id, err := t.Store.CreateMessage(&store.Message{
			Content:     content,
			FromAgentID: t.AgentID,
			ToAgentID:   toAgentID,
			TaskID:      taskID,
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{"message_id": id}, nil

	case "list_messages":
		f := store.MessageFilter{TaskID: taskID, Limit: 50}
		if v, ok := args["limit"].(float64); ok && v > 0 {
			f.Limit = int(v)
		}
		return t.Store.ListMessages(f)

	case "log_activity":
		message, _ := args["message"].(string)
		if message == "" {
			return nil, fmt.Errorf("message is required")
		}
		id, err := t.Store.LogActivity(&store.Activity{
			EventType: "agent_note",
			AgentID:   t.AgentID,
			TaskID:    taskID,
			Message:   message,
		})
		if err != nil {
			return nil, err
		}
		return map[string]any{"activity_id": id}, nil

	default:
		return nil, fmt.Errorf("unknown store op %q", op)
	}
}
