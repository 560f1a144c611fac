// Package agent implements the four role control loops: planner, executor,
// reviewer, and strategist. Each loop reads a task from the store, reasons
// over it with the agent's provider, applies capabilities through the
// registry, and writes the resulting state transitions back to the store.
package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/agentsmith/agentos/events"
	"github.com/agentsmith/agentos/provider"
	"github.com/agentsmith/agentos/store"
	"github.com/agentsmith/agentos/tools"
)

// Base carries the dependencies shared by all role loops.
type Base struct {
	Self     *store.Agent
	Store    store.Store
	Bus      *events.Bus
	Provider provider.Provider
	Registry *tools.Registry
	Logger   *slog.Logger
}

// beginWork marks the agent busy for the duration of one loop invocation.
// The flag is advisory: a concurrent dispatch may still slip through, and
// the resulting double work is absorbed by idempotent transitions.
func (b *Base) beginWork() {
	if err := b.Store.UpdateAgentStatus(b.Self.ID, store.AgentBusy); err != nil {
		b.Logger.Warn("set busy failed", "agent", b.Self.ID, "error", err)
	}
}

func (b *Base) endWork() {
	if err := b.Store.UpdateAgentStatus(b.Self.ID, store.AgentIdle); err != nil {
		b.Logger.Warn("set idle failed", "agent", b.Self.ID, "error", err)
	}
}

// logActivity appends an audit record; failures are logged, never fatal.
func (b *Base) logActivity(eventType, taskID, message string) {
	_, err := b.Store.LogActivity(&store.Activity{
		EventType: eventType,
		AgentID:   b.Self.ID,
		TaskID:    taskID,
		Message:   message,
	})
	if err != nil {
		b.Logger.Warn("log activity failed", "agent", b.Self.ID, "error", err)
	}
}

// sendMessage posts a message on a task. Empty toAgentID broadcasts.
func (b *Base) sendMessage(taskID, toAgentID, content string) {
	_, err := b.Store.CreateMessage(&store.Message{
		Content:     content,
		FromAgentID: b.Self.ID,
		ToAgentID:   toAgentID,
		TaskID:      taskID,
	})
	if err != nil {
		b.Logger.Warn("send message failed", "agent", b.Self.ID, "error", err)
	}
}

// think sends the agent's system prompt plus the given user prompt to the
// provider and returns the raw response text.
func (b *Base) think(ctx context.Context, prompt string) (string, error) {
	resp, err := b.Provider.Generate(ctx, []provider.Message{
		{Role: provider.RoleSystem, Content: b.Self.SystemPrompt},
		{Role: provider.RoleUser, Content: prompt},
	}, provider.Options{
		Model:       b.Self.ModelConfig.Model,
		Temperature: b.Self.ModelConfig.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("think: %w", err)
	}
	return resp.Content, nil
}
