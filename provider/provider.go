// Package provider defines the reasoning backend interface for agents.
package provider

import "context"

// Role identifies the sender of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn in a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Options tune a single generation request. Zero values fall back to the
// provider's defaults.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Response is a completed provider response.
type Response struct {
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

// Usage tracks token consumption.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Provider is an AI backend that powers agent reasoning.
type Provider interface {
	// Name returns the provider identifier (e.g., "anthropic", "openai", "mock").
	Name() string

	// Generate sends the conversation and returns the complete response.
	// Deadline expiry surfaces as ErrTimeout; HTTP 429 as ErrRateLimited.
	Generate(ctx context.Context, messages []Message, opts Options) (*Response, error)
}
