package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// Chat roles understood by every adapter.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolHandler is a function that executes a tool call and returns its result.
// The arguments parameter contains the JSON-encoded arguments from the AI model.
type ToolHandler func(ctx context.Context, arguments string) (string, error)

// Tool defines a function that can be called by an AI model during generation.
type Tool struct {
	Name        string         // Unique identifier for the tool
	Description string         // Human-readable description of what the tool does
	Parameters  map[string]any // JSON Schema defining the tool's input parameters
	Handler     ToolHandler    // Function to execute when the tool is called
}

// ToolCall represents a request from the AI model to invoke a specific tool.
type ToolCall struct {
	ID        string `json:"id"`        // Unique identifier for this tool call
	Name      string `json:"name"`      // Name of the tool to invoke
	Arguments string `json:"arguments"` // JSON-encoded arguments for the tool
}

// ChatMessage represents a single message in a chat conversation.
//
// Role must be one of:
//   - "system"    → instructions prepended to the conversation
//   - "user"      → a user-provided message
//   - "assistant" → a message from the AI assistant, optionally requesting tools
//   - "tool"      → the result of the tool call named by ToolCallID
type ChatMessage struct {
	Message    string     `json:"message"`
	Role       string     `json:"role"`
	ToolCalls  []ToolCall `json:"toolCalls,omitempty"`
	ToolCallID string     `json:"toolCallId,omitempty"`
}

// ChatTurn is one assistant reply. When ToolCalls is non-empty the model is
// waiting for the results of those calls before it answers.
type ChatTurn struct {
	Content   string
	Reasoning string
	ToolCalls []ToolCall
}

// WantsTools reports whether the model requested at least one tool call.
func (t *ChatTurn) WantsTools() bool {
	return t != nil && len(t.ToolCalls) > 0
}

// Message converts the turn into the assistant message that must be
// appended to the transcript before any tool results.
func (t *ChatTurn) Message() ChatMessage {
	return ChatMessage{Role: RoleAssistant, Message: t.Content, ToolCalls: t.ToolCalls}
}

// Image is a base64-encoded picture passed to a vision model.
type Image struct {
	MIMEType string
	Base64   string
}

// DataURL renders the image as a data URL.
func (i Image) DataURL() string {
	return fmt.Sprintf("data:%s;base64,%s", i.MIMEType, i.Base64)
}

// Bytes decodes the image payload.
func (i Image) Bytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(i.Base64)
}

// ErrInvalidImage is returned when an image payload cannot be decoded.
var ErrInvalidImage = errors.New("invalid image data")

// ParseDataURL splits a "data:<mime>;base64,<payload>" URL as produced by a
// browser screenshot.
func ParseDataURL(s string) (Image, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(s), "data:")
	if !ok {
		return Image{}, fmt.Errorf("%w: missing data: prefix", ErrInvalidImage)
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok || payload == "" {
		return Image{}, fmt.Errorf("%w: missing payload", ErrInvalidImage)
	}
	mime, enc, _ := strings.Cut(meta, ";")
	if enc != "base64" {
		return Image{}, fmt.Errorf("%w: unsupported encoding %q", ErrInvalidImage, enc)
	}
	if mime == "" {
		mime = "image/png"
	}
	return Image{MIMEType: mime, Base64: payload}, nil
}

// GenerateOptions holds configuration for AI generation requests.
type GenerateOptions struct {
	Model         string   // Model identifier to use for generation
	SystemPrompts []string // System prompts prepended to the request
	Temperature   float64  // Sampling temperature (0.0-2.0)
	Thinking      string   // Extended thinking mode configuration
	JSONMode      bool     // Ask the model for a bare JSON object
	MaxTokens     int      // Upper bound on generated tokens, 0 for provider default
}

// ModelMetrics contains performance metrics from AI model operations.
type ModelMetrics struct {
	InputTokens    int     `json:"input_tokens"`
	OutputTokens   int     `json:"output_tokens"`
	TotalTokens    int     `json:"total_tokens"`
	DurationMs     int64   `json:"duration_ms"`
	TokenPerSecond float32 `json:"tokens_per_second"`
}

// GenerateOption is a functional option for configuring AI generation requests.
type GenerateOption func(*GenerateOptions)

// WithModel returns a GenerateOption that sets the model to use for generation.
func WithModel(model string) GenerateOption {
	return func(o *GenerateOptions) {
		if model != "" {
			o.Model = model
		}
	}
}

// WithSystemPrompts returns a GenerateOption that sets the system prompts
// to prepend to the generation request.
func WithSystemPrompts(prompts ...string) GenerateOption {
	return func(o *GenerateOptions) {
		o.SystemPrompts = prompts
	}
}

// WithTemperature returns a GenerateOption that sets the sampling temperature.
// Higher values (e.g., 1.0) produce more random outputs, while lower values
// (e.g., 0.2) make outputs more focused and deterministic.
func WithTemperature(temp float64) GenerateOption {
	return func(o *GenerateOptions) {
		o.Temperature = temp
	}
}

// WithThinking returns a GenerateOption that enables extended thinking mode.
// The thinking parameter specifies the thinking budget or mode configuration.
func WithThinking(thinking string) GenerateOption {
	return func(o *GenerateOptions) {
		o.Thinking = thinking
	}
}

// WithJSONMode asks the provider to constrain the reply to a JSON object.
func WithJSONMode() GenerateOption {
	return func(o *GenerateOptions) {
		o.JSONMode = true
	}
}

// WithMaxTokens caps the number of generated tokens.
func WithMaxTokens(n int) GenerateOption {
	return func(o *GenerateOptions) {
		o.MaxTokens = n
	}
}

// ApplyOptions folds opts into defaults and returns the result.
func ApplyOptions(defaults GenerateOptions, opts ...GenerateOption) GenerateOptions {
	for _, o := range opts {
		o(&defaults)
	}
	return defaults
}

// GraphAIClient defines the interface for the reasoning service used by
// extraction and the agent. Implementations talk to an OpenAI compatible API
// or to Ollama.
type GraphAIClient interface {
	GenerateCompletion(
		ctx context.Context,
		prompt string,
		opts ...GenerateOption,
	) (string, error)
	GenerateCompletionWithFormat(
		ctx context.Context,
		name string,
		description string,
		prompt string,
		out any,
		opts ...GenerateOption,
	) error

	// GenerateChatTurn sends the transcript plus the tool catalogue and
	// returns a single assistant turn. Tools are never executed by the
	// adapter; dispatch is the caller's job.
	GenerateChatTurn(
		ctx context.Context,
		messages []ChatMessage,
		tools []Tool,
		opts ...GenerateOption,
	) (*ChatTurn, error)

	GenerateVisionCompletion(
		ctx context.Context,
		prompt string,
		image Image,
		opts ...GenerateOption,
	) (string, error)

	ResetMetrics()
	GetMetrics() ModelMetrics
}
