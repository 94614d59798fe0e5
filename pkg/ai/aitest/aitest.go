// Package aitest provides a scripted ai.GraphAIClient for tests.
package aitest

import (
	"context"
	"errors"
	"sync"

	"github.com/OFFIS-RIT/caseboard/backend/pkg/ai"
)

// ErrUnscripted is returned when a method is called that the test did not
// script.
var ErrUnscripted = errors.New("aitest: call not scripted")

// Call records one request made against the client.
type Call struct {
	Method   string
	Prompt   string
	Messages []ai.ChatMessage
	Tools    []ai.Tool
	Image    *ai.Image
	Options  ai.GenerateOptions
}

// Client answers requests with the scripted functions. Unset functions fail
// with ErrUnscripted. Client is safe for concurrent use.
type Client struct {
	Completion func(n int, prompt string, opts ai.GenerateOptions) (string, error)
	ChatTurn   func(n int, messages []ai.ChatMessage, tools []ai.Tool) (*ai.ChatTurn, error)
	Vision     func(n int, prompt string, image ai.Image) (string, error)

	mu    sync.Mutex
	calls []Call
}

// Replies returns a Completion script answering the n-th call with the n-th
// reply. The last reply repeats once the list is exhausted.
func Replies(replies ...string) func(int, string, ai.GenerateOptions) (string, error) {
	return func(n int, _ string, _ ai.GenerateOptions) (string, error) {
		if len(replies) == 0 {
			return "", ErrUnscripted
		}
		return replies[min(n, len(replies)-1)], nil
	}
}

// Turns returns a ChatTurn script answering the n-th round with the n-th
// turn. The last turn repeats once the list is exhausted.
func Turns(turns ...*ai.ChatTurn) func(int, []ai.ChatMessage, []ai.Tool) (*ai.ChatTurn, error) {
	return func(n int, _ []ai.ChatMessage, _ []ai.Tool) (*ai.ChatTurn, error) {
		if len(turns) == 0 {
			return nil, ErrUnscripted
		}
		return turns[min(n, len(turns)-1)], nil
	}
}

// Calls returns a copy of the recorded calls.
func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Call, len(c.calls))
	copy(out, c.calls)
	return out
}

// Count returns how many calls were made to method.
func (c *Client) Count(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.calls {
		if call.Method == method {
			n++
		}
	}
	return n
}

func (c *Client) record(call Call) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, prev := range c.calls {
		if prev.Method == call.Method {
			n++
		}
	}
	c.calls = append(c.calls, call)
	return n
}

func (c *Client) GenerateCompletion(_ context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	options := ai.ApplyOptions(ai.GenerateOptions{}, opts...)
	n := c.record(Call{Method: "GenerateCompletion", Prompt: prompt, Options: options})
	if c.Completion == nil {
		return "", ErrUnscripted
	}
	return c.Completion(n, prompt, options)
}

func (c *Client) GenerateCompletionWithFormat(
	ctx context.Context,
	_ string,
	_ string,
	prompt string,
	out any,
	opts ...ai.GenerateOption,
) error {
	content, err := c.GenerateCompletion(ctx, prompt, opts...)
	if err != nil {
		return err
	}
	return ai.ParseJSON(content, out)
}

func (c *Client) GenerateChatTurn(
	_ context.Context,
	messages []ai.ChatMessage,
	tools []ai.Tool,
	opts ...ai.GenerateOption,
) (*ai.ChatTurn, error) {
	options := ai.ApplyOptions(ai.GenerateOptions{}, opts...)
	transcript := make([]ai.ChatMessage, len(messages))
	copy(transcript, messages)
	n := c.record(Call{Method: "GenerateChatTurn", Messages: transcript, Tools: tools, Options: options})
	if c.ChatTurn == nil {
		return nil, ErrUnscripted
	}
	return c.ChatTurn(n, transcript, tools)
}

func (c *Client) GenerateVisionCompletion(
	_ context.Context,
	prompt string,
	image ai.Image,
	opts ...ai.GenerateOption,
) (string, error) {
	options := ai.ApplyOptions(ai.GenerateOptions{}, opts...)
	n := c.record(Call{Method: "GenerateVisionCompletion", Prompt: prompt, Image: &image, Options: options})
	if c.Vision == nil {
		return "", ErrUnscripted
	}
	return c.Vision(n, prompt, image)
}

func (c *Client) ResetMetrics() {}

func (c *Client) GetMetrics() ai.ModelMetrics {
	return ai.ModelMetrics{}
}

var _ ai.GraphAIClient = (*Client)(nil)
