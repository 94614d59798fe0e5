package ollama

import (
	"context"

	"github.com/OFFIS-RIT/caseboard/backend/pkg/ai"

	"github.com/ollama/ollama/api"
)

// GenerateVisionCompletion sends a vision chat request with the prompt and
// the decoded image and returns the model's reply.
func (c *GraphOllamaClient) GenerateVisionCompletion(
	ctx context.Context,
	prompt string,
	image ai.Image,
	opts ...ai.GenerateOption,
) (string, error) {
	raw, err := image.Bytes()
	if err != nil {
		return "", err
	}

	options := ai.ApplyOptions(ai.GenerateOptions{
		Model:       c.imageModel,
		Temperature: 0.1,
	}, opts...)

	msgs := systemMessages(options)
	msgs = append(msgs, api.Message{
		Role:    ai.RoleUser,
		Content: prompt,
		Images:  []api.ImageData{raw},
	})

	final, err := c.chat(ctx, c.request(options, msgs, nil))
	if err != nil {
		return "", err
	}
	return final.Message.Content, nil
}
