package openai

import (
	"context"

	"github.com/OFFIS-RIT/caseboard/backend/pkg/ai"

	"github.com/openai/openai-go/v3"
)

// GenerateVisionCompletion sends the prompt together with an image and
// returns the model's reply. Extraction asks for JSON through WithJSONMode.
func (c *GraphOpenAIClient) GenerateVisionCompletion(
	ctx context.Context,
	prompt string,
	image ai.Image,
	opts ...ai.GenerateOption,
) (string, error) {
	options := ai.ApplyOptions(ai.GenerateOptions{
		Model:       c.imageModel,
		Temperature: 0.1,
		MaxTokens:   4096,
	}, opts...)

	msgs := systemMessages(options)
	msgs = append(msgs, openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(prompt),
		openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL:    image.DataURL(),
			Detail: "high",
		}),
	}))

	response, err := c.complete(ctx, c.ImageClient, c.body(options, msgs))
	if err != nil {
		return "", err
	}
	return response.Choices[0].Message.Content, nil
}
