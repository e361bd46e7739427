package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"github.com/jmehdipour/data-moodboard/internal/config"
	openai "github.com/sashabaranov/go-openai"
)

var ErrEmptyResponse = errors.New("empty model response")

// OpenAIClient implements LLM and image generation on the OpenAI API.
type OpenAIClient struct {
	client     *openai.Client
	model      string
	imageModel string
	maxTokens  int
}

func NewOpenAIClient(cfg config.OpenAIConfig) *OpenAIClient {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &OpenAIClient{
		client:     openai.NewClientWithConfig(oc),
		model:      cfg.Model,
		imageModel: cfg.ImageModel,
		maxTokens:  cfg.MaxTokens,
	}
}

func (c *OpenAIClient) Complete(ctx context.Context, system string, msgs []Message, opts CompletionOptions) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: opts.Temperature,
		MaxTokens:   c.maxTokens,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(msgs)+1),
	}
	if system != "" {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range msgs {
		role := openai.ChatMessageRoleUser
		if m.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	if opts.JSON {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateImage returns PNG bytes for prompt.
func (c *OpenAIClient) GenerateImage(ctx context.Context, prompt, size string) ([]byte, error) {
	resp, err := c.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          c.imageModel,
		N:              1,
		Size:           size,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return nil, fmt.Errorf("create image: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, ErrEmptyResponse
	}
	img, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}
