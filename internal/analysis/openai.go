// Package analysis talks to the OpenAI API: structured thread analysis,
// free-text portfolio synthesis and document embeddings.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/tmskss/portfolio-health-report/internal/models"
)

// ErrEmptyResponse is returned when a completion carries no message content.
var ErrEmptyResponse = errors.New("empty completion response")

// Options configure the OpenAI client.
type Options struct {
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string
}

// Client implements the thread analysis, synthesis and embedding capabilities.
type Client struct {
	api            *openai.Client
	model          string
	embeddingModel string
	log            *slog.Logger
}

// New creates an OpenAI-backed client.
func New(opts Options, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("openai api key is empty")
	}
	if opts.Model == "" {
		return nil, errors.New("openai model is empty")
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		api:            openai.NewClientWithConfig(cfg),
		model:          opts.Model,
		embeddingModel: opts.EmbeddingModel,
		log:            logger,
	}, nil
}

// AnalyzeThread asks the model for a schema-conforming report on one thread.
func (c *Client) AnalyzeThread(ctx context.Context, thread, colleagues string) (models.EmailThreadReport, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: threadSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: ThreadPrompt(thread, colleagues)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   threadReportSchemaName,
				Schema: threadReportSchema,
				Strict: true,
			},
		},
	})
	if err != nil {
		return models.EmailThreadReport{}, fmt.Errorf("thread analysis request: %w", err)
	}

	content, err := firstContent(resp)
	if err != nil {
		return models.EmailThreadReport{}, fmt.Errorf("thread analysis: %w", err)
	}

	c.log.Debug("thread analysis completed", slog.Int("total_tokens", resp.Usage.TotalTokens))
	return DecodeThreadReport([]byte(content))
}

// Synthesize asks the model for the free-text portfolio report.
func (c *Client) Synthesize(ctx context.Context, threadReports string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: portfolioSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: PortfolioPrompt(threadReports)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("synthesis request: %w", err)
	}

	content, err := firstContent(resp)
	if err != nil {
		return "", fmt.Errorf("synthesis: %w", err)
	}

	c.log.Debug("synthesis completed", slog.Int("total_tokens", resp.Usage.TotalTokens))
	return content, nil
}

// EmbedDocuments returns one vector per text, in input order.
func (c *Client) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if c.embeddingModel == "" {
		return nil, errors.New("embedding model is not configured")
	}

	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(c.embeddingModel),
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("invalid embedding index: %d", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

func firstContent(resp openai.ChatCompletionResponse) (string, error) {
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	content := resp.Choices[0].Message.Content
	if content == "" {
		if refusal := resp.Choices[0].Message.Refusal; refusal != "" {
			return "", fmt.Errorf("model refused: %s", refusal)
		}
		return "", ErrEmptyResponse
	}
	return content, nil
}
