// Package openai adapts an OpenAI-compatible chat completion API to the
// narration contracts. Any endpoint speaking the same wire format works
// through the BaseURL override.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/fableguard/fableguard/internal/action"
	apperrors "github.com/fableguard/fableguard/internal/errors"
	"github.com/fableguard/fableguard/internal/memory"
	"github.com/fableguard/fableguard/internal/narration"
)

const defaultModel = openai.GPT4oMini

const classifySystemPrompt = `You classify tabletop RPG player utterances into exactly one action.
Respond with a single JSON object and nothing else. Fields:
  kind: one of move, engage, attack, use_item, equip_item, drop_item,
        pick_up_item, skill_check, converse, observe, end_turn, end_session
  target_id, item_type_id, quantity, attribute, difficulty, destination,
  description: optional, only when implied by the utterance.
Never invent identifiers the utterance does not mention.`

const renderSystemPrompt = `You narrate the resolved outcome of a tabletop RPG action.
You are given structured facts that already happened. Narrate them in
two or three vivid sentences. Never contradict a fact, never add
mechanical consequences, never reveal raw die values.`

// Client implements narration.Classifier and narration.Renderer on an
// OpenAI-compatible chat API.
type Client struct {
	api         *openai.Client
	model       string
	temperature float32
}

// Option configures the client.
type Option func(*Client)

// WithModel overrides the chat model.
func WithModel(model string) Option {
	return func(c *Client) {
		c.model = model
	}
}

// WithTemperature overrides the sampling temperature.
func WithTemperature(temperature float32) Option {
	return func(c *Client) {
		c.temperature = temperature
	}
}

// New creates a client for the given API key. An empty baseURL uses the
// OpenAI default endpoint.
func New(apiKey, baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}

	config := openai.DefaultConfig(apiKey)
	if strings.TrimSpace(baseURL) != "" {
		config.BaseURL = baseURL
	}

	c := &Client{
		api:         openai.NewClientWithConfig(config),
		model:       defaultModel,
		temperature: 0.7,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Classify maps a free-text utterance onto one typed action.
func (c *Client) Classify(ctx context.Context, sessionID, actorID, utterance string) (narration.Classification, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		// Classification must be reproducible, so sampling is pinned.
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: classifySystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: utterance},
		},
	})
	if err != nil {
		return narration.Classification{}, upstreamError("classify utterance", err)
	}
	if len(resp.Choices) == 0 {
		return narration.Classification{}, apperrors.New(apperrors.CodeUpstreamUnavailable, "classifier returned no choices")
	}

	classification, err := parseClassification(resp.Choices[0].Message.Content)
	if err != nil {
		return narration.Classification{}, apperrors.New(apperrors.CodeUpstreamUnavailable, "classifier returned malformed output").
			WithMetadata("session_id", sessionID).
			WithMetadata("actor_id", actorID).
			Wrap(err)
	}
	return classification, nil
}

// Render narrates a processed result, grounded on its facts and any
// retrieved memories.
func (c *Client) Render(ctx context.Context, result action.Result, memories []string) (string, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("Resolved action:\n")
	sb.Write(payload)
	if len(memories) > 0 {
		sb.WriteString("\n\nRelevant past events:\n")
		for _, memory := range memories {
			sb.WriteString("- ")
			sb.WriteString(memory)
			sb.WriteString("\n")
		}
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: renderSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: sb.String()},
		},
	})
	if err != nil {
		return "", upstreamError("render narration", err)
	}
	if len(resp.Choices) == 0 {
		return "", apperrors.New(apperrors.CodeUpstreamUnavailable, "renderer returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Embed implements the memory embedder on the embeddings endpoint.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.SmallEmbedding3,
		Input: []string{text},
	})
	if err != nil {
		return nil, upstreamError("embed text", err)
	}
	if len(resp.Data) == 0 {
		return nil, apperrors.New(apperrors.CodeUpstreamUnavailable, "embedding response was empty")
	}
	return resp.Data[0].Embedding, nil
}

// parseClassification decodes the model's JSON output, tolerating code
// fences some models insist on adding.
func parseClassification(content string) (narration.Classification, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var classification narration.Classification
	if err := json.Unmarshal([]byte(content), &classification); err != nil {
		return narration.Classification{}, fmt.Errorf("decode classification: %w", err)
	}
	if !classification.Kind.Valid() {
		return narration.Classification{}, fmt.Errorf("unknown action kind %q", classification.Kind)
	}
	return classification, nil
}

func upstreamError(op string, err error) error {
	return apperrors.New(apperrors.CodeUpstreamUnavailable, op+" failed").Wrap(err)
}

var (
	_ narration.Classifier = (*Client)(nil)
	_ narration.Renderer   = (*Client)(nil)
	_ memory.Embedder      = (*Client)(nil)
)
