package faq

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
)

// ModelAnswerer asks a chat model, grounded on the FAQ entries, to answer
// questions the keyword lookup missed.
type ModelAnswerer struct {
	client *openai.Client
	model  string
	prompt string
}

var _ Fallback = (*ModelAnswerer)(nil)

func NewModelAnswerer(client *openai.Client, model, systemPrompt string) (*ModelAnswerer, error) {
	if client == nil {
		return nil, errors.New("faq model answerer needs a client")
	}
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("faq model answerer needs a model")
	}
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, errors.New("faq model answerer needs a system prompt")
	}
	return &ModelAnswerer{client: client, model: model, prompt: systemPrompt}, nil
}

func (m *ModelAnswerer) Answer(ctx context.Context, query string, entries []Entry) (string, error) {
	var b strings.Builder
	b.WriteString(m.prompt)
	b.WriteString("\n\nClinic facts:\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "- %s %s\n", e.Question, strings.TrimSpace(e.Answer))
	}

	resp, err := m.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(m.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(b.String()),
			openai.UserMessage(query),
		},
		Temperature: openai.Float(0),
	})
	if err != nil {
		return "", fmt.Errorf("faq completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("faq completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
