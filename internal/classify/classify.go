// Package classify judges a day's window titles with Claude.
//
// The prompt is a user-supplied template with a {{titles}} placeholder;
// the protocol around the response (a bare "no" means approval) lives in
// the engine, not here. This package is a pure request/response shim.
package classify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const maxTokens = 1024

// Classifier submits label lists to the Anthropic Messages API.
type Classifier struct {
	client   anthropic.Client
	model    string
	template string
}

// New creates a Classifier. The template must contain a {{titles}}
// placeholder, replaced with the newline-joined labels on each call.
func New(apiKey, model, template string, opts ...option.RequestOption) *Classifier {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Classifier{
		client:   anthropic.NewClient(opts...),
		model:    model,
		template: template,
	}
}

// Classify renders the prompt for the given labels and returns the raw
// model response text.
func (c *Classifier) Classify(ctx context.Context, labels []string) (string, error) {
	prompt := strings.ReplaceAll(c.template, "{{titles}}", strings.Join(labels, "\n"))

	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("classifier request: %w", err)
	}

	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", errors.New("classifier returned no text content")
}
