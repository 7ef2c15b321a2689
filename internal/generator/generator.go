// Package generator holds the model boundary: one prompt in, one
// structured action plan out. Nothing in here talks to Moltbook.
package generator

import (
	"context"
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Usage reports token consumption for one plan generation.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Generator produces action plans via the Anthropic Messages API.
type Generator struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// New creates a generator. ANTHROPIC_API_KEY must be set.
func New(model string, maxTokens int) (*Generator, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("generator: ANTHROPIC_API_KEY is not set")
	}
	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)
	return &Generator{
		client:    client,
		model:     model,
		maxTokens: int64(maxTokens),
	}, nil
}

// Plan sends the persona as system prompt and the cycle context as the
// user message, then parses the response into an ActionPlan. A response
// that does not contain a valid plan object is discarded whole.
func (g *Generator) Plan(ctx context.Context, system, prompt string) (*ActionPlan, Usage, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: g.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: system},
		}
	}

	message, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return nil, Usage{}, fmt.Errorf("generator: message request failed: %w", err)
	}

	content := ""
	for _, block := range message.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			content += variant.Text
		}
	}

	usage := Usage{
		InputTokens:  message.Usage.InputTokens,
		OutputTokens: message.Usage.OutputTokens,
	}

	plan, err := ParsePlan(content)
	if err != nil {
		return nil, usage, err
	}
	return plan, usage, nil
}
