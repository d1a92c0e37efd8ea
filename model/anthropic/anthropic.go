// Package anthropic provides a processor backed by the Anthropic Claude API.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/plantmesh/plantmesh/core"
)

// Options configures the Anthropic processor (temperature, model id,
// max tokens, API key). Extend via functional options to preserve stability.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Processor wraps the Anthropic Messages API behind the core.Processor
// contract.
type Processor struct {
	client *anthropic.Client
	opts   Options
}

// NewProcessor creates a new Anthropic processor using the official client.
func NewProcessor(optFns ...func(o *Options)) *Processor {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   1024,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Processor{
		client: &client,
		opts:   opts,
	}
}

// NewProcessorFromClient creates a new Anthropic processor from an existing client.
func NewProcessorFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Processor {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   1024,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Processor{
		client: client,
		opts:   opts,
	}
}

// Process implements core.Processor. The agent's instructions become the
// system prompt; auto-triggered invocations are asked to stay brief since
// their output feeds audit trails rather than a chat surface.
func (p *Processor) Process(ctx context.Context, agent core.AgentSpec, message string, autoTriggered bool) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       p.opts.Model,
		MaxTokens:   p.opts.MaxTokens,
		Temperature: anthropic.Float(p.opts.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(message)),
		},
	}

	if system := systemPrompt(agent, autoTriggered); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic api error: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}
	return sb.String(), nil
}

func systemPrompt(agent core.AgentSpec, autoTriggered bool) string {
	system := agent.Instructions
	if autoTriggered {
		if system != "" {
			system += "\n\n"
		}
		system += "This invocation was triggered automatically by a plant event. Respond with a brief operational summary."
	}
	return system
}
