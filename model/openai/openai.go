// Package openai provides a processor backed by the OpenAI Chat Completions API.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/plantmesh/plantmesh/core"
)

// Options configures the OpenAI processor (temperature, model id, completion
// budget, API key). Extend via functional options to preserve stability.
type Options struct {
	Model               openai.ChatModel
	Temperature         float64
	MaxCompletionTokens int64
	APIKey              string
}

// Processor wraps the OpenAI Chat Completions API behind the core.Processor
// contract.
type Processor struct {
	client *openai.Client
	opts   Options
}

// NewProcessor creates a new OpenAI processor using the official client.
func NewProcessor(optFns ...func(o *Options)) *Processor {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 1024,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := openai.NewClient(clientOpts...)

	return &Processor{
		client: &client,
		opts:   opts,
	}
}

// NewProcessorFromClient creates a new OpenAI processor from an existing client.
func NewProcessorFromClient(client *openai.Client, optFns ...func(o *Options)) *Processor {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 1024,
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
// system message; auto-triggered invocations are asked to stay brief since
// their output feeds audit trails rather than a chat surface.
func (p *Processor) Process(ctx context.Context, agent core.AgentSpec, message string, autoTriggered bool) (string, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if system := systemPrompt(agent, autoTriggered); system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage(message))

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               p.opts.Model,
		Messages:            messages,
		Temperature:         openai.Float(p.opts.Temperature),
		MaxCompletionTokens: openai.Int(p.opts.MaxCompletionTokens),
	})
	if err != nil {
		return "", fmt.Errorf("openai api error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai api returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
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
