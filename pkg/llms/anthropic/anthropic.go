// Package anthropic adapts Anthropic's Messages API to the injected function
// types the refinement loop and tree search consume. The adapter owns prompt
// construction and response parsing; retry, backtracking, and budget policy
// stay with the engine.
package anthropic

import (
	"context"
	goerrors "errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/XiaoConstantine/reflexion-go/pkg/correction"
	"github.com/XiaoConstantine/reflexion-go/pkg/errors"
	"github.com/XiaoConstantine/reflexion-go/pkg/logging"
	"github.com/XiaoConstantine/reflexion-go/pkg/state"
	"github.com/XiaoConstantine/reflexion-go/pkg/treesearch"
	"github.com/XiaoConstantine/reflexion-go/pkg/utils"
)

const (
	// DefaultModel is used when no model is configured. The SDK version this
	// module can build against does not yet export a named constant for this
	// model, so the identifier string is spelled out.
	DefaultModel = anthropic.Model("claude-sonnet-4-5-20250929")

	// DefaultMaxTokens bounds each completion.
	DefaultMaxTokens = 1024

	defaultTemperature = 0.7
)

// Client wraps the Anthropic SDK client for reasoning calls.
type Client struct {
	client    *anthropic.Client
	model     anthropic.Model
	maxTokens int64
	baseURL   string
}

// Option configures a Client.
type Option func(*Client)

// WithModel overrides the default model.
func WithModel(model anthropic.Model) Option {
	return func(c *Client) { c.model = model }
}

// WithMaxTokens overrides the per-call completion bound.
func WithMaxTokens(n int64) Option {
	return func(c *Client) { c.maxTokens = n }
}

// WithBaseURL points the client at an alternate API endpoint.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// New creates a client. An empty apiKey falls back to the ANTHROPIC_API_KEY
// environment variable.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New(errors.InvalidInput, "API key is required")
	}

	c := &Client{
		model:     DefaultModel,
		maxTokens: DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(c)
	}

	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if c.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(c.baseURL))
	}
	client := anthropic.NewClient(clientOpts...)
	c.client = &client
	return c, nil
}

// GenerateFn returns a generation function for the refinement loop. The
// model answers as a JSON object carrying "value" and "confidence"; responses
// that are not valid JSON become a value-only result rather than an error.
func (c *Client) GenerateFn() correction.GenerateFn {
	return func(ctx context.Context, st state.ReasoningState, opts map[string]interface{}) (map[string]interface{}, error) {
		prompt := buildGeneratePrompt(st, opts)
		text, err := c.complete(ctx, prompt, temperatureFrom(st, opts))
		if err != nil {
			return nil, err
		}

		result, perr := utils.ParseJSONResponse(text)
		if perr != nil {
			return map[string]interface{}{"value": strings.TrimSpace(text)}, nil
		}
		return result, nil
	}
}

// ThoughtFn returns a thought generator for tree search. Candidates come back
// one per line.
func (c *Client) ThoughtFn() treesearch.ThoughtFn {
	return func(ctx context.Context, nodeCtx treesearch.NodeContext, beamWidth int, opts map[string]interface{}) ([]string, error) {
		prompt := buildThoughtPrompt(nodeCtx, beamWidth)
		text, err := c.complete(ctx, prompt, temperatureFrom(nil, opts))
		if err != nil {
			return nil, err
		}

		var thoughts []string
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(stripListMarker(line))
			if line != "" {
				thoughts = append(thoughts, line)
			}
		}
		if len(thoughts) == 0 {
			return nil, errors.New(errors.GenerationFailed, "model produced no candidate thoughts")
		}
		if len(thoughts) > beamWidth {
			thoughts = thoughts[:beamWidth]
		}
		return thoughts, nil
	}
}

// EvaluationFn returns a thought evaluator for tree search. The model replies
// with a bare number in [0, 1].
func (c *Client) EvaluationFn() treesearch.EvaluationFn {
	return func(ctx context.Context, thought string, nodeCtx treesearch.NodeContext, opts map[string]interface{}) (float64, error) {
		prompt := buildEvalPrompt(thought, nodeCtx)
		// Evaluation wants stable scores, not diverse ones
		text, err := c.complete(ctx, prompt, 0.0)
		if err != nil {
			return 0, err
		}

		value, perr := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if perr != nil {
			return 0, errors.WithFields(
				errors.Wrap(perr, errors.GenerationFailed, "evaluation response is not a number"),
				errors.Fields{"response": strings.TrimSpace(text)},
			)
		}
		return value, nil
	}
}

// complete runs one Messages call and extracts the text content.
func (c *Client) complete(ctx context.Context, prompt string, temperature float64) (string, error) {
	logger := logging.GetLogger()

	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model: c.model,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(temperature),
	})
	if err != nil {
		var apiErr *anthropic.Error
		if goerrors.As(err, &apiErr) {
			logger.Error(ctx, "Anthropic API error: status code %d", apiErr.StatusCode)
		}
		return "", errors.WithFields(
			errors.Wrap(err, errors.GenerationFailed, "failed to generate response"),
			errors.Fields{"model": string(c.model)},
		)
	}
	if message == nil || len(message.Content) == 0 {
		return "", errors.New(errors.GenerationFailed, "received empty content from Anthropic API")
	}

	var text string
	if block := message.Content[0]; block.Type == "text" {
		text = block.Text
	}

	logger.Debug(ctx, "Anthropic response: %d prompt tokens, %d completion tokens",
		message.Usage.InputTokens, message.Usage.OutputTokens)
	return text, nil
}

func buildGeneratePrompt(st state.ReasoningState, opts map[string]interface{}) string {
	var b strings.Builder
	b.WriteString("Solve the problem described by the reasoning state below.\n")

	if problem, ok := st["problem"].(string); ok && problem != "" {
		fmt.Fprintf(&b, "Problem: %s\n", problem)
	}
	if strategy, ok := st["strategy"].(string); ok && strategy != "" {
		fmt.Fprintf(&b, "Use a %s approach.\n", strategy)
	}
	if correctionHint, ok := opts["correction"].(string); ok && correctionHint != "" {
		fmt.Fprintf(&b, "Your previous attempt was corrected with: %s.\n", correctionHint)
	}

	b.WriteString(`Respond with a JSON object: {"value": <your answer>, "confidence": <0..1>}`)
	return b.String()
}

func buildThoughtPrompt(nodeCtx treesearch.NodeContext, beamWidth int) string {
	var b strings.Builder
	b.WriteString("You are exploring candidate next steps for a reasoning problem.\n")
	if len(nodeCtx.Path) > 0 {
		b.WriteString("Steps so far:\n")
		for _, step := range nodeCtx.Path {
			fmt.Fprintf(&b, "- %s\n", step)
		}
	}
	fmt.Fprintf(&b, "Propose up to %d distinct next steps, one per line, no numbering.", beamWidth)
	return b.String()
}

func buildEvalPrompt(thought string, nodeCtx treesearch.NodeContext) string {
	var b strings.Builder
	b.WriteString("Rate how promising this reasoning step is on a scale from 0 to 1.\n")
	if len(nodeCtx.Path) > 0 {
		fmt.Fprintf(&b, "Context: %s\n", strings.Join(nodeCtx.Path, " -> "))
	}
	fmt.Fprintf(&b, "Step: %s\n", thought)
	b.WriteString("Reply with only the number.")
	return b.String()
}

// temperatureFrom resolves the sampling temperature, preferring the
// per-attempt override the correction loop writes into opts.
func temperatureFrom(st state.ReasoningState, opts map[string]interface{}) float64 {
	if v, ok := numeric(opts["temperature"]); ok {
		return v
	}
	if st != nil {
		if v, ok := numeric(st["temperature"]); ok {
			return v
		}
	}
	return defaultTemperature
}

func numeric(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func stripListMarker(line string) string {
	trimmed := strings.TrimSpace(line)
	trimmed = strings.TrimLeft(trimmed, "-*")
	if i := strings.IndexAny(trimmed, ".)"); i > 0 && i <= 2 {
		if _, err := strconv.Atoi(strings.TrimSpace(trimmed[:i])); err == nil {
			trimmed = trimmed[i+1:]
		}
	}
	return trimmed
}
