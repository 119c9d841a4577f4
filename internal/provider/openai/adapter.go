// Package openai adapts an OpenAI-compatible chat-completions backend to
// the provider.Adapter contract.
package openai

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/orderparse/internal/cost"
	"github.com/sells-group/orderparse/internal/extract"
	"github.com/sells-group/orderparse/internal/model"
	"github.com/sells-group/orderparse/internal/provider"
	"github.com/sells-group/orderparse/internal/resilience"
	oai "github.com/sells-group/orderparse/pkg/openai"
)

// Name is the provider identity of this adapter.
const Name = "openai"

const (
	defaultModel     = "gpt-4o"
	defaultMaxTokens = 2048
	temperature      = 0.1
)

// Options tune the adapter. Zero values select defaults.
type Options struct {
	Model     string
	MaxTokens int
	Truncator *extract.Truncator
	Costs     *cost.Calculator
}

// Adapter extracts freight-order fields via chat completions in JSON mode.
type Adapter struct {
	client    oai.Client
	model     string
	maxTokens int
	truncator *extract.Truncator
	costs     *cost.Calculator
}

var _ provider.Adapter = (*Adapter)(nil)

// New creates an Adapter over client.
func New(client oai.Client, opts Options) *Adapter {
	a := &Adapter{
		client:    client,
		model:     opts.Model,
		maxTokens: opts.MaxTokens,
		truncator: opts.Truncator,
		costs:     opts.Costs,
	}
	if a.model == "" {
		a.model = defaultModel
	}
	if a.maxTokens <= 0 {
		a.maxTokens = defaultMaxTokens
	}
	return a
}

// Name implements provider.Adapter.
func (a *Adapter) Name() string { return Name }

// Extract implements provider.Adapter.
func (a *Adapter) Extract(ctx context.Context, doc *model.Document, hints model.Hints) (*model.ExtractionResult, error) {
	var parts []oai.ContentPart
	if text := extract.UserText(a.truncator.Truncate(doc.Text)); text != "" {
		parts = append(parts, oai.TextPart(text))
	}
	for _, p := range doc.Pages {
		parts = append(parts, oai.ImagePart(p.MediaType, p.Data))
	}
	if len(parts) == 0 {
		return nil, eris.Errorf("openai: document %s has no text or images", doc.Ref)
	}

	temp := temperature
	maxTokens := a.maxTokens
	resp, err := a.client.ChatCompletion(ctx, oai.ChatCompletionRequest{
		Model: a.model,
		Messages: []oai.Message{
			{Role: "system", Content: extract.SystemPrompt(hints)},
			{Role: "user", Parts: parts},
		},
		Temperature:    &temp,
		MaxTokens:      &maxTokens,
		ResponseFormat: oai.JSONObject,
	})
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, extract.Invalid(Name, "no choices in completion", nil)
	}

	res, err := extract.Parse(Name, resp.Choices[0].Message.Content, extract.OpenAIProfile)
	if err != nil {
		return nil, err
	}
	res.Usage = model.TokenUsage{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		Cost:         a.costs.OpenAI(a.model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens),
	}

	zap.L().Debug("openai: extraction complete",
		zap.String("document", doc.Ref),
		zap.Int("fields", len(res.Fields)),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.String("finish_reason", resp.Choices[0].FinishReason),
	)
	return res, nil
}

// HealthCheck lists models as a lightweight probe.
func (a *Adapter) HealthCheck(ctx context.Context) provider.HealthStatus {
	start := time.Now()
	_, err := a.client.ListModels(ctx)
	hs := provider.HealthStatus{
		Provider:     Name,
		Healthy:      err == nil,
		ResponseTime: time.Since(start),
		CheckedAt:    time.Now().UTC(),
	}
	if err != nil {
		hs.Error = err.Error()
	}
	return hs
}

func classify(err error) error {
	var apiErr *oai.APIError
	if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.StatusCode) {
		return resilience.NewTransientError(apiErr, apiErr.StatusCode)
	}
	return eris.Wrap(err, "openai: chat completion")
}
