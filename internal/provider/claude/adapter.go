// Package claude adapts the Anthropic Messages API to the provider.Adapter
// contract.
package claude

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/orderparse/internal/cost"
	"github.com/sells-group/orderparse/internal/extract"
	"github.com/sells-group/orderparse/internal/model"
	"github.com/sells-group/orderparse/internal/provider"
	"github.com/sells-group/orderparse/internal/resilience"
	"github.com/sells-group/orderparse/pkg/anthropic"
)

// Name is the provider identity of this adapter.
const Name = "claude"

const (
	defaultModel     = "claude-sonnet-4-5-20250929"
	defaultMaxTokens = 2048
	healthMaxTokens  = 10
	temperature      = 0.1
)

// Options tune the adapter. Zero values select defaults.
type Options struct {
	Model     string
	MaxTokens int64
	// CacheTTL is the prompt-cache lifetime of the system prompt ("5m" or "1h").
	CacheTTL  string
	Truncator *extract.Truncator
	Costs     *cost.Calculator
}

// Adapter extracts freight-order fields with a Claude model.
type Adapter struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	cacheTTL  string
	truncator *extract.Truncator
	costs     *cost.Calculator
}

var _ provider.Adapter = (*Adapter)(nil)

// New creates an Adapter over client.
func New(client anthropic.Client, opts Options) *Adapter {
	a := &Adapter{
		client:    client,
		model:     opts.Model,
		maxTokens: opts.MaxTokens,
		cacheTTL:  opts.CacheTTL,
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
	msg := anthropic.Message{
		Role:    "user",
		Content: extract.UserText(a.truncator.Truncate(doc.Text)),
	}
	for _, p := range doc.Pages {
		msg.Images = append(msg.Images, anthropic.Image{MediaType: p.MediaType, Data: p.Data})
	}
	if msg.Content == "" && len(msg.Images) == 0 {
		return nil, eris.Errorf("claude: document %s has no text or images", doc.Ref)
	}

	temp := temperature
	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       a.model,
		MaxTokens:   a.maxTokens,
		System:      a.systemBlocks(hints),
		Messages:    []anthropic.Message{msg},
		Temperature: &temp,
	})
	if err != nil {
		return nil, classify(err)
	}

	res, err := extract.Parse(Name, resp.Text(), extract.ClaudeProfile)
	if err != nil {
		return nil, err
	}
	u := resp.Usage
	res.Usage = model.TokenUsage{
		InputTokens:         int(u.InputTokens),
		OutputTokens:        int(u.OutputTokens),
		CacheCreationTokens: int(u.CacheCreationInputTokens),
		CacheReadTokens:     int(u.CacheReadInputTokens),
		Cost:                a.costs.Claude(a.model, u.InputTokens, u.OutputTokens, u.CacheCreationInputTokens, u.CacheReadInputTokens),
	}

	zap.L().Debug("claude: extraction complete",
		zap.String("document", doc.Ref),
		zap.Int("fields", len(res.Fields)),
		zap.Int64("input_tokens", u.InputTokens),
		zap.Int64("cache_read_tokens", u.CacheReadInputTokens),
		zap.String("stop_reason", resp.StopReason),
	)
	return res, nil
}

// systemBlocks puts the document-independent prompt in a cached block and
// any sender context after the cache breakpoint.
func (a *Adapter) systemBlocks(hints model.Hints) []anthropic.SystemBlock {
	blocks := anthropic.BuildCachedSystemBlocks(extract.BasePrompt()+"\n\n"+extract.JSONOnly, a.cacheTTL)
	if c := extract.ContextPrompt(hints); c != "" {
		blocks = append(blocks, anthropic.SystemBlock{Text: c})
	}
	return blocks
}

// HealthCheck sends a minimal message as a probe.
func (a *Adapter) HealthCheck(ctx context.Context) provider.HealthStatus {
	start := time.Now()
	_, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     a.model,
		MaxTokens: healthMaxTokens,
		Messages:  []anthropic.Message{{Role: "user", Content: "Hello"}},
	})
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
	if code := anthropic.StatusCode(err); resilience.IsTransientHTTPStatus(code) {
		return resilience.NewTransientError(err, code)
	}
	return eris.Wrap(err, "claude: create message")
}
