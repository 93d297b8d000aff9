// Package llm implements the Model Gateway: the single place in the
// pipeline that speaks provider APIs. Every other component calls
// Gateway.Call with a stage name; the gateway resolves that stage to a
// (provider, model) binding, retries transient failures with exponential
// backoff, and reports token usage through an observability hook.
package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"google.golang.org/genai"

	"subvertnews/internal/config"
	"subvertnews/internal/core"
)

// Stage names the pipeline call site a Call belongs to. Each stage is
// bound by configuration to one (provider, model) tuple.
type Stage string

const (
	StageBrainstorm         Stage = "brainstorm"
	StageGenerate           Stage = "generate"
	StageTournament         Stage = "tournament"
	StageTournamentFinal    Stage = "tournament-final"
	StageTournamentElim     Stage = "tournament-elim"
	StagePolish             Stage = "polish"
)

// Usage reports token accounting for one Call, forwarded to the
// observability hook regardless of which provider served the request.
type Usage struct {
	InputTokens    int
	OutputTokens   int
	CacheCreation  int
	CacheRead      int
}

// UsageHook receives usage accounting after every completed Call.
type UsageHook func(stage Stage, provider, model string, usage Usage, latency time.Duration)

const (
	retryBaseDelay = 2 * time.Second
	maxAttempts    = 4
)

// Gateway is the Model Gateway. One Gateway is shared by every worker;
// provider clients are created once and lazily, then reused.
type Gateway struct {
	cfg  *config.Stages
	hook UsageHook

	mu        sync.Mutex
	genaiOnce sync.Once
	genaiErr  error
	genai     *genai.Client

	anthOnce sync.Once
	anth     *anthropic.Client
}

// NewGateway builds a Gateway bound to the stage configuration in cfg.
// hook may be nil, in which case usage is dropped silently.
func NewGateway(cfg *config.Stages, hook UsageHook) *Gateway {
	if hook == nil {
		hook = func(Stage, string, string, Usage, time.Duration) {}
	}
	return &Gateway{cfg: cfg, hook: hook}
}

func (g *Gateway) binding(stage Stage) config.StageBinding {
	switch stage {
	case StageBrainstorm:
		return g.cfg.Brainstorm
	case StageGenerate:
		return g.cfg.Generate
	case StageTournament:
		return g.cfg.Tournament
	case StageTournamentFinal:
		return g.cfg.TournamentFinals
	case StageTournamentElim:
		return g.cfg.TournamentElim
	case StagePolish:
		return g.cfg.Polish
	default:
		return g.cfg.Generate
	}
}

// Call is the Model Gateway's contract: Call(stage, prompt, systemPrompt)
// -> (text, usage). systemPrompt may be empty; when present and the stage's
// bound provider supports ephemeral prompt caching, it is marked cacheable
// so repeated calls within a warm process reuse it.
func (g *Gateway) Call(ctx context.Context, stage Stage, prompt, systemPrompt string) (string, Usage, error) {
	binding := g.binding(stage)
	if binding.Model == "" {
		return "", Usage{}, fmt.Errorf("%w: no model bound for stage %q", core.ErrFatal, stage)
	}

	var (
		text  string
		usage Usage
		err   error
	)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		start := time.Now()
		text, usage, err = g.callOnce(ctx, binding, prompt, systemPrompt)
		latency := time.Since(start)

		if err == nil {
			g.hook(stage, binding.Provider, binding.Model, usage, latency)
			return text, usage, nil
		}
		if !core.IsTransient(err) {
			return "", Usage{}, err
		}
		if attempt == maxAttempts-1 {
			break
		}
		delay := time.Duration(float64(retryBaseDelay)*math.Pow(2, float64(attempt))) +
			time.Duration(rand.Float64()*float64(time.Second))
		select {
		case <-ctx.Done():
			return "", Usage{}, ctx.Err()
		case <-time.After(delay):
		}
	}
	return "", Usage{}, fmt.Errorf("model gateway: exhausted retries for stage %q: %w", stage, err)
}

// classifyHTTPStatus maps a provider HTTP status code to the error kind
// that should carry it: 429 and 5xx are transient (the gateway retries
// them), every other 4xx is fatal (bad key, bad request, won't succeed
// on retry), and anything else is left transient so unrecognized codes
// don't silently stop retrying.
func classifyHTTPStatus(code int) error {
	if code == 429 || code >= 500 {
		return core.ErrTransient
	}
	if code >= 400 {
		return core.ErrFatal
	}
	return core.ErrTransient
}

// wireError classifies a provider call error by the SDK's own
// status-code-bearing error type. Errors that don't match either SDK's
// typed error (a dropped connection, a context cancellation surfaced by
// the transport) fall back to transient, since there is no status code
// to reason from and the safe default is to retry.
func wireError(err error) error {
	var anthErr *anthropic.Error
	if errors.As(err, &anthErr) {
		return fmt.Errorf("%w: %v", classifyHTTPStatus(anthErr.StatusCode), err)
	}
	var googErr *genai.APIError
	if errors.As(err, &googErr) {
		return fmt.Errorf("%w: %v", classifyHTTPStatus(googErr.Code), err)
	}
	return fmt.Errorf("%w: %v", core.ErrTransient, err)
}

func (g *Gateway) callOnce(ctx context.Context, binding config.StageBinding, prompt, systemPrompt string) (string, Usage, error) {
	switch binding.Provider {
	case "anthropic":
		return g.callAnthropic(ctx, binding.Model, prompt, systemPrompt)
	case "google":
		return g.callGoogle(ctx, binding.Model, prompt, systemPrompt)
	default:
		return "", Usage{}, fmt.Errorf("%w: model gateway: unknown provider %q", core.ErrFatal, binding.Provider)
	}
}

func (g *Gateway) googleClient(ctx context.Context) (*genai.Client, error) {
	g.genaiOnce.Do(func() {
		apiKey := g.cfg.GeminiAPIKey
		if apiKey == "" {
			g.genaiErr = fmt.Errorf("%w: GEMINI_API_KEY not configured", core.ErrFatal)
			return
		}
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			g.genaiErr = fmt.Errorf("create genai client: %w", err)
			return
		}
		g.genai = client
	})
	return g.genai, g.genaiErr
}

func (g *Gateway) callGoogle(ctx context.Context, model, prompt, systemPrompt string) (string, Usage, error) {
	client, err := g.googleClient(ctx)
	if err != nil {
		return "", Usage{}, err
	}

	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: prompt}},
		Role:  "user",
	}}

	var gcfg *genai.GenerateContentConfig
	if systemPrompt != "" {
		gcfg = &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemPrompt}}},
		}
	}

	resp, err := client.Models.GenerateContent(ctx, model, contents, gcfg)
	if err != nil {
		return "", Usage{}, fmt.Errorf("genai generate content: %w", wireError(err))
	}

	text := resp.Text()
	if text == "" {
		return "", Usage{}, fmt.Errorf("%w: empty response from %s", core.ErrParse, model)
	}

	usage := Usage{}
	if resp.UsageMetadata != nil {
		usage.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		usage.CacheRead = int(resp.UsageMetadata.CachedContentTokenCount)
	}
	return text, usage, nil
}

func (g *Gateway) anthropicClient() *anthropic.Client {
	g.anthOnce.Do(func() {
		key := g.cfg.AnthropicAPIKey
		client := anthropic.NewClient(anthropicoption.WithAPIKey(key))
		g.anth = &client
	})
	return g.anth
}

func (g *Gateway) callAnthropic(ctx context.Context, model, prompt, systemPrompt string) (string, Usage, error) {
	if g.cfg.AnthropicAPIKey == "" {
		return "", Usage{}, fmt.Errorf("%w: ANTHROPIC_API_KEY not configured", core.ErrFatal)
	}
	client := g.anthropicClient()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: 2048,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: systemPrompt, CacheControl: anthropic.CacheControlEphemeralParam{}},
		}
	}

	msg, err := client.Messages.New(ctx, params)
	if err != nil {
		return "", Usage{}, fmt.Errorf("anthropic messages.new: %w", wireError(err))
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return "", Usage{}, fmt.Errorf("%w: empty response from %s", core.ErrParse, model)
	}

	usage := Usage{
		InputTokens:   int(msg.Usage.InputTokens),
		OutputTokens:  int(msg.Usage.OutputTokens),
		CacheCreation: int(msg.Usage.CacheCreationInputTokens),
		CacheRead:     int(msg.Usage.CacheReadInputTokens),
	}
	return text, usage, nil
}

// Close releases provider client resources held by the gateway.
// genai.Client has no explicit Close in the current SDK; nothing to release
// beyond the HTTP transport, which the runtime reclaims.
func (g *Gateway) Close() error {
	return nil
}
