// internal/providers/openai/backend.go

// Package openai provides a Backend for OpenAI-compatible chat completion
// APIs. The system and user prompts are concatenated into one user message.
package openai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/mwiater/lime/internal/genparams"
	"github.com/mwiater/lime/internal/logging"
	"github.com/mwiater/lime/internal/providers"
	goopenai "github.com/sashabaranov/go-openai"
)

// DefaultEncoding is the tiktoken encoding used when the model name is not
// known to tiktoken.
const DefaultEncoding = "cl100k_base"

// Options configures the backend.
type Options struct {
	ModelName string
	// APIModelName is sent to the API instead of ModelName when set.
	APIModelName string
	APIKey       string
	BaseURL      string
	ProbeURL     string
	Params       genparams.Params
	Timeout      time.Duration
	HTTPClient   *http.Client
}

// Backend implements providers.Backend with go-openai.
type Backend struct {
	*providers.ParamState

	name     string
	apiModel string
	host     string
	probeURL string
	http     *http.Client
	client   *goopenai.Client
	tokens   *providers.TokenCounter
}

// New constructs a backend. A missing API key is a configuration error.
func New(opts Options) (*Backend, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, providers.ConfigurationError("OPENAI_API_KEY is not set")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	cfg := goopenai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	cfg.HTTPClient = httpClient

	apiModel := opts.APIModelName
	if apiModel == "" {
		apiModel = opts.ModelName
	}
	return &Backend{
		ParamState: providers.NewParamState(opts.Params),
		name:       opts.ModelName,
		apiModel:   apiModel,
		host:       cfg.BaseURL,
		probeURL:   opts.ProbeURL,
		http:       httpClient,
		client:     goopenai.NewClientWithConfig(cfg),
		tokens:     providers.NewTokenCounter(apiModel, DefaultEncoding),
	}, nil
}

func (b *Backend) Name() string         { return b.name }
func (b *Backend) Kind() providers.Kind { return providers.KindOpenAI }

// CheckReady lists the models visible to the key and checks that the
// configured model is among them.
func (b *Backend) CheckReady(ctx context.Context) error {
	list, err := b.client.ListModels(ctx)
	if err != nil {
		var apiErr *goopenai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusUnauthorized {
			return providers.AuthenticationError("openai", err)
		}
		var reqErr *goopenai.RequestError
		if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusUnauthorized {
			return providers.AuthenticationError("openai", err)
		}
		return providers.Diagnose(ctx, b.http, b.probeURL, fmt.Errorf("openai: list models: %w", err))
	}
	for _, m := range list.Models {
		if m.ID == b.apiModel {
			return nil
		}
	}
	return providers.ValidationError("model %q is not available from %s", b.apiModel, b.host)
}

// CountTokens counts with tiktoken.
func (b *Backend) CountTokens(text *string) int {
	return b.tokens.Count(text)
}

func (b *Backend) request(p genparams.Params, content string) goopenai.ChatCompletionRequest {
	req := goopenai.ChatCompletionRequest{
		Model: b.apiModel,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleUser, Content: content},
		},
		MaxTokens: p.MaxTokensOr(genparams.DefaultMaxTokens),
	}
	if p.Temperature != nil {
		t := float32(*p.Temperature)
		if t == 0 {
			// go-openai omits a zero temperature, which the API reads as 1.
			t = math.SmallestNonzeroFloat32
		}
		req.Temperature = t
	}
	if p.TopP != nil {
		req.TopP = float32(*p.TopP)
	}
	if p.Seed != nil {
		seed := int(*p.Seed)
		req.Seed = &seed
	}
	return req
}

// PromptModel sends one chat completion request.
func (b *Backend) PromptModel(ctx context.Context, req providers.PromptRequest) (resp providers.PromptResponse) {
	defer providers.Recover(&resp)

	creq := b.request(b.Effective(req.Overrides), providers.JoinPrompts(req.System, req.User))
	logging.LogRequest("LIME->LLM", b.host, b.apiModel, creq)

	out, err := b.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return providers.Failure(fmt.Errorf("openai: %w", err))
	}
	logging.LogRequest("LLM->LIME", b.host, b.apiModel, out)
	if len(out.Choices) == 0 {
		return providers.Failure(errors.New("openai: response has no choices"))
	}
	text := out.Choices[0].Message.Content
	if req.Progress != nil {
		req.Progress(text)
	}
	return providers.Success(text)
}

// Close releases idle connections.
func (b *Backend) Close() error {
	b.http.CloseIdleConnections()
	return nil
}
