// internal/providers/anthropic/backend.go

// Package anthropic provides a Backend for the Anthropic Messages API. The
// system prompt travels in the request's system field and the user prompt
// as a single user message.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/mwiater/lime/internal/genparams"
	"github.com/mwiater/lime/internal/logging"
	"github.com/mwiater/lime/internal/providers"
)

// Options configures the backend.
type Options struct {
	ModelName    string
	APIModelName string
	APIKey       string
	BaseURL      string
	ProbeURL     string
	Params       genparams.Params
	Timeout      time.Duration
	HTTPClient   *http.Client
}

// Backend implements providers.Backend with anthropic-sdk-go.
type Backend struct {
	*providers.ParamState

	name     string
	apiModel string
	host     string
	probeURL string
	http     *http.Client
	client   sdk.Client
}

// New constructs a backend. A missing API key is a configuration error.
func New(opts Options) (*Backend, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, providers.ConfigurationError("ANTHROPIC_API_KEY is not set")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	host := "https://api.anthropic.com"
	clientOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		host = strings.TrimRight(opts.BaseURL, "/")
		clientOpts = append(clientOpts, option.WithBaseURL(host+"/"))
	}

	apiModel := opts.APIModelName
	if apiModel == "" {
		apiModel = opts.ModelName
	}
	return &Backend{
		ParamState: providers.NewParamState(opts.Params),
		name:       opts.ModelName,
		apiModel:   apiModel,
		host:       host,
		probeURL:   opts.ProbeURL,
		http:       httpClient,
		client:     sdk.NewClient(clientOpts...),
	}, nil
}

func (b *Backend) Name() string         { return b.name }
func (b *Backend) Kind() providers.Kind { return providers.KindAnthropic }

// CheckReady pages through the model list and checks membership.
func (b *Backend) CheckReady(ctx context.Context) error {
	pager := b.client.Models.ListAutoPaging(ctx, sdk.ModelListParams{})
	for pager.Next() {
		if pager.Current().ID == b.apiModel {
			return nil
		}
	}
	if err := pager.Err(); err != nil {
		var apiErr *sdk.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
			return providers.AuthenticationError("anthropic", err)
		}
		return providers.Diagnose(ctx, b.http, b.probeURL, fmt.Errorf("anthropic: list models: %w", err))
	}
	return providers.ValidationError("model %q is not available from %s", b.apiModel, b.host)
}

// CountTokens returns -1 for any text: there is no local tokenizer for
// Anthropic models.
func (b *Backend) CountTokens(text *string) int {
	if text == nil {
		return 0
	}
	return -1
}

func (b *Backend) params(p genparams.Params, system, user *string) sdk.MessageNewParams {
	userText := ""
	if user != nil {
		userText = *user
	}
	req := sdk.MessageNewParams{
		Model:     sdk.Model(b.apiModel),
		MaxTokens: int64(p.MaxTokensOr(genparams.DefaultMaxTokens)),
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(userText))},
	}
	if system != nil && *system != "" {
		req.System = []sdk.TextBlockParam{{Text: *system}}
	}
	if p.Temperature != nil {
		req.Temperature = sdk.Float(*p.Temperature)
	}
	if p.TopK != nil {
		req.TopK = sdk.Int(int64(*p.TopK))
	}
	if p.TopP != nil {
		req.TopP = sdk.Float(*p.TopP)
	}
	return req
}

// PromptModel sends one Messages request and joins the returned text
// blocks. Seed is not supported by the API and is ignored.
func (b *Backend) PromptModel(ctx context.Context, req providers.PromptRequest) (resp providers.PromptResponse) {
	defer providers.Recover(&resp)

	params := b.params(b.Effective(req.Overrides), req.System, req.User)
	logging.LogRequest("LIME->LLM", b.host, b.apiModel, params)

	msg, err := b.client.Messages.New(ctx, params)
	if err != nil {
		return providers.Failure(fmt.Errorf("anthropic: %w", err))
	}
	logging.LogRequest("LLM->LIME", b.host, b.apiModel, msg)

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	out := text.String()
	if req.Progress != nil {
		req.Progress(out)
	}
	return providers.Success(out)
}

// Close releases idle connections.
func (b *Backend) Close() error {
	b.http.CloseIdleConnections()
	return nil
}
