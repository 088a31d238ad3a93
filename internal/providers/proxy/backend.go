// internal/providers/proxy/backend.go

// Package proxy provides a Backend that forwards prompts to a user-supplied
// HTTP server speaking a two-endpoint protocol:
//
//	GET  /check  -> {"status": "ok"}
//	POST /infer  {"question": "...", <params>} -> {"answer": "..."} | {"error": "..."}
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mwiater/lime/internal/genparams"
	"github.com/mwiater/lime/internal/logging"
	"github.com/mwiater/lime/internal/providers"
)

// DefaultURL is used when no proxy url is configured.
const DefaultURL = "http://localhost:5000"

const checkTimeout = 5 * time.Second

// Options configures the backend.
type Options struct {
	ModelName string
	URL       string
	// ValidRequestArgs, when non-empty, limits the params sent with /infer.
	ValidRequestArgs []string
	// ExtraParams are sent with every request, below the generation params.
	ExtraParams map[string]any
	Params      genparams.Params
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// Backend implements providers.Backend over the proxy protocol.
type Backend struct {
	*providers.ParamState

	name    string
	baseURL string
	allowed map[string]bool
	extra   map[string]any
	client  *http.Client
	tokens  *providers.TokenCounter
}

type checkResponse struct {
	Status string `json:"status"`
}

type inferResponse struct {
	Answer *string `json:"answer"`
	Error  string  `json:"error"`
}

// New constructs a proxy backend.
func New(opts Options) (*Backend, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.URL), "/")
	if baseURL == "" {
		baseURL = DefaultURL
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 600 * time.Second
		}
		client = &http.Client{
			Timeout:   timeout,
			Transport: &http.Transport{ForceAttemptHTTP2: false},
		}
	}
	var allowed map[string]bool
	if len(opts.ValidRequestArgs) > 0 {
		allowed = make(map[string]bool, len(opts.ValidRequestArgs))
		for _, k := range opts.ValidRequestArgs {
			allowed[strings.TrimSpace(k)] = true
		}
	}
	return &Backend{
		ParamState: providers.NewParamState(opts.Params),
		name:       opts.ModelName,
		baseURL:    baseURL,
		allowed:    allowed,
		extra:      opts.ExtraParams,
		client:     client,
		tokens:     providers.NewTokenCounter(opts.ModelName, ""),
	}, nil
}

func (b *Backend) Name() string         { return b.name }
func (b *Backend) Kind() providers.Kind { return providers.KindProxy }

// CheckReady calls /check and expects status "ok" within five seconds.
func (b *Backend) CheckReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	endpoint := b.baseURL + "/check"
	logging.LogRequest("LIME->LLM", b.baseURL, b.name, map[string]string{"method": http.MethodGet, "url": endpoint})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return providers.NetworkError(fmt.Errorf("proxy %s: %w", b.baseURL, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	logging.LogRequest("LLM->LIME", b.baseURL, b.name, body)

	var check checkResponse
	if err := json.Unmarshal(body, &check); err != nil {
		return providers.ValidationError("proxy /check returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	if check.Status != "ok" {
		return providers.ValidationError("proxy status not ok: %q", check.Status)
	}
	return nil
}

// CountTokens counts with tiktoken when the model name is known to it.
func (b *Backend) CountTokens(text *string) int {
	return b.tokens.Count(text)
}

// payload builds the /infer body: extra params, then generation params,
// filtered by the allow list, then the question.
func (b *Backend) payload(p genparams.Params, question string) map[string]any {
	body := make(map[string]any, len(b.extra)+len(genparams.Keys)+1)
	for k, v := range b.extra {
		body[k] = v
	}
	for k, v := range p.Map() {
		body[k] = v
	}
	if b.allowed != nil {
		for k := range body {
			if !b.allowed[k] {
				delete(body, k)
			}
		}
	}
	body["question"] = question
	return body
}

// PromptModel posts the concatenated prompt to /infer.
func (b *Backend) PromptModel(ctx context.Context, req providers.PromptRequest) (resp providers.PromptResponse) {
	defer providers.Recover(&resp)

	data, err := json.Marshal(b.payload(b.Effective(req.Overrides), providers.JoinPrompts(req.System, req.User)))
	if err != nil {
		return providers.Failure(err)
	}
	logging.LogRequest("LIME->LLM", b.baseURL, b.name, data)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/infer", bytes.NewReader(data))
	if err != nil {
		return providers.Failure(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := b.client.Do(httpReq)
	if err != nil {
		return providers.Failure(fmt.Errorf("proxy: %w", err))
	}
	defer httpResp.Body.Close()
	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return providers.Failure(err)
	}
	logging.LogRequest("LLM->LIME", b.baseURL, b.name, body)

	var out inferResponse
	decodeErr := json.Unmarshal(body, &out)
	if httpResp.StatusCode >= http.StatusBadRequest {
		msg := out.Error
		if decodeErr != nil || msg == "" {
			msg = "could not parse server error message"
		}
		return providers.Failure(fmt.Errorf("Error: %d - %s", httpResp.StatusCode, msg))
	}
	if decodeErr != nil {
		return providers.Failure(fmt.Errorf("proxy: parse /infer response: %w", decodeErr))
	}
	if out.Answer == nil {
		return providers.Failure(errors.New("proxy: /infer response has no answer"))
	}
	if req.Progress != nil {
		req.Progress(*out.Answer)
	}
	return providers.Success(*out.Answer)
}

// Close releases idle connections.
func (b *Backend) Close() error {
	b.client.CloseIdleConnections()
	return nil
}
