// internal/providers/llamacpp/runtime.go

// Package llamacpp provides a local.Runtime backed by a llama.cpp server.
// The evaluated context is kept client-side as a token slice; each sample is
// a one-token /completion call with cache_prompt enabled, so the server's KV
// cache reuses the shared prefix and a saved state is just a token snapshot.
package llamacpp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/mwiater/lime/internal/logging"
	"github.com/mwiater/lime/internal/providers"
	"github.com/mwiater/lime/internal/providers/local"
)

// EOS is the sentinel returned by Sample when the server stops on an
// end-of-sequence token.
const EOS = -1

// Options configures the runtime.
type Options struct {
	ServerURL string
	// ModelPath is the model file lime expects the server to have loaded.
	// When empty the model name is matched against the server's model_path.
	ModelPath   string
	ContextSize int
	Timeout     time.Duration
	Client      *http.Client
}

// Runtime implements local.Runtime over llama.cpp's HTTP endpoints.
type Runtime struct {
	client  *http.Client
	baseURL string
	model   string
	nCtx    int

	tokens []int
	seed   *int64
	draws  int64
}

type tokenState []int

// Opener returns a local.Opener that connects to the server in opts.
func Opener(opts Options) local.Opener {
	return func(ctx context.Context, modelName, modelPath string) (local.Runtime, error) {
		o := opts
		if o.ModelPath == "" {
			o.ModelPath = modelPath
		}
		return Open(ctx, modelName, o)
	}
}

// Open checks the server's health, verifies it serves the requested model,
// reads its context size and returns a runtime with an empty context.
func Open(ctx context.Context, modelName string, opts Options) (*Runtime, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.ServerURL), "/")
	if baseURL == "" {
		return nil, providers.ConfigurationError("llama.cpp server url is not set (local.server_url)")
	}
	client := opts.Client
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
	r := &Runtime{client: client, baseURL: baseURL, model: modelName}

	var health struct {
		Status string `json:"status"`
	}
	if err := r.call(ctx, http.MethodGet, "/health", nil, &health); err != nil {
		return nil, providers.NetworkError(err)
	}
	if health.Status != "" && health.Status != "ok" {
		return nil, fmt.Errorf("llama.cpp: server not ready: status %q", health.Status)
	}

	var props propsResponse
	propsErr := r.call(ctx, http.MethodGet, "/props", nil, &props)
	r.nCtx = opts.ContextSize
	if r.nCtx <= 0 {
		if propsErr != nil {
			return nil, propsErr
		}
		r.nCtx = props.contextSize()
	}
	if propsErr == nil && !servesModel(props.ModelPath, modelName, opts.ModelPath) {
		return nil, providers.ValidationError("llama.cpp server at %s serves %s, not model %s", baseURL, props.ModelPath, modelName)
	}
	return r, nil
}

// servesModel reports whether the server's loaded model file matches the
// configured path, or failing that contains the model name. A server that
// does not report its model is trusted.
func servesModel(served, modelName, modelPath string) bool {
	if strings.TrimSpace(served) == "" {
		return true
	}
	servedBase := strings.ToLower(filepath.Base(served))
	if modelPath != "" {
		return servedBase == strings.ToLower(filepath.Base(modelPath))
	}
	name := strings.ToLower(strings.TrimSpace(modelName))
	return name == "" || strings.Contains(servedBase, name)
}

type propsResponse struct {
	ModelPath                 string `json:"model_path"`
	NCtx                      int    `json:"n_ctx"`
	DefaultGenerationSettings struct {
		NCtx int `json:"n_ctx"`
	} `json:"default_generation_settings"`
}

func (p propsResponse) contextSize() int {
	if p.DefaultGenerationSettings.NCtx > 0 {
		return p.DefaultGenerationSettings.NCtx
	}
	return p.NCtx
}

func (r *Runtime) Tokenize(ctx context.Context, text string) ([]int, error) {
	req := map[string]any{"content": text, "add_special": false, "parse_special": true}
	var resp struct {
		Tokens []int `json:"tokens"`
	}
	if err := r.call(ctx, http.MethodPost, "/tokenize", req, &resp); err != nil {
		return nil, err
	}
	return resp.Tokens, nil
}

func (r *Runtime) Detokenize(ctx context.Context, tokens []int) (string, error) {
	var resp struct {
		Content string `json:"content"`
	}
	if err := r.call(ctx, http.MethodPost, "/detokenize", map[string]any{"tokens": tokens}, &resp); err != nil {
		return "", err
	}
	return resp.Content, nil
}

// Eval appends tokens to the context. The server evaluates them lazily on
// the next Sample.
func (r *Runtime) Eval(_ context.Context, tokens []int) error {
	if r.nCtx > 0 && len(r.tokens)+len(tokens) > r.nCtx {
		return fmt.Errorf("llama.cpp: context window of %d tokens exceeded", r.nCtx)
	}
	r.tokens = append(r.tokens, tokens...)
	return nil
}

// Sample asks the server for exactly one token continuing the context. With
// a seed set, each draw uses seed+n so the sequence is reproducible without
// repeating the same random draw.
func (r *Runtime) Sample(ctx context.Context, opts local.SampleOptions) (int, error) {
	payload := map[string]any{
		"prompt":        r.tokens,
		"n_predict":     1,
		"cache_prompt":  true,
		"return_tokens": true,
		"stream":        false,
	}
	applySampleOptions(payload, opts)
	if r.seed != nil {
		payload["seed"] = *r.seed + r.draws
		r.draws++
	}

	var resp completionResponse
	if err := r.call(ctx, http.MethodPost, "/completion", payload, &resp); err != nil {
		return 0, err
	}
	if resp.StopType == "eos" || len(resp.Tokens) == 0 {
		return EOS, nil
	}
	return resp.Tokens[0], nil
}

type completionResponse struct {
	Content  string `json:"content"`
	Tokens   []int  `json:"tokens"`
	StopType string `json:"stop_type"`
}

func applySampleOptions(payload map[string]any, opts local.SampleOptions) {
	if opts.Temperature != nil {
		payload["temperature"] = *opts.Temperature
	}
	if opts.TopK != nil {
		payload["top_k"] = *opts.TopK
	}
	if opts.TopP != nil {
		payload["top_p"] = *opts.TopP
	}
}

func (r *Runtime) TokenEOS() int { return EOS }

func (r *Runtime) SetSeed(seed int64) {
	r.seed = &seed
	r.draws = 0
}

func (r *Runtime) ContextSize() int { return r.nCtx }
func (r *Runtime) ContextUsed() int { return len(r.tokens) }

func (r *Runtime) SaveState() (local.State, error) {
	return append(tokenState(nil), r.tokens...), nil
}

func (r *Runtime) LoadState(state local.State) error {
	saved, ok := state.(tokenState)
	if !ok {
		return fmt.Errorf("llama.cpp: cannot load state of type %T", state)
	}
	r.tokens = append([]int(nil), saved...)
	r.seed = nil
	r.draws = 0
	return nil
}

func (r *Runtime) Reset() {
	r.tokens = nil
	r.seed = nil
	r.draws = 0
}

func (r *Runtime) Close() error {
	r.tokens = nil
	r.client.CloseIdleConnections()
	return nil
}

func (r *Runtime) call(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		logging.LogRequest("LIME->LLM", r.baseURL, r.model, data)
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	logging.LogRequest("LLM->LIME", r.baseURL, r.model, raw)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("llama.cpp: %s returned %s: %s", path, resp.Status, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("llama.cpp: decode %s response: %w", path, err)
	}
	return nil
}
