// internal/providers/local/backend.go
package local

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/mwiater/lime/internal/genparams"
	"github.com/mwiater/lime/internal/logging"
	"github.com/mwiater/lime/internal/providers"
)

// Options configures a local backend.
type Options struct {
	ModelName      string
	ModelPath      string
	UsePromptCache bool
	Params         genparams.Params
	Open           Opener
}

// Backend runs prompts through a token-level Runtime. With the prompt cache
// enabled, the system prompt is evaluated once by PrimeCache and every
// PromptModel call restarts from that snapshot, so questions are answered
// from an identical context regardless of order.
type Backend struct {
	*providers.ParamState

	name     string
	path     string
	useCache bool
	open     Opener

	mu    sync.Mutex
	rt    Runtime
	cache promptCache
}

// New constructs a local backend. The runtime is opened lazily.
func New(opts Options) (*Backend, error) {
	if opts.Open == nil {
		return nil, providers.ConfigurationError("local backend %q has no runtime", opts.ModelName)
	}
	return &Backend{
		ParamState: providers.NewParamState(opts.Params),
		name:       opts.ModelName,
		path:       strings.TrimSpace(opts.ModelPath),
		useCache:   opts.UsePromptCache,
		open:       opts.Open,
	}, nil
}

func (b *Backend) Name() string          { return b.name }
func (b *Backend) Kind() providers.Kind  { return providers.KindLocal }
func (b *Backend) UsesPromptCache() bool { return b.useCache }

// CheckReady verifies the configured model file and opens the runtime.
func (b *Backend) CheckReady(ctx context.Context) error {
	if b.path != "" {
		info, err := os.Stat(b.path)
		if err != nil {
			return providers.ConfigurationError("model %s: path %s: %v", b.name, b.path, err)
		}
		if !info.Mode().IsRegular() {
			return providers.ConfigurationError("model %s: path %s is not a file", b.name, b.path)
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	_, err := b.runtime(ctx)
	return err
}

// runtime returns the open runtime, opening it on first use. Callers hold mu.
func (b *Backend) runtime(ctx context.Context) (Runtime, error) {
	if b.rt != nil {
		return b.rt, nil
	}
	rt, err := b.open(ctx, b.name, b.path)
	if err != nil {
		return nil, fmt.Errorf("open runtime for %s: %w", b.name, err)
	}
	logging.LogEvent("local: runtime ready for %s (n_ctx=%d)", b.name, rt.ContextSize())
	b.rt = rt
	return rt, nil
}

// CountTokens tokenizes text with the model's own vocabulary.
func (b *Backend) CountTokens(text *string) (n int) {
	if text == nil {
		return 0
	}
	defer func() {
		if recover() != nil {
			n = -1
		}
	}()
	b.mu.Lock()
	defer b.mu.Unlock()
	rt, err := b.runtime(context.Background())
	if err != nil {
		return -1
	}
	tokens, err := rt.Tokenize(context.Background(), *text)
	if err != nil {
		return -1
	}
	return len(tokens)
}

// EvalPrompt feeds text into the runtime. The system role resets first.
func (b *Backend) EvalPrompt(ctx context.Context, text string, role Role) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	rt, err := b.runtime(ctx)
	if err != nil {
		return err
	}
	return evalPrompt(ctx, rt, text, role)
}

// SaveState snapshots the runtime's current context.
func (b *Backend) SaveState() (State, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rt == nil {
		return nil, fmt.Errorf("save state: runtime not open")
	}
	return b.rt.SaveState()
}

// LoadState restores a snapshot, discarding the current context.
func (b *Backend) LoadState(state State) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rt == nil {
		return fmt.Errorf("load state: runtime not open")
	}
	return b.rt.LoadState(state)
}

// PrimeCache evaluates systemPrompt from a reset context and saves the
// result. The cache is then valid only for that exact system prompt.
func (b *Backend) PrimeCache(ctx context.Context, systemPrompt string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cache = promptCache{}
	rt, err := b.runtime(ctx)
	if err != nil {
		return err
	}
	if err := evalPrompt(ctx, rt, systemPrompt, RoleSystem); err != nil {
		return err
	}
	state, err := rt.SaveState()
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	b.cache = promptCache{state: state, system: systemPrompt, primed: true}
	return nil
}

// PromptModel generates a completion. With the cache enabled, req.System must
// be nil or equal to the primed system prompt. Partial output is kept when
// generation fails midway.
func (b *Backend) PromptModel(ctx context.Context, req providers.PromptRequest) (resp providers.PromptResponse) {
	defer providers.Recover(&resp)

	params := b.Effective(req.Overrides)

	b.mu.Lock()
	defer b.mu.Unlock()

	rt, err := b.runtime(ctx)
	if err != nil {
		return providers.Failure(err)
	}

	var prompt []int
	if b.useCache {
		if err := b.cache.check(req.System); err != nil {
			return providers.Failure(err)
		}
		if err := rt.LoadState(b.cache.state); err != nil {
			return providers.Failure(fmt.Errorf("load state: %w", err))
		}
		user := ""
		if req.User != nil {
			user = *req.User
		}
		prompt, err = rt.Tokenize(ctx, WrapUser(user))
	} else {
		rt.Reset()
		prompt, err = rt.Tokenize(ctx, WrapPrompt(req.System, req.User))
	}
	if err != nil {
		return providers.Failure(fmt.Errorf("tokenize prompt: %w", err))
	}

	gen, err := generate(ctx, rt, prompt, params, req.Progress)
	if err != nil {
		if gen.Tokens > 0 {
			return providers.PromptResponse{Completion: &gen.Text, Err: err}
		}
		return providers.Failure(err)
	}
	return providers.Success(gen.Text)
}

// Close releases the runtime.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cache = promptCache{}
	if b.rt == nil {
		return nil
	}
	err := b.rt.Close()
	b.rt = nil
	return err
}
