// internal/providerfactory/factory.go

// Package providerfactory resolves a model name to a backend kind and builds
// the backend, wrapping it with metrics collection when enabled.
package providerfactory

import (
	"fmt"
	"strings"

	"github.com/mwiater/lime/internal/appconfig"
	"github.com/mwiater/lime/internal/logging"
	"github.com/mwiater/lime/internal/metrics"
	"github.com/mwiater/lime/internal/providers"
	"github.com/mwiater/lime/internal/providers/anthropic"
	"github.com/mwiater/lime/internal/providers/llamacpp"
	"github.com/mwiater/lime/internal/providers/local"
	"github.com/mwiater/lime/internal/providers/openai"
	"github.com/mwiater/lime/internal/providers/proxy"
)

// Constructor builds a backend of one kind for a model.
type Constructor func(rc *appconfig.RuntimeConfig, model string) (providers.Backend, error)

// registry is the dispatch table from resolved kind to constructor.
var registry = map[providers.Kind]Constructor{
	providers.KindOpenAI:    newOpenAI,
	providers.KindAnthropic: newAnthropic,
	providers.KindLocal:     newLocal,
	providers.KindProxy:     newProxy,
}

// prefixes is the fallback used when a model has no explicit type.
var prefixes = []struct {
	prefix string
	kind   providers.Kind
}{
	{"gpt", providers.KindOpenAI},
	{"claude", providers.KindAnthropic},
	{"cpl", providers.KindProxy},
}

// ResolveKind picks the backend kind for model: an explicit
// `models.<name>.type` wins, then the name prefix (gpt, claude, cpl), then
// the local runtime when a llama.cpp server is configured.
func ResolveKind(cfg appconfig.Config, model string) (providers.Kind, error) {
	if m, ok := cfg.ModelFor(model); ok && strings.TrimSpace(m.Type) != "" {
		return providers.ParseKind(m.Type)
	}
	lower := strings.ToLower(strings.TrimSpace(model))
	for _, p := range prefixes {
		if strings.HasPrefix(lower, p.prefix) {
			return p.kind, nil
		}
	}
	if strings.TrimSpace(cfg.Local.ServerURL) != "" {
		return providers.KindLocal, nil
	}
	return "", fmt.Errorf("%w: %q", providers.ErrUnrecognizedModel, model)
}

// New builds the backend for model.
func New(rc *appconfig.RuntimeConfig, model string) (providers.Backend, error) {
	if rc == nil {
		return nil, fmt.Errorf("nil config provided to provider factory")
	}
	if strings.TrimSpace(model) == "" {
		model = rc.ModelName
	}
	kind, err := ResolveKind(rc.Config, model)
	if err != nil {
		return nil, err
	}
	build, ok := registry[kind]
	if !ok {
		return nil, providers.ConfigurationError("no backend registered for %q", kind)
	}
	backend, err := build(rc, model)
	if err != nil {
		return nil, err
	}
	logging.LogEvent("backend ready: model=%s kind=%s", model, kind)

	if rc.Metrics {
		backend = metrics.NewBackend(backend, metrics.GetInstance())
	}
	return backend, nil
}

func apiModelName(rc *appconfig.RuntimeConfig, model string) string {
	m, _ := rc.ModelFor(model)
	return m.APIModelName
}

func newOpenAI(rc *appconfig.RuntimeConfig, model string) (providers.Backend, error) {
	return openai.New(openai.Options{
		ModelName:    model,
		APIModelName: apiModelName(rc, model),
		APIKey:       rc.Secrets.OpenAIAPIKey,
		BaseURL:      rc.OpenAI.BaseURL,
		ProbeURL:     rc.OpenAI.ProbeURL,
		Params:       rc.BackendParams(model, string(providers.KindOpenAI)),
		Timeout:      rc.RequestTimeout(),
	})
}

func newAnthropic(rc *appconfig.RuntimeConfig, model string) (providers.Backend, error) {
	return anthropic.New(anthropic.Options{
		ModelName:    model,
		APIModelName: apiModelName(rc, model),
		APIKey:       rc.Secrets.AnthropicAPIKey,
		BaseURL:      rc.Anthropic.BaseURL,
		ProbeURL:     rc.Anthropic.ProbeURL,
		Params:       rc.BackendParams(model, string(providers.KindAnthropic)),
		Timeout:      rc.RequestTimeout(),
	})
}

func newLocal(rc *appconfig.RuntimeConfig, model string) (providers.Backend, error) {
	m, _ := rc.ModelFor(model)
	name := model
	if m.APIModelName != "" {
		name = m.APIModelName
	}
	return local.New(local.Options{
		ModelName:      name,
		ModelPath:      m.Path,
		UsePromptCache: rc.UsePromptCache,
		Params:         rc.BackendParams(model, string(providers.KindLocal)),
		Open: llamacpp.Opener(llamacpp.Options{
			ServerURL:   rc.Local.ServerURL,
			ContextSize: rc.Local.ContextSize,
			Timeout:     rc.RequestTimeout(),
		}),
	})
}

func newProxy(rc *appconfig.RuntimeConfig, model string) (providers.Backend, error) {
	return proxy.New(proxy.Options{
		ModelName:        model,
		URL:              rc.Proxy.URL,
		ValidRequestArgs: rc.Proxy.ValidRequestArgs,
		ExtraParams:      rc.Proxy.Params,
		Params:           rc.BackendParams(model, string(providers.KindProxy)),
		Timeout:          rc.RequestTimeout(),
	})
}
