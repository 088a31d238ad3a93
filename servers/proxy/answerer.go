// servers/proxy/answerer.go
package main

import (
	"context"
	"fmt"

	"github.com/mwiater/lime/internal/appconfig"
	"github.com/mwiater/lime/internal/providers"
)

// Answerer produces the answer for one /infer request. params holds every
// body key other than "question".
type Answerer interface {
	Answer(ctx context.Context, question string, params map[string]any) (string, error)
}

type staticAnswerer string

func (a staticAnswerer) Answer(context.Context, string, map[string]any) (string, error) {
	return string(a), nil
}

type echoAnswerer struct{}

func (echoAnswerer) Answer(_ context.Context, question string, _ map[string]any) (string, error) {
	return question, nil
}

// backendAnswerer forwards questions to a lime backend. Request params are
// passed as per-call generation overrides.
type backendAnswerer struct {
	backend providers.Backend
}

func (a backendAnswerer) Answer(ctx context.Context, question string, params map[string]any) (string, error) {
	resp := a.backend.PromptModel(ctx, providers.PromptRequest{User: &question, Overrides: params})
	if resp.Err != nil {
		return "", resp.Err
	}
	if resp.Completion == nil {
		return "", fmt.Errorf("%s returned no completion", a.backend.Name())
	}
	return *resp.Completion, nil
}

// newAnswerer builds the Answerer for cfg.Mode. The returned close func
// releases backend resources.
func newAnswerer(ctx context.Context, cfg Config, factory func(*appconfig.RuntimeConfig, string) (providers.Backend, error)) (Answerer, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Mode {
	case ModeEcho:
		return echoAnswerer{}, noop, nil
	case ModeBackend:
		rc, err := appconfig.Load(appconfig.LoadOptions{ExplicitFile: cfg.LimeConfig})
		if err != nil {
			return nil, noop, fmt.Errorf("load lime config: %w", err)
		}
		backend, err := factory(rc, cfg.Model)
		if err != nil {
			return nil, noop, err
		}
		if err := backend.CheckReady(ctx); err != nil {
			_ = backend.Close()
			return nil, noop, err
		}
		return backendAnswerer{backend: backend}, backend.Close, nil
	default:
		return staticAnswerer(cfg.Answer), noop, nil
	}
}

