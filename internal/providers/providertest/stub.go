// internal/providers/providertest/stub.go

// Package providertest provides a scripted in-memory backend for tests of
// code that drives providers.Backend.
package providertest

import (
	"context"
	"strings"
	"sync"

	"github.com/mwiater/lime/internal/genparams"
	"github.com/mwiater/lime/internal/providers"
)

// Call records one PromptModel invocation.
type Call struct {
	System *string
	User   *string
	Params genparams.Params
}

// Stub answers prompts with Reply and records every call. A nil Reply echoes
// the user prompt upper-cased.
type Stub struct {
	*providers.ParamState

	ModelName   string
	BackendKind providers.Kind
	Ready       error
	Reply       func(n int, req providers.PromptRequest) providers.PromptResponse
	Caching     bool

	mu     sync.Mutex
	calls  []Call
	primed []string
	closed bool
}

// New returns a stub named model with default params.
func New(model string) *Stub {
	return &Stub{
		ParamState:  providers.NewParamState(genparams.Defaults()),
		ModelName:   model,
		BackendKind: providers.KindLocal,
	}
}

func (s *Stub) Name() string         { return s.ModelName }
func (s *Stub) Kind() providers.Kind { return s.BackendKind }

func (s *Stub) CheckReady(context.Context) error { return s.Ready }

// CountTokens counts whitespace separated words.
func (s *Stub) CountTokens(text *string) int {
	if text == nil {
		return 0
	}
	return len(strings.Fields(*text))
}

func (s *Stub) PromptModel(ctx context.Context, req providers.PromptRequest) providers.PromptResponse {
	s.mu.Lock()
	n := len(s.calls)
	s.calls = append(s.calls, Call{System: req.System, User: req.User, Params: s.Effective(req.Overrides)})
	s.mu.Unlock()

	if s.Reply != nil {
		return s.Reply(n, req)
	}
	var text string
	if req.User != nil {
		text = strings.ToUpper(*req.User)
	}
	if req.Progress != nil {
		req.Progress(text)
	}
	return providers.Success(text)
}

func (s *Stub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Calls returns a copy of the recorded calls.
func (s *Stub) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Closed reports whether Close was called.
func (s *Stub) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Primed returns the system prompts passed to PrimeCache.
func (s *Stub) Primed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.primed...)
}

// CachingStub is a Stub that also implements providers.CachingBackend.
type CachingStub struct {
	*Stub
}

// NewCaching returns a stub with the prompt cache enabled.
func NewCaching(model string) *CachingStub {
	s := New(model)
	s.Caching = true
	return &CachingStub{Stub: s}
}

func (c *CachingStub) UsesPromptCache() bool { return c.Caching }

func (c *CachingStub) PrimeCache(_ context.Context, systemPrompt string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.primed = append(c.primed, systemPrompt)
	return nil
}
