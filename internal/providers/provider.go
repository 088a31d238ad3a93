// internal/providers/provider.go

// Package providers defines the contract every inference backend implements.
// A backend turns a (system prompt, user prompt) pair into a text completion,
// whether the model sits behind a hosted API, an in-process runtime, or a
// user-supplied HTTP proxy server.
package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/mwiater/lime/internal/genparams"
)

// Kind identifies a backend variant. It is resolved once, when the backend is
// constructed, and used as the key of the factory's dispatch table.
type Kind string

const (
	KindOpenAI    Kind = "openai"
	KindAnthropic Kind = "anthropic"
	KindLocal     Kind = "local"
	KindProxy     Kind = "proxy"
)

// ParseKind maps a config string onto a Kind. "cpl" is accepted as an alias
// for the proxy backend.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "openai":
		return KindOpenAI, nil
	case "anthropic":
		return KindAnthropic, nil
	case "local", "llama", "llamacpp", "llama.cpp":
		return KindLocal, nil
	case "proxy", "cpl":
		return KindProxy, nil
	}
	return "", ConfigurationError("unknown backend type %q", s)
}

// ProgressFunc receives each generated piece of text. Backends that do not
// stream call it once with the full completion.
type ProgressFunc func(token string)

// PromptRequest carries one question to a backend. Either prompt may be nil.
// Overrides are merged over the backend's current params for this call only.
type PromptRequest struct {
	System    *string
	User      *string
	Progress  ProgressFunc
	Overrides map[string]any
}

// PromptResponse is the result of PromptModel. On success Completion is set
// and Err is nil. On failure Err is set; Completion may still hold partial
// text for backends that generate token by token.
type PromptResponse struct {
	Completion *string
	Err        error
}

// Backend is the interface all inference backends implement.
type Backend interface {
	// Name returns the model name the backend was constructed for.
	Name() string
	// Kind returns the backend variant.
	Kind() Kind
	// CheckReady verifies credentials, connectivity and model availability.
	CheckReady(ctx context.Context) error
	// CountTokens returns the token count of text, or -1 when tokenization is
	// unavailable. It never panics and returns 0 for nil text.
	CountTokens(text *string) int
	// GenParams returns the backend's current generation parameters.
	GenParams() genparams.Params
	// UpdateGenParams merges overrides into the current params. Unknown keys
	// are ignored.
	UpdateGenParams(overrides map[string]any)
	// PromptModel generates a completion. All failures are reported through
	// PromptResponse.Err.
	PromptModel(ctx context.Context, req PromptRequest) PromptResponse
	// Close releases connections and runtime handles.
	Close() error
}

// CachingBackend is implemented by backends that can evaluate a system prompt
// once and reuse the resulting state across many user prompts.
type CachingBackend interface {
	Backend
	UsesPromptCache() bool
	PrimeCache(ctx context.Context, systemPrompt string) error
}

// Failure builds a PromptResponse carrying only an error.
func Failure(err error) PromptResponse {
	return PromptResponse{Err: err}
}

// Success builds a PromptResponse carrying a completion.
func Success(completion string) PromptResponse {
	return PromptResponse{Completion: &completion}
}

// JoinPrompts concatenates the system and user prompts for backends whose
// protocol takes a single text field. Nil parts are skipped.
func JoinPrompts(system, user *string) string {
	var b strings.Builder
	if system != nil {
		b.WriteString(*system)
	}
	if user != nil {
		b.WriteString(*user)
	}
	return b.String()
}

// Recover converts a panic inside a backend call into a PromptResponse error.
// Use as: defer providers.Recover(&resp).
func Recover(resp *PromptResponse) {
	if r := recover(); r != nil {
		resp.Err = fmt.Errorf("backend panic: %v", r)
	}
}
