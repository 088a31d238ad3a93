// internal/providers/local/runtime.go

// Package local implements the in-process backend: a model runtime that
// exposes token-level evaluation, sampling and state snapshots, driven by a
// manual generate loop with optional system-prompt caching.
package local

import (
	"context"
)

// State is an opaque snapshot of a runtime's evaluated context. Only the
// runtime that produced a State may load it.
type State interface{}

// SampleOptions are the sampler settings forwarded on every Sample call.
type SampleOptions struct {
	Temperature *float64
	TopK        *int
	TopP        *float64
}

// Runtime is the token-level model interface the local backend drives.
// Implementations are not safe for concurrent use; the backend serializes
// access.
type Runtime interface {
	// Tokenize converts text to token ids. Special tokens embedded in the
	// text (such as <s>) are parsed, no BOS is prepended.
	Tokenize(ctx context.Context, text string) ([]int, error)
	// Detokenize converts token ids back to text.
	Detokenize(ctx context.Context, tokens []int) (string, error)
	// Eval feeds tokens into the running context without generating.
	Eval(ctx context.Context, tokens []int) error
	// Sample draws the next token from the current context.
	Sample(ctx context.Context, opts SampleOptions) (int, error)
	// TokenEOS is the end-of-sequence token id.
	TokenEOS() int
	// SetSeed seeds the sampler's random source.
	SetSeed(seed int64)
	// ContextSize is the context window in tokens; zero when unknown.
	ContextSize() int
	// ContextUsed is the number of tokens evaluated into the context.
	ContextUsed() int
	SaveState() (State, error)
	// LoadState replaces the current context with a snapshot.
	LoadState(State) error
	// Reset clears the evaluated context.
	Reset()
	Close() error
}

// Opener creates the runtime for a model on first use.
type Opener func(ctx context.Context, modelName, modelPath string) (Runtime, error)
