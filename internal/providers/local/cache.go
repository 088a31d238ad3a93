// internal/providers/local/cache.go
package local

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrCacheNotPrimed is returned when the prompt cache is enabled but no
	// system prompt has been evaluated and saved.
	ErrCacheNotPrimed = errors.New("prompt cache not primed")
	// ErrStaleCache is returned when a request's system prompt differs from
	// the one the cache was primed with.
	ErrStaleCache = errors.New("prompt cache primed with a different system prompt")
)

// Role selects how EvalPrompt wraps and feeds text.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

// promptCache holds the snapshot taken right after the system prompt was
// evaluated. It is owned by exactly one Backend.
type promptCache struct {
	state  State
	system string
	primed bool
}

func (c *promptCache) check(system *string) error {
	if !c.primed {
		return ErrCacheNotPrimed
	}
	if system != nil && *system != c.system {
		return ErrStaleCache
	}
	return nil
}

// evalPrompt tokenizes and feeds text into rt without generating. The system
// role always starts from a reset context.
func evalPrompt(ctx context.Context, rt Runtime, text string, role Role) error {
	var wrapped string
	switch role {
	case RoleSystem:
		rt.Reset()
		wrapped = WrapSystem(text)
	case RoleUser:
		wrapped = WrapUser(text)
	default:
		return fmt.Errorf("unknown prompt role %q", role)
	}
	tokens, err := rt.Tokenize(ctx, wrapped)
	if err != nil {
		return fmt.Errorf("tokenize %s prompt: %w", role, err)
	}
	return rt.Eval(ctx, tokens)
}
