// internal/providers/params.go
package providers

import (
	"sync"

	"github.com/mwiater/lime/internal/genparams"
)

// ParamState holds a backend's current generation parameters. Backends embed
// it to get GenParams and UpdateGenParams for free.
type ParamState struct {
	mu     sync.RWMutex
	params genparams.Params
}

// NewParamState seeds the state with the resolved defaults+profile layer.
func NewParamState(initial genparams.Params) *ParamState {
	return &ParamState{params: genparams.Merge(initial)}
}

// GenParams returns a copy of the current params.
func (s *ParamState) GenParams() genparams.Params {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return genparams.Merge(s.params)
}

// UpdateGenParams merges overrides into the current params; unknown keys are
// ignored.
func (s *ParamState) UpdateGenParams(overrides map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params = genparams.ApplyOverrides(s.params, overrides)
}

// Effective returns the params for a single call without mutating the state.
func (s *ParamState) Effective(overrides map[string]any) genparams.Params {
	return genparams.ApplyOverrides(s.GenParams(), overrides)
}
