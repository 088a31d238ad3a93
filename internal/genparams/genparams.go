// internal/genparams/genparams.go

// Package genparams holds the generation parameters sent to an inference
// backend and the layering rules used to build them. Every field is a pointer
// so "unset" and "zero" stay distinguishable while layers are merged.
package genparams

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Recognised parameter keys, as they appear in sheet meta blocks, config
// files and result snapshots.
const (
	KeyTemperature = "temperature"
	KeyMaxTokens   = "max_tokens"
	KeySeed        = "seed"
	KeyTopK        = "top_k"
	KeyTopP        = "top_p"
)

// DefaultMaxTokens is the completion budget used when no layer sets one.
const DefaultMaxTokens = 100

// Keys lists every recognised parameter key.
var Keys = []string{KeyTemperature, KeyMaxTokens, KeySeed, KeyTopK, KeyTopP}

// Params is one layer of generation parameters.
type Params struct {
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty" mapstructure:"temperature"`
	MaxTokens   *int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty" mapstructure:"max_tokens"`
	Seed        *int64   `json:"seed,omitempty" yaml:"seed,omitempty" mapstructure:"seed"`
	TopK        *int     `json:"top_k,omitempty" yaml:"top_k,omitempty" mapstructure:"top_k"`
	TopP        *float64 `json:"top_p,omitempty" yaml:"top_p,omitempty" mapstructure:"top_p"`
}

// Defaults returns the built-in base layer.
func Defaults() Params {
	return Params{
		MaxTokens:   Int(DefaultMaxTokens),
		Temperature: Float(0.0),
	}
}

// Merge layers params left to right. A key set in a later layer replaces the
// value from any earlier layer; keys a layer leaves unset fall through.
func Merge(layers ...Params) Params {
	var out Params
	for _, layer := range layers {
		out = mergeParams(out, layer)
	}
	return out
}

func mergeParams(base, override Params) Params {
	if override.Temperature != nil {
		base.Temperature = Float(*override.Temperature)
	}
	if override.MaxTokens != nil {
		base.MaxTokens = Int(*override.MaxTokens)
	}
	if override.Seed != nil {
		base.Seed = Int64(*override.Seed)
	}
	if override.TopK != nil {
		base.TopK = Int(*override.TopK)
	}
	if override.TopP != nil {
		base.TopP = Float(*override.TopP)
	}
	return base
}

// Resolve builds the effective params for one question: built-in or config
// defaults, then the backend profile, then sheet meta, then question meta.
func Resolve(defaults, profile Params, sheetMeta, questionMeta map[string]string) Params {
	return Merge(defaults, profile, FromMeta(sheetMeta), FromMeta(questionMeta))
}

// FromMeta parses the recognised keys of a free-form meta map. Values that do
// not parse are dropped without error so a typo in one sheet never aborts a
// run; unknown keys are ignored.
func FromMeta(meta map[string]string) Params {
	var p Params
	for key, raw := range meta {
		p.set(strings.ToLower(strings.TrimSpace(key)), strings.TrimSpace(raw))
	}
	return p
}

// ApplyOverrides returns base with the recognised keys of overrides applied.
// Numeric values may arrive as any Go number type or as strings.
func ApplyOverrides(base Params, overrides map[string]any) Params {
	var layer Params
	for key, value := range overrides {
		if value == nil {
			continue
		}
		layer.set(strings.ToLower(strings.TrimSpace(key)), strings.TrimSpace(fmt.Sprint(value)))
	}
	return Merge(base, layer)
}

func (p *Params) set(key, raw string) {
	switch key {
	case KeyTemperature:
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			p.Temperature = Float(v)
		}
	case KeyTopP:
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			p.TopP = Float(v)
		}
	case KeyMaxTokens:
		if v, ok := parseInt(raw); ok {
			p.MaxTokens = Int(int(v))
		}
	case KeyTopK:
		if v, ok := parseInt(raw); ok {
			p.TopK = Int(int(v))
		}
	case KeySeed:
		if v, ok := parseInt(raw); ok {
			p.Seed = Int64(v)
		}
	}
}

// parseInt accepts "12" and float renderings of whole numbers such as "12.0",
// which is how YAML and JSON decoders hand integers back through any.
func parseInt(raw string) (int64, bool) {
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return v, true
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f != float64(int64(f)) {
		return 0, false
	}
	return int64(f), true
}

// Map renders the set keys, suitable for JSON snapshots and request bodies.
func (p Params) Map() map[string]any {
	out := make(map[string]any)
	if p.Temperature != nil {
		out[KeyTemperature] = *p.Temperature
	}
	if p.MaxTokens != nil {
		out[KeyMaxTokens] = *p.MaxTokens
	}
	if p.Seed != nil {
		out[KeySeed] = *p.Seed
	}
	if p.TopK != nil {
		out[KeyTopK] = *p.TopK
	}
	if p.TopP != nil {
		out[KeyTopP] = *p.TopP
	}
	return out
}

// String prints the set keys in a stable order.
func (p Params) String() string {
	m := p.Map()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, m[k]))
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// MaxTokensOr returns the max token budget or fallback when unset.
func (p Params) MaxTokensOr(fallback int) int {
	if p.MaxTokens == nil {
		return fallback
	}
	return *p.MaxTokens
}

// TemperatureOr returns the temperature or fallback when unset.
func (p Params) TemperatureOr(fallback float64) float64 {
	if p.Temperature == nil {
		return fallback
	}
	return *p.Temperature
}

func Float(v float64) *float64 { return &v }
func Int(v int) *int           { return &v }
func Int64(v int64) *int64     { return &v }
