// internal/appconfig/parameter_templates.go
package appconfig

import (
	"sort"
	"strings"

	"github.com/mwiater/lime/internal/genparams"
)

// ProfileName identifies a parameter preset/profile.
type ProfileName string

const (
	ProfileDefault     ProfileName = "default"
	ProfileGeneric     ProfileName = "generic"
	ProfileFactChecker ProfileName = "fact_checker"
	ProfileCreative    ProfileName = "creative"
	ProfileAccuracy    ProfileName = "accuracy"
)

// ParamsForProfile selects a parameter profile by name.
// Behavior:
//   - empty string or "default" => no overrides (built-in defaults apply)
//   - unknown string => no overrides
func ParamsForProfile(name string) genparams.Params {
	switch ProfileName(normalizeProfileName(name)) {
	case ProfileAccuracy:
		return AccuracyParams()
	case ProfileFactChecker:
		return FactCheckerParams()
	case ProfileCreative:
		return CreativeParams()
	case ProfileGeneric:
		return GenericParams()
	default:
		return genparams.Params{}
	}
}

// ProfileNames lists the built-in presets.
func ProfileNames() []string {
	names := []string{
		string(ProfileDefault),
		string(ProfileGeneric),
		string(ProfileFactChecker),
		string(ProfileCreative),
		string(ProfileAccuracy),
	}
	sort.Strings(names)
	return names
}

// GenericParams suits open-ended questions graded by substring.
func GenericParams() genparams.Params {
	return genparams.Params{
		Temperature: genparams.Float(0.8),
		TopP:        genparams.Float(1.0),
		MaxTokens:   genparams.Int(256),
	}
}

// AccuracyParams is tuned for deterministic, strictly formatted answers.
// 512 tokens leaves room for reasoning models to think and still answer.
func AccuracyParams() genparams.Params {
	return genparams.Params{
		Temperature: genparams.Float(0.0),
		TopP:        genparams.Float(0.95),
		MaxTokens:   genparams.Int(512),
		Seed:        genparams.Int64(42),
	}
}

// FactCheckerParams is tuned for short answers: classification, math and
// facts.
func FactCheckerParams() genparams.Params {
	return genparams.Params{
		Temperature: genparams.Float(0.2),
		TopP:        genparams.Float(0.6),
		TopK:        genparams.Int(20),
		MaxTokens:   genparams.Int(64),
		Seed:        genparams.Int64(42),
	}
}

// CreativeParams trades determinism for variety.
func CreativeParams() genparams.Params {
	return genparams.Params{
		Temperature: genparams.Float(1.5),
		TopP:        genparams.Float(1.0),
		MaxTokens:   genparams.Int(2048),
	}
}

func normalizeProfileName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.ReplaceAll(n, "-", "_")
	n = strings.ReplaceAll(n, " ", "_")
	return n
}
