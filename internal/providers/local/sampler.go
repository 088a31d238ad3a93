// internal/providers/local/sampler.go
package local

import (
	"context"
	"fmt"
	"strings"

	"github.com/mwiater/lime/internal/genparams"
	"github.com/mwiater/lime/internal/providers"
)

// generation is the result of one run of the sampling loop.
type generation struct {
	Text   string
	Tokens int
}

// generate feeds prompt into rt and samples until EOS, max_tokens, or the
// context window is full. The window counts the evaluated prompt, including a
// restored system prefix, so a long prompt leaves less room to generate. The seed is applied after the prompt is
// evaluated and before the first sample. On error the text produced so far
// is returned alongside it.
func generate(ctx context.Context, rt Runtime, prompt []int, params genparams.Params, progress providers.ProgressFunc) (generation, error) {
	var out generation

	if err := rt.Eval(ctx, prompt); err != nil {
		return out, fmt.Errorf("eval prompt: %w", err)
	}
	if params.Seed != nil {
		rt.SetSeed(*params.Seed)
	}

	limit := params.MaxTokensOr(genparams.DefaultMaxTokens)
	if n := rt.ContextSize(); n > 0 {
		if room := n - rt.ContextUsed(); room < limit {
			limit = max(room, 0)
		}
	}
	opts := SampleOptions{
		Temperature: params.Temperature,
		TopK:        params.TopK,
		TopP:        params.TopP,
	}

	var text strings.Builder
	for out.Tokens < limit {
		if err := ctx.Err(); err != nil {
			out.Text = text.String()
			return out, err
		}
		token, err := rt.Sample(ctx, opts)
		if err != nil {
			out.Text = text.String()
			return out, fmt.Errorf("sample: %w", err)
		}
		if token == rt.TokenEOS() {
			break
		}
		piece, err := rt.Detokenize(ctx, []int{token})
		if err != nil {
			out.Text = text.String()
			return out, fmt.Errorf("detokenize: %w", err)
		}
		text.WriteString(piece)
		out.Tokens++
		if progress != nil {
			progress(piece)
		}
		if out.Tokens >= limit {
			break
		}
		if err := rt.Eval(ctx, []int{token}); err != nil {
			out.Text = text.String()
			return out, fmt.Errorf("eval token: %w", err)
		}
	}
	out.Text = text.String()
	return out, nil
}
