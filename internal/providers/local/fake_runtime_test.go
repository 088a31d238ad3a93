package local

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
)

const fakeEOS = -1

// fakeRuntime is a deterministic byte-level model: each byte is a token and
// the next sampled token is a hash of the whole context and the seed, so the
// output depends only on what has been evaluated.
type fakeRuntime struct {
	history []int
	seed    int64
	nCtx    int
	// capacity bounds Eval; zero is unbounded.
	capacity int

	// eosAfter emits EOS once this many tokens were sampled since the last
	// seed; zero never emits EOS.
	eosAfter int
	// failAfter makes Sample fail once this many tokens were sampled; zero
	// never fails.
	failAfter int
	sampled   int

	events []string
	resets int
	closed bool
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{nCtx: 512}
}

func (f *fakeRuntime) Tokenize(_ context.Context, text string) ([]int, error) {
	tokens := make([]int, 0, len(text))
	for i := 0; i < len(text); i++ {
		tokens = append(tokens, int(text[i]))
	}
	return tokens, nil
}

func (f *fakeRuntime) Detokenize(_ context.Context, tokens []int) (string, error) {
	buf := make([]byte, 0, len(tokens))
	for _, t := range tokens {
		if t < 0 || t > 255 {
			return "", fmt.Errorf("bad token %d", t)
		}
		buf = append(buf, byte(t))
	}
	return string(buf), nil
}

func (f *fakeRuntime) Eval(_ context.Context, tokens []int) error {
	if f.capacity > 0 && len(f.history)+len(tokens) > f.capacity {
		return errors.New("context full")
	}
	f.events = append(f.events, "eval")
	f.history = append(f.history, tokens...)
	return nil
}

func (f *fakeRuntime) Sample(_ context.Context, _ SampleOptions) (int, error) {
	f.events = append(f.events, "sample")
	if f.failAfter > 0 && f.sampled >= f.failAfter {
		return 0, errors.New("sampler crashed")
	}
	f.sampled++
	if f.eosAfter > 0 && f.sampled > f.eosAfter {
		return fakeEOS, nil
	}
	h := fnv.New32a()
	for _, t := range f.history {
		_, _ = h.Write([]byte{byte(t)})
	}
	_, _ = h.Write([]byte(fmt.Sprint(f.seed)))
	return 'a' + int(h.Sum32()%26), nil
}

func (f *fakeRuntime) TokenEOS() int { return fakeEOS }

func (f *fakeRuntime) SetSeed(seed int64) {
	f.events = append(f.events, "seed")
	f.seed = seed
	f.sampled = 0
}

func (f *fakeRuntime) ContextSize() int { return f.nCtx }
func (f *fakeRuntime) ContextUsed() int { return len(f.history) }

func (f *fakeRuntime) SaveState() (State, error) {
	return append([]int(nil), f.history...), nil
}

func (f *fakeRuntime) LoadState(s State) error {
	tokens, ok := s.([]int)
	if !ok {
		return fmt.Errorf("foreign state %T", s)
	}
	f.history = append([]int(nil), tokens...)
	f.sampled = 0
	return nil
}

func (f *fakeRuntime) Reset() {
	f.resets++
	f.history = nil
	f.sampled = 0
}

func (f *fakeRuntime) Close() error {
	f.closed = true
	return nil
}

func openerFor(rt Runtime) Opener {
	return func(context.Context, string, string) (Runtime, error) { return rt, nil }
}
