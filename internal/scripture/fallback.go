package scripture

import (
	"context"
	"fmt"

	"github.com/FocuswithJustin/SacredPsalms/internal/logging"
)

// FallbackPsalm is the chapter substituted when a request cannot be served.
const FallbackPsalm = 23

// builtinPsalm23 is served when no upstream can be reached at all.
const builtinPsalm23 = "The LORD is my shepherd; I shall not want. He makes me lie down in green pastures. " +
	"He leads me beside still waters. He restores my soul. He leads me in paths of righteousness for his name's sake. " +
	"Even though I walk through the valley of the shadow of death, I will fear no evil, for you are with me; " +
	"your rod and your staff, they comfort me. You prepare a table before me in the presence of my enemies; " +
	"you anoint my head with oil; my cup overflows. Surely goodness and mercy shall follow me all the days of my life, " +
	"and I shall dwell in the house of the LORD forever."

// Builtin returns the embedded Psalm 23 passage labelled for translation t.
func Builtin(t Translation) Scripture {
	return Scripture{
		Reference:   "Psalm 23:1-6",
		Text:        builtinPsalm23,
		Translation: t,
		Psalm:       FallbackPsalm,
	}
}

// Fallback wraps a provider so that fetches never fail:
//   - a failed Psalm 23 yields the built-in text
//   - any other failure retries with Psalm 23, relabelled with the
//     requested number
//   - if that fails too, the built-in text is relabelled the same way
type Fallback struct {
	next Provider
}

// NewFallback wraps next.
func NewFallback(next Provider) *Fallback {
	return &Fallback{next: next}
}

// FetchByNumber implements Provider. The returned error is always nil.
func (f *Fallback) FetchByNumber(ctx context.Context, n int, t Translation) (Scripture, error) {
	s, err := f.next.FetchByNumber(ctx, n, t)
	if err == nil {
		return s, nil
	}
	return f.substitute(ctx, n, t, err), nil
}

// FetchRandom implements Provider. The number is chosen here so that a
// failure can be reported against it.
func (f *Fallback) FetchRandom(ctx context.Context, t Translation) (Scripture, error) {
	return f.FetchByNumber(ctx, RandomPsalm(), t)
}

func (f *Fallback) substitute(ctx context.Context, n int, t Translation, cause error) Scripture {
	if n == FallbackPsalm {
		s := Builtin(t)
		s.Fallback = true
		logging.ScriptureFallback(ctx, n, string(t), s.Reference, cause)
		return s
	}

	s, err := f.next.FetchByNumber(ctx, FallbackPsalm, t)
	if err == nil {
		s.Reference = fmt.Sprintf("Psalm %d (unavailable - showing Psalm %d)", n, FallbackPsalm)
	} else {
		s = Builtin(t)
		s.Reference = fmt.Sprintf("Psalm %d (unavailable - showing fallback)", n)
	}
	s.Psalm = n
	s.Fallback = true
	logging.ScriptureFallback(ctx, n, string(t), s.Reference, cause)
	return s
}
