package scripture

import (
	"context"
	"fmt"
	"time"

	"github.com/FocuswithJustin/SacredPsalms/core/errors"
)

// Router dispatches each request to the provider registered for its
// translation.
type Router struct {
	providers map[Translation]Provider
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{providers: make(map[Translation]Provider)}
}

// Handle registers p for translation t, replacing any previous provider.
func (r *Router) Handle(t Translation, p Provider) *Router {
	r.providers[t] = p
	return r
}

func (r *Router) provider(t Translation) (Provider, error) {
	p, ok := r.providers[t]
	if !ok {
		return nil, errors.NewValidation("translation", fmt.Sprintf("no provider for %q", t))
	}
	return p, nil
}

// FetchByNumber implements Provider.
func (r *Router) FetchByNumber(ctx context.Context, n int, t Translation) (Scripture, error) {
	p, err := r.provider(t)
	if err != nil {
		return Scripture{}, err
	}
	return p.FetchByNumber(ctx, n, t)
}

// FetchRandom implements Provider.
func (r *Router) FetchRandom(ctx context.Context, t Translation) (Scripture, error) {
	p, err := r.provider(t)
	if err != nil {
		return Scripture{}, err
	}
	return p.FetchRandom(ctx, t)
}

// Options configures the default provider stack.
type Options struct {
	ESVURL      string
	ESVKey      string
	APIBibleURL string
	APIBibleKey string
	CacheTTL    time.Duration
}

// New builds the provider used by the service: ESV and KJV clients behind a
// router, a cache when CacheTTL is positive, and the fallback policy on top.
func New(o Options) Provider {
	var p Provider = NewRouter().
		Handle(ESV, NewESVClient(o.ESVURL, o.ESVKey)).
		Handle(KJV, NewAPIBibleClient(o.APIBibleURL, o.APIBibleKey))
	if o.CacheTTL > 0 {
		p = NewCached(p, o.CacheTTL)
	}
	return NewFallback(p)
}
