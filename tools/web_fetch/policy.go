package web_fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/mohammad-safakhou/morningdrive/tools/web_fetch/models"
)

// ErrBlockedHost is returned for URLs whose host is on the block list.
var ErrBlockedHost = errors.New("host blocked by fetch policy")

// PolicyFetcher refuses blocked hosts (and their subdomains) before
// delegating to the wrapped fetcher.
type PolicyFetcher struct {
	Next    WebFetcher
	blocked map[string]struct{}
}

// WithBlockedHosts wraps next. Hosts are expected lower-case without "www.".
// An empty list returns next unchanged.
func WithBlockedHosts(next WebFetcher, hosts []string) WebFetcher {
	if len(hosts) == 0 {
		return next
	}
	blocked := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		blocked[strings.ToLower(strings.TrimSpace(h))] = struct{}{}
	}
	return &PolicyFetcher{Next: next, blocked: blocked}
}

func (p *PolicyFetcher) Exec(ctx context.Context, rawURL string) (models.Result, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return models.Result{URL: rawURL}, fmt.Errorf("invalid url %q", rawURL)
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	for h := host; h != ""; {
		if _, ok := p.blocked[h]; ok {
			return models.Result{URL: rawURL}, fmt.Errorf("%w: %s", ErrBlockedHost, host)
		}
		i := strings.IndexByte(h, '.')
		if i < 0 {
			break
		}
		h = h[i+1:]
	}
	return p.Next.Exec(ctx, rawURL)
}
