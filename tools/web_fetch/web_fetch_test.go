package web_fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mohammad-safakhou/morningdrive/tools/web_fetch/models"
)

const articleHTML = `<html><head><title>Rate decision</title></head><body>
<nav>Home | World | Business</nav>
<article><h1>Rate decision</h1>
<p>The central bank held interest rates steady on Wednesday, citing cooling inflation and a resilient labour market.</p>
<p>Officials signalled that cuts could come later in the year if price growth continues to slow toward the target.</p>
<p>Markets rallied on the news, with the main index closing up more than one percent by the end of the session.</p>
</article></body></html>`

func TestHTTPFetcherExtractsArticle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, articleHTML)
	}))
	defer srv.Close()

	f, err := NewWebFetcher(HTTPFetcherType, time.Second, 120)
	if err != nil {
		t.Fatalf("NewWebFetcher: %v", err)
	}
	res, err := f.Exec(context.Background(), srv.URL+"/story")
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if res.Status != 200 || res.HTMLHash == "" {
		t.Fatalf("unexpected result meta: %+v", res)
	}
	if !strings.Contains(res.Text, "central bank held interest rates") {
		t.Fatalf("expected article text, got %q", res.Text)
	}
	if len([]rune(res.Text)) > 120 {
		t.Fatalf("text should be capped at 120 chars, got %d", len([]rune(res.Text)))
	}
}

func TestHTTPFetcherStatusError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	f, _ := NewWebFetcher(HTTPFetcherType, time.Second, 0)
	res, err := f.Exec(context.Background(), srv.URL)
	if err == nil || res.Status != http.StatusNotFound {
		t.Fatalf("expected 404 error, got %+v %v", res, err)
	}
}

func TestNewWebFetcherUnsupported(t *testing.T) {
	if _, err := NewWebFetcher("curl", 0, 0); !errors.Is(err, ErrUnsupportedFetcher) {
		t.Fatalf("expected ErrUnsupportedFetcher, got %v", err)
	}
}

type countingFetcher struct{ calls int }

func (c *countingFetcher) Exec(_ context.Context, u string) (models.Result, error) {
	c.calls++
	return models.Result{URL: u, Status: 200}, nil
}

func TestPolicyFetcherBlocksHosts(t *testing.T) {
	next := &countingFetcher{}
	f := WithBlockedHosts(next, []string{"wsj.com", "paywalled.example"})

	for _, u := range []string{"https://www.wsj.com/articles/x", "https://markets.wsj.com/y", "http://paywalled.example"} {
		if _, err := f.Exec(context.Background(), u); !errors.Is(err, ErrBlockedHost) {
			t.Fatalf("%s: expected ErrBlockedHost, got %v", u, err)
		}
	}
	if _, err := f.Exec(context.Background(), "https://notwsj.com/z"); err != nil {
		t.Fatalf("unrelated host should pass: %v", err)
	}
	if next.calls != 1 {
		t.Fatalf("expected 1 delegated call, got %d", next.calls)
	}
	if WithBlockedHosts(next, nil) != WebFetcher(next) {
		t.Fatalf("empty policy should return the wrapped fetcher")
	}
}
