package web_search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mohammad-safakhou/morningdrive/tools/web_search/brave"
	"github.com/mohammad-safakhou/morningdrive/tools/web_search/serper"
)

func TestNewWebSearcher(t *testing.T) {
	if _, err := NewWebSearcher(BraveProvider, "", nil); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected missing key error, got %v", err)
	}
	if _, err := NewWebSearcher("bing", "k", nil); !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected unsupported provider, got %v", err)
	}
	if s, err := NewWebSearcher(SerperProvider, "k", nil); err != nil || s == nil {
		t.Fatalf("expected serper searcher, got %v", err)
	}
}

func TestSerperDiscover(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-KEY") != "k" || r.Method != http.MethodPost {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"organic":[{"title":"A","link":"https://a.test","snippet":"sa"},{"title":"B","link":"https://b.test","snippet":"sb"}]}`)
	}))
	defer srv.Close()
	res, err := serper.Search{APIKey: "k", Endpoint: srv.URL}.Discover(context.Background(), "rates", 1)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(res) != 1 || res[0].URL != "https://a.test" || res[0].Snippet != "sa" {
		t.Fatalf("unexpected results: %+v", res)
	}
}

func TestBraveDiscoverStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	defer srv.Close()
	if _, err := (brave.Search{APIKey: "k", Endpoint: srv.URL}).Discover(context.Background(), "q", 3); err == nil {
		t.Fatalf("expected status error")
	}
}
