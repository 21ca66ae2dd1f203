package web_search

import (
	"context"
	"errors"
	"net/http"

	"github.com/mohammad-safakhou/morningdrive/tools/web_search/brave"
	"github.com/mohammad-safakhou/morningdrive/tools/web_search/models"
	"github.com/mohammad-safakhou/morningdrive/tools/web_search/serper"
)

// WebSearcher returns up to k results for q.
type WebSearcher interface {
	Discover(ctx context.Context, q string, k int) ([]models.Result, error)
}

type Provider string

const (
	SerperProvider Provider = "serper"
	BraveProvider  Provider = "brave"
)

var (
	ErrUnsupportedProvider = errors.New("unsupported search provider")
	ErrMissingAPIKey       = errors.New("search api key is empty")
)

// NewWebSearcher builds the searcher for provider. client may be nil.
func NewWebSearcher(provider Provider, apiKey string, client *http.Client) (WebSearcher, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	switch provider {
	case SerperProvider:
		return serper.Search{APIKey: apiKey, Client: client}, nil
	case BraveProvider:
		return brave.Search{APIKey: apiKey, Client: client}, nil
	default:
		return nil, ErrUnsupportedProvider
	}
}
