package web_fetch

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/mohammad-safakhou/morningdrive/tools/web_fetch/chromedp"
	"github.com/mohammad-safakhou/morningdrive/tools/web_fetch/models"
	"github.com/mohammad-safakhou/morningdrive/tools/web_fetch/plain"
)

const (
	DefaultTimeout  = 15 * time.Second
	MaxCharsDefault = 20000

	chromeSettle = 500 * time.Millisecond
)

// WebFetcher loads a page and returns its readable text.
type WebFetcher interface {
	Exec(ctx context.Context, url string) (models.Result, error)
}

type FetcherType string

const (
	// ChromedpFetcherType renders the page in headless Chrome first.
	ChromedpFetcherType FetcherType = "chromedp"
	// HTTPFetcherType does a single GET; enough for most news articles.
	HTTPFetcherType FetcherType = "http"
)

var ErrUnsupportedFetcher = errors.New("unsupported fetcher type")

func NewWebFetcher(fetcherType FetcherType, timeout time.Duration, maxChars int) (WebFetcher, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxChars <= 0 {
		maxChars = MaxCharsDefault
	}

	switch fetcherType {
	case ChromedpFetcherType:
		return &chromedp.Fetch{Timeout: timeout, MaxChars: maxChars, Settle: chromeSettle}, nil
	case HTTPFetcherType, "":
		return &plain.Fetch{Timeout: timeout, MaxChars: maxChars, Client: &http.Client{Timeout: timeout}}, nil
	default:
		return nil, ErrUnsupportedFetcher
	}
}
