// Package chromedp renders pages in headless Chrome before extraction, for
// news sites that assemble the article body client-side.
package chromedp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/mohammad-safakhou/morningdrive/tools/web_fetch/extract"
	"github.com/mohammad-safakhou/morningdrive/tools/web_fetch/models"
)

// statusRenderFailed marks a result whose page never rendered.
const statusRenderFailed = 599

type Fetch struct {
	Timeout  time.Duration
	MaxChars int
	// Settle is an extra wait after the body is ready, for late scripts.
	Settle time.Duration
}

func (f Fetch) Exec(ctx context.Context, url string) (models.Result, error) {
	if strings.TrimSpace(url) == "" {
		return models.Result{}, errors.New("invalid url")
	}
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}
	start := time.Now()
	html, title, err := f.render(ctx, url)
	elapsed := int(time.Since(start) / time.Millisecond)
	if err != nil {
		return models.Result{URL: url, Status: statusRenderFailed, RenderMS: elapsed}, fmt.Errorf("render %s: %w", url, err)
	}
	res := extract.Article(url, html, f.MaxChars)
	if res.Title == "" {
		res.Title = strings.TrimSpace(title)
	}
	res.RenderMS = elapsed
	return res, nil
}

func (f Fetch) render(ctx context.Context, url string) (html, title string, err error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(models.UserAgent),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
	)...)
	defer cancelAlloc()
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()

	actions := []chromedp.Action{
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if f.Settle > 0 {
		actions = append(actions, chromedp.Sleep(f.Settle))
	}
	actions = append(actions,
		chromedp.Title(&title),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	err = chromedp.Run(tabCtx, actions...)
	return html, title, err
}
