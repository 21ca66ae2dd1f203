// Package extract turns raw HTML into readable article text.
package extract

import (
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/go-shiori/go-readability"

	"github.com/mohammad-safakhou/morningdrive/internal/helpers"
	"github.com/mohammad-safakhou/morningdrive/tools/web_fetch/models"
)

// Article runs readability over html. When readability finds nothing the
// whole page is reduced to plain text instead.
func Article(rawURL, html string, maxChars int) models.Result {
	sum := sha1.Sum([]byte(html))
	res := models.Result{URL: rawURL, HTMLHash: hex.EncodeToString(sum[:]), Status: 200}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		parsed = &url.URL{}
	}
	text := ""
	if article, err := readability.FromReader(strings.NewReader(html), parsed); err == nil {
		res.Title = strings.TrimSpace(article.Title)
		res.Byline = strings.TrimSpace(article.Byline)
		res.SiteName = strings.TrimSpace(article.SiteName)
		text = article.TextContent
	}
	if strings.TrimSpace(text) == "" {
		text = helpers.PlainText(html)
	}
	text = strings.Join(strings.Fields(text), " ")
	if maxChars > 0 && utf8.RuneCountInString(text) > maxChars {
		text = helpers.Truncate(text, maxChars)
	}
	res.Text = text
	return res
}
