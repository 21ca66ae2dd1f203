package helpers

import (
	"net/url"
	"path"
	"sort"
	"strings"
)

// Query parameters that only track the click and never select content.
var trackingParams = map[string]bool{
	"fbclid": true, "gclid": true, "dclid": true, "msclkid": true, "igshid": true,
	"cmpid": true, "ocid": true, "at_medium": true, "at_campaign": true,
	"smid": true, "partner": true, "ref": true,
}

// ArticleKey reduces a news link to the part that identifies the story:
// lowercased host without "www." or default port, cleaned path without a
// trailing slash, and the non-tracking query sorted. The scheme is ignored
// since feeds mix http and https links to the same article. An unparseable
// or hostless link yields "".
func ArticleKey(link string) string {
	link = strings.TrimSpace(link)
	if link == "" {
		return ""
	}
	if !strings.Contains(link, "://") {
		link = "https://" + strings.TrimPrefix(link, "//")
	}
	u, err := url.Parse(link)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if p := u.Port(); p != "" && p != "80" && p != "443" {
		host += ":" + p
	}

	p := path.Clean("/" + u.Path)
	if p != "/" {
		p = strings.TrimSuffix(p, "/")
	}

	var params []string
	for k, vs := range u.Query() {
		lk := strings.ToLower(k)
		if trackingParams[lk] || strings.HasPrefix(lk, "utm_") {
			continue
		}
		for _, v := range vs {
			params = append(params, url.QueryEscape(k)+"="+url.QueryEscape(v))
		}
	}
	key := host + p
	if len(params) > 0 {
		sort.Strings(params)
		key += "?" + strings.Join(params, "&")
	}
	return key
}

// SameArticle reports whether two links point at the same story.
func SameArticle(a, b string) bool {
	ka := ArticleKey(a)
	return ka != "" && ka == ArticleKey(b)
}
