package content

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	defaultYahooQuote = "https://query1.finance.yahoo.com/v7/finance/quote"
	browserUserAgent  = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	maxMovers         = 5
)

// MajorIndices are always reported, in this order.
var MajorIndices = []struct{ Symbol, Name string }{
	{"^GSPC", "S&P 500"},
	{"^DJI", "Dow Jones"},
	{"^IXIC", "NASDAQ"},
	{"^RUT", "Russell 2000"},
	{"^VIX", "VIX"},
}

// WatchedStocks is the universe movers are picked from.
var WatchedStocks = []string{
	"AAPL", "MSFT", "GOOGL", "AMZN", "META", "NVDA", "TSLA",
	"JPM", "V", "JNJ", "UNH", "HD", "PG", "MA", "DIS",
	"NFLX", "PYPL", "INTC", "AMD", "CRM",
}

// Quote is one Yahoo quote.
type Quote struct {
	Symbol        string  `json:"symbol"`
	ShortName     string  `json:"shortName"`
	Price         float64 `json:"regularMarketPrice"`
	Change        float64 `json:"regularMarketChange"`
	ChangePercent float64 `json:"regularMarketChangePercent"`
}

// YahooMarket produces the market minute.
type YahooMarket struct {
	BaseURL string
	Client  *http.Client
}

func (m *YahooMarket) Fetch(ctx context.Context, req Request) (Section, error) {
	indices, err := m.quotes(ctx, indexSymbols())
	if err != nil {
		return Section{}, fmt.Errorf("indices: %w", err)
	}
	var sec Section
	stocks, err := m.quotes(ctx, WatchedStocks)
	if err != nil {
		sec.Errors = append(sec.Errors, SourceError{Source: "yahoo", Category: string(CategoryMarket), Message: err.Error()})
	}
	up, down := Movers(stocks, req.Rules.MarketMoversLimit)
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	sec.Text = FormatMarket(indices, up, down, now)
	return sec, nil
}

func indexSymbols() []string {
	out := make([]string, len(MajorIndices))
	for i, idx := range MajorIndices {
		out[i] = idx.Symbol
	}
	return out
}

func (m *YahooMarket) quotes(ctx context.Context, symbols []string) ([]Quote, error) {
	base := m.BaseURL
	if base == "" {
		base = defaultYahooQuote
	}
	var body struct {
		QuoteResponse struct {
			Result []Quote `json:"result"`
		} `json:"quoteResponse"`
	}
	u := base + "?symbols=" + url.QueryEscape(strings.Join(symbols, ","))
	if err := getJSON(ctx, m.Client, u, map[string]string{"User-Agent": browserUserAgent}, &body); err != nil {
		return nil, err
	}
	return body.QuoteResponse.Result, nil
}

// Movers splits quotes into gainers (largest first) and decliners (largest
// drop first), capped at five each and further at limit when limit > 0.
func Movers(quotes []Quote, limit int) (up, down []Quote) {
	sorted := append([]Quote(nil), quotes...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ChangePercent > sorted[j].ChangePercent })
	for _, q := range sorted {
		if q.ChangePercent > 0 {
			up = append(up, q)
		}
	}
	for i := len(sorted) - 1; i >= 0; i-- {
		if sorted[i].ChangePercent < 0 {
			down = append(down, sorted[i])
		}
	}
	n := maxMovers
	if limit > 0 && limit < n {
		n = limit
	}
	if len(up) > n {
		up = up[:n]
	}
	if len(down) > n {
		down = down[:n]
	}
	return up, down
}

// MarketStatus is a coarse US-market session label for t.
func MarketStatus(t time.Time) string {
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return "Markets Closed"
	}
	mins := t.Hour()*60 + t.Minute()
	switch {
	case mins < 9*60+30:
		return "Pre-Market Trading"
	case mins < 16*60:
		return "Markets Open"
	case mins < 20*60:
		return "After-Hours Trading"
	}
	return "Markets Closed"
}

func signed(v float64, suffix string) string {
	if v > 0 {
		return fmt.Sprintf("+%.2f%s", v, suffix)
	}
	return fmt.Sprintf("%.2f%s", v, suffix)
}

// FormatMarket renders the market brief.
func FormatMarket(indices, up, down []Quote, now time.Time) string {
	names := make(map[string]string, len(MajorIndices))
	for _, idx := range MajorIndices {
		names[idx.Symbol] = idx.Name
	}
	var b strings.Builder
	b.WriteString("# Market Summary\n\n")
	fmt.Fprintf(&b, "**Status:** %s\n**As of:** %s\n\n", MarketStatus(now), now.Format("03:04 PM MST"))
	b.WriteString("## Major Indices\n\n")
	for _, q := range indices {
		name := names[q.Symbol]
		if name == "" {
			name = q.ShortName
		}
		dir := "up"
		if q.Change < 0 {
			dir = "down"
		}
		fmt.Fprintf(&b, "- **%s** (%s): %.2f %s %s (%s)\n", name, q.Symbol, q.Price, dir, signed(q.Change, ""), signed(q.ChangePercent, "%"))
	}
	if len(up) > 0 {
		b.WriteString("\n## Top Gainers\n\n")
		for _, q := range up {
			fmt.Fprintf(&b, "- **%s** (%s): $%.2f %s\n", q.Symbol, q.ShortName, q.Price, signed(q.ChangePercent, "%"))
		}
	}
	if len(down) > 0 {
		b.WriteString("\n## Biggest Decliners\n\n")
		for _, q := range down {
			fmt.Fprintf(&b, "- **%s** (%s): $%.2f %s\n", q.Symbol, q.ShortName, q.Price, signed(q.ChangePercent, "%"))
		}
	}
	return strings.TrimSpace(b.String())
}
