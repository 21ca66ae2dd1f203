package models

// UserAgent identifies every outbound page fetch.
const UserAgent = "MorningDrive/1.0 (Personal News Aggregator)"

// Result is the readable text extracted from one page.
type Result struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	Byline   string `json:"byline"`
	SiteName string `json:"site_name"`
	Text     string `json:"text"`
	HTMLHash string `json:"html_hash"`
	Status   int    `json:"status"`
	RenderMS int    `json:"render_ms"`
}
