package content

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve"
	"github.com/blevesearch/bleve/search/query"
)

type exclusionDoc struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// ExcludeArticles drops every article whose title or summary contains one of
// the phrases. Matching goes through an in-memory bleve index, so it is case
// and punctuation insensitive. The int is the number of articles removed.
func ExcludeArticles(arts []Article, phrases []string) ([]Article, int, error) {
	var queries []query.Query
	for _, p := range phrases {
		if p = strings.TrimSpace(p); p != "" {
			queries = append(queries, bleve.NewMatchPhraseQuery(p))
		}
	}
	if len(queries) == 0 || len(arts) == 0 {
		return arts, 0, nil
	}

	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return arts, 0, fmt.Errorf("exclusion index: %w", err)
	}
	defer index.Close()

	batch := index.NewBatch()
	for i, a := range arts {
		if err := batch.Index(strconv.Itoa(i), exclusionDoc{Title: a.Title, Summary: a.Summary}); err != nil {
			return arts, 0, fmt.Errorf("index article: %w", err)
		}
	}
	if err := index.Batch(batch); err != nil {
		return arts, 0, fmt.Errorf("index batch: %w", err)
	}

	res, err := index.Search(bleve.NewSearchRequestOptions(bleve.NewDisjunctionQuery(queries...), len(arts), 0, false))
	if err != nil {
		return arts, 0, fmt.Errorf("exclusion search: %w", err)
	}
	if len(res.Hits) == 0 {
		return arts, 0, nil
	}
	drop := make(map[int]bool, len(res.Hits))
	for _, hit := range res.Hits {
		if i, err := strconv.Atoi(hit.ID); err == nil {
			drop[i] = true
		}
	}
	out := make([]Article, 0, len(arts)-len(drop))
	for i, a := range arts {
		if !drop[i] {
			out = append(out, a)
		}
	}
	return out, len(drop), nil
}
