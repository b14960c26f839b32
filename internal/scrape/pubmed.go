package scrape

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// PubMed searches the literature via NCBI E-utilities and returns one
// record per fetched abstract block.
func (c *Client) PubMed(ctx context.Context, target string) ([]map[string]any, error) {
	ids, err := c.pubmedSearch(ctx, target)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("id", strings.Join(ids, ","))
	params.Set("rettype", "abstract")
	params.Set("retmode", "text")
	text, err := c.getText(ctx, c.cfg.PubMedBaseURL+"/entrez/eutils/efetch.fcgi?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("pubmed efetch: %w", err)
	}

	var out []map[string]any
	for _, block := range strings.Split(text, "\n\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		out = append(out, map[string]any{"abstract": block})
	}
	return out, nil
}

func (c *Client) pubmedSearch(ctx context.Context, target string) ([]string, error) {
	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("term", target)
	params.Set("retmode", "json")
	params.Set("retmax", fmt.Sprintf("%d", c.cfg.MaxResults))
	params.Set("sort", "relevance")

	var doc struct {
		ESearchResult struct {
			IDList []string `json:"idlist"`
		} `json:"esearchresult"`
	}
	if err := c.getJSON(ctx, c.cfg.PubMedBaseURL+"/entrez/eutils/esearch.fcgi?"+params.Encode(), &doc); err != nil {
		return nil, fmt.Errorf("pubmed esearch: %w", err)
	}
	return doc.ESearchResult.IDList, nil
}
