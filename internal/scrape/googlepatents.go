package scrape

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// PatentQuery runs the Google Patents search for the target and
// flattens the paginated cluster results into cleaned patent records.
func (c *Client) PatentQuery(ctx context.Context, target string) ([]map[string]any, error) {
	first, err := c.patentQueryPage(ctx, target, 0)
	if err != nil {
		return nil, fmt.Errorf("google patents query: %w", err)
	}
	pages := []map[string]any{first}

	totalPages := 1
	if results, ok := first["results"].(map[string]any); ok {
		if n, ok := results["total_num_pages"].(float64); ok && int(n) > 1 {
			totalPages = int(n)
		}
	}
	if totalPages > c.cfg.MaxPatentPages {
		totalPages = c.cfg.MaxPatentPages
	}
	for page := 1; page < totalPages; page++ {
		doc, err := c.patentQueryPage(ctx, target, page)
		if err != nil {
			log.Printf("scrape: google patents page %d failed, skipping: %v", page, err)
			continue
		}
		pages = append(pages, doc)
	}
	return cleanPatentResults(pages), nil
}

func (c *Client) patentQueryPage(ctx context.Context, target string, page int) (map[string]any, error) {
	inner := fmt.Sprintf("q=%s&oq=%s&page=%d", target, target, page)
	rawURL := c.cfg.GooglePatentsBaseURL + "/xhr/query?url=" + queryEscape(inner) + "&exp="
	var doc map[string]any
	if err := c.getJSON(ctx, rawURL, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// cleanPatentResults walks results.cluster[].result[].patent and keeps
// the fields the extraction stage cares about. Grant date presence
// decides the status.
func cleanPatentResults(pages []map[string]any) []map[string]any {
	var out []map[string]any
	for _, page := range pages {
		results, _ := page["results"].(map[string]any)
		clusters, _ := results["cluster"].([]any)
		for _, cl := range clusters {
			cm, _ := cl.(map[string]any)
			entries, _ := cm["result"].([]any)
			for _, e := range entries {
				em, _ := e.(map[string]any)
				patent, ok := em["patent"].(map[string]any)
				if !ok {
					continue
				}
				status := "Pending"
				if g, _ := patent["grant_date"].(string); strings.TrimSpace(g) != "" {
					status = "Granted"
				}
				title, _ := patent["title"].(string)
				pubNum, _ := patent["publication_number"].(string)
				assignee, _ := patent["assignee"].(string)
				out = append(out, map[string]any{
					"title":              strings.TrimSpace(title),
					"publication_number": pubNum,
					"assignee":           assignee,
					"status":             status,
				})
			}
		}
	}
	return out
}

// PatentAbstracts fetches abstract text for the given publication
// numbers. A failed fetch yields a record with an empty abstract so
// the evidence shape stays stable.
func (c *Client) PatentAbstracts(ctx context.Context, publicationNumbers []string) ([]map[string]any, error) {
	if len(publicationNumbers) > c.cfg.MaxAbstracts {
		publicationNumbers = publicationNumbers[:c.cfg.MaxAbstracts]
	}
	var out []map[string]any
	for _, num := range publicationNumbers {
		rec := map[string]any{
			"publication_number": num,
			"url":                c.cfg.GooglePatentsBaseURL + "/patent/" + num + "/en",
			"abstract":           "",
		}
		abstract, err := c.cfg.AbstractFetcher(ctx, num)
		if err != nil {
			log.Printf("scrape: abstract fetch failed for %s: %v", num, err)
		} else {
			rec["abstract"] = abstract
		}
		out = append(out, rec)
	}
	return out, nil
}

// fetchAbstractWithBrowser renders the patent page headlessly; the
// abstract section is populated by client-side script and is not in
// the raw HTML.
func (c *Client) fetchAbstractWithBrowser(ctx context.Context, publicationNumber string) (string, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, 45*time.Second)
	defer cancel()

	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
	}
	if c.cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(c.cfg.ChromePath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(timeoutCtx, append(chromedp.DefaultExecAllocatorOptions[:], opts...)...)
	defer allocCancel()

	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	var abstract string
	pageURL := c.cfg.GooglePatentsBaseURL + "/patent/" + publicationNumber + "/en"
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Text(`section[itemprop="abstract"]`, &abstract, chromedp.ByQuery, chromedp.AtLeast(0)),
	)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(abstract), nil
}
