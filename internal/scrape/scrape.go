// Package scrape gathers public registry evidence for a molecular
// target: ClinicalTrials.gov, the EU Clinical Trials Register, PubMed,
// and Google Patents. Every method degrades to an error the caller can
// absorb; no scraper is load-bearing for the pipeline.
package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"
)

const userAgent = "target-landscape/1.0"

type Config struct {
	ClinicalTrialsBaseURL string
	EUCTRBaseURL          string
	PubMedBaseURL         string
	GooglePatentsBaseURL  string

	HTTPClient *http.Client

	// MaxResults caps each registry query.
	MaxResults int
	// MaxAbstracts caps how many patent pages the browser visits.
	MaxAbstracts int
	// MaxPatentPages caps Google Patents query pagination.
	MaxPatentPages int

	ChromePath string

	// AbstractFetcher overrides the headless-browser abstract fetch.
	AbstractFetcher func(ctx context.Context, publicationNumber string) (string, error)
}

type Client struct {
	cfg Config
}

func NewClient(cfg Config) *Client {
	if cfg.ClinicalTrialsBaseURL == "" {
		cfg.ClinicalTrialsBaseURL = "https://clinicaltrials.gov"
	}
	if cfg.EUCTRBaseURL == "" {
		cfg.EUCTRBaseURL = "https://www.clinicaltrialsregister.eu"
	}
	if cfg.PubMedBaseURL == "" {
		cfg.PubMedBaseURL = "https://eutils.ncbi.nlm.nih.gov"
	}
	if cfg.GooglePatentsBaseURL == "" {
		cfg.GooglePatentsBaseURL = "https://patents.google.com"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 100
	}
	if cfg.MaxAbstracts <= 0 {
		cfg.MaxAbstracts = 10
	}
	if cfg.MaxPatentPages <= 0 {
		cfg.MaxPatentPages = 5
	}
	if cfg.ChromePath == "" {
		cfg.ChromePath = detectChromePath()
	}
	c := &Client{cfg: cfg}
	if c.cfg.AbstractFetcher == nil {
		c.cfg.AbstractFetcher = c.fetchAbstractWithBrowser
	}
	return c
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	res, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(res.Body, 8<<20))
	if res.StatusCode >= 400 {
		return fmt.Errorf("status code: %d body=%s", res.StatusCode, truncate(string(b), 200))
	}
	return json.Unmarshal(b, out)
}

func (c *Client) getText(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)

	res, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(res.Body, 8<<20))
	if res.StatusCode >= 400 {
		return "", fmt.Errorf("status code: %d", res.StatusCode)
	}
	return string(b), nil
}

// listFromPaths digs the first list of mappings found under any of the
// candidate paths. Registries disagree on envelope shape; the evidence
// consumer only needs the records.
func listFromPaths(doc any, paths ...[]string) []map[string]any {
	for _, path := range paths {
		cur := doc
		ok := true
		for _, key := range path {
			m, isMap := cur.(map[string]any)
			if !isMap {
				ok = false
				break
			}
			cur = m[key]
		}
		if !ok {
			continue
		}
		if list, isList := cur.([]any); isList {
			out := make([]map[string]any, 0, len(list))
			for _, e := range list {
				if m, isMap := e.(map[string]any); isMap {
					out = append(out, m)
				}
			}
			if len(out) > 0 {
				return out
			}
		}
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func queryEscape(s string) string { return url.QueryEscape(s) }

func detectChromePath() string {
	candidates := []string{
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/usr/bin/google-chrome",
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
