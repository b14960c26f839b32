package scrape

import (
	"context"
	"encoding/json"
	"fmt"
)

// EUCTR downloads the EU Clinical Trials Register summary for the
// target. The endpoint returns either a bare array or a wrapped
// object depending on result size.
func (c *Client) EUCTR(ctx context.Context, target string) ([]map[string]any, error) {
	rawURL := c.cfg.EUCTRBaseURL + "/ctr-search/rest/download/summary?query=" +
		queryEscape(target) + "&mode=current_page"
	body, err := c.getText(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("euctr query: %w", err)
	}

	var asList []map[string]any
	if json.Unmarshal([]byte(body), &asList) == nil {
		return asList, nil
	}
	var asDoc any
	if err := json.Unmarshal([]byte(body), &asDoc); err != nil {
		return nil, fmt.Errorf("euctr response is not JSON: %w", err)
	}
	if trials := listFromPaths(asDoc, []string{"trials"}, []string{"results"}); trials != nil {
		return trials, nil
	}
	if m, ok := asDoc.(map[string]any); ok {
		return []map[string]any{m}, nil
	}
	return nil, nil
}
