package scrape

import (
	"context"
	"fmt"
	"net/url"
)

const clinicalTrialsFields = "OverallStatus,LastKnownStatus,BriefTitle,Condition," +
	"InterventionType,InterventionName,NCTId,StudyType,LeadSponsorName," +
	"EnrollmentCount,StartDate,PrimaryCompletionDate,CompletionDate,Phase," +
	"DesignPrimaryPurpose,LeadSponsorClass,CollaboratorClass"

// ClinicalTrials queries the ClinicalTrials.gov internal study search
// for interventional programs against the target.
func (c *Client) ClinicalTrials(ctx context.Context, target string) ([]map[string]any, error) {
	params := url.Values{}
	params.Set("cond", target)
	params.Set("agg.synonyms", "true")
	params.Set("aggFilters", "phase:0 1 2 3 4")
	params.Set("checkSpell", "true")
	params.Set("from", "0")
	params.Set("limit", fmt.Sprintf("%d", c.cfg.MaxResults))
	params.Set("fields", clinicalTrialsFields)
	params.Set("columns", "conditions,interventions,collaborators")
	params.Set("sort", "@relevance")

	var doc any
	if err := c.getJSON(ctx, c.cfg.ClinicalTrialsBaseURL+"/api/int/studies?"+params.Encode(), &doc); err != nil {
		return nil, fmt.Errorf("clinicaltrials.gov query: %w", err)
	}
	studies := listFromPaths(doc,
		[]string{"studies"},
		[]string{"data", "studies"},
		[]string{"hits"},
	)
	if studies == nil {
		// Unrecognized envelope: hand the whole document to the
		// extraction stage rather than drop it.
		if m, ok := doc.(map[string]any); ok {
			return []map[string]any{m}, nil
		}
		return nil, nil
	}
	return studies, nil
}
