package scrape

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClinicalTrialsParsesStudies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/int/studies" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("cond"); got != "CD47" {
			t.Errorf("cond = %q", got)
		}
		w.Write([]byte(`{"data":{"studies":[{"nctId":"NCT01234567","briefTitle":"A study"}]}}`))
	}))
	defer srv.Close()

	c := NewClient(Config{ClinicalTrialsBaseURL: srv.URL})
	studies, err := c.ClinicalTrials(context.Background(), "CD47")
	if err != nil {
		t.Fatal(err)
	}
	if len(studies) != 1 || studies[0]["nctId"] != "NCT01234567" {
		t.Fatalf("unexpected studies: %v", studies)
	}
}

func TestClinicalTrialsUnrecognizedEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"something":"else"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{ClinicalTrialsBaseURL: srv.URL})
	studies, err := c.ClinicalTrials(context.Background(), "CD47")
	if err != nil {
		t.Fatal(err)
	}
	if len(studies) != 1 {
		t.Fatalf("whole document should be kept as one record, got %v", studies)
	}
}

func TestClinicalTrialsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(Config{ClinicalTrialsBaseURL: srv.URL})
	if _, err := c.ClinicalTrials(context.Background(), "CD47"); err == nil {
		t.Fatal("expected error for 502")
	}
}

func TestEUCTRBareArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("query"); got != "CD47" {
			t.Errorf("query = %q", got)
		}
		w.Write([]byte(`[{"eudractNumber":"2024-000001-01"}]`))
	}))
	defer srv.Close()

	c := NewClient(Config{EUCTRBaseURL: srv.URL})
	trials, err := c.EUCTR(context.Background(), "CD47")
	if err != nil {
		t.Fatal(err)
	}
	if len(trials) != 1 || trials[0]["eudractNumber"] != "2024-000001-01" {
		t.Fatalf("unexpected trials: %v", trials)
	}
}

func TestEUCTRWrappedObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"trials":[{"eudractNumber":"2024-000002-02"}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{EUCTRBaseURL: srv.URL})
	trials, err := c.EUCTR(context.Background(), "CD47")
	if err != nil || len(trials) != 1 {
		t.Fatalf("wrapped trials not extracted: %v, %v", trials, err)
	}
}

func TestPubMedSearchAndFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/entrez/eutils/esearch.fcgi":
			w.Write([]byte(`{"esearchresult":{"idlist":["111","222"]}}`))
		case "/entrez/eutils/efetch.fcgi":
			if got := r.URL.Query().Get("id"); got != "111,222" {
				t.Errorf("efetch id = %q", got)
			}
			w.Write([]byte("First abstract text.\n\n\nSecond abstract text."))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewClient(Config{PubMedBaseURL: srv.URL})
	arts, err := c.PubMed(context.Background(), "CD47")
	if err != nil {
		t.Fatal(err)
	}
	if len(arts) != 2 {
		t.Fatalf("expected 2 abstract records, got %d", len(arts))
	}
	if arts[0]["abstract"] != "First abstract text." {
		t.Fatalf("unexpected abstract: %v", arts[0])
	}
}

func TestPubMedNoHits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/entrez/eutils/esearch.fcgi" {
			t.Errorf("efetch must not run with no hits: %s", r.URL.Path)
		}
		w.Write([]byte(`{"esearchresult":{"idlist":[]}}`))
	}))
	defer srv.Close()

	c := NewClient(Config{PubMedBaseURL: srv.URL})
	arts, err := c.PubMed(context.Background(), "CD47")
	if err != nil || len(arts) != 0 {
		t.Fatalf("expected empty result, got %v, %v", arts, err)
	}
}

func TestPatentQueryFlattensAndPaginates(t *testing.T) {
	page0 := `{"results":{"total_num_pages":2,"cluster":[{"result":[
		{"patent":{"title":" Anti-CD47 antibodies ","publication_number":"WO2024000001","assignee":"Acme","grant_date":"2024-01-01"}}]}]}}`
	page1 := `{"results":{"cluster":[{"result":[
		{"patent":{"title":"CD47 modulators","publication_number":"US2024000002","assignee":"Beta","grant_date":""}}]}]}}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/xhr/query" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("url") == "q=CD47&oq=CD47&page=0" {
			w.Write([]byte(page0))
			return
		}
		w.Write([]byte(page1))
	}))
	defer srv.Close()

	c := NewClient(Config{GooglePatentsBaseURL: srv.URL})
	patents, err := c.PatentQuery(context.Background(), "CD47")
	if err != nil {
		t.Fatal(err)
	}
	if len(patents) != 2 {
		t.Fatalf("expected 2 patents across pages, got %d", len(patents))
	}
	if patents[0]["title"] != "Anti-CD47 antibodies" || patents[0]["status"] != "Granted" {
		t.Fatalf("cleaning failed: %v", patents[0])
	}
	if patents[1]["status"] != "Pending" {
		t.Fatalf("empty grant date should mean Pending: %v", patents[1])
	}
}

func TestPatentAbstractsTolerant(t *testing.T) {
	calls := 0
	c := NewClient(Config{
		MaxAbstracts: 2,
		AbstractFetcher: func(_ context.Context, num string) (string, error) {
			calls++
			if num == "BAD" {
				return "", errors.New("navigation failed")
			}
			return "An antibody binding CD47.", nil
		},
	})
	recs, err := c.PatentAbstracts(context.Background(), []string{"WO1", "BAD", "WO3"})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Fatalf("MaxAbstracts cap not applied: %d calls", calls)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0]["abstract"] != "An antibody binding CD47." {
		t.Fatalf("abstract missing: %v", recs[0])
	}
	if recs[1]["abstract"] != "" {
		t.Fatalf("failed fetch should leave an empty abstract: %v", recs[1])
	}
}
