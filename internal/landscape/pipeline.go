package landscape

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/joelkehle/target-landscape/internal/gracejson"
	"github.com/joelkehle/target-landscape/internal/tokens"
)

// EvidenceGatherer supplies raw registry evidence for a target. A
// gatherer error degrades that source to empty evidence, never the run.
type EvidenceGatherer interface {
	PatentQuery(ctx context.Context, target string) ([]map[string]any, error)
	PatentAbstracts(ctx context.Context, publicationNumbers []string) ([]map[string]any, error)
	ClinicalTrials(ctx context.Context, target string) ([]map[string]any, error)
	EUCTR(ctx context.Context, target string) ([]map[string]any, error)
	PubMed(ctx context.Context, target string) ([]map[string]any, error)
}

// ArtifactSink receives each stage's aggregate, best-effort.
type ArtifactSink interface {
	Dump(name string, v any) bool
}

type nopSink struct{}

func (nopSink) Dump(string, any) bool { return false }

type Pipeline struct {
	orch   *Orchestrator
	gather EvidenceGatherer
	sink   ArtifactSink
	cfg    Config
	tracer trace.Tracer
}

func NewPipeline(completer Completer, gather EvidenceGatherer, sink ArtifactSink, cfg Config) *Pipeline {
	cfg = cfg.withDefaults()
	if sink == nil {
		sink = nopSink{}
	}
	return &Pipeline{
		orch:   NewOrchestrator(completer, cfg),
		gather: gather,
		sink:   sink,
		cfg:    cfg,
		tracer: otel.Tracer("github.com/joelkehle/target-landscape/internal/landscape"),
	}
}

func (p *Pipeline) Run(ctx context.Context, req Request) Result {
	return p.runWithProgress(ctx, req, nil)
}

func (p *Pipeline) RunWithProgress(ctx context.Context, req Request, progress StageProgressFn) Result {
	return p.runWithProgress(ctx, req, progress)
}

// runWithProgress never fails: stage problems degrade their section and
// a panic anywhere still produces a well-formed tagged result.
func (p *Pipeline) runWithProgress(ctx context.Context, req Request, progress StageProgressFn) (res Result) {
	res = Result{
		Target:   req.Target,
		Patents:  []gracejson.Record{},
		Assets:   []gracejson.Record{},
		ByPhase:  emptyPhaseGroups(),
		Summary:  gracejson.Record{},
		Metadata: ResultMetadata{StartedAt: time.Now(), Mode: ReportModeComplete},
	}
	defer func() {
		if r := recover(); r != nil {
			res.Metadata.Mode = ReportModeDegraded
			res.Metadata.Error = fmt.Sprintf("critical pipeline failure: %v", r)
			res.Summary["_critical_error"] = true
		}
		res.Summary = ValidateSummary(res.Summary, req.Target)
		res.Report = BuildReport(res)
		res.Metadata.CompletedAt = time.Now()
	}()

	if strings.TrimSpace(req.Target) == "" {
		res.Metadata.Mode = ReportModeDegraded
		res.Metadata.Error = "target is required"
		res.Summary["_critical_error"] = true
		return res
	}

	ctx, span := p.tracer.Start(ctx, "landscape.run",
		trace.WithAttributes(attribute.String("landscape.target", req.Target)))
	defer span.End()

	p.guard(&res, "patent_query", func() {
		emit(progress, "patent_query", "Querying Google Patents and extracting patent records...")
		res.Patents = p.runPatentStage(ctx, req)
	})
	p.sink.Dump("01_patents.json", res.Patents)

	var ev evidenceSet
	p.guard(&res, "evidence", func() {
		emit(progress, "evidence", "Gathering trial, registry, and literature evidence...")
		ev = p.gatherEvidence(ctx, req, res.Patents)
	})
	p.sink.Dump("02_evidence.json", ev)

	p.guard(&res, "asset_extraction", func() {
		emit(progress, "asset_extraction", "Extracting therapeutic programs from evidence...")
		res.Assets = p.runAssetStage(ctx, req, ev)
	})
	p.sink.Dump("03_assets.json", res.Assets)

	p.guard(&res, "normalization", func() {
		emit(progress, "normalization", "Normalizing programs into development phases...")
		res.ByPhase = p.runNormalizeStage(ctx, req, res.Assets)
	})
	p.sink.Dump("04_by_phase.json", res.ByPhase)

	p.guard(&res, "scoring", func() {
		emit(progress, "scoring", "Computing the crowding score...")
		res.Summary = p.runScoreStage(ctx, req, res.ByPhase)
	})
	p.sink.Dump("05_summary.json", res.Summary)

	return res
}

// guard runs one stage body, absorbing a panic into a degraded mark so
// the remaining stages still run over whatever was produced so far.
func (p *Pipeline) guard(res *Result, stage string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("landscape: stage %s panicked: %v", stage, r)
			res.Metadata.Mode = ReportModeDegraded
			res.Metadata.StagesFailed = append(res.Metadata.StagesFailed, stage)
		}
	}()
	fn()
}

func (p *Pipeline) runPatentStage(ctx context.Context, req Request) []gracejson.Record {
	ctx, span := p.tracer.Start(ctx, "landscape.patent_query")
	defer span.End()

	results, err := p.gather.PatentQuery(ctx, req.subject())
	if err != nil {
		log.Printf("landscape: patent query failed, continuing without patents: %v", err)
		results = nil
	}
	var recs []gracejson.Record
	if len(results) > 0 {
		recs = p.orch.RunStage(ctx, patentStage(req.Target), p.cfg.ExtractTokenBudget, []Source{
			{Name: "google_patents", Payload: tokens.FromValue(results)},
		})
	}
	out := CombineFlat(patentRequiredFields, recs)
	span.SetAttributes(attribute.Int("landscape.patent_records", len(out)))
	return out
}

type evidenceSet struct {
	Trials          []map[string]any `json:"clinical_trials"`
	EUCTR           []map[string]any `json:"euctr"`
	PubMed          []map[string]any `json:"pubmed"`
	PatentAbstracts []map[string]any `json:"patent_abstracts"`
}

func (p *Pipeline) gatherEvidence(ctx context.Context, req Request, patents []gracejson.Record) evidenceSet {
	ctx, span := p.tracer.Start(ctx, "landscape.evidence")
	defer span.End()

	var ev evidenceSet
	ev.Trials = gatherSource("clinicaltrials.gov", func() ([]map[string]any, error) {
		return p.gather.ClinicalTrials(ctx, req.subject())
	})
	ev.EUCTR = gatherSource("euctr", func() ([]map[string]any, error) {
		return p.gather.EUCTR(ctx, req.subject())
	})
	ev.PubMed = gatherSource("pubmed", func() ([]map[string]any, error) {
		return p.gather.PubMed(ctx, req.subject())
	})
	ev.PatentAbstracts = gatherSource("patent_abstracts", func() ([]map[string]any, error) {
		return p.gather.PatentAbstracts(ctx, publicationNumbers(patents))
	})
	span.SetAttributes(
		attribute.Int("landscape.trials", len(ev.Trials)),
		attribute.Int("landscape.euctr", len(ev.EUCTR)),
		attribute.Int("landscape.pubmed", len(ev.PubMed)),
		attribute.Int("landscape.patent_abstracts", len(ev.PatentAbstracts)),
	)
	return ev
}

func gatherSource(name string, fn func() ([]map[string]any, error)) []map[string]any {
	out, err := fn()
	if err != nil {
		log.Printf("landscape: %s scrape failed, continuing with empty evidence: %v", name, err)
		return nil
	}
	log.Printf("landscape: %s yielded %d result(s)", name, len(out))
	return out
}

func (p *Pipeline) runAssetStage(ctx context.Context, req Request, ev evidenceSet) []gracejson.Record {
	ctx, span := p.tracer.Start(ctx, "landscape.asset_extraction")
	defer span.End()

	var lists [][]gracejson.Record
	for _, src := range []struct {
		name string
		data []map[string]any
	}{
		{"clinicaltrials.gov", ev.Trials},
		{"euctr", ev.EUCTR},
		{"pubmed", ev.PubMed},
		{"patent_abstracts", ev.PatentAbstracts},
	} {
		if len(src.data) == 0 {
			continue
		}
		lists = append(lists, p.orch.RunStage(ctx, assetStage(req.Target, src.name), p.cfg.ExtractTokenBudget, []Source{
			{Name: src.name, Payload: tokens.FromValue(src.data)},
		}))
	}
	out := CombineFlat(assetRequiredFields, lists...)
	span.SetAttributes(attribute.Int("landscape.asset_records", len(out)))
	return out
}

func (p *Pipeline) runNormalizeStage(ctx context.Context, req Request, assets []gracejson.Record) map[string][]gracejson.Record {
	ctx, span := p.tracer.Start(ctx, "landscape.normalization")
	defer span.End()

	chunks := p.orch.RunChunkValues(ctx, normalizeStage(req.Target), p.cfg.RefineTokenBudget, tokens.FromValue(assets))
	merged := MergePhaseGroups(chunks)
	total := 0
	for _, ph := range Phases {
		total += len(merged[ph])
	}
	span.SetAttributes(attribute.Int("landscape.normalized_records", total))
	return merged
}

func (p *Pipeline) runScoreStage(ctx context.Context, req Request, byPhase map[string][]gracejson.Record) gracejson.Record {
	ctx, span := p.tracer.Start(ctx, "landscape.scoring")
	defer span.End()

	chunks := p.orch.RunChunkValues(ctx, scoreStage(req.Target), p.cfg.RefineTokenBudget, tokens.FromValue(byPhase))
	summary := CombineSummaries(req.Target, chunks, p.cfg.MaxSaturation)
	if score, ok := summary["crowding_score"].(float64); ok {
		span.SetAttributes(attribute.Float64("landscape.crowding_score", score))
	}
	return summary
}

func publicationNumbers(patents []gracejson.Record) []string {
	var out []string
	seen := map[string]bool{}
	for _, rec := range patents {
		if fb, _ := rec["_fallback_entry"].(bool); fb {
			continue
		}
		n, _ := rec["publication_number"].(string)
		n = strings.TrimSpace(n)
		if n == "" || n == gracejson.UnknownValue || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

func emptyPhaseGroups() map[string][]gracejson.Record {
	m := map[string][]gracejson.Record{}
	for _, p := range Phases {
		m[p] = []gracejson.Record{}
	}
	return m
}

func emit(progress StageProgressFn, stage, message string) {
	if progress != nil {
		progress(stage, message)
	}
}
