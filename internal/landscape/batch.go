package landscape

import (
	"context"
	"fmt"
	"log"

	"github.com/joelkehle/target-landscape/internal/gracejson"
	"github.com/joelkehle/target-landscape/internal/tokens"
)

// StageSpec describes one LLM stage: how to build the prompt for a
// chunk, which output fields are mandatory, and the template a fallback
// record is shaped from.
type StageSpec struct {
	Name     string
	Prompt   func(chunk string) string
	Required []string
	Fallback gracejson.Record
}

// Source is one evidence stream feeding a stage. Each source chunks
// independently; record order within a source follows chunk order.
type Source struct {
	Name    string
	Payload tokens.Payload
}

// Orchestrator drives chunked, failure-absorbing LLM stages.
type Orchestrator struct {
	completer Completer
	est       *tokens.Estimator
	chunker   *tokens.Chunker
	cfg       Config
}

func NewOrchestrator(completer Completer, cfg Config) *Orchestrator {
	cfg = cfg.withDefaults()
	est := tokens.NewEstimator(cfg.Model)
	return &Orchestrator{
		completer: newPacedCompleter(completer, cfg),
		est:       est,
		chunker:   tokens.NewChunker(est),
		cfg:       cfg,
	}
}

// RunStage processes every source through the stage and returns the
// concatenated validated records. A failed chunk contributes exactly
// one tagged fallback record and the batch continues; RunStage never
// returns an error.
func (o *Orchestrator) RunStage(ctx context.Context, spec StageSpec, budget int, sources []Source) []gracejson.Record {
	out := []gracejson.Record{}
	for _, src := range sources {
		if src.Payload.Empty() {
			log.Printf("landscape: %s: source %s empty, skipping", spec.Name, src.Name)
			continue
		}
		for _, v := range o.runChunks(ctx, spec, budget, src.Payload, src.Name) {
			if fc, failed := v.(failedChunk); failed {
				out = append(out, o.failureRecord(spec, src.Name, fc.batch, fc.err))
				continue
			}
			out = append(out, gracejson.ExtractValid(v, spec.Required)...)
		}
	}
	return out
}

// RunChunkValues processes a single payload through the stage and
// returns one parsed value per chunk, for aggregation policies that
// need chunk-level structure (phase groups, score summaries). Failed
// chunks yield a tagged fallback record in place.
func (o *Orchestrator) RunChunkValues(ctx context.Context, spec StageSpec, budget int, payload tokens.Payload) []any {
	values := o.runChunks(ctx, spec, budget, payload, "")
	out := make([]any, 0, len(values))
	for _, v := range values {
		if fc, failed := v.(failedChunk); failed {
			out = append(out, o.failureRecord(spec, "", fc.batch, fc.err))
			continue
		}
		out = append(out, v)
	}
	return out
}

type failedChunk struct {
	batch int
	err   error
}

func (o *Orchestrator) runChunks(ctx context.Context, spec StageSpec, budget int, payload tokens.Payload, source string) []any {
	chunks := o.chunker.Split(payload, budget)
	if len(chunks) > 1 {
		log.Printf("landscape: %s: input over budget (%d tokens), split into %d chunks",
			spec.Name, o.est.Count(payload.Encode()), len(chunks))
	}
	out := make([]any, 0, len(chunks))
	for i, chunk := range chunks {
		raw, err := o.completer.Complete(ctx, spec.Prompt(chunk.Encode()))
		if err != nil {
			log.Printf("landscape: %s batch %d failed: %v", spec.Name, i+1, err)
			out = append(out, failedChunk{batch: i + 1, err: err})
			continue
		}
		where := fmt.Sprintf("%s batch %d", spec.Name, i+1)
		if source != "" {
			where += " (" + source + ")"
		}
		out = append(out, gracejson.Parse(raw, spec.Fallback, where))
	}
	return out
}

// failureRecord is the single record standing in for a chunk whose
// completion call failed outright. Template fields are present but
// empty so downstream shape checks still pass.
func (o *Orchestrator) failureRecord(spec StageSpec, source string, batch int, err error) gracejson.Record {
	rec := gracejson.Fallback(spec.Fallback, fmt.Sprintf("%s batch %d", spec.Name, batch), "")
	delete(rec, "_parsing_error")
	delete(rec, "_original_data_preview")
	rec["_processing_error"] = true
	rec["_fallback_entry"] = true
	rec["_batch"] = batch
	rec["_error_message"] = err.Error()
	rec["_stage"] = spec.Name
	if source != "" {
		rec["_source"] = source
	}
	return rec
}
