package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joelkehle/target-landscape/internal/artifacts"
	"github.com/joelkehle/target-landscape/internal/landscape"
	"github.com/joelkehle/target-landscape/internal/scrape"
)

func main() {
	target := flag.String("target", "", "Molecular target to analyze (e.g. CD47)")
	indication := flag.String("indication", "", "Optional indication to focus on")
	outputDir := flag.String("output", "output", "Directory for stage artifacts and the report")
	dbPath := flag.String("db", "", "Optional SQLite path to record the run")
	model := flag.String("model", "", "Anthropic model name (defaults to the SDK's current Sonnet)")
	flag.Parse()

	if strings.TrimSpace(*target) == "" {
		log.Fatal("missing required -target")
	}
	requiredEnv("ANTHROPIC_API_KEY")

	completer, err := landscape.NewAnthropicCompleterFromEnv(*model)
	if err != nil {
		log.Fatal(err)
	}
	runDir := filepath.Join(*outputDir, time.Now().Format("20060102-150405"))
	pipeline := landscape.NewPipeline(
		completer,
		scrape.NewClient(scrape.Config{}),
		artifacts.NewDirSink(runDir),
		landscape.Config{Model: *model},
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Printf("starting landscape pipeline target=%s output=%s", *target, runDir)
	res := pipeline.RunWithProgress(ctx, landscape.Request{Target: *target, Indication: *indication},
		func(stage, message string) { log.Printf("[%s] %s", stage, message) })

	if err := writeResult(runDir, res); err != nil {
		log.Fatalf("write result: %v", err)
	}
	if *dbPath != "" {
		saveRun(*dbPath, res)
	}
	log.Printf("done mode=%s crowding_score=%v report=%s",
		res.Metadata.Mode, res.Summary["crowding_score"], filepath.Join(runDir, "report.md"))
}

func writeResult(dir string, res landscape.Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	blob, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "result.json"), blob, 0o644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "report.md"), []byte(res.Report), 0o644)
}

func saveRun(dbPath string, res landscape.Result) {
	store, err := artifacts.NewRunStore(dbPath)
	if err != nil {
		log.Printf("open run store: %v", err)
		return
	}
	defer store.Close()

	score, _ := res.Summary["crowding_score"].(float64)
	total, _ := res.Summary["total_competitors"].(int)
	id, err := store.Save(res.Target, score, total, string(res.Metadata.Mode),
		res.Metadata.StartedAt, res.Metadata.CompletedAt, res)
	if err != nil {
		log.Printf("save run: %v", err)
		return
	}
	log.Printf("recorded run id=%d", id)
}

func requiredEnv(key string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		log.Fatalf("missing required env var %s", key)
	}
	return v
}
