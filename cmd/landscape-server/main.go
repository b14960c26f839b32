package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/joelkehle/target-landscape/internal/artifacts"
	"github.com/joelkehle/target-landscape/internal/httpapi"
	"github.com/joelkehle/target-landscape/internal/landscape"
	"github.com/joelkehle/target-landscape/internal/scrape"
)

func main() {
	addr := flag.String("addr", ":8080", "Listen address")
	dbPath := flag.String("db", "landscape.db", "SQLite path for run history")
	artifactDir := flag.String("artifacts", "", "Optional directory for per-stage artifact dumps")
	model := flag.String("model", "", "Anthropic model name (defaults to the SDK's current Sonnet)")
	flag.Parse()

	requiredEnv("ANTHROPIC_API_KEY")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := setupTracing(ctx)
	if err != nil {
		log.Fatalf("tracing setup: %v", err)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Printf("tracing shutdown: %v", err)
		}
	}()

	completer, err := landscape.NewAnthropicCompleterFromEnv(*model)
	if err != nil {
		log.Fatal(err)
	}
	var sink landscape.ArtifactSink
	if *artifactDir != "" {
		sink = artifacts.NewDirSink(*artifactDir)
	}
	pipeline := landscape.NewPipeline(
		completer,
		scrape.NewClient(scrape.Config{}),
		sink,
		landscape.Config{Model: *model},
	)

	store, err := artifacts.NewRunStore(*dbPath)
	if err != nil {
		log.Fatalf("open run store: %v", err)
	}
	defer store.Close()

	srv := &http.Server{
		Addr:              *addr,
		Handler:           httpapi.NewServer(pipeline, store),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("landscape server listening on %s (db=%s)", *addr, *dbPath)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}

// setupTracing wires the OTLP HTTP exporter when an endpoint is
// configured; otherwise tracing stays on the default no-op provider.
func setupTracing(ctx context.Context) (func(context.Context) error, error) {
	if strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")) == "" {
		return func(context.Context) error { return nil }, nil
	}
	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

func requiredEnv(key string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		log.Fatalf("missing required env var %s", key)
	}
	return v
}
