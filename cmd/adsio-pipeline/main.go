// adsio-pipeline runs one analysis pipeline from the command line and prints
// the trace as JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"adsio/internal/config"
	"adsio/internal/llm"
	"adsio/internal/memory"
	"adsio/internal/openfda"
	"adsio/internal/pipeline"
	"adsio/internal/report"
	"adsio/internal/store"
	"adsio/internal/validate"
)

func main() {
	drugFlag := flag.String("drug", "", "drug name to analyze")
	limitFlag := flag.Int("limit", 0, "max reports to fetch (default from config)")
	flag.Parse()

	cfg := config.Load()

	drug, err := validate.DrugName(*drugFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -drug: %v\n", err)
		os.Exit(2)
	}
	limit := *limitFlag
	if limit == 0 {
		limit = cfg.DefaultLimit
	}
	if limit, err = validate.Limit(limit); err != nil {
		fmt.Fprintf(os.Stderr, "invalid -limit: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer st.Close()

	var gen pipeline.Generator
	var memGen memory.Generator
	if cfg.UseGemini {
		client, err := llm.NewClient(ctx, cfg.GenAIAPIKey, cfg.GoogleModel)
		if err != nil && !errors.Is(err, llm.ErrDisabled) {
			log.Fatalf("llm: %v", err)
		}
		if err == nil {
			gen = client
			memGen = client
		}
	}

	fetcher := openfda.NewClient(
		openfda.WithEndpoint(cfg.OpenFDAEndpoint),
		openfda.WithTimeout(cfg.OpenFDATimeout),
		openfda.WithMaxRetries(cfg.OpenFDAMaxRetries),
		openfda.WithMinInterval(cfg.OpenFDAMinInterval),
	)
	mem := memory.NewService(st, memGen)
	reports := report.NewWriter(cfg.ReportsDir)
	orch := pipeline.NewOrchestrator(cfg, st, fetcher, gen, mem, reports)

	trace, err := orch.Run(ctx, drug, limit)
	if err != nil {
		log.Fatalf("pipeline: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(trace); err != nil {
		log.Fatalf("encode trace: %v", err)
	}
}
