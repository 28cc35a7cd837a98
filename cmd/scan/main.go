// main.go - One-shot CLI: scan a single invoice and print the record.

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/bosocmputer/invoice_scanner/configs"
	"github.com/bosocmputer/invoice_scanner/internal/ai"
	"github.com/bosocmputer/invoice_scanner/internal/common"
	apperrors "github.com/bosocmputer/invoice_scanner/internal/errors"
	"github.com/bosocmputer/invoice_scanner/internal/metrics"
	"github.com/bosocmputer/invoice_scanner/internal/processor"
	"github.com/bosocmputer/invoice_scanner/internal/scanner"
	"github.com/bosocmputer/invoice_scanner/internal/workpool"
)

func main() {
	file := flag.String("file", "", "invoice file, relative to BASE_DIR unless absolute")
	client := flag.String("client", "", "client business name")
	provider := flag.String("provider", ai.PreferenceAuto, "auto, anthropic, bedrock or gemini")
	raw := flag.Bool("raw", false, "print the raw model response instead of the extracted record")
	verbose := flag.Bool("v", false, "log progress to stderr")
	flag.Parse()

	os.Exit(run(*file, *client, *provider, *raw, *verbose))
}

func run(file, client, provider string, raw, verbose bool) int {
	logger := zap.NewNop()
	if verbose {
		if l, err := zap.NewDevelopment(); err == nil {
			logger = l
		}
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := configs.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	orch, err := ai.NewOrchestratorFromConfig(ctx, cfg, m, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	s := scanner.New(scanner.Config{
		BaseDir:     cfg.BaseDir,
		Temperature: cfg.DefaultTemperature,
		MaxTokens:   cfg.MaxOutputTokens,
	}, scanner.Deps{
		Normalizer: processor.NewNormalizer(processor.Options{
			MaxDimension: cfg.MaxImageDimension,
			Scale:        cfg.ImageScale,
			JPEGQuality:  cfg.JPEGQuality,
			DPI:          cfg.PDFDPI,
		}, workpool.New(cfg.ImageWorkers), nil, logger),
		Orchestrator: orch,
		Metrics:      m,
		Logger:       logger,
	})

	rc := common.NewRequestContext(logger, client)
	ctx = common.WithRequestContext(ctx, rc)

	out, err := s.Scan(ctx, file, client, provider, scanner.WithTrustedPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", apperrors.GetCode(err), err)
		return 1
	}
	if raw {
		fmt.Println(out.RawText)
		return 0
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.Extract(out.RawText)); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
