package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/woozymasta/reproj/internal/config"
	"github.com/woozymasta/reproj/internal/logger"
	"github.com/woozymasta/reproj/internal/processor"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile  string   `short:"c" long:"config"      env:"CONFIG_FILE" description:"Path to configuration file" default:"config.yaml"`
	Limit       []string `short:"l" long:"limit"       env:"LIMIT_NAMES" env-delim:"," description:"Limit processing to specific dataset names or aliases"`
	Only        string   `short:"k" long:"only"        env:"ONLY_KIND"   description:"Process only datasets of this kind" choice:"vector" choice:"points" choice:"raster"`
	Concurrency int      `short:"p" long:"concurrency" env:"CONCURRENCY" description:"Parallel tile downloads"`
	Force       bool     `short:"f" long:"force"       description:"Force overwrite of existing files"`
	FastCheck   bool     `short:"F" long:"fast-check"  description:"Skip datasets whose output directory exists"`
	Summary     bool     `short:"s" long:"summary"     description:"Print a summary table to stdout"`
	PlotFormat  string   `long:"plot-format"           env:"PLOT_FORMAT" description:"Format of dataset plots" choice:"png" choice:"svg" choice:"pdf" default:"png"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	opts.Logger.Setup()

	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	client := &http.Client{
		Transport: &http.Transport{
			TLSNextProto:        make(map[string]func(string, *tls.Conn) http.RoundTripper),
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
		},
		Timeout: 60 * time.Second,
	}

	queue := selectDatasets(cfg, opts.Limit, config.Kind(opts.Only))

	log.Info().
		Int("datasets_total", len(cfg.Datasets)).
		Int("datasets_queued", len(queue)).
		Bool("fast_check", opts.FastCheck).
		Bool("force", opts.Force).
		Msg("Starting reprojection")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	proc := processor.New(client, cfg, processor.Options{
		Concurrency: opts.Concurrency,
		Force:       opts.Force,
		FastCheck:   opts.FastCheck,
		PlotFormat:  opts.PlotFormat,
	})

	results := make([]processor.Result, 0, len(queue))
	failed := 0
	for _, d := range queue {
		if ctx.Err() != nil {
			log.Warn().Msg("Interrupted, remaining datasets skipped")
			break
		}

		start := time.Now()
		res, err := proc.Process(ctx, d)
		if err != nil {
			failed++
			log.Error().Err(err).Str("dataset", d.Name).Str("kind", string(d.Kind)).Msg("Failed to process dataset")
			continue
		}

		log.Info().
			Str("dataset", d.Name).
			Int("input", res.Input).
			Int("output", res.Output).
			Int("dropped", res.Dropped).
			Bool("skipped", res.Skipped).
			Dur("duration", time.Since(start)).
			Msg("Dataset processed")
		results = append(results, res)
	}

	if opts.Summary {
		printSummary(results)
	}

	if failed > 0 {
		log.Error().Int("failed", failed).Msg("Reprojection finished with errors")
		os.Exit(1)
	}
	log.Info().Msg("Reprojection finished successfully")
}

// selectDatasets applies --limit and --only, keeping configuration order.
func selectDatasets(cfg *config.Config, limit []string, kind config.Kind) []config.Dataset {
	queue := make([]config.Dataset, 0, len(cfg.Datasets))

	if len(limit) == 0 {
		for _, d := range cfg.Datasets {
			if kind == "" || d.Kind == kind {
				queue = append(queue, d)
			}
		}
		return queue
	}

	seen := make(map[string]bool)
	for _, name := range limit {
		d, ok := cfg.Dataset(strings.TrimSpace(name))
		if !ok {
			log.Error().
				Str("name", name).
				Msg("Dataset specified in --limit not found in configuration")
			continue
		}
		if seen[d.Name] || (kind != "" && d.Kind != kind) {
			continue
		}
		seen[d.Name] = true
		queue = append(queue, d)
	}

	return queue
}

func printSummary(results []processor.Result) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Dataset", "Input", "Output", "Dropped", "Files"})
	for _, r := range results {
		files := strings.Join(r.Files, " ")
		if r.Skipped {
			files = "(skipped)"
		}
		t.AppendRow(table.Row{r.Dataset, r.Input, r.Output, r.Dropped, files})
	}
	t.Render()
}
