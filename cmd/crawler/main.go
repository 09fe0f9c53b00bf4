package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/aluiziolira/go-scrape-discogs/config"
	"github.com/aluiziolira/go-scrape-discogs/models"
	"github.com/aluiziolira/go-scrape-discogs/pipeline"
	"github.com/aluiziolira/go-scrape-discogs/scraper"
	"github.com/aluiziolira/go-scrape-discogs/server"
	"github.com/aluiziolira/go-scrape-discogs/store"
)

func main() {
	configPath := flag.String("config", "", "Config file (yaml, json, toml); DIGGER_* env vars override it")
	flag.Int("pages", 0, "Maximum inventory pages per seller (0 for all)")
	flag.String("sellers", "", "Comma-separated seller names to add to the stored list")
	flag.String("output", "", "Output file path")
	flag.String("format", "", "Output format: csv, json, or dual")
	flag.String("store", "", "Record store backend: memory, pebble, or sqlite")
	flag.String("store-path", "", "Record store location")
	flag.Bool("resume", false, "Reuse stored seller records instead of re-crawling")
	flag.String("currency", "", "Reference currency code")
	flag.String("kafka-brokers", "", "Comma-separated Kafka brokers for broadcasting recommendations")
	flag.String("status-addr", "", "Status endpoint listen address (e.g. :8080)")
	flag.Bool("v", false, "Enable verbose logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	applyFlags(cfg, flag.CommandLine)
	cfg.Sellers = append(cfg.Sellers, flag.Args()...)

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}
	if cfg.Token == "" {
		slog.Warn("no API token configured, requests are rate limited as anonymous")
	}

	if err := run(cfg); err != nil {
		slog.Error("crawl failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	records, err := store.Open(cfg.StoreBackend, cfg.StorePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := records.Close(); err != nil {
			slog.Error("close store", slog.Any("error", err))
		}
	}()

	sellers, err := store.StoredSellers{Store: records, Extra: cfg.Sellers}.Sellers(ctx)
	if err != nil {
		return err
	}
	if len(sellers) == 0 {
		return errors.New("no sellers to crawl: pass names as arguments or -sellers")
	}

	crawler, err := scraper.NewCrawler(cfg, records)
	if err != nil {
		return fmt.Errorf("initialising crawler: %w", err)
	}

	fileWriter, err := pipeline.NewFileWriter(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		return fmt.Errorf("creating writer: %w", err)
	}
	feed := pipeline.NewFeed(cfg.FeedSize)
	writers := []pipeline.OutputWriter{fileWriter, feed}
	if len(cfg.KafkaBrokers) > 0 {
		writers = append(writers, pipeline.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic, crawler.RunID, cfg.KafkaTimeout))
		slog.Info("broadcasting recommendations",
			slog.String("topic", cfg.KafkaTopic),
			slog.String("brokers", strings.Join(cfg.KafkaBrokers, ",")),
		)
	}
	writer := pipeline.NewMultiWriter(writers...)
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("close writer", slog.Any("error", err))
		}
	}()

	if cfg.StatusAddr != "" {
		status := server.New(cfg.StatusAddr, crawler, feed, crawler.Metrics.Registry)
		go func() {
			if err := status.Start(); err != nil {
				slog.Error("status server failed", slog.Any("error", err))
			}
		}()
		defer shutdownStatus(status)
	}

	// Not bound to ctx: records handed over before a signal still drain.
	p, err := pipeline.NewPipeline(context.Background(), writer, cfg)
	if err != nil {
		return fmt.Errorf("creating pipeline: %w", err)
	}
	p.Start(cfg.Workers)
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	slog.Info("starting crawl",
		slog.String("run_id", crawler.RunID),
		slog.Int("sellers", len(sellers)),
		slog.String("store", cfg.StoreBackend),
		slog.Bool("resume", cfg.Resume),
	)

	result, runErr := crawler.Run(ctx, sellers, p.HandleRecord)
	if ctx.Err() != nil {
		slog.Info("shutdown signal received, crawl stopped early")
	}
	if err := p.Close(); err != nil {
		return fmt.Errorf("pipeline shutdown: %w", err)
	}
	if runErr != nil {
		return runErr
	}

	printSummary(result, cfg.OutputFile, p.GetMetrics())
	return nil
}

func shutdownStatus(status *server.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := status.Shutdown(ctx); err != nil {
		slog.Error("status server shutdown failed", slog.Any("error", err))
	}
}

// applyFlags copies explicitly set flags over the loaded configuration.
func applyFlags(cfg *config.Config, fs *flag.FlagSet) {
	fs.Visit(func(f *flag.Flag) {
		value := f.Value.String()
		switch f.Name {
		case "pages":
			if n, err := strconv.Atoi(value); err == nil {
				cfg.MaxPages = n
			}
		case "sellers":
			cfg.Sellers = append(cfg.Sellers, splitList(value)...)
		case "output":
			cfg.OutputFile = value
		case "format":
			cfg.OutputFormat = strings.ToLower(value)
		case "store":
			cfg.StoreBackend = strings.ToLower(value)
		case "store-path":
			cfg.StorePath = value
		case "resume":
			cfg.Resume = value == "true"
		case "currency":
			cfg.ReferenceCurrency = strings.ToUpper(value)
		case "kafka-brokers":
			cfg.KafkaBrokers = splitList(value)
		case "status-addr":
			cfg.StatusAddr = value
		case "v":
			cfg.Verbose = value == "true"
		}
	})
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func printSummary(result *models.CrawlResult, outputFile string, metrics map[string]interface{}) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Crawl complete")

	recommended := int64(0)
	if n, ok := metrics["recommended_listings"].(int64); ok {
		recommended = n
	}

	fmt.Printf("  Run ID:        %s\n", result.RunID)
	fmt.Printf("  Sellers:       %d (%d resumed)\n", result.SellerCount, result.ResumedCount)
	fmt.Printf("  Failed:        %d %v\n", len(result.FailedSellers), result.FailedSellers)
	fmt.Printf("  Listings:      %d\n", result.ListingCount)
	fmt.Printf("  Recommended:   %d\n", recommended)
	fmt.Printf("  Requests:      %d\n", result.RequestCount)
	fmt.Printf("  Pages:         %d (%d failed)\n", result.PageCount, result.FailedPages)
	if len(result.ErrorsByType) > 0 {
		fmt.Printf("  Error types:   %v\n", result.ErrorsByType)
	}
	if valErrors, ok := metrics["validation_errors"].(map[string]int); ok && len(valErrors) > 0 {
		fmt.Printf("  Validation:    %v\n", valErrors)
	}
	fmt.Printf("  Duration:      %v\n", result.EndTime.Sub(result.StartTime).Round(time.Millisecond))
	fmt.Printf("  Output file:   %s\n", outputFile)
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
