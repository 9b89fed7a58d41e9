package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"gopkg.in/yaml.v3"

	"earthexchange/config"
	"earthexchange/native/dex"
	"earthexchange/observability/logging"
	telemetry "earthexchange/observability/otel"
	"earthexchange/services/journal"
	"earthexchange/storage"
)

const serviceName = "dex-audit"

const (
	exitOK         = 0
	exitError      = 1
	exitViolations = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(serviceName, flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "./config.toml", "Path to exchange configuration file")
	format := fs.String("format", "json", "Report format: json or yaml")
	initialize := fs.Bool("init", false, "Write genesis parameters from the config when the ledger is empty")
	window := fs.Duration("journal-window", 24*time.Hour, "How far back to count journal events")
	if err := fs.Parse(args); err != nil {
		return exitError
	}
	encode, err := encoder(*format)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return exitError
	}
	logger, closer := logging.SetupWithOptions(logging.Options{
		Service:     serviceName,
		Environment: cfg.Environment,
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		File:        cfg.Log.File,
		MaxSizeMB:   cfg.Log.MaxSizeMB,
		MaxBackups:  cfg.Log.MaxBackups,
		MaxAgeDays:  cfg.Log.MaxAgeDays,
		Stdout:      stderr,
	})
	defer closer.Close()

	ctx := context.Background()
	headers := telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"), cfg.Telemetry.Headers)
	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: serviceName,
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     headers,
		Traces:      cfg.Telemetry.Traces,
		Metrics:     cfg.Telemetry.Metrics,
	})
	if err != nil {
		logger.Error("telemetry init failed", slog.Any("error", err))
		return exitError
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()
	if cfg.Telemetry.Enabled() {
		logger.Info("telemetry enabled",
			slog.String("endpoint", cfg.Telemetry.Endpoint),
			logging.Headers("headers", headers))
	}

	report, err := audit(ctx, cfg, *initialize, logger)
	if err != nil {
		logger.Error("audit failed", slog.Any("error", err))
		return exitError
	}
	recordReport(ctx, report)

	output := auditOutput{AuditReport: *report}
	if cfg.Journal.Enabled() {
		if output.Journal, err = journalCounts(ctx, cfg, time.Now().Add(-*window)); err != nil {
			logger.Error("journal query failed", slog.Any("error", err))
			return exitError
		}
	}
	out, err := encode(&output)
	if err != nil {
		logger.Error("encode report failed", slog.Any("error", err))
		return exitError
	}
	fmt.Fprint(stdout, string(out))
	if !report.Healthy() {
		logger.Warn("ledger invariants violated", slog.Int("violations", len(report.Violations)))
		return exitViolations
	}
	logger.Info("ledger healthy", slog.Int("pools", len(report.Pools)))
	return exitOK
}

func audit(ctx context.Context, cfg *config.Config, initialize bool, logger *slog.Logger) (*dex.AuditReport, error) {
	_, span := otelapi.Tracer("earthexchange/cmd/dex-audit").Start(ctx, "dex.audit")
	defer span.End()

	db, err := storage.NewLevelDB(cfg.LedgerPath())
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", cfg.LedgerPath(), err)
	}
	defer db.Close()

	if initialize {
		engine := dex.NewEngine()
		engine.SetLogger(logger)
		if _, err := engine.Params(db); errors.Is(err, dex.ErrNotInitialized) {
			params, err := cfg.DexParams()
			if err != nil {
				return nil, err
			}
			if err := engine.Init(db, params); err != nil {
				return nil, err
			}
			logger.Info("ledger initialized", slog.String("hub", params.HubAsset))
		} else if err != nil {
			return nil, err
		}
	}
	report, err := dex.Audit(db)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("dex.pools", len(report.Pools)),
		attribute.Int("dex.violations", len(report.Violations)),
	)
	return report, nil
}

// recordReport publishes the audit outcome on the global meter provider.
func recordReport(ctx context.Context, report *dex.AuditReport) {
	meter := otelapi.Meter("earthexchange/cmd/dex-audit")
	violations, err := meter.Int64Gauge("dex.audit.violations", metric.WithDescription("Ledger invariant violations found by the last audit."))
	if err == nil {
		violations.Record(ctx, int64(len(report.Violations)))
	}
	pools, err := meter.Int64Gauge("dex.audit.pools", metric.WithDescription("Pools covered by the last audit."))
	if err == nil {
		pools.Record(ctx, int64(len(report.Pools)))
	}
}

// auditOutput is the printed report: the ledger audit plus recent journal
// activity when a journal is configured.
type auditOutput struct {
	dex.AuditReport `yaml:",inline"`

	Journal []journal.EventCount `json:"journal,omitempty" yaml:"journal,omitempty"`
}

func journalCounts(ctx context.Context, cfg *config.Config, since time.Time) ([]journal.EventCount, error) {
	db, err := journal.Open(cfg.Journal.Driver, cfg.Journal.DSN)
	if err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	return journal.New(db).Counts(ctx, since)
}

func encoder(format string) (func(*auditOutput) ([]byte, error), error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		return func(r *auditOutput) ([]byte, error) {
			out, err := json.MarshalIndent(r, "", "  ")
			return append(out, '\n'), err
		}, nil
	case "yaml", "yml":
		return func(r *auditOutput) ([]byte, error) { return yaml.Marshal(r) }, nil
	default:
		return nil, fmt.Errorf("unknown format %q: want json or yaml", format)
	}
}
