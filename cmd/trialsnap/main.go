package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"

	"trialsnap/internal/config"
	"trialsnap/internal/connectors"
	gmailconnector "trialsnap/internal/connectors/gmail"
	imapconnector "trialsnap/internal/connectors/imap"
	"trialsnap/internal/logging"
	"trialsnap/internal/metrics"
	"trialsnap/internal/pipeline"
	"trialsnap/internal/schema"
	"trialsnap/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	must(err)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	reg := prometheus.NewRegistry()
	deps := pipeline.Deps{DB: db, Logger: logger, Metrics: metrics.New(reg)}

	cmd := os.Args[1]
	switch cmd {
	case "run":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		schedule := fs.String("schedule", "", "assessment schedule export")
		assets := fs.String("assets", "", "asset upload export")
		forms := fs.String("forms", "", "form submission export")
		eml := fs.String("eml", "", "raw .eml carrying all three exports")
		output := fs.String("output", "", "output xlsx path")
		arrowOut := fs.String("arrow", "", "output arrow ipc path")
		metricsFile := fs.String("metrics-file", "", "write prometheus metrics to this file")
		lateDays := fs.Int("late-days", 0, "uniform late threshold in days (overrides LATE_*_DAYS)")
		windows := fs.String("windows", "", "visit window yaml (overrides VISIT_WINDOWS_FILE)")
		_ = fs.Parse(os.Args[2:])

		if *lateDays > 0 {
			cfg.LateDays = *lateDays
		}
		if *windows != "" {
			cfg.VisitWindowsFile = *windows
		}
		kpiCfg, err := cfg.KPI()
		must(err)

		var in pipeline.Inputs
		switch {
		case *eml != "":
			raw, err := os.ReadFile(*eml)
			must(err)
			in, err = pipeline.InputsFromEmail(raw, cfg.LoaderOptions())
			must(err)
			in.Origin = "eml:" + filepath.Base(*eml)
		case *schedule != "" && *assets != "" && *forms != "":
			in, err = pipeline.InputsFromFiles(*schedule, *assets, *forms)
			must(err)
		default:
			must(fmt.Errorf("--schedule --assets --forms or --eml are required"))
		}

		svc := pipeline.NewService(cfg, deps)
		result, err := svc.Run(ctx, in, kpiCfg)
		writeMetrics(*metricsFile, reg)
		var schemaErr *schema.SchemaError
		if errors.As(err, &schemaErr) {
			printSchemaError(schemaErr)
			os.Exit(1)
		}
		must(err)

		printReport(result)
		if *output != "" {
			must(pipeline.ExportXLSX(result, *output))
			fmt.Printf("exported xlsx to %s\n", *output)
		}
		if *arrowOut != "" {
			must(pipeline.ExportArrow(result.Snapshot.Records, *arrowOut))
			fmt.Printf("exported arrow to %s\n", *arrowOut)
		}
	case "mail:fetch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", "gmail", "gmail|imap")
		label := fs.String("label", cfg.MailLabel, "mailbox/label")
		max := fs.Int("max", cfg.MailFetchMax, "max messages")
		_ = fs.Parse(os.Args[2:])
		conn, err := makeConnector(ctx, cfg, *provider)
		must(err)
		fetch := connectors.NewFetchService(db, cfg.RawMailDir, conn, logger)
		result, err := fetch.FetchAndStore(ctx, *provider, *label, *max)
		must(err)
		fmt.Printf("mail fetch done provider=%s fetched=%d stored=%d ignored=%d\n", *provider, result.Fetched, result.Stored, result.Ignored)
	case "mail:process":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", "", "gmail|imap (empty for all)")
		messageID := fs.String("messageId", "", "specific message-id")
		batch := fs.Int("batch", 20, "batch size")
		metricsFile := fs.String("metrics-file", "", "write prometheus metrics to this file")
		_ = fs.Parse(os.Args[2:])
		processor := pipeline.NewProcessingService(db, cfg, pipeline.NewService(cfg, deps), logger)
		defer writeMetrics(*metricsFile, reg)
		if strings.TrimSpace(*messageID) != "" {
			if *provider == "" {
				must(fmt.Errorf("--provider is required with --messageId"))
			}
			res, err := processor.ProcessByProviderMessageID(ctx, *provider, *messageID)
			must(err)
			printProcessResult(res)
			return
		}
		results, err := processor.ProcessPending(ctx, *batch, *provider)
		must(err)
		for _, res := range results {
			printProcessResult(res)
		}
		fmt.Printf("processed pending emails=%d\n", len(results))
	case "runs:list":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		limit := fs.Int("limit", 20, "number of runs")
		_ = fs.Parse(os.Args[2:])
		runs, err := db.ListRuns(*limit)
		must(err)
		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"created", "run", "status", "cache", "source", "identity", "rows"})
		for _, r := range runs {
			table.Append([]string{
				r.CreatedAt, r.ID, string(r.Status), strconv.FormatBool(r.CacheHit), r.Source, r.Identity,
				strconv.Itoa(r.Counts["reconciled"]),
			})
		}
		table.Render()
	default:
		usage()
		os.Exit(1)
	}
}

func makeConnector(ctx context.Context, cfg config.Config, provider string) (connectors.MailConnector, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "gmail":
		return gmailconnector.NewConnector(ctx, cfg)
	case "imap":
		return imapconnector.NewConnector(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

func printReport(result *pipeline.Result) {
	fmt.Printf("run=%s identity=%s cache_hit=%t records=%d\n",
		result.RunID, result.Identity, result.CacheHit, len(result.Snapshot.Records))

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"site", "rows", "late assets", "late tasks", "late forms", "open actions", "out of window", "risk", "dqi"})
	for _, m := range result.Report.Sites {
		table.Append([]string{
			m.Site,
			strconv.Itoa(m.Rows),
			strconv.Itoa(m.LateAssets),
			strconv.Itoa(m.LateTasks),
			strconv.Itoa(m.LateForms),
			strconv.Itoa(m.OpenActions),
			strconv.Itoa(m.OutOfWindow),
			formatScore(m.RiskScore),
			formatScore(m.DataQualityIndex),
		})
	}
	table.Render()

	s := result.Report.Summary
	fmt.Printf("assessments=%d completed=%s on_time_uploads=%s forms_submitted=%d missing_forms=%d open_actions=%d\n",
		s.TotalAssessments, formatCount(s.CompletedAssessments), formatScore(s.OnTimeUploadRate),
		s.FormsSubmitted, s.MissingForms, s.OpenActions)
}

func printSchemaError(err *schema.SchemaError) {
	fmt.Fprintln(os.Stderr, "error: required columns could not be resolved; nothing was exported")
	data, _ := json.MarshalIndent(err, "", "  ")
	fmt.Fprintln(os.Stderr, string(data))
}

func printProcessResult(res pipeline.ProcessResult) {
	if res.Err != nil {
		fmt.Printf("email id=%d status=%s error=%v\n", res.EmailID, res.Status, res.Err)
		return
	}
	fmt.Printf("email id=%d status=%s run=%s output=%s\n", res.EmailID, res.Status, res.RunID, res.Output)
}

func writeMetrics(path string, reg *prometheus.Registry) {
	if path == "" {
		return
	}
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		fmt.Fprintf(os.Stderr, "warning: write metrics: %v\n", err)
	}
}

func formatScore(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return strconv.FormatFloat(*v, 'f', 1, 64)
}

func formatCount(v *int) string {
	if v == nil {
		return "n/a"
	}
	return strconv.Itoa(*v)
}

func usage() {
	fmt.Println("usage: trialsnap <command>")
	fmt.Println("commands:")
	fmt.Println("  run --schedule=... --assets=... --forms=... | --eml=...  [--output=x.xlsx] [--arrow=x.arrow]")
	fmt.Println("      [--late-days=5] [--windows=visits.yaml] [--metrics-file=trialsnap.prom]")
	fmt.Println("  mail:fetch --provider=gmail|imap --label=INBOX --max=20")
	fmt.Println("  mail:process [--provider=gmail|imap] [--messageId=...] [--batch=20] [--metrics-file=...]")
	fmt.Println("  runs:list [--limit=20]")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
