package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"payadvice/internal"
	"payadvice/internal/blobstore"
	"payadvice/internal/blobstore/drive"
	"payadvice/internal/blobstore/gcs"
	"payadvice/internal/config"
	"payadvice/internal/connectors"
	gmailconnector "payadvice/internal/connectors/gmail"
	imapconnector "payadvice/internal/connectors/imap"
	"payadvice/internal/extraction"
	"payadvice/internal/extraction/gemini"
	"payadvice/internal/extraction/llama"
	"payadvice/internal/googleauth"
	"payadvice/internal/logger"
	"payadvice/internal/pipeline"
	"payadvice/internal/sheets"
	sheetsgoogle "payadvice/internal/sheets/google"
	"payadvice/internal/sheets/xlsx"
	"payadvice/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "payadvice",
		Short:         "Mail to Drive harvesting and payment advice extraction",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var (
		days        int
		maxItems    int
		all         bool
		runLimit    int
		attachLimit int
	)

	harvestCmd := &cobra.Command{
		Use:   "mail:harvest",
		Short: "Copy PDF attachments of matching messages into the attachment folder",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(cfg *config.Config) {
				if days > 0 {
					cfg.Mail.DaysBack = days
				}
				if maxItems > 0 {
					cfg.Mail.MaxResults = maxItems
				}
			}, func(ctx context.Context, a *app) error {
				stats, result, err := a.orch.Harvest(ctx)
				printStats(stats)
				for _, rec := range result.Attachments {
					state := "uploaded"
					if rec.AlreadyStored {
						state = "exists"
					}
					fmt.Printf("  %-8s %s\n", state, rec.StorageFilename)
				}
				return err
			})
		},
	}
	harvestCmd.Flags().IntVar(&days, "days", 0, "look-back window in days (default MAIL_DAYS_BACK)")
	harvestCmd.Flags().IntVar(&maxItems, "max", 0, "max messages (default MAIL_MAX_RESULTS)")

	processCmd := &cobra.Command{
		Use:   "advice:process",
		Short: "Extract new payment advice PDFs into the advice table",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(cfg *config.Config) {
				if days > 0 {
					cfg.Advice.DaysBack = days
				}
				if maxItems > 0 {
					cfg.Advice.MaxFiles = maxItems
				}
				if all {
					cfg.Advice.SkipExisting = false
				}
			}, func(ctx context.Context, a *app) error {
				stats, err := a.orch.Process(ctx)
				printStats(stats)
				return err
			})
		},
	}
	processCmd.Flags().IntVar(&days, "days", 0, "look-back window in days (default ADVICE_DAYS_BACK)")
	processCmd.Flags().IntVar(&maxItems, "max", 0, "max files per run (default ADVICE_MAX_FILES)")
	processCmd.Flags().BoolVar(&all, "all", false, "reprocess files already present in the table")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Harvest then process",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), nil, func(ctx context.Context, a *app) error {
				mail, advice, err := a.orch.RunAll(ctx)
				printStats(mail)
				printStats(advice)
				return err
			})
		},
	}

	runsCmd := &cobra.Command{
		Use:   "runs:list",
		Short: "Show recent runs recorded locally",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := storage.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()
			runs, err := db.ListRuns(runLimit)
			if err != nil {
				return err
			}
			for _, r := range runs {
				printStats(r)
			}
			return nil
		},
	}
	runsCmd.Flags().IntVar(&runLimit, "limit", 20, "number of runs")

	attachmentsCmd := &cobra.Command{
		Use:   "attachments:list",
		Short: "Show attachments stored by previous harvests",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := storage.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()
			recs, err := db.ListAttachments(attachLimit)
			if err != nil {
				return err
			}
			for _, r := range recs {
				fmt.Printf("%s  %s  %s\n", r.MessageID, r.StorageFilename, r.BlobID)
			}
			return nil
		},
	}
	attachmentsCmd.Flags().IntVar(&attachLimit, "limit", 50, "number of attachments")

	rootCmd.AddCommand(harvestCmd, processCmd, runCmd, runsCmd, attachmentsCmd)
	return rootCmd
}

type app struct {
	orch    *pipeline.Orchestrator
	closers []func() error
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

func withApp(ctx context.Context, override func(*config.Config), fn func(context.Context, *app) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if override != nil {
		override(&cfg)
	}
	ctx = logger.WithContext(ctx, logger.New())

	a, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}

// build wires the configured backends. Backends that cannot be constructed
// are left nil; the orchestrator reports them as configuration errors at
// the start of the run that needs them.
func build(ctx context.Context, cfg config.Config) (*app, error) {
	log := logger.FromContext(ctx)
	a := &app{}

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, db.Close)

	deps := pipeline.Deps{Ledger: db, Console: logger.Console(os.Stdout)}

	source, err := makeSource(ctx, cfg)
	if err != nil {
		log.Warn().Err(err).Str("provider", cfg.MailProvider).Msg("mail source unavailable")
	} else {
		deps.Source = source
		if c, ok := source.(interface{ Close() error }); ok {
			a.closers = append(a.closers, c.Close)
		}
	}

	blobs, err := makeBlobStore(ctx, cfg)
	if err != nil {
		log.Warn().Err(err).Str("backend", cfg.BlobBackend).Msg("blob store unavailable")
	} else {
		deps.Blobs = blobs
		if c, ok := blobs.(interface{ Close() error }); ok {
			a.closers = append(a.closers, c.Close)
		}
	}

	tables, err := makeTableStore(ctx, cfg)
	if err != nil {
		log.Warn().Err(err).Str("backend", cfg.TableBackend).Msg("table store unavailable")
	} else {
		deps.Tables = tables
	}

	extractor, err := makeExtractor(ctx, cfg)
	if err != nil {
		log.Warn().Err(err).Str("extractor", cfg.Extractor).Msg("extractor unavailable")
	} else {
		deps.Extractor = extractor
	}

	a.orch = pipeline.New(pipeline.SettingsFromConfig(cfg), deps)
	a.orch.OnProgress(func(p internal.Progress) {
		log.Debug().Str("stage", p.Stage).Int("percent", p.Percent()).Msg(p.Message)
	})
	return a, nil
}

func makeSource(ctx context.Context, cfg config.Config) (connectors.MessageSource, error) {
	switch cfg.MailProvider {
	case "gmail":
		opt, err := googleauth.ClientOption(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return gmailconnector.NewConnector(ctx, opt)
	case "imap":
		return imapconnector.NewConnector(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.MailProvider)
	}
}

func makeBlobStore(ctx context.Context, cfg config.Config) (blobstore.Store, error) {
	switch cfg.BlobBackend {
	case "drive":
		opt, err := googleauth.ClientOption(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return drive.NewStore(ctx, opt)
	case "gcs":
		if err := cfg.Require("GCS_BUCKET", cfg.GCSBucket); err != nil {
			return nil, err
		}
		return gcs.NewStore(ctx, cfg.GCSBucket)
	default:
		return nil, fmt.Errorf("unsupported blob backend: %s", cfg.BlobBackend)
	}
}

func makeTableStore(ctx context.Context, cfg config.Config) (sheets.TableStore, error) {
	switch cfg.TableBackend {
	case "sheets":
		opt, err := googleauth.ClientOption(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return sheetsgoogle.NewStore(ctx, opt)
	case "xlsx":
		return xlsx.NewStore(cfg.XLSXPath), nil
	default:
		return nil, fmt.Errorf("unsupported table backend: %s", cfg.TableBackend)
	}
}

func makeExtractor(ctx context.Context, cfg config.Config) (extraction.Extractor, error) {
	switch cfg.Extractor {
	case "llama":
		return llama.NewClient(cfg)
	case "gemini":
		return gemini.NewExtractor(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported extractor: %s", cfg.Extractor)
	}
}

func printStats(s internal.RunStats) {
	fmt.Printf("%s [%s] %s found=%d processed=%d skipped=%d failed=%d rows=%d duration=%s\n",
		s.StartedAt.Format("2006-01-02 15:04:05"), s.Status, s.Workflow,
		s.Found, s.Processed, s.Skipped, s.Failed, s.RowsWritten, sheets.FormatDuration(s.Elapsed()))
	if s.Err != "" {
		fmt.Printf("  error: %s\n", s.Err)
	}
}
