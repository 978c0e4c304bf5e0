package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"payadvice/internal"
	"payadvice/internal/blobstore"
	"payadvice/internal/config"
	"payadvice/internal/connectors"
	"payadvice/internal/extraction"
	"payadvice/internal/harvest"
	"payadvice/internal/logger"
	"payadvice/internal/retry"
	"payadvice/internal/sheets"
)

var ErrConfig = errors.New("configuration error")

const (
	WorkflowMail   = "Mail to Drive"
	WorkflowAdvice = "Payment Advice Processing"

	BusinessKeyColumn = "source_file_name"
)

// AdviceColumns is the default header of the payment advice table.
var AdviceColumns = []string{
	"document_date", "clearing_document_number", "utr_number",
	"bill_reference_number", "accounting_document_number", "bill_document_date",
	"bill_amount", "deduction_tds", "net_amount", "bill_sequence", "total_bills",
	"total_payment_amount", "total_bill_amount", "total_net_amount", "total_tds_amount",
	"payment_count", "source_file_name", "processed_date", "drive_file_id",
}

var adviceHeader = sheets.HeaderSpec{
	Required:   AdviceColumns,
	KeyColumn:  BusinessKeyColumn,
	Deprecated: map[string]string{"source_file": BusinessKeyColumn},
}

type Stage int

const (
	StageIdle Stage = iota
	StageSearching
	StageFiltering
	StageExtracting
	StageWriting
	StageDone
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageSearching:
		return "searching"
	case StageFiltering:
		return "filtering"
	case StageExtracting:
		return "extracting"
	case StageWriting:
		return "writing"
	case StageDone:
		return "done"
	case StageFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Settings is the immutable run configuration of an Orchestrator.
type Settings struct {
	Criteria       internal.SearchCriteria
	BaseFolderID   string
	AdviceFolderID string
	AdviceTable    internal.TableRef
	AuditTable     internal.TableRef
	DaysBack       int
	MaxFiles       int
	SkipExisting   bool
	// RequireTableID is false for stores addressed by range only.
	RequireTableID bool
	ExtractRetry   retry.Policy
	AppendRetry    retry.Policy
	LogCapacity    int
}

func SettingsFromConfig(cfg config.Config) Settings {
	return Settings{
		Criteria:       cfg.Mail.Criteria(),
		BaseFolderID:   cfg.Mail.BaseFolderID,
		AdviceFolderID: cfg.Advice.DriveFolderID,
		AdviceTable:    cfg.Advice.Table(),
		AuditTable:     cfg.Audit.Table(),
		DaysBack:       cfg.Advice.DaysBack,
		MaxFiles:       cfg.Advice.MaxFiles,
		SkipExisting:   cfg.Advice.SkipExisting,
		RequireTableID: cfg.TableBackend != "xlsx",
		ExtractRetry:   retry.Fixed(cfg.ExtractRetries, cfg.ExtractRetryDelay),
		AppendRetry:    retry.Fixed(cfg.AppendRetries, cfg.AppendRetryDelay),
		LogCapacity:    cfg.LogCapacity,
	}
}

// Ledger is the local record of uploads and runs.
type Ledger interface {
	harvest.Ledger
	InsertRun(stats internal.RunStats) error
	SetMetadata(key, value string) error
}

type Deps struct {
	Source    connectors.MessageSource
	Blobs     blobstore.Store
	Tables    sheets.TableStore
	Extractor extraction.Extractor
	Ledger    Ledger

	Console   io.Writer
	Now       func() time.Time
	Preflight func(data []byte) (int, error)
	TempDir   string
}

type Orchestrator struct {
	settings  Settings
	deps      Deps
	extractor extraction.Extractor
	ring      *logger.Ring
	progress  internal.ProgressFunc
	stage     Stage
}

func New(settings Settings, deps Deps) *Orchestrator {
	if deps.Console == nil {
		deps.Console = logger.Console(os.Stdout)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Preflight == nil {
		deps.Preflight = extraction.Preflight
	}
	o := &Orchestrator{
		settings: settings,
		deps:     deps,
		ring:     logger.NewRing(settings.LogCapacity),
	}
	if deps.Extractor != nil {
		o.extractor = extraction.WithRetry(deps.Extractor, settings.ExtractRetry)
	}
	return o
}

// OnProgress registers a callback invoked synchronously after each message
// or document. It must not block.
func (o *Orchestrator) OnProgress(fn internal.ProgressFunc) {
	o.progress = fn
}

// Logs returns a copy of the current run's log entries, oldest first.
func (o *Orchestrator) Logs() []logger.Entry {
	return o.ring.Entries()
}

func (o *Orchestrator) Stage() Stage {
	return o.stage
}

func (o *Orchestrator) report(stage string, current, total int, msg string) {
	if o.progress != nil {
		o.progress(internal.Progress{Stage: stage, Current: current, Total: total, Message: msg})
	}
}

func (o *Orchestrator) begin(ctx context.Context, workflow string) (context.Context, internal.RunStats) {
	stats := internal.RunStats{
		Label:     uuid.NewString(),
		Workflow:  workflow,
		StartedAt: o.deps.Now(),
	}
	log := logger.NewRunLogger(o.deps.Console, o.ring).With().
		Str("run", stats.Label).
		Str("workflow", workflow).
		Logger()
	o.stage = StageSearching
	return logger.WithContext(ctx, log), stats
}

// finish moves the run to its terminal stage, derives the status and
// writes the audit row and the local run record. Audit problems are logged
// only.
func (o *Orchestrator) finish(ctx context.Context, stats *internal.RunStats, runErr error) {
	log := logger.FromContext(ctx)
	stats.EndedAt = o.deps.Now()

	if runErr != nil {
		o.stage = StageFailed
		stats.Status = internal.RunFailed
		stats.Err = runErr.Error()
		log.Error().Err(runErr).Msg("run failed")
	} else {
		o.stage = StageDone
		stats.Status = statusOf(*stats)
	}

	log.Info().
		Int("found", stats.Found).
		Int("processed", stats.Processed).
		Int("skipped", stats.Skipped).
		Int("failed", stats.Failed).
		Int("rows", stats.RowsWritten).
		Str("status", string(stats.Status)).
		Str("duration", sheets.FormatDuration(stats.Elapsed())).
		Msg("run finished")

	if o.settings.AuditTable.Range != "" && o.deps.Tables != nil {
		audit := sheets.NewAuditLog(sheets.NewSink(o.deps.Tables, o.settings.AuditTable, o.settings.AppendRetry))
		if err := audit.Record(ctx, *stats); err != nil {
			log.Error().Err(err).Msg("failed to write audit row")
		}
	}
	if o.deps.Ledger != nil {
		if err := o.deps.Ledger.InsertRun(*stats); err != nil {
			log.Warn().Err(err).Msg("failed to record run locally")
		}
		if err := o.deps.Ledger.SetMetadata("last_run:"+stats.Workflow, stats.Label); err != nil {
			log.Warn().Err(err).Msg("failed to record last run")
		}
	}
}

func statusOf(s internal.RunStats) internal.RunStatus {
	switch {
	case s.Failed > 0 && s.Processed == 0:
		return internal.RunFailed
	case s.Failed > 0:
		return internal.RunPartial
	default:
		return internal.RunSuccess
	}
}

func configError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

// Harvest copies new PDF attachments from the mailbox into the blob store.
func (o *Orchestrator) Harvest(ctx context.Context) (internal.RunStats, internal.HarvestResult, error) {
	o.ring.Reset()
	return o.harvest(ctx)
}

func (o *Orchestrator) harvest(ctx context.Context) (internal.RunStats, internal.HarvestResult, error) {
	ctx, stats := o.begin(ctx, WorkflowMail)
	result, err := o.runHarvest(ctx)

	stats.Found = result.TotalEmails
	stats.Processed = result.ProcessedEmails
	stats.Skipped = result.TotalAttachments
	stats.Failed = result.Failed
	stats.RowsWritten = len(result.Attachments)
	o.finish(ctx, &stats, err)
	return stats, result, err
}

func (o *Orchestrator) runHarvest(ctx context.Context) (internal.HarvestResult, error) {
	if o.settings.BaseFolderID == "" {
		return internal.HarvestResult{}, configError("missing destination folder id (MAIL_BASE_FOLDER_ID)")
	}
	if o.deps.Source == nil || o.deps.Blobs == nil {
		return internal.HarvestResult{}, configError("mail source and blob store are required")
	}

	opts := []harvest.Option{
		harvest.WithClock(o.deps.Now),
		harvest.WithProgress(o.progress),
	}
	if o.deps.Ledger != nil {
		opts = append(opts, harvest.WithLedger(o.deps.Ledger))
	}
	return harvest.New(o.deps.Source, o.deps.Blobs, opts...).Harvest(ctx, o.settings.Criteria, o.settings.BaseFolderID)
}

// Process extracts every new PDF in the attachment folder and appends the
// normalized rows to the advice table.
func (o *Orchestrator) Process(ctx context.Context) (internal.RunStats, error) {
	o.ring.Reset()
	return o.process(ctx)
}

func (o *Orchestrator) process(ctx context.Context) (internal.RunStats, error) {
	ctx, stats := o.begin(ctx, WorkflowAdvice)
	err := o.runProcess(ctx, &stats)
	o.finish(ctx, &stats, err)
	return stats, err
}

func (o *Orchestrator) validateProcess() error {
	switch {
	case o.settings.AdviceFolderID == "":
		return configError("missing destination folder id (ADVICE_FOLDER_ID)")
	case o.settings.RequireTableID && o.settings.AdviceTable.SpreadsheetID == "":
		return configError("missing table id (ADVICE_SPREADSHEET_ID)")
	case o.settings.AdviceTable.Range == "":
		return configError("missing table range (ADVICE_SHEET_RANGE)")
	case o.deps.Blobs == nil || o.deps.Tables == nil || o.extractor == nil:
		return configError("blob store, table store and extractor are required")
	}
	return nil
}

func (o *Orchestrator) runProcess(ctx context.Context, stats *internal.RunStats) error {
	log := logger.FromContext(ctx)
	if err := o.validateProcess(); err != nil {
		return err
	}

	if err := extraction.Prepare(ctx, o.extractor); err != nil {
		if retry.IsPermanent(err) {
			return fmt.Errorf("%w: %v", ErrConfig, err)
		}
		return fmt.Errorf("prepare extractor: %w", err)
	}
	o.report("extract", 0, 0, "Extraction service ready")

	folderID, err := harvest.TargetFolder(ctx, o.deps.Blobs, o.settings.AdviceFolderID)
	if err != nil {
		return fmt.Errorf("resolve attachment folder: %w", err)
	}

	since := blobstore.StartOfWindow(o.deps.Now(), o.settings.DaysBack)
	files, err := o.deps.Blobs.List(ctx, folderID, since, blobstore.PDFFilter)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}
	stats.Found = len(files)
	log.Info().Int("found", len(files)).Time("since", since).Msg("documents listed")

	o.stage = StageFiltering
	sink := sheets.NewSink(o.deps.Tables, o.settings.AdviceTable, o.settings.AppendRetry)
	existing := map[string]struct{}{}
	if o.settings.SkipExisting {
		existing, err = sink.ExistingKeys(ctx, BusinessKeyColumn)
		if err != nil {
			return fmt.Errorf("read existing documents: %w", err)
		}
		log.Info().Int("existing", len(existing)).Msg("already processed documents")
	}

	todo := make([]internal.BlobFile, 0, len(files))
	for _, f := range files {
		if _, ok := existing[f.Name]; ok {
			continue
		}
		todo = append(todo, f)
	}
	stats.Skipped = len(files) - len(todo)
	if o.settings.MaxFiles > 0 && len(todo) > o.settings.MaxFiles {
		todo = todo[:o.settings.MaxFiles]
		log.Info().Int("limit", o.settings.MaxFiles).Msg("limited by max files per run")
	}
	log.Info().Int("todo", len(todo)).Int("skipped", stats.Skipped).Msg("after filtering")
	if len(todo) == 0 {
		return nil
	}

	header, err := sink.ReconcileHeader(ctx, adviceHeader)
	if err != nil {
		return fmt.Errorf("reconcile header: %w", err)
	}

	seen := map[string]struct{}{}
	for i, file := range todo {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, dup := seen[file.Name]; dup {
			stats.Skipped++
			continue
		}
		seen[file.Name] = struct{}{}

		rows, items, err := o.processFile(ctx, sink, header, file)
		if err != nil {
			stats.Failed++
			log.Error().Err(err).Str("file", file.Name).Msg("document failed")
		} else {
			stats.Processed++
			stats.RowsWritten += rows
			stats.LineItems += items
			log.Info().Str("file", file.Name).Int("rows", rows).Int("bills", items).Msg("document processed")
		}
		o.report("extract", i+1, len(todo), fmt.Sprintf("Processing PDF %d/%d: %s", i+1, len(todo), file.Name))
	}
	return nil
}

// processFile runs one document through download, preflight, extraction,
// normalization and append.
func (o *Orchestrator) processFile(ctx context.Context, sink *sheets.Sink, header []string, file internal.BlobFile) (int, int, error) {
	o.stage = StageExtracting
	data, err := o.deps.Blobs.Download(ctx, file.ID)
	if err != nil {
		return 0, 0, fmt.Errorf("download: %w", err)
	}
	if len(data) == 0 {
		return 0, 0, errors.New("download: empty file")
	}
	if _, err := o.deps.Preflight(data); err != nil {
		return 0, 0, err
	}

	tmp, err := os.CreateTemp(o.deps.TempDir, "advice-*.pdf")
	if err != nil {
		return 0, 0, err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return 0, 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, 0, err
	}

	raw, err := o.extractor.Extract(ctx, tmp.Name())
	if err != nil {
		return 0, 0, fmt.Errorf("extract: %w", err)
	}
	normalized, err := Normalize(raw, internal.SourceIdentity{StorageFilename: file.Name, StorageID: file.ID}, o.deps.Now())
	if err != nil {
		return 0, 0, err
	}

	o.stage = StageWriting
	n, err := sink.Append(ctx, header, normalized.Records())
	if err != nil {
		return 0, 0, fmt.Errorf("append: %w", err)
	}
	return n, len(normalized.Items), nil
}

// RunAll harvests then processes, sharing one log buffer.
func (o *Orchestrator) RunAll(ctx context.Context) (mail internal.RunStats, advice internal.RunStats, err error) {
	o.ring.Reset()
	mail, _, mailErr := o.harvest(ctx)
	advice, adviceErr := o.process(ctx)
	return mail, advice, errors.Join(mailErr, adviceErr)
}
