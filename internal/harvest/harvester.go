package harvest

import (
	"context"
	"fmt"
	"time"

	"payadvice/internal"
	"payadvice/internal/blobstore"
	"payadvice/internal/connectors"
	"payadvice/internal/logger"
	"payadvice/internal/util"
)

const (
	AttachmentsFolder = "Gmail_Attachments"
	PDFFolder         = "PDFs"
	pdfExtension      = ".pdf"
)

// Ledger receives every attachment that ends up in the blob store.
type Ledger interface {
	RecordAttachment(rec internal.AttachmentRecord) error
}

type Harvester struct {
	source   connectors.MessageSource
	store    blobstore.Store
	ledger   Ledger
	now      func() time.Time
	progress internal.ProgressFunc
}

type Option func(*Harvester)

func WithLedger(l Ledger) Option {
	return func(h *Harvester) { h.ledger = l }
}

func WithClock(now func() time.Time) Option {
	return func(h *Harvester) { h.now = now }
}

func WithProgress(fn internal.ProgressFunc) Option {
	return func(h *Harvester) { h.progress = fn }
}

func New(source connectors.MessageSource, store blobstore.Store, opts ...Option) *Harvester {
	h := &Harvester{source: source, store: store, now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// TargetFolder resolves <base>/Gmail_Attachments/PDFs.
func TargetFolder(ctx context.Context, store blobstore.Store, baseFolderID string) (string, error) {
	return blobstore.EnsurePath(ctx, store, baseFolderID, AttachmentsFolder, PDFFolder)
}

// Harvest copies every PDF attachment of the matching messages into the
// blob store. Only folder resolution errors are returned; per-message
// problems are counted in the result.
func (h *Harvester) Harvest(ctx context.Context, criteria internal.SearchCriteria, baseFolderID string) (internal.HarvestResult, error) {
	log := logger.FromContext(ctx)
	var result internal.HarvestResult

	folderID, err := TargetFolder(ctx, h.store, baseFolderID)
	if err != nil {
		return result, fmt.Errorf("resolve attachment folder: %w", err)
	}

	query := connectors.BuildQuery(criteria, h.now())
	ids, err := h.source.Search(ctx, query, criteria.MaxResults)
	if err != nil {
		log.Error().Err(err).Str("query", query.Gmail()).Msg("message search failed")
		return result, nil
	}
	result.TotalEmails = len(ids)
	log.Info().Str("query", query.Gmail()).Int("found", len(ids)).Msg("messages matched")

	for i, id := range ids {
		if ctx.Err() != nil {
			break
		}
		records, failed := h.harvestMessage(ctx, id, folderID)
		if failed {
			result.Failed++
		}
		if len(records) > 0 {
			result.ProcessedEmails++
			result.TotalAttachments += len(records)
			result.Attachments = append(result.Attachments, records...)
		}
		h.report(internal.Progress{
			Stage:   "harvest",
			Current: i + 1,
			Total:   len(ids),
			Message: fmt.Sprintf("Processing email %d/%d", i+1, len(ids)),
		})
	}

	log.Info().
		Int("emails", result.TotalEmails).
		Int("processed", result.ProcessedEmails).
		Int("attachments", result.TotalAttachments).
		Int("failed", result.Failed).
		Msg("harvest complete")
	return result, nil
}

// harvestMessage uploads the qualifying attachments of one message. failed
// is set when anything about the message went wrong; stored attachments are
// still returned.
func (h *Harvester) harvestMessage(ctx context.Context, messageID, folderID string) ([]internal.AttachmentRecord, bool) {
	log := logger.FromContext(ctx).With().Str("message", messageID).Logger()

	meta, err := h.source.Metadata(ctx, messageID)
	if err != nil {
		log.Warn().Err(err).Msg("failed to read message metadata")
		meta = internal.MessageMeta{ID: messageID}
	}

	root, err := h.source.Full(ctx, messageID)
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch message")
		return nil, true
	}

	parts := QualifyingParts(root, pdfExtension)
	if len(parts) == 0 {
		log.Info().Str("subject", util.Truncate(meta.Subject, 50)).Msg("no PDF attachments in message")
		return nil, false
	}

	failed := false
	records := make([]internal.AttachmentRecord, 0, len(parts))
	for _, part := range parts {
		rec, err := h.storeAttachment(ctx, messageID, folderID, part)
		if err != nil {
			log.Error().Err(err).Str("file", part.Filename).Msg("failed to process attachment")
			failed = true
			continue
		}
		records = append(records, rec)
	}
	if len(records) > 0 {
		log.Info().
			Int("attachments", len(records)).
			Str("subject", util.Truncate(meta.Subject, 50)).
			Str("sender", meta.Sender).
			Msg("message processed")
	}
	return records, failed
}

func (h *Harvester) storeAttachment(ctx context.Context, messageID, folderID string, part internal.Part) (internal.AttachmentRecord, error) {
	data, err := h.source.AttachmentBytes(ctx, messageID, part.AttachmentID)
	if err != nil {
		return internal.AttachmentRecord{}, fmt.Errorf("fetch attachment: %w", err)
	}

	sanitized := util.SanitizeFilename(part.Filename)
	rec := internal.AttachmentRecord{
		MessageID:         messageID,
		OriginalFilename:  part.Filename,
		SanitizedFilename: sanitized,
		StorageFilename:   util.StorageFilename(messageID, sanitized),
		FolderID:          folderID,
	}

	id, existed, err := blobstore.UploadOnce(ctx, h.store, data, rec.StorageFilename, folderID)
	if err != nil {
		return internal.AttachmentRecord{}, err
	}
	rec.BlobID = id
	rec.AlreadyStored = existed

	if h.ledger != nil {
		if err := h.ledger.RecordAttachment(rec); err != nil {
			log := logger.FromContext(ctx)
			log.Warn().Err(err).Str("file", rec.StorageFilename).Msg("failed to record attachment locally")
		}
	}
	return rec, nil
}

func (h *Harvester) report(p internal.Progress) {
	if h.progress != nil {
		h.progress(p)
	}
}

// QualifyingParts walks the part tree depth-first and returns the leaves
// whose filename ends in ext and that carry an attachment id.
func QualifyingParts(root internal.Part, ext string) []internal.Part {
	var out []internal.Part
	var walk func(p internal.Part)
	walk = func(p internal.Part) {
		if len(p.Parts) > 0 {
			for _, child := range p.Parts {
				walk(child)
			}
			return
		}
		if p.Filename == "" || p.AttachmentID == "" {
			return
		}
		if util.HasExtension(p.Filename, ext) {
			out = append(out, p)
		}
	}
	walk(root)
	return out
}
