package sheets

import (
	"context"
	"fmt"
	"time"

	"payadvice/internal"
)

var AuditHeader = []string{
	"Start Time", "End Time", "Duration", "Workflow",
	"Total Items Found", "Items Processed", "Items Skipped/Uploaded",
	"Failed Items", "Rows Added/Attachments", "Status",
}

const auditTimeLayout = "2006-01-02 15:04:05"

type auditRecord internal.RunStats

func (r auditRecord) Values() map[string]any {
	return map[string]any{
		"Start Time":             r.StartedAt.Format(auditTimeLayout),
		"End Time":               r.EndedAt.Format(auditTimeLayout),
		"Duration":               FormatDuration(internal.RunStats(r).Elapsed()),
		"Workflow":               r.Workflow,
		"Total Items Found":      r.Found,
		"Items Processed":        r.Processed,
		"Items Skipped/Uploaded": r.Skipped,
		"Failed Items":           r.Failed,
		"Rows Added/Attachments": r.RowsWritten,
		"Status":                 string(r.Status),
	}
}

// AuditLog appends one row per finished run to the workflow log table.
type AuditLog struct {
	sink *Sink
}

func NewAuditLog(sink *Sink) *AuditLog {
	return &AuditLog{sink: sink}
}

func (a *AuditLog) Record(ctx context.Context, stats internal.RunStats) error {
	header, err := a.sink.ReconcileHeader(ctx, HeaderSpec{Required: AuditHeader})
	if err != nil {
		return err
	}
	_, err = a.sink.Append(ctx, header, []internal.Record{auditRecord(stats)})
	return err
}

// FormatDuration renders "12.34s" below a minute and "2m 5s" above.
func FormatDuration(d time.Duration) string {
	secs := d.Seconds()
	if secs < 60 {
		return fmt.Sprintf("%.2fs", secs)
	}
	return fmt.Sprintf("%dm %ds", int(secs)/60, int(secs)%60)
}
