package connectors

import (
	"context"
	"fmt"
	"strings"
	"time"

	"payadvice/internal"
)

// MessageSource is the narrow view of a mailbox the harvester needs.
type MessageSource interface {
	Search(ctx context.Context, query Query, max int) ([]string, error)
	Metadata(ctx context.Context, messageID string) (internal.MessageMeta, error)
	Full(ctx context.Context, messageID string) (internal.Part, error)
	AttachmentBytes(ctx context.Context, messageID, attachmentID string) ([]byte, error)
}

type Query struct {
	Sender   string
	Keywords []string
	Since    time.Time
}

func BuildQuery(criteria internal.SearchCriteria, now time.Time) Query {
	days := criteria.DaysBack
	if days < 0 {
		days = 0
	}
	return Query{
		Sender:   strings.TrimSpace(criteria.Sender),
		Keywords: criteria.Keywords(),
		Since:    now.AddDate(0, 0, -days),
	}
}

// Gmail renders the query in Gmail search syntax, e.g.
// has:attachment from:"a@b.c" ("x" OR "y") after:2025/11/01
func (q Query) Gmail() string {
	parts := []string{"has:attachment"}
	if q.Sender != "" {
		parts = append(parts, fmt.Sprintf("from:%q", q.Sender))
	}
	switch len(q.Keywords) {
	case 0:
	case 1:
		parts = append(parts, fmt.Sprintf("%q", q.Keywords[0]))
	default:
		quoted := make([]string, 0, len(q.Keywords))
		for _, k := range q.Keywords {
			quoted = append(quoted, fmt.Sprintf("%q", k))
		}
		parts = append(parts, "("+strings.Join(quoted, " OR ")+")")
	}
	if !q.Since.IsZero() {
		parts = append(parts, "after:"+q.Since.Format("2006/01/02"))
	}
	return strings.Join(parts, " ")
}
