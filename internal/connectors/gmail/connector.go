package gmail

import (
	"context"
	"encoding/base64"
	"fmt"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"payadvice/internal"
	"payadvice/internal/connectors"
)

const user = "me"

type Connector struct {
	service *gmail.Service
}

func NewConnector(ctx context.Context, opts ...option.ClientOption) (*Connector, error) {
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gmail service: %w", err)
	}
	return &Connector{service: svc}, nil
}

func (c *Connector) Search(ctx context.Context, query connectors.Query, max int) ([]string, error) {
	call := c.service.Users.Messages.List(user).Q(query.Gmail()).Context(ctx)
	if max > 0 {
		call = call.MaxResults(int64(max))
	}
	resp, err := call.Do()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		if m.Id != "" {
			ids = append(ids, m.Id)
		}
	}
	return ids, nil
}

func (c *Connector) Metadata(ctx context.Context, messageID string) (internal.MessageMeta, error) {
	msg, err := c.service.Users.Messages.Get(user, messageID).
		Format("metadata").
		MetadataHeaders("From", "Subject", "Date").
		Context(ctx).
		Do()
	if err != nil {
		return internal.MessageMeta{}, err
	}

	meta := internal.MessageMeta{ID: messageID, Sender: "Unknown", Subject: "(No Subject)"}
	if msg.Payload == nil {
		return meta, nil
	}
	for _, h := range msg.Payload.Headers {
		switch h.Name {
		case "From":
			meta.Sender = h.Value
		case "Subject":
			meta.Subject = h.Value
		case "Date":
			meta.Date = h.Value
		}
	}
	return meta, nil
}

func (c *Connector) Full(ctx context.Context, messageID string) (internal.Part, error) {
	msg, err := c.service.Users.Messages.Get(user, messageID).Format("full").Context(ctx).Do()
	if err != nil {
		return internal.Part{}, err
	}
	if msg.Payload == nil {
		return internal.Part{}, fmt.Errorf("message %s has no payload", messageID)
	}
	return convertPart(msg.Payload), nil
}

func (c *Connector) AttachmentBytes(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	att, err := c.service.Users.Messages.Attachments.Get(user, messageID, attachmentID).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	if att.Data == "" {
		return nil, fmt.Errorf("attachment %s of %s is empty", attachmentID, messageID)
	}
	return decodeBase64URL(att.Data)
}

func convertPart(p *gmail.MessagePart) internal.Part {
	out := internal.Part{
		PartID:   p.PartId,
		MimeType: p.MimeType,
		Filename: p.Filename,
	}
	if p.Body != nil {
		out.AttachmentID = p.Body.AttachmentId
	}
	for _, child := range p.Parts {
		if child == nil {
			continue
		}
		out.Parts = append(out.Parts, convertPart(child))
	}
	return out
}

func decodeBase64URL(input string) ([]byte, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(input)
	if err == nil {
		return decoded, nil
	}
	decoded, err = base64.URLEncoding.DecodeString(input)
	if err == nil {
		return decoded, nil
	}
	return nil, fmt.Errorf("decode gmail attachment payload: %w", err)
}
