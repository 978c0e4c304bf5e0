package imap

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"
	"github.com/jhillyerd/enmime"

	"payadvice/internal"
	"payadvice/internal/config"
	"payadvice/internal/connectors"
)

// Connector exposes an IMAP mailbox as a message source. Message ids are
// UIDs; attachment ids are MIME part paths ("1.2").
type Connector struct {
	host     string
	port     int
	secure   bool
	user     string
	password string
	mailbox  string

	mu          sync.Mutex
	client      *imapclient.Client
	attachments map[string][]byte
}

func NewConnector(cfg config.Config) (*Connector, error) {
	if err := cfg.Require("IMAP_HOST", cfg.IMAPHost); err != nil {
		return nil, err
	}
	if err := cfg.Require("IMAP_USER", cfg.IMAPUser); err != nil {
		return nil, err
	}
	if err := cfg.Require("IMAP_PASSWORD", cfg.IMAPPassword); err != nil {
		return nil, err
	}

	mailbox := cfg.IMAPMailbox
	if mailbox == "" {
		mailbox = "INBOX"
	}
	return &Connector{
		host:        cfg.IMAPHost,
		port:        cfg.IMAPPort,
		secure:      cfg.IMAPSecure,
		user:        cfg.IMAPUser,
		password:    cfg.IMAPPassword,
		mailbox:     mailbox,
		attachments: map[string][]byte{},
	}, nil
}

func (c *Connector) session() (*imapclient.Client, error) {
	if c.client != nil {
		return c.client, nil
	}
	addr := fmt.Sprintf("%s:%d", c.host, c.port)
	var client *imapclient.Client
	var err error
	if c.secure {
		client, err = imapclient.DialTLS(addr, &tls.Config{ServerName: c.host})
	} else {
		client, err = imapclient.Dial(addr)
	}
	if err != nil {
		return nil, err
	}
	if err := client.Login(c.user, c.password); err != nil {
		_ = client.Logout()
		return nil, err
	}
	if _, err := client.Select(c.mailbox, true); err != nil {
		_ = client.Logout()
		return nil, err
	}
	c.client = client
	return client, nil
}

func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Logout()
	c.client = nil
	return err
}

func (c *Connector) Search(ctx context.Context, query connectors.Query, max int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	client, err := c.session()
	if err != nil {
		return nil, err
	}
	uids, err := client.UidSearch(searchCriteria(query))
	if err != nil {
		return nil, err
	}
	return newest(uids, max), nil
}

func (c *Connector) Metadata(ctx context.Context, messageID string) (internal.MessageMeta, error) {
	msg, err := c.fetch(ctx, messageID, []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid})
	if err != nil {
		return internal.MessageMeta{}, err
	}
	meta := internal.MessageMeta{ID: messageID, Sender: "Unknown", Subject: "(No Subject)"}
	if env := msg.Envelope; env != nil {
		if from := formatAddresses(env.From); from != "" {
			meta.Sender = from
		}
		if env.Subject != "" {
			meta.Subject = env.Subject
		}
		if !env.Date.IsZero() {
			meta.Date = env.Date.Format("Mon, 2 Jan 2006 15:04:05 -0700")
		}
	}
	return meta, nil
}

func (c *Connector) Full(ctx context.Context, messageID string) (internal.Part, error) {
	section := &imap.BodySectionName{Peek: true}
	msg, err := c.fetch(ctx, messageID, []imap.FetchItem{imap.FetchUid, section.FetchItem()})
	if err != nil {
		return internal.Part{}, err
	}
	var body imap.Literal
	for _, literal := range msg.Body {
		body = literal
		break
	}
	if body == nil {
		return internal.Part{}, fmt.Errorf("message %s has no body", messageID)
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return internal.Part{}, err
	}

	root, err := enmime.ReadParts(bytes.NewReader(raw))
	if err != nil {
		return internal.Part{}, fmt.Errorf("parse mime %s: %w", messageID, err)
	}

	return c.cacheParts(messageID, root), nil
}

// cacheParts converts root and replaces the attachment cache with its leaves,
// so at most one message's attachments are held at a time.
func (c *Connector) cacheParts(messageID string, root *enmime.Part) internal.Part {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attachments = map[string][]byte{}
	return c.convert(messageID, root)
}

// take returns a cached attachment and drops it from the cache.
func (c *Connector) take(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	content, ok := c.attachments[key]
	delete(c.attachments, key)
	return content, ok
}

func (c *Connector) AttachmentBytes(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	key := messageID + "/" + attachmentID
	content, ok := c.take(key)
	if !ok {
		if _, err := c.Full(ctx, messageID); err != nil {
			return nil, err
		}
		content, ok = c.take(key)
	}
	if !ok || len(content) == 0 {
		return nil, fmt.Errorf("attachment %s of %s not found", attachmentID, messageID)
	}
	return content, nil
}

func (c *Connector) fetch(ctx context.Context, messageID string, items []imap.FetchItem) (*imap.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	uid, err := strconv.ParseUint(messageID, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid imap uid %q", messageID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	client, err := c.session()
	if err != nil {
		return nil, err
	}
	seqset := new(imap.SeqSet)
	seqset.AddNum(uint32(uid))

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() { done <- client.UidFetch(seqset, items, messages) }()

	var found *imap.Message
	for msg := range messages {
		if msg != nil && found == nil {
			found = msg
		}
	}
	if err := <-done; err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("message %s not found", messageID)
	}
	return found, nil
}

// convert walks the enmime tree; caller holds c.mu.
func (c *Connector) convert(messageID string, p *enmime.Part) internal.Part {
	out := internal.Part{
		PartID:   p.PartID,
		MimeType: p.ContentType,
		Filename: p.FileName,
	}
	if p.FileName != "" && p.FirstChild == nil {
		id := p.PartID
		if id == "" {
			id = "0"
		}
		out.AttachmentID = id
		c.attachments[messageID+"/"+id] = p.Content
	}
	for child := p.FirstChild; child != nil; child = child.NextSibling {
		out.Parts = append(out.Parts, c.convert(messageID, child))
	}
	return out
}

func searchCriteria(q connectors.Query) *imap.SearchCriteria {
	criteria := imap.NewSearchCriteria()
	if q.Sender != "" {
		criteria.Header.Add("From", q.Sender)
	}
	if !q.Since.IsZero() {
		criteria.Since = q.Since
	}
	switch len(q.Keywords) {
	case 0:
	case 1:
		criteria.Text = []string{q.Keywords[0]}
	default:
		criteria.Or = [][2]*imap.SearchCriteria{keywordOr(q.Keywords)}
	}
	return criteria
}

func keywordOr(keywords []string) [2]*imap.SearchCriteria {
	left := imap.NewSearchCriteria()
	left.Text = []string{keywords[0]}
	right := imap.NewSearchCriteria()
	if len(keywords) == 2 {
		right.Text = []string{keywords[1]}
	} else {
		right.Or = [][2]*imap.SearchCriteria{keywordOr(keywords[1:])}
	}
	return [2]*imap.SearchCriteria{left, right}
}

// newest keeps the last max uids (highest uid = most recent) newest first.
func newest(uids []uint32, max int) []string {
	if max > 0 && len(uids) > max {
		uids = uids[len(uids)-max:]
	}
	out := make([]string, 0, len(uids))
	for i := len(uids) - 1; i >= 0; i-- {
		out = append(out, strconv.FormatUint(uint64(uids[i]), 10))
	}
	return out
}

func formatAddresses(addrs []*imap.Address) string {
	if len(addrs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a == nil {
			continue
		}
		email := strings.Trim(strings.Join([]string{a.MailboxName, a.HostName}, "@"), "@")
		if a.PersonalName != "" {
			parts = append(parts, fmt.Sprintf("%s <%s>", a.PersonalName, email))
		} else {
			parts = append(parts, email)
		}
	}
	return strings.Join(parts, ", ")
}
