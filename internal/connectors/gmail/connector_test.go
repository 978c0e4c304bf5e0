package gmail

import (
	"encoding/base64"
	"testing"

	"google.golang.org/api/gmail/v1"
)

func TestConvertPartNested(t *testing.T) {
	payload := &gmail.MessagePart{
		PartId:   "",
		MimeType: "multipart/mixed",
		Parts: []*gmail.MessagePart{
			{PartId: "0", MimeType: "text/plain", Body: &gmail.MessagePartBody{}},
			{
				PartId:   "1",
				MimeType: "multipart/related",
				Parts: []*gmail.MessagePart{
					{PartId: "1.0", MimeType: "application/pdf", Filename: "advice.pdf", Body: &gmail.MessagePartBody{AttachmentId: "att-1"}},
				},
			},
			nil,
		},
	}

	root := convertPart(payload)
	if len(root.Parts) != 2 {
		t.Fatalf("expected 2 children, got %d", len(root.Parts))
	}
	leaf := root.Parts[1].Parts[0]
	if leaf.Filename != "advice.pdf" || leaf.AttachmentID != "att-1" {
		t.Fatalf("unexpected leaf: %+v", leaf)
	}
}

func TestDecodeBase64URL(t *testing.T) {
	raw := []byte("%PDF-1.4\n\xff\xfe")
	for _, enc := range []*base64.Encoding{base64.RawURLEncoding, base64.URLEncoding} {
		got, err := decodeBase64URL(enc.EncodeToString(raw))
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != string(raw) {
			t.Fatalf("got %q", got)
		}
	}
	if _, err := decodeBase64URL("***"); err == nil {
		t.Fatal("expected error")
	}
}
