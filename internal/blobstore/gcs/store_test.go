package gcs

import (
	"fmt"
	"net/http"
	"testing"

	"google.golang.org/api/googleapi"
)

func TestFolderPath(t *testing.T) {
	cases := []struct {
		parent, name, want string
	}{
		{"", "Gmail_Attachments", "Gmail_Attachments/"},
		{"Gmail_Attachments/", "PDFs", "Gmail_Attachments/PDFs/"},
		{"/base/", "", "base/"},
		{"", "", ""},
	}
	for _, tc := range cases {
		if got := folderPath(tc.parent, tc.name); got != tc.want {
			t.Fatalf("folderPath(%q,%q)=%q want %q", tc.parent, tc.name, got, tc.want)
		}
	}
	if got := objectName("base/PDFs/", "m1_a.pdf"); got != "base/PDFs/m1_a.pdf" {
		t.Fatalf("objectName=%q", got)
	}
}

func TestPreconditionFailed(t *testing.T) {
	wrapped := fmt.Errorf("write: %w", &googleapi.Error{Code: http.StatusPreconditionFailed})
	if !preconditionFailed(wrapped) {
		t.Fatal("412 should be detected through wrapping")
	}
	if preconditionFailed(&googleapi.Error{Code: http.StatusForbidden}) {
		t.Fatal("403 is not a precondition failure")
	}
}
