package extraction

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ledongthuc/pdf"

	"payadvice/internal/retry"
)

var ErrNotPDF = errors.New("not a readable pdf")

// Preflight checks that data parses as a PDF with at least one page. The
// returned error is permanent.
func Preflight(data []byte) (pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages = 0
			err = retry.Permanent(fmt.Errorf("%w: %v", ErrNotPDF, r))
		}
	}()

	if !bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), []byte("%PDF")) {
		return 0, retry.Permanent(fmt.Errorf("%w: missing %%PDF header", ErrNotPDF))
	}
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, retry.Permanent(fmt.Errorf("%w: %v", ErrNotPDF, err))
	}
	pages = r.NumPage()
	if pages == 0 {
		return 0, retry.Permanent(fmt.Errorf("%w: no pages", ErrNotPDF))
	}
	return pages, nil
}
