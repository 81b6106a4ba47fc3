// Package report renders the human-readable receipt printed for each processed message.
package report

import (
	"fmt"
	"io"
	"strings"
	"text/template"

	"github.com/felo/eml-metadata/internal/parser"
)

// placeholder is rendered for absent or empty fields.
const placeholder = "-"

const receiptTemplate = `
    Hello, this message confirms that we received the data you shared with us. Submission details:

    Subject: {{ .Subject }}
    Sender: {{ .Sender }}
    Recipients: {{ .To }}, {{ .Cc }}
    Links found in the message: {{ .Links }}
    Attached files: {{ .Attachments }}
    Datasets in the content:
`

var receipt = template.Must(template.New("receipt").Parse(receiptTemplate))

type view struct {
	Subject     string
	Sender      string
	To          string
	Cc          string
	Links       string
	Attachments string
}

// Render writes the receipt for rec to w.
func Render(w io.Writer, rec *parser.MetadataRecord) error {
	v := view{
		Subject:     orPlaceholder(parser.StringValue(rec.Subject)),
		Sender:      orPlaceholder(parser.StringValue(rec.Sender)),
		To:          orPlaceholder(parser.StringValue(rec.To)),
		Cc:          orPlaceholder(parser.StringValue(rec.Cc)),
		Links:       orPlaceholder(strings.Join(rec.FileStorageLinks, ", ")),
		Attachments: orPlaceholder(strings.Join(rec.AttachmentNames, ", ")),
	}

	if err := receipt.Execute(w, v); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	return nil
}

func orPlaceholder(s string) string {
	if s == "" {
		return placeholder
	}
	return s
}
