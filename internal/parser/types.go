package parser

import (
	"encoding/json"
	"mime"
	"strings"

	"github.com/emersion/go-message"
)

// MetadataRecord holds the metadata extracted from a single message.
// Header fields are nil when the header is absent from the message.
type MetadataRecord struct {
	MessageID *string
	Sender    *string
	To        *string
	Cc        *string
	Date      *string
	Subject   *string

	AttachmentNames  []string
	FileStorageLinks []string
}

// AttachmentCount returns the number of attachment names.
func (r *MetadataRecord) AttachmentCount() int {
	return len(r.AttachmentNames)
}

// LinkCount returns the number of file-storage links.
func (r *MetadataRecord) LinkCount() int {
	return len(r.FileStorageLinks)
}

// MarshalJSON encodes the record with its derived counts.
func (r *MetadataRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		MessageID        *string  `json:"message_id"`
		Sender           *string  `json:"sender"`
		To               *string  `json:"to"`
		Cc               *string  `json:"cc"`
		Date             *string  `json:"date"`
		Subject          *string  `json:"subject"`
		AttachmentCount  int      `json:"attachment_count"`
		AttachmentNames  []string `json:"attachment_names"`
		LinkCount        int      `json:"link_count"`
		FileStorageLinks []string `json:"links"`
	}{
		MessageID:        r.MessageID,
		Sender:           r.Sender,
		To:               r.To,
		Cc:               r.Cc,
		Date:             r.Date,
		Subject:          r.Subject,
		AttachmentCount:  r.AttachmentCount(),
		AttachmentNames:  r.AttachmentNames,
		LinkCount:        r.LinkCount(),
		FileStorageLinks: r.FileStorageLinks,
	})
}

// StringValue dereferences an optional header value, returning "" for nil.
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Message is a decoded email message.
type Message struct {
	header message.Header
	Root   *Part
}

// Header returns the value of the named top-level header.
// Lookup is case-insensitive; ok is false when the header is absent.
func (m *Message) Header(name string) (value string, ok bool) {
	if !m.header.Has(name) {
		return "", false
	}
	value, err := m.header.Text(name)
	if err != nil {
		// Undecodable encoded words are kept verbatim
		value = m.header.Get(name)
	}
	return unfold(value), true
}

// Part is a node in a message's content tree. Containers carry Parts,
// leaves carry Body.
type Part struct {
	ContentType string // lower-cased media type, e.g. "text/html"
	Disposition string // raw Content-Disposition header value
	Filename    string
	Charset     string
	Body        []byte
	Parts       []*Part
}

// IsMultipart reports whether the part is a container of subparts.
func (p *Part) IsMultipart() bool {
	return len(p.Parts) > 0 || strings.HasPrefix(p.ContentType, "multipart/")
}

// IsAttachment reports whether the disposition marks the part as an attachment.
func (p *Part) IsAttachment() bool {
	if p.Disposition == "" {
		return false
	}
	if disp, _, err := mime.ParseMediaType(p.Disposition); err == nil {
		return disp == "attachment"
	}
	return strings.Contains(strings.ToLower(p.Disposition), "attachment")
}

// Text returns the payload as UTF-8, dropping invalid byte sequences.
func (p *Part) Text() string {
	return strings.ToValidUTF8(string(p.Body), "")
}

// Walk calls fn for p and every descendant in depth-first pre-order.
func (p *Part) Walk(fn func(*Part)) {
	if p == nil {
		return
	}
	fn(p)
	for _, sub := range p.Parts {
		sub.Walk(fn)
	}
}
