package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/charset"
	"golang.org/x/text/encoding/charmap"
)

// ErrMalformedMessage is returned when raw bytes cannot be decoded into a message.
var ErrMalformedMessage = errors.New("malformed message")

// maxNestingDepth bounds recursion into multipart and message/rfc822 parts.
const maxNestingDepth = 32

func init() {
	// Register additional charsets that are commonly used in emails
	charset.RegisterEncoding("windows-1252", charmap.Windows1252)
	charset.RegisterEncoding("iso-8859-1", charmap.ISO8859_1)
	charset.RegisterEncoding("iso-8859-15", charmap.ISO8859_15)
}

// Parser turns raw messages into metadata records.
type Parser struct {
	links *Classifier
}

// NewParser creates a parser that keeps links accepted by classifier.
// A nil classifier uses the default file-storage hosts.
func NewParser(classifier *Classifier) *Parser {
	if classifier == nil {
		classifier = defaultClassifier
	}
	return &Parser{links: classifier}
}

var defaultParser = NewParser(nil)

// ParseFile parses an .eml file with the default classifier.
func ParseFile(filePath string) (*MetadataRecord, error) {
	return defaultParser.ParseFile(filePath)
}

// ParseMessage parses raw message bytes with the default classifier.
func ParseMessage(raw []byte) (*MetadataRecord, error) {
	return defaultParser.ParseMessage(raw)
}

// ParseFile reads an .eml file and extracts its metadata.
func (p *Parser) ParseFile(filePath string) (*MetadataRecord, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return p.ParseMessage(raw)
}

// ParseMessage extracts the metadata record of a single raw message.
// Decoding failures are reported as ErrMalformedMessage.
func (p *Parser) ParseMessage(raw []byte) (*MetadataRecord, error) {
	msg, err := Decode(raw)
	if err != nil {
		return nil, err
	}

	rec := &MetadataRecord{
		MessageID: optionalHeader(msg, "Message-ID"),
		Sender:    optionalHeader(msg, "From"),
		Subject:   optionalHeader(msg, "Subject"),
		To:        optionalHeader(msg, "To"),
		Cc:        optionalHeader(msg, "Cc"),
		Date:      optionalHeader(msg, "Date"),
	}

	rec.AttachmentNames = CollectAttachments(msg.Root)
	rec.FileStorageLinks = p.links.Filter(ExtractLinks(collectBody(msg.Root)))

	return rec, nil
}

func optionalHeader(msg *Message, name string) *string {
	v, ok := msg.Header(name)
	if !ok {
		return nil
	}
	return &v
}

// collectBody concatenates the text of every text/plain and text/html leaf
// in traversal order.
func collectBody(root *Part) string {
	var body strings.Builder
	root.Walk(func(p *Part) {
		if p.IsMultipart() {
			return
		}
		switch p.ContentType {
		case "text/plain", "text/html":
			body.WriteString(p.Text())
		}
	})
	return body.String()
}

// Decode parses raw bytes into a message tree.
func Decode(raw []byte) (*Message, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrMalformedMessage)
	}

	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !isTolerated(err) {
		return nil, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	root, err := decodeEntity(entity, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	return &Message{header: entity.Header, Root: root}, nil
}

func decodeEntity(e *message.Entity, depth int) (*Part, error) {
	part := newPart(e.Header)

	// A multipart without a usable boundary cannot be split and is kept as a leaf
	var mr message.MultipartReader
	if depth < maxNestingDepth && hasBoundary(e.Header) {
		mr = e.MultipartReader()
	}
	if mr != nil {
		defer mr.Close()
		for {
			child, err := mr.NextPart()
			if err != nil && isTruncated(err) {
				break
			}
			if err != nil && !isTolerated(err) {
				return nil, fmt.Errorf("failed to read part %d: %w", len(part.Parts), err)
			}

			sub, err := decodeEntity(child, depth+1)
			if err != nil {
				return nil, err
			}
			part.Parts = append(part.Parts, sub)
		}
		return part, nil
	}

	// Keep whatever was decoded before a transfer-encoding error
	part.Body, _ = io.ReadAll(e.Body)

	if part.ContentType == "message/rfc822" && depth < maxNestingDepth {
		if inner, err := message.Read(bytes.NewReader(part.Body)); err == nil || isTolerated(err) {
			if sub, err := decodeEntity(inner, depth+1); err == nil {
				part.Parts = []*Part{sub}
			}
		}
	}

	return part, nil
}

// hasBoundary reports whether go-message can split the entity. It sees no
// parameters at all when the Content-Type does not parse.
func hasBoundary(h message.Header) bool {
	_, params, err := h.ContentType()
	return err == nil && params["boundary"] != ""
}

func newPart(h message.Header) *Part {
	part := &Part{
		Disposition: strings.TrimSpace(h.Get("Content-Disposition")),
	}

	mediaType, params, err := h.ContentType()
	if err != nil {
		mediaType, params = fallbackMediaType(h.Get("Content-Type"))
	}
	part.ContentType = strings.ToLower(mediaType)
	part.Charset = strings.ToLower(params["charset"])
	part.Filename = partFilename(h, params)

	return part
}

// fallbackMediaType recovers the media type and parameters of an unparsable
// Content-Type, defaulting to text/plain.
func fallbackMediaType(raw string) (string, map[string]string) {
	mediaType, _, _ := strings.Cut(raw, ";")
	mediaType = strings.TrimSpace(mediaType)
	if !strings.Contains(mediaType, "/") {
		mediaType = "text/plain"
	}

	params := map[string]string{}
	for _, key := range []string{"charset", "name"} {
		if v := looseParam(raw, key); v != "" {
			params[key] = v
		}
	}
	return mediaType, params
}

// partFilename prefers the disposition filename and falls back to the
// Content-Type name parameter.
func partFilename(h message.Header, ctParams map[string]string) string {
	_, params, err := h.ContentDisposition()
	if err != nil {
		params = map[string]string{"filename": looseParam(h.Get("Content-Disposition"), "filename")}
	}
	if name := params["filename"]; name != "" {
		return decodeMIMEWord(name)
	}
	if name := ctParams["name"]; name != "" {
		return decodeMIMEWord(name)
	}
	return ""
}

// looseParam reads a parameter from a header value that mime.ParseMediaType
// rejects, such as unquoted non-ASCII or spaced values. A quoted value runs to
// the closing quote; a bare value ends at whitespace or ';'.
func looseParam(v, key string) string {
	key += "="
	for i := 0; i+len(key) <= len(v); i++ {
		if !strings.EqualFold(v[i:i+len(key)], key) {
			continue
		}
		if i > 0 && !strings.ContainsRune("; \t", rune(v[i-1])) {
			continue
		}

		rest := v[i+len(key):]
		if strings.HasPrefix(rest, `"`) {
			rest = rest[1:]
			if end := strings.IndexByte(rest, '"'); end >= 0 {
				return rest[:end]
			}
			return strings.TrimSpace(rest)
		}
		if end := strings.IndexAny(rest, "; \t\r\n"); end >= 0 {
			return rest[:end]
		}
		return rest
	}
	return ""
}

// decodeMIMEWord decodes MIME-encoded words (RFC 2047)
// Example: =?UTF-8?Q?Invitaci=C3=B3n?= -> Invitación
func decodeMIMEWord(s string) string {
	dec := &mime.WordDecoder{CharsetReader: charset.Reader}
	decoded, err := dec.DecodeHeader(s)
	if err != nil {
		return s
	}
	return decoded
}

// unfold removes header folding line breaks, keeping the folded whitespace.
func unfold(s string) string {
	if !strings.ContainsAny(s, "\r\n") {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", "")
	return strings.ReplaceAll(s, "\n", "")
}

func isTolerated(err error) bool {
	return message.IsUnknownCharset(err) || message.IsUnknownEncoding(err)
}

// isTruncated reports the end of a multipart body, including a missing
// closing boundary.
func isTruncated(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	// go-message's textproto reader formats a missing closing boundary as
	// "multipart: NextPart: %v" with io.EOF, so the cause is only in the text.
	return strings.HasPrefix(err.Error(), "multipart: NextPart: ") && strings.HasSuffix(err.Error(), "EOF")
}
