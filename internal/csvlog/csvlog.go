// Package csvlog appends metadata records to a delimited, append-only log file.
package csvlog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/felo/eml-metadata/internal/parser"
)

// ErrPersistence wraps failures to open or append to the log file.
var ErrPersistence = errors.New("metadata log")

// Columns is the fixed column order of the log.
var Columns = []string{
	"message_id", "sender", "to", "cc", "date", "subject",
	"attachment_count", "attachment_names", "link_count", "links",
}

// listSeparator joins list cells. Values containing it cannot be split back apart.
const listSeparator = ", "

// Row converts a record into a log row in column order.
// Absent header fields become empty cells.
func Row(rec *parser.MetadataRecord) []string {
	return []string{
		parser.StringValue(rec.MessageID),
		parser.StringValue(rec.Sender),
		parser.StringValue(rec.To),
		parser.StringValue(rec.Cc),
		parser.StringValue(rec.Date),
		parser.StringValue(rec.Subject),
		strconv.Itoa(rec.AttachmentCount()),
		strings.Join(rec.AttachmentNames, listSeparator),
		strconv.Itoa(rec.LinkCount()),
		strings.Join(rec.FileStorageLinks, listSeparator),
	}
}

// Log is an append-only CSV file. Appends are serialized, so a Log may be
// shared between workers.
type Log struct {
	mu   sync.Mutex
	path string
}

// New returns a log writing to path. The file is created on first append.
func New(path string) *Log {
	return &Log{path: path}
}

// Path returns the log file path.
func (l *Log) Path() string {
	return l.path
}

// Append writes one row for rec. The header row goes first when the file
// does not exist yet, and also when it exists with size zero (a truncated or
// pre-created log). A file holding any bytes never gets a second header.
func (l *Log) Append(rec *parser.MetadataRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("%w: failed to open %s: %w", ErrPersistence, l.path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("%w: failed to stat %s: %w", ErrPersistence, l.path, err)
	}

	w := csv.NewWriter(f)
	w.UseCRLF = true
	if info.Size() == 0 {
		if err := w.Write(Columns); err != nil {
			return fmt.Errorf("%w: failed to write header: %w", ErrPersistence, err)
		}
	}
	if err := w.Write(Row(rec)); err != nil {
		return fmt.Errorf("%w: failed to write row: %w", ErrPersistence, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("%w: failed to flush %s: %w", ErrPersistence, l.path, err)
	}

	return f.Close()
}

// ReadAll returns every data row keyed by column name.
// A missing file yields no rows.
func (l *Log) ReadAll() ([]map[string]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return []map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open %s: %w", ErrPersistence, l.path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return []map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read header: %w", ErrPersistence, err)
	}

	rows := make([]map[string]string, 0)
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read row %d: %w", ErrPersistence, len(rows)+1, err)
		}

		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		rows = append(rows, row)
	}

	return rows, nil
}
