package batch

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/felo/eml-metadata/internal/csvlog"
	"github.com/felo/eml-metadata/internal/parser"
	"github.com/felo/eml-metadata/internal/scanner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleMessage = "Message-ID: <batch@example.com>\r\n" +
	"From: a@b.com\r\n" +
	"To: c@d.com\r\n" +
	"Subject: Test\r\n" +
	"Content-Type: multipart/mixed; boundary=\"sep\"\r\n" +
	"\r\n" +
	"--sep\r\n" +
	"Content-Type: text/html\r\n" +
	"\r\n" +
	"<a href=\"https://dropbox.com/x\">data</a> <a href=\"mailto:a@b.com\">me</a>\r\n" +
	"--sep\r\n" +
	"Content-Type: application/pdf\r\n" +
	"Content-Disposition: attachment; filename=\"survey.pdf\"\r\n" +
	"\r\n" +
	"%PDF\r\n" +
	"--sep--\r\n"

type env struct {
	inputDir     string
	processedDir string
	csvPath      string
}

func newEnv(t *testing.T) env {
	t.Helper()
	root := t.TempDir()
	e := env{
		inputDir:     filepath.Join(root, "not_processed"),
		processedDir: filepath.Join(root, "processed"),
		csvPath:      filepath.Join(root, "email_metadata.csv"),
	}
	require.NoError(t, os.Mkdir(e.inputDir, 0o755))
	require.NoError(t, os.Mkdir(e.processedDir, 0o755))
	return e
}

func (e env) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.inputDir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (e env) processor() *Processor {
	return NewProcessor(nil, scanner.NewScanner(e.inputDir), csvlog.New(e.csvPath), e.processedDir, nil)
}

func (e env) rows(t *testing.T) []map[string]string {
	t.Helper()
	rows, err := csvlog.New(e.csvPath).ReadAll()
	require.NoError(t, err)
	return rows
}

// TestProcessAll tests the full parse, append, move and report sequence
func TestProcessAll(t *testing.T) {
	e := newEnv(t)
	src := e.write(t, "m.eml", sampleMessage)
	e.write(t, "notes.txt", "not a message")

	var out bytes.Buffer
	result, err := e.processor().WithReport(&out).ProcessAll(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalFound)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 0, result.MoveFailed)
	assert.Empty(t, result.FailedFiles)

	rows := e.rows(t)
	require.Len(t, rows, 1)
	assert.Equal(t, "<batch@example.com>", rows[0]["message_id"])
	assert.Equal(t, "1", rows[0]["attachment_count"])
	assert.Equal(t, "survey.pdf", rows[0]["attachment_names"])
	assert.Equal(t, "1", rows[0]["link_count"])
	assert.Equal(t, "https://dropbox.com/x", rows[0]["links"])

	assert.NoFileExists(t, src)
	assert.FileExists(t, filepath.Join(e.processedDir, "m.eml"))
	assert.FileExists(t, filepath.Join(e.inputDir, "notes.txt"))

	assert.Contains(t, out.String(), "Subject: Test")
	assert.Contains(t, out.String(), "Recipients: c@d.com, -")
}

// TestProcessAll_SameMessageTwice tests that a reprocessed message is appended again
func TestProcessAll_SameMessageTwice(t *testing.T) {
	e := newEnv(t)
	p := e.processor()

	e.write(t, "first.eml", sampleMessage)
	_, err := p.ProcessAll(context.Background())
	require.NoError(t, err)

	e.write(t, "second.eml", sampleMessage)
	_, err = p.ProcessAll(context.Background())
	require.NoError(t, err)

	rows := e.rows(t)
	require.Len(t, rows, 2)
	assert.Equal(t, rows[0], rows[1])
}

// TestProcessAll_MalformedFileContinues tests that one bad file does not stop the batch
func TestProcessAll_MalformedFileContinues(t *testing.T) {
	e := newEnv(t)
	bad := e.write(t, "a-bad.eml", "this is not an email\n\nbody\n")
	e.write(t, "b-good.eml", sampleMessage)

	result, err := e.processor().ProcessAll(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalFound)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, []string{bad}, result.FailedFiles)

	assert.Len(t, e.rows(t), 1)
	// Failed files stay in the input directory
	assert.FileExists(t, bad)
}

// TestProcessAll_MoveFailure tests that a failed move keeps the record and the file
func TestProcessAll_MoveFailure(t *testing.T) {
	e := newEnv(t)
	src := e.write(t, "m.eml", sampleMessage)
	require.NoError(t, os.WriteFile(filepath.Join(e.processedDir, "m.eml"), []byte("older"), 0o644))

	result, err := e.processor().ProcessAll(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.MoveFailed)
	assert.Equal(t, 0, result.Failed)
	assert.Len(t, e.rows(t), 1)
	assert.FileExists(t, src)

	older, err := os.ReadFile(filepath.Join(e.processedDir, "m.eml"))
	require.NoError(t, err)
	assert.Equal(t, "older", string(older))
}

// TestProcessWithProgress_Workers tests concurrent processing and progress callbacks
func TestProcessWithProgress_Workers(t *testing.T) {
	e := newEnv(t)
	const files = 20
	for i := 0; i < files; i++ {
		e.write(t, fmt.Sprintf("m%02d.eml", i), sampleMessage)
	}

	var (
		mu    sync.Mutex
		calls []int
	)
	var out bytes.Buffer
	result, err := e.processor().WithWorkers(4).WithReport(&out).ProcessWithProgress(context.Background(),
		func(current, total int, filePath string) {
			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, files, total)
			calls = append(calls, current)
		})

	require.NoError(t, err)
	assert.Equal(t, files, result.Processed)
	assert.Len(t, calls, files)
	assert.Equal(t, files, calls[len(calls)-1])
	assert.Len(t, e.rows(t), files)
	assert.Equal(t, files, bytes.Count(out.Bytes(), []byte("Subject: Test")))

	left, err := scanner.NewScanner(e.inputDir).CountEMLFiles()
	require.NoError(t, err)
	assert.Equal(t, 0, left)
}

// TestProcessAll_Cancelled tests that a cancelled context starts no files
func TestProcessAll_Cancelled(t *testing.T) {
	e := newEnv(t)
	src := e.write(t, "m.eml", sampleMessage)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := e.processor().ProcessAll(ctx)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Equal(t, 1, result.TotalFound)
	assert.Equal(t, 0, result.Processed)
	assert.FileExists(t, src)
	assert.Empty(t, e.rows(t))
}

// TestProcessAll_CSVFailure tests that an unwritable log fails the file
func TestProcessAll_CSVFailure(t *testing.T) {
	e := newEnv(t)
	src := e.write(t, "m.eml", sampleMessage)

	p := NewProcessor(parser.NewParser(nil), scanner.NewScanner(e.inputDir),
		csvlog.New(filepath.Join(e.processedDir, "missing", "log.csv")), e.processedDir, nil)
	result, err := p.ProcessAll(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 0, result.Processed)
	assert.FileExists(t, src)
}

// TestProcessAll_MissingInputDir tests the scan error
func TestProcessAll_MissingInputDir(t *testing.T) {
	e := newEnv(t)
	p := NewProcessor(nil, scanner.NewScanner(filepath.Join(e.inputDir, "nope")), csvlog.New(e.csvPath), e.processedDir, nil)

	_, err := p.ProcessAll(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to scan for files")
}
