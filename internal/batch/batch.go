// Package batch drives one processing run over the input directory.
package batch

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/felo/eml-metadata/internal/csvlog"
	"github.com/felo/eml-metadata/internal/logger"
	"github.com/felo/eml-metadata/internal/parser"
	"github.com/felo/eml-metadata/internal/relocate"
	"github.com/felo/eml-metadata/internal/report"
	"github.com/felo/eml-metadata/internal/scanner"
	"github.com/gammazero/workerpool"
)

// Processor parses, logs and relocates every message waiting in a directory
type Processor struct {
	parser       *parser.Parser
	scanner      *scanner.Scanner
	log          *csvlog.Log
	processedDir string
	logger       logger.Logger

	workers int
	report  io.Writer

	runMu    sync.Mutex // one run at a time
	reportMu sync.Mutex
}

// NewProcessor creates a sequential processor without receipts
func NewProcessor(p *parser.Parser, s *scanner.Scanner, log *csvlog.Log, processedDir string, l logger.Logger) *Processor {
	if p == nil {
		p = parser.NewParser(nil)
	}
	if l == nil {
		l = logger.NopLogger()
	}
	return &Processor{
		parser:       p,
		scanner:      s,
		log:          log,
		processedDir: processedDir,
		logger:       l,
		workers:      1,
	}
}

// WithWorkers sets the number of files processed in parallel
func (bp *Processor) WithWorkers(workers int) *Processor {
	if workers < 1 {
		workers = 1
	}
	bp.workers = workers
	return bp
}

// WithReport prints a receipt to w for every processed message
func (bp *Processor) WithReport(w io.Writer) *Processor {
	bp.report = w
	return bp
}

// Result contains statistics about a processing run
type Result struct {
	TotalFound int `json:"total_found"`
	// Processed counts messages whose record was appended, including MoveFailed ones
	Processed   int      `json:"processed"`
	MoveFailed  int      `json:"move_failed"`
	Failed      int      `json:"failed"`
	FailedFiles []string `json:"failed_files"`
}

type fileStatus int

const (
	statusProcessed fileStatus = iota
	statusMoveFailed
	statusFailed
)

type fileResult struct {
	filePath string
	status   fileStatus
}

// ProcessAll processes every .eml file in the input directory
func (bp *Processor) ProcessAll(ctx context.Context) (*Result, error) {
	return bp.ProcessWithProgress(ctx, nil)
}

// ProcessWithProgress processes all files and reports progress via a callback.
// Once ctx is done no further files are started; files already running finish
// and the partial result is returned together with the context error.
func (bp *Processor) ProcessWithProgress(ctx context.Context, progress func(current, total int, filePath string)) (*Result, error) {
	bp.runMu.Lock()
	defer bp.runMu.Unlock()

	files, err := bp.scanner.Scan()
	if err != nil {
		return nil, fmt.Errorf("failed to scan for files: %w", err)
	}

	result := &Result{
		TotalFound:  len(files),
		FailedFiles: make([]string, 0),
	}

	bp.logger.Infow("starting batch",
		"input_dir", bp.scanner.GetRootPath(),
		"files", result.TotalFound,
		"workers", bp.workers)

	resultChan := make(chan fileResult, len(files))

	submit := func(filePath string) {
		resultChan <- bp.processFile(filePath)
	}
	wait := func() {}
	if bp.workers > 1 {
		wp := workerpool.New(bp.workers)
		submit = func(filePath string) {
			wp.Submit(func() {
				resultChan <- bp.processFile(filePath)
			})
		}
		wait = wp.StopWait
	}

	go func() {
		defer close(resultChan)
		for _, file := range files {
			if ctx.Err() != nil {
				break
			}
			submit(file)
		}
		wait()
	}()

	// Collect results with progress reporting
	processedCount := 0
	for res := range resultChan {
		processedCount++
		if progress != nil {
			progress(processedCount, result.TotalFound, res.filePath)
		}

		switch res.status {
		case statusProcessed:
			result.Processed++
		case statusMoveFailed:
			result.Processed++
			result.MoveFailed++
		case statusFailed:
			result.Failed++
			result.FailedFiles = append(result.FailedFiles, res.filePath)
		}
	}

	bp.logger.Infow("batch complete",
		"processed", result.Processed,
		"move_failed", result.MoveFailed,
		"failed", result.Failed,
		"skipped", result.TotalFound-processedCount)

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("batch interrupted: %w", err)
	}
	return result, nil
}

// processFile runs parse, append, move and report for one file. It never
// panics; any failure is logged and reflected in the returned status.
func (bp *Processor) processFile(filePath string) (res fileResult) {
	res.filePath = filePath

	defer func() {
		if r := recover(); r != nil {
			bp.logger.Errorw("panic while processing file", "file", filePath, "panic", r)
			res.status = statusFailed
		}
	}()

	rec, err := bp.parser.ParseFile(filePath)
	if err != nil {
		bp.logger.Errorw("failed to parse message", "file", filePath, "error", err)
		res.status = statusFailed
		return res
	}

	if err := bp.log.Append(rec); err != nil {
		bp.logger.Errorw("failed to append metadata", "file", filePath, "csv", bp.log.Path(), "error", err)
		res.status = statusFailed
		return res
	}

	res.status = statusProcessed
	if moved := relocate.Move(filePath, bp.processedDir); !moved.OK() {
		bp.logger.Warnw("failed to move processed file", "file", filePath, "error", moved.Message())
		res.status = statusMoveFailed
	}

	bp.logger.Infow("processed message",
		"file", filePath,
		"message_id", parser.StringValue(rec.MessageID),
		"attachments", rec.AttachmentCount(),
		"links", rec.LinkCount())

	if bp.report != nil {
		bp.reportMu.Lock()
		err := report.Render(bp.report, rec)
		bp.reportMu.Unlock()
		if err != nil {
			bp.logger.Warnw("failed to print report", "file", filePath, "error", err)
		}
	}

	return res
}
