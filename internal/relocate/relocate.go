// Package relocate moves processed message files out of the input directory.
package relocate

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
)

var (
	// ErrSourceNotFound indicates the file to move does not exist.
	ErrSourceNotFound = errors.New("source file not found")

	// ErrDestinationNotFound indicates the destination directory does not exist.
	ErrDestinationNotFound = errors.New("destination directory not found")

	// ErrDestinationExists indicates a file with the same name is already in the destination.
	ErrDestinationExists = errors.New("destination file already exists")
)

// Result describes the outcome of a move. Err is nil on success.
type Result struct {
	Source      string
	Destination string
	Err         error
}

// OK reports whether the file was moved.
func (r Result) OK() bool {
	return r.Err == nil
}

// Message returns a human-readable description of the outcome.
func (r Result) Message() string {
	switch {
	case r.Err == nil:
		return fmt.Sprintf("file moved from %q to %q", r.Source, r.Destination)
	case errors.Is(r.Err, ErrSourceNotFound):
		return fmt.Sprintf("source file %q does not exist", r.Source)
	case errors.Is(r.Err, ErrDestinationNotFound):
		return fmt.Sprintf("destination directory %q does not exist", filepath.Dir(r.Destination))
	default:
		return fmt.Sprintf("failed to move %q: %v", r.Source, r.Err)
	}
}

// Move moves src into destDir, keeping its base name. Failures are
// reported in the Result rather than returned.
func Move(src, destDir string) Result {
	res := Result{
		Source:      src,
		Destination: filepath.Join(destDir, filepath.Base(src)),
	}

	if info, err := os.Stat(src); err != nil || info.IsDir() {
		res.Err = ErrSourceNotFound
		return res
	}
	if info, err := os.Stat(destDir); err != nil || !info.IsDir() {
		res.Err = ErrDestinationNotFound
		return res
	}
	if _, err := os.Lstat(res.Destination); err == nil {
		res.Err = ErrDestinationExists
		return res
	}

	err := os.Rename(src, res.Destination)
	if errors.Is(err, syscall.EXDEV) {
		err = copyAndRemove(src, res.Destination)
	}
	if err != nil {
		res.Err = fmt.Errorf("rename: %w", err)
	}

	return res
}

// copyAndRemove moves a file across filesystems. A partial copy is removed.
func copyAndRemove(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return err
	}

	_, err = io.Copy(out, in)
	if closeErr := out.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(dst)
		return err
	}

	in.Close()
	return os.Remove(src)
}
