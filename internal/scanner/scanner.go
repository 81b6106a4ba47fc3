package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Scanner lists the .eml files waiting in a directory
type Scanner struct {
	rootPath string
}

// NewScanner creates a new scanner for the given root path
func NewScanner(rootPath string) *Scanner {
	return &Scanner{
		rootPath: rootPath,
	}
}

// GetRootPath returns the directory being scanned
func (s *Scanner) GetRootPath() string {
	return s.rootPath
}

// Scan returns the paths of the .eml files directly inside the root path,
// sorted by name. Subdirectories are not descended into.
func (s *Scanner) Scan() ([]string, error) {
	entries, err := os.ReadDir(s.rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to scan directory: %w", err)
	}

	var emlFiles []string
	for _, entry := range entries {
		// Skip directories
		if entry.IsDir() {
			continue
		}
		if isEML(entry.Name()) {
			emlFiles = append(emlFiles, filepath.Join(s.rootPath, entry.Name()))
		}
	}
	sort.Strings(emlFiles)

	return emlFiles, nil
}

// CountEMLFiles counts the .eml files waiting in the root path
func (s *Scanner) CountEMLFiles() (int, error) {
	files, err := s.Scan()
	if err != nil {
		return 0, fmt.Errorf("failed to count files: %w", err)
	}
	return len(files), nil
}

func isEML(name string) bool {
	return strings.ToLower(filepath.Ext(name)) == ".eml"
}
