package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestExtractLinks tests anchor extraction from HTML and non-HTML bodies
func TestExtractLinks(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected []string
	}{
		{
			name:     "mailto excluded, order preserved",
			body:     `<a href="mailto:x@y.com">x</a><a href="https://dropbox.com/f">f</a>`,
			expected: []string{"https://dropbox.com/f"},
		},
		{
			name:     "duplicates preserved",
			body:     `<a href="https://a.example">1</a><p><a href="https://b.example">2</a></p><a href="https://a.example">3</a>`,
			expected: []string{"https://a.example", "https://b.example", "https://a.example"},
		},
		{
			name:     "uppercase tags and mailto scheme",
			body:     `<A HREF="MAILTO:boss@example.com">b</A><A HREF="https://box.com/s/1">s</A>`,
			expected: []string{"https://box.com/s/1"},
		},
		{
			name:     "anchor without href ignored",
			body:     `<a name="top">top</a><a id="x" href="https://x.example">x</a>`,
			expected: []string{"https://x.example"},
		},
		{
			name:     "entities in href decoded",
			body:     `<a href="https://drive.google.com/open?id=1&amp;usp=sharing">d</a>`,
			expected: []string{"https://drive.google.com/open?id=1&usp=sharing"},
		},
		{
			name:     "plain text has no links",
			body:     "see https://dropbox.com/f for details",
			expected: []string{},
		},
		{
			name:     "malformed markup",
			body:     `<div><a href="https://dropbox.com/ok">ok<a href=`,
			expected: []string{"https://dropbox.com/ok"},
		},
		{
			name:     "empty",
			body:     "",
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractLinks(tt.body))
		})
	}
}

// TestIsFileStorageLink tests the default host allow-list
func TestIsFileStorageLink(t *testing.T) {
	tests := []struct {
		url      string
		expected bool
	}{
		{"https://drive.google.com/file/d/abc", true},
		{"https://www.dropbox.com/s/abc/file.xlsx?dl=0", true},
		{"https://app.box.com/s/abc", true},
		{"https://example.com", false},
		{"https://docs.google.com/spreadsheets/d/abc", false},
		{"", false},
		// Substring matching over-matches unrelated hosts
		{"https://evil-box.com.attacker.net/x", true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsFileStorageLink(tt.url))
		})
	}
}

// TestClassifier tests custom host lists and filtering
func TestClassifier(t *testing.T) {
	c := NewClassifier([]string{" sharepoint.com ", ""})
	assert.Equal(t, []string{"sharepoint.com"}, c.Hosts())
	assert.True(t, c.IsFileStorageLink("https://org.sharepoint.com/x"))
	assert.False(t, c.IsFileStorageLink("https://dropbox.com/x"))

	defaults := NewClassifier(nil)
	assert.Equal(t, DefaultStorageHosts, defaults.Hosts())

	links := []string{"https://example.com", "https://dropbox.com/a", "https://drive.google.com/b"}
	assert.Equal(t, []string{"https://dropbox.com/a", "https://drive.google.com/b"}, defaults.Filter(links))
	assert.Equal(t, []string{}, defaults.Filter(nil))
}
