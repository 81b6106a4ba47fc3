package parser

import (
	"strings"

	"golang.org/x/net/html"
)

// DefaultStorageHosts are the host fragments of known file-storage services.
var DefaultStorageHosts = []string{"drive.google.com", "box.com", "dropbox.com"}

var defaultClassifier = NewClassifier(nil)

// Classifier decides whether a URL points to a file-storage host.
// Matching is plain substring containment, so "evil-box.com.example" matches "box.com".
type Classifier struct {
	hosts []string
}

// NewClassifier creates a classifier for the given host fragments.
// An empty list selects DefaultStorageHosts.
func NewClassifier(hosts []string) *Classifier {
	c := &Classifier{}
	for _, h := range hosts {
		if h = strings.TrimSpace(h); h != "" {
			c.hosts = append(c.hosts, h)
		}
	}
	if len(c.hosts) == 0 {
		c.hosts = append(c.hosts, DefaultStorageHosts...)
	}
	return c
}

// Hosts returns the configured host fragments.
func (c *Classifier) Hosts() []string {
	return append([]string(nil), c.hosts...)
}

// IsFileStorageLink reports whether url contains one of the host fragments.
func (c *Classifier) IsFileStorageLink(url string) bool {
	for _, host := range c.hosts {
		if strings.Contains(url, host) {
			return true
		}
	}
	return false
}

// Filter returns the file-storage links in order.
func (c *Classifier) Filter(links []string) []string {
	kept := make([]string, 0, len(links))
	for _, link := range links {
		if c.IsFileStorageLink(link) {
			kept = append(kept, link)
		}
	}
	return kept
}

// IsFileStorageLink reports whether url points to a default file-storage host.
func IsFileStorageLink(url string) bool {
	return defaultClassifier.IsFileStorageLink(url)
}

// ExtractLinks returns the href of every anchor in body, in document order,
// skipping mailto: targets. Body may be HTML, plain text or garbage.
func ExtractLinks(body string) []string {
	links := make([]string, 0)
	z := html.NewTokenizer(strings.NewReader(body))

	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF or a tokenizer error, either way nothing more to read
			return links
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if !hasAttr || string(name) != "a" {
				continue
			}
			if href, ok := hrefAttr(z); ok && !isMailto(href) {
				links = append(links, href)
			}
		}
	}
}

func hrefAttr(z *html.Tokenizer) (string, bool) {
	for {
		key, val, more := z.TagAttr()
		if string(key) == "href" {
			return string(val), true
		}
		if !more {
			return "", false
		}
	}
}

func isMailto(link string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(link)), "mailto:")
}
