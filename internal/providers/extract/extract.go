// Package extract holds helpers shared by the retailer adapters.
package extract

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// QueryPlaceholder is replaced by the escaped query in search URL templates
const QueryPlaceholder = "{query}"

var percentPattern = regexp.MustCompile(`(\d{1,3})\s*%`)

// SearchURL expands a search URL template for query
func SearchURL(template, query string) string {
	return strings.ReplaceAll(template, QueryPlaceholder, url.QueryEscape(strings.TrimSpace(query)))
}

// ResolveURL resolves href against base; absolute hrefs are returned unchanged
func ResolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	if ref.IsAbs() {
		return href
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	return b.ResolveReference(ref).String()
}

// Discount extracts a percentage such as "-20%" or "20 %". Values outside
// 0..100 yield nil.
func Discount(text string) *int {
	m := percentPattern.FindStringSubmatch(text)
	if m == nil {
		text = strings.TrimSpace(text)
		if text == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimPrefix(text, "-"))
		if err != nil {
			return nil
		}
		return bounded(n)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return bounded(n)
}

func bounded(n int) *int {
	if n < 0 || n > 100 {
		return nil
	}
	return &n
}

// Path splits a dot separated path into keys. An empty path has no keys.
func Path(p string) []string {
	if p == "" {
		return nil
	}
	return strings.Split(p, ".")
}
