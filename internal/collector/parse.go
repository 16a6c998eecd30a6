package collector

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// tagAttrs is the (tag, attributes) extraction table from spec §4.3.5.
// Every listed attribute on every matched element is a candidate link.
var tagAttrs = map[string][]string{
	"img":    {"src", "srcset"},
	"script": {"src"},
	"link":   {"href"},
	"video":  {"src", "poster"},
	"audio":  {"src"},
	"source": {"src", "srcset"},
	"object": {"data"},
	"embed":  {"src"},
	"iframe": {"src"},
	"a":      {"href"},
}

// skipSchemes lists URL prefixes that are never followed.
var skipSchemes = []string{"data:", "javascript:", "#", "mailto:"}

// cssURLPattern matches CSS url(...) expressions, with or without quotes.
var cssURLPattern = regexp.MustCompile(`url\(\s*(['"]?)([^'")]+)\1\s*\)`)

// extractHTMLLinks parses html (already decoded bytes) and returns every
// candidate link attribute value found via the tag/attribute table plus
// inline style url(...) scans, unresolved against the source URL.
func extractHTMLLinks(html []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, err
	}

	var out []string
	for tag, attrs := range tagAttrs {
		doc.Find(tag).Each(func(_ int, sel *goquery.Selection) {
			for _, attr := range attrs {
				val, ok := sel.Attr(attr)
				if !ok || val == "" {
					continue
				}
				if attr == "srcset" {
					out = append(out, parseSrcset(val)...)
					continue
				}
				out = append(out, val)
			}
		})
	}

	doc.Find("[style]").Each(func(_ int, sel *goquery.Selection) {
		style, _ := sel.Attr("style")
		out = append(out, extractCSSURLs(style)...)
	})

	return filterCandidates(out), nil
}

// parseSrcset splits a srcset attribute value on commas and takes the
// first whitespace-delimited token of each candidate.
func parseSrcset(val string) []string {
	var out []string
	for _, candidate := range strings.Split(val, ",") {
		fields := strings.Fields(strings.TrimSpace(candidate))
		if len(fields) > 0 {
			out = append(out, fields[0])
		}
	}
	return out
}

// extractCSSURLs scans css text for url(...) expressions and returns the
// unquoted, unfiltered URL strings found.
func extractCSSURLs(css string) []string {
	matches := cssURLPattern.FindAllStringSubmatch(css, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.TrimSpace(m[2]))
	}
	return filterCandidates(out)
}

// filterCandidates drops empty values and any URL starting with a
// skipped scheme.
func filterCandidates(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if hasSkippedScheme(v) {
			continue
		}
		out = append(out, v)
	}
	return out
}

func hasSkippedScheme(v string) bool {
	lower := strings.ToLower(v)
	for _, prefix := range skipSchemes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}
