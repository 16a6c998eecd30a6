package collector

import (
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"path"
	"strings"

	"github.com/use-agent/webgrabber/models"
)

// maxSegmentLength is the visible-character limit past which a path
// segment is replaced by a hash, per the save-path derivation rule.
const maxSegmentLength = 50

// unsafeChars is the set of characters the derived path must never
// contain, matching common filesystem reserved characters.
const unsafeChars = `<>:"|?*`

// extensionForKind maps a Kind to the fallback extension appended when a
// filename has none.
var extensionForKind = map[models.Kind]string{
	models.KindHTML:  ".html",
	models.KindCSS:   ".css",
	models.KindJS:    ".js",
	models.KindImage: ".img",
	models.KindFont:  ".font",
}

// DerivePath computes the output-root-relative save path for rawURL,
// following spec §4.3.4: strip query/fragment, percent-decode, shorten
// any segment longer than maxSegmentLength with a SHA-1 hash, and append
// a kind-derived extension when the final filename has none.
func DerivePath(rawURL string, kind models.Kind) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	host := strings.ReplaceAll(u.Host, ":", "_")

	decodedPath, err := url.PathUnescape(u.EscapedPath())
	if err != nil {
		decodedPath = u.EscapedPath()
	}

	segments := strings.Split(strings.Trim(decodedPath, "/"), "/")
	if len(segments) == 1 && segments[0] == "" {
		segments = nil
	}

	var filename string
	var dirSegments []string
	if len(segments) == 0 {
		filename = "index.html"
	} else {
		last := segments[len(segments)-1]
		if strings.Contains(last, ".") {
			filename = last
			dirSegments = segments[:len(segments)-1]
		} else {
			filename = "index.html"
			dirSegments = segments
		}
	}

	shortened := make([]string, 0, len(dirSegments))
	for _, s := range dirSegments {
		shortened = append(shortened, shortenSegment(sanitizeFilesystemChars(s)))
	}

	ext := path.Ext(filename)
	base := strings.TrimSuffix(filename, ext)
	filename = shortenSegment(sanitizeFilesystemChars(base)) + ext

	if path.Ext(filename) == "" {
		if fallback, ok := extensionForKind[kind]; ok {
			filename += fallback
		}
	}

	parts := append([]string{host}, shortened...)
	parts = append(parts, filename)
	return path.Join(parts...), nil
}

// shortenSegment replaces s with the hex encoding of the first 8 bytes of
// SHA-1(s) when s is longer than maxSegmentLength visible characters.
func shortenSegment(s string) string {
	if len(s) <= maxSegmentLength {
		return s
	}
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:8])
}

// sanitizeFilesystemChars strips any character in unsafeChars from s,
// defense for path segments derived from attacker-controlled URLs that
// slip past the percent-decoding step (e.g. already-decoded in the
// query string an operator copy-pasted).
func sanitizeFilesystemChars(s string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(unsafeChars, r) {
			return -1
		}
		return r
	}, s)
}
