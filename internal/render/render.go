// Package render implements the optional readable-export pass (C12): for
// every captured HTML resource, run Mozilla Readability to find the main
// content, then convert it to Markdown, and write the result as a
// sibling .md file next to the original.
package render

import (
	"log/slog"
	"net/url"
	"os"
	"strings"

	readability "github.com/go-shiori/go-readability"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"

	"github.com/use-agent/webgrabber/models"
)

// minContentLength is the minimum TextContent length (in characters) for
// readability output to be trusted; below this we assume the algorithm
// failed to find the article and skip the file rather than write noise.
const minContentLength = 50

func newMarkdownConverter() *converter.Converter {
	return converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)
}

// Export walks every HTML resource in resources, extracts its readable
// content, converts it to Markdown, and writes it to outputRoot next to
// the original file with a .md suffix. It returns the number of files
// written; per-file extraction or conversion failures are logged and
// skipped rather than aborting the whole pass.
func Export(outputRoot string, resources models.ResourceMap) int {
	conv := newMarkdownConverter()
	written := 0

	for rawURL, res := range resources {
		if res.Kind != models.KindHTML || res.SavePath == "" {
			continue
		}

		if exportOne(conv, outputRoot, rawURL, res) {
			written++
		}
	}
	return written
}

func exportOne(conv *converter.Converter, outputRoot, rawURL string, res models.Resource) bool {
	fullPath := outputRoot + string(os.PathSeparator) + res.SavePath

	htmlBytes, err := os.ReadFile(fullPath)
	if err != nil {
		slog.Warn("render: failed to read saved HTML", "url", rawURL, "error", err)
		return false
	}

	article, ok := extractContent(string(htmlBytes), rawURL)
	if !ok {
		slog.Warn("render: readability extraction skipped, no main content found", "url", rawURL)
		return false
	}

	domain := ""
	if u, perr := url.Parse(rawURL); perr == nil {
		domain = u.Hostname()
	}

	md, err := conv.ConvertString(article.Content, converter.WithDomain(domain))
	if err != nil {
		slog.Warn("render: markdown conversion failed", "url", rawURL, "error", err)
		return false
	}

	mdPath := fullPath + ".md"
	if err := os.WriteFile(mdPath, []byte(md), 0o644); err != nil {
		slog.Warn("render: failed to write markdown", "url", rawURL, "error", err)
		return false
	}
	return true
}

// extractContent runs Readability over rawHTML, falling back to false
// (caller skips the file) when parsing fails or the extracted content is
// too short to trust.
func extractContent(rawHTML, sourceURL string) (readability.Article, bool) {
	parsedURL, err := url.Parse(sourceURL)
	if err != nil {
		return readability.Article{}, false
	}

	article, err := readability.FromReader(strings.NewReader(rawHTML), parsedURL)
	if err != nil {
		return readability.Article{}, false
	}
	if len(strings.TrimSpace(article.TextContent)) < minContentLength {
		return readability.Article{}, false
	}
	return article, true
}
