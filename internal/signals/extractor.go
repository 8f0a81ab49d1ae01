// Package signals extracts and stores marker comments and undocumented exports.
package signals

import (
	"path"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	markerContextBefore = 2
	markerContextAfter  = 2
	docsContextBefore   = 1
	docsContextAfter    = 3
	docsMinLineLength   = 20
	docsSnippetMax      = 100
)

var (
	markerPattern = regexp.MustCompile(`(?i)(//|#|/\*)\s*(TODO|FIXME|HACK|XXX)\s*[:\-]?(.*)$`)
	exportPattern = regexp.MustCompile(`^\s*(export\s+(async\s+)?(function|const|class)|public\s+)`)

	docsExtensions = map[string]struct{}{".ts": {}, ".tsx": {}, ".js": {}, ".jsx": {}}
)

// Extractor finds signals in file content. It is pure and safe for concurrent use.
type Extractor struct{}

// NewExtractor returns an Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract returns every signal in content. Returned signals carry no ID, repository or
// timestamp; the caller assigns those when persisting.
func (e *Extractor) Extract(content, filePath string) []Signal {
	lines := splitLines(content)
	var out []Signal

	for i, line := range lines {
		m := markerPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		out = append(out, Signal{
			Type:       strings.ToUpper(m[2]) + "_COMMENT",
			FilePath:   filePath,
			LineNumber: i + 1,
			Snippet:    strings.TrimSpace(line),
			Context:    window(lines, i, markerContextBefore, markerContextAfter),
		})
	}

	if _, ok := docsExtensions[path.Ext(filePath)]; !ok {
		return out
	}
	for i, line := range lines {
		if !exportPattern.MatchString(line) || documented(lines, i) {
			continue
		}
		if utf8.RuneCountInString(line) <= docsMinLineLength {
			continue
		}
		out = append(out, Signal{
			Type:       TypeMissingDocs,
			FilePath:   filePath,
			LineNumber: i + 1,
			Snippet:    clip(strings.TrimSpace(line), docsSnippetMax),
			Context:    window(lines, i, docsContextBefore, docsContextAfter),
		})
	}
	return out
}

func documented(lines []string, i int) bool {
	if i == 0 {
		return false
	}
	prev := strings.TrimSpace(lines[i-1])
	return strings.HasPrefix(prev, "/**") || strings.HasSuffix(prev, "*/")
}

func splitLines(content string) []string {
	lines := strings.Split(content, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// window joins lines[i-before .. i+after], clamped to the file.
func window(lines []string, i, before, after int) string {
	start := max(0, i-before)
	end := min(len(lines)-1, i+after)
	return strings.Join(lines[start:end+1], "\n")
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
