package ingestion_engine

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Chunker defaults: fragments target ~1000 characters, consecutive fragments
// share a ~200 character tail, and anything under 50 characters after
// trimming is dropped.
const (
	DefaultTargetSize = 1000
	DefaultOverlap    = 200
	DefaultMinLength  = 50
)

var (
	sentenceRe = regexp.MustCompile(`[^.!?]+[.!?]+['")\]]*\s*`)
	pageRe     = regexp.MustCompile(`(?i)\bpage\s+(\d+)\b`)
)

// Fragment is one bounded slice of a document's extracted text, the unit of
// embedding and retrieval. Indices are contiguous over surviving fragments.
type Fragment struct {
	Index        int
	Content      string
	PageNumber   *int
	SectionTitle string
}

// Chunker splits extracted text into overlapping, size-bounded fragments.
// Splitting is deterministic: identical input always yields the identical
// ordered fragment sequence, which is what makes reprocessing idempotent.
type Chunker struct {
	targetSize int
	overlap    int
	minLength  int
}

func NewChunker(targetSize, overlap, minLength int) *Chunker {
	if targetSize <= 0 {
		targetSize = DefaultTargetSize
	}
	if overlap < 0 || overlap >= targetSize {
		overlap = DefaultOverlap
	}
	if minLength <= 0 {
		minLength = DefaultMinLength
	}
	return &Chunker{targetSize: targetSize, overlap: overlap, minLength: minLength}
}

func NewDefaultChunker() *Chunker {
	return NewChunker(DefaultTargetSize, DefaultOverlap, DefaultMinLength)
}

// Split breaks text on sentence boundaries and accumulates sentences until
// adding the next one would exceed the target size. When a fragment closes,
// the next one is seeded with the trailing overlap characters of the closed
// fragment. Fragments shorter than the minimum after trimming are dropped
// and do not consume an index.
func (c *Chunker) Split(text string) []Fragment {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var raw []string
	var cur strings.Builder
	for _, sentence := range sentences {
		if cur.Len() > 0 && cur.Len()+len(sentence)+1 > c.targetSize {
			closed := cur.String()
			raw = append(raw, closed)
			cur.Reset()
			if seed := tailRunes(closed, c.overlap); seed != "" {
				cur.WriteString(seed)
				cur.WriteByte(' ')
			}
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(sentence)
	}
	if cur.Len() > 0 {
		raw = append(raw, cur.String())
	}

	var out []Fragment
	for _, content := range raw {
		content = strings.TrimSpace(content)
		if len(content) < c.minLength {
			continue
		}
		frag := Fragment{
			Index:        len(out),
			Content:      content,
			PageNumber:   extractPageNumber(content),
			SectionTitle: extractSectionTitle(content),
		}
		out = append(out, frag)
	}
	return out
}

// splitSentences yields punctuation-terminated spans plus any unterminated
// tail, all trimmed, empties removed.
func splitSentences(text string) []string {
	matches := sentenceRe.FindAllStringIndex(text, -1)
	var out []string
	last := 0
	for _, m := range matches {
		if s := strings.TrimSpace(text[m[0]:m[1]]); s != "" {
			out = append(out, s)
		}
		last = m[1]
	}
	if tail := strings.TrimSpace(text[last:]); tail != "" {
		out = append(out, tail)
	}
	return out
}

// tailRunes returns the trailing n runes of s.
func tailRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(strings.TrimSpace(s))
	if len(runes) <= n {
		return string(runes)
	}
	return string(runes[len(runes)-n:])
}

// extractPageNumber looks for a "page N" marker anywhere in the fragment.
// Best effort; absence is not an error.
func extractPageNumber(content string) *int {
	m := pageRe.FindStringSubmatch(content)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &n
}

// extractSectionTitle scans the first few lines for a short, capitalized
// line that is not sentence-terminated, the usual shape of a heading.
func extractSectionTitle(content string) string {
	lines := strings.Split(content, "\n")
	limit := 5
	if len(lines) < limit {
		limit = len(lines)
	}
	for _, line := range lines[:limit] {
		line = strings.TrimSpace(line)
		if len(line) < 3 || len(line) > 80 {
			continue
		}
		if strings.HasSuffix(line, ".") || strings.HasSuffix(line, "!") || strings.HasSuffix(line, "?") {
			continue
		}
		runes := []rune(line)
		if unicode.IsUpper(runes[0]) {
			return line
		}
	}
	return ""
}
