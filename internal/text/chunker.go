package text

import (
	"regexp"
	"strings"

	"helpdesk/backend/internal/tokens"
)

const (
	// MaxChunkTokens is the upper budget for a single chunk.
	MaxChunkTokens = 500
	// MinChunkTokens is the floor below which a chunk carries too little
	// signal to be a useful retrieval unit and is discarded.
	MinChunkTokens = 100
)

// Chunk is one bounded span of a document, not yet persisted or embedded.
// SectionTitle records the heading hierarchy ("Parent > Child"); empty means
// the document had no headings.
type Chunk struct {
	SectionTitle string
	Content      string
	TokenCount   int
}

var (
	sectionRe    = regexp.MustCompile(`(?m)^## `)
	subSectionRe = regexp.MustCompile(`(?m)^### `)
	headingRe    = regexp.MustCompile(`(?m)^## (.+)$`)
	subHeadingRe = regexp.MustCompile(`(?m)^### (.+)$`)
	paragraphRe  = regexp.MustCompile(`\n\n+`)
)

// ChunkDocument splits a heading-delimited document into chunks between
// minTokens and maxTokens. Sections that fit the budget become one chunk;
// oversized sections split by the next heading level, then by paragraphs.
// Every chunk content is prefixed with document/section context so it stays
// interpretable when read in isolation. Chunks below minTokens (typically a
// bare heading with no body) are dropped. Chunking is greedy, single-pass
// and non-overlapping.
func ChunkDocument(title, content string, maxTokens, minTokens int) []Chunk {
	var chunks []Chunk

	for _, section := range splitAt(content, sectionRe) {
		if strings.TrimSpace(section) == "" {
			continue
		}

		sectionTitle := ""
		if m := headingRe.FindStringSubmatch(section); m != nil {
			sectionTitle = strings.TrimSpace(m[1])
		}

		tokenCount := tokens.Estimate(section)
		if tokenCount <= maxTokens {
			chunks = append(chunks, newChunk(title, sectionTitle, section, tokenCount))
			continue
		}

		// Section over budget: split by ### headings, then by paragraphs.
		for _, sub := range splitAt(section, subSectionRe) {
			if strings.TrimSpace(sub) == "" {
				continue
			}

			subTitle := sectionTitle
			if m := subHeadingRe.FindStringSubmatch(sub); m != nil {
				if sectionTitle != "" {
					subTitle = sectionTitle + " > " + strings.TrimSpace(m[1])
				} else {
					subTitle = strings.TrimSpace(m[1])
				}
			}

			subTokens := tokens.Estimate(sub)
			if subTokens <= maxTokens {
				chunks = append(chunks, newChunk(title, subTitle, sub, subTokens))
				continue
			}

			chunks = append(chunks, chunkParagraphs(title, subTitle, sub, maxTokens)...)
		}
	}

	// Drop chunks under the floor rather than storing them.
	filtered := make([]Chunk, 0, len(chunks))
	for _, c := range chunks {
		if c.TokenCount >= minTokens {
			filtered = append(filtered, c)
		}
	}
	return filtered
}

// chunkParagraphs accumulates paragraphs into a running buffer, flushing
// whenever the next paragraph would push the buffer over the budget.
func chunkParagraphs(title, sectionTitle, section string, maxTokens int) []Chunk {
	var chunks []Chunk
	var buf strings.Builder
	bufTokens := 0

	flush := func() {
		if strings.TrimSpace(buf.String()) != "" {
			chunks = append(chunks, newChunk(title, sectionTitle, buf.String(), bufTokens))
		}
		buf.Reset()
		bufTokens = 0
	}

	for _, para := range paragraphRe.Split(section, -1) {
		paraTokens := tokens.Estimate(para)
		if bufTokens+paraTokens > maxTokens && buf.Len() > 0 {
			flush()
		}
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(para)
		bufTokens += paraTokens
	}
	flush()

	return chunks
}

// newChunk prefixes the raw span with document and section context so the
// chunk is self-describing without its siblings. The token count reflects the
// raw span, matching what the budget was enforced against.
func newChunk(title, sectionTitle, raw string, tokenCount int) Chunk {
	var b strings.Builder
	b.WriteString("Document: ")
	b.WriteString(title)
	b.WriteString("\n")
	if sectionTitle != "" {
		b.WriteString("Section: ")
		b.WriteString(sectionTitle)
		b.WriteString("\n\n")
	}
	b.WriteString(strings.TrimSpace(raw))

	return Chunk{
		SectionTitle: sectionTitle,
		Content:      b.String(),
		TokenCount:   tokenCount,
	}
}

// splitAt slices text at every match of re, keeping the match with the piece
// that follows it. A document with no matches comes back as one piece.
func splitAt(text string, re *regexp.Regexp) []string {
	indices := re.FindAllStringIndex(text, -1)

	var parts []string
	last := 0
	for _, loc := range indices {
		if loc[0] > last {
			parts = append(parts, text[last:loc[0]])
		}
		last = loc[0]
	}
	if last < len(text) {
		parts = append(parts, text[last:])
	}
	return parts
}
