package chunker

import (
	"regexp"
	"strings"
)

// Chunk is one bounded text window carved out of a document.
type Chunk struct {
	Text         string `json:"text"`
	Index        int    `json:"index"`
	CharCount    int    `json:"char_count"`
	SectionTitle string `json:"section_title,omitempty"`
	SectionLevel int    `json:"section_level,omitempty"`
	PageNumber   int    `json:"page_number,omitempty"`
}

// Section is an explicitly delimited part of a structured document.
type Section struct {
	Title string
	Level int
	Text  string
}

// Chunker splits text into overlapping chunks bounded by a target character
// size. Paragraph boundaries are respected; paragraphs longer than the target
// size are split at sentence boundaries instead.
type Chunker struct {
	chunkSize      int
	chunkOverlap   int
	paragraphRegex *regexp.Regexp
	sentenceRegex  *regexp.Regexp
}

func New(chunkSize, chunkOverlap int) *Chunker {
	return &Chunker{
		chunkSize:      chunkSize,
		chunkOverlap:   chunkOverlap,
		paragraphRegex: regexp.MustCompile(`\n\s*\n+`),
		sentenceRegex:  regexp.MustCompile(`([.!?]+)(\s+)`),
	}
}

// ChunkText splits plain text into chunks. Empty input yields no chunks.
func (c *Chunker) ChunkText(text string) []Chunk {
	chunks, _ := c.chunkInto(text, nil, 0)
	return chunks
}

// ChunkSections runs the same algorithm per section, tagging each emitted
// chunk with the section title and level. Chunk indices stay globally
// monotonic across sections.
func (c *Chunker) ChunkSections(sections []Section) []Chunk {
	var all []Chunk
	next := 0
	for _, sec := range sections {
		chunks, n := c.chunkInto(sec.Text, &sec, next)
		all = append(all, chunks...)
		next = n
	}
	return all
}

// chunkInto is the greedy accumulator shared by both entry points. It returns
// the emitted chunks and the next free chunk index.
func (c *Chunker) chunkInto(text string, sec *Section, startIndex int) ([]Chunk, int) {
	paragraphs := c.splitParagraphs(text)
	if len(paragraphs) == 0 {
		return nil, startIndex
	}

	var chunks []Chunk
	index := startIndex
	acc := ""

	emit := func(t string) {
		t = strings.TrimSpace(t)
		if t == "" {
			return
		}
		ch := Chunk{Text: t, Index: index, CharCount: len(t)}
		if sec != nil {
			ch.SectionTitle = sec.Title
			ch.SectionLevel = sec.Level
		}
		chunks = append(chunks, ch)
		index++
	}

	for _, paragraph := range paragraphs {
		switch {
		case len(paragraph) > c.chunkSize:
			// Oversized paragraph: flush whatever accumulated, then split
			// the paragraph itself at sentence boundaries.
			if acc != "" {
				emit(acc)
				acc = ""
			}
			for _, piece := range c.splitBySentences(paragraph) {
				emit(piece)
			}

		case acc != "" && len(acc)+len(paragraph) > c.chunkSize:
			emit(acc)
			acc = c.overlapTail(acc) + "\n\n" + paragraph

		case acc == "":
			acc = paragraph

		default:
			acc += "\n\n" + paragraph
		}
	}

	if acc != "" {
		emit(acc)
	}

	return chunks, index
}

// splitBySentences applies the greedy+overlap policy at sentence granularity.
// A single sentence longer than the chunk size is emitted whole.
func (c *Chunker) splitBySentences(paragraph string) []string {
	sentences := c.splitSentences(paragraph)

	var pieces []string
	acc := ""
	for _, s := range sentences {
		switch {
		case acc != "" && len(acc)+len(s) > c.chunkSize:
			pieces = append(pieces, acc)
			acc = c.overlapTail(acc) + " " + s
		case acc == "":
			acc = s
		default:
			acc += " " + s
		}
	}
	if acc != "" {
		pieces = append(pieces, acc)
	}
	return pieces
}

// splitParagraphs splits on runs of blank lines, trimming and dropping
// empty entries.
func (c *Chunker) splitParagraphs(text string) []string {
	parts := c.paragraphRegex.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitSentences cuts after runs of sentence punctuation followed by
// whitespace, keeping the punctuation with the preceding sentence.
func (c *Chunker) splitSentences(text string) []string {
	locs := c.sentenceRegex.FindAllStringSubmatchIndex(text, -1)

	var out []string
	prev := 0
	for _, loc := range locs {
		// loc[3] ends the punctuation group, loc[5] ends the whitespace.
		s := strings.TrimSpace(text[prev:loc[3]])
		if s != "" {
			out = append(out, s)
		}
		prev = loc[5]
	}
	if prev < len(text) {
		if s := strings.TrimSpace(text[prev:]); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// overlapTail returns the last chunkOverlap characters of the flushed text.
func (c *Chunker) overlapTail(text string) string {
	if c.chunkOverlap <= 0 {
		return ""
	}
	if len(text) <= c.chunkOverlap {
		return text
	}
	return text[len(text)-c.chunkOverlap:]
}
