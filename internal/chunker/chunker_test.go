package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkTextEmptyInput(t *testing.T) {
	c := New(1000, 200)

	assert.Empty(t, c.ChunkText(""))
	assert.Empty(t, c.ChunkText("   \n\n  \n  "))
}

func TestChunkTextSingleParagraph(t *testing.T) {
	c := New(1000, 200)

	chunks := c.ChunkText("Short paragraph.")
	require.Len(t, chunks, 1)
	assert.Equal(t, "Short paragraph.", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, len(chunks[0].Text), chunks[0].CharCount)
}

func TestChunkTextAccumulatesParagraphs(t *testing.T) {
	c := New(100, 20)

	text := "First paragraph here.\n\nSecond paragraph here.\n\nThird one."
	chunks := c.ChunkText(text)

	require.Len(t, chunks, 1)
	assert.Equal(t, "First paragraph here.\n\nSecond paragraph here.\n\nThird one.", chunks[0].Text)
}

func TestChunkTextFlushesWithOverlap(t *testing.T) {
	c := New(50, 10)

	p1 := strings.Repeat("a", 40)
	p2 := strings.Repeat("b", 40)
	chunks := c.ChunkText(p1 + "\n\n" + p2)

	require.Len(t, chunks, 2)
	assert.Equal(t, p1, chunks[0].Text)

	// Second chunk starts with the 10-character tail of the first.
	assert.True(t, strings.HasPrefix(chunks[1].Text, strings.Repeat("a", 10)))
	assert.True(t, strings.HasSuffix(chunks[1].Text, p2))
}

func TestChunkTextDenseIndices(t *testing.T) {
	c := New(30, 5)

	var parts []string
	for i := 0; i < 10; i++ {
		parts = append(parts, strings.Repeat("x", 25))
	}
	chunks := c.ChunkText(strings.Join(parts, "\n\n"))

	require.NotEmpty(t, chunks)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
		assert.Equal(t, len(ch.Text), ch.CharCount)
	}
}

func TestChunkTextOversizedParagraphSplitsOnSentences(t *testing.T) {
	c := New(60, 10)

	para := "This is the first sentence of the paragraph. Here comes the second sentence! And a third one follows? Finally the fourth."
	chunks := c.ChunkText(para)

	require.Greater(t, len(chunks), 1)
	for _, ch := range chunks {
		// Bounded by chunk size plus one sentence.
		assert.LessOrEqual(t, ch.CharCount, 60+len("This is the first sentence of the paragraph."))
		assert.NotEmpty(t, strings.TrimSpace(ch.Text))
	}
	assert.True(t, strings.HasPrefix(chunks[0].Text, "This is the first sentence"))
}

func TestChunkTextSingleGiantSentence(t *testing.T) {
	c := New(50, 10)

	sentence := strings.Repeat("word ", 40) + "end"
	chunks := c.ChunkText(sentence)

	// No sentence boundary to cut at, so the sentence is emitted whole.
	require.Len(t, chunks, 1)
	assert.Equal(t, strings.TrimSpace(sentence), chunks[0].Text)
}

func TestChunkTextCoversAllContent(t *testing.T) {
	c := New(80, 15)

	paragraphs := []string{
		"Data retention periods must be documented.",
		"Access to personal data is restricted to authorized staff.",
		"Encryption at rest is mandatory for all archives.",
		"Annual audits verify compliance with this policy.",
	}
	chunks := c.ChunkText(strings.Join(paragraphs, "\n\n"))

	joined := ""
	for _, ch := range chunks {
		joined += ch.Text + "\n\n"
	}
	for _, p := range paragraphs {
		assert.Contains(t, joined, p)
	}
}

func TestChunkSectionsTagsAndGlobalIndices(t *testing.T) {
	c := New(50, 10)

	sections := []Section{
		{Title: "Scope", Level: 1, Text: strings.Repeat("a", 40) + "\n\n" + strings.Repeat("b", 40)},
		{Title: "Definitions", Level: 2, Text: "Short definition text."},
	}
	chunks := c.ChunkSections(sections)

	require.GreaterOrEqual(t, len(chunks), 3)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
	}

	last := chunks[len(chunks)-1]
	assert.Equal(t, "Definitions", last.SectionTitle)
	assert.Equal(t, 2, last.SectionLevel)
	assert.Equal(t, "Scope", chunks[0].SectionTitle)
	assert.Equal(t, 1, chunks[0].SectionLevel)
}

func TestChunkSectionsSkipsEmptySections(t *testing.T) {
	c := New(100, 20)

	chunks := c.ChunkSections([]Section{
		{Title: "Empty", Level: 1, Text: "   "},
		{Title: "Body", Level: 1, Text: "Actual content."},
	})

	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, "Body", chunks[0].SectionTitle)
}
