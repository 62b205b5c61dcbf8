package ingestion_engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func repeatedSentences(n int) string {
	sentence := "The quick brown fox jumps over the lazy sleeping dog again."
	parts := make([]string, n)
	for i := range parts {
		parts[i] = sentence
	}
	return strings.Join(parts, " ")
}

func TestSplitDeterministic(t *testing.T) {
	c := NewDefaultChunker()
	text := repeatedSentences(40)

	first := c.Split(text)
	second := c.Split(text)

	require.NotEmpty(t, first)
	assert.Equal(t, first, second)
}

func TestSplitIndicesContiguous(t *testing.T) {
	c := NewDefaultChunker()
	frags := c.Split(repeatedSentences(60))

	require.Greater(t, len(frags), 1)
	for i, f := range frags {
		assert.Equal(t, i, f.Index)
	}
}

func TestSplitRespectsTargetSize(t *testing.T) {
	c := NewDefaultChunker()
	frags := c.Split(repeatedSentences(60))

	require.NotEmpty(t, frags)
	for _, f := range frags {
		// A fragment may exceed the target by at most one sentence.
		assert.LessOrEqual(t, len(f.Content), DefaultTargetSize+100)
	}
}

func TestSplitDropsShortFragments(t *testing.T) {
	c := NewDefaultChunker()

	assert.Empty(t, c.Split("A. B. C."))
	assert.Empty(t, c.Split(""))
	assert.Empty(t, c.Split("   \n\t  "))
}

func TestSplitOverlapSeedsNextFragment(t *testing.T) {
	c := NewDefaultChunker()
	frags := c.Split(repeatedSentences(40))

	require.Greater(t, len(frags), 1)
	seed := tailRunes(frags[0].Content, DefaultOverlap)
	assert.True(t, strings.HasPrefix(frags[1].Content, seed),
		"second fragment should start with the tail of the first")
}

func TestSplitKeepsUnterminatedTail(t *testing.T) {
	c := NewChunker(1000, 200, 10)
	frags := c.Split("A complete sentence ends here. and then trailing words with no period")

	require.Len(t, frags, 1)
	assert.Contains(t, frags[0].Content, "trailing words with no period")
}

func TestExtractSectionTitle(t *testing.T) {
	c := NewDefaultChunker()
	text := "Executive Summary\nThis report covers the quarterly results in considerable detail. " +
		"Revenue grew in every segment we track across all regions."

	frags := c.Split(text)
	require.Len(t, frags, 1)
	assert.Equal(t, "Executive Summary", frags[0].SectionTitle)
}

func TestExtractSectionTitleIgnoresSentences(t *testing.T) {
	assert.Equal(t, "", extractSectionTitle("This line ends with a period.\nMore text follows here."))
	assert.Equal(t, "", extractSectionTitle("lowercase heading\nMore text follows here after that."))
	assert.Equal(t, "", extractSectionTitle("Ab\nToo short to be a heading line."))
}

func TestExtractPageNumber(t *testing.T) {
	c := NewDefaultChunker()
	text := "As noted on page 12 of the appendix, the figures were restated carefully for clarity."

	frags := c.Split(text)
	require.Len(t, frags, 1)
	require.NotNil(t, frags[0].PageNumber)
	assert.Equal(t, 12, *frags[0].PageNumber)
}

func TestExtractPageNumberAbsent(t *testing.T) {
	assert.Nil(t, extractPageNumber("No marker of that kind appears anywhere in this fragment."))
}

func TestNewChunkerClampsInvalidSettings(t *testing.T) {
	c := NewChunker(-1, -5, 0)
	assert.Equal(t, DefaultTargetSize, c.targetSize)
	assert.Equal(t, DefaultOverlap, c.overlap)
	assert.Equal(t, DefaultMinLength, c.minLength)

	// Overlap must stay below the target size.
	c = NewChunker(100, 100, 10)
	assert.Equal(t, DefaultOverlap, c.overlap)
}
