package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const longSentence = "The typewriter was invented in the nineteenth century and changed the way people wrote letters, books, and records of all kinds forever."

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain ascii untouched", "hello world.", "hello world."},
		{"smart quotes downgraded", "“hello” and ‘bye’", `"hello" and 'bye'`},
		{"dashes downgraded", "well–known — indeed", "well-known - indeed"},
		{"ellipsis expanded", "wait…", "wait..."},
		{"non-ascii dropped", "naïve café résumé", "nave caf rsum"},
		{"whitespace collapsed", "a\t b\n  c", "a b c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.in))
		})
	}
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("One day. Another day! A question? The end")
	assert.Equal(t, []string{"One day.", "Another day!", "A question?", "The end"}, got)
}

func TestPackRespectsBounds(t *testing.T) {
	paras := []string{strings.Repeat(longSentence+" ", 10)}
	out := Pack(paras)
	require.NotEmpty(t, out)
	for _, p := range out {
		assert.GreaterOrEqual(t, len(p), minPassageLen)
		assert.LessOrEqual(t, len(p), maxPassageLen)
		assert.True(t, isTerminal(p[len(p)-1]), "passage %q lacks terminal punctuation", p)
	}
}

func TestPackDiscardsShortFragments(t *testing.T) {
	out := Pack([]string{"Too short to keep."})
	assert.Empty(t, out)
}

func TestExtractPassages(t *testing.T) {
	doc := `<html><body>
		<p>nav | home | about</p>
		<p>` + longSentence + ` ` + longSentence + `</p>
		<p><script>ignore();</script>` + longSentence + `</p>
		<div><p>` + longSentence + `</p></div>
	</body></html>`

	out, err := ExtractPassages(doc)
	require.NoError(t, err)
	require.NotEmpty(t, out)
	for _, p := range out {
		assert.NotContains(t, p, "ignore()")
		assert.NotContains(t, p, "nav |")
		assert.GreaterOrEqual(t, len(p), minPassageLen)
		assert.LessOrEqual(t, len(p), maxPassageLen)
		for i := 0; i < len(p); i++ {
			assert.Less(t, p[i], byte(128))
		}
	}
}

func TestExtractPassagesEmptyDocument(t *testing.T) {
	out, err := ExtractPassages("<html><body></body></html>")
	require.NoError(t, err)
	assert.Empty(t, out)
}
