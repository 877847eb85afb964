package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/hegemon/core"
)

func TestNewSplitter_Validation(t *testing.T) {
	_, err := NewSplitter(0, 0)
	require.Error(t, err)

	_, err = NewSplitter(100, 100)
	require.Error(t, err, "stride must be smaller than window")

	_, err = NewSplitter(100, 0)
	require.Error(t, err)

	s, err := NewSplitter(100, 80)
	require.NoError(t, err)
	assert.Equal(t, 100, s.Window)
	assert.Equal(t, 80, s.Stride)
}

func TestSplit_CoversWholeDocument(t *testing.T) {
	s, err := NewSplitter(10, 6)
	require.NoError(t, err)

	content := strings.Repeat("abcde", 7) // 35 runes
	hash := core.HashContent(content)
	pieces := s.Split(hash, content)

	require.NotEmpty(t, pieces)

	// First piece starts at 0, last piece reaches the end.
	assert.Equal(t, 0, pieces[0].Offset)
	last := pieces[len(pieces)-1]
	assert.Equal(t, len([]rune(content)), last.Offset+len([]rune(last.Text)))

	// Consecutive windows overlap by window-stride runes.
	for i := 1; i < len(pieces); i++ {
		assert.Equal(t, pieces[i-1].Offset+6, pieces[i].Offset)
	}
}

func TestSplit_ShortDocumentSinglePiece(t *testing.T) {
	s := DefaultSplitter()
	content := "short filing"
	pieces := s.Split(core.HashContent(content), content)

	require.Len(t, pieces, 1)
	assert.Equal(t, content, pieces[0].Text)
	assert.Equal(t, 0, pieces[0].Offset)
}

func TestSplit_EmptyContent(t *testing.T) {
	s := DefaultSplitter()
	assert.Empty(t, s.Split(core.HashContent(""), ""))
}

func TestSplit_Deterministic(t *testing.T) {
	s, err := NewSplitter(20, 15)
	require.NoError(t, err)

	content := strings.Repeat("market moved today. ", 12)
	hash := core.HashContent(content)

	first := s.Split(hash, content)
	second := s.Split(hash, content)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Id, second[i].Id)
		assert.Equal(t, first[i].Text, second[i].Text)
	}
}

func TestSplit_MultibyteRunes(t *testing.T) {
	s, err := NewSplitter(4, 2)
	require.NoError(t, err)

	content := "삼성전자 실적 발표" // rune-aware windows must not split bytes
	pieces := s.Split(core.HashContent(content), content)

	var rebuilt []rune
	for _, p := range pieces {
		runes := []rune(p.Text)
		for i, r := range runes {
			pos := p.Offset + i
			if pos < len(rebuilt) {
				assert.Equal(t, rebuilt[pos], r)
			} else {
				rebuilt = append(rebuilt, r)
			}
		}
	}
	assert.Equal(t, content, string(rebuilt))
}
