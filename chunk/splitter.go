// Package chunk splits document content into overlapping text windows
// suitable for embedding. Splitting is a pure function of its input, so
// re-running it on identical content yields identical chunk IDs and text.
package chunk

import (
	"fmt"

	"github.com/poiesic/hegemon/core"
)

// Default window geometry, sized for embedding models with short
// context windows. Overlap preserves context across boundaries.
const (
	DefaultWindow = 1000
	DefaultStride = 900
)

// Piece is one window of a split document.
type Piece struct {
	Id     core.ID
	Offset int
	Text   string
}

// Splitter decomposes documents into overlapping rune windows.
type Splitter struct {
	Window int // window size in runes
	Stride int // distance between window starts, must be < Window
}

// NewSplitter creates a splitter with validated geometry.
func NewSplitter(window, stride int) (*Splitter, error) {
	if window <= 0 {
		return nil, fmt.Errorf("chunk: window must be positive, got %d", window)
	}
	if stride <= 0 || stride >= window {
		return nil, fmt.Errorf("chunk: stride must be in (0, window), got %d", stride)
	}
	return &Splitter{Window: window, Stride: stride}, nil
}

// DefaultSplitter returns a splitter with the default geometry.
func DefaultSplitter() *Splitter {
	return &Splitter{Window: DefaultWindow, Stride: DefaultStride}
}

// Split produces the finite window sequence covering the whole content.
// Offsets are rune offsets into the content. Each piece's ID is derived
// from the document content hash and the piece offset.
func (s *Splitter) Split(contentHash core.ID, content string) []Piece {
	runes := []rune(content)
	if len(runes) == 0 {
		return nil
	}

	var pieces []Piece
	for offset := 0; ; offset += s.Stride {
		end := offset + s.Window
		if end > len(runes) {
			end = len(runes)
		}
		pieces = append(pieces, Piece{
			Id:     core.ChunkID(contentHash, offset),
			Offset: offset,
			Text:   string(runes[offset:end]),
		})
		if end == len(runes) {
			break
		}
	}
	return pieces
}
