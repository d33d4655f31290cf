package chunker

import (
	"strconv"

	"docchat/internal/domain"
)

const (
	DefaultSize    = 1000
	DefaultOverlap = 200
)

// Chunker splits text into fixed-size windows measured in runes. Consecutive
// windows share Overlap runes so context cut at a boundary survives in the
// next passage.
type Chunker struct {
	size    int
	overlap int
}

// New returns a Chunker. Non-positive size falls back to DefaultSize; overlap
// is clamped to [0, size-1].
func New(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size - 1
	}
	return &Chunker{size: size, overlap: overlap}
}

// Size returns the maximum passage length in runes.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the number of runes shared by consecutive passages.
func (c *Chunker) Overlap() int { return c.overlap }

// Chunk splits text into passages tagged with documentID. Empty text yields
// no passages; text no longer than the window yields exactly one.
func (c *Chunker) Chunk(documentID, text string) []domain.Passage {
	if text == "" {
		return nil
	}
	runes := []rune(text)
	if len(runes) <= c.size {
		return []domain.Passage{newPassage(documentID, 0, 0, text)}
	}
	step := c.size - c.overlap
	var out []domain.Passage
	for start, idx := 0, 0; ; start, idx = start+step, idx+1 {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, newPassage(documentID, idx, start, string(runes[start:end])))
		if end == len(runes) {
			break
		}
	}
	return out
}

func newPassage(documentID string, idx, start int, text string) domain.Passage {
	return domain.Passage{
		DocumentID: documentID,
		ID:         documentID + ":" + strconv.Itoa(idx),
		Index:      idx,
		Start:      start,
		Text:       text,
	}
}
