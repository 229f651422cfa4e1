package sourcemap

import (
	"fmt"
	"sort"
)

// LineColumn is a position in a source file. Lines start at 1, columns at 0.
type LineColumn struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Compare orders positions by line, then by column. It returns a negative
// number, zero or a positive number like strings.Compare.
func (p LineColumn) Compare(other LineColumn) int {
	if p.Line != other.Line {
		return p.Line - other.Line
	}
	return p.Column - other.Column
}

func (p LineColumn) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Location is a range within a single file.
type Location struct {
	Start LineColumn `json:"start"`
	End   LineColumn `json:"end"`
}

// Contains reports whether child lies entirely within l.
func (l Location) Contains(child Location) bool {
	return l.Start.Compare(child.Start) <= 0 && child.End.Compare(l.End) <= 0
}

// Range is a Location tagged with the file it belongs to.
type Range struct {
	File     string
	Location Location
}

// Contains reports whether child is in the same file and lies entirely within r.
func (r Range) Contains(child Range) bool {
	return r.File == child.File && r.Location.Contains(child.Location)
}

func (r Range) String() string {
	return fmt.Sprintf("%s:%v-%v", r.File, r.Location.Start, r.Location.End)
}

// lineIndex converts byte offsets of one source file into line/column
// positions.
type lineIndex struct {
	size   int
	starts []int // byte offset at which each line begins
}

func newLineIndex(source string) *lineIndex {
	starts := []int{0}
	for i := 0; i < len(source); i++ {
		if source[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &lineIndex{size: len(source), starts: starts}
}

// position returns the position of the byte at offset. Offsets past the end of
// the file are clamped to it.
func (idx *lineIndex) position(offset int) LineColumn {
	if offset < 0 {
		offset = 0
	}
	if offset > idx.size {
		offset = idx.size
	}
	line := sort.Search(len(idx.starts), func(i int) bool { return idx.starts[i] > offset }) - 1
	return LineColumn{Line: line + 1, Column: offset - idx.starts[line]}
}

// location converts the byte span [offset, offset+length) into a Location.
func (idx *lineIndex) location(offset, length int) Location {
	return Location{Start: idx.position(offset), End: idx.position(offset + length)}
}
