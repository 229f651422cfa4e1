package sourcemap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const threeLines = "aaaa\nbbbb\ncccc\n"

func TestEntriesInherit(t *testing.T) {
	entries, err := Entries("1:2:0:-;:3;5::1:i;;")
	require.NoError(t, err)
	require.Equal(t, []Entry{
		{Offset: 1, Length: 2, FileIndex: 0, Jump: JumpRegular},
		{Offset: 1, Length: 3, FileIndex: 0, Jump: JumpRegular},
		{Offset: 5, Length: 3, FileIndex: 1, Jump: JumpInto},
		{Offset: 5, Length: 3, FileIndex: 1, Jump: JumpInto},
		{Offset: 5, Length: 3, FileIndex: 1, Jump: JumpInto},
	}, entries)
}

func TestEntriesModifierDepth(t *testing.T) {
	entries, err := Entries("0:10:0:o:1;:::-")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, JumpOut, entries[0].Jump)
	assert.Equal(t, 1, entries[0].ModifierDepth)
	assert.Equal(t, JumpRegular, entries[1].Jump)
	assert.Equal(t, 1, entries[1].ModifierDepth)
}

func TestEntriesFirstWithoutFile(t *testing.T) {
	entries, err := Entries("3:4")
	require.NoError(t, err)
	require.Equal(t, -1, entries[0].FileIndex)

	entries, err = Entries("")
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestEntriesMalformed(t *testing.T) {
	for _, srcMap := range []string{"x:1:0", "0:1:0:q", "0:1:0:-:1:extra"} {
		_, err := Entries(srcMap)
		require.Error(t, err, srcMap)
	}
}

func TestInstructionOffsets(t *testing.T) {
	code := []byte{
		0x60, 0x01, // PUSH1 0x01
		0x5f,             // PUSH0
		0x61, 0xaa, 0xbb, // PUSH2 0xaabb
		0x01, // ADD
		0x7f, // PUSH32 ...
	}
	code = append(code, make([]byte, 32)...)
	code = append(code, 0x00) // STOP
	require.Equal(t, []int{0, 2, 3, 6, 7, 40}, InstructionOffsets(code))

	// A push running off the end of the code is still one instruction.
	require.Equal(t, []int{0}, InstructionOffsets([]byte{0x61, 0x01}))
	require.Empty(t, InstructionOffsets(nil))
}

func TestParseFixedWidth(t *testing.T) {
	offsets, err := Parse(
		[]string{threeLines},
		"0:4:0:-;5:4:0:-;10:4:0:-;10:4:0:-",
		"5b5b5b00",
		[]string{"Token.sol"},
	)
	require.NoError(t, err)
	require.Len(t, offsets, 4)

	for pc := 0; pc < 4; pc++ {
		r, ok := offsets[pc]
		require.True(t, ok, "pc %d unmapped", pc)
		require.Equal(t, "Token.sol", r.File)
		if pc > 0 {
			prev := offsets[pc-1]
			require.GreaterOrEqual(t, r.Location.Start.Compare(prev.Location.Start), 0, "pc %d out of order", pc)
		}
	}
	assert.Equal(t, Location{Start: LineColumn{1, 0}, End: LineColumn{1, 4}}, offsets[0].Location)
	assert.Equal(t, Location{Start: LineColumn{2, 0}, End: LineColumn{2, 4}}, offsets[1].Location)
	assert.Equal(t, Location{Start: LineColumn{3, 0}, End: LineColumn{3, 4}}, offsets[3].Location)
}

func TestParsePushOperands(t *testing.T) {
	// PUSH1 0x01, PUSH1 0x02, JUMPDEST
	offsets, err := Parse([]string{threeLines}, "0:4:0;5:4;10:4", "0x600160025b", []string{"A.sol"})
	require.NoError(t, err)
	require.Len(t, offsets, 3)
	assert.Equal(t, 1, offsets[0].Location.Start.Line)
	assert.Equal(t, 2, offsets[2].Location.Start.Line)
	assert.Equal(t, 3, offsets[4].Location.Start.Line)
	_, ok := offsets[1]
	assert.False(t, ok, "operand byte must not be an instruction")
}

func TestParseDropsForeignFiles(t *testing.T) {
	offsets, err := Parse([]string{threeLines}, "0:4:-1;5:4:0;0:4:3;10:4:0", "5b5b5b5b", []string{"A.sol"})
	require.NoError(t, err)
	require.Len(t, offsets, 2)
	assert.Equal(t, 2, offsets[1].Location.Start.Line)
	assert.Equal(t, 3, offsets[3].Location.Start.Line)
}

func TestParseMoreInstructionsThanEntries(t *testing.T) {
	// Trailing metadata decodes as instructions without entries.
	offsets, err := Parse([]string{threeLines}, "0:4:0", "5b5b5b", []string{"A.sol"})
	require.NoError(t, err)
	require.Len(t, offsets, 1)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]string{threeLines}, "0:4:0", "zz", []string{"A.sol"})
	require.Error(t, err)

	_, err = Parse([]string{threeLines}, "0:4:0", "00", []string{"A.sol", "B.sol"})
	require.Error(t, err)

	_, err = Parse([]string{threeLines}, "0:four:0", "00", []string{"A.sol"})
	require.Error(t, err)
}

func TestLineIndex(t *testing.T) {
	idx := newLineIndex("ab\ncd")
	assert.Equal(t, LineColumn{1, 0}, idx.position(0))
	assert.Equal(t, LineColumn{1, 2}, idx.position(2))
	assert.Equal(t, LineColumn{2, 0}, idx.position(3))
	assert.Equal(t, LineColumn{2, 2}, idx.position(100))
	assert.Equal(t, LineColumn{1, 0}, idx.position(-3))
	assert.Equal(t, Location{Start: LineColumn{1, 1}, End: LineColumn{2, 1}}, idx.location(1, 3))
}

func TestRangeContains(t *testing.T) {
	parent := Range{File: "A.sol", Location: Location{Start: LineColumn{2, 4}, End: LineColumn{10, 1}}}

	cases := []struct {
		child Range
		want  bool
	}{
		{Range{"A.sol", Location{LineColumn{2, 4}, LineColumn{10, 1}}}, true},
		{Range{"A.sol", Location{LineColumn{3, 0}, LineColumn{4, 9}}}, true},
		{Range{"A.sol", Location{LineColumn{2, 3}, LineColumn{4, 9}}}, false},
		{Range{"A.sol", Location{LineColumn{3, 0}, LineColumn{10, 2}}}, false},
		{Range{"B.sol", Location{LineColumn{3, 0}, LineColumn{4, 9}}}, false},
	}
	for i, c := range cases {
		assert.Equal(t, c.want, parent.Contains(c.child), "case %d", i)
	}
}

func TestJumpTypeString(t *testing.T) {
	for _, s := range []string{"-", "i", "o"} {
		j, err := parseJumpType(s)
		require.NoError(t, err)
		require.Equal(t, s, j.String())
	}
	require.Equal(t, "unknown", JumpType(9).String())
}
