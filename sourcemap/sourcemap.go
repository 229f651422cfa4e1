// Package sourcemap decodes solc runtime source maps and resolves program
// counters of the matching bytecode to source ranges.
//
// A source map is a ';'-separated list with one entry per instruction. Each
// entry has the form s:l:f:j[:m] where s is the byte offset of the range in
// the source, l its length, f the index of the source file, j the jump type
// and m the modifier depth. Fields left empty, and trailing fields left out,
// repeat the value of the previous entry.
package sourcemap

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/log"
)

// Entry is one decoded source map entry.
type Entry struct {
	Offset        int
	Length        int
	FileIndex     int
	Jump          JumpType
	ModifierDepth int
}

// OffsetMap maps program counters to the source range they were compiled from.
type OffsetMap map[int]Range

// Entries decodes every entry of the source map, filling in inherited fields.
func Entries(srcMap string) ([]Entry, error) {
	if srcMap == "" {
		return nil, nil
	}
	var (
		raw     = strings.Split(srcMap, ";")
		entries = make([]Entry, 0, len(raw))
		last    = Entry{FileIndex: -1}
	)
	for i, item := range raw {
		entry := last
		fields := strings.Split(item, ":")
		for f, field := range fields {
			if field == "" {
				continue
			}
			var err error
			switch f {
			case 0:
				entry.Offset, err = strconv.Atoi(field)
			case 1:
				entry.Length, err = strconv.Atoi(field)
			case 2:
				entry.FileIndex, err = strconv.Atoi(field)
			case 3:
				entry.Jump, err = parseJumpType(field)
			case 4:
				entry.ModifierDepth, err = strconv.Atoi(field)
			default:
				err = fmt.Errorf("unexpected field %q", field)
			}
			if err != nil {
				return nil, fmt.Errorf("source map entry %d: %w", i, err)
			}
		}
		entries = append(entries, entry)
		last = entry
	}
	return entries, nil
}

// InstructionOffsets returns the program counter of every instruction in the
// bytecode, indexed by instruction number. Push instructions swallow their
// immediate operand bytes.
func InstructionOffsets(code []byte) []int {
	var pcs []int
	for pc := 0; pc < len(code); pc++ {
		pcs = append(pcs, pc)
		if op := vm.OpCode(code[pc]); op.IsPush() {
			pc += int(op - vm.PUSH0)
		}
	}
	return pcs
}

// Parse resolves every instruction of the runtime bytecode to the source range
// its source map entry points at. sourceCodes and sources are parallel slices
// of file contents and file names, ordered as the compiler numbered them.
func Parse(sourceCodes []string, srcMap string, bytecodeHex string, sources []string) (OffsetMap, error) {
	if len(sourceCodes) != len(sources) {
		return nil, fmt.Errorf("got %d source codes for %d sources", len(sourceCodes), len(sources))
	}
	code, err := hex.DecodeString(strings.TrimPrefix(bytecodeHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid bytecode: %w", err)
	}
	entries, err := Entries(srcMap)
	if err != nil {
		return nil, err
	}
	indices := make([]*lineIndex, len(sourceCodes))
	for i, src := range sourceCodes {
		indices[i] = newLineIndex(src)
	}
	pcs := InstructionOffsets(code)

	offsets := make(OffsetMap, len(pcs))
	dropped := 0
	for i, entry := range entries {
		if i >= len(pcs) {
			break
		}
		// Compiler-generated code (file index -1) and files that are not part
		// of this program have no range to map to.
		if entry.FileIndex < 0 || entry.FileIndex >= len(sources) {
			dropped++
			continue
		}
		offsets[pcs[i]] = Range{
			File:     sources[entry.FileIndex],
			Location: indices[entry.FileIndex].location(entry.Offset, entry.Length),
		}
	}
	log.Trace("Parsed source map", "instructions", len(pcs), "entries", len(entries), "mapped", len(offsets), "dropped", dropped)
	return offsets, nil
}
