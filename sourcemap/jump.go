package sourcemap

import "fmt"

// JumpType describes whether an instruction enters a function, returns from
// one, or is an ordinary jump.
type JumpType int

const (
	JumpRegular JumpType = iota // "-"
	JumpInto                    // "i"
	JumpOut                     // "o"
)

// parseJumpType decodes the single-letter jump field of a source map entry.
func parseJumpType(s string) (JumpType, error) {
	switch s {
	case "-":
		return JumpRegular, nil
	case "i":
		return JumpInto, nil
	case "o":
		return JumpOut, nil
	}
	return JumpRegular, fmt.Errorf("invalid jump type %q", s)
}

// String returns the source map notation of the jump type.
func (j JumpType) String() string {
	switch j {
	case JumpRegular:
		return "-"
	case JumpInto:
		return "i"
	case JumpOut:
		return "o"
	}
	return "unknown"
}
