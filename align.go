package nativebridge

import "fmt"

// Align is the alignment of a node's children or of the node itself
// within its parent.
type Align int

const (
	AlignAuto Align = iota
	AlignFlexStart
	AlignCenter
	AlignFlexEnd
	AlignStretch
	AlignBaseline
	AlignSpaceBetween
	AlignSpaceAround
	AlignSpaceEvenly
)

var alignNames = [...]string{
	AlignAuto:         "auto",
	AlignFlexStart:    "flex-start",
	AlignCenter:       "center",
	AlignFlexEnd:      "flex-end",
	AlignStretch:      "stretch",
	AlignBaseline:     "baseline",
	AlignSpaceBetween: "space-between",
	AlignSpaceAround:  "space-around",
	AlignSpaceEvenly:  "space-evenly",
}

// Int returns the wire value of a.
func (a Align) Int() int { return int(a) }

func (a Align) String() string {
	if a < 0 || int(a) >= len(alignNames) {
		return fmt.Sprintf("Align(%d)", int(a))
	}
	return alignNames[a]
}

// AlignFromInt converts a wire value to an Align.
func AlignFromInt(v int) (Align, error) {
	if v < 0 || v >= len(alignNames) {
		return 0, fmt.Errorf("unknown align value: %d", v)
	}
	return Align(v), nil
}

// ParseAlign converts a name such as "flex-start" to an Align.
func ParseAlign(name string) (Align, error) {
	for i, n := range alignNames {
		if n == name {
			return Align(i), nil
		}
	}
	return 0, fmt.Errorf("unknown align: %q", name)
}
