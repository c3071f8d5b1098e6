// Package engine defines the boundary to the ISAM engine and the gate that
// serializes access to it.
//
// The engine keeps its status in process-global state, so a call and the
// status read that follows must run as one unit. Runtime owns the engine
// and a Gate and runs every such pair inside the gate.
package engine

// OpenMode selects how a file is opened
type OpenMode int

const (
	// Input opens a file read-only
	Input OpenMode = 0
	// InputOutput opens a file for reading and writing
	InputOutput OpenMode = 2
)

func (m OpenMode) String() string {
	switch m {
	case Input:
		return "input"
	case InputOutput:
		return "input-output"
	default:
		return "unknown"
	}
}

// StartMode is the comparison used to position a cursor
type StartMode int

const (
	Equal StartMode = iota
	Greater
	GreaterOrEqual
	Less
	LessOrEqual
)

func (m StartMode) String() string {
	switch m {
	case Equal:
		return "eq"
	case Greater:
		return "gt"
	case GreaterOrEqual:
		return "ge"
	case Less:
		return "lt"
	case LessOrEqual:
		return "le"
	default:
		return "unknown"
	}
}

// ParseStartMode converts a name printed by StartMode.String
func ParseStartMode(s string) (StartMode, bool) {
	for m := Equal; m <= LessOrEqual; m++ {
		if m.String() == s {
			return m, true
		}
	}
	return 0, false
}

// Handle identifies an open file inside the engine. Zero is "no file".
type Handle uintptr

// Engine mirrors the native ISAM library. Integer results follow the
// library's convention: 0 is failure for Init, otherwise a negative value
// signals an error and LastStatus has the detail.
type Engine interface {
	Init() int
	Exit()
	SetLicense(path string)
	Make(path, params, keys string) int
	Open(path string, mode OpenMode) Handle
	Close(h Handle) int
	Next(h Handle, buf []byte, lock bool) int
	Previous(h Handle, buf []byte, lock bool) int
	Read(h Handle, buf []byte, keyIndex int, lock bool) int
	Start(h Handle, buf []byte, keyIndex, keySize int, mode StartMode) int
	Write(h Handle, buf []byte, size int) int
	Rewrite(h Handle, buf []byte, size int) int
	Delete(h Handle, buf []byte) int
	Unlock(h Handle) int
	LastStatus() Status
}
