package layout

import (
	"fmt"
	"strings"
)

// KeySegment is a contiguous run of key bytes inside the record
type KeySegment struct {
	Offset int `json:"offset" yaml:"offset"`
	Size   int `json:"size" yaml:"size"`
}

// KeyDefinition describes one index of the file
type KeyDefinition struct {
	Unique   bool               `json:"unique" yaml:"unique"`
	Fields   []*FieldDefinition `json:"fields,omitempty" yaml:"fields,omitempty"`
	Segments []KeySegment       `json:"segments" yaml:"segments"`
}

// Size returns the total key length in bytes
func (k *KeyDefinition) Size() int {
	n := 0
	for _, s := range k.Segments {
		n += s.Size
	}
	return n
}

// Extract concatenates the key segments found in buf
func (k *KeyDefinition) Extract(buf []byte) []byte {
	out := make([]byte, 0, k.Size())
	for _, s := range k.Segments {
		out = append(out, buf[s.Offset:s.Offset+s.Size]...)
	}
	return out
}

// InfoString renders the key in the engine descriptor format:
// NN,U,SSS,OOOOOOOOOO[,SSS,OOOOOOOOOO...] where U is 0 for unique keys.
func (k *KeyDefinition) InfoString() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%02d,", len(k.Segments))
	if k.Unique {
		b.WriteString("0")
	} else {
		b.WriteString("1")
	}
	for _, s := range k.Segments {
		fmt.Fprintf(&b, ",%03d,%010d", s.Size, s.Offset)
	}
	return b.String()
}
