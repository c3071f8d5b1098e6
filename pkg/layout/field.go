package layout

import "fmt"

// FieldType is the storage class of a field
type FieldType int

const (
	// String is left aligned text padded with spaces
	String FieldType = 0
	// JustifiedString is right aligned text (JUSTIFIED clause)
	JustifiedString FieldType = 1
	// Date is a numeric field holding a date or date/time
	Date FieldType = 10
	// Number is a zoned decimal field
	Number FieldType = 20
	// Comp is a binary numeric field
	Comp FieldType = 30
)

func (t FieldType) String() string {
	switch t {
	case String:
		return "string"
	case JustifiedString:
		return "justified"
	case Date:
		return "date"
	case Number:
		return "number"
	case Comp:
		return "comp"
	default:
		return fmt.Sprintf("FieldType(%d)", int(t))
	}
}

// Numeric reports whether the field stores digits
func (t FieldType) Numeric() bool {
	return t == Number || t == Date
}

// FieldDefinition describes one field of a record layout
type FieldDefinition struct {
	Name   string    `json:"name" yaml:"name"`
	Offset int       `json:"offset" yaml:"offset"` // Byte offset in the record
	Bytes  int       `json:"bytes" yaml:"bytes"`   // Physical width in bytes
	Size   int       `json:"size" yaml:"size"`     // Logical width in chars/digits
	Scale  int       `json:"scale" yaml:"scale"`   // Digits after the implied decimal point
	Signed bool      `json:"signed" yaml:"signed"`
	Level  int       `json:"level" yaml:"level"`
	Group  bool      `json:"group" yaml:"group"` // Structural (non-leaf) field
	Type   FieldType `json:"type" yaml:"type"`
}

// Normalize reclassifies binary fields. A field narrower in bytes than its
// declared size is a Comp field with scale 0 and size equal to bytes.
func (f *FieldDefinition) Normalize() {
	if f.Bytes < f.Size {
		f.Size = f.Bytes
		f.Type = Comp
		f.Scale = 0
	}
}

// End returns the offset just past the field
func (f *FieldDefinition) End() int {
	return f.Offset + f.Bytes
}

// Clone returns a copy of the field definition
func (f *FieldDefinition) Clone() *FieldDefinition {
	c := *f
	return &c
}

// Leaf reports whether the field holds data rather than grouping others
func (f *FieldDefinition) Leaf() bool {
	return !f.Group
}
