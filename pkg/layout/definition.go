// Package layout models the record layout of an indexed file: its fields,
// keys and repeating groups. Definitions are built once by a loader and are
// read-only afterwards, so they can be shared by any number of records and
// sessions without locking.
package layout

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	// ErrFieldNotFound is returned when a field name does not resolve
	ErrFieldNotFound = errors.New("field not found")
	// ErrSubscriptRange is returned when an occurs subscript is out of range
	ErrSubscriptRange = errors.New("occurs subscript out of range")
	// ErrInvalidDefinition is returned by Validate
	ErrInvalidDefinition = errors.New("invalid file definition")
	// ErrKeyIndex is returned for a key number the file does not have
	ErrKeyIndex = errors.New("key index out of range")
)

// OccursDefinition is a repeating group (OCCURS n TIMES)
type OccursDefinition struct {
	Count  int                 `json:"count" yaml:"count"`
	Size   int                 `json:"size" yaml:"size"` // Total size of all repetitions
	Fields []*FieldDefinition  `json:"fields" yaml:"fields"`
	Occurs []*OccursDefinition `json:"occurs,omitempty" yaml:"occurs,omitempty"`
}

// Stride returns the byte distance between two repetitions
func (o *OccursDefinition) Stride() int {
	if o.Count <= 0 {
		return 0
	}
	return o.Size / o.Count
}

// FileDefinition is the complete layout of one indexed file
type FileDefinition struct {
	SelectName    string              `json:"select_name" yaml:"select_name"`
	FileName      string              `json:"file_name" yaml:"file_name"`
	Alphabet      string              `json:"alphabet" yaml:"alphabet"`
	NumberOfKeys  int                 `json:"number_of_keys" yaml:"number_of_keys"`
	MinRecordSize int                 `json:"min_record_size" yaml:"min_record_size"`
	MaxRecordSize int                 `json:"max_record_size" yaml:"max_record_size"`
	Keys          []*KeyDefinition    `json:"keys" yaml:"keys"`
	Fields        []*FieldDefinition  `json:"fields" yaml:"fields"`
	Occurs        []*OccursDefinition `json:"occurs,omitempty" yaml:"occurs,omitempty"`
}

// NormalizeName folds a field name for lookups: upper case, '-' and '_'
// are equivalent.
func NormalizeName(name string) string {
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(name)), "-", "_")
}

// Validate checks that every field and key segment fits in the record
func (d *FileDefinition) Validate() error {
	if d.MaxRecordSize <= 0 {
		return errors.Wrapf(ErrInvalidDefinition, "%s: maximum record size must be positive", d.FileName)
	}
	if d.MinRecordSize > d.MaxRecordSize {
		return errors.Wrapf(ErrInvalidDefinition, "%s: minimum record size %d exceeds maximum %d",
			d.FileName, d.MinRecordSize, d.MaxRecordSize)
	}
	if len(d.Keys) != d.NumberOfKeys {
		return errors.Wrapf(ErrInvalidDefinition, "%s: %d keys declared, %d defined",
			d.FileName, d.NumberOfKeys, len(d.Keys))
	}
	for _, f := range d.Layout() {
		if f.Offset < 0 || f.Bytes < 0 || f.End() > d.MaxRecordSize {
			return errors.Wrapf(ErrInvalidDefinition, "%s: field %s [%d,%d) outside record of %d bytes",
				d.FileName, f.Name, f.Offset, f.End(), d.MaxRecordSize)
		}
	}
	for i, k := range d.Keys {
		if len(k.Segments) == 0 {
			return errors.Wrapf(ErrInvalidDefinition, "%s: key %d has no segments", d.FileName, i)
		}
		for _, s := range k.Segments {
			if s.Offset < 0 || s.Size <= 0 || s.Offset+s.Size > d.MaxRecordSize {
				return errors.Wrapf(ErrInvalidDefinition, "%s: key %d segment [%d,%d) outside record",
					d.FileName, i, s.Offset, s.Offset+s.Size)
			}
		}
	}
	return nil
}

// Layout returns every leaf field of the record ordered by offset, with
// repeating groups expanded once per repetition. Expanded fields carry
// their 1-based subscripts in the name, e.g. ROW-QTY(2) or CELL(1,3).
func (d *FileDefinition) Layout() []*FieldDefinition {
	out := make([]*FieldDefinition, 0, len(d.Fields))
	for _, f := range d.Fields {
		if f.Leaf() {
			out = append(out, f)
		}
	}
	for _, o := range d.Occurs {
		out = expandOccurs(out, o, 0, nil)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out
}

func expandOccurs(out []*FieldDefinition, o *OccursDefinition, base int, subs []int) []*FieldDefinition {
	stride := o.Stride()
	for i := 1; i <= o.Count; i++ {
		shift := base + (i-1)*stride
		idx := append(append([]int(nil), subs...), i)
		for _, f := range o.Fields {
			if f.Group {
				continue
			}
			c := f.Clone()
			c.Offset += shift
			c.Name = subscripted(f.Name, idx)
			out = append(out, c)
		}
		for _, inner := range o.Occurs {
			out = expandOccurs(out, inner, shift, idx)
		}
	}
	return out
}

func subscripted(name string, idx []int) string {
	parts := make([]string, len(idx))
	for i, n := range idx {
		parts[i] = strconv.Itoa(n)
	}
	return fmt.Sprintf("%s(%s)", name, strings.Join(parts, ","))
}

// Lookup resolves a field by name. Names are matched case-insensitively
// with '-' and '_' treated alike. Fields inside repeating groups are
// addressed with 1-based subscripts: NAME(i) or NAME(i,j) for nested groups.
func (d *FileDefinition) Lookup(name string) (*FieldDefinition, error) {
	base, subs, err := parseSubscripts(name)
	if err != nil {
		return nil, err
	}
	want := NormalizeName(base)

	if len(subs) == 0 {
		for _, f := range d.Fields {
			if NormalizeName(f.Name) == want {
				return f, nil
			}
		}
		return nil, errors.Wrapf(ErrFieldNotFound, "cannot find field %s in file %s", name, d.FileName)
	}

	field, chain := findInOccurs(d.Occurs, want, len(subs))
	if field == nil {
		return nil, errors.Wrapf(ErrFieldNotFound, "cannot find field %s in file %s", name, d.FileName)
	}
	shift := 0
	for i, o := range chain {
		if subs[i] < 1 || subs[i] > o.Count {
			return nil, errors.Wrapf(ErrSubscriptRange, "%s: subscript %d must be between 1 and %d",
				name, subs[i], o.Count)
		}
		shift += (subs[i] - 1) * o.Stride()
	}
	c := field.Clone()
	c.Offset += shift
	c.Name = subscripted(field.Name, subs)
	return c, nil
}

// findInOccurs looks for a field nested depth levels deep and returns it
// with the chain of groups leading to it.
func findInOccurs(occurs []*OccursDefinition, want string, depth int) (*FieldDefinition, []*OccursDefinition) {
	for _, o := range occurs {
		if depth == 1 {
			for _, f := range o.Fields {
				if NormalizeName(f.Name) == want {
					return f, []*OccursDefinition{o}
				}
			}
			continue
		}
		if f, chain := findInOccurs(o.Occurs, want, depth-1); f != nil {
			return f, append([]*OccursDefinition{o}, chain...)
		}
	}
	return nil, nil
}

func parseSubscripts(name string) (string, []int, error) {
	open := strings.IndexByte(name, '(')
	if open < 0 {
		return name, nil, nil
	}
	if !strings.HasSuffix(name, ")") {
		return "", nil, errors.Wrapf(ErrFieldNotFound, "malformed field name %q", name)
	}
	var subs []int
	for _, p := range strings.Split(name[open+1:len(name)-1], ",") {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return "", nil, errors.Wrapf(ErrFieldNotFound, "malformed subscript in %q", name)
		}
		subs = append(subs, n)
	}
	return name[:open], subs, nil
}

// Params renders the logical file parameters used when creating the file:
// maximum size, minimum size and number of keys.
func (d *FileDefinition) Params() string {
	return fmt.Sprintf("%d,%d,%d", d.MaxRecordSize, d.MinRecordSize, d.NumberOfKeys)
}

// KeyInfo renders every key descriptor in declaration order
func (d *FileDefinition) KeyInfo() string {
	parts := make([]string, len(d.Keys))
	for i, k := range d.Keys {
		parts[i] = k.InfoString()
	}
	return strings.Join(parts, ",")
}

// Key returns key i (0 is the primary key)
func (d *FileDefinition) Key(i int) (*KeyDefinition, error) {
	if i < 0 || i >= d.NumberOfKeys || i >= len(d.Keys) {
		return nil, errors.Wrapf(ErrKeyIndex, "file %s has %d keys, got key %d", d.FileName, d.NumberOfKeys, i)
	}
	return d.Keys[i], nil
}
