// Package record provides a mutable fixed-width record bound to a layout.
package record

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"github.com/ssargent/visionfs/pkg/codec"
	"github.com/ssargent/visionfs/pkg/layout"
)

// ErrSize is returned when a buffer does not match the record size
var ErrSize = errors.New("buffer size does not match record size")

// Record is a buffer of exactly MaxRecordSize bytes plus the layout used to
// interpret it. A Record is owned by one caller at a time.
type Record struct {
	def  *layout.FileDefinition
	conv *codec.Converter
	buf  []byte
}

// FieldValue is one decoded field, as returned by Fields
type FieldValue struct {
	Name  string
	Field *layout.FieldDefinition
	Value codec.Value
}

// New returns an empty record (a copy of the layout's template)
func New(def *layout.FileDefinition, conv *codec.Converter) *Record {
	return &Record{def: def, conv: conv, buf: conv.EmptyRecord(def)}
}

// FromBytes returns a record holding a copy of b
func FromBytes(def *layout.FileDefinition, conv *codec.Converter, b []byte) (*Record, error) {
	if len(b) != def.MaxRecordSize {
		return nil, errors.Wrapf(ErrSize, "file %s: got %d bytes, want %d", def.FileName, len(b), def.MaxRecordSize)
	}
	buf := make([]byte, len(b))
	copy(buf, b)
	return &Record{def: def, conv: conv, buf: buf}, nil
}

// Definition returns the layout of the record
func (r *Record) Definition() *layout.FileDefinition {
	return r.def
}

// Bytes returns the record buffer. The slice aliases the record.
func (r *Record) Bytes() []byte {
	return r.buf
}

// Clone returns a deep copy of the buffer sharing the layout
func (r *Record) Clone() *Record {
	buf := make([]byte, len(r.buf))
	copy(buf, r.buf)
	return &Record{def: r.def, conv: r.conv, buf: buf}
}

// Key returns the bytes of key i
func (r *Record) Key(i int) ([]byte, error) {
	k, err := r.def.Key(i)
	if err != nil {
		return nil, err
	}
	return k.Extract(r.buf), nil
}

// Get decodes a field as kind
func (r *Record) Get(name string, kind codec.Kind) (codec.Value, error) {
	f, err := r.conv.Field(r.def, name)
	if err != nil {
		return nil, err
	}
	return r.conv.Get(f, r.buf, kind)
}

// Set encodes v into a field
func (r *Record) Set(name string, v codec.Value) error {
	f, err := r.conv.Field(r.def, name)
	if err != nil {
		return err
	}
	return r.conv.Set(f, r.buf, v)
}

func (r *Record) String(name string) (string, error) {
	v, err := r.Get(name, codec.KindText)
	if err != nil {
		return "", err
	}
	return string(v.(codec.Text)), nil
}

func (r *Record) Int(name string) (int32, error) {
	v, err := r.Get(name, codec.KindInt)
	if err != nil {
		return 0, err
	}
	return int32(v.(codec.Int)), nil
}

func (r *Record) Long(name string) (int64, error) {
	v, err := r.Get(name, codec.KindLong)
	if err != nil {
		return 0, err
	}
	return int64(v.(codec.Long)), nil
}

func (r *Record) Decimal(name string) (decimal.Decimal, error) {
	v, err := r.Get(name, codec.KindDecimal)
	if err != nil {
		return decimal.Zero, err
	}
	return v.(codec.Decimal).Decimal, nil
}

// Date returns the field as a time; ok is false when the field holds no date
func (r *Record) Date(name string) (t time.Time, ok bool, err error) {
	v, err := r.Get(name, codec.KindDate)
	if err != nil {
		return time.Time{}, false, err
	}
	d := v.(codec.Date)
	return d.Time, d.Valid, nil
}

func (r *Record) SetString(name, s string) error {
	return r.Set(name, codec.Text(s))
}

func (r *Record) SetInt(name string, n int32) error {
	return r.Set(name, codec.Int(n))
}

func (r *Record) SetLong(name string, n int64) error {
	return r.Set(name, codec.Long(n))
}

func (r *Record) SetDecimal(name string, d decimal.Decimal) error {
	return r.Set(name, codec.NewDecimal(d))
}

func (r *Record) SetDate(name string, t time.Time) error {
	return r.Set(name, codec.NewDate(t))
}

// SetText parses s as the field's natural kind and stores it
func (r *Record) SetText(name, s string) error {
	f, err := r.conv.Field(r.def, name)
	if err != nil {
		return err
	}
	v, err := r.conv.Parse(f, s)
	if err != nil {
		return err
	}
	return r.conv.Set(f, r.buf, v)
}

// ClearDate stores "no date" (all zeros)
func (r *Record) ClearDate(name string) error {
	return r.Set(name, codec.NoDate)
}

// Fields decodes every leaf field in offset order, repeating groups
// expanded, each as its natural kind
func (r *Record) Fields() ([]FieldValue, error) {
	leaves := r.def.Layout()
	out := make([]FieldValue, 0, len(leaves))
	for _, f := range leaves {
		v, err := r.conv.Get(f, r.buf, codec.NaturalKind(f))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to decode field %s", f.Name)
		}
		out = append(out, FieldValue{Name: f.Name, Field: f, Value: v})
	}
	return out, nil
}

// Native converts a value to a plain Go value for encoders (JSON, YAML).
// A missing date becomes nil.
func Native(v codec.Value) any {
	switch v := v.(type) {
	case codec.Int:
		return int32(v)
	case codec.Long:
		return int64(v)
	case codec.Decimal:
		return v.Decimal
	case codec.Text:
		return string(v)
	case codec.Date:
		if !v.Valid {
			return nil
		}
		return v.Time
	default:
		return nil
	}
}

// Map returns Fields as a name -> native value map
func (r *Record) Map() (map[string]any, error) {
	fields, err := r.Fields()
	if err != nil {
		return nil, err
	}
	m := make(map[string]any, len(fields))
	for _, fv := range fields {
		m[fv.Name] = Native(fv.Value)
	}
	return m, nil
}
