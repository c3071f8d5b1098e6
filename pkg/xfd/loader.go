// Package xfd loads record layouts from XFD layout descriptions.
//
// An XFD document lists a file's identification data, its fields (with
// nested repeating groups) and its keys. The loader turns it into a
// layout.FileDefinition. A layout is foundational for every later read and
// write, so any missing required element or attribute fails the whole load;
// no partial definition is ever returned.
package xfd

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ssargent/visionfs/pkg/layout"
)

// Namespace is the XML namespace of XFD documents
const Namespace = "http://www.microfocus.com"

const groupCondition = 999

// XFD field type codes
const (
	typeUnsignedNumeric           = 1
	typeSignedNumeric             = 2
	typeAlphanumeric              = 16
	typeAlphanumericJustified     = 17
	typeAlphabetic                = 18
	typeAlphabeticJustified       = 19
	typeAlphanumericEdited        = 20
	typeAlphanumericEditJustified = 21
)

const dateUserFlag = 1

// ErrMissingElement is wrapped by LoadError when a required element or
// attribute is absent
var ErrMissingElement = errors.New("missing required element")

// LoadError reports why a layout description could not be loaded
type LoadError struct {
	Source  string // File path or "<reader>"
	Element string // Offending element or attribute
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("invalid xfd %s: %s: %v", e.Source, e.Element, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

type document struct {
	Identification *identification `xml:"http://www.microfocus.com identification"`
	Fields         *fieldList      `xml:"http://www.microfocus.com fields"`
	Keys           *keyList        `xml:"http://www.microfocus.com keys"`
}

type identification struct {
	SelectName    *string `xml:"http://www.microfocus.com select-name"`
	TableName     *string `xml:"http://www.microfocus.com table-name"`
	Alphabet      *string `xml:"http://www.microfocus.com alphabet"`
	MinRecordSize *string `xml:"http://www.microfocus.com minimum-record-size"`
	MaxRecordSize *string `xml:"http://www.microfocus.com maximum-record-size"`
	NumberOfKeys  *string `xml:"http://www.microfocus.com number-of-keys"`
}

type fieldList struct {
	Fields []field  `xml:"http://www.microfocus.com field"`
	Occurs []occurs `xml:"http://www.microfocus.com field-occurs"`
}

type field struct {
	Name      *string `xml:"http://www.microfocus.com field-name,attr"`
	Length    *string `xml:"http://www.microfocus.com field-length,attr"`
	Scale     *string `xml:"http://www.microfocus.com field-scale,attr"`
	Offset    *string `xml:"http://www.microfocus.com field-offset,attr"`
	Bytes     *string `xml:"http://www.microfocus.com field-bytes,attr"`
	Level     *string `xml:"http://www.microfocus.com field-level,attr"`
	Condition *string `xml:"http://www.microfocus.com field-condition,attr"`
	Type      *string `xml:"http://www.microfocus.com field-type,attr"`
	UserFlags *string `xml:"http://www.microfocus.com field-user-flags,attr"`
}

type occurs struct {
	Count  *string  `xml:"http://www.microfocus.com occurs-count,attr"`
	Size   *string  `xml:"http://www.microfocus.com occurs-size,attr"`
	Fields []field  `xml:"http://www.microfocus.com field"`
	Occurs []occurs `xml:"http://www.microfocus.com field-occurs"`
}

type keyList struct {
	Keys []key `xml:"http://www.microfocus.com key"`
}

type key struct {
	DuplicatesAllowed *string     `xml:"http://www.microfocus.com duplicates-allowed,attr"`
	Columns           *keyColumns `xml:"http://www.microfocus.com key-columns"`
	Segments          *segments   `xml:"http://www.microfocus.com segments"`
}

type keyColumns struct {
	Columns []keyColumn `xml:"http://www.microfocus.com key-column"`
}

type keyColumn struct {
	Name *string `xml:"http://www.microfocus.com key-column-name,attr"`
}

type segments struct {
	Segments []segment `xml:"http://www.microfocus.com segment"`
}

type segment struct {
	Size   *string `xml:"http://www.microfocus.com segment-size,attr"`
	Offset *string `xml:"http://www.microfocus.com segment-offset,attr"`
}

// LoadFile reads and parses the XFD file at path
func LoadFile(path string) (*layout.FileDefinition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open xfd file")
	}
	defer f.Close()

	return load(f, path)
}

// Load parses an XFD document
func Load(r io.Reader) (*layout.FileDefinition, error) {
	return load(r, "<reader>")
}

func load(r io.Reader, source string) (*layout.FileDefinition, error) {
	var doc document
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, &LoadError{Source: source, Element: "document", Err: err}
	}

	p := &parser{source: source}
	def := p.definition(&doc)
	if p.err != nil {
		return nil, p.err
	}
	if err := def.Validate(); err != nil {
		return nil, &LoadError{Source: source, Element: "layout", Err: err}
	}
	return def, nil
}

// parser keeps the first error so the conversion code reads linearly
type parser struct {
	source string
	err    error
}

func (p *parser) fail(element string, err error) {
	if p.err == nil {
		p.err = &LoadError{Source: p.source, Element: element, Err: err}
	}
}

func (p *parser) str(v *string, element string) string {
	if v == nil || strings.TrimSpace(*v) == "" {
		p.fail(element, ErrMissingElement)
		return ""
	}
	return strings.TrimSpace(*v)
}

func (p *parser) num(v *string, element string) int {
	s := p.str(v, element)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		p.fail(element, err)
		return 0
	}
	return n
}

func optionalInt(v *string) (int, bool) {
	if v == nil {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(*v))
	if err != nil {
		return 0, false
	}
	return n, true
}

func (p *parser) definition(doc *document) *layout.FileDefinition {
	def := &layout.FileDefinition{}

	id := doc.Identification
	if id == nil {
		p.fail("identification", ErrMissingElement)
		return def
	}
	def.SelectName = p.str(id.SelectName, "select-name")
	def.FileName = strings.ToLower(p.str(id.TableName, "table-name"))
	def.Alphabet = p.str(id.Alphabet, "alphabet")
	def.MinRecordSize = p.num(id.MinRecordSize, "minimum-record-size")
	def.MaxRecordSize = p.num(id.MaxRecordSize, "maximum-record-size")
	def.NumberOfKeys = p.num(id.NumberOfKeys, "number-of-keys")

	if doc.Fields == nil {
		p.fail("fields", ErrMissingElement)
		return def
	}
	for i := range doc.Fields.Fields {
		def.Fields = append(def.Fields, p.field(&doc.Fields.Fields[i]))
	}
	def.Occurs = p.occursList(doc.Fields.Occurs)

	if doc.Keys == nil {
		p.fail("keys", ErrMissingElement)
		return def
	}
	for i := range doc.Keys.Keys {
		def.Keys = append(def.Keys, p.key(def, &doc.Keys.Keys[i]))
	}
	return def
}

func (p *parser) occursList(list []occurs) []*layout.OccursDefinition {
	var out []*layout.OccursDefinition
	for i := range list {
		o := &list[i]
		def := &layout.OccursDefinition{
			Count: p.num(o.Count, "occurs-count"),
			Size:  p.num(o.Size, "occurs-size"),
		}
		for j := range o.Fields {
			def.Fields = append(def.Fields, p.field(&o.Fields[j]))
		}
		def.Occurs = p.occursList(o.Occurs)
		out = append(out, def)
	}
	return out
}

func (p *parser) field(x *field) *layout.FieldDefinition {
	f := &layout.FieldDefinition{
		Name:   p.str(x.Name, "field-name"),
		Size:   p.num(x.Length, "field-length"),
		Scale:  -p.num(x.Scale, "field-scale"),
		Offset: p.num(x.Offset, "field-offset"),
		Bytes:  p.num(x.Bytes, "field-bytes"),
		Level:  p.num(x.Level, "field-level"),
	}

	if cond, ok := optionalInt(x.Condition); ok && cond == groupCondition {
		f.Group = true
	}

	code, _ := optionalInt(x.Type)
	flags, _ := optionalInt(x.UserFlags)
	f.Type, f.Signed = fieldType(code, flags)

	f.Normalize()
	return f
}

func fieldType(code, userFlags int) (layout.FieldType, bool) {
	switch code {
	case typeUnsignedNumeric:
		if userFlags == dateUserFlag {
			return layout.Date, false
		}
		return layout.Number, false
	case typeSignedNumeric:
		return layout.Number, true
	case typeAlphanumeric, typeAlphabetic, typeAlphanumericEdited:
		return layout.String, false
	case typeAlphanumericJustified, typeAlphabeticJustified, typeAlphanumericEditJustified:
		return layout.JustifiedString, false
	default:
		return layout.String, false
	}
}

func (p *parser) key(def *layout.FileDefinition, x *key) *layout.KeyDefinition {
	k := &layout.KeyDefinition{Unique: true}
	if x.DuplicatesAllowed != nil {
		dups, err := strconv.ParseBool(strings.TrimSpace(*x.DuplicatesAllowed))
		if err != nil {
			p.fail("duplicates-allowed", err)
		}
		k.Unique = !dups
	}

	if x.Columns != nil {
		for _, c := range x.Columns.Columns {
			name := p.str(c.Name, "key-column-name")
			if name == "" {
				continue
			}
			f, err := def.Lookup(name)
			if err != nil {
				p.fail("key-column-name", err)
				continue
			}
			k.Fields = append(k.Fields, f)
		}
	}

	if x.Segments == nil {
		p.fail("segments", ErrMissingElement)
		return k
	}
	for _, s := range x.Segments.Segments {
		k.Segments = append(k.Segments, layout.KeySegment{
			Size:   p.num(s.Size, "segment-size"),
			Offset: p.num(s.Offset, "segment-offset"),
		})
	}
	return k
}
