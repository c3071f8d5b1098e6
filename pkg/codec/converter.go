package codec

import (
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"github.com/ssargent/visionfs/pkg/layout"
)

var (
	// ErrUnsupportedKind is returned when a value kind has no conversion
	ErrUnsupportedKind = errors.New("unsupported value kind")
	// ErrValueTooLong is returned when text does not fit the field
	ErrValueTooLong = errors.New("value longer than field")
	// ErrValueOverflow is returned when a number has more digits than the field
	ErrValueOverflow = errors.New("numeric value overflows field")
	// ErrNegativeUnsigned is returned when a negative number targets an unsigned field
	ErrNegativeUnsigned = errors.New("negative value for unsigned field")
	// ErrShortRecord is returned when the buffer does not cover the field
	ErrShortRecord = errors.New("record buffer does not cover field")
)

const (
	zeroByte  = '0'
	nineByte  = '9'
	minusByte = '-'
	plusByte  = '+'
	spaceByte = ' '
)

// Converter maps field byte windows to typed values and back.
// It is safe for concurrent use; per-definition caches are populated once.
type Converter struct {
	loc       *time.Location
	templates sync.Map // *layout.FileDefinition -> []byte
	fields    sync.Map // *layout.FileDefinition -> *sync.Map of name -> *layout.FieldDefinition
}

// Option configures a Converter
type Option func(*Converter)

// WithLocation sets the time zone dates are decoded in (default time.Local)
func WithLocation(loc *time.Location) Option {
	return func(c *Converter) {
		c.loc = loc
	}
}

// NewConverter creates a converter
func NewConverter(opts ...Option) *Converter {
	c := &Converter{loc: time.Local}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func window(f *layout.FieldDefinition, buf []byte) ([]byte, error) {
	if f.Offset < 0 || f.End() > len(buf) {
		return nil, errors.Wrapf(ErrShortRecord, "field %s [%d,%d) in %d bytes", f.Name, f.Offset, f.End(), len(buf))
	}
	return buf[f.Offset:f.End()], nil
}

// Get decodes the field from buf as the requested kind
func (c *Converter) Get(f *layout.FieldDefinition, buf []byte, kind Kind) (Value, error) {
	if _, err := window(f, buf); err != nil {
		return nil, err
	}

	switch kind {
	case KindInt:
		n, err := c.integer(f, buf)
		if err != nil {
			return nil, err
		}
		if n > math.MaxInt32 || n < math.MinInt32 {
			return nil, errors.Wrapf(ErrValueOverflow, "field %s value %d does not fit an int", f.Name, n)
		}
		return Int(n), nil
	case KindLong:
		n, err := c.integer(f, buf)
		if err != nil {
			return nil, err
		}
		return Long(n), nil
	case KindDecimal:
		d, err := c.decimal(f, buf)
		if err != nil {
			return nil, err
		}
		return NewDecimal(d), nil
	case KindText:
		return Text(c.text(f, buf)), nil
	case KindDate:
		return c.date(f, buf), nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedKind, "%s requested for field %s", kind, f.Name)
	}
}

// Set encodes v into the field window of buf
func (c *Converter) Set(f *layout.FieldDefinition, buf []byte, v Value) error {
	if _, err := window(f, buf); err != nil {
		return err
	}

	switch v := v.(type) {
	case Int:
		return c.setNumber(f, buf, decimal.NewFromInt(int64(v)))
	case Long:
		return c.setNumber(f, buf, decimal.NewFromInt(int64(v)))
	case Decimal:
		return c.setNumber(f, buf, v.Decimal)
	case Text:
		return c.setText(f, buf, string(v))
	case Date:
		return c.setDate(f, buf, v)
	default:
		return errors.Wrapf(ErrUnsupportedKind, "%T for field %s", v, f.Name)
	}
}

// NaturalKind is the kind a field decodes to when the caller has no preference
func NaturalKind(f *layout.FieldDefinition) Kind {
	switch f.Type {
	case layout.Date:
		return KindDate
	case layout.Number:
		if f.Scale > 0 {
			return KindDecimal
		}
		return KindLong
	case layout.Comp:
		return KindLong
	default:
		return KindText
	}
}

// text decodes [offset, offset+size) and trims trailing spaces
func (c *Converter) text(f *layout.FieldDefinition, buf []byte) string {
	size := f.Size
	if size > f.Bytes || size <= 0 {
		size = f.Bytes
	}
	return strings.TrimRight(string(buf[f.Offset:f.Offset+size]), " ")
}

// digits scans the field window as zoned decimal: every byte in '0'..'9'
// is a digit, a '-' anywhere flips the sign, anything else is ignored.
func digits(f *layout.FieldDefinition, buf []byte) (int64, error) {
	var result int64
	var negative bool
	for _, b := range buf[f.Offset:f.End()] {
		if b == minusByte {
			negative = true
			continue
		}
		if b < zeroByte || b > nineByte {
			continue
		}
		if result > (math.MaxInt64-9)/10 {
			return 0, errors.Wrapf(ErrValueOverflow, "field %s has too many digits", f.Name)
		}
		result = result*10 + int64(b-zeroByte)
	}
	if negative {
		result = -result
	}
	return result, nil
}

// binary decodes a Comp field as a big-endian two's complement integer.
// Every byte pattern is a value; the empty record fills Comp with 0x00.
func binary(f *layout.FieldDefinition, buf []byte) (int64, error) {
	w := buf[f.Offset:f.End()]
	if len(w) > 8 {
		return 0, errors.Wrapf(ErrValueOverflow, "comp field %s wider than 8 bytes", f.Name)
	}
	var u uint64
	for _, b := range w {
		u = u<<8 | uint64(b)
	}
	if f.Signed && len(w) < 8 && len(w) > 0 && w[0]&0x80 != 0 {
		return int64(u) - int64(1)<<(8*uint(len(w))), nil
	}
	return int64(u), nil
}

func pow10(n int) int64 {
	p := int64(1)
	for i := 0; i < n; i++ {
		p *= 10
	}
	return p
}

// integer returns the logical integer value; scaled digits are divided by
// 10^scale and truncated toward zero
func (c *Converter) integer(f *layout.FieldDefinition, buf []byte) (int64, error) {
	if f.Type == layout.Comp {
		return binary(f, buf)
	}
	n, err := digits(f, buf)
	if err != nil {
		return 0, err
	}
	if f.Scale > 0 {
		n /= pow10(f.Scale)
	}
	return n, nil
}

func (c *Converter) decimal(f *layout.FieldDefinition, buf []byte) (decimal.Decimal, error) {
	if f.Type == layout.Comp {
		n, err := binary(f, buf)
		return decimal.NewFromInt(n), err
	}
	n, err := digits(f, buf)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.New(n, -int32(f.Scale)), nil
}

func (c *Converter) setNumber(f *layout.FieldDefinition, buf []byte, d decimal.Decimal) error {
	if f.Type == layout.Comp {
		return setBinary(f, buf, d.Round(0).IntPart())
	}

	scaled := d.Shift(int32(f.Scale)).Round(0)
	negative := scaled.Sign() < 0
	if negative && !f.Signed {
		return errors.Wrapf(ErrNegativeUnsigned, "field %s value %s", f.Name, d)
	}

	width := f.Bytes
	if f.Signed {
		width--
	}
	mag := scaled.Abs().StringFixed(0)
	if len(mag) > width {
		return errors.Wrapf(ErrValueOverflow, "field %s holds %d digits, value %s", f.Name, width, d)
	}

	out := buf[f.Offset:f.End()]
	pad := width - len(mag)
	for i := 0; i < pad; i++ {
		out[i] = zeroByte
	}
	copy(out[pad:width], mag)
	if f.Signed {
		out[width] = plusByte
		if negative {
			out[width] = minusByte
		}
	}
	return nil
}

func setBinary(f *layout.FieldDefinition, buf []byte, n int64) error {
	w := f.Bytes
	if w > 8 {
		return errors.Wrapf(ErrValueOverflow, "comp field %s wider than 8 bytes", f.Name)
	}
	if !f.Signed && n < 0 {
		return errors.Wrapf(ErrNegativeUnsigned, "field %s value %d", f.Name, n)
	}
	if w < 8 {
		bits := uint(8 * w)
		if f.Signed {
			limit := int64(1) << (bits - 1)
			if n < -limit || n >= limit {
				return errors.Wrapf(ErrValueOverflow, "field %s value %d", f.Name, n)
			}
		} else if n >= int64(1)<<bits {
			return errors.Wrapf(ErrValueOverflow, "field %s value %d", f.Name, n)
		}
	}
	u := uint64(n)
	out := buf[f.Offset:f.End()]
	for i := w - 1; i >= 0; i-- {
		out[i] = byte(u)
		u >>= 8
	}
	return nil
}

func (c *Converter) setText(f *layout.FieldDefinition, buf []byte, s string) error {
	ascii := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0x7f {
			r = '?'
		}
		ascii = append(ascii, byte(r))
	}
	if len(ascii) > f.Bytes {
		return errors.Wrapf(ErrValueTooLong, "field %s cannot be longer than %d bytes", f.Name, f.Bytes)
	}

	out := buf[f.Offset:f.End()]
	pad := f.Bytes - len(ascii)
	start := 0
	if f.Type == layout.JustifiedString {
		start = pad
	}
	for i := range out {
		out[i] = spaceByte
	}
	copy(out[start:], ascii)
	return nil
}

// date decodes the field as yyMMdd (6 digits) or as a prefix of
// yyyyMMddHHmmssffff. At an odd width the last unit has a single digit
// (yyyyMMd, yyyyMMddH, yyyyMMddHHm, yyyyMMddHHmms). Anything blank, zero,
// too short or outside the calendar decodes to NoDate.
func (c *Converter) date(f *layout.FieldDefinition, buf []byte) Date {
	s := c.text(f, buf)
	if s == "" || strings.Trim(s, "0") == "" || len(s) < 6 || len(s) > len(dateDigits) {
		return NoDate
	}
	for i := 0; i < len(s); i++ {
		if s[i] < zeroByte || s[i] > nineByte {
			return NoDate
		}
	}

	n := len(s)
	num := func(from, to int) int {
		v, _ := strconv.Atoi(s[from:min(to, n)])
		return v
	}

	var year, month, day, hour, minute, sec, nsec int
	if n == 6 {
		year = num(0, 2)
		if year < 50 {
			year += 2000
		} else {
			year += 1900
		}
		month, day = num(2, 4), num(4, 6)
	} else {
		year, month, day = num(0, 4), num(4, 6), num(6, 8)
		if n > 8 {
			hour = num(8, 10)
		}
		if n > 10 {
			minute = num(10, 12)
		}
		if n > 12 {
			sec = num(12, 14)
		}
		if n > 14 {
			nsec = num(14, n) * int(pow10(9-(n-14)))
		}
	}

	t := time.Date(year, time.Month(month), day, hour, minute, sec, nsec, c.loc)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day ||
		t.Hour() != hour || t.Minute() != minute || t.Second() != sec {
		return NoDate
	}
	return NewDate(t)
}

// dateDigits is the longest date layout
const dateDigits = "yyyyMMddHHmmssffff"

// formatDate renders t with the pattern derived from width. At widths 7,
// 9, 11 and 13 the last unit is written without padding and must fit.
func formatDate(t time.Time, width int) (string, bool) {
	if width == 6 {
		return t.Format("060102"), true
	}
	if width < 6 || width > len(dateDigits) {
		return "", false
	}
	full := t.Format("20060102150405") + strconv.Itoa(10000 + t.Nanosecond()/100000)[1:]
	var last int
	switch width {
	case 7:
		last = t.Day()
	case 9:
		last = t.Hour()
	case 11:
		last = t.Minute()
	case 13:
		last = t.Second()
	default:
		return full[:width], true
	}
	if last > 9 {
		return "", false
	}
	return full[:width-1] + strconv.Itoa(last), true
}

func (c *Converter) setDate(f *layout.FieldDefinition, buf []byte, v Date) error {
	out := buf[f.Offset:f.End()]
	if !v.Valid {
		for i := range out {
			out[i] = zeroByte
		}
		return nil
	}
	s, ok := formatDate(v.Time, f.Bytes)
	if !ok {
		return errors.Wrapf(ErrValueOverflow, "date %s does not fit field %s (%d bytes)",
			v.Time.Format(time.RFC3339), f.Name, f.Bytes)
	}
	copy(out, s)
	return nil
}

// EmptyRecord returns a fresh copy of the canonical empty record for def.
// The template is built once per definition: fillers and text are spaces,
// Number and Date digits are '0', a signed field ends with '+' and Comp
// bytes are 0x00.
func (c *Converter) EmptyRecord(def *layout.FileDefinition) []byte {
	if t, ok := c.templates.Load(def); ok {
		return append([]byte(nil), t.([]byte)...)
	}
	t, _ := c.templates.LoadOrStore(def, buildTemplate(def))
	return append([]byte(nil), t.([]byte)...)
}

func buildTemplate(def *layout.FileDefinition) []byte {
	buf := make([]byte, def.MaxRecordSize)
	pos := 0
	for _, f := range def.Layout() {
		if f.Offset < pos {
			continue
		}
		for pos < f.Offset && pos < len(buf) {
			buf[pos] = spaceByte
			pos++
		}
		last := f.Bytes - 1
		for i := 0; i < f.Bytes && pos < len(buf); i++ {
			switch {
			case f.Type == layout.Comp:
				buf[pos] = 0x00
			case f.Type.Numeric() && f.Signed && i == last:
				buf[pos] = plusByte
			case f.Type.Numeric():
				buf[pos] = zeroByte
			default:
				buf[pos] = spaceByte
			}
			pos++
		}
	}
	for ; pos < len(buf); pos++ {
		buf[pos] = spaceByte
	}
	return buf
}

// Field resolves a field name against def, caching the result. Concurrent
// first-time lookups of the same name are safe.
func (c *Converter) Field(def *layout.FileDefinition, name string) (*layout.FieldDefinition, error) {
	v, ok := c.fields.Load(def)
	if !ok {
		v, _ = c.fields.LoadOrStore(def, &sync.Map{})
	}
	cache := v.(*sync.Map)

	if f, ok := cache.Load(name); ok {
		return f.(*layout.FieldDefinition), nil
	}
	f, err := def.Lookup(name)
	if err != nil {
		return nil, err
	}
	actual, _ := cache.LoadOrStore(name, f)
	return actual.(*layout.FieldDefinition), nil
}
