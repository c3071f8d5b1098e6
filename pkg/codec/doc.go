// Package codec converts between the bytes of a fixed-width record and
// typed values.
//
// Every field of a layout.FileDefinition occupies a window of the record
// buffer: Bytes bytes starting at Offset. The codec reads and writes those
// windows according to the field's storage class.
//
// # Field Encodings
//
// Text fields (String, JustifiedString) hold ASCII characters padded with
// spaces. String pads on the right, JustifiedString on the left. Reads trim
// trailing spaces.
//
// Number fields are zoned decimal: one ASCII digit per byte with an implied
// decimal point Scale digits from the right. A signed field carries a
// trailing separate sign byte ('+' or '-'):
//
//	PIC S9(5)V99 SIGN TRAILING SEPARATE, value -12.50  ->  "0001250-"
//
// Comp fields are big-endian binary integers. A Comp window filled with
// spaces (as in the empty record) reads as zero.
//
// Date fields are Number fields whose digits spell a date. A six digit
// field is yyMMdd with years 00-49 in the 2000s and 50-99 in the 1900s.
// Any other width is a prefix of yyyyMMddHHmmssffff. Blank, zero, partial
// or impossible dates read as NoDate, and NoDate writes as zeros.
//
// # Values
//
// Value is a closed sum type: Int, Long, Decimal, Text and Date. Get takes
// the Kind the caller wants back; Set dispatches on the dynamic type of the
// value, so there is no untyped write path.
//
//	conv := codec.NewConverter()
//	buf := conv.EmptyRecord(def)
//	f, _ := conv.Field(def, "ORD-TOTAL")
//	_ = conv.Set(f, buf, codec.NewDecimal(decimal.RequireFromString("12.50")))
//	v, _ := conv.Get(f, buf, codec.KindDecimal) // 12.5
//
// # Thread Safety
//
// A Converter is safe for concurrent use. It memoizes the empty record
// template and resolved fields per definition; EmptyRecord always returns
// a private copy.
package codec
