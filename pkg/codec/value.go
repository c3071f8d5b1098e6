package codec

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

// Kind names the type of value a caller wants back from a field
type Kind int

const (
	KindInt Kind = iota + 1
	KindLong
	KindDecimal
	KindText
	KindDate
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindLong:
		return "long"
	case KindDecimal:
		return "decimal"
	case KindText:
		return "text"
	case KindDate:
		return "date"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind converts a kind name (as printed by Kind.String) back to a Kind
func ParseKind(s string) (Kind, error) {
	for _, k := range []Kind{KindInt, KindLong, KindDecimal, KindText, KindDate} {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, errors.Wrapf(ErrUnsupportedKind, "%q", s)
}

// Value is a typed field value. The set of implementations is closed:
// Int, Long, Decimal, Text and Date.
type Value interface {
	Kind() Kind
	fmt.Stringer
	sealed()
}

// Int is a 32 bit integer value
type Int int32

// Long is a 64 bit integer value
type Long int64

// Decimal is an exact fixed-point value
type Decimal struct {
	decimal.Decimal
}

// Text is a string value
type Text string

// Date is an optional date/time value. The zero Date is "no value".
type Date struct {
	Time  time.Time
	Valid bool
}

// NewDecimal wraps d
func NewDecimal(d decimal.Decimal) Decimal {
	return Decimal{Decimal: d}
}

// NewDate returns a valid Date for t
func NewDate(t time.Time) Date {
	return Date{Time: t, Valid: true}
}

// NoDate is the empty date
var NoDate = Date{}

func (Int) Kind() Kind     { return KindInt }
func (Long) Kind() Kind    { return KindLong }
func (Decimal) Kind() Kind { return KindDecimal }
func (Text) Kind() Kind    { return KindText }
func (Date) Kind() Kind    { return KindDate }

func (v Int) String() string  { return fmt.Sprintf("%d", int32(v)) }
func (v Long) String() string { return fmt.Sprintf("%d", int64(v)) }
func (v Text) String() string { return string(v) }

func (v Date) String() string {
	if !v.Valid {
		return ""
	}
	return v.Time.Format(time.RFC3339)
}

func (Int) sealed()     {}
func (Long) sealed()    {}
func (Decimal) sealed() {}
func (Text) sealed()    {}
func (Date) sealed()    {}
