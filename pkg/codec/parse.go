package codec

import (
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"github.com/ssargent/visionfs/pkg/layout"
)

// ErrParse is returned when text cannot be read as a field's natural kind
var ErrParse = errors.New("cannot parse value")

// dateLayouts are tried in order by Parse
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"20060102",
}

// Location returns the time zone dates are decoded in
func (c *Converter) Location() *time.Location {
	return c.loc
}

// Parse reads s as the natural kind of f. It backs the command line and
// query string, where values arrive as text. An empty date is NoDate.
func (c *Converter) Parse(f *layout.FieldDefinition, s string) (Value, error) {
	switch kind := NaturalKind(f); kind {
	case KindText:
		return Text(s), nil
	case KindLong:
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, errors.Wrapf(ErrParse, "field %s: %q is not an integer", f.Name, s)
		}
		return Long(n), nil
	case KindDecimal:
		d, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil {
			return nil, errors.Wrapf(ErrParse, "field %s: %q is not a number", f.Name, s)
		}
		return NewDecimal(d), nil
	case KindDate:
		s = strings.TrimSpace(s)
		if s == "" {
			return NoDate, nil
		}
		for _, l := range dateLayouts {
			if t, err := time.ParseInLocation(l, s, c.loc); err == nil {
				return NewDate(t), nil
			}
		}
		return nil, errors.Wrapf(ErrParse, "field %s: %q is not a date", f.Name, s)
	default:
		return nil, errors.Wrapf(ErrUnsupportedKind, "field %s kind %s", f.Name, kind)
	}
}
