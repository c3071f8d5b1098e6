package codec

import (
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"github.com/ssargent/visionfs/pkg/layout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDefinition() *layout.FileDefinition {
	return &layout.FileDefinition{
		SelectName:    "ITEMS",
		FileName:      "items",
		MinRecordSize: 30,
		MaxRecordSize: 30,
		Fields: []*layout.FieldDefinition{
			{Name: "CODE", Offset: 0, Bytes: 4, Size: 4, Type: layout.String},
			{Name: "CODE-NUM", Offset: 0, Bytes: 2, Size: 2, Type: layout.Number},
			{Name: "NOTE", Offset: 4, Bytes: 5, Size: 5, Type: layout.JustifiedString},
			{Name: "QTY", Offset: 9, Bytes: 3, Size: 3, Type: layout.Number},
			{Name: "AMOUNT", Offset: 12, Bytes: 6, Size: 5, Scale: 2, Signed: true, Type: layout.Number},
			{Name: "FLAGS", Offset: 18, Bytes: 2, Size: 2, Signed: true, Type: layout.Comp},
			{Name: "SHIPPED", Offset: 20, Bytes: 8, Size: 8, Type: layout.Date},
		},
	}
}

func field(t *testing.T, c *Converter, def *layout.FileDefinition, name string) *layout.FieldDefinition {
	t.Helper()
	f, err := c.Field(def, name)
	require.NoError(t, err)
	return f
}

func TestConverter_EmptyRecord(t *testing.T) {
	c := NewConverter()
	def := testDefinition()

	buf := c.EmptyRecord(def)
	assert.Equal(t, "         00000000+\x00\x0000000000  ", string(buf))

	// every call returns a private copy
	buf[0] = 'X'
	assert.Equal(t, byte(' '), c.EmptyRecord(def)[0])
}

func TestConverter_EmptyRecordOccurs(t *testing.T) {
	c := NewConverter()
	def := &layout.FileDefinition{
		FileName:      "grid",
		MinRecordSize: 10,
		MaxRecordSize: 10,
		Fields: []*layout.FieldDefinition{
			{Name: "ID", Offset: 0, Bytes: 2, Size: 2, Type: layout.Number},
			{Name: "ROWS", Offset: 2, Bytes: 6, Size: 6, Group: true},
		},
		Occurs: []*layout.OccursDefinition{{
			Count: 3,
			Size:  6,
			Fields: []*layout.FieldDefinition{
				{Name: "A", Offset: 2, Bytes: 1, Size: 1, Type: layout.String},
				{Name: "N", Offset: 3, Bytes: 1, Size: 1, Type: layout.Number},
			},
		}},
	}
	assert.Equal(t, "00 0 0 0  ", string(c.EmptyRecord(def)))
}

func TestConverter_Text(t *testing.T) {
	c := NewConverter()
	def := testDefinition()
	buf := c.EmptyRecord(def)

	code := field(t, c, def, "CODE")
	note := field(t, c, def, "NOTE")

	require.NoError(t, c.Set(code, buf, Text("AB")))
	require.NoError(t, c.Set(note, buf, Text("XY")))
	assert.Equal(t, "AB      XY", string(buf[:9]))

	v, err := c.Get(code, buf, KindText)
	require.NoError(t, err)
	assert.Equal(t, Text("AB"), v)

	require.NoError(t, c.Set(code, buf, Text("é")))
	assert.Equal(t, "?   ", string(buf[:4]))

	err = c.Set(code, buf, Text("TOOLONG"))
	assert.True(t, errors.Is(err, ErrValueTooLong))
}

func TestConverter_GetNumber(t *testing.T) {
	c := NewConverter()
	amount := &layout.FieldDefinition{Name: "AMOUNT", Offset: 0, Bytes: 6, Size: 5, Scale: 2, Signed: true, Type: layout.Number}

	tests := []struct {
		name    string
		raw     string
		decimal string
		long    int64
	}{
		{"positive", "01299+", "12.99", 12},
		{"negative", "01299-", "-12.99", -12},
		{"zero", "00000+", "0", 0},
		{"spaces ignored", " 1 5 +", "0.15", 0},
		{"empty", "      ", "0", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := []byte(tt.raw)

			d, err := c.Get(amount, buf, KindDecimal)
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.decimal).Equal(d.(Decimal).Decimal), "got %s", d)

			l, err := c.Get(amount, buf, KindLong)
			require.NoError(t, err)
			assert.Equal(t, Long(tt.long), l)

			i, err := c.Get(amount, buf, KindInt)
			require.NoError(t, err)
			assert.Equal(t, Int(tt.long), i)
		})
	}
}

func TestConverter_SetNumber(t *testing.T) {
	c := NewConverter()
	amount := &layout.FieldDefinition{Name: "AMOUNT", Offset: 0, Bytes: 6, Size: 5, Scale: 2, Signed: true, Type: layout.Number}
	qty := &layout.FieldDefinition{Name: "QTY", Offset: 0, Bytes: 3, Size: 3, Type: layout.Number}

	tests := []struct {
		name  string
		field *layout.FieldDefinition
		value Value
		want  string
		err   error
	}{
		{"decimal", amount, NewDecimal(decimal.RequireFromString("12.5")), "01250+", nil},
		{"negative decimal", amount, NewDecimal(decimal.RequireFromString("-0.07")), "00007-", nil},
		{"rounds half away from zero", amount, NewDecimal(decimal.RequireFromString("1.005")), "00101+", nil},
		{"rounds negative half away from zero", amount, NewDecimal(decimal.RequireFromString("-1.005")), "00101-", nil},
		{"long is scaled", amount, Long(7), "00700+", nil},
		{"int unsigned", qty, Int(42), "042", nil},
		{"overflow", amount, NewDecimal(decimal.RequireFromString("1000")), "", ErrValueOverflow},
		{"overflow unsigned", qty, Long(1000), "", ErrValueOverflow},
		{"negative unsigned", qty, Int(-1), "", ErrNegativeUnsigned},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := []byte("xxxxxx")[:tt.field.Bytes]
			err := c.Set(tt.field, buf, tt.value)
			if tt.err != nil {
				assert.True(t, errors.Is(err, tt.err), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(buf))
		})
	}
}

func TestConverter_Comp(t *testing.T) {
	c := NewConverter()
	signed := &layout.FieldDefinition{Name: "S", Offset: 0, Bytes: 2, Size: 2, Signed: true, Type: layout.Comp}
	unsigned := &layout.FieldDefinition{Name: "U", Offset: 0, Bytes: 2, Size: 2, Type: layout.Comp}

	buf := make([]byte, 2)

	require.NoError(t, c.Set(signed, buf, Long(-2)))
	assert.Equal(t, []byte{0xFF, 0xFE}, buf)
	v, err := c.Get(signed, buf, KindLong)
	require.NoError(t, err)
	assert.Equal(t, Long(-2), v)

	v, err = c.Get(unsigned, buf, KindLong)
	require.NoError(t, err)
	assert.Equal(t, Long(65534), v)

	require.NoError(t, c.Set(unsigned, buf, Int(258)))
	assert.Equal(t, []byte{0x01, 0x02}, buf)

	v, err = c.Get(unsigned, []byte{0x00, 0x00}, KindInt)
	require.NoError(t, err)
	assert.Equal(t, Int(0), v)

	// byte patterns that look like text filler are still values
	tests := []struct {
		bytes int
		value int64
		want  []byte
	}{
		{1, 32, []byte(" ")},
		{2, 0x2020, []byte("  ")},
		{4, 0x20202020, []byte("    ")},
	}
	for _, tt := range tests {
		f := &layout.FieldDefinition{Name: "C", Offset: 0, Bytes: tt.bytes, Size: tt.bytes, Type: layout.Comp}
		b := make([]byte, tt.bytes)
		require.NoError(t, c.Set(f, b, Long(tt.value)))
		assert.Equal(t, tt.want, b)
		v, err := c.Get(f, b, KindLong)
		require.NoError(t, err)
		assert.Equal(t, Long(tt.value), v, "%d bytes", tt.bytes)
	}

	assert.True(t, errors.Is(c.Set(signed, buf, Long(40000)), ErrValueOverflow))
	assert.True(t, errors.Is(c.Set(unsigned, buf, Long(-1)), ErrNegativeUnsigned))
}

func TestConverter_GetDate(t *testing.T) {
	c := NewConverter(WithLocation(time.UTC))

	tests := []struct {
		name string
		raw  string
		want time.Time
		ok   bool
	}{
		{"two digit year low", "240309", time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), true},
		{"two digit year high", "991231", time.Date(1999, 12, 31, 0, 0, 0, 0, time.UTC), true},
		{"pivot", "500101", time.Date(1950, 1, 1, 0, 0, 0, 0, time.UTC), true},
		{"date", "20240309", time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), true},
		{"date and hour", "2024030915", time.Date(2024, 3, 9, 15, 0, 0, 0, time.UTC), true},
		{"timestamp", "20240309153012", time.Date(2024, 3, 9, 15, 30, 12, 0, time.UTC), true},
		{"fraction", "202403091530121234", time.Date(2024, 3, 9, 15, 30, 12, 123400000, time.UTC), true},
		{"partial fraction", "202403091530125", time.Date(2024, 3, 9, 15, 30, 12, 500000000, time.UTC), true},
		{"zeros", "00000000", time.Time{}, false},
		{"blank", "        ", time.Time{}, false},
		{"single digit day", "2024031 ", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), true},
		{"single digit hour", "202403091", time.Date(2024, 3, 9, 1, 0, 0, 0, time.UTC), true},
		{"single digit minute", "20240309157", time.Date(2024, 3, 9, 15, 7, 0, 0, time.UTC), true},
		{"single digit second", "2024030915304", time.Date(2024, 3, 9, 15, 30, 4, 0, time.UTC), true},
		{"day zero", "2024030", time.Time{}, false},
		{"too short", "2403", time.Time{}, false},
		{"impossible", "20240230", time.Time{}, false},
		{"bad hour", "2024030925", time.Time{}, false},
		{"letters", "2024O309", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &layout.FieldDefinition{Name: "D", Offset: 0, Bytes: len(tt.raw), Size: len(tt.raw), Type: layout.Date}
			v, err := c.Get(f, []byte(tt.raw), KindDate)
			require.NoError(t, err)
			d := v.(Date)
			assert.Equal(t, tt.ok, d.Valid)
			if tt.ok {
				assert.True(t, tt.want.Equal(d.Time), "got %s", d.Time)
			}
		})
	}
}

func TestConverter_SetDate(t *testing.T) {
	c := NewConverter(WithLocation(time.UTC))
	when := time.Date(2024, 3, 9, 15, 30, 12, 123456789, time.UTC)

	tests := []struct {
		width int
		want  string
	}{
		{6, "240309"},
		{8, "20240309"},
		{14, "20240309153012"},
		{18, "202403091530121234"},
	}

	for _, tt := range tests {
		f := &layout.FieldDefinition{Name: "D", Offset: 0, Bytes: tt.width, Size: tt.width, Type: layout.Date}
		buf := make([]byte, tt.width)
		require.NoError(t, c.Set(f, buf, NewDate(when)))
		assert.Equal(t, tt.want, string(buf))

		require.NoError(t, c.Set(f, buf, NoDate))
		assert.Equal(t, zeros(tt.width), string(buf))
	}

	wide := &layout.FieldDefinition{Name: "W", Offset: 0, Bytes: 20, Size: 20, Type: layout.Date}
	assert.True(t, errors.Is(c.Set(wide, make([]byte, 20), NewDate(when)), ErrValueOverflow))
}

func TestConverter_SetDateOddWidths(t *testing.T) {
	c := NewConverter(WithLocation(time.UTC))
	early := time.Date(2024, 3, 5, 7, 8, 9, 0, time.UTC)

	tests := []struct {
		width int
		want  string
		back  time.Time
	}{
		{7, "2024035", time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
		{9, "202403057", time.Date(2024, 3, 5, 7, 0, 0, 0, time.UTC)},
		{11, "20240305078", time.Date(2024, 3, 5, 7, 8, 0, 0, time.UTC)},
		{13, "2024030507089", early},
	}

	for _, tt := range tests {
		f := &layout.FieldDefinition{Name: "D", Offset: 0, Bytes: tt.width, Size: tt.width, Type: layout.Date}
		buf := make([]byte, tt.width)
		require.NoError(t, c.Set(f, buf, NewDate(early)))
		assert.Equal(t, tt.want, string(buf))

		v, err := c.Get(f, buf, KindDate)
		require.NoError(t, err)
		d := v.(Date)
		require.True(t, d.Valid, "width %d", tt.width)
		assert.True(t, tt.back.Equal(d.Time), "width %d got %s", tt.width, d.Time)
	}

	// a two digit hour does not fit yyyyMMddH
	f := &layout.FieldDefinition{Name: "D", Offset: 0, Bytes: 9, Size: 9, Type: layout.Date}
	late := time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC)
	assert.True(t, errors.Is(c.Set(f, make([]byte, 9), NewDate(late)), ErrValueOverflow))
}

func zeros(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = '0'
	}
	return string(b)
}

func TestConverter_Errors(t *testing.T) {
	c := NewConverter()
	f := &layout.FieldDefinition{Name: "F", Offset: 4, Bytes: 4, Size: 4, Type: layout.String}

	_, err := c.Get(f, make([]byte, 6), KindText)
	assert.True(t, errors.Is(err, ErrShortRecord))

	assert.True(t, errors.Is(c.Set(f, make([]byte, 6), Text("a")), ErrShortRecord))

	_, err = c.Get(f, make([]byte, 8), Kind(99))
	assert.True(t, errors.Is(err, ErrUnsupportedKind))

	assert.True(t, errors.Is(c.Set(f, make([]byte, 8), nil), ErrUnsupportedKind))

	big := &layout.FieldDefinition{Name: "BIG", Offset: 0, Bytes: 12, Size: 12, Type: layout.Number}
	_, err = c.Get(big, []byte("999999999999"), KindInt)
	assert.True(t, errors.Is(err, ErrValueOverflow))
}

func TestConverter_FieldConcurrent(t *testing.T) {
	c := NewConverter()
	def := testDefinition()

	const workers = 16
	results := make([]*layout.FieldDefinition, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f, err := c.Field(def, "AMOUNT")
			if err == nil {
				results[i] = f
			}
		}(i)
	}
	wg.Wait()

	for _, f := range results {
		require.NotNil(t, f)
		assert.Same(t, results[0], f)
	}

	_, err := c.Field(def, "MISSING")
	assert.True(t, errors.Is(err, layout.ErrFieldNotFound))
}

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{KindInt, KindLong, KindDecimal, KindText, KindDate} {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseKind("float")
	assert.True(t, errors.Is(err, ErrUnsupportedKind))
	assert.Contains(t, err.Error(), `"float"`)
}

func TestNaturalKind(t *testing.T) {
	def := testDefinition()
	want := map[string]Kind{
		"CODE":    KindText,
		"NOTE":    KindText,
		"QTY":     KindLong,
		"AMOUNT":  KindDecimal,
		"FLAGS":   KindLong,
		"SHIPPED": KindDate,
	}
	for name, k := range want {
		f, err := def.Lookup(name)
		require.NoError(t, err)
		assert.Equal(t, k, NaturalKind(f), name)
	}
}

func TestConverter_Parse(t *testing.T) {
	c := NewConverter(WithLocation(time.UTC))
	def := testDefinition()

	tests := []struct {
		field string
		in    string
		want  Value
		err   error
	}{
		{"CODE", "AB", Text("AB"), nil},
		{"QTY", " 42 ", Long(42), nil},
		{"QTY", "4x", nil, ErrParse},
		{"AMOUNT", "-12.5", NewDecimal(decimal.RequireFromString("-12.5")), nil},
		{"AMOUNT", "abc", nil, ErrParse},
		{"FLAGS", "-3", Long(-3), nil},
		{"SHIPPED", "2024-03-09", NewDate(time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)), nil},
		{"SHIPPED", "20240309", NewDate(time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)), nil},
		{"SHIPPED", "", NoDate, nil},
		{"SHIPPED", "March", nil, ErrParse},
	}

	for _, tt := range tests {
		t.Run(tt.field+"/"+tt.in, func(t *testing.T) {
			got, err := c.Parse(field(t, c, def, tt.field), tt.in)
			if tt.err != nil {
				assert.True(t, errors.Is(err, tt.err), "got %v", err)
				return
			}
			require.NoError(t, err)
			if d, ok := tt.want.(Decimal); ok {
				assert.True(t, d.Equal(got.(Decimal).Decimal))
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
