package privacy

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

type valueKind uint8

const (
	kindNull valueKind = iota
	kindNumber
	kindString
)

// Value is a test value: a number, a string kept verbatim, or null.
type Value struct {
	kind valueKind
	num  float64
	str  string
}

// Null returns the null value.
func Null() Value { return Value{} }

// Number returns a numeric value.
func Number(f float64) Value { return Value{kind: kindNumber, num: f} }

// Text returns a string value that is kept verbatim.
func Text(s string) Value { return Value{kind: kindString, str: s} }

func (v Value) IsNull() bool   { return v.kind == kindNull }
func (v Value) IsNumber() bool { return v.kind == kindNumber }

// Float returns the numeric value and whether v is a number.
func (v Value) Float() (float64, bool) {
	return v.num, v.kind == kindNumber
}

// String renders the value the way it appears in prompts.
func (v Value) String() string {
	switch v.kind {
	case kindNumber:
		return FormatNumber(v.num)
	case kindString:
		return v.str
	default:
		return "null"
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case kindNumber:
		return []byte(FormatNumber(v.num)), nil
	case kindString:
		return json.Marshal(v.str)
	default:
		return []byte("null"), nil
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = Null()
		return nil
	}
	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*v = toValue(raw)
	return nil
}

// FormatNumber renders f in the shortest round-trip form, switching to
// exponent notation outside [1e-6, 1e21) like a browser would.
func FormatNumber(f float64) string {
	if f == 0 {
		return "0"
	}
	abs := math.Abs(f)
	if abs >= 1e21 || abs < 1e-6 {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		mant, exp, _ := strings.Cut(s, "e")
		sign := exp[0]
		exp = strings.TrimLeft(exp[1:], "0")
		return mant + "e" + string(sign) + exp
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

var decimalPattern = regexp.MustCompile(`^[+-]?(?:\d+\.?\d*|\.\d+)(?:[eE][+-]?\d+)?$`)

// parseNumber converts s with browser Number() rules: surrounding whitespace
// is ignored, the empty string is zero and 0x/0o/0b integer literals are
// accepted. Infinite results are rejected because they have no JSON form.
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, true
	}

	if len(s) > 2 && s[0] == '0' {
		base := 0
		switch s[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 0 {
			if strings.ContainsRune(s[2:], '_') {
				return 0, false
			}
			n, err := strconv.ParseUint(s[2:], base, 64)
			if err != nil {
				return 0, false
			}
			return float64(n), true
		}
	}

	if !decimalPattern.MatchString(s) {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// toValue applies the "numeric or original" rule to a decoded JSON value.
// Structured values have no place in a prompt and become null.
func toValue(raw any) Value {
	switch x := raw.(type) {
	case nil:
		return Null()
	case float64:
		return Number(x)
	case float32:
		return Number(float64(x))
	case int:
		return Number(float64(x))
	case int64:
		return Number(float64(x))
	case json.Number:
		if f, ok := parseNumber(x.String()); ok {
			return Number(f)
		}
		return Text(x.String())
	case bool:
		if x {
			return Number(1)
		}
		return Number(0)
	case string:
		if f, ok := parseNumber(x); ok {
			return Number(f)
		}
		return Text(x)
	case Value:
		return x
	default:
		return Null()
	}
}

// toText copies scalar fields such as unit and reference. Anything that is
// not a scalar is dropped.
func toText(raw any) *string {
	var s string
	switch x := raw.(type) {
	case string:
		s = x
	case json.Number:
		s = x.String()
	case float64:
		s = FormatNumber(x)
	case int:
		s = strconv.Itoa(x)
	case int64:
		s = strconv.FormatInt(x, 10)
	case bool:
		s = strconv.FormatBool(x)
	default:
		return nil
	}
	return &s
}
