package files

import (
	"math"
	"strconv"
	"strings"

	"github.com/acolita/basic-fileio/internal/ioerr"
)

// Single and Double mark BASIC numeric precision for WRITE. Plain float32
// and float64 values are treated the same way.
type (
	Single float32
	Double float64
)

// repr returns the WRITE form of v: strings quoted, numbers without a
// leading space or type sign.
func repr(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return `"` + x + `"`, nil
	case []byte:
		return `"` + string(x) + `"`, nil
	case int:
		return strconv.Itoa(x), nil
	case int16:
		return strconv.Itoa(int(x)), nil
	case int32:
		return strconv.Itoa(int(x)), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float32:
		return formatFloat(float64(x), 7, 32, 'E')
	case Single:
		return formatFloat(float64(x), 7, 32, 'E')
	case float64:
		return formatFloat(x, 16, 64, 'D')
	case Double:
		return formatFloat(float64(x), 16, 64, 'D')
	}
	return "", ioerr.Op("WRITE", ioerr.TypeMismatch)
}

// formatFloat renders x with at most prec significant digits. The unscaled
// form is used unless it needs more than prec digits, so 1E-7 prints as
// .0000001 while 1E-8 and 1E+07 use an exponent.
func formatFloat(x float64, prec, bits int, exp byte) (string, error) {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return "", ioerr.Op("WRITE", ioerr.TypeMismatch)
	}
	if x == 0 {
		return "0", nil
	}
	sign := ""
	if x < 0 {
		sign, x = "-", -x
	}
	s := strconv.FormatFloat(x, 'e', prec-1, bits)
	mant, e, _ := strings.Cut(s, "e")
	digits := strings.TrimRight(strings.Replace(mant, ".", "", 1), "0")
	exp10, _ := strconv.Atoi(e)

	if exp10 >= prec || len(digits)-exp10-1 > prec {
		out := digits[:1]
		if len(digits) > 1 {
			out += "." + digits[1:]
		}
		esign := "+"
		if exp10 < 0 {
			esign, exp10 = "-", -exp10
		}
		es := strconv.Itoa(exp10)
		if len(es) < 2 {
			es = "0" + es
		}
		return sign + out + string(exp) + esign + es, nil
	}

	var b strings.Builder
	b.WriteString(sign)
	switch {
	case exp10 < 0:
		b.WriteString(".")
		b.WriteString(strings.Repeat("0", -exp10-1))
		b.WriteString(digits)
	case len(digits) <= exp10+1:
		b.WriteString(digits)
		b.WriteString(strings.Repeat("0", exp10+1-len(digits)))
	default:
		b.WriteString(digits[:exp10+1])
		b.WriteString(".")
		b.WriteString(digits[exp10+1:])
	}
	return b.String(), nil
}
