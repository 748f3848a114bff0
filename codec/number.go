package codec

import (
	"math"
	"math/big"
	"strconv"
	"strings"
)

// MaxDigits is the embedded runtime's numeric precision in significant digits.
const MaxDigits = 18

// Number is a numeric value in host text form ("0.5", "-12", "1e+21").
type Number string

func (n Number) String() string { return string(n) }

// Float64 converts n, losing precision beyond what float64 carries.
func (n Number) Float64() (float64, error) {
	return strconv.ParseFloat(string(n), 64)
}

// Int64 converts n when it is integral.
func (n Number) Int64() (int64, error) {
	return strconv.ParseInt(string(n), 10, 64)
}

// FormatFloat renders f in host numeric text form: plain decimal with a
// leading zero, switching to exponent notation below 1e-6 or from 1e21 up.
func FormatFloat(f float64) string {
	if f == 0 {
		return "0"
	}
	abs := math.Abs(f)
	if abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'e', -1, 64)
}

// IsHostNumber reports whether token is exactly the host's rendering of its
// own numeric value. Tokens with exponent markers never qualify since the
// embedded runtime has no exponent notation.
func IsHostNumber(token string) bool {
	if token == "" || len(token) > 32 {
		return false
	}
	for i := 0; i < len(token); i++ {
		c := token[i]
		if (c < '0' || c > '9') && c != '-' && c != '.' {
			return false
		}
	}
	f, err := strconv.ParseFloat(token, 64)
	if err != nil || math.IsInf(f, 0) {
		return false
	}
	return FormatFloat(f) == token
}

// IsInboundNumber reports whether a host token crosses as a number: either
// the host's rendering of its own value, or an embedded canonical number
// with the host's leading zero, which is how replies deliver numbers the
// host float cannot represent (".0000001", 18-digit fractions).
func IsInboundNumber(token string) bool {
	if IsHostNumber(token) {
		return true
	}
	e := stripLeadingZero(token)
	return IsEmbeddedNumber(e) && restoreLeadingZero(e) == token
}

// RuntimeNumber converts a number in host text form to embedded form
// without re-checking that the host can represent it.
func RuntimeNumber(host string) string {
	return stripLeadingZero(host)
}

// IsEmbeddedNumber reports whether token is in the embedded runtime's
// canonical numeric form: optional '-', no leading zero before the point,
// no trailing fractional zeros, no "-0", at most MaxDigits significant digits.
func IsEmbeddedNumber(token string) bool {
	s := token
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	if s == "" {
		return false
	}
	if s == "0" {
		return !neg
	}
	intp, frac, dot := strings.Cut(s, ".")
	if intp != "" {
		if intp[0] == '0' || !allDigits(intp) {
			return false
		}
	}
	if dot {
		if frac == "" || !allDigits(frac) || frac[len(frac)-1] == '0' {
			return false
		}
	} else if intp == "" {
		return false
	}
	return significantDigits(intp+frac) <= MaxDigits
}

// CanonicalNumber converts text matching an optional sign, digits and an
// optional fraction into embedded canonical form, rounding to MaxDigits.
// It reports false when s does not have that shape.
func CanonicalNumber(s string) (string, bool) {
	neg := false
	switch {
	case strings.HasPrefix(s, "-"):
		neg = true
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	intp, frac, dot := strings.Cut(s, ".")
	if intp == "" && frac == "" {
		return "", false
	}
	if (intp != "" && !allDigits(intp)) || (dot && frac != "" && !allDigits(frac)) {
		return "", false
	}

	digits := intp + frac
	point := len(intp)
	for len(digits) > 0 && digits[0] == '0' {
		digits = digits[1:]
		point--
	}
	digits = strings.TrimRight(digits, "0")
	if digits == "" {
		return "0", true
	}
	if len(digits) > MaxDigits {
		digits, point = roundDigits(digits, point)
	}

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	switch {
	case point <= 0:
		b.WriteByte('.')
		b.WriteString(strings.Repeat("0", -point))
		b.WriteString(digits)
	case point >= len(digits):
		b.WriteString(digits)
		b.WriteString(strings.Repeat("0", point-len(digits)))
	default:
		b.WriteString(digits[:point])
		b.WriteByte('.')
		b.WriteString(digits[point:])
	}
	return b.String(), true
}

func roundDigits(digits string, point int) (string, int) {
	up := digits[MaxDigits] >= '5'
	buf := []byte(digits[:MaxDigits])
	if up {
		i := len(buf) - 1
		for ; i >= 0; i-- {
			if buf[i] == '9' {
				buf[i] = '0'
				continue
			}
			buf[i]++
			break
		}
		if i < 0 {
			buf = append([]byte{'1'}, buf...)
			point++
		}
	}
	return strings.TrimRight(string(buf), "0"), point
}

// NumericValue interprets s the way the embedded runtime coerces strings in
// arithmetic: the longest numeric prefix, or 0.
func NumericValue(s string) string {
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digitsStart := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end < len(s) && s[end] == '.' {
		end++
		for end < len(s) && s[end] >= '0' && s[end] <= '9' {
			end++
		}
	}
	if end == digitsStart || s[digitsStart:end] == "." {
		return "0"
	}
	n, ok := CanonicalNumber(strings.TrimSuffix(s[:end], "."))
	if !ok {
		return "0"
	}
	return n
}

// Rat parses an embedded canonical number.
func Rat(s string) (*big.Rat, bool) {
	switch {
	case strings.HasPrefix(s, "."):
		s = "0" + s
	case strings.HasPrefix(s, "-."):
		s = "-0" + s[1:]
	}
	return new(big.Rat).SetString(s)
}

// Add returns the canonical sum of two numeric strings.
func Add(a, b string) (string, bool) {
	x, ok := Rat(NumericValue(a))
	if !ok {
		return "", false
	}
	y, ok := Rat(NumericValue(b))
	if !ok {
		return "", false
	}
	sum := new(big.Rat).Add(x, y)
	return CanonicalNumber(sum.FloatString(MaxDigits))
}

// CompareNumbers orders two embedded canonical numbers.
func CompareNumbers(a, b string) int {
	x, okx := Rat(a)
	y, oky := Rat(b)
	if !okx || !oky {
		return strings.Compare(a, b)
	}
	return x.Cmp(y)
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func significantDigits(d string) int {
	d = strings.TrimLeft(d, "0")
	d = strings.TrimRight(d, "0")
	return len(d)
}
