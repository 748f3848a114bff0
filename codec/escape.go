package codec

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/wippyai/mbridge/errors"
)

const hexDigits = "0123456789abcdef"

// EscapeForTransport escapes a raw byte string for embedding in a JSON string
// literal. Quote and backslash are backslash-escaped; control bytes and every
// byte above printable ASCII become \u00XX so the reply stays 7-bit clean
// regardless of charset.
func EscapeForTransport(s string) string {
	clean := true
	for i := 0; i < len(s); i++ {
		if c := s[i]; c < 0x20 || c > 0x7e || c == '"' || c == '\\' {
			clean = false
			break
		}
	}
	if clean {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			b.WriteString(`\"`)
		case c == '\\':
			b.WriteString(`\\`)
		case c < 0x20 || c > 0x7e:
			b.WriteString(`\u00`)
			b.WriteByte(hexDigits[c>>4])
			b.WriteByte(hexDigits[c&0xf])
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// UnescapeFromTransport reverses EscapeForTransport on the body of a JSON
// string literal (without the surrounding quotes). \u00XX escapes map back to
// the single raw byte; higher code points are written as UTF-8.
func UnescapeFromTransport(s string) (string, error) {
	if !strings.ContainsRune(s, '\\') {
		return s, nil
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		i++
		if i >= len(s) {
			return "", errors.InvalidData(errors.PhaseDecode, nil, "dangling backslash in transport string")
		}
		switch s[i] {
		case '"', '\\', '/':
			b.WriteByte(s[i])
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case 'u':
			r, err := hex4(s, i+1)
			if err != nil {
				return "", err
			}
			i += 4
			if r < 0x100 {
				b.WriteByte(byte(r))
				continue
			}
			if r >= 0xd800 && r < 0xdc00 && i+6 < len(s) && s[i+1] == '\\' && s[i+2] == 'u' {
				lo, err := hex4(s, i+3)
				if err == nil && lo >= 0xdc00 && lo < 0xe000 {
					r = 0x10000 + (r-0xd800)<<10 + (lo - 0xdc00)
					i += 6
				}
			}
			var buf [utf8.UTFMax]byte
			n := utf8.EncodeRune(buf[:], r)
			b.Write(buf[:n])
		default:
			return "", errors.InvalidData(errors.PhaseDecode, nil, "unknown escape \\"+string(s[i]))
		}
	}
	return b.String(), nil
}

func hex4(s string, at int) (rune, error) {
	if at+4 > len(s) {
		return 0, errors.InvalidData(errors.PhaseDecode, nil, "truncated \\u escape")
	}
	v, err := strconv.ParseUint(s[at:at+4], 16, 32)
	if err != nil {
		return 0, errors.InvalidData(errors.PhaseDecode, nil, "bad \\u escape "+s[at:at+4])
	}
	return rune(v), nil
}

// ParseTransportLiteral decodes one JSON scalar written by CanonicalizeOutbound:
// a quoted escaped string or a bare number.
func ParseTransportLiteral(raw string) (value string, isNumber bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return "", false, nil
	}
	if raw[0] == '"' {
		if len(raw) < 2 || raw[len(raw)-1] != '"' {
			return "", false, errors.InvalidData(errors.PhaseDecode, nil, "unterminated transport string")
		}
		v, err := UnescapeFromTransport(raw[1 : len(raw)-1])
		return v, false, err
	}
	switch raw {
	case "true":
		return "1", true, nil
	case "false":
		return "0", true, nil
	}
	if _, ok := CanonicalNumber(raw); !ok {
		return "", false, errors.InvalidData(errors.PhaseDecode, nil, "bad transport literal "+raw)
	}
	return raw, true, nil
}
