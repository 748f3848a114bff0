package codec

import "strings"

// Quote renders s as an embedded string literal: surrounding double quotes
// with inner quotes doubled.
func Quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// IsQuoted reports whether token is a well-formed embedded string literal.
func IsQuoted(token string) bool {
	_, ok := Unquote(token)
	return ok
}

// Unquote reverses Quote.
func Unquote(lit string) (string, bool) {
	if len(lit) < 2 || lit[0] != '"' || lit[len(lit)-1] != '"' {
		return "", false
	}
	body := lit[1 : len(lit)-1]
	if !strings.Contains(body, `"`) {
		return body, true
	}
	var b strings.Builder
	b.Grow(len(body))
	for i := 0; i < len(body); i++ {
		if body[i] != '"' {
			b.WriteByte(body[i])
			continue
		}
		if i+1 >= len(body) || body[i+1] != '"' {
			return "", false
		}
		b.WriteByte('"')
		i++
	}
	return b.String(), true
}

// ParseLiteral reads one marshaled token on the runtime side. A quoted
// literal is a string; a token shaped as an optional sign, digits and an
// optional fraction is a number and comes back in canonical form.
func ParseLiteral(token string) (value string, isNumber bool, ok bool) {
	if s, q := Unquote(token); q {
		return s, false, true
	}
	if n, num := CanonicalNumber(token); num {
		return n, true, true
	}
	return "", false, false
}
