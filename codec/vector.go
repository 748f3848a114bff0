package codec

import (
	"strconv"
	"strings"

	"github.com/wippyai/mbridge/errors"
)

// DefaultMaxParamSize is the largest single token the call boundary accepts.
const DefaultMaxParamSize = 1 << 20

const (
	lenSep = ':'
	endSep = ','
)

// Encode serializes tokens as a sequence of counted fields: decimal byte
// length, ':', the raw bytes, ','. Boundaries come from the counts, so token
// content may contain any byte including the separators. An empty input
// encodes as a single empty token.
func Encode(tokens []string) string {
	if len(tokens) == 0 {
		return "0:,"
	}
	n := 0
	for _, t := range tokens {
		n += len(t) + 12
	}
	var b strings.Builder
	b.Grow(n)
	for _, t := range tokens {
		b.WriteString(strconv.Itoa(len(t)))
		b.WriteByte(lenSep)
		b.WriteString(t)
		b.WriteByte(endSep)
	}
	return b.String()
}

// Decode parses a vector produced by Encode. An empty vector decodes to no
// tokens.
func Decode(v string) ([]string, error) {
	if v == "" {
		return nil, nil
	}
	tokens := make([]string, 0, 4)
	pos := 0
	for pos < len(v) {
		start := pos
		for pos < len(v) && v[pos] >= '0' && v[pos] <= '9' {
			pos++
		}
		if pos == start {
			return nil, errors.MalformedVector(pos, "expected length digits")
		}
		if pos-start > 10 {
			return nil, errors.MalformedVector(start, "length field too long")
		}
		n, err := strconv.Atoi(v[start:pos])
		if err != nil {
			return nil, errors.MalformedVector(start, "bad length")
		}
		if pos >= len(v) || v[pos] != lenSep {
			return nil, errors.MalformedVector(pos, "expected ':' after length")
		}
		pos++
		if n > len(v)-pos {
			return nil, errors.MalformedVector(pos, "declared length "+strconv.Itoa(n)+" overruns input")
		}
		tokens = append(tokens, v[pos:pos+n])
		pos += n
		if pos >= len(v) || v[pos] != endSep {
			return nil, errors.MalformedVector(pos, "expected ',' after token")
		}
		pos++
	}
	return tokens, nil
}

// CheckSize fails with TokenTooLarge when any token exceeds limit bytes.
// A non-positive limit disables the check.
func CheckSize(tokens []string, limit int) error {
	if limit <= 0 {
		return nil
	}
	for i, t := range tokens {
		if len(t) > limit {
			return errors.TokenTooLarge(i, len(t), limit)
		}
	}
	return nil
}
