package codec

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding/charmap"

	"github.com/wippyai/mbridge/errors"
)

// Charset selects how host strings map onto the runtime's byte strings.
type Charset string

const (
	// UTF8 passes UTF-8 bytes through unchanged.
	UTF8 Charset = "utf8"
	// Byte maps each code point U+0000..U+00FF to one octet.
	Byte Charset = "byte"
)

// ParseCharset parses a charset name; the empty string selects UTF8.
func ParseCharset(s string) (Charset, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "utf8", "utf-8":
		return UTF8, nil
	case "byte", "binary", "m", "latin1":
		return Byte, nil
	}
	return "", fmt.Errorf("unknown charset %q", s)
}

// ToRuntime converts a host string to the runtime's byte representation.
func ToRuntime(s string, cs Charset) (string, error) {
	if cs != Byte || isASCII(s) {
		return s, nil
	}
	out, err := charmap.ISO8859_1.NewEncoder().String(s)
	if err != nil {
		return "", errors.Wrap(errors.PhaseEncode, errors.KindCharset, err,
			"value has characters outside the byte charset")
	}
	return out, nil
}

// FromRuntime converts runtime bytes back to a host string.
func FromRuntime(s string, cs Charset) (string, error) {
	if cs != Byte || isASCII(s) {
		return s, nil
	}
	out, err := charmap.ISO8859_1.NewDecoder().String(s)
	if err != nil {
		return "", errors.Wrap(errors.PhaseDecode, errors.KindCharset, err, "byte charset decode")
	}
	return out, nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
