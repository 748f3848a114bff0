package codec

import (
	"fmt"
	"strings"
)

// Mode governs how numeric-looking tokens cross the boundary.
type Mode string

const (
	// Canonical passes numbers as numbers and returns them as Number.
	Canonical Mode = "canonical"
	// String passes and returns every token as a string.
	String Mode = "string"
)

// ParseMode parses a mode name; the empty string selects Canonical.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "canonical":
		return Canonical, nil
	case "string", "strict":
		return String, nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// Direction is the flow of a token across the boundary.
type Direction int

const (
	// Inbound flows from the host into the embedded runtime.
	Inbound Direction = iota
	// Outbound flows from the embedded runtime back to the host.
	Outbound
)

// Class is the marshaling category of a token.
type Class int

const (
	ClassString Class = iota
	ClassNumber
	ClassQuoted
)

func (c Class) String() string {
	switch c {
	case ClassNumber:
		return "number"
	case ClassQuoted:
		return "quoted"
	}
	return "string"
}

// Classify decides whether token crosses the boundary as a number, as an
// already-quoted literal, or as a plain string needing quotes. Inbound
// numbers must match the host's numeric text exactly, or be an embedded
// number in host leading-zero form; outbound numbers must be in the
// embedded canonical form. Anything whose meaning would change under the
// other side's numeric rules is a string.
func Classify(token string, mode Mode, dir Direction) Class {
	if IsQuoted(token) {
		return ClassQuoted
	}
	if mode == String {
		return ClassString
	}
	switch dir {
	case Inbound:
		if IsInboundNumber(token) {
			return ClassNumber
		}
	case Outbound:
		if IsEmbeddedNumber(token) {
			return ClassNumber
		}
	}
	return ClassString
}

// CanonicalizeInbound prepares a host token for the embedded runtime. In
// canonical mode a number loses its redundant leading zero ("0.5" -> ".5").
// Everything else is quoted so the runtime reads it as a literal string.
func CanonicalizeInbound(token string, mode Mode) string {
	if mode == Canonical && IsInboundNumber(token) {
		return stripLeadingZero(token)
	}
	return Quote(token)
}

// CanonicalizeOutbound renders a runtime value as a transport literal. In
// canonical mode a number regains the host's leading zero (".5" -> "0.5")
// and is emitted bare; anything else is emitted as an escaped quoted string.
func CanonicalizeOutbound(token string, mode Mode) string {
	if mode == Canonical && IsEmbeddedNumber(token) {
		return restoreLeadingZero(token)
	}
	return `"` + EscapeForTransport(token) + `"`
}

func stripLeadingZero(s string) string {
	switch {
	case strings.HasPrefix(s, "0."):
		return s[1:]
	case strings.HasPrefix(s, "-0."):
		return "-" + s[2:]
	}
	return s
}

func restoreLeadingZero(s string) string {
	switch {
	case strings.HasPrefix(s, "."):
		return "0" + s
	case strings.HasPrefix(s, "-."):
		return "-0" + s[1:]
	}
	return s
}

// HostNumber converts an embedded canonical number to host text form.
func HostNumber(embedded string) string {
	return restoreLeadingZero(embedded)
}
