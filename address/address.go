package address

import (
	"strings"

	"github.com/wippyai/mbridge/codec"
	"github.com/wippyai/mbridge/errors"
)

// ReservedPrefix starts every symbol-table name the bridge uses for its own
// bookkeeping. Such names are never accepted from or returned to callers.
const ReservedPrefix = "%mb"

// MaxNameLen is the longest significant variable name.
const MaxNameLen = 31

// Kind is the namespace an address lives in.
type Kind int

const (
	Global Kind = iota
	Local
	Intrinsic
)

func (k Kind) String() string {
	switch k {
	case Global:
		return "global"
	case Local:
		return "local"
	case Intrinsic:
		return "intrinsic"
	}
	return "unknown"
}

// Address identifies a node: a variable name plus an ordered subscript list,
// or an intrinsic variable. Subscripts hold host tokens.
type Address struct {
	Name       string
	Subscripts []string
	Kind       Kind
}

// NewGlobal builds a global address. A leading caret on name is optional.
func NewGlobal(name string, subs ...any) (Address, error) {
	return build(Global, strings.TrimPrefix(name, "^"), subs)
}

// NewLocal builds a local variable address.
func NewLocal(name string, subs ...any) (Address, error) {
	return build(Local, name, subs)
}

// NewIntrinsic builds an intrinsic variable address such as $ZGBLDIR.
func NewIntrinsic(name string) (Address, error) {
	n := strings.ToUpper(strings.TrimSpace(name))
	if !strings.HasPrefix(n, "$") {
		n = "$" + n
	}
	if len(n) < 2 || !isAlpha(n[1]) || !allAlnum(n[1:]) {
		return Address{}, errors.InvalidName(name, "intrinsic variables are $ followed by letters")
	}
	return Address{Kind: Intrinsic, Name: n}, nil
}

// MustGlobal is NewGlobal that panics on error.
func MustGlobal(name string, subs ...any) Address {
	a, err := NewGlobal(name, subs...)
	if err != nil {
		panic(err)
	}
	return a
}

// MustLocal is NewLocal that panics on error.
func MustLocal(name string, subs ...any) Address {
	a, err := NewLocal(name, subs...)
	if err != nil {
		panic(err)
	}
	return a
}

func build(kind Kind, name string, subs []any) (Address, error) {
	if err := ValidateName(name); err != nil {
		return Address{}, err
	}
	toks, err := codec.FormatTokens(subs)
	if err != nil {
		return Address{}, err
	}
	return Address{Kind: kind, Name: name, Subscripts: toks}, nil
}

// ValidateName checks a global or local name and rejects reserved names.
func ValidateName(name string) error {
	if name == "" {
		return errors.InvalidName(name, "empty")
	}
	if len(name) > MaxNameLen {
		return errors.InvalidName(name, "longer than 31 characters")
	}
	if name[0] != '%' && !isAlpha(name[0]) {
		return errors.InvalidName(name, "must start with % or a letter")
	}
	if !allAlnum(name[1:]) {
		return errors.InvalidName(name, "must be alphanumeric")
	}
	if IsReserved(name) {
		return errors.Reserved(name)
	}
	return nil
}

// IsReserved reports whether name falls in the bridge's internal namespace.
func IsReserved(name string) bool {
	return strings.HasPrefix(strings.TrimPrefix(name, "^"), ReservedPrefix)
}

// Ref is the name as the runtime sees it: globals carry a caret.
func (a Address) Ref() string {
	if a.Kind == Global {
		return "^" + a.Name
	}
	return a.Name
}

// Depth is the number of subscripts.
func (a Address) Depth() int { return len(a.Subscripts) }

// Child returns a copy with subs appended.
func (a Address) Child(subs ...string) Address {
	out := a
	out.Subscripts = append(append(make([]string, 0, len(a.Subscripts)+len(subs)), a.Subscripts...), subs...)
	return out
}

// Parent returns a copy with the last subscript removed. The parent of an
// unsubscripted address is itself.
func (a Address) Parent() Address {
	if len(a.Subscripts) == 0 {
		return a
	}
	return a.WithSubscripts(a.Subscripts[:len(a.Subscripts)-1])
}

// WithSubscripts returns a copy of a with subs replacing its subscripts.
func (a Address) WithSubscripts(subs []string) Address {
	out := a
	out.Subscripts = append([]string(nil), subs...)
	return out
}

// Literals marshals the subscripts for the runtime under mode.
func (a Address) Literals(mode codec.Mode) []string {
	out := make([]string, len(a.Subscripts))
	for i, s := range a.Subscripts {
		out[i] = codec.CanonicalizeInbound(s, mode)
	}
	return out
}

// String renders the address in canonical-mode reference syntax.
func (a Address) String() string {
	return Construct(a.Ref(), a.Literals(codec.Canonical))
}

// Equal reports whether two addresses name the same node.
func (a Address) Equal(b Address) bool {
	if a.Kind != b.Kind || a.Name != b.Name || len(a.Subscripts) != len(b.Subscripts) {
		return false
	}
	for i := range a.Subscripts {
		if a.Subscripts[i] != b.Subscripts[i] {
			return false
		}
	}
	return true
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func allAlnum(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isAlpha(s[i]) && (s[i] < '0' || s[i] > '9') {
			return false
		}
	}
	return true
}
