package address

import (
	"strconv"
	"strings"

	"github.com/wippyai/mbridge/codec"
	"github.com/wippyai/mbridge/errors"
)

// StageArray is the internal local that holds staged routine arguments.
const StageArray = ReservedPrefix + "Args"

// DefaultIndirectionLimit matches the runtime's default maximum length of
// a string used for indirect evaluation.
const DefaultIndirectionLimit = 8192

// Construct joins a name and marshaled subscripts into a reference ready for
// indirect evaluation: name(l1,l2,...). Without subscripts it is just name.
func Construct(name string, literals []string) string {
	if len(literals) == 0 {
		return name
	}
	n := len(name) + 2
	for _, l := range literals {
		n += len(l) + 1
	}
	var b strings.Builder
	b.Grow(n)
	b.WriteString(name)
	b.WriteByte('(')
	for i, l := range literals {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(l)
	}
	b.WriteByte(')')
	return b.String()
}

// ConstructLimit is Construct that fails when the reference would exceed the
// indirection limit. A non-positive limit disables the check.
func ConstructLimit(name string, literals []string, limit int) (string, error) {
	ref := Construct(name, literals)
	if limit > 0 && len(ref) > limit {
		return "", errors.IndirectionLimit(ref, len(ref), limit)
	}
	return ref, nil
}

// Plan is how a routine reference reaches the runtime. When Staged is
// non-empty the caller must first copy Staged[i] into StageArray(i+1), then
// evaluate Ref, then clear StageArray, all within one exclusive call.
type Plan struct {
	Ref    string
	Staged []string
}

// IsStaged reports whether the plan needs the staging fallback.
func (p Plan) IsStaged() bool { return len(p.Staged) > 0 }

// PlanCall builds the reference for invoking routine with marshaled
// arguments. If the direct reference is over the limit, arguments are staged
// and the reference cites StageArray(1)..StageArray(n) instead, which keeps
// it short regardless of argument size. It fails only if even the staged
// reference is over the limit.
func PlanCall(routine string, literals []string, limit int) (Plan, error) {
	ref := Construct(routine, literals)
	if limit <= 0 || len(ref) <= limit {
		return Plan{Ref: ref}, nil
	}
	stubs := make([]string, len(literals))
	for i := range literals {
		stubs[i] = StageArray + "(" + strconv.Itoa(i+1) + ")"
	}
	staged, err := ConstructLimit(routine, stubs, limit)
	if err != nil {
		return Plan{}, err
	}
	return Plan{Ref: staged, Staged: append([]string(nil), literals...)}, nil
}

// ValidateRoutine checks a routine reference: label, ^routine or
// label^routine. Labels may be numeric.
func ValidateRoutine(ref string) error {
	label, routine, hasCaret := strings.Cut(ref, "^")
	if !hasCaret {
		if !validLabel(label) {
			return errors.InvalidName(ref, "bad label")
		}
		return nil
	}
	if label != "" && !validLabel(label) {
		return errors.InvalidName(ref, "bad label")
	}
	if routine == "" || (routine[0] != '%' && !isAlpha(routine[0])) || !allAlnum(routine[1:]) {
		return errors.InvalidName(ref, "bad routine name")
	}
	if len(routine) > MaxNameLen {
		return errors.InvalidName(ref, "routine name longer than 31 characters")
	}
	return nil
}

func validLabel(l string) bool {
	if l == "" || len(l) > MaxNameLen {
		return false
	}
	if l[0] == '%' || isAlpha(l[0]) {
		return allAlnum(l[1:])
	}
	for i := 0; i < len(l); i++ {
		if l[i] < '0' || l[i] > '9' {
			return false
		}
	}
	return true
}

// Parse reads reference syntax such as ^acct(1,"x") or name or $ZVERSION.
// Numeric subscripts come back in host form.
func Parse(ref string) (Address, error) {
	ref = strings.TrimSpace(ref)
	if strings.HasPrefix(ref, "$") {
		return NewIntrinsic(ref)
	}
	kind := Local
	if strings.HasPrefix(ref, "^") {
		kind = Global
		ref = ref[1:]
	}
	name, rest, hasSubs := strings.Cut(ref, "(")
	if err := ValidateName(name); err != nil {
		return Address{}, err
	}
	a := Address{Kind: kind, Name: name}
	if !hasSubs {
		return a, nil
	}
	if !strings.HasSuffix(rest, ")") {
		return Address{}, errors.InvalidInput(errors.PhaseAddress, "missing ')' in "+ref)
	}
	lits, err := SplitLiterals(rest[:len(rest)-1])
	if err != nil {
		return Address{}, err
	}
	for _, l := range lits {
		v, num, ok := codec.ParseLiteral(l)
		if !ok {
			return Address{}, errors.InvalidInput(errors.PhaseAddress, "bad subscript "+l)
		}
		if num {
			v = codec.HostNumber(v)
		}
		a.Subscripts = append(a.Subscripts, v)
	}
	return a, nil
}

// SplitLiterals splits a comma-separated literal list, honoring commas and
// doubled quotes inside quoted literals.
func SplitLiterals(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []string
	start := 0
	inQuote := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			if inQuote && i+1 < len(s) && s[i+1] == '"' {
				i++
				continue
			}
			inQuote = !inQuote
		case ',':
			if !inQuote {
				out = append(out, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	if inQuote {
		return nil, errors.InvalidInput(errors.PhaseAddress, "unterminated string literal")
	}
	return append(out, strings.TrimSpace(s[start:])), nil
}
