package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseEncode    Phase = "encode"    // host to runtime marshaling
	PhaseDecode    Phase = "decode"    // runtime to host marshaling
	PhaseAddress   Phase = "address"   // node address construction
	PhaseDispatch  Phase = "dispatch"  // call serialization
	PhaseRuntime   Phase = "runtime"   // embedded runtime execution
	PhaseLifecycle Phase = "lifecycle" // open/close
	PhaseTraverse  Phase = "traverse"  // tree iteration
	PhaseTxn       Phase = "txn"       // transaction bracket
	PhaseConfig    Phase = "config"    // configuration loading
	PhaseLoad      Phase = "load"      // backend loading
)

// Kind categorizes the error
type Kind string

const (
	KindMalformedVector     Kind = "malformed_vector"
	KindTokenTooLarge       Kind = "token_too_large"
	KindInvalidData         Kind = "invalid_data"
	KindInvalidInput        Kind = "invalid_input"
	KindInvalidName         Kind = "invalid_name"
	KindReserved            Kind = "reserved_name"
	KindIndirectionLimit    Kind = "indirection_limit"
	KindEmbedded            Kind = "embedded_runtime"
	KindConnectionState     Kind = "connection_state"
	KindConcurrency         Kind = "concurrency_violation"
	KindCanceled            Kind = "canceled"
	KindUnsupported         Kind = "unsupported"
	KindRestartLimit        Kind = "restart_limit"
	KindCharset             Kind = "charset"
	KindNotFound            Kind = "not_found"
	KindCapacityImmutable   Kind = "capacity_immutable"
	KindMissingExport       Kind = "missing_export"
	KindBackendInstantiate  Kind = "instantiation"
	KindConfigInvalid       Kind = "config_invalid"
	KindTransactionMisuse   Kind = "transaction_misuse"
	KindTransactionOutcome  Kind = "transaction_outcome"
	KindReplyFieldMissing   Kind = "field_missing"
	KindReplyFieldMalformed Kind = "field_malformed"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Op     string
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Op != "" {
		b.WriteString(" in ")
		b.WriteString(e.Op)
	}

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, ","))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error. A target with an empty
// Phase matches on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase == "" {
		return e.Kind == t.Kind
	}
	return e.Phase == t.Phase && e.Kind == t.Kind
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Op sets the operation name
func (b *Builder) Op(op string) *Builder {
	b.err.Op = op
	return b
}

// Path sets the subscript path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Sentinels for errors.Is matching on kind only.
var (
	ErrMalformedVector  = &Error{Kind: KindMalformedVector}
	ErrTokenTooLarge    = &Error{Kind: KindTokenTooLarge}
	ErrIndirectionLimit = &Error{Kind: KindIndirectionLimit}
	ErrConnectionState  = &Error{Kind: KindConnectionState}
	ErrConcurrency      = &Error{Kind: KindConcurrency}
	ErrReserved         = &Error{Kind: KindReserved}
	ErrCanceled         = &Error{Kind: KindCanceled}
	ErrRestartLimit     = &Error{Kind: KindRestartLimit}
	ErrUnsupported      = &Error{Kind: KindUnsupported}
)

// MalformedVector creates a vector decoding error
func MalformedVector(offset int, detail string) *Error {
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindMalformedVector,
		Detail: fmt.Sprintf("offset %d: %s", offset, detail),
		Value:  offset,
	}
}

// TokenTooLarge creates an oversized token error
func TokenTooLarge(index, size, limit int) *Error {
	return &Error{
		Phase:  PhaseEncode,
		Kind:   KindTokenTooLarge,
		Detail: fmt.Sprintf("token %d is %d bytes (limit %d)", index, size, limit),
		Value:  size,
	}
}

// IndirectionLimit creates an indirection limit error
func IndirectionLimit(ref string, size, limit int) *Error {
	preview := ref
	if len(preview) > 48 {
		preview = preview[:48] + "..."
	}
	return &Error{
		Phase:  PhaseAddress,
		Kind:   KindIndirectionLimit,
		Detail: fmt.Sprintf("reference %q is %d bytes (limit %d)", preview, size, limit),
		Value:  size,
	}
}

// ConnectionState creates a connection state error
func ConnectionState(op, detail string) *Error {
	return &Error{
		Phase:  PhaseLifecycle,
		Kind:   KindConnectionState,
		Op:     op,
		Detail: detail,
	}
}

// Concurrency creates a concurrency violation error
func Concurrency(op, detail string) *Error {
	return &Error{
		Phase:  PhaseDispatch,
		Kind:   KindConcurrency,
		Op:     op,
		Detail: detail,
	}
}

// Reserved creates a reserved-namespace error
func Reserved(name string) *Error {
	return &Error{
		Phase:  PhaseAddress,
		Kind:   KindReserved,
		Detail: fmt.Sprintf("name %q is in the reserved namespace", name),
		Value:  name,
	}
}

// InvalidName creates an invalid variable name error
func InvalidName(name, why string) *Error {
	return &Error{
		Phase:  PhaseAddress,
		Kind:   KindInvalidName,
		Detail: fmt.Sprintf("invalid name %q: %s", name, why),
		Value:  name,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Load creates a backend loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindBackendInstantiate,
		Detail: detail,
		Cause:  cause,
	}
}
