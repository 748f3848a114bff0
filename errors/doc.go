// Package errors provides structured error types for the bridge.
//
// Errors carry a Phase (where in processing) and a Kind (what went wrong) so
// callers can tell caller-correctable marshaling failures apart from failures
// reported by the embedded runtime:
//
//	var be *errors.Error
//	if stderrors.As(err, &be) && be.Kind == errors.KindTokenTooLarge {
//	    // split the value
//	}
//
//	if re, ok := errors.AsRuntime(err); ok && re.IsRestart() {
//	    return txn.Restart, nil
//	}
//
// Kind-only sentinels (ErrConnectionState, ErrIndirectionLimit, ...) work
// with the standard errors.Is.
package errors
