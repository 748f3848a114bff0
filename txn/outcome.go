package txn

import (
	"strconv"
	"strings"

	"github.com/wippyai/mbridge/errors"
)

// Outcome decides how a transaction frame ends.
type Outcome int

const (
	Commit Outcome = iota
	Restart
	Rollback
)

func (o Outcome) String() string {
	switch o {
	case Restart:
		return "Restart"
	case Rollback:
		return "Rollback"
	}
	return "Commit"
}

// ParseOutcome interprets a transaction result. It accepts an Outcome, the
// tokens Commit, Restart and Rollback in any case, the native restart and
// rollback status codes as integers or strings, and a runtime error carrying
// one of those codes. Anything else it understands as a value commits; nil
// commits. Unsupported types fail.
func ParseOutcome(v any) (Outcome, error) {
	switch t := v.(type) {
	case nil:
		return Commit, nil
	case Outcome:
		return t, nil
	case string:
		return parseToken(t), nil
	case int:
		return fromCode(int64(t)), nil
	case int32:
		return fromCode(int64(t)), nil
	case int64:
		return fromCode(t), nil
	case *errors.RuntimeError:
		return fromCode(int64(t.Code)), nil
	case error:
		if re, ok := errors.AsRuntime(t); ok {
			return fromCode(int64(re.Code)), nil
		}
		return Commit, nil
	}
	return Commit, errors.New(errors.PhaseTxn, errors.KindTransactionOutcome).
		Value(v).
		Detail("cannot interpret %T as a transaction outcome", v).
		Build()
}

func parseToken(s string) Outcome {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "restart":
		return Restart
	case "rollback":
		return Rollback
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return fromCode(n)
	}
	return Commit
}

func fromCode(n int64) Outcome {
	switch n {
	case errors.CodeTPRestart:
		return Restart
	case errors.CodeTPRollback:
		return Rollback
	}
	return Commit
}
