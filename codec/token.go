package codec

import (
	"fmt"
	"math"
	"strconv"

	"github.com/wippyai/mbridge/errors"
)

// FormatToken renders a Go value as a host token.
func FormatToken(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case Number:
		return string(x), nil
	case []byte:
		return string(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int8:
		return strconv.FormatInt(int64(x), 10), nil
	case int16:
		return strconv.FormatInt(int64(x), 10), nil
	case int32:
		return strconv.FormatInt(int64(x), 10), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case uint:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	case float32:
		return formatFinite(float64(x))
	case float64:
		return formatFinite(x)
	case bool:
		if x {
			return "1", nil
		}
		return "0", nil
	case fmt.Stringer:
		return x.String(), nil
	case nil:
		return "", errors.InvalidInput(errors.PhaseEncode, "nil value")
	}
	return "", errors.New(errors.PhaseEncode, errors.KindInvalidInput).
		Value(v).
		Detail("unsupported value type %T", v).
		Build()
}

// FormatTokens renders each value with FormatToken.
func FormatTokens(vs []any) ([]string, error) {
	out := make([]string, len(vs))
	for i, v := range vs {
		t, err := FormatToken(v)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}

func formatFinite(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", errors.InvalidInput(errors.PhaseEncode, "non-finite number")
	}
	return FormatFloat(f), nil
}
