package engine

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/wippyai/mbridge/codec"
	"github.com/wippyai/mbridge/errors"
)

// Reply is a parsed entry reply. Field values stay raw until a typed
// accessor decodes them under a mode and charset.
type Reply struct {
	fields map[string]json.RawMessage
	Entry  string
	Raw    string
}

// ParseReply decodes reply text. A reply whose ok field is false becomes a
// RuntimeError carrying the runtime's code and message.
func ParseReply(entry, raw string) (*Reply, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Op(entry).
			Cause(err).
			Detail("reply is not a JSON object").
			Build()
	}
	r := &Reply{Entry: entry, Raw: raw, fields: fields}

	okRaw, has := fields["ok"]
	if !has {
		return nil, errors.New(errors.PhaseDecode, errors.KindReplyFieldMissing).
			Op(entry).
			Detail("reply has no ok field").
			Build()
	}
	if truthy(okRaw) {
		return r, nil
	}

	code := -1
	if c, has := fields["errorCode"]; has {
		s := strings.Trim(string(c), `"`)
		code = errors.ParseCode(s)
	}
	msg := ""
	if m, has := fields["errorMessage"]; has {
		msg, _, _ = codec.ParseTransportLiteral(string(m))
	}
	return nil, errors.NewRuntimeError(entry, code, msg)
}

func truthy(raw json.RawMessage) bool {
	switch strings.TrimSpace(string(raw)) {
	case "true", "1", `"1"`, `"true"`:
		return true
	}
	return false
}

// Has reports whether the reply carries field.
func (r *Reply) Has(field string) bool {
	_, ok := r.fields[field]
	return ok
}

func (r *Reply) raw(field string) (json.RawMessage, error) {
	raw, ok := r.fields[field]
	if !ok {
		return nil, errors.New(errors.PhaseDecode, errors.KindReplyFieldMissing).
			Op(r.Entry).
			Detail("reply has no %q field", field).
			Build()
	}
	return raw, nil
}

func (r *Reply) malformed(field string, cause error) error {
	return errors.New(errors.PhaseDecode, errors.KindReplyFieldMalformed).
		Op(r.Entry).
		Cause(cause).
		Detail("field %q", field).
		Build()
}

// Literal returns the raw runtime bytes of a scalar field and whether it
// was sent as a number.
func (r *Reply) Literal(field string) (string, bool, error) {
	raw, err := r.raw(field)
	if err != nil {
		return "", false, err
	}
	v, num, err := codec.ParseTransportLiteral(string(raw))
	if err != nil {
		return "", false, r.malformed(field, err)
	}
	return v, num, nil
}

// Value decodes a scalar field for the host: a codec.Number in canonical
// mode when the runtime sent a number, otherwise a string in charset cs.
func (r *Reply) Value(field string, mode codec.Mode, cs codec.Charset) (any, error) {
	v, num, err := r.Literal(field)
	if err != nil {
		return nil, err
	}
	return hostValue(v, num, mode, cs)
}

// String decodes a scalar field as a host string regardless of mode.
func (r *Reply) String(field string, cs codec.Charset) (string, error) {
	v, num, err := r.Literal(field)
	if err != nil {
		return "", err
	}
	if num {
		return v, nil
	}
	return codec.FromRuntime(v, cs)
}

// Int decodes an integer field.
func (r *Reply) Int(field string) (int, error) {
	raw, err := r.raw(field)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.Trim(string(raw), `"`))
	if err != nil {
		return 0, r.malformed(field, err)
	}
	return n, nil
}

// Bool decodes a boolean field sent as true/false or 1/0.
func (r *Reply) Bool(field string) (bool, error) {
	raw, err := r.raw(field)
	if err != nil {
		return false, err
	}
	switch strings.Trim(strings.TrimSpace(string(raw)), `"`) {
	case "true", "1":
		return true, nil
	case "false", "0":
		return false, nil
	}
	return false, r.malformed(field, nil)
}

// Literals decodes an array field into raw runtime values and number flags.
func (r *Reply) Literals(field string) ([]string, []bool, error) {
	raw, err := r.raw(field)
	if err != nil {
		return nil, nil, err
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, nil, r.malformed(field, err)
	}
	vals := make([]string, len(elems))
	nums := make([]bool, len(elems))
	for i, e := range elems {
		v, num, err := codec.ParseTransportLiteral(string(e))
		if err != nil {
			return nil, nil, r.malformed(field, err)
		}
		vals[i], nums[i] = v, num
	}
	return vals, nums, nil
}

// Strings decodes an array field into host strings.
func (r *Reply) Strings(field string, cs codec.Charset) ([]string, error) {
	vals, nums, err := r.Literals(field)
	if err != nil {
		return nil, err
	}
	for i := range vals {
		if nums[i] {
			continue
		}
		if vals[i], err = codec.FromRuntime(vals[i], cs); err != nil {
			return nil, err
		}
	}
	return vals, nil
}

func hostValue(v string, num bool, mode codec.Mode, cs codec.Charset) (any, error) {
	if num {
		if mode == codec.Canonical {
			return codec.Number(v), nil
		}
		return v, nil
	}
	return codec.FromRuntime(v, cs)
}
