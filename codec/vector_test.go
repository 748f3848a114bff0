package codec

import (
	"reflect"
	"strings"
	"testing"

	"github.com/wippyai/mbridge/errors"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		tokens []string
	}{
		{"single", []string{"abc"}},
		{"delimiters", []string{"a,b", "3"}},
		{"colons", []string{"1:2", "::", ",,"}},
		{"quotes and backslashes", []string{`"x"`, `\`, `a\"b`}},
		{"digits only", []string{"10", "0", "007"}},
		{"empty tokens", []string{"", "", "x"}},
		{"looks encoded", []string{"3:abc,", "0:,"}},
		{"binary", []string{"\x00\xff\x80", "\n"}},
		{"unicode", []string{"héllo", "日本"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(Encode(tt.tokens))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !reflect.DeepEqual(got, tt.tokens) {
				t.Errorf("round trip = %q, want %q", got, tt.tokens)
			}
		})
	}
}

func TestEncode_Format(t *testing.T) {
	if got := Encode([]string{"a,b", "3"}); got != "3:a,b,1:3," {
		t.Errorf("Encode = %q", got)
	}
	if got := Encode(nil); got != "0:," {
		t.Errorf("Encode(nil) = %q, want one empty token", got)
	}
	got, err := Decode(Encode(nil))
	if err != nil || len(got) != 1 || got[0] != "" {
		t.Errorf("Decode(Encode(nil)) = %q, %v", got, err)
	}
}

func TestDecode_Empty(t *testing.T) {
	got, err := Decode("")
	if err != nil || len(got) != 0 {
		t.Errorf("Decode(\"\") = %q, %v", got, err)
	}
}

func TestDecode_Malformed(t *testing.T) {
	tests := []string{
		"3:ab",           // overrun
		"3:abc",          // missing terminator
		"x:abc,",         // no digits
		"3abc,",          // missing colon
		"3:abcd",         // wrong terminator
		"2:ab,1",         // trailing length only
		"99999999999:a,", // absurd length
		"5:ab,",          // declared length overruns
	}
	for _, in := range tests {
		t.Run(in, func(t *testing.T) {
			_, err := Decode(in)
			if err == nil {
				t.Fatalf("Decode(%q) succeeded", in)
			}
			if !errors.HasKind(err, errors.KindMalformedVector) {
				t.Errorf("error kind = %v", err)
			}
		})
	}
}

func TestCheckSize(t *testing.T) {
	tokens := []string{"ok", strings.Repeat("x", 11)}
	if err := CheckSize(tokens, 10); !errors.HasKind(err, errors.KindTokenTooLarge) {
		t.Errorf("CheckSize = %v, want token_too_large", err)
	}
	if err := CheckSize(tokens, 11); err != nil {
		t.Errorf("CheckSize at limit = %v", err)
	}
	if err := CheckSize(tokens, 0); err != nil {
		t.Errorf("disabled limit = %v", err)
	}
}
