package memdb

import (
	"strconv"
	"strings"

	"github.com/wippyai/mbridge/codec"
)

// reply assembles JSON reply text by hand, the way a runtime without a JSON
// library would.
type reply struct {
	b strings.Builder
}

func ok() *reply {
	r := &reply{}
	r.b.WriteString(`{"ok":true`)
	return r
}

func (r *reply) field(name string) {
	r.b.WriteString(`,"`)
	r.b.WriteString(name)
	r.b.WriteString(`":`)
}

// lit writes a runtime value as a number or an escaped string under mode.
func (r *reply) lit(name, value string, mode codec.Mode) *reply {
	r.field(name)
	r.b.WriteString(codec.CanonicalizeOutbound(value, mode))
	return r
}

func (r *reply) str(name, value string) *reply {
	r.field(name)
	r.b.WriteByte('"')
	r.b.WriteString(codec.EscapeForTransport(value))
	r.b.WriteByte('"')
	return r
}

func (r *reply) num(name string, n int) *reply {
	r.field(name)
	r.b.WriteString(strconv.Itoa(n))
	return r
}

func (r *reply) flag(name string, v bool) *reply {
	r.field(name)
	r.b.WriteString(strconv.FormatBool(v))
	return r
}

func (r *reply) lits(name string, values []string, mode codec.Mode) *reply {
	r.field(name)
	r.b.WriteByte('[')
	for i, v := range values {
		if i > 0 {
			r.b.WriteByte(',')
		}
		r.b.WriteString(codec.CanonicalizeOutbound(v, mode))
	}
	r.b.WriteByte(']')
	return r
}

func (r *reply) String() string {
	return r.b.String() + "}"
}

func failure(code int, msg string) string {
	return `{"ok":false,"errorCode":"` + strconv.Itoa(code) +
		`","errorMessage":"` + codec.EscapeForTransport(msg) + `"}`
}
