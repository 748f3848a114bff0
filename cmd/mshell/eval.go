package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/wippyai/mbridge/address"
	"github.com/wippyai/mbridge/codec"
	"github.com/wippyai/mbridge/runtime"
)

// evaluator runs shell command lines against one session.
type evaluator struct {
	s *runtime.Session
}

type command struct {
	run   func(e *evaluator, ctx context.Context, arg string) (string, error)
	usage string
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"about":   {(*evaluator).about, "about"},
		"get":     {(*evaluator).get, "get REF"},
		"set":     {(*evaluator).set, "set REF=VALUE"},
		"kill":    {(*evaluator).kill, "kill REF"},
		"zkill":   {(*evaluator).zkill, "zkill REF"},
		"data":    {(*evaluator).data, "data REF"},
		"order":   {(*evaluator).order, "order REF"},
		"prev":    {(*evaluator).prev, "prev REF"},
		"query":   {(*evaluator).query, "query REF"},
		"rquery":  {(*evaluator).rquery, "rquery REF"},
		"incr":    {(*evaluator).incr, "incr REF [BY]"},
		"merge":   {(*evaluator).merge, "merge TO=FROM"},
		"dump":    {(*evaluator).dump, "dump REF"},
		"lock":    {(*evaluator).lock, "lock REF [SECONDS]"},
		"unlock":  {(*evaluator).unlock, "unlock [REF]"},
		"call":    {(*evaluator).call, "call LABEL^ROUTINE(ARGS)"},
		"do":      {(*evaluator).do, "do LABEL^ROUTINE(ARGS)"},
		"globals": {(*evaluator).globals, "globals"},
		"locals":  {(*evaluator).locals, "locals"},
		"mode":    {(*evaluator).mode, "mode canonical|string"},
		"charset": {(*evaluator).charset, "charset utf8|byte"},
		"help":    {(*evaluator).help, "help"},
	}
}

// eval runs one line such as `set ^acct(1,"name")="Ada"`.
func (e *evaluator) eval(ctx context.Context, line string) (string, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", nil
	}
	name, arg, _ := strings.Cut(line, " ")
	cmd, ok := commands[strings.ToLower(name)]
	if !ok {
		return "", fmt.Errorf("unknown command %q (try help)", name)
	}
	return cmd.run(e, ctx, strings.TrimSpace(arg))
}

func (e *evaluator) help(context.Context, string) (string, error) {
	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)
	lines := make([]string, len(names))
	for i, n := range names {
		lines[i] = commands[n].usage
	}
	return strings.Join(lines, "\n"), nil
}

// splitAssign splits a=b at the first = outside quotes and parentheses.
func splitAssign(s string) (string, string, bool) {
	depth, quoted := 0, false
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '"':
			quoted = !quoted
		case quoted:
		case c == '(':
			depth++
		case c == ')':
			depth--
		case c == '=' && depth == 0:
			return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+1:]), true
		}
	}
	return s, "", false
}

// value reads a literal: a quoted string, a number, or bare text.
func value(s string) any {
	v, num, ok := codec.ParseLiteral(s)
	switch {
	case !ok:
		return s
	case num:
		return codec.Number(codec.HostNumber(v))
	}
	return v
}

func format(v any) string {
	switch x := v.(type) {
	case codec.Number:
		return string(x)
	case string:
		return codec.Quote(x)
	}
	return fmt.Sprint(v)
}

func (e *evaluator) about(ctx context.Context, _ string) (string, error) {
	a, err := e.s.About(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s\nindirection limit %d, max parameter %d, reverse query %t, $TLEVEL %d",
		a.Version, a.IndirectionLimit, a.MaxParamSize, a.ReverseQuery, a.TLevel), nil
}

func (e *evaluator) get(ctx context.Context, arg string) (string, error) {
	a, err := address.Parse(arg)
	if err != nil {
		return "", err
	}
	v, err := e.s.Get(ctx, a)
	if err != nil {
		return "", err
	}
	return format(v), nil
}

func (e *evaluator) set(ctx context.Context, arg string) (string, error) {
	ref, lit, ok := splitAssign(arg)
	if !ok {
		return "", fmt.Errorf("usage: %s", commands["set"].usage)
	}
	a, err := address.Parse(ref)
	if err != nil {
		return "", err
	}
	return "", e.s.Set(ctx, a, value(lit))
}

func (e *evaluator) kill(ctx context.Context, arg string) (string, error) {
	a, err := address.Parse(arg)
	if err != nil {
		return "", err
	}
	return "", e.s.Kill(ctx, a)
}

func (e *evaluator) zkill(ctx context.Context, arg string) (string, error) {
	a, err := address.Parse(arg)
	if err != nil {
		return "", err
	}
	return "", e.s.KillNode(ctx, a)
}

func (e *evaluator) data(ctx context.Context, arg string) (string, error) {
	a, err := address.Parse(arg)
	if err != nil {
		return "", err
	}
	d, err := e.s.Data(ctx, a)
	return fmt.Sprint(d), err
}

func (e *evaluator) order(ctx context.Context, arg string) (string, error) {
	a, err := address.Parse(arg)
	if err != nil {
		return "", err
	}
	next, err := e.s.Order(ctx, a)
	return codec.Quote(next), err
}

func (e *evaluator) prev(ctx context.Context, arg string) (string, error) {
	a, err := address.Parse(arg)
	if err != nil {
		return "", err
	}
	p, err := e.s.Previous(ctx, a)
	return codec.Quote(p), err
}

func nodeLine(a address.Address, n runtime.Node) string {
	if !n.Defined {
		return `""`
	}
	return a.WithSubscripts(n.Subscripts).String() + "=" + format(n.Data)
}

func (e *evaluator) query(ctx context.Context, arg string) (string, error) {
	a, err := address.Parse(arg)
	if err != nil {
		return "", err
	}
	n, err := e.s.NextNode(ctx, a)
	return nodeLine(a, n), err
}

func (e *evaluator) rquery(ctx context.Context, arg string) (string, error) {
	a, err := address.Parse(arg)
	if err != nil {
		return "", err
	}
	n, err := e.s.PreviousNode(ctx, a)
	return nodeLine(a, n), err
}

func (e *evaluator) incr(ctx context.Context, arg string) (string, error) {
	ref, by, _ := strings.Cut(arg, " ")
	a, err := address.Parse(ref)
	if err != nil {
		return "", err
	}
	var step any = 1
	if by = strings.TrimSpace(by); by != "" {
		step = value(by)
	}
	v, err := e.s.Increment(ctx, a, step)
	if err != nil {
		return "", err
	}
	return format(v), nil
}

func (e *evaluator) merge(ctx context.Context, arg string) (string, error) {
	to, from, ok := splitAssign(arg)
	if !ok {
		return "", fmt.Errorf("usage: %s", commands["merge"].usage)
	}
	dst, err := address.Parse(to)
	if err != nil {
		return "", err
	}
	src, err := address.Parse(from)
	if err != nil {
		return "", err
	}
	return "", e.s.Merge(ctx, dst, src)
}

func (e *evaluator) dump(ctx context.Context, arg string) (string, error) {
	a, err := address.Parse(arg)
	if err != nil {
		return "", err
	}
	var lines []string
	if len(a.Subscripts) == 0 {
		v, ok, err := e.s.Lookup(ctx, a)
		if err != nil {
			return "", err
		}
		if ok {
			lines = append(lines, a.String()+"="+format(v))
		}
	}
	inside := false
	err = e.s.Walk(ctx, a, func(n runtime.Node) bool {
		if !under(n.Subscripts, a.Subscripts) {
			// nodes under a prefix are contiguous
			return !inside
		}
		inside = true
		lines = append(lines, nodeLine(a, n))
		return true
	})
	return strings.Join(lines, "\n"), err
}

func under(subs, prefix []string) bool {
	if len(subs) < len(prefix) {
		return false
	}
	for i := range prefix {
		if subs[i] != prefix[i] {
			return false
		}
	}
	return true
}

func (e *evaluator) lock(ctx context.Context, arg string) (string, error) {
	ref, secs, _ := strings.Cut(arg, " ")
	a, err := address.Parse(ref)
	if err != nil {
		return "", err
	}
	timeout := time.Duration(-1)
	if secs = strings.TrimSpace(secs); secs != "" {
		d, err := time.ParseDuration(secs + "s")
		if err != nil {
			return "", fmt.Errorf("bad timeout %q", secs)
		}
		timeout = d
	}
	ok, err := e.s.Lock(ctx, a, timeout)
	if err != nil {
		return "", err
	}
	if !ok {
		return "0", nil
	}
	return "1", nil
}

func (e *evaluator) unlock(ctx context.Context, arg string) (string, error) {
	if arg == "" {
		return "", e.s.UnlockAll(ctx)
	}
	a, err := address.Parse(arg)
	if err != nil {
		return "", err
	}
	return "", e.s.Unlock(ctx, a)
}

// routine splits add^math(1,"x") into the reference and its arguments.
func routine(s string) (string, []any, error) {
	ref, rest, hasArgs := strings.Cut(s, "(")
	if !hasArgs {
		return strings.TrimSpace(ref), nil, nil
	}
	if !strings.HasSuffix(rest, ")") {
		return "", nil, fmt.Errorf("missing ) in %s", s)
	}
	lits, err := address.SplitLiterals(rest[:len(rest)-1])
	if err != nil {
		return "", nil, err
	}
	args := make([]any, len(lits))
	for i, l := range lits {
		args[i] = value(l)
	}
	return strings.TrimSpace(ref), args, nil
}

func (e *evaluator) call(ctx context.Context, arg string) (string, error) {
	ref, args, err := routine(arg)
	if err != nil {
		return "", err
	}
	v, err := e.s.Function(ctx, ref, args...)
	if err != nil {
		return "", err
	}
	return format(v), nil
}

func (e *evaluator) do(ctx context.Context, arg string) (string, error) {
	ref, args, err := routine(arg)
	if err != nil {
		return "", err
	}
	return "", e.s.Procedure(ctx, ref, args...)
}

func (e *evaluator) globals(ctx context.Context, _ string) (string, error) {
	names, err := e.s.GlobalDirectory(ctx)
	for i := range names {
		names[i] = "^" + names[i]
	}
	return strings.Join(names, "\n"), err
}

func (e *evaluator) locals(ctx context.Context, _ string) (string, error) {
	names, err := e.s.LocalDirectory(ctx)
	return strings.Join(names, "\n"), err
}

func (e *evaluator) mode(_ context.Context, arg string) (string, error) {
	if arg == "" {
		return string(e.s.Config().Mode), nil
	}
	m, err := codec.ParseMode(arg)
	if err != nil {
		return "", err
	}
	e.s.Configure(runtime.WithMode(m))
	return string(m), nil
}

func (e *evaluator) charset(_ context.Context, arg string) (string, error) {
	if arg == "" {
		return string(e.s.Config().Charset), nil
	}
	cs, err := codec.ParseCharset(arg)
	if err != nil {
		return "", err
	}
	e.s.Configure(runtime.WithCharset(cs))
	return string(cs), nil
}
