package main

import (
	"strconv"
	"strings"
	"time"

	"github.com/wippyai/mbridge/codec"
	"github.com/wippyai/mbridge/memdb"
)

// builtins are the routines every shell database starts with.
var builtins = map[string]memdb.Routine{
	"upper^str": func(_ *memdb.Env, args []string) (string, error) {
		return strings.ToUpper(strings.Join(args, "")), nil
	},
	"lower^str": func(_ *memdb.Env, args []string) (string, error) {
		return strings.ToLower(strings.Join(args, "")), nil
	},
	"cat^str": func(_ *memdb.Env, args []string) (string, error) {
		return strings.Join(args, ""), nil
	},
	"len^str": func(_ *memdb.Env, args []string) (string, error) {
		n := 0
		for _, a := range args {
			n += len(a)
		}
		return strconv.Itoa(n), nil
	},
	"add^math": func(_ *memdb.Env, args []string) (string, error) {
		sum := "0"
		for _, a := range args {
			if s, ok := codec.Add(sum, a); ok {
				sum = s
			}
		}
		return sum, nil
	},
	"unix^sys": func(*memdb.Env, []string) (string, error) {
		return strconv.FormatInt(time.Now().Unix(), 10), nil
	},
}

func registerBuiltins(db *memdb.DB) error {
	for ref, fn := range builtins {
		if err := db.RegisterRoutine(ref, fn); err != nil {
			return err
		}
	}
	return nil
}
