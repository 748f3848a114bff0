package memdb

import (
	"sort"

	"github.com/wippyai/mbridge/codec"
)

// collate orders subscripts: the empty string first, then canonical numbers
// by value, then every other string by its bytes.
func collate(a, b string) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra - rb
	}
	switch ra {
	case 0:
		return 0
	case 1:
		return codec.CompareNumbers(a, b)
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func rank(s string) int {
	if s == "" {
		return 0
	}
	if codec.IsEmbeddedNumber(s) {
		return 1
	}
	return 2
}

// search returns the index where k sits or would be inserted in keys.
func search(keys []string, k string) (int, bool) {
	i := sort.Search(len(keys), func(i int) bool { return collate(keys[i], k) >= 0 })
	return i, i < len(keys) && collate(keys[i], k) == 0
}

// neighbor returns the key after (dir > 0) or before (dir < 0) seed. An
// empty seed starts from the corresponding end.
func neighbor(keys []string, seed string, dir int) (string, bool) {
	if len(keys) == 0 {
		return "", false
	}
	if seed == "" {
		if dir > 0 {
			return keys[0], true
		}
		return keys[len(keys)-1], true
	}
	i, found := search(keys, seed)
	if dir > 0 {
		if found {
			i++
		}
		if i < len(keys) {
			return keys[i], true
		}
		return "", false
	}
	if i > 0 {
		return keys[i-1], true
	}
	return "", false
}
