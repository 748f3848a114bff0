package memdb

// node is one position in a sparse tree. A node exists only while it holds
// a value or has children.
type node struct {
	children map[string]*node
	value    string
	keys     []string
	hasValue bool
}

func (n *node) child(k string) *node {
	if n == nil || n.children == nil {
		return nil
	}
	return n.children[k]
}

func (n *node) ensure(k string) *node {
	if c := n.child(k); c != nil {
		return c
	}
	if n.children == nil {
		n.children = make(map[string]*node)
	}
	c := &node{}
	n.children[k] = c
	i, _ := search(n.keys, k)
	n.keys = append(n.keys, "")
	copy(n.keys[i+1:], n.keys[i:])
	n.keys[i] = k
	return c
}

func (n *node) remove(k string) {
	if n.child(k) == nil {
		return
	}
	delete(n.children, k)
	if i, ok := search(n.keys, k); ok {
		n.keys = append(n.keys[:i], n.keys[i+1:]...)
	}
}

func (n *node) empty() bool {
	return n == nil || (!n.hasValue && len(n.keys) == 0)
}

// data is the $DATA value: 1 for a value, 10 for descendants, 11 for both.
func (n *node) data() int {
	if n == nil {
		return 0
	}
	d := 0
	if n.hasValue {
		d++
	}
	if len(n.keys) > 0 {
		d += 10
	}
	return d
}

func (n *node) clone() *node {
	if n == nil {
		return nil
	}
	c := &node{value: n.value, hasValue: n.hasValue}
	if len(n.keys) > 0 {
		c.keys = append([]string(nil), n.keys...)
		c.children = make(map[string]*node, len(n.children))
		for k, v := range n.children {
			c.children[k] = v.clone()
		}
	}
	return c
}

// walk visits every node holding a value in collation order, parents before
// children.
func (n *node) walk(path []string, fn func(subs []string, value string)) {
	if n == nil {
		return
	}
	if n.hasValue {
		fn(path, n.value)
	}
	for _, k := range n.keys {
		n.children[k].walk(append(path[:len(path):len(path)], k), fn)
	}
}

// space is one variable namespace: the globals or the locals of a process.
type space struct {
	vars  map[string]*node
	names []string
}

func newSpace() *space {
	return &space{vars: make(map[string]*node)}
}

func (s *space) lookup(name string, subs []string) *node {
	n := s.vars[name]
	for _, k := range subs {
		if n = n.child(k); n == nil {
			return nil
		}
	}
	return n
}

func (s *space) ensure(name string, subs []string) *node {
	n := s.vars[name]
	if n == nil {
		n = &node{}
		s.vars[name] = n
		i, _ := search(s.names, name)
		s.names = append(s.names, "")
		copy(s.names[i+1:], s.names[i:])
		s.names[i] = name
	}
	for _, k := range subs {
		n = n.ensure(k)
	}
	return n
}

// replace puts sub in place of the subtree at subs; nil removes it.
func (s *space) replace(name string, subs []string, sub *node) {
	if sub.empty() {
		s.delete(name, subs)
		return
	}
	if len(subs) == 0 {
		s.ensure(name, nil)
		s.vars[name] = sub
		return
	}
	parent := s.ensure(name, subs[:len(subs)-1])
	parent.ensure(subs[len(subs)-1])
	parent.children[subs[len(subs)-1]] = sub
}

// delete removes the subtree at subs and prunes emptied ancestors.
func (s *space) delete(name string, subs []string) {
	if len(subs) == 0 {
		s.drop(name)
		return
	}
	parent := s.lookup(name, subs[:len(subs)-1])
	if parent == nil {
		return
	}
	parent.remove(subs[len(subs)-1])
	s.prune(name, subs[:len(subs)-1])
}

// prune removes empty nodes from subs upward.
func (s *space) prune(name string, subs []string) {
	for level := len(subs); level >= 0; level-- {
		n := s.lookup(name, subs[:level])
		if n == nil || !n.empty() {
			return
		}
		if level == 0 {
			s.drop(name)
			return
		}
		s.lookup(name, subs[:level-1]).remove(subs[level-1])
	}
}

func (s *space) drop(name string) {
	if _, ok := s.vars[name]; !ok {
		return
	}
	delete(s.vars, name)
	if i, ok := search(s.names, name); ok {
		s.names = append(s.names[:i], s.names[i+1:]...)
	}
}

// order returns the next subscript at the depth of subs, or the next
// variable name when subs is empty.
func (s *space) order(name string, subs []string, dir int) (string, bool) {
	if len(subs) == 0 {
		return neighbor(s.names, name, dir)
	}
	parent := s.lookup(name, subs[:len(subs)-1])
	if parent == nil {
		return "", false
	}
	return neighbor(parent.keys, subs[len(subs)-1], dir)
}

// query returns the depth-first successor of subs within the variable. The
// unsubscripted variable itself is never a result.
func (s *space) query(name string, subs []string) ([]string, bool) {
	if cur := s.lookup(name, subs); cur != nil && len(cur.keys) > 0 {
		k := cur.keys[0]
		return first(append(clonePath(subs), k), cur.children[k]), true
	}
	for level := len(subs); level >= 1; level-- {
		parent := s.lookup(name, subs[:level-1])
		if parent == nil {
			continue
		}
		if k, ok := neighbor(parent.keys, subs[level-1], 1); ok {
			return first(append(clonePath(subs[:level-1]), k), parent.children[k]), true
		}
	}
	return nil, false
}

// reverseQuery returns the depth-first predecessor of subs. An ancestor
// holding a value precedes its descendants.
func (s *space) reverseQuery(name string, subs []string) ([]string, bool) {
	for level := len(subs); level >= 1; level-- {
		parent := s.lookup(name, subs[:level-1])
		if parent == nil {
			continue
		}
		if k, ok := neighbor(parent.keys, subs[level-1], -1); ok {
			return last(append(clonePath(subs[:level-1]), k), parent.children[k]), true
		}
		if level > 1 && parent.hasValue {
			return clonePath(subs[:level-1]), true
		}
	}
	return nil, false
}

// first descends to the first node holding a value at or below n.
func first(path []string, n *node) []string {
	for !n.hasValue && len(n.keys) > 0 {
		k := n.keys[0]
		path = append(path, k)
		n = n.children[k]
	}
	return path
}

// last descends to the final node of n's subtree in depth-first order.
func last(path []string, n *node) []string {
	for len(n.keys) > 0 {
		k := n.keys[len(n.keys)-1]
		path = append(path, k)
		n = n.children[k]
	}
	return path
}

func clonePath(p []string) []string {
	return append(make([]string, 0, len(p)+4), p...)
}
