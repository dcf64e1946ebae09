// Iterator: a pull-based, forward, in-order walk over a subtree, the
// explicit-stack counterpart to SearchEngine's recursive collect(). Built
// for callers that want one key/value pair at a time (a for Next() loop)
// rather than a fully materialized slice from FindPrefix.
//
// Like every other SearchEngine read, each step goes through the
// lock-free guarded reads in LockFree.go, so an Iterator started by a
// reader stays correct even while the writer concurrently mutates nodes
// the walk hasn't reached yet.
package mabain

// iterFrame is one level of the walk's explicit stack: the node at this
// level, the key bytes accumulated to reach it, whether its own match (if
// any) has already been yielded, and the next first-byte to resume
// scanning its children from.
type iterFrame struct {
	node         *nodeView
	prefix       []byte
	emittedMatch bool
	childFrom    int
}

// Iterator walks every key/value pair under a prefix (or the whole trie,
// for an empty prefix) in sorted key order. The zero value is not usable;
// construct one with DB.NewIterator.
type Iterator struct {
	se     *searchEngine
	stack  []iterFrame
	single *KeyValue
	cur    KeyValue
	done   bool
	err    error
}

// NewIterator returns an Iterator over every key with the given prefix.
// A nil or empty prefix iterates the entire database.
func (db *DB) NewIterator(prefix []byte) (*Iterator, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	return db.search.newIterator(prefix)
}

func (se *searchEngine) newIterator(prefix []byte) (*Iterator, error) {
	node, err := se.root()
	if err != nil {
		return nil, err
	}
	remaining := prefix
	matched := []byte{}

	for len(remaining) > 0 {
		_, raw, ok, err := se.findChild(node, remaining[0])
		if err != nil {
			return nil, err
		}
		if !ok {
			return &Iterator{se: se, done: true}, nil
		}

		label, err := se.dm.edgeLabel(raw[:])
		if err != nil {
			return nil, err
		}
		common := commonPrefixLen(label, remaining)

		if common == len(remaining) {
			childPrefix := append(append([]byte(nil), matched...), label...)
			if edgeHasDataOff(raw[:]) {
				val, err := se.dict.readValue(edgeChildOf(raw[:]))
				if err != nil {
					return nil, err
				}
				kv := KeyValue{Key: childPrefix, Value: val}
				return &Iterator{se: se, single: &kv}, nil
			}
			child, err := se.readNode(edgeChildOf(raw[:]))
			if err != nil {
				return nil, err
			}
			return &Iterator{se: se, stack: []iterFrame{{node: child, prefix: childPrefix}}}, nil
		}

		if common != len(label) {
			return &Iterator{se: se, done: true}, nil
		}

		matched = append(matched, label...)
		if edgeHasDataOff(raw[:]) {
			return &Iterator{se: se, done: true}, nil
		}
		child, err := se.readNode(edgeChildOf(raw[:]))
		if err != nil {
			return nil, err
		}
		node = child
		remaining = remaining[common:]
	}

	return &Iterator{se: se, stack: []iterFrame{{node: node, prefix: matched}}}, nil
}

// Next advances the iterator and reports whether a pair is available. Call
// Key/Value to read it, or Err after Next returns false to distinguish
// exhaustion from a read failure.
func (it *Iterator) Next() bool {
	if it.done {
		return false
	}
	if it.single != nil {
		it.cur = *it.single
		it.single = nil
		it.done = true
		return true
	}

	for len(it.stack) > 0 {
		top := &it.stack[len(it.stack)-1]

		if !top.emittedMatch {
			top.emittedMatch = true
			flags, dataOff, err := it.se.readHeaderGuarded(top.node)
			if err != nil {
				it.err = err
				it.done = true
				return false
			}
			if flags&nodeFlagMatch != 0 {
				val, err := it.se.dict.readValue(dataOff)
				if err != nil {
					it.err = err
					it.done = true
					return false
				}
				it.cur = KeyValue{Key: append([]byte(nil), top.prefix...), Value: val}
				return true
			}
		}

		tableByte, _, raw, ok, err := it.se.childAtOrAfter(top.node, top.childFrom)
		if err != nil {
			it.err = err
			it.done = true
			return false
		}
		if !ok {
			it.stack = it.stack[:len(it.stack)-1]
			continue
		}
		top.childFrom = int(tableByte) + 1

		label, err := it.se.dm.edgeLabel(raw[:])
		if err != nil {
			it.err = err
			it.done = true
			return false
		}
		childPrefix := append(append([]byte(nil), top.prefix...), label...)

		if edgeHasDataOff(raw[:]) {
			val, err := it.se.dict.readValue(edgeChildOf(raw[:]))
			if err != nil {
				it.err = err
				it.done = true
				return false
			}
			it.cur = KeyValue{Key: childPrefix, Value: val}
			return true
		}

		child, err := it.se.readNode(edgeChildOf(raw[:]))
		if err != nil {
			it.err = err
			it.done = true
			return false
		}
		it.stack = append(it.stack, iterFrame{node: child, prefix: childPrefix})
	}

	it.done = true
	return false
}

// Key returns the current pair's key. Valid only after Next returns true.
func (it *Iterator) Key() []byte { return it.cur.Key }

// Value returns the current pair's value. Valid only after Next returns true.
func (it *Iterator) Value() []byte { return it.cur.Value }

// Err returns the first error encountered during iteration, if any.
func (it *Iterator) Err() error { return it.err }
