// SearchEngine (§4.5): read-side trie traversal. Every multi-reader access
// to a mutable field -- an edge slot or a node's header region -- goes
// through the lock-free guard in LockFree.go instead of a plain read, so
// concurrent readers never observe a torn write from the single writer.
//
// Node tables (which first bytes a node has children for) are written once
// at node-build time and never mutated in place; only individual edge
// slots and the 8-byte node header region change after a node is
// published, which is exactly what the guarded reads below protect.
package mabain

import "errors"

const maxReadRetries = 4

type searchEngine struct {
	dm     *dictMem
	dict   *dict
	header *headerFile
}

func newSearchEngine(dm *dictMem, dict *dict, header *headerFile) *searchEngine {
	return &searchEngine{dm: dm, dict: dict, header: header}
}

func (se *searchEngine) readNode(offset uint64) (*nodeView, error) {
	return se.dm.readNode(offset)
}

func (se *searchEngine) root() (*nodeView, error) {
	return se.dm.readNode(indexRootOffset)
}

// readHeaderGuarded returns a node's current flags and data offset,
// retrying (or falling back to the staged exception image) if the writer
// is concurrently publishing a change to this exact node.
func (se *searchEngine) readHeaderGuarded(node *nodeView) (flags byte, dataOff uint64, err error) {
	addr := node.offset
	var raw [8]byte
	sawSaved := false
	for attempt := 0; attempt < maxReadRetries; attempt++ {
		snap := se.header.readerBegin()
		if err := se.dm.index.RandomRead(raw[:], int64(addr)); err != nil {
			return 0, 0, err
		}
		switch se.header.verifyRead(snap, addr) {
		case verifyOK:
			return raw[nodeFlagsOff], getUint48(raw[nodeDataOff : nodeDataOff+6]), nil
		case verifyUseSaved:
			if !sawSaved {
				sawSaved = true
				continue
			}
			copy(raw[:], se.header.savedBuf(8))
			return raw[nodeFlagsOff], getUint48(raw[nodeDataOff : nodeDataOff+6]), nil
		case verifyTryAgain:
			continue
		}
	}
	return 0, 0, newErr("readHeaderGuarded", KindTryAgain, ErrTryAgain)
}

// readEdgeGuarded returns the current 13-byte image of the edge at
// (node, pos), retrying or using the staged exception image on contention.
func (se *searchEngine) readEdgeGuarded(node *nodeView, pos int) ([edgeSize]byte, error) {
	addr := node.edgeOffset(pos)
	var raw [edgeSize]byte
	sawSaved := false
	for attempt := 0; attempt < maxReadRetries; attempt++ {
		snap := se.header.readerBegin()
		if err := se.dm.index.RandomRead(raw[:], int64(addr)); err != nil {
			return raw, err
		}
		switch se.header.verifyRead(snap, addr) {
		case verifyOK:
			return raw, nil
		case verifyUseSaved:
			if !sawSaved {
				sawSaved = true
				continue
			}
			copy(raw[:], se.header.savedEdge())
			return raw, nil
		case verifyTryAgain:
			continue
		}
	}
	return raw, newErr("readEdgeGuarded", KindTryAgain, ErrTryAgain)
}

// findChild locates the populated slot for firstByte, guarded.
func (se *searchEngine) findChild(node *nodeView, firstByte byte) (pos int, raw [edgeSize]byte, ok bool, err error) {
	pos, ok = se.dm.findChildSlot(node, firstByte)
	if !ok {
		return 0, raw, false, nil
	}
	raw, err = se.readEdgeGuarded(node, pos)
	return pos, raw, err == nil, err
}

// Find is exact-match lookup.
func (se *searchEngine) Find(key []byte) ([]byte, error) {
	node, err := se.root()
	if err != nil {
		return nil, err
	}
	remaining := key

	for depth := 0; depth < FindTraversalLimit; depth++ {
		if len(remaining) == 0 {
			flags, dataOff, err := se.readHeaderGuarded(node)
			if err != nil {
				return nil, err
			}
			if flags&nodeFlagMatch == 0 {
				return nil, newErr("Find", KindNotExist, ErrNotExist)
			}
			return se.dict.readValue(dataOff)
		}

		pos, raw, ok, err := se.findChild(node, remaining[0])
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, newErr("Find", KindNotExist, ErrNotExist)
		}
		_ = pos

		label, err := se.dm.edgeLabel(raw[:])
		if err != nil {
			return nil, err
		}
		common := commonPrefixLen(label, remaining)
		if common != len(label) {
			return nil, newErr("Find", KindNotExist, ErrNotExist)
		}

		if edgeHasDataOff(raw[:]) {
			if common != len(remaining) {
				return nil, newErr("Find", KindNotExist, ErrNotExist)
			}
			return se.dict.readValue(edgeChildOf(raw[:]))
		}

		child, err := se.readNode(edgeChildOf(raw[:]))
		if err != nil {
			return nil, err
		}
		node = child
		remaining = remaining[common:]
	}

	return nil, newErr("Find", KindOutOfBound, errors.New("traversal limit exceeded"))
}

// FindLongestPrefix returns the longest key in the trie that is a prefix
// of input, along with its value.
func (se *searchEngine) FindLongestPrefix(input []byte) (*KeyValue, error) {
	node, err := se.root()
	if err != nil {
		return nil, err
	}
	remaining := input
	matched := []byte{}

	var best *KeyValue
	recordIfMatch := func(flags byte, dataOff uint64, prefixLen int) error {
		if flags&nodeFlagMatch == 0 {
			return nil
		}
		val, err := se.dict.readValue(dataOff)
		if err != nil {
			return err
		}
		best = &KeyValue{Key: append([]byte(nil), input[:prefixLen]...), Value: val}
		return nil
	}

	flags, dataOff, err := se.readHeaderGuarded(node)
	if err != nil {
		return nil, err
	}
	if err := recordIfMatch(flags, dataOff, 0); err != nil {
		return nil, err
	}

	for depth := 0; depth < FindTraversalLimit && len(remaining) > 0; depth++ {
		pos, raw, ok, err := se.findChild(node, remaining[0])
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		_ = pos

		label, err := se.dm.edgeLabel(raw[:])
		if err != nil {
			return nil, err
		}
		common := commonPrefixLen(label, remaining)
		if common != len(label) {
			break
		}
		matched = append(matched, label...)

		if edgeHasDataOff(raw[:]) {
			val, err := se.dict.readValue(edgeChildOf(raw[:]))
			if err != nil {
				return nil, err
			}
			best = &KeyValue{Key: append([]byte(nil), matched...), Value: val}
			break
		}

		child, err := se.readNode(edgeChildOf(raw[:]))
		if err != nil {
			return nil, err
		}
		node = child
		remaining = remaining[common:]

		flags, dataOff, err := se.readHeaderGuarded(node)
		if err != nil {
			return nil, err
		}
		if err := recordIfMatch(flags, dataOff, len(matched)); err != nil {
			return nil, err
		}
	}

	if best == nil {
		return nil, newErr("FindLongestPrefix", KindNotExist, ErrNotExist)
	}
	return best, nil
}

// FindPrefix returns every key/value pair whose key starts with prefix, in
// sorted key order (a natural consequence of each node's table being
// stored in sorted first-byte order).
func (se *searchEngine) FindPrefix(prefix []byte) ([]KeyValue, error) {
	node, err := se.root()
	if err != nil {
		return nil, err
	}
	remaining := prefix
	matched := []byte{}

	for len(remaining) > 0 {
		pos, raw, ok, err := se.findChild(node, remaining[0])
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		_ = pos

		label, err := se.dm.edgeLabel(raw[:])
		if err != nil {
			return nil, err
		}
		common := commonPrefixLen(label, remaining)

		if common == len(remaining) {
			// prefix ends inside (or exactly at) this edge's label.
			if edgeHasDataOff(raw[:]) {
				val, err := se.dict.readValue(edgeChildOf(raw[:]))
				if err != nil {
					return nil, err
				}
				return []KeyValue{{Key: append(append([]byte(nil), matched...), label...), Value: val}}, nil
			}
			child, err := se.readNode(edgeChildOf(raw[:]))
			if err != nil {
				return nil, err
			}
			var out []KeyValue
			if err := se.collect(child, append(append([]byte(nil), matched...), label...), &out); err != nil {
				return nil, err
			}
			return out, nil
		}

		if common != len(label) {
			return nil, nil
		}

		matched = append(matched, label...)
		if edgeHasDataOff(raw[:]) {
			return nil, nil
		}
		child, err := se.readNode(edgeChildOf(raw[:]))
		if err != nil {
			return nil, err
		}
		node = child
		remaining = remaining[common:]
	}

	var out []KeyValue
	if err := se.collect(node, matched, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// collect performs a depth-first walk of node and everything beneath it,
// appending every (key, value) pair in sorted order.
func (se *searchEngine) collect(node *nodeView, prefix []byte, out *[]KeyValue) error {
	flags, dataOff, err := se.readHeaderGuarded(node)
	if err != nil {
		return err
	}
	if flags&nodeFlagMatch != 0 {
		val, err := se.dict.readValue(dataOff)
		if err != nil {
			return err
		}
		*out = append(*out, KeyValue{Key: append([]byte(nil), prefix...), Value: val})
	}

	for pos := range node.table() {
		raw, err := se.readEdgeGuarded(node, pos)
		if err != nil {
			return err
		}
		if edgeLenOf(raw[:]) == 0 {
			continue // empty root slot
		}
		label, err := se.dm.edgeLabel(raw[:])
		if err != nil {
			return err
		}
		childPrefix := append(append([]byte(nil), prefix...), label...)

		if edgeHasDataOff(raw[:]) {
			val, err := se.dict.readValue(edgeChildOf(raw[:]))
			if err != nil {
				return err
			}
			*out = append(*out, KeyValue{Key: childPrefix, Value: val})
			continue
		}
		child, err := se.readNode(edgeChildOf(raw[:]))
		if err != nil {
			return err
		}
		if err := se.collect(child, childPrefix, out); err != nil {
			return err
		}
	}
	return nil
}

// childAtOrAfter returns the first (smallest) populated child with a first
// byte >= from, or ok=false if none exists.
func (se *searchEngine) childAtOrAfter(node *nodeView, from int) (tableByte byte, pos int, raw [edgeSize]byte, ok bool, err error) {
	if from > 255 {
		return 0, 0, raw, false, nil
	}
	if node.isRoot() {
		for b := from; b <= 255; b++ {
			candidate, err := se.readEdgeGuarded(node, b)
			if err != nil {
				return 0, 0, raw, false, err
			}
			if edgeLenOf(candidate[:]) > 0 {
				return byte(b), b, candidate, true, nil
			}
			if b == 255 {
				break
			}
		}
		return 0, 0, raw, false, nil
	}
	for i, b := range node.table() {
		if int(b) >= from {
			candidate, err := se.readEdgeGuarded(node, i)
			if err != nil {
				return 0, 0, raw, false, err
			}
			return b, i, candidate, true, nil
		}
	}
	return 0, 0, raw, false, nil
}

// minInSubtreeNode returns the lexicographically smallest key/value
// reachable from node (including node's own match, if any).
func (se *searchEngine) minInSubtreeNode(node *nodeView, prefix []byte) (*KeyValue, error) {
	flags, dataOff, err := se.readHeaderGuarded(node)
	if err != nil {
		return nil, err
	}
	if flags&nodeFlagMatch != 0 {
		val, err := se.dict.readValue(dataOff)
		if err != nil {
			return nil, err
		}
		return &KeyValue{Key: append([]byte(nil), prefix...), Value: val}, nil
	}
	return se.minFrom(node, prefix, 0)
}

func (se *searchEngine) minFrom(node *nodeView, prefix []byte, from int) (*KeyValue, error) {
	_, _, raw, ok, err := se.childAtOrAfter(node, from)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, newErr("minFrom", KindNotExist, ErrNotExist)
	}
	label, err := se.dm.edgeLabel(raw[:])
	if err != nil {
		return nil, err
	}
	childPrefix := append(append([]byte(nil), prefix...), label...)
	if edgeHasDataOff(raw[:]) {
		val, err := se.dict.readValue(edgeChildOf(raw[:]))
		if err != nil {
			return nil, err
		}
		return &KeyValue{Key: childPrefix, Value: val}, nil
	}
	child, err := se.readNode(edgeChildOf(raw[:]))
	if err != nil {
		return nil, err
	}
	return se.minInSubtreeNode(child, childPrefix)
}

// childAtOrBefore returns the largest (lexicographically latest) populated
// child with a first byte <= upTo, or ok=false if none exists.
func (se *searchEngine) childAtOrBefore(node *nodeView, upTo int) (tableByte byte, pos int, raw [edgeSize]byte, ok bool, err error) {
	if upTo < 0 {
		return 0, 0, raw, false, nil
	}
	if node.isRoot() {
		for b := upTo; b >= 0; b-- {
			candidate, err := se.readEdgeGuarded(node, b)
			if err != nil {
				return 0, 0, raw, false, err
			}
			if edgeLenOf(candidate[:]) > 0 {
				return byte(b), b, candidate, true, nil
			}
		}
		return 0, 0, raw, false, nil
	}
	tbl := node.table()
	for i := len(tbl) - 1; i >= 0; i-- {
		b := tbl[i]
		if int(b) <= upTo {
			candidate, err := se.readEdgeGuarded(node, i)
			if err != nil {
				return 0, 0, raw, false, err
			}
			return b, i, candidate, true, nil
		}
	}
	return 0, 0, raw, false, nil
}

// maxInSubtreeNode returns the lexicographically largest key/value
// reachable from node. node's own match is never the answer: every built
// node has at least one child, and any descendant key is a proper
// extension of (hence greater than) node's own key.
func (se *searchEngine) maxInSubtreeNode(node *nodeView, prefix []byte) (*KeyValue, error) {
	return se.maxFrom(node, prefix, 255)
}

func (se *searchEngine) maxFrom(node *nodeView, prefix []byte, upTo int) (*KeyValue, error) {
	_, _, raw, ok, err := se.childAtOrBefore(node, upTo)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, newErr("maxFrom", KindNotExist, ErrNotExist)
	}
	label, err := se.dm.edgeLabel(raw[:])
	if err != nil {
		return nil, err
	}
	childPrefix := append(append([]byte(nil), prefix...), label...)
	if edgeHasDataOff(raw[:]) {
		val, err := se.dict.readValue(edgeChildOf(raw[:]))
		if err != nil {
			return nil, err
		}
		return &KeyValue{Key: childPrefix, Value: val}, nil
	}
	child, err := se.readNode(edgeChildOf(raw[:]))
	if err != nil {
		return nil, err
	}
	return se.maxInSubtreeNode(child, childPrefix)
}

// FindLowerBound returns the largest stored key that is <= key (the floor
// of key in the stored key set), not the ceiling: a node with no match of
// its own can never supply the answer from its own subtree, since every
// descendant key is a proper, and therefore greater, extension of it. A
// dead end at one level falls back to the largest key under a smaller
// sibling at that level, then to that level's own key if it is stored (a
// proper prefix of key), and only then to the level above.
func (se *searchEngine) FindLowerBound(key []byte) (*KeyValue, error) {
	root, err := se.root()
	if err != nil {
		return nil, err
	}
	return se.lowerBound(root, nil, key)
}

func (se *searchEngine) lowerBound(node *nodeView, prefix []byte, remaining []byte) (*KeyValue, error) {
	flags, dataOff, err := se.readHeaderGuarded(node)
	if err != nil {
		return nil, err
	}
	if len(remaining) == 0 {
		if flags&nodeFlagMatch != 0 {
			val, err := se.dict.readValue(dataOff)
			if err != nil {
				return nil, err
			}
			return &KeyValue{Key: append([]byte(nil), prefix...), Value: val}, nil
		}
		return nil, newErr("lowerBound", KindNotExist, ErrNotExist)
	}

	firstByte := remaining[0]
	// below: largest key under a smaller sibling, else node's own key.
	below := func() (*KeyValue, error) {
		kv, err := se.maxFrom(node, prefix, int(firstByte)-1)
		if !errors.Is(err, ErrNotExist) || flags&nodeFlagMatch == 0 {
			return kv, err
		}
		return se.lowerBound(node, prefix, nil)
	}
	tableByte, pos, raw, ok, err := se.childAtOrBefore(node, int(firstByte))
	if err != nil {
		return nil, err
	}
	if !ok {
		return below()
	}
	_ = pos

	label, err := se.dm.edgeLabel(raw[:])
	if err != nil {
		return nil, err
	}
	childPrefix := append(append([]byte(nil), prefix...), label...)

	if tableByte < firstByte {
		// This branch diverges before reaching firstByte at all, so every
		// key under it is < key; its own largest descendant is the best
		// candidate this node can offer.
		if edgeHasDataOff(raw[:]) {
			val, err := se.dict.readValue(edgeChildOf(raw[:]))
			if err != nil {
				return nil, err
			}
			return &KeyValue{Key: childPrefix, Value: val}, nil
		}
		child, err := se.readNode(edgeChildOf(raw[:]))
		if err != nil {
			return nil, err
		}
		return se.maxInSubtreeNode(child, childPrefix)
	}

	common := commonPrefixLen(label, remaining)

	switch {
	case common == len(label) && common == len(remaining):
		if edgeHasDataOff(raw[:]) {
			val, err := se.dict.readValue(edgeChildOf(raw[:]))
			if err != nil {
				return nil, err
			}
			return &KeyValue{Key: childPrefix, Value: val}, nil
		}
		child, err := se.readNode(edgeChildOf(raw[:]))
		if err != nil {
			return nil, err
		}
		result, err := se.lowerBound(child, childPrefix, nil)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, ErrNotExist) {
			return below()
		}
		return nil, err

	case common == len(label) && common < len(remaining):
		if edgeHasDataOff(raw[:]) {
			// The leaf's own key is a proper prefix of key, hence < key --
			// it is the best candidate this edge can offer.
			val, err := se.dict.readValue(edgeChildOf(raw[:]))
			if err != nil {
				return nil, err
			}
			return &KeyValue{Key: childPrefix, Value: val}, nil
		}
		child, err := se.readNode(edgeChildOf(raw[:]))
		if err != nil {
			return nil, err
		}
		result, err := se.lowerBound(child, childPrefix, remaining[common:])
		if err == nil {
			return result, nil
		}
		if errors.Is(err, ErrNotExist) {
			return below()
		}
		return nil, err

	case common == len(remaining) && common < len(label):
		// key ends exactly where this edge's label keeps going: every key
		// under this edge extends key as a proper prefix, hence is > key.
		return below()

	default: // common < len(label) && common < len(remaining): diverges mid-label
		if label[common] < remaining[common] {
			if edgeHasDataOff(raw[:]) {
				val, err := se.dict.readValue(edgeChildOf(raw[:]))
				if err != nil {
					return nil, err
				}
				return &KeyValue{Key: childPrefix, Value: val}, nil
			}
			child, err := se.readNode(edgeChildOf(raw[:]))
			if err != nil {
				return nil, err
			}
			return se.maxInSubtreeNode(child, childPrefix)
		}
		// label[common] > remaining[common]: this branch is entirely > key.
		return below()
	}
}
