package mabain

import "testing"

// TestRemoveCascadesThroughEmptiedBranchNode exercises the case where
// deleting a key leaves a two-child branch node (created by a common-prefix
// split) with only one remaining child, and a later delete removes that
// last child too -- the branch node itself must then be spliced out of its
// parent rather than leaving Remove failing on an otherwise-valid key.
func TestRemoveCascadesThroughEmptiedBranchNode(t *testing.T) {
	db := openWriter(t, Options{})

	// "team" and "teapot" share the prefix "tea" then diverge, forcing
	// splitEdge to build a two-child, non-match branch node.
	if err := db.Add([]byte("team"), []byte("1"), true); err != nil {
		t.Fatalf("Add(team): %v", err)
	}
	if err := db.Add([]byte("teapot"), []byte("2"), true); err != nil {
		t.Fatalf("Add(teapot): %v", err)
	}

	if err := db.Remove([]byte("team")); err != nil {
		t.Fatalf("Remove(team): %v", err)
	}
	// The branch node now has exactly one child ("pot") and is not itself
	// a match; removing that last child must cascade cleanly.
	if err := db.Remove([]byte("teapot")); err != nil {
		t.Fatalf("Remove(teapot) after sibling removed: %v", err)
	}

	if _, err := db.Find([]byte("team")); err == nil {
		t.Fatalf("Find(team) after removal: got a value, want ErrNotExist")
	}
	if _, err := db.Find([]byte("teapot")); err == nil {
		t.Fatalf("Find(teapot) after removal: got a value, want ErrNotExist")
	}
	if got := db.Count(); got != 0 {
		t.Fatalf("Count after both removals: got %d, want 0", got)
	}
}

// TestRemoveCollapsesMatchedNodeToLeaf exercises splitLeaf's shape: a key
// ("car") whose full label matches an existing key's continuation point,
// producing an internal node that is itself a match with one child ("t",
// for "cart"). Deleting the longer key must collapse that node back into a
// leaf edge on its parent while keeping the shorter key intact.
func TestRemoveCollapsesMatchedNodeToLeaf(t *testing.T) {
	db := openWriter(t, Options{})

	if err := db.Add([]byte("car"), []byte("vehicle"), true); err != nil {
		t.Fatalf("Add(car): %v", err)
	}
	if err := db.Add([]byte("cart"), []byte("wagon"), true); err != nil {
		t.Fatalf("Add(cart): %v", err)
	}

	if err := db.Remove([]byte("cart")); err != nil {
		t.Fatalf("Remove(cart): %v", err)
	}

	val, err := db.Find([]byte("car"))
	if err != nil {
		t.Fatalf("Find(car) after Remove(cart): %v", err)
	}
	if string(val) != "vehicle" {
		t.Fatalf("Find(car): got %q, want %q", val, "vehicle")
	}
	if _, err := db.Find([]byte("cart")); err == nil {
		t.Fatalf("Find(cart) after removal: got a value, want ErrNotExist")
	}
	if got := db.Count(); got != 1 {
		t.Fatalf("Count after Remove(cart): got %d, want 1", got)
	}

	// The collapsed leaf edge must still behave like any other leaf: it
	// can be overwritten and re-extended.
	if err := db.Add([]byte("car"), []byte("automobile"), true); err != nil {
		t.Fatalf("Add(car) overwrite after collapse: %v", err)
	}
	val, err = db.Find([]byte("car"))
	if err != nil {
		t.Fatalf("Find(car) after overwrite: %v", err)
	}
	if string(val) != "automobile" {
		t.Fatalf("Find(car) after overwrite: got %q, want %q", val, "automobile")
	}
}

// TestRemoveCascadesMultipleLevels builds a three-level chain of
// single-child branch nodes by inserting and then deleting siblings at each
// level, and checks the final delete correctly unwinds the whole chain back
// to the root instead of stopping partway.
func TestRemoveCascadesMultipleLevels(t *testing.T) {
	db := openWriter(t, Options{})

	keys := []string{"a", "ab", "abc", "abcd"}
	for _, k := range keys {
		if err := db.Add([]byte(k), []byte(k), true); err != nil {
			t.Fatalf("Add(%q): %v", k, err)
		}
	}
	// Remove the shorter prefixes first, leaving "abcd" as the only
	// survivor of what was a straight-line chain of matched nodes.
	for _, k := range []string{"a", "ab", "abc"} {
		if err := db.Remove([]byte(k)); err != nil {
			t.Fatalf("Remove(%q): %v", k, err)
		}
	}

	val, err := db.Find([]byte("abcd"))
	if err != nil {
		t.Fatalf("Find(abcd): %v", err)
	}
	if string(val) != "abcd" {
		t.Fatalf("Find(abcd): got %q, want %q", val, "abcd")
	}
	if got := db.Count(); got != 1 {
		t.Fatalf("Count: got %d, want 1", got)
	}

	if err := db.Remove([]byte("abcd")); err != nil {
		t.Fatalf("Remove(abcd): %v", err)
	}
	if got := db.Count(); got != 0 {
		t.Fatalf("Count after final removal: got %d, want 0", got)
	}
	kvs, err := db.FindPrefix(nil)
	if err != nil {
		t.Fatalf("FindPrefix: %v", err)
	}
	if len(kvs) != 0 {
		t.Fatalf("FindPrefix after emptying trie: got %d results, want 0", len(kvs))
	}
}

func TestCommonPrefixLen(t *testing.T) {
	cases := []struct {
		a, b []byte
		want int
	}{
		{[]byte("abc"), []byte("abd"), 2},
		{[]byte("abc"), []byte("abc"), 3},
		{[]byte(""), []byte("abc"), 0},
		{[]byte("abc"), []byte("ab"), 2},
	}
	for _, c := range cases {
		if got := commonPrefixLen(c.a, c.b); got != c.want {
			t.Fatalf("commonPrefixLen(%q, %q): got %d, want %d", c.a, c.b, got, c.want)
		}
	}
}
