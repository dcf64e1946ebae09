package mabain

import "testing"

func TestCacheHashAlgorithmsAreStable(t *testing.T) {
	key := []byte("hello-world")
	for _, alg := range []int{AlgXXHash3, AlgFNV1a, AlgBlake2b} {
		h1 := cacheHash(key, alg)
		h2 := cacheHash(key, alg)
		if h1 != h2 {
			t.Fatalf("alg %d: cacheHash not stable: %d != %d", alg, h1, h2)
		}
	}
}

func TestCacheHashAlgorithmsDiffer(t *testing.T) {
	key := []byte("distinguish-me")
	xx := cacheHash(key, AlgXXHash3)
	fnv := cacheHash(key, AlgFNV1a)
	blake := cacheHash(key, AlgBlake2b)
	if xx == fnv || xx == blake || fnv == blake {
		t.Fatalf("expected distinct hashes across algorithms, got xx=%d fnv=%d blake=%d", xx, fnv, blake)
	}
}

func TestPrefixCacheLocalLookupInsertInvalidate(t *testing.T) {
	for _, alg := range []int{AlgXXHash3, AlgFNV1a, AlgBlake2b} {
		c := newPrefixCacheLocal(16, alg)
		key := []byte("some-key")

		if _, ok := c.lookup(key); ok {
			t.Fatalf("alg %d: lookup on empty cache returned a hit", alg)
		}

		c.insert(key, 42)
		off, ok := c.lookup(key)
		if !ok || off != 42 {
			t.Fatalf("alg %d: lookup after insert: got (%d, %v), want (42, true)", alg, off, ok)
		}

		c.invalidate(key)
		if _, ok := c.lookup(key); ok {
			t.Fatalf("alg %d: lookup after invalidate returned a hit", alg)
		}
	}
}

func TestPrefixCacheLocalDefaultsSizeAndAlg(t *testing.T) {
	c := newPrefixCacheLocal(0, 0)
	if len(c.slots) != 4096 {
		t.Fatalf("default size: got %d, want 4096", len(c.slots))
	}
	if c.alg != AlgXXHash3 {
		t.Fatalf("default alg: got %d, want AlgXXHash3", c.alg)
	}
}

func TestPrefixCacheSharedNilSafe(t *testing.T) {
	var c *prefixCacheShared
	if _, ok := c.lookup([]byte("x")); ok {
		t.Fatalf("nil *prefixCacheShared.lookup returned a hit")
	}
	c.insert([]byte("x"), 1) // must not panic
	if err := c.close(); err != nil {
		t.Fatalf("nil *prefixCacheShared.close: %v", err)
	}
}

func TestPrefixCacheSharedWriterPopulatesReaderSees(t *testing.T) {
	dir := t.TempDir()
	wc, err := openPrefixCacheShared(dir, true, 8, AlgXXHash3)
	if err != nil {
		t.Fatalf("openPrefixCacheShared writer: %v", err)
	}
	defer wc.close()

	key := []byte("shared-key")
	wc.insert(key, 99)

	rc, err := openPrefixCacheShared(dir, false, 8, AlgXXHash3)
	if err != nil {
		t.Fatalf("openPrefixCacheShared reader: %v", err)
	}
	defer rc.close()

	off, ok := rc.lookup(key)
	if !ok || off != 99 {
		t.Fatalf("reader lookup: got (%d, %v), want (99, true)", off, ok)
	}
}

func TestPrefixCacheSharedReaderCannotInsert(t *testing.T) {
	dir := t.TempDir()
	wc, err := openPrefixCacheShared(dir, true, 8, AlgXXHash3)
	if err != nil {
		t.Fatalf("openPrefixCacheShared writer: %v", err)
	}
	defer wc.close()

	rc, err := openPrefixCacheShared(dir, false, 8, AlgXXHash3)
	if err != nil {
		t.Fatalf("openPrefixCacheShared reader: %v", err)
	}
	defer rc.close()

	rc.insert([]byte("should-not-stick"), 7)
	if _, ok := rc.lookup([]byte("should-not-stick")); ok {
		t.Fatalf("reader insert took effect despite writer-only guard")
	}
}
