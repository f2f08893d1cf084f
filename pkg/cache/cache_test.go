package cache

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestKeyDependsOnSourceAndConfig(t *testing.T) {
	src := []byte("fn main() { }")
	base := Key(src, "backend=qbe;")
	if Key(src, "backend=qbe;") != base {
		t.Errorf("Key is not deterministic")
	}
	if Key(src, "backend=llvm;") == base {
		t.Errorf("Key ignores the configuration")
	}
	if Key([]byte("fn main() { 1; }"), "backend=qbe;") == base {
		t.Errorf("Key ignores the source")
	}
	// The separator keeps source and fingerprint from running together.
	if Key([]byte("ab"), "c") == Key([]byte("a"), "bc") {
		t.Errorf("Key collides across the boundary")
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	c, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if _, ok, err := c.Get(42); ok || err != nil {
		t.Fatalf("empty cache: ok=%v err=%v", ok, err)
	}

	want := &Entry{Unit: "main.bas", Backend: "qbe", Output: []byte(".text\n")}
	if err := c.Put(42, want); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := c.Get(42)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("entry mismatch (-want +got):\n%s", diff)
	}

	if err := c.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok, _ := c.Get(42); ok {
		t.Errorf("entry survived Clear")
	}
}

func TestNilCacheIsNoop(t *testing.T) {
	var c *Cache
	if err := c.Put(1, &Entry{}); err != nil {
		t.Errorf("Put on nil cache: %v", err)
	}
	if _, ok, err := c.Get(1); ok || err != nil {
		t.Errorf("Get on nil cache: ok=%v err=%v", ok, err)
	}
}
