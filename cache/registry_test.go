package cache

import "testing"

func TestPutGet(t *testing.T) {
	r := NewRegistry()
	r.Put(Permissions, 42, "admin")

	v, ok := r.Get(Permissions, 42)
	if !ok || v != "admin" {
		t.Fatalf("Get(Permissions, 42) = %v, %v; want admin, true", v, ok)
	}
	if _, ok := r.Get(Permissions, 7); ok {
		t.Fatal("expected a miss for an unset id")
	}
}

func TestInvalidateSpecificCaches(t *testing.T) {
	r := NewRegistry()
	r.Put(Permissions, 1, "x")
	r.Put(Files, 1, "y")

	r.Invalidate([]uint32{1}, Permissions)

	if _, ok := r.Get(Permissions, 1); ok {
		t.Fatal("expected Permissions to be invalidated")
	}
	if _, ok := r.Get(Files, 1); !ok {
		t.Fatal("Files was not named in Invalidate and should be untouched")
	}
}

func TestInvalidateAllCachesWhenNoNamesGiven(t *testing.T) {
	r := NewRegistry()
	for _, n := range allNames {
		r.Put(n, 5, "v")
	}

	r.Invalidate([]uint32{5})

	for _, n := range allNames {
		if _, ok := r.Get(n, 5); ok {
			t.Fatalf("expected %s to be invalidated when Invalidate names no caches", n)
		}
	}
}

func TestInvalidateOnlyListedIDs(t *testing.T) {
	r := NewRegistry()
	r.Put(Contacts, 1, "a")
	r.Put(Contacts, 2, "b")

	r.Invalidate([]uint32{1}, Contacts)

	if _, ok := r.Get(Contacts, 1); ok {
		t.Fatal("id 1 should have been invalidated")
	}
	if _, ok := r.Get(Contacts, 2); !ok {
		t.Fatal("id 2 was not listed and should remain cached")
	}
}

func TestClearAll(t *testing.T) {
	r := NewRegistry()
	for _, n := range allNames {
		r.Put(n, 1, "v")
	}

	r.ClearAll()

	for _, n := range allNames {
		if _, ok := r.Get(n, 1); ok {
			t.Fatalf("expected %s to be cleared by ClearAll", n)
		}
	}
}

func TestGetUnknownCacheName(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Get(Name("not_a_cache"), 1); ok {
		t.Fatal("expected a miss for an unregistered cache name")
	}
}
