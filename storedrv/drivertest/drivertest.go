// Package drivertest is a storedrv.Driver conformance suite shared by
// every backend (memory, buntdb): the same battery of Get/Iterate/Write/
// DeleteRange/AtomicAdd/CompareAndClear behavior, run once per driver
// construction in each backend's own _test.go, grounded on the teacher's
// own shared-suite pattern for its backend-agnostic tests (e.g. the mock
// vs real target tests sharing one assertion body).
package drivertest

import (
	"context"
	"testing"

	"github.com/groupwave/corestore/storedrv"
)

// Conformance runs the full battery against a freshly constructed driver,
// calling cleanup afterward regardless of outcome.
func Conformance(t *testing.T, newDriver func(t *testing.T) (drv storedrv.Driver, cleanup func())) {
	t.Helper()
	run := func(name string, fn func(t *testing.T, drv storedrv.Driver)) {
		t.Run(name, func(t *testing.T) {
			drv, cleanup := newDriver(t)
			defer cleanup()
			fn(t, drv)
		})
	}

	run("GetMissingKeyReturnsNotOk", func(t *testing.T, drv storedrv.Driver) {
		ctx := context.Background()
		_, ok, err := drv.Get(ctx, []byte("missing"))
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if ok {
			t.Fatal("expected ok=false for a missing key")
		}
	})

	run("WriteThenGetRoundTrips", func(t *testing.T, drv storedrv.Driver) {
		ctx := context.Background()
		err := drv.Write(ctx, func(txn storedrv.Txn) error {
			txn.Set([]byte("k1"), []byte("v1"))
			return nil
		})
		if err != nil {
			t.Fatalf("Write: %v", err)
		}
		v, ok, err := drv.Get(ctx, []byte("k1"))
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if !ok || string(v) != "v1" {
			t.Fatalf("Get = %q, %v; want v1, true", v, ok)
		}
	})

	run("ClearRemovesAValueSetEarlierInTheSameTxn", func(t *testing.T, drv storedrv.Driver) {
		ctx := context.Background()
		err := drv.Write(ctx, func(txn storedrv.Txn) error {
			txn.Set([]byte("k2"), []byte("v2"))
			txn.Clear([]byte("k2"))
			return nil
		})
		if err != nil {
			t.Fatalf("Write: %v", err)
		}
		_, ok, err := drv.Get(ctx, []byte("k2"))
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if ok {
			t.Fatal("expected k2 to be absent after Clear")
		}
	})

	run("TxnGetSeesWritesEarlierInTheSameTxn", func(t *testing.T, drv storedrv.Driver) {
		ctx := context.Background()
		var seen []byte
		var sawOk bool
		err := drv.Write(ctx, func(txn storedrv.Txn) error {
			txn.Set([]byte("k3"), []byte("v3"))
			seen, sawOk, _ = txn.Get([]byte("k3"))
			return nil
		})
		if err != nil {
			t.Fatalf("Write: %v", err)
		}
		if !sawOk || string(seen) != "v3" {
			t.Fatalf("Txn.Get within the same Write = %q, %v; want v3, true", seen, sawOk)
		}
	})

	run("WritePropagatesTheCallbacksError", func(t *testing.T, drv storedrv.Driver) {
		ctx := context.Background()
		sentinel := errorf("boom")
		err := drv.Write(ctx, func(txn storedrv.Txn) error {
			return sentinel
		})
		if err == nil {
			t.Fatal("expected Write to propagate the callback's error")
		}
	})

	run("IterateVisitsKeysInOrderWithinRange", func(t *testing.T, drv storedrv.Driver) {
		ctx := context.Background()
		err := drv.Write(ctx, func(txn storedrv.Txn) error {
			txn.Set([]byte("a"), []byte("1"))
			txn.Set([]byte("b"), []byte("2"))
			txn.Set([]byte("c"), []byte("3"))
			return nil
		})
		if err != nil {
			t.Fatalf("Write: %v", err)
		}
		var got []string
		err = drv.Iterate(ctx, []byte("a"), []byte("c"), false, func(k, _ []byte) (bool, error) {
			got = append(got, string(k))
			return true, nil
		})
		if err != nil {
			t.Fatalf("Iterate: %v", err)
		}
		if len(got) != 2 || got[0] != "a" || got[1] != "b" {
			t.Fatalf("Iterate [a,c) = %v, want [a b]", got)
		}
	})

	run("IterateStopsEarlyWhenFnReturnsFalse", func(t *testing.T, drv storedrv.Driver) {
		ctx := context.Background()
		err := drv.Write(ctx, func(txn storedrv.Txn) error {
			txn.Set([]byte("a"), []byte("1"))
			txn.Set([]byte("b"), []byte("2"))
			txn.Set([]byte("c"), []byte("3"))
			return nil
		})
		if err != nil {
			t.Fatalf("Write: %v", err)
		}
		var got []string
		err = drv.Iterate(ctx, []byte("a"), []byte("z"), false, func(k, _ []byte) (bool, error) {
			got = append(got, string(k))
			return len(got) < 1, nil
		})
		if err != nil {
			t.Fatalf("Iterate: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("Iterate stopped after %d keys, want 1", len(got))
		}
	})

	run("DeleteRangeClearsOnlyTheRange", func(t *testing.T, drv storedrv.Driver) {
		ctx := context.Background()
		err := drv.Write(ctx, func(txn storedrv.Txn) error {
			txn.Set([]byte("a"), []byte("1"))
			txn.Set([]byte("b"), []byte("2"))
			txn.Set([]byte("c"), []byte("3"))
			return nil
		})
		if err != nil {
			t.Fatalf("Write: %v", err)
		}
		if err := drv.DeleteRange(ctx, []byte("a"), []byte("c")); err != nil {
			t.Fatalf("DeleteRange: %v", err)
		}
		if _, ok, _ := drv.Get(ctx, []byte("a")); ok {
			t.Fatal("expected a to be cleared")
		}
		if _, ok, _ := drv.Get(ctx, []byte("b")); ok {
			t.Fatal("expected b to be cleared")
		}
		if _, ok, _ := drv.Get(ctx, []byte("c")); !ok {
			t.Fatal("expected c (outside the range) to survive")
		}
	})

	run("AtomicAddAccumulatesFromZero", func(t *testing.T, drv storedrv.Driver) {
		ctx := context.Background()
		key := []byte("counter")
		v, err := drv.AtomicAdd(ctx, key, 5)
		if err != nil || v != 5 {
			t.Fatalf("AtomicAdd(+5) = %d, %v; want 5, nil", v, err)
		}
		v, err = drv.AtomicAdd(ctx, key, -2)
		if err != nil || v != 3 {
			t.Fatalf("AtomicAdd(-2) = %d, %v; want 3, nil", v, err)
		}
	})

	run("TxnAtomicAddIsVisibleAfterCommit", func(t *testing.T, drv storedrv.Driver) {
		ctx := context.Background()
		key := []byte("counter2")
		err := drv.Write(ctx, func(txn storedrv.Txn) error {
			txn.AtomicAdd(key, 7)
			return nil
		})
		if err != nil {
			t.Fatalf("Write: %v", err)
		}
		v, err := drv.AtomicAdd(ctx, key, 0)
		if err != nil || v != 7 {
			t.Fatalf("AtomicAdd(+0) after Txn.AtomicAdd = %d, %v; want 7, nil", v, err)
		}
	})

	run("CompareAndClearOnlyClearsOnMatch", func(t *testing.T, drv storedrv.Driver) {
		ctx := context.Background()
		key := []byte("counter3")
		if _, err := drv.AtomicAdd(ctx, key, 4); err != nil {
			t.Fatalf("AtomicAdd: %v", err)
		}
		cleared, err := drv.CompareAndClear(ctx, key, 99)
		if err != nil {
			t.Fatalf("CompareAndClear: %v", err)
		}
		if cleared {
			t.Fatal("expected CompareAndClear to refuse a mismatched expect")
		}
		cleared, err = drv.CompareAndClear(ctx, key, 4)
		if err != nil {
			t.Fatalf("CompareAndClear: %v", err)
		}
		if !cleared {
			t.Fatal("expected CompareAndClear to succeed on a matching expect")
		}
		if _, ok, _ := drv.Get(ctx, key); ok {
			t.Fatal("expected the counter key to be gone after a successful CompareAndClear")
		}
	})

	run("CompareAndClearOnAbsentKeyMatchesZero", func(t *testing.T, drv storedrv.Driver) {
		ctx := context.Background()
		cleared, err := drv.CompareAndClear(ctx, []byte("never-written"), 0)
		if err != nil {
			t.Fatalf("CompareAndClear: %v", err)
		}
		if !cleared {
			t.Fatal("expected CompareAndClear(absent, expect=0) to report cleared=true")
		}
	})
}

type stringError string

func (e stringError) Error() string { return string(e) }

func errorf(msg string) error { return stringError(msg) }
