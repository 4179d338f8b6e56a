package buntdb

import (
	"testing"

	"github.com/groupwave/corestore/storedrv"
	"github.com/groupwave/corestore/storedrv/drivertest"
)

func TestConformance(t *testing.T) {
	drivertest.Conformance(t, func(t *testing.T) (storedrv.Driver, func()) {
		s, err := Open(":memory:")
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		return s, func() { _ = s.Close() }
	})
}
