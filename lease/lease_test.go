package lease

import (
	"testing"
	"time"
)

func TestAcquireExclusive(t *testing.T) {
	s := New(time.Hour)
	defer s.Stop()

	ok, err := s.Acquire("purge:1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first Acquire = %v, %v; want true, nil", ok, err)
	}
	ok, err = s.Acquire("purge:1", time.Minute)
	if err != nil || ok {
		t.Fatalf("second Acquire = %v, %v; want false, nil", ok, err)
	}
}

func TestReleaseAllowsReacquire(t *testing.T) {
	s := New(time.Hour)
	defer s.Stop()

	if ok, _ := s.Acquire("purge:1", time.Minute); !ok {
		t.Fatal("expected to acquire")
	}
	s.Release("purge:1")
	if ok, _ := s.Acquire("purge:1", time.Minute); !ok {
		t.Fatal("expected to reacquire after release")
	}
}

func TestSelfExpiry(t *testing.T) {
	s := New(time.Hour)
	defer s.Stop()

	if ok, _ := s.Acquire("purge:1", time.Millisecond); !ok {
		t.Fatal("expected to acquire")
	}
	time.Sleep(5 * time.Millisecond)
	if ok, _ := s.Acquire("purge:1", time.Minute); !ok {
		t.Fatal("expected to acquire an expired lease without an explicit release")
	}
}

func TestRenewExtendsUnexpiredLease(t *testing.T) {
	s := New(time.Hour)
	defer s.Stop()

	s.Acquire("purge:1", 2*time.Millisecond)
	if !s.Renew("purge:1", time.Minute) {
		t.Fatal("expected Renew to succeed on a held lease")
	}
	time.Sleep(5 * time.Millisecond)
	if ok, _ := s.Acquire("purge:1", time.Minute); ok {
		t.Fatal("Renew should have kept the lease held past the original TTL")
	}
}

func TestRenewFailsOnceExpired(t *testing.T) {
	s := New(time.Hour)
	defer s.Stop()

	s.Acquire("purge:1", time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	if s.Renew("purge:1", time.Minute) {
		t.Fatal("Renew should fail once the lease has already expired")
	}
}

func TestHousekeepSweepsExpiredEntries(t *testing.T) {
	s := New(2 * time.Millisecond)
	defer s.Stop()

	s.Acquire("purge:1", time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	s.mu.Lock()
	_, held := s.leases["purge:1"]
	s.mu.Unlock()
	if held {
		t.Fatal("expected the housekeeping sweep to have cleared the expired entry")
	}
}

func TestBumpRevisionInvalidatesAcrossReload(t *testing.T) {
	s := New(time.Hour)
	defer s.Stop()

	before := s.Revision()
	after := s.BumpRevision()
	if after <= before {
		t.Fatalf("BumpRevision() = %d, want > %d", after, before)
	}
}
