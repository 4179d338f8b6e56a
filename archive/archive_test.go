package archive

import (
	"bytes"
	"strings"
	"testing"

	"github.com/groupwave/corestore/storeerr"
)

func TestMarshalUnmarshalRoundTripSmallPayload(t *testing.T) {
	e := Wrap(3, 100, []byte("small payload"))
	data, err := e.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}

	var got Envelope
	if err := got.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if got.Version != 3 || got.ChangeID != 100 {
		t.Fatalf("got Version=%d ChangeID=%d, want 3, 100", got.Version, got.ChangeID)
	}
	if got.Compressed {
		t.Fatal("expected a payload under compressThreshold to stay uncompressed")
	}
	if !bytes.Equal(got.Payload, []byte("small payload")) {
		t.Fatalf("Payload = %q, want %q", got.Payload, "small payload")
	}
}

func TestMarshalUnmarshalRoundTripLargePayloadIsCompressed(t *testing.T) {
	payload := bytes.Repeat([]byte("abcdefgh"), 100) // 800 bytes, highly compressible, over threshold
	e := Wrap(1, 7, payload)
	data, err := e.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}

	var got Envelope
	if err := got.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if !got.Compressed {
		t.Fatal("expected a large, compressible payload to be marked Compressed")
	}
	if !bytes.Equal(got.Payload, payload) {
		t.Fatal("decompressed payload does not match the original")
	}
}

func TestUnmarshalRefusesTruncatedEnvelope(t *testing.T) {
	e := Wrap(1, 1, []byte("payload"))
	data, err := e.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}

	var got Envelope
	err = got.UnmarshalBinary(data[:3])
	if err == nil {
		t.Fatal("expected UnmarshalBinary to refuse a truncated envelope")
	}
	if !storeerr.Is(err, storeerr.SchemaMismatch) {
		t.Fatalf("err = %v, want storeerr.SchemaMismatch", err)
	}
	if got.Payload != nil || got.Version != 0 {
		t.Fatalf("expected no partial population on error, got %+v", got)
	}
}

func TestCheckVersionMatchAndMismatch(t *testing.T) {
	if err := CheckVersion(2, 2); err != nil {
		t.Fatalf("CheckVersion(2,2) = %v, want nil", err)
	}
	err := CheckVersion(2, 3)
	if err == nil {
		t.Fatal("expected a mismatch error")
	}
	if !storeerr.Is(err, storeerr.SchemaMismatch) {
		t.Fatalf("err = %v, want storeerr.SchemaMismatch", err)
	}
	if !strings.Contains(err.Error(), "mismatch") {
		t.Fatalf("err.Error() = %q, want it to mention the mismatch", err.Error())
	}
}
