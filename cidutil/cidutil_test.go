package cidutil

import (
	"bytes"
	"crypto/sha256"
	"testing"
)

func TestFromSHA256_MatchesRawSHA256(t *testing.T) {
	data := []byte("artifact bytes")
	want, err := RawSHA256(data)
	if err != nil {
		t.Fatalf("RawSHA256: %v", err)
	}
	sum := sha256.Sum256(data)
	got, err := FromSHA256(sum[:])
	if err != nil {
		t.Fatalf("FromSHA256: %v", err)
	}
	if !got.Equals(want) {
		t.Fatalf("cid mismatch: got %s want %s", got, want)
	}

	back, err := SHA256Of(got)
	if err != nil {
		t.Fatalf("SHA256Of: %v", err)
	}
	if !bytes.Equal(back, sum[:]) {
		t.Fatalf("SHA256Of returned different bytes")
	}
}

func TestFromSHA256_RejectsWrongLength(t *testing.T) {
	if _, err := FromSHA256(make([]byte, 20)); err == nil {
		t.Fatalf("expected error for 20-byte digest")
	}
}
