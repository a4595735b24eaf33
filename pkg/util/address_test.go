package util

import "testing"

func TestChecksumAddress(t *testing.T) {
	// Reference vector from EIP-55.
	in := "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"
	want := "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	got, err := ChecksumAddress(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Fatalf("checksum mismatch: got %s want %s", got, want)
	}
}

func TestIsValidAddress(t *testing.T) {
	if !IsValidAddress("0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed") {
		t.Fatalf("lowercase address should be valid")
	}
	if !IsValidAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed") {
		t.Fatalf("checksummed address should be valid")
	}
	if IsValidAddress("0x5Aaeb6053f3e94c9b9a09f33669435e7ef1beaed") {
		t.Fatalf("bad checksum should be invalid")
	}
	if IsValidAddress("0x1234") {
		t.Fatalf("short address should be invalid")
	}
	if IsValidAddress("5aaeb6053f3e94c9b9a09f33669435e7ef1beaed") {
		t.Fatalf("missing 0x prefix should be invalid")
	}
}

func TestNormalizeAddress(t *testing.T) {
	if NormalizeAddress("0xABCdef0000000000000000000000000000000000") != "0xabcdef0000000000000000000000000000000000" {
		t.Fatalf("normalize should lowercase")
	}
}
