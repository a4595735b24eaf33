package util

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/crypto/sha3"
)

// ErrInvalidAddress is returned by write paths that receive a malformed or
// badly checksummed wallet address.
var ErrInvalidAddress = errors.New("invalid wallet address")

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// IsValidAddress reports whether s is a well-formed wallet address.
// All-lowercase and all-uppercase hex are accepted as unchecksummed;
// mixed-case addresses must carry a valid EIP-55 checksum.
func IsValidAddress(s string) bool {
	if !addressPattern.MatchString(s) {
		return false
	}
	hexPart := s[2:]
	lower := strings.ToLower(hexPart)
	upper := strings.ToUpper(hexPart)
	if hexPart == lower || hexPart == upper {
		return true
	}
	sum, err := ChecksumAddress(s)
	if err != nil {
		return false
	}
	return sum == s
}

// ValidateAddress returns ErrInvalidAddress (wrapped with the offending value)
// when s is not a valid wallet address.
func ValidateAddress(s string) error {
	if !IsValidAddress(s) {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return nil
}

// NormalizeAddress lowercases an address for use as a map key. Comparisons
// throughout the analyzers are case-insensitive.
func NormalizeAddress(s string) string {
	return strings.ToLower(s)
}

// ChecksumAddress returns the EIP-55 checksummed form of a well-formed address.
func ChecksumAddress(s string) (string, error) {
	if !addressPattern.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	hexPart := strings.ToLower(s[2:])

	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(hexPart))
	hash := h.Sum(nil)

	out := []byte(hexPart)
	for i, c := range out {
		if c < 'a' || c > 'f' {
			continue
		}
		nibble := hash[i/2]
		if i%2 == 0 {
			nibble >>= 4
		} else {
			nibble &= 0x0f
		}
		if nibble >= 8 {
			out[i] = c - 'a' + 'A'
		}
	}
	return "0x" + string(out), nil
}
