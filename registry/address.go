package registry

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// AddressLength is the size of an account or contract address in bytes.
const AddressLength = 20

// Address identifies an owner or a created contract. It renders with the
// EIP-55 mixed-case checksum.
type Address [AddressLength]byte

// ParseAddress accepts "0x" followed by 40 hex characters. All-lower and
// all-upper input is taken as is; mixed case must carry a valid checksum.
func ParseAddress(s string) (Address, error) {
	var a Address
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return a, fmt.Errorf("%w: %q lacks 0x prefix", ErrInvalidAddress, s)
	}
	body := s[2:]
	if len(body) != hex.EncodedLen(AddressLength) {
		return a, fmt.Errorf("%w: %q must have %d hex characters", ErrInvalidAddress, s, hex.EncodedLen(AddressLength))
	}
	if _, err := hex.Decode(a[:], []byte(body)); err != nil {
		return a, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, s, err)
	}
	if body != strings.ToLower(body) && body != strings.ToUpper(body) && "0x"+body != a.String() {
		return Address{}, fmt.Errorf("%w: %q has a bad checksum", ErrInvalidAddress, s)
	}
	return a, nil
}

// MustParseAddress is ParseAddress for constants; it panics on error.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Address) IsZero() bool { return a == Address{} }

// String returns the EIP-55 checksummed form.
func (a Address) String() string {
	lower := hex.EncodeToString(a[:])
	sum := keccak256([]byte(lower))
	out := []byte(lower)
	for i, c := range out {
		if c < 'a' {
			continue
		}
		nibble := sum[i/2]
		if i%2 == 0 {
			nibble >>= 4
		}
		if nibble&0x0f >= 8 {
			out[i] = c - 'a' + 'A'
		}
	}
	return "0x" + string(out)
}

func (a Address) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Address) UnmarshalText(b []byte) error {
	parsed, err := ParseAddress(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// contractAddress derives a deterministic address for the nonce-th contract
// created by factory, in the manner of CREATE: keccak over the creator and
// nonce, keeping the low 20 bytes.
func contractAddress(factory, owner Address, nonce uint64) Address {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], nonce)
	sum := keccak256(factory[:], owner[:], n[:])
	var a Address
	copy(a[:], sum[len(sum)-AddressLength:])
	return a
}

// addressFromSeed derives an address from arbitrary bytes.
func addressFromSeed(seed []byte) Address {
	sum := keccak256(seed)
	var a Address
	copy(a[:], sum[len(sum)-AddressLength:])
	return a
}

func keccak256(parts ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}
