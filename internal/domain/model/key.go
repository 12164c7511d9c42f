package model

import (
	"github.com/google/uuid"
)

// Key is an opaque identity: ledger addresses, authorities and badge mints
// all share it.
type Key = uuid.UUID

// NilKey is the zero identity.
var NilKey = uuid.Nil

// NewKey returns a fresh random identity.
func NewKey() Key {
	return uuid.New()
}

// ParseKey parses the canonical textual form of a Key.
func ParseKey(s string) (Key, error) {
	return uuid.Parse(s)
}

// addressSpace namespaces every derived address so they never collide with
// random keys handed out by NewKey.
var addressSpace = uuid.MustParse("6f1c2d8e-3a44-4b7b-9a5e-2f0d4c1e7b90")

// DeriveAddress maps an ordered list of seeds onto a stable address. Each seed
// is length-prefixed so ("ab","c") and ("a","bc") never collide.
func DeriveAddress(seeds ...[]byte) Key {
	buf := make([]byte, 0, 64)
	for _, s := range seeds {
		buf = append(buf, byte(len(s)))
		buf = append(buf, s...)
	}
	return uuid.NewSHA1(addressSpace, buf)
}

// Seed prefixes used to address records.
const (
	SeedRegistry = "org"
	SeedScore    = "score"
	SeedBadge    = "badge"
)

// RegistryAddress locates the Registry of the organization badge mint owned by authority.
func RegistryAddress(mint, authority Key) Key {
	return DeriveAddress([]byte(SeedRegistry), mint[:], authority[:])
}

// ScoreAddress locates the ScoreRecord of applicant under the registry at org.
func ScoreAddress(org, applicant Key) Key {
	return DeriveAddress([]byte(SeedScore), org[:], applicant[:])
}

// BadgeMint is the identity of the applicant's badge under the registry at org.
func BadgeMint(org, applicant Key) Key {
	return DeriveAddress([]byte(SeedBadge), org[:], applicant[:])
}
