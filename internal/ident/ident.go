// Package ident computes stable test identities for the example database.
//
// An identity is a content-addressed hash of the test name and the ordered
// shape labels of its strategies. It is stable across runs and across
// unrelated code changes, so stored failing examples survive refactors, but
// renaming a test or changing a strategy's shape produces a fresh identity
// and never collides with the old one.
package ident

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/text/unicode/norm"
)

// Domain prefix for identity hashing. Version suffix enables future
// algorithm migration without colliding with existing databases.
const domainTest = "falsify/test/v1"

// TestID computes the identity for a test given its name and the ordered
// labels of its strategies.
//
// Format: SHA256(domain + 0x00 + field*) where each field is the NFC
// normalization of the string, prefixed with its byte length. The null
// separator and the length prefixes make field boundaries unambiguous:
// ("ab", "c") and ("a", "bc") hash differently.
func TestID(name string, labels []string) string {
	h := sha256.New()
	h.Write([]byte(domainTest))
	h.Write([]byte{0x00})
	writeField(h, name)
	for _, l := range labels {
		writeField(h, l)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeField(h interface{ Write([]byte) (int, error) }, s string) {
	// NFC normalization keeps identities stable across visually identical
	// but differently composed Unicode test names.
	b := norm.NFC.Bytes([]byte(s))
	var ln [8]byte
	binary.BigEndian.PutUint64(ln[:], uint64(len(b)))
	h.Write(ln[:])
	h.Write(b)
}
