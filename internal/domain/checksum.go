package domain

import (
	"encoding/hex"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/blake2b"
)

// contentChecksum hashes the financially meaningful fields of a record.
// Decimals are rendered in canonical form so 10 and 10.00 hash the same.
func contentChecksum(parts ...string) string {
	sum := blake2b.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

func canonical(d decimal.Decimal) string {
	return d.String()
}
