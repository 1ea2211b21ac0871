package id

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ExternalIDLength is the number of hex characters kept from the digest.
const ExternalIDLength = 24

// ExternalID returns the dedupe key for a transaction row:
// sha256("date|amount|description|source") truncated to ExternalIDLength.
// amount is rendered in its shortest form ("250.00" -> "250") so that the
// same value always hashes the same regardless of how the source wrote it.
func ExternalID(date string, amount decimal.Decimal, normalizedDesc, source string) string {
	key := strings.Join([]string{date, amount.String(), normalizedDesc, source}, "|")
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:ExternalIDLength]
}

// NewRunID returns an identifier for one import run.
func NewRunID() string {
	return uuid.NewString()
}

// NewRuleID returns an identifier for a newly created rule.
func NewRuleID() string {
	return "rule-" + uuid.NewString()[:8]
}
