package id

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestExternalID_Deterministic(t *testing.T) {
	a := ExternalID("2025-11-01", dec("7.85"), "starbucks #123", "tiller")
	b := ExternalID("2025-11-01", dec("7.85"), "starbucks #123", "tiller")
	assert.Equal(t, a, b)
	assert.Len(t, a, ExternalIDLength)
}

func TestExternalID_MatchesDigestPrefix(t *testing.T) {
	sum := sha256.Sum256([]byte("2025-11-01|7.85|starbucks #123|tiller"))
	want := hex.EncodeToString(sum[:])[:24]
	assert.Equal(t, want, ExternalID("2025-11-01", dec("7.85"), "starbucks #123", "tiller"))
}

func TestExternalID_AmountForm(t *testing.T) {
	assert.Equal(t,
		ExternalID("2025-11-01", dec("250"), "client payment", "tiller"),
		ExternalID("2025-11-01", dec("250.00"), "client payment", "tiller"),
	)
}

func TestExternalID_InputsMatter(t *testing.T) {
	base := ExternalID("2025-11-01", dec("7.85"), "starbucks", "tiller")
	tests := []struct {
		name string
		got  string
	}{
		{"date", ExternalID("2025-11-02", dec("7.85"), "starbucks", "tiller")},
		{"amount", ExternalID("2025-11-01", dec("7.86"), "starbucks", "tiller")},
		{"description", ExternalID("2025-11-01", dec("7.85"), "starbucks coffee", "tiller")},
		{"source", ExternalID("2025-11-01", dec("7.85"), "starbucks", "sheets")},
	}
	for _, tt := range tests {
		assert.NotEqual(t, base, tt.got, "changing %s must change the id", tt.name)
	}
}

func TestNewRunID(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	assert.NotEqual(t, a, b)
	_, err := uuid.Parse(a)
	require.NoError(t, err)
}

func TestNewRuleID(t *testing.T) {
	got := NewRuleID()
	assert.Len(t, got, len("rule-")+8)
	assert.NotEqual(t, got, NewRuleID())
}
