package importer

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/tally/internal/model"
)

// TransferKeywords mark money moving between the owner's own accounts.
var TransferKeywords = []string{
	"transfer",
	"xfer",
	"internal",
	"to checking",
	"from savings",
	"zelle to self",
	"balance transfer",
}

// RefundKeywords mark money coming back from an earlier purchase.
var RefundKeywords = []string{
	"refund",
	"reversal",
	"returned",
	"chargeback",
	"credit back",
	"adj credit",
}

// DirectionFromSign is the sign-only classification: positive is income,
// negative is expense.
func DirectionFromSign(raw decimal.Decimal) model.Direction {
	switch raw.Sign() {
	case 1:
		return model.DirectionIncome
	case -1:
		return model.DirectionExpense
	}
	return model.DirectionUnknown
}

// RefineDirection overrides proposed with transfer or refund when the
// normalized description contains one of their keywords. Transfer wins.
func RefineDirection(normalizedDesc string, proposed model.Direction) model.Direction {
	if containsAny(normalizedDesc, TransferKeywords) {
		return model.DirectionTransfer
	}
	if containsAny(normalizedDesc, RefundKeywords) {
		return model.DirectionRefund
	}
	return proposed
}

// ClassifyDirection runs both stages.
func ClassifyDirection(raw decimal.Decimal, normalizedDesc string) model.Direction {
	return RefineDirection(normalizedDesc, DirectionFromSign(raw))
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
