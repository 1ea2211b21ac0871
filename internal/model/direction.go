package model

import "fmt"

// Direction is the economic nature of a transaction, independent of its sign.
type Direction string

const (
	DirectionIncome   Direction = "income"
	DirectionExpense  Direction = "expense"
	DirectionTransfer Direction = "transfer"
	DirectionRefund   Direction = "refund"
	DirectionUnknown  Direction = "unknown"
)

// Directions lists every valid direction.
var Directions = []Direction{
	DirectionIncome,
	DirectionExpense,
	DirectionTransfer,
	DirectionRefund,
	DirectionUnknown,
}

// ParseDirection validates s as a Direction.
func ParseDirection(s string) (Direction, error) {
	for _, d := range Directions {
		if string(d) == s {
			return d, nil
		}
	}
	return "", fmt.Errorf("unknown direction %q", s)
}
