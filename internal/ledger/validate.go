package ledger

import (
	"fmt"

	"github.com/cleared-dev/tally/internal/model"
)

// ValidationError describes a record the store refuses to write.
type ValidationError struct {
	ExternalID  string
	Description string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("record [%s]: %s", e.ExternalID, e.Description)
}

// ValidateBatch checks that every record belongs to scope and carries what a
// ledger row needs.
func ValidateBatch(scope model.Scope, batch []model.Transaction) []ValidationError {
	var errs []ValidationError

	for _, txn := range batch {
		fail := func(format string, args ...any) {
			errs = append(errs, ValidationError{ExternalID: txn.ExternalID, Description: fmt.Sprintf(format, args...)})
		}

		if txn.ExternalID == "" {
			fail("missing external id")
		}
		if txn.AccountID != scope.AccountID {
			fail("account %q outside scope %q", txn.AccountID, scope.AccountID)
		}
		if txn.Source != scope.Source {
			fail("source %q outside scope %q", txn.Source, scope.Source)
		}
		if !txn.Amount.IsPositive() {
			fail("amount %s must be positive", txn.Amount)
		}
		if _, err := model.ParseDirection(string(txn.Direction)); err != nil {
			fail("%v", err)
		}
	}
	return errs
}
