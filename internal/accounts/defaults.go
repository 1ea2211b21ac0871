package accounts

import "github.com/cleared-dev/tally/internal/model"

// DefaultAccounts returns the accounts a new workspace starts with, all
// owned by org.
func DefaultAccounts(org string) []model.Account {
	return []model.Account{
		{ID: "checking", Name: "Business Checking", OrganizationID: org, Description: "Primary checking account"},
		{ID: "savings", Name: "Business Savings", OrganizationID: org, Description: "Savings account"},
		{ID: "credit-card", Name: "Credit Card", OrganizationID: org, Description: "Business credit card"},
	}
}
