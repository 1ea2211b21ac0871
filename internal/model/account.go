package model

// Account is a row in accounts/accounts.csv. Every account belongs to an
// organization, which selects the rule set applied to its imports.
type Account struct {
	ID             string
	Name           string
	OrganizationID string
	Description    string
}
