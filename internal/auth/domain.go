package auth

// Operator is an account allowed to manage the catalog.
type Operator struct {
	Username     string
	PasswordHash string
}

// APITokenOperator names requests authorised by the static API token.
const APITokenOperator = "api-token"
