// Package accounts is the sample entity used by the CLI and the driver
// integration tests: a balance-carrying account with a row version.
package accounts

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/compozy/repokit/engine/schema"
	"github.com/compozy/repokit/engine/validation"
	"github.com/shopspring/decimal"
)

// Account is a named owner balance.
type Account struct {
	ID      int64           `json:"id"`
	Owner   string          `json:"owner"          validate:"required,max=120"`
	Email   string          `json:"email"          validate:"required,email"`
	Balance decimal.Decimal `json:"balance"`
	Note    *string         `json:"note,omitempty"`
	Version int64           `json:"version"`
}

// Schema maps Account onto the accounts table.
var Schema = schema.MustNew("accounts",
	schema.Key("id", func(a *Account) *int64 { return &a.ID }).AsGenerated(),
	schema.Col("owner", func(a *Account) *string { return &a.Owner }),
	schema.Col("email", func(a *Account) *string { return &a.Email }),
	schema.ColEq("balance", func(a *Account) *decimal.Decimal { return &a.Balance }, decimal.Decimal.Equal),
	schema.Col("note", func(a *Account) **string { return &a.Note }),
	schema.Version("version", func(a *Account) *int64 { return &a.Version }),
)

// NewValidator checks the struct tags and rejects negative balances.
func NewValidator() validation.Validator[Account] {
	return validation.NewCompositeValidator[Account](
		validation.NewStructValidator[Account](),
		validation.Func[Account](func(_ context.Context, a *Account) validation.Result {
			if a.Balance.IsNegative() {
				return validation.Fail(validation.FieldError{
					Field:   "Balance",
					Rule:    "non_negative",
					Message: "balance must not be negative",
				})
			}
			return validation.Ok()
		}),
	)
}

//go:embed migrations
var migrationsFS embed.FS

// Migrations returns the goose migration directory for driver.
func Migrations(driver string) (fs.FS, string, error) {
	switch driver {
	case "postgres", "sqlite":
		return migrationsFS, "migrations/" + driver, nil
	default:
		return nil, "", fmt.Errorf("accounts: no migrations for driver %q", driver)
	}
}
