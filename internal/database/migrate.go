package database

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

// Migrate creates the accounts table and its indexes if they do not exist.
// Email and phone are unique only among verified accounts, so the unique
// indexes are partial.
func Migrate(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().
		Model((*Account)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create accounts table: %w", err)
	}

	indexes := []struct {
		name   string
		column string
		unique bool
		where  string
	}{
		{name: "accounts_verified_email_key", column: "email", unique: true, where: "account_verified = TRUE"},
		{name: "accounts_verified_phone_key", column: "phone", unique: true, where: "account_verified = TRUE"},
		{name: "accounts_unverified_created_at_idx", column: "created_at", where: "account_verified = FALSE"},
		{name: "accounts_reset_password_token_idx", column: "reset_password_token", where: "reset_password_token IS NOT NULL"},
	}

	for _, idx := range indexes {
		q := db.NewCreateIndex().
			Model((*Account)(nil)).
			Index(idx.name).
			Column(idx.column).
			IfNotExists().
			Where(idx.where)
		if idx.unique {
			q = q.Unique()
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}
	}

	return nil
}
