package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

//go:embed schema.sql
var schemaSQL string

// Migrate applies the embedded schema.  Every statement is CREATE TABLE
// IF NOT EXISTS, so running it against an existing database is a no-op.
// Statements are sent one at a time because the DSN does not enable
// multiStatements.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := splitStatements(schemaSQL)
	for i, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}
	logrus.WithField("statements", len(stmts)).Info("database schema applied")
	return nil
}

// splitStatements drops "--" comment lines and splits on semicolons.
// The schema contains no semicolons inside literals.
func splitStatements(script string) []string {
	var b strings.Builder
	for _, line := range strings.Split(script, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	var out []string
	for _, s := range strings.Split(b.String(), ";") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
