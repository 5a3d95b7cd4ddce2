//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"strings"
)

// FTS5 not available; text fields are matched with LIKE on the docs table.

func initFTS(_ *sql.Tx, _ Schema) error { return nil }

func dropFTS(_ *sql.Tx) error { return nil }

func ftsClear(_ *sql.Tx, _ Schema) error { return nil }

func ftsUpsert(_ *sql.Tx, _ Schema, _ string, _ map[string]string) error {
	// Text is already stored in the docs table; nothing extra to do.
	return nil
}

func ftsDelete(_ *sql.Tx, _ Schema, _ string) error { return nil }

// textMatch matches value as a case-insensitive substring of any column.
func textMatch(cols []string, value string) (string, []any) {
	like := "%" + escapeLike(value) + "%"
	conds := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		conds[i] = c + ` LIKE ? ESCAPE '\'`
		args[i] = like
	}
	return "(" + strings.Join(conds, " OR ") + ")", args
}
