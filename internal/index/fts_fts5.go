//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"
)

func initFTS(tx *sql.Tx, s Schema) error {
	text := s.textFields()
	if len(text) == 0 {
		return nil
	}
	cols := make([]string, len(text))
	for i, f := range text {
		cols[i] = f.column()
	}
	_, err := tx.Exec(fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS docs_fts USING fts5(
			fullname UNINDEXED,
			%s,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`, strings.Join(cols, ",\n\t\t\t")))
	return err
}

func dropFTS(tx *sql.Tx) error {
	if _, err := tx.Exec(`DROP TABLE IF EXISTS docs_fts`); err != nil {
		return fmt.Errorf("index: drop fts: %w", err)
	}
	return nil
}

// Schemas without text fields have no docs_fts table.

func ftsClear(tx *sql.Tx, s Schema) error {
	if len(s.textFields()) == 0 {
		return nil
	}
	if _, err := tx.Exec(`DELETE FROM docs_fts`); err != nil {
		return fmt.Errorf("index: clear fts: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, s Schema, fullname string) error {
	if len(s.textFields()) == 0 {
		return nil
	}
	if _, err := tx.Exec(`DELETE FROM docs_fts WHERE fullname = ?`, fullname); err != nil {
		return fmt.Errorf("index: remove fts %s: %w", fullname, err)
	}
	return nil
}

func ftsUpsert(tx *sql.Tx, s Schema, fullname string, texts map[string]string) error {
	text := s.textFields()
	if len(text) == 0 {
		return nil
	}
	if err := ftsDelete(tx, s, fullname); err != nil {
		return err
	}

	cols := []string{"fullname"}
	args := []any{fullname}
	for _, f := range text {
		cols = append(cols, f.column())
		args = append(args, texts[f.column()])
	}
	query := fmt.Sprintf(`INSERT INTO docs_fts (%s) VALUES (%s)`,
		strings.Join(cols, ", "), placeholders(len(cols)))
	if _, err := tx.Exec(query, args...); err != nil {
		return fmt.Errorf("index: upsert fts: %w", err)
	}
	return nil
}

// textMatch matches value as an FTS5 phrase restricted to cols.
func textMatch(cols []string, value string) (string, []any) {
	phrase := `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
	filter := cols[0]
	if len(cols) > 1 {
		filter = "{" + strings.Join(cols, " ") + "}"
	}
	return `fullname IN (SELECT fullname FROM docs_fts WHERE docs_fts MATCH ?)`,
		[]any{filter + " : " + phrase}
}
