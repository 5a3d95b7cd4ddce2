// Package index provides the SQLite-backed article index: a schema-driven
// document store with staged writes, paged and sorted queries, and optional
// FTS5 full-text search.
package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/folio/internal/apperr"
)

// FieldType selects how a field is stored and queried.
type FieldType string

const (
	// FieldText is full-text searchable.
	FieldText FieldType = "text"
	// FieldKeyword is a single exact-match value.
	FieldKeyword FieldType = "keyword"
	// FieldKeywords is a multi-value field stored comma-joined.
	FieldKeywords FieldType = "keywords"
	// FieldDateTime is stored as unix seconds.
	FieldDateTime FieldType = "datetime"
	FieldNumeric  FieldType = "numeric"
)

// KeywordSeparator joins multi-value fields on disk.
const KeywordSeparator = ","

// ContentSource names the article body as a field source.
const ContentSource = "content"

var fieldNameRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Field declares one indexed field.
type Field struct {
	Name string    `yaml:"name" json:"name"`
	Type FieldType `yaml:"type" json:"type"`
	// Source is the article attribute the value comes from; defaults to Name.
	Source   string `yaml:"source" json:"source,omitempty"`
	Sortable bool   `yaml:"sortable" json:"sortable,omitempty"`
}

// Validate validates the field declaration.
func (f Field) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Name, validation.Required, validation.Match(fieldNameRe)),
		validation.Field(&f.Type, validation.Required,
			validation.In(FieldText, FieldKeyword, FieldKeywords, FieldDateTime, FieldNumeric)),
	)
}

func (f Field) source() string {
	if f.Source != "" {
		return f.Source
	}
	return f.Name
}

func (f Field) column() string {
	return "f_" + f.Name
}

// Schema is the ordered list of indexed fields. Every document additionally
// carries its fullname, path, checksum and a JSON snapshot of the article.
type Schema struct {
	Fields []Field `yaml:"fields" json:"fields"`
}

// Validate validates every field and rejects duplicate names.
func (s Schema) Validate() error {
	seen := make(map[string]struct{}, len(s.Fields))
	for i, f := range s.Fields {
		if err := f.Validate(); err != nil {
			return fmt.Errorf("schema field %d: %w", i, err)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("schema field %q declared twice", f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	return nil
}

// Field returns the declared field with the given name.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

func (s Schema) textFields() []Field {
	var out []Field
	for _, f := range s.Fields {
		if f.Type == FieldText {
			out = append(out, f)
		}
	}
	return out
}

func (s Schema) fingerprint() string {
	norm := Schema{Fields: make([]Field, len(s.Fields))}
	for i, f := range s.Fields {
		f.Source = f.source()
		norm.Fields[i] = f
	}
	data, _ := json.Marshal(norm)
	return string(data)
}

// DefaultSchema indexes title and body for full text, category, tags and
// author as keywords, and both timestamps.
func DefaultSchema() Schema {
	return Schema{Fields: []Field{
		{Name: "title", Type: FieldText},
		{Name: "content", Type: FieldText, Source: ContentSource},
		{Name: "category", Type: FieldKeyword, Sortable: true},
		{Name: "tags", Type: FieldKeywords},
		{Name: "author", Type: FieldKeyword, Sortable: true},
		{Name: "created", Type: FieldDateTime, Source: "create_time", Sortable: true},
		{Name: "modified", Type: FieldDateTime, Source: "modified_time", Sortable: true},
	}}
}

const metaSchemaSQL = `
CREATE TABLE IF NOT EXISTS index_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

func docsTableSQL(s Schema) string {
	var b strings.Builder
	b.WriteString(`CREATE TABLE docs (
	fullname TEXT PRIMARY KEY,
	path     TEXT NOT NULL DEFAULT '',
	checksum TEXT NOT NULL DEFAULT '',
	info     TEXT NOT NULL`)
	for _, f := range s.Fields {
		fmt.Fprintf(&b, ",\n\t%s %s", f.column(), sqlType(f.Type))
	}
	b.WriteString("\n);\n")
	for _, f := range s.Fields {
		if f.Sortable {
			fmt.Fprintf(&b, "CREATE INDEX idx_docs_%s ON docs(%s);\n", f.Name, f.column())
		}
	}
	return b.String()
}

func sqlType(t FieldType) string {
	switch t {
	case FieldDateTime:
		return "INTEGER"
	case FieldNumeric:
		return "REAL"
	default:
		return "TEXT"
	}
}

// DB wraps a sql.DB with index-specific operations. Writes are staged in a
// transaction until Commit. A DB is not safe for concurrent writers.
type DB struct {
	conn   *sql.DB
	schema *Schema // committed schema, nil before InitIndex
	staged *Schema // schema replaced by a pending InitIndex
	tx     *sql.Tx
}

// Open opens (or creates) the SQLite database.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(metaSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply meta schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close discards staged changes and closes the connection.
func (db *DB) Close() error {
	_ = db.Rollback()
	return db.conn.Close()
}

// Schema returns the schema writes are currently validated against.
func (db *DB) Schema() (Schema, bool) {
	if db.staged != nil {
		return *db.staged, true
	}
	if db.schema != nil {
		return *db.schema, true
	}
	return Schema{}, false
}

// InitIndex creates or reopens the index with the given schema. With clear,
// removal of every document is staged and becomes visible on Commit; a
// changed schema is only accepted together with clear.
func (db *DB) InitIndex(ctx context.Context, s Schema, clear bool) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("index: %w", err)
	}
	if db.tx != nil {
		return errors.New("index: init with staged changes pending")
	}

	stored, err := db.storedFingerprint(ctx)
	if err != nil {
		return err
	}

	switch {
	case stored == "":
		tx, err := db.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("index: begin tx: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck
		if err := createTables(tx, s); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("index: commit schema: %w", err)
		}
		db.schema = &s

	case stored == s.fingerprint():
		db.schema = &s
		if clear {
			tx, err := db.begin(ctx)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(`DELETE FROM docs`); err != nil {
				return fmt.Errorf("index: clear: %w", err)
			}
			if err := ftsClear(tx, s); err != nil {
				return err
			}
		}

	default:
		if !clear {
			return fmt.Errorf("index: %w: stored schema differs, rebuild required", apperr.ErrSchemaMismatch)
		}
		tx, err := db.begin(ctx)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`DROP TABLE IF EXISTS docs`); err != nil {
			return fmt.Errorf("index: drop docs: %w", err)
		}
		if err := dropFTS(tx); err != nil {
			return err
		}
		if err := createTables(tx, s); err != nil {
			return err
		}
		db.staged = &s
	}
	return nil
}

func createTables(tx *sql.Tx, s Schema) error {
	if _, err := tx.Exec(docsTableSQL(s)); err != nil {
		return fmt.Errorf("index: create docs: %w", err)
	}
	if err := initFTS(tx, s); err != nil {
		return fmt.Errorf("index: apply fts schema: %w", err)
	}
	_, err := tx.Exec(`INSERT OR REPLACE INTO index_meta (key, value) VALUES ('schema', ?)`, s.fingerprint())
	if err != nil {
		return fmt.Errorf("index: save schema: %w", err)
	}
	return nil
}

func (db *DB) storedFingerprint(ctx context.Context) (string, error) {
	var fp string
	err := db.conn.QueryRowContext(ctx, `SELECT value FROM index_meta WHERE key = 'schema'`).Scan(&fp)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: read schema: %w", err)
	}
	return fp, nil
}

func (db *DB) begin(ctx context.Context) (*sql.Tx, error) {
	if db.tx != nil {
		return db.tx, nil
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("index: begin tx: %w", err)
	}
	db.tx = tx
	return tx, nil
}

// Commit atomically publishes every staged change.
func (db *DB) Commit() error {
	if db.tx == nil {
		return nil
	}
	tx := db.tx
	db.tx = nil
	if err := tx.Commit(); err != nil {
		db.staged = nil
		return fmt.Errorf("index: commit: %w", err)
	}
	if db.staged != nil {
		db.schema, db.staged = db.staged, nil
	}
	return nil
}

// Rollback discards every staged change.
func (db *DB) Rollback() error {
	db.staged = nil
	if db.tx == nil {
		return nil
	}
	tx := db.tx
	db.tx = nil
	if err := tx.Rollback(); err != nil {
		return fmt.Errorf("index: rollback: %w", err)
	}
	return nil
}
