package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/article"
	"github.com/starford/folio/internal/resolver"
	"github.com/starford/folio/internal/storage"
)

// AddArticle stages an insert or replace of the article's document.
func (db *DB) AddArticle(ctx context.Context, a *article.Article) error {
	s, ok := db.Schema()
	if !ok {
		return errors.New("index: add before InitIndex")
	}

	cols := []string{"fullname", "path", "checksum", "info"}
	info, err := json.Marshal(a.Info)
	if err != nil {
		return fmt.Errorf("index: encode %s: %w", a.Fullname, err)
	}
	raw, err := a.Raw()
	if err != nil {
		return fmt.Errorf("index: add %s: %w", a.Fullname, err)
	}
	args := []any{a.Fullname, a.Filename(), storage.Checksum(raw), string(info)}

	texts := make(map[string]string)
	for _, f := range s.Fields {
		v, err := fieldValue(a, f)
		if err != nil {
			return fmt.Errorf("index: add %s: %w", a.Fullname, err)
		}
		cols = append(cols, f.column())
		args = append(args, v)
		if str, ok := v.(string); ok && f.Type == FieldText {
			texts[f.column()] = str
		}
	}

	tx, err := db.begin(ctx)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`INSERT OR REPLACE INTO docs (%s) VALUES (%s)`,
		strings.Join(cols, ", "), placeholders(len(cols)))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("index: add %s: %w", a.Fullname, err)
	}
	return ftsUpsert(tx, s, a.Fullname, texts)
}

// RemoveArticle stages the removal of a document. Removing a fullname that
// is not indexed fails with ErrStaleRecordMissing.
func (db *DB) RemoveArticle(ctx context.Context, fullname string) error {
	s, ok := db.Schema()
	if !ok {
		return errors.New("index: remove before InitIndex")
	}
	tx, err := db.begin(ctx)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM docs WHERE fullname = ?`, fullname)
	if err != nil {
		return fmt.Errorf("index: remove %s: %w", fullname, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("index: remove %s: %w", fullname, err)
	}
	if n == 0 {
		return fmt.Errorf("index: remove %s: %w", fullname, apperr.ErrStaleRecordMissing)
	}
	return ftsDelete(tx, s, fullname)
}

// Document returns the committed field map of one document, keyed by field
// name plus "fullname", "path" and "checksum". Multi-value fields come back
// as []string.
func (db *DB) Document(ctx context.Context, fullname string) (map[string]any, error) {
	if db.schema == nil {
		return nil, errors.New("index: read before InitIndex")
	}
	s := *db.schema

	cols := []string{"fullname", "path", "checksum"}
	for _, f := range s.Fields {
		cols = append(cols, f.column())
	}
	dest := make([]any, len(cols))
	for i := range dest {
		dest[i] = new(any)
	}
	query := fmt.Sprintf(`SELECT %s FROM docs WHERE fullname = ?`, strings.Join(cols, ", "))
	err := db.conn.QueryRowContext(ctx, query, fullname).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: document %s: %w", fullname, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: document %s: %w", fullname, err)
	}

	out := map[string]any{
		"fullname": asString(*dest[0].(*any)),
		"path":     asString(*dest[1].(*any)),
		"checksum": asString(*dest[2].(*any)),
	}
	for i, f := range s.Fields {
		v := *dest[i+3].(*any)
		if v == nil {
			continue
		}
		out[f.Name] = decodeField(f, v)
	}
	return out, nil
}

// Checksums returns path→checksum for every committed document.
func (db *DB) Checksums(ctx context.Context) (map[string]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT path, checksum FROM docs`)
	if err != nil {
		return nil, fmt.Errorf("index: checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// fieldValue extracts and coerces the value for f. Absent values are NULL.
func fieldValue(a *article.Article, f Field) (any, error) {
	var v any
	if f.source() == ContentSource {
		body, err := a.Content()
		if err != nil {
			return nil, err
		}
		v = body
	} else {
		var ok bool
		if v, ok = a.Attr(f.source()); !ok || v == nil {
			return nil, nil
		}
	}
	return coerce(f, v)
}

// coerce converts v to its stored form. Lists are only accepted for
// keywords fields and keywords fields only accept lists.
func coerce(f Field, v any) (any, error) {
	list := isList(v)
	if f.Type == FieldKeywords {
		if !list {
			return nil, fmt.Errorf("%w: field %q wants a list, got %T", apperr.ErrBadFieldType, f.Name, v)
		}
		items, ok := stringItems(v)
		if !ok {
			return nil, fmt.Errorf("%w: field %q wants a list of strings, got %T", apperr.ErrBadFieldType, f.Name, v)
		}
		for _, it := range items {
			if strings.Contains(it, KeywordSeparator) {
				return nil, fmt.Errorf("%w: field %q value %q contains %q", apperr.ErrBadFieldType, f.Name, it, KeywordSeparator)
			}
		}
		return strings.Join(items, KeywordSeparator), nil
	}
	if list {
		return nil, fmt.Errorf("%w: field %q is scalar, got list %T", apperr.ErrBadFieldType, f.Name, v)
	}

	switch f.Type {
	case FieldText, FieldKeyword:
		switch t := v.(type) {
		case string:
			return t, nil
		case int, int64, float64, bool:
			return fmt.Sprint(t), nil
		case time.Time:
			return t.UTC().Format(time.RFC3339), nil
		}
	case FieldDateTime:
		if ts, ok := resolver.ParseTime(v); ok {
			return ts, nil
		}
	case FieldNumeric:
		switch t := v.(type) {
		case int:
			return float64(t), nil
		case int64:
			return float64(t), nil
		case float64:
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: field %q (%s) cannot hold %T", apperr.ErrBadFieldType, f.Name, f.Type, v)
}

func decodeField(f Field, v any) any {
	switch f.Type {
	case FieldKeywords:
		s := asString(v)
		if s == "" {
			return []string{}
		}
		return strings.Split(s, KeywordSeparator)
	case FieldDateTime:
		if n, ok := v.(int64); ok {
			return n
		}
	case FieldNumeric:
		if n, ok := v.(float64); ok {
			return n
		}
		if n, ok := v.(int64); ok {
			return float64(n)
		}
	}
	return asString(v)
}

func isList(v any) bool {
	if _, ok := v.([]byte); ok {
		return false
	}
	k := reflect.ValueOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

func stringItems(v any) ([]string, bool) {
	switch t := v.(type) {
	case []string:
		return t, true
	case []any:
		out := make([]string, 0, len(t))
		for _, it := range t {
			s, ok := it.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case int64:
		return strconv.FormatInt(t, 10)
	}
	return fmt.Sprint(v)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
